package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	HTTP     ServerConfig
	MySQL    MySQLConfig
	Log      LogConfig
	Booking  BookingConfig
	MoMo     MoMoConfig
	ZaloPay  ZaloPayConfig
	PayOS    PayOSConfig
	Card     CardConfig
	Payments PaymentsConfig
	Jobs     JobsConfig
	Kafka    KafkaConfig
}

type AppConfig struct {
	ServiceName string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level string
}

type BookingConfig struct {
	BaseURL     string
	HTTPTimeout time.Duration
}

type MoMoConfig struct {
	PartnerCode string
	AccessKey   string
	SecretKey   string
	Endpoint    string
	RedirectURL string
	IPNBaseURL  string
	HTTPTimeout time.Duration
}

type ZaloPayConfig struct {
	AppID       string
	Key1        string
	Key2        string
	Endpoint    string
	CallbackURL string
	HTTPTimeout time.Duration
}

type PayOSConfig struct {
	ClientID    string
	APIKey      string
	ChecksumKey string
	Endpoint    string
	ReturnURL   string
	CancelURL   string
	HTTPTimeout time.Duration
}

type CardConfig struct {
	SecretKey                 string
	WebhookSecret             string
	SuccessURL                string
	CancelURL                 string
	SignatureToleranceSeconds int64
	HTTPTimeout               time.Duration
}

type PaymentsConfig struct {
	Currency             string
	ConfirmMaxAttempts   int32
	ConfirmRetryInterval time.Duration
	PendingTimeout       time.Duration
	JobBatchSize         int32
}

type JobsConfig struct {
	ConfirmDispatchInterval time.Duration
	ExpirePendingInterval   time.Duration
}

type KafkaConfig struct {
	Broker      string
	EventsTopic string
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	bookingBaseURL := os.Getenv("BOOKING_SERVICE_URL")
	if bookingBaseURL == "" {
		return nil, errors.New("BOOKING_SERVICE_URL environment variable is required")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "payment-service"),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Booking: BookingConfig{
			BaseURL:     bookingBaseURL,
			HTTPTimeout: getSecondsEnv("BOOKING_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		MoMo: MoMoConfig{
			PartnerCode: getEnv("MOMO_PARTNER_CODE", ""),
			AccessKey:   getEnv("MOMO_ACCESS_KEY", ""),
			SecretKey:   getEnv("MOMO_SECRET_KEY", ""),
			Endpoint:    getEnv("MOMO_ENDPOINT", "https://test-payment.momo.vn"),
			RedirectURL: getEnv("MOMO_REDIRECT_URL", ""),
			IPNBaseURL:  getEnv("MOMO_IPN_BASE_URL", ""),
			HTTPTimeout: getSecondsEnv("MOMO_HTTP_TIMEOUT_SECONDS", 30*time.Second),
		},
		ZaloPay: ZaloPayConfig{
			AppID:       getEnv("ZALOPAY_APP_ID", ""),
			Key1:        getEnv("ZALOPAY_KEY1", ""),
			Key2:        getEnv("ZALOPAY_KEY2", ""),
			Endpoint:    getEnv("ZALOPAY_ENDPOINT", "https://sb-openapi.zalopay.vn"),
			CallbackURL: getEnv("ZALOPAY_CALLBACK_URL", ""),
			HTTPTimeout: getSecondsEnv("ZALOPAY_HTTP_TIMEOUT_SECONDS", 30*time.Second),
		},
		PayOS: PayOSConfig{
			ClientID:    getEnv("PAYOS_CLIENT_ID", ""),
			APIKey:      getEnv("PAYOS_API_KEY", ""),
			ChecksumKey: getEnv("PAYOS_CHECKSUM_KEY", ""),
			Endpoint:    getEnv("PAYOS_ENDPOINT", "https://api-merchant.payos.vn"),
			ReturnURL:   getEnv("PAYOS_RETURN_URL", ""),
			CancelURL:   getEnv("PAYOS_CANCEL_URL", ""),
			HTTPTimeout: getSecondsEnv("PAYOS_HTTP_TIMEOUT_SECONDS", 30*time.Second),
		},
		Card: CardConfig{
			SecretKey:                 getEnv("CARD_SECRET_KEY", ""),
			WebhookSecret:             getEnv("CARD_WEBHOOK_SECRET", ""),
			SuccessURL:                getEnv("CARD_SUCCESS_URL", ""),
			CancelURL:                 getEnv("CARD_CANCEL_URL", ""),
			SignatureToleranceSeconds: int64(getIntEnv("CARD_SIGNATURE_TOLERANCE_SECONDS", 300)),
			HTTPTimeout:               getSecondsEnv("CARD_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Payments: PaymentsConfig{
			Currency:             getEnv("PAYMENTS_CURRENCY", "VND"),
			ConfirmMaxAttempts:   int32(getIntEnv("PAYMENTS_CONFIRM_MAX_ATTEMPTS", 10)),
			ConfirmRetryInterval: getMinutesEnv("PAYMENTS_CONFIRM_RETRY_INTERVAL_MINUTES", 5*time.Minute),
			PendingTimeout:       getMinutesEnv("PAYMENTS_PENDING_TIMEOUT_MINUTES", 60*time.Minute),
			JobBatchSize:         int32(getIntEnv("PAYMENTS_JOB_BATCH_SIZE", 100)),
		},
		Jobs: JobsConfig{
			ConfirmDispatchInterval: getMinutesEnv("PAYMENTS_CONFIRM_DISPATCH_INTERVAL_MINUTES", time.Minute),
			ExpirePendingInterval:   getMinutesEnv("PAYMENTS_EXPIRE_PENDING_INTERVAL_MINUTES", 5*time.Minute),
		},
		Kafka: KafkaConfig{
			Broker:      getEnv("KAFKA_BROKER", ""),
			EventsTopic: getEnv("KAFKA_PAYMENT_EVENTS_TOPIC", "payment.status"),
			MaxAttempts: getIntEnv("KAFKA_PUBLISH_MAX_ATTEMPTS", 5),
			BaseDelay:   getSecondsEnv("KAFKA_PUBLISH_BASE_DELAY_SECONDS", time.Second),
			MaxDelay:    getSecondsEnv("KAFKA_PUBLISH_MAX_DELAY_SECONDS", 10*time.Second),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
