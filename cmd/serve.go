package cmd

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/booking"
	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/controller"
	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/gateway"
	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/publisher"
	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/repository"
	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/service"
	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  "Start the HTTP (Echo) server for payment creation and gateway webhooks.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, paymentService, cleanup := mustCreatePaymentService()
	defer cleanup()

	paymentController := controller.NewPaymentController(paymentService)
	e := setupHTTPServer(paymentController)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}

	logrus.Info("Server stopped")
}

func setupHTTPServer(paymentController *controller.PaymentController) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	e.GET("/health", paymentController.Health)

	payments := e.Group("/payments")
	payments.POST("", paymentController.CreatePayment)
	payments.GET("/:id", paymentController.GetPayment)
	payments.POST("/webhooks/:gateway", paymentController.HandleWebhook)

	return e
}

func mustCreatePaymentService() (*config.Config, *service.PaymentService, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	intentRepo := repository.NewPaymentIntentRepository(db)
	webhookRepo := repository.NewWebhookRecordRepository(db)

	gatewayRegistry := gateway.NewRegistry(
		gateway.NewMoMoAdapter(gateway.MoMoConfig{
			PartnerCode: cfg.MoMo.PartnerCode,
			AccessKey:   cfg.MoMo.AccessKey,
			SecretKey:   cfg.MoMo.SecretKey,
			Endpoint:    cfg.MoMo.Endpoint,
			RedirectURL: cfg.MoMo.RedirectURL,
			IPNBaseURL:  cfg.MoMo.IPNBaseURL,
			HTTPTimeout: cfg.MoMo.HTTPTimeout,
		}),
		gateway.NewZaloPayAdapter(gateway.ZaloPayConfig{
			AppID:       cfg.ZaloPay.AppID,
			Key1:        cfg.ZaloPay.Key1,
			Key2:        cfg.ZaloPay.Key2,
			Endpoint:    cfg.ZaloPay.Endpoint,
			CallbackURL: cfg.ZaloPay.CallbackURL,
			HTTPTimeout: cfg.ZaloPay.HTTPTimeout,
		}),
		gateway.NewPayOSAdapter(gateway.PayOSConfig{
			ClientID:    cfg.PayOS.ClientID,
			APIKey:      cfg.PayOS.APIKey,
			ChecksumKey: cfg.PayOS.ChecksumKey,
			Endpoint:    cfg.PayOS.Endpoint,
			ReturnURL:   cfg.PayOS.ReturnURL,
			CancelURL:   cfg.PayOS.CancelURL,
			HTTPTimeout: cfg.PayOS.HTTPTimeout,
		}),
		gateway.NewCardAdapter(gateway.CardConfig{
			SecretKey:                 cfg.Card.SecretKey,
			WebhookSecret:             cfg.Card.WebhookSecret,
			SuccessURL:                cfg.Card.SuccessURL,
			CancelURL:                 cfg.Card.CancelURL,
			SignatureToleranceSeconds: cfg.Card.SignatureToleranceSeconds,
			HTTPTimeout:               cfg.Card.HTTPTimeout,
		}),
	)

	bookingClient := booking.NewClient(cfg.Booking.BaseURL, cfg.Booking.HTTPTimeout)

	var events *publisher.KafkaPublisher
	if cfg.Kafka.Broker != "" {
		events = publisher.NewKafkaPublisher(cfg.Kafka.Broker, cfg.Kafka.EventsTopic, publisher.RetryConfig{
			MaxAttempts: cfg.Kafka.MaxAttempts,
			BaseDelay:   cfg.Kafka.BaseDelay,
			MaxDelay:    cfg.Kafka.MaxDelay,
		})
	}

	var paymentService *service.PaymentService
	if events != nil {
		paymentService = service.NewPaymentService(intentRepo, webhookRepo, gatewayRegistry, bookingClient, events, cfg.Payments)
	} else {
		paymentService = service.NewPaymentService(intentRepo, webhookRepo, gatewayRegistry, bookingClient, nil, cfg.Payments)
	}

	cleanup := func() {
		if events != nil {
			if err := events.Close(); err != nil {
				logrus.WithError(err).Warn("Failed to close event publisher")
			}
		}
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return cfg, paymentService, cleanup
}
