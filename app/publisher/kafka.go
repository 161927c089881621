package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/types"
)

// PaymentStatusEvent is the message emitted on the payment-events topic when
// an intent reaches a terminal state.
type PaymentStatusEvent struct {
	PaymentID             string              `json:"paymentId"`
	BookingID             string              `json:"bookingId"`
	Provider              types.Gateway       `json:"provider"`
	ProviderTransactionID string              `json:"providerTransactionId"`
	Status                types.PaymentStatus `json:"status"`
	OccurredAt            time.Time           `json:"occurredAt"`
}

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

type KafkaPublisher struct {
	writer      *kafka.Writer
	retryConfig RetryConfig
}

func NewKafkaPublisher(broker, topic string, retryConfig RetryConfig) *KafkaPublisher {
	if retryConfig.MaxAttempts == 0 {
		retryConfig.MaxAttempts = 5
	}
	if retryConfig.BaseDelay == 0 {
		retryConfig.BaseDelay = 100 * time.Millisecond
	}
	if retryConfig.MaxDelay == 0 {
		retryConfig.MaxDelay = 10 * time.Second
	}

	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(broker),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
		retryConfig: retryConfig,
	}
}

func (p *KafkaPublisher) PublishPaymentStatus(ctx context.Context, event *PaymentStatusEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("error marshaling payment status event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.PaymentID),
		Value: data,
	}

	var lastErr error
	for attempt := 0; attempt < p.retryConfig.MaxAttempts; attempt++ {
		if err := p.writer.WriteMessages(ctx, msg); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt == p.retryConfig.MaxAttempts-1 {
			break
		}

		select {
		case <-time.After(p.calculateBackoff(attempt)):
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}

	return fmt.Errorf("failed to publish payment status event after %d attempts: %w", p.retryConfig.MaxAttempts, lastErr)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func (p *KafkaPublisher) calculateBackoff(attempt int) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt))) * p.retryConfig.BaseDelay
	if delay > p.retryConfig.MaxDelay {
		delay = p.retryConfig.MaxDelay
	}

	jitter := time.Duration(rand.Float64() * float64(delay) * 0.3)
	return delay + jitter - time.Duration(float64(delay)*0.15)
}
