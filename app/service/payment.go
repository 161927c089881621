package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/booking"
	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/entity"
	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/factory"
	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/gateway"
	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/publisher"
	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/types"
	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/config"
)

const defaultBatchSize = int32(100)

type intentRepository interface {
	Create(ctx context.Context, intent *entity.PaymentIntent) error
	ClaimTransition(ctx context.Context, id uint64, gatewayTxnID string, status types.PaymentStatus, rawPayload string, now time.Time) (bool, error)
	UpsertTerminal(ctx context.Context, intent *entity.PaymentIntent) (bool, error)
	UpdateConfirmDelivery(ctx context.Context, intent *entity.PaymentIntent) error
	MarkCancelled(ctx context.Context, id uint64, now time.Time) (bool, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*entity.PaymentIntent, error)
	FindByGatewayTxnID(ctx context.Context, gw types.Gateway, gatewayTxnID string) (*entity.PaymentIntent, error)
	FindByOrderRef(ctx context.Context, gw types.Gateway, orderRef string) (*entity.PaymentIntent, error)
	FindPendingByBooking(ctx context.Context, gw types.Gateway, bookingID string) (*entity.PaymentIntent, error)
	ListDueConfirmDispatch(ctx context.Context, now time.Time, limit int32) ([]*entity.PaymentIntent, error)
	ListExpiredPending(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.PaymentIntent, error)
}

type webhookRecordRepository interface {
	Create(ctx context.Context, record *entity.WebhookRecord) error
}

type bookingClient interface {
	ConfirmPayment(ctx context.Context, bookingID string, confirm *booking.ConfirmRequest) error
}

type eventPublisher interface {
	PublishPaymentStatus(ctx context.Context, event *publisher.PaymentStatusEvent) error
}

type PaymentService struct {
	intentRepo  intentRepository
	webhookRepo webhookRecordRepository
	gatewayReg  *gateway.Registry
	booking     bookingClient
	events      eventPublisher
	paymentsCfg config.PaymentsConfig
	logger      logrus.FieldLogger
	now         func() time.Time
}

func NewPaymentService(
	intentRepo intentRepository,
	webhookRepo webhookRecordRepository,
	gatewayReg *gateway.Registry,
	bookingClient bookingClient,
	events eventPublisher,
	paymentsCfg config.PaymentsConfig,
) *PaymentService {
	return &PaymentService{
		intentRepo:  intentRepo,
		webhookRepo: webhookRepo,
		gatewayReg:  gatewayReg,
		booking:     bookingClient,
		events:      events,
		paymentsCfg: paymentsCfg,
		logger:      factory.NewModuleLogger("payment-service"),
		now:         time.Now,
	}
}

// CreatePayment builds the gateway-specific payment request and records a
// PENDING intent. The adapter itself persists nothing; the intent row written
// here is what a later webhook gets attributed to.
func (s *PaymentService) CreatePayment(ctx context.Context, req *types.CreatePaymentRequest) (*entity.PaymentIntent, error) {
	gw, ok := types.ParseGateway(req.PaymentMethod)
	if !ok {
		return nil, ErrGatewayNotSupported
	}
	if req.BookingID == "" || req.Amount <= 0 {
		return nil, ErrValidation
	}

	adapter, err := s.gatewayReg.Get(gw)
	if err != nil {
		if errors.Is(err, gateway.ErrGatewayNotSupported) {
			return nil, ErrGatewayNotSupported
		}
		return nil, err
	}

	paymentID := uuid.NewString()
	output, err := adapter.CreatePayment(ctx, &gateway.CreateInput{
		PaymentID:   paymentID,
		BookingID:   req.BookingID,
		Amount:      req.Amount,
		Currency:    s.paymentsCfg.Currency,
		Description: req.Description,
	})
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	intent := &entity.PaymentIntent{
		PaymentID:             paymentID,
		BookingID:             req.BookingID,
		Gateway:               gw,
		GatewayTxnID:          output.GatewayTxnID,
		OrderRef:              output.OrderRef,
		Amount:                req.Amount,
		Currency:              s.paymentsCfg.Currency,
		Status:                types.StatusPending,
		PayURL:                output.PayURL,
		ConfirmDeliveryStatus: entity.ConfirmDeliveryNone,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if output.Raw != "" {
		raw := output.Raw
		intent.RawPayload = &raw
	}

	if err := s.intentRepo.Create(ctx, intent); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"payment_id": intent.PaymentID,
		"booking_id": intent.BookingID,
		"gateway":    intent.Gateway,
	}).Info("Payment intent created")

	return intent, nil
}

func (s *PaymentService) GetPayment(ctx context.Context, paymentID string) (*entity.PaymentIntent, error) {
	intent, err := s.intentRepo.FindByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if intent == nil {
		return nil, ErrIntentNotFound
	}
	return intent, nil
}

func (s *PaymentService) batchSize() int32 {
	if s.paymentsCfg.JobBatchSize > 0 {
		return s.paymentsCfg.JobBatchSize
	}
	return defaultBatchSize
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}

func confirmRequestFor(intent *entity.PaymentIntent) *booking.ConfirmRequest {
	confirm := &booking.ConfirmRequest{
		Provider: intent.Gateway,
		Status:   intent.Status,
	}
	if intent.GatewayTxnID != nil {
		confirm.ProviderTransactionID = *intent.GatewayTxnID
	}
	if intent.RawPayload != nil {
		confirm.Raw = []byte(*intent.RawPayload)
	}
	return confirm
}

func fmtErrConfirm(err error) error {
	return fmt.Errorf("%w: %v", ErrConfirmFailed, err)
}
