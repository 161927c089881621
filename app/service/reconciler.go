package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/entity"
	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/gateway"
	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/publisher"
	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/repository"
	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/types"
)

// ReconcileOutcome reports how a verified webhook was applied.
type ReconcileOutcome struct {
	Intent *entity.PaymentIntent

	// Applied is true when this delivery performed the PENDING-to-terminal
	// transition (and therefore owned the booking confirm call).
	Applied bool

	// Replay is true when the delivery matched an already-recorded terminal
	// outcome and was absorbed without side effects.
	Replay bool
}

// HandleWebhook verifies and applies one inbound gateway webhook. Signature
// verification happens inside the adapter before any business logic; a
// rejected payload is recorded for audit and never reaches the reconciler.
func (s *PaymentService) HandleWebhook(ctx context.Context, gatewayRaw string, payload []byte, header http.Header) (*ReconcileOutcome, error) {
	gw, ok := types.ParseGateway(gatewayRaw)
	if !ok {
		return nil, ErrGatewayNotSupported
	}

	adapter, err := s.gatewayReg.Get(gw)
	if err != nil {
		return nil, ErrGatewayNotSupported
	}

	event, err := adapter.ParseWebhook(ctx, payload, header)
	if err != nil {
		s.recordRejectedWebhook(ctx, gw, payload, err)
		if errors.Is(err, gateway.ErrInvalidSignature) {
			s.logger.WithFields(logrus.Fields{
				"gateway": gw,
				"payload": truncate(string(payload), 256),
			}).Warn("Webhook signature verification failed")
		}
		return nil, fmt.Errorf("%w: %v", ErrCallbackRejected, err)
	}

	return s.Reconcile(ctx, event)
}

// Reconcile applies a provider-neutral payment result exactly once. The
// ledger write is the serialization point: concurrent deliveries of the same
// (gateway, transaction) race on a conditional PENDING-to-terminal update and
// only the winner calls the booking service.
func (s *PaymentService) Reconcile(ctx context.Context, event *gateway.WebhookEvent) (*ReconcileOutcome, error) {
	now := s.now().UTC()

	if event.GatewayTxnID != "" {
		existing, err := s.intentRepo.FindByGatewayTxnID(ctx, event.Gateway, event.GatewayTxnID)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.Status.Terminal() {
			return s.classifyTerminal(ctx, existing, event)
		}
	}

	intent, err := s.resolveIntent(ctx, event)
	if err != nil {
		return nil, err
	}

	if intent == nil {
		if event.BookingID == "" {
			s.recordRejectedWebhook(ctx, event.Gateway, event.Raw, ErrMissingBookingReference)
			return nil, ErrMissingBookingReference
		}
		return s.applyFirstContact(ctx, event, now)
	}

	if event.BookingID != "" && intent.BookingID != event.BookingID {
		s.recordRejectedWebhook(ctx, event.Gateway, event.Raw, fmt.Errorf("booking reference mismatch: intent=%s event=%s", intent.BookingID, event.BookingID))
		return nil, ErrMissingBookingReference
	}

	claimed, err := s.intentRepo.ClaimTransition(ctx, intent.ID, event.GatewayTxnID, event.Status, string(event.Raw), now)
	if err != nil && !errors.Is(err, repository.ErrTxnAlreadyClaimed) {
		return nil, err
	}
	if err != nil || !claimed {
		// Lost the race or the pair is bound elsewhere: re-read and classify.
		stored, readErr := s.intentRepo.FindByGatewayTxnID(ctx, event.Gateway, event.GatewayTxnID)
		if readErr != nil {
			return nil, readErr
		}
		if stored == nil {
			stored, readErr = s.intentRepo.FindByPaymentID(ctx, intent.PaymentID)
			if readErr != nil {
				return nil, readErr
			}
		}
		if stored == nil || !stored.Status.Terminal() {
			return nil, ErrStatusConflict
		}
		return s.classifyTerminal(ctx, stored, event)
	}

	intent.GatewayTxnID = &event.GatewayTxnID
	intent.Status = event.Status
	raw := string(event.Raw)
	intent.RawPayload = &raw
	intent.ConfirmDeliveryStatus = entity.ConfirmDeliveryPending
	intent.ConfirmDeliveryAttempts = 0
	intent.ConfirmDeliveryNextAt = &now
	intent.UpdatedAt = now

	return s.finishApplied(ctx, intent, event, now)
}

// resolveIntent finds the PENDING intent a webhook belongs to: by the
// provider-facing order reference first, then by pending booking. A lost or
// mismatched side channel means the event cannot be routed.
func (s *PaymentService) resolveIntent(ctx context.Context, event *gateway.WebhookEvent) (*entity.PaymentIntent, error) {
	if event.OrderRef != "" {
		intent, err := s.intentRepo.FindByOrderRef(ctx, event.Gateway, event.OrderRef)
		if err != nil {
			return nil, err
		}
		if intent != nil {
			return intent, nil
		}
	}
	if event.BookingID != "" {
		intent, err := s.intentRepo.FindPendingByBooking(ctx, event.Gateway, event.BookingID)
		if err != nil {
			return nil, err
		}
		if intent != nil {
			return intent, nil
		}
	}
	return nil, nil
}

func (s *PaymentService) applyFirstContact(ctx context.Context, event *gateway.WebhookEvent, now time.Time) (*ReconcileOutcome, error) {
	raw := string(event.Raw)
	txnID := event.GatewayTxnID
	intent := &entity.PaymentIntent{
		PaymentID:             uuid.NewString(),
		BookingID:             event.BookingID,
		Gateway:               event.Gateway,
		GatewayTxnID:          &txnID,
		OrderRef:              event.OrderRef,
		Status:                event.Status,
		RawPayload:            &raw,
		ConfirmDeliveryStatus: entity.ConfirmDeliveryPending,
		ConfirmDeliveryNextAt: &now,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	inserted, err := s.intentRepo.UpsertTerminal(ctx, intent)
	if err != nil {
		return nil, err
	}
	if !inserted {
		stored, readErr := s.intentRepo.FindByGatewayTxnID(ctx, event.Gateway, event.GatewayTxnID)
		if readErr != nil {
			return nil, readErr
		}
		if stored == nil || !stored.Status.Terminal() {
			return nil, ErrStatusConflict
		}
		return s.classifyTerminal(ctx, stored, event)
	}

	return s.finishApplied(ctx, intent, event, now)
}

// classifyTerminal handles a delivery for an intent that is already terminal:
// an equal status is an expected at-least-once replay and a cheap no-op; a
// disagreeing status is a conflict requiring manual review, never an
// overwrite.
func (s *PaymentService) classifyTerminal(ctx context.Context, stored *entity.PaymentIntent, event *gateway.WebhookEvent) (*ReconcileOutcome, error) {
	if stored.Status == event.Status {
		s.recordProcessedWebhook(ctx, stored, event)
		s.logger.WithFields(logrus.Fields{
			"gateway":        event.Gateway,
			"gateway_txn_id": event.GatewayTxnID,
			"booking_id":     stored.BookingID,
		}).Info("Webhook replay absorbed")
		return &ReconcileOutcome{Intent: stored, Replay: true}, nil
	}

	s.recordRejectedWebhook(ctx, event.Gateway, event.Raw, fmt.Errorf("terminal status mismatch: stored=%s incoming=%s", stored.Status, event.Status))
	s.logger.WithFields(logrus.Fields{
		"gateway":        event.Gateway,
		"gateway_txn_id": event.GatewayTxnID,
		"booking_id":     stored.BookingID,
		"stored_status":  stored.Status,
		"event_status":   event.Status,
	}).Error("Conflicting terminal webhook requires manual review")
	return nil, ErrStatusConflict
}

// finishApplied runs after the durable ledger transition: audit record, the
// best-effort status event, then the booking confirm call. A failed confirm
// leaves the intent terminal-but-unconfirmed for the redrive job and is
// surfaced so the gateway retries the (now idempotent) delivery.
func (s *PaymentService) finishApplied(ctx context.Context, intent *entity.PaymentIntent, event *gateway.WebhookEvent, now time.Time) (*ReconcileOutcome, error) {
	s.recordProcessedWebhook(ctx, intent, event)
	s.publishStatusEvent(ctx, intent, now)

	outcome := &ReconcileOutcome{Intent: intent, Applied: true}

	if err := s.booking.ConfirmPayment(ctx, intent.BookingID, confirmRequestFor(intent)); err != nil {
		s.recordConfirmFailure(ctx, intent, now, err)
		s.logger.WithError(err).WithFields(logrus.Fields{
			"payment_id":     intent.PaymentID,
			"booking_id":     intent.BookingID,
			"gateway":        intent.Gateway,
			"gateway_txn_id": event.GatewayTxnID,
		}).Error("Booking confirm call failed; scheduled for redrive")
		return outcome, fmtErrConfirm(err)
	}

	intent.ConfirmDeliveryStatus = entity.ConfirmDeliverySuccess
	intent.ConfirmDeliveryNextAt = nil
	intent.ConfirmDeliveryLastErr = nil
	intent.UpdatedAt = now
	if err := s.intentRepo.UpdateConfirmDelivery(ctx, intent); err != nil {
		return outcome, err
	}

	s.logger.WithFields(logrus.Fields{
		"payment_id": intent.PaymentID,
		"booking_id": intent.BookingID,
		"gateway":    intent.Gateway,
		"status":     intent.Status,
	}).Info("Payment reconciled and confirmed")

	return outcome, nil
}

func (s *PaymentService) publishStatusEvent(ctx context.Context, intent *entity.PaymentIntent, now time.Time) {
	if s.events == nil {
		return
	}
	event := &publisher.PaymentStatusEvent{
		PaymentID:  intent.PaymentID,
		BookingID:  intent.BookingID,
		Provider:   intent.Gateway,
		Status:     intent.Status,
		OccurredAt: now,
	}
	if intent.GatewayTxnID != nil {
		event.ProviderTransactionID = *intent.GatewayTxnID
	}
	if err := s.events.PublishPaymentStatus(ctx, event); err != nil {
		s.logger.WithError(err).WithField("payment_id", intent.PaymentID).Warn("Payment status event publish failed")
	}
}

func (s *PaymentService) recordProcessedWebhook(ctx context.Context, intent *entity.PaymentIntent, event *gateway.WebhookEvent) {
	intentID := intent.ID
	record := &entity.WebhookRecord{
		PaymentIntentID: &intentID,
		Gateway:         string(event.Gateway),
		GatewayTxnID:    event.GatewayTxnID,
		PayloadJSON:     string(event.Raw),
		Status:          entity.WebhookRecordProcessed,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.webhookRepo.Create(ctx, record); err != nil {
		s.logger.WithError(err).Warn("Webhook audit record write failed")
	}
}

func (s *PaymentService) recordRejectedWebhook(ctx context.Context, gw types.Gateway, payload []byte, cause error) {
	reason := truncate(cause.Error(), 1024)
	record := &entity.WebhookRecord{
		Gateway:     string(gw),
		PayloadJSON: string(payload),
		Status:      entity.WebhookRecordRejected,
		Error:       &reason,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.webhookRepo.Create(ctx, record); err != nil {
		s.logger.WithError(err).Warn("Webhook audit record write failed")
	}
}

func (s *PaymentService) recordConfirmFailure(ctx context.Context, intent *entity.PaymentIntent, now time.Time, confirmErr error) {
	intent.ConfirmDeliveryAttempts++
	trimmed := truncate(confirmErr.Error(), 1024)
	intent.ConfirmDeliveryLastErr = &trimmed

	maxAttempts := s.paymentsCfg.ConfirmMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	if intent.ConfirmDeliveryAttempts >= maxAttempts {
		intent.ConfirmDeliveryStatus = entity.ConfirmDeliveryFailed
		intent.ConfirmDeliveryNextAt = nil
	} else {
		retryInterval := s.paymentsCfg.ConfirmRetryInterval
		if retryInterval <= 0 {
			retryInterval = 5 * time.Minute
		}
		next := now.Add(retryInterval)
		intent.ConfirmDeliveryStatus = entity.ConfirmDeliveryPending
		intent.ConfirmDeliveryNextAt = &next
	}
	intent.UpdatedAt = now

	if err := s.intentRepo.UpdateConfirmDelivery(ctx, intent); err != nil {
		s.logger.WithError(err).WithField("payment_id", intent.PaymentID).Error("Confirm delivery bookkeeping failed")
	}
}
