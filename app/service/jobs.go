package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/entity"
	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/types"
)

// RunDispatchConfirmationsBatch re-drives booking confirm calls for intents
// that reached a terminal status but whose inline confirm failed. Each intent
// is retried until it succeeds or exhausts ConfirmMaxAttempts.
func (s *PaymentService) RunDispatchConfirmationsBatch(ctx context.Context) error {
	now := s.now().UTC()
	items, err := s.intentRepo.ListDueConfirmDispatch(ctx, now, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, intent := range items {
		if intent == nil {
			continue
		}
		if err := s.dispatchConfirm(ctx, intent); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

// RunExpirePendingBatch cancels intents that stayed PENDING past the timeout.
// Cancellation goes through the same conditional transition as webhooks, so a
// webhook racing the expiry keeps its result.
func (s *PaymentService) RunExpirePendingBatch(ctx context.Context) error {
	now := s.now().UTC()
	cutoff := now.Add(-s.paymentsCfg.PendingTimeout)
	items, err := s.intentRepo.ListExpiredPending(ctx, cutoff, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, intent := range items {
		if intent == nil || intent.Status != types.StatusPending {
			continue
		}

		cancelled, err := s.intentRepo.MarkCancelled(ctx, intent.ID, now)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		if !cancelled {
			continue
		}

		intent.Status = types.StatusCancelled
		intent.ConfirmDeliveryStatus = entity.ConfirmDeliveryPending
		intent.ConfirmDeliveryNextAt = &now
		intent.UpdatedAt = now

		s.publishStatusEvent(ctx, intent, now)
		s.logger.WithFields(logrus.Fields{
			"payment_id": intent.PaymentID,
			"booking_id": intent.BookingID,
			"gateway":    intent.Gateway,
		}).Info("Pending payment expired")
	}

	return firstErr
}

func (s *PaymentService) dispatchConfirm(ctx context.Context, intent *entity.PaymentIntent) error {
	now := s.now().UTC()

	if err := s.booking.ConfirmPayment(ctx, intent.BookingID, confirmRequestFor(intent)); err != nil {
		s.recordConfirmFailure(ctx, intent, now, err)
		return err
	}

	intent.ConfirmDeliveryStatus = entity.ConfirmDeliverySuccess
	intent.ConfirmDeliveryNextAt = nil
	intent.ConfirmDeliveryLastErr = nil
	intent.UpdatedAt = now

	return s.intentRepo.UpdateConfirmDelivery(ctx, intent)
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}
