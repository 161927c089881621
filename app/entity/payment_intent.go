package entity

import (
	"time"

	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/types"
)

const (
	ConfirmDeliveryNone    int32 = 0
	ConfirmDeliveryPending int32 = 1
	ConfirmDeliverySuccess int32 = 10
	ConfirmDeliveryFailed  int32 = 20
)

// PaymentIntent is one attempt to collect money for a booking. Rows are never
// deleted; a retried booking gets a fresh intent. (gateway, gateway_txn_id) is
// unique once the gateway transaction id is known.
type PaymentIntent struct {
	ID uint64

	PaymentID string
	BookingID string

	Gateway      types.Gateway
	GatewayTxnID *string

	// OrderRef is the provider-facing order reference generated at create
	// time (MoMo orderId, ZaloPay app_trans_id, PayOS orderCode).
	OrderRef string

	Amount   int64
	Currency string

	Status types.PaymentStatus

	PayURL     *string
	RawPayload *string

	ConfirmDeliveryStatus   int32
	ConfirmDeliveryAttempts int32
	ConfirmDeliveryNextAt   *time.Time
	ConfirmDeliveryLastErr  *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
