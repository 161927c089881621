package entity

import "time"

const (
	WebhookRecordProcessed int32 = 10
	WebhookRecordRejected  int32 = 20
)

// WebhookRecord is the audit trail of every inbound gateway webhook,
// including deliveries rejected before reconciliation.
type WebhookRecord struct {
	ID uint64

	PaymentIntentID *uint64

	Gateway      string
	GatewayTxnID string
	PayloadJSON  string
	Status       int32
	Error        *string

	CreatedAt time.Time
}
