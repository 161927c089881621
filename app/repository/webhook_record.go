package repository

import (
	"context"

	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/entity"
)

type WebhookRecordRepository struct {
	db DBTX
}

func NewWebhookRecordRepository(db DBTX) *WebhookRecordRepository {
	return &WebhookRecordRepository{db: db}
}

func (r *WebhookRecordRepository) Create(ctx context.Context, record *entity.WebhookRecord) error {
	query := `
		INSERT INTO payment_webhooks (
			payment_intent_id, gateway, gateway_txn_id, payload_json, status, error, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		nullableUint64Value(record.PaymentIntentID),
		record.Gateway,
		record.GatewayTxnID,
		record.PayloadJSON,
		record.Status,
		nullableStringValue(record.Error),
		record.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	record.ID = uint64(id)

	return nil
}
