package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/entity"
	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/types"
)

var (
	ErrIntentNotFound      = errors.New("payment intent not found")
	ErrIntentAlreadyExists = errors.New("payment intent already exists")

	// ErrTxnAlreadyClaimed means another delivery already bound this
	// (gateway, gateway_txn_id) pair to a different intent.
	ErrTxnAlreadyClaimed = errors.New("gateway transaction already claimed")
)

const paymentIntentColumns = `
	id, payment_id, booking_id, gateway, gateway_txn_id, order_ref,
	amount, currency, status, pay_url, raw_payload,
	confirm_delivery_status, confirm_delivery_attempts, confirm_delivery_next_at, confirm_delivery_last_error,
	created_at, updated_at
`

type PaymentIntentRepository struct {
	db DBTX
}

func NewPaymentIntentRepository(db DBTX) *PaymentIntentRepository {
	return &PaymentIntentRepository{db: db}
}

func (r *PaymentIntentRepository) Create(ctx context.Context, intent *entity.PaymentIntent) error {
	query := `
		INSERT INTO payments (
			payment_id, booking_id, gateway, gateway_txn_id, order_ref,
			amount, currency, status, pay_url, raw_payload,
			confirm_delivery_status, confirm_delivery_attempts, confirm_delivery_next_at, confirm_delivery_last_error,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		intent.PaymentID,
		intent.BookingID,
		string(intent.Gateway),
		nullableStringValue(intent.GatewayTxnID),
		intent.OrderRef,
		intent.Amount,
		intent.Currency,
		string(intent.Status),
		nullableStringValue(intent.PayURL),
		nullableStringValue(intent.RawPayload),
		intent.ConfirmDeliveryStatus,
		intent.ConfirmDeliveryAttempts,
		nullableTimeValue(intent.ConfirmDeliveryNextAt),
		nullableStringValue(intent.ConfirmDeliveryLastErr),
		intent.CreatedAt,
		intent.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrIntentAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	intent.ID = uint64(id)
	return nil
}

// ClaimTransition atomically binds the gateway transaction id and moves the
// intent from PENDING to a terminal status, marking the booking confirmation
// due. It is the serialization point for concurrent webhook deliveries: only
// the caller that gets claimed=true may call the booking service.
func (r *PaymentIntentRepository) ClaimTransition(
	ctx context.Context,
	id uint64,
	gatewayTxnID string,
	status types.PaymentStatus,
	rawPayload string,
	now time.Time,
) (bool, error) {
	query := `
		UPDATE payments SET
			gateway_txn_id = ?,
			status = ?,
			raw_payload = ?,
			confirm_delivery_status = ?,
			confirm_delivery_attempts = 0,
			confirm_delivery_next_at = ?,
			confirm_delivery_last_error = NULL,
			updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		gatewayTxnID,
		string(status),
		rawPayload,
		entity.ConfirmDeliveryPending,
		now,
		now,
		id,
		string(types.StatusPending),
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return false, ErrTxnAlreadyClaimed
		}
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// UpsertTerminal records a first-contact terminal result. On a concurrent
// duplicate it never overwrites the stored status; inserted=false tells the
// caller to re-read and classify the disagreement.
func (r *PaymentIntentRepository) UpsertTerminal(ctx context.Context, intent *entity.PaymentIntent) (bool, error) {
	query := `
		INSERT INTO payments (
			payment_id, booking_id, gateway, gateway_txn_id, order_ref,
			amount, currency, status, pay_url, raw_payload,
			confirm_delivery_status, confirm_delivery_attempts, confirm_delivery_next_at, confirm_delivery_last_error,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE updated_at = VALUES(updated_at)
	`

	result, err := r.db.ExecContext(ctx, query,
		intent.PaymentID,
		intent.BookingID,
		string(intent.Gateway),
		nullableStringValue(intent.GatewayTxnID),
		intent.OrderRef,
		intent.Amount,
		intent.Currency,
		string(intent.Status),
		nullableStringValue(intent.PayURL),
		nullableStringValue(intent.RawPayload),
		intent.ConfirmDeliveryStatus,
		intent.ConfirmDeliveryAttempts,
		nullableTimeValue(intent.ConfirmDeliveryNextAt),
		nullableStringValue(intent.ConfirmDeliveryLastErr),
		intent.CreatedAt,
		intent.UpdatedAt,
	)
	if err != nil {
		return false, err
	}

	// MySQL reports 1 affected row for an insert and 2 for a conflict update.
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected != 1 {
		return false, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return false, err
	}
	intent.ID = uint64(id)
	return true, nil
}

func (r *PaymentIntentRepository) UpdateConfirmDelivery(ctx context.Context, intent *entity.PaymentIntent) error {
	query := `
		UPDATE payments SET
			confirm_delivery_status = ?,
			confirm_delivery_attempts = ?,
			confirm_delivery_next_at = ?,
			confirm_delivery_last_error = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		intent.ConfirmDeliveryStatus,
		intent.ConfirmDeliveryAttempts,
		nullableTimeValue(intent.ConfirmDeliveryNextAt),
		nullableStringValue(intent.ConfirmDeliveryLastErr),
		intent.UpdatedAt,
		intent.ID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrIntentNotFound
	}
	return nil
}

// MarkCancelled moves a still-PENDING intent to CANCELLED; used by the
// expire-pending job. Zero rows means the intent raced to terminal already.
func (r *PaymentIntentRepository) MarkCancelled(ctx context.Context, id uint64, now time.Time) (bool, error) {
	query := `
		UPDATE payments SET
			status = ?,
			confirm_delivery_status = ?,
			confirm_delivery_attempts = 0,
			confirm_delivery_next_at = ?,
			updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		string(types.StatusCancelled),
		entity.ConfirmDeliveryPending,
		now,
		now,
		id,
		string(types.StatusPending),
	)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *PaymentIntentRepository) FindByPaymentID(ctx context.Context, paymentID string) (*entity.PaymentIntent, error) {
	query := `SELECT ` + paymentIntentColumns + ` FROM payments WHERE payment_id = ? LIMIT 1`
	return r.findOne(ctx, query, paymentID)
}

func (r *PaymentIntentRepository) FindByGatewayTxnID(ctx context.Context, gw types.Gateway, gatewayTxnID string) (*entity.PaymentIntent, error) {
	query := `SELECT ` + paymentIntentColumns + ` FROM payments WHERE gateway = ? AND gateway_txn_id = ? LIMIT 1`
	return r.findOne(ctx, query, string(gw), gatewayTxnID)
}

func (r *PaymentIntentRepository) FindByOrderRef(ctx context.Context, gw types.Gateway, orderRef string) (*entity.PaymentIntent, error) {
	query := `SELECT ` + paymentIntentColumns + ` FROM payments WHERE gateway = ? AND order_ref = ? ORDER BY id DESC LIMIT 1`
	return r.findOne(ctx, query, string(gw), orderRef)
}

func (r *PaymentIntentRepository) FindPendingByBooking(ctx context.Context, gw types.Gateway, bookingID string) (*entity.PaymentIntent, error) {
	query := `SELECT ` + paymentIntentColumns + ` FROM payments WHERE gateway = ? AND booking_id = ? AND status = ? ORDER BY id DESC LIMIT 1`
	return r.findOne(ctx, query, string(gw), bookingID, string(types.StatusPending))
}

func (r *PaymentIntentRepository) ListDueConfirmDispatch(ctx context.Context, now time.Time, limit int32) ([]*entity.PaymentIntent, error) {
	query := `
		SELECT ` + paymentIntentColumns + `
		FROM payments
		WHERE confirm_delivery_status = ?
		  AND confirm_delivery_next_at IS NOT NULL
		  AND confirm_delivery_next_at <= ?
		ORDER BY confirm_delivery_next_at ASC
		LIMIT ?
	`
	return r.list(ctx, query, entity.ConfirmDeliveryPending, now, limit)
}

func (r *PaymentIntentRepository) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.PaymentIntent, error) {
	query := `
		SELECT ` + paymentIntentColumns + `
		FROM payments
		WHERE status = ?
		  AND created_at <= ?
		ORDER BY created_at ASC
		LIMIT ?
	`
	return r.list(ctx, query, string(types.StatusPending), cutoff, limit)
}

func (r *PaymentIntentRepository) findOne(ctx context.Context, query string, args ...interface{}) (*entity.PaymentIntent, error) {
	intent := &entity.PaymentIntent{}
	if err := scanPaymentIntent(r.db.QueryRowContext(ctx, query, args...), intent); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return intent, nil
}

func (r *PaymentIntentRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.PaymentIntent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	intents := make([]*entity.PaymentIntent, 0)
	for rows.Next() {
		item := &entity.PaymentIntent{}
		if err := scanPaymentIntent(rows, item); err != nil {
			return nil, err
		}
		intents = append(intents, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return intents, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPaymentIntent(scan rowScanner, intent *entity.PaymentIntent) error {
	var gateway string
	var status string
	var gatewayTxnID sql.NullString
	var payURL sql.NullString
	var rawPayload sql.NullString
	var confirmNextAt sql.NullTime
	var confirmLastErr sql.NullString

	err := scan.Scan(
		&intent.ID,
		&intent.PaymentID,
		&intent.BookingID,
		&gateway,
		&gatewayTxnID,
		&intent.OrderRef,
		&intent.Amount,
		&intent.Currency,
		&status,
		&payURL,
		&rawPayload,
		&intent.ConfirmDeliveryStatus,
		&intent.ConfirmDeliveryAttempts,
		&confirmNextAt,
		&confirmLastErr,
		&intent.CreatedAt,
		&intent.UpdatedAt,
	)
	if err != nil {
		return err
	}

	intent.Gateway = types.Gateway(gateway)
	intent.Status = types.PaymentStatus(status)
	intent.GatewayTxnID = stringPtrFromNull(gatewayTxnID)
	intent.PayURL = stringPtrFromNull(payURL)
	intent.RawPayload = stringPtrFromNull(rawPayload)
	intent.ConfirmDeliveryNextAt = timePtrFromNull(confirmNextAt)
	intent.ConfirmDeliveryLastErr = stringPtrFromNull(confirmLastErr)

	return nil
}
