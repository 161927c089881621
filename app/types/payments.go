package types

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"
)

// Gateway identifies one of the supported payment gateways.
type Gateway string

const (
	GatewayMoMo    Gateway = "momo"
	GatewayZaloPay Gateway = "zalopay"
	GatewayPayOS   Gateway = "payos"
	GatewayCard    Gateway = "card"
)

func ParseGateway(raw string) (Gateway, bool) {
	switch Gateway(strings.ToLower(strings.TrimSpace(raw))) {
	case GatewayMoMo:
		return GatewayMoMo, true
	case GatewayZaloPay:
		return GatewayZaloPay, true
	case GatewayPayOS:
		return GatewayPayOS, true
	case GatewayCard:
		return GatewayCard, true
	default:
		return "", false
	}
}

// PaymentStatus is the provider-neutral lifecycle state of a payment intent.
type PaymentStatus string

const (
	StatusPending   PaymentStatus = "PENDING"
	StatusSuccess   PaymentStatus = "SUCCESS"
	StatusFailed    PaymentStatus = "FAILED"
	StatusCancelled PaymentStatus = "CANCELLED"
)

// Terminal reports whether the status is final. Terminal statuses never
// transition again; a later webhook that disagrees is a conflict.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

type CreatePaymentRequest struct {
	PaymentMethod string `json:"paymentMethod"`
	Amount        int64  `json:"amount"`
	BookingID     string `json:"bookingId"`
	Description   string `json:"description"`
}

func NewCreatePaymentRequestFromContext(ctx echo.Context) (*CreatePaymentRequest, error) {
	var body CreatePaymentRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.PaymentMethod = strings.ToLower(strings.TrimSpace(body.PaymentMethod))
	body.BookingID = strings.TrimSpace(body.BookingID)
	body.Description = strings.TrimSpace(body.Description)

	return &body, nil
}

func (r *CreatePaymentRequest) Validate() error {
	if r.PaymentMethod == "" {
		return errors.New("paymentMethod is required")
	}
	if r.BookingID == "" {
		return errors.New("bookingId is required")
	}
	if r.Amount <= 0 {
		return errors.New("amount must be > 0")
	}
	return nil
}

type GetPaymentRequest struct {
	PaymentID string
}

func NewGetPaymentRequestFromContext(ctx echo.Context) *GetPaymentRequest {
	return &GetPaymentRequest{PaymentID: strings.TrimSpace(ctx.Param("id"))}
}

func (r *GetPaymentRequest) Validate() error {
	if r.PaymentID == "" {
		return errors.New("payment id is required")
	}
	return nil
}

// Payment is the API representation of a payment intent.
type Payment struct {
	PaymentID      string        `json:"paymentId"`
	BookingID      string        `json:"bookingId"`
	Provider       Gateway       `json:"provider"`
	GatewayTxnID   string        `json:"providerTransactionId,omitempty"`
	Amount         int64         `json:"amount"`
	Currency       string        `json:"currency"`
	Status         PaymentStatus `json:"status"`
	PayURL         string        `json:"paymentUrl,omitempty"`
	CreatedAt      string        `json:"createdAt"`
	UpdatedAt      string        `json:"updatedAt"`
}

type PaymentEnvelopeResponse struct {
	Payment *Payment `json:"payment"`
}

type WebhookAckResponse struct {
	Received bool `json:"received"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}
