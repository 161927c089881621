package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/signing"
	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/types"
)

type CardConfig struct {
	SecretKey                 string
	WebhookSecret             string
	SuccessURL                string
	CancelURL                 string
	SignatureToleranceSeconds int64
	HTTPTimeout               time.Duration
}

// CardAdapter drives a Stripe-style hosted checkout. The booking id travels
// in session metadata, and webhooks arrive as signed events with the
// signature in a t=,v1= header over the raw body.
type CardAdapter struct {
	cfg    CardConfig
	client *http.Client
	now    func() time.Time
}

func NewCardAdapter(cfg CardConfig) *CardAdapter {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	tolerance := cfg.SignatureToleranceSeconds
	if tolerance <= 0 {
		tolerance = 300
	}
	cfg.SignatureToleranceSeconds = tolerance

	return &CardAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

func (a *CardAdapter) Gateway() types.Gateway {
	return types.GatewayCard
}

func (a *CardAdapter) CreatePayment(ctx context.Context, input *CreateInput) (*CreateOutput, error) {
	if strings.TrimSpace(a.cfg.SecretKey) == "" {
		return nil, errors.New("card secret key is not configured")
	}

	values := url.Values{}
	values.Set("mode", "payment")
	values.Set("line_items[0][quantity]", "1")
	values.Set("line_items[0][price_data][currency]", strings.ToLower(input.Currency))
	values.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(input.Amount, 10))
	values.Set("line_items[0][price_data][product_data][name]", "booking-"+input.BookingID)
	values.Set("success_url", a.cfg.SuccessURL)
	values.Set("cancel_url", a.cfg.CancelURL)
	values.Set("client_reference_id", input.PaymentID)
	values.Set("metadata[payment_id]", input.PaymentID)
	values.Set("metadata[booking_id]", input.BookingID)

	body, err := a.postForm(ctx, "/v1/checkout/sessions", values)
	if err != nil {
		return nil, err
	}

	var session struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, err
	}

	output := &CreateOutput{
		OrderRef: input.PaymentID,
		Raw:      string(body),
	}
	if s := strings.TrimSpace(session.URL); s != "" {
		output.PayURL = &s
	}

	return output, nil
}

func (a *CardAdapter) ParseWebhook(_ context.Context, payload []byte, header http.Header) (*WebhookEvent, error) {
	if strings.TrimSpace(a.cfg.WebhookSecret) == "" {
		return nil, errors.New("card webhook secret is not configured")
	}

	signatureHeader := strings.TrimSpace(header.Get("Stripe-Signature"))
	if signatureHeader == "" {
		signatureHeader = strings.TrimSpace(header.Get("X-Webhook-Signature"))
	}
	if !a.verifySignedEvent(payload, signatureHeader) {
		return nil, ErrInvalidSignature
	}

	var event struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID                string            `json:"id"`
				PaymentIntent     string            `json:"payment_intent"`
				ClientReferenceID string            `json:"client_reference_id"`
				Metadata          map[string]string `json:"metadata"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}

	var status types.PaymentStatus
	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded", "payment_intent.succeeded":
		status = types.StatusSuccess
	case "checkout.session.async_payment_failed", "payment_intent.payment_failed":
		status = types.StatusFailed
	case "checkout.session.expired":
		status = types.StatusCancelled
	default:
		status = types.StatusFailed
	}

	txnID := strings.TrimSpace(event.Data.Object.PaymentIntent)
	if txnID == "" {
		txnID = strings.TrimSpace(event.Data.Object.ID)
	}

	orderRef := strings.TrimSpace(event.Data.Object.ClientReferenceID)
	if orderRef == "" {
		orderRef = strings.TrimSpace(event.Data.Object.Metadata["payment_id"])
	}

	return &WebhookEvent{
		Gateway:      a.Gateway(),
		BookingID:    strings.TrimSpace(event.Data.Object.Metadata["booking_id"]),
		OrderRef:     orderRef,
		GatewayTxnID: txnID,
		Status:       status,
		Raw:          json.RawMessage(payload),
	}, nil
}

func (a *CardAdapter) verifySignedEvent(payload []byte, signatureHeader string) bool {
	if signatureHeader == "" {
		return false
	}

	var ts string
	v1 := make([]string, 0, 1)
	for _, part := range strings.Split(signatureHeader, ",") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "t=") {
			ts = strings.TrimSpace(strings.TrimPrefix(part, "t="))
		}
		if strings.HasPrefix(part, "v1=") {
			v1 = append(v1, strings.TrimSpace(strings.TrimPrefix(part, "v1=")))
		}
	}
	if ts == "" || len(v1) == 0 {
		return false
	}

	tsUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	now := a.now().Unix()
	if now-tsUnix > a.cfg.SignatureToleranceSeconds || tsUnix-now > a.cfg.SignatureToleranceSeconds {
		return false
	}

	expected := signing.HMACSHA256Hex(a.cfg.WebhookSecret, ts+"."+string(payload))
	for _, sig := range v1 {
		if signing.Equal(expected, sig) {
			return true
		}
	}
	return false
}

func (a *CardAdapter) postForm(ctx context.Context, path string, values url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.stripe.com"+path, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrGatewayUnavailable, a.Gateway(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrGatewayUnavailable, a.Gateway(), err)
	}
	if resp.StatusCode >= 400 {
		return nil, &ProviderError{Gateway: a.Gateway(), StatusCode: resp.StatusCode, Body: body}
	}

	return body, nil
}
