package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/signing"
	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/types"
)

const payosDescriptionLimit = 25

type PayOSConfig struct {
	ClientID    string
	APIKey      string
	ChecksumKey string
	Endpoint    string
	ReturnURL   string
	CancelURL   string
	HTTPTimeout time.Duration
}

// PayOSAdapter drives the PayOS payment-requests API. PayOS has no metadata
// side channel, so attribution rides on the numeric order code recorded on
// the intent at create time.
type PayOSAdapter struct {
	cfg    PayOSConfig
	client *http.Client
	now    func() time.Time
}

func NewPayOSAdapter(cfg PayOSConfig) *PayOSAdapter {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PayOSAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

func (a *PayOSAdapter) Gateway() types.Gateway {
	return types.GatewayPayOS
}

func (a *PayOSAdapter) CreatePayment(ctx context.Context, input *CreateInput) (*CreateOutput, error) {
	if strings.TrimSpace(a.cfg.ChecksumKey) == "" {
		return nil, errors.New("payos checksum key is not configured")
	}

	orderCode := a.now().UnixMilli()
	orderRef := strconv.FormatInt(orderCode, 10)

	// PayOS truncates descriptions; do it here so callers need not know the
	// per-gateway limit.
	description := input.Description
	if description == "" {
		description = "booking " + input.BookingID
	}
	if runes := []rune(description); len(runes) > payosDescriptionLimit {
		description = string(runes[:payosDescriptionLimit])
	}

	amount := strconv.FormatInt(input.Amount, 10)
	canonical := signing.SortedQueryString(map[string]string{
		"amount":      amount,
		"cancelUrl":   a.cfg.CancelURL,
		"description": description,
		"orderCode":   orderRef,
		"returnUrl":   a.cfg.ReturnURL,
	})
	signature := signing.HMACSHA256Hex(a.cfg.ChecksumKey, canonical)

	body := map[string]interface{}{
		"orderCode":   orderCode,
		"amount":      input.Amount,
		"description": description,
		"returnUrl":   a.cfg.ReturnURL,
		"cancelUrl":   a.cfg.CancelURL,
		"signature":   signature,
	}
	headers := map[string]string{
		"x-client-id": a.cfg.ClientID,
		"x-api-key":   a.cfg.APIKey,
	}

	responseBody, err := postJSON(ctx, a.client, a.Gateway(), strings.TrimRight(a.cfg.Endpoint, "/")+"/v2/payment-requests", headers, body)
	if err != nil {
		return nil, err
	}

	var response struct {
		Code string `json:"code"`
		Desc string `json:"desc"`
		Data struct {
			CheckoutURL   string `json:"checkoutUrl"`
			PaymentLinkID string `json:"paymentLinkId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(responseBody, &response); err != nil {
		return nil, err
	}
	if response.Code != "00" {
		return nil, &ProviderError{Gateway: a.Gateway(), StatusCode: http.StatusOK, Body: responseBody}
	}

	output := &CreateOutput{
		OrderRef: orderRef,
		Raw:      string(responseBody),
	}
	if s := strings.TrimSpace(response.Data.CheckoutURL); s != "" {
		output.PayURL = &s
	}

	return output, nil
}

type payosWebhook struct {
	Code      string          `json:"code"`
	Desc      string          `json:"desc"`
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature"`
}

func (a *PayOSAdapter) ParseWebhook(_ context.Context, payload []byte, _ http.Header) (*WebhookEvent, error) {
	if strings.TrimSpace(a.cfg.ChecksumKey) == "" {
		return nil, errors.New("payos checksum key is not configured")
	}

	var hook payosWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, err
	}
	if len(hook.Data) == 0 {
		return nil, errors.New("payos webhook data is missing")
	}

	fields, err := canonicalFieldMap(hook.Data)
	if err != nil {
		return nil, err
	}

	expected := signing.HMACSHA256Hex(a.cfg.ChecksumKey, signing.SortedQueryString(fields))
	if !signing.Equal(expected, hook.Signature) {
		return nil, ErrInvalidSignature
	}

	var data struct {
		OrderCode     json.Number `json:"orderCode"`
		Amount        json.Number `json:"amount"`
		Reference     string      `json:"reference"`
		PaymentLinkID string      `json:"paymentLinkId"`
		Status        string      `json:"status"`
		Code          string      `json:"code"`
	}
	if err := json.Unmarshal(hook.Data, &data); err != nil {
		return nil, err
	}

	var status types.PaymentStatus
	switch {
	case strings.EqualFold(data.Status, "PAID"):
		status = types.StatusSuccess
	case data.Status == "" && (data.Code == "00" || hook.Code == "00"):
		status = types.StatusSuccess
	default:
		status = types.StatusFailed
	}

	txnID := strings.TrimSpace(data.Reference)
	if txnID == "" {
		txnID = strings.TrimSpace(data.PaymentLinkID)
	}

	return &WebhookEvent{
		Gateway:      a.Gateway(),
		OrderRef:     data.OrderCode.String(),
		GatewayTxnID: txnID,
		Status:       status,
		Raw:          json.RawMessage(payload),
	}, nil
}

// canonicalFieldMap flattens a JSON object into the string values PayOS signs:
// string fields verbatim, everything else as its exact source text, nulls as
// empty. Re-serializing would change digit formatting and break the MAC.
func canonicalFieldMap(raw json.RawMessage) (map[string]string, error) {
	var object map[string]json.RawMessage
	if err := json.Unmarshal(raw, &object); err != nil {
		return nil, err
	}

	fields := make(map[string]string, len(object))
	for key, value := range object {
		if key == "signature" {
			continue
		}
		text := strings.TrimSpace(string(value))
		if text == "null" {
			fields[key] = ""
			continue
		}
		if len(text) >= 2 && text[0] == '"' {
			var s string
			if err := json.Unmarshal(value, &s); err != nil {
				return nil, err
			}
			fields[key] = s
			continue
		}
		fields[key] = text
	}

	return fields, nil
}
