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

type ZaloPayConfig struct {
	AppID       string
	Key1        string
	Key2        string
	Endpoint    string
	CallbackURL string
	HTTPTimeout time.Duration
}

// ZaloPayAdapter drives ZaloPay's v2 order API. Outbound requests are signed
// with key 1, inbound callbacks are verified with key 2.
type ZaloPayAdapter struct {
	cfg    ZaloPayConfig
	client *http.Client
	now    func() time.Time
}

func NewZaloPayAdapter(cfg ZaloPayConfig) *ZaloPayAdapter {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ZaloPayAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

func (a *ZaloPayAdapter) Gateway() types.Gateway {
	return types.GatewayZaloPay
}

type zaloPayEmbedData struct {
	BookingID string `json:"bookingId"`
}

func (a *ZaloPayAdapter) CreatePayment(ctx context.Context, input *CreateInput) (*CreateOutput, error) {
	if strings.TrimSpace(a.cfg.Key1) == "" {
		return nil, errors.New("zalopay key1 is not configured")
	}

	now := a.now()
	// app_trans_id must be prefixed with the local yymmdd date.
	appTransID := now.Format("060102") + "_" + input.PaymentID
	appTime := strconv.FormatInt(now.UnixMilli(), 10)
	amount := strconv.FormatInt(input.Amount, 10)
	appUser := input.BookingID
	item := "[]"

	embedJSON, err := json.Marshal(zaloPayEmbedData{BookingID: input.BookingID})
	if err != nil {
		return nil, err
	}
	embedData := string(embedJSON)

	// mac input is the |-joined value list in ZaloPay's documented order.
	canonical := strings.Join([]string{
		a.cfg.AppID, appTransID, appUser, amount, appTime, embedData, item,
	}, "|")
	mac := signing.HMACSHA256Hex(a.cfg.Key1, canonical)

	description := input.Description
	if description == "" {
		description = "booking " + input.BookingID
	}

	body := map[string]interface{}{
		"app_id":       a.cfg.AppID,
		"app_trans_id": appTransID,
		"app_user":     appUser,
		"app_time":     appTime,
		"amount":       amount,
		"item":         item,
		"embed_data":   embedData,
		"description":  description,
		"bank_code":    "",
		"callback_url": a.cfg.CallbackURL,
		"mac":          mac,
	}

	responseBody, err := postJSON(ctx, a.client, a.Gateway(), strings.TrimRight(a.cfg.Endpoint, "/")+"/v2/create", nil, body)
	if err != nil {
		return nil, err
	}

	var response struct {
		ReturnCode    int    `json:"return_code"`
		ReturnMessage string `json:"return_message"`
		OrderURL      string `json:"order_url"`
		ZPTransToken  string `json:"zp_trans_token"`
	}
	if err := json.Unmarshal(responseBody, &response); err != nil {
		return nil, err
	}
	if response.ReturnCode != 1 {
		return nil, &ProviderError{Gateway: a.Gateway(), StatusCode: http.StatusOK, Body: responseBody}
	}

	output := &CreateOutput{
		OrderRef: appTransID,
		Raw:      string(responseBody),
	}
	if s := strings.TrimSpace(response.OrderURL); s != "" {
		output.PayURL = &s
	}

	return output, nil
}

type zaloPayCallback struct {
	Data string      `json:"data"`
	Mac  string      `json:"mac"`
	Type json.Number `json:"type"`

	ReturnCode *int `json:"return_code"`
}

type zaloPayCallbackData struct {
	AppID      json.Number `json:"app_id"`
	AppTransID string      `json:"app_trans_id"`
	AppUser    string      `json:"app_user"`
	AppTime    json.Number `json:"app_time"`
	Amount     json.Number `json:"amount"`
	EmbedData  string      `json:"embed_data"`
	Item       string      `json:"item"`
	ZPTransID  json.Number `json:"zp_trans_id"`

	ReturnCode *int `json:"return_code"`
}

func (a *ZaloPayAdapter) ParseWebhook(_ context.Context, payload []byte, _ http.Header) (*WebhookEvent, error) {
	if strings.TrimSpace(a.cfg.Key2) == "" {
		return nil, errors.New("zalopay key2 is not configured")
	}

	var callback zaloPayCallback
	if err := json.Unmarshal(payload, &callback); err != nil {
		return nil, err
	}

	// The mac covers the raw data string exactly as delivered; decoding and
	// re-encoding the inner JSON would break verification.
	expected := signing.HMACSHA256Hex(a.cfg.Key2, callback.Data)
	if !signing.Equal(expected, callback.Mac) {
		return nil, ErrInvalidSignature
	}

	var data zaloPayCallbackData
	if err := json.Unmarshal([]byte(callback.Data), &data); err != nil {
		return nil, err
	}

	returnCode := data.ReturnCode
	if returnCode == nil {
		returnCode = callback.ReturnCode
	}

	var status types.PaymentStatus
	switch {
	case returnCode == nil:
		// ZaloPay only posts callbacks for completed transactions; a
		// verified callback without an explicit return envelope is a success.
		status = types.StatusSuccess
	case *returnCode == 1:
		status = types.StatusSuccess
	default:
		status = types.StatusFailed
	}

	txnID := data.ZPTransID.String()
	if txnID == "" {
		txnID = data.AppTransID
	}

	event := &WebhookEvent{
		Gateway:      a.Gateway(),
		OrderRef:     data.AppTransID,
		GatewayTxnID: txnID,
		Status:       status,
		Raw:          json.RawMessage(payload),
	}

	if strings.TrimSpace(data.EmbedData) != "" {
		var embed zaloPayEmbedData
		if json.Unmarshal([]byte(data.EmbedData), &embed) == nil {
			event.BookingID = strings.TrimSpace(embed.BookingID)
		}
	}

	return event, nil
}
