package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/signing"
	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/types"
)

type MoMoConfig struct {
	PartnerCode string
	AccessKey   string
	SecretKey   string
	Endpoint    string
	RedirectURL string
	IPNBaseURL  string
	HTTPTimeout time.Duration
}

// MoMoAdapter drives MoMo's v2 gateway API. Payments are client-driven: the
// create call returns a payUrl/deeplink and the outcome arrives later on the
// IPN webhook.
type MoMoAdapter struct {
	cfg    MoMoConfig
	client *http.Client
}

func NewMoMoAdapter(cfg MoMoConfig) *MoMoAdapter {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MoMoAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (a *MoMoAdapter) Gateway() types.Gateway {
	return types.GatewayMoMo
}

type momoExtraData struct {
	BookingID string `json:"bookingId"`
}

func (a *MoMoAdapter) CreatePayment(ctx context.Context, input *CreateInput) (*CreateOutput, error) {
	if strings.TrimSpace(a.cfg.SecretKey) == "" {
		return nil, errors.New("momo secret key is not configured")
	}

	orderID := input.PaymentID
	requestID := input.PaymentID
	amount := strconv.FormatInt(input.Amount, 10)
	orderInfo := input.Description
	if orderInfo == "" {
		orderInfo = "booking " + input.BookingID
	}
	requestType := "captureWallet"
	ipnURL := strings.TrimRight(a.cfg.IPNBaseURL, "/") + "/payments/webhooks/momo"

	extraJSON, err := json.Marshal(momoExtraData{BookingID: input.BookingID})
	if err != nil {
		return nil, err
	}
	extraData := base64.StdEncoding.EncodeToString(extraJSON)

	// MoMo signs a fixed-order field list, not a sorted one.
	canonical := joinPairs([]pair{
		{"accessKey", a.cfg.AccessKey},
		{"amount", amount},
		{"extraData", extraData},
		{"ipnUrl", ipnURL},
		{"orderId", orderID},
		{"orderInfo", orderInfo},
		{"partnerCode", a.cfg.PartnerCode},
		{"redirectUrl", a.cfg.RedirectURL},
		{"requestId", requestID},
		{"requestType", requestType},
	})
	signature := signing.HMACSHA256Hex(a.cfg.SecretKey, canonical)

	body := map[string]interface{}{
		"partnerCode": a.cfg.PartnerCode,
		"accessKey":   a.cfg.AccessKey,
		"requestId":   requestID,
		"amount":      amount,
		"orderId":     orderID,
		"orderInfo":   orderInfo,
		"redirectUrl": a.cfg.RedirectURL,
		"ipnUrl":      ipnURL,
		"extraData":   extraData,
		"requestType": requestType,
		"lang":        "vi",
		"signature":   signature,
	}

	responseBody, err := postJSON(ctx, a.client, a.Gateway(), strings.TrimRight(a.cfg.Endpoint, "/")+"/v2/gateway/api/create", nil, body)
	if err != nil {
		return nil, err
	}

	var response struct {
		ResultCode int    `json:"resultCode"`
		Message    string `json:"message"`
		PayURL     string `json:"payUrl"`
		Deeplink   string `json:"deeplink"`
	}
	if err := json.Unmarshal(responseBody, &response); err != nil {
		return nil, err
	}
	if response.ResultCode != 0 {
		return nil, &ProviderError{Gateway: a.Gateway(), StatusCode: http.StatusOK, Body: responseBody}
	}

	output := &CreateOutput{
		OrderRef: orderID,
		Raw:      string(responseBody),
	}
	if s := strings.TrimSpace(response.PayURL); s != "" {
		output.PayURL = &s
	} else if s := strings.TrimSpace(response.Deeplink); s != "" {
		output.PayURL = &s
	}

	return output, nil
}

// momoWebhook keeps numeric fields as json.Number so the signature is
// recomputed over the exact digits MoMo sent, not a re-formatted value.
type momoWebhook struct {
	PartnerCode  string      `json:"partnerCode"`
	OrderID      string      `json:"orderId"`
	RequestID    string      `json:"requestId"`
	Amount       json.Number `json:"amount"`
	OrderInfo    string      `json:"orderInfo"`
	OrderType    string      `json:"orderType"`
	TransID      json.Number `json:"transId"`
	ResultCode   json.Number `json:"resultCode"`
	Message      string      `json:"message"`
	PayType      string      `json:"payType"`
	ResponseTime json.Number `json:"responseTime"`
	ExtraData    string      `json:"extraData"`
	Signature    string      `json:"signature"`
}

func (a *MoMoAdapter) ParseWebhook(_ context.Context, payload []byte, _ http.Header) (*WebhookEvent, error) {
	if strings.TrimSpace(a.cfg.SecretKey) == "" {
		return nil, errors.New("momo secret key is not configured")
	}

	var hook momoWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, err
	}

	canonical := joinPairs([]pair{
		{"accessKey", a.cfg.AccessKey},
		{"amount", hook.Amount.String()},
		{"extraData", hook.ExtraData},
		{"message", hook.Message},
		{"orderId", hook.OrderID},
		{"orderInfo", hook.OrderInfo},
		{"orderType", hook.OrderType},
		{"partnerCode", hook.PartnerCode},
		{"payType", hook.PayType},
		{"requestId", hook.RequestID},
		{"responseTime", hook.ResponseTime.String()},
		{"resultCode", hook.ResultCode.String()},
		{"transId", hook.TransID.String()},
	})
	expected := signing.HMACSHA256Hex(a.cfg.SecretKey, canonical)
	if !signing.Equal(expected, hook.Signature) {
		return nil, ErrInvalidSignature
	}

	var status types.PaymentStatus
	switch hook.ResultCode.String() {
	case "0":
		status = types.StatusSuccess
	case "1006":
		status = types.StatusCancelled
	default:
		status = types.StatusFailed
	}

	event := &WebhookEvent{
		Gateway:      a.Gateway(),
		OrderRef:     hook.OrderID,
		GatewayTxnID: hook.TransID.String(),
		Status:       status,
		Raw:          json.RawMessage(payload),
	}

	if extraJSON, err := base64.StdEncoding.DecodeString(hook.ExtraData); err == nil {
		var extra momoExtraData
		if json.Unmarshal(extraJSON, &extra) == nil {
			event.BookingID = strings.TrimSpace(extra.BookingID)
		}
	}

	return event, nil
}
