package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/types"
)

var (
	// ErrInvalidSignature means the webhook payload failed the gateway's
	// signature verification. Nothing downstream may run after it.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrGatewayUnavailable wraps transport-level failures reaching a gateway.
	ErrGatewayUnavailable = errors.New("gateway unavailable")
)

// ProviderError carries a gateway's own rejection payload unchanged so the
// caller can relay it.
type ProviderError struct {
	Gateway    types.Gateway
	StatusCode int
	Body       []byte
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s rejected request: status=%d body=%s", e.Gateway, e.StatusCode, string(e.Body))
}

type CreateInput struct {
	PaymentID   string
	BookingID   string
	Amount      int64
	Currency    string
	Description string
}

type CreateOutput struct {
	// OrderRef is the provider-facing order reference the adapter sent or
	// derived; the ledger keys webhook attribution on it when the gateway
	// has no metadata side channel.
	OrderRef     string
	GatewayTxnID *string
	PayURL       *string
	Raw          string
}

// WebhookEvent is the provider-neutral result of a verified webhook. It is
// the only contract between adapters and the reconciler; gateway-specific
// field names never cross it.
type WebhookEvent struct {
	Gateway      types.Gateway
	BookingID    string
	OrderRef     string
	GatewayTxnID string
	Status       types.PaymentStatus
	Raw          json.RawMessage
}

type Adapter interface {
	Gateway() types.Gateway
	CreatePayment(ctx context.Context, input *CreateInput) (*CreateOutput, error)
	ParseWebhook(ctx context.Context, payload []byte, header http.Header) (*WebhookEvent, error)
}

type pair struct {
	key   string
	value string
}

// joinPairs builds a key=value&... string preserving the given order. MoMo's
// signature string is an explicit enumerated order, not a sorted one, so the
// order of pairs is part of the contract.
func joinPairs(pairs []pair) string {
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, p.key+"="+p.value)
	}
	return strings.Join(parts, "&")
}

func postJSON(ctx context.Context, client *http.Client, gw types.Gateway, url string, headers map[string]string, body interface{}) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrGatewayUnavailable, gw, err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrGatewayUnavailable, gw, err)
	}
	if resp.StatusCode >= 400 {
		return nil, &ProviderError{Gateway: gw, StatusCode: resp.StatusCode, Body: responseBody}
	}

	return responseBody, nil
}
