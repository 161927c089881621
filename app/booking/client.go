// Package booking is the outbound client for the booking service's internal
// confirm-payment endpoint. The ledger is always written before this client
// is called; a failed or timed-out confirm is retried later from the ledger.
package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/types"
)

type ConfirmRequest struct {
	Provider              types.Gateway       `json:"provider"`
	ProviderTransactionID string              `json:"providerTransactionId"`
	Status                types.PaymentStatus `json:"status"`
	Raw                   json.RawMessage     `json:"raw,omitempty"`
}

type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// ConfirmPayment posts the verified payment outcome for a booking. Transport
// failures and non-2xx responses are both failures; a timeout is never
// treated as success.
func (c *Client) ConfirmPayment(ctx context.Context, bookingID string, confirm *ConfirmRequest) error {
	body, err := json.Marshal(confirm)
	if err != nil {
		return err
	}

	endpoint := c.baseURL + "/internal/" + url.PathEscape(bookingID) + "/confirm-payment"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("booking service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("booking service confirm failed: status=%d body=%s", resp.StatusCode, string(responseBody))
	}

	return nil
}
