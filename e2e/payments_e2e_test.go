//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

const defaultPaymentsHTTPBase = "http://localhost:8080"

type httpClient struct {
	baseURL string
	client  *http.Client
}

func newHTTPClient(baseURL string) *httpClient {
	return &httpClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *httpClient) doJSON(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json marshal failed: %v", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		t.Fatalf("new request failed: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", fmt.Sprintf("e2e-http-%d", time.Now().UnixNano()))

	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("http request failed: %v", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response failed: %v", err)
	}

	return resp, bodyBytes
}

func waitForHTTP(baseURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 2 * time.Second}
	for time.Now().Before(deadline) {
		req, _ := http.NewRequest(http.MethodGet, baseURL+"/health", nil)
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("http service not ready at %s", baseURL)
}

func TestPaymentsE2E(t *testing.T) {
	httpBase := os.Getenv("PAYMENTS_HTTP_URL")
	if httpBase == "" {
		httpBase = defaultPaymentsHTTPBase
	}

	if err := waitForHTTP(httpBase, 30*time.Second); err != nil {
		t.Fatalf("http not ready: %v", err)
	}

	client := newHTTPClient(httpBase)

	t.Run("HTTPHealth", func(t *testing.T) {
		resp, body := client.doJSON(t, http.MethodGet, "/health", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("HTTPValidationCreate", func(t *testing.T) {
		resp, _ := client.doJSON(t, http.MethodPost, "/payments", map[string]any{})
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400 for invalid create request, got %d", resp.StatusCode)
		}
	})

	t.Run("HTTPCreateUnsupportedGateway", func(t *testing.T) {
		resp, body := client.doJSON(t, http.MethodPost, "/payments", map[string]any{
			"paymentMethod": "paypal",
			"amount":        150000,
			"bookingId":     fmt.Sprintf("e2e-bk-%d", time.Now().UnixNano()),
			"description":   "e2e unsupported gateway",
		})
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400 for unsupported gateway, got %d body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("HTTPGetPaymentNotFound", func(t *testing.T) {
		resp, body := client.doJSON(t, http.MethodGet, "/payments/"+uuid.NewString(), nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("expected 404, got %d body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("HTTPWebhookUnknownGateway", func(t *testing.T) {
		resp, body := client.doJSON(t, http.MethodPost, "/payments/webhooks/paypal", map[string]any{})
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400 for unknown gateway, got %d body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("HTTPWebhookUnsignedPayload", func(t *testing.T) {
		resp, body := client.doJSON(t, http.MethodPost, "/payments/webhooks/momo", map[string]any{
			"partnerCode": "MOMO",
			"orderId":     fmt.Sprintf("e2e-%d", time.Now().UnixNano()),
			"resultCode":  0,
			"signature":   "deadbeef",
		})
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400 for unsigned webhook, got %d body=%s", resp.StatusCode, string(body))
		}
		if strings.Contains(strings.ToLower(string(body)), "signature") {
			t.Fatalf("response body leaks verification detail: %s", string(body))
		}
	})
}
