package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/signing"
	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/types"
)

func cardAdapterForTest() *CardAdapter {
	return NewCardAdapter(CardConfig{
		SecretKey:                 "sk_test_123",
		WebhookSecret:             "whsec_test",
		SuccessURL:                "https://app.example/payments/success",
		CancelURL:                 "https://app.example/payments/cancel",
		SignatureToleranceSeconds: 300,
	})
}

func signedCardHeader(secret string, ts int64, payload []byte) http.Header {
	sig := signing.HMACSHA256Hex(secret, strconv.FormatInt(ts, 10)+"."+string(payload))
	header := http.Header{}
	header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts, sig))
	return header
}

const cardEventJSON = `{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_test_1","payment_intent":"pi_test_1","client_reference_id":"pay-1","metadata":{"payment_id":"pay-1","booking_id":"bk-1"}}}}`

func TestCardParseWebhookSuccess(t *testing.T) {
	adapter := cardAdapterForTest()
	payload := []byte(cardEventJSON)
	header := signedCardHeader("whsec_test", time.Now().Unix(), payload)

	event, err := adapter.ParseWebhook(context.Background(), payload, header)
	if err != nil {
		t.Fatalf("parse webhook failed: %v", err)
	}
	if event.Status != types.StatusSuccess {
		t.Fatalf("expected SUCCESS, got %s", event.Status)
	}
	if event.BookingID != "bk-1" {
		t.Fatalf("expected booking id from metadata, got %q", event.BookingID)
	}
	if event.GatewayTxnID != "pi_test_1" {
		t.Fatalf("unexpected transaction id %q", event.GatewayTxnID)
	}
	if event.OrderRef != "pay-1" {
		t.Fatalf("unexpected order ref %q", event.OrderRef)
	}
}

func TestCardParseWebhookEventTypeMapping(t *testing.T) {
	adapter := cardAdapterForTest()

	cases := []struct {
		eventType string
		want      types.PaymentStatus
	}{
		{"checkout.session.completed", types.StatusSuccess},
		{"checkout.session.async_payment_succeeded", types.StatusSuccess},
		{"checkout.session.async_payment_failed", types.StatusFailed},
		{"checkout.session.expired", types.StatusCancelled},
		{"payment_intent.payment_failed", types.StatusFailed},
	}
	for _, tc := range cases {
		payload := []byte(fmt.Sprintf(`{"id":"evt_1","type":"%s","data":{"object":{"id":"cs_test_1","metadata":{"booking_id":"bk-1"}}}}`, tc.eventType))
		header := signedCardHeader("whsec_test", time.Now().Unix(), payload)

		event, err := adapter.ParseWebhook(context.Background(), payload, header)
		if err != nil {
			t.Fatalf("%s: parse failed: %v", tc.eventType, err)
		}
		if event.Status != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.eventType, tc.want, event.Status)
		}
	}
}

func TestCardParseWebhookWrongSecret(t *testing.T) {
	adapter := cardAdapterForTest()
	payload := []byte(cardEventJSON)
	header := signedCardHeader("whsec_other", time.Now().Unix(), payload)

	_, err := adapter.ParseWebhook(context.Background(), payload, header)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestCardParseWebhookStaleTimestamp(t *testing.T) {
	adapter := cardAdapterForTest()
	payload := []byte(cardEventJSON)
	header := signedCardHeader("whsec_test", time.Now().Add(-time.Hour).Unix(), payload)

	_, err := adapter.ParseWebhook(context.Background(), payload, header)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for stale timestamp, got %v", err)
	}
}

func TestCardParseWebhookMissingSignatureHeader(t *testing.T) {
	adapter := cardAdapterForTest()

	_, err := adapter.ParseWebhook(context.Background(), []byte(cardEventJSON), http.Header{})
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestCardParseWebhookFallbackHeader(t *testing.T) {
	adapter := cardAdapterForTest()
	payload := []byte(cardEventJSON)

	ts := time.Now().Unix()
	sig := signing.HMACSHA256Hex("whsec_test", strconv.FormatInt(ts, 10)+"."+string(payload))
	header := http.Header{}
	header.Set("X-Webhook-Signature", fmt.Sprintf("t=%d,v1=%s", ts, sig))

	if _, err := adapter.ParseWebhook(context.Background(), payload, header); err != nil {
		t.Fatalf("expected fallback header to verify, got %v", err)
	}
}
