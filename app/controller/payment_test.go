package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/booking"
	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/entity"
	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/gateway"
	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/service"
	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/types"
	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/config"
)

type controllerIntentRepo struct {
	createFn                 func(ctx context.Context, intent *entity.PaymentIntent) error
	claimTransitionFn        func(ctx context.Context, id uint64, gatewayTxnID string, status types.PaymentStatus, rawPayload string, now time.Time) (bool, error)
	upsertTerminalFn         func(ctx context.Context, intent *entity.PaymentIntent) (bool, error)
	updateConfirmDeliveryFn  func(ctx context.Context, intent *entity.PaymentIntent) error
	markCancelledFn          func(ctx context.Context, id uint64, now time.Time) (bool, error)
	findByPaymentIDFn        func(ctx context.Context, paymentID string) (*entity.PaymentIntent, error)
	findByGatewayTxnIDFn     func(ctx context.Context, gw types.Gateway, gatewayTxnID string) (*entity.PaymentIntent, error)
	findByOrderRefFn         func(ctx context.Context, gw types.Gateway, orderRef string) (*entity.PaymentIntent, error)
	findPendingByBookingFn   func(ctx context.Context, gw types.Gateway, bookingID string) (*entity.PaymentIntent, error)
	listDueConfirmDispatchFn func(ctx context.Context, now time.Time, limit int32) ([]*entity.PaymentIntent, error)
	listExpiredPendingFn     func(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.PaymentIntent, error)
}

func (r *controllerIntentRepo) Create(ctx context.Context, intent *entity.PaymentIntent) error {
	if r.createFn != nil {
		return r.createFn(ctx, intent)
	}
	return nil
}

func (r *controllerIntentRepo) ClaimTransition(ctx context.Context, id uint64, gatewayTxnID string, status types.PaymentStatus, rawPayload string, now time.Time) (bool, error) {
	if r.claimTransitionFn != nil {
		return r.claimTransitionFn(ctx, id, gatewayTxnID, status, rawPayload, now)
	}
	return true, nil
}

func (r *controllerIntentRepo) UpsertTerminal(ctx context.Context, intent *entity.PaymentIntent) (bool, error) {
	if r.upsertTerminalFn != nil {
		return r.upsertTerminalFn(ctx, intent)
	}
	return true, nil
}

func (r *controllerIntentRepo) UpdateConfirmDelivery(ctx context.Context, intent *entity.PaymentIntent) error {
	if r.updateConfirmDeliveryFn != nil {
		return r.updateConfirmDeliveryFn(ctx, intent)
	}
	return nil
}

func (r *controllerIntentRepo) MarkCancelled(ctx context.Context, id uint64, now time.Time) (bool, error) {
	if r.markCancelledFn != nil {
		return r.markCancelledFn(ctx, id, now)
	}
	return false, nil
}

func (r *controllerIntentRepo) FindByPaymentID(ctx context.Context, paymentID string) (*entity.PaymentIntent, error) {
	if r.findByPaymentIDFn != nil {
		return r.findByPaymentIDFn(ctx, paymentID)
	}
	return nil, nil
}

func (r *controllerIntentRepo) FindByGatewayTxnID(ctx context.Context, gw types.Gateway, gatewayTxnID string) (*entity.PaymentIntent, error) {
	if r.findByGatewayTxnIDFn != nil {
		return r.findByGatewayTxnIDFn(ctx, gw, gatewayTxnID)
	}
	return nil, nil
}

func (r *controllerIntentRepo) FindByOrderRef(ctx context.Context, gw types.Gateway, orderRef string) (*entity.PaymentIntent, error) {
	if r.findByOrderRefFn != nil {
		return r.findByOrderRefFn(ctx, gw, orderRef)
	}
	return nil, nil
}

func (r *controllerIntentRepo) FindPendingByBooking(ctx context.Context, gw types.Gateway, bookingID string) (*entity.PaymentIntent, error) {
	if r.findPendingByBookingFn != nil {
		return r.findPendingByBookingFn(ctx, gw, bookingID)
	}
	return nil, nil
}

func (r *controllerIntentRepo) ListDueConfirmDispatch(ctx context.Context, now time.Time, limit int32) ([]*entity.PaymentIntent, error) {
	if r.listDueConfirmDispatchFn != nil {
		return r.listDueConfirmDispatchFn(ctx, now, limit)
	}
	return []*entity.PaymentIntent{}, nil
}

func (r *controllerIntentRepo) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.PaymentIntent, error) {
	if r.listExpiredPendingFn != nil {
		return r.listExpiredPendingFn(ctx, cutoff, limit)
	}
	return []*entity.PaymentIntent{}, nil
}

type controllerWebhookRepo struct{}

func (r *controllerWebhookRepo) Create(context.Context, *entity.WebhookRecord) error {
	return nil
}

type controllerBookingClient struct {
	calls int
	err   error
}

func (c *controllerBookingClient) ConfirmPayment(context.Context, string, *booking.ConfirmRequest) error {
	c.calls++
	return c.err
}

type controllerAdapter struct {
	gw        types.Gateway
	createOut *gateway.CreateOutput
	createErr error
	event     *gateway.WebhookEvent
	parseErr  error
}

func (a *controllerAdapter) Gateway() types.Gateway {
	return a.gw
}

func (a *controllerAdapter) CreatePayment(context.Context, *gateway.CreateInput) (*gateway.CreateOutput, error) {
	if a.createErr != nil {
		return nil, a.createErr
	}
	if a.createOut != nil {
		return a.createOut, nil
	}
	payURL := "https://gateway.example/pay/1"
	return &gateway.CreateOutput{OrderRef: "order-1", PayURL: &payURL}, nil
}

func (a *controllerAdapter) ParseWebhook(context.Context, []byte, http.Header) (*gateway.WebhookEvent, error) {
	if a.parseErr != nil {
		return nil, a.parseErr
	}
	return a.event, nil
}

func newControllerForTest(repo *controllerIntentRepo, bookingStub *controllerBookingClient, adapters ...gateway.Adapter) *PaymentController {
	svc := service.NewPaymentService(
		repo,
		&controllerWebhookRepo{},
		gateway.NewRegistry(adapters...),
		bookingStub,
		nil,
		config.PaymentsConfig{
			Currency:             "VND",
			ConfirmMaxAttempts:   3,
			ConfirmRetryInterval: time.Minute,
			PendingTimeout:       time.Hour,
			JobBatchSize:         100,
		},
	)
	return NewPaymentController(svc)
}

func doRequest(t *testing.T, handler echo.HandlerFunc, method, path string, body []byte, header http.Header, pathParams map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	for k, v := range pathParams {
		ctx.SetParamNames(k)
		ctx.SetParamValues(v)
	}
	if err := handler(ctx); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

func TestHealth(t *testing.T) {
	c := newControllerForTest(&controllerIntentRepo{}, &controllerBookingClient{})
	rec := doRequest(t, c.Health, http.MethodGet, "/health", nil, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestCreatePaymentReturnsPayURL(t *testing.T) {
	c := newControllerForTest(&controllerIntentRepo{}, &controllerBookingClient{}, &controllerAdapter{gw: types.GatewayMoMo})

	body := []byte(`{"paymentMethod":"momo","amount":250000,"bookingId":"bk-1","description":"bus ticket"}`)
	rec := doRequest(t, c.CreatePayment, http.MethodPost, "/payments", body, nil, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}

	var response types.PaymentEnvelopeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.Payment == nil || response.Payment.PayURL != "https://gateway.example/pay/1" {
		t.Fatalf("expected payment url in envelope, got %+v", response.Payment)
	}
	if response.Payment.Status != types.StatusPending {
		t.Fatalf("expected PENDING, got %s", response.Payment.Status)
	}
}

func TestCreatePaymentValidatesBody(t *testing.T) {
	c := newControllerForTest(&controllerIntentRepo{}, &controllerBookingClient{}, &controllerAdapter{gw: types.GatewayMoMo})

	body := []byte(`{"paymentMethod":"momo","amount":250000}`)
	rec := doRequest(t, c.CreatePayment, http.MethodPost, "/payments", body, nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing bookingId, got %d", rec.Code)
	}
}

func TestCreatePaymentUnsupportedGateway(t *testing.T) {
	c := newControllerForTest(&controllerIntentRepo{}, &controllerBookingClient{}, &controllerAdapter{gw: types.GatewayMoMo})

	body := []byte(`{"paymentMethod":"paypal","amount":250000,"bookingId":"bk-1"}`)
	rec := doRequest(t, c.CreatePayment, http.MethodPost, "/payments", body, nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported gateway, got %d", rec.Code)
	}
}

func TestGetPaymentNotFound(t *testing.T) {
	c := newControllerForTest(&controllerIntentRepo{}, &controllerBookingClient{})

	rec := doRequest(t, c.GetPayment, http.MethodGet, "/payments/missing", nil, nil, map[string]string{"id": "missing"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleWebhookAcknowledgesProcessedEvent(t *testing.T) {
	intent := &entity.PaymentIntent{
		ID:        1,
		PaymentID: "pay-1",
		BookingID: "bk-1",
		Gateway:   types.GatewayMoMo,
		OrderRef:  "order-1",
		Status:    types.StatusPending,
	}
	repo := &controllerIntentRepo{
		findByOrderRefFn: func(_ context.Context, _ types.Gateway, orderRef string) (*entity.PaymentIntent, error) {
			if orderRef == "order-1" {
				copyItem := *intent
				return &copyItem, nil
			}
			return nil, nil
		},
	}
	bookingStub := &controllerBookingClient{}
	adapter := &controllerAdapter{
		gw: types.GatewayMoMo,
		event: &gateway.WebhookEvent{
			Gateway:      types.GatewayMoMo,
			BookingID:    "bk-1",
			OrderRef:     "order-1",
			GatewayTxnID: "momo-txn-1",
			Status:       types.StatusSuccess,
			Raw:          []byte(`{"resultCode":0}`),
		},
	}
	c := newControllerForTest(repo, bookingStub, adapter)

	rec := doRequest(t, c.HandleWebhook, http.MethodPost, "/payments/webhooks/momo", []byte(`{"resultCode":0}`), nil, map[string]string{"gateway": "momo"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"received":true`) {
		t.Fatalf("expected received ack, got %s", rec.Body.String())
	}
	if bookingStub.calls != 1 {
		t.Fatalf("expected one booking confirm call, got %d", bookingStub.calls)
	}
}

func TestHandleWebhookInvalidSignature(t *testing.T) {
	adapter := &controllerAdapter{gw: types.GatewayMoMo, parseErr: gateway.ErrInvalidSignature}
	c := newControllerForTest(&controllerIntentRepo{}, &controllerBookingClient{}, adapter)

	rec := doRequest(t, c.HandleWebhook, http.MethodPost, "/payments/webhooks/momo", []byte(`{}`), nil, map[string]string{"gateway": "momo"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "signature") {
		t.Fatalf("response must not leak verification detail: %s", rec.Body.String())
	}
}

func TestHandleWebhookUnknownGateway(t *testing.T) {
	c := newControllerForTest(&controllerIntentRepo{}, &controllerBookingClient{})

	rec := doRequest(t, c.HandleWebhook, http.MethodPost, "/payments/webhooks/paypal", []byte(`{}`), nil, map[string]string{"gateway": "paypal"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleWebhookOversizedBody(t *testing.T) {
	c := newControllerForTest(&controllerIntentRepo{}, &controllerBookingClient{}, &controllerAdapter{gw: types.GatewayMoMo})

	body := bytes.Repeat([]byte("a"), maxWebhookBodyBytes+1)
	rec := doRequest(t, c.HandleWebhook, http.MethodPost, "/payments/webhooks/momo", body, nil, map[string]string{"gateway": "momo"})
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestHandleWebhookConflictingStatus(t *testing.T) {
	txn := "momo-txn-1"
	terminal := &entity.PaymentIntent{
		ID:           1,
		PaymentID:    "pay-1",
		BookingID:    "bk-1",
		Gateway:      types.GatewayMoMo,
		GatewayTxnID: &txn,
		OrderRef:     "order-1",
		Status:       types.StatusSuccess,
	}
	repo := &controllerIntentRepo{
		findByGatewayTxnIDFn: func(_ context.Context, _ types.Gateway, gatewayTxnID string) (*entity.PaymentIntent, error) {
			if gatewayTxnID == txn {
				copyItem := *terminal
				return &copyItem, nil
			}
			return nil, nil
		},
	}
	adapter := &controllerAdapter{
		gw: types.GatewayMoMo,
		event: &gateway.WebhookEvent{
			Gateway:      types.GatewayMoMo,
			BookingID:    "bk-1",
			OrderRef:     "order-1",
			GatewayTxnID: txn,
			Status:       types.StatusFailed,
			Raw:          []byte(`{"resultCode":1003}`),
		},
	}
	c := newControllerForTest(repo, &controllerBookingClient{}, adapter)

	rec := doRequest(t, c.HandleWebhook, http.MethodPost, "/payments/webhooks/momo", []byte(`{"resultCode":1003}`), nil, map[string]string{"gateway": "momo"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestHandleWebhookConfirmFailureReturnsBadGateway(t *testing.T) {
	intent := &entity.PaymentIntent{
		ID:        1,
		PaymentID: "pay-1",
		BookingID: "bk-1",
		Gateway:   types.GatewayMoMo,
		OrderRef:  "order-1",
		Status:    types.StatusPending,
	}
	repo := &controllerIntentRepo{
		findByOrderRefFn: func(context.Context, types.Gateway, string) (*entity.PaymentIntent, error) {
			copyItem := *intent
			return &copyItem, nil
		},
	}
	bookingStub := &controllerBookingClient{err: context.DeadlineExceeded}
	adapter := &controllerAdapter{
		gw: types.GatewayMoMo,
		event: &gateway.WebhookEvent{
			Gateway:      types.GatewayMoMo,
			BookingID:    "bk-1",
			OrderRef:     "order-1",
			GatewayTxnID: "momo-txn-1",
			Status:       types.StatusSuccess,
			Raw:          []byte(`{"resultCode":0}`),
		},
	}
	c := newControllerForTest(repo, bookingStub, adapter)

	rec := doRequest(t, c.HandleWebhook, http.MethodPost, "/payments/webhooks/momo", []byte(`{"resultCode":0}`), nil, map[string]string{"gateway": "momo"})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 so the gateway retries, got %d", rec.Code)
	}
}
