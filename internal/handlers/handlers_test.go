package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/socialdeskapp/socialdesk/internal/auth"
	"github.com/socialdeskapp/socialdesk/internal/cache"
	"github.com/socialdeskapp/socialdesk/internal/channels"
	"github.com/socialdeskapp/socialdesk/internal/config"
	"github.com/socialdeskapp/socialdesk/internal/crypto"
	"github.com/socialdeskapp/socialdesk/internal/db"
	"github.com/socialdeskapp/socialdesk/internal/lifecycle"
	"github.com/socialdeskapp/socialdesk/internal/models"
	"github.com/socialdeskapp/socialdesk/internal/services"
)

const webhookSecret = "test-webhook-secret"

// memOrderStore implements the order service's store contract in memory,
// including conflict detection.
type memOrderStore struct {
	orders map[uuid.UUID]*models.Order
}

func newMemOrderStore(orders ...*models.Order) *memOrderStore {
	s := &memOrderStore{orders: map[uuid.UUID]*models.Order{}}
	for _, order := range orders {
		s.orders[order.ID] = order
	}
	return s
}

func (s *memOrderStore) Create(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.OrderNumber == "" {
		order.OrderNumber = fmt.Sprintf("SD-%d", len(s.orders)+1000)
	}
	order.CreatedAt = time.Now()
	order.LastUpdatedAt = order.CreatedAt
	s.orders[order.ID] = order
	return nil
}

func (s *memOrderStore) GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, errNoRows)
	}
	copied := *order
	return &copied, nil
}

func (s *memOrderStore) List(ctx context.Context, filter db.ListFilter) ([]*models.Order, error) {
	matched := []*models.Order{}
	for _, order := range s.orders {
		if filter.Status != "" && order.OrderStatus != filter.Status {
			continue
		}
		if filter.Channel != "" && order.Channel != filter.Channel {
			continue
		}
		copied := *order
		matched = append(matched, &copied)
	}
	return matched, nil
}

func (s *memOrderStore) ApplyTransition(ctx context.Context, orderID uuid.UUID, expected, next models.OrderStatus, actor models.Actor) (*models.Order, error) {
	order, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, errNoRows)
	}
	if err := lifecycle.ValidateTransition(expected, next); err != nil {
		return nil, err
	}
	if order.OrderStatus != expected {
		return nil, lifecycle.NewConflictError(orderID, expected, order.OrderStatus)
	}
	order.OrderStatus = next
	order.LastUpdatedAt = time.Now()
	order.Timeline = append(order.Timeline, models.TimelineEvent{
		Type:        models.EventStatusChanged,
		Description: fmt.Sprintf("%s -> %s", expected, next),
		ActorType:   actor.Type,
		CreatedAt:   order.LastUpdatedAt,
	})
	copied := *order
	return &copied, nil
}

func (s *memOrderStore) UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, payment models.PaymentStatus, actor models.Actor, description string) (*models.Order, error) {
	order, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, errNoRows)
	}
	order.PaymentStatus = payment
	order.LastUpdatedAt = time.Now()
	order.Timeline = append(order.Timeline, models.TimelineEvent{
		Type:      models.EventPaymentStatusChanged,
		ActorType: actor.Type,
		CreatedAt: order.LastUpdatedAt,
	})
	copied := *order
	return &copied, nil
}

func (s *memOrderStore) UpdatePaymentIntent(ctx context.Context, orderID uuid.UUID, paymentIntentID string) error {
	order, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s: %w", orderID, errNoRows)
	}
	order.PaymentIntentID = paymentIntentID
	return nil
}

var errNoRows = fmt.Errorf("no rows in result set")

func testHandlers(t *testing.T, store *memOrderStore) *Handlers {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := services.NewOrderService(store, nil, nil, logger)

	cacheProvider, err := cache.NewMemoryProvider()
	if err != nil {
		t.Fatalf("failed to create cache provider: %v", err)
	}
	t.Cleanup(func() { _ = cacheProvider.Close() })

	tokens, err := auth.NewTokenManager("0123456789abcdef0123456789abcdef", time.Hour)
	if err != nil {
		t.Fatalf("failed to create token manager: %v", err)
	}

	cfg := &config.Config{ChannelWebhookSecret: webhookSecret}

	encryptor, err := crypto.NewEncryptor("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("failed to create encryptor: %v", err)
	}
	channelStore, err := db.NewChannelStore(nil, encryptor)
	if err != nil {
		t.Fatalf("failed to create channel store: %v", err)
	}
	connector, err := channels.NewConnector(cfg, channelStore, logger)
	if err != nil {
		t.Fatalf("failed to create connector: %v", err)
	}

	return &Handlers{
		config:        cfg,
		orderService:  svc,
		connector:     connector,
		channelRouter: NewChannelEventRouter(svc, logger),
		cacheProvider: cacheProvider,
		tokens:        tokens,
		logger:        logger,
	}
}

func testOrder(status models.OrderStatus, payment models.PaymentStatus) *models.Order {
	return &models.Order{
		ID:            uuid.New(),
		OrderNumber:   "SD-1001",
		CustomerID:    uuid.New(),
		CustomerName:  "Amara Okafor",
		CustomerEmail: "amara@example.com",
		Channel:       models.ChannelInstagram,
		OrderStatus:   status,
		PaymentStatus: payment,
		Currency:      "USD",
		TotalAmount:   4500,
	}
}

func muxRequest(method, target string, body []byte, vars map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if vars != nil {
		req = mux.SetURLVars(req, vars)
	}
	return req
}

func TestGetOrderReturnsCapabilities(t *testing.T) {
	t.Parallel()

	order := testOrder(models.StatusProcessing, models.PaymentPaid)
	h := testHandlers(t, newMemOrderStore(order))

	req := muxRequest(http.MethodGet, "/api/orders/"+order.ID.String(), nil, map[string]string{"id": order.ID.String()})
	rec := httptest.NewRecorder()
	h.GetOrder(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Order struct {
			OrderStatus string `json:"orderStatus"`
		} `json:"order"`
		Capabilities struct {
			CanShip   bool `json:"canShip"`
			CanRefund bool `json:"canRefund"`
		} `json:"capabilities"`
		AllowedNextStatuses []string `json:"allowedNextStatuses"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Order.OrderStatus != "PROCESSING" {
		t.Errorf("orderStatus = %q, want PROCESSING", resp.Order.OrderStatus)
	}
	if !resp.Capabilities.CanShip || !resp.Capabilities.CanRefund {
		t.Errorf("capabilities = %+v, want ship and refund", resp.Capabilities)
	}
	if len(resp.AllowedNextStatuses) != 2 {
		t.Errorf("allowedNextStatuses = %v, want two entries", resp.AllowedNextStatuses)
	}
}

func TestGetOrderRejectsBadID(t *testing.T) {
	t.Parallel()

	h := testHandlers(t, newMemOrderStore())

	req := muxRequest(http.MethodGet, "/api/orders/nope", nil, map[string]string{"id": "nope"})
	rec := httptest.NewRecorder()
	h.GetOrder(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUpdateOrderStatus(t *testing.T) {
	t.Parallel()

	order := testOrder(models.StatusNew, models.PaymentUnpaid)
	h := testHandlers(t, newMemOrderStore(order))

	body := []byte(`{"newStatus":"CONFIRMED","expectedStatus":"NEW"}`)
	req := muxRequest(http.MethodPost, "/api/orders/"+order.ID.String()+"/status", body, map[string]string{"id": order.ID.String()})
	rec := httptest.NewRecorder()
	h.UpdateOrderStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Order struct {
			OrderStatus string `json:"orderStatus"`
		} `json:"order"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Order.OrderStatus != "CONFIRMED" {
		t.Errorf("orderStatus = %q, want CONFIRMED", resp.Order.OrderStatus)
	}
}

func TestUpdateOrderStatusConflict(t *testing.T) {
	t.Parallel()

	// The caller believes the order is NEW, but it is already CONFIRMED.
	order := testOrder(models.StatusConfirmed, models.PaymentUnpaid)
	h := testHandlers(t, newMemOrderStore(order))

	body := []byte(`{"newStatus":"CANCELLED","expectedStatus":"NEW"}`)
	req := muxRequest(http.MethodPost, "/api/orders/"+order.ID.String()+"/status", body, map[string]string{"id": order.ID.String()})
	rec := httptest.NewRecorder()
	h.UpdateOrderStatus(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409, body %s", rec.Code, rec.Body.String())
	}
}

func TestUpdateOrderStatusIllegalTransition(t *testing.T) {
	t.Parallel()

	order := testOrder(models.StatusDelivered, models.PaymentPaid)
	h := testHandlers(t, newMemOrderStore(order))

	body := []byte(`{"newStatus":"SHIPPED","expectedStatus":"DELIVERED"}`)
	req := muxRequest(http.MethodPost, "/api/orders/"+order.ID.String()+"/status", body, map[string]string{"id": order.ID.String()})
	rec := httptest.NewRecorder()
	h.UpdateOrderStatus(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422, body %s", rec.Code, rec.Body.String())
	}
}

func TestUpdateOrderStatusUnknownValue(t *testing.T) {
	t.Parallel()

	order := testOrder(models.StatusNew, models.PaymentUnpaid)
	h := testHandlers(t, newMemOrderStore(order))

	body := []byte(`{"newStatus":"ARCHIVED","expectedStatus":"NEW"}`)
	req := muxRequest(http.MethodPost, "/api/orders/"+order.ID.String()+"/status", body, map[string]string{"id": order.ID.String()})
	rec := httptest.NewRecorder()
	h.UpdateOrderStatus(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body %s", rec.Code, rec.Body.String())
	}
}

func TestUpdatePaymentStatusPermissive(t *testing.T) {
	t.Parallel()

	order := testOrder(models.StatusDelivered, models.PaymentRefunded)
	h := testHandlers(t, newMemOrderStore(order))

	// Any valid value is accepted, even walking back a refund.
	body := []byte(`{"paymentStatus":"UNPAID"}`)
	req := muxRequest(http.MethodPost, "/api/orders/"+order.ID.String()+"/payment", body, map[string]string{"id": order.ID.String()})
	rec := httptest.NewRecorder()
	h.UpdatePaymentStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
}

func TestRequireAuth(t *testing.T) {
	t.Parallel()

	h := testHandlers(t, newMemOrderStore())

	var gotActor models.Actor
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotActor = actorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	rec := httptest.NewRecorder()
	h.RequireAuth(next).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", rec.Code)
	}

	operatorID := uuid.New()
	token, err := h.tokens.Issue(operatorID, "Dana")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.RequireAuth(next).ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status with token = %d, want 204", rec.Code)
	}
	if gotActor.Type != models.ActorOperator || gotActor.ID != operatorID {
		t.Errorf("actor = %+v, want operator %s", gotActor, operatorID)
	}
}

func TestChannelConnectCallbackMissingState(t *testing.T) {
	t.Parallel()

	h := testHandlers(t, newMemOrderStore())

	req := httptest.NewRequest(http.MethodGet, "/channels/callback?code=abc", nil)
	rec := httptest.NewRecorder()
	h.ChannelConnectCallback(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestChannelConnectCallbackRejectsUnknownState(t *testing.T) {
	t.Parallel()

	h := testHandlers(t, newMemOrderStore())

	req := httptest.NewRequest(http.MethodGet, "/channels/callback?state=forged&code=abc", nil)
	rec := httptest.NewRecorder()
	h.ChannelConnectCallback(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body %s", rec.Code, rec.Body.String())
	}
}

func TestChannelConnectCallbackConsumesState(t *testing.T) {
	t.Parallel()

	h := testHandlers(t, newMemOrderStore())
	ctx := context.Background()

	key := cache.OAuthStateKey("st_1")
	if err := h.cacheProvider.Set(ctx, key, string(models.ChannelInstagram), time.Minute); err != nil {
		t.Fatalf("failed to seed state: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/channels/callback?state=st_1&code=abc", nil)
	rec := httptest.NewRecorder()
	h.ChannelConnectCallback(rec, req)

	// The state gate passes, so the failure comes from the unconfigured
	// connector rather than a rejected state.
	if rec.Code == http.StatusBadRequest {
		t.Fatalf("status = %d, known state must pass the gate, body %s", rec.Code, rec.Body.String())
	}

	if _, err := h.cacheProvider.Get(ctx, key); !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("state lookup after callback = %v, want ErrNotFound", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/channels/callback?state=st_1&code=abc", nil)
	rec = httptest.NewRecorder()
	h.ChannelConnectCallback(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("replayed state status = %d, want 400", rec.Code)
	}
}

func signPayload(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestChannelWebhookRejectsBadSignature(t *testing.T) {
	t.Parallel()

	h := testHandlers(t, newMemOrderStore())

	payload := []byte(`{"eventId":"evt_1","type":"payment.succeeded"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/channel", bytes.NewReader(payload))
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	rec := httptest.NewRecorder()
	h.ChannelWebhook(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestChannelWebhookPaymentSucceeded(t *testing.T) {
	t.Parallel()

	order := testOrder(models.StatusConfirmed, models.PaymentUnpaid)
	store := newMemOrderStore(order)
	h := testHandlers(t, store)

	payload := []byte(fmt.Sprintf(`{"eventId":"evt_2","type":"payment.succeeded","orderId":%q,"paymentIntentId":"pi_99"}`, order.ID))
	req := httptest.NewRequest(http.MethodPost, "/webhooks/channel", bytes.NewReader(payload))
	req.Header.Set("X-Hub-Signature-256", signPayload(payload))
	rec := httptest.NewRecorder()
	h.ChannelWebhook(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	if store.orders[order.ID].PaymentStatus != models.PaymentPaid {
		t.Errorf("payment status = %s, want PAID", store.orders[order.ID].PaymentStatus)
	}
	if store.orders[order.ID].PaymentIntentID != "pi_99" {
		t.Errorf("payment intent = %q, want pi_99", store.orders[order.ID].PaymentIntentID)
	}
}

func TestChannelWebhookIdempotent(t *testing.T) {
	t.Parallel()

	order := testOrder(models.StatusConfirmed, models.PaymentUnpaid)
	store := newMemOrderStore(order)
	h := testHandlers(t, store)

	payload := []byte(fmt.Sprintf(`{"eventId":"evt_3","type":"payment.succeeded","orderId":%q}`, order.ID))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/channel", bytes.NewReader(payload))
		req.Header.Set("X-Hub-Signature-256", signPayload(payload))
		rec := httptest.NewRecorder()
		h.ChannelWebhook(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d status = %d, want 200", i, rec.Code)
		}
	}

	events := 0
	for _, event := range store.orders[order.ID].Timeline {
		if event.Type == models.EventPaymentStatusChanged {
			events++
		}
	}
	if events != 1 {
		t.Errorf("recorded %d payment events across duplicate deliveries, want 1", events)
	}
}

func TestChannelWebhookOrderCreated(t *testing.T) {
	t.Parallel()

	store := newMemOrderStore()
	h := testHandlers(t, store)

	payload := []byte(`{
		"eventId": "evt_4",
		"type": "order.created",
		"channel": "WHATSAPP",
		"order": {
			"customerName": "Jonas Weber",
			"currency": "EUR",
			"totalAmount": 1800,
			"items": [{"name": "Mug", "quantity": 2, "unitPrice": 900, "lineTotal": 1800}]
		}
	}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/channel", bytes.NewReader(payload))
	req.Header.Set("X-Hub-Signature-256", signPayload(payload))
	rec := httptest.NewRecorder()
	h.ChannelWebhook(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	if len(store.orders) != 1 {
		t.Fatalf("store has %d orders, want 1", len(store.orders))
	}
	for _, order := range store.orders {
		if order.OrderStatus != models.StatusNew || order.PaymentStatus != models.PaymentUnpaid {
			t.Errorf("new order = %s/%s, want NEW/UNPAID", order.OrderStatus, order.PaymentStatus)
		}
		if order.Channel != models.ChannelWhatsApp {
			t.Errorf("channel = %s, want WHATSAPP", order.Channel)
		}
	}
}
