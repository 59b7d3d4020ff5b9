package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/socialdeskapp/socialdesk/internal/db"
	"github.com/socialdeskapp/socialdesk/internal/email"
	"github.com/socialdeskapp/socialdesk/internal/lifecycle"
	"github.com/socialdeskapp/socialdesk/internal/models"
)

type fakeOrderStore struct {
	order *models.Order

	transitionErr error
	paymentErr    error

	lastPayment     models.PaymentStatus
	lastDescription string
	paymentCalls    int
	transitionCalls int
}

func (f *fakeOrderStore) Create(ctx context.Context, order *models.Order) error {
	f.order = order
	return nil
}

func (f *fakeOrderStore) UpdatePaymentIntent(ctx context.Context, orderID uuid.UUID, paymentIntentID string) error {
	f.order.PaymentIntentID = paymentIntentID
	return nil
}

func (f *fakeOrderStore) GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if f.order == nil || f.order.ID != orderID {
		return nil, errors.New("no rows")
	}
	copied := *f.order
	return &copied, nil
}

func (f *fakeOrderStore) List(ctx context.Context, filter db.ListFilter) ([]*models.Order, error) {
	if f.order == nil {
		return nil, nil
	}
	return []*models.Order{f.order}, nil
}

func (f *fakeOrderStore) ApplyTransition(ctx context.Context, orderID uuid.UUID, expected, next models.OrderStatus, actor models.Actor) (*models.Order, error) {
	f.transitionCalls++
	if f.transitionErr != nil {
		return nil, f.transitionErr
	}
	copied := *f.order
	copied.OrderStatus = next
	return &copied, nil
}

func (f *fakeOrderStore) UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, payment models.PaymentStatus, actor models.Actor, description string) (*models.Order, error) {
	f.paymentCalls++
	f.lastPayment = payment
	f.lastDescription = description
	if f.paymentErr != nil {
		return nil, f.paymentErr
	}
	copied := *f.order
	copied.PaymentStatus = payment
	return &copied, nil
}

type fakeRefunder struct {
	refundID string
	err      error
	calls    int
	lastPI   string
}

func (f *fakeRefunder) Refund(ctx context.Context, paymentIntentID string) (string, error) {
	f.calls++
	f.lastPI = paymentIntentID
	if f.err != nil {
		return "", f.err
	}
	return f.refundID, nil
}

type recordingEmailProvider struct {
	sent []*email.Email
	err  error
}

func (r *recordingEmailProvider) SendEmail(ctx context.Context, e *email.Email) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, e)
	return nil
}

func (r *recordingEmailProvider) ValidateAPIKey(ctx context.Context) error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOrder() *models.Order {
	return &models.Order{
		ID:              uuid.New(),
		OrderNumber:     "SD-1042",
		CustomerName:    "Amara Okafor",
		CustomerEmail:   "amara@example.com",
		Channel:         models.ChannelInstagram,
		OrderStatus:     models.StatusProcessing,
		PaymentStatus:   models.PaymentPaid,
		Currency:        "USD",
		TotalAmount:     4500,
		PaymentIntentID: "pi_123",
		Items: []models.LineItem{
			{Name: "Linen tote", Quantity: 1, UnitPrice: 4500, LineTotal: 4500},
		},
	}
}

func TestApplyTransitionSendsShippedEmail(t *testing.T) {
	t.Parallel()

	order := testOrder()
	store := &fakeOrderStore{order: order}
	emails := &recordingEmailProvider{}
	svc := NewOrderService(store, nil, emails, testLogger())

	detail, err := svc.ApplyTransition(context.Background(), TransitionInput{
		OrderID:        order.ID,
		NewStatus:      models.StatusShipped,
		ExpectedStatus: models.StatusProcessing,
		Actor:          models.SystemActor(),
	})
	if err != nil {
		t.Fatalf("ApplyTransition() error = %v", err)
	}
	if detail.Order.OrderStatus != models.StatusShipped {
		t.Errorf("order status = %s, want SHIPPED", detail.Order.OrderStatus)
	}
	if len(emails.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(emails.sent))
	}
	if got := emails.sent[0].To; got != "amara@example.com" {
		t.Errorf("email to = %q", got)
	}
	if !strings.Contains(emails.sent[0].Subject, "Shipped") {
		t.Errorf("subject = %q, want shipped notice", emails.sent[0].Subject)
	}
	if !detail.Capabilities.CanDeliver {
		t.Error("shipped order should be deliverable")
	}
}

func TestApplyTransitionEmailFailureDoesNotFailTransition(t *testing.T) {
	t.Parallel()

	order := testOrder()
	store := &fakeOrderStore{order: order}
	emails := &recordingEmailProvider{err: errors.New("smtp down")}
	svc := NewOrderService(store, nil, emails, testLogger())

	_, err := svc.ApplyTransition(context.Background(), TransitionInput{
		OrderID:        order.ID,
		NewStatus:      models.StatusShipped,
		ExpectedStatus: models.StatusProcessing,
		Actor:          models.SystemActor(),
	})
	if err != nil {
		t.Fatalf("ApplyTransition() error = %v, want nil despite email failure", err)
	}
}

func TestApplyTransitionPropagatesConflict(t *testing.T) {
	t.Parallel()

	order := testOrder()
	conflict := lifecycle.NewConflictError(order.ID, models.StatusProcessing, models.StatusCancelled)
	store := &fakeOrderStore{order: order, transitionErr: conflict}
	svc := NewOrderService(store, nil, nil, testLogger())

	_, err := svc.ApplyTransition(context.Background(), TransitionInput{
		OrderID:        order.ID,
		NewStatus:      models.StatusShipped,
		ExpectedStatus: models.StatusProcessing,
		Actor:          models.SystemActor(),
	})
	var got *lifecycle.ConflictError
	if !errors.As(err, &got) {
		t.Fatalf("error = %v, want ConflictError", err)
	}
	if got.Actual != models.StatusCancelled {
		t.Errorf("conflict actual = %s, want CANCELLED", got.Actual)
	}
}

func TestGetOrderReturnsCapabilities(t *testing.T) {
	t.Parallel()

	order := testOrder()
	store := &fakeOrderStore{order: order}
	svc := NewOrderService(store, nil, nil, testLogger())

	detail, err := svc.GetOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("GetOrder() error = %v", err)
	}
	if !detail.Capabilities.CanShip || !detail.Capabilities.CanCancel || !detail.Capabilities.CanRefund {
		t.Errorf("capabilities = %+v, want ship/cancel/refund for paid PROCESSING", detail.Capabilities)
	}
	if len(detail.AllowedNextStatuses) != 2 {
		t.Errorf("allowed next = %v, want [SHIPPED CANCELLED]", detail.AllowedNextStatuses)
	}
}

func TestRefundOrder(t *testing.T) {
	t.Parallel()

	order := testOrder()
	store := &fakeOrderStore{order: order}
	refunder := &fakeRefunder{refundID: "re_789"}
	svc := NewOrderService(store, refunder, nil, testLogger())

	detail, err := svc.RefundOrder(context.Background(), order.ID, models.SystemActor())
	if err != nil {
		t.Fatalf("RefundOrder() error = %v", err)
	}
	if refunder.calls != 1 || refunder.lastPI != "pi_123" {
		t.Errorf("refunder calls = %d with %q, want 1 call for pi_123", refunder.calls, refunder.lastPI)
	}
	if store.lastPayment != models.PaymentRefunded {
		t.Errorf("recorded payment = %s, want REFUNDED", store.lastPayment)
	}
	if !strings.Contains(store.lastDescription, "re_789") {
		t.Errorf("description = %q, want refund id", store.lastDescription)
	}
	if detail.Capabilities.CanRefund {
		t.Error("refunded order must not be refundable again")
	}
}

func TestRefundOrderNotAllowedWhenUnpaid(t *testing.T) {
	t.Parallel()

	order := testOrder()
	order.PaymentStatus = models.PaymentUnpaid
	store := &fakeOrderStore{order: order}
	refunder := &fakeRefunder{refundID: "re_789"}
	svc := NewOrderService(store, refunder, nil, testLogger())

	_, err := svc.RefundOrder(context.Background(), order.ID, models.SystemActor())
	if !errors.Is(err, ErrRefundNotAllowed) {
		t.Fatalf("error = %v, want ErrRefundNotAllowed", err)
	}
	if refunder.calls != 0 {
		t.Errorf("refunder called %d times, want 0", refunder.calls)
	}
}

func TestRefundOrderWithoutPaymentIntent(t *testing.T) {
	t.Parallel()

	order := testOrder()
	order.PaymentIntentID = ""
	store := &fakeOrderStore{order: order}
	svc := NewOrderService(store, &fakeRefunder{}, nil, testLogger())

	_, err := svc.RefundOrder(context.Background(), order.ID, models.SystemActor())
	if !errors.Is(err, ErrNoPaymentIntent) {
		t.Fatalf("error = %v, want ErrNoPaymentIntent", err)
	}
}

func TestCancelOrder(t *testing.T) {
	t.Parallel()

	order := testOrder()
	store := &fakeOrderStore{order: order}
	svc := NewOrderService(store, nil, nil, testLogger())

	detail, err := svc.CancelOrder(context.Background(), order.ID, models.SystemActor())
	if err != nil {
		t.Fatalf("CancelOrder() error = %v", err)
	}
	if detail.Order.OrderStatus != models.StatusCancelled {
		t.Errorf("order status = %s, want CANCELLED", detail.Order.OrderStatus)
	}
	if store.transitionCalls != 1 {
		t.Errorf("transitions = %d, want 1", store.transitionCalls)
	}
}

func TestCancelOrderTerminalIsNoOp(t *testing.T) {
	t.Parallel()

	for _, status := range []models.OrderStatus{models.StatusDelivered, models.StatusCancelled} {
		order := testOrder()
		order.OrderStatus = status
		store := &fakeOrderStore{order: order}
		svc := NewOrderService(store, nil, nil, testLogger())

		detail, err := svc.CancelOrder(context.Background(), order.ID, models.SystemActor())
		if err != nil {
			t.Fatalf("CancelOrder(%s) error = %v", status, err)
		}
		if detail.Order.OrderStatus != status {
			t.Errorf("order status = %s, want untouched %s", detail.Order.OrderStatus, status)
		}
		if store.transitionCalls != 0 {
			t.Errorf("transitions for %s = %d, want 0", status, store.transitionCalls)
		}
	}
}

func TestRefundOrderRecordFailureSurfacesError(t *testing.T) {
	t.Parallel()

	order := testOrder()
	store := &fakeOrderStore{order: order, paymentErr: errors.New("db down")}
	svc := NewOrderService(store, &fakeRefunder{refundID: "re_1"}, nil, testLogger())

	_, err := svc.RefundOrder(context.Background(), order.ID, models.SystemActor())
	if err == nil || !strings.Contains(err.Error(), "re_1") {
		t.Fatalf("error = %v, want refund id in message", err)
	}
}
