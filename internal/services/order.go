// Package services holds the application logic above the stores.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"

	"github.com/socialdeskapp/socialdesk/internal/db"
	"github.com/socialdeskapp/socialdesk/internal/email"
	"github.com/socialdeskapp/socialdesk/internal/lifecycle"
	"github.com/socialdeskapp/socialdesk/internal/logging"
	"github.com/socialdeskapp/socialdesk/internal/models"
	"github.com/socialdeskapp/socialdesk/internal/observability"
)

var (
	// ErrRefundNotAllowed is returned when the order's payment status does
	// not permit a refund.
	ErrRefundNotAllowed = errors.New("order is not refundable")
	// ErrNoPaymentIntent is returned when a refund is requested for an order
	// with no recorded payment intent.
	ErrNoPaymentIntent = errors.New("order has no payment intent on file")
)

type orderStore interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, filter db.ListFilter) ([]*models.Order, error)
	ApplyTransition(ctx context.Context, orderID uuid.UUID, expected, next models.OrderStatus, actor models.Actor) (*models.Order, error)
	UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, payment models.PaymentStatus, actor models.Actor, description string) (*models.Order, error)
	UpdatePaymentIntent(ctx context.Context, orderID uuid.UUID, paymentIntentID string) error
}

// RefundProvider executes a refund with the payment processor and returns
// the processor's refund identifier.
type RefundProvider interface {
	Refund(ctx context.Context, paymentIntentID string) (string, error)
}

type OrderService struct {
	orders  orderStore
	refunds RefundProvider
	emails  email.Provider
	logger  *slog.Logger
}

func NewOrderService(orders orderStore, refunds RefundProvider, emails email.Provider, logger *slog.Logger) *OrderService {
	if emails == nil {
		emails = email.NoopProvider{}
	}

	return &OrderService{
		orders:  orders,
		refunds: refunds,
		emails:  emails,
		logger:  logger,
	}
}

func (s *OrderService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// OrderDetail is an order together with the capability flags and allowed
// transitions derived from its current state.
type OrderDetail struct {
	Order               *models.Order        `json:"order"`
	Capabilities        lifecycle.Actions    `json:"capabilities"`
	AllowedNextStatuses []models.OrderStatus `json:"allowedNextStatuses"`
}

func (s *OrderService) ListOrders(ctx context.Context, filter db.ListFilter) ([]*models.Order, error) {
	return s.orders.List(ctx, filter)
}

func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*OrderDetail, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return detailFor(order)
}

func detailFor(order *models.Order) (*OrderDetail, error) {
	actions, err := lifecycle.ActionsFor(order.OrderStatus, order.PaymentStatus)
	if err != nil {
		return nil, err
	}
	next, err := lifecycle.AllowedNextStatuses(order.OrderStatus)
	if err != nil {
		return nil, err
	}
	return &OrderDetail{
		Order:               order,
		Capabilities:        actions,
		AllowedNextStatuses: next,
	}, nil
}

type TransitionInput struct {
	OrderID        uuid.UUID
	NewStatus      models.OrderStatus
	ExpectedStatus models.OrderStatus
	Actor          models.Actor
}

// ApplyTransition moves an order to a new status. The caller supplies the
// status it believes the order is in; a concurrent change surfaces as a
// lifecycle.ConflictError rather than a silent overwrite.
func (s *OrderService) ApplyTransition(ctx context.Context, input TransitionInput) (*OrderDetail, error) {
	span := sentry.StartSpan(
		ctx,
		"service.order.apply_transition",
		sentry.WithOpName("service.order"),
		sentry.WithDescription("ApplyTransition"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	meter.SetAttributes(attribute.String("next_status", string(input.NewStatus)))
	recordFailure := func(reason string) {
		meter.Count("order.transition.failed", 1, sentry.WithAttributes(
			attribute.String("reason", reason),
		))
	}
	meter.Count("order.transition.requested", 1)

	order, err := s.orders.ApplyTransition(ctx, input.OrderID, input.ExpectedStatus, input.NewStatus, input.Actor)
	if err != nil {
		var conflict *lifecycle.ConflictError
		var illegal *lifecycle.IllegalTransitionError
		switch {
		case errors.As(err, &conflict):
			recordFailure("conflict")
		case errors.As(err, &illegal):
			recordFailure("illegal_transition")
		default:
			recordFailure("store_error")
		}
		return nil, err
	}

	meter.Count("order.transition.applied", 1)
	logger.Info("order transitioned",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"from", input.ExpectedStatus,
		"to", order.OrderStatus,
		"actor_type", input.Actor.Type,
	)

	s.notifyCustomer(ctx, order)

	return detailFor(order)
}

// notifyCustomer sends shipped/delivered emails. Failures are logged, never
// returned; the transition has already committed.
func (s *OrderService) notifyCustomer(ctx context.Context, order *models.Order) {
	if order.CustomerEmail == "" {
		return
	}

	info := buildOrderInfo(order)
	var err error
	switch order.OrderStatus {
	case models.StatusShipped:
		err = email.SendOrderShipped(ctx, s.emails, info)
	case models.StatusDelivered:
		err = email.SendOrderDelivered(ctx, s.emails, info)
	default:
		return
	}
	if err != nil {
		s.loggerFromContext(ctx).Warn("failed to send order notification",
			"error", err,
			"order_id", order.ID,
			"order_status", order.OrderStatus,
		)
	}
}

func (s *OrderService) UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, payment models.PaymentStatus, actor models.Actor) (*OrderDetail, error) {
	span := sentry.StartSpan(
		ctx,
		"service.order.update_payment_status",
		sentry.WithOpName("service.order"),
		sentry.WithDescription("UpdatePaymentStatus"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	order, err := s.orders.UpdatePaymentStatus(ctx, orderID, payment, actor, "")
	if err != nil {
		return nil, err
	}

	s.loggerFromContext(ctx).Info("payment status updated",
		"order_id", order.ID,
		"payment_status", order.PaymentStatus,
		"actor_type", actor.Type,
	)

	return detailFor(order)
}

// RefundOrder issues a refund with the payment processor and records the
// resulting PAID -> REFUNDED payment change on the order.
func (s *OrderService) RefundOrder(ctx context.Context, orderID uuid.UUID, actor models.Actor) (*OrderDetail, error) {
	span := sentry.StartSpan(
		ctx,
		"service.order.refund",
		sentry.WithOpName("service.order"),
		sentry.WithDescription("RefundOrder"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	recordFailure := func(reason string) {
		meter.Count("order.refund.failed", 1, sentry.WithAttributes(
			attribute.String("reason", reason),
		))
	}
	meter.Count("order.refund.requested", 1)

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		recordFailure("order_lookup_failed")
		return nil, err
	}

	actions, err := lifecycle.ActionsFor(order.OrderStatus, order.PaymentStatus)
	if err != nil {
		recordFailure("invalid_state")
		return nil, err
	}
	if !actions.CanRefund {
		recordFailure("not_refundable")
		return nil, fmt.Errorf("%w: payment status is %s", ErrRefundNotAllowed, order.PaymentStatus)
	}
	if order.PaymentIntentID == "" {
		recordFailure("no_payment_intent")
		return nil, ErrNoPaymentIntent
	}
	if s.refunds == nil {
		recordFailure("refunds_unconfigured")
		return nil, fmt.Errorf("refund provider is not configured")
	}

	refundID, err := s.refunds.Refund(ctx, order.PaymentIntentID)
	if err != nil {
		recordFailure("provider_error")
		return nil, fmt.Errorf("failed to refund order %s: %w", order.OrderNumber, err)
	}

	updated, err := s.orders.UpdatePaymentStatus(ctx, orderID, models.PaymentRefunded, actor,
		fmt.Sprintf("Refund %s issued", refundID))
	if err != nil {
		// The money moved but the record did not. Surface loudly.
		logger.Error("refund issued but payment status not recorded",
			"error", err,
			"order_id", orderID,
			"refund_id", refundID,
		)
		recordFailure("record_failed")
		return nil, fmt.Errorf("refund %s issued but order not updated: %w", refundID, err)
	}

	meter.Count("order.refund.completed", 1)
	logger.Info("order refunded",
		"order_id", updated.ID,
		"order_number", updated.OrderNumber,
		"refund_id", refundID,
	)

	return detailFor(updated)
}

// CreateOrder records a new order arriving from a channel. Status defaults
// to NEW and payment to UNPAID when the caller leaves them empty.
func (s *OrderService) CreateOrder(ctx context.Context, order *models.Order) (*OrderDetail, error) {
	if order.OrderStatus == "" {
		order.OrderStatus = models.StatusNew
	}
	if order.PaymentStatus == "" {
		order.PaymentStatus = models.PaymentUnpaid
	}
	if !order.OrderStatus.Valid() {
		return nil, lifecycle.NewInvalidStateError(string(order.OrderStatus))
	}
	if !order.PaymentStatus.Valid() {
		return nil, lifecycle.NewInvalidStateError(string(order.PaymentStatus))
	}
	if !order.Channel.Valid() {
		return nil, lifecycle.NewInvalidStateError(string(order.Channel))
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}

	s.loggerFromContext(ctx).Info("order created",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"channel", order.Channel,
	)

	return detailFor(order)
}

// MarkPaid records a successful payment reported by a channel, storing the
// payment intent for later refunds.
func (s *OrderService) MarkPaid(ctx context.Context, orderID uuid.UUID, paymentIntentID string, actor models.Actor) (*OrderDetail, error) {
	if paymentIntentID != "" {
		if err := s.orders.UpdatePaymentIntent(ctx, orderID, paymentIntentID); err != nil {
			return nil, err
		}
	}
	return s.UpdatePaymentStatus(ctx, orderID, models.PaymentPaid, actor)
}

// CancelOrder cancels on behalf of the customer. Orders already in a
// terminal state are left untouched.
func (s *OrderService) CancelOrder(ctx context.Context, orderID uuid.UUID, actor models.Actor) (*OrderDetail, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	terminal, err := lifecycle.IsTerminal(order.OrderStatus)
	if err != nil {
		return nil, err
	}
	if terminal {
		return detailFor(order)
	}
	return s.ApplyTransition(ctx, TransitionInput{
		OrderID:        orderID,
		NewStatus:      models.StatusCancelled,
		ExpectedStatus: order.OrderStatus,
		Actor:          actor,
	})
}

func buildOrderInfo(order *models.Order) *email.OrderInfo {
	items := make([]email.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, email.OrderItem{
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: formatMoney(item.UnitPrice, order.Currency),
			LineTotal: formatMoney(item.LineTotal, order.Currency),
		})
	}

	return &email.OrderInfo{
		OrderNumber:   order.OrderNumber,
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		Channel:       string(order.Channel),
		OrderDate:     order.CreatedAt.Format("January 2, 2006"),
		Items:         items,
		Total:         formatMoney(order.TotalAmount, order.Currency),
	}
}

func formatMoney(minor int64, currency string) string {
	return fmt.Sprintf("%s %d.%02d", currency, minor/100, minor%100)
}
