package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"

	"github.com/socialdeskapp/socialdesk/internal/models"
	"github.com/socialdeskapp/socialdesk/internal/observability"
	"github.com/socialdeskapp/socialdesk/internal/services"
)

// ChannelEventRouter dispatches verified channel webhook events to the
// order service.
type ChannelEventRouter struct {
	orderService *services.OrderService
	logger       *slog.Logger
}

func NewChannelEventRouter(orderService *services.OrderService, logger *slog.Logger) *ChannelEventRouter {
	return &ChannelEventRouter{
		orderService: orderService,
		logger:       logger,
	}
}

type channelEvent struct {
	EventID         string         `json:"eventId"`
	Type            string         `json:"type"`
	Channel         models.Channel `json:"channel"`
	OrderID         uuid.UUID      `json:"orderId"`
	PaymentIntentID string         `json:"paymentIntentId"`
	Order           *orderPayload  `json:"order"`
}

type orderPayload struct {
	CustomerID    uuid.UUID         `json:"customerId"`
	CustomerName  string            `json:"customerName"`
	CustomerEmail string            `json:"customerEmail"`
	Currency      string            `json:"currency"`
	TotalAmount   int64             `json:"totalAmount"`
	Items         []models.LineItem `json:"items"`
}

func (r *ChannelEventRouter) Handle(ctx context.Context, payload []byte) error {
	span := sentry.StartSpan(
		ctx,
		"handler.channel_router.handle",
		sentry.WithOpName("handler.channel_router"),
		sentry.WithDescription("ChannelEventRouter.Handle"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)
	meter.SetAttributes(attribute.String("webhook.provider", "channel"))
	meter.Count("webhook.router.received", 1)
	recordFailed := func(reason string) {
		meter.Count("webhook.router.failed", 1, sentry.WithAttributes(attribute.String("reason", reason)))
	}

	var event channelEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		recordFailed("parse_failed")
		span.Status = sentry.SpanStatusInvalidArgument
		return fmt.Errorf("failed to parse channel webhook: %w", err)
	}
	meter.SetAttributes(attribute.String("webhook.event_type", event.Type))

	actor := models.Actor{Type: models.ActorCustomer, Name: string(event.Channel)}

	switch event.Type {
	case "order.created":
		if event.Order == nil {
			recordFailed("missing_order")
			return fmt.Errorf("order.created event without order payload")
		}
		order := &models.Order{
			CustomerID:      event.Order.CustomerID,
			CustomerName:    event.Order.CustomerName,
			CustomerEmail:   event.Order.CustomerEmail,
			Channel:         event.Channel,
			Currency:        event.Order.Currency,
			TotalAmount:     event.Order.TotalAmount,
			PaymentIntentID: event.PaymentIntentID,
			Items:           event.Order.Items,
		}
		if _, err := r.orderService.CreateOrder(ctx, order); err != nil {
			recordFailed("create_failed")
			return fmt.Errorf("failed to create order from webhook: %w", err)
		}
		return nil

	case "payment.succeeded":
		if _, err := r.orderService.MarkPaid(ctx, event.OrderID, event.PaymentIntentID, actor); err != nil {
			recordFailed("mark_paid_failed")
			return fmt.Errorf("failed to record payment: %w", err)
		}
		return nil

	case "payment.refunded":
		if _, err := r.orderService.UpdatePaymentStatus(ctx, event.OrderID, models.PaymentRefunded, actor); err != nil {
			recordFailed("record_refund_failed")
			return fmt.Errorf("failed to record refund: %w", err)
		}
		return nil

	case "order.cancelled":
		if _, err := r.orderService.CancelOrder(ctx, event.OrderID, actor); err != nil {
			recordFailed("cancel_failed")
			return fmt.Errorf("failed to cancel order from webhook: %w", err)
		}
		return nil

	default:
		meter.Count("webhook.router.ignored", 1, sentry.WithAttributes(attribute.String("reason", "unhandled_event_type")))
		r.logger.Debug("ignoring channel event", "type", event.Type)
		return nil
	}
}
