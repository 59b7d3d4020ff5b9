package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/socialdeskapp/socialdesk/internal/lifecycle"
	"github.com/socialdeskapp/socialdesk/internal/models"
)

// OrderStore is the authoritative order state. Status transitions are
// guarded compare-and-swap updates: the UPDATE only matches when the row
// still carries the status the caller evaluated the action gate against, so
// concurrent operators cannot double-apply a transition.
type OrderStore struct {
	pool *pgxpool.Pool
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderColumns = `id, order_number, customer_id, customer_name, customer_email,
	channel, order_status, payment_status, currency, total_amount,
	payment_intent_id, assignee_id, assignee_name, items, created_at, last_updated_at`

func (s *OrderStore) Create(ctx context.Context, order *models.Order) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to encode line items: %w", err)
	}
	if !order.Channel.Valid() {
		return lifecycle.NewInvalidStateError(string(order.Channel))
	}
	if order.OrderStatus == "" {
		order.OrderStatus = models.StatusNew
	}
	if order.PaymentStatus == "" {
		order.PaymentStatus = models.PaymentUnpaid
	}
	if !order.OrderStatus.Valid() {
		return lifecycle.NewInvalidStateError(string(order.OrderStatus))
	}
	if !order.PaymentStatus.Valid() {
		return lifecycle.NewInvalidStateError(string(order.PaymentStatus))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	row := tx.QueryRow(ctx, `
		INSERT INTO orders (customer_id, customer_name, customer_email, channel,
			order_status, payment_status, currency, total_amount,
			payment_intent_id, assignee_id, assignee_name, items)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, order_number, created_at, last_updated_at`,
		order.CustomerID,
		order.CustomerName,
		textOrNull(order.CustomerEmail),
		string(order.Channel),
		string(order.OrderStatus),
		string(order.PaymentStatus),
		order.Currency,
		order.TotalAmount,
		textOrNull(order.PaymentIntentID),
		uuidOrNull(order.AssigneeID),
		textOrNull(order.AssigneeName),
		itemsJSON,
	)
	var createdAt, lastUpdatedAt pgtype.Timestamptz
	if err := row.Scan(&order.ID, &order.OrderNumber, &createdAt, &lastUpdatedAt); err != nil {
		return err
	}
	order.CreatedAt = createdAt.Time
	order.LastUpdatedAt = lastUpdatedAt.Time

	if err := insertEvent(ctx, tx, order.ID, models.TimelineEvent{
		Type:        models.EventOrderCreated,
		Description: "order created via " + string(order.Channel),
		ActorType:   models.ActorSystem,
		ActorName:   "system",
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *OrderStore) GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	order, err := scanOrder(row)
	if err != nil {
		return nil, err
	}

	timeline, err := s.loadTimeline(ctx, orderID)
	if err != nil {
		return nil, err
	}
	order.Timeline = timeline
	return order, nil
}

// ListFilter narrows List results. Zero values mean "no filter".
type ListFilter struct {
	Status  models.OrderStatus
	Channel models.Channel
	Limit   int
}

// List returns order headers newest first. Timelines are not loaded for
// lists; fetch the order detail for the full history.
func (s *OrderStore) List(ctx context.Context, filter ListFilter) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	args := make([]any, 0, 3)

	if filter.Status != "" {
		if !filter.Status.Valid() {
			return nil, lifecycle.NewInvalidStateError(string(filter.Status))
		}
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" WHERE order_status = $%d", len(args))
	}
	if filter.Channel != "" {
		if !filter.Channel.Valid() {
			return nil, lifecycle.NewInvalidStateError(string(filter.Channel))
		}
		args = append(args, string(filter.Channel))
		if len(args) == 1 {
			query += fmt.Sprintf(" WHERE channel = $%d", len(args))
		} else {
			query += fmt.Sprintf(" AND channel = $%d", len(args))
		}
	}
	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// ApplyTransition moves an order from expected to next. The caller passes the
// status it evaluated the action gate against; if the row no longer matches,
// the order changed concurrently and the caller gets ConflictError rather
// than a silent last-write-wins. The status change, the last_updated_at bump
// and the timeline append commit atomically or not at all.
func (s *OrderStore) ApplyTransition(ctx context.Context, orderID uuid.UUID, expected, next models.OrderStatus, actor models.Actor) (*models.Order, error) {
	if err := lifecycle.ValidateTransition(expected, next); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	cmdTag, err := tx.Exec(ctx, `
		UPDATE orders
		SET order_status = $1, last_updated_at = now()
		WHERE id = $2 AND order_status = $3`,
		string(next), orderID, string(expected),
	)
	if err != nil {
		return nil, err
	}
	if cmdTag.RowsAffected() == 0 {
		var actual string
		if scanErr := tx.QueryRow(ctx, `SELECT order_status FROM orders WHERE id = $1`, orderID).Scan(&actual); scanErr != nil {
			return nil, scanErr
		}
		return nil, lifecycle.NewConflictError(orderID, expected, models.OrderStatus(actual))
	}

	if err := insertEvent(ctx, tx, orderID, models.TimelineEvent{
		Type:        models.EventStatusChanged,
		Description: "order status changed from " + string(expected) + " to " + string(next),
		ActorType:   actor.Type,
		ActorID:     actor.ID,
		ActorName:   actor.Name,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, orderID)
}

// UpdatePaymentStatus sets the payment status without a transition guard: no
// table governs the payment axis, any value may follow any other. The update
// and its timeline event still commit atomically.
func (s *OrderStore) UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, payment models.PaymentStatus, actor models.Actor, description string) (*models.Order, error) {
	if !payment.Valid() {
		return nil, lifecycle.NewInvalidStateError(string(payment))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var previous string
	if err := tx.QueryRow(ctx, `SELECT payment_status FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&previous); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE orders
		SET payment_status = $1, last_updated_at = now()
		WHERE id = $2`,
		string(payment), orderID,
	); err != nil {
		return nil, err
	}

	if description == "" {
		description = "payment status changed from " + previous + " to " + string(payment)
	}
	if err := insertEvent(ctx, tx, orderID, models.TimelineEvent{
		Type:        models.EventPaymentStatusChanged,
		Description: description,
		ActorType:   actor.Type,
		ActorID:     actor.ID,
		ActorName:   actor.Name,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, orderID)
}

// UpdatePaymentIntent records the payment provider reference used for refunds.
func (s *OrderStore) UpdatePaymentIntent(ctx context.Context, orderID uuid.UUID, paymentIntentID string) error {
	cmdTag, err := s.pool.Exec(ctx,
		`UPDATE orders SET payment_intent_id = $1 WHERE id = $2`,
		paymentIntentID, orderID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *OrderStore) loadTimeline(ctx context.Context, orderID uuid.UUID) ([]models.TimelineEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, event_type, description, actor_type, actor_id, actor_name, created_at
		FROM order_events
		WHERE order_id = $1
		ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var timeline []models.TimelineEvent
	for rows.Next() {
		var event models.TimelineEvent
		var eventType, actorType string
		var actorID pgtype.UUID
		var actorName pgtype.Text
		var createdAt pgtype.Timestamptz
		if err := rows.Scan(&event.ID, &event.OrderID, &eventType, &event.Description, &actorType, &actorID, &actorName, &createdAt); err != nil {
			return nil, err
		}
		event.Type = models.EventType(eventType)
		event.ActorType = models.ActorType(actorType)
		if actorID.Valid {
			event.ActorID = actorID.Bytes
		}
		if actorName.Valid {
			event.ActorName = actorName.String
		}
		event.CreatedAt = createdAt.Time
		timeline = append(timeline, event)
	}
	return timeline, rows.Err()
}

func insertEvent(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, event models.TimelineEvent) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO order_events (order_id, event_type, description, actor_type, actor_id, actor_name)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		orderID,
		string(event.Type),
		event.Description,
		string(event.ActorType),
		uuidOrNull(event.ActorID),
		textOrNull(event.ActorName),
	)
	if err != nil {
		return fmt.Errorf("failed to append timeline event: %w", err)
	}
	return nil
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var order models.Order
	var customerEmail, paymentIntentID, assigneeName pgtype.Text
	var channel, orderStatus, paymentStatus string
	var assigneeID pgtype.UUID
	var itemsJSON []byte
	var createdAt, lastUpdatedAt pgtype.Timestamptz

	if err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.CustomerID,
		&order.CustomerName,
		&customerEmail,
		&channel,
		&orderStatus,
		&paymentStatus,
		&order.Currency,
		&order.TotalAmount,
		&paymentIntentID,
		&assigneeID,
		&assigneeName,
		&itemsJSON,
		&createdAt,
		&lastUpdatedAt,
	); err != nil {
		return nil, err
	}

	// Reject values outside the taxonomy instead of passing them through;
	// the surrounding schema drifted if this fires.
	parsedStatus, err := lifecycle.ParseOrderStatus(orderStatus)
	if err != nil {
		return nil, err
	}
	parsedPayment, err := lifecycle.ParsePaymentStatus(paymentStatus)
	if err != nil {
		return nil, err
	}
	order.OrderStatus = parsedStatus
	order.PaymentStatus = parsedPayment
	order.Channel = models.Channel(channel)
	if !order.Channel.Valid() {
		return nil, lifecycle.NewInvalidStateError(channel)
	}

	if customerEmail.Valid {
		order.CustomerEmail = customerEmail.String
	}
	if paymentIntentID.Valid {
		order.PaymentIntentID = paymentIntentID.String
	}
	if assigneeID.Valid {
		order.AssigneeID = assigneeID.Bytes
	}
	if assigneeName.Valid {
		order.AssigneeName = assigneeName.String
	}
	order.CreatedAt = createdAt.Time
	order.LastUpdatedAt = lastUpdatedAt.Time

	if itemsJSON != nil {
		if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
			return nil, fmt.Errorf("failed to decode line items: %w", err)
		}
	}

	return &order, nil
}

func textOrNull(value string) pgtype.Text {
	return pgtype.Text{String: value, Valid: value != ""}
}

func uuidOrNull(value uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: value, Valid: value != uuid.Nil}
}
