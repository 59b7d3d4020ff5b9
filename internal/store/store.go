// Package store holds the in-memory order collection backing a single
// operator view. It is an explicit, injectable container: callers construct
// and own an instance, nothing is package-global.
package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/socialdeskapp/socialdesk/internal/lifecycle"
	"github.com/socialdeskapp/socialdesk/internal/models"
)

var ErrOrderNotFound = errors.New("order not found in view")

// Store keeps one entry per order. Each entry carries its own lock so
// transition attempts on the same order are serialized while different
// orders proceed independently. Transitions are validated against the
// confirmed (server-acknowledged) status, never against staged local state.
type Store struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*entry
	now     func() time.Time
}

type entry struct {
	mu        sync.Mutex
	confirmed models.Order
	// staged is a locally applied, not yet server-confirmed next status.
	// At most one transition may be in flight per order.
	staged *models.OrderStatus
}

func New() *Store {
	return &Store{
		entries: make(map[uuid.UUID]*entry),
		now:     time.Now,
	}
}

// Load replaces the view contents with the given orders, dropping any staged
// transitions. Used when a fresh page of orders arrives from the backend.
func (s *Store) Load(orders []models.Order) {
	next := make(map[uuid.UUID]*entry, len(orders))
	for _, order := range orders {
		next[order.ID] = &entry{confirmed: cloneOrder(order)}
	}

	s.mu.Lock()
	s.entries = next
	s.mu.Unlock()
}

// Put inserts or replaces a single order with server-confirmed state.
func (s *Store) Put(order models.Order) {
	s.mu.Lock()
	s.entries[order.ID] = &entry{confirmed: cloneOrder(order)}
	s.mu.Unlock()
}

// Get returns a copy of the confirmed order state.
func (s *Store) Get(orderID uuid.UUID) (models.Order, error) {
	e, err := s.entry(orderID)
	if err != nil {
		return models.Order{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneOrder(e.confirmed), nil
}

// List returns copies of all confirmed orders, newest first.
func (s *Store) List() []models.Order {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	orders := make([]models.Order, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		orders = append(orders, cloneOrder(e.confirmed))
		e.mu.Unlock()
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders
}

// Actions derives the capability flags and allowed next statuses for an
// order from its confirmed state.
func (s *Store) Actions(orderID uuid.UUID) (lifecycle.Actions, []models.OrderStatus, error) {
	e, err := s.entry(orderID)
	if err != nil {
		return lifecycle.Actions{}, nil, err
	}

	e.mu.Lock()
	status, payment := e.confirmed.OrderStatus, e.confirmed.PaymentStatus
	e.mu.Unlock()

	actions, err := lifecycle.ActionsFor(status, payment)
	if err != nil {
		return lifecycle.Actions{}, nil, err
	}
	next, err := lifecycle.AllowedNextStatuses(status)
	if err != nil {
		return lifecycle.Actions{}, nil, err
	}
	return actions, next, nil
}

// ApplyTransition applies a server-confirmed transition: it validates the
// move against the confirmed status, then commits the status change, the
// lastUpdatedAt bump, and exactly one timeline event as a unit. A staged
// transition for the same target is considered reconciled and cleared.
func (s *Store) ApplyTransition(orderID uuid.UUID, next models.OrderStatus, actor models.Actor) (models.Order, error) {
	e, err := s.entry(orderID)
	if err != nil {
		return models.Order{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return s.applyTransitionLocked(e, orderID, next, actor)
}

// applyTransitionLocked is the shared commit body. The caller holds e.mu.
func (s *Store) applyTransitionLocked(e *entry, orderID uuid.UUID, next models.OrderStatus, actor models.Actor) (models.Order, error) {
	if err := lifecycle.ValidateTransition(e.confirmed.OrderStatus, next); err != nil {
		return models.Order{}, err
	}

	now := s.now()
	from := e.confirmed.OrderStatus
	e.confirmed.OrderStatus = next
	e.confirmed.LastUpdatedAt = now
	e.confirmed.Timeline = appendEvent(e.confirmed.Timeline, models.TimelineEvent{
		ID:          uuid.New(),
		OrderID:     orderID,
		Type:        models.EventStatusChanged,
		Description: "order status changed from " + string(from) + " to " + string(next),
		ActorType:   actor.Type,
		ActorID:     actor.ID,
		ActorName:   actor.Name,
		CreatedAt:   now,
	})
	if e.staged != nil && *e.staged == next {
		e.staged = nil
	}
	return cloneOrder(e.confirmed), nil
}

// UpdatePaymentStatus sets the payment status unconditionally. No transition
// table governs the payment axis; any value may follow any other. The change
// still appends exactly one timeline event.
func (s *Store) UpdatePaymentStatus(orderID uuid.UUID, payment models.PaymentStatus, actor models.Actor) (models.Order, error) {
	if !payment.Valid() {
		return models.Order{}, lifecycle.NewInvalidStateError(string(payment))
	}

	e, err := s.entry(orderID)
	if err != nil {
		return models.Order{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := s.now()
	from := e.confirmed.PaymentStatus
	e.confirmed.PaymentStatus = payment
	e.confirmed.LastUpdatedAt = now
	e.confirmed.Timeline = appendEvent(e.confirmed.Timeline, models.TimelineEvent{
		ID:          uuid.New(),
		OrderID:     orderID,
		Type:        models.EventPaymentStatusChanged,
		Description: "payment status changed from " + string(from) + " to " + string(payment),
		ActorType:   actor.Type,
		ActorID:     actor.ID,
		ActorName:   actor.Name,
		CreatedAt:   now,
	})
	return cloneOrder(e.confirmed), nil
}

// Stage records an optimistic, unconfirmed transition. The move is validated
// against the confirmed status, and only one transition may be staged per
// order: a second attempt while one is in flight fails with ConflictError.
func (s *Store) Stage(orderID uuid.UUID, next models.OrderStatus) error {
	e, err := s.entry(orderID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.staged != nil {
		return lifecycle.NewConflictError(orderID, e.confirmed.OrderStatus, *e.staged)
	}
	if err := lifecycle.ValidateTransition(e.confirmed.OrderStatus, next); err != nil {
		return err
	}
	staged := next
	e.staged = &staged
	return nil
}

// Staged returns the pending transition target, if any.
func (s *Store) Staged(orderID uuid.UUID) (models.OrderStatus, bool, error) {
	e, err := s.entry(orderID)
	if err != nil {
		return "", false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.staged == nil {
		return "", false, nil
	}
	return *e.staged, true, nil
}

// Commit finalizes the staged transition after server acknowledgement. The
// staged pointer is read and applied under one hold of the entry lock, so a
// concurrent Rollback either lands before the commit and cancels it, or
// after and is a no-op.
func (s *Store) Commit(orderID uuid.UUID, actor models.Actor) (models.Order, error) {
	e, err := s.entry(orderID)
	if err != nil {
		return models.Order{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.staged == nil {
		return models.Order{}, ErrNothingStaged
	}
	return s.applyTransitionLocked(e, orderID, *e.staged, actor)
}

// Rollback discards the staged transition, restoring the view to the
// confirmed state. Confirmed fields are untouched; staging never mutated them.
func (s *Store) Rollback(orderID uuid.UUID) error {
	e, err := s.entry(orderID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.staged = nil
	e.mu.Unlock()
	return nil
}

var ErrNothingStaged = errors.New("no staged transition to commit")

func (s *Store) entry(orderID uuid.UUID) (*entry, error) {
	s.mu.RLock()
	e, ok := s.entries[orderID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrOrderNotFound
	}
	return e, nil
}

// appendEvent copies before appending so previously returned timelines are
// never mutated.
func appendEvent(timeline []models.TimelineEvent, event models.TimelineEvent) []models.TimelineEvent {
	next := make([]models.TimelineEvent, len(timeline), len(timeline)+1)
	copy(next, timeline)
	return append(next, event)
}

func cloneOrder(order models.Order) models.Order {
	clone := order
	if order.Items != nil {
		clone.Items = make([]models.LineItem, len(order.Items))
		copy(clone.Items, order.Items)
	}
	if order.Timeline != nil {
		clone.Timeline = make([]models.TimelineEvent, len(order.Timeline))
		copy(clone.Timeline, order.Timeline)
	}
	return clone
}
