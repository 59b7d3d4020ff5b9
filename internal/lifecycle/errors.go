// Package lifecycle implements the order lifecycle rules: the status
// transition table and the derived action capabilities. Everything here is
// pure and safe for concurrent use.
package lifecycle

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/socialdeskapp/socialdesk/internal/models"
)

// InvalidStateError reports a status value outside the known taxonomy. It
// indicates a schema mismatch with the backend and is never recoverable
// locally; callers must surface it rather than swallow it.
type InvalidStateError struct {
	Value string
}

func NewInvalidStateError(value string) *InvalidStateError {
	return &InvalidStateError{Value: value}
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("unrecognized status value %q", e.Value)
}

// IllegalTransitionError reports a requested move that the transition table
// does not allow from the current status. Callers recover by re-reading
// current state and re-deriving the allowed actions.
type IllegalTransitionError struct {
	From models.OrderStatus
	To   models.OrderStatus
}

func NewIllegalTransitionError(from, to models.OrderStatus) *IllegalTransitionError {
	return &IllegalTransitionError{From: from, To: to}
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal order status transition %s -> %s", e.From, e.To)
}

// ConflictError reports that the order's status changed since the caller last
// evaluated the action gate. Callers must refetch and re-decide, not resubmit.
type ConflictError struct {
	OrderID  uuid.UUID
	Expected models.OrderStatus
	Actual   models.OrderStatus
}

func NewConflictError(orderID uuid.UUID, expected, actual models.OrderStatus) *ConflictError {
	return &ConflictError{OrderID: orderID, Expected: expected, Actual: actual}
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("order %s changed concurrently: expected status %s, found %s", e.OrderID, e.Expected, e.Actual)
}
