package lifecycle

import "github.com/socialdeskapp/socialdesk/internal/models"

// transitions maps each status to the statuses reachable by exactly one
// direct user action. DELIVERED and CANCELLED are terminal.
var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.StatusNew:        {models.StatusConfirmed, models.StatusCancelled},
	models.StatusPending:    {models.StatusConfirmed, models.StatusCancelled},
	models.StatusConfirmed:  {models.StatusShipped, models.StatusCancelled},
	models.StatusProcessing: {models.StatusShipped, models.StatusCancelled},
	models.StatusShipped:    {models.StatusDelivered},
	models.StatusDelivered:  {},
	models.StatusCancelled:  {},
}

// AllowedNextStatuses returns the set of statuses reachable from current by a
// single transition. The returned slice is a copy; callers may not mutate the
// table through it. Unknown statuses fail with InvalidStateError so schema
// drift is caught early instead of silently disabling every action.
func AllowedNextStatuses(current models.OrderStatus) ([]models.OrderStatus, error) {
	next, ok := transitions[current]
	if !ok {
		return nil, NewInvalidStateError(string(current))
	}
	out := make([]models.OrderStatus, len(next))
	copy(out, next)
	return out, nil
}

// CanTransition reports whether a single transition from one status to
// another is allowed. Unknown values on either side are InvalidStateError.
func CanTransition(from, to models.OrderStatus) (bool, error) {
	if !to.Valid() {
		return false, NewInvalidStateError(string(to))
	}
	next, err := AllowedNextStatuses(from)
	if err != nil {
		return false, err
	}
	for _, s := range next {
		if s == to {
			return true, nil
		}
	}
	return false, nil
}

// ValidateTransition returns IllegalTransitionError if the move is not in the
// allowed set for from.
func ValidateTransition(from, to models.OrderStatus) error {
	ok, err := CanTransition(from, to)
	if err != nil {
		return err
	}
	if !ok {
		return NewIllegalTransitionError(from, to)
	}
	return nil
}

// IsTerminal reports whether the status has no outgoing transitions.
func IsTerminal(status models.OrderStatus) (bool, error) {
	next, err := AllowedNextStatuses(status)
	if err != nil {
		return false, err
	}
	return len(next) == 0, nil
}

// ParseOrderStatus validates a raw status value at the deserialization
// boundary.
func ParseOrderStatus(value string) (models.OrderStatus, error) {
	status := models.OrderStatus(value)
	if !status.Valid() {
		return "", NewInvalidStateError(value)
	}
	return status, nil
}

// ParsePaymentStatus validates a raw payment status value.
func ParsePaymentStatus(value string) (models.PaymentStatus, error) {
	status := models.PaymentStatus(value)
	if !status.Valid() {
		return "", NewInvalidStateError(value)
	}
	return status, nil
}
