package lifecycle

import "github.com/socialdeskapp/socialdesk/internal/models"

// Actions are the boolean capabilities the presentation layer reads to
// enable or disable operator controls. They are derived entirely from the
// two status fields; recomputing for the same inputs yields the same result.
type Actions struct {
	CanConfirm bool `json:"canConfirm"`
	CanShip    bool `json:"canShip"`
	CanDeliver bool `json:"canDeliver"`
	CanCancel  bool `json:"canCancel"`
	CanRefund  bool `json:"canRefund"`
	IsTerminal bool `json:"isTerminal"`
}

// ActionsFor derives the capability flags for an order. CanRefund depends
// only on the payment status: a paid order may be refunded even after
// delivery.
func ActionsFor(status models.OrderStatus, payment models.PaymentStatus) (Actions, error) {
	if !payment.Valid() {
		return Actions{}, NewInvalidStateError(string(payment))
	}
	next, err := AllowedNextStatuses(status)
	if err != nil {
		return Actions{}, err
	}

	actions := Actions{
		CanRefund:  payment == models.PaymentPaid,
		IsTerminal: len(next) == 0,
	}
	for _, s := range next {
		switch s {
		case models.StatusConfirmed:
			actions.CanConfirm = true
		case models.StatusShipped:
			actions.CanShip = true
		case models.StatusDelivered:
			actions.CanDeliver = true
		case models.StatusCancelled:
			actions.CanCancel = true
		}
	}
	return actions, nil
}
