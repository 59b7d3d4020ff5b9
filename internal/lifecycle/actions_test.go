package lifecycle

import (
	"errors"
	"testing"

	"github.com/socialdeskapp/socialdesk/internal/models"
)

func TestActionsFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  models.OrderStatus
		payment models.PaymentStatus
		want    Actions
	}{
		{
			name:    "new unpaid order",
			status:  models.StatusNew,
			payment: models.PaymentUnpaid,
			want:    Actions{CanConfirm: true, CanCancel: true},
		},
		{
			name:    "shipped order",
			status:  models.StatusShipped,
			payment: models.PaymentUnpaid,
			want:    Actions{CanDeliver: true},
		},
		{
			name:    "delivered paid order remains refundable",
			status:  models.StatusDelivered,
			payment: models.PaymentPaid,
			want:    Actions{CanRefund: true, IsTerminal: true},
		},
		{
			name:    "cancelled order",
			status:  models.StatusCancelled,
			payment: models.PaymentUnpaid,
			want:    Actions{IsTerminal: true},
		},
		{
			name:    "processing paid order",
			status:  models.StatusProcessing,
			payment: models.PaymentPaid,
			want:    Actions{CanShip: true, CanCancel: true, CanRefund: true},
		},
		{
			name:    "refunded order cannot be refunded again",
			status:  models.StatusDelivered,
			payment: models.PaymentRefunded,
			want:    Actions{IsTerminal: true},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ActionsFor(tc.status, tc.payment)
			if err != nil {
				t.Fatalf("ActionsFor(%s, %s) returned error: %v", tc.status, tc.payment, err)
			}
			if got != tc.want {
				t.Fatalf("ActionsFor(%s, %s) = %+v, want %+v", tc.status, tc.payment, got, tc.want)
			}
		})
	}
}

func TestRefundIndependence(t *testing.T) {
	t.Parallel()

	for _, status := range models.OrderStatuses() {
		paid, err := ActionsFor(status, models.PaymentPaid)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		unpaid, err := ActionsFor(status, models.PaymentUnpaid)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !paid.CanRefund {
			t.Fatalf("paid order with status %s must be refundable", status)
		}
		if unpaid.CanRefund {
			t.Fatalf("unpaid order with status %s must not be refundable", status)
		}

		// Toggling payment status flips CanRefund and nothing else.
		paid.CanRefund = false
		unpaid.CanRefund = false
		if paid != unpaid {
			t.Fatalf("payment status changed more than CanRefund for %s: %+v vs %+v", status, paid, unpaid)
		}
	}
}

func TestActionsForInvalidInputs(t *testing.T) {
	t.Parallel()

	var invalidErr *InvalidStateError

	_, err := ActionsFor(models.OrderStatus("DRAFT"), models.PaymentUnpaid)
	if !errors.As(err, &invalidErr) {
		t.Fatalf("expected InvalidStateError for unknown order status, got %v", err)
	}

	_, err = ActionsFor(models.StatusNew, models.PaymentStatus("DISPUTED"))
	if !errors.As(err, &invalidErr) {
		t.Fatalf("expected InvalidStateError for unknown payment status, got %v", err)
	}
}

func TestActionsForIsDeterministic(t *testing.T) {
	t.Parallel()

	first, err := ActionsFor(models.StatusConfirmed, models.PaymentPaid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := ActionsFor(models.StatusConfirmed, models.PaymentPaid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatalf("repeated evaluation differs: %+v vs %+v", first, second)
	}
}
