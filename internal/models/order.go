package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the lifecycle stage of an order. It is the sole authority
// for lifecycle position; every change goes through the transition table.
type OrderStatus string

const (
	StatusNew        OrderStatus = "NEW"
	StatusPending    OrderStatus = "PENDING"
	StatusConfirmed  OrderStatus = "CONFIRMED"
	StatusProcessing OrderStatus = "PROCESSING"
	StatusShipped    OrderStatus = "SHIPPED"
	StatusDelivered  OrderStatus = "DELIVERED"
	StatusCancelled  OrderStatus = "CANCELLED"
)

// OrderStatuses lists every recognized order status.
func OrderStatuses() []OrderStatus {
	return []OrderStatus{
		StatusNew,
		StatusPending,
		StatusConfirmed,
		StatusProcessing,
		StatusShipped,
		StatusDelivered,
		StatusCancelled,
	}
}

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusNew, StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	default:
		return false
	}
}

// PaymentStatus tracks whether money has been collected or returned for an
// order. It is an independent axis from OrderStatus.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "UNPAID"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentUnpaid, PaymentPaid, PaymentRefunded:
		return true
	default:
		return false
	}
}

// Channel identifies the messaging surface the order originated from.
type Channel string

const (
	ChannelInstagram Channel = "INSTAGRAM"
	ChannelWhatsApp  Channel = "WHATSAPP"
	ChannelMessenger Channel = "MESSENGER"
)

func Channels() []Channel {
	return []Channel{ChannelInstagram, ChannelWhatsApp, ChannelMessenger}
}

func (c Channel) Valid() bool {
	switch c {
	case ChannelInstagram, ChannelWhatsApp, ChannelMessenger:
		return true
	default:
		return false
	}
}

type Order struct {
	ID              uuid.UUID       `json:"id"`
	OrderNumber     string          `json:"orderNumber"`
	CustomerID      uuid.UUID       `json:"customerId"`
	CustomerName    string          `json:"customerName"`
	CustomerEmail   string          `json:"customerEmail,omitempty"`
	Channel         Channel         `json:"channel"`
	OrderStatus     OrderStatus     `json:"orderStatus"`
	PaymentStatus   PaymentStatus   `json:"paymentStatus"`
	Currency        string          `json:"currency"`
	TotalAmount     int64           `json:"totalAmount"`
	PaymentIntentID string          `json:"-"`
	AssigneeID      uuid.UUID       `json:"assigneeId,omitempty"`
	AssigneeName    string          `json:"assigneeName,omitempty"`
	Items           []LineItem      `json:"items"`
	Timeline        []TimelineEvent `json:"timeline"`
	CreatedAt       time.Time       `json:"createdAt"`
	LastUpdatedAt   time.Time       `json:"lastUpdatedAt"`
}

// LineItem is informational only; it does not participate in the state machine.
// Amounts are in the currency's minor unit.
type LineItem struct {
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
	LineTotal int64  `json:"lineTotal"`
}

// EventType classifies timeline events.
type EventType string

const (
	EventOrderCreated         EventType = "ORDER_CREATED"
	EventStatusChanged        EventType = "STATUS_CHANGED"
	EventPaymentStatusChanged EventType = "PAYMENT_STATUS_CHANGED"
)

// ActorType identifies who caused a timeline event.
type ActorType string

const (
	ActorOperator ActorType = "OPERATOR"
	ActorSystem   ActorType = "SYSTEM"
	ActorCustomer ActorType = "CUSTOMER"
)

// Actor is the identity recorded on timeline events.
type Actor struct {
	Type ActorType `json:"actorType"`
	ID   uuid.UUID `json:"actorId,omitempty"`
	Name string    `json:"actorName,omitempty"`
}

// SystemActor is the actor recorded for changes not attributable to a person,
// such as webhook-driven payment updates.
func SystemActor() Actor {
	return Actor{Type: ActorSystem, Name: "system"}
}

// TimelineEvent is an immutable record of a change made to an order. The
// timeline is append-only and never reordered.
type TimelineEvent struct {
	ID          uuid.UUID `json:"id"`
	OrderID     uuid.UUID `json:"orderId"`
	Type        EventType `json:"type"`
	Description string    `json:"description"`
	ActorType   ActorType `json:"actorType"`
	ActorID     uuid.UUID `json:"actorId,omitempty"`
	ActorName   string    `json:"actorName,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}
