package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies which half of the book a quote sits on.
type Side string

const (
	SideBid Side = "BID"
	SideAsk Side = "ASK"
)

// OrderStatus tracks an order through its lifecycle.
// Terminal states are Cancelled, Filled and Rejected.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusResting         OrderStatus = "RESTING"
	OrderStatusCancelRequested OrderStatus = "CANCEL_REQUESTED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
)

// IsTerminal reports whether no further transitions are possible.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusFilled || s == OrderStatusRejected
}

// Order is one of this engine's own quotes, identified locally by LocalID.
// VenueID is empty until the venue acknowledges the placement.
type Order struct {
	LocalID   string
	VenueID   string
	Side      Side
	Price     decimal.Decimal
	Size      decimal.Decimal
	Status    OrderStatus
	CreatedAt time.Time
}

// IsLive reports whether the order may still be resting venue-side.
// CancelRequested counts as live: the cancel has not been confirmed yet.
func (o *Order) IsLive() bool {
	switch o.Status {
	case OrderStatusPending, OrderStatusResting, OrderStatusCancelRequested:
		return true
	}
	return false
}

// Age returns how long the order has existed.
func (o *Order) Age(now time.Time) time.Duration {
	return now.Sub(o.CreatedAt)
}

// OrderEvent is one audit-log entry describing an order state transition.
type OrderEvent struct {
	LocalID string
	VenueID string
	Side    Side
	Price   decimal.Decimal
	Size    decimal.Decimal
	Status  OrderStatus
	Note    string
	At      time.Time
}
