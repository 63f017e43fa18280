package domain

import "context"

// TradingClient is the blocking request/response trading API boundary.
// Authentication and request signing live entirely behind it.
type TradingClient interface {
	// PlaceOrder submits a new order and returns the venue-assigned id.
	PlaceOrder(ctx context.Context, order Order) (venueID string, err error)
	// CancelOrder cancels a resting order by its venue id.
	CancelOrder(ctx context.Context, venueID string) error
	// GetOpenOrders lists this account's resting orders on the instrument.
	GetOpenOrders(ctx context.Context) ([]Order, error)
}

// AccountClient exposes the account balance collaborator.
type AccountClient interface {
	GetBalances(ctx context.Context) (Balances, error)
}

// AuditSink receives order lifecycle events for durable audit logging.
type AuditSink interface {
	Record(ev OrderEvent) error
}
