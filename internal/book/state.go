// Package book holds the engine's single source of truth: its own resting
// orders and the latest tick. All mutation is serialized behind one lock so
// two transitions on the same order can never interleave.
package book

import (
	"errors"
	"fmt"
	"sync"

	"quoter_go/internal/domain"

	"github.com/shopspring/decimal"
)

var (
	// ErrSideOccupied is returned when a second live order would be
	// registered on a side that already has one.
	ErrSideOccupied = errors.New("side already has a live order")

	// ErrUnknownOrder is returned for a local id the book has never seen.
	ErrUnknownOrder = errors.New("unknown order")

	// ErrInvalidTransition is returned when an outcome would violate the
	// order status state machine. The order is left untouched.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Snapshot is an immutable point-in-time copy of the book.
type Snapshot struct {
	Orders  []domain.Order
	Tick    domain.Tick
	HasTick bool
}

// Book is the thread-safe store of this engine's orders and last tick.
type Book struct {
	mu       sync.RWMutex
	orders   map[string]*domain.Order
	live     map[domain.Side]string // localID of the live order per side
	lastTick domain.Tick
	hasTick  bool
}

// New creates an empty book.
func New() *Book {
	return &Book{
		orders: make(map[string]*domain.Order),
		live:   make(map[domain.Side]string),
	}
}

// RecordTick stores the tick if its timestamp is strictly newer than the
// stored one. Returns true if the tick was accepted.
func (b *Book) RecordTick(t domain.Tick) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.hasTick && !t.Timestamp.After(b.lastTick.Timestamp) {
		return false
	}
	b.lastTick = t
	b.hasTick = true
	return true
}

// LastTick returns the most recent accepted tick.
func (b *Book) LastTick() (domain.Tick, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastTick, b.hasTick
}

// Track registers a new Pending order. It enforces the one-live-order-per-side
// invariant: registration fails if the side already has a live order.
func (b *Book) Track(o domain.Order) error {
	if o.Status != domain.OrderStatusPending {
		return fmt.Errorf("track %s: only pending orders can be tracked, got %s", o.LocalID, o.Status)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if id, ok := b.live[o.Side]; ok {
		if cur, exists := b.orders[id]; exists && cur.IsLive() {
			return fmt.Errorf("track %s on %s: %w (live: %s)", o.LocalID, o.Side, ErrSideOccupied, id)
		}
	}

	cp := o
	b.orders[o.LocalID] = &cp
	b.live[o.Side] = o.LocalID
	return nil
}

// LiveOrder returns a copy of the live order on the given side, if any.
func (b *Book) LiveOrder(side domain.Side) (domain.Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	id, ok := b.live[side]
	if !ok {
		return domain.Order{}, false
	}
	o, exists := b.orders[id]
	if !exists || !o.IsLive() {
		return domain.Order{}, false
	}
	return *o, true
}

// LiveOrders returns copies of every live order, for the cancel sweep.
func (b *Book) LiveOrders() []domain.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []domain.Order
	for _, o := range b.orders {
		if o.IsLive() {
			out = append(out, *o)
		}
	}
	return out
}

// Order returns a copy of the order with the given local id.
func (b *Book) Order(localID string) (domain.Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	o, ok := b.orders[localID]
	if !ok {
		return domain.Order{}, false
	}
	return *o, true
}

// RequestCancel transitions a resting order to CancelRequested. This is a
// reconciler decision, not a venue outcome.
func (b *Book) RequestCancel(localID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[localID]
	if !ok {
		return fmt.Errorf("request cancel %s: %w", localID, ErrUnknownOrder)
	}
	switch o.Status {
	case domain.OrderStatusResting:
		o.Status = domain.OrderStatusCancelRequested
		return nil
	case domain.OrderStatusCancelRequested:
		return nil // idempotent
	default:
		return fmt.Errorf("request cancel %s in %s: %w", localID, o.Status, ErrInvalidTransition)
	}
}

// ApplyOutcome transitions an order's status from a confirmed execution
// outcome. Transitions that violate the state machine are a no-op plus error.
// Re-applying an outcome the order has already reached is a no-op success,
// which makes outcome application idempotent.
func (b *Book) ApplyOutcome(oc domain.Outcome) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[oc.LocalID]
	if !ok {
		return fmt.Errorf("apply %s to %s: %w", oc.Kind, oc.LocalID, ErrUnknownOrder)
	}

	switch oc.Kind {
	case domain.OutcomePlaced:
		if o.Status == domain.OrderStatusResting && o.VenueID == oc.VenueID {
			return nil
		}
		if o.Status != domain.OrderStatusPending {
			return transitionErr(o, oc)
		}
		o.Status = domain.OrderStatusResting
		o.VenueID = oc.VenueID

	case domain.OutcomeCancelled:
		if o.Status == domain.OrderStatusCancelled {
			return nil
		}
		if o.Status.IsTerminal() {
			return transitionErr(o, oc)
		}
		o.Status = domain.OrderStatusCancelled
		b.clearLive(o)

	case domain.OutcomeRejected, domain.OutcomeFailed:
		if oc.Op == domain.OpCancel {
			// The cancel never took: the order is still resting.
			if o.Status == domain.OrderStatusCancelRequested {
				o.Status = domain.OrderStatusResting
				return nil
			}
			if o.Status == domain.OrderStatusResting {
				return nil
			}
			return transitionErr(o, oc)
		}
		if o.Status == domain.OrderStatusRejected {
			return nil
		}
		if o.Status != domain.OrderStatusPending {
			return transitionErr(o, oc)
		}
		o.Status = domain.OrderStatusRejected
		b.clearLive(o)

	case domain.OutcomeUnknown:
		// No state change: ambiguity is resolved by an explicit
		// order-status query, never by guessing here.
		return nil

	default:
		return fmt.Errorf("apply to %s: unhandled outcome kind %d", oc.LocalID, oc.Kind)
	}

	return nil
}

// ApplyFill records a venue-side fill. remaining is the unfilled size left on
// the book; zero or less transitions the order to Filled, otherwise the order
// stays resting at the reduced size.
func (b *Book) ApplyFill(localID string, remaining decimal.Decimal) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[localID]
	if !ok {
		return fmt.Errorf("apply fill %s: %w", localID, ErrUnknownOrder)
	}
	if o.Status == domain.OrderStatusFilled {
		return nil
	}
	if !o.IsLive() {
		return fmt.Errorf("apply fill %s in %s: %w", localID, o.Status, ErrInvalidTransition)
	}

	if remaining.IsPositive() {
		o.Size = remaining
		if o.Status == domain.OrderStatusPending {
			o.Status = domain.OrderStatusResting
		}
		return nil
	}

	o.Size = decimal.Zero
	o.Status = domain.OrderStatusFilled
	b.clearLive(o)
	return nil
}

// Snapshot returns a point-in-time consistent copy of all orders and the
// last tick.
func (b *Book) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	orders := make([]domain.Order, 0, len(b.orders))
	for _, o := range b.orders {
		orders = append(orders, *o)
	}
	return Snapshot{Orders: orders, Tick: b.lastTick, HasTick: b.hasTick}
}

// clearLive drops the side pointer if it still refers to this order.
// Callers must hold the write lock.
func (b *Book) clearLive(o *domain.Order) {
	if id, ok := b.live[o.Side]; ok && id == o.LocalID {
		delete(b.live, o.Side)
	}
}

func transitionErr(o *domain.Order, oc domain.Outcome) error {
	return fmt.Errorf("apply %s/%s to %s in %s: %w", oc.Op, oc.Kind, o.LocalID, o.Status, ErrInvalidTransition)
}
