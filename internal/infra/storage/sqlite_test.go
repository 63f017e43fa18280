package storage

import (
	"path/filepath"
	"testing"
	"time"

	"quoter_go/internal/domain"

	"github.com/shopspring/decimal"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func event(localID string, status domain.OrderStatus) domain.OrderEvent {
	return domain.OrderEvent{
		LocalID: localID,
		VenueID: "venue-" + localID,
		Side:    domain.SideBid,
		Price:   decimal.RequireFromString("0.49"),
		Size:    decimal.NewFromInt(100),
		Status:  status,
		At:      time.Now(),
	}
}

func TestRecordAndQueryEvents(t *testing.T) {
	store := newTestStore(t)

	for _, status := range []domain.OrderStatus{
		domain.OrderStatusPending,
		domain.OrderStatusResting,
		domain.OrderStatusCancelled,
	} {
		if err := store.Record(event("o1", status)); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	events, err := store.EventsForOrder("o1")
	if err != nil {
		t.Fatalf("EventsForOrder: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len = %d, want 3", len(events))
	}
	if events[0].Status != string(domain.OrderStatusPending) {
		t.Errorf("first status = %s, want PENDING", events[0].Status)
	}
	if events[2].Status != string(domain.OrderStatusCancelled) {
		t.Errorf("last status = %s, want CANCELLED", events[2].Status)
	}
	if events[0].Price != "0.49" {
		t.Errorf("price = %s, want 0.49", events[0].Price)
	}
}

func TestRecordFillsMissingTimestamp(t *testing.T) {
	store := newTestStore(t)

	ev := event("o1", domain.OrderStatusPending)
	ev.At = time.Time{}
	if err := store.Record(ev); err != nil {
		t.Fatalf("Record: %v", err)
	}

	events, err := store.EventsForOrder("o1")
	if err != nil {
		t.Fatalf("EventsForOrder: %v", err)
	}
	if events[0].At.IsZero() {
		t.Error("timestamp was not defaulted")
	}
}

func TestRecentEvents(t *testing.T) {
	store := newTestStore(t)

	for i, id := range []string{"a", "b", "c"} {
		ev := event(id, domain.OrderStatusResting)
		ev.At = time.Now().Add(time.Duration(i) * time.Second)
		if err := store.Record(ev); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	events, err := store.RecentEvents(2)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].LocalID != "c" || events[1].LocalID != "b" {
		t.Errorf("order = %s,%s, want c,b", events[0].LocalID, events[1].LocalID)
	}
}

func TestUnconfirmedOrders(t *testing.T) {
	store := newTestStore(t)

	// o1 reaches a terminal state, o2 is left with a pending cancel,
	// o3 never got past pending.
	seq := []struct {
		localID string
		status  domain.OrderStatus
	}{
		{"o1", domain.OrderStatusPending},
		{"o1", domain.OrderStatusResting},
		{"o1", domain.OrderStatusFilled},
		{"o2", domain.OrderStatusPending},
		{"o2", domain.OrderStatusResting},
		{"o2", domain.OrderStatusCancelRequested},
		{"o3", domain.OrderStatusPending},
	}
	for _, s := range seq {
		if err := store.Record(event(s.localID, s.status)); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	ids, err := store.UnconfirmedOrders()
	if err != nil {
		t.Fatalf("UnconfirmedOrders: %v", err)
	}
	got := map[string]bool{}
	for _, id := range ids {
		got[id] = true
	}
	if got["o1"] {
		t.Error("o1 is terminal and must not be unconfirmed")
	}
	if !got["o2"] || !got["o3"] {
		t.Errorf("missing unconfirmed orders: got %v", ids)
	}
}

func TestPruneBefore(t *testing.T) {
	store := newTestStore(t)

	old := event("old", domain.OrderStatusCancelled)
	old.At = time.Now().Add(-48 * time.Hour)
	recent := event("recent", domain.OrderStatusResting)

	if err := store.Record(old); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := store.Record(recent); err != nil {
		t.Fatalf("Record: %v", err)
	}

	removed, err := store.PruneBefore(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("PruneBefore: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	events, _ := store.RecentEvents(10)
	if len(events) != 1 || events[0].LocalID != "recent" {
		t.Errorf("remaining events = %v", events)
	}
}
