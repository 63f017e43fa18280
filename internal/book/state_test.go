package book

import (
	"errors"
	"testing"
	"time"

	"quoter_go/internal/domain"

	"github.com/shopspring/decimal"
)

func mkTick(bid, ask string, ts time.Time) domain.Tick {
	return domain.NewTick(decimal.RequireFromString(bid), decimal.RequireFromString(ask), ts)
}

func mkOrder(id string, side domain.Side) domain.Order {
	return domain.Order{
		LocalID:   id,
		Side:      side,
		Price:     decimal.RequireFromString("0.49"),
		Size:      decimal.RequireFromString("100"),
		Status:    domain.OrderStatusPending,
		CreatedAt: time.Now(),
	}
}

func TestBook_RecordTick_Monotonic(t *testing.T) {
	b := New()
	base := time.Now()

	if !b.RecordTick(mkTick("0.48", "0.52", base)) {
		t.Fatal("first tick should be accepted")
	}
	if b.RecordTick(mkTick("0.40", "0.60", base)) {
		t.Error("tick with equal timestamp should be discarded")
	}
	if b.RecordTick(mkTick("0.40", "0.60", base.Add(-time.Second))) {
		t.Error("older tick should be discarded")
	}
	if !b.RecordTick(mkTick("0.47", "0.53", base.Add(time.Second))) {
		t.Error("newer tick should be accepted")
	}

	last, ok := b.LastTick()
	if !ok {
		t.Fatal("book should have a tick")
	}
	if !last.Bid.Equal(decimal.RequireFromString("0.47")) {
		t.Errorf("expected newest tick stored, got bid %s", last.Bid)
	}
}

func TestBook_Track_EnforcesOneLivePerSide(t *testing.T) {
	b := New()

	if err := b.Track(mkOrder("bid-1", domain.SideBid)); err != nil {
		t.Fatalf("first track failed: %v", err)
	}
	err := b.Track(mkOrder("bid-2", domain.SideBid))
	if !errors.Is(err, ErrSideOccupied) {
		t.Fatalf("expected ErrSideOccupied, got %v", err)
	}

	// The other side is independent.
	if err := b.Track(mkOrder("ask-1", domain.SideAsk)); err != nil {
		t.Fatalf("ask track failed: %v", err)
	}

	// After the bid reaches a terminal state the side frees up.
	if err := b.ApplyOutcome(domain.Outcome{LocalID: "bid-1", Op: domain.OpPlace, Kind: domain.OutcomeRejected}); err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if err := b.Track(mkOrder("bid-3", domain.SideBid)); err != nil {
		t.Fatalf("track after terminal should succeed: %v", err)
	}
}

func TestBook_ApplyOutcome_Lifecycle(t *testing.T) {
	b := New()
	if err := b.Track(mkOrder("o-1", domain.SideBid)); err != nil {
		t.Fatal(err)
	}

	placed := domain.Outcome{LocalID: "o-1", Op: domain.OpPlace, Kind: domain.OutcomePlaced, VenueID: "v-99"}
	if err := b.ApplyOutcome(placed); err != nil {
		t.Fatalf("place ack failed: %v", err)
	}
	o, _ := b.Order("o-1")
	if o.Status != domain.OrderStatusResting || o.VenueID != "v-99" {
		t.Fatalf("expected resting with venue id, got %s/%s", o.Status, o.VenueID)
	}

	if err := b.RequestCancel("o-1"); err != nil {
		t.Fatalf("request cancel failed: %v", err)
	}
	cancelled := domain.Outcome{LocalID: "o-1", Op: domain.OpCancel, Kind: domain.OutcomeCancelled}
	if err := b.ApplyOutcome(cancelled); err != nil {
		t.Fatalf("cancel ack failed: %v", err)
	}
	o, _ = b.Order("o-1")
	if o.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", o.Status)
	}

	// Confirming a cancel on an already-terminal order must be rejected
	// once the terminal state differs.
	if err := b.ApplyOutcome(domain.Outcome{LocalID: "o-1", Op: domain.OpPlace, Kind: domain.OutcomePlaced, VenueID: "v-99"}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestBook_ApplyOutcome_Idempotent(t *testing.T) {
	b := New()
	if err := b.Track(mkOrder("o-1", domain.SideAsk)); err != nil {
		t.Fatal(err)
	}

	placed := domain.Outcome{LocalID: "o-1", Op: domain.OpPlace, Kind: domain.OutcomePlaced, VenueID: "v-1"}
	for i := 0; i < 2; i++ {
		if err := b.ApplyOutcome(placed); err != nil {
			t.Fatalf("apply #%d failed: %v", i+1, err)
		}
	}

	b.RequestCancel("o-1")
	cancelled := domain.Outcome{LocalID: "o-1", Op: domain.OpCancel, Kind: domain.OutcomeCancelled}
	for i := 0; i < 2; i++ {
		if err := b.ApplyOutcome(cancelled); err != nil {
			t.Fatalf("cancel apply #%d failed: %v", i+1, err)
		}
	}
	o, _ := b.Order("o-1")
	if o.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled after duplicate applies, got %s", o.Status)
	}
}

func TestBook_CancelFailure_RevertsToResting(t *testing.T) {
	b := New()
	if err := b.Track(mkOrder("o-1", domain.SideBid)); err != nil {
		t.Fatal(err)
	}
	b.ApplyOutcome(domain.Outcome{LocalID: "o-1", Op: domain.OpPlace, Kind: domain.OutcomePlaced, VenueID: "v-1"})
	b.RequestCancel("o-1")

	failed := domain.Outcome{LocalID: "o-1", Op: domain.OpCancel, Kind: domain.OutcomeFailed}
	if err := b.ApplyOutcome(failed); err != nil {
		t.Fatalf("cancel failure apply: %v", err)
	}
	o, _ := b.Order("o-1")
	if o.Status != domain.OrderStatusResting {
		t.Fatalf("expected order back to resting, got %s", o.Status)
	}
}

func TestBook_UnknownOutcome_NoStateChange(t *testing.T) {
	b := New()
	if err := b.Track(mkOrder("o-1", domain.SideBid)); err != nil {
		t.Fatal(err)
	}

	unknown := domain.Outcome{LocalID: "o-1", Op: domain.OpPlace, Kind: domain.OutcomeUnknown}
	if err := b.ApplyOutcome(unknown); err != nil {
		t.Fatalf("unknown outcome apply: %v", err)
	}
	o, _ := b.Order("o-1")
	if o.Status != domain.OrderStatusPending {
		t.Fatalf("unknown outcome must not change status, got %s", o.Status)
	}
}

func TestBook_ApplyFill_PartialAndFull(t *testing.T) {
	b := New()
	if err := b.Track(mkOrder("o-1", domain.SideAsk)); err != nil {
		t.Fatal(err)
	}
	b.ApplyOutcome(domain.Outcome{LocalID: "o-1", Op: domain.OpPlace, Kind: domain.OutcomePlaced, VenueID: "v-1"})

	// Partial fill keeps the order resting at the reduced size.
	if err := b.ApplyFill("o-1", decimal.RequireFromString("40")); err != nil {
		t.Fatalf("partial fill: %v", err)
	}
	o, _ := b.Order("o-1")
	if o.Status != domain.OrderStatusResting || !o.Size.Equal(decimal.RequireFromString("40")) {
		t.Fatalf("expected resting@40, got %s@%s", o.Status, o.Size)
	}

	// Full fill terminates the order and frees the side.
	if err := b.ApplyFill("o-1", decimal.Zero); err != nil {
		t.Fatalf("full fill: %v", err)
	}
	o, _ = b.Order("o-1")
	if o.Status != domain.OrderStatusFilled {
		t.Fatalf("expected filled, got %s", o.Status)
	}
	if _, live := b.LiveOrder(domain.SideAsk); live {
		t.Error("filled order must not count as live")
	}
}

func TestBook_Snapshot_IsACopy(t *testing.T) {
	b := New()
	b.Track(mkOrder("o-1", domain.SideBid))
	b.RecordTick(mkTick("0.48", "0.52", time.Now()))

	snap := b.Snapshot()
	if len(snap.Orders) != 1 || !snap.HasTick {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	// Mutating the snapshot must not touch the book.
	snap.Orders[0].Status = domain.OrderStatusFilled
	o, _ := b.Order("o-1")
	if o.Status != domain.OrderStatusPending {
		t.Errorf("snapshot mutation leaked into book: %s", o.Status)
	}
}
