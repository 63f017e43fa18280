package execution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quoter_go/internal/domain"

	"github.com/shopspring/decimal"
)

// fakeClient scripts trading API behavior per call.
type fakeClient struct {
	mu      sync.Mutex
	calls   []string // "place:<id>" / "cancel:<venueID>"
	place   func(order domain.Order) (string, error)
	cancel  func(venueID string) error
	placeN  int
	cancelN int
}

func (f *fakeClient) PlaceOrder(ctx context.Context, order domain.Order) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "place:"+order.LocalID)
	f.placeN++
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.place != nil {
		return f.place(order)
	}
	return "venue-" + order.LocalID, nil
}

func (f *fakeClient) CancelOrder(ctx context.Context, venueID string) error {
	f.mu.Lock()
	f.calls = append(f.calls, "cancel:"+venueID)
	f.cancelN++
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.cancel != nil {
		return f.cancel(venueID)
	}
	return nil
}

func (f *fakeClient) GetOpenOrders(ctx context.Context) ([]domain.Order, error) {
	return nil, nil
}

func (f *fakeClient) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func testOrder(id string) domain.Order {
	return domain.Order{
		LocalID: id,
		Side:    domain.SideBid,
		Price:   decimal.RequireFromString("0.49"),
		Size:    decimal.RequireFromString("100"),
		Status:  domain.OrderStatusPending,
	}
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.CallTimeout = 200 * time.Millisecond
	cfg.RetryDelay = 5 * time.Millisecond
	return cfg
}

func TestPool_PlaceSuccess(t *testing.T) {
	client := &fakeClient{}
	pool := NewPool(fastConfig(), client, nil, nil)
	pool.Start()
	defer pool.Stop()

	h := pool.Submit(Op{Kind: domain.OpPlace, Order: testOrder("o-1")})
	oc, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if oc.Kind != domain.OutcomePlaced {
		t.Fatalf("expected placed, got %s (err=%v)", oc.Kind, oc.Err)
	}
	if oc.VenueID != "venue-o-1" {
		t.Errorf("expected venue id, got %q", oc.VenueID)
	}
}

func TestPool_RetriesTransportErrors(t *testing.T) {
	attempts := 0
	client := &fakeClient{}
	client.place = func(order domain.Order) (string, error) {
		attempts++
		if attempts < 3 {
			return "", domain.NewNetworkError("place", errors.New("connection reset"))
		}
		return "venue-ok", nil
	}

	pool := NewPool(fastConfig(), client, nil, nil)
	pool.Start()
	defer pool.Stop()

	h := pool.Submit(Op{Kind: domain.OpPlace, Order: testOrder("o-1")})
	oc, err := h.Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if oc.Kind != domain.OutcomePlaced {
		t.Fatalf("expected success after retries, got %s", oc.Kind)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestPool_ExhaustedRetries_Failed(t *testing.T) {
	client := &fakeClient{}
	client.place = func(order domain.Order) (string, error) {
		return "", domain.NewNetworkError("place", errors.New("connection refused"))
	}

	cfg := fastConfig()
	cfg.MaxAttempts = 2
	pool := NewPool(cfg, client, nil, nil)
	pool.Start()
	defer pool.Stop()

	h := pool.Submit(Op{Kind: domain.OpPlace, Order: testOrder("o-1")})
	oc, _ := h.Wait(context.Background())
	if oc.Kind != domain.OutcomeFailed {
		t.Fatalf("expected failed, got %s", oc.Kind)
	}
	if client.placeN != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", client.placeN)
	}
}

func TestPool_VenueRejection_NotRetried(t *testing.T) {
	client := &fakeClient{}
	client.place = func(order domain.Order) (string, error) {
		return "", &domain.VenueRejectionError{Code: "INVALID_ORDER_MIN_SIZE", Msg: "size below minimum"}
	}

	pool := NewPool(fastConfig(), client, nil, nil)
	pool.Start()
	defer pool.Stop()

	h := pool.Submit(Op{Kind: domain.OpPlace, Order: testOrder("o-1")})
	oc, _ := h.Wait(context.Background())
	if oc.Kind != domain.OutcomeRejected {
		t.Fatalf("expected rejected, got %s", oc.Kind)
	}
	if client.placeN != 1 {
		t.Errorf("venue rejection must not be retried, saw %d attempts", client.placeN)
	}
}

func TestPool_Timeout_Unknown_NotRetried(t *testing.T) {
	client := &fakeClient{}
	client.place = func(order domain.Order) (string, error) {
		time.Sleep(400 * time.Millisecond)
		return "", context.DeadlineExceeded
	}

	pool := NewPool(fastConfig(), client, nil, nil)
	pool.Start()
	defer pool.Stop()

	h := pool.Submit(Op{Kind: domain.OpPlace, Order: testOrder("o-1")})
	oc, _ := h.Wait(context.Background())
	if oc.Kind != domain.OutcomeUnknown {
		t.Fatalf("expected unknown on timeout, got %s", oc.Kind)
	}
	if client.placeN != 1 {
		t.Errorf("unknown outcomes must never be blindly retried, saw %d attempts", client.placeN)
	}
}

func TestPool_SameLocalID_SubmissionOrder(t *testing.T) {
	client := &fakeClient{}
	// Slow the place down: if ordering were not enforced, the cancel
	// submitted second could easily run first.
	client.place = func(order domain.Order) (string, error) {
		time.Sleep(50 * time.Millisecond)
		return "venue-1", nil
	}

	pool := NewPool(fastConfig(), client, nil, nil)
	pool.Start()
	defer pool.Stop()

	order := testOrder("o-1")
	h1 := pool.Submit(Op{Kind: domain.OpPlace, Order: order})
	order.VenueID = "venue-1"
	h2 := pool.Submit(Op{Kind: domain.OpCancel, Order: order})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := h1.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := h2.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	calls := client.callLog()
	if len(calls) != 2 || calls[0] != "place:o-1" || calls[1] != "cancel:venue-1" {
		t.Fatalf("same-localID ops out of submission order: %v", calls)
	}
}

func TestPool_DifferentLocalIDs_RunConcurrently(t *testing.T) {
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0

	client := &fakeClient{}
	client.place = func(order domain.Order) (string, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		time.Sleep(50 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return "venue-" + order.LocalID, nil
	}

	pool := NewPool(fastConfig(), client, nil, nil)
	pool.Start()
	defer pool.Stop()

	var handles []*Handle
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		handles = append(handles, pool.Submit(Op{Kind: domain.OpPlace, Order: testOrder(id)}))
	}
	for _, h := range handles {
		if _, err := h.Wait(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	if maxInFlight < 2 {
		t.Errorf("expected concurrent execution across localIDs, max in flight was %d", maxInFlight)
	}
}

func TestPool_WaitHonorsContext(t *testing.T) {
	client := &fakeClient{}
	client.place = func(order domain.Order) (string, error) {
		time.Sleep(300 * time.Millisecond)
		return "venue-1", nil
	}

	pool := NewPool(fastConfig(), client, nil, nil)
	pool.Start()
	defer pool.Stop()

	h := pool.Submit(Op{Kind: domain.OpPlace, Order: testOrder("o-1")})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := h.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded from bounded wait, got %v", err)
	}

	// The outcome is still delivered; nothing is discarded.
	oc, err := h.Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if oc.Kind != domain.OutcomePlaced {
		t.Errorf("expected placed after late wait, got %s", oc.Kind)
	}
}
