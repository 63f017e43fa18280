// Package engine drives the quote lifecycle: it folds price ticks, balance
// updates and execution outcomes into the tracked book and converges the
// venue-side orders toward the policy's desired quotes.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"quoter_go/internal/book"
	"quoter_go/internal/domain"
	"quoter_go/internal/execution"
	"quoter_go/internal/infra"
	"quoter_go/internal/policy"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Config holds reconciler tuning parameters.
type Config struct {
	Band domain.BandConfig
	// ResolveTimeout bounds the open-order query used to settle an
	// ambiguous outcome.
	ResolveTimeout time.Duration
	// PlaceCooldown delays re-quoting a side after a rejected or failed
	// placement, and re-cancelling after a refused cancel, so a persistent
	// venue error cannot drive a tight loop.
	PlaceCooldown time.Duration
	// ShutdownTimeout bounds the cancel sweep on exit.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns sensible defaults for everything but the band.
func DefaultConfig(band domain.BandConfig) Config {
	return Config{
		Band:            band,
		ResolveTimeout:  5 * time.Second,
		PlaceCooldown:   2 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// Reconciler is the single-threaded decision loop. All book mutations
// happen here; the feed, balance poller and execution pool only communicate
// through channels, so no other locking is needed on the decision path.
type Reconciler struct {
	cfg     Config
	book    *book.Book
	pool    *execution.Pool
	client  domain.TradingClient
	audit   domain.AuditSink
	metrics *infra.Metrics
	logger  *slog.Logger

	ticks     <-chan domain.Tick
	feedFatal <-chan error
	balances  <-chan domain.Balances

	outcomes chan domain.Outcome

	lastBal      domain.Balances
	haveBal      bool
	unresolved   map[string]domain.Outcome
	sideHoldAt   map[domain.Side]time.Time
	cancelHoldAt map[domain.Side]time.Time
}

// NewReconciler wires the decision loop to its collaborators. audit may be
// nil; metrics must not be.
func NewReconciler(
	cfg Config,
	bk *book.Book,
	pool *execution.Pool,
	client domain.TradingClient,
	audit domain.AuditSink,
	metrics *infra.Metrics,
	ticks <-chan domain.Tick,
	feedFatal <-chan error,
	balances <-chan domain.Balances,
) *Reconciler {
	return &Reconciler{
		cfg:          cfg,
		book:         bk,
		pool:         pool,
		client:       client,
		audit:        audit,
		metrics:      metrics,
		logger:       slog.Default().With("module", "reconciler"),
		ticks:        ticks,
		feedFatal:    feedFatal,
		balances:     balances,
		outcomes:     make(chan domain.Outcome, 64),
		unresolved:   make(map[string]domain.Outcome),
		sideHoldAt:   make(map[domain.Side]time.Time),
		cancelHoldAt: make(map[domain.Side]time.Time),
	}
}

// SeedBalance primes the balance cache before the loop starts.
func (r *Reconciler) SeedBalance(bal domain.Balances) {
	r.lastBal = bal
	r.haveBal = true
}

// Run executes the decision loop until the context ends or the feed is
// lost for good. On either exit path it sweeps outstanding orders off the
// venue before returning.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.Info("Reconciler started",
		slog.String("asset_id", r.cfg.Band.AssetID),
		slog.Duration("refresh", r.cfg.Band.QuoteRefreshInterval),
	)

	refresh := time.NewTicker(r.cfg.Band.QuoteRefreshInterval)
	defer refresh.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Reconciler stopping")
			r.shutdownSweep()
			return nil

		case err := <-r.feedFatal:
			r.logger.Error("Price feed lost, halting quoting", slog.Any("error", err))
			r.shutdownSweep()
			return err

		case tick := <-r.ticks:
			if r.book.RecordTick(tick) {
				r.reconcile(ctx)
			}

		case bal := <-r.balances:
			r.lastBal = bal
			r.haveBal = true
			r.reconcile(ctx)

		case oc := <-r.outcomes:
			if err := r.handleOutcome(ctx, oc); err != nil {
				return r.halt(err)
			}
			r.reconcile(ctx)

		case <-refresh.C:
			err := r.retryUnresolved(ctx)
			if err == nil {
				err = r.syncOpenOrders(ctx)
			}
			if err != nil {
				return r.halt(err)
			}
			r.reconcile(ctx)
		}
	}
}

// halt sweeps live orders off the venue after a fatal trading API error
// and hands the error back to the caller.
func (r *Reconciler) halt(err error) error {
	r.logger.Error("Trading API rejected credentials, halting quoting", slog.Any("error", err))
	r.shutdownSweep()
	return err
}

// reconcile converges both sides toward the policy's desired quotes.
func (r *Reconciler) reconcile(ctx context.Context) {
	if !r.haveBal {
		return
	}
	tick, ok := r.book.LastTick()
	if !ok {
		return
	}

	now := time.Now()
	desired := policy.Evaluate(tick, r.lastBal, r.cfg.Band, now)

	for _, side := range []domain.Side{domain.SideBid, domain.SideAsk} {
		r.reconcileSide(side, desired.Target(side), now)
	}
}

// reconcileSide brings one side of the book in line with its target.
// A side with an operation in flight is left alone until the outcome lands.
func (r *Reconciler) reconcileSide(side domain.Side, target *domain.QuoteTarget, now time.Time) {
	current, exists := r.book.LiveOrder(side)

	if !exists {
		if target == nil {
			return
		}
		if hold, ok := r.sideHoldAt[side]; ok && now.Before(hold) {
			return
		}
		r.place(side, target, now)
		return
	}

	// Pending placements and in-flight cancels resolve through outcomes.
	if current.Status != domain.OrderStatusResting {
		return
	}

	if target == nil || r.needsReplace(&current, target, now) {
		if hold, ok := r.cancelHoldAt[side]; ok && now.Before(hold) {
			return
		}
		r.requestCancel(&current)
	}
}

// needsReplace applies the churn guard: only a price or size drift beyond
// the configured epsilons, or an order past its maximum age, justifies
// paying the cancel/replace round trip.
func (r *Reconciler) needsReplace(current *domain.Order, target *domain.QuoteTarget, now time.Time) bool {
	if current.Age(now) > r.cfg.Band.MaxOrderAge {
		return true
	}
	if current.Price.Sub(target.Price).Abs().GreaterThan(r.cfg.Band.PriceEpsilon) {
		return true
	}
	if current.Size.Sub(target.Size).Abs().GreaterThan(r.cfg.Band.SizeEpsilon) {
		return true
	}
	return false
}

func (r *Reconciler) place(side domain.Side, target *domain.QuoteTarget, now time.Time) {
	order := domain.Order{
		LocalID:   uuid.NewString(),
		Side:      side,
		Price:     target.Price,
		Size:      target.Size,
		Status:    domain.OrderStatusPending,
		CreatedAt: now,
	}

	if err := r.book.Track(order); err != nil {
		r.logger.Warn("Could not track new order", slog.Any("error", err))
		return
	}
	r.recordEvent(&order, "placement submitted")

	r.logger.Info("Placing order",
		slog.String("local_id", order.LocalID),
		slog.String("side", string(side)),
		slog.String("price", order.Price.String()),
		slog.String("size", order.Size.String()),
	)
	r.forward(r.pool.Submit(execution.Op{Kind: domain.OpPlace, Order: order}))
}

func (r *Reconciler) requestCancel(current *domain.Order) {
	if err := r.book.RequestCancel(current.LocalID); err != nil {
		r.logger.Warn("Could not request cancel", slog.Any("error", err))
		return
	}
	current.Status = domain.OrderStatusCancelRequested
	r.recordEvent(current, "cancel submitted")

	r.logger.Info("Cancelling order",
		slog.String("local_id", current.LocalID),
		slog.String("venue_id", current.VenueID),
		slog.String("side", string(current.Side)),
	)
	r.forward(r.pool.Submit(execution.Op{Kind: domain.OpCancel, Order: *current}))
}

// forward funnels a pool outcome back into the decision loop so all book
// mutations stay on one goroutine.
func (r *Reconciler) forward(h *execution.Handle) {
	go func() {
		r.outcomes <- <-h.Done()
	}()
}

// handleOutcome applies one execution result to the book. A returned
// error means the trading API rejected the credentials and the engine
// must stop quoting.
func (r *Reconciler) handleOutcome(ctx context.Context, oc domain.Outcome) error {
	order, known := r.book.Order(oc.LocalID)
	if !known {
		r.logger.Warn("Outcome for unknown order", slog.String("local_id", oc.LocalID))
		return nil
	}

	if oc.Kind == domain.OutcomeUnknown {
		r.metrics.RecordUnknownOutcome()
		return r.resolveUnknown(ctx, oc)
	}

	if err := r.book.ApplyOutcome(oc); err != nil {
		r.logger.Warn("Outcome not applicable", slog.Any("error", err))
		return nil
	}

	switch oc.Kind {
	case domain.OutcomePlaced:
		r.metrics.RecordOrderPlaced()
		order.VenueID = oc.VenueID
		order.Status = domain.OrderStatusResting
		r.recordEvent(&order, "venue acknowledged")

	case domain.OutcomeCancelled:
		r.metrics.RecordOrderCancelled()
		order.Status = domain.OrderStatusCancelled
		r.recordEvent(&order, "venue confirmed cancel")

	case domain.OutcomeRejected:
		r.metrics.RecordRejection()
		if oc.Op == domain.OpPlace {
			order.Status = domain.OrderStatusRejected
			r.recordEvent(&order, rejectNote(oc.Err))
			r.holdSide(order.Side)
			r.logger.Warn("Placement rejected",
				slog.String("local_id", oc.LocalID),
				slog.Any("error", oc.Err),
			)
		} else {
			// The venue refused the cancel, often because the order is
			// mid-match. The order is resting again; the cooldown keeps
			// the next passes from hammering the venue until the open
			// order sync settles what actually happened.
			order.Status = domain.OrderStatusResting
			r.recordEvent(&order, "cancel rejected, order still resting")
			r.holdCancel(order.Side)
			r.logger.Warn("Cancel rejected",
				slog.String("local_id", oc.LocalID),
				slog.Any("error", oc.Err),
			)
		}

	case domain.OutcomeFailed:
		if oc.Op == domain.OpPlace {
			order.Status = domain.OrderStatusRejected
			r.recordEvent(&order, "placement failed before reaching venue")
			r.holdSide(order.Side)
		} else {
			order.Status = domain.OrderStatusResting
			r.recordEvent(&order, "cancel failed, order still resting")
			r.holdCancel(order.Side)
		}
		r.logger.Warn("Operation failed",
			slog.String("op", oc.Op.String()),
			slog.String("local_id", oc.LocalID),
			slog.Any("error", oc.Err),
		)
	}

	if domain.IsAuthError(oc.Err) {
		return oc.Err
	}
	return nil
}

func (r *Reconciler) holdSide(side domain.Side) {
	r.sideHoldAt[side] = time.Now().Add(r.cfg.PlaceCooldown)
}

func (r *Reconciler) holdCancel(side domain.Side) {
	r.cancelHoldAt[side] = time.Now().Add(r.cfg.PlaceCooldown)
}

// resolveUnknown settles an ambiguous outcome by asking the venue which
// orders are actually open. Until resolution succeeds the order stays in
// its in-flight state and its side is not re-quoted.
func (r *Reconciler) resolveUnknown(ctx context.Context, oc domain.Outcome) error {
	order, known := r.book.Order(oc.LocalID)
	if !known {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.ResolveTimeout)
	open, err := r.client.GetOpenOrders(callCtx)
	cancel()
	if err != nil {
		if domain.IsAuthError(err) {
			return err
		}
		r.unresolved[oc.LocalID] = oc
		r.logger.Warn("Could not resolve ambiguous outcome, will retry",
			slog.String("local_id", oc.LocalID),
			slog.Any("error", err),
		)
		return nil
	}
	delete(r.unresolved, oc.LocalID)

	venueOrder, found := matchOpenOrder(open, &order)

	var resolved domain.Outcome
	switch {
	case oc.Op == domain.OpPlace && found:
		resolved = domain.Outcome{LocalID: oc.LocalID, Op: domain.OpPlace, Kind: domain.OutcomePlaced, VenueID: venueOrder.VenueID}
	case oc.Op == domain.OpPlace:
		// The placement never landed; safe to re-quote.
		resolved = domain.Outcome{LocalID: oc.LocalID, Op: domain.OpPlace, Kind: domain.OutcomeFailed, Err: oc.Err}
	case oc.Op == domain.OpCancel && found:
		// Cancel never landed; the order is still resting.
		resolved = domain.Outcome{LocalID: oc.LocalID, Op: domain.OpCancel, Kind: domain.OutcomeFailed, Err: oc.Err}
	default:
		resolved = domain.Outcome{LocalID: oc.LocalID, Op: domain.OpCancel, Kind: domain.OutcomeCancelled, VenueID: order.VenueID}
	}

	r.logger.Info("Ambiguous outcome resolved",
		slog.String("local_id", oc.LocalID),
		slog.String("op", oc.Op.String()),
		slog.String("resolution", resolved.Kind.String()),
	)
	if err := r.handleOutcome(ctx, resolved); err != nil {
		return err
	}

	// The open-order listing reports remaining size, so a matched order
	// smaller than what we tracked has been partially filled.
	if found && venueOrder.Size.LessThan(order.Size) {
		if err := r.book.ApplyFill(oc.LocalID, venueOrder.Size); err == nil {
			r.logger.Info("Partial fill detected",
				slog.String("local_id", oc.LocalID),
				slog.String("remaining", venueOrder.Size.String()),
			)
		}
	}
	return nil
}

func (r *Reconciler) retryUnresolved(ctx context.Context) error {
	for _, oc := range r.unresolved {
		if err := r.resolveUnknown(ctx, oc); err != nil {
			return err
		}
	}
	return nil
}

// syncOpenOrders reconciles tracked resting orders against the venue's
// open order listing. The market feed carries no private fill stream,
// so this poll is how fills are observed: a resting order missing from
// the listing has been filled, and one with a smaller remaining size
// has been partially filled.
func (r *Reconciler) syncOpenOrders(ctx context.Context) error {
	var resting []domain.Order
	for _, o := range r.book.LiveOrders() {
		if o.Status == domain.OrderStatusResting {
			resting = append(resting, o)
		}
	}
	if len(resting) == 0 {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.ResolveTimeout)
	open, err := r.client.GetOpenOrders(callCtx)
	cancel()
	if err != nil {
		if domain.IsAuthError(err) {
			return err
		}
		r.logger.Warn("Open order sync failed", slog.Any("error", err))
		return nil
	}

	for i := range resting {
		tracked := resting[i]
		venueOrder, found := matchOpenOrder(open, &tracked)
		switch {
		case !found:
			if err := r.book.ApplyFill(tracked.LocalID, decimal.Zero); err != nil {
				continue
			}
			r.metrics.RecordOrderFilled()
			tracked.Status = domain.OrderStatusFilled
			tracked.Size = decimal.Zero
			r.recordEvent(&tracked, "filled on venue")
			r.logger.Info("Order filled",
				slog.String("local_id", tracked.LocalID),
				slog.String("side", string(tracked.Side)),
				slog.String("price", tracked.Price.String()),
			)

		case venueOrder.Size.LessThan(tracked.Size):
			if err := r.book.ApplyFill(tracked.LocalID, venueOrder.Size); err != nil {
				continue
			}
			tracked.Size = venueOrder.Size
			r.recordEvent(&tracked, "partial fill")
			r.logger.Info("Partial fill detected",
				slog.String("local_id", tracked.LocalID),
				slog.String("remaining", venueOrder.Size.String()),
			)
		}
	}
	return nil
}

// matchOpenOrder finds the tracked order among the venue's open orders.
// When the venue id is known the match is exact; otherwise side and price
// identify it, since at most one order per side is ever live.
func matchOpenOrder(open []domain.Order, tracked *domain.Order) (*domain.Order, bool) {
	for i := range open {
		if tracked.VenueID != "" && open[i].VenueID == tracked.VenueID {
			return &open[i], true
		}
		if tracked.VenueID == "" && open[i].Side == tracked.Side && open[i].Price.Equal(tracked.Price) {
			return &open[i], true
		}
	}
	return nil, false
}

// shutdownSweep cancels every live order and waits, bounded by the
// shutdown timeout, for the venue to confirm. Orders that cannot be
// confirmed are logged for manual reconciliation.
func (r *Reconciler) shutdownSweep() {
	pending := 0
	attempted := make(map[string]bool)
	for _, o := range r.book.LiveOrders() {
		if o.Status == domain.OrderStatusResting {
			r.sweepCancel(o)
			attempted[o.LocalID] = true
		}
		// Pending placements and in-flight cancels resolve through
		// outcomes; their orders are cancelled once acknowledged.
		pending++
	}

	if pending == 0 {
		r.logger.Info("Shutdown sweep complete, no live orders")
		return
	}
	r.logger.Info("Shutdown sweep started", slog.Int("orders", pending))

	deadline := time.After(r.cfg.ShutdownTimeout)
	for pending > 0 {
		select {
		case oc := <-r.outcomes:
			r.handleOutcome(context.Background(), oc)
			order, ok := r.book.Order(oc.LocalID)
			switch {
			case !ok || !order.IsLive():
				pending--
			case order.Status == domain.OrderStatusResting && !attempted[order.LocalID]:
				// A placement acknowledged mid-sweep; cancel it too.
				r.sweepCancel(order)
				attempted[order.LocalID] = true
			case order.Status == domain.OrderStatusResting:
				// The venue refused the cancel; one attempt is enough
				// here, the unconfirmed report picks it up.
				pending--
			}
		case <-deadline:
			r.reportUnconfirmed()
			return
		}
	}

	if len(r.book.LiveOrders()) > 0 {
		r.reportUnconfirmed()
		return
	}
	r.logger.Info("Shutdown sweep complete, all orders confirmed")
}

func (r *Reconciler) sweepCancel(o domain.Order) {
	if err := r.book.RequestCancel(o.LocalID); err != nil {
		return
	}
	o.Status = domain.OrderStatusCancelRequested
	r.recordEvent(&o, "shutdown cancel")
	r.forward(r.pool.Submit(execution.Op{Kind: domain.OpCancel, Order: o}))
}

func (r *Reconciler) reportUnconfirmed() {
	for _, o := range r.book.LiveOrders() {
		r.logger.Error("Order unconfirmed at shutdown, reconcile manually",
			slog.String("local_id", o.LocalID),
			slog.String("venue_id", o.VenueID),
			slog.String("side", string(o.Side)),
			slog.String("status", string(o.Status)),
		)
	}
}

func (r *Reconciler) recordEvent(o *domain.Order, note string) {
	if r.audit == nil {
		return
	}
	ev := domain.OrderEvent{
		LocalID: o.LocalID,
		VenueID: o.VenueID,
		Side:    o.Side,
		Price:   o.Price,
		Size:    o.Size,
		Status:  o.Status,
		Note:    note,
		At:      time.Now(),
	}
	if err := r.audit.Record(ev); err != nil {
		r.logger.Warn("Audit write failed", slog.Any("error", err))
	}
}

func rejectNote(err error) string {
	var vr *domain.VenueRejectionError
	if errors.As(err, &vr) {
		return "venue rejected: " + vr.Msg
	}
	return "venue rejected placement"
}
