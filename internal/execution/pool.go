// Package execution performs place/cancel calls against the trading API
// through a fixed-size worker pool with per-call timeout and bounded retry.
package execution

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"quoter_go/internal/domain"
	"quoter_go/internal/infra"
)

// Op is one place or cancel operation. For cancels the Order only needs
// LocalID, Side and VenueID populated.
type Op struct {
	Kind  domain.OpKind
	Order domain.Order
}

// Handle resolves to the operation's typed outcome exactly once.
type Handle struct {
	outcome chan domain.Outcome
}

// Wait blocks until the outcome is available or ctx expires.
func (h *Handle) Wait(ctx context.Context) (domain.Outcome, error) {
	select {
	case oc := <-h.outcome:
		return oc, nil
	case <-ctx.Done():
		return domain.Outcome{}, ctx.Err()
	}
}

// Done exposes the outcome channel for select-based callers.
func (h *Handle) Done() <-chan domain.Outcome {
	return h.outcome
}

// Config holds pool tuning parameters.
type Config struct {
	Workers     int
	QueueDepth  int
	CallTimeout time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:     5,
		QueueDepth:  32,
		CallTimeout: 10 * time.Second,
		MaxAttempts: 3,
		RetryDelay:  500 * time.Millisecond,
	}
}

type task struct {
	op     Op
	handle *Handle
}

// Pool executes operations concurrently while keeping operations on the
// same LocalID in strict submission order: each LocalID hashes onto one
// worker queue, and each queue is FIFO.
type Pool struct {
	cfg     Config
	client  domain.TradingClient
	limiter *infra.RateLimiter
	metrics *infra.Metrics
	logger  *slog.Logger
	queues  []chan task
	done    chan struct{}
}

// NewPool creates a pool. limiter and metrics may be nil.
func NewPool(cfg Config, client domain.TradingClient, limiter *infra.RateLimiter, metrics *infra.Metrics) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultConfig().QueueDepth
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	p := &Pool{
		cfg:     cfg,
		client:  client,
		limiter: limiter,
		metrics: metrics,
		logger:  slog.Default().With("module", "execution_pool"),
		queues:  make([]chan task, cfg.Workers),
		done:    make(chan struct{}),
	}
	for i := range p.queues {
		p.queues[i] = make(chan task, cfg.QueueDepth)
	}
	return p
}

// Start launches the workers.
func (p *Pool) Start() {
	for i, q := range p.queues {
		go p.worker(i, q)
	}
	p.logger.Info("Execution pool started", slog.Int("workers", p.cfg.Workers))
}

// Stop closes the queues and waits for in-flight operations to finish.
// Operations are allowed to complete; aborting them mid-call would leave
// venue-side orders with unknown local state.
func (p *Pool) Stop() {
	for _, q := range p.queues {
		close(q)
	}
	for range p.queues {
		<-p.done
	}
	p.logger.Info("Execution pool stopped")
}

// Submit enqueues an operation and returns its handle. Operations with the
// same LocalID land on the same queue and execute in submission order.
func (p *Pool) Submit(op Op) *Handle {
	h := &Handle{outcome: make(chan domain.Outcome, 1)}
	idx := p.queueIndex(op.Order.LocalID)
	p.queues[idx] <- task{op: op, handle: h}
	return h
}

func (p *Pool) queueIndex(localID string) int {
	hash := fnv.New32a()
	hash.Write([]byte(localID))
	return int(hash.Sum32()) % len(p.queues)
}

func (p *Pool) worker(id int, queue <-chan task) {
	defer func() { p.done <- struct{}{} }()

	for t := range queue {
		oc := p.execute(t.op)
		t.handle.outcome <- oc
	}
}

// execute runs one operation to a terminal outcome. Retries apply only to
// recoverable transport errors; timeouts resolve as Unknown and are never
// blindly retried, because the venue may have acted on the request.
func (p *Pool) execute(op Op) domain.Outcome {
	oc := domain.Outcome{LocalID: op.Order.LocalID, Op: op.Kind}

	for attempt := 1; ; attempt++ {
		if p.limiter != nil {
			p.limiter.Wait()
		}

		start := time.Now()
		venueID, err := p.call(op)
		if p.metrics != nil {
			p.metrics.RecordCallLatency(time.Since(start))
		}

		if err == nil {
			oc.VenueID = venueID
			if op.Kind == domain.OpPlace {
				oc.Kind = domain.OutcomePlaced
			} else {
				oc.Kind = domain.OutcomeCancelled
				oc.VenueID = op.Order.VenueID
			}
			return oc
		}

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			// The call may have landed venue-side. Report ambiguity,
			// never assume failure.
			oc.Kind = domain.OutcomeUnknown
			oc.Err = fmt.Errorf("%s timed out: %w", op.Kind, err)
			p.logger.Warn("Operation outcome unknown",
				slog.String("op", op.Kind.String()),
				slog.String("local_id", op.Order.LocalID),
			)
			return oc
		}

		if domain.IsRetriable(err) && attempt < p.cfg.MaxAttempts {
			if p.metrics != nil {
				p.metrics.RecordRetry()
			}
			p.logger.Warn("Transport error, retrying",
				slog.String("op", op.Kind.String()),
				slog.String("local_id", op.Order.LocalID),
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)
			// Linear backoff between attempts.
			time.Sleep(time.Duration(attempt) * p.cfg.RetryDelay)
			continue
		}

		oc.Err = err
		if domain.IsRetriable(err) {
			// Retry budget exhausted without a venue acknowledgement.
			oc.Kind = domain.OutcomeFailed
		} else {
			oc.Kind = domain.OutcomeRejected
		}
		if p.metrics != nil {
			p.metrics.RecordError()
		}
		p.logger.Warn("Operation failed",
			slog.String("op", op.Kind.String()),
			slog.String("local_id", op.Order.LocalID),
			slog.String("outcome", oc.Kind.String()),
			slog.Any("error", err),
		)
		return oc
	}
}

// call performs the single network round trip under the hard per-call
// timeout. The context is deliberately detached from the engine's run
// context so an engine shutdown lets in-flight calls complete.
func (p *Pool) call(op Op) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.CallTimeout)
	defer cancel()

	switch op.Kind {
	case domain.OpPlace:
		return p.client.PlaceOrder(ctx, op.Order)
	case domain.OpCancel:
		return "", p.client.CancelOrder(ctx, op.Order.VenueID)
	default:
		return "", fmt.Errorf("unhandled op kind %d", op.Kind)
	}
}
