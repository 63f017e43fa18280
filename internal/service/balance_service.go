package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"quoter_go/internal/domain"
)

// BalanceService polls the account balance in the background and caches the
// latest observation. Updates are delivered latest-wins on a buffered
// channel so a slow consumer never blocks polling.
type BalanceService struct {
	client   domain.AccountClient
	interval time.Duration

	mu      sync.RWMutex
	last    domain.Balances
	haveOne bool

	updates chan domain.Balances
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *slog.Logger
}

// NewBalanceService creates a balance poller with the given interval.
func NewBalanceService(client domain.AccountClient, interval time.Duration) *BalanceService {
	return &BalanceService{
		client:   client,
		interval: interval,
		updates:  make(chan domain.Balances, 1),
		logger:   slog.Default().With("module", "balance_service"),
	}
}

// Updates returns the stream of balance observations.
func (s *BalanceService) Updates() <-chan domain.Balances { return s.updates }

// Last returns the most recent observation and whether one exists yet.
func (s *BalanceService) Last() (domain.Balances, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.haveOne
}

// Start performs one synchronous poll so consumers have a balance before
// quoting begins, then polls in the background until the context ends.
func (s *BalanceService) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	if err := s.poll(ctx); err != nil {
		return err
	}

	s.wg.Add(1)
	go s.pollLoop(ctx)
	return nil
}

func (s *BalanceService) pollLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.poll(ctx); err != nil {
				s.logger.Warn("Balance poll failed", slog.Any("error", err))
			}
		}
	}
}

// poll fetches balances once and publishes the result.
func (s *BalanceService) poll(ctx context.Context) error {
	bal, err := s.client.GetBalances(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.last = bal
	s.haveOne = true
	s.mu.Unlock()

	select {
	case s.updates <- bal:
	default:
		select {
		case <-s.updates:
		default:
		}
		select {
		case s.updates <- bal:
		default:
		}
	}
	return nil
}

// Stop halts polling and waits for the loop to exit.
func (s *BalanceService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}
