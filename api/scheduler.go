/*
scheduler.go - Automated carry-forward expiry

PURPOSE:
  Periodically forfeits carried-forward days whose expiry date has passed, so
  balances shrink on time without an admin calling expire-carryforward for
  every row.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Each check calls AdminService.SweepExpiredCarryForward as of today
  - Rows are only touched once: the store scan skips rows already forfeited
  - Needs a store implementing leave.ExpiryScanner (all bundled stores do)

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewCarryForwardScheduler(handler.Admin, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: ExpireCarryForward endpoint (manual, one row)
  - leave/catalog.go: SweepExpiredCarryForward
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/warp/leave-engine/leave"
	"go.uber.org/zap"
)

// CarryForwardScheduler runs the carry-forward sweep on a ticker.
type CarryForwardScheduler struct {
	Admin         *leave.AdminService
	CheckInterval time.Duration
	Enabled       bool
	Now           func() time.Time

	logger  *zap.Logger
	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	lastRun time.Time
}

func NewCarryForwardScheduler(admin *leave.AdminService, logger *zap.Logger) *CarryForwardScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CarryForwardScheduler{
		Admin:         admin,
		CheckInterval: time.Hour,
		Enabled:       true,
		Now:           time.Now,
		logger:        logger.Named("scheduler"),
	}
}

// Start begins the scheduler. It runs one sweep immediately.
func (s *CarryForwardScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.logger.Info("carry-forward scheduler disabled")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.ticker, s.stop)

	s.logger.Info("carry-forward scheduler started", zap.Duration("interval", s.CheckInterval))
}

// Stop halts the scheduler and waits for an in-flight sweep.
func (s *CarryForwardScheduler) Stop() {
	s.mu.Lock()
	if s.ticker == nil {
		s.mu.Unlock()
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.ticker = nil
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("carry-forward scheduler stopped")
}

func (s *CarryForwardScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	s.RunNow(ctx)
	for {
		select {
		case <-ticker.C:
			s.RunNow(ctx)
		case <-stop:
			return
		}
	}
}

// RunNow performs one sweep as of today and returns the rows changed.
func (s *CarryForwardScheduler) RunNow(ctx context.Context) (int, error) {
	now := s.Now().UTC()
	changed, err := s.Admin.SweepExpiredCarryForward(ctx, leave.DateOf(now))

	s.mu.Lock()
	s.lastRun = now
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("carry-forward sweep incomplete", zap.Int("changed", changed), zap.Error(err))
		return changed, err
	}
	if changed > 0 {
		s.logger.Info("carry-forward sweep completed", zap.Int("changed", changed))
	}
	return changed, nil
}

// NextRunTime returns when the next sweep is due, or the zero time before
// the first run.
func (s *CarryForwardScheduler) NextRunTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun.IsZero() {
		return time.Time{}
	}
	return s.lastRun.Add(s.CheckInterval)
}
