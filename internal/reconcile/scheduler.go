package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Scheduler triggers both reconciliation jobs on a fixed interval. It follows
// the background-worker lifecycle: Run blocks until the context is cancelled,
// Shutdown waits for an in-flight run to finish.
type Scheduler struct {
	reconciler *Reconciler
	interval   time.Duration
	logger     *slog.Logger

	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
}

// NewScheduler creates a Scheduler.
func NewScheduler(reconciler *Reconciler, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		reconciler: reconciler,
		interval:   interval,
		logger:     logger.With("component", "reconcile.scheduler"),
	}
}

// Run starts the scheduling loop. Blocks until context is cancelled. A run
// that has started always drains fully, even during shutdown.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("scheduler already started")
	}
	s.started = true
	s.done = make(chan struct{})
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("reconciliation scheduler started", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reconciliation scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			// The ticker may have fired while cancellation was pending.
			if ctx.Err() != nil {
				continue
			}
			// Jobs run on a shutdown-immune context so a started run
			// drains fully instead of failing its remaining store calls.
			s.runOnce(context.WithoutCancel(ctx))
		}
	}
}

// Shutdown gracefully stops the scheduler, waiting for an in-flight run.
// It implements server.ShutdownFunc for integration with graceful shutdown.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	select {
	case <-done:
		s.logger.Info("reconciliation scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("reconciliation scheduler shutdown timed out")
		return ctx.Err()
	}
}

// runOnce executes both jobs back to back. A job-level failure (enumeration)
// is logged and the other job still runs; the next tick retries both.
func (s *Scheduler) runOnce(ctx context.Context) {
	if _, err := s.reconciler.PurgeInactiveAccounts(ctx); err != nil {
		s.logger.Error("inactive-account purge failed", "error", err)
	}
	if _, err := s.reconciler.RevokeExpiredEntitlements(ctx); err != nil {
		s.logger.Error("expired-entitlement revocation failed", "error", err)
	}
}
