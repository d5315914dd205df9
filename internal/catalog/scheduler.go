package catalog

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler refreshes a Store periodically.
type Scheduler struct {
	store    *Store
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that refreshes st at the given interval.
func NewScheduler(st *Store, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    st,
		interval: interval,
		logger:   logger,
	}
}

// Start begins periodic refresh. It refreshes once immediately, then on each
// tick.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for an in-flight refresh to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	s.refreshOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshOnce(ctx)
		}
	}
}

func (s *Scheduler) refreshOnce(ctx context.Context) {
	snap, err := s.store.Refresh(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("catalog refresh failed", "err", err,
			"serving_products", s.store.Current().Len())
		return
	}
	s.logger.Info("catalog refreshed", "products", snap.Len(), "updated_at", snap.UpdatedAt())
}
