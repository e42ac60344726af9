package live

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically expires sessions past their end time. It runs
// regardless of connected clients, so an empty session still closes
// within one interval of its deadline.
type Sweeper struct {
	co       *Coordinator
	interval time.Duration
	logger   *zap.Logger
}

// NewSweeper creates a background session expiry sweeper.
func NewSweeper(co *Coordinator, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Sweeper{co: co, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled, sweeping on a fixed interval.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("session sweeper started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session sweeper stopped")
			return
		case <-ticker.C:
			s.co.Sweep(ctx)
		}
	}
}
