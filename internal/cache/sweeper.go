package cache

import (
	"context"
	"log/slog"
	"time"

	"k8s.io/utils/clock"
)

// Expirer is anything that can drop its expired entries.
type Expirer interface {
	Name() string
	InvalidateExpired() int
}

// Sweeper periodically removes expired entries so that unread keys do not
// hold memory until LRU pressure pushes them out.
type Sweeper struct {
	target   Expirer
	interval time.Duration
	clock    clock.WithTicker
	logger   *slog.Logger
}

// NewSweeper creates a sweeper. A nil clock uses the real clock.
func NewSweeper(target Expirer, interval time.Duration, clk clock.WithTicker) *Sweeper {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Sweeper{
		target:   target,
		interval: interval,
		clock:    clk,
		logger:   slog.Default(),
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	if s.interval <= 0 {
		return // Sweeping disabled
	}

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if n := s.target.InvalidateExpired(); n > 0 {
				s.logger.Debug("Swept expired cache entries", "cache", s.target.Name(), "count", n)
			}
		}
	}
}
