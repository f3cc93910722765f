package worker

import (
	"context"
	"log/slog"
	"time"

	"k8s.io/utils/clock"

	"github.com/vietddude/resilience/internal/infra/storage"
)

// Pruner deletes local store entries that have been expired for longer
// than the retention period. Until then they remain available as stale
// fallbacks.
type Pruner struct {
	name      string
	store     storage.ExpiryPruner
	retention time.Duration
	clock     clock.WithTicker
	logger    *slog.Logger
}

// NewPruner creates a new Pruner worker.
func NewPruner(name string, store storage.ExpiryPruner, retention time.Duration, clk clock.WithTicker) *Pruner {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Pruner{
		name:      name,
		store:     store,
		retention: retention,
		clock:     clk,
		logger:    slog.Default().With("component", "pruner", "store", name),
	}
}

// Interval derives the check interval: 10% of retention, clamped to
// [1m, 1h].
func (p *Pruner) Interval() time.Duration {
	interval := min(p.retention/10, 1*time.Hour)
	return max(interval, 1*time.Minute)
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Initial prune
	p.Prune(ctx)

	ticker := p.clock.NewTicker(p.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			p.Prune(ctx)
		}
	}
}

// Prune runs a single pass and returns the number of deleted entries.
func (p *Pruner) Prune(ctx context.Context) int64 {
	threshold := p.clock.Now().Add(-p.retention)

	n, err := p.store.PruneExpired(ctx, threshold)
	if err != nil {
		p.logger.Error("Failed to prune expired entries", "error", err)
		return 0
	}
	if n > 0 {
		p.logger.Debug("Pruned expired entries", "count", n, "before", threshold)
	}
	return n
}
