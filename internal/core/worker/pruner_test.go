package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	testclock "k8s.io/utils/clock/testing"

	"github.com/vietddude/resilience/internal/infra/storage/memory"
)

type recordingPruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
}

func (r *recordingPruner) PruneExpired(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cutoffs = append(r.cutoffs, before)
	return 1, r.err
}

func (r *recordingPruner) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cutoffs)
}

func TestPruner_Interval(t *testing.T) {
	tests := []struct {
		retention time.Duration
		expected  time.Duration
	}{
		{time.Minute, time.Minute},
		{time.Hour, 6 * time.Minute},
		{48 * time.Hour, time.Hour},
	}

	for _, tt := range tests {
		p := NewPruner("test", &recordingPruner{}, tt.retention, nil)
		if got := p.Interval(); got != tt.expected {
			t.Errorf("retention %v: expected interval %v, got %v", tt.retention, tt.expected, got)
		}
	}
}

func TestPruner_PruneUsesRetentionCutoff(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	fc := testclock.NewFakeClock(now)

	store := memory.NewStore[string](fc)
	ctx := context.Background()
	_ = store.Put(ctx, "old", "a", time.Minute)
	_ = store.Put(ctx, "persistent", "b", 0)

	// Expired for 30 minutes: still within a 1h retention
	fc.Step(31 * time.Minute)
	p := NewPruner("memory", store, time.Hour, fc)
	if n := p.Prune(ctx); n != 0 {
		t.Errorf("expected nothing pruned within retention, got %d", n)
	}

	fc.Step(time.Hour)
	if n := p.Prune(ctx); n != 1 {
		t.Errorf("expected 1 pruned, got %d", n)
	}
	if store.Len() != 1 {
		t.Errorf("expected persistent entry kept, len=%d", store.Len())
	}
}

func TestPruner_ErrorIsSwallowed(t *testing.T) {
	p := NewPruner("broken", &recordingPruner{err: errors.New("db down")}, time.Hour, nil)
	if n := p.Prune(context.Background()); n != 0 {
		t.Errorf("expected 0 on error, got %d", n)
	}
}

func TestPruner_Start(t *testing.T) {
	fc := testclock.NewFakeClock(time.Now())
	rec := &recordingPruner{}
	p := NewPruner("test", rec, time.Hour, fc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !fc.HasWaiters() {
		if time.Now().After(deadline) {
			t.Fatal("pruner never started its ticker")
		}
		time.Sleep(time.Millisecond)
	}
	if rec.calls() != 1 {
		t.Errorf("expected initial prune, got %d calls", rec.calls())
	}

	fc.Step(p.Interval())
	deadline = time.Now().Add(2 * time.Second)
	for rec.calls() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("expected a tick to trigger another prune")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	<-done
}

func TestPruner_DisabledRetention(t *testing.T) {
	rec := &recordingPruner{}
	NewPruner("test", rec, 0, nil).Start(context.Background())
	if rec.calls() != 0 {
		t.Errorf("expected no prune when retention disabled")
	}
}
