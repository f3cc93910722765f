package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	testclock "k8s.io/utils/clock/testing"

	"github.com/vietddude/resilience/internal/infra/storage"
)

var _ storage.LocalStore[string] = (*Store[string])(nil)
var _ storage.ExpiryPruner = (*Store[string])(nil)

func TestStore_PutGetDelete(t *testing.T) {
	fc := testclock.NewFakeClock(time.Now())
	s := NewStore[string](fc)
	ctx := context.Background()

	if err := s.Put(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rec, found, err := s.Get(ctx, "k")
	if err != nil || !found {
		t.Fatalf("expected record, found=%v err=%v", found, err)
	}
	if rec.Value != "v" || !rec.StoredAt.Equal(fc.Now()) || !rec.ExpiresAt.Equal(fc.Now().Add(time.Minute)) {
		t.Errorf("unexpected record %+v", rec)
	}

	// Expired records are still returned for stale fallback.
	fc.Step(2 * time.Minute)
	rec, found, _ = s.Get(ctx, "k")
	if !found || !rec.Expired(fc.Now()) {
		t.Errorf("expected expired record to be returned, found=%v", found)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, found, _ := s.Get(ctx, "k"); found {
		t.Error("expected key deleted")
	}
	if err := s.Delete(ctx, "missing"); err != nil {
		t.Errorf("deleting missing key: %v", err)
	}
}

func TestStore_EmptyKey(t *testing.T) {
	s := NewStore[int](nil)
	if err := s.Put(context.Background(), "", 1, 0); !errors.Is(err, storage.ErrEmptyKey) {
		t.Errorf("expected ErrEmptyKey, got %v", err)
	}
	if _, _, err := s.Get(context.Background(), ""); !errors.Is(err, storage.ErrEmptyKey) {
		t.Errorf("expected ErrEmptyKey, got %v", err)
	}
}

func TestStore_PruneExpired(t *testing.T) {
	fc := testclock.NewFakeClock(time.Now())
	s := NewStore[int](fc)
	ctx := context.Background()

	_ = s.Put(ctx, "short", 1, time.Second)
	_ = s.Put(ctx, "long", 2, time.Hour)
	_ = s.Put(ctx, "forever", 3, 0)

	fc.Step(time.Minute)
	n, err := s.PruneExpired(ctx, fc.Now())
	if err != nil {
		t.Fatalf("PruneExpired: %v", err)
	}
	if n != 1 || s.Len() != 2 {
		t.Errorf("expected 1 pruned and 2 left, got %d/%d", n, s.Len())
	}
}
