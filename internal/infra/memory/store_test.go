package memory

import (
	"context"
	"testing"
	"time"

	"codetrivia-performance/internal/app"
	"codetrivia-performance/internal/infra/storetest"
)

func TestStoreBehaviour(t *testing.T) {
	storetest.Run(t, func(t *testing.T, hook app.BucketHook) app.Store {
		return NewStore(WithBucketHook(hook))
	})
}

func TestStoreUsesClockForCompletion(t *testing.T) {
	fixed := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)
	store := NewStore(WithClock(func() time.Time { return fixed }))

	if _, err := store.RecordSession(context.Background(), storetest.Session("u1", "easy", "go:1")); err != nil {
		t.Fatalf("record: %v", err)
	}
	stats, err := store.DetailedStats(context.Background(), "u1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !stats.RecentSessions[0].CompletedAt.Equal(fixed) {
		t.Fatalf("expected completion time %v, got %v", fixed, stats.RecentSessions[0].CompletedAt)
	}
}

func TestStoreHonoursCanceledContext(t *testing.T) {
	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.RecordSession(ctx, storetest.Session("u1", "easy", "go:1")); err == nil {
		t.Fatalf("expected error for canceled context")
	}
	rows, _ := store.Summary(context.Background(), "u1")
	if len(rows) != 0 {
		t.Fatalf("expected nothing recorded, got %+v", rows)
	}
}
