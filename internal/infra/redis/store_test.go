package redis

import (
	"context"
	"testing"

	"codetrivia-performance/internal/app"
	"codetrivia-performance/internal/infra/storetest"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestStoreBehaviour(t *testing.T) {
	storetest.Run(t, func(t *testing.T, hook app.BucketHook) app.Store {
		mr := runMiniredis(t)
		return NewStore(newClient(mr), WithBucketHook(hook))
	})
}

func TestStoreKeysAreNamespacedAndEscaped(t *testing.T) {
	mr := runMiniredis(t)
	store := NewStore(newClient(mr), WithPrefix("test"))

	if _, err := store.RecordSession(context.Background(), storetest.Session("u:1", "easy", "c++:1")); err != nil {
		t.Fatalf("record: %v", err)
	}

	bucket := "test:bucket:u%3A1:c%2B%2B:easy"
	if !mr.Exists(bucket) {
		t.Fatalf("expected bucket key %q, have %v", bucket, mr.Keys())
	}
	if got := mr.HGet(bucket, "accuracy_percentage"); got != "100" {
		t.Fatalf("expected stored accuracy 100, got %q", got)
	}
	if !mr.Exists("test:session:1") || !mr.Exists("test:session:1:results") {
		t.Fatalf("expected session keys, have %v", mr.Keys())
	}

	rows, err := store.Summary(context.Background(), "u:1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(rows) != 1 || rows[0].Category != "c++" || rows[0].Difficulty != "easy" {
		t.Fatalf("unexpected summary %+v", rows)
	}
}

func TestStoreSurfacesConnectionErrors(t *testing.T) {
	mr := runMiniredis(t)
	store := NewStore(newClient(mr))
	mr.Close()

	if _, err := store.RecordSession(context.Background(), storetest.Session("u1", "easy", "go:1")); err == nil {
		t.Fatalf("expected error once redis is gone")
	}
}

func runMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return mr
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
