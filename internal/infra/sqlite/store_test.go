package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"codetrivia-performance/internal/app"
	"codetrivia-performance/internal/infra/storetest"
)

func TestStoreBehaviour(t *testing.T) {
	storetest.Run(t, func(t *testing.T, hook app.BucketHook) app.Store {
		return openTestStore(t, WithBucketHook(hook))
	})
}

func TestUpsertKeepsCountersConsistent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, in := range []string{"go:1", "go:0", "go:0"} {
		if _, err := store.RecordSession(ctx, storetest.Session("u1", "hard", in)); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	var row struct {
		Total    int     `db:"total_questions"`
		Correct  int     `db:"correct_answers"`
		Accuracy float64 `db:"accuracy_percentage"`
		Count    int     `db:"n"`
	}
	err := store.db.GetContext(ctx, &row, `
		SELECT total_questions, correct_answers, accuracy_percentage,
		       (SELECT COUNT(*) FROM category_performance) AS n
		FROM category_performance WHERE user_id = 'u1'`)
	if err != nil {
		t.Fatalf("select bucket: %v", err)
	}
	if row.Count != 1 || row.Total != 3 || row.Correct != 1 || row.Accuracy != 33.33 {
		t.Fatalf("unexpected bucket row %+v", row)
	}
}

func TestResultsReferenceSession(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.RecordSession(ctx, storetest.Session("u1", "easy", "go:1", "sql:0", "js:1"))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	var n int
	if err := store.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM question_results WHERE session_id = ?`, id); err != nil {
		t.Fatalf("count results: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 results for session %d, got %d", id, n)
	}
}

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "performance.db"), opts...)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "performance.db")
	store, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open sqlite in missing dir: %v", err)
	}
	defer store.Close()

	if _, err := store.RecordSession(context.Background(), storetest.Session("u1", "easy", "go:1")); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected database file at %s: %v", path, err)
	}
}
