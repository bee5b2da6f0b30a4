package app

import (
	"context"
	"testing"

	"codetrivia-performance/internal/domain"
	"codetrivia-performance/internal/logger"
)

func TestFeedDropsStaleSnapshots(t *testing.T) {
	feed := NewFeed()
	ch, cancel := feed.Subscribe("u1")
	defer cancel()

	for i := 1; i <= 20; i++ {
		feed.Publish("u1", []domain.CategoryPerformance{{Category: "go", TotalQuestions: i}})
	}

	var last []domain.CategoryPerformance
	for len(ch) > 0 {
		last = <-ch
	}
	if len(last) != 1 || last[0].TotalQuestions != 20 {
		t.Fatalf("expected latest snapshot to survive, got %+v", last)
	}
}

func TestFeedCancelUnregisters(t *testing.T) {
	feed := NewFeed()
	ch, cancel := feed.Subscribe("u1")
	if !feed.HasSubscribers("u1") {
		t.Fatalf("expected subscriber")
	}

	cancel()
	cancel()
	if feed.HasSubscribers("u1") {
		t.Fatalf("expected no subscribers after cancel")
	}
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel closed")
	}
	feed.Publish("u1", nil)
}

// racingReader publishes a newer snapshot while the initial summary is being read, as a
// concurrent RecordSession would.
type racingReader struct {
	feed  *Feed
	stale []domain.CategoryPerformance
	fresh []domain.CategoryPerformance
}

func (r *racingReader) Summary(_ context.Context, userID string) ([]domain.CategoryPerformance, error) {
	r.feed.Publish(userID, r.fresh)
	return r.stale, nil
}

func (r *racingReader) DetailedStats(context.Context, string) (domain.DetailedStats, error) {
	return domain.DetailedStats{}, nil
}

func (r *racingReader) WeakAreas(context.Context, string, int) ([]domain.WeakArea, error) {
	return nil, nil
}

func TestSubscribeSeesSessionRecordedDuringInitialRead(t *testing.T) {
	feed := NewFeed()
	reader := &racingReader{
		feed:  feed,
		stale: []domain.CategoryPerformance{},
		fresh: []domain.CategoryPerformance{{Category: "go", Difficulty: "easy", TotalQuestions: 1, CorrectAnswers: 1, AccuracyPercentage: 100}},
	}
	service := NewPerformanceService(nil, reader, logger.Nop(), WithFeed(feed))

	ch, cancel, err := service.Subscribe(context.Background(), "u1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	first := <-ch
	if len(first) != 1 || first[0].TotalQuestions != 1 {
		t.Fatalf("expected the snapshot published during subscribe, got %+v", first)
	}
	if len(ch) != 0 {
		t.Fatalf("stale initial snapshot must not follow the fresh one")
	}
}

func TestSubscribePrimesWithCurrentSummary(t *testing.T) {
	feed := NewFeed()
	rows := []domain.CategoryPerformance{{Category: "sql", Difficulty: "hard", TotalQuestions: 2}}
	reader := &staticReader{rows: rows}
	service := NewPerformanceService(nil, reader, logger.Nop(), WithFeed(feed))

	ch, cancel, err := service.Subscribe(context.Background(), "u1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if first := <-ch; len(first) != 1 || first[0].Category != "sql" {
		t.Fatalf("expected current summary first, got %+v", first)
	}
}

type staticReader struct {
	rows []domain.CategoryPerformance
}

func (r *staticReader) Summary(context.Context, string) ([]domain.CategoryPerformance, error) {
	return r.rows, nil
}

func (r *staticReader) DetailedStats(context.Context, string) (domain.DetailedStats, error) {
	return domain.DetailedStats{}, nil
}

func (r *staticReader) WeakAreas(context.Context, string, int) ([]domain.WeakArea, error) {
	return nil, nil
}
