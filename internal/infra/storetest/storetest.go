// Package storetest holds the behavioural checks every app.Store backend must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"codetrivia-performance/internal/app"
	"codetrivia-performance/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Factory builds an empty store for one test. hook may be nil.
type Factory func(t *testing.T, hook app.BucketHook) app.Store

// Run executes the full suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreatesBucketOnFirstAnswer", func(t *testing.T) { testCreatesBucket(t, newStore(t, nil)) })
	t.Run("EmptyQuestions", func(t *testing.T) { testEmptyQuestions(t, newStore(t, nil)) })
	t.Run("AccuracyAndConservation", func(t *testing.T) { testAccuracyAndConservation(t, newStore(t, nil)) })
	t.Run("RollbackOnFailure", func(t *testing.T) { testRollback(t, newStore) })
	t.Run("ConcurrentSameBucket", func(t *testing.T) { testConcurrentSameBucket(t, newStore(t, nil)) })
	t.Run("ConcurrentCrossedBuckets", func(t *testing.T) { testConcurrentCrossedBuckets(t, newStore(t, nil)) })
	t.Run("WeakAreaRanking", func(t *testing.T) { testWeakAreaRanking(t, newStore(t, nil)) })
	t.Run("ZeroData", func(t *testing.T) { testZeroData(t, newStore(t, nil)) })
	t.Run("DetailedStats", func(t *testing.T) { testDetailedStats(t, newStore(t, nil)) })
	t.Run("RecentSessionsLimit", func(t *testing.T) { testRecentSessions(t, newStore(t, nil)) })
}

// Session builds a well-formed input whose results are given as "category:1" (correct)
// or "category:0" (wrong) pairs.
func Session(userID, difficulty string, outcomes ...string) domain.SessionInput {
	in := domain.SessionInput{
		UserID:      userID,
		Difficulty:  difficulty,
		LLMProvider: "mock",
		LLMModel:    "mock-1",
	}
	for i, o := range outcomes {
		category, flag := o[:len(o)-2], o[len(o)-1]
		correct := flag == '1'
		in.Questions = append(in.Questions, domain.QuestionOutcome{
			Category:      category,
			QuestionText:  fmt.Sprintf("question %d", i),
			CorrectAnswer: "right",
			UserAnswer:    map[bool]string{true: "right", false: "wrong"}[correct],
			IsCorrect:     correct,
		})
		if correct {
			in.Score++
		}
	}
	in.TotalQuestions = len(in.Questions)
	in.QuestionCount = len(in.Questions)
	return in
}

func record(t *testing.T, store app.Store, in domain.SessionInput) int64 {
	t.Helper()
	id, err := store.RecordSession(context.Background(), in)
	if err != nil {
		t.Fatalf("record session: %v", err)
	}
	return id
}

func summary(t *testing.T, store app.Store, userID string) []domain.CategoryPerformance {
	t.Helper()
	rows, err := store.Summary(context.Background(), userID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	return rows
}

func stats(t *testing.T, store app.Store, userID string) domain.DetailedStats {
	t.Helper()
	s, err := store.DetailedStats(context.Background(), userID)
	if err != nil {
		t.Fatalf("detailed stats: %v", err)
	}
	return s
}

func testCreatesBucket(t *testing.T, store app.Store) {
	id := record(t, store, Session("u1", "medium", "sql:1", "sql:0"))
	if id <= 0 {
		t.Fatalf("expected generated session id, got %d", id)
	}

	rows := summary(t, store, "u1")
	if len(rows) != 1 {
		t.Fatalf("expected 1 bucket, got %+v", rows)
	}
	got := rows[0]
	if got.Category != "sql" || got.Difficulty != "medium" || got.TotalQuestions != 2 || got.CorrectAnswers != 1 || got.AccuracyPercentage != 50 {
		t.Fatalf("unexpected bucket %+v", got)
	}
}

func testEmptyQuestions(t *testing.T, store app.Store) {
	in := Session("u1", "easy")
	in.QuestionCount = 10
	in.TotalQuestions = 10
	in.Score = 7
	record(t, store, in)

	if rows := summary(t, store, "u1"); len(rows) != 0 {
		t.Fatalf("expected no buckets, got %+v", rows)
	}
	s := stats(t, store, "u1")
	if s.Overall.TotalSessions != 1 || s.Overall.TotalCorrect != 7 || s.Overall.TotalQuestions != 10 {
		t.Fatalf("expected session to be stored, got %+v", s.Overall)
	}
	if len(s.ByCategory) != 0 {
		t.Fatalf("expected no question results, got %+v", s.ByCategory)
	}
}

func testAccuracyAndConservation(t *testing.T, store app.Store) {
	inputs := []domain.SessionInput{
		Session("u1", "easy", "go:1", "go:1", "sql:0"),
		Session("u1", "easy", "go:0", "js:1"),
		Session("u1", "hard", "go:1", "go:0", "go:0"),
		Session("u2", "easy", "go:1"),
	}
	submitted := 0
	for _, in := range inputs {
		record(t, store, in)
		if in.UserID == "u1" {
			submitted += len(in.Questions)
		}

		for _, row := range summary(t, store, "u1") {
			if want := domain.Percentage(row.CorrectAnswers, row.TotalQuestions); row.AccuracyPercentage != want {
				t.Fatalf("bucket %s/%s accuracy %v, want %v", row.Category, row.Difficulty, row.AccuracyPercentage, want)
			}
		}
	}

	total := 0
	for _, row := range summary(t, store, "u1") {
		total += row.TotalQuestions
	}
	if total != submitted {
		t.Fatalf("expected %d answers across buckets, got %d", submitted, total)
	}

	rows := summary(t, store, "u1")
	if len(rows) != 4 {
		t.Fatalf("expected 4 buckets for u1, got %+v", rows)
	}
	// sql/easy 0%, go/hard 33.33%, go/easy 66.67%, js/easy 100%
	if rows[0].Category != "sql" || rows[1].Difficulty != "hard" || rows[2].AccuracyPercentage != 66.67 || rows[3].Category != "js" {
		t.Fatalf("unexpected summary order %+v", rows)
	}
}

func testRollback(t *testing.T, newStore Factory) {
	errInjected := errors.New("injected failure")
	calls := 0
	store := newStore(t, func(context.Context, int, domain.QuestionOutcome) error {
		calls++
		if calls == 2 {
			return errInjected
		}
		return nil
	})

	_, err := store.RecordSession(context.Background(), Session("u1", "easy", "go:1", "sql:1", "js:0"))
	if err == nil {
		t.Fatalf("expected injected failure")
	}

	if rows := summary(t, store, "u1"); len(rows) != 0 {
		t.Fatalf("expected no buckets after rollback, got %+v", rows)
	}
	s := stats(t, store, "u1")
	if s.Overall.TotalSessions != 0 || len(s.ByCategory) != 0 || len(s.RecentSessions) != 0 {
		t.Fatalf("expected nothing persisted after rollback, got %+v", s)
	}

	// A session whose only question passes the hook still goes through.
	if _, err := store.RecordSession(context.Background(), Session("u1", "easy", "go:1")); err != nil {
		t.Fatalf("record after rollback: %v", err)
	}
	rows := summary(t, store, "u1")
	if len(rows) != 1 || rows[0].TotalQuestions != 1 {
		t.Fatalf("expected a single fresh bucket, got %+v", rows)
	}
}

func testConcurrentSameBucket(t *testing.T, store app.Store) {
	const n = 20
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := store.RecordSession(context.Background(), Session("u1", "medium", "go:1"))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent record: %v", err)
	}

	rows := summary(t, store, "u1")
	if len(rows) != 1 {
		t.Fatalf("expected one bucket, got %+v", rows)
	}
	if rows[0].TotalQuestions != n || rows[0].CorrectAnswers != n || rows[0].AccuracyPercentage != 100 {
		t.Fatalf("lost update: %+v", rows[0])
	}
	if s := stats(t, store, "u1"); s.Overall.TotalSessions != n {
		t.Fatalf("expected %d sessions, got %d", n, s.Overall.TotalSessions)
	}
}

// Sessions listing the same two buckets in opposite order must all land.
func testConcurrentCrossedBuckets(t *testing.T, store app.Store) {
	const n = 20
	var g errgroup.Group
	for i := 0; i < n; i++ {
		in := Session("u1", "hard", "go:1", "sql:0")
		if i%2 == 1 {
			in = Session("u1", "hard", "sql:0", "go:1")
		}
		g.Go(func() error {
			_, err := store.RecordSession(context.Background(), in)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent record: %v", err)
	}

	rows := summary(t, store, "u1")
	if len(rows) != 2 {
		t.Fatalf("expected two buckets, got %+v", rows)
	}
	for _, r := range rows {
		if r.TotalQuestions != n {
			t.Fatalf("lost update on %s: %+v", r.Category, r)
		}
	}
}

func testWeakAreaRanking(t *testing.T, store app.Store) {
	answers := func(category string, total, correct int) []string {
		out := make([]string, 0, total)
		for i := 0; i < total; i++ {
			if i < correct {
				out = append(out, category+":1")
			} else {
				out = append(out, category+":0")
			}
		}
		return out
	}
	record(t, store, Session("u1", "easy", answers("A", 10, 5)...))
	record(t, store, Session("u1", "easy", answers("B", 20, 10)...))
	record(t, store, Session("u1", "easy", answers("C", 10, 9)...))
	record(t, store, Session("u1", "easy", answers("D", 2, 0)...))

	areas, err := store.WeakAreas(context.Background(), "u1", 3)
	if err != nil {
		t.Fatalf("weak areas: %v", err)
	}
	if len(areas) != 3 {
		t.Fatalf("expected 3 weak areas, got %+v", areas)
	}
	if areas[0].Category != "B" || areas[1].Category != "A" || areas[2].Category != "C" {
		t.Fatalf("expected [B A C], got [%s %s %s]", areas[0].Category, areas[1].Category, areas[2].Category)
	}
	if areas[0].WeaknessScore != 50 || areas[2].WeaknessScore != 10 {
		t.Fatalf("unexpected weakness scores %+v", areas)
	}

	areas, err = store.WeakAreas(context.Background(), "u1", 1)
	if err != nil {
		t.Fatalf("weak areas: %v", err)
	}
	if len(areas) != 4 || areas[0].Category != "D" {
		t.Fatalf("expected D first with minQuestions=1, got %+v", areas)
	}
}

func testZeroData(t *testing.T, store app.Store) {
	s := stats(t, store, "nobody")
	if s.Overall.TotalSessions != 0 || s.Overall.AvgAccuracy != 0 || s.Overall.TotalQuestions != 0 {
		t.Fatalf("expected zero overall stats, got %+v", s.Overall)
	}
	if len(s.ByCategory) != 0 || len(s.RecentSessions) != 0 {
		t.Fatalf("expected empty views, got %+v", s)
	}
	areas, err := store.WeakAreas(context.Background(), "nobody", 3)
	if err != nil || len(areas) != 0 {
		t.Fatalf("expected no weak areas, got %+v err=%v", areas, err)
	}
}

func testDetailedStats(t *testing.T, store app.Store) {
	record(t, store, Session("u1", "easy", "go:1", "go:1", "sql:0", "sql:1"))
	record(t, store, Session("u1", "hard", "go:0", "sql:0"))
	empty := Session("u1", "hard")
	record(t, store, empty)
	record(t, store, Session("u2", "easy", "go:0"))

	s := stats(t, store, "u1")
	want := domain.OverallStats{TotalSessions: 3, TotalCorrect: 3, TotalQuestions: 6, AvgAccuracy: 37.5}
	if s.Overall != want {
		t.Fatalf("overall = %+v, want %+v", s.Overall, want)
	}

	if len(s.ByCategory) != 2 {
		t.Fatalf("expected 2 categories, got %+v", s.ByCategory)
	}
	sql, golang := s.ByCategory[0], s.ByCategory[1]
	if sql.Category != "sql" || sql.QuestionsAnswered != 3 || sql.CorrectAnswers != 1 || sql.Accuracy != 33.33 {
		t.Fatalf("unexpected sql stats %+v", sql)
	}
	if golang.Category != "go" || golang.QuestionsAnswered != 3 || golang.CorrectAnswers != 2 || golang.Accuracy != 66.67 {
		t.Fatalf("unexpected go stats %+v", golang)
	}

	if len(s.RecentSessions) != 3 {
		t.Fatalf("expected 3 recent sessions, got %+v", s.RecentSessions)
	}
	if s.RecentSessions[0].TotalQuestions != 0 || s.RecentSessions[0].Percentage != 0 {
		t.Fatalf("expected newest empty session with 0%%, got %+v", s.RecentSessions[0])
	}
	if s.RecentSessions[2].Percentage != 75 || s.RecentSessions[2].Difficulty != "easy" {
		t.Fatalf("unexpected oldest session %+v", s.RecentSessions[2])
	}
}

func testRecentSessions(t *testing.T, store app.Store) {
	var last int64
	for i := 0; i < domain.RecentSessionLimit+2; i++ {
		last = record(t, store, Session("u1", "easy", "go:1"))
	}
	s := stats(t, store, "u1")
	if len(s.RecentSessions) != domain.RecentSessionLimit {
		t.Fatalf("expected %d recent sessions, got %d", domain.RecentSessionLimit, len(s.RecentSessions))
	}
	if s.RecentSessions[0].ID != last {
		t.Fatalf("expected newest session %d first, got %d", last, s.RecentSessions[0].ID)
	}
	for i := 1; i < len(s.RecentSessions); i++ {
		if s.RecentSessions[i].ID >= s.RecentSessions[i-1].ID {
			t.Fatalf("recent sessions not newest first: %+v", s.RecentSessions)
		}
	}
	if s.Overall.TotalSessions != domain.RecentSessionLimit+2 {
		t.Fatalf("overall should count all sessions, got %d", s.Overall.TotalSessions)
	}
}
