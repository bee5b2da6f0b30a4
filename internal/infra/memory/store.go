package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"codetrivia-performance/internal/app"
	"codetrivia-performance/internal/domain"
)

// Store is an in-memory implementation of app.Store. A single mutex serializes writers,
// and each session is staged in full before anything becomes visible.
type Store struct {
	mu       sync.RWMutex
	now      func() time.Time
	hook     app.BucketHook
	nextID   int64
	sessions []domain.QuizSession
	results  []domain.QuestionResult
	buckets  map[domain.BucketKey]domain.CategoryPerformance
}

// Option customizes a Store.
type Option func(*Store)

// WithClock is test-only for deterministic completion times.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithBucketHook installs a hook that runs before every bucket update.
func WithBucketHook(hook app.BucketHook) Option {
	return func(s *Store) { s.hook = hook }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		now:     time.Now,
		buckets: make(map[domain.BucketKey]domain.CategoryPerformance),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) RecordSession(ctx context.Context, in domain.SessionInput) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	id := s.nextID + 1
	session := in.Session(s.now().UTC())
	session.ID = id

	staged := make(map[domain.BucketKey]domain.CategoryPerformance)
	for i, q := range in.Questions {
		if s.hook != nil {
			if err := s.hook(ctx, i, q); err != nil {
				return 0, err
			}
		}
		key := domain.BucketKey{UserID: in.UserID, Category: q.Category, Difficulty: in.Difficulty}
		bucket, ok := staged[key]
		if !ok {
			bucket, ok = s.buckets[key]
			if !ok {
				bucket = domain.CategoryPerformance{UserID: key.UserID, Category: key.Category, Difficulty: key.Difficulty}
			}
		}
		bucket.Increment(q.IsCorrect)
		staged[key] = bucket
	}

	s.nextID = id
	s.sessions = append(s.sessions, session)
	s.results = append(s.results, in.Results(id)...)
	for key, bucket := range staged {
		s.buckets[key] = bucket
	}
	return id, nil
}

func (s *Store) Summary(_ context.Context, userID string) ([]domain.CategoryPerformance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userBucketsLocked(userID), nil
}

func (s *Store) WeakAreas(_ context.Context, userID string, minQuestions int) ([]domain.WeakArea, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.RankWeakAreas(s.userBucketsLocked(userID), minQuestions), nil
}

func (s *Store) userBucketsLocked(userID string) []domain.CategoryPerformance {
	rows := make([]domain.CategoryPerformance, 0)
	for key, bucket := range s.buckets {
		if key.UserID == userID {
			rows = append(rows, bucket)
		}
	}
	domain.SortSummary(rows)
	return rows
}

func (s *Store) DetailedStats(_ context.Context, userID string) (domain.DetailedStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		overall  domain.OverallStats
		pctSum   float64
		pctCount int
		sessions []domain.QuizSession
	)
	for _, session := range s.sessions {
		if session.UserID != userID {
			continue
		}
		sessions = append(sessions, session)
		overall.TotalSessions++
		overall.TotalCorrect += session.Score
		overall.TotalQuestions += session.TotalQuestions
		if session.TotalQuestions > 0 {
			pctSum += float64(session.Score) / float64(session.TotalQuestions) * 100
			pctCount++
		}
	}
	if pctCount > 0 {
		overall.AvgAccuracy = domain.Round2(pctSum / float64(pctCount))
	}

	byName := make(map[string]*domain.CategoryStats)
	for _, r := range s.results {
		if r.UserID != userID {
			continue
		}
		cs, ok := byName[r.Category]
		if !ok {
			cs = &domain.CategoryStats{Category: r.Category}
			byName[r.Category] = cs
		}
		cs.QuestionsAnswered++
		if r.IsCorrect {
			cs.CorrectAnswers++
		}
	}
	byCategory := make([]domain.CategoryStats, 0, len(byName))
	for _, cs := range byName {
		cs.Accuracy = domain.Percentage(cs.CorrectAnswers, cs.QuestionsAnswered)
		byCategory = append(byCategory, *cs)
	}
	domain.SortCategoryStats(byCategory)

	sort.SliceStable(sessions, func(i, j int) bool {
		if !sessions[i].CompletedAt.Equal(sessions[j].CompletedAt) {
			return sessions[i].CompletedAt.After(sessions[j].CompletedAt)
		}
		return sessions[i].ID > sessions[j].ID
	})
	if len(sessions) > domain.RecentSessionLimit {
		sessions = sessions[:domain.RecentSessionLimit]
	}
	recent := make([]domain.RecentSession, 0, len(sessions))
	for _, session := range sessions {
		recent = append(recent, domain.RecentSession{
			ID:             session.ID,
			Difficulty:     session.Difficulty,
			Score:          session.Score,
			TotalQuestions: session.TotalQuestions,
			Percentage:     domain.Percentage(session.Score, session.TotalQuestions),
			CompletedAt:    session.CompletedAt,
		})
	}

	return domain.DetailedStats{Overall: overall, ByCategory: byCategory, RecentSessions: recent}, nil
}
