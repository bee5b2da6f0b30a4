package app

import (
	"context"
	"fmt"
	"time"

	"codetrivia-performance/internal/domain"
	"codetrivia-performance/internal/logger"
	"golang.org/x/sync/errgroup"
)

// SessionRecorder persists a completed quiz atomically: the session row, its question results
// and the bucket increments either all land or none do.
type SessionRecorder interface {
	RecordSession(ctx context.Context, in domain.SessionInput) (int64, error)
}

// StatsReader serves read-only views over recorded history.
type StatsReader interface {
	Summary(ctx context.Context, userID string) ([]domain.CategoryPerformance, error)
	DetailedStats(ctx context.Context, userID string) (domain.DetailedStats, error)
	WeakAreas(ctx context.Context, userID string, minQuestions int) ([]domain.WeakArea, error)
}

// Store is a backend implementing both sides (memory, sqlite, postgres, redis).
type Store interface {
	SessionRecorder
	StatsReader
}

// PerformanceService contains the performance tracking use cases.
type PerformanceService struct {
	recorder SessionRecorder
	reader   StatsReader
	feed     *Feed
	log      *logger.Logger
	timeout  time.Duration
}

// Option customizes a PerformanceService.
type Option func(*PerformanceService)

// WithTimeout bounds every storage call made by the service. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *PerformanceService) { s.timeout = d }
}

// WithFeed publishes a fresh summary to live subscribers after each recorded session.
func WithFeed(feed *Feed) Option {
	return func(s *PerformanceService) { s.feed = feed }
}

func NewPerformanceService(recorder SessionRecorder, reader StatsReader, log *logger.Logger, opts ...Option) *PerformanceService {
	s := &PerformanceService{
		recorder: recorder,
		reader:   reader,
		log:      log.With("component", "PerformanceService"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *PerformanceService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// RecordSession validates and stores one finished quiz, returning the new session id.
// Validation failures wrap domain.ErrInvalidSession; storage failures wrap domain.ErrRecordFailed.
func (s *PerformanceService) RecordSession(ctx context.Context, in domain.SessionInput) (int64, error) {
	if err := in.Validate(); err != nil {
		return 0, err
	}

	callCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	id, err := s.recorder.RecordSession(callCtx, in)
	if err != nil {
		s.log.Error("record session failed", "user_id", in.UserID, "questions", len(in.Questions), "error", err)
		return 0, fmt.Errorf("%w: %w", domain.ErrRecordFailed, err)
	}
	s.log.Info("session recorded", "user_id", in.UserID, "session_id", id, "questions", len(in.Questions))

	s.publish(ctx, in.UserID)
	return id, nil
}

func (s *PerformanceService) publish(ctx context.Context, userID string) {
	if s.feed == nil || !s.feed.HasSubscribers(userID) {
		return
	}
	rows, err := s.Summary(ctx, userID)
	if err != nil {
		s.log.Warn("feed summary refresh failed", "user_id", userID, "error", err)
		return
	}
	s.feed.Publish(userID, rows)
}

// Summary returns every bucket for the user, worst performing first.
func (s *PerformanceService) Summary(ctx context.Context, userID string) ([]domain.CategoryPerformance, error) {
	callCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.reader.Summary(callCtx, userID)
	if err != nil {
		return nil, s.readFailed("summary", userID, err)
	}
	return rows, nil
}

// DetailedStats returns overall, per-category and recent-session views for the user.
func (s *PerformanceService) DetailedStats(ctx context.Context, userID string) (domain.DetailedStats, error) {
	callCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	stats, err := s.reader.DetailedStats(callCtx, userID)
	if err != nil {
		return domain.DetailedStats{}, s.readFailed("stats", userID, err)
	}
	return stats, nil
}

// WeakAreas ranks the user's buckets with at least minQuestions answers.
// Non-positive minQuestions falls back to domain.DefaultMinQuestions.
func (s *PerformanceService) WeakAreas(ctx context.Context, userID string, minQuestions int) ([]domain.WeakArea, error) {
	if minQuestions <= 0 {
		minQuestions = domain.DefaultMinQuestions
	}
	callCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	areas, err := s.reader.WeakAreas(callCtx, userID, minQuestions)
	if err != nil {
		return nil, s.readFailed("weak areas", userID, err)
	}
	return areas, nil
}

// PersonalizationContext gathers weak and strong areas and renders the prompt block used
// by question generation.
func (s *PerformanceService) PersonalizationContext(ctx context.Context, userID string) (domain.Personalization, error) {
	var (
		summary []domain.CategoryPerformance
		weak    []domain.WeakArea
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summary, err = s.Summary(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		weak, err = s.WeakAreas(gctx, userID, domain.DefaultMinQuestions)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Personalization{}, err
	}

	strong := domain.StrongAreas(summary)
	return domain.Personalization{
		WeakAreas:   weak,
		StrongAreas: strong,
		Prompt:      domain.PersonalizationPrompt(weak, strong),
	}, nil
}

// Subscribe returns a channel of summary snapshots for userID, starting with the current one.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *PerformanceService) Subscribe(ctx context.Context, userID string) (<-chan []domain.CategoryPerformance, func(), error) {
	if s.feed == nil {
		return nil, nil, fmt.Errorf("live feed disabled")
	}
	// Register before reading so a session recorded meanwhile is published to this channel.
	ch, cancel := s.feed.subscribe(userID)
	initial, err := s.Summary(ctx, userID)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	s.feed.prime(userID, ch, initial)
	return ch, cancel, nil
}

func (s *PerformanceService) readFailed(view, userID string, err error) error {
	s.log.Error("read failed", "view", view, "user_id", userID, "error", err)
	return fmt.Errorf("%w: %s: %w", domain.ErrStatsUnavailable, view, err)
}
