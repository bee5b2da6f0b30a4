package postgres

import (
	"context"
	"fmt"

	"codetrivia-performance/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/uptrace/bun"
)

// StatsReader serves statistics with plain queries over a pgx pool.
type StatsReader struct {
	pool *pgxpool.Pool
}

func NewStatsReader(pool *pgxpool.Pool) *StatsReader {
	return &StatsReader{pool: pool}
}

// Store pairs the bun recorder with the pgx reader.
type Store struct {
	*Recorder
	*StatsReader
}

func NewStore(db *bun.DB, pool *pgxpool.Pool, opts ...Option) *Store {
	return &Store{Recorder: NewRecorder(db, opts...), StatsReader: NewStatsReader(pool)}
}

const summarySQL = `
SELECT category, difficulty, total_questions, correct_answers, accuracy_percentage
FROM category_performance
WHERE user_id = $1
ORDER BY accuracy_percentage ASC, total_questions DESC, category ASC, difficulty ASC`

const weakAreasSQL = `
SELECT category, difficulty, total_questions, correct_answers, accuracy_percentage,
       ROUND((100 - accuracy_percentage)::numeric, 2)::double precision AS weakness_score
FROM category_performance
WHERE user_id = $1 AND total_questions >= $2
ORDER BY accuracy_percentage ASC, total_questions DESC, category ASC, difficulty ASC
LIMIT $3`

const overallSQL = `
SELECT COUNT(*),
       COALESCE(SUM(score), 0),
       COALESCE(SUM(total_questions), 0),
       COALESCE(ROUND(AVG(score::numeric * 100 / NULLIF(total_questions, 0)), 2), 0)::double precision
FROM quiz_sessions
WHERE user_id = $1`

const byCategorySQL = `
SELECT category,
       COUNT(*),
       COUNT(*) FILTER (WHERE is_correct),
       ROUND(AVG(CASE WHEN is_correct THEN 100 ELSE 0 END), 2)::double precision AS accuracy
FROM question_results
WHERE user_id = $1
GROUP BY category
ORDER BY accuracy ASC, category ASC`

const recentSQL = `
SELECT id, difficulty, score, total_questions,
       COALESCE(ROUND(score::numeric * 100 / NULLIF(total_questions, 0), 2), 0)::double precision,
       completed_at
FROM quiz_sessions
WHERE user_id = $1
ORDER BY completed_at DESC, id DESC
LIMIT $2`

func (r *StatsReader) Summary(ctx context.Context, userID string) ([]domain.CategoryPerformance, error) {
	rows, err := r.pool.Query(ctx, summarySQL, userID)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	out := make([]domain.CategoryPerformance, 0)
	for rows.Next() {
		row := domain.CategoryPerformance{UserID: userID}
		if err := rows.Scan(&row.Category, &row.Difficulty, &row.TotalQuestions, &row.CorrectAnswers, &row.AccuracyPercentage); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *StatsReader) WeakAreas(ctx context.Context, userID string, minQuestions int) ([]domain.WeakArea, error) {
	rows, err := r.pool.Query(ctx, weakAreasSQL, userID, minQuestions, domain.MaxWeakAreas)
	if err != nil {
		return nil, fmt.Errorf("query weak areas: %w", err)
	}
	defer rows.Close()

	out := make([]domain.WeakArea, 0)
	for rows.Next() {
		area := domain.WeakArea{CategoryPerformance: domain.CategoryPerformance{UserID: userID}}
		if err := rows.Scan(&area.Category, &area.Difficulty, &area.TotalQuestions, &area.CorrectAnswers, &area.AccuracyPercentage, &area.WeaknessScore); err != nil {
			return nil, fmt.Errorf("scan weak area: %w", err)
		}
		out = append(out, area)
	}
	return out, rows.Err()
}

func (r *StatsReader) DetailedStats(ctx context.Context, userID string) (domain.DetailedStats, error) {
	var stats domain.DetailedStats

	o := &stats.Overall
	if err := r.pool.QueryRow(ctx, overallSQL, userID).Scan(&o.TotalSessions, &o.TotalCorrect, &o.TotalQuestions, &o.AvgAccuracy); err != nil {
		return stats, fmt.Errorf("query overall: %w", err)
	}

	byCategory, err := r.byCategory(ctx, userID)
	if err != nil {
		return stats, err
	}
	stats.ByCategory = byCategory

	recent, err := r.recent(ctx, userID)
	if err != nil {
		return stats, err
	}
	stats.RecentSessions = recent
	return stats, nil
}

func (r *StatsReader) byCategory(ctx context.Context, userID string) ([]domain.CategoryStats, error) {
	rows, err := r.pool.Query(ctx, byCategorySQL, userID)
	if err != nil {
		return nil, fmt.Errorf("query category stats: %w", err)
	}
	defer rows.Close()

	out := make([]domain.CategoryStats, 0)
	for rows.Next() {
		var cs domain.CategoryStats
		if err := rows.Scan(&cs.Category, &cs.QuestionsAnswered, &cs.CorrectAnswers, &cs.Accuracy); err != nil {
			return nil, fmt.Errorf("scan category stats: %w", err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

func (r *StatsReader) recent(ctx context.Context, userID string) ([]domain.RecentSession, error) {
	rows, err := r.pool.Query(ctx, recentSQL, userID, domain.RecentSessionLimit)
	if err != nil {
		return nil, fmt.Errorf("query recent sessions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.RecentSession, 0)
	for rows.Next() {
		var s domain.RecentSession
		if err := rows.Scan(&s.ID, &s.Difficulty, &s.Score, &s.TotalQuestions, &s.Percentage, &s.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan recent session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
