package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codetrivia-performance/internal/app"
	"codetrivia-performance/internal/domain"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS quiz_sessions (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id         TEXT NOT NULL,
    difficulty      TEXT NOT NULL,
    question_count  INTEGER NOT NULL DEFAULT 0,
    score           INTEGER NOT NULL DEFAULT 0,
    total_questions INTEGER NOT NULL DEFAULT 0,
    llm_provider    TEXT NOT NULL DEFAULT '',
    llm_model       TEXT NOT NULL DEFAULT '',
    completed_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_quiz_sessions_user_completed ON quiz_sessions (user_id, completed_at);

CREATE TABLE IF NOT EXISTS question_results (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id     INTEGER NOT NULL REFERENCES quiz_sessions (id) ON DELETE CASCADE,
    user_id        TEXT NOT NULL,
    category       TEXT NOT NULL,
    difficulty     TEXT NOT NULL,
    question_text  TEXT NOT NULL DEFAULT '',
    correct_answer TEXT NOT NULL DEFAULT '',
    user_answer    TEXT NOT NULL DEFAULT '',
    is_correct     BOOLEAN NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_question_results_user_category ON question_results (user_id, category);

CREATE TABLE IF NOT EXISTS category_performance (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id             TEXT NOT NULL,
    category            TEXT NOT NULL,
    difficulty          TEXT NOT NULL,
    total_questions     INTEGER NOT NULL DEFAULT 0,
    correct_answers     INTEGER NOT NULL DEFAULT 0,
    accuracy_percentage REAL NOT NULL DEFAULT 0,
    updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (user_id, category, difficulty)
);
`

// Store is a SQLite-backed app.Store for local development. A single open connection
// serializes writers, which SQLite requires anyway.
type Store struct {
	db   *sqlx.DB
	now  func() time.Time
	hook app.BucketHook
}

// Option customizes a Store.
type Option func(*Store)

// WithBucketHook installs a hook that runs inside the transaction before every bucket upsert.
func WithBucketHook(hook app.BucketHook) Option {
	return func(s *Store) { s.hook = hook }
}

// Open connects to the database file at path and creates the schema.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_time_format=sqlite"
	}
	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ensureDir creates the parent directory of a database file; the driver will not.
func ensureDir(path string) error {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return nil
	}
	file, _, _ := strings.Cut(path, "?")
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return fmt.Errorf("create database dir: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const insertResultSQL = `
INSERT INTO question_results
    (session_id, user_id, category, difficulty, question_text, correct_answer, user_answer, is_correct)
VALUES
    (:session_id, :user_id, :category, :difficulty, :question_text, :correct_answer, :user_answer, :is_correct)`

const upsertBucketSQL = `
INSERT INTO category_performance
    (user_id, category, difficulty, total_questions, correct_answers, accuracy_percentage)
VALUES (?, ?, ?, 1, ?, ?)
ON CONFLICT (user_id, category, difficulty) DO UPDATE SET
    total_questions     = total_questions + 1,
    correct_answers     = correct_answers + excluded.correct_answers,
    accuracy_percentage = ROUND((correct_answers + excluded.correct_answers) * 100.0 / (total_questions + 1), 2),
    updated_at          = CURRENT_TIMESTAMP`

type resultRow struct {
	SessionID     int64  `db:"session_id"`
	UserID        string `db:"user_id"`
	Category      string `db:"category"`
	Difficulty    string `db:"difficulty"`
	QuestionText  string `db:"question_text"`
	CorrectAnswer string `db:"correct_answer"`
	UserAnswer    string `db:"user_answer"`
	IsCorrect     bool   `db:"is_correct"`
}

func (s *Store) RecordSession(ctx context.Context, in domain.SessionInput) (id int64, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO quiz_sessions
		    (user_id, difficulty, question_count, score, total_questions, llm_provider, llm_model, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		in.UserID, in.Difficulty, in.QuestionCount, in.Score, in.TotalQuestions, in.LLMProvider, in.LLMModel, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	if id, err = res.LastInsertId(); err != nil {
		return 0, fmt.Errorf("session id: %w", err)
	}

	if len(in.Questions) > 0 {
		rows := make([]resultRow, 0, len(in.Questions))
		for _, r := range in.Results(id) {
			rows = append(rows, resultRow(r))
		}
		if _, err = tx.NamedExecContext(ctx, insertResultSQL, rows); err != nil {
			return 0, fmt.Errorf("insert results: %w", err)
		}

		for _, i := range in.UpsertOrder() {
			q := in.Questions[i]
			if s.hook != nil {
				if err = s.hook(ctx, i, q); err != nil {
					return 0, err
				}
			}
			hit := 0
			if q.IsCorrect {
				hit = 1
			}
			if _, err = tx.ExecContext(ctx, upsertBucketSQL, in.UserID, q.Category, in.Difficulty, hit, float64(hit*100)); err != nil {
				return 0, fmt.Errorf("upsert bucket %s/%s: %w", q.Category, in.Difficulty, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

type bucketRow struct {
	Category           string  `db:"category"`
	Difficulty         string  `db:"difficulty"`
	TotalQuestions     int     `db:"total_questions"`
	CorrectAnswers     int     `db:"correct_answers"`
	AccuracyPercentage float64 `db:"accuracy_percentage"`
	WeaknessScore      float64 `db:"weakness_score"`
}

func (b bucketRow) performance(userID string) domain.CategoryPerformance {
	return domain.CategoryPerformance{
		UserID:             userID,
		Category:           b.Category,
		Difficulty:         b.Difficulty,
		TotalQuestions:     b.TotalQuestions,
		CorrectAnswers:     b.CorrectAnswers,
		AccuracyPercentage: b.AccuracyPercentage,
	}
}

func (s *Store) Summary(ctx context.Context, userID string) ([]domain.CategoryPerformance, error) {
	var rows []bucketRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT category, difficulty, total_questions, correct_answers, accuracy_percentage
		FROM category_performance
		WHERE user_id = ?
		ORDER BY accuracy_percentage ASC, total_questions DESC, category ASC, difficulty ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	out := make([]domain.CategoryPerformance, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.performance(userID))
	}
	return out, nil
}

func (s *Store) WeakAreas(ctx context.Context, userID string, minQuestions int) ([]domain.WeakArea, error) {
	var rows []bucketRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT category, difficulty, total_questions, correct_answers, accuracy_percentage,
		       ROUND(100 - accuracy_percentage, 2) AS weakness_score
		FROM category_performance
		WHERE user_id = ? AND total_questions >= ?
		ORDER BY accuracy_percentage ASC, total_questions DESC, category ASC, difficulty ASC
		LIMIT ?`, userID, minQuestions, domain.MaxWeakAreas)
	if err != nil {
		return nil, fmt.Errorf("query weak areas: %w", err)
	}
	out := make([]domain.WeakArea, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.WeakArea{CategoryPerformance: r.performance(userID), WeaknessScore: r.WeaknessScore})
	}
	return out, nil
}

func (s *Store) DetailedStats(ctx context.Context, userID string) (domain.DetailedStats, error) {
	var stats domain.DetailedStats

	var overall struct {
		TotalSessions  int     `db:"total_sessions"`
		TotalCorrect   int     `db:"total_correct"`
		TotalQuestions int     `db:"total_questions"`
		AvgAccuracy    float64 `db:"avg_accuracy"`
	}
	err := s.db.GetContext(ctx, &overall, `
		SELECT COUNT(*) AS total_sessions,
		       COALESCE(SUM(score), 0) AS total_correct,
		       COALESCE(SUM(total_questions), 0) AS total_questions,
		       COALESCE(ROUND(AVG(score * 100.0 / NULLIF(total_questions, 0)), 2), 0.0) AS avg_accuracy
		FROM quiz_sessions
		WHERE user_id = ?`, userID)
	if err != nil {
		return stats, fmt.Errorf("query overall: %w", err)
	}
	stats.Overall = domain.OverallStats(overall)

	var categories []struct {
		Category          string  `db:"category"`
		QuestionsAnswered int     `db:"questions_answered"`
		CorrectAnswers    int     `db:"correct_answers"`
		Accuracy          float64 `db:"accuracy"`
	}
	err = s.db.SelectContext(ctx, &categories, `
		SELECT category,
		       COUNT(*) AS questions_answered,
		       SUM(CASE WHEN is_correct THEN 1 ELSE 0 END) AS correct_answers,
		       ROUND(AVG(CASE WHEN is_correct THEN 100.0 ELSE 0.0 END), 2) AS accuracy
		FROM question_results
		WHERE user_id = ?
		GROUP BY category
		ORDER BY accuracy ASC, category ASC`, userID)
	if err != nil {
		return stats, fmt.Errorf("query category stats: %w", err)
	}
	stats.ByCategory = make([]domain.CategoryStats, 0, len(categories))
	for _, c := range categories {
		stats.ByCategory = append(stats.ByCategory, domain.CategoryStats(c))
	}

	var recent []struct {
		ID             int64     `db:"id"`
		Difficulty     string    `db:"difficulty"`
		Score          int       `db:"score"`
		TotalQuestions int       `db:"total_questions"`
		Percentage     float64   `db:"percentage"`
		CompletedAt    time.Time `db:"completed_at"`
	}
	err = s.db.SelectContext(ctx, &recent, `
		SELECT id, difficulty, score, total_questions,
		       COALESCE(ROUND(score * 100.0 / NULLIF(total_questions, 0), 2), 0.0) AS percentage,
		       completed_at
		FROM quiz_sessions
		WHERE user_id = ?
		ORDER BY completed_at DESC, id DESC
		LIMIT ?`, userID, domain.RecentSessionLimit)
	if err != nil {
		return stats, fmt.Errorf("query recent sessions: %w", err)
	}
	stats.RecentSessions = make([]domain.RecentSession, 0, len(recent))
	for _, r := range recent {
		stats.RecentSessions = append(stats.RecentSessions, domain.RecentSession(r))
	}
	return stats, nil
}
