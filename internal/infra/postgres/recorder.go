package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"codetrivia-performance/internal/app"
	"codetrivia-performance/internal/domain"
	pgmigrations "codetrivia-performance/internal/infra/postgres/migrations"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

type sessionRow struct {
	bun.BaseModel `bun:"table:quiz_sessions,alias:qs"`

	ID             int64     `bun:"id,pk,autoincrement"`
	UserID         string    `bun:"user_id,notnull"`
	Difficulty     string    `bun:"difficulty,notnull"`
	QuestionCount  int       `bun:"question_count,notnull"`
	Score          int       `bun:"score,notnull"`
	TotalQuestions int       `bun:"total_questions,notnull"`
	LLMProvider    string    `bun:"llm_provider,notnull"`
	LLMModel       string    `bun:"llm_model,notnull"`
	CompletedAt    time.Time `bun:"completed_at,nullzero,notnull,default:current_timestamp"`
}

type resultRow struct {
	bun.BaseModel `bun:"table:question_results,alias:qr"`

	ID            int64  `bun:"id,pk,autoincrement"`
	SessionID     int64  `bun:"session_id,notnull"`
	UserID        string `bun:"user_id,notnull"`
	Category      string `bun:"category,notnull"`
	Difficulty    string `bun:"difficulty,notnull"`
	QuestionText  string `bun:"question_text,notnull"`
	CorrectAnswer string `bun:"correct_answer,notnull"`
	UserAnswer    string `bun:"user_answer,notnull"`
	IsCorrect     bool   `bun:"is_correct,notnull"`
}

type bucketRow struct {
	bun.BaseModel `bun:"table:category_performance,alias:cp"`

	ID                 int64   `bun:"id,pk,autoincrement"`
	UserID             string  `bun:"user_id,notnull"`
	Category           string  `bun:"category,notnull"`
	Difficulty         string  `bun:"difficulty,notnull"`
	TotalQuestions     int     `bun:"total_questions,notnull"`
	CorrectAnswers     int     `bun:"correct_answers,notnull"`
	AccuracyPercentage float64 `bun:"accuracy_percentage,notnull"`
}

// Open returns a bun handle for dsn using the pgdriver connector.
func Open(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// Migrate applies every pending schema migration.
func Migrate(ctx context.Context, db *bun.DB) error {
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Recorder writes sessions through bun inside one transaction per session.
type Recorder struct {
	db   *bun.DB
	hook app.BucketHook
}

// Option customizes a Recorder.
type Option func(*Recorder)

// WithBucketHook installs a hook that runs inside the transaction before every bucket upsert.
func WithBucketHook(hook app.BucketHook) Option {
	return func(r *Recorder) { r.hook = hook }
}

func NewRecorder(db *bun.DB, opts ...Option) *Recorder {
	r := &Recorder{db: db}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) RecordSession(ctx context.Context, in domain.SessionInput) (int64, error) {
	session := sessionRow{
		UserID:         in.UserID,
		Difficulty:     in.Difficulty,
		QuestionCount:  in.QuestionCount,
		Score:          in.Score,
		TotalQuestions: in.TotalQuestions,
		LLMProvider:    in.LLMProvider,
		LLMModel:       in.LLMModel,
	}

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&session).Returning("id, completed_at").Exec(ctx); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		if len(in.Questions) == 0 {
			return nil
		}

		results := make([]resultRow, 0, len(in.Questions))
		for _, res := range in.Results(session.ID) {
			results = append(results, resultRow{
				SessionID:     res.SessionID,
				UserID:        res.UserID,
				Category:      res.Category,
				Difficulty:    res.Difficulty,
				QuestionText:  res.QuestionText,
				CorrectAnswer: res.CorrectAnswer,
				UserAnswer:    res.UserAnswer,
				IsCorrect:     res.IsCorrect,
			})
		}
		if _, err := tx.NewInsert().Model(&results).Exec(ctx); err != nil {
			return fmt.Errorf("insert results: %w", err)
		}

		for _, i := range in.UpsertOrder() {
			q := in.Questions[i]
			if r.hook != nil {
				if err := r.hook(ctx, i, q); err != nil {
					return err
				}
			}
			if err := upsertBucket(ctx, tx, in.UserID, q.Category, in.Difficulty, q.IsCorrect); err != nil {
				return fmt.Errorf("upsert bucket %s/%s: %w", q.Category, in.Difficulty, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("record session: %w", err)
	}
	return session.ID, nil
}

// upsertBucket increments the bucket and recomputes its accuracy from the incremented
// counters in the same statement, so concurrent sessions serialize on the row lock.
func upsertBucket(ctx context.Context, tx bun.Tx, userID, category, difficulty string, correct bool) error {
	hit := 0
	if correct {
		hit = 1
	}
	row := bucketRow{
		UserID:             userID,
		Category:           category,
		Difficulty:         difficulty,
		TotalQuestions:     1,
		CorrectAnswers:     hit,
		AccuracyPercentage: float64(hit * 100),
	}
	_, err := tx.NewInsert().
		Model(&row).
		On("CONFLICT (user_id, category, difficulty) DO UPDATE").
		Set("total_questions = cp.total_questions + 1").
		Set("correct_answers = cp.correct_answers + EXCLUDED.correct_answers").
		Set("accuracy_percentage = ROUND((cp.correct_answers + EXCLUDED.correct_answers) * 100.0 / (cp.total_questions + 1), 2)::double precision").
		Set("updated_at = now()").
		Returning("NULL").
		Exec(ctx)
	return err
}
