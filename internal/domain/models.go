package domain

import (
	"sort"
	"time"
)

// QuizSession is one completed quiz attempt. Rows are written once and never updated.
type QuizSession struct {
	ID             int64     `json:"id"`
	UserID         string    `json:"user_id"`
	Difficulty     string    `json:"difficulty"`
	QuestionCount  int       `json:"question_count"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	LLMProvider    string    `json:"llm_provider"`
	LLMModel       string    `json:"llm_model"`
	CompletedAt    time.Time `json:"completed_at"`
}

// QuestionResult is the outcome of a single answered question within a session.
type QuestionResult struct {
	SessionID     int64  `json:"session_id"`
	UserID        string `json:"user_id"`
	Category      string `json:"category"`
	Difficulty    string `json:"difficulty"`
	QuestionText  string `json:"question_text"`
	CorrectAnswer string `json:"correct_answer"`
	UserAnswer    string `json:"user_answer"`
	IsCorrect     bool   `json:"is_correct"`
}

// BucketKey identifies a CategoryPerformance row.
type BucketKey struct {
	UserID     string
	Category   string
	Difficulty string
}

// CategoryPerformance is the running accuracy aggregate for one bucket.
type CategoryPerformance struct {
	UserID             string  `json:"-"`
	Category           string  `json:"category"`
	Difficulty         string  `json:"difficulty"`
	TotalQuestions     int     `json:"total_questions"`
	CorrectAnswers     int     `json:"correct_answers"`
	AccuracyPercentage float64 `json:"accuracy_percentage"`
}

// Key returns the bucket the row belongs to.
func (c CategoryPerformance) Key() BucketKey {
	return BucketKey{UserID: c.UserID, Category: c.Category, Difficulty: c.Difficulty}
}

// WeakArea is a bucket surfaced for targeted practice.
type WeakArea struct {
	CategoryPerformance
	WeaknessScore float64 `json:"weakness_score"`
}

// QuestionOutcome is the client-reported result of one question.
type QuestionOutcome struct {
	Category      string `json:"category"`
	QuestionText  string `json:"question"`
	CorrectAnswer string `json:"correctAnswer"`
	UserAnswer    string `json:"userAnswer"`
	IsCorrect     bool   `json:"isCorrect"`
}

// SessionInput is everything needed to record a finished quiz.
type SessionInput struct {
	UserID         string            `json:"userId"`
	Difficulty     string            `json:"difficulty"`
	QuestionCount  int               `json:"questionCount"`
	Score          int               `json:"score"`
	TotalQuestions int               `json:"totalQuestions"`
	LLMProvider    string            `json:"llmProvider"`
	LLMModel       string            `json:"llmModel"`
	Questions      []QuestionOutcome `json:"questions"`
}

// Session builds the session row for the input.
func (in SessionInput) Session(completedAt time.Time) QuizSession {
	return QuizSession{
		UserID:         in.UserID,
		Difficulty:     in.Difficulty,
		QuestionCount:  in.QuestionCount,
		Score:          in.Score,
		TotalQuestions: in.TotalQuestions,
		LLMProvider:    in.LLMProvider,
		LLMModel:       in.LLMModel,
		CompletedAt:    completedAt,
	}
}

// Results builds the result rows for the input, all referencing sessionID.
func (in SessionInput) Results(sessionID int64) []QuestionResult {
	results := make([]QuestionResult, 0, len(in.Questions))
	for _, q := range in.Questions {
		results = append(results, QuestionResult{
			SessionID:     sessionID,
			UserID:        in.UserID,
			Category:      q.Category,
			Difficulty:    in.Difficulty,
			QuestionText:  q.QuestionText,
			CorrectAnswer: q.CorrectAnswer,
			UserAnswer:    q.UserAnswer,
			IsCorrect:     q.IsCorrect,
		})
	}
	return results
}

// OverallStats aggregates every session of a user.
type OverallStats struct {
	TotalSessions  int     `json:"total_sessions"`
	TotalCorrect   int     `json:"total_correct"`
	TotalQuestions int     `json:"total_questions"`
	AvgAccuracy    float64 `json:"avg_accuracy"`
}

// CategoryStats is derived from the question result log, not from the aggregate table.
type CategoryStats struct {
	Category          string  `json:"category"`
	QuestionsAnswered int     `json:"questions_answered"`
	CorrectAnswers    int     `json:"correct_answers"`
	Accuracy          float64 `json:"accuracy"`
}

// RecentSession is a session with its score percentage.
type RecentSession struct {
	ID             int64     `json:"id"`
	Difficulty     string    `json:"difficulty"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	Percentage     float64   `json:"percentage"`
	CompletedAt    time.Time `json:"completed_at"`
}

// DetailedStats is the combined statistics view for a user.
type DetailedStats struct {
	Overall        OverallStats    `json:"overall"`
	ByCategory     []CategoryStats `json:"byCategory"`
	RecentSessions []RecentSession `json:"recentSessions"`
}

// Personalization summarizes weak and strong areas for question generation.
type Personalization struct {
	WeakAreas   []WeakArea            `json:"weak_areas"`
	StrongAreas []CategoryPerformance `json:"strong_areas"`
	Prompt      string                `json:"prompt"`
}

// UpsertOrder returns question indexes sorted by category. Writers that lock one bucket per
// question walk this order so two sessions never take the same locks in opposite order.
func (in SessionInput) UpsertOrder() []int {
	order := make([]int, len(in.Questions))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return in.Questions[order[a]].Category < in.Questions[order[b]].Category
	})
	return order
}
