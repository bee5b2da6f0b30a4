package domain

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

const (
	// DefaultMinQuestions is the sample size below which a bucket is not ranked as weak.
	DefaultMinQuestions = 3
	// MaxWeakAreas bounds the weak-area ranking.
	MaxWeakAreas = 5
	// RecentSessionLimit bounds the recent session trend.
	RecentSessionLimit = 10

	strongAccuracy     = 70.0
	strongMinQuestions = 5
	maxStrongAreas     = 3
)

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Percentage returns part/whole*100 rounded to two decimals, or 0 when whole is 0.
func Percentage(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return Round2(float64(part) / float64(whole) * 100)
}

// Increment applies one answered question to the bucket and recomputes its accuracy
// from the updated counters.
func (c *CategoryPerformance) Increment(correct bool) {
	c.TotalQuestions++
	if correct {
		c.CorrectAnswers++
	}
	c.AccuracyPercentage = Percentage(c.CorrectAnswers, c.TotalQuestions)
}

// SortSummary orders buckets worst-performing first, most attempted first among equals.
func SortSummary(rows []CategoryPerformance) {
	sort.SliceStable(rows, func(i, j int) bool {
		return lessWeak(rows[i], rows[j])
	})
}

func lessWeak(a, b CategoryPerformance) bool {
	if a.AccuracyPercentage != b.AccuracyPercentage {
		return a.AccuracyPercentage < b.AccuracyPercentage
	}
	if a.TotalQuestions != b.TotalQuestions {
		return a.TotalQuestions > b.TotalQuestions
	}
	if a.Category != b.Category {
		return a.Category < b.Category
	}
	return a.Difficulty < b.Difficulty
}

// SortCategoryStats orders per-category stats by ascending accuracy, then name.
func SortCategoryStats(rows []CategoryStats) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Accuracy != rows[j].Accuracy {
			return rows[i].Accuracy < rows[j].Accuracy
		}
		return rows[i].Category < rows[j].Category
	})
}

// RankWeakAreas keeps buckets with at least minQuestions answers, orders them like
// SortSummary and returns at most MaxWeakAreas.
func RankWeakAreas(rows []CategoryPerformance, minQuestions int) []WeakArea {
	eligible := make([]CategoryPerformance, 0, len(rows))
	for _, r := range rows {
		if r.TotalQuestions >= minQuestions {
			eligible = append(eligible, r)
		}
	}
	SortSummary(eligible)
	if len(eligible) > MaxWeakAreas {
		eligible = eligible[:MaxWeakAreas]
	}
	out := make([]WeakArea, 0, len(eligible))
	for _, r := range eligible {
		out = append(out, WeakArea{CategoryPerformance: r, WeaknessScore: Round2(100 - r.AccuracyPercentage)})
	}
	return out
}

// StrongAreas returns up to three well-sampled buckets with high accuracy, strongest first.
func StrongAreas(rows []CategoryPerformance) []CategoryPerformance {
	out := make([]CategoryPerformance, 0)
	for _, r := range rows {
		if r.AccuracyPercentage >= strongAccuracy && r.TotalQuestions >= strongMinQuestions {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AccuracyPercentage != out[j].AccuracyPercentage {
			return out[i].AccuracyPercentage > out[j].AccuracyPercentage
		}
		return out[i].TotalQuestions > out[j].TotalQuestions
	})
	if len(out) > maxStrongAreas {
		out = out[:maxStrongAreas]
	}
	return out
}

// PersonalizationPrompt renders the context block appended to question generation prompts.
// It returns "" when there is nothing to personalize on.
func PersonalizationPrompt(weak []WeakArea, strong []CategoryPerformance) string {
	if len(weak) == 0 && len(strong) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nPERSONALIZATION CONTEXT:\n")
	if len(weak) > 0 {
		b.WriteString("The user needs more practice in these areas:\n")
		for _, w := range weak {
			b.WriteString("- " + w.Category + " (" + w.Difficulty + "): " +
				strconv.FormatFloat(w.AccuracyPercentage, 'f', 1, 64) + "% accuracy (" +
				strconv.Itoa(w.TotalQuestions) + " questions answered)\n")
		}
		b.WriteString("\nFocus 60-70% of questions on these weak areas.\n")
	}
	if len(strong) > 0 {
		b.WriteString("\nStrong areas (avoid over-practicing):\n")
		for _, s := range strong {
			b.WriteString("- " + s.Category + " (" + s.Difficulty + "): " +
				strconv.FormatFloat(s.AccuracyPercentage, 'f', 1, 64) + "% accuracy\n")
		}
	}
	return b.String()
}

// Validate rejects malformed session payloads before any storage work happens.
func (in SessionInput) Validate() error {
	switch {
	case strings.TrimSpace(in.UserID) == "":
		return &ValidationError{Field: "userId", Reason: "is required"}
	case strings.TrimSpace(in.Difficulty) == "":
		return &ValidationError{Field: "difficulty", Reason: "is required"}
	case in.QuestionCount < 0:
		return &ValidationError{Field: "questionCount", Reason: "must not be negative"}
	case in.TotalQuestions < 0:
		return &ValidationError{Field: "totalQuestions", Reason: "must not be negative"}
	case in.Score < 0:
		return &ValidationError{Field: "score", Reason: "must not be negative"}
	case in.Score > in.TotalQuestions:
		return &ValidationError{Field: "score", Reason: "must not exceed totalQuestions"}
	case len(in.Questions) > 0 && len(in.Questions) != in.TotalQuestions:
		return &ValidationError{Field: "questions", Reason: "must contain totalQuestions entries"}
	}
	for i, q := range in.Questions {
		if strings.TrimSpace(q.Category) == "" {
			return &ValidationError{Field: "questions[" + strconv.Itoa(i) + "].category", Reason: "is required"}
		}
	}
	return nil
}
