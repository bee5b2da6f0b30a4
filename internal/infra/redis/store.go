package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"codetrivia-performance/internal/app"
	"codetrivia-performance/internal/domain"
	"github.com/redis/go-redis/v9"
)

// recordScript applies one session in a single atomic step.
//
// KEYS: session, session results, user sessions, user overall, user categories,
// user bucket set, then one bucket key per question.
// ARGV: id, session json, score, total, difficulty, then (result json, category, hit)
// per question.
var recordScript = redis.NewScript(`
local id = ARGV[1]
local score, total = tonumber(ARGV[3]), tonumber(ARGV[4])
redis.call('SET', KEYS[1], ARGV[2])
redis.call('ZADD', KEYS[3], id, id)
redis.call('HINCRBY', KEYS[4], 'sessions', 1)
redis.call('HINCRBY', KEYS[4], 'correct', score)
redis.call('HINCRBY', KEYS[4], 'questions', total)
if total > 0 then
  redis.call('HINCRBYFLOAT', KEYS[4], 'pct_sum', score / total * 100)
  redis.call('HINCRBY', KEYS[4], 'pct_count', 1)
end
for i = 7, #KEYS do
  local base = 5 + (i - 7) * 3
  local category, hit = ARGV[base + 2], tonumber(ARGV[base + 3])
  redis.call('RPUSH', KEYS[2], ARGV[base + 1])
  redis.call('HINCRBY', KEYS[5], 'answered:' .. category, 1)
  redis.call('HINCRBY', KEYS[5], 'correct:' .. category, hit)
  local bucket = KEYS[i]
  local n = redis.call('HINCRBY', bucket, 'total_questions', 1)
  local c = redis.call('HINCRBY', bucket, 'correct_answers', hit)
  local accuracy = math.floor(c / n * 100 * 100 + 0.5) / 100
  redis.call('HSET', bucket, 'category', category, 'difficulty', ARGV[5], 'accuracy_percentage', tostring(accuracy))
  redis.call('SADD', KEYS[6], bucket)
end
return id
`)

// Store keeps sessions, results and buckets in Redis. Every session is written by one
// Lua script, so bucket increments never interleave.
type Store struct {
	client *redis.Client
	prefix string
	now    func() time.Time
	hook   app.BucketHook
}

// Option customizes a Store.
type Option func(*Store)

// WithPrefix namespaces every key. Defaults to "perf".
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithBucketHook installs a hook that runs for every question while the script
// arguments are staged; an error aborts before anything is written.
func WithBucketHook(hook app.BucketHook) Option {
	return func(s *Store) { s.hook = hook }
}

func NewStore(client *redis.Client, opts ...Option) *Store {
	s := &Store{client: client, prefix: "perf", now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(parts ...string) string {
	escaped := make([]string, 0, len(parts)+1)
	escaped = append(escaped, s.prefix)
	for _, p := range parts {
		escaped = append(escaped, url.QueryEscape(p))
	}
	return strings.Join(escaped, ":")
}

func (s *Store) sessionKey(id int64) string { return s.key("session", strconv.FormatInt(id, 10)) }

func (s *Store) bucketKey(userID, category, difficulty string) string {
	return s.key("bucket", userID, category, difficulty)
}

func (s *Store) RecordSession(ctx context.Context, in domain.SessionInput) (int64, error) {
	id, err := s.client.Incr(ctx, s.key("session", "seq")).Result()
	if err != nil {
		return 0, fmt.Errorf("allocate session id: %w", err)
	}

	session := in.Session(s.now().UTC())
	session.ID = id
	sessionJSON, err := json.Marshal(session)
	if err != nil {
		return 0, fmt.Errorf("encode session: %w", err)
	}

	keys := []string{
		s.sessionKey(id),
		s.sessionKey(id) + ":results",
		s.key("user", in.UserID, "sessions"),
		s.key("user", in.UserID, "overall"),
		s.key("user", in.UserID, "categories"),
		s.key("user", in.UserID, "buckets"),
	}
	args := []interface{}{id, sessionJSON, in.Score, in.TotalQuestions, in.Difficulty}

	for i, res := range in.Results(id) {
		q := in.Questions[i]
		if s.hook != nil {
			if err := s.hook(ctx, i, q); err != nil {
				return 0, err
			}
		}
		resultJSON, err := json.Marshal(res)
		if err != nil {
			return 0, fmt.Errorf("encode result: %w", err)
		}
		hit := 0
		if q.IsCorrect {
			hit = 1
		}
		keys = append(keys, s.bucketKey(in.UserID, q.Category, in.Difficulty))
		args = append(args, resultJSON, q.Category, hit)
	}

	if err := recordScript.Run(ctx, s.client, keys, args...).Err(); err != nil {
		return 0, fmt.Errorf("record session: %w", err)
	}
	return id, nil
}

func (s *Store) Summary(ctx context.Context, userID string) ([]domain.CategoryPerformance, error) {
	bucketKeys, err := s.client.SMembers(ctx, s.key("user", userID, "buckets")).Result()
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	out := make([]domain.CategoryPerformance, 0, len(bucketKeys))
	if len(bucketKeys) == 0 {
		return out, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, 0, len(bucketKeys))
	for _, k := range bucketKeys {
		cmds = append(cmds, pipe.HGetAll(ctx, k))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("load buckets: %w", err)
	}

	for _, cmd := range cmds {
		fields := cmd.Val()
		out = append(out, domain.CategoryPerformance{
			UserID:             userID,
			Category:           fields["category"],
			Difficulty:         fields["difficulty"],
			TotalQuestions:     atoi(fields["total_questions"]),
			CorrectAnswers:     atoi(fields["correct_answers"]),
			AccuracyPercentage: atof(fields["accuracy_percentage"]),
		})
	}
	domain.SortSummary(out)
	return out, nil
}

func (s *Store) WeakAreas(ctx context.Context, userID string, minQuestions int) ([]domain.WeakArea, error) {
	rows, err := s.Summary(ctx, userID)
	if err != nil {
		return nil, err
	}
	return domain.RankWeakAreas(rows, minQuestions), nil
}

func (s *Store) DetailedStats(ctx context.Context, userID string) (domain.DetailedStats, error) {
	var stats domain.DetailedStats

	pipe := s.client.Pipeline()
	overallCmd := pipe.HGetAll(ctx, s.key("user", userID, "overall"))
	categoriesCmd := pipe.HGetAll(ctx, s.key("user", userID, "categories"))
	recentCmd := pipe.ZRevRange(ctx, s.key("user", userID, "sessions"), 0, domain.RecentSessionLimit-1)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return stats, fmt.Errorf("load stats: %w", err)
	}

	overall := overallCmd.Val()
	stats.Overall = domain.OverallStats{
		TotalSessions:  atoi(overall["sessions"]),
		TotalCorrect:   atoi(overall["correct"]),
		TotalQuestions: atoi(overall["questions"]),
	}
	if n := atoi(overall["pct_count"]); n > 0 {
		stats.Overall.AvgAccuracy = domain.Round2(atof(overall["pct_sum"]) / float64(n))
	}

	stats.ByCategory = make([]domain.CategoryStats, 0)
	categories := categoriesCmd.Val()
	for field, answered := range categories {
		category, ok := strings.CutPrefix(field, "answered:")
		if !ok {
			continue
		}
		cs := domain.CategoryStats{
			Category:          category,
			QuestionsAnswered: atoi(answered),
			CorrectAnswers:    atoi(categories["correct:"+category]),
		}
		cs.Accuracy = domain.Percentage(cs.CorrectAnswers, cs.QuestionsAnswered)
		stats.ByCategory = append(stats.ByCategory, cs)
	}
	domain.SortCategoryStats(stats.ByCategory)

	stats.RecentSessions = make([]domain.RecentSession, 0)
	ids := recentCmd.Val()
	if len(ids) == 0 {
		return stats, nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, s.key("session", id))
	}
	raw, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return stats, fmt.Errorf("load recent sessions: %w", err)
	}
	for _, v := range raw {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var session domain.QuizSession
		if err := json.Unmarshal([]byte(str), &session); err != nil {
			return stats, fmt.Errorf("decode session: %w", err)
		}
		stats.RecentSessions = append(stats.RecentSessions, domain.RecentSession{
			ID:             session.ID,
			Difficulty:     session.Difficulty,
			Score:          session.Score,
			TotalQuestions: session.TotalQuestions,
			Percentage:     domain.Percentage(session.Score, session.TotalQuestions),
			CompletedAt:    session.CompletedAt,
		})
	}
	return stats, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atof(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
