package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"codetrivia-performance/internal/app"
	"codetrivia-performance/internal/domain"
	"codetrivia-performance/internal/infra/memory"
	"codetrivia-performance/internal/logger"
	"github.com/gorilla/websocket"
)

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newTestServer(t *testing.T, opts ...memory.Option) *httptest.Server {
	t.Helper()
	store := memory.NewStore(opts...)
	service := app.NewPerformanceService(store, store, logger.Nop(), app.WithFeed(app.NewFeed()), app.WithTimeout(time.Second))
	server := httptest.NewServer(NewRouter(NewHandler(service, logger.Nop())))
	t.Cleanup(server.Close)
	return server
}

func do(t *testing.T, method, url, body string) (int, response) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, out
}

const sqlSession = `{
	"userId": "1",
	"difficulty": "medium",
	"questionCount": 2,
	"score": 1,
	"totalQuestions": 2,
	"llmProvider": "openai",
	"llmModel": "gpt-4o-mini",
	"questions": [
		{"category": "sql", "question": "What does JOIN do?", "correctAnswer": "a", "userAnswer": "a", "isCorrect": true},
		{"category": "sql", "question": "What is an index?", "correctAnswer": "b", "userAnswer": "c", "isCorrect": false}
	]
}`

func TestRecordSessionThenSummary(t *testing.T) {
	server := newTestServer(t)

	status, resp := do(t, http.MethodPost, server.URL+"/api/performance/session", sqlSession)
	if status != http.StatusOK || !resp.Success {
		t.Fatalf("expected success, got %d %+v", status, resp)
	}
	var created struct {
		SessionID int64 `json:"sessionId"`
	}
	if err := json.Unmarshal(resp.Data, &created); err != nil || created.SessionID != 1 {
		t.Fatalf("expected sessionId 1, got %s (%v)", resp.Data, err)
	}

	status, resp = do(t, http.MethodGet, server.URL+"/api/performance/summary/1", "")
	if status != http.StatusOK {
		t.Fatalf("summary status %d", status)
	}
	var rows []map[string]any
	if err := json.Unmarshal(resp.Data, &rows); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one bucket, got %s", resp.Data)
	}
	row := rows[0]
	if row["category"] != "sql" || row["total_questions"] != float64(2) || row["correct_answers"] != float64(1) || row["accuracy_percentage"] != float64(50) {
		t.Fatalf("unexpected bucket %v", row)
	}
}

func TestRecordSessionRejectsMalformedPayload(t *testing.T) {
	server := newTestServer(t)

	status, resp := do(t, http.MethodPost, server.URL+"/api/performance/session", `{"userId":`)
	if status != http.StatusBadRequest || resp.Success {
		t.Fatalf("expected 400 for broken json, got %d %+v", status, resp)
	}

	status, resp = do(t, http.MethodPost, server.URL+"/api/performance/session", `{"difficulty":"easy","questions":[]}`)
	if status != http.StatusBadRequest || !strings.Contains(resp.Error, "userId") {
		t.Fatalf("expected 400 naming userId, got %d %+v", status, resp)
	}
}

func TestRecordSessionStorageFailureIsGeneric(t *testing.T) {
	server := newTestServer(t, memory.WithBucketHook(func(context.Context, int, domain.QuestionOutcome) error {
		return errors.New("connection reset by peer")
	}))

	status, resp := do(t, http.MethodPost, server.URL+"/api/performance/session", sqlSession)
	if status != http.StatusInternalServerError || resp.Success {
		t.Fatalf("expected 500, got %d %+v", status, resp)
	}
	if resp.Error != domain.ErrRecordFailed.Error() {
		t.Fatalf("expected generic error, got %q", resp.Error)
	}

	_, resp = do(t, http.MethodGet, server.URL+"/api/performance/summary/1", "")
	if string(resp.Data) != "[]" {
		t.Fatalf("expected nothing persisted, got %s", resp.Data)
	}
}

func TestStatsForUnknownUser(t *testing.T) {
	server := newTestServer(t)

	status, resp := do(t, http.MethodGet, server.URL+"/api/performance/stats/nobody", "")
	if status != http.StatusOK {
		t.Fatalf("stats status %d", status)
	}
	var stats domain.DetailedStats
	if err := json.Unmarshal(resp.Data, &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Overall.TotalSessions != 0 || stats.Overall.AvgAccuracy != 0 {
		t.Fatalf("expected zero stats, got %+v", stats.Overall)
	}
	if !bytes.Contains(resp.Data, []byte(`"total_sessions":0`)) {
		t.Fatalf("expected snake_case overall fields, got %s", resp.Data)
	}
}

func TestWeakAreasMinQuestions(t *testing.T) {
	server := newTestServer(t)
	do(t, http.MethodPost, server.URL+"/api/performance/session", sqlSession)

	_, resp := do(t, http.MethodGet, server.URL+"/api/performance/weak-areas/1", "")
	if string(resp.Data) != "[]" {
		t.Fatalf("two answers are below the default sample size, got %s", resp.Data)
	}

	_, resp = do(t, http.MethodGet, server.URL+"/api/performance/weak-areas/1?minQuestions=2", "")
	var areas []domain.WeakArea
	if err := json.Unmarshal(resp.Data, &areas); err != nil {
		t.Fatalf("decode weak areas: %v", err)
	}
	if len(areas) != 1 || areas[0].WeaknessScore != 50 {
		t.Fatalf("unexpected weak areas %s", resp.Data)
	}
}

func TestPersonalizationEmpty(t *testing.T) {
	server := newTestServer(t)

	_, resp := do(t, http.MethodGet, server.URL+"/api/performance/personalization/1", "")
	var p domain.Personalization
	if err := json.Unmarshal(resp.Data, &p); err != nil {
		t.Fatalf("decode personalization: %v", err)
	}
	if p.Prompt != "" || len(p.WeakAreas) != 0 {
		t.Fatalf("expected empty personalization, got %+v", p)
	}
}

func TestHealthAndRequestID(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected CORS header")
	}
}

func TestWebSocketSummaryFeed(t *testing.T) {
	server := newTestServer(t)

	u := "ws" + server.URL[len("http"):] + "/api/performance/ws?userId=1"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	initial := readSummary(t, conn)
	if len(initial) != 0 {
		t.Fatalf("expected empty initial summary, got %+v", initial)
	}

	if status, _ := do(t, http.MethodPost, server.URL+"/api/performance/session", sqlSession); status != http.StatusOK {
		t.Fatalf("record status %d", status)
	}

	updated := readSummary(t, conn)
	if len(updated) != 1 || updated[0].TotalQuestions != 2 || updated[0].AccuracyPercentage != 50 {
		t.Fatalf("unexpected pushed summary %+v", updated)
	}
}

func readSummary(t *testing.T, conn *websocket.Conn) []domain.CategoryPerformance {
	t.Helper()
	var msg struct {
		Type    string                       `json:"type"`
		Payload []domain.CategoryPerformance `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if msg.Type != "summary" {
		t.Fatalf("expected summary message, got %s", msg.Type)
	}
	return msg.Payload
}

func TestRecoverTurnsPanicIntoErrorEnvelope(t *testing.T) {
	handler := Recover(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil bucket")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/performance/summary/1", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var out response
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Success || out.Error != "Something went wrong!" {
		t.Fatalf("unexpected envelope %+v", out)
	}
}
