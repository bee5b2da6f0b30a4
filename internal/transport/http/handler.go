package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"codetrivia-performance/internal/app"
	"codetrivia-performance/internal/domain"
	"codetrivia-performance/internal/logger"
	"github.com/gorilla/websocket"
)

const maxSessionBody = 1 << 20

// Handler exposes the performance use cases over HTTP.
type Handler struct {
	service  *app.PerformanceService
	log      *logger.Logger
	upgrader websocket.Upgrader
}

func NewHandler(service *app.PerformanceService, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With("component", "http"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// NewRouter wires every route behind the middleware chain.
func NewRouter(h *Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /api/performance/summary/{userId}", h.Summary)
	mux.HandleFunc("GET /api/performance/stats/{userId}", h.Stats)
	mux.HandleFunc("GET /api/performance/weak-areas/{userId}", h.WeakAreas)
	mux.HandleFunc("GET /api/performance/personalization/{userId}", h.Personalization)
	mux.HandleFunc("POST /api/performance/session", h.RecordSession)
	mux.HandleFunc("GET /api/performance/ws", h.ServeWS)
	return RequestID(Logging(h.log)(Recover(h.log)(CORS(mux))))
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Summary(r.Context(), r.PathValue("userId"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, domain.ErrStatsUnavailable.Error())
		return
	}
	respondOK(w, rows)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.DetailedStats(r.Context(), r.PathValue("userId"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, domain.ErrStatsUnavailable.Error())
		return
	}
	respondOK(w, stats)
}

func (h *Handler) WeakAreas(w http.ResponseWriter, r *http.Request) {
	// Missing or unparsable values fall back to the default sample size.
	minQuestions, _ := strconv.Atoi(r.URL.Query().Get("minQuestions"))
	areas, err := h.service.WeakAreas(r.Context(), r.PathValue("userId"), minQuestions)
	if err != nil {
		respondError(w, http.StatusInternalServerError, domain.ErrStatsUnavailable.Error())
		return
	}
	respondOK(w, areas)
}

func (h *Handler) Personalization(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.PersonalizationContext(r.Context(), r.PathValue("userId"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, domain.ErrStatsUnavailable.Error())
		return
	}
	respondOK(w, p)
}

type sessionCreated struct {
	SessionID int64 `json:"sessionId"`
}

func (h *Handler) RecordSession(w http.ResponseWriter, r *http.Request) {
	var in domain.SessionInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSessionBody)).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid session payload")
		return
	}

	id, err := h.service.RecordSession(r.Context(), in)
	switch {
	case errors.Is(err, domain.ErrInvalidSession):
		respondError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		respondError(w, http.StatusInternalServerError, domain.ErrRecordFailed.Error())
	default:
		respondOK(w, sessionCreated{SessionID: id})
	}
}
