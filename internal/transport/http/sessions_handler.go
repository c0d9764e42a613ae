package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"quiz-arena/internal/app"
	"quiz-arena/internal/domain"
)

// SessionsHandler exposes the admin REST surface: session creation and
// summary retrieval. Authorization happens upstream.
type SessionsHandler struct {
	service *app.SessionService
	logger  zerolog.Logger
}

func NewSessionsHandler(service *app.SessionService, logger zerolog.Logger) *SessionsHandler {
	return &SessionsHandler{service: service, logger: logger}
}

type createSessionRequest struct {
	QuizID              string  `json:"quizId"`
	Mode                string  `json:"mode"`
	SpeedFloor          float64 `json:"speedFloor,omitempty"`
	EliminationFraction float64 `json:"eliminationFraction,omitempty"`
	QuestionsPerMatch   int     `json:"questionsPerMatch,omitempty"`
	PresentDelayMs      *int64  `json:"presentDelayMs,omitempty"`
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
}

// ServeHTTP routes POST /sessions and GET /sessions/{id}/summary.
func (h *SessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/sessions":
		h.create(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/summary"):
		h.summary(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *SessionsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	cfg := domain.SessionConfig{
		SpeedFloor:          req.SpeedFloor,
		EliminationFraction: req.EliminationFraction,
		QuestionsPerMatch:   req.QuestionsPerMatch,
		// Absent means "use the server default"; an explicit zero skips the
		// presenting pause entirely.
		PresentDelay: -1,
	}
	if req.PresentDelayMs != nil {
		cfg.PresentDelay = time.Duration(*req.PresentDelayMs) * time.Millisecond
	}
	id, err := h.service.Create(r.Context(), req.QuizID, domain.Mode(req.Mode), cfg)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(createSessionResponse{SessionID: id})
}

func (h *SessionsHandler) summary(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/sessions/"), "/summary")
	summary, err := h.service.Summary(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(summary)
}

func (h *SessionsHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrQuizNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidSessionConfig):
		status = http.StatusBadRequest
	}
	http.Error(w, err.Error(), status)
}
