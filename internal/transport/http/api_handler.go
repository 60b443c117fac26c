package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"classquiz-service/internal/app"
	"classquiz-service/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// APIHandler serves the REST companion surface: join-code resolution and
// read-only quiz and leaderboard views for clients outside the live socket.
type APIHandler struct {
	ctrl    *app.Controller
	quizzes app.QuizStore
	ws      *WSHandler
}

func NewAPIHandler(ctrl *app.Controller, quizzes app.QuizStore, ws *WSHandler) *APIHandler {
	return &APIHandler{ctrl: ctrl, quizzes: quizzes, ws: ws}
}

// Router assembles the full HTTP surface, websocket endpoint included.
func (h *APIHandler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", h.handleHealth)
	r.Get("/ws", h.ws.ServeWS)

	r.Route("/api/quizzes", func(r chi.Router) {
		r.Post("/join", h.handleJoinByCode)
		r.Get("/{quizID}", h.handleGetQuiz)
		r.Get("/{quizID}/leaderboard", h.handleLeaderboard)
	})
	return r
}

func (h *APIHandler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type joinByCodeRequest struct {
	JoinCode string `json:"joinCode"`
}

type joinByCodeResponse struct {
	QuizID string            `json:"quizId"`
	Title  string            `json:"title"`
	IsLive bool              `json:"isLive"`
	Status domain.QuizStatus `json:"status"`
}

func (h *APIHandler) handleJoinByCode(w http.ResponseWriter, r *http.Request) {
	var req joinByCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.JoinCode == "" {
		writeError(w, http.StatusBadRequest, "joinCode required")
		return
	}
	quiz, err := h.quizzes.FindQuizByCode(r.Context(), req.JoinCode)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, joinByCodeResponse{QuizID: quiz.ID, Title: quiz.Title, IsLive: quiz.IsLive, Status: quiz.Status})
}

func (h *APIHandler) handleGetQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := h.quizzes.FindQuiz(r.Context(), chi.URLParam(r, "quizID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	// Answer keys stay server-side until the session is over.
	if quiz.Status != domain.StatusFinished {
		redacted := make([]domain.Question, len(quiz.Questions))
		for i, q := range quiz.Questions {
			q.CorrectAnswer = ""
			redacted[i] = q
		}
		quiz.Questions = redacted
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *APIHandler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	quizID := chi.URLParam(r, "quizID")
	entries, err := h.ctrl.Leaderboard(r.Context(), quizID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.LeaderboardUpdate{QuizID: quizID, Entries: entries})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrQuizNotFound) {
		writeError(w, http.StatusNotFound, "quiz not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorPayload{Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("http: write response: %v", err)
	}
}
