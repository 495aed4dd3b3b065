package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gmarcinek/semantic-k/internal/pipeline"
	"github.com/gmarcinek/semantic-k/internal/retrieval"
	"github.com/gmarcinek/semantic-k/internal/session"
)

const (
	historyLimit        = 6
	defaultMessageLimit = 50
	maxMessageLimit     = 200
	maxPromptRunes      = 4000
)

type Retriever interface {
	Run(ctx context.Context, prompt string, queries retrieval.Queries, history []retrieval.ChatMessage) (pipeline.Result, error)
}

type sessionStore interface {
	CreateSession(ctx context.Context) (session.Session, error)
	GetSession(ctx context.Context, id string) (session.Session, error)
	AppendMessage(ctx context.Context, sessionID, role, content string, metadata any) (session.Message, error)
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]session.Message, error)
	ResetSession(ctx context.Context, sessionID string) error
}

type Handler struct {
	sessions  sessionStore
	retriever Retriever
	logger    *zap.Logger
}

func NewHandler(sessions sessionStore, retriever Retriever, logger *zap.Logger) Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Handler{sessions: sessions, retriever: retriever, logger: logger}
}

func (h Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	created, err := h.sessions.CreateSession(r.Context())
	if err != nil {
		h.logger.Error("create session failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "db_error", "failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"session": created})
}

func (h Handler) ResetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	err := h.sessions.ResetSession(r.Context(), sessionID)
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session_not_found", "session not found")
		return
	}
	if err != nil {
		h.logger.Error("reset session failed", zap.String("session_id", sessionID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "db_error", "failed to reset session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	limit := defaultMessageLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxMessageLimit)
	}

	messages, err := h.sessions.RecentMessages(r.Context(), sessionID, limit)
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session_not_found", "session not found")
		return
	}
	if err != nil {
		h.logger.Error("list messages failed", zap.String("session_id", sessionID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "db_error", "failed to read messages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

type retrieveRequest struct {
	SessionID string             `json:"sessionId"`
	Prompt    string             `json:"prompt"`
	Queries   *retrieval.Queries `json:"queries"`
}

type retrieveResponse struct {
	Context   string             `json:"context"`
	Bundle    *retrieval.Bundle  `json:"bundle"`
	Strategy  retrieval.Strategy `json:"strategy"`
	TopAnswer []retrieval.Source `json:"topAnswer"`
	Perfect   []retrieval.Source `json:"perfect"`
}

type retrievalMetadata struct {
	Strategy retrieval.Strategy `json:"strategy"`
	Bundle   *retrieval.Bundle  `json:"bundle"`
	Context  string             `json:"context,omitempty"`
}

func (h Handler) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	prompt := strings.TrimSpace(req.Prompt)
	if len([]rune(prompt)) > maxPromptRunes {
		writeError(w, http.StatusBadRequest, "invalid_request", "prompt is too long")
		return
	}

	var queries retrieval.Queries
	if req.Queries != nil {
		queries = *req.Queries
	}
	if prompt == "" && queries.IsEmpty() {
		writeError(w, http.StatusBadRequest, "invalid_request", "prompt or queries are required")
		return
	}

	sessionID := strings.TrimSpace(req.SessionID)
	var history []retrieval.ChatMessage
	if sessionID != "" {
		messages, err := h.sessions.RecentMessages(r.Context(), sessionID, historyLimit)
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session_not_found", "session not found")
			return
		}
		if err != nil {
			h.logger.Error("load history failed", zap.String("session_id", sessionID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "db_error", "failed to load history")
			return
		}
		history = toChatMessages(messages)
	}

	result, err := h.retriever.Run(r.Context(), prompt, queries, history)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusGatewayTimeout, "retrieval_timeout", "retrieval timed out")
			return
		}
		h.logger.Warn("retrieval failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "retrieval_unavailable", "retrieval could not complete")
		return
	}

	// A queries-only request is stored under the bundle's query summary.
	content := prompt
	if content == "" && result.Bundle != nil {
		content = result.Bundle.Query
	}
	if sessionID != "" && content != "" {
		metadata := retrievalMetadata{Strategy: result.Decision.Strategy, Bundle: result.Bundle, Context: result.Context}
		if _, err := h.sessions.AppendMessage(r.Context(), sessionID, "user", content, metadata); err != nil {
			h.logger.Error("store message failed", zap.String("session_id", sessionID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "db_error", "failed to store message")
			return
		}
	}

	writeJSON(w, http.StatusOK, retrieveResponse{
		Context:   result.Context,
		Bundle:    result.Bundle,
		Strategy:  result.Decision.Strategy,
		TopAnswer: result.Decision.TopAnswer,
		Perfect:   result.Decision.Perfect,
	})
}

func toChatMessages(messages []session.Message) []retrieval.ChatMessage {
	out := make([]retrieval.ChatMessage, 0, len(messages))
	for _, message := range messages {
		out = append(out, retrieval.ChatMessage{Role: message.Role, Content: message.Content})
	}
	return out
}
