package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/bravurbot/internal/intent"
	"github.com/ent0n29/bravurbot/internal/memory"
	"github.com/ent0n29/bravurbot/internal/session"
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	sess, err := s.sessions.Create(r.Context(), req.Language)
	if err != nil {
		s.logger.Error("create session failed", "error", err)
		respondError(w, http.StatusInternalServerError, "session_create_failed", "failed to create session")
		return
	}
	s.metrics.SetActiveSessions(s.sessions.ActiveCount(r.Context()))
	s.metrics.IncSessionEvent("created")

	respondJSON(w, http.StatusCreated, session.CreateResponse{
		SessionID:   sess.ID,
		Status:      sess.Status,
		Language:    sess.Language,
		StartedAt:   sess.StartedAt,
		ExpiresAt:   sess.StartedAt.Add(s.sessions.Retention()),
		RetentionMS: s.sessions.Retention().Milliseconds(),
	})
}

func (s *Server) handleValidateSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.sessions.Validate(r.Context(), id)
	if err != nil {
		s.respondSessionError(w, err)
		return
	}
	msgs, err := s.messages.Messages(r.Context(), id)
	if err != nil {
		s.logger.Warn("load session messages failed", "session_id", id, "error", err)
	}
	hasBot := false
	for _, m := range msgs {
		if m.Role == memory.RoleBot {
			hasBot = true
			break
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"valid":            true,
		"session_id":       sess.ID,
		"language":         sess.Language,
		"expires_at":       sess.StartedAt.Add(s.sessions.Retention()),
		"message_count":    len(msgs),
		"has_bot_messages": hasBot,
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	sess, err := s.sessions.End(r.Context(), id)
	if err != nil {
		s.respondSessionError(w, err)
		return
	}
	s.metrics.SetActiveSessions(s.sessions.ActiveCount(r.Context()))
	s.metrics.IncSessionEvent("ended")
	respondJSON(w, http.StatusOK, sess)
}

type languageRequest struct {
	Language string `json:"language"`
}

func (s *Server) handleSetLanguage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req languageRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Language) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "language is required")
		return
	}

	prev, next, err := s.changeSessionLanguage(r.Context(), id, req.Language)
	if err != nil {
		s.respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"previous":   prev,
		"language":   next,
		"message":    "Language changed to " + next,
	})
}

// changeSessionLanguage updates the session and records the switch in the
// history so later turns see it.
func (s *Server) changeSessionLanguage(ctx context.Context, id, language string) (string, string, error) {
	if _, err := s.sessions.Validate(ctx, id); err != nil {
		return "", "", err
	}
	language = strings.TrimSpace(language)
	prev, err := s.sessions.SetLanguage(ctx, id, language)
	if err != nil {
		return "", "", err
	}
	note := fmt.Sprintf("[SYSTEM] Language changed from %s to %s. All responses should now be in %s.",
		prev, language, intent.LanguageName(language))
	if _, err := s.messages.Append(ctx, memory.Message{SessionID: id, Role: memory.RoleSystem, Content: note}); err != nil {
		s.logger.Warn("store language change failed", "session_id", id, "error", err)
	}
	s.metrics.IncSessionEvent("language_changed")
	return prev, language, nil
}

func (s *Server) respondSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, session.ErrExpired), errors.Is(err, session.ErrInactive):
		respondJSON(w, http.StatusForbidden, map[string]any{
			"error":                "This session is no longer active. Please start a new conversation.",
			"code":                 "session_expired",
			"session_expired":      true,
			"new_session_required": true,
		})
	default:
		s.logger.Error("session lookup failed", "error", err)
		respondError(w, http.StatusInternalServerError, "session_error", "session lookup failed")
	}
}

type historyItem struct {
	Content string `json:"content"`
	Type    string `json:"type"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("session_id"))
	items := []historyItem{}
	if memory.IsBlankSessionID(id) {
		respondJSON(w, http.StatusOK, items)
		return
	}
	msgs, err := s.messages.Messages(r.Context(), id)
	if err != nil {
		s.logger.Error("load history failed", "session_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "history_unavailable", "failed to load history")
		return
	}
	for _, m := range msgs {
		items = append(items, historyItem{Content: m.Content, Type: string(m.Role)})
	}
	respondJSON(w, http.StatusOK, items)
}
