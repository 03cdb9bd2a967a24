package httpapi

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/ent0n29/bravurbot/internal/chat"
	"github.com/ent0n29/bravurbot/internal/memory"
	"github.com/ent0n29/bravurbot/internal/policy"
	"github.com/ent0n29/bravurbot/internal/session"
)

type chatRequest struct {
	Message   string `json:"message"`
	UserInput string `json:"user_input"`
	SessionID string `json:"session_id"`
	Language  string `json:"language"`
}

type chatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
	Language  string `json:"language"`
	Intent    string `json:"intent,omitempty"`
	Status    string `json:"status"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.chat == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "chat pipeline not configured")
		return
	}

	var req chatRequest
	if isJSON(r) {
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "No data provided")
			return
		}
	} else {
		req.UserInput = r.FormValue("user_input")
		req.Message = r.FormValue("message")
		req.SessionID = r.FormValue("session_id")
		req.Language = r.FormValue("language")
	}
	text := req.Message
	if strings.TrimSpace(text) == "" {
		text = req.UserInput
	}

	input := policy.CheckInput(text, s.cfg.MaxInputChars)
	switch {
	case errors.Is(input.Err, policy.ErrEmptyInput):
		respondError(w, http.StatusBadRequest, "empty_message", "Message is required")
		return
	case errors.Is(input.Err, policy.ErrInputTooLong):
		respondError(w, http.StatusBadRequest, "message_too_long",
			fmt.Sprintf("Your message is too long. Please keep it under %d characters.", maxInput(s.cfg.MaxInputChars)))
		return
	}

	sess, ok := s.resolveChatSession(w, r, req.SessionID, req.Language)
	if !ok {
		return
	}

	if d, scope := s.limits.Check(r.Context(), sess.ID, clientIP(r)); !d.Allowed {
		secs := int(math.Ceil(d.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		respondError(w, http.StatusTooManyRequests, "rate_limited",
			fmt.Sprintf("Too many requests for this %s. Please try again in %d seconds.", scope, secs))
		return
	}
	_ = s.sessions.Touch(r.Context(), sess.ID)

	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = sess.Language
	}
	turn := chat.TurnRequest{Text: input.Text, SessionID: sess.ID, Language: language}

	if wantsJSON(r) {
		res, err := s.chat.HandleTurn(r.Context(), turn, nil)
		if err != nil {
			s.logger.Error("chat turn failed", "session_id", sess.ID, "error", err)
			respondError(w, http.StatusInternalServerError, "turn_failed", "Internal server error")
			return
		}
		reply := strings.TrimSpace(res.Text)
		if reply == "" {
			reply = "Sorry, I couldn't generate a response."
		}
		respondJSON(w, http.StatusOK, chatResponse{
			Response:  reply,
			SessionID: sess.ID,
			Language:  language,
			Intent:    string(res.Intent),
			Status:    "success",
		})
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Session-ID", sess.ID)
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)

	_, err := s.chat.HandleTurn(r.Context(), turn, func(chunk string) error {
		if _, err := w.Write([]byte(chunk)); err != nil {
			return err
		}
		return rc.Flush()
	})
	if err != nil {
		s.logger.Warn("chat stream ended early", "session_id", sess.ID, "error", err)
	}
}

// resolveChatSession returns a usable session, creating one when the client
// sent none or an unknown id. It writes the error response itself.
func (s *Server) resolveChatSession(w http.ResponseWriter, r *http.Request, id, language string) (session.Session, bool) {
	id = strings.TrimSpace(id)
	if !memory.IsBlankSessionID(id) {
		sess, err := s.sessions.Validate(r.Context(), id)
		if err == nil {
			return sess, true
		}
		if !errors.Is(err, session.ErrNotFound) {
			s.respondSessionError(w, err)
			return session.Session{}, false
		}
		s.logger.Info("unknown session id, starting a new session", "session_id", id)
	}

	sess, err := s.sessions.Create(r.Context(), language)
	if err != nil {
		s.logger.Error("create session failed", "error", err)
		respondError(w, http.StatusInternalServerError, "session_create_failed",
			"Sorry, I'm having trouble with your session. Please try again.")
		return session.Session{}, false
	}
	s.metrics.IncSessionEvent("created")
	return sess, true
}

func wantsJSON(r *http.Request) bool {
	if v := strings.ToLower(r.URL.Query().Get("stream")); v == "false" || v == "0" {
		return true
	}
	accept := strings.ToLower(r.Header.Get("Accept"))
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/plain")
}

func maxInput(n int) int {
	if n <= 0 {
		return policy.DefaultMaxInputChars
	}
	return n
}
