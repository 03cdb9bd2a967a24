package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/bravurbot/internal/chat"
	"github.com/ent0n29/bravurbot/internal/protocol"
	"github.com/ent0n29/bravurbot/internal/session"
)

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}
	if s.chat == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "chat pipeline not configured")
		return
	}

	sess, err := s.sessions.Validate(r.Context(), sessionID)
	if err != nil {
		s.respondSessionError(w, err)
		return
	}
	ip := clientIP(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.IncSessionEvent("ws_connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 16)
	outbound := make(chan any, 256)

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		defer close(outbound)
		s.runConnection(ctx, sess, ip, inbound, outbound)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range outbound {
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				cancel()
				// Drain so the turn loop never blocks on a dead socket.
				for range outbound {
				}
				return
			}
			if t, ok := messageTypeOf(msg); ok {
				s.metrics.IncWSMessage("outbound", string(t))
			}
		}
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			parsed = protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Detail:    err.Error(),
			}
		} else if t, ok := messageTypeOf(parsed); ok {
			s.metrics.IncWSMessage("inbound", string(t))
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
	s.metrics.IncSessionEvent("ws_disconnected")
}

// runConnection handles inbound messages for one socket, one turn at a time.
func (s *Server) runConnection(ctx context.Context, sess session.Session, ip string, inbound <-chan any, outbound chan<- any) {
	language := sess.Language
	send := func(v any) bool {
		select {
		case <-ctx.Done():
			return false
		case outbound <- v:
			return true
		}
	}

	for msg := range inbound {
		switch m := msg.(type) {
		case protocol.ErrorEvent:
			send(m)

		case protocol.ClientControl:
			switch m.Action {
			case protocol.ActionSetLanguage:
				_, next, err := s.changeSessionLanguage(ctx, sess.ID, m.Language)
				if err != nil {
					send(s.sessionErrorEvent(sess.ID, err))
					continue
				}
				language = next
				send(protocol.SystemEvent{Type: protocol.TypeSystemEvent, SessionID: sess.ID, Code: "language_changed", Detail: next})
			case protocol.ActionEnd:
				if _, err := s.sessions.End(ctx, sess.ID); err != nil {
					send(s.sessionErrorEvent(sess.ID, err))
					continue
				}
				s.metrics.IncSessionEvent("ended")
				send(protocol.SystemEvent{Type: protocol.TypeSystemEvent, SessionID: sess.ID, Code: "session_ended"})
			}

		case protocol.UserMessage:
			if _, err := s.sessions.Validate(ctx, sess.ID); err != nil {
				send(s.sessionErrorEvent(sess.ID, err))
				continue
			}
			if d, scope := s.limits.Check(ctx, sess.ID, ip); !d.Allowed {
				send(protocol.ErrorEvent{
					Type:      protocol.TypeErrorEvent,
					SessionID: sess.ID,
					Code:      "rate_limited",
					Source:    scope,
					Retryable: true,
					Detail:    "retry after " + d.RetryAfter.Round(time.Second).String(),
				})
				continue
			}
			if strings.TrimSpace(m.Language) != "" {
				language = m.Language
			}
			_ = s.sessions.Touch(ctx, sess.ID)
			s.runWSTurn(ctx, sess.ID, language, m.Text, send)
		}
	}
}

func (s *Server) runWSTurn(ctx context.Context, sessionID, language, text string, send func(any) bool) {
	turnID := uuid.NewString()
	res, err := s.chat.HandleTurn(ctx, chat.TurnRequest{Text: text, SessionID: sessionID, Language: language}, func(chunk string) error {
		if !send(protocol.AssistantTextDelta{
			Type:      protocol.TypeAssistantTextDelta,
			SessionID: sessionID,
			TurnID:    turnID,
			TextDelta: chunk,
		}) {
			return ctx.Err()
		}
		return nil
	})

	reason := "completed"
	switch {
	case errors.Is(err, chat.ErrClientGone), ctx.Err() != nil:
		return
	case err != nil:
		reason = "error"
		send(protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: sessionID,
			Code:      "turn_failed",
			Source:    "chat",
			Retryable: true,
			Detail:    err.Error(),
		})
	case res.Failed:
		reason = "degraded"
	}
	send(protocol.AssistantTurnEnd{
		Type:      protocol.TypeAssistantTurnEnd,
		SessionID: sessionID,
		TurnID:    turnID,
		Reason:    reason,
		Intent:    string(res.Intent),
	})
}

func (s *Server) sessionErrorEvent(sessionID string, err error) protocol.ErrorEvent {
	code := "session_error"
	switch {
	case errors.Is(err, session.ErrNotFound):
		code = "session_not_found"
	case errors.Is(err, session.ErrExpired), errors.Is(err, session.ErrInactive):
		code = "session_expired"
	}
	return protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: sessionID,
		Code:      code,
		Source:    "session",
		Detail:    err.Error(),
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.UserMessage:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.AssistantTextDelta:
		return m.Type, true
	case protocol.AssistantTurnEnd:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
