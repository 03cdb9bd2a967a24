package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ent0n29/bravurbot/internal/feedback"
)

type feedbackRequest struct {
	SessionID string `json:"session_id"`
	Rating    any    `json:"rating"`
	Comment   string `json:"comment"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if s.feedback == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "feedback store not configured")
		return
	}

	var req feedbackRequest
	if isJSON(r) {
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "No data provided")
			return
		}
	} else {
		req.SessionID = r.FormValue("session_id")
		req.Rating = r.FormValue("rating")
		req.Comment = r.FormValue("comment")
	}

	rating, ok := parseRating(req.Rating)
	if strings.TrimSpace(req.SessionID) == "" || !ok {
		respondError(w, http.StatusBadRequest, "invalid_request", "Missing session ID or rating")
		return
	}

	saved, err := s.feedback.Save(r.Context(), feedback.Feedback{SessionID: req.SessionID, Rating: rating, Comment: req.Comment})
	switch {
	case errors.Is(err, feedback.ErrInvalidRating), errors.Is(err, feedback.ErrMissingSession):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	case err != nil:
		s.logger.Error("save feedback failed", "error", err)
		respondError(w, http.StatusInternalServerError, "feedback_failed", "failed to save feedback")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"message": "Feedback submitted", "feedback": saved})
}

// parseRating accepts JSON numbers and numeric strings.
func parseRating(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		if t != float64(int(t)) {
			return 0, false
		}
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	default:
		return 0, false
	}
}

func isJSON(r *http.Request) bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json")
}
