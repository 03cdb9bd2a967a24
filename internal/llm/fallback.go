package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
)

// FallbackModel attempts a primary model first and falls back on error.
// Once the primary has emitted a non-blank delta the fallback is never tried,
// so a client never sees two interleaved answers.
type FallbackModel struct {
	primary  ChatModel
	fallback ChatModel
	// FallbackModelID replaces Request.Model on the fallback call when set.
	FallbackModelID string
	logger          *slog.Logger
}

func NewFallbackModel(primary, fallback ChatModel, fallbackModelID string, logger *slog.Logger) *FallbackModel {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackModel{
		primary:         primary,
		fallback:        fallback,
		FallbackModelID: fallbackModelID,
		logger:          logger,
	}
}

// Primary returns the preferred model used before fallback.
func (m *FallbackModel) Primary() ChatModel {
	if m == nil {
		return nil
	}
	return m.primary
}

// Secondary returns the fallback model.
func (m *FallbackModel) Secondary() ChatModel {
	if m == nil {
		return nil
	}
	return m.fallback
}

func (m *FallbackModel) Complete(ctx context.Context, req Request, onDelta DeltaHandler) (Response, error) {
	if m == nil || m.primary == nil {
		if m != nil && m.fallback != nil {
			return m.fallback.Complete(ctx, m.fallbackRequest(req), onDelta)
		}
		return Response{}, fmt.Errorf("fallback model misconfigured")
	}

	var emitted atomic.Bool
	resp, err := m.primary.Complete(ctx, req, func(delta string) error {
		if strings.TrimSpace(delta) != "" {
			emitted.Store(true)
		}
		if onDelta == nil {
			return nil
		}
		return onDelta(delta)
	})
	if err == nil {
		return resp, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Response{}, err
	}
	if m.fallback == nil || emitted.Load() {
		return Response{}, err
	}

	m.logger.Warn("primary model failed, trying fallback", "model", req.Model, "error", err)
	fallbackResp, fallbackErr := m.fallback.Complete(ctx, m.fallbackRequest(req), onDelta)
	if fallbackErr != nil {
		return Response{}, fmt.Errorf("primary model error: %w; fallback model error: %v", err, fallbackErr)
	}
	return fallbackResp, nil
}

func (m *FallbackModel) fallbackRequest(req Request) Request {
	if m.FallbackModelID != "" {
		req.Model = m.FallbackModelID
	}
	return req
}
