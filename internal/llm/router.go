package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Router dispatches "provider:model" requests to registered providers.
type Router struct {
	mu              sync.RWMutex
	providers       map[string]ChatModel
	defaultProvider string
}

func NewRouter(defaultProvider string) *Router {
	return &Router{
		providers:       make(map[string]ChatModel),
		defaultProvider: strings.ToLower(strings.TrimSpace(defaultProvider)),
	}
}

// Register adds or replaces a provider under name.
func (r *Router) Register(name string, model ChatModel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[strings.ToLower(strings.TrimSpace(name))] = model
}

// Has reports whether a provider is registered under name.
func (r *Router) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

func (r *Router) Complete(ctx context.Context, req Request, onDelta DeltaHandler) (Response, error) {
	provider, model := SplitModel(req.Model, r.defaultProvider)

	r.mu.RLock()
	m, ok := r.providers[provider]
	r.mu.RUnlock()
	if !ok {
		return Response{}, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}

	req.Model = model
	return m.Complete(ctx, req, onDelta)
}

// SplitModel separates "provider:model" into its parts, falling back to def
// when no provider prefix is present.
func SplitModel(id, def string) (provider, model string) {
	id = strings.TrimSpace(id)
	if p, m, ok := strings.Cut(id, ":"); ok && p != "" {
		return strings.ToLower(p), m
	}
	return def, id
}
