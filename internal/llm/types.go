// Package llm wraps hosted chat-completion and embedding endpoints.
package llm

import (
	"context"
	"errors"
)

// Role is a chat-completion message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single role-tagged chat-completion input.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a normalized completion call.
type Request struct {
	// Model is "provider:model" (e.g. "groq:llama-3.3-70b-versatile") or a bare
	// model id routed to the default provider.
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	Stream      bool
}

// Response is the final text after streaming deltas.
type Response struct {
	Text  string
	Model string
}

// DeltaHandler receives streaming text fragments. Returning an error aborts the stream.
type DeltaHandler func(delta string) error

// ChatModel completes chat requests, streaming deltas to onDelta when req.Stream is set.
type ChatModel interface {
	Complete(ctx context.Context, req Request, onDelta DeltaHandler) (Response, error)
}

// Embedder turns text into dense vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

var (
	ErrNoChoices       = errors.New("no response choices")
	ErrUnknownProvider = errors.New("unknown llm provider")
)
