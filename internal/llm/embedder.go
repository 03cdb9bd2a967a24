package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// EmbedderConfig selects the embedding backend.
type EmbedderConfig struct {
	Provider   string // "openai" or "ollama"
	Model      string
	Dimension  int
	APIKey     string
	BaseURL    string
	OllamaHost string
}

// TextEmbedder wraps langchaingo embeddings with dimension validation.
type TextEmbedder struct {
	model     embeddings.Embedder
	dimension int
	modelName string
}

// NewEmbedder creates an embedder based on configuration.
func NewEmbedder(cfg EmbedderConfig) (*TextEmbedder, error) {
	var (
		model embeddings.Embedder
		err   error
	)

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.OllamaHost != "" {
			opts = append(opts, ollama.WithServerURL(cfg.OllamaHost))
		}
		client, ollamaErr := ollama.New(opts...)
		if ollamaErr != nil {
			return nil, fmt.Errorf("create ollama client: %w", ollamaErr)
		}
		model, err = embeddings.NewEmbedder(client)
		if err != nil {
			return nil, fmt.Errorf("create ollama embedder: %w", err)
		}

	case "openai", "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey),
			openai.WithEmbeddingModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		client, openaiErr := openai.New(opts...)
		if openaiErr != nil {
			return nil, fmt.Errorf("create openai client: %w", openaiErr)
		}
		model, err = embeddings.NewEmbedder(client)
		if err != nil {
			return nil, fmt.Errorf("create openai embedder: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}

	return &TextEmbedder{
		model:     model,
		dimension: cfg.Dimension,
		modelName: cfg.Model,
	}, nil
}

// Embed generates an embedding vector for text.
func (e *TextEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	textLen := len(text)
	slog.Debug("embedding text", "model", e.modelName, "text_len", textLen)

	start := time.Now()
	vector, err := e.model.EmbedQuery(ctx, text)
	duration := time.Since(start)
	if err != nil {
		slog.Warn("embedding failed", "model", e.modelName, "text_len", textLen, "duration_ms", duration.Milliseconds(), "error", err)
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	if e.dimension > 0 && len(vector) != e.dimension {
		return nil, fmt.Errorf("dimension mismatch: got %d, want %d", len(vector), e.dimension)
	}

	slog.Debug("embedding complete", "model", e.modelName, "text_len", textLen, "duration_ms", duration.Milliseconds())
	return vector, nil
}

// Model returns the embedding model name.
func (e *TextEmbedder) Model() string { return e.modelName }

// Dimension returns the expected embedding dimension.
func (e *TextEmbedder) Dimension() int { return e.dimension }
