package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ProviderConfig describes one OpenAI-compatible endpoint (OpenAI itself, Groq, ...).
type ProviderConfig struct {
	Name         string
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// Provider wraps a langchaingo model for chat completions.
type Provider struct {
	name   string
	llm    llms.Model
	logger *slog.Logger
}

// NewProvider creates a langchaingo OpenAI-compatible client.
func NewProvider(cfg ProviderConfig, logger *slog.Logger) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%s API key required", cfg.Name)
	}
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
	}
	if cfg.DefaultModel != "" {
		opts = append(opts, openai.WithModel(cfg.DefaultModel))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", cfg.Name, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{name: cfg.Name, llm: model, logger: logger}, nil
}

// Name returns the provider label used in "provider:model" ids.
func (p *Provider) Name() string { return p.name }

func (p *Provider) Complete(ctx context.Context, req Request, onDelta DeltaHandler) (Response, error) {
	opts := []llms.CallOption{
		llms.WithTemperature(req.Temperature),
	}
	if req.Model != "" {
		opts = append(opts, llms.WithModel(req.Model))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}

	var streamed strings.Builder
	if req.Stream {
		opts = append(opts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			streamed.Write(chunk)
			if onDelta == nil {
				return nil
			}
			return onDelta(string(chunk))
		}))
	}

	start := time.Now()
	resp, err := p.llm.GenerateContent(ctx, toMessageContent(req.Messages), opts...)
	duration := time.Since(start)
	if err != nil {
		p.logger.Warn("completion failed", "provider", p.name, "model", req.Model, "duration_ms", duration.Milliseconds(), "error", err)
		return Response{}, fmt.Errorf("%s completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, ErrNoChoices
	}
	p.logger.Debug("completion complete", "provider", p.name, "model", req.Model, "duration_ms", duration.Milliseconds())

	if req.Stream {
		text := streamed.String()
		if text == "" {
			text = resp.Choices[0].Content
		}
		return Response{Text: text, Model: req.Model}, nil
	}

	text := resp.Choices[0].Content
	if text != "" && onDelta != nil {
		if err := onDelta(text); err != nil {
			return Response{}, err
		}
	}
	return Response{Text: text, Model: req.Model}, nil
}

func toMessageContent(msgs []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		var t llms.ChatMessageType
		switch m.Role {
		case RoleSystem:
			t = llms.ChatMessageTypeSystem
		case RoleAssistant:
			t = llms.ChatMessageTypeAI
		default:
			t = llms.ChatMessageTypeHuman
		}
		out = append(out, llms.TextParts(t, m.Content))
	}
	return out
}
