package app

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ent0n29/bravurbot/internal/config"
	"github.com/ent0n29/bravurbot/internal/llm"
)

type modelSetup struct {
	chat     llm.ChatModel
	embedder llm.Embedder
	// providers lists the names backed by a real endpoint.
	providers []string
	detail    string
}

// resolveModels registers every provider that has a key. Providers named by a
// configured model id but lacking a key are served by the offline mock so the
// service still starts.
func resolveModels(cfg config.Config, logger *slog.Logger) (modelSetup, error) {
	if logger == nil {
		logger = slog.Default()
	}
	router := llm.NewRouter("openai")
	var setup modelSetup

	tryProvider := func(name, key, baseURL string) error {
		if strings.TrimSpace(key) == "" {
			return nil
		}
		p, err := llm.NewProvider(llm.ProviderConfig{Name: name, APIKey: key, BaseURL: baseURL}, logger)
		if err != nil {
			return fmt.Errorf("%s provider init failed: %w", name, err)
		}
		router.Register(name, p)
		setup.providers = append(setup.providers, name)
		return nil
	}
	if err := tryProvider("openai", cfg.OpenAIAPIKey, cfg.OpenAIBaseURL); err != nil {
		return modelSetup{}, err
	}
	if err := tryProvider("groq", cfg.GroqAPIKey, cfg.GroqBaseURL); err != nil {
		return modelSetup{}, err
	}

	mock := llm.NewMockModel()
	for _, id := range []string{cfg.ClassifierModel, cfg.TrendsModel, cfg.RAGModel, cfg.FallbackModel} {
		if strings.TrimSpace(id) == "" {
			continue
		}
		provider, _ := llm.SplitModel(id, "openai")
		if router.Has(provider) {
			continue
		}
		logger.Warn("no API key for model provider, using offline mock", "provider", provider, "model", id)
		router.Register(provider, mock)
	}

	setup.chat = router
	if strings.TrimSpace(cfg.FallbackModel) != "" {
		setup.chat = llm.NewFallbackModel(router, router, cfg.FallbackModel, logger)
	}

	switch {
	case strings.EqualFold(cfg.EmbeddingProvider, "ollama"):
		e, err := llm.NewEmbedder(llm.EmbedderConfig{
			Provider:   "ollama",
			Model:      cfg.EmbeddingModel,
			Dimension:  cfg.EmbeddingDim,
			OllamaHost: cfg.OllamaHost,
		})
		if err != nil {
			return modelSetup{}, fmt.Errorf("embedder init failed: %w", err)
		}
		setup.embedder = e
	case cfg.OpenAIAPIKey != "":
		e, err := llm.NewEmbedder(llm.EmbedderConfig{
			Provider:  "openai",
			Model:     cfg.EmbeddingModel,
			Dimension: cfg.EmbeddingDim,
			APIKey:    cfg.OpenAIAPIKey,
			BaseURL:   cfg.OpenAIBaseURL,
		})
		if err != nil {
			return modelSetup{}, fmt.Errorf("embedder init failed: %w", err)
		}
		setup.embedder = e
	default:
		logger.Warn("OPENAI_API_KEY not set, query embeddings come from the offline mock")
		setup.embedder = llm.MockEmbedder{Dim: cfg.EmbeddingDim}
	}

	if len(setup.providers) == 0 {
		setup.detail = "mock (no provider keys)"
	} else {
		setup.detail = strings.Join(setup.providers, " + ")
	}
	return setup, nil
}
