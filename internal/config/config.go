package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the chatbot service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	DatabaseURL string
	RedisURL    string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	GroqAPIKey    string
	GroqBaseURL   string

	// Model ids are "provider:model".
	ClassifierModel string
	TrendsModel     string
	RAGModel        string
	FallbackModel   string
	LLMTimeout      time.Duration
	ClassifyTimeout time.Duration

	EmbeddingProvider string
	EmbeddingModel    string
	EmbeddingDim      int
	OllamaHost        string
	EmbedTimeout      time.Duration
	SearchTimeout     time.Duration
	EmbedCacheTTL     time.Duration
	EmbedCacheSize    int
	EmbedBatchSize    int

	HistoryTokenBudget int
	RetrievalTopK      int
	CueThreshold       int
	MemoryThreshold    int
	MaxInputChars      int

	SessionRetention       time.Duration
	SessionJanitorInterval time.Duration

	RateLimitSession       int
	RateLimitSessionWindow time.Duration
	RateLimitIP            int
	RateLimitIPWindow      time.Duration

	LogLevel    string
	LogFile     string
	RepliesFile string
}

// LoadDotEnv reads KEY=VALUE files into the environment without overriding
// variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:               envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:       envOrDefault("APP_METRICS_NAMESPACE", "bravurbot"),
		DatabaseURL:            stringsTrimSpace("DATABASE_URL"),
		RedisURL:               stringsTrimSpace("REDIS_URL"),
		OpenAIAPIKey:           stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIBaseURL:          stringsTrimSpace("OPENAI_BASE_URL"),
		GroqAPIKey:             stringsTrimSpace("GROQ_API_KEY"),
		GroqBaseURL:            envOrDefault("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		ClassifierModel:        envOrDefault("LLM_CLASSIFIER_MODEL", "openai:gpt-4o-mini"),
		TrendsModel:            envOrDefault("LLM_TRENDS_MODEL", "groq:llama-3.3-70b-versatile"),
		RAGModel:               envOrDefault("LLM_RAG_MODEL", "openai:gpt-4o-mini"),
		FallbackModel:          stringsTrimSpace("LLM_FALLBACK_MODEL"),
		EmbeddingProvider:      envOrDefault("EMBEDDING_PROVIDER", "openai"),
		EmbeddingModel:         envOrDefault("EMBEDDING_MODEL", "text-embedding-3-large"),
		OllamaHost:             stringsTrimSpace("OLLAMA_HOST"),
		LogLevel:               envOrDefault("LOG_LEVEL", "info"),
		LogFile:                stringsTrimSpace("LOG_FILE"),
		RepliesFile:            stringsTrimSpace("REPLIES_FILE"),
		ShutdownTimeout:        15 * time.Second,
		LLMTimeout:             30 * time.Second,
		ClassifyTimeout:        10 * time.Second,
		EmbedTimeout:           10 * time.Second,
		SearchTimeout:          5 * time.Second,
		EmbedCacheTTL:          time.Hour,
		EmbedCacheSize:         1000,
		EmbedBatchSize:         50,
		EmbeddingDim:           3072,
		HistoryTokenBudget:     400,
		RetrievalTopK:          3,
		CueThreshold:           85,
		MemoryThreshold:        80,
		MaxInputChars:          1000,
		SessionRetention:       72 * time.Hour,
		SessionJanitorInterval: 10 * time.Minute,
		RateLimitSession:       50,
		RateLimitSessionWindow: time.Hour,
		RateLimitIP:            100,
		RateLimitIPWindow:      time.Minute,
	}

	var err error
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"APP_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
		{"LLM_TIMEOUT", &cfg.LLMTimeout},
		{"CLASSIFY_TIMEOUT", &cfg.ClassifyTimeout},
		{"EMBED_TIMEOUT", &cfg.EmbedTimeout},
		{"SEARCH_TIMEOUT", &cfg.SearchTimeout},
		{"EMBED_CACHE_TTL", &cfg.EmbedCacheTTL},
		{"SESSION_RETENTION", &cfg.SessionRetention},
		{"SESSION_JANITOR_INTERVAL", &cfg.SessionJanitorInterval},
		{"RATE_LIMIT_SESSION_WINDOW", &cfg.RateLimitSessionWindow},
		{"RATE_LIMIT_IP_WINDOW", &cfg.RateLimitIPWindow},
	}
	for _, d := range durations {
		if *d.dst, err = durationFromEnv(d.key, *d.dst); err != nil {
			return Config{}, err
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"EMBEDDING_DIM", &cfg.EmbeddingDim},
		{"EMBED_CACHE_SIZE", &cfg.EmbedCacheSize},
		{"EMBED_BATCH_SIZE", &cfg.EmbedBatchSize},
		{"HISTORY_TOKEN_BUDGET", &cfg.HistoryTokenBudget},
		{"RETRIEVAL_TOP_K", &cfg.RetrievalTopK},
		{"CUE_THRESHOLD", &cfg.CueThreshold},
		{"MEMORY_THRESHOLD", &cfg.MemoryThreshold},
		{"MAX_INPUT_CHARS", &cfg.MaxInputChars},
		{"RATE_LIMIT_SESSION", &cfg.RateLimitSession},
		{"RATE_LIMIT_IP", &cfg.RateLimitIP},
	}
	for _, i := range ints {
		if *i.dst, err = intFromEnv(i.key, *i.dst); err != nil {
			return Config{}, err
		}
	}

	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.EmbeddingDim <= 0:
		return fmt.Errorf("EMBEDDING_DIM must be positive")
	case c.HistoryTokenBudget <= 0:
		return fmt.Errorf("HISTORY_TOKEN_BUDGET must be positive")
	case c.RetrievalTopK <= 0:
		return fmt.Errorf("RETRIEVAL_TOP_K must be positive")
	case c.CueThreshold < 1 || c.CueThreshold > 100:
		return fmt.Errorf("CUE_THRESHOLD must be within 1..100")
	case c.MemoryThreshold < 1 || c.MemoryThreshold > 100:
		return fmt.Errorf("MEMORY_THRESHOLD must be within 1..100")
	case c.MaxInputChars <= 0:
		return fmt.Errorf("MAX_INPUT_CHARS must be positive")
	case c.SessionRetention < time.Minute:
		return fmt.Errorf("SESSION_RETENTION must be at least 1m")
	case c.RateLimitSession < 0 || c.RateLimitIP < 0:
		return fmt.Errorf("rate limits must be >= 0")
	case c.EmbedBatchSize <= 0:
		return fmt.Errorf("EMBED_BATCH_SIZE must be positive")
	}
	switch strings.ToLower(c.EmbeddingProvider) {
	case "openai", "ollama":
	default:
		return fmt.Errorf("EMBEDDING_PROVIDER must be openai or ollama, got %q", c.EmbeddingProvider)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be debug, info, warn or error")
	}
	return nil
}

// HasLLMKeys reports whether any hosted model provider is configured.
func (c Config) HasLLMKeys() bool {
	return c.OpenAIAPIKey != "" || c.GroqAPIKey != ""
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
