package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.TrendsModel != "groq:llama-3.3-70b-versatile" || cfg.RAGModel != "openai:gpt-4o-mini" {
		t.Fatalf("unexpected model defaults: %q %q", cfg.TrendsModel, cfg.RAGModel)
	}
	if cfg.HistoryTokenBudget != 400 || cfg.RetrievalTopK != 3 {
		t.Fatalf("budget/k = %d/%d, want 400/3", cfg.HistoryTokenBudget, cfg.RetrievalTopK)
	}
	if cfg.CueThreshold != 85 || cfg.MemoryThreshold != 80 {
		t.Fatalf("thresholds = %d/%d, want 85/80", cfg.CueThreshold, cfg.MemoryThreshold)
	}
	if cfg.SessionRetention != 72*time.Hour {
		t.Fatalf("SessionRetention = %v, want 72h", cfg.SessionRetention)
	}
	if cfg.HasLLMKeys() {
		t.Fatalf("HasLLMKeys() = true with empty env")
	}
}

func TestLoadOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9191")
	t.Setenv("RETRIEVAL_TOP_K", "5")
	t.Setenv("SESSION_RETENTION", "24h")
	t.Setenv("GROQ_API_KEY", " gsk-test ")
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9191" || cfg.RetrievalTopK != 5 || cfg.SessionRetention != 24*time.Hour {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.GroqAPIKey != "gsk-test" || !cfg.HasLLMKeys() || !cfg.AllowAnyOrigin {
		t.Fatalf("GroqAPIKey = %q AllowAnyOrigin = %v", cfg.GroqAPIKey, cfg.AllowAnyOrigin)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"EMBEDDING_DIM":      "0",
		"CUE_THRESHOLD":      "101",
		"LLM_TIMEOUT":        "soon",
		"RETRIEVAL_TOP_K":    "three",
		"EMBEDDING_PROVIDER": "cohere",
		"LOG_LEVEL":          "loud",
		"SESSION_RETENTION":  "10s",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%q error = nil", key, value)
			}
		})
	}
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	setCoreEnvEmpty(t)
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	body := strings.Join([]string{"REDIS_URL=redis://from-file:6379/0", "APP_BIND_ADDR=:7070"}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("APP_BIND_ADDR", ":6060")
	os.Unsetenv("REDIS_URL")

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("REDIS_URL") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RedisURL != "redis://from-file:6379/0" {
		t.Fatalf("RedisURL = %q, want value from file", cfg.RedisURL)
	}
	if cfg.BindAddr != ":6060" {
		t.Fatalf("BindAddr = %q, environment should win", cfg.BindAddr)
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR", "APP_SHUTDOWN_TIMEOUT", "APP_METRICS_NAMESPACE", "APP_ALLOW_ANY_ORIGIN",
		"DATABASE_URL", "REDIS_URL",
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "GROQ_API_KEY", "GROQ_BASE_URL",
		"LLM_CLASSIFIER_MODEL", "LLM_TRENDS_MODEL", "LLM_RAG_MODEL", "LLM_FALLBACK_MODEL",
		"LLM_TIMEOUT", "CLASSIFY_TIMEOUT",
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_DIM", "OLLAMA_HOST",
		"EMBED_TIMEOUT", "SEARCH_TIMEOUT", "EMBED_CACHE_TTL", "EMBED_CACHE_SIZE", "EMBED_BATCH_SIZE",
		"HISTORY_TOKEN_BUDGET", "RETRIEVAL_TOP_K", "CUE_THRESHOLD", "MEMORY_THRESHOLD", "MAX_INPUT_CHARS",
		"SESSION_RETENTION", "SESSION_JANITOR_INTERVAL",
		"RATE_LIMIT_SESSION", "RATE_LIMIT_SESSION_WINDOW", "RATE_LIMIT_IP", "RATE_LIMIT_IP_WINDOW",
		"LOG_LEVEL", "LOG_FILE", "REPLIES_FILE",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
