package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/ent0n29/bravurbot/internal/chat"
	"github.com/ent0n29/bravurbot/internal/config"
	"github.com/ent0n29/bravurbot/internal/feedback"
	"github.com/ent0n29/bravurbot/internal/httpapi"
	"github.com/ent0n29/bravurbot/internal/intent"
	"github.com/ent0n29/bravurbot/internal/knowledge"
	"github.com/ent0n29/bravurbot/internal/llm"
	"github.com/ent0n29/bravurbot/internal/memory"
	"github.com/ent0n29/bravurbot/internal/observability"
	"github.com/ent0n29/bravurbot/internal/ratelimit"
	"github.com/ent0n29/bravurbot/internal/retrieval"
	"github.com/ent0n29/bravurbot/internal/session"
)

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Sessions     *session.Manager
	Orchestrator *chat.Orchestrator
	Knowledge    knowledge.Store
	Embedder     llm.Embedder
	Metrics      *observability.Metrics
	Models       string

	// Cleanup should be called on shutdown to release external resources (DB, Redis).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	var closers []func() error
	fail := func(err error) (*BuildResult, error) {
		_ = closeAll(closers)
		return nil, err
	}

	pool, err := openPool(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}
	ready := map[string]httpapi.Pinger{}
	if pool != nil {
		closers = append(closers, func() error { pool.Close(); return nil })
		ready["database"] = httpapi.PingFunc(pool.Ping)
	}

	messages, err := memory.NewStore(ctx, pool)
	if err != nil {
		return fail(fmt.Errorf("memory store init failed: %w", err))
	}
	closers = append(closers, messages.Close)

	sessionStore, err := newSessionStore(ctx, pool)
	if err != nil {
		return fail(fmt.Errorf("session store init failed: %w", err))
	}
	closers = append(closers, sessionStore.Close)

	feedbackStore, err := feedback.NewStore(ctx, pool)
	if err != nil {
		return fail(fmt.Errorf("feedback store init failed: %w", err))
	}
	closers = append(closers, feedbackStore.Close)

	kb, err := newKnowledgeStore(ctx, pool, cfg.EmbeddingDim)
	if err != nil {
		return fail(fmt.Errorf("knowledge store init failed: %w", err))
	}
	closers = append(closers, kb.Close)

	models, err := resolveModels(cfg, logger)
	if err != nil {
		return fail(err)
	}

	retriever := retrieval.NewHybridRetriever(
		models.embedder,
		kb,
		kb,
		retrieval.NewTTLCache(cfg.EmbedCacheTTL, cfg.EmbedCacheSize),
		retrieval.Config{EmbedTimeout: cfg.EmbedTimeout, SearchTimeout: cfg.SearchTimeout},
		metrics,
		logger.With("component", "retrieval"),
	)

	catalog := chat.MustDefaultCatalog()
	if strings.TrimSpace(cfg.RepliesFile) != "" {
		catalog, err = chat.LoadCatalog(cfg.RepliesFile)
		if err != nil {
			return fail(fmt.Errorf("replies catalog: %w", err))
		}
	}

	detector := intent.NewDetector(cfg.CueThreshold, cfg.MemoryThreshold)
	intentLogger := logger.With("component", "intent")
	classifier := intent.NewClassifier(models.chat, cfg.ClassifierModel, cfg.ClassifyTimeout, intentLogger)
	resolver := intent.NewResolver(models.chat, cfg.ClassifierModel, detector, cfg.ClassifyTimeout, intentLogger)

	generator := chat.NewGenerator(
		models.chat,
		retriever,
		catalog,
		chat.NewReplyPicker(cfg.SessionRetention),
		chat.GeneratorConfig{
			TrendsModel: cfg.TrendsModel,
			RAGModel:    cfg.RAGModel,
			TopK:        cfg.RetrievalTopK,
			Timeout:     cfg.LLMTimeout,
		},
		metrics,
		logger.With("component", "generator"),
	)

	orchestrator := chat.NewOrchestrator(
		messages,
		detector,
		classifier,
		resolver,
		generator,
		chat.OrchestratorConfig{
			HistoryBudget: cfg.HistoryTokenBudget,
			MaxInputChars: cfg.MaxInputChars,
		},
		metrics,
		logger.With("component", "chat"),
	)

	var limiter ratelimit.Limiter = ratelimit.NewLocalLimiter()
	if strings.TrimSpace(cfg.RedisURL) != "" {
		client, err := ratelimit.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fail(fmt.Errorf("redis init failed: %w", err))
		}
		closers = append(closers, client.Close)
		ready["redis"] = redisPinger(client)
		limiter = ratelimit.NewRedisLimiter(client)
	}
	guard := ratelimit.NewGuard(
		limiter,
		ratelimit.Rule{Limit: cfg.RateLimitSession, Window: cfg.RateLimitSessionWindow},
		ratelimit.Rule{Limit: cfg.RateLimitIP, Window: cfg.RateLimitIPWindow},
		metrics,
		logger.With("component", "ratelimit"),
	)

	sessions := session.NewManager(sessionStore, cfg.SessionRetention, logger.With("component", "session"))
	sessions.SetExpireHook(func(ids []string) {
		for range ids {
			metrics.IncSessionEvent("expired")
		}
		metrics.SetActiveSessions(sessions.ActiveCount(context.Background()))
	})

	api := httpapi.New(httpapi.Deps{
		Config:   cfg,
		Sessions: sessions,
		Messages: messages,
		Feedback: feedbackStore,
		Chat:     orchestrator,
		Limits:   guard,
		Metrics:  metrics,
		Ready:    ready,
		Logger:   logger.With("component", "http"),
	})

	logger.Info("service wired",
		"models", models.detail,
		"persistence", persistenceMode(pool),
		"rate_limit", limiterMode(cfg.RedisURL),
	)

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Sessions:     sessions,
		Orchestrator: orchestrator,
		Knowledge:    kb,
		Embedder:     models.embedder,
		Metrics:      metrics,
		Models:       models.detail,
		Cleanup:      func() error { return closeAll(closers) },
	}, nil
}

func newSessionStore(ctx context.Context, pool *pgxpool.Pool) (session.Store, error) {
	if pool == nil {
		return session.NewInMemoryStore(), nil
	}
	return session.NewPostgresStore(ctx, pool)
}

func newKnowledgeStore(ctx context.Context, pool *pgxpool.Pool, dim int) (knowledge.Store, error) {
	if pool == nil {
		return knowledge.NewInMemoryStore(dim), nil
	}
	return knowledge.NewPostgresStore(ctx, pool, dim)
}

func redisPinger(client *redis.Client) httpapi.PingFunc {
	return func(ctx context.Context) error { return client.Ping(ctx).Err() }
}

// closeAll runs closers in reverse order and joins their errors.
func closeAll(closers []func() error) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func persistenceMode(pool *pgxpool.Pool) string {
	if pool == nil {
		return "memory"
	}
	return "postgres"
}

func limiterMode(redisURL string) string {
	if strings.TrimSpace(redisURL) == "" {
		return "local"
	}
	return "redis"
}
