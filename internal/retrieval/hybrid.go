// Package retrieval finds knowledge entries for a query by vector similarity
// with a full-text fallback.
package retrieval

import (
	"context"
	"log/slog"
	"time"

	"github.com/ent0n29/bravurbot/internal/knowledge"
	"github.com/ent0n29/bravurbot/internal/llm"
	"github.com/ent0n29/bravurbot/internal/observability"
)

// DefaultTopK is the number of entries fed into a RAG prompt.
const DefaultTopK = 3

// Path names which search produced a result set.
type Path string

const (
	PathVector  Path = "vector"
	PathLexical Path = "lexical"
	PathEmpty   Path = "empty"
)

// Result is the retrieval outcome.
type Result struct {
	Hits []knowledge.SearchResult
	Path Path
}

// Config tunes HybridRetriever.
type Config struct {
	EmbedTimeout  time.Duration
	SearchTimeout time.Duration
}

// HybridRetriever embeds the query, ranks entries by vector distance and
// falls back to lexical search when that yields nothing.
type HybridRetriever struct {
	embedder llm.Embedder
	vectors  knowledge.VectorSearcher
	lexical  knowledge.LexicalSearcher
	cache    EmbeddingCache
	cfg      Config
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewHybridRetriever wires the collaborators. embedder, vectors and cache may be nil.
func NewHybridRetriever(
	embedder llm.Embedder,
	vectors knowledge.VectorSearcher,
	lexical knowledge.LexicalSearcher,
	cache EmbeddingCache,
	cfg Config,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *HybridRetriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &HybridRetriever{
		embedder: embedder,
		vectors:  vectors,
		lexical:  lexical,
		cache:    cache,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
	}
}

// Retrieve returns at most k hits. Failures are logged and never returned;
// an empty result means no relevant knowledge.
func (r *HybridRetriever) Retrieve(ctx context.Context, query string, k int) Result {
	if k <= 0 {
		k = DefaultTopK
	}
	start := time.Now()
	res := r.retrieve(ctx, query, k)
	if len(res.Hits) > k {
		res.Hits = res.Hits[:k]
	}
	r.metrics.IncRetrievalPath(string(res.Path))
	r.metrics.ObserveTurnStage("retrieve", time.Since(start))
	r.logger.Info("knowledge retrieval", "path", res.Path, "hits", len(res.Hits), "duration_ms", time.Since(start).Milliseconds())
	return res
}

func (r *HybridRetriever) retrieve(ctx context.Context, query string, k int) Result {
	if vec, ok := r.embed(ctx, query); ok && r.vectors != nil {
		searchCtx, cancel := withTimeout(ctx, r.cfg.SearchTimeout)
		hits, err := r.vectors.VectorSearch(searchCtx, vec, k)
		cancel()
		switch {
		case err != nil:
			r.logger.Warn("vector search failed, falling back to lexical", "error", err)
		case len(hits) > 0:
			return Result{Hits: hits, Path: PathVector}
		}
	}

	r.metrics.ObserveTurnIndicator("lexical_fallback")
	if r.lexical == nil {
		return Result{Path: PathEmpty}
	}
	searchCtx, cancel := withTimeout(ctx, r.cfg.SearchTimeout)
	defer cancel()
	hits, err := r.lexical.LexicalSearch(searchCtx, query, k)
	if err != nil {
		r.logger.Warn("lexical search failed", "error", err)
		return Result{Path: PathEmpty}
	}
	if len(hits) == 0 {
		return Result{Path: PathEmpty}
	}
	return Result{Hits: hits, Path: PathLexical}
}

func (r *HybridRetriever) embed(ctx context.Context, query string) ([]float32, bool) {
	if r.embedder == nil {
		return nil, false
	}
	key := QueryKey(query)
	if r.cache != nil {
		if vec, ok := r.cache.Get(key); ok {
			r.metrics.IncEmbeddingCache(true)
			return vec, true
		}
		r.metrics.IncEmbeddingCache(false)
	}

	embedCtx, cancel := withTimeout(ctx, r.cfg.EmbedTimeout)
	defer cancel()
	vec, err := r.embedder.Embed(embedCtx, query)
	if err != nil || len(vec) == 0 {
		r.metrics.IncProviderError("embedding")
		r.logger.Warn("query embedding failed", "error", err)
		return nil, false
	}
	if r.cache != nil {
		r.cache.Set(key, vec)
	}
	return vec, true
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
