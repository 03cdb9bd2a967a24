package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ent0n29/bravurbot/internal/llm"
	"github.com/ent0n29/bravurbot/internal/reliability"
)

// BackfillReport summarises one backfill run.
type BackfillReport struct {
	Pending  int
	Embedded int
	Skipped  int
	Failed   int
}

// Backfiller computes embeddings for entries flagged needs_embedding.
type Backfiller struct {
	store    Store
	embedder llm.Embedder
	retry    reliability.RetryPolicy
	batch    int
	logger   *slog.Logger
}

func NewBackfiller(store Store, embedder llm.Embedder, batch int, logger *slog.Logger) *Backfiller {
	if batch <= 0 {
		batch = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Backfiller{
		store:    store,
		embedder: embedder,
		retry: reliability.RetryPolicy{
			Attempts: 4,
			Base:     500 * time.Millisecond,
			Cap:      8 * time.Second,
		},
		batch:  batch,
		logger: logger,
	}
}

// WithRetry overrides the per-entry retry policy.
func (b *Backfiller) WithRetry(p reliability.RetryPolicy) *Backfiller {
	b.retry = p
	return b
}

// Run embeds pending entries batch by batch in ID order. Per-entry failures
// are logged and skipped; entries with empty content are skipped.
func (b *Backfiller) Run(ctx context.Context) (BackfillReport, error) {
	var (
		report BackfillReport
		cursor int64
	)
	for {
		pending, err := b.store.PendingEmbeddings(ctx, cursor, b.batch)
		if err != nil {
			return report, fmt.Errorf("load pending embeddings: %w", err)
		}

		for _, e := range pending {
			cursor = e.ID
			report.Pending++

			if err := ctx.Err(); err != nil {
				return report, err
			}
			if strings.TrimSpace(e.Content) == "" {
				report.Skipped++
				b.logger.Info("skipping entry with empty content", "entry_id", e.ID)
				continue
			}

			if err := b.embedOne(ctx, e); err != nil {
				report.Failed++
				b.logger.Error("embedding entry failed", "entry_id", e.ID, "error", err)
				continue
			}
			report.Embedded++
			b.logger.Info("updated embedding", "entry_id", e.ID)
		}

		if len(pending) < b.batch {
			return report, nil
		}
	}
}

func (b *Backfiller) embedOne(ctx context.Context, e Entry) error {
	var vec []float32
	err := reliability.Retry(ctx, b.retry, func(ctx context.Context) error {
		v, err := b.embedder.Embed(ctx, EmbeddingText(e))
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		return err
	}
	return b.store.SetEmbedding(ctx, e.ID, vec)
}
