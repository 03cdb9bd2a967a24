package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ent0n29/bravurbot/internal/app"
	"github.com/ent0n29/bravurbot/internal/knowledge"
	"github.com/ent0n29/bravurbot/internal/llm"
)

var embedBatch int

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Compute embeddings for knowledge-base entries that need one",
	Long: `Embed every knowledge-base entry flagged needs_embedding, in id order.

Entries that fail are logged and left flagged so the next run retries them.`,
	Args: cobra.NoArgs,
	RunE: runEmbed,
}

func init() {
	embedCmd.Flags().IntVarP(&embedBatch, "batch", "b", 0, "entries per batch (defaults to EMBED_BATCH_SIZE)")
}

func runEmbed(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required to backfill embeddings")
	}

	res, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer res.Cleanup()
	if _, mock := res.Embedder.(llm.MockEmbedder); mock {
		return fmt.Errorf("no embedding provider configured (set OPENAI_API_KEY or EMBEDDING_PROVIDER=ollama)")
	}

	batch := embedBatch
	if batch <= 0 {
		batch = cfg.EmbedBatchSize
	}
	report, err := knowledge.NewBackfiller(res.Knowledge, res.Embedder, batch, logger.With("component", "backfill")).Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pending=%d embedded=%d skipped=%d failed=%d\n",
		report.Pending, report.Embedded, report.Skipped, report.Failed)
	return nil
}
