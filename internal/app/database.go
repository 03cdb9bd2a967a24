package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ent0n29/bravurbot/internal/reliability"
)

// openPool connects to Postgres and waits for it to answer a ping. An empty
// url returns a nil pool so every store falls back to memory.
func openPool(ctx context.Context, databaseURL string, logger *slog.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	databaseURL = strings.TrimSpace(databaseURL)
	if databaseURL == "" {
		return nil, nil
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	// Compose brings the database up alongside the service.
	policy := reliability.RetryPolicy{
		Attempts:  5,
		Base:      500 * time.Millisecond,
		Cap:       5 * time.Second,
		Retryable: func(error) bool { return true },
	}
	attempt := 0
	err = reliability.Retry(ctx, policy, func(ctx context.Context) error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			logger.Warn("postgres not reachable yet", "attempt", attempt, "error", err)
			return err
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}
