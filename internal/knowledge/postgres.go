package knowledge

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// DefaultDimension matches text-embedding-3-large.
const DefaultDimension = 3072

// PostgresStore keeps entries in the bravur_data table with a pgvector column.
type PostgresStore struct {
	pool *pgxpool.Pool
	dim  int
}

// NewPostgresStore uses a pool owned by the caller; Close is a no-op.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, dim int) (*PostgresStore, error) {
	if dim <= 0 {
		dim = DefaultDimension
	}
	if err := initSchema(ctx, pool, dim); err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool, dim: dim}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool, dim int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector;`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS bravur_data (
			entry_id BIGSERIAL PRIMARY KEY,
			category TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			content_embedding vector(%d),
			needs_embedding BOOLEAN NOT NULL DEFAULT TRUE,
			last_updated_embedding TIMESTAMPTZ
		);`, dim),
		`CREATE INDEX IF NOT EXISTS idx_bravur_data_pending ON bravur_data (entry_id) WHERE needs_embedding;`,
		`CREATE INDEX IF NOT EXISTS idx_bravur_data_fts ON bravur_data USING GIN (to_tsvector('english', content));`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Add(ctx context.Context, e Entry) (Entry, error) {
	var embedding any
	if e.Embedding != nil {
		if len(e.Embedding) != s.dim {
			return Entry{}, ErrDimensionMismatch
		}
		embedding = pgvector.NewVector(e.Embedding)
	}
	e.NeedsEmbedding = e.Embedding == nil

	err := s.pool.QueryRow(ctx,
		`INSERT INTO bravur_data (category, title, content, content_embedding, needs_embedding, last_updated_embedding)
		 VALUES ($1, $2, $3, $4::vector, $5, CASE WHEN $5 THEN NULL ELSE now() END)
		 RETURNING entry_id`,
		e.Category, e.Title, e.Content, embedding, e.NeedsEmbedding,
	).Scan(&e.ID)
	if err != nil {
		return Entry{}, fmt.Errorf("insert knowledge entry: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) PendingEmbeddings(ctx context.Context, afterID int64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx,
		`SELECT entry_id, category, title, content
		 FROM bravur_data WHERE needs_embedding AND entry_id > $1 ORDER BY entry_id LIMIT $2`,
		afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending embeddings: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e := Entry{NeedsEmbedding: true}
		if err := rows.Scan(&e.ID, &e.Category, &e.Title, &e.Content); err != nil {
			return nil, fmt.Errorf("scan pending entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending entries: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SetEmbedding(ctx context.Context, id int64, vec []float32) error {
	if len(vec) != s.dim {
		return ErrDimensionMismatch
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE bravur_data
		 SET content_embedding = $1::vector, last_updated_embedding = now(), needs_embedding = FALSE
		 WHERE entry_id = $2`,
		pgvector.NewVector(vec), id,
	)
	if err != nil {
		return fmt.Errorf("update embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) VectorSearch(ctx context.Context, vec []float32, k int) ([]SearchResult, error) {
	if k <= 0 || len(vec) == 0 {
		return nil, nil
	}
	if len(vec) != s.dim {
		return nil, ErrDimensionMismatch
	}
	rows, err := s.pool.Query(ctx,
		`SELECT entry_id, title, content, content_embedding <=> $1::vector AS distance
		 FROM bravur_data
		 WHERE content_embedding IS NOT NULL
		 ORDER BY distance ASC
		 LIMIT $2`,
		pgvector.NewVector(vec), k,
	)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return collectResults(rows, func(r *SearchResult) []any {
		return []any{&r.EntryID, &r.Title, &r.Content, &r.Distance}
	}, func(r *SearchResult) { r.Score = 1 - r.Distance })
}

func (s *PostgresStore) LexicalSearch(ctx context.Context, query string, k int) ([]SearchResult, error) {
	if k <= 0 || trim(query) == "" {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT entry_id, title, content
		 FROM bravur_data
		 WHERE to_tsvector('english', content) @@ plainto_tsquery('english', $1)
		 ORDER BY ts_rank(to_tsvector('english', content), plainto_tsquery('english', $1)) DESC, entry_id
		 LIMIT $2`,
		query, k,
	)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	return collectResults(rows, func(r *SearchResult) []any {
		return []any{&r.EntryID, &r.Title, &r.Content}
	}, func(r *SearchResult) { r.Score = LexicalScore })
}

func (s *PostgresStore) Close() error { return nil }

func collectResults(rows pgx.Rows, dest func(*SearchResult) []any, finish func(*SearchResult)) ([]SearchResult, error) {
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(dest(&r)...); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		finish(&r)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return out, nil
}
