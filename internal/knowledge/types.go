// Package knowledge stores the company knowledge base and searches it by
// vector distance or full text.
package knowledge

import (
	"context"
	"errors"
	"time"
)

// Entry is one knowledge-base row. Embedding is nil until the backfill job runs.
type Entry struct {
	ID             int64     `json:"entry_id"`
	Category       string    `json:"category,omitempty"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	Embedding      []float32 `json:"-"`
	NeedsEmbedding bool      `json:"needs_embedding"`
	EmbeddedAt     time.Time `json:"last_updated_embedding,omitzero"`
}

// SearchResult is a ranked hit. Vector hits carry the cosine distance;
// lexical hits have a uniform Score of 1.
type SearchResult struct {
	EntryID  int64   `json:"entry_id"`
	Title    string  `json:"title"`
	Content  string  `json:"content"`
	Score    float64 `json:"score"`
	Distance float64 `json:"distance,omitempty"`
}

// LexicalScore is the rank score assigned to every full-text hit.
const LexicalScore = 1.0

// VectorSearcher ranks embedded entries by ascending distance to vec.
type VectorSearcher interface {
	VectorSearch(ctx context.Context, vec []float32, k int) ([]SearchResult, error)
}

// LexicalSearcher returns up to k full-text matches for query.
type LexicalSearcher interface {
	LexicalSearch(ctx context.Context, query string, k int) ([]SearchResult, error)
}

// Store is the full knowledge-base contract used by the app and the backfill job.
type Store interface {
	VectorSearcher
	LexicalSearcher
	Add(ctx context.Context, e Entry) (Entry, error)
	// PendingEmbeddings lists entries needing an embedding with ID > afterID, in ID order.
	PendingEmbeddings(ctx context.Context, afterID int64, limit int) ([]Entry, error)
	SetEmbedding(ctx context.Context, id int64, vec []float32) error
	Close() error
}

var (
	ErrNotFound          = errors.New("knowledge entry not found")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// EmbeddingText is the text embedded for an entry: title and content on separate lines.
func EmbeddingText(e Entry) string {
	return trim(e.Title) + "\n" + trim(e.Content)
}
