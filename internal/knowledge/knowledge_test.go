package knowledge

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ent0n29/bravurbot/internal/reliability"
)

func TestInMemoryVectorSearchRanksByDistance(t *testing.T) {
	s := NewInMemoryStore(2)
	ctx := context.Background()
	far, _ := s.Add(ctx, Entry{Title: "far", Content: "x", Embedding: []float32{0, 1}})
	near, _ := s.Add(ctx, Entry{Title: "near", Content: "y", Embedding: []float32{1, 0.1}})
	_, _ = s.Add(ctx, Entry{Title: "pending", Content: "z"})

	got, err := s.VectorSearch(ctx, []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("VectorSearch() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (unembedded entries excluded)", len(got))
	}
	if got[0].EntryID != near.ID || got[1].EntryID != far.ID {
		t.Fatalf("order = %+v", got)
	}
	if got[0].Distance > got[1].Distance {
		t.Fatalf("distances not ascending: %+v", got)
	}

	top, _ := s.VectorSearch(ctx, []float32{1, 0}, 1)
	if len(top) != 1 {
		t.Fatalf("len(top) = %d, want 1", len(top))
	}
}

func TestInMemoryLexicalSearch(t *testing.T) {
	s := NewInMemoryStore(0)
	ctx := context.Background()
	_, _ = s.Add(ctx, Entry{Title: "Cloud", Content: "Bravur runs cloud migration projects on Azure."})
	_, _ = s.Add(ctx, Entry{Title: "Data", Content: "We build data platforms."})
	_, _ = s.Add(ctx, Entry{Title: "Cloud 2", Content: "Cloud migration workshops."})

	got, err := s.LexicalSearch(ctx, "What about cloud migration?", 5)
	if err != nil {
		t.Fatalf("LexicalSearch() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(got), got)
	}
	for _, r := range got {
		if r.Score != LexicalScore {
			t.Fatalf("score = %v, want uniform %v", r.Score, LexicalScore)
		}
	}

	limited, _ := s.LexicalSearch(ctx, "cloud migration", 1)
	if len(limited) != 1 {
		t.Fatalf("len(limited) = %d, want 1", len(limited))
	}
	if none, _ := s.LexicalSearch(ctx, "the and of", 3); len(none) != 0 {
		t.Fatalf("stop-word query should not match, got %+v", none)
	}
}

func TestInMemoryLexicalSearchMatchesWholeWords(t *testing.T) {
	s := NewInMemoryStore(0)
	ctx := context.Background()
	_, _ = s.Add(ctx, Entry{Title: "Support", Content: "We maintain legacy systems."})
	_, _ = s.Add(ctx, Entry{Title: "AI", Content: "Applied AI for logistics."})

	got, err := s.LexicalSearch(ctx, "ai", 5)
	if err != nil {
		t.Fatalf("LexicalSearch() error = %v", err)
	}
	if len(got) != 1 || got[0].Title != "AI" {
		t.Fatalf("LexicalSearch(ai) = %+v, want only the AI entry", got)
	}
	if plural, _ := s.LexicalSearch(ctx, "legacy system", 5); len(plural) != 1 {
		t.Fatalf("stemmed query should match %q, got %+v", "systems", plural)
	}
}

func TestInMemorySetEmbedding(t *testing.T) {
	s := NewInMemoryStore(3)
	ctx := context.Background()
	e, _ := s.Add(ctx, Entry{Title: "t", Content: "c"})
	if !e.NeedsEmbedding {
		t.Fatalf("new entry without vector should need an embedding")
	}
	if err := s.SetEmbedding(ctx, e.ID, []float32{1, 2}); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("SetEmbedding() error = %v, want ErrDimensionMismatch", err)
	}
	if err := s.SetEmbedding(ctx, 99, []float32{1, 2, 3}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SetEmbedding() error = %v, want ErrNotFound", err)
	}
	if err := s.SetEmbedding(ctx, e.ID, []float32{1, 2, 3}); err != nil {
		t.Fatalf("SetEmbedding() error = %v", err)
	}
	pending, _ := s.PendingEmbeddings(ctx, 0, 10)
	if len(pending) != 0 {
		t.Fatalf("pending = %+v, want none", pending)
	}
}

func TestBackfillerEmbedsPendingEntries(t *testing.T) {
	s := NewInMemoryStore(2)
	ctx := context.Background()
	a, _ := s.Add(ctx, Entry{Title: "About", Content: "Bravur is an IT consultancy."})
	_, _ = s.Add(ctx, Entry{Title: "Empty", Content: "   "})
	c, _ := s.Add(ctx, Entry{Title: "Broken", Content: "fails"})
	d, _ := s.Add(ctx, Entry{Title: "Services", Content: "Cloud and data."})

	emb := &fakeEmbedder{fail: map[string]error{EmbeddingText(c): errors.New("invalid input")}}
	b := NewBackfiller(s, emb, 2, nil).WithRetry(reliability.RetryPolicy{Attempts: 1})

	report, err := b.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := BackfillReport{Pending: 4, Embedded: 2, Skipped: 1, Failed: 1}
	if report != want {
		t.Fatalf("report = %+v, want %+v", report, want)
	}
	if got := emb.texts[0]; got != "About\nBravur is an IT consultancy." {
		t.Fatalf("embedded text = %q", got)
	}

	hits, _ := s.VectorSearch(ctx, []float32{1, 1}, 5)
	ids := map[int64]bool{}
	for _, h := range hits {
		ids[h.EntryID] = true
	}
	if !ids[a.ID] || !ids[d.ID] || ids[c.ID] {
		t.Fatalf("vector hits = %+v", hits)
	}
}

func TestBackfillerRetriesTransientFailures(t *testing.T) {
	s := NewInMemoryStore(2)
	ctx := context.Background()
	_, _ = s.Add(ctx, Entry{Title: "t", Content: "c"})

	emb := &fakeEmbedder{transient: 2}
	b := NewBackfiller(s, emb, 10, nil).WithRetry(reliability.RetryPolicy{Attempts: 3, Base: 1, Cap: 1})
	report, err := b.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Embedded != 1 || emb.calls != 3 {
		t.Fatalf("report = %+v after %d calls", report, emb.calls)
	}
}

type fakeEmbedder struct {
	mu        sync.Mutex
	fail      map[string]error
	transient int
	calls     int
	texts     []string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.fail[text]; err != nil {
		return nil, err
	}
	if f.transient > 0 {
		f.transient--
		return nil, errors.New("503 service unavailable")
	}
	f.texts = append(f.texts, text)
	return []float32{1, 1}, nil
}
