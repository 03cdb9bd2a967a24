package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ent0n29/bravurbot/internal/knowledge"
)

func TestRetrieveUsesVectorPath(t *testing.T) {
	store := seededStore(t)
	r := NewHybridRetriever(staticEmbedder{vec: []float32{1, 0}}, store, store, nil, Config{}, nil, nil)

	res := r.Retrieve(context.Background(), "What services does Bravur offer?", 3)
	if res.Path != PathVector {
		t.Fatalf("Path = %q, want vector", res.Path)
	}
	if len(res.Hits) == 0 || res.Hits[0].Title != "Services" {
		t.Fatalf("Hits = %+v", res.Hits)
	}
}

func TestRetrieveNeverExceedsK(t *testing.T) {
	store := knowledge.NewInMemoryStore(2)
	for i := 0; i < 10; i++ {
		_, _ = store.Add(context.Background(), knowledge.Entry{
			Title:     fmt.Sprintf("cloud %d", i),
			Content:   "cloud migration",
			Embedding: []float32{1, float32(i)},
		})
	}
	r := NewHybridRetriever(staticEmbedder{vec: []float32{1, 0}}, store, store, nil, Config{}, nil, nil)
	for _, k := range []int{1, 3, 5} {
		if got := len(r.Retrieve(context.Background(), "cloud migration", k).Hits); got > k {
			t.Fatalf("Retrieve(k=%d) returned %d hits", k, got)
		}
	}
	failing := NewHybridRetriever(staticEmbedder{err: errors.New("down")}, store, store, nil, Config{}, nil, nil)
	if got := len(failing.Retrieve(context.Background(), "cloud migration", 2).Hits); got > 2 {
		t.Fatalf("lexical Retrieve(k=2) returned %d hits", got)
	}
}

func TestRetrieveFallsBackWhenEmbeddingFails(t *testing.T) {
	store := seededStore(t)
	lexical := &countingLexical{inner: store}
	r := NewHybridRetriever(staticEmbedder{err: errors.New("embedding service unavailable")}, store, lexical, nil, Config{}, nil, nil)

	res := r.Retrieve(context.Background(), "cloud migration", 3)
	if res.Path != PathLexical {
		t.Fatalf("Path = %q, want lexical", res.Path)
	}
	if len(res.Hits) != 1 || res.Hits[0].Title != "Cloud" {
		t.Fatalf("Hits = %+v", res.Hits)
	}
	if res.Hits[0].Score != knowledge.LexicalScore {
		t.Fatalf("Score = %v, want %v", res.Hits[0].Score, knowledge.LexicalScore)
	}
	if lexical.calls != 1 {
		t.Fatalf("lexical calls = %d, want 1", lexical.calls)
	}
}

func TestRetrieveFallsBackWhenVectorSearchEmpty(t *testing.T) {
	store := knowledge.NewInMemoryStore(2)
	_, _ = store.Add(context.Background(), knowledge.Entry{Title: "Cloud", Content: "cloud migration to Azure"})
	lexical := &countingLexical{inner: store}
	r := NewHybridRetriever(staticEmbedder{vec: []float32{1, 0}}, store, lexical, nil, Config{}, nil, nil)

	res := r.Retrieve(context.Background(), "cloud migration", 3)
	if res.Path != PathLexical || lexical.calls != 1 {
		t.Fatalf("Path = %q, lexical calls = %d", res.Path, lexical.calls)
	}
}

func TestRetrieveEmptyIsNotAnError(t *testing.T) {
	store := knowledge.NewInMemoryStore(2)
	lexical := &countingLexical{inner: store}
	r := NewHybridRetriever(staticEmbedder{err: errors.New("down")}, store, lexical, nil, Config{}, nil, nil)

	res := r.Retrieve(context.Background(), "quantum blockchain", 3)
	if res.Path != PathEmpty || len(res.Hits) != 0 {
		t.Fatalf("Retrieve() = %+v, want empty", res)
	}
	if lexical.calls != 1 {
		t.Fatalf("lexical fallback should be attempted before returning empty")
	}

	broken := NewHybridRetriever(nil, nil, failingLexical{}, nil, Config{}, nil, nil)
	if res := broken.Retrieve(context.Background(), "anything", 3); res.Path != PathEmpty {
		t.Fatalf("Retrieve() with failing lexical = %+v", res)
	}
}

func TestRetrieveMemoisesEmbeddings(t *testing.T) {
	store := seededStore(t)
	emb := &countingEmbedder{vec: []float32{1, 0}}
	r := NewHybridRetriever(emb, store, store, NewTTLCache(time.Minute, 10), Config{}, nil, nil)

	r.Retrieve(context.Background(), "What services does Bravur offer?", 3)
	r.Retrieve(context.Background(), "  what services   does bravur offer? ", 3)
	if emb.calls != 1 {
		t.Fatalf("embed calls = %d, want 1", emb.calls)
	}
}

func TestTTLCacheBoundsSize(t *testing.T) {
	c := NewTTLCache(time.Minute, 3)
	for i := 0; i < 10; i++ {
		c.Set(fmt.Sprintf("k%d", i), []float32{float32(i)})
	}
	if c.Len() > 3 {
		t.Fatalf("Len() = %d, want <= 3", c.Len())
	}
	if got, ok := c.Get("k9"); !ok || got[0] != 9 {
		t.Fatalf("latest entry missing: %v %v", got, ok)
	}
}

func TestTTLCacheConcurrentAccess(t *testing.T) {
	c := NewTTLCache(time.Minute, 50)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := QueryKey(fmt.Sprintf("q%d", j%20))
				c.Set(key, []float32{float32(i)})
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()
}

func TestQueryKeyNormalises(t *testing.T) {
	if QueryKey("Hello  World") != QueryKey("hello world") {
		t.Fatalf("QueryKey should ignore case and spacing")
	}
	if QueryKey("a") == QueryKey("b") {
		t.Fatalf("QueryKey collision")
	}
}

func seededStore(t *testing.T) *knowledge.InMemoryStore {
	t.Helper()
	s := knowledge.NewInMemoryStore(2)
	ctx := context.Background()
	if _, err := s.Add(ctx, knowledge.Entry{Title: "Services", Content: "Bravur offers consulting services.", Embedding: []float32{1, 0.1}}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, err := s.Add(ctx, knowledge.Entry{Title: "Cloud", Content: "Cloud migration to Azure."}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	return s
}

type staticEmbedder struct {
	vec []float32
	err error
}

func (e staticEmbedder) Embed(context.Context, string) ([]float32, error) {
	return e.vec, e.err
}

type countingEmbedder struct {
	mu    sync.Mutex
	vec   []float32
	calls int
}

func (e *countingEmbedder) Embed(context.Context, string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return e.vec, nil
}

type countingLexical struct {
	inner knowledge.LexicalSearcher
	calls int
}

func (l *countingLexical) LexicalSearch(ctx context.Context, q string, k int) ([]knowledge.SearchResult, error) {
	l.calls++
	return l.inner.LexicalSearch(ctx, q, k)
}

type failingLexical struct{}

func (failingLexical) LexicalSearch(context.Context, string, int) ([]knowledge.SearchResult, error) {
	return nil, errors.New("db down")
}
