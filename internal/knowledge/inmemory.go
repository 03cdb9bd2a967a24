package knowledge

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"
)

// InMemoryStore is a process-local knowledge base for local/dev use and tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	entries []Entry
	dim     int
}

// NewInMemoryStore creates an empty store; dim of zero accepts any vector length.
func NewInMemoryStore(dim int) *InMemoryStore {
	return &InMemoryStore{dim: dim}
}

func (s *InMemoryStore) Add(_ context.Context, e Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e.ID = s.nextID
	if e.Embedding == nil {
		e.NeedsEmbedding = true
	} else {
		e.Embedding = append([]float32(nil), e.Embedding...)
	}
	s.entries = append(s.entries, e)
	return e, nil
}

func (s *InMemoryStore) PendingEmbeddings(_ context.Context, afterID int64, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if !e.NeedsEmbedding || e.ID <= afterID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) SetEmbedding(_ context.Context, id int64, vec []float32) error {
	if s.dim > 0 && len(vec) != s.dim {
		return ErrDimensionMismatch
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].ID == id {
			s.entries[i].Embedding = append([]float32(nil), vec...)
			s.entries[i].NeedsEmbedding = false
			s.entries[i].EmbeddedAt = time.Now().UTC()
			return nil
		}
	}
	return ErrNotFound
}

func (s *InMemoryStore) VectorSearch(ctx context.Context, vec []float32, k int) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 || len(vec) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []SearchResult
	for _, e := range s.entries {
		if e.Embedding == nil || len(e.Embedding) != len(vec) {
			continue
		}
		d := cosineDistance(vec, e.Embedding)
		hits = append(hits, SearchResult{EntryID: e.ID, Title: e.Title, Content: e.Content, Score: 1 - d, Distance: d})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// LexicalSearch matches entries containing every significant query term,
// approximating plainto_tsquery's AND semantics.
func (s *InMemoryStore) LexicalSearch(ctx context.Context, query string, k int) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := queryTerms(query)
	if k <= 0 || len(terms) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []SearchResult
	for _, e := range s.entries {
		doc := docTerms(e.Title + " " + e.Content)
		matched := true
		for _, t := range terms {
			if _, ok := doc[t]; !ok {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		hits = append(hits, SearchResult{EntryID: e.ID, Title: e.Title, Content: e.Content, Score: LexicalScore})
		if len(hits) == k {
			break
		}
	}
	return hits, nil
}

func (s *InMemoryStore) Close() error { return nil }

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "about": {}, "can": {}, "do": {}, "does": {},
	"for": {}, "how": {}, "i": {}, "in": {}, "is": {}, "it": {}, "me": {}, "of": {},
	"on": {}, "or": {}, "tell": {}, "the": {}, "to": {}, "what": {}, "which": {},
	"who": {}, "with": {}, "you": {}, "your": {},
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func queryTerms(query string) []string {
	var out []string
	for _, f := range words(query) {
		if _, stop := stopWords[f]; stop || len([]rune(f)) < 2 {
			continue
		}
		out = append(out, stem(f))
	}
	return out
}

// docTerms is the set of stemmed words in text, so "ai" matches the word "AI"
// but not "maintain".
func docTerms(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range words(text) {
		set[stem(w)] = struct{}{}
	}
	return set
}

// stem trims a plural "s" so "services" matches "service".
func stem(w string) string {
	if len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
		return w[:len(w)-1]
	}
	return w
}

func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

func trim(s string) string { return strings.TrimSpace(s) }
