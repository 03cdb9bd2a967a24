package retrieval

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	cache "github.com/patrickmn/go-cache"
)

// EmbeddingCache memoises query embeddings. Implementations must be safe for concurrent use.
type EmbeddingCache interface {
	Get(key string) ([]float32, bool)
	Set(key string, vec []float32)
}

// TTLCache is an EmbeddingCache on go-cache with a soft item cap.
type TTLCache struct {
	c        *cache.Cache
	maxItems int
}

// NewTTLCache creates a cache whose entries expire after ttl. When maxItems is
// positive, expired entries are purged and then an arbitrary entry is evicted
// before inserting beyond the cap.
func NewTTLCache(ttl time.Duration, maxItems int) *TTLCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TTLCache{
		c:        cache.New(ttl, ttl/2),
		maxItems: maxItems,
	}
}

func (t *TTLCache) Get(key string) ([]float32, bool) {
	v, ok := t.c.Get(key)
	if !ok {
		return nil, false
	}
	vec, ok := v.([]float32)
	return vec, ok
}

func (t *TTLCache) Set(key string, vec []float32) {
	if t.maxItems > 0 && t.c.ItemCount() >= t.maxItems {
		t.c.DeleteExpired()
		if t.c.ItemCount() >= t.maxItems {
			for k := range t.c.Items() {
				t.c.Delete(k)
				break
			}
		}
	}
	t.c.Set(key, append([]float32(nil), vec...), cache.DefaultExpiration)
}

// Len reports the number of cached items, including not yet purged expired ones.
func (t *TTLCache) Len() int { return t.c.ItemCount() }

// QueryKey hashes a normalised query so cache keys stay bounded in size.
func QueryKey(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.Join(strings.Fields(query), " "))))
	return hex.EncodeToString(sum[:])
}
