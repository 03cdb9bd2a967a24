package chat

import (
	_ "embed"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"
	"gopkg.in/yaml.v3"

	"github.com/ent0n29/bravurbot/internal/intent"
)

//go:embed replies.yaml
var defaultReplies []byte

// Replies is the canned text for one language.
type Replies struct {
	HumanSupport        string              `yaml:"human_support"`
	HumanSupportSession string              `yaml:"human_support_session"`
	Redirect            string              `yaml:"redirect"`
	Unsure              string              `yaml:"unsure"`
	NotFound            string              `yaml:"not_found"`
	NoContext           string              `yaml:"no_context"`
	GenerationError     string              `yaml:"generation_error"`
	TrendsError         string              `yaml:"trends_error"`
	RAGError            string              `yaml:"rag_error"`
	TurnError           string              `yaml:"turn_error"`
	Affect              map[string][]string `yaml:"affect"`
}

// Catalog holds replies keyed by language code ("en", "nl").
type Catalog struct {
	langs map[string]Replies
}

// LoadCatalog reads a YAML catalogue from path, or the embedded default when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	raw := defaultReplies
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read replies file: %w", err)
		}
		raw = b
	}
	return ParseCatalog(raw)
}

// ParseCatalog decodes a YAML catalogue. An "en" section is required.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var langs map[string]Replies
	if err := yaml.Unmarshal(raw, &langs); err != nil {
		return nil, fmt.Errorf("parse replies: %w", err)
	}
	en, ok := langs["en"]
	if !ok {
		return nil, fmt.Errorf("replies: missing en section")
	}
	if en.Redirect == "" || en.HumanSupport == "" || en.NotFound == "" {
		return nil, fmt.Errorf("replies: en section must define human_support, redirect and not_found")
	}
	return &Catalog{langs: langs}, nil
}

// MustDefaultCatalog returns the embedded catalogue.
func MustDefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultReplies)
	if err != nil {
		panic(err)
	}
	return c
}

// For returns the replies for a locale tag, falling back to English per field.
func (c *Catalog) For(language string) Replies {
	en := c.langs["en"]
	code := "en"
	if intent.LanguageName(language) == "Dutch" {
		code = "nl"
	}
	r, ok := c.langs[code]
	if !ok {
		return en
	}
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&r.HumanSupport, en.HumanSupport)
	fill(&r.HumanSupportSession, en.HumanSupportSession)
	fill(&r.Redirect, en.Redirect)
	fill(&r.Unsure, en.Unsure)
	fill(&r.NotFound, en.NotFound)
	fill(&r.NoContext, en.NoContext)
	fill(&r.GenerationError, en.GenerationError)
	fill(&r.TrendsError, en.TrendsError)
	fill(&r.RAGError, en.RAGError)
	fill(&r.TurnError, en.TurnError)
	if len(r.Affect) == 0 {
		r.Affect = en.Affect
	}
	return r
}

// render substitutes {name} placeholders.
func render(tmpl string, kv ...string) string {
	pairs := make([]string, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		pairs = append(pairs, "{"+kv[i]+"}", kv[i+1])
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// ReplyPicker draws canned variants while avoiding ones a session has already seen.
type ReplyPicker struct {
	mu   sync.Mutex
	used *cache.Cache
	rand func(n int) int
}

// NewReplyPicker remembers used variants per session for ttl.
func NewReplyPicker(ttl time.Duration) *ReplyPicker {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &ReplyPicker{
		used: cache.New(ttl, time.Hour),
		rand: rand.IntN,
	}
}

// Pick returns a variant not yet used in sessionID for pool; once all are used the pool resets.
func (p *ReplyPicker) Pick(sessionID, pool string, variants []string) string {
	if len(variants) == 0 {
		return ""
	}
	if len(variants) == 1 || sessionID == "" {
		return variants[p.rand(len(variants))]
	}

	key := sessionID + "|" + pool
	p.mu.Lock()
	defer p.mu.Unlock()

	seen := map[int]bool{}
	if v, ok := p.used.Get(key); ok {
		seen = v.(map[int]bool)
	}
	if len(seen) >= len(variants) {
		seen = map[int]bool{}
	}

	free := make([]int, 0, len(variants))
	for i := range variants {
		if !seen[i] {
			free = append(free, i)
		}
	}
	idx := free[p.rand(len(free))]

	next := make(map[int]bool, len(seen)+1)
	for k := range seen {
		next[k] = true
	}
	next[idx] = true
	p.used.Set(key, next, cache.DefaultExpiration)
	return variants[idx]
}
