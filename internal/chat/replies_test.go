package chat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultCatalogLanguages(t *testing.T) {
	c := MustDefaultCatalog()
	en := c.For("en-US")
	nl := c.For("nl-BE")
	if en.Redirect == nl.Redirect {
		t.Fatalf("Dutch catalogue should differ from English")
	}
	if fallback := c.For("fr"); fallback.Redirect != en.Redirect {
		t.Fatalf("For(fr) should fall back to English")
	}
	for _, pool := range []string{"gratitude", "frustration", "positive_acknowledgment"} {
		if len(en.Affect[pool]) < 2 || len(nl.Affect[pool]) < 2 {
			t.Fatalf("affect pool %q is too small", pool)
		}
	}
}

func TestCatalogFallsBackPerField(t *testing.T) {
	raw := []byte(`
en:
  human_support: "call us"
  redirect: "ask about Bravur in {language}"
  not_found: "nothing on '{query}'"
  rag_error: "[rag failed]"
nl:
  human_support: "bel ons"
`)
	c, err := ParseCatalog(raw)
	if err != nil {
		t.Fatalf("ParseCatalog() error = %v", err)
	}
	nl := c.For("nl")
	if nl.HumanSupport != "bel ons" || nl.RAGError != "[rag failed]" {
		t.Fatalf("For(nl) = %+v", nl)
	}
}

func TestParseCatalogRequiresEnglish(t *testing.T) {
	if _, err := ParseCatalog([]byte("nl:\n  redirect: x\n")); err == nil {
		t.Fatalf("ParseCatalog() error = nil, want missing en")
	}
	if _, err := ParseCatalog([]byte("en:\n  redirect: x\n")); err == nil {
		t.Fatalf("ParseCatalog() error = nil, want missing keys")
	}
}

func TestLoadCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replies.yaml")
	body := "en:\n  human_support: h\n  redirect: r\n  not_found: n\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	if c.For("en").Redirect != "r" {
		t.Fatalf("unexpected catalogue: %+v", c.For("en"))
	}
	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("LoadCatalog(missing) error = nil")
	}
}

func TestRender(t *testing.T) {
	got := render("id {session_id} in {language}", "session_id", "abc", "language", "Dutch")
	if got != "id abc in Dutch" {
		t.Fatalf("render() = %q", got)
	}
}

func TestReplyPickerCyclesThroughVariants(t *testing.T) {
	p := NewReplyPicker(0)
	variants := []string{"a", "b", "c"}

	seen := map[string]bool{}
	for i := 0; i < len(variants); i++ {
		v := p.Pick("s1", "gratitude", variants)
		if seen[v] {
			t.Fatalf("Pick() repeated %q before exhausting the pool", v)
		}
		seen[v] = true
	}
	if v := p.Pick("s1", "gratitude", variants); !strings.Contains("abc", v) {
		t.Fatalf("Pick() after reset = %q", v)
	}

	// Other sessions and pools are independent.
	p.rand = func(int) int { return 0 }
	if v := p.Pick("s2", "gratitude", variants); v != "a" {
		t.Fatalf("Pick(s2) = %q, want a", v)
	}
}

func TestReplyPickerEmptyPool(t *testing.T) {
	if v := NewReplyPicker(0).Pick("s", "x", nil); v != "" {
		t.Fatalf("Pick(nil) = %q, want empty", v)
	}
}
