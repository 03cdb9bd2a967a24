package httpapi

import (
	"net/http"
	"strings"

	"github.com/ent0n29/bravurbot/internal/llm"
)

type statusCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

type statusResponse struct {
	ClassifierModel string        `json:"classifier_model"`
	TrendsModel     string        `json:"trends_model"`
	RAGModel        string        `json:"rag_model"`
	EmbeddingModel  string        `json:"embedding_model"`
	Checks          []statusCheck `json:"checks"`
}

// handleStatus reports which backing services are configured and how to fix gaps.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	checks := make([]statusCheck, 0, 8)
	checks = append(checks, s.providerChecks()...)

	if s.cfg.DatabaseURL == "" {
		checks = append(checks, statusCheck{
			ID:     "database",
			Status: "warn",
			Label:  "Persistence",
			Detail: "in-memory only",
			Fix:    "Set DATABASE_URL to keep sessions, history and knowledge across restarts.",
		})
	} else {
		checks = append(checks, s.pingCheck(r, "database", "Persistence"))
	}

	if s.cfg.RedisURL == "" {
		checks = append(checks, statusCheck{
			ID:     "redis",
			Status: "warn",
			Label:  "Rate limiting",
			Detail: "per-process limits",
			Fix:    "Set REDIS_URL to share limits between replicas.",
		})
	} else {
		checks = append(checks, s.pingCheck(r, "redis", "Rate limiting"))
	}

	respondJSON(w, http.StatusOK, statusResponse{
		ClassifierModel: s.cfg.ClassifierModel,
		TrendsModel:     s.cfg.TrendsModel,
		RAGModel:        s.cfg.RAGModel,
		EmbeddingModel:  s.cfg.EmbeddingProvider + ":" + s.cfg.EmbeddingModel,
		Checks:          checks,
	})
}

func (s *Server) providerChecks() []statusCheck {
	keys := map[string]string{
		"openai": s.cfg.OpenAIAPIKey,
		"groq":   s.cfg.GroqAPIKey,
	}
	env := map[string]string{
		"openai": "OPENAI_API_KEY",
		"groq":   "GROQ_API_KEY",
	}

	var checks []statusCheck
	seen := map[string]bool{}
	for _, id := range []string{s.cfg.ClassifierModel, s.cfg.TrendsModel, s.cfg.RAGModel, s.cfg.FallbackModel} {
		if strings.TrimSpace(id) == "" {
			continue
		}
		provider, _ := llm.SplitModel(id, "openai")
		if seen[provider] {
			continue
		}
		seen[provider] = true

		key, known := keys[provider]
		switch {
		case !known:
			checks = append(checks, statusCheck{
				ID:     provider + "_key",
				Status: "error",
				Label:  "Model provider " + provider,
				Detail: "unsupported provider",
				Fix:    "Use openai: or groq: model ids.",
			})
		case key == "":
			checks = append(checks, statusCheck{
				ID:     provider + "_key",
				Status: "error",
				Label:  "Model provider " + provider,
				Detail: env[provider] + " is not set; replies come from the offline mock",
				Fix:    "Set " + env[provider] + ".",
			})
		default:
			checks = append(checks, statusCheck{
				ID:     provider + "_key",
				Status: "ok",
				Label:  "Model provider " + provider,
				Detail: "present",
			})
		}
	}
	return checks
}

func (s *Server) pingCheck(r *http.Request, id, label string) statusCheck {
	p, ok := s.ready[id]
	if !ok {
		return statusCheck{ID: id, Status: "warn", Label: label, Detail: "configured but not wired"}
	}
	if err := p.Ping(r.Context()); err != nil {
		return statusCheck{ID: id, Status: "error", Label: label, Detail: err.Error()}
	}
	return statusCheck{ID: id, Status: "ok", Label: label, Detail: "reachable"}
}
