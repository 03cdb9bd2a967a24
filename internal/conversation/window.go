// Package conversation builds token-budgeted history windows for LLM calls.
package conversation

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ent0n29/bravurbot/internal/llm"
	"github.com/ent0n29/bravurbot/internal/memory"
)

// DefaultTokenBudget is the history budget used when callers pass zero.
const DefaultTokenBudget = 400

// Window is a chronologically ordered, budget-bounded slice of history.
type Window []llm.Message

// EstimateTokens approximates the token count of text as max(1, floor(words*0.75)).
func EstimateTokens(text string) int {
	n := int(float64(len(strings.Fields(text))) * 0.75)
	if n < 1 {
		return 1
	}
	return n
}

// Tokens sums the estimated token cost of every message in the window.
func (w Window) Tokens() int {
	total := 0
	for _, m := range w {
		total += EstimateTokens(m.Content)
	}
	return total
}

// UserMessages returns the content of user turns in order.
func (w Window) UserMessages() []string {
	var out []string
	for _, m := range w {
		if m.Role == llm.RoleUser {
			out = append(out, m.Content)
		}
	}
	return out
}

// LastAssistant returns the most recent assistant turn.
func (w Window) LastAssistant() (string, bool) {
	for i := len(w) - 1; i >= 0; i-- {
		if w[i].Role == llm.RoleAssistant {
			return w[i].Content, true
		}
	}
	return "", false
}

// WithoutCurrent drops a trailing user turn equal to text, so that a window
// built after the turn was stored can be sent as prior history.
func (w Window) WithoutCurrent(text string) Window {
	if len(w) == 0 {
		return w
	}
	last := w[len(w)-1]
	if last.Role == llm.RoleUser && strings.TrimSpace(last.Content) == strings.TrimSpace(text) {
		return w[:len(w)-1]
	}
	return w
}

// Format renders the window as "role: content" lines for prompts.
func (w Window) Format() string {
	var b strings.Builder
	for i, m := range w {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}

// Builder reads persisted history and produces windows.
type Builder struct {
	store  memory.Store
	logger *slog.Logger
}

func NewBuilder(store memory.Store, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{store: store, logger: logger}
}

// Build returns the newest messages of a session whose estimated token sum
// stays within budget. Storage failures produce an empty window.
func (b *Builder) Build(ctx context.Context, sessionID string, budget int) Window {
	if memory.IsBlankSessionID(sessionID) || b.store == nil {
		return Window{}
	}
	if budget <= 0 {
		budget = DefaultTokenBudget
	}

	msgs, err := b.store.Messages(ctx, sessionID)
	if err != nil {
		b.logger.Warn("load history failed", "session_id", sessionID, "error", err)
		return Window{}
	}
	return Fit(msgs, budget)
}

// Fit applies the newest-first budget scan to msgs, which must be chronological.
func Fit(msgs []memory.Message, budget int) Window {
	var (
		picked []llm.Message
		total  int
	)
	for i := len(msgs) - 1; i >= 0; i-- {
		role, ok := chatRole(msgs[i].Role)
		if !ok {
			continue
		}
		cost := EstimateTokens(msgs[i].Content)
		if total+cost > budget {
			break
		}
		total += cost
		picked = append(picked, llm.Message{Role: role, Content: msgs[i].Content})
	}

	out := make(Window, 0, len(picked))
	for i := len(picked) - 1; i >= 0; i-- {
		out = append(out, picked[i])
	}
	return out
}

func chatRole(r memory.Role) (llm.Role, bool) {
	switch r {
	case memory.RoleUser:
		return llm.RoleUser, true
	case memory.RoleBot:
		return llm.RoleAssistant, true
	case memory.RoleSystem:
		return llm.RoleSystem, true
	default:
		return "", false
	}
}
