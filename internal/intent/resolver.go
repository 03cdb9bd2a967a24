package intent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ent0n29/bravurbot/internal/conversation"
	"github.com/ent0n29/bravurbot/internal/llm"
)

// Resolution is the Stage 2 outcome: either a direct answer or a refined label.
type Resolution struct {
	Direct string
	Label  Label
	Source Source
}

// Answered reports whether the resolver produced a reply on its own.
func (r Resolution) Answered() bool { return r.Direct != "" }

// Resolver disambiguates follow-up and vague queries using the history window.
type Resolver struct {
	model    llm.ChatModel
	modelID  string
	detector Detector
	timeout  time.Duration
	logger   *slog.Logger
}

func NewResolver(model llm.ChatModel, modelID string, detector Detector, timeout time.Duration, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{model: model, modelID: modelID, detector: detector, timeout: timeout, logger: logger}
}

// ShouldResolve reports whether Stage 2 applies to a Stage 1 label.
func (r *Resolver) ShouldResolve(initial Label, text string) bool {
	return initial == PreviousQuery || (initial == Unknown && r.detector.IsContextual(text))
}

// Resolve answers recall requests from window, or asks the model to re-label
// the query with the window as context. window may include the current turn.
func (r *Resolver) Resolve(ctx context.Context, text string, window conversation.Window, language string) Resolution {
	languageName := LanguageName(language)
	prior := window.WithoutCurrent(text)

	switch r.detector.MemoryKind(text) {
	case MemoryLastQuestion:
		users := window.UserMessages()
		if len(prior) == len(window) {
			// The current turn is not in the window; the latest user message is the last question.
			users = append(users, text)
		}
		if len(users) > 1 {
			return Resolution{Direct: fmt.Sprintf("Your last question was: \"%s\"", users[len(users)-2]), Source: SourceRule}
		}
		return Resolution{Direct: "I couldn't find your last question in this session.", Source: SourceRule}

	case MemoryLastAnswer:
		if last, ok := prior.LastAssistant(); ok {
			return Resolution{Direct: fmt.Sprintf("My last answer was: \"%s\"", last), Source: SourceRule}
		}
		return Resolution{Direct: "I couldn't find my last answer.", Source: SourceRule}

	case MemorySummary:
		return r.summarize(ctx, prior, languageName)
	}

	if len(prior) == 0 {
		r.logger.Info("contextual query without history, treating as unknown")
		return Resolution{Label: Unknown, Source: SourceRule}
	}
	return r.refine(ctx, text, prior, languageName)
}

func (r *Resolver) summarize(ctx context.Context, prior conversation.Window, languageName string) Resolution {
	if len(prior) == 0 {
		return Resolution{Direct: "There is nothing to summarize yet in this session.", Source: SourceRule}
	}
	if r.model == nil {
		return Resolution{Label: Unknown, Source: SourceFallback}
	}

	msgs := make([]llm.Message, 0, len(prior)+1)
	msgs = append(msgs, llm.Message{
		Role:    llm.RoleSystem,
		Content: fmt.Sprintf("Summarize this conversation about Bravur/IT topics concisely in %s.", languageName),
	})
	msgs = append(msgs, prior...)

	callCtx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()
	resp, err := r.model.Complete(callCtx, llm.Request{
		Model:       r.modelID,
		Messages:    msgs,
		Temperature: 0.5,
		MaxTokens:   200,
	}, nil)
	if err != nil || strings.TrimSpace(resp.Text) == "" {
		r.logger.Error("conversation summary failed", "error", err)
		return Resolution{Label: Unknown, Source: SourceFallback}
	}
	return Resolution{Direct: "Here's a summary:\n" + strings.TrimSpace(resp.Text), Source: SourceModel}
}

func (r *Resolver) refine(ctx context.Context, text string, prior conversation.Window, languageName string) Resolution {
	if r.model == nil {
		return Resolution{Label: Unknown, Source: SourceFallback}
	}

	callCtx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()
	resp, err := r.model.Complete(callCtx, llm.Request{
		Model:       r.modelID,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: refinementPrompt(text, prior.Format(), languageName)}},
		Temperature: 0,
		MaxTokens:   30,
	}, nil)
	if err != nil {
		r.logger.Error("contextual refinement failed", "error", err)
		return Resolution{Label: Unknown, Source: SourceFallback}
	}

	label, ok := Normalize(resp.Text, RefinedLabels)
	if !ok {
		r.logger.Warn("refinement returned unexpected category", "raw", truncate(resp.Text, 80))
		return Resolution{Label: Unknown, Source: SourceInvalid}
	}
	r.logger.Info("contextual intent refined", "label", label)
	return Resolution{Label: label, Source: SourceModel}
}

func refinementPrompt(text, history, languageName string) string {
	return fmt.Sprintf(`You analyse a user's query in the context of an ongoing conversation with the support chatbot of "Bravur" (an IT consultancy).
The chatbot discusses "Company Info" (about Bravur) and "IT Trends" (general IT).

Conversation History:
%s

User's Current Query (in %s): %q

Decide whether the query is a follow-up that now belongs to "Company Info" or "IT Trends", or is still "Unknown".
- Refers to a Bravur-specific topic from the history: Company Info.
- Refers to a general IT trend from the history: IT Trends.
- General knowledge, chit-chat, or still too vague to relate to Bravur/IT: Unknown.
- The user now needs human help: Human Support Service Request.

Respond with ONLY one category name: Company Info, IT Trends, Human Support Service Request, Unknown.
Refined Intent:`, history, languageName, text)
}
