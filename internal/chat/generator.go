// Package chat turns a resolved intent into a reply and runs whole chat turns.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ent0n29/bravurbot/internal/conversation"
	"github.com/ent0n29/bravurbot/internal/intent"
	"github.com/ent0n29/bravurbot/internal/knowledge"
	"github.com/ent0n29/bravurbot/internal/llm"
	"github.com/ent0n29/bravurbot/internal/memory"
	"github.com/ent0n29/bravurbot/internal/observability"
	"github.com/ent0n29/bravurbot/internal/policy"
	"github.com/ent0n29/bravurbot/internal/retrieval"
)

// ChunkHandler receives reply text as it is produced. Returning an error stops forwarding.
type ChunkHandler func(chunk string) error

// Retriever is the knowledge lookup used by the RAG branch.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) retrieval.Result
}

// GeneratorConfig selects models and sampling per branch.
type GeneratorConfig struct {
	TrendsModel       string
	RAGModel          string
	TrendsTemperature float64
	RAGTemperature    float64
	MaxTokens         int
	TopK              int
	Timeout           time.Duration
}

func (c GeneratorConfig) withDefaults() GeneratorConfig {
	if c.TrendsModel == "" {
		c.TrendsModel = "groq:llama-3.3-70b-versatile"
	}
	if c.RAGModel == "" {
		c.RAGModel = "openai:gpt-4o-mini"
	}
	if c.TrendsTemperature == 0 {
		c.TrendsTemperature = 0.7
	}
	if c.RAGTemperature == 0 {
		c.RAGTemperature = 0.5
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1500
	}
	if c.TopK <= 0 {
		c.TopK = retrieval.DefaultTopK
	}
	return c
}

// GenerateRequest is one reply to produce. History holds prior turns only.
type GenerateRequest struct {
	Text      string
	SessionID string
	Language  string
	Intent    intent.Label
	History   conversation.Window
}

// Generation describes what the generator did.
type Generation struct {
	Text          string
	Intent        intent.Label
	RetrievalPath retrieval.Path
	Sources       []int64
	UsedModel     bool
	Failed        bool
}

// Generator is the intent-keyed reply dispatch.
type Generator struct {
	model     llm.ChatModel
	retriever Retriever
	catalog   *Catalog
	picker    *ReplyPicker
	cfg       GeneratorConfig
	metrics   *observability.Metrics
	logger    *slog.Logger
}

func NewGenerator(
	model llm.ChatModel,
	retriever Retriever,
	catalog *Catalog,
	picker *ReplyPicker,
	cfg GeneratorConfig,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Generator {
	if catalog == nil {
		catalog = MustDefaultCatalog()
	}
	if picker == nil {
		picker = NewReplyPicker(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		model:     model,
		retriever: retriever,
		catalog:   catalog,
		picker:    picker,
		cfg:       cfg.withDefaults(),
		metrics:   metrics,
		logger:    logger,
	}
}

// Generate streams the reply for req.Intent to onChunk and returns the full text.
// The returned error is non-nil only when onChunk failed; model failures end in
// an error chunk instead.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest, onChunk ChunkHandler) (Generation, error) {
	out := &collector{onChunk: onChunk}
	gen := Generation{Intent: req.Intent}
	replies := g.catalog.For(req.Language)
	languageName := intent.LanguageName(req.Language)

	var err error
	switch {
	case req.Intent == intent.HumanSupport:
		text := replies.HumanSupport
		if !memory.IsBlankSessionID(req.SessionID) {
			text += render(replies.HumanSupportSession, "session_id", req.SessionID)
		}
		err = out.emit(text)

	case req.Intent.IsAffect():
		err = out.emit(g.picker.Pick(req.SessionID, req.Intent.Slug(), replies.Affect[req.Intent.Slug()]))

	case req.Intent == intent.Unknown:
		err = out.emit(render(replies.Redirect, "language", languageName))

	case req.Intent == intent.ITTrends:
		gen.UsedModel = true
		msgs := buildMessages(
			fmt.Sprintf("You are a knowledgeable AI assistant. Provide concise insights on IT services and general technology trends. Respond in %s.", languageName),
			req.History, req.Text,
		)
		err = g.stream(ctx, out, &gen, "it_trends", llm.Request{
			Model:       g.cfg.TrendsModel,
			Messages:    msgs,
			Temperature: g.cfg.TrendsTemperature,
			MaxTokens:   g.cfg.MaxTokens,
			Stream:      true,
		}, replies.TrendsError)

	case req.Intent == intent.CompanyInfo || req.Intent == intent.PreviousQuery:
		err = g.rag(ctx, out, &gen, req, replies, languageName)

	default:
		err = out.emit(render(replies.Unsure, "language", languageName))
	}

	gen.Text = out.text()
	return gen, err
}

func (g *Generator) rag(ctx context.Context, out *collector, gen *Generation, req GenerateRequest, replies Replies, languageName string) error {
	var hits []knowledge.SearchResult
	gen.RetrievalPath = retrieval.PathEmpty
	if g.retriever != nil {
		res := g.retriever.Retrieve(ctx, req.Text, g.cfg.TopK)
		hits, gen.RetrievalPath = res.Hits, res.Path
	}

	if len(hits) == 0 && req.Intent == intent.CompanyInfo {
		g.logger.Info("no knowledge for company info query", "query", policy.Redact(req.Text))
		return out.emit(render(replies.NotFound, "query", req.Text))
	}

	contextBlock := replies.NoContext
	if len(hits) > 0 {
		contextBlock = FormatContext(hits)
		for _, h := range hits {
			gen.Sources = append(gen.Sources, h.EntryID)
		}
	}

	gen.UsedModel = true
	return g.stream(ctx, out, gen, "rag", llm.Request{
		Model:       g.cfg.RAGModel,
		Messages:    buildMessages(ragSystemPrompt(languageName, contextBlock), req.History, req.Text),
		Temperature: g.cfg.RAGTemperature,
		MaxTokens:   g.cfg.MaxTokens,
		Stream:      true,
	}, replies.RAGError)
}

func (g *Generator) stream(ctx context.Context, out *collector, gen *Generation, purpose string, req llm.Request, errorChunk string) error {
	if g.model == nil {
		gen.Failed = true
		return out.emit(errorChunk)
	}

	callCtx, cancel := withTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	_, err := g.model.Complete(callCtx, req, out.emit)
	if err == nil {
		return nil
	}
	if out.clientErr != nil {
		return out.clientErr
	}
	gen.Failed = true
	g.metrics.IncProviderError(purpose)
	if ctx.Err() != nil {
		// Caller went away; nothing left to tell.
		return nil
	}
	g.logger.Error("generation failed", "purpose", purpose, "model", req.Model, "error", err)
	return out.emit(errorChunk)
}

// FormatContext renders retrieved entries as the citation block of the RAG prompt.
func FormatContext(hits []knowledge.SearchResult) string {
	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		title := strings.TrimSpace(h.Title)
		if title == "" {
			title = "N/A"
		}
		parts = append(parts, fmt.Sprintf("Row ID: %d\nTitle: %s\nContent: %s", h.EntryID, title, h.Content))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func ragSystemPrompt(languageName, contextBlock string) string {
	return fmt.Sprintf("You are a helpful AI assistant for Bravur, an IT consultancy. Respond in %s. "+
		"Answer the user's query using only the 'Conversation History' and the 'Provided Context From Bravur Database' below. "+
		"Whenever you use information from the provided context you MUST cite its Row ID, like this: (Row ID: [ID]). "+
		"If several pieces of context are used, cite every relevant Row ID. "+
		"If the provided context does not contain the answer, rely on the conversation history when it is relevant. "+
		"If neither contains the answer, say clearly that you don't have that detail in Bravur's knowledge base. "+
		"Do not use any external knowledge. Be conversational and helpful.\n\n"+
		"Provided Context From Bravur Database:\n%s", languageName, contextBlock)
}

func buildMessages(system string, history conversation.Window, user string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: system})
	msgs = append(msgs, history...)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: user})
	return msgs
}

// collector forwards chunks and keeps the concatenated text. After the first
// downstream failure it keeps collecting but stops forwarding.
type collector struct {
	onChunk   ChunkHandler
	buf       strings.Builder
	clientErr error
}

func (c *collector) emit(chunk string) error {
	if chunk == "" {
		return nil
	}
	c.buf.WriteString(chunk)
	if c.clientErr != nil {
		return c.clientErr
	}
	if c.onChunk == nil {
		return nil
	}
	if err := c.onChunk(chunk); err != nil {
		if !errors.Is(err, ErrClientGone) {
			err = fmt.Errorf("%w: %w", ErrClientGone, err)
		}
		c.clientErr = err
		return err
	}
	return nil
}

func (c *collector) text() string { return c.buf.String() }

// ErrClientGone wraps failures of the caller's chunk handler.
var ErrClientGone = errors.New("chunk consumer failed")

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
