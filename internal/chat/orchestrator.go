package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/bravurbot/internal/conversation"
	"github.com/ent0n29/bravurbot/internal/intent"
	"github.com/ent0n29/bravurbot/internal/memory"
	"github.com/ent0n29/bravurbot/internal/observability"
	"github.com/ent0n29/bravurbot/internal/policy"
	"github.com/ent0n29/bravurbot/internal/retrieval"
)

// TurnRequest is one user utterance.
type TurnRequest struct {
	Text      string
	SessionID string
	Language  string
}

// TurnResult summarizes a completed turn.
type TurnResult struct {
	Text          string
	Intent        intent.Label
	Stage         string
	Source        intent.Source
	RetrievalPath retrieval.Path
	Sources       []int64
	Failed        bool
	Duration      time.Duration
}

// OrchestratorConfig tunes the per-turn pipeline.
type OrchestratorConfig struct {
	HistoryBudget  int
	MaxInputChars  int
	PersistTimeout time.Duration
}

// Orchestrator runs one chat turn end to end.
type Orchestrator struct {
	store      memory.Store
	window     *conversation.Builder
	detector   intent.Detector
	classifier *intent.Classifier
	resolver   *intent.Resolver
	generator  *Generator
	catalog    *Catalog
	cfg        OrchestratorConfig
	metrics    *observability.Metrics
	logger     *slog.Logger
}

func NewOrchestrator(
	store memory.Store,
	detector intent.Detector,
	classifier *intent.Classifier,
	resolver *intent.Resolver,
	generator *Generator,
	cfg OrchestratorConfig,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HistoryBudget <= 0 {
		cfg.HistoryBudget = conversation.DefaultTokenBudget
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 5 * time.Second
	}
	catalog := MustDefaultCatalog()
	if generator != nil && generator.catalog != nil {
		catalog = generator.catalog
	}
	return &Orchestrator{
		store:      store,
		window:     conversation.NewBuilder(store, logger),
		detector:   detector,
		classifier: classifier,
		resolver:   resolver,
		generator:  generator,
		catalog:    catalog,
		cfg:        cfg,
		metrics:    metrics,
		logger:     logger,
	}
}

// HandleTurn stores the user message, decides the intent, streams the reply to
// onChunk and stores the reply. It returns an error for invalid input, a failed
// user-message write, or a failing onChunk; model failures are reported in-band.
func (o *Orchestrator) HandleTurn(ctx context.Context, req TurnRequest, onChunk ChunkHandler) (TurnResult, error) {
	start := time.Now()
	decision := policy.CheckInput(req.Text, o.cfg.MaxInputChars)
	if decision.Err != nil {
		return TurnResult{}, decision.Err
	}
	text := decision.Text
	sessionID := strings.TrimSpace(req.SessionID)
	persist := !memory.IsBlankSessionID(sessionID)

	out := &turnEmitter{onChunk: onChunk, start: start}
	logger := o.logger.With("session_id", sessionID)

	if persist {
		if _, err := o.store.Append(ctx, memory.Message{SessionID: sessionID, Role: memory.RoleUser, Content: text}); err != nil {
			logger.Error("store user message failed", "error", err)
			_ = out.emit(o.catalog.For(req.Language).TurnError)
			return TurnResult{Text: out.text(), Failed: true, Duration: time.Since(start)}, fmt.Errorf("store user message: %w", err)
		}
	}

	window := conversation.Window{}
	if persist {
		window = o.window.Build(ctx, sessionID, o.cfg.HistoryBudget)
	}
	prior := window.WithoutCurrent(text)

	result := TurnResult{Stage: "initial"}
	label, source := o.decide(ctx, text, req.Language, window, prior, &result, out)

	var err error
	if result.Stage != "direct" {
		result.Intent = label
		result.Source = source
		var gen Generation
		began := time.Now()
		gen, err = o.generator.Generate(ctx, GenerateRequest{
			Text:      text,
			SessionID: sessionID,
			Language:  req.Language,
			Intent:    label,
			History:   prior,
		}, out.emit)
		o.metrics.ObserveTurnStage("generate", time.Since(began))
		result.RetrievalPath = gen.RetrievalPath
		result.Sources = gen.Sources
		result.Failed = gen.Failed
	}

	result.Text = out.text()
	if err == nil && out.clientErr != nil {
		err = out.clientErr
	}
	if persist && strings.TrimSpace(result.Text) != "" {
		o.persistReply(ctx, sessionID, result.Text, logger)
	}

	result.Duration = time.Since(start)
	o.metrics.IncTurn(string(result.Intent))
	o.metrics.ObserveTurnStage("turn_total", result.Duration)
	if first, ok := out.firstChunkAfter(); ok {
		o.metrics.ObserveFirstChunkLatency(first)
	}
	logger.Info("turn complete",
		"intent", result.Intent,
		"stage", result.Stage,
		"source", result.Source,
		"retrieval_path", result.RetrievalPath,
		"failed", result.Failed,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, err
}

// decide runs the gate, Stage 1 and, when needed, Stage 2. A direct Stage 2
// answer is emitted here and result.Stage is set to "direct".
func (o *Orchestrator) decide(
	ctx context.Context,
	text, language string,
	window, prior conversation.Window,
	result *TurnResult,
	out *turnEmitter,
) (intent.Label, intent.Source) {
	if _, ruled := intent.PreFilter(text); !ruled &&
		len(prior) == 0 &&
		o.detector.IsVague(text) &&
		!o.detector.IsMemoryPhrase(text) {
		result.Stage = "gate"
		o.metrics.IncIntentDecision("gate", string(intent.SourceRule), string(intent.Unknown))
		return intent.Unknown, intent.SourceRule
	}

	began := time.Now()
	initial := o.classifier.Classify(ctx, text, language)
	o.metrics.ObserveTurnStage("classify", time.Since(began))
	o.metrics.IncIntentDecision("initial", string(initial.Source), string(initial.Label))

	if !o.resolver.ShouldResolve(initial.Label, text) {
		return initial.Label, initial.Source
	}

	result.Stage = "refined"
	began = time.Now()
	res := o.resolver.Resolve(ctx, text, window, language)
	o.metrics.ObserveTurnStage("resolve", time.Since(began))

	if res.Answered() {
		result.Stage = "direct"
		result.Intent = intent.PreviousQuery
		result.Source = res.Source
		o.metrics.IncIntentDecision("refined", string(res.Source), "direct")
		_ = out.emit(res.Direct)
		return intent.PreviousQuery, res.Source
	}
	o.metrics.IncIntentDecision("refined", string(res.Source), string(res.Label))
	return res.Label, res.Source
}

func (o *Orchestrator) persistReply(ctx context.Context, sessionID, text string, logger *slog.Logger) {
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.PersistTimeout)
	defer cancel()
	if _, err := o.store.Append(storeCtx, memory.Message{SessionID: sessionID, Role: memory.RoleBot, Content: text}); err != nil {
		logger.Error("store bot message failed", "error", err)
	}
}

// turnEmitter forwards chunks to the caller, keeping the full text and the
// time of the first chunk.
type turnEmitter struct {
	mu        sync.Mutex
	onChunk   ChunkHandler
	start     time.Time
	first     time.Time
	buf       strings.Builder
	clientErr error
}

func (e *turnEmitter) emit(chunk string) error {
	if chunk == "" {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.first.IsZero() {
		e.first = time.Now()
	}
	e.buf.WriteString(chunk)
	if e.clientErr != nil {
		return e.clientErr
	}
	if e.onChunk == nil {
		return nil
	}
	if err := e.onChunk(chunk); err != nil {
		if !errors.Is(err, ErrClientGone) {
			err = fmt.Errorf("%w: %w", ErrClientGone, err)
		}
		e.clientErr = err
		return err
	}
	return nil
}

func (e *turnEmitter) text() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buf.String()
}

func (e *turnEmitter) firstChunkAfter() (time.Duration, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.first.IsZero() {
		return 0, false
	}
	return e.first.Sub(e.start), true
}
