package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockModel provides deterministic local replies when no provider key is configured.
type MockModel struct{}

func NewMockModel() *MockModel { return &MockModel{} }

func (m *MockModel) Complete(ctx context.Context, req Request, onDelta DeltaHandler) (Response, error) {
	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	default:
	}

	text := buildMockReply(req)
	if onDelta != nil && text != "" {
		if err := onDelta(text); err != nil {
			return Response{}, err
		}
	}
	return Response{Text: text, Model: req.Model}, nil
}

func buildMockReply(req Request) string {
	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			last = strings.TrimSpace(req.Messages[i].Content)
			break
		}
	}
	// Classification prompts get a label so the pipeline stays usable offline.
	if req.MaxTokens > 0 && req.MaxTokens <= 30 {
		return "Company Info"
	}
	if last == "" {
		return "I am listening."
	}
	return fmt.Sprintf("I heard you: %s", last)
}

// MockEmbedder returns a stable low-dimensional vector derived from the text bytes.
type MockEmbedder struct {
	Dim int
}

func (e MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dim := e.Dim
	if dim <= 0 {
		dim = 8
	}
	vec := make([]float32, dim)
	for i, b := range []byte(strings.ToLower(text)) {
		vec[i%dim] += float32(b) / 255
	}
	return vec, nil
}

// ScriptedModel replays canned replies in order and records every request.
// Each reply is streamed as whitespace-separated chunks when req.Stream is set.
type ScriptedModel struct {
	mu       sync.Mutex
	replies  []ScriptedReply
	requests []Request
}

// ScriptedReply is one canned completion outcome.
type ScriptedReply struct {
	Text string
	Err  error
}

func NewScriptedModel(replies ...ScriptedReply) *ScriptedModel {
	return &ScriptedModel{replies: replies}
}

func (m *ScriptedModel) Complete(ctx context.Context, req Request, onDelta DeltaHandler) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	m.mu.Lock()
	m.requests = append(m.requests, req)
	var reply ScriptedReply
	if len(m.replies) > 0 {
		reply = m.replies[0]
		m.replies = m.replies[1:]
	} else {
		reply = ScriptedReply{Err: fmt.Errorf("scripted model exhausted")}
	}
	m.mu.Unlock()

	if reply.Err != nil {
		return Response{}, reply.Err
	}
	if onDelta != nil && reply.Text != "" {
		chunks := []string{reply.Text}
		if req.Stream {
			chunks = strings.SplitAfter(reply.Text, " ")
		}
		for _, c := range chunks {
			if err := onDelta(c); err != nil {
				return Response{}, err
			}
		}
	}
	return Response{Text: reply.Text, Model: req.Model}, nil
}

// Calls returns the number of completions requested so far.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of the recorded requests.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}
