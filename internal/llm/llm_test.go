package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSplitModel(t *testing.T) {
	tests := []struct {
		in           string
		wantProvider string
		wantModel    string
	}{
		{in: "groq:llama-3.3-70b-versatile", wantProvider: "groq", wantModel: "llama-3.3-70b-versatile"},
		{in: "OpenAI:gpt-4o-mini", wantProvider: "openai", wantModel: "gpt-4o-mini"},
		{in: "gpt-4o-mini", wantProvider: "openai", wantModel: "gpt-4o-mini"},
		{in: ":bare", wantProvider: "openai", wantModel: ":bare"},
	}
	for _, tt := range tests {
		p, m := SplitModel(tt.in, "openai")
		if p != tt.wantProvider || m != tt.wantModel {
			t.Fatalf("SplitModel(%q) = (%q, %q), want (%q, %q)", tt.in, p, m, tt.wantProvider, tt.wantModel)
		}
	}
}

func TestRouterDispatchesByPrefix(t *testing.T) {
	groq := NewScriptedModel(ScriptedReply{Text: "from groq"})
	oai := NewScriptedModel(ScriptedReply{Text: "from openai"})
	r := NewRouter("openai")
	r.Register("groq", groq)
	r.Register("openai", oai)

	resp, err := r.Complete(context.Background(), Request{Model: "groq:llama"}, nil)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Text != "from groq" {
		t.Fatalf("resp.Text = %q, want from groq", resp.Text)
	}
	if got := groq.Requests()[0].Model; got != "llama" {
		t.Fatalf("forwarded model = %q, want llama", got)
	}

	resp, err = r.Complete(context.Background(), Request{Model: "gpt-4o-mini"}, nil)
	if err != nil || resp.Text != "from openai" {
		t.Fatalf("Complete(default) = %q, %v", resp.Text, err)
	}
}

func TestRouterUnknownProvider(t *testing.T) {
	r := NewRouter("openai")
	_, err := r.Complete(context.Background(), Request{Model: "nope:model"}, nil)
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("error = %v, want ErrUnknownProvider", err)
	}
}

func TestFallbackModelUsesFallback(t *testing.T) {
	fb := NewScriptedModel(ScriptedReply{Text: "fallback"})
	m := NewFallbackModel(NewScriptedModel(ScriptedReply{Err: errors.New("boom")}), fb, "openai:gpt-4o-mini", nil)

	resp, err := m.Complete(context.Background(), Request{Model: "groq:llama"}, nil)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Text != "fallback" {
		t.Fatalf("resp.Text = %q, want fallback", resp.Text)
	}
	if got := fb.Requests()[0].Model; got != "openai:gpt-4o-mini" {
		t.Fatalf("fallback model = %q", got)
	}
}

func TestFallbackModelSkipsFallbackOnCanceledContext(t *testing.T) {
	fb := NewScriptedModel(ScriptedReply{Text: "fallback"})
	m := NewFallbackModel(NewScriptedModel(ScriptedReply{Err: context.Canceled}), fb, "", nil)

	_, err := m.Complete(context.Background(), Request{}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if fb.Calls() != 0 {
		t.Fatalf("fallback should not be called, calls = %d", fb.Calls())
	}
}

func TestFallbackModelSkipsFallbackAfterDelta(t *testing.T) {
	fb := NewScriptedModel(ScriptedReply{Text: "fallback"})
	m := NewFallbackModel(partialModel{}, fb, "", nil)

	var got strings.Builder
	_, err := m.Complete(context.Background(), Request{Stream: true}, func(d string) error {
		got.WriteString(d)
		return nil
	})
	if err == nil {
		t.Fatalf("expected primary error after partial stream")
	}
	if fb.Calls() != 0 {
		t.Fatalf("fallback should not be called after a delta, calls = %d", fb.Calls())
	}
	if got.String() != "partial " {
		t.Fatalf("streamed = %q", got.String())
	}
}

func TestScriptedModelStreamsChunks(t *testing.T) {
	m := NewScriptedModel(ScriptedReply{Text: "one two three"})
	var chunks []string
	resp, err := m.Complete(context.Background(), Request{Stream: true}, func(d string) error {
		chunks = append(chunks, d)
		return nil
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if len(chunks) != 3 || strings.Join(chunks, "") != resp.Text {
		t.Fatalf("chunks = %q, resp = %q", chunks, resp.Text)
	}
}

func TestMockModelEchoesLastUserMessage(t *testing.T) {
	resp, err := NewMockModel().Complete(context.Background(), Request{
		Messages: []Message{
			{Role: RoleSystem, Content: "sys"},
			{Role: RoleUser, Content: "hello"},
		},
		MaxTokens: 500,
	}, nil)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Text != "I heard you: hello" {
		t.Fatalf("resp.Text = %q", resp.Text)
	}
}

func TestMockEmbedderIsDeterministic(t *testing.T) {
	e := MockEmbedder{Dim: 4}
	a, err := e.Embed(context.Background(), "Bravur")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	b, _ := e.Embed(context.Background(), "bravur")
	if len(a) != 4 {
		t.Fatalf("len = %d, want 4", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding not deterministic at %d: %v vs %v", i, a, b)
		}
	}
}

type partialModel struct{}

func (partialModel) Complete(_ context.Context, _ Request, onDelta DeltaHandler) (Response, error) {
	if onDelta != nil {
		_ = onDelta("partial ")
	}
	return Response{}, errors.New("stream broke")
}
