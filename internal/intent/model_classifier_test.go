package intent

import (
	"context"
	"testing"

	"github.com/apexion-ai/orchestrator-kernel/internal/provider"
)

// fakeProvider emits a single canned text response, used to drive
// ModelClassifier without a real network call.
type fakeProvider struct {
	text string
	err  error
}

func (f *fakeProvider) Chat(ctx context.Context, req *provider.ChatRequest) (<-chan provider.Event, error) {
	ch := make(chan provider.Event, 2)
	if f.err != nil {
		ch <- provider.Event{Type: provider.EventError, Error: f.err}
		close(ch)
		return ch, nil
	}
	ch <- provider.Event{Type: provider.EventTextDelta, TextDelta: f.text}
	ch <- provider.Event{Type: provider.EventDone, Usage: &provider.Usage{}}
	close(ch)
	return ch, nil
}

func (f *fakeProvider) Name() string         { return "fake" }
func (f *fakeProvider) Models() []string     { return []string{"fake-model"} }
func (f *fakeProvider) DefaultModel() string { return "fake-model" }
func (f *fakeProvider) ContextWindow() int   { return 128000 }

func TestModelClassifierParsesHighConfidenceResult(t *testing.T) {
	p := &fakeProvider{text: `{"intent": "security", "confidence": 0.9, "reasoning": "mentions CVE"}`}
	c := NewModelClassifier(p, "fake-model", 0)
	got := c.Classify(context.Background(), "is there a CVE in this dependency?")
	if got.Kind != Security || got.Confidence != 0.9 {
		t.Fatalf("got %+v", got)
	}
}

func TestModelClassifierFallsBackOnLowConfidence(t *testing.T) {
	p := &fakeProvider{text: `{"intent": "chat", "confidence": 0.2, "reasoning": "unsure"}`}
	c := NewModelClassifier(p, "fake-model", 0.55)
	got := c.Classify(context.Background(), "refactor this function to be cleaner")
	if got.Kind != Refactor {
		t.Fatalf("expected fallback to heuristic refactor classification, got %+v", got)
	}
}

func TestModelClassifierFallsBackOnProviderError(t *testing.T) {
	p := &fakeProvider{err: context.DeadlineExceeded}
	c := NewModelClassifier(p, "fake-model", 0)
	got := c.Classify(context.Background(), "write a unit test for this")
	if got.Kind != Test {
		t.Fatalf("expected fallback to heuristic test classification, got %+v", got)
	}
}

func TestModelClassifierFallsBackOnUnparseableResponse(t *testing.T) {
	p := &fakeProvider{text: "I'm not going to produce JSON today."}
	c := NewModelClassifier(p, "fake-model", 0)
	got := c.Classify(context.Background(), "explain how the scheduler works")
	if got.Kind != Explain {
		t.Fatalf("expected fallback to heuristic explain classification, got %+v", got)
	}
}
