package llm

import (
	"context"
	"testing"
)

// fakeProvider is a minimal Provider stand-in for exercising Engine without
// any network calls.
type fakeProvider struct {
	dim      int
	failOn   map[string]bool // texts that should make the whole batch fail
	embedErr error
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	for _, t := range texts {
		if f.failOn[t] {
			return nil, errEmbeddingUnavailable
		}
	}
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = make([]float32, f.dim)
	}
	return vecs, nil
}

func newTestEngine(mode EngineMode, p Provider, dim int) *Engine {
	return &Engine{provider: p, mode: mode, dim: dim}
}

func TestEngineEmbedReturnsMatrixOnSuccess(t *testing.T) {
	p := &fakeProvider{dim: 8, failOn: map[string]bool{}}
	e := newTestEngine(ModeRemote, p, 8)

	vecs := e.Embed(context.Background(), []string{"a", "b", "c"})
	if len(vecs) != 3 {
		t.Fatalf("len(vecs) = %d, want 3", len(vecs))
	}
	for _, v := range vecs {
		if len(v) != 8 {
			t.Fatalf("vector dim = %d, want 8", len(v))
		}
	}
}

func TestEngineEmbedInvalidatesWholeBatchOnSingleFailure(t *testing.T) {
	p := &fakeProvider{dim: 8, failOn: map[string]bool{"bad": true}}
	e := newTestEngine(ModeRemote, p, 8)

	vecs := e.Embed(context.Background(), []string{"good", "bad", "good2"})
	if vecs != nil {
		t.Fatalf("expected nil matrix on partial failure, got %d vectors", len(vecs))
	}
}

func TestEngineEmbedReturnsNilInModeNone(t *testing.T) {
	e := &Engine{mode: ModeNone}
	vecs := e.Embed(context.Background(), []string{"x"})
	if vecs != nil {
		t.Fatalf("expected nil in ModeNone, got %d vectors", len(vecs))
	}
	if e.Err() == nil {
		t.Fatalf("expected non-nil Err() in ModeNone")
	}
}

func TestEngineDimFixedAtConstruction(t *testing.T) {
	p := &fakeProvider{dim: 384}
	e := newTestEngine(ModeLocal, p, 384)
	if e.Dim() != 384 {
		t.Fatalf("Dim() = %d, want 384", e.Dim())
	}
	if e.Mode() != ModeLocal {
		t.Fatalf("Mode() = %q, want local", e.Mode())
	}
}

func TestEngineEmbedMismatchedVectorDimInvalidatesBatch(t *testing.T) {
	p := &fakeProvider{dim: 4}
	e := newTestEngine(ModeRemote, p, 8) // Engine expects 8, provider returns 4
	vecs := e.Embed(context.Background(), []string{"a"})
	if vecs != nil {
		t.Fatalf("expected nil on dimension mismatch, got %d vectors", len(vecs))
	}
}

func TestNewEnginePrefersLocalOverRemote(t *testing.T) {
	// Neither candidate is reachable in a unit test (no live server), so
	// NewEngine should fall through to ModeNone rather than hang or panic.
	e := NewEngine(context.Background(),
		Config{Provider: "ollama", BaseURL: "http://127.0.0.1:1", Model: "m"},
		Config{Provider: "openai", BaseURL: "http://127.0.0.1:1", Model: "m"},
	)
	if e.Mode() != ModeNone {
		t.Fatalf("Mode() = %q, want none (no reachable backend)", e.Mode())
	}
	if e.Dim() != 0 {
		t.Fatalf("Dim() = %d, want 0 in ModeNone", e.Dim())
	}
}

func TestNewEngineSkipsEmptyProviderCandidates(t *testing.T) {
	e := NewEngine(context.Background(), Config{Provider: ""})
	if e.Mode() != ModeNone {
		t.Fatalf("Mode() = %q, want none", e.Mode())
	}
}
