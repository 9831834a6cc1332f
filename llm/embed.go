package llm

import (
	"context"
	"fmt"
	"strings"
)

// EngineMode reports which tier of the embedding hierarchy an Engine
// resolved to at construction time: a locally-running model server, a
// remote HTTP endpoint, or none (embeddings unavailable).
type EngineMode string

const (
	ModeLocal  EngineMode = "local"
	ModeRemote EngineMode = "remote"
	ModeNone   EngineMode = "none"
)

// localProviders are the Provider kinds that run against a loopback model
// server rather than a hosted API. There is no in-process embedding model
// anywhere in this codebase's dependency set, so "local" means the nearest
// available equivalent: a model server reachable on localhost.
var localProviders = map[string]bool{
	"ollama":   true,
	"lmstudio": true,
}

// Engine is the Embedding Engine: embed(texts) -> matrix of f32 or nil.
// Mode is auto-selected at construction (local > remote > none) and Dim is
// fixed at that point, both read-only afterward.
type Engine struct {
	provider Provider
	mode     EngineMode
	dim      int
}

// NewEngine resolves an Engine from one or more candidate configs, tried in
// order. The first config whose provider is reachable and returns a
// well-formed embedding for a probe text wins; its Provider kind decides
// whether Mode is local or remote. If every candidate fails, NewEngine
// returns an Engine in ModeNone whose Embed always returns nil.
func NewEngine(ctx context.Context, candidates ...Config) *Engine {
	for _, cfg := range candidates {
		if cfg.Provider == "" {
			continue
		}
		p, err := NewProvider(cfg)
		if err != nil {
			continue
		}
		dim, ok := probeDimension(ctx, p)
		if !ok {
			continue
		}
		mode := ModeRemote
		if localProviders[strings.ToLower(cfg.Provider)] {
			mode = ModeLocal
		}
		return &Engine{provider: p, mode: mode, dim: dim}
	}
	return &Engine{mode: ModeNone}
}

// probeDimension issues a one-text embed call to learn the vector width a
// provider produces, confirming it actually works before it's selected.
func probeDimension(ctx context.Context, p Provider) (int, bool) {
	vecs, err := p.Embed(ctx, []string{"dimension probe"})
	if err != nil || len(vecs) != 1 || len(vecs[0]) == 0 {
		return 0, false
	}
	return len(vecs[0]), true
}

// Mode reports which tier this Engine resolved to.
func (e *Engine) Mode() EngineMode { return e.mode }

// Dim reports the embedding vector width fixed at construction. Zero when
// Mode is ModeNone.
func (e *Engine) Dim() int { return e.dim }

// Embed returns one embedding vector per input text, or nil if embeddings
// are unavailable (ModeNone) or if any single text in the batch fails to
// embed — a partial batch is never returned, matching the remote-mode
// all-or-nothing contract.
func (e *Engine) Embed(ctx context.Context, texts []string) [][]float32 {
	if e.mode == ModeNone || len(texts) == 0 {
		return nil
	}
	vecs, err := e.provider.Embed(ctx, texts)
	if err != nil {
		return nil
	}
	if len(vecs) != len(texts) {
		return nil
	}
	for _, v := range vecs {
		if len(v) == 0 || len(v) != e.dim {
			return nil
		}
	}
	return vecs
}

// errEmbeddingUnavailable documents why callers get nil instead of an error
// from Embed: the batch contract models failure as an absent matrix, not a
// Go error value, so Engine.Embed matches that shape instead of returning
// (matrix, error).
var errEmbeddingUnavailable = fmt.Errorf("llm: no embedding backend available")

// Err returns errEmbeddingUnavailable when Mode is ModeNone, for callers
// that want an explicit error rather than inspecting Mode themselves.
func (e *Engine) Err() error {
	if e.mode == ModeNone {
		return errEmbeddingUnavailable
	}
	return nil
}
