package rag

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brunobiangulo/distill/retrieval"
	"github.com/brunobiangulo/distill/store"
)

func newTestFacade(t *testing.T) *Facade {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.New(dbPath, 4)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	docs := []store.L1Metadata{
		{DocID: "d1", Title: "Superconductivity Basics", Author: "A. Researcher", Category: "physics", Reliability: 0.9, PeerReviewed: true},
		{DocID: "d2", Title: "Superconductivity Applications", Author: "B. Researcher", Category: "physics", Reliability: 0.6, PeerReviewed: true},
	}
	if _, err := s.DistillBatchMetadata(context.Background(), docs); err != nil {
		t.Fatalf("batch: %v", err)
	}
	eng := retrieval.New(s, nil, retrieval.DefaultRerankConfig())
	return New(eng, s)
}

func TestBuildContextPackagesSources(t *testing.T) {
	f := newTestFacade(t)
	ctxResult, err := f.BuildContext(context.Background(), "Superconductivity", 2000, 5)
	if err != nil {
		t.Fatalf("build context: %v", err)
	}
	if !ctxResult.HasContext {
		t.Fatal("expected context to be found")
	}
	if len(ctxResult.Sources) == 0 {
		t.Fatal("expected at least one source")
	}
	if ctxResult.Sources[0].Badge != BadgeGold {
		t.Fatalf("expected gold badge for peer-reviewed 0.9 reliability source, got %s", ctxResult.Sources[0].Badge)
	}
}

func TestBuildContextNoMatchesHasContextFalse(t *testing.T) {
	f := newTestFacade(t)
	ctxResult, err := f.BuildContext(context.Background(), "zzz_nonexistent_query_zzz", 2000, 5)
	if err != nil {
		t.Fatalf("build context: %v", err)
	}
	if ctxResult.HasContext {
		t.Fatalf("expected no context for an unmatched query, got sources=%+v", ctxResult.Sources)
	}
}

func TestBuildContextRespectsTokenBudget(t *testing.T) {
	f := newTestFacade(t)
	generous, err := f.BuildContext(context.Background(), "Superconductivity", 2000, 5)
	if err != nil {
		t.Fatalf("build context: %v", err)
	}
	tiny, err := f.BuildContext(context.Background(), "Superconductivity", 1, 5)
	if err != nil {
		t.Fatalf("build context: %v", err)
	}
	if len(tiny.Sources) >= len(generous.Sources) && len(generous.Sources) > 1 {
		t.Fatalf("expected a 1-token budget to admit fewer sources than a 2000-token budget: tiny=%d generous=%d", len(tiny.Sources), len(generous.Sources))
	}
}

func TestBuildContextPacksDocumentBodies(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.New(dbPath, 4)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	body := strings.Repeat("Widget dynamics under load are governed by simple rules. ", 25) // ~1400 chars
	for i := 0; i < 4; i++ {
		meta := store.L1Metadata{
			DocID:    fmt.Sprintf("w%d", i),
			Title:    fmt.Sprintf("Widget Dynamics Vol %d", i),
			Author:   "C. Writer",
			Category: "physics",
		}
		if _, err := s.Distill(ctx, meta.DocID, body, meta, nil, true); err != nil {
			t.Fatalf("Distill: %v", err)
		}
	}

	eng := retrieval.New(s, nil, retrieval.DefaultRerankConfig())
	f := New(eng, s)

	// A generous budget packs every body; each block carries real document
	// content, not just the title line.
	full, err := f.BuildContext(ctx, "widget dynamics", 2000, 4)
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if !full.HasContext || len(full.Sources) != 4 {
		t.Fatalf("expected all 4 sources under a 2000-token budget, got %d", len(full.Sources))
	}
	if !strings.Contains(full.ContextText, "governed by simple rules") {
		t.Fatal("context blocks do not contain the document body")
	}

	// A tight budget admits only the blocks that fit: each ~1400-char body
	// estimates to ~350 tokens, so a 800-token budget cuts off after two.
	tight, err := f.BuildContext(ctx, "widget dynamics", 800, 4)
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if len(tight.Sources) == 0 || len(tight.Sources) >= 4 {
		t.Fatalf("expected the budget cutoff to drop trailing sources, got %d of 4", len(tight.Sources))
	}
	if got := strings.Count(tight.ContextText, "[Fonte:"); got != len(tight.Sources) {
		t.Fatalf("blocks (%d) and sources (%d) out of sync", got, len(tight.Sources))
	}
}

func TestBadgeTiers(t *testing.T) {
	cases := []struct {
		peerReviewed bool
		reliability  float64
		want         Badge
	}{
		{true, 0.9, BadgeGold},
		{true, 0.6, BadgeSilver},
		{false, 0.4, BadgeBronze},
		{false, 0.1, BadgeUnverified},
	}
	for _, c := range cases {
		if got := badgeFor(c.peerReviewed, c.reliability); got != c.want {
			t.Errorf("badgeFor(%v, %f) = %s, want %s", c.peerReviewed, c.reliability, got, c.want)
		}
	}
}
