package harvest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/brunobiangulo/distill/store"
)

func newTestState(t *testing.T) *StateDB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "harvest_state.db")
	s, err := OpenState(path)
	if err != nil {
		t.Fatalf("opening state db: %v", err)
	}
	return s
}

func newTestStoreForHarvest(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "distill.db")
	s, err := store.New(dbPath, 4)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStateDBLoadMissingReturnsZeroValue(t *testing.T) {
	s := newTestState(t)
	p, err := s.Load(context.Background(), "openalex")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Status != StatusIdle || p.Cursor != "" {
		t.Fatalf("expected zero-value idle progress, got %+v", p)
	}
}

func TestStateDBSaveAndReload(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()
	p := Progress{Source: "crossref", Cursor: "abc123", TotalFetched: 100, TotalInserted: 95, Status: StatusRunning}
	if err := s.Save(ctx, p); err != nil {
		t.Fatalf("save: %v", err)
	}
	reloaded, err := s.Load(ctx, "crossref")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if reloaded.Cursor != "abc123" || reloaded.TotalFetched != 100 || reloaded.TotalInserted != 95 || reloaded.Status != StatusRunning {
		t.Fatalf("unexpected reloaded progress: %+v", reloaded)
	}
}

func TestProgressSpeedAndETA(t *testing.T) {
	now := time.Now()
	p := Progress{
		Target:       1000,
		TotalFetched: 500,
		StartedAt:    now.Add(-100 * time.Second),
		LastBatchAt:  now,
	}
	speed := p.Speed()
	if speed < 4.9 || speed > 5.1 {
		t.Fatalf("speed = %.2f, want ~5 rec/s", speed)
	}
	eta := p.ETA()
	if eta < 95*time.Second || eta > 105*time.Second {
		t.Fatalf("eta = %s, want ~100s", eta)
	}
	if (Progress{}).Speed() != 0 || (Progress{}).ETA() != 0 {
		t.Fatal("zero progress must report zero speed and ETA")
	}
}

func TestStateDBRoundTripsTimestampsAndError(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p := Progress{
		Source: "wikipedia:en", Status: StatusError, LastError: "upstream 503",
		Target: 500, TotalErrors: 2, StartedAt: started, LastBatchSize: 50,
	}
	if err := s.Save(ctx, p); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Load(ctx, "wikipedia:en")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Status != StatusError || got.LastError != "upstream 503" {
		t.Fatalf("error state lost: %+v", got)
	}
	if !got.StartedAt.Equal(started) {
		t.Fatalf("started_at = %s, want %s", got.StartedAt, started)
	}
	if got.Target != 500 || got.TotalErrors != 2 || got.LastBatchSize != 50 {
		t.Fatalf("counters lost: %+v", got)
	}
}

func TestStateDBAllProgress(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()
	s.Save(ctx, Progress{Source: "a", Status: StatusRunning})
	s.Save(ctx, Progress{Source: "b", Status: StatusCompleted})
	all, err := s.AllProgress(ctx)
	if err != nil {
		t.Fatalf("all progress: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(all))
	}
}

type stubAdapter struct {
	name    string
	pages   [][]store.L1Metadata
	cursors []string
	calls   int
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) FetchBatch(ctx context.Context, progress Progress) (FetchResult, error) {
	if s.calls >= len(s.pages) {
		return FetchResult{}, nil
	}
	idx := s.calls
	s.calls++
	return FetchResult{Records: s.pages[idx], NextCursor: s.cursors[idx]}, nil
}

func TestOrchestratorHarvestStopsAtTarget(t *testing.T) {
	ctx := context.Background()
	st := newTestStoreForHarvest(t)
	state := newTestState(t)

	adapter := &stubAdapter{
		name: "stub",
		pages: [][]store.L1Metadata{
			{{DocID: "d1", Title: "One"}, {DocID: "d2", Title: "Two"}},
			{{DocID: "d3", Title: "Three"}},
		},
		cursors: []string{"cursor2", ""},
	}

	orch := NewOrchestrator(state, st, 1000) // fast for tests
	progress, err := orch.Harvest(ctx, adapter, 3, true)
	if err != nil {
		t.Fatalf("harvest: %v", err)
	}
	if progress.TotalFetched != 3 {
		t.Fatalf("expected 3 fetched, got %d", progress.TotalFetched)
	}
	if progress.Status != StatusCompleted {
		t.Fatalf("expected completed status, got %s", progress.Status)
	}
}

func TestOrchestratorStopsOnEmptyNextCursor(t *testing.T) {
	ctx := context.Background()
	st := newTestStoreForHarvest(t)
	state := newTestState(t)

	adapter := &stubAdapter{
		name:    "stub2",
		pages:   [][]store.L1Metadata{{{DocID: "only", Title: "Only"}}},
		cursors: []string{""},
	}
	orch := NewOrchestrator(state, st, 1000)
	progress, err := orch.Harvest(ctx, adapter, 100, true)
	if err != nil {
		t.Fatalf("harvest: %v", err)
	}
	if progress.TotalFetched != 1 {
		t.Fatalf("expected exactly 1 fetched before end-of-feed break, got %d", progress.TotalFetched)
	}
	if progress.Status != StatusPaused {
		t.Fatalf("expected paused (target not reached), got %s", progress.Status)
	}
}

func TestScannerWalksAndFiltersByExtension(t *testing.T) {
	root := t.TempDir()
	os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hello world"), 0o644)
	os.WriteFile(filepath.Join(root, "image.png"), []byte("binary"), 0o644)
	os.Mkdir(filepath.Join(root, "node_modules"), 0o755)
	os.WriteFile(filepath.Join(root, "node_modules", "ignored.txt"), []byte("skip me"), 0o644)

	st := newTestStoreForHarvest(t)
	state := newTestState(t)
	sc := NewScanner(st, state)

	progress, err := sc.Scan(context.Background(), root, false)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if progress.TotalFetched != 1 {
		t.Fatalf("expected 1 matching file, got %d", progress.TotalFetched)
	}
	if progress.Status != StatusCompleted {
		t.Fatalf("expected completed status, got %s", progress.Status)
	}
}

func TestOpenAlexAdapterMapsTopicToCategory(t *testing.T) {
	// OpenAlexAdapter hardcodes the production host, so this test exercises
	// the JSON-mapping logic directly rather than round-tripping HTTP.
	body := []byte(`{
		"meta": {"next_cursor": "next123"},
		"results": [{
			"id": "https://openalex.org/W123",
			"display_name": "A Paper About Physics",
			"publication_year": 2020,
			"doi": "https://doi.org/10.1/xyz",
			"authorships": [{"author": {"display_name": "Jane Doe"}}],
			"topics": [{"display_name": "Physics"}],
			"primary_location": {"source": {"display_name": "Journal X"}, "landing_page_url": "https://example.com/w123"}
		}]
	}`)
	var parsed openAlexResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	rec := mapOpenAlexWork(parsed.Results[0])
	if rec.Category != "physics" {
		t.Fatalf("expected category physics, got %s", rec.Category)
	}
	if rec.Author != "Jane Doe" {
		t.Fatalf("expected author Jane Doe, got %s", rec.Author)
	}
	if rec.DOI != "10.1/xyz" {
		t.Fatalf("expected stripped DOI, got %s", rec.DOI)
	}
}
