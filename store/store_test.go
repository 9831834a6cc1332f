//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath, 4) // dim=4 for test vectors
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNew(t *testing.T) {
	s := newTestStore(t)
	if s.EmbeddingDim() != 4 {
		t.Fatalf("expected embedding dim 4, got %d", s.EmbeddingDim())
	}
	if s.DB() == nil {
		t.Fatal("expected non-nil *sql.DB")
	}
}

func TestNewCreatesParentDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sub", "dir")
	dbPath := filepath.Join(dir, "test.db")
	s, err := New(dbPath, 4)
	if err != nil {
		t.Fatalf("creating store in nested dir: %v", err)
	}
	s.Close()
}

func TestDistillMetadataOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	meta := L1Metadata{
		DocID: "abc123", Title: "On Widgets", Author: "Jane Roe", Year: 2020,
		Language: "en", Category: "engineering", Origin: "local_mac", Reliability: 0.8,
	}
	if err := s.DistillMetadataOnly(ctx, meta); err != nil {
		t.Fatalf("DistillMetadataOnly: %v", err)
	}
	got, err := s.GetL1(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetL1: %v", err)
	}
	if got.Title != "On Widgets" || got.Year != 2020 {
		t.Fatalf("unexpected L1 row: %+v", got)
	}
	if _, _, ok, err := s.GetEmbedding(ctx, "abc123"); err != nil || ok {
		t.Fatalf("expected no embedding, got ok=%v err=%v", ok, err)
	}
}

func TestDistillFullPath(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	meta := L1Metadata{DocID: "doc1", Title: "Widget Theory", Author: "A. Author", Category: "physics", Origin: "local_mac"}
	text := "Widget theory explains how widgets interact. This is a great and effective model of widget behavior. " +
		"Contact widgets@example.com for more information about widget theory."
	embedding := make([]float32, 4)
	embedding[0] = 1.0
	embedding[1] = 0.5

	doc, err := s.Distill(ctx, "doc1", text, meta, embedding, true)
	if err != nil {
		t.Fatalf("Distill: %v", err)
	}
	if doc.L2 == nil {
		t.Fatal("expected L2 pointer to be set")
	}
	if doc.L3.Abstract == "" {
		t.Fatal("expected non-empty L3 abstract")
	}
	if doc.L5 == nil {
		t.Fatal("expected L5 fulltext to be written")
	}

	got, ok, err := s.GetFullText(ctx, "doc1")
	if err != nil {
		t.Fatalf("GetFullText: %v", err)
	}
	if !ok || got != text {
		t.Fatalf("fulltext round-trip mismatch: ok=%v got=%q", ok, got)
	}

	packed, norm, ok, err := s.GetEmbedding(ctx, "doc1")
	if err != nil || !ok {
		t.Fatalf("GetEmbedding: ok=%v err=%v", ok, err)
	}
	if len(packed) != 4 || norm == 0 {
		t.Fatalf("unexpected embedding round-trip: packed=%v norm=%v", packed, norm)
	}
}

func TestDistillRecordsStandardRefsAsEntities(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	meta := L1Metadata{DocID: "std1", Title: "Safety Handbook", Category: "engineering"}
	text := "All pressure vessels are built to ISO 9001:2015 and inspected per IEC 61508 guidance."

	doc, err := s.Distill(ctx, "std1", text, meta, nil, false)
	if err != nil {
		t.Fatalf("Distill: %v", err)
	}
	var refs []string
	for _, e := range doc.L4.Entities {
		if e.Type == "STANDARD" {
			refs = append(refs, e.Text)
		}
	}
	if len(refs) != 2 || refs[0] != "ISO 9001:2015" || refs[1] != "IEC 61508" {
		t.Fatalf("expected both standards as STANDARD entities, got %v", refs)
	}
}

func TestDistillBatchMetadataIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	batch := []L1Metadata{
		{DocID: "a", Title: "A", Category: "math", Origin: "openalex"},
		{DocID: "b", Title: "B", Category: "math", Origin: "openalex"},
	}
	n, err := s.DistillBatchMetadata(ctx, batch)
	if err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 inserted, got %d", n)
	}
	n, err = s.DistillBatchMetadata(ctx, batch)
	if err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 newly inserted on re-insert, got %d", n)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.L1Count != 2 {
		t.Fatalf("expected 2 L1 rows total, got %d", stats.L1Count)
	}
}

func TestSearchExactTitleRanksFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docs := []L1Metadata{
		{DocID: "x1", Title: "Quantum Entanglement Basics", Author: "N. Bohr", Category: "physics", Origin: "local_mac"},
		{DocID: "x2", Title: "Introduction to Gardening", Author: "A. Smith", Category: "lifestyle", Origin: "local_mac"},
	}
	if _, err := s.DistillBatchMetadata(ctx, docs); err != nil {
		t.Fatalf("batch: %v", err)
	}

	rows, err := s.Search(ctx, SearchParams{Query: "Quantum Entanglement Basics", Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(rows) == 0 || rows[0].DocID != "x1" {
		t.Fatalf("expected x1 to rank first, got %+v", rows)
	}
}

func TestSearchFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docs := []L1Metadata{
		{DocID: "y1", Title: "Widget Manual", Category: "engineering", Language: "en", Origin: "local_mac", Year: 2010},
		{DocID: "y2", Title: "Widget Manual Deluxe", Category: "lifestyle", Language: "en", Origin: "local_mac", Year: 2020},
	}
	if _, err := s.DistillBatchMetadata(ctx, docs); err != nil {
		t.Fatalf("batch: %v", err)
	}
	rows, err := s.Search(ctx, SearchParams{Query: "widget", Category: "engineering", Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range rows {
		if r.DocID != "y1" {
			t.Fatalf("expected only y1 with category filter, got %+v", rows)
		}
	}
}

func TestSearchInvalidQueryReturnsEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rows, err := s.Search(ctx, SearchParams{Query: "\"unterminated", Limit: 10})
	if err != nil {
		t.Fatalf("expected no error for invalid query, got %v", err)
	}
	_ = rows // may be empty or not, depending on sanitization; must not error
}

func TestVectorSearchFindsExactMatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	meta := L1Metadata{DocID: "v1", Title: "Vector Doc", Category: "physics", Origin: "local_mac"}
	v := []float32{1, 0, -1, 0.5}
	if _, err := s.Distill(ctx, "v1", "some text about vectors", meta, v, false); err != nil {
		t.Fatalf("Distill: %v", err)
	}
	results, err := s.VectorSearch(ctx, v, 5)
	if err != nil {
		t.Fatalf("VectorSearch: %v", err)
	}
	if len(results) == 0 || results[0].DocID != "v1" {
		t.Fatalf("expected v1 as top match, got %+v", results)
	}
	if results[0].Score < 0.99 {
		t.Fatalf("expected near-1.0 cosine for identical vector, got %f", results[0].Score)
	}
}

func TestGetFullTextMissing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	meta := L1Metadata{DocID: "nf1", Title: "No Fulltext"}
	if err := s.DistillMetadataOnly(ctx, meta); err != nil {
		t.Fatalf("DistillMetadataOnly: %v", err)
	}
	_, ok, err := s.GetFullText(ctx, "nf1")
	if err != nil {
		t.Fatalf("GetFullText: %v", err)
	}
	if ok {
		t.Fatal("expected no fulltext for metadata-only document")
	}
}
