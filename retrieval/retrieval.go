// Package retrieval implements the search engine: lexical (BM25-over-FTS5)
// and vector (cosine-over-quantized-int8) retrieval, merged by a fixed
// linear-blend hybrid rerank when embeddings are present, with
// facets, highlights, and title suggestions.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/brunobiangulo/distill/llm"
	"github.com/brunobiangulo/distill/store"
)

// RerankConfig holds the hybrid search's fixed linear-blend weights:
// similarity, reliability, domain match, source preference.
type RerankConfig struct {
	WeightSimilarity  float64
	WeightReliability float64
	WeightDomain      float64
	WeightSource      float64
}

// DefaultRerankConfig returns the standard blend: 0.50 similarity, 0.25
// reliability, 0.15 domain match, 0.10 source bonus.
func DefaultRerankConfig() RerankConfig {
	return RerankConfig{WeightSimilarity: 0.50, WeightReliability: 0.25, WeightDomain: 0.15, WeightSource: 0.10}
}

// SearchQuery bundles the text, filters, paging, sort, and facet/highlight
// options a caller can request.
type SearchQuery struct {
	Text             string
	Categories       []string
	Language         string
	YearFrom         int
	YearTo           int
	Origin           string
	Offset           int
	Limit            int
	Sort             string // "relevance" | "date" | "title"
	Highlight        bool
	MinScore         float64
	FacetFields      []string
	ClassifiedDomain string // the query's own top classified domain, for domain_match
}

// SearchResult is one ranked hit, with an optional snippet/highlights.
type SearchResult struct {
	DocID      string
	Meta       store.L1Metadata
	Score      float64
	Snippet    string
	Highlights []string
	FromVector bool
	FromFTS    bool
}

// SearchResponse is the Search Engine's uniform return contract.
type SearchResponse struct {
	Query       string
	TotalHits   int
	Results     []SearchResult
	TookMs      int64
	Facets      map[string]map[string]int
	Suggestions []string
	DidYouMean  string
}

// Engine is the Search Engine: it owns a Distillation Store handle and an
// optional embedding engine. When the embedder is nil or in ModeNone,
// Search degrades to pure lexical BM25 ordering; otherwise it runs the
// hybrid rerank path.
type Engine struct {
	store    *store.Store
	embedder *llm.Engine
	cfg      RerankConfig
}

// New constructs a Search Engine. embedder may be nil to force
// lexical-only mode.
func New(s *store.Store, embedder *llm.Engine, cfg RerankConfig) *Engine {
	return &Engine{store: s, embedder: embedder, cfg: cfg}
}

// Search builds the parsed lexical query, applies filters, executes
// lexical (and, when available, vector) retrieval, unions and reranks,
// builds snippets and facets, and optionally computes suggestions.
func (e *Engine) Search(ctx context.Context, q SearchQuery) (*SearchResponse, error) {
	start := time.Now()
	if q.Limit <= 0 {
		q.Limit = 20
	}

	params := store.SearchParams{
		Query:    q.Text,
		Language: q.Language,
		Origin:   q.Origin,
		YearFrom: q.YearFrom,
		YearTo:   q.YearTo,
		Limit:    q.Offset + q.Limit,
	}
	if len(q.Categories) > 0 {
		params.Category = q.Categories[0]
	}

	ftsRows, err := e.store.Search(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	lexicalTotal, err := e.store.SearchCount(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("lexical count: %w", err)
	}

	hybrid := e.embedder != nil && e.embedder.Mode() != llm.ModeNone && strings.TrimSpace(q.Text) != ""
	var vecRows []store.VectorResult
	if hybrid {
		vecs := e.embedder.Embed(ctx, []string{q.Text})
		if len(vecs) == 1 {
			vecRows, err = e.store.VectorSearch(ctx, vecs[0], q.Offset+q.Limit)
			if err != nil {
				slog.Warn("retrieval: vector search failed, continuing lexical-only", "error", err)
				vecRows = nil
			}
		}
	}

	merged := mergeResults(ftsRows, vecRows)
	if hybrid {
		rerank(merged, q.ClassifiedDomain, e.cfg)
	} else {
		// Lexical-only: native BM25 ordering, returned as a non-negative
		// magnitude regardless of the backend's sign convention (already
		// normalized by store.Search).
		for i := range merged {
			merged[i].Score = 1.0 / (1.0 + merged[i].bm25)
		}
		sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	}

	applySort(merged, q.Sort)

	if q.MinScore > 0 {
		filtered := merged[:0]
		for _, m := range merged {
			if m.Score >= q.MinScore {
				filtered = append(filtered, m)
			}
		}
		merged = filtered
	}

	// Total hits count the full match set, not the fetched page: every
	// lexical match (SearchCount is unbounded by the fetch limit) plus any
	// vector-only hits the union added. Facet counts aggregate over the
	// same lexical match set, so their per-field sums never exceed this.
	vectorOnly := 0
	for _, m := range merged {
		if !m.fromFTS {
			vectorOnly++
		}
	}
	total := lexicalTotal + vectorOnly
	if total < len(merged) {
		total = len(merged)
	}
	if q.Offset > 0 {
		if q.Offset >= len(merged) {
			merged = nil
		} else {
			merged = merged[q.Offset:]
		}
	}
	if len(merged) > q.Limit {
		merged = merged[:q.Limit]
	}

	results := make([]SearchResult, len(merged))
	for i, m := range merged {
		sr := SearchResult{DocID: m.docID, Meta: m.meta, Score: m.Score, FromVector: m.fromVector, FromFTS: m.fromFTS}
		if q.Highlight {
			sr.Snippet, sr.Highlights = e.buildSnippet(ctx, m.docID, q.Text)
		}
		results[i] = sr
	}

	resp := &SearchResponse{Query: q.Text, TotalHits: total, Results: results, TookMs: time.Since(start).Milliseconds()}

	if len(q.FacetFields) > 0 {
		resp.Facets = map[string]map[string]int{}
		for _, f := range q.FacetFields {
			counts, err := e.store.FacetCounts(ctx, f, params)
			if err != nil {
				slog.Warn("retrieval: facet computation failed", "field", f, "error", err)
				continue
			}
			resp.Facets[f] = counts
		}
	}

	if strings.TrimSpace(q.Text) != "" {
		suggestions, err := e.store.SuggestTitles(ctx, q.Text, q.Limit)
		if err == nil {
			resp.Suggestions = suggestions
		}
	}

	return resp, nil
}

// ---------------------------------------------------------------------------
// Union and rerank.
// ---------------------------------------------------------------------------

type mergedResult struct {
	docID      string
	meta       store.L1Metadata
	bm25       float64
	similarity float64
	Score      float64
	fromFTS    bool
	fromVector bool
}

// mergeResults unions lexical and vector hits by doc_id; the FTS result
// wins a duplicate, keeping its metadata, but the row is still marked as
// having both signals so the rerank's source bonus applies correctly.
func mergeResults(ftsRows []store.SearchRow, vecRows []store.VectorResult) []*mergedResult {
	byID := map[string]*mergedResult{}
	var order []string

	for _, r := range ftsRows {
		byID[r.DocID] = &mergedResult{docID: r.DocID, meta: r.Meta, bm25: r.BM25, fromFTS: true}
		order = append(order, r.DocID)
	}
	for _, r := range vecRows {
		if m, ok := byID[r.DocID]; ok {
			m.similarity = r.Score
			m.fromVector = true
			continue
		}
		byID[r.DocID] = &mergedResult{docID: r.DocID, meta: r.Meta, similarity: r.Score, fromVector: true}
		order = append(order, r.DocID)
	}

	out := make([]*mergedResult, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

// rerank applies the fixed linear blend:
// 0.50*similarity + 0.25*reliability + 0.15*domain_match + 0.10*source_bonus.
func rerank(results []*mergedResult, classifiedDomain string, cfg RerankConfig) {
	for _, m := range results {
		similarity := m.similarity
		if !m.fromVector {
			// Lexical-only rows have no cosine similarity; approximate one
			// from the normalized BM25 magnitude so the blend still has a
			// comparable [0,1] signal.
			similarity = 1.0 / (1.0 + m.bm25)
		}
		domainMatch := 0.3
		if classifiedDomain != "" && m.meta.Category == classifiedDomain {
			domainMatch = 1.0
		}
		sourceBonus := 0.7
		if m.fromVector {
			sourceBonus = 1.0
		}
		m.Score = cfg.WeightSimilarity*similarity +
			cfg.WeightReliability*m.meta.Reliability +
			cfg.WeightDomain*domainMatch +
			cfg.WeightSource*sourceBonus
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
}

func applySort(results []*mergedResult, sortBy string) {
	switch sortBy {
	case "date":
		sort.SliceStable(results, func(i, j int) bool { return results[i].meta.Year > results[j].meta.Year })
	case "title":
		sort.SliceStable(results, func(i, j int) bool { return results[i].meta.Title < results[j].meta.Title })
	default:
		// relevance: already sorted by Score.
	}
}

// ---------------------------------------------------------------------------
// Snippets and highlights.
// ---------------------------------------------------------------------------

// buildSnippet builds a window around the first matched token from the
// document's L3 abstract (falling back to its keywords), plus up to three
// case-insensitive highlight spans with 50 chars of context each.
func (e *Engine) buildSnippet(ctx context.Context, docID, query string) (string, []string) {
	l3, err := e.store.GetL3(ctx, docID)
	if err != nil || l3 == nil || l3.Abstract == "" {
		return "", nil
	}
	text := l3.Abstract
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return truncateSnippet(text, 0, 200), nil
	}

	lower := strings.ToLower(text)
	firstIdx := -1
	for _, t := range terms {
		if idx := strings.Index(lower, t); idx >= 0 && (firstIdx == -1 || idx < firstIdx) {
			firstIdx = idx
		}
	}
	if firstIdx == -1 {
		firstIdx = 0
	}
	snippet := truncateSnippet(text, firstIdx, 200)

	var highlights []string
	for _, t := range terms {
		if len(highlights) >= 3 {
			break
		}
		idx := strings.Index(lower, t)
		if idx < 0 {
			continue
		}
		start := idx - 50
		if start < 0 {
			start = 0
		}
		end := idx + len(t) + 50
		if end > len(text) {
			end = len(text)
		}
		highlights = append(highlights, text[start:end])
	}
	return snippet, highlights
}

func truncateSnippet(text string, center, window int) string {
	start := center - window/2
	if start < 0 {
		start = 0
	}
	end := start + window
	if end > len(text) {
		end = len(text)
		start = end - window
		if start < 0 {
			start = 0
		}
	}
	return text[start:end]
}
