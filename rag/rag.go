// Package rag implements the RAG facade: it runs a hybrid search and
// packages the ranked results into an LLM-ready context string with
// per-source attribution and trust badges.
package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/brunobiangulo/distill/retrieval"
	"github.com/brunobiangulo/distill/store"
)

// Badge is a coarse trust tier derived from a source's peer-review flag
// and reliability score.
type Badge string

const (
	BadgeGold       Badge = "gold"
	BadgeSilver     Badge = "silver"
	BadgeBronze     Badge = "bronze"
	BadgeUnverified Badge = "unverified"
)

// badgeFor derives the trust tier from peer review and reliability.
func badgeFor(peerReviewed bool, reliability float64) Badge {
	switch {
	case peerReviewed && reliability >= 0.8:
		return BadgeGold
	case peerReviewed && reliability >= 0.5:
		return BadgeSilver
	case reliability >= 0.3:
		return BadgeBronze
	default:
		return BadgeUnverified
	}
}

// Source is one document contributing to a packaged context.
type Source struct {
	Title       string
	Author      string
	Domain      string
	Reliability float64
	Similarity  float64
	Badge       Badge
}

// Context is the RAG Facade's return contract: packaged context text,
// the sources that made it in, the dominant domain, an averaged
// confidence, and whether any context was found at all.
type Context struct {
	ContextText string
	Sources     []Source
	Domain      string
	Confidence  float64
	HasContext  bool
}

// charsPerToken is the rough chars-per-token estimate used for budgeting.
const charsPerToken = 4

// Facade builds packaged RAG context from a Search Engine.
// maxContentChars caps how much of a single document's body one context
// block may consume, so a long full text cannot crowd out every other
// ranked source.
const maxContentChars = 1500

type Facade struct {
	engine *retrieval.Engine
	store  *store.Store
}

// New constructs a Facade over an already-configured search engine and
// the distillation store its content blocks are read from.
func New(engine *retrieval.Engine, s *store.Store) *Facade {
	return &Facade{engine: engine, store: s}
}

// contentFor resolves the body text packed for one ranked document: the
// retained L5 full text when present, else the L3 abstract, else the
// title. Bounded by maxContentChars.
func (f *Facade) contentFor(ctx context.Context, docID, title string) string {
	if text, ok, err := f.store.GetFullText(ctx, docID); err == nil && ok {
		return truncateContent(text)
	}
	if l3, err := f.store.GetL3(ctx, docID); err == nil && l3 != nil && l3.Abstract != "" {
		return truncateContent(l3.Abstract)
	}
	return title
}

func truncateContent(s string) string {
	if len(s) <= maxContentChars {
		return s
	}
	cut := s[:maxContentChars]
	if idx := strings.LastIndexByte(cut, ' '); idx > maxContentChars/2 {
		cut = cut[:idx]
	}
	return cut
}

// BuildContext runs a hybrid search, then iterates results in rank order
// concatenating "[Fonte: {title} ({author})]\n{content}" blocks separated
// by "\n\n---\n\n" until the next block would push the estimated token
// count over maxContextTokens.
func (f *Facade) BuildContext(ctx context.Context, question string, maxContextTokens, nResults int) (*Context, error) {
	if maxContextTokens <= 0 {
		maxContextTokens = 2000
	}
	if nResults <= 0 {
		nResults = 5
	}

	resp, err := f.engine.Search(ctx, retrieval.SearchQuery{Text: question, Limit: nResults})
	if err != nil {
		return nil, fmt.Errorf("rag: search: %w", err)
	}

	out := &Context{}
	if len(resp.Results) == 0 {
		return out, nil
	}

	var blocks []string
	var sources []Source
	var confidenceSum float64
	budget := maxContextTokens
	domainCounts := map[string]int{}

	for _, r := range resp.Results {
		content := f.contentFor(ctx, r.DocID, r.Meta.Title)
		block := fmt.Sprintf("[Fonte: %s (%s)]\n%s", r.Meta.Title, authorOrUnknown(r.Meta.Author), content)

		estTokens := (len(block) + charsPerToken - 1) / charsPerToken
		if len(blocks) > 0 {
			estTokens += (len(separator) + charsPerToken - 1) / charsPerToken
		}
		if estTokens > budget {
			break
		}
		budget -= estTokens

		blocks = append(blocks, block)
		sources = append(sources, Source{
			Title:       r.Meta.Title,
			Author:      r.Meta.Author,
			Domain:      r.Meta.Category,
			Reliability: r.Meta.Reliability,
			Similarity:  r.Score,
			Badge:       badgeFor(r.Meta.PeerReviewed, r.Meta.Reliability),
		})
		confidenceSum += r.Score
		domainCounts[r.Meta.Category]++
	}

	out.ContextText = strings.Join(blocks, separator)
	out.Sources = sources
	out.HasContext = len(blocks) > 0
	if len(sources) > 0 {
		out.Confidence = confidenceSum / float64(len(sources))
		out.Domain = dominantDomain(domainCounts)
	}
	return out, nil
}

const separator = "\n\n---\n\n"

func authorOrUnknown(author string) string {
	if strings.TrimSpace(author) == "" {
		return "unknown"
	}
	return author
}

func dominantDomain(counts map[string]int) string {
	best := ""
	bestCount := -1
	for domain, c := range counts {
		if c > bestCount {
			best = domain
			bestCount = c
		}
	}
	return best
}
