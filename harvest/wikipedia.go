package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/brunobiangulo/distill/store"
)

// WikipediaAdapter harvests one language edition's article list via the
// `allpages` enumeration: namespace 0 only, redirects filtered out,
// continuation via `apcontinue`. Each language instance is crawled
// independently (a separate Progress row per "wikipedia:<lang>" source
// name).
type WikipediaAdapter struct {
	Language string
	client   *http.Client
}

// NewWikipediaAdapter constructs an adapter for one language edition,
// e.g. "en", "it".
func NewWikipediaAdapter(language string) *WikipediaAdapter {
	if language == "" {
		language = "en"
	}
	return &WikipediaAdapter{Language: language, client: newHTTPClient()}
}

// Name embeds the language so resume state is kept per-edition.
func (a *WikipediaAdapter) Name() string { return "wikipedia:" + a.Language }

type wikipediaAllPagesResponse struct {
	Continue struct {
		APContinue string `json:"apcontinue"`
	} `json:"continue"`
	Query struct {
		AllPages []struct {
			PageID int    `json:"pageid"`
			Title  string `json:"title"`
		} `json:"allpages"`
	} `json:"query"`
}

// FetchBatch implements Adapter. The continuation token travels in
// Progress.Cursor; an empty cursor means "start from the beginning of the
// namespace".
func (a *WikipediaAdapter) FetchBatch(ctx context.Context, progress Progress) (FetchResult, error) {
	q := url.Values{}
	q.Set("action", "query")
	q.Set("list", "allpages")
	q.Set("apnamespace", "0")
	q.Set("apfilterredir", "nonredirects")
	q.Set("aplimit", "50")
	q.Set("format", "json")
	if progress.Cursor != "" {
		q.Set("apcontinue", progress.Cursor)
	}
	reqURL := fmt.Sprintf("https://%s.wikipedia.org/w/api.php?%s", a.Language, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return FetchResult{}, err
	}
	setPoliteHeaders(req, "")
	resp, err := a.client.Do(req)
	if err != nil {
		return FetchResult{}, fmt.Errorf("wikipedia: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return FetchResult{}, fmt.Errorf("wikipedia: server error %d", resp.StatusCode)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return FetchResult{}, fmt.Errorf("wikipedia: rate limited")
	}
	if resp.StatusCode != http.StatusOK {
		return FetchResult{}, fmt.Errorf("wikipedia: unexpected status %d", resp.StatusCode)
	}

	var parsed wikipediaAllPagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return FetchResult{}, fmt.Errorf("wikipedia: decoding response: %w", err)
	}

	records := make([]store.L1Metadata, 0, len(parsed.Query.AllPages))
	for _, p := range parsed.Query.AllPages {
		pageURL := fmt.Sprintf("https://%s.wikipedia.org/wiki/%s", a.Language, url.PathEscape(p.Title))
		records = append(records, store.L1Metadata{
			DocID:      docIDFromURL(pageURL),
			Title:      p.Title,
			Language:   a.Language,
			Category:   "encyclopedia",
			SourceType: "encyclopedia_article",
			Origin:     "wikipedia",
			URL:        pageURL,
		})
	}

	// MediaWiki signals end-of-enumeration by omitting "continue" entirely;
	// an empty APContinue after a non-empty result page means exactly that.
	return FetchResult{Records: records, NextCursor: parsed.Continue.APContinue}, nil
}
