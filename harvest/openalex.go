package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/brunobiangulo/distill/store"
)

// openAlexTopicCategories maps OpenAlex's free-form topic display names to
// the store's fixed category vocabulary. OpenAlex's real topic taxonomy is
// far larger than this; unmapped topics fall back to "general".
var openAlexTopicCategories = map[string]string{
	"physics":                  "physics",
	"condensed matter physics": "physics",
	"mathematics":              "mathematics",
	"computer science":         "computer_science",
	"artificial intelligence":  "computer_science",
	"biology":                  "biology",
	"medicine":                 "medicine",
	"chemistry":                "chemistry",
	"economics":                "economics",
	"history":                  "history",
	"philosophy":               "philosophy",
	"engineering":              "engineering",
}

// OpenAlexAdapter harvests the OpenAlex works endpoint using its opaque
// cursor pagination.
type OpenAlexAdapter struct {
	Mailto string
	client *http.Client
}

// NewOpenAlexAdapter constructs an adapter that identifies itself with
// mailto for OpenAlex's polite pool.
func NewOpenAlexAdapter(mailto string) *OpenAlexAdapter {
	return &OpenAlexAdapter{Mailto: mailto, client: newHTTPClient()}
}

func (a *OpenAlexAdapter) Name() string { return "openalex" }

type openAlexResponse struct {
	Meta struct {
		NextCursor *string `json:"next_cursor"`
	} `json:"meta"`
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	ID              string `json:"id"`
	DisplayName     string `json:"display_name"`
	PublicationYear int    `json:"publication_year"`
	DOI             string `json:"doi"`
	Authorships     []struct {
		Author struct {
			DisplayName string `json:"display_name"`
		} `json:"author"`
	} `json:"authorships"`
	Topics []struct {
		DisplayName string `json:"display_name"`
	} `json:"topics"`
	PrimaryLocation struct {
		Source struct {
			DisplayName string `json:"display_name"`
		} `json:"source"`
		LandingPageURL string `json:"landing_page_url"`
	} `json:"primary_location"`
}

// FetchBatch implements Adapter. The initial cursor is "*"; the server
// echoes a next_cursor for the following call, or nil to signal
// end-of-feed.
func (a *OpenAlexAdapter) FetchBatch(ctx context.Context, progress Progress) (FetchResult, error) {
	cursor := progress.Cursor
	if cursor == "" {
		cursor = "*"
	}

	q := url.Values{}
	q.Set("cursor", cursor)
	q.Set("per-page", "200")
	if a.Mailto != "" {
		q.Set("mailto", a.Mailto)
	}
	reqURL := "https://api.openalex.org/works?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return FetchResult{}, err
	}
	setPoliteHeaders(req, a.Mailto)
	resp, err := a.client.Do(req)
	if err != nil {
		return FetchResult{}, fmt.Errorf("openalex: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return FetchResult{}, fmt.Errorf("openalex: server error %d", resp.StatusCode)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return FetchResult{}, fmt.Errorf("openalex: rate limited")
	}
	if resp.StatusCode != http.StatusOK {
		return FetchResult{}, fmt.Errorf("openalex: unexpected status %d", resp.StatusCode)
	}

	var parsed openAlexResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return FetchResult{}, fmt.Errorf("openalex: decoding response: %w", err)
	}

	records := make([]store.L1Metadata, 0, len(parsed.Results))
	for _, w := range parsed.Results {
		records = append(records, mapOpenAlexWork(w))
	}

	next := ""
	if parsed.Meta.NextCursor != nil {
		next = *parsed.Meta.NextCursor
	}
	return FetchResult{Records: records, NextCursor: next}, nil
}

func mapOpenAlexWork(w openAlexWork) store.L1Metadata {
	author := ""
	if len(w.Authorships) > 0 {
		author = w.Authorships[0].Author.DisplayName
	}
	category := "general"
	if len(w.Topics) > 0 {
		if c, ok := openAlexTopicCategories[strings.ToLower(w.Topics[0].DisplayName)]; ok {
			category = c
		}
	}
	url := w.PrimaryLocation.LandingPageURL
	if url == "" {
		url = w.ID
	}
	return store.L1Metadata{
		DocID:      docIDFromURL(w.ID),
		Title:      w.DisplayName,
		Author:     author,
		Year:       w.PublicationYear,
		Category:   category,
		SourceType: "paper",
		DOI:        strings.TrimPrefix(w.DOI, "https://doi.org/"),
		Publisher:  w.PrimaryLocation.Source.DisplayName,
		Origin:     "openalex",
		URL:        url,
	}
}
