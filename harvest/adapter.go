package harvest

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/brunobiangulo/distill/store"
)

// docIDFromURL derives a stable 16-hex-char doc_id from a source record's
// canonical URL or identifier. The same identifier always hashes to the
// same id, so re-harvesting a record is an update, not a duplicate.
func docIDFromURL(raw string) string {
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])[:16]
}

// FetchResult is one page from a source adapter: the records it yielded
// (already mapped to L1Metadata), the cursor/offset to resume from, and
// whether the feed is exhausted.
type FetchResult struct {
	Records    []store.L1Metadata
	NextCursor string // empty means end-of-feed
	NewOffset  int
}

// Adapter is the per-source paging contract: given the current Progress,
// fetch the next page of records plus the cursor/offset to resume from.
type Adapter interface {
	// Name identifies the source for progress persistence and logging.
	Name() string
	// FetchBatch retrieves the next page given the current Progress cursor/offset.
	FetchBatch(ctx context.Context, progress Progress) (FetchResult, error)
}

// newHTTPClient builds the shared transport every adapter uses, with a
// 30s per-request timeout.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// setPoliteHeaders identifies the client to the upstream API. OpenAlex and
// Crossref route identified clients through their polite pools; omitting
// the mailto lowers throughput, so it is embedded in the User-Agent as
// well as sent as a query parameter.
func setPoliteHeaders(req *http.Request, mailto string) {
	ua := "VIO83-AI-Orchestra/2.0"
	if mailto != "" {
		ua += " (mailto:" + mailto + ")"
	}
	req.Header.Set("User-Agent", ua)
}

// rateLimiter is a leaky bucket: calls to Wait sleep as needed to honor
// the configured requests per second.
type rateLimiter struct {
	interval time.Duration
	last     time.Time
}

func newRateLimiter(requestsPerSecond float64) *rateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 10
	}
	return &rateLimiter{interval: time.Duration(float64(time.Second) / requestsPerSecond)}
}

func (r *rateLimiter) Wait(ctx context.Context) error {
	if r.last.IsZero() {
		r.last = time.Now()
		return nil
	}
	elapsed := time.Since(r.last)
	if elapsed < r.interval {
		timer := time.NewTimer(r.interval - elapsed)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.last = time.Now()
	return nil
}
