package distill

import "errors"

// Sentinel errors shared across the data plane. Component packages
// (parser, compress, objectstore, store, retrieval, harvest) declare
// their own sentinels close to where they're raised; these cover the
// cross-cutting kinds.
var (
	// ErrTransientIO marks a network or disk error eligible for retry
	// with exponential backoff by the caller.
	ErrTransientIO = errors.New("distill: transient I/O error")

	// ErrRateLimited is returned by harvester adapters on HTTP 429.
	ErrRateLimited = errors.New("distill: rate limited")

	// ErrServerError is returned by harvester adapters on HTTP 5xx.
	ErrServerError = errors.New("distill: upstream server error")

	// ErrInvalidQuery marks a query the search engine could not parse;
	// callers must treat this as an empty result set, not a fatal error.
	ErrInvalidQuery = errors.New("distill: invalid search query")

	// ErrResourceExhausted marks an executor pool rejection or a full
	// queue beyond retry; treated as a transient, counted failure.
	ErrResourceExhausted = errors.New("distill: resource exhausted")

	// ErrPreprocessEmpty marks text that cleaned to nothing.
	ErrPreprocessEmpty = errors.New("distill: preprocessed text is empty")

	// ErrDocumentNotFound is returned when a document id does not exist.
	ErrDocumentNotFound = errors.New("distill: document not found")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("distill: store is closed")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("distill: invalid configuration")
)
