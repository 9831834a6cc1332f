// Package parser implements the extractor set: one extractor per document
// format, each turning raw bytes into UTF-8 text, dispatched through a
// Registry keyed by format name.
package parser

import (
	"context"
	"fmt"
)

// ExtractionFailure reports that an extractor could not produce text for a
// document, naming why.
type ExtractionFailure struct {
	Format string
	Reason string
}

func (e *ExtractionFailure) Error() string {
	return fmt.Sprintf("parser: extraction failed for %s: %s", e.Format, e.Reason)
}

// ErrNoPdfBackend is returned when all three PDF extraction strategies fail.
var ErrNoPdfBackend = &ExtractionFailure{Format: "pdf", Reason: "NoPdfBackend"}

// Extractor turns a document's raw bytes into plain UTF-8 text.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
	SupportedFormats() []string
}

// Registry dispatches by format name to a registered Extractor.
type Registry struct {
	extractors map[string]Extractor
}

// NewRegistry builds a Registry with every built-in Extractor registered.
func NewRegistry() *Registry {
	r := &Registry{extractors: make(map[string]Extractor)}
	for _, e := range []Extractor{
		&TextExtractor{},
		&HTMLExtractor{},
		&PDFExtractor{},
		&DOCXExtractor{},
		&EPUBExtractor{},
		&JSONExtractor{},
		&CSVExtractor{},
		&XLSXExtractor{},
	} {
		r.Register(e)
	}
	return r
}

// Register adds or replaces the extractor for every format it supports.
func (r *Registry) Register(e Extractor) {
	for _, f := range e.SupportedFormats() {
		r.extractors[f] = e
	}
}

// Get returns the extractor for format, or the txt extractor if format is
// unrecognized, since format detection falls back to "txt" last.
func (r *Registry) Get(format string) (Extractor, error) {
	if e, ok := r.extractors[format]; ok {
		return e, nil
	}
	if e, ok := r.extractors["txt"]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("parser: no extractor registered for format %q", format)
}

// DetectFormat resolves a format name from a file extension first, then a
// MIME type, falling back to "txt".
func DetectFormat(ext, mimeType string) string {
	if f, ok := extByExtension[ext]; ok {
		return f
	}
	if f, ok := extByMIME[mimeType]; ok {
		return f
	}
	return "txt"
}

var extByExtension = map[string]string{
	".txt": "txt", ".md": "txt", ".rst": "txt",
	".html": "html", ".htm": "html",
	".pdf":  "pdf",
	".docx": "docx",
	".epub": "epub",
	".json": "json", ".jsonl": "json",
	".csv":  "csv",
	".xlsx": "xlsx",
}

var extByMIME = map[string]string{
	"text/plain":      "txt",
	"text/markdown":   "txt",
	"text/html":       "html",
	"application/pdf": "pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "docx",
	"application/epub+zip": "epub",
	"application/json":     "json",
	"application/x-ndjson": "json",
	"text/csv":             "csv",
}
