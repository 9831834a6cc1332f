package parser

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
)

// JSONExtractor handles both JSON and JSONL: for each object, it
// concatenates values of a fixed set of "text-like" keys; arrays are
// iterated object-by-object.
type JSONExtractor struct{}

func (p *JSONExtractor) SupportedFormats() []string { return []string{"json"} }

var textLikeKeys = []string{
	"title", "content", "body", "abstract", "description",
	"summary", "passage", "context", "question", "answer",
}

func (p *JSONExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	trimmed := bytes.TrimSpace(data)

	var out strings.Builder
	emit := func(v any) {
		if s := extractTextLikeValues(v); s != "" {
			out.WriteString(s)
			out.WriteString("\n")
		}
	}

	// JSONL: one object per line.
	if len(trimmed) > 0 && trimmed[0] != '[' {
		scanner := bufio.NewScanner(bytes.NewReader(data))
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		sawLine := false
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var v any
			if json.Unmarshal(line, &v) != nil {
				continue
			}
			sawLine = true
			emit(v)
		}
		if sawLine {
			if text := strings.TrimSpace(out.String()); text != "" {
				return text, nil
			}
		}
	}

	// Plain JSON: a single object or an array of objects.
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return "", &ExtractionFailure{Format: "json", Reason: err.Error()}
	}
	switch vv := v.(type) {
	case []any:
		for _, item := range vv {
			emit(item)
		}
	default:
		emit(v)
	}

	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", &ExtractionFailure{Format: "json", Reason: "no text-like keys found"}
	}
	return text, nil
}

func extractTextLikeValues(v any) string {
	obj, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	var parts []string
	for _, key := range textLikeKeys {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		if s, ok := raw.(string); ok && strings.TrimSpace(s) != "" {
			parts = append(parts, strings.TrimSpace(s))
		}
	}
	return strings.Join(parts, "\n")
}
