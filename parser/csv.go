package parser

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
)

// CSVExtractor joins each row's fields with " | ", keeping only fields
// longer than 20 characters (short fields are assumed to be IDs/codes
// rather than prose).
type CSVExtractor struct{}

func (p *CSVExtractor) SupportedFormats() []string { return []string{"csv"} }

const csvMinFieldLen = 20

func (p *CSVExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1 // tolerate ragged rows rather than failing the whole file

	var out strings.Builder
	rows := 0
	for {
		record, err := r.Read()
		if err != nil {
			break
		}
		rows++
		var kept []string
		for _, field := range record {
			field = strings.TrimSpace(field)
			if len(field) > csvMinFieldLen {
				kept = append(kept, field)
			}
		}
		if len(kept) > 0 {
			out.WriteString(strings.Join(kept, " | "))
			out.WriteString("\n")
		}
	}

	if rows == 0 {
		return "", &ExtractionFailure{Format: "csv", Reason: "no rows parsed"}
	}
	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", &ExtractionFailure{Format: "csv", Reason: "no field exceeded the minimum length"}
	}
	return text, nil
}
