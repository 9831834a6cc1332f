package parser

import (
	"bytes"
	"context"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXExtractor reads every sheet's rows and joins fields with " | ",
// reusing excelize.v2 for the tabular decode (the same library the PDF
// Extractor's tabular strategy borrows its field-joining convention from).
// The local scanner surfaces spreadsheets alongside the prose formats, so
// this extractor gives them a home instead of silently dropping them.
type XLSXExtractor struct{}

func (p *XLSXExtractor) SupportedFormats() []string { return []string{"xlsx"} }

func (p *XLSXExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", &ExtractionFailure{Format: "xlsx", Reason: err.Error()}
	}
	defer f.Close()

	var out strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		for _, row := range rows {
			var kept []string
			for _, field := range row {
				if strings.TrimSpace(field) != "" {
					kept = append(kept, strings.TrimSpace(field))
				}
			}
			if len(kept) > 0 {
				out.WriteString(strings.Join(kept, " | "))
				out.WriteString("\n")
			}
		}
	}

	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", &ExtractionFailure{Format: "xlsx", Reason: "no rows found in any sheet"}
	}
	return text, nil
}
