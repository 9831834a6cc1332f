package parser

import (
	"strings"

	"github.com/ledongthuc/pdf"
)

// complexityScore captures structural signals used to pick between the PDF
// Extractor's three strategies for a given page.
type complexityScore struct {
	hasTables  bool
	isMultiCol bool
}

// detectComplexity scans an already-open PDF reader for table-like and
// multi-column layout signals; the result gates the tabular extraction
// strategy.
func detectComplexity(reader *pdf.Reader) complexityScore {
	var score complexityScore
	totalPages := reader.NumPage()
	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		analyzePageComplexity(text, &score)
	}
	return score
}

func analyzePageComplexity(text string, score *complexityScore) {
	lines := strings.Split(text, "\n")

	tabCount, pipeCount, dashLineCount := 0, 0, 0
	for _, line := range lines {
		tabCount += strings.Count(line, "\t")
		pipeCount += strings.Count(line, "|")
		trimmed := strings.TrimSpace(line)
		if len(trimmed) > 3 && (strings.Count(trimmed, "-") > len(trimmed)/2 || strings.Count(trimmed, "_") > len(trimmed)/2) {
			dashLineCount++
		}
	}
	if tabCount > 5 || pipeCount > 5 || dashLineCount > 2 {
		score.hasTables = true
	}

	multiColIndicators := 0
	for _, line := range lines {
		if len(line) > 40 && strings.Contains(line, "    ") {
			mid := len(line) / 2
			start := mid - 10
			end := mid + 10
			if start < 0 {
				start = 0
			}
			if end > len(line) {
				end = len(line)
			}
			midSection := line[start:end]
			if strings.Count(midSection, " ") > 8 {
				multiColIndicators++
			}
		}
	}
	if multiColIndicators > 3 {
		score.isMultiCol = true
	}
}
