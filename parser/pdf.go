package parser

import (
	"bytes"
	"context"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor tries three strategies in order: a high-fidelity visual-line
// renderer, a tabular reconstructor, and a simple page reader. The first
// non-empty result wins.
type PDFExtractor struct{}

func (p *PDFExtractor) SupportedFormats() []string { return []string{"pdf"} }

func (p *PDFExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", ErrNoPdfBackend
	}

	strategies := []func(*pdf.Reader) (string, error){
		extractHighFidelity,
		extractTabular,
		extractSimple,
	}
	for _, strategy := range strategies {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		text, err := strategy(reader)
		if err == nil && strings.TrimSpace(text) != "" {
			return text, nil
		}
	}
	return "", ErrNoPdfBackend
}

// extractHighFidelity groups each page's text runs into visual lines by Y
// proximity and orders lines top-to-bottom, so headings that precede body
// text in visual layout but follow it in PDF object order come out right.
func extractHighFidelity(reader *pdf.Reader) (string, error) {
	var out strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := pageTextOrdered(page)
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		out.WriteString(text)
		out.WriteString("\n\n")
	}
	return out.String(), nil
}

func pageTextOrdered(page pdf.Page) (string, error) {
	content := page.Content()
	if len(content.Text) == 0 {
		return page.GetPlainText(nil)
	}

	const lineTolerance = 3.0
	type visualLine struct {
		y   float64
		buf strings.Builder
	}
	var lines []*visualLine
	var cur *visualLine
	for _, t := range content.Text {
		if cur == nil || math.Abs(t.Y-cur.y) > lineTolerance {
			lines = append(lines, &visualLine{y: t.Y})
			cur = lines[len(lines)-1]
		}
		cur.buf.WriteString(t.S)
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].y > lines[j].y })

	var parts []string
	for _, l := range lines {
		if text := strings.TrimSpace(l.buf.String()); text != "" {
			parts = append(parts, text)
		}
	}
	result := strings.Join(parts, "\n")
	if strings.TrimSpace(result) == "" {
		return page.GetPlainText(nil)
	}
	return result, nil
}

// extractTabular reconstructs grid-like pages by clustering each visual
// line's text runs into X-position buckets and joining them with " | ",
// mirroring the CSV Extractor's field-joining convention. Only engaged
// when complexity detection flags the document as table-heavy.
func extractTabular(reader *pdf.Reader) (string, error) {
	score := detectComplexity(reader)
	if !score.hasTables {
		return "", nil
	}

	var out strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content := page.Content()
		if len(content.Text) == 0 {
			continue
		}

		const lineTolerance = 3.0
		const columnGap = 8.0
		type run struct {
			x float64
			s string
		}
		var rows [][]run
		var curY float64
		var cur []run
		for _, t := range content.Text {
			if len(cur) == 0 || math.Abs(t.Y-curY) > lineTolerance {
				if len(cur) > 0 {
					rows = append(rows, cur)
				}
				cur = nil
				curY = t.Y
			}
			cur = append(cur, run{x: t.X, s: t.S})
		}
		if len(cur) > 0 {
			rows = append(rows, cur)
		}

		for _, row := range rows {
			sort.Slice(row, func(i, j int) bool { return row[i].x < row[j].x })
			var cells []string
			var cell strings.Builder
			lastX := math.Inf(-1)
			for _, r := range row {
				if cell.Len() > 0 && r.x-lastX > columnGap {
					cells = append(cells, strings.TrimSpace(cell.String()))
					cell.Reset()
				}
				cell.WriteString(r.s)
				lastX = r.x
			}
			if cell.Len() > 0 {
				cells = append(cells, strings.TrimSpace(cell.String()))
			}
			if len(cells) > 0 {
				out.WriteString(strings.Join(cells, " | "))
				out.WriteString("\n")
			}
		}
	}
	return out.String(), nil
}

// extractSimple reads each page with the library's own plain-text layout,
// the fallback strategy when layout reconstruction yields nothing useful.
func extractSimple(reader *pdf.Reader) (string, error) {
	var out strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		out.WriteString(text)
		out.WriteString("\n\n")
	}
	return out.String(), nil
}
