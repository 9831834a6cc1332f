package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"strings"
)

// DOCXExtractor reads word/document.xml's paragraph stream, falling back to
// a generic document-to-text pass over every paragraph in the archive if
// the primary document part is missing or malformed.
type DOCXExtractor struct{}

func (p *DOCXExtractor) SupportedFormats() []string { return []string{"docx"} }

func (p *DOCXExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &ExtractionFailure{Format: "docx", Reason: err.Error()}
	}

	var fileIndex = make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		fileIndex[f.Name] = f
	}

	docFile := fileIndex["word/document.xml"]
	if docFile == nil {
		return genericDocToText(fileIndex)
	}

	rc, err := docFile.Open()
	if err != nil {
		return genericDocToText(fileIndex)
	}
	defer rc.Close()

	xmlData, err := io.ReadAll(rc)
	if err != nil {
		return genericDocToText(fileIndex)
	}

	text, err := paragraphStreamText(xmlData)
	if err != nil || strings.TrimSpace(text) == "" {
		return genericDocToText(fileIndex)
	}
	return text, nil
}

// paragraphStreamText walks word/document.xml's paragraph and table
// elements in order, joining headings and body paragraphs with newlines and
// table rows with " | ".
func paragraphStreamText(data []byte) (string, error) {
	var doc docxDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return "", err
	}

	var out strings.Builder
	for _, para := range doc.Body.Paras {
		text := extractParaText(para)
		if text == "" {
			continue
		}
		out.WriteString(text)
		out.WriteString("\n")
	}
	for _, tbl := range doc.Body.Tables {
		for _, row := range tbl.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				var cellText strings.Builder
				for _, p := range cell.Paras {
					cellText.WriteString(extractParaText(p))
				}
				cells = append(cells, strings.TrimSpace(cellText.String()))
			}
			out.WriteString(strings.Join(cells, " | "))
			out.WriteString("\n")
		}
	}
	return out.String(), nil
}

// genericDocToText is the fallback strategy: scan every XML part in the
// archive for <w:t> runs, ignoring document structure entirely.
func genericDocToText(fileIndex map[string]*zip.File) (string, error) {
	var out strings.Builder
	for name, f := range fileIndex {
		if !strings.HasSuffix(name, ".xml") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		var doc docxDocument
		if xml.Unmarshal(data, &doc) != nil {
			continue
		}
		for _, para := range doc.Body.Paras {
			if text := extractParaText(para); text != "" {
				out.WriteString(text)
				out.WriteString("\n")
			}
		}
	}
	if out.Len() == 0 {
		return "", &ExtractionFailure{Format: "docx", Reason: "no extractable text found"}
	}
	return out.String(), nil
}

// DOCX XML structures (simplified).
type docxBody struct {
	XMLName xml.Name    `xml:"body"`
	Paras   []docxPara  `xml:"p"`
	Tables  []docxTable `xml:"tbl"`
}

type docxDocument struct {
	XMLName xml.Name `xml:"document"`
	Body    docxBody `xml:"body"`
}

type docxPara struct {
	XMLName xml.Name  `xml:"p"`
	Runs    []docxRun `xml:"r"`
}

type docxRun struct {
	Text []docxText `xml:"t"`
}

type docxText struct {
	Content string `xml:",chardata"`
}

type docxTable struct {
	Rows []docxRow `xml:"tr"`
}

type docxRow struct {
	Cells []docxCell `xml:"tc"`
}

type docxCell struct {
	Paras []docxPara `xml:"p"`
}

func extractParaText(para docxPara) string {
	var b strings.Builder
	for _, run := range para.Runs {
		for _, t := range run.Text {
			b.WriteString(t.Content)
		}
	}
	return b.String()
}
