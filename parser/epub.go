package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"sort"
	"strings"
)

// EPUBExtractor iterates an EPUB's document-type (X)HTML items in spine
// order, HTML-cleans each with HTMLExtractor, and concatenates the result.
type EPUBExtractor struct {
	html HTMLExtractor
}

func (p *EPUBExtractor) SupportedFormats() []string { return []string{"epub"} }

func (p *EPUBExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &ExtractionFailure{Format: "epub", Reason: err.Error()}
	}

	names := epubDocumentItems(zr)
	if len(names) == 0 {
		return "", &ExtractionFailure{Format: "epub", Reason: "no HTML document items found"}
	}

	var out strings.Builder
	for _, name := range names {
		f := findZipFile(zr, name)
		if f == nil {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			continue
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		text, err := p.html.Extract(ctx, raw)
		if err != nil {
			continue
		}
		out.WriteString(text)
		out.WriteString("\n\n")
	}

	result := strings.TrimSpace(out.String())
	if result == "" {
		return "", &ExtractionFailure{Format: "epub", Reason: "no extractable text found"}
	}
	return result, nil
}

// epubDocumentItems returns HTML/XHTML content document paths, preferring
// the OPF manifest's spine order when a content.opf can be located, and
// falling back to every .html/.xhtml file in the archive otherwise.
func epubDocumentItems(zr *zip.Reader) []string {
	opf := findOPF(zr)
	if opf != nil {
		if items := parseOPFSpine(opf); len(items) > 0 {
			return items
		}
	}

	var names []string
	for _, f := range zr.File {
		lower := strings.ToLower(f.Name)
		if strings.HasSuffix(lower, ".html") || strings.HasSuffix(lower, ".xhtml") || strings.HasSuffix(lower, ".htm") {
			names = append(names, f.Name)
		}
	}
	sort.Strings(names)
	return names
}

func findOPF(zr *zip.Reader) *zip.File {
	for _, f := range zr.File {
		if strings.HasSuffix(strings.ToLower(f.Name), ".opf") {
			return f
		}
	}
	return nil
}

type opfManifestItem struct {
	ID        string `xml:"id,attr"`
	Href      string `xml:"href,attr"`
	MediaType string `xml:"media-type,attr"`
}

type opfSpineItemRef struct {
	IDRef string `xml:"idref,attr"`
}

type opfPackage struct {
	Manifest struct {
		Items []opfManifestItem `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		ItemRefs []opfSpineItemRef `xml:"itemref"`
	} `xml:"spine"`
}

// parseOPFSpine reads the package document's manifest/spine and returns
// content document paths in reading order, relative to the OPF file's
// directory (approximated here as relative to the archive root, which
// holds for the common single-directory EPUB layout).
func parseOPFSpine(opf *zip.File) []string {
	rc, err := opf.Open()
	if err != nil {
		return nil
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil
	}

	var pkg opfPackage
	if xml.Unmarshal(data, &pkg) != nil {
		return nil
	}

	byID := make(map[string]opfManifestItem, len(pkg.Manifest.Items))
	for _, item := range pkg.Manifest.Items {
		byID[item.ID] = item
	}

	dir := opfDir(opf.Name)
	var out []string
	for _, ref := range pkg.Spine.ItemRefs {
		item, ok := byID[ref.IDRef]
		if !ok {
			continue
		}
		if !strings.Contains(item.MediaType, "html") {
			continue
		}
		out = append(out, dir+item.Href)
	}
	return out
}

func opfDir(opfPath string) string {
	idx := strings.LastIndex(opfPath, "/")
	if idx < 0 {
		return ""
	}
	return opfPath[:idx+1]
}

func findZipFile(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}
