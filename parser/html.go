package parser

import (
	"bytes"
	"context"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTMLExtractor strips <script>/<style>, converts block-level tags to
// newlines, and relies on golang.org/x/net/html's tokenizer for entity
// decoding.
type HTMLExtractor struct{}

func (p *HTMLExtractor) SupportedFormats() []string { return []string{"html"} }

var blockAtoms = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true,
	atom.Tr: true, atom.H1: true, atom.H2: true, atom.H3: true,
	atom.H4: true, atom.H5: true, atom.H6: true, atom.Section: true,
	atom.Article: true, atom.Header: true, atom.Footer: true,
	atom.Table: true, atom.Blockquote: true, atom.Pre: true,
}

var skipAtoms = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true,
}

func (p *HTMLExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", &ExtractionFailure{Format: "html", Reason: err.Error()}
	}

	var out strings.Builder
	var walk func(*html.Node, bool)
	walk = func(n *html.Node, skip bool) {
		if skip {
			return
		}
		switch n.Type {
		case html.ElementNode:
			if skipAtoms[n.DataAtom] {
				return
			}
		case html.TextNode:
			if text := strings.TrimSpace(n.Data); text != "" {
				out.WriteString(text)
				out.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, false)
		}
		if n.Type == html.ElementNode && blockAtoms[n.DataAtom] {
			out.WriteString("\n")
		}
	}
	walk(doc, false)

	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", &ExtractionFailure{Format: "html", Reason: "no text content found"}
	}
	return text, nil
}
