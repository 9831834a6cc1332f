package parser

import (
	"bytes"
	"context"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// TextExtractor handles TXT/MD/RST files by trying a fixed chain of text
// encodings, first success wins: UTF-8, UTF-8 with a byte-order mark,
// Latin-1, CP1252, ISO-8859-1.
type TextExtractor struct{}

func (p *TextExtractor) SupportedFormats() []string { return []string{"txt"} }

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var fallbackEncodings = []encoding.Encoding{
	charmap.ISO8859_1,   // latin-1
	charmap.Windows1252, // cp1252
	charmap.ISO8859_1,   // iso-8859-1, kept as its own entry in the chain
}

func (p *TextExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	if bytes.HasPrefix(data, utf8BOM) {
		data = data[len(utf8BOM):]
	}
	if utf8.Valid(data) {
		return string(data), nil
	}
	for _, enc := range fallbackEncodings {
		decoded, err := enc.NewDecoder().Bytes(data)
		if err == nil && utf8.Valid(decoded) {
			return string(decoded), nil
		}
	}
	return "", &ExtractionFailure{Format: "txt", Reason: "no encoding in the fallback chain produced valid UTF-8"}
}
