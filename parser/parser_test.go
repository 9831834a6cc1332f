package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestTextExtractorUTF8(t *testing.T) {
	e := &TextExtractor{}
	got, err := e.Extract(context.Background(), []byte("hello world"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "hello world" {
		t.Fatalf("got %q", got)
	}
}

func TestTextExtractorStripsBOM(t *testing.T) {
	e := &TextExtractor{}
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("hello")...)
	got, err := e.Extract(context.Background(), data)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
}

func TestTextExtractorLatin1Fallback(t *testing.T) {
	e := &TextExtractor{}
	// 0xE9 is 'é' in Latin-1/CP1252 but invalid standalone UTF-8.
	data := []byte("caf\xe9")
	got, err := e.Extract(context.Background(), data)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.HasPrefix(got, "caf") {
		t.Fatalf("got %q", got)
	}
}

func TestHTMLExtractorStripsScriptAndStyle(t *testing.T) {
	e := &HTMLExtractor{}
	html := `<html><head><style>.x{color:red}</style></head><body>
		<script>alert(1)</script>
		<h1>Title</h1>
		<p>Body text.</p>
	</body></html>`
	got, err := e.Extract(context.Background(), []byte(html))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if strings.Contains(got, "alert") || strings.Contains(got, "color:red") {
		t.Fatalf("script/style leaked into output: %q", got)
	}
	if !strings.Contains(got, "Title") || !strings.Contains(got, "Body text.") {
		t.Fatalf("missing expected text: %q", got)
	}
}

func TestJSONExtractorTextLikeKeys(t *testing.T) {
	e := &JSONExtractor{}
	got, err := e.Extract(context.Background(), []byte(`{"title":"A Title","content":"Some body","irrelevant":"skip me via key name"}`))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(got, "A Title") || !strings.Contains(got, "Some body") {
		t.Fatalf("got %q", got)
	}
	if strings.Contains(got, "skip me") {
		t.Fatalf("non-text-like key leaked: %q", got)
	}
}

func TestJSONExtractorArrayOfObjects(t *testing.T) {
	e := &JSONExtractor{}
	got, err := e.Extract(context.Background(), []byte(`[{"title":"One"},{"title":"Two"}]`))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(got, "One") || !strings.Contains(got, "Two") {
		t.Fatalf("got %q", got)
	}
}

func TestJSONExtractorJSONL(t *testing.T) {
	e := &JSONExtractor{}
	data := []byte("{\"question\":\"Q1\",\"answer\":\"A1\"}\n{\"question\":\"Q2\",\"answer\":\"A2\"}\n")
	got, err := e.Extract(context.Background(), data)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for _, want := range []string{"Q1", "A1", "Q2", "A2"} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in %q", want, got)
		}
	}
}

func TestCSVExtractorDropsShortFields(t *testing.T) {
	e := &CSVExtractor{}
	got, err := e.Extract(context.Background(), []byte("id,description\n1,a short summary that exceeds twenty characters\n"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if strings.Contains(got, "1 |") || strings.HasPrefix(got, "1") {
		t.Fatalf("short field should have been dropped: %q", got)
	}
	if !strings.Contains(got, "a short summary") {
		t.Fatalf("long field missing: %q", got)
	}
}

func TestCSVExtractorNoRows(t *testing.T) {
	e := &CSVExtractor{}
	if _, err := e.Extract(context.Background(), []byte("")); err == nil {
		t.Fatalf("want error for empty CSV")
	}
}

func TestDOCXExtractorParagraphStream(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("word/document.xml")
	w.Write([]byte(`<?xml version="1.0"?>
<document xmlns:w="ns"><body>
  <p><r><t>Hello</t></r></p>
  <p><r><t> world</t></r></p>
</body></document>`))
	zw.Close()

	e := &DOCXExtractor{}
	got, err := e.Extract(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(got, "Hello") || !strings.Contains(got, "world") {
		t.Fatalf("got %q", got)
	}
}

func TestEPUBExtractorConcatenatesHTMLItems(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("chapter1.xhtml")
	w.Write([]byte("<html><body><p>Chapter one text.</p></body></html>"))
	w2, _ := zw.Create("chapter2.xhtml")
	w2.Write([]byte("<html><body><p>Chapter two text.</p></body></html>"))
	zw.Close()

	e := &EPUBExtractor{}
	got, err := e.Extract(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(got, "Chapter one") || !strings.Contains(got, "Chapter two") {
		t.Fatalf("got %q", got)
	}
}

func TestRegistryFallsBackToTxt(t *testing.T) {
	r := NewRegistry()
	e, err := r.Get("unknownformat")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, ok := e.(*TextExtractor); !ok {
		t.Fatalf("Get(unknown) = %T, want *TextExtractor", e)
	}
}

func TestDetectFormatByExtensionThenMIME(t *testing.T) {
	if got := DetectFormat(".pdf", ""); got != "pdf" {
		t.Fatalf("DetectFormat(.pdf) = %q", got)
	}
	if got := DetectFormat("", "application/pdf"); got != "pdf" {
		t.Fatalf("DetectFormat(mime pdf) = %q", got)
	}
	if got := DetectFormat("", ""); got != "txt" {
		t.Fatalf("DetectFormat(unknown) = %q, want txt", got)
	}
}
