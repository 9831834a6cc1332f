package chunker

import (
	"strings"
	"testing"
)

func TestCleanStripsHTMLAndMojibake(t *testing.T) {
	p := New(Config{})
	got := p.Clean("<p>CafÃ©</p> <b>bold</b>&nbsp;text")
	if strings.Contains(got, "<p>") || strings.Contains(got, "<b>") {
		t.Fatalf("tags not stripped: %q", got)
	}
	if strings.Contains(got, "Ã©") {
		t.Fatalf("mojibake not repaired: %q", got)
	}
}

func TestCleanCollapsesWhitespaceAndPageNumbers(t *testing.T) {
	p := New(Config{})
	got := p.Clean("Paragraph one.\n\n42\n\nParagraph two.")
	if strings.Contains(got, "42") {
		t.Fatalf("isolated page number not stripped: %q", got)
	}
}

func TestDetectLanguageEnglish(t *testing.T) {
	p := New(Config{})
	text := strings.Repeat("the cat is on the mat and it is with the dog for this and that ", 3)
	res := p.DetectLanguage(text)
	if res.Language != "english" {
		t.Fatalf("Language = %q, want english", res.Language)
	}
	if res.Confidence <= 0 || res.Confidence > 1 {
		t.Fatalf("Confidence = %v, out of [0,1]", res.Confidence)
	}
}

func TestDetectLanguageUnknownForShortInput(t *testing.T) {
	p := New(Config{})
	res := p.DetectLanguage("hi there")
	if res.Language != "unknown" {
		t.Fatalf("Language = %q, want unknown", res.Language)
	}
}

func TestExtractMetadataISBNDOIYearAuthor(t *testing.T) {
	p := New(Config{})
	text := "Some Book\nby John Q. Smith\nISBN: 978-3-16-148410-0\nPublished 2019, reprinted 2019, first drafted 2001.\nhttps://doi.org/ (ignore)\nDOI: 10.1234/abcd.5678\n"
	meta := p.ExtractMetadata(text)
	if meta.ISBN != "9783161484100" {
		t.Fatalf("ISBN = %q", meta.ISBN)
	}
	if meta.DOI != "10.1234/abcd.5678" {
		t.Fatalf("DOI = %q", meta.DOI)
	}
	if meta.Year != 2019 {
		t.Fatalf("Year = %d, want 2019 (mode)", meta.Year)
	}
	if meta.Author != "John Q. Smith" {
		t.Fatalf("Author = %q", meta.Author)
	}
}

func TestChunkSplitsOnHeadingsAndSize(t *testing.T) {
	p := New(Config{MaxTokens: 5, OverlapTokens: 1}) // maxChars=20, overlapChars=4
	text := "# Intro\n\nShort para one.\n\nShort para two that is longer than before.\n\n# Chapter Two\n\nMore text here."
	chunks := p.Chunk(text)
	if len(chunks) == 0 {
		t.Fatalf("expected at least one chunk")
	}
	foundIntro, foundChapterTwo := false, false
	for _, c := range chunks {
		if c.SectionTitle == "Intro" {
			foundIntro = true
		}
		if c.SectionTitle == "Chapter Two" {
			foundChapterTwo = true
		}
	}
	if !foundIntro || !foundChapterTwo {
		t.Fatalf("expected chunks tagged with both section titles, got %+v", chunks)
	}
}

func TestChunkOverlapCarriesTailOfPreviousChunk(t *testing.T) {
	p := New(Config{MaxTokens: 512, OverlapTokens: 64}) // maxChars=2048, overlapChars=256
	var b strings.Builder
	b.WriteString("# Introduction\n\n")
	for i := 0; i < 12; i++ {
		b.WriteString(strings.Repeat("Lorem ipsum dolor sit amet consectetur. ", 12))
		b.WriteString("\n\n")
	}
	chunks := p.Chunk(b.String())
	if len(chunks) < 2 {
		t.Fatalf("expected at least two chunks, got %d", len(chunks))
	}
	if chunks[0].SectionTitle != "Introduction" {
		t.Fatalf("first chunk section = %q, want Introduction", chunks[0].SectionTitle)
	}
	prevTail := strings.TrimSpace(chunks[0].Text[len(chunks[0].Text)-256:])
	if !strings.HasPrefix(chunks[1].Text, prevTail) {
		t.Fatalf("second chunk does not begin with the previous chunk's last 256 chars")
	}
}

func TestChunkEmptyInputProducesZeroChunks(t *testing.T) {
	p := New(Config{})
	if chunks := p.Chunk("   \n\n  "); len(chunks) != 0 {
		t.Fatalf("expected zero chunks for blank input, got %d", len(chunks))
	}
}

func TestChunkOversizedParagraphKeptIntact(t *testing.T) {
	p := New(Config{MaxTokens: 2, OverlapTokens: 0}) // maxChars=8
	long := strings.Repeat("word ", 20)
	chunks := p.Chunk(long)
	if len(chunks) != 1 {
		t.Fatalf("expected the oversized paragraph to stay in one chunk, got %d chunks", len(chunks))
	}
}

func TestChunkLastChunkFlushedUnconditionally(t *testing.T) {
	p := New(Config{MaxTokens: 512, OverlapTokens: 64})
	chunks := p.Chunk("Only one short paragraph.")
	if len(chunks) != 1 {
		t.Fatalf("expected exactly one chunk, got %d", len(chunks))
	}
}

func TestChunkRecordsContentType(t *testing.T) {
	p := New(Config{MaxTokens: 512, OverlapTokens: 0})
	chunks := p.Chunk("The vendor SHALL deliver all widgets within thirty days.")
	if len(chunks) != 1 {
		t.Fatalf("expected one chunk, got %d", len(chunks))
	}
	if chunks[0].ContentType != "requirement" {
		t.Fatalf("content type = %q, want requirement", chunks[0].ContentType)
	}

	chunks = p.Chunk("Just an ordinary sentence about widgets.")
	if len(chunks) != 1 || chunks[0].ContentType != "paragraph" {
		t.Fatalf("expected a paragraph chunk, got %+v", chunks)
	}
}

func TestIsHeadingRecognizesAllPatterns(t *testing.T) {
	cases := []string{
		"# Markdown Heading",
		"CAPITOLO 3",
		"1.2.3 Numbered Title",
		"INTRODUCTION",
		"Article IV",
		"Appendix A",
	}
	for _, c := range cases {
		if !IsHeading(c) {
			t.Errorf("IsHeading(%q) = false, want true", c)
		}
	}
	if IsHeading("just a normal sentence.") {
		t.Fatalf("IsHeading matched an ordinary sentence")
	}
}
