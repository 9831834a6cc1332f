// Package chunker implements the preprocessor: Clean -> Detect language ->
// Extract metadata -> Chunk, turning an extractor's raw text into a
// sequence of Chunks ready for the NLP pipeline, the embedding engine, and
// the distillation store.
package chunker

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Config controls the Preprocessor's chunk sizing and optional cleaning
// behavior.
type Config struct {
	MaxTokens     int // chunk grows until len > MaxTokens*4 chars
	OverlapTokens int // carryover size in chars is OverlapTokens*4
	StripURLs     bool
	StripEmails   bool
}

// Chunk is one unit of chunked, section-tagged text. ContentType is the
// structural classification of the chunk's text ("table", "definition",
// "requirement", "section", or "paragraph").
type Chunk struct {
	Text         string
	SectionTitle string
	ContentType  string
	Index        int
}

// Metadata holds the fields extracted from the document's opening bytes.
type Metadata struct {
	ISBN   string
	DOI    string
	Year   int
	Author string
}

// LanguageResult is the outcome of stopword-overlap language detection.
type LanguageResult struct {
	Language   string
	Confidence float64
}

// Preprocessor runs the Clean/Detect-language/Extract-metadata/Chunk
// pipeline.
type Preprocessor struct {
	cfg Config
}

// New returns a Preprocessor with cfg; zero values default to 512 max
// tokens and 64 overlap tokens.
func New(cfg Config) *Preprocessor {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 512
	}
	if cfg.OverlapTokens == 0 {
		cfg.OverlapTokens = 64
	}
	return &Preprocessor{cfg: cfg}
}

// Process runs the full pipeline and returns the resulting chunks plus the
// detected language and extracted metadata.
func (p *Preprocessor) Process(text string, extraMetadata map[string]string) ([]Chunk, LanguageResult, Metadata) {
	cleaned := p.Clean(text)
	lang := p.DetectLanguage(cleaned)
	meta := p.ExtractMetadata(cleaned)
	chunks := p.Chunk(cleaned)
	return chunks, lang, meta
}

// ---------------------------------------------------------------------------
// Step 1: Clean
// ---------------------------------------------------------------------------

var (
	htmlTagPattern      = regexp.MustCompile(`<[^>]+>`)
	htmlEntityPattern   = regexp.MustCompile(`&[a-zA-Z]+;|&#\d+;`)
	urlPattern          = regexp.MustCompile(`https?://\S+`)
	emailPattern        = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	bracketRefPattern   = regexp.MustCompile(`\[\d+(?:,\s*\d+)*\]|\(\d{4}[a-z]?\)`)
	isolatedPagePattern = regexp.MustCompile(`(?m)^\s*\d{1,4}\s*$`)
	whitespacePattern   = regexp.MustCompile(`[ \t]+`)
	blankLinesPattern   = regexp.MustCompile(`\n{3,}`)
)

// ocrArtifactPatterns catches common scanner-induced garbage: runs of a
// single non-alphanumeric character, and isolated single-letter "words"
// that OCR often inserts where an image or rule line was.
var ocrArtifactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^[^\w\s]{4,}$`),
	regexp.MustCompile(`\s[|~^]{2,}\s`),
}

// mojibakeTable repairs a fixed set of UTF-8-decoded-as-Latin-1 sequences,
// the most common mis-encoding artifact in scraped/scanned text.
var mojibakeTable = []struct{ from, to string }{
	{"Ã©", "é"}, {"Ã¨", "è"}, {"Ã ", "à"}, {"Ã¹", "ù"},
	{"Ã¼", "ü"}, {"Ã¶", "ö"}, {"Ã¤", "ä"}, {"Ã±", "ñ"},
	{"â€™", "'"}, {"â€œ", "“"}, {"â€\x9d", "”"},
	{"â€“", "–"}, {"â€”", "—"}, {"Â ", " "},
}

// Clean normalizes and de-noises text: NFKC, control chars, HTML,
// bracket refs, OCR artifacts, page numbers, mojibake, whitespace.
func (p *Preprocessor) Clean(text string) string {
	text = norm.NFKC.String(text)
	text = stripControlChars(text)
	for _, m := range mojibakeTable {
		text = strings.ReplaceAll(text, m.from, m.to)
	}
	text = htmlTagPattern.ReplaceAllString(text, " ")
	text = htmlEntityPattern.ReplaceAllString(text, " ")
	if p.cfg.StripURLs {
		text = urlPattern.ReplaceAllString(text, " ")
	}
	if p.cfg.StripEmails {
		text = emailPattern.ReplaceAllString(text, " ")
	}
	text = bracketRefPattern.ReplaceAllString(text, "")
	for _, re := range ocrArtifactPatterns {
		text = re.ReplaceAllString(text, " ")
	}
	text = isolatedPagePattern.ReplaceAllString(text, "")
	text = whitespacePattern.ReplaceAllString(text, " ")
	text = blankLinesPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// Step 2: Detect language
// ---------------------------------------------------------------------------

// stopwords holds a small, representative set per language; overlap with
// these against the document's tokens drives the scoring.
var stopwords = map[string]map[string]bool{
	"english":    toSet("the", "and", "of", "to", "in", "is", "that", "it", "with", "for", "as", "was", "on", "are", "this"),
	"italian":    toSet("il", "la", "di", "che", "e", "un", "una", "per", "con", "del", "non", "si", "sono", "questo", "come"),
	"spanish":    toSet("el", "la", "de", "que", "y", "un", "una", "por", "con", "del", "no", "se", "son", "este", "como"),
	"french":     toSet("le", "la", "de", "et", "un", "une", "pour", "avec", "du", "ne", "se", "sont", "ce", "comme", "est"),
	"portuguese": toSet("o", "a", "de", "que", "e", "um", "uma", "por", "com", "do", "não", "se", "são", "este", "como"),
	"german":     toSet("der", "die", "das", "und", "ist", "ein", "eine", "mit", "für", "nicht", "sich", "sind", "dieser", "wie", "von"),
}

func toSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

var tokenPattern = regexp.MustCompile(`[\p{L}]+`)

// DetectLanguage scores stopword overlap per language and picks the max.
func (p *Preprocessor) DetectLanguage(text string) LanguageResult {
	tokens := tokenPattern.FindAllString(strings.ToLower(text), -1)
	if len(tokens) < 5 {
		return LanguageResult{Language: "unknown", Confidence: 0}
	}

	bestLang := "unknown"
	bestScore := 0.0
	allNegativeOrZero := true
	for lang, set := range stopwords {
		hits := 0
		for _, tok := range tokens {
			if set[tok] {
				hits++
			}
		}
		score := float64(hits) / float64(len(tokens))
		if score > 0 {
			allNegativeOrZero = false
		}
		if score > bestScore {
			bestScore = score
			bestLang = lang
		}
	}
	if allNegativeOrZero {
		return LanguageResult{Language: "unknown", Confidence: 0}
	}

	confidence := bestScore * 4 // stopwords are a small fraction of tokens; scale into a usable range
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}
	return LanguageResult{Language: bestLang, Confidence: confidence}
}

// ---------------------------------------------------------------------------
// Step 3: Extract metadata
// ---------------------------------------------------------------------------

var (
	isbnPattern = regexp.MustCompile(`(?i)\bISBN(?:-1[03])?:?\s*([0-9][0-9\- ]{9,16}[0-9Xx])`)
	doiPattern  = regexp.MustCompile(`\b10\.\d{4,9}/\S+\b`)
	yearPattern = regexp.MustCompile(`\b(1[4-9]\d{2}|20\d{2})\b`)
	authorLabel = regexp.MustCompile(`(?i)\b(?:by|di|a cura di)\s+([A-Z][\p{L}'.-]+(?:\s+[A-Z][\p{L}'.-]+){0,3})`)
)

// ExtractMetadata scans bounded prefixes of text for ISBN/DOI, publication
// year, and author.
func (p *Preprocessor) ExtractMetadata(text string) Metadata {
	var meta Metadata

	head5k := headBytes(text, 5*1024)
	if m := isbnPattern.FindStringSubmatch(head5k); m != nil {
		meta.ISBN = strings.Map(func(r rune) rune {
			if r == '-' || r == ' ' {
				return -1
			}
			return r
		}, m[1])
	}
	if m := doiPattern.FindString(head5k); m != "" {
		meta.DOI = m
	}

	head2k := headBytes(text, 2*1024)
	years := yearPattern.FindAllString(head2k, -1)
	if len(years) > 0 {
		meta.Year = modeYear(years)
	}

	head3k := headBytes(text, 3*1024)
	if m := authorLabel.FindStringSubmatch(head3k); m != nil {
		meta.Author = strings.TrimSpace(m[1])
	}

	return meta
}

func headBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func modeYear(years []string) int {
	counts := make(map[int]int, len(years))
	for _, y := range years {
		n, err := strconv.Atoi(y)
		if err != nil {
			continue
		}
		counts[n]++
	}
	best, bestCount := 0, 0
	// Iterate in sorted key order so ties resolve deterministically.
	keys := make([]int, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		if counts[k] > bestCount {
			best, bestCount = k, counts[k]
		}
	}
	return best
}

// ---------------------------------------------------------------------------
// Step 4: Chunk
// ---------------------------------------------------------------------------

// Chunk splits text on paragraphs, starting a new section whenever a
// paragraph matches a section-title pattern, and flushing the current
// chunk once it would exceed MaxTokens*4 characters.
func (p *Preprocessor) Chunk(text string) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	paragraphs := splitParagraphs(text)
	maxChars := p.cfg.MaxTokens * 4
	overlapChars := p.cfg.OverlapTokens * 4

	var chunks []Chunk
	var cur strings.Builder
	sectionTitle := ""
	index := 0

	flush := func() {
		content := strings.TrimSpace(cur.String())
		if content == "" {
			return
		}
		chunks = append(chunks, Chunk{
			Text:         content,
			SectionTitle: sectionTitle,
			ContentType:  ContentType(content),
			Index:        index,
		})
		index++

		if overlapChars > 0 && len(content) > overlapChars {
			cur.Reset()
			cur.WriteString(content[len(content)-overlapChars:])
		} else {
			cur.Reset()
		}
	}

	for _, para := range paragraphs {
		trimmed := strings.TrimSpace(para)
		if trimmed == "" {
			continue
		}

		if IsHeading(firstLine(trimmed)) {
			flush()
			sectionTitle = HeadingTitle(firstLine(trimmed))
			continue
		}

		if cur.Len() > 0 && cur.Len()+len(trimmed)+1 > maxChars {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(trimmed)

		// A single paragraph that alone exceeds the limit is kept intact
		// rather than split mid-word.
	}
	flush()

	return chunks
}

var paragraphSplitPattern = regexp.MustCompile(`\n\s*\n`)

func splitParagraphs(text string) []string {
	return paragraphSplitPattern.Split(text, -1)
}
