// Package nlp implements the NLP pipeline: a level-selected (regex,
// stem/POS-lite, lemma/noun-chunk-lite) text analyzer that extracts
// entities, keywords, an extractive summary, and a sentiment score. The
// pipeline picks its strongest available level at construction and falls
// back silently to a weaker level on a per-call failure, the same
// discriminated-capability idiom the LLM provider factory and the PDF
// extractor's strategy chain use. The levels are fallbacks of decreasing
// strength with no bit-identical-output guarantee between them.
package nlp

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Level identifies which analysis strategy produced an NLPResult.
type Level string

const (
	LevelRegex Level = "regex"     // L1
	LevelNLTK  Level = "nltklite"  // L2
	LevelSpacy Level = "spacylite" // L3
)

// Entity is a named entity span found in text.
type Entity struct {
	Text string `json:"text"`
	Type string `json:"type"` // DATE, EMAIL, URL, ORG, PERSON
}

// NLPResult is the pipeline's uniform output contract, regardless of which
// level produced it.
type NLPResult struct {
	Cleaned            string   `json:"cleaned"`
	Language           string   `json:"language"`
	LanguageConfidence float64  `json:"language_confidence"`
	Entities           []Entity `json:"entities"`
	Keywords           []string `json:"keywords"`
	Summary            string   `json:"summary"`
	SentimentScore     float64  `json:"sentiment_score"`
	SentimentLabel     string   `json:"sentiment_label"`
	WordCount          int      `json:"word_count"`
	SentenceCount      int      `json:"sentence_count"`
	Topics             []string `json:"topics"`
	Level              Level    `json:"level"`
}

// Pipeline selects the strongest available analysis level at construction
// and exposes a single Analyze entrypoint.
type Pipeline struct {
	level Level
}

// New picks the strongest requested level; an empty/unknown preference
// resolves to the strongest level this package implements (LevelSpacy).
func New(preference Level) *Pipeline {
	switch preference {
	case LevelRegex, LevelNLTK, LevelSpacy:
		return &Pipeline{level: preference}
	default:
		return &Pipeline{level: LevelSpacy}
	}
}

// Analyze runs the pipeline's selected level, falling back one rung at a
// time on panic/failure so a single malformed input never aborts a batch.
func (p *Pipeline) Analyze(text string) (result NLPResult) {
	defer func() {
		if r := recover(); r != nil {
			result = analyzeRegex(text)
		}
	}()

	switch p.level {
	case LevelSpacy:
		return analyzeSpacyLite(text)
	case LevelNLTK:
		return analyzeNLTKLite(text)
	default:
		return analyzeRegex(text)
	}
}

// ---------------------------------------------------------------------------
// Regex tier: bounded regex entities, TF keywords, extractive summary,
// lexicon sentiment. The stronger tiers reuse these for summary/sentiment/
// sentence counting and swap only entity extraction and keyword scoring.
// ---------------------------------------------------------------------------

var entityPatterns = []struct {
	typ string
	re  *regexp.Regexp
}{
	{"EMAIL", regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)},
	{"URL", regexp.MustCompile(`https?://[^\s)>\]]+`)},
	{"DATE", regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b|\b\d{1,2}/\d{1,2}/\d{2,4}\b|\b(?:19|20)\d{2}\b`)},
	{"ORG", regexp.MustCompile(`\b[A-Z][A-Za-z&]*(?:\s+[A-Z][A-Za-z&]*)*\s+(?:Inc|Corp|Corporation|Ltd|LLC|GmbH|S\.p\.A\.|S\.r\.l\.|Group|Institute|University|Foundation)\b`)},
	{"PERSON", regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,2}\b`)},
}

var sentenceSplit = regexp.MustCompile(`[.!?]+\s+`)
var wordSplit = regexp.MustCompile(`[\p{L}\p{N}']+`)

var positiveLexicon = toSet("good", "great", "excellent", "positive", "benefit", "improve", "success",
	"effective", "efficient", "robust", "valid", "accurate", "strong", "advance", "optimal", "buono",
	"ottimo", "efficace", "positivo", "successo")

var negativeLexicon = toSet("bad", "poor", "negative", "fail", "failure", "weak", "invalid", "error",
	"problem", "risk", "limitation", "worse", "insufficient", "cattivo", "negativo", "fallimento",
	"problema", "rischio")

var stopwordsByLanguage = map[string]map[string]bool{
	"en": toSet("the", "a", "an", "and", "or", "but", "is", "are", "was", "were", "of", "in", "on",
		"to", "for", "with", "as", "by", "at", "from", "this", "that", "it", "be", "has", "have"),
	"it": toSet("il", "lo", "la", "i", "gli", "le", "un", "una", "e", "o", "ma", "di", "in", "su",
		"per", "con", "come", "da", "questo", "questa", "che", "è", "sono", "era", "erano"),
}

func toSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

func analyzeRegex(text string) NLPResult {
	cleaned := strings.TrimSpace(text)
	words := wordSplit.FindAllString(cleaned, -1)
	sentences := splitSentences(cleaned)
	lang, conf := detectLanguage(cleaned, words)

	return NLPResult{
		Cleaned:            cleaned,
		Language:           lang,
		LanguageConfidence: conf,
		Entities:           extractEntitiesRegex(cleaned),
		Keywords:           keywordsByTF(words, lang),
		Summary:            extractiveSummary(sentences, words, lang),
		SentimentScore:     sentimentScore(words),
		SentimentLabel:     sentimentLabel(sentimentScore(words)),
		WordCount:          len(words),
		SentenceCount:      len(sentences),
		Topics:             topKeywordsAsTopics(keywordsByTF(words, lang), 3),
		Level:              LevelRegex,
	}
}

// analyzeNLTKLite swaps in stem-normalized keyword frequency (collapsing
// simple suffixes before counting) in place of raw TF. Falls back to the
// regex tier's output on any failure.
func analyzeNLTKLite(text string) NLPResult {
	base := analyzeRegex(text)
	words := wordSplit.FindAllString(base.Cleaned, -1)
	stemmed := stemKeywordsByTF(words, base.Language)
	if len(stemmed) > 0 {
		base.Keywords = stemmed
		base.Topics = topKeywordsAsTopics(stemmed, 3)
	}
	base.Level = LevelNLTK
	return base
}

// analyzeSpacyLite swaps in noun-chunk-like multi-word keyword candidates
// (consecutive capitalized words) on top of the stem tier; every other
// piece of the result is reused from the weaker tiers.
func analyzeSpacyLite(text string) NLPResult {
	base := analyzeNLTKLite(text)
	chunks := nounChunkCandidates(base.Cleaned)
	if len(chunks) > 0 {
		base.Keywords = mergeKeywordLists(chunks, base.Keywords, 10)
		base.Topics = topKeywordsAsTopics(base.Keywords, 3)
	}
	base.Level = LevelSpacy
	return base
}

func extractEntitiesRegex(text string) []Entity {
	var out []Entity
	seen := map[string]bool{}
	for _, p := range entityPatterns {
		for _, m := range p.re.FindAllString(text, -1) {
			key := p.typ + "|" + m
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, Entity{Text: m, Type: p.typ})
		}
	}
	return out
}

func splitSentences(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	parts := sentenceSplit.Split(text, -1)
	out := parts[:0]
	for _, s := range parts {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// detectLanguage mirrors the Preprocessor's overlap-scoring approach
// (chunker.Preprocessor.DetectLanguage) at the NLP layer so the pipeline
// can run standalone against already-cleaned text.
func detectLanguage(text string, words []string) (string, float64) {
	if len(words) < 5 {
		return "unknown", 0
	}
	lower := make([]string, len(words))
	for i, w := range words {
		lower[i] = strings.ToLower(w)
	}
	best, bestScore := "unknown", 0
	for lang, stop := range stopwordsByLanguage {
		score := 0
		for _, w := range lower {
			if stop[w] {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = lang, score
		}
	}
	if bestScore == 0 {
		return "unknown", 0
	}
	conf := float64(bestScore) / float64(len(words))
	if conf > 1 {
		conf = 1
	}
	if conf < 0 {
		conf = 0
	}
	return best, conf
}

func keywordsByTF(words []string, lang string) []string {
	stop := stopwordsByLanguage[lang]
	freq := map[string]int{}
	for _, w := range words {
		lw := strings.ToLower(w)
		if len(lw) < 3 || stop[lw] {
			continue
		}
		if isAllDigits(lw) {
			continue
		}
		freq[lw]++
	}
	return topN(freq, 10)
}

func stemKeywordsByTF(words []string, lang string) []string {
	stop := stopwordsByLanguage[lang]
	freq := map[string]int{}
	for _, w := range words {
		lw := strings.ToLower(w)
		if len(lw) < 3 || stop[lw] {
			continue
		}
		if isAllDigits(lw) {
			continue
		}
		freq[stem(lw)]++
	}
	return topN(freq, 10)
}

// stem strips a small set of common suffixes; a lightweight stand-in for a
// real Porter stemmer.
func stem(w string) string {
	for _, suf := range []string{"ing", "tion", "zione", "mente", "ed", "es", "s"} {
		if strings.HasSuffix(w, suf) && len(w) > len(suf)+2 {
			return w[:len(w)-len(suf)]
		}
	}
	return w
}

func nounChunkCandidates(text string) []string {
	words := strings.Fields(text)
	var out []string
	i := 0
	for i < len(words) {
		if startsCapital(words[i]) {
			j := i + 1
			for j < len(words) && startsCapital(words[j]) {
				j++
			}
			if j-i >= 2 {
				out = append(out, strings.ToLower(strings.Join(words[i:j], " ")))
			}
			i = j
		} else {
			i++
		}
	}
	return out
}

func startsCapital(w string) bool {
	w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) })
	if w == "" {
		return false
	}
	r := []rune(w)[0]
	return unicode.IsUpper(r)
}

func mergeKeywordLists(primary, secondary []string, limit int) []string {
	seen := map[string]bool{}
	var out []string
	for _, lists := range [][]string{primary, secondary} {
		for _, k := range lists {
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, k)
			if len(out) >= limit {
				return out
			}
		}
	}
	return out
}

func topN(freq map[string]int, n int) []string {
	type kv struct {
		k string
		v int
	}
	list := make([]kv, 0, len(freq))
	for k, v := range freq {
		list = append(list, kv{k, v})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].v != list[j].v {
			return list[i].v > list[j].v
		}
		return list[i].k < list[j].k
	})
	if len(list) > n {
		list = list[:n]
	}
	out := make([]string, len(list))
	for i, e := range list {
		out[i] = e.k
	}
	return out
}

func topKeywordsAsTopics(keywords []string, n int) []string {
	if len(keywords) > n {
		return append([]string{}, keywords[:n]...)
	}
	return append([]string{}, keywords...)
}

// extractiveSummary scores sentences by normalized term frequency, with a
// 1.5x bonus to the first sentence and a 1.2x bonus to the last, and joins
// the top-scoring sentences (capped at 500 chars) in their original order.
func extractiveSummary(sentences []string, words []string, lang string) string {
	if len(sentences) == 0 {
		return ""
	}
	if len(sentences) == 1 {
		return truncate(sentences[0], 500)
	}
	freq := map[string]int{}
	stop := stopwordsByLanguage[lang]
	for _, w := range words {
		lw := strings.ToLower(w)
		if stop[lw] || len(lw) < 3 {
			continue
		}
		freq[lw]++
	}
	maxFreq := 1
	for _, c := range freq {
		if c > maxFreq {
			maxFreq = c
		}
	}

	type scored struct {
		idx   int
		text  string
		score float64
	}
	scoredSentences := make([]scored, len(sentences))
	for i, s := range sentences {
		sw := wordSplit.FindAllString(s, -1)
		var sum float64
		for _, w := range sw {
			sum += float64(freq[strings.ToLower(w)]) / float64(maxFreq)
		}
		score := sum
		if len(sw) > 0 {
			score /= float64(len(sw))
		}
		if i == 0 {
			score *= 1.5
		}
		if i == len(sentences)-1 {
			score *= 1.2
		}
		scoredSentences[i] = scored{i, s, score}
	}

	topK := 3
	if topK > len(scoredSentences) {
		topK = len(scoredSentences)
	}
	ranked := append([]scored{}, scoredSentences...)
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	ranked = ranked[:topK]
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].idx < ranked[j].idx })

	var b strings.Builder
	for i, r := range ranked {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(r.text)
	}
	return truncate(b.String(), 500)
}

func sentimentScore(words []string) float64 {
	var pos, neg int
	for _, w := range words {
		lw := strings.ToLower(w)
		if positiveLexicon[lw] {
			pos++
		}
		if negativeLexicon[lw] {
			neg++
		}
	}
	if pos+neg == 0 {
		return 0
	}
	return float64(pos-neg) / float64(pos+neg)
}

func sentimentLabel(score float64) string {
	switch {
	case score > 0.1:
		return "positive"
	case score < -0.1:
		return "negative"
	default:
		return "neutral"
	}
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(s) > 0
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return strings.TrimSpace(s[:max])
}
