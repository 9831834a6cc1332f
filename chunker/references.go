package chunker

import (
	"regexp"
	"sort"
)

// ---------------------------------------------------------------------------
// Standards reference detection
// ---------------------------------------------------------------------------

// standardRefPatterns matches identifiers of published technical standards
// (ISO 9001:2015, IEC 61508, IEEE 754, EN 1993-1-1, RFC 9110, ...).
// Detected references are fed into a document's knowledge-graph entities so
// they survive distillation even when the full text is not retained.
var standardRefPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bISO(?:/IEC)?\s+\d[\d\-]*(?::\d{4})?`),
	regexp.MustCompile(`\bIEC\s+\d[\d\-]*(?::\d{4})?`),
	regexp.MustCompile(`\bIEEE\s+(?:Std\s+)?\d[\d.]*`),
	regexp.MustCompile(`\b(?:BS\s+)?EN\s+\d[\d\-]*`),
	regexp.MustCompile(`\bDIN\s+(?:EN\s+)?\d[\d\-]*`),
	regexp.MustCompile(`\bASTM\s+[A-Z]\d+(?:-\d+)?`),
	regexp.MustCompile(`\bNFPA\s+\d+`),
	regexp.MustCompile(`\bMIL-STD-\d+[A-Z]?`),
	regexp.MustCompile(`\bRFC\s+\d{3,5}\b`),
}

// DetectStandardRefs returns the distinct standards identifiers found in
// text, ordered by position. A span already claimed by an earlier pattern
// is not reported again by a later one ("ISO/IEC 27001" yields one
// reference, not an ISO and an IEC match).
func DetectStandardRefs(text string) []string {
	type span struct{ start, end int }
	var spans []span
	refs := map[span]string{}

	overlaps := func(s span) bool {
		for _, o := range spans {
			if s.start < o.end && o.start < s.end {
				return true
			}
		}
		return false
	}

	for _, re := range standardRefPatterns {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			s := span{loc[0], loc[1]}
			if overlaps(s) {
				continue
			}
			spans = append(spans, s)
			refs[s] = text[s.start:s.end]
		}
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	seen := map[string]bool{}
	var out []string
	for _, s := range spans {
		ref := refs[s]
		if seen[ref] {
			continue
		}
		seen[ref] = true
		out = append(out, ref)
	}
	return out
}

// HasStandardRef reports whether text cites at least one standard.
func HasStandardRef(text string) bool {
	for _, re := range standardRefPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
