package chunker

import (
	"reflect"
	"testing"
)

func TestDetectStandardRefs(t *testing.T) {
	text := "Designed per ISO 9001:2015 and IEC 61508. Wire framing follows RFC 9110. See also ISO 9001:2015."
	got := DetectStandardRefs(text)
	want := []string{"ISO 9001:2015", "IEC 61508", "RFC 9110"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("DetectStandardRefs = %v, want %v", got, want)
	}
}

func TestDetectStandardRefsCombinedPrefixIsOneMatch(t *testing.T) {
	got := DetectStandardRefs("Certified to ISO/IEC 27001.")
	if len(got) != 1 || got[0] != "ISO/IEC 27001" {
		t.Fatalf("DetectStandardRefs = %v, want one ISO/IEC 27001 reference", got)
	}
}

func TestHasStandardRef(t *testing.T) {
	if !HasStandardRef("compliant with DIN EN 1993") {
		t.Fatal("expected a match for DIN EN 1993")
	}
	if HasStandardRef("no citations in this sentence") {
		t.Fatal("unexpected match in plain prose")
	}
}
