package quantize

import (
	"math"
	"testing"
)

// TestQuantization checks the extreme-component byte values and the
// self-cosine of a known vector.
func TestQuantization(t *testing.T) {
	v := make([]float32, 384)
	v[0] = 1.0
	v[1] = 0.0
	v[2] = -1.0
	for i := 3; i < 384; i++ {
		v[i] = 0.5
	}

	q, norm := Quantize(v)
	if q[0] != 127 {
		t.Fatalf("q[0] = %d, want 127", q[0])
	}
	if q[1] != 0 {
		t.Fatalf("q[1] = %d, want 0", q[1])
	}
	if q[2] != -127 {
		t.Fatalf("q[2] = %d, want -127", q[2])
	}

	var want float64
	for _, x := range v {
		want += float64(x) * float64(x)
	}
	want = math.Sqrt(want)
	if math.Abs(float64(norm)-want) > 1e-3 {
		t.Fatalf("norm = %v, want ~%v", norm, want)
	}

	cos := CosineInt8(q, q)
	if cos < 0.99 || cos > 1.0 {
		t.Fatalf("self cosine = %v, want in [0.99, 1.0]", cos)
	}
}

func TestQuantizeZeroNorm(t *testing.T) {
	v := make([]float32, 8)
	q, norm := Quantize(v)
	if norm != 0 {
		t.Fatalf("norm = %v, want 0", norm)
	}
	for _, b := range q {
		if b != 0 {
			t.Fatalf("expected all-zero bytes for zero-norm vector")
		}
	}
}

func TestRoundTripErrorBound(t *testing.T) {
	v := []float32{0.3, -0.6, 0.8, 0.1, -0.2, 0.9, -0.4, 0.05}
	q, norm := Quantize(v)
	got := Dequantize(q, norm)

	var diffSq, normSq float64
	for i := range v {
		d := float64(got[i]) - float64(v[i])
		diffSq += d * d
		normSq += float64(v[i]) * float64(v[i])
	}
	rel := math.Sqrt(diffSq) / math.Sqrt(normSq)
	if rel >= 0.02 {
		t.Fatalf("relative error %v exceeds 0.02", rel)
	}
}

func TestCosineInt8MismatchedLengths(t *testing.T) {
	a := []int8{1, 2, 3}
	b := []int8{1, 2}
	if got := CosineInt8(a, b); got != 0 {
		t.Fatalf("expected 0 for mismatched lengths, got %v", got)
	}
}

func TestCosineApproximatesFloatCosine(t *testing.T) {
	a := []float32{1, 2, 3, 4, -1, -2}
	b := []float32{1, 1, 3, 3, -1, -1}

	qa, _ := Quantize(a)
	qb, _ := Quantize(b)

	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	floatCos := dot / (math.Sqrt(na) * math.Sqrt(nb))

	diff := math.Abs(CosineInt8(qa, qb) - floatCos)
	if diff > 0.02 {
		t.Fatalf("int8 cosine diverges from float cosine by %v", diff)
	}
}
