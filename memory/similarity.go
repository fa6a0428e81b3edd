package memory

import "math"

// cosineKernel is the strategy behind CosineSimilarity. The scalar kernel is
// the default; an accelerated kernel is selected once at init when the CPU
// supports it (see similarity_amd64.go). Both paths are pure and must agree
// within 1e-5 absolute error.
type cosineKernel interface {
	cosine(a, b []float32) float64
}

var activeKernel cosineKernel = scalarKernel{}

func init() {
	if k := fastKernel(); k != nil {
		activeKernel = k
	}
}

// CosineSimilarity returns the cosine similarity of two vectors in [-1, 1].
// Empty vectors or mismatched lengths yield 0, as does a zero norm on either
// side; dimensionality mismatch degrades to zero rather than erroring.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	return activeKernel.cosine(a, b)
}

type scalarKernel struct{}

func (scalarKernel) cosine(a, b []float32) float64 {
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float64(dot) / (math.Sqrt(float64(normA)) * math.Sqrt(float64(normB)))
}
