package memory

import (
	"math"
	"math/rand"
	"testing"
)

func randVector(rng *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = rng.Float32()*2 - 1
	}
	return v
}

func TestCosineSimilaritySymmetry(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		a := randVector(rng, 64)
		b := randVector(rng, 64)
		ab := CosineSimilarity(a, b)
		ba := CosineSimilarity(b, a)
		if math.Abs(ab-ba) > 1e-6 {
			t.Fatalf("iteration %d: asymmetric similarity %v vs %v", i, ab, ba)
		}
	}
}

func TestCosineSimilaritySelf(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 200; i++ {
		a := randVector(rng, 32)
		if sim := CosineSimilarity(a, a); math.Abs(sim-1.0) > 1e-5 {
			t.Fatalf("iteration %d: self similarity %v, want 1", i, sim)
		}
	}
}

func TestCosineSimilarityBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	for i := 0; i < 500; i++ {
		a := randVector(rng, 16)
		b := randVector(rng, 16)
		sim := CosineSimilarity(a, b)
		if sim < -1.0000001 || sim > 1.0000001 || math.IsNaN(sim) {
			t.Fatalf("iteration %d: similarity %v outside [-1, 1]", i, sim)
		}
	}
}

func TestCosineSimilarityKnownValues(t *testing.T) {
	if sim := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); sim != 0 {
		t.Errorf("orthogonal vectors: got %v, want 0", sim)
	}
	if sim := CosineSimilarity([]float32{1, 0}, []float32{-1, 0}); math.Abs(sim+1) > 1e-6 {
		t.Errorf("opposed vectors: got %v, want -1", sim)
	}
}

func TestCosineSimilarityDegenerateInputs(t *testing.T) {
	if sim := CosineSimilarity(nil, []float32{1}); sim != 0 {
		t.Errorf("nil vector: got %v, want 0", sim)
	}
	if sim := CosineSimilarity([]float32{1, 2}, []float32{1}); sim != 0 {
		t.Errorf("dimension mismatch: got %v, want 0", sim)
	}
	if sim := CosineSimilarity([]float32{0, 0}, []float32{1, 1}); sim != 0 {
		t.Errorf("zero norm: got %v, want 0", sim)
	}
}

// The accelerated kernel, when available on this CPU, must agree with the
// scalar reference within 1e-5.
func TestKernelsAgree(t *testing.T) {
	fast := fastKernel()
	if fast == nil {
		t.Skip("no accelerated kernel on this platform")
	}
	scalar := scalarKernel{}
	rng := rand.New(rand.NewSource(17))
	for _, dim := range []int{1, 3, 8, 64, 257, 1024} {
		for i := 0; i < 50; i++ {
			a := randVector(rng, dim)
			b := randVector(rng, dim)
			s := scalar.cosine(a, b)
			f := fast.cosine(a, b)
			if math.Abs(s-f) > 1e-5 {
				t.Fatalf("dim %d iteration %d: scalar %v, fast %v", dim, i, s, f)
			}
		}
	}
}
