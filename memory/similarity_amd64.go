//go:build amd64

package memory

import (
	"math"

	"github.com/viterin/vek/vek32"
	"golang.org/x/sys/cpu"
)

// vekKernel computes dot products and norms through vek's SIMD routines.
type vekKernel struct{}

func (vekKernel) cosine(a, b []float32) float64 {
	dot := float64(vek32.Dot(a, b))
	normA := math.Sqrt(float64(vek32.Dot(a, a)))
	normB := math.Sqrt(float64(vek32.Dot(b, b)))
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (normA * normB)
}

// fastKernel returns the accelerated kernel when the CPU supports AVX2,
// otherwise nil to keep the scalar default.
func fastKernel() cosineKernel {
	if !cpu.X86.HasAVX2 {
		return nil
	}
	return vekKernel{}
}
