//go:build !amd64

package memory

// fastKernel has no accelerated implementation on this architecture.
func fastKernel() cosineKernel {
	return nil
}
