package memory

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error kinds for the engine and its collaborators. Match with errors.Is;
// operations wrap these with enough context to identify the failing call.
// Similarity and retention computation never fail.
var (
	// ErrNotFound is returned by Get and Remove for an absent record.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidParameter is returned for caller errors such as a ranked
	// query limit of 0 or a maintenance threshold outside [0, 1].
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrSerialization is returned by persistence collaborators for
	// encode/decode failures, including snapshot format-version mismatches.
	ErrSerialization = errors.New("serialization error")
	// ErrStorage is returned by persistence collaborators for backend I/O
	// failures.
	ErrStorage = errors.New("storage error")
)

func notFoundErr(id uuid.UUID) error {
	return fmt.Errorf("record %s: %w", id, ErrNotFound)
}

func limitErr(limit int) error {
	return fmt.Errorf("find relevant: limit %d must be >= 1: %w", limit, ErrInvalidParameter)
}

func thresholdErr(threshold float64) error {
	return fmt.Errorf("maintain: threshold %g outside [0, 1]: %w", threshold, ErrInvalidParameter)
}
