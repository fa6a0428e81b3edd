// Package memory implements a retention-scoring memory engine for simulated
// agents. Records carry a semantic vector plus decay and affect attributes;
// ranked retrieval combines cosine similarity with a time-decaying retention
// model, reinforces what it returns, and maintenance evicts records whose
// retention has fallen below a threshold. Three store variants (single-owner,
// concurrent, sharded) share identical ranking semantics and differ only in
// their concurrency substrate.
package memory

import (
	"time"

	"github.com/google/uuid"
)

// DecayParams are per-record constants controlling the forgetting curve.
type DecayParams struct {
	// Alpha is the shape exponent of the power-law decay.
	Alpha float64 `json:"alpha"`
	// Beta0 is the base time scale; the live decay rate scales it by the
	// agent's current stress and fatigue.
	Beta0 float64 `json:"beta0"`
}

// DefaultDecayParams returns the standard forgetting-curve constants.
func DefaultDecayParams() DecayParams {
	return DecayParams{Alpha: 0.8, Beta0: 0.01}
}

// Record is one stored memory unit.
//
// ID, SemanticVector, Emotion, AgeAtFormation, CapacityWeight, Timestamp and
// DecayParams are fixed at construction. LastRetrieved, RetrievalCount,
// RecallHistory and MemoryStrength are mutated only by Reinforce, which the
// stores invoke on ranked-query results. Fields are exported for
// serialization; back-dating Timestamp is a test-harness affordance only.
type Record struct {
	ID             uuid.UUID      `json:"id"`
	SemanticVector []float32      `json:"semantic_vector"`
	Emotion        float64        `json:"emotion"`
	AgeAtFormation float64        `json:"age_at_formation"`
	CapacityWeight float64        `json:"capacity_weight"`
	Timestamp      time.Time      `json:"timestamp"`
	LastRetrieved  time.Time      `json:"last_retrieved"`
	RetrievalCount int            `json:"retrieval_count"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	RecallHistory  []time.Time    `json:"recall_history,omitempty"`
	MemoryStrength float64        `json:"memory_strength"`
	DecayParams    DecayParams    `json:"decay_params"`
}

// NewRecord creates a record with a fresh ID and the current wall-clock
// timestamp. Emotion is clamped to [-1, 1] and capacityWeight to [0, 1].
func NewRecord(vector []float32, emotion, ageAtFormation, capacityWeight float64) *Record {
	now := time.Now()
	return &Record{
		ID:             uuid.New(),
		SemanticVector: vector,
		Emotion:        clamp(emotion, -1, 1),
		AgeAtFormation: ageAtFormation,
		CapacityWeight: clamp(capacityWeight, 0, 1),
		Timestamp:      now,
		LastRetrieved:  now,
		MemoryStrength: 1.0,
		DecayParams:    DefaultDecayParams(),
	}
}

// WithMetadata attaches an opaque key/value pair and returns the record for
// chaining. The engine never interprets metadata.
func (r *Record) WithMetadata(key string, value any) *Record {
	if r.Metadata == nil {
		r.Metadata = make(map[string]any)
	}
	r.Metadata[key] = value
	return r
}

// Reinforce records a retrieval: it appends the current time to the recall
// history, bumps the retrieval counter and scales MemoryStrength by
// 1/(1+rho). Strength decays with every retrieval; frequently recalled
// records degrade faster under this model (retrieval-induced forgetting).
func (r *Record) Reinforce(rho float64) {
	now := time.Now()
	r.RecallHistory = append(r.RecallHistory, now)
	r.RetrievalCount++
	r.LastRetrieved = now
	r.MemoryStrength /= 1.0 + rho
}

// Copy returns a deep value copy. Callers receive copies from the stores and
// never a handle into store-owned data.
func (r *Record) Copy() Record {
	out := *r
	out.SemanticVector = append([]float32(nil), r.SemanticVector...)
	out.RecallHistory = append([]time.Time(nil), r.RecallHistory...)
	if r.Metadata != nil {
		out.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}
