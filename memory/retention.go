package memory

import (
	"math"
	"time"
)

// Retention computes how strongly this record is currently held, in [0, 1].
// It is the product of four clamped terms (encoding-phase plasticity,
// power-law time decay, emotional bias and capacity competition) scaled by
// the record's current MemoryStrength. The function is pure: it never
// mutates the record and is total over its numeric domain.
func (r *Record) Retention(now time.Time, state AgentState, profile AgentProfile) float64 {
	tDays := now.Sub(r.Timestamp).Seconds() / 86400.0
	if tDays < 0 {
		tDays = 0
	}

	// Phase: logistic in formation age around the half-max plasticity age,
	// with Epsilon as the floor.
	phase := 1.0/(1.0+math.Exp(profile.K*(r.AgeAtFormation-profile.AMid))) + profile.Epsilon
	phase = clamp01(phase)

	// Decay: (1 + beta*t)^(-alpha); stress and fatigue accelerate beta.
	beta := r.DecayParams.Beta0 * (1.0 + state.CortisolLevel + state.Fatigue)
	decay := math.Pow(1.0+beta*tDays, -r.DecayParams.Alpha)

	// Emotional bias: strong affect past the shock threshold resists
	// forgetting more than proportionally; otherwise linear in signed emotion.
	var emo float64
	if math.Abs(r.Emotion) > profile.ThetaShock {
		emo = 1.0 + profile.Gamma*math.Abs(r.Emotion)
	} else {
		emo = 1.0 + profile.Eta*r.Emotion
	}
	if emo < 0 {
		emo = 0
	}

	// Capacity competition: effective weight capped at the dynamic maximum
	// capacity, normalized by base capacity.
	cMax := profile.CBase * (1.0 - state.Fatigue + state.TrainingFactor)
	if cMax < 0 {
		cMax = 0
	}
	var capComp float64
	if profile.CBase > 0 {
		capComp = clamp01(math.Min(r.CapacityWeight, cMax) / profile.CBase)
	}

	return clamp01(phase * decay * emo * capComp * r.MemoryStrength)
}

// Interference computes a query-time cross-record interference multiplier.
// The reference model is neutral (constant 1.0); stores accept a custom
// implementation via SetInterference. The multiplier is applied on top of
// Retention and the product is clamped back into [0, 1].
type Interference func(r *Record, now time.Time) float64

// liveRetention is the retention value the ranking and maintenance paths
// share: base retention with the store's interference hook folded in.
func liveRetention(r *Record, now time.Time, state AgentState, profile AgentProfile, interf Interference) float64 {
	ret := r.Retention(now, state, profile)
	if interf != nil {
		ret = clamp01(ret * interf(r, now))
	}
	return ret
}
