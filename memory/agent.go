package memory

// AgentProfile holds the stable per-agent tunables that shape retention.
// A profile is set at store construction and replaced wholesale via
// UpdateProfile; individual fields are never mutated by the engine.
type AgentProfile struct {
	// K is the phase steepness of the plasticity curve.
	K float64 `json:"k"`
	// AMid is the formation age of half-max plasticity.
	AMid float64 `json:"a_mid"`
	// Epsilon is the minimum phase floor.
	Epsilon float64 `json:"epsilon"`
	// ThetaShock is the absolute-emotion threshold past which the trauma
	// boost applies instead of the linear emotional slope.
	ThetaShock float64 `json:"theta_shock"`
	// Gamma is the trauma boost factor.
	Gamma float64 `json:"gamma"`
	// Eta is the normal emotional slope.
	Eta float64 `json:"eta"`
	// CBase is the base working-memory capacity.
	CBase float64 `json:"c_base"`
	// Rho is the retrieval-reinforcement factor applied to returned records.
	Rho float64 `json:"rho"`
	// Kappa is the interference constant, reserved for interference models.
	Kappa float64 `json:"kappa"`
}

// DefaultProfile returns balanced profile parameters.
func DefaultProfile() AgentProfile {
	return AgentProfile{
		K:          0.5,
		AMid:       22.0,
		Epsilon:    0.2,
		ThetaShock: 0.7,
		Gamma:      1.5,
		Eta:        0.3,
		CBase:      1.0,
		Rho:        0.1,
		Kappa:      0.05,
	}
}

// AgentState holds the volatile per-agent parameters that modulate decay.
// All fields except CurrentAge are normalized to [0, 1]. State is replaced
// wholesale via UpdateState; the stores never mutate individual fields.
type AgentState struct {
	CurrentAge     float64 `json:"current_age"`
	SleepDebt      float64 `json:"sleep_debt"`
	CortisolLevel  float64 `json:"cortisol_level"`
	Fatigue        float64 `json:"fatigue"`
	TrainingFactor float64 `json:"training_factor"`
}

// DefaultState returns a rested, unstressed agent state.
func DefaultState() AgentState {
	return AgentState{CurrentAge: 25.0}
}
