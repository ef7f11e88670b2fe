package models

// EmotionalState is the discrete mood label driving the pet's appearance.
type EmotionalState string

const (
	StateSad      EmotionalState = "SAD"
	StateResting  EmotionalState = "RESTING"
	StateActive   EmotionalState = "ACTIVE"
	StateVibrant  EmotionalState = "VIBRANT"
	StateCalm     EmotionalState = "CALM"
	StateTired    EmotionalState = "TIRED"
	StateStressed EmotionalState = "STRESSED"
	StateAnxious  EmotionalState = "ANXIOUS"
	StateRested   EmotionalState = "RESTED"
)

// Valid returns true when the state is a supported value.
func (s EmotionalState) Valid() bool {
	switch s {
	case StateSad, StateResting, StateActive, StateVibrant, StateCalm,
		StateTired, StateStressed, StateAnxious, StateRested:
		return true
	default:
		return false
	}
}

// Qualifying reports whether the state counts toward evolution eligibility.
func (s EmotionalState) Qualifying() bool {
	return s == StateActive || s == StateVibrant
}

// StateTier is the primary step-count band a day falls into before secondary
// signals refine it.
type StateTier int

const (
	TierSad StateTier = iota
	TierResting
	TierActive
)

// State returns the tier's base emotional state.
func (t StateTier) State() EmotionalState {
	switch t {
	case TierActive:
		return StateActive
	case TierResting:
		return StateResting
	default:
		return StateSad
	}
}

// HealthSample bundles one calendar day's synced signals. Sleep and HRV are
// optional; steps alone decide the primary tier.
type HealthSample struct {
	Steps      int      `json:"steps"`
	SleepHours *float64 `json:"sleep_hours,omitempty"`
	HRV        *float64 `json:"hrv,omitempty"`
}
