package models

import "time"

// EvolutionPhase tracks where a pet sits in the evolution cycle.
type EvolutionPhase string

const (
	PhaseNotEligible EvolutionPhase = "NOT_ELIGIBLE"
	PhaseEligible    EvolutionPhase = "ELIGIBLE"
	PhaseEvolving    EvolutionPhase = "EVOLVING"
)

// Valid returns true when the phase is a supported value.
func (p EvolutionPhase) Valid() bool {
	switch p {
	case PhaseNotEligible, PhaseEligible, PhaseEvolving:
		return true
	default:
		return false
	}
}

// Pet is a user's virtual companion. AppearancePath is the stored location of
// the current appearance image; AppearanceURL carries a short-lived signed
// link minted at read time and is never persisted.
type Pet struct {
	ID             string         `db:"id" json:"id"`
	UserID         string         `db:"user_id" json:"user_id"`
	Name           string         `db:"name" json:"name"`
	Level          int            `db:"level" json:"level"`
	Phase          EvolutionPhase `db:"phase" json:"phase"`
	AppearancePath *string        `db:"appearance_path" json:"-"`
	AppearanceURL  *string        `db:"-" json:"appearance_url,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// PetStatus combines the pet with its latest observation and eligibility
// snapshot for the main screen.
type PetStatus struct {
	Pet         Pet                  `json:"pet"`
	Today       *DailyObservation    `json:"today,omitempty"`
	Eligibility EvolutionEligibility `json:"eligibility"`
}
