package models

import "time"

// EvolutionEligibility is a derived view over observation history plus a
// fixed target. It is recomputed on demand and never persisted as
// authoritative state.
type EvolutionEligibility struct {
	Eligible            bool `json:"eligible"`
	DaysInPositiveState int  `json:"days_in_positive_state"`
	DaysRequired        int  `json:"days_required"`
}

// EvolutionRecord captures one completed level-up. The stored appearance path
// outlives any signed link; AppearanceURL is minted fresh on every read.
type EvolutionRecord struct {
	ID             string    `db:"id" json:"id"`
	PetID          string    `db:"pet_id" json:"pet_id"`
	Level          int       `db:"level" json:"level"`
	AppearancePath string    `db:"appearance_path" json:"-"`
	AppearanceURL  string    `db:"-" json:"appearance_url,omitempty"`
	EvolvedAt      time.Time `db:"evolved_at" json:"evolved_at"`
}
