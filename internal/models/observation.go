package models

import "time"

// DailyObservation is one calendar day's classification result for a pet.
// At most one row exists per (pet, date); re-syncing the same day overwrites
// the earlier value.
type DailyObservation struct {
	ID         string         `db:"id" json:"id"`
	PetID      string         `db:"pet_id" json:"pet_id"`
	Date       time.Time      `db:"date" json:"date"`
	State      EmotionalState `db:"state" json:"state"`
	Steps      int            `db:"steps" json:"steps"`
	SleepHours *float64       `db:"sleep_hours" json:"sleep_hours,omitempty"`
	HRV        *float64       `db:"hrv" json:"hrv,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// ObservationFilter defines query filters for observation history.
type ObservationFilter struct {
	PetID     string
	State     *EmotionalState
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
	SortOrder string
}

// MoodSummary aggregates a pet's observation history.
type MoodSummary struct {
	ByState        map[EmotionalState]int `json:"by_state"`
	QualifyingDays int                    `json:"qualifying_days"`
	TotalDays      int                    `json:"total_days"`
	AverageSteps   float64                `json:"average_steps"`
}
