package models

import (
	"time"

	appErrors "github.com/symbi-app/symbi-api/pkg/errors"
)

// StepThresholds are the user-tunable step-count boundaries separating mood
// tiers. Each threshold is the inclusive lower bound of the next tier: a day
// with exactly ActiveThreshold steps is an active day.
type StepThresholds struct {
	SadThreshold    int `db:"sad_threshold" json:"sad_threshold"`
	ActiveThreshold int `db:"active_threshold" json:"active_threshold"`
}

// Validate rejects invalid boundary orderings. Invalid configurations are
// refused at entry; the classifier never sees one.
func (t StepThresholds) Validate() error {
	if t.SadThreshold < 0 || t.ActiveThreshold < 0 {
		return appErrors.Clone(appErrors.ErrInvalidThresholds, "thresholds must not be negative")
	}
	if t.SadThreshold >= t.ActiveThreshold {
		return appErrors.ErrInvalidThresholds
	}
	return nil
}

// UserThresholds is the stored per-user threshold configuration.
type UserThresholds struct {
	UserID string `db:"user_id" json:"user_id"`
	StepThresholds
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
