package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/symbi-app/symbi-api/internal/models"
)

// ThresholdRepository stores per-user step threshold configurations.
type ThresholdRepository struct {
	db *sqlx.DB
}

// NewThresholdRepository constructs the repository.
func NewThresholdRepository(db *sqlx.DB) *ThresholdRepository {
	return &ThresholdRepository{db: db}
}

// Get returns the user's thresholds. Callers see sql.ErrNoRows when the user
// has never tuned them.
func (r *ThresholdRepository) Get(ctx context.Context, userID string) (*models.UserThresholds, error) {
	query := `SELECT user_id, sad_threshold, active_threshold, updated_at
FROM thresholds WHERE user_id = $1`
	var t models.UserThresholds
	if err := r.db.GetContext(ctx, &t, query, userID); err != nil {
		return nil, err
	}
	return &t, nil
}

// Put upserts the user's thresholds. Validation happens in the service layer
// before this is reached.
func (r *ThresholdRepository) Put(ctx context.Context, userID string, t models.StepThresholds) (*models.UserThresholds, error) {
	query := `INSERT INTO thresholds (user_id, sad_threshold, active_threshold, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id)
DO UPDATE SET sad_threshold = EXCLUDED.sad_threshold, active_threshold = EXCLUDED.active_threshold, updated_at = EXCLUDED.updated_at
RETURNING user_id, sad_threshold, active_threshold, updated_at`
	var stored models.UserThresholds
	if err := r.db.GetContext(ctx, &stored, query, userID, t.SadThreshold, t.ActiveThreshold, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("upsert thresholds: %w", err)
	}
	return &stored, nil
}
