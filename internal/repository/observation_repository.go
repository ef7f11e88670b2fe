package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/symbi-app/symbi-api/internal/models"
)

// ObservationRepository handles persistence for daily mood observations.
type ObservationRepository struct {
	db *sqlx.DB
}

// NewObservationRepository constructs the repository.
func NewObservationRepository(db *sqlx.DB) *ObservationRepository {
	return &ObservationRepository{db: db}
}

// Upsert inserts or replaces the observation for the pet's calendar day.
// The (pet_id, date) conflict target guarantees same-day re-syncs overwrite
// instead of appending.
func (r *ObservationRepository) Upsert(ctx context.Context, obs *models.DailyObservation) (*models.DailyObservation, error) {
	now := time.Now().UTC()
	if obs.ID == "" {
		obs.ID = uuid.NewString()
	}
	if obs.CreatedAt.IsZero() {
		obs.CreatedAt = now
	}
	obs.UpdatedAt = now
	query := `INSERT INTO observations (id, pet_id, date, state, steps, sleep_hours, hrv, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (pet_id, date)
DO UPDATE SET state = EXCLUDED.state, steps = EXCLUDED.steps, sleep_hours = EXCLUDED.sleep_hours, hrv = EXCLUDED.hrv, updated_at = EXCLUDED.updated_at
RETURNING id, pet_id, date, state, steps, sleep_hours, hrv, created_at, updated_at`
	var stored models.DailyObservation
	if err := r.db.GetContext(ctx, &stored, query, obs.ID, obs.PetID, obs.Date, obs.State, obs.Steps, obs.SleepHours, obs.HRV, obs.CreatedAt, obs.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upsert observation: %w", err)
	}
	return &stored, nil
}

// List returns observations matching the provided filter.
func (r *ObservationRepository) List(ctx context.Context, filter models.ObservationFilter) ([]models.DailyObservation, int, error) {
	where := []string{"pet_id = $1"}
	args := []interface{}{filter.PetID}
	if filter.State != nil && filter.State.Valid() {
		where = append(where, fmt.Sprintf("state = $%d", len(args)+1))
		args = append(args, *filter.State)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	whereClause := strings.Join(where, " AND ")
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, pet_id, date, state, steps, sleep_hours, hrv, created_at, updated_at
        FROM observations WHERE %s
        ORDER BY date %s
        LIMIT %d OFFSET %d`, whereClause, order, size, offset)

	var rows []models.DailyObservation
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list observations: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM observations WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count observations: %w", err)
	}
	return rows, total, nil
}

// HistorySince returns the pet's observations on or after the cutoff,
// oldest first. A nil cutoff returns the full history.
func (r *ObservationRepository) HistorySince(ctx context.Context, petID string, since *time.Time) ([]models.DailyObservation, error) {
	where := []string{"pet_id = $1"}
	args := []interface{}{petID}
	if since != nil {
		where = append(where, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, *since)
	}
	query := fmt.Sprintf(`SELECT id, pet_id, date, state, steps, sleep_hours, hrv, created_at, updated_at
FROM observations
WHERE %s
ORDER BY date ASC`, strings.Join(where, " AND "))
	var rows []models.DailyObservation
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("observation history: %w", err)
	}
	return rows, nil
}

// FindByDate returns the observation stored for the pet on the given day.
func (r *ObservationRepository) FindByDate(ctx context.Context, petID string, date time.Time) (*models.DailyObservation, error) {
	query := `SELECT id, pet_id, date, state, steps, sleep_hours, hrv, created_at, updated_at
FROM observations WHERE pet_id = $1 AND date = $2`
	var obs models.DailyObservation
	if err := r.db.GetContext(ctx, &obs, query, petID, date); err != nil {
		return nil, err
	}
	return &obs, nil
}

// Summary aggregates counts per state and the average step count for a pet
// within the optional date range.
func (r *ObservationRepository) Summary(ctx context.Context, petID string, from, to *time.Time) (*models.MoodSummary, error) {
	where := []string{"pet_id = $1"}
	args := []interface{}{petID}
	if from != nil {
		where = append(where, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, *from)
	}
	if to != nil {
		where = append(where, fmt.Sprintf("date <= $%d", len(args)+1))
		args = append(args, *to)
	}
	query := fmt.Sprintf(`SELECT state, COUNT(*) AS cnt, AVG(steps) AS avg_steps
FROM observations
WHERE %s
GROUP BY state`, strings.Join(where, " AND "))
	rows := []struct {
		State    string  `db:"state"`
		Count    int     `db:"cnt"`
		AvgSteps float64 `db:"avg_steps"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("observation summary: %w", err)
	}
	summary := &models.MoodSummary{ByState: make(map[models.EmotionalState]int)}
	stepSum := 0.0
	for _, row := range rows {
		state := models.EmotionalState(row.State)
		summary.ByState[state] = row.Count
		summary.TotalDays += row.Count
		if state.Qualifying() {
			summary.QualifyingDays += row.Count
		}
		stepSum += row.AvgSteps * float64(row.Count)
	}
	if summary.TotalDays > 0 {
		summary.AverageSteps = stepSum / float64(summary.TotalDays)
	}
	return summary, nil
}
