package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/symbi-app/symbi-api/internal/models"
)

// PetRepository handles persistence for pets and their evolution records.
type PetRepository struct {
	db *sqlx.DB
}

// NewPetRepository constructs the repository.
func NewPetRepository(db *sqlx.DB) *PetRepository {
	return &PetRepository{db: db}
}

// Create stores a new pet at level 1 in the NOT_ELIGIBLE phase.
func (r *PetRepository) Create(ctx context.Context, pet *models.Pet) error {
	now := time.Now().UTC()
	if pet.ID == "" {
		pet.ID = uuid.NewString()
	}
	if pet.Level == 0 {
		pet.Level = 1
	}
	if pet.Phase == "" {
		pet.Phase = models.PhaseNotEligible
	}
	pet.CreatedAt = now
	pet.UpdatedAt = now
	query := `INSERT INTO pets (id, user_id, name, level, phase, appearance_path, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(ctx, query, pet.ID, pet.UserID, pet.Name, pet.Level, pet.Phase, pet.AppearancePath, pet.CreatedAt, pet.UpdatedAt); err != nil {
		return fmt.Errorf("create pet: %w", err)
	}
	return nil
}

// FindByID returns the pet with the given ID.
func (r *PetRepository) FindByID(ctx context.Context, id string) (*models.Pet, error) {
	query := `SELECT id, user_id, name, level, phase, appearance_path, created_at, updated_at
FROM pets WHERE id = $1`
	var pet models.Pet
	if err := r.db.GetContext(ctx, &pet, query, id); err != nil {
		return nil, err
	}
	return &pet, nil
}

// FindByUser returns the user's pets.
func (r *PetRepository) FindByUser(ctx context.Context, userID string) ([]models.Pet, error) {
	query := `SELECT id, user_id, name, level, phase, appearance_path, created_at, updated_at
FROM pets WHERE user_id = $1 ORDER BY created_at ASC`
	var pets []models.Pet
	if err := r.db.SelectContext(ctx, &pets, query, userID); err != nil {
		return nil, fmt.Errorf("list pets: %w", err)
	}
	return pets, nil
}

// ListByPhase returns every pet currently sitting in the given phase.
func (r *PetRepository) ListByPhase(ctx context.Context, phase models.EvolutionPhase) ([]models.Pet, error) {
	query := `SELECT id, user_id, name, level, phase, appearance_path, created_at, updated_at
FROM pets WHERE phase = $1 ORDER BY updated_at ASC`
	var pets []models.Pet
	if err := r.db.SelectContext(ctx, &pets, query, phase); err != nil {
		return nil, fmt.Errorf("list pets by phase: %w", err)
	}
	return pets, nil
}

// TransitionPhase moves the pet from an expected phase to the next one.
// It returns false without error when the pet was not in the expected phase,
// which lets callers gate concurrent evolution triggers on the database row.
func (r *PetRepository) TransitionPhase(ctx context.Context, petID string, from, to models.EvolutionPhase) (bool, error) {
	query := `UPDATE pets SET phase = $1, updated_at = $2 WHERE id = $3 AND phase = $4`
	res, err := r.db.ExecContext(ctx, query, to, time.Now().UTC(), petID, from)
	if err != nil {
		return false, fmt.Errorf("transition pet phase: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition pet phase: %w", err)
	}
	return affected == 1, nil
}

// CompleteEvolution increments the pet's level, resets its phase and appends
// the evolution record in one transaction.
func (r *PetRepository) CompleteEvolution(ctx context.Context, petID, appearancePath string) (*models.EvolutionRecord, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin evolution: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	var newLevel int
	updatePet := `UPDATE pets SET level = level + 1, phase = $1, appearance_path = $2, updated_at = $3
WHERE id = $4 AND phase = $5 RETURNING level`
	if err := tx.GetContext(ctx, &newLevel, updatePet, models.PhaseNotEligible, appearancePath, now, petID, models.PhaseEvolving); err != nil {
		return nil, fmt.Errorf("complete evolution: %w", err)
	}

	record := &models.EvolutionRecord{
		ID:             uuid.NewString(),
		PetID:          petID,
		Level:          newLevel,
		AppearancePath: appearancePath,
		EvolvedAt:      now,
	}
	insertRecord := `INSERT INTO evolution_records (id, pet_id, level, appearance_path, evolved_at)
VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.ExecContext(ctx, insertRecord, record.ID, record.PetID, record.Level, record.AppearancePath, record.EvolvedAt); err != nil {
		return nil, fmt.Errorf("insert evolution record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit evolution: %w", err)
	}
	committed = true
	return record, nil
}

// ListRecords returns the pet's evolution records, newest first.
func (r *PetRepository) ListRecords(ctx context.Context, petID string) ([]models.EvolutionRecord, error) {
	query := `SELECT id, pet_id, level, appearance_path, evolved_at
FROM evolution_records WHERE pet_id = $1 ORDER BY evolved_at DESC`
	var records []models.EvolutionRecord
	if err := r.db.SelectContext(ctx, &records, query, petID); err != nil {
		return nil, fmt.Errorf("list evolution records: %w", err)
	}
	return records, nil
}

// LastEvolvedAt returns the timestamp of the pet's most recent evolution,
// or nil when the pet has never evolved.
func (r *PetRepository) LastEvolvedAt(ctx context.Context, petID string) (*time.Time, error) {
	query := `SELECT MAX(evolved_at) FROM evolution_records WHERE pet_id = $1`
	var last *time.Time
	if err := r.db.GetContext(ctx, &last, query, petID); err != nil {
		return nil, fmt.Errorf("last evolution: %w", err)
	}
	return last, nil
}
