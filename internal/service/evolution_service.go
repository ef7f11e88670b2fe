package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/symbi-app/symbi-api/internal/models"
	appErrors "github.com/symbi-app/symbi-api/pkg/errors"
	"github.com/symbi-app/symbi-api/pkg/jobs"
	"github.com/symbi-app/symbi-api/pkg/storage"
)

// DefaultDaysRequired is the evolution target applied when no explicit value
// is configured.
const DefaultDaysRequired = 30

// CheckEligibility counts the qualifying days in the supplied history against
// the target. Qualifying days accumulate cumulatively across the whole
// history; off days never reset progress, so this is deliberately NOT a
// streak. The function is pure: repeated calls over unchanged history return
// identical results.
func CheckEligibility(history []models.DailyObservation, daysRequired int) models.EvolutionEligibility {
	if daysRequired <= 0 {
		daysRequired = DefaultDaysRequired
	}
	days := 0
	for _, obs := range history {
		if obs.State.Qualifying() {
			days++
		}
	}
	return models.EvolutionEligibility{
		Eligible:            days >= daysRequired,
		DaysInPositiveState: days,
		DaysRequired:        daysRequired,
	}
}

type evolutionPetRepository interface {
	FindByID(ctx context.Context, id string) (*models.Pet, error)
	ListByPhase(ctx context.Context, phase models.EvolutionPhase) ([]models.Pet, error)
	TransitionPhase(ctx context.Context, petID string, from, to models.EvolutionPhase) (bool, error)
	CompleteEvolution(ctx context.Context, petID, appearancePath string) (*models.EvolutionRecord, error)
	ListRecords(ctx context.Context, petID string) ([]models.EvolutionRecord, error)
	LastEvolvedAt(ctx context.Context, petID string) (*time.Time, error)
}

type evolutionObservationRepository interface {
	HistorySince(ctx context.Context, petID string, since *time.Time) ([]models.DailyObservation, error)
}

// AppearanceGenerator produces a new appearance image for an evolving pet.
// Generation is a single outstanding request per pet; the EVOLVING phase
// gates concurrent triggers.
type AppearanceGenerator interface {
	GenerateAppearance(ctx context.Context, pet *models.Pet) ([]byte, error)
}

type appearanceStore interface {
	Save(filename string, data []byte) (string, error)
}

// EvolutionStatus combines the live eligibility view with the pet's phase.
type EvolutionStatus struct {
	Phase       models.EvolutionPhase       `json:"phase"`
	Level       int                         `json:"level"`
	Eligibility models.EvolutionEligibility `json:"eligibility"`
}

// EvolutionService tracks per-pet eligibility and orchestrates the evolution
// cycle: NOT_ELIGIBLE -> ELIGIBLE -> EVOLVING -> back to NOT_ELIGIBLE on
// success, or back to ELIGIBLE on generation failure so the user may retry.
type EvolutionService struct {
	pets         evolutionPetRepository
	observations evolutionObservationRepository
	generator    AppearanceGenerator
	store        appearanceStore
	signer       *storage.SignedURLSigner
	downloadPath string
	cache        *CacheService
	metrics      *MetricsService
	logger       *zap.Logger
	daysRequired int

	queue *jobs.Queue
}

// NewEvolutionService constructs the service and its generation worker. Call
// Start before triggering evolutions and Stop on shutdown.
func NewEvolutionService(
	pets evolutionPetRepository,
	observations evolutionObservationRepository,
	generator AppearanceGenerator,
	store appearanceStore,
	signer *storage.SignedURLSigner,
	downloadPath string,
	cache *CacheService,
	metrics *MetricsService,
	logger *zap.Logger,
	daysRequired int,
	queueBuffer int,
) *EvolutionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if daysRequired <= 0 {
		daysRequired = DefaultDaysRequired
	}
	svc := &EvolutionService{
		pets:         pets,
		observations: observations,
		generator:    generator,
		store:        store,
		signer:       signer,
		downloadPath: downloadPath,
		cache:        cache,
		metrics:      metrics,
		logger:       logger,
		daysRequired: daysRequired,
	}
	// Retries are disabled on purpose: a failed generation drops the pet back
	// to ELIGIBLE and the user triggers again manually.
	svc.queue = jobs.NewQueue("evolution", svc.handleGenerationJob, jobs.QueueConfig{
		Workers:    1,
		BufferSize: queueBuffer,
		MaxRetries: -1,
		Logger:     logger,
	})
	return svc
}

// Start launches the generation worker and recovers pets stranded by a
// previous process.
func (s *EvolutionService) Start(ctx context.Context) {
	s.queue.Start(ctx)
	s.recoverStalledEvolutions(ctx)
}

// recoverStalledEvolutions returns pets left in EVOLVING by a restart to
// ELIGIBLE. Generation jobs live only in memory, so a phase row that survived
// the process would otherwise reject every future trigger.
func (s *EvolutionService) recoverStalledEvolutions(ctx context.Context) {
	stalled, err := s.pets.ListByPhase(ctx, models.PhaseEvolving)
	if err != nil {
		s.logger.Warn("failed to scan for stalled evolutions", zap.Error(err))
		return
	}
	for _, pet := range stalled {
		moved, err := s.pets.TransitionPhase(ctx, pet.ID, models.PhaseEvolving, models.PhaseEligible)
		if err != nil {
			s.logger.Warn("failed to recover stalled evolution",
				zap.String("pet_id", pet.ID), zap.Error(err))
			continue
		}
		if moved {
			s.logger.Info("recovered stalled evolution",
				zap.String("pet_id", pet.ID), zap.Int("level", pet.Level))
		}
	}
}

// Stop drains the generation worker.
func (s *EvolutionService) Stop() {
	s.queue.Stop()
}

// Status recomputes the pet's eligibility from the observation history
// recorded since its last evolution. The NOT_ELIGIBLE -> ELIGIBLE promotion
// is level-triggered: it fires on whichever read first observes enough
// accumulated days, not only at the instant the threshold is crossed.
func (s *EvolutionService) Status(ctx context.Context, petID string) (*EvolutionStatus, error) {
	pet, err := s.findPet(ctx, petID)
	if err != nil {
		return nil, err
	}

	eligibility, err := s.eligibility(ctx, pet)
	if err != nil {
		return nil, err
	}

	if eligibility.Eligible && pet.Phase == models.PhaseNotEligible {
		promoted, err := s.pets.TransitionPhase(ctx, pet.ID, models.PhaseNotEligible, models.PhaseEligible)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to promote pet to eligible")
		}
		if promoted {
			pet.Phase = models.PhaseEligible
		}
	}

	return &EvolutionStatus{Phase: pet.Phase, Level: pet.Level, Eligibility: eligibility}, nil
}

// Trigger starts an evolution for an eligible pet. Only an explicit user
// action reaches this; eligibility alone never evolves a pet. A second
// trigger while a generation is outstanding is rejected.
func (s *EvolutionService) Trigger(ctx context.Context, petID string) (*EvolutionStatus, error) {
	pet, err := s.findPet(ctx, petID)
	if err != nil {
		return nil, err
	}
	if pet.Phase == models.PhaseEvolving {
		return nil, appErrors.ErrEvolutionInFlight
	}

	eligibility, err := s.eligibility(ctx, pet)
	if err != nil {
		return nil, err
	}
	if !eligibility.Eligible {
		return nil, appErrors.ErrNotEligible
	}

	if pet.Phase == models.PhaseNotEligible {
		if _, err := s.pets.TransitionPhase(ctx, pet.ID, models.PhaseNotEligible, models.PhaseEligible); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to promote pet to eligible")
		}
	}

	// The phase row is the single-flight gate: only one caller wins the
	// ELIGIBLE -> EVOLVING transition.
	moved, err := s.pets.TransitionPhase(ctx, pet.ID, models.PhaseEligible, models.PhaseEvolving)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start evolution")
	}
	if !moved {
		return nil, appErrors.ErrEvolutionInFlight
	}

	job := jobs.Job{ID: uuid.NewString(), Type: "generate_appearance", Payload: pet.ID}
	if err := s.queue.Enqueue(job); err != nil {
		// Undo the gate so the user can retry instead of wedging the pet.
		if _, rbErr := s.pets.TransitionPhase(ctx, pet.ID, models.PhaseEvolving, models.PhaseEligible); rbErr != nil {
			s.logger.Error("failed to roll back evolution phase", zap.String("pet_id", pet.ID), zap.Error(rbErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue appearance generation")
	}

	return &EvolutionStatus{Phase: models.PhaseEvolving, Level: pet.Level, Eligibility: eligibility}, nil
}

// Records returns the pet's evolution history, newest first.
func (s *EvolutionService) Records(ctx context.Context, petID string) ([]models.EvolutionRecord, error) {
	if _, err := s.findPet(ctx, petID); err != nil {
		return nil, err
	}
	records, err := s.pets.ListRecords(ctx, petID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list evolution records")
	}
	for i := range records {
		if records[i].AppearancePath == "" {
			continue
		}
		link, err := s.AppearanceURL(petID, records[i].AppearancePath)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign appearance url")
		}
		records[i].AppearanceURL = link
	}
	return records, nil
}

// AppearanceURL mints a fresh signed download link for a stored appearance
// image. Only paths are persisted; tokens expire and are created per read.
func (s *EvolutionService) AppearanceURL(petID, relPath string) (string, error) {
	token, _, err := s.signer.Generate(petID, relPath)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s?token=%s", s.downloadPath, url.QueryEscape(token)), nil
}

func (s *EvolutionService) handleGenerationJob(ctx context.Context, job jobs.Job) error {
	petID, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("generation job %s carries no pet id", job.ID)
	}

	pet, err := s.pets.FindByID(ctx, petID)
	if err != nil {
		return fmt.Errorf("load pet %s for generation: %w", petID, err)
	}

	image, err := s.generator.GenerateAppearance(ctx, pet)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordGenerationFailure()
		}
		s.logger.Warn("appearance generation failed",
			zap.String("pet_id", petID),
			zap.Int("level", pet.Level),
			zap.Error(err))
		// Failure preserves eligibility; the user retries manually.
		if _, rbErr := s.pets.TransitionPhase(ctx, petID, models.PhaseEvolving, models.PhaseEligible); rbErr != nil {
			s.logger.Error("failed to restore eligible phase", zap.String("pet_id", petID), zap.Error(rbErr))
		}
		return appErrors.Wrap(err, appErrors.ErrGeneration.Code, appErrors.ErrGeneration.Status, "appearance generation failed")
	}

	appearancePath, err := s.storeAppearance(pet, image)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordGenerationFailure()
		}
		if _, rbErr := s.pets.TransitionPhase(ctx, petID, models.PhaseEvolving, models.PhaseEligible); rbErr != nil {
			s.logger.Error("failed to restore eligible phase", zap.String("pet_id", petID), zap.Error(rbErr))
		}
		return fmt.Errorf("store appearance for pet %s: %w", petID, err)
	}

	record, err := s.pets.CompleteEvolution(ctx, petID, appearancePath)
	if err != nil {
		return fmt.Errorf("complete evolution for pet %s: %w", petID, err)
	}

	if s.metrics != nil {
		s.metrics.RecordEvolution()
	}
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, fmt.Sprintf("pet:%s:*", petID))
	}
	s.logger.Info("pet evolved",
		zap.String("pet_id", petID),
		zap.Int("level", record.Level),
		zap.String("appearance_path", record.AppearancePath))
	return nil
}

func (s *EvolutionService) storeAppearance(pet *models.Pet, image []byte) (string, error) {
	filename := fmt.Sprintf("pets/%s/level-%d.png", pet.ID, pet.Level+1)
	if _, err := s.store.Save(filename, image); err != nil {
		return "", err
	}
	return filename, nil
}

func (s *EvolutionService) eligibility(ctx context.Context, pet *models.Pet) (models.EvolutionEligibility, error) {
	// Qualifying days count from the most recent evolution so each level's
	// progress starts fresh.
	since, err := s.pets.LastEvolvedAt(ctx, pet.ID)
	if err != nil {
		return models.EvolutionEligibility{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load evolution history")
	}
	history, err := s.observations.HistorySince(ctx, pet.ID, since)
	if err != nil {
		return models.EvolutionEligibility{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load observation history")
	}
	return CheckEligibility(history, s.daysRequired), nil
}

func (s *EvolutionService) findPet(ctx context.Context, petID string) (*models.Pet, error) {
	pet, err := s.pets.FindByID(ctx, petID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "pet not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch pet")
	}
	return pet, nil
}
