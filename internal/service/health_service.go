package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/symbi-app/symbi-api/internal/models"
	appErrors "github.com/symbi-app/symbi-api/pkg/errors"
)

type healthObservationRepository interface {
	Upsert(ctx context.Context, obs *models.DailyObservation) (*models.DailyObservation, error)
	List(ctx context.Context, filter models.ObservationFilter) ([]models.DailyObservation, int, error)
	Summary(ctx context.Context, petID string, from, to *time.Time) (*models.MoodSummary, error)
}

type healthPetRepository interface {
	FindByID(ctx context.Context, id string) (*models.Pet, error)
}

type thresholdProvider interface {
	Resolve(ctx context.Context, userID string) (models.StepThresholds, error)
}

type classifier interface {
	Classify(sample models.HealthSample, thresholds models.StepThresholds) models.EmotionalState
}

// SyncHealthDataRequest is one day's metrics pushed by the mobile client.
type SyncHealthDataRequest struct {
	Date       string   `json:"date" validate:"required,datetime=2006-01-02"`
	Steps      int      `json:"steps" validate:"min=0"`
	SleepHours *float64 `json:"sleep_hours" validate:"omitempty,min=0,max=24"`
	HRV        *float64 `json:"hrv" validate:"omitempty,min=0"`
}

// ObservationListRequest filters observation history reads.
type ObservationListRequest struct {
	State     *string    `json:"state" validate:"omitempty,emotional_state"`
	DateFrom  *time.Time `json:"date_from"`
	DateTo    *time.Time `json:"date_to"`
	Page      int        `json:"page"`
	PageSize  int        `json:"page_size"`
	SortOrder string     `json:"sort_order"`
}

// HealthService ingests synced health data, classifies each day and owns the
// observation history reads.
type HealthService struct {
	observations healthObservationRepository
	pets         healthPetRepository
	thresholds   thresholdProvider
	classifier   classifier
	cache        *CacheService
	cacheTTL     time.Duration
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewHealthService constructs the health service.
func NewHealthService(
	observations healthObservationRepository,
	pets healthPetRepository,
	thresholds thresholdProvider,
	classifier classifier,
	cache *CacheService,
	cacheTTL time.Duration,
	validate *validator.Validate,
	logger *zap.Logger,
) *HealthService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &HealthService{
		observations: observations,
		pets:         pets,
		thresholds:   thresholds,
		classifier:   classifier,
		cache:        cache,
		cacheTTL:     cacheTTL,
		validator:    validate,
		logger:       logger,
	}
	svc.validator.RegisterValidation("emotional_state", func(fl validator.FieldLevel) bool {
		return models.EmotionalState(fl.Field().String()).Valid()
	})
	return svc
}

// Sync classifies one day's metrics and upserts the pet's observation for
// that date. Re-syncing the same day replaces the stored value instead of
// appending, so eligibility counts are never inflated by repeated updates.
func (s *HealthService) Sync(ctx context.Context, userID, petID string, req SyncHealthDataRequest) (*models.DailyObservation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid health data payload")
	}

	pet, err := s.ownedPet(ctx, userID, petID)
	if err != nil {
		return nil, err
	}

	date, err := time.ParseInLocation("2006-01-02", req.Date, time.UTC)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid date")
	}

	thresholds, err := s.thresholds.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	sample := models.HealthSample{Steps: req.Steps, SleepHours: req.SleepHours, HRV: req.HRV}
	state := s.classifier.Classify(sample, thresholds)

	obs := &models.DailyObservation{
		PetID:      pet.ID,
		Date:       date,
		State:      state,
		Steps:      req.Steps,
		SleepHours: req.SleepHours,
		HRV:        req.HRV,
	}
	stored, err := s.observations.Upsert(ctx, obs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record observation")
	}

	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, fmt.Sprintf("pet:%s:*", pet.ID))
	}

	s.logger.Debug("observation recorded",
		zap.String("pet_id", pet.ID),
		zap.String("date", req.Date),
		zap.String("state", string(state)))
	return stored, nil
}

// History returns paginated observations for the pet.
func (s *HealthService) History(ctx context.Context, userID, petID string, req ObservationListRequest) ([]models.DailyObservation, *models.Pagination, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid history filter")
	}
	if _, err := s.ownedPet(ctx, userID, petID); err != nil {
		return nil, nil, err
	}

	filter := models.ObservationFilter{
		PetID:     petID,
		DateFrom:  req.DateFrom,
		DateTo:    req.DateTo,
		Page:      req.Page,
		PageSize:  req.PageSize,
		SortOrder: req.SortOrder,
	}
	if req.State != nil {
		state := models.EmotionalState(*req.State)
		filter.State = &state
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 200 {
		filter.PageSize = 50
	}

	rows, total, err := s.observations.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list observations")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return rows, pagination, nil
}

// Summary aggregates the pet's history, served from cache when possible.
// The second return value reports whether the cache was hit.
func (s *HealthService) Summary(ctx context.Context, userID, petID string, from, to *time.Time) (*models.MoodSummary, bool, error) {
	if _, err := s.ownedPet(ctx, userID, petID); err != nil {
		return nil, false, err
	}

	key := summaryCacheKey(petID, from, to)
	var cached models.MoodSummary
	if s.cache != nil {
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, true, nil
		}
	}

	summary, err := s.observations.Summary(ctx, petID, from, to)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build summary")
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, summary, s.cacheTTL)
	}
	return summary, false, nil
}

// TodayObservation returns the pet's observation for the current UTC day,
// or nil when none has been synced yet.
func (s *HealthService) TodayObservation(ctx context.Context, petID string) (*models.DailyObservation, error) {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	filter := models.ObservationFilter{PetID: petID, DateFrom: &today, DateTo: &today, Page: 1, PageSize: 1}
	rows, _, err := s.observations.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *HealthService) ownedPet(ctx context.Context, userID, petID string) (*models.Pet, error) {
	pet, err := s.pets.FindByID(ctx, petID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "pet not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch pet")
	}
	if pet.UserID != userID {
		return nil, appErrors.ErrForbidden
	}
	return pet, nil
}

func summaryCacheKey(petID string, from, to *time.Time) string {
	f, t := "", ""
	if from != nil {
		f = from.Format("2006-01-02")
	}
	if to != nil {
		t = to.Format("2006-01-02")
	}
	return fmt.Sprintf("pet:%s:summary:%s:%s", petID, f, t)
}
