package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/symbi-app/symbi-api/internal/models"
	appErrors "github.com/symbi-app/symbi-api/pkg/errors"
)

type thresholdRepository interface {
	Get(ctx context.Context, userID string) (*models.UserThresholds, error)
	Put(ctx context.Context, userID string, t models.StepThresholds) (*models.UserThresholds, error)
}

// ThresholdService manages per-user step thresholds. Validation happens here,
// at configuration entry: the classifier downstream never sees an invalid
// ordering.
type ThresholdService struct {
	repo     thresholdRepository
	defaults models.StepThresholds
	cache    *CacheService
	logger   *zap.Logger
}

// NewThresholdService constructs the service with fallback defaults.
func NewThresholdService(repo thresholdRepository, defaults models.StepThresholds, cache *CacheService, logger *zap.Logger) *ThresholdService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ThresholdService{repo: repo, defaults: defaults, cache: cache, logger: logger}
}

// Resolve returns the user's effective thresholds, falling back to the
// configured defaults when the user has never tuned them. The effective value
// is cached per user; Update drops the entry.
func (s *ThresholdService) Resolve(ctx context.Context, userID string) (models.StepThresholds, error) {
	key := thresholdCacheKey(userID)
	if s.cache != nil {
		var cached models.StepThresholds
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return cached, nil
		}
	}

	effective := s.defaults
	stored, err := s.repo.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return models.StepThresholds{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load thresholds")
		}
	} else {
		effective = stored.StepThresholds
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, key, effective, 0)
	}
	return effective, nil
}

// Get returns the stored configuration, or the defaults marked with the
// user's ID when nothing is stored yet.
func (s *ThresholdService) Get(ctx context.Context, userID string) (*models.UserThresholds, error) {
	stored, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.UserThresholds{UserID: userID, StepThresholds: s.defaults}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load thresholds")
	}
	return stored, nil
}

// Update validates and stores new thresholds. Invalid orderings are rejected,
// never clamped.
func (s *ThresholdService) Update(ctx context.Context, userID string, t models.StepThresholds) (*models.UserThresholds, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	stored, err := s.repo.Put(ctx, userID, t)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store thresholds")
	}
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, thresholdCacheKey(userID))
	}
	s.logger.Info("thresholds updated",
		zap.String("user_id", userID),
		zap.Int("sad", t.SadThreshold),
		zap.Int("active", t.ActiveThreshold))
	return stored, nil
}

func thresholdCacheKey(userID string) string {
	return fmt.Sprintf("user:%s:thresholds", userID)
}
