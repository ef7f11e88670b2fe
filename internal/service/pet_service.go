package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/symbi-app/symbi-api/internal/models"
	appErrors "github.com/symbi-app/symbi-api/pkg/errors"
)

type petRepository interface {
	Create(ctx context.Context, pet *models.Pet) error
	FindByID(ctx context.Context, id string) (*models.Pet, error)
	FindByUser(ctx context.Context, userID string) ([]models.Pet, error)
}

type todayProvider interface {
	TodayObservation(ctx context.Context, petID string) (*models.DailyObservation, error)
}

type eligibilityProvider interface {
	Status(ctx context.Context, petID string) (*EvolutionStatus, error)
}

type appearanceLinker interface {
	AppearanceURL(petID, relPath string) (string, error)
}

// CreatePetRequest is the adoption payload.
type CreatePetRequest struct {
	Name string `json:"name" validate:"required,min=1,max=40"`
}

// PetService manages pets and assembles the main-screen status view.
type PetService struct {
	repo        petRepository
	today       todayProvider
	eligibility eligibilityProvider
	links       appearanceLinker
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewPetService constructs the pet service.
func NewPetService(repo petRepository, today todayProvider, eligibility eligibilityProvider, links appearanceLinker, validate *validator.Validate, logger *zap.Logger) *PetService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PetService{repo: repo, today: today, eligibility: eligibility, links: links, validator: validate, logger: logger}
}

// Create adopts a new pet for the user. One pet per user.
func (s *PetService) Create(ctx context.Context, userID string, req CreatePetRequest) (*models.Pet, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid pet payload")
	}

	existing, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pets")
	}
	if len(existing) > 0 {
		return nil, appErrors.Clone(appErrors.ErrConflict, "user already has a pet")
	}

	pet := &models.Pet{UserID: userID, Name: req.Name}
	if err := s.repo.Create(ctx, pet); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create pet")
	}
	s.logger.Info("pet adopted", zap.String("pet_id", pet.ID), zap.String("user_id", userID))
	return pet, nil
}

// Get returns the pet when the user owns it.
func (s *PetService) Get(ctx context.Context, userID, petID string) (*models.Pet, error) {
	pet, err := s.repo.FindByID(ctx, petID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "pet not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch pet")
	}
	if pet.UserID != userID {
		return nil, appErrors.ErrForbidden
	}
	s.attachAppearanceURL(pet)
	return pet, nil
}

// List returns the user's pets.
func (s *PetService) List(ctx context.Context, userID string) ([]models.Pet, error) {
	pets, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pets")
	}
	for i := range pets {
		s.attachAppearanceURL(&pets[i])
	}
	return pets, nil
}

// Status combines the pet with today's observation and its eligibility
// snapshot.
func (s *PetService) Status(ctx context.Context, userID, petID string) (*models.PetStatus, error) {
	pet, err := s.Get(ctx, userID, petID)
	if err != nil {
		return nil, err
	}

	status := &models.PetStatus{Pet: *pet}
	if s.today != nil {
		if today, err := s.today.TodayObservation(ctx, petID); err == nil {
			status.Today = today
		}
	}
	if s.eligibility != nil {
		evo, err := s.eligibility.Status(ctx, petID)
		if err != nil {
			return nil, err
		}
		status.Eligibility = evo.Eligibility
		status.Pet.Phase = evo.Phase
	}
	return status, nil
}

// attachAppearanceURL decorates the pet with a freshly signed download link.
// Only the storage path is persisted, so stored pets never carry an expired
// token.
func (s *PetService) attachAppearanceURL(pet *models.Pet) {
	if s.links == nil || pet.AppearancePath == nil || *pet.AppearancePath == "" {
		return
	}
	link, err := s.links.AppearanceURL(pet.ID, *pet.AppearancePath)
	if err != nil {
		s.logger.Warn("failed to sign appearance url", zap.String("pet_id", pet.ID), zap.Error(err))
		return
	}
	pet.AppearanceURL = &link
}
