package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symbi-app/symbi-api/internal/models"
	appErrors "github.com/symbi-app/symbi-api/pkg/errors"
)

type observationRepoStub struct {
	byDate   map[string]models.DailyObservation
	listErr  error
	summary  *models.MoodSummary
	upserted int
}

func (s *observationRepoStub) Upsert(ctx context.Context, obs *models.DailyObservation) (*models.DailyObservation, error) {
	if s.byDate == nil {
		s.byDate = map[string]models.DailyObservation{}
	}
	key := obs.PetID + ":" + obs.Date.Format("2006-01-02")
	stored := *obs
	if existing, ok := s.byDate[key]; ok {
		stored.ID = existing.ID
	} else {
		stored.ID = key
	}
	s.byDate[key] = stored
	s.upserted++
	return &stored, nil
}

func (s *observationRepoStub) List(ctx context.Context, filter models.ObservationFilter) ([]models.DailyObservation, int, error) {
	if s.listErr != nil {
		return nil, 0, s.listErr
	}
	rows := []models.DailyObservation{}
	for _, obs := range s.byDate {
		if obs.PetID != filter.PetID {
			continue
		}
		if filter.State != nil && obs.State != *filter.State {
			continue
		}
		rows = append(rows, obs)
	}
	return rows, len(rows), nil
}

func (s *observationRepoStub) Summary(ctx context.Context, petID string, from, to *time.Time) (*models.MoodSummary, error) {
	if s.summary != nil {
		return s.summary, nil
	}
	return &models.MoodSummary{ByState: map[models.EmotionalState]int{}}, nil
}

type petRepoStub struct {
	pets map[string]models.Pet
}

func (s *petRepoStub) FindByID(ctx context.Context, id string) (*models.Pet, error) {
	if pet, ok := s.pets[id]; ok {
		return &pet, nil
	}
	return nil, sql.ErrNoRows
}

type thresholdProviderStub struct {
	thresholds models.StepThresholds
}

func (s *thresholdProviderStub) Resolve(ctx context.Context, userID string) (models.StepThresholds, error) {
	return s.thresholds, nil
}

func newTestHealthService(observations *observationRepoStub, pets *petRepoStub) *HealthService {
	provider := &thresholdProviderStub{thresholds: defaultThresholds()}
	classifier := NewClassificationService(nil, nil, nil)
	return NewHealthService(observations, pets, provider, classifier, nil, time.Minute, nil, nil)
}

func ownedPetStub() *petRepoStub {
	return &petRepoStub{pets: map[string]models.Pet{
		"pet-1": {ID: "pet-1", UserID: "user-1", Name: "Momo", Level: 1, Phase: models.PhaseNotEligible},
	}}
}

func TestSyncClassifiesAndStoresObservation(t *testing.T) {
	observations := &observationRepoStub{}
	svc := newTestHealthService(observations, ownedPetStub())

	obs, err := svc.Sync(context.Background(), "user-1", "pet-1", SyncHealthDataRequest{
		Date:  "2026-08-01",
		Steps: 9500,
		HRV:   floatPtr(70),
	})
	require.NoError(t, err)

	assert.Equal(t, models.StateVibrant, obs.State)
	assert.Equal(t, 9500, obs.Steps)
	assert.Equal(t, 1, observations.upserted)
}

func TestSyncSameDateOverwritesInsteadOfAppending(t *testing.T) {
	observations := &observationRepoStub{}
	svc := newTestHealthService(observations, ownedPetStub())

	first, err := svc.Sync(context.Background(), "user-1", "pet-1", SyncHealthDataRequest{Date: "2026-08-01", Steps: 1000})
	require.NoError(t, err)
	assert.Equal(t, models.StateSad, first.State)

	second, err := svc.Sync(context.Background(), "user-1", "pet-1", SyncHealthDataRequest{Date: "2026-08-01", Steps: 12000})
	require.NoError(t, err)

	assert.Equal(t, models.StateActive, second.State)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, observations.byDate, 1)
}

func TestSyncRejectsInvalidPayload(t *testing.T) {
	svc := newTestHealthService(&observationRepoStub{}, ownedPetStub())

	cases := []SyncHealthDataRequest{
		{Date: "not-a-date", Steps: 1000},
		{Date: "2026-08-01", Steps: -5},
		{Date: "2026-08-01", Steps: 1000, SleepHours: floatPtr(25)},
		{Date: "2026-08-01", Steps: 1000, HRV: floatPtr(-1)},
	}
	for _, req := range cases {
		_, err := svc.Sync(context.Background(), "user-1", "pet-1", req)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
}

func TestSyncRejectsForeignPet(t *testing.T) {
	svc := newTestHealthService(&observationRepoStub{}, ownedPetStub())

	_, err := svc.Sync(context.Background(), "someone-else", "pet-1", SyncHealthDataRequest{Date: "2026-08-01", Steps: 1000})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestSyncUnknownPet(t *testing.T) {
	svc := newTestHealthService(&observationRepoStub{}, ownedPetStub())

	_, err := svc.Sync(context.Background(), "user-1", "ghost", SyncHealthDataRequest{Date: "2026-08-01", Steps: 1000})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestHistoryFiltersByState(t *testing.T) {
	observations := &observationRepoStub{}
	svc := newTestHealthService(observations, ownedPetStub())

	for i, steps := range []int{500, 9000, 9200} {
		date := time.Date(2026, 8, i+1, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
		_, err := svc.Sync(context.Background(), "user-1", "pet-1", SyncHealthDataRequest{Date: date, Steps: steps})
		require.NoError(t, err)
	}

	state := string(models.StateActive)
	rows, pagination, err := svc.History(context.Background(), "user-1", "pet-1", ObservationListRequest{State: &state})
	require.NoError(t, err)

	assert.Len(t, rows, 2)
	assert.Equal(t, 2, pagination.TotalCount)
	assert.Equal(t, 1, pagination.Page)
}

func TestHistoryRejectsUnknownStateFilter(t *testing.T) {
	svc := newTestHealthService(&observationRepoStub{}, ownedPetStub())

	state := "GRUMPY"
	_, _, err := svc.History(context.Background(), "user-1", "pet-1", ObservationListRequest{State: &state})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSummaryComputesWithoutCache(t *testing.T) {
	observations := &observationRepoStub{summary: &models.MoodSummary{
		ByState:        map[models.EmotionalState]int{models.StateActive: 4, models.StateSad: 1},
		QualifyingDays: 4,
		TotalDays:      5,
		AverageSteps:   8100,
	}}
	svc := newTestHealthService(observations, ownedPetStub())

	summary, cached, err := svc.Summary(context.Background(), "user-1", "pet-1", nil, nil)
	require.NoError(t, err)

	assert.False(t, cached)
	assert.Equal(t, 4, summary.QualifyingDays)
	assert.Equal(t, 5, summary.TotalDays)
}
