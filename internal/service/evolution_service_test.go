package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symbi-app/symbi-api/internal/models"
	appErrors "github.com/symbi-app/symbi-api/pkg/errors"
	"github.com/symbi-app/symbi-api/pkg/jobs"
	"github.com/symbi-app/symbi-api/pkg/storage"
)

func makeHistory(states ...models.EmotionalState) []models.DailyObservation {
	history := make([]models.DailyObservation, 0, len(states))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, state := range states {
		history = append(history, models.DailyObservation{
			ID:    fmt.Sprintf("obs-%d", i),
			PetID: "pet-1",
			Date:  base.AddDate(0, 0, i),
			State: state,
		})
	}
	return history
}

func TestCheckEligibilityCountsCumulatively(t *testing.T) {
	// Qualifying days interleaved with off days; gaps must not reset progress.
	states := make([]models.EmotionalState, 0, 60)
	for i := 0; i < 30; i++ {
		states = append(states, models.StateActive, models.StateSad)
	}
	result := CheckEligibility(makeHistory(states...), 30)

	assert.True(t, result.Eligible)
	assert.Equal(t, 30, result.DaysInPositiveState)
	assert.Equal(t, 30, result.DaysRequired)
}

func TestCheckEligibilityBelowTarget(t *testing.T) {
	states := make([]models.EmotionalState, 0, 29)
	for i := 0; i < 29; i++ {
		states = append(states, models.StateVibrant)
	}
	result := CheckEligibility(makeHistory(states...), 30)

	assert.False(t, result.Eligible)
	assert.Equal(t, 29, result.DaysInPositiveState)
}

func TestCheckEligibilityOnlyActiveAndVibrantQualify(t *testing.T) {
	history := makeHistory(
		models.StateActive,
		models.StateVibrant,
		models.StateCalm,
		models.StateRested,
		models.StateResting,
		models.StateSad,
		models.StateTired,
		models.StateStressed,
		models.StateAnxious,
	)
	result := CheckEligibility(history, 30)

	assert.Equal(t, 2, result.DaysInPositiveState)
}

func TestCheckEligibilityIsPure(t *testing.T) {
	history := makeHistory(models.StateActive, models.StateSad, models.StateVibrant)

	first := CheckEligibility(history, 30)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, CheckEligibility(history, 30))
	}
}

func TestCheckEligibilityDefaultsTarget(t *testing.T) {
	result := CheckEligibility(nil, 0)
	assert.Equal(t, DefaultDaysRequired, result.DaysRequired)
	assert.False(t, result.Eligible)
}

type evolutionPetRepoStub struct {
	mu          sync.Mutex
	pet         *models.Pet
	transitions []string
	denyGate    bool
	lastEvolved *time.Time
	records     []models.EvolutionRecord
	findErr     error
}

func (s *evolutionPetRepoStub) FindByID(ctx context.Context, id string) (*models.Pet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.pet == nil || s.pet.ID != id {
		return nil, sql.ErrNoRows
	}
	copied := *s.pet
	return &copied, nil
}

func (s *evolutionPetRepoStub) ListByPhase(ctx context.Context, phase models.EvolutionPhase) ([]models.Pet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pet == nil || s.pet.Phase != phase {
		return nil, nil
	}
	return []models.Pet{*s.pet}, nil
}

func (s *evolutionPetRepoStub) TransitionPhase(ctx context.Context, petID string, from, to models.EvolutionPhase) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = append(s.transitions, fmt.Sprintf("%s->%s", from, to))
	if s.denyGate && from == models.PhaseEligible && to == models.PhaseEvolving {
		return false, nil
	}
	if s.pet.Phase != from {
		return false, nil
	}
	s.pet.Phase = to
	return true, nil
}

func (s *evolutionPetRepoStub) CompleteEvolution(ctx context.Context, petID, appearancePath string) (*models.EvolutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pet.Level++
	s.pet.Phase = models.PhaseNotEligible
	s.pet.AppearancePath = &appearancePath
	record := models.EvolutionRecord{
		ID:             fmt.Sprintf("rec-%d", len(s.records)+1),
		PetID:          petID,
		Level:          s.pet.Level,
		AppearancePath: appearancePath,
		EvolvedAt:      time.Now().UTC(),
	}
	s.records = append(s.records, record)
	return &record, nil
}

func (s *evolutionPetRepoStub) ListRecords(ctx context.Context, petID string) ([]models.EvolutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.EvolutionRecord{}, s.records...), nil
}

func (s *evolutionPetRepoStub) LastEvolvedAt(ctx context.Context, petID string) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEvolved, nil
}

func (s *evolutionPetRepoStub) phase() models.EvolutionPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pet.Phase
}

type evolutionObservationRepoStub struct {
	history []models.DailyObservation
}

func (s *evolutionObservationRepoStub) HistorySince(ctx context.Context, petID string, since *time.Time) ([]models.DailyObservation, error) {
	if since == nil {
		return s.history, nil
	}
	filtered := []models.DailyObservation{}
	for _, obs := range s.history {
		if obs.Date.After(*since) {
			filtered = append(filtered, obs)
		}
	}
	return filtered, nil
}

type generatorStub struct {
	err   error
	image []byte
	done  chan struct{}
}

func (g *generatorStub) GenerateAppearance(ctx context.Context, pet *models.Pet) ([]byte, error) {
	if g.done != nil {
		defer close(g.done)
	}
	if g.err != nil {
		return nil, g.err
	}
	return g.image, nil
}

type storeStub struct {
	mu    sync.Mutex
	saved map[string][]byte
}

func (s *storeStub) Save(filename string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		s.saved = map[string][]byte{}
	}
	s.saved[filename] = data
	return filename, nil
}

func qualifyingHistory(days int) []models.DailyObservation {
	states := make([]models.EmotionalState, days)
	for i := range states {
		states[i] = models.StateActive
	}
	return makeHistory(states...)
}

func newTestEvolutionService(pets *evolutionPetRepoStub, observations *evolutionObservationRepoStub, gen AppearanceGenerator) *EvolutionService {
	return NewEvolutionService(
		pets,
		observations,
		gen,
		&storeStub{},
		storage.NewSignedURLSigner("test-secret", time.Hour),
		"/api/v1/downloads",
		nil,
		nil,
		nil,
		30,
		4,
	)
}

func TestEvolutionStatusPromotesEligiblePet(t *testing.T) {
	pets := &evolutionPetRepoStub{pet: &models.Pet{ID: "pet-1", Level: 1, Phase: models.PhaseNotEligible}}
	observations := &evolutionObservationRepoStub{history: qualifyingHistory(30)}
	svc := newTestEvolutionService(pets, observations, &generatorStub{})

	status, err := svc.Status(context.Background(), "pet-1")
	require.NoError(t, err)

	assert.Equal(t, models.PhaseEligible, status.Phase)
	assert.True(t, status.Eligibility.Eligible)
	assert.Equal(t, models.PhaseEligible, pets.phase())
}

func TestEvolutionStatusLeavesShortHistoryAlone(t *testing.T) {
	pets := &evolutionPetRepoStub{pet: &models.Pet{ID: "pet-1", Level: 1, Phase: models.PhaseNotEligible}}
	observations := &evolutionObservationRepoStub{history: qualifyingHistory(12)}
	svc := newTestEvolutionService(pets, observations, &generatorStub{})

	status, err := svc.Status(context.Background(), "pet-1")
	require.NoError(t, err)

	assert.Equal(t, models.PhaseNotEligible, status.Phase)
	assert.False(t, status.Eligibility.Eligible)
	assert.Equal(t, 12, status.Eligibility.DaysInPositiveState)
}

func TestEvolutionStatusCountsFromLastEvolution(t *testing.T) {
	evolvedAt := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	pets := &evolutionPetRepoStub{
		pet:         &models.Pet{ID: "pet-1", Level: 2, Phase: models.PhaseNotEligible},
		lastEvolved: &evolvedAt,
	}
	// 30 qualifying days total, but only 15 fall after the last evolution.
	observations := &evolutionObservationRepoStub{history: qualifyingHistory(30)}
	svc := newTestEvolutionService(pets, observations, &generatorStub{})

	status, err := svc.Status(context.Background(), "pet-1")
	require.NoError(t, err)

	assert.False(t, status.Eligibility.Eligible)
	assert.Equal(t, 15, status.Eligibility.DaysInPositiveState)
}

func TestEvolutionStatusUnknownPet(t *testing.T) {
	pets := &evolutionPetRepoStub{}
	svc := newTestEvolutionService(pets, &evolutionObservationRepoStub{}, &generatorStub{})

	_, err := svc.Status(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTriggerRejectsIneligiblePet(t *testing.T) {
	pets := &evolutionPetRepoStub{pet: &models.Pet{ID: "pet-1", Level: 1, Phase: models.PhaseNotEligible}}
	observations := &evolutionObservationRepoStub{history: qualifyingHistory(5)}
	svc := newTestEvolutionService(pets, observations, &generatorStub{})

	_, err := svc.Trigger(context.Background(), "pet-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotEligible.Code, appErrors.FromError(err).Code)
}

func TestTriggerRejectsWhileEvolving(t *testing.T) {
	pets := &evolutionPetRepoStub{pet: &models.Pet{ID: "pet-1", Level: 1, Phase: models.PhaseEvolving}}
	svc := newTestEvolutionService(pets, &evolutionObservationRepoStub{}, &generatorStub{})

	_, err := svc.Trigger(context.Background(), "pet-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrEvolutionInFlight.Code, appErrors.FromError(err).Code)
}

func TestTriggerSingleFlightGate(t *testing.T) {
	pets := &evolutionPetRepoStub{
		pet:      &models.Pet{ID: "pet-1", Level: 1, Phase: models.PhaseEligible},
		denyGate: true,
	}
	observations := &evolutionObservationRepoStub{history: qualifyingHistory(30)}
	svc := newTestEvolutionService(pets, observations, &generatorStub{})
	svc.Start(context.Background())
	defer svc.Stop()

	_, err := svc.Trigger(context.Background(), "pet-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrEvolutionInFlight.Code, appErrors.FromError(err).Code)
}

func TestTriggerRunsGenerationToCompletion(t *testing.T) {
	pets := &evolutionPetRepoStub{pet: &models.Pet{ID: "pet-1", Name: "Momo", Level: 1, Phase: models.PhaseEligible}}
	observations := &evolutionObservationRepoStub{history: qualifyingHistory(30)}
	gen := &generatorStub{image: []byte("png-bytes"), done: make(chan struct{})}
	svc := newTestEvolutionService(pets, observations, gen)
	svc.Start(context.Background())
	defer svc.Stop()

	status, err := svc.Trigger(context.Background(), "pet-1")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseEvolving, status.Phase)

	select {
	case <-gen.done:
	case <-time.After(2 * time.Second):
		t.Fatal("generation never ran")
	}

	require.Eventually(t, func() bool {
		return pets.phase() == models.PhaseNotEligible
	}, 2*time.Second, 10*time.Millisecond)

	pet, err := pets.FindByID(context.Background(), "pet-1")
	require.NoError(t, err)
	assert.Equal(t, 2, pet.Level)
	require.NotNil(t, pet.AppearancePath)
	assert.Equal(t, "pets/pet-1/level-2.png", *pet.AppearancePath)
	assert.NotContains(t, *pet.AppearancePath, "token")

	records, err := svc.Records(context.Background(), "pet-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 2, records[0].Level)
	assert.Contains(t, records[0].AppearanceURL, "/api/v1/downloads?token=")
}

func TestGenerationFailureRestoresEligiblePhase(t *testing.T) {
	pets := &evolutionPetRepoStub{pet: &models.Pet{ID: "pet-1", Level: 1, Phase: models.PhaseEvolving}}
	observations := &evolutionObservationRepoStub{history: qualifyingHistory(30)}
	gen := &generatorStub{err: errors.New("upstream 500")}
	svc := newTestEvolutionService(pets, observations, gen)

	job := jobs.Job{ID: "job-1", Type: "generate_appearance", Payload: "pet-1"}
	err := svc.handleGenerationJob(context.Background(), job)
	require.Error(t, err)

	assert.Equal(t, appErrors.ErrGeneration.Code, appErrors.FromError(err).Code)
	assert.Equal(t, models.PhaseEligible, pets.phase())
	assert.Empty(t, pets.records)
}

func TestRetryAfterFailedGenerationSucceeds(t *testing.T) {
	pets := &evolutionPetRepoStub{pet: &models.Pet{ID: "pet-1", Level: 1, Phase: models.PhaseEvolving}}
	observations := &evolutionObservationRepoStub{history: qualifyingHistory(30)}
	gen := &generatorStub{err: errors.New("upstream 500")}
	svc := newTestEvolutionService(pets, observations, gen)

	job := jobs.Job{ID: "job-1", Type: "generate_appearance", Payload: "pet-1"}
	require.Error(t, svc.handleGenerationJob(context.Background(), job))
	require.Equal(t, models.PhaseEligible, pets.phase())

	// Manual retry: trigger again with a healthy generator.
	gen.err = nil
	gen.image = []byte("png-bytes")
	svc.Start(context.Background())
	defer svc.Stop()

	_, err := svc.Trigger(context.Background(), "pet-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return pets.phase() == models.PhaseNotEligible
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStartRecoversStalledEvolvingPet(t *testing.T) {
	// An EVOLVING row with no live job: the process exited while the
	// generation was in flight.
	pets := &evolutionPetRepoStub{pet: &models.Pet{ID: "pet-1", Level: 1, Phase: models.PhaseEvolving}}
	observations := &evolutionObservationRepoStub{history: qualifyingHistory(30)}
	gen := &generatorStub{image: []byte("png-bytes"), done: make(chan struct{})}
	svc := newTestEvolutionService(pets, observations, gen)

	svc.Start(context.Background())
	defer svc.Stop()

	assert.Equal(t, models.PhaseEligible, pets.phase())

	// The pet is triggerable again instead of stuck behind the gate.
	status, err := svc.Trigger(context.Background(), "pet-1")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseEvolving, status.Phase)

	require.Eventually(t, func() bool {
		return pets.phase() == models.PhaseNotEligible
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStartLeavesHealthyPhasesAlone(t *testing.T) {
	pets := &evolutionPetRepoStub{pet: &models.Pet{ID: "pet-1", Level: 1, Phase: models.PhaseNotEligible}}
	svc := newTestEvolutionService(pets, &evolutionObservationRepoStub{}, &generatorStub{})

	svc.Start(context.Background())
	defer svc.Stop()

	assert.Equal(t, models.PhaseNotEligible, pets.phase())
}

func TestAppearanceURLMintsFreshToken(t *testing.T) {
	pets := &evolutionPetRepoStub{pet: &models.Pet{ID: "pet-1", Level: 2, Phase: models.PhaseNotEligible}}
	svc := newTestEvolutionService(pets, &evolutionObservationRepoStub{}, &generatorStub{})

	link, err := svc.AppearanceURL("pet-1", "pets/pet-1/level-2.png")
	require.NoError(t, err)
	require.Contains(t, link, "/api/v1/downloads?token=")

	rawToken, err := url.QueryUnescape(strings.TrimPrefix(link, "/api/v1/downloads?token="))
	require.NoError(t, err)

	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	fileID, relPath, _, err := signer.Parse(rawToken, false)
	require.NoError(t, err)
	assert.Equal(t, "pet-1", fileID)
	assert.Equal(t, "pets/pet-1/level-2.png", relPath)
}
