package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/symbi-app/symbi-api/internal/models"
)

func floatPtr(v float64) *float64 { return &v }

func defaultThresholds() models.StepThresholds {
	return models.StepThresholds{SadThreshold: 2000, ActiveThreshold: 8000}
}

func TestTierBoundaries(t *testing.T) {
	thresholds := defaultThresholds()

	assert.Equal(t, models.TierSad, Tier(0, thresholds))
	assert.Equal(t, models.TierSad, Tier(1999, thresholds))
	assert.Equal(t, models.TierResting, Tier(2000, thresholds))
	assert.Equal(t, models.TierResting, Tier(7999, thresholds))
	assert.Equal(t, models.TierActive, Tier(8000, thresholds))
	assert.Equal(t, models.TierActive, Tier(50000, thresholds))
}

func TestTierRespectsCustomThresholds(t *testing.T) {
	thresholds := models.StepThresholds{SadThreshold: 500, ActiveThreshold: 12000}

	assert.Equal(t, models.TierResting, Tier(8000, thresholds))
	assert.Equal(t, models.TierActive, Tier(12000, thresholds))
	assert.Equal(t, models.TierSad, Tier(499, thresholds))
}

func TestClassifyStepsOnlyFallsBackToTierState(t *testing.T) {
	svc := NewClassificationService(nil, nil, nil)
	thresholds := defaultThresholds()

	assert.Equal(t, models.StateSad, svc.Classify(models.HealthSample{Steps: 1000}, thresholds))
	assert.Equal(t, models.StateResting, svc.Classify(models.HealthSample{Steps: 5000}, thresholds))
	assert.Equal(t, models.StateActive, svc.Classify(models.HealthSample{Steps: 9000}, thresholds))
}

func TestClassifySecondarySignals(t *testing.T) {
	svc := NewClassificationService(nil, nil, nil)
	thresholds := defaultThresholds()

	cases := []struct {
		name   string
		sample models.HealthSample
		want   models.EmotionalState
	}{
		{
			name:   "active with low hrv is stressed",
			sample: models.HealthSample{Steps: 10000, HRV: floatPtr(25)},
			want:   models.StateStressed,
		},
		{
			name:   "active with short sleep is tired",
			sample: models.HealthSample{Steps: 10000, SleepHours: floatPtr(5)},
			want:   models.StateTired,
		},
		{
			name:   "active with high hrv is vibrant",
			sample: models.HealthSample{Steps: 10000, HRV: floatPtr(70)},
			want:   models.StateVibrant,
		},
		{
			name:   "resting with long sleep is rested",
			sample: models.HealthSample{Steps: 4000, SleepHours: floatPtr(9)},
			want:   models.StateRested,
		},
		{
			name:   "resting with high hrv is calm",
			sample: models.HealthSample{Steps: 4000, HRV: floatPtr(65)},
			want:   models.StateCalm,
		},
		{
			name:   "sad with low hrv is anxious",
			sample: models.HealthSample{Steps: 500, HRV: floatPtr(20)},
			want:   models.StateAnxious,
		},
		{
			name:   "sad with short sleep is tired",
			sample: models.HealthSample{Steps: 500, SleepHours: floatPtr(4)},
			want:   models.StateTired,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, svc.Classify(tc.sample, thresholds))
		})
	}
}

func TestClassifyRuleOrderBreaksTies(t *testing.T) {
	svc := NewClassificationService(nil, nil, nil)
	thresholds := defaultThresholds()

	// Low HRV outranks short sleep on active days.
	sample := models.HealthSample{Steps: 10000, HRV: floatPtr(25), SleepHours: floatPtr(4)}
	assert.Equal(t, models.StateStressed, svc.Classify(sample, thresholds))

	// High HRV and long sleep on a resting day resolves to rested first.
	sample = models.HealthSample{Steps: 4000, HRV: floatPtr(70), SleepHours: floatPtr(9)}
	assert.Equal(t, models.StateRested, svc.Classify(sample, thresholds))
}

func TestClassifyMissingSignalsNeverFireSecondaryRules(t *testing.T) {
	svc := NewClassificationService(nil, nil, nil)
	thresholds := defaultThresholds()

	for steps, want := range map[int]models.EmotionalState{
		0:     models.StateSad,
		3000:  models.StateResting,
		20000: models.StateActive,
	} {
		assert.Equal(t, want, svc.Classify(models.HealthSample{Steps: steps}, thresholds))
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	svc := NewClassificationService(nil, nil, nil)
	thresholds := defaultThresholds()
	sample := models.HealthSample{Steps: 10000, HRV: floatPtr(45), SleepHours: floatPtr(7)}

	first := svc.Classify(sample, thresholds)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, svc.Classify(sample, thresholds))
	}
	// Mid-band HRV and sleep trip no secondary rule on an active day.
	assert.Equal(t, models.StateActive, first)
}

func TestClassifyCustomRuleTable(t *testing.T) {
	rules := []StateRule{
		{
			Name:  "always_vibrant",
			State: models.StateVibrant,
			Applies: func(models.HealthSample, models.StateTier) bool {
				return true
			},
		},
	}
	svc := NewClassificationService(rules, nil, nil)

	assert.Equal(t, models.StateVibrant, svc.Classify(models.HealthSample{Steps: 0}, defaultThresholds()))
}
