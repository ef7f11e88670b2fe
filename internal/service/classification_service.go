package service

import (
	"go.uber.org/zap"

	"github.com/symbi-app/symbi-api/internal/models"
)

// Secondary-signal boundaries used by the default rule table. Product-tunable
// through a custom rule set, not through config.
const (
	lowHRV     = 30.0
	highHRV    = 60.0
	shortSleep = 6.0
	longSleep  = 8.0
)

// StateRule refines a day's primary tier using secondary signals. Rules are
// evaluated in order; the first one that applies wins and the tier's base
// state is used when none do.
type StateRule struct {
	Name    string
	State   models.EmotionalState
	Applies func(sample models.HealthSample, tier models.StateTier) bool
}

// DefaultStateRules returns the stock secondary policy. High activity with a
// strained nervous system reads as stress rather than vigour; quiet days with
// plenty of sleep read as recovery.
func DefaultStateRules() []StateRule {
	return []StateRule{
		{
			Name:  "active_low_hrv_stressed",
			State: models.StateStressed,
			Applies: func(s models.HealthSample, tier models.StateTier) bool {
				return tier == models.TierActive && s.HRV != nil && *s.HRV < lowHRV
			},
		},
		{
			Name:  "active_short_sleep_tired",
			State: models.StateTired,
			Applies: func(s models.HealthSample, tier models.StateTier) bool {
				return tier == models.TierActive && s.SleepHours != nil && *s.SleepHours < shortSleep
			},
		},
		{
			Name:  "active_high_hrv_vibrant",
			State: models.StateVibrant,
			Applies: func(s models.HealthSample, tier models.StateTier) bool {
				return tier == models.TierActive && s.HRV != nil && *s.HRV >= highHRV
			},
		},
		{
			Name:  "resting_long_sleep_rested",
			State: models.StateRested,
			Applies: func(s models.HealthSample, tier models.StateTier) bool {
				return tier == models.TierResting && s.SleepHours != nil && *s.SleepHours >= longSleep
			},
		},
		{
			Name:  "resting_high_hrv_calm",
			State: models.StateCalm,
			Applies: func(s models.HealthSample, tier models.StateTier) bool {
				return tier == models.TierResting && s.HRV != nil && *s.HRV >= highHRV
			},
		},
		{
			Name:  "sad_low_hrv_anxious",
			State: models.StateAnxious,
			Applies: func(s models.HealthSample, tier models.StateTier) bool {
				return tier == models.TierSad && s.HRV != nil && *s.HRV < lowHRV
			},
		},
		{
			Name:  "sad_short_sleep_tired",
			State: models.StateTired,
			Applies: func(s models.HealthSample, tier models.StateTier) bool {
				return tier == models.TierSad && s.SleepHours != nil && *s.SleepHours < shortSleep
			},
		},
	}
}

// Tier maps a step count onto its primary band. Thresholds are inclusive
// lower bounds of the next tier, so every non-negative count lands in exactly
// one band.
func Tier(steps int, thresholds models.StepThresholds) models.StateTier {
	switch {
	case steps >= thresholds.ActiveThreshold:
		return models.TierActive
	case steps >= thresholds.SadThreshold:
		return models.TierResting
	default:
		return models.TierSad
	}
}

// ClassificationService maps a day's health sample onto an emotional state.
type ClassificationService struct {
	rules   []StateRule
	metrics *MetricsService
	logger  *zap.Logger
}

// NewClassificationService constructs the classifier. A nil rule slice keeps
// the default secondary policy.
func NewClassificationService(rules []StateRule, metrics *MetricsService, logger *zap.Logger) *ClassificationService {
	if rules == nil {
		rules = DefaultStateRules()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassificationService{rules: rules, metrics: metrics, logger: logger}
}

// Classify returns exactly one emotional state for the sample. It is a pure
// function of its inputs: the primary stepcount partition decides the tier,
// and the rule table may refine it when secondary signals are present.
// Thresholds are validated at configuration entry and never rejected here.
func (s *ClassificationService) Classify(sample models.HealthSample, thresholds models.StepThresholds) models.EmotionalState {
	tier := Tier(sample.Steps, thresholds)
	state := tier.State()
	for _, rule := range s.rules {
		if rule.Applies(sample, tier) {
			state = rule.State
			break
		}
	}
	if s.metrics != nil {
		s.metrics.RecordClassification(state)
	}
	return state
}
