package health

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/config"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
)

// HealthScorer combines the five dimension scores into one weighted final
// score. A scorer panic zeroes its dimension; a failure of the evaluation
// itself yields CRITICAL. The evaluation never panics outward.
type HealthScorer struct {
	scorers map[domain.HealthDimension]DimensionScorer
	weights map[domain.HealthDimension]float64
	log     zerolog.Logger
}

// NewHealthScorer builds the standard five scorers from config.
func NewHealthScorer(cfg config.HealthConfig, log zerolog.Logger) *HealthScorer {
	scorers := map[domain.HealthDimension]DimensionScorer{
		domain.HealthAvailability: NewAvailabilityScorer(cfg.MinSamples),
		domain.HealthFreshness:    NewFreshnessScorer(cfg.FreshCutoff, cfg.StaleCutoff),
		domain.HealthConsistency:  NewConsistencyScorer(cfg.OutlierZThreshold, cfg.MinSamples),
		domain.HealthCompleteness: NewCompletenessScorer(cfg.MinSamples),
		domain.HealthErrorRate:    NewErrorRateScorer(cfg.MinSamples),
	}
	return &HealthScorer{
		scorers: scorers,
		weights: cfg.Weights,
		log:     log.With().Str("component", "health_scorer").Logger(),
	}
}

// ReplaceScorer swaps one dimension's scorer. Used by tests to inject
// failing scorers.
func (s *HealthScorer) ReplaceScorer(scorer DimensionScorer) {
	s.scorers[scorer.Dimension()] = scorer
}

// Evaluate scores one source's snapshot across all dimensions.
func (s *HealthScorer) Evaluate(snap MetricsSnapshot) (score domain.HealthScore) {
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Str("source", snap.Source).
				Interface("panic", r).
				Msg("Health evaluation failed, marking source CRITICAL")
			score = domain.HealthScore{
				Source:      snap.Source,
				FinalScore:  0,
				State:       domain.HealthCritical,
				EvaluatedAt: snap.Now,
				DurationMS:  float64(time.Since(started).Microseconds()) / 1000,
			}
		}
	}()

	dimensions := make(map[domain.HealthDimension]domain.DimensionScore, len(s.scorers))
	var final float64
	failed := false
	for _, dim := range domain.HealthDimensions {
		scorer, ok := s.scorers[dim]
		if !ok {
			continue
		}
		ds := s.runScorer(scorer, snap)
		dimensions[dim] = ds
		if ds.Err != "" {
			failed = true
		}
		final += s.weights[dim] * ds.Score
	}
	final = clampScore(final)

	// A failed scorer means the evaluation cannot be trusted at all:
	// assume the worst rather than average around the gap.
	if failed {
		final = 0
	}

	return domain.HealthScore{
		Source:      snap.Source,
		FinalScore:  final,
		State:       domain.HealthStateFromScore(final),
		Dimensions:  dimensions,
		EvaluatedAt: snap.Now,
		DurationMS:  float64(time.Since(started).Microseconds()) / 1000,
	}
}

// runScorer isolates one scorer: a panic becomes a zero score for that
// dimension, dragging the final score down instead of crashing.
func (s *HealthScorer) runScorer(scorer DimensionScorer, snap MetricsSnapshot) (ds domain.DimensionScore) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn().
				Str("source", snap.Source).
				Str("dimension", string(scorer.Dimension())).
				Interface("panic", r).
				Msg("Dimension scorer failed, scoring zero")
			ds = domain.DimensionScore{
				Dimension: scorer.Dimension(),
				Score:     0,
				Err:       fmt.Sprintf("scorer panic: %v", r),
			}
		}
	}()
	return scorer.Score(snap)
}
