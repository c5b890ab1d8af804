// Package riskscore computes the deterministic environmental risk
// assessment each cycle. Four dimension assessors grade their metrics into
// SAFE, WARNING or DANGEROUS; the states sum to a total score 0-8 that maps
// to the overall risk level. No learning, no probabilities, no I/O.
package riskscore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clock"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/config"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
)

// Engine dispatches the observation to one assessor per dimension and folds
// the states into the overall assessment.
type Engine struct {
	assessors map[domain.RiskDimension]DimensionAssessor
	clk       clock.Clock
	log       zerolog.Logger
}

func NewEngine(cfg config.ScoringConfig, clk clock.Clock, log zerolog.Logger) *Engine {
	return &Engine{
		assessors: map[domain.RiskDimension]DimensionAssessor{
			domain.DimensionMarket:          NewMarketAssessor(cfg),
			domain.DimensionLiquidity:       NewLiquidityAssessor(cfg),
			domain.DimensionVolatility:      NewVolatilityAssessor(cfg),
			domain.DimensionSystemIntegrity: NewSystemIntegrityAssessor(cfg),
		},
		clk: clk,
		log: log.With().Str("component", "riskscore").Logger(),
	}
}

// ReplaceAssessor swaps the implementation registered for the assessor's
// dimension. Used by tests to pin individual dimension outcomes.
func (e *Engine) ReplaceAssessor(a DimensionAssessor) {
	e.assessors[a.Dimension()] = a
}

// Evaluate scores the observation across all four dimensions. A dimension
// lacking its minimum inputs is scored DANGEROUS and the result is tagged;
// the returned error wraps domain.ErrInsufficientData but the assessment is
// still complete and usable.
func (e *Engine) Evaluate(obs Observation) (domain.RiskAssessment, error) {
	dims := make(map[domain.RiskDimension]domain.DimensionAssessment, len(domain.RiskDimensions))
	var missing []string
	total := 0

	for _, dim := range domain.RiskDimensions {
		assessment, err := e.assessors[dim].Assess(obs)
		if err != nil {
			var mf *MissingFieldsError
			if errors.As(err, &mf) {
				missing = append(missing, mf.Fields...)
			} else {
				return domain.RiskAssessment{}, fmt.Errorf("failed to assess %s: %w", dim, err)
			}
		}
		dims[dim] = assessment
		total += int(assessment.State)
	}

	result := domain.RiskAssessment{
		Total:       total,
		Level:       domain.RiskLevelFromTotal(total),
		Dimensions:  dims,
		EvaluatedAt: e.clk.Now().UTC(),
	}

	e.log.Debug().
		Str("symbol", obs.Symbol).
		Int("total", total).
		Str("level", string(result.Level)).
		Msg("Risk assessment computed")

	if len(missing) > 0 {
		result.InsufficientData = true
		result.MissingFields = missing
		return result, fmt.Errorf("%w: %s", domain.ErrInsufficientData, strings.Join(missing, ", "))
	}
	return result, nil
}
