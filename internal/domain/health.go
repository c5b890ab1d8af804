package domain

import "time"

// HealthState buckets a source's final health score.
type HealthState string

const (
	HealthHealthy  HealthState = "HEALTHY"
	HealthDegraded HealthState = "DEGRADED"
	HealthCritical HealthState = "CRITICAL"
	HealthUnknown  HealthState = "UNKNOWN"
)

// Health score cutoffs. HEALTHY at 85 and above, CRITICAL below 65.
const (
	HealthyScoreMin  = 85.0
	DegradedScoreMin = 65.0
)

// HealthStateFromScore maps a final score 0-100 to its state.
func HealthStateFromScore(score float64) HealthState {
	switch {
	case score >= HealthyScoreMin:
		return HealthHealthy
	case score >= DegradedScoreMin:
		return HealthDegraded
	default:
		return HealthCritical
	}
}

// HealthDimension identifies one of the five scoring dimensions.
type HealthDimension string

const (
	HealthAvailability HealthDimension = "AVAILABILITY"
	HealthFreshness    HealthDimension = "FRESHNESS"
	HealthConsistency  HealthDimension = "CONSISTENCY"
	HealthCompleteness HealthDimension = "COMPLETENESS"
	HealthErrorRate    HealthDimension = "ERROR_RATE"
)

// HealthDimensions lists all dimensions in scoring order.
var HealthDimensions = []HealthDimension{
	HealthAvailability,
	HealthFreshness,
	HealthConsistency,
	HealthCompleteness,
	HealthErrorRate,
}

// DimensionScore is one scorer's output. Flagged marks scores computed
// from insufficient samples; Err carries a recovered scorer failure, in
// which case the score is zero (fail-safe).
type DimensionScore struct {
	Dimension   HealthDimension `json:"dimension"`
	Score       float64         `json:"score"`
	Explanation string          `json:"explanation"`
	Flagged     bool            `json:"flagged,omitempty"`
	Err         string          `json:"error,omitempty"`
}

// HealthScore is the weighted combination of all dimension scores for one
// source at one evaluation.
type HealthScore struct {
	Source        string                             `json:"source"`
	FinalScore    float64                            `json:"final_score"`
	State         HealthState                        `json:"state"`
	PreviousState HealthState                        `json:"previous_state"`
	Dimensions    map[HealthDimension]DimensionScore `json:"dimensions"`
	EvaluatedAt   time.Time                          `json:"evaluated_at"`
	DurationMS    float64                            `json:"duration_ms"`
}

// SourceHealthTransition is emitted by the registry when a source's state
// changes; unchanged evaluations are debounced.
type SourceHealthTransition struct {
	Source string      `json:"source"`
	From   HealthState `json:"from"`
	To     HealthState `json:"to"`
	Score  float64     `json:"score"`
	At     time.Time   `json:"at"`
}

// RiskMultiplier converts a health score into the budget scaling factor:
// HEALTHY 1.0, DEGRADED linear between 0.5 and 0.8 across its band,
// CRITICAL and UNKNOWN 0.0.
func (h HealthScore) RiskMultiplier() float64 {
	switch h.State {
	case HealthHealthy:
		return 1.0
	case HealthDegraded:
		span := HealthyScoreMin - DegradedScoreMin
		frac := (h.FinalScore - DegradedScoreMin) / span
		return 0.5 + 0.3*frac
	default:
		return 0.0
	}
}
