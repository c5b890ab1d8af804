package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// RiskState is the assessed state of a single risk dimension. Values are
// additive: the four dimension states sum to the total score 0-8.
type RiskState int

const (
	RiskSafe      RiskState = 0
	RiskWarning   RiskState = 1
	RiskDangerous RiskState = 2
)

var riskStateNames = map[RiskState]string{
	RiskSafe:      "SAFE",
	RiskWarning:   "WARNING",
	RiskDangerous: "DANGEROUS",
}

func (s RiskState) String() string {
	if name, ok := riskStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("RiskState(%d)", int(s))
}

func (s RiskState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *RiskState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for v, n := range riskStateNames {
		if n == name {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown risk state %q", name)
}

// MaxRiskState returns the highest of the given states, SAFE when empty.
func MaxRiskState(states ...RiskState) RiskState {
	max := RiskSafe
	for _, s := range states {
		if s > max {
			max = s
		}
	}
	return max
}

// RiskDimension identifies one of the four environmental risk dimensions.
type RiskDimension string

const (
	DimensionMarket          RiskDimension = "MARKET"
	DimensionLiquidity       RiskDimension = "LIQUIDITY"
	DimensionVolatility      RiskDimension = "VOLATILITY"
	DimensionSystemIntegrity RiskDimension = "SYSTEM_INTEGRITY"
)

// RiskDimensions lists all dimensions in assessment order.
var RiskDimensions = []RiskDimension{
	DimensionMarket,
	DimensionLiquidity,
	DimensionVolatility,
	DimensionSystemIntegrity,
}

// RiskLevel is the overall environmental risk bucket.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "LOW"
	RiskLevelMedium   RiskLevel = "MEDIUM"
	RiskLevelHigh     RiskLevel = "HIGH"
	RiskLevelCritical RiskLevel = "CRITICAL"
)

// RiskLevelFromTotal maps a total score 0-8 to its level by fixed cutoffs.
func RiskLevelFromTotal(total int) RiskLevel {
	switch {
	case total <= 2:
		return RiskLevelLow
	case total <= 4:
		return RiskLevelMedium
	case total <= 6:
		return RiskLevelHigh
	default:
		return RiskLevelCritical
	}
}

// Rank orders risk levels for escalation detection.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskLevelLow:
		return 0
	case RiskLevelMedium:
		return 1
	case RiskLevelHigh:
		return 2
	case RiskLevelCritical:
		return 3
	default:
		return 0
	}
}

// RiskFactor is one metric's contribution to a dimension assessment.
type RiskFactor struct {
	Name  string    `json:"name"`
	Value float64   `json:"value"`
	State RiskState `json:"state"`
}

// DimensionAssessment is the outcome of assessing a single dimension:
// the dimension state is the maximum of its factor states and the reason
// names the highest-severity factor.
type DimensionAssessment struct {
	Dimension  RiskDimension      `json:"dimension"`
	State      RiskState          `json:"state"`
	Reason     string             `json:"reason"`
	Factors    []RiskFactor       `json:"factors,omitempty"`
	Thresholds map[string]float64 `json:"thresholds,omitempty"`
}

// RiskAssessment is the engine's full output for one cycle.
type RiskAssessment struct {
	Total            int                                   `json:"total"`
	Level            RiskLevel                             `json:"level"`
	Dimensions       map[RiskDimension]DimensionAssessment `json:"dimensions"`
	InsufficientData bool                                  `json:"insufficient_data"`
	MissingFields    []string                              `json:"missing_fields,omitempty"`
	EvaluatedAt      time.Time                             `json:"evaluated_at"`
}

// RiskStateChange describes an escalation between two assessments, either
// of a single dimension or of the overall level. Candidates for alerting.
type RiskStateChange struct {
	Dimension RiskDimension `json:"dimension,omitempty"`
	FromState RiskState     `json:"from_state,omitempty"`
	ToState   RiskState     `json:"to_state,omitempty"`
	FromLevel RiskLevel     `json:"from_level,omitempty"`
	ToLevel   RiskLevel     `json:"to_level,omitempty"`
	Overall   bool          `json:"overall"`
	Reason    string        `json:"reason"`
	At        time.Time     `json:"at"`
}
