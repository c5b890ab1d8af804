package domain

import (
	"math"
	"time"
)

// Direction of a candidate trade.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Decision is the budget manager's verdict on a trade request.
type Decision string

const (
	DecisionAllow      Decision = "ALLOW"
	DecisionReduceSize Decision = "REDUCE_SIZE"
	DecisionReject     Decision = "REJECT"
)

// Budget reason codes. The primary reason of a response is the first
// failed check in evaluation order; REJECT synthesis picks among failed
// budget dimensions by priority (see ReasonPriority).
const (
	ReasonWithinLimits            = "WITHIN_LIMITS"
	ReasonInvalidParameters       = "INVALID_PARAMETERS"
	ReasonTradingHalted           = "TRADING_HALTED"
	ReasonStaleEquityData         = "STALE_EQUITY_DATA"
	ReasonEquityBelowFloor        = "EQUITY_BELOW_FLOOR"
	ReasonDrawdownLimitBreached   = "DRAWDOWN_LIMIT_BREACHED"
	ReasonDailyBudgetExhausted    = "DAILY_BUDGET_EXHAUSTED"
	ReasonOpenRiskLimitReached    = "OPEN_RISK_LIMIT_REACHED"
	ReasonExceedsPerTradeLimit    = "EXCEEDS_PER_TRADE_LIMIT"
	ReasonExceedsRemainingDaily   = "EXCEEDS_REMAINING_DAILY"
	ReasonExceedsRemainingOpen    = "EXCEEDS_REMAINING_OPEN"
	ReasonMaxPositionsReached     = "MAX_POSITIONS_REACHED"
	ReasonDuplicateSymbolPosition = "DUPLICATE_SYMBOL_POSITION"
	ReasonConsecutiveLossLimit    = "CONSECUTIVE_LOSS_LIMIT"
	ReasonDegradedDataHealth      = "DEGRADED_DATA_HEALTH"
)

// ReasonPriority orders REJECT reasons from most to least severe when more
// than one budget dimension failed.
var ReasonPriority = []string{
	ReasonDrawdownLimitBreached,
	ReasonDailyBudgetExhausted,
	ReasonOpenRiskLimitReached,
	ReasonExceedsPerTradeLimit,
	ReasonExceedsRemainingDaily,
	ReasonExceedsRemainingOpen,
}

// TradeRiskRequest is a candidate trade submitted to the budget manager.
type TradeRiskRequest struct {
	RequestID     string    `json:"request_id"`
	Symbol        string    `json:"symbol"`
	Exchange      string    `json:"exchange"`
	Direction     Direction `json:"direction"`
	EntryPrice    float64   `json:"entry_price"`
	StopLossPrice float64   `json:"stop_loss_price"`
	PositionSize  float64   `json:"position_size"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// RiskAmount is the absolute currency amount at risk: |entry - stop| * size.
func (r TradeRiskRequest) RiskAmount() float64 {
	return math.Abs(r.EntryPrice-r.StopLossPrice) * r.PositionSize
}

// RiskPct is the risk amount as a percentage of the given equity.
func (r TradeRiskRequest) RiskPct(equity float64) float64 {
	if equity <= 0 {
		return 0
	}
	return r.RiskAmount() / equity * 100
}

// Validate checks request well-formedness: positive size and prices, and
// the stop on the loss side of the entry for the given direction.
func (r TradeRiskRequest) Validate() []string {
	var problems []string
	if r.Symbol == "" {
		problems = append(problems, "symbol is empty")
	}
	if r.PositionSize <= 0 {
		problems = append(problems, "position size must be positive")
	}
	if r.EntryPrice <= 0 {
		problems = append(problems, "entry price must be positive")
	}
	if r.StopLossPrice <= 0 {
		problems = append(problems, "stop loss price must be positive")
	}
	switch r.Direction {
	case DirectionLong:
		if r.StopLossPrice >= r.EntryPrice && r.EntryPrice > 0 {
			problems = append(problems, "stop loss must be below entry for LONG")
		}
	case DirectionShort:
		if r.StopLossPrice <= r.EntryPrice && r.StopLossPrice > 0 {
			problems = append(problems, "stop loss must be above entry for SHORT")
		}
	default:
		problems = append(problems, "direction must be LONG or SHORT")
	}
	return problems
}

// BudgetCheck records the outcome of one evaluation step. All checks are
// recorded in the response, passed or not.
type BudgetCheck struct {
	Name      string  `json:"name"`
	Passed    bool    `json:"passed"`
	Reason    string  `json:"reason"`
	LimitPct  float64 `json:"limit_pct"`
	UsedPct   float64 `json:"used_pct"`
	Remaining float64 `json:"remaining_pct"`
	// Reducible marks checks whose remaining budget can cap the size.
	Reducible bool `json:"reducible"`
}

// TradeRiskResponse is the budget manager's structured decision.
//
// Invariants: REJECT implies AllowedSize == 0; REDUCE_SIZE implies
// 0 < AllowedSize < requested size; ALLOW implies AllowedSize equals the
// requested size.
type TradeRiskResponse struct {
	RequestID      string             `json:"request_id"`
	Symbol         string             `json:"symbol"`
	Decision       Decision           `json:"decision"`
	PrimaryReason  string             `json:"primary_reason"`
	AllowedSize    float64            `json:"allowed_size"`
	AllowedRiskPct float64            `json:"allowed_risk_pct"`
	Checks         []BudgetCheck      `json:"checks"`
	Snapshot       RiskBudgetSnapshot `json:"snapshot"`
	EvaluatedAt    time.Time          `json:"evaluated_at"`
	DurationMS     float64            `json:"duration_ms"`
}

// PositionStatus tracks the lifecycle of an open position's risk record.
type PositionStatus string

const (
	PositionOpen            PositionStatus = "OPEN"
	PositionPartiallyClosed PositionStatus = "PARTIALLY_CLOSED"
	PositionClosed          PositionStatus = "CLOSED"
)

// OpenPositionRisk is the tracker's record of one open position's risk.
// Owned exclusively by the tracker; external code references by id.
type OpenPositionRisk struct {
	PositionID    string         `json:"position_id"`
	Symbol        string         `json:"symbol"`
	Exchange      string         `json:"exchange"`
	Direction     Direction      `json:"direction"`
	EntryPrice    float64        `json:"entry_price"`
	CurrentStop   float64        `json:"current_stop"`
	Size          float64        `json:"size"`
	RiskAmount    float64        `json:"risk_amount"`
	RiskPct       float64        `json:"risk_pct"`
	EquityAtEntry float64        `json:"equity_at_entry"`
	Status        PositionStatus `json:"status"`
	OpenedAt      time.Time      `json:"opened_at"`
	ClosedAt      *time.Time     `json:"closed_at,omitempty"`
	RealizedPnL   *float64       `json:"realized_pnl,omitempty"`
}

// DailyRiskUsage is one day's budget consumption, keyed by UTC date.
type DailyRiskUsage struct {
	Date           string  `json:"date"`
	BudgetLimitPct float64 `json:"budget_limit_pct"`
	ConsumedPct    float64 `json:"consumed_pct"`
	PeakOpenPct    float64 `json:"peak_open_pct"`
	TradesTaken    int     `json:"trades_taken"`
	TradesRejected int     `json:"trades_rejected"`
	RealizedPnL    float64 `json:"realized_pnl"`
}

// EquityUpdate is pushed by the account monitor adapter; the tracker
// treats it as the source of truth for account equity.
type EquityUpdate struct {
	Equity    float64   `json:"equity"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// RiskBudgetSnapshot is an immutable point-in-time view of the tracker.
type RiskBudgetSnapshot struct {
	Equity            float64   `json:"equity"`
	PeakEquity        float64   `json:"peak_equity"`
	DrawdownPct       float64   `json:"drawdown_pct"`
	Tier              string    `json:"tier"`
	PerTradeLimitPct  float64   `json:"per_trade_limit_pct"`
	DailyLimitPct     float64   `json:"daily_limit_pct"`
	DailyUsedPct      float64   `json:"daily_used_pct"`
	DailyRemainingPct float64   `json:"daily_remaining_pct"`
	OpenLimitPct      float64   `json:"open_limit_pct"`
	OpenUsedPct       float64   `json:"open_used_pct"`
	OpenRemainingPct  float64   `json:"open_remaining_pct"`
	OpenPositions     int       `json:"open_positions"`
	MaxPositions      int       `json:"max_positions"`
	ConsecutiveLosses int       `json:"consecutive_losses"`
	Halted            bool      `json:"halted"`
	HaltReason        string    `json:"halt_reason,omitempty"`
	EquityUpdatedAt   time.Time `json:"equity_updated_at"`
	TakenAt           time.Time `json:"taken_at"`
}

// CapitalTier selects budget percentages by equity bucket. MaxEquity of 0
// means unbounded.
type CapitalTier struct {
	Name         string  `json:"name"`
	MinEquity    float64 `json:"min_equity"`
	MaxEquity    float64 `json:"max_equity"`
	PerTradePct  float64 `json:"per_trade_pct"`
	DailyPct     float64 `json:"daily_pct"`
	OpenPct      float64 `json:"open_pct"`
	MaxPositions int     `json:"max_positions"`
}

// Contains reports whether the given equity falls inside this tier.
func (t CapitalTier) Contains(equity float64) bool {
	if equity < t.MinEquity {
		return false
	}
	return t.MaxEquity == 0 || equity < t.MaxEquity
}

// DrawdownPoint is one appended sample of the drawdown history.
type DrawdownPoint struct {
	Equity      float64   `json:"equity"`
	PeakEquity  float64   `json:"peak_equity"`
	DrawdownPct float64   `json:"drawdown_pct"`
	At          time.Time `json:"at"`
}
