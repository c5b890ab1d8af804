package domain

import (
	"fmt"
	"time"
)

// Stage is one step of the orchestrator pipeline, executed in declared
// order within a cycle.
type Stage string

const (
	StageIngest    Stage = "INGEST"
	StageProcess   Stage = "PROCESS"
	StageRiskScore Stage = "RISK_SCORE"
	StageStrategy  Stage = "STRATEGY"
	StageExecute   Stage = "EXECUTE"
	StageMonitor   Stage = "MONITOR"
)

// PipelineOrder is the canonical stage order; every mode runs a subset of
// it in this order.
var PipelineOrder = []Stage{
	StageIngest,
	StageProcess,
	StageRiskScore,
	StageStrategy,
	StageExecute,
	StageMonitor,
}

// RuntimeMode selects which stages a process runs.
type RuntimeMode string

const (
	ModeFull     RuntimeMode = "full"
	ModeIngest   RuntimeMode = "ingest"
	ModeProcess  RuntimeMode = "process"
	ModeRisk     RuntimeMode = "risk"
	ModeTrade    RuntimeMode = "trade"
	ModeBacktest RuntimeMode = "backtest"
	ModeMonitor  RuntimeMode = "monitor"
)

var modeStages = map[RuntimeMode][]Stage{
	ModeFull:     {StageIngest, StageProcess, StageRiskScore, StageStrategy, StageExecute, StageMonitor},
	ModeIngest:   {StageIngest},
	ModeProcess:  {StageIngest, StageProcess},
	ModeRisk:     {StageIngest, StageProcess, StageRiskScore},
	ModeTrade:    {StageRiskScore, StageStrategy, StageExecute, StageMonitor},
	ModeBacktest: {StageProcess, StageRiskScore, StageStrategy},
	ModeMonitor:  {StageMonitor},
}

// ParseRuntimeMode validates a mode name from flag or environment.
func ParseRuntimeMode(name string) (RuntimeMode, error) {
	mode := RuntimeMode(name)
	if _, ok := modeStages[mode]; !ok {
		return "", fmt.Errorf("unknown runtime mode %q", name)
	}
	return mode, nil
}

// Stages returns the stage set for this mode, in pipeline order.
func (m RuntimeMode) Stages() []Stage {
	stages := modeStages[m]
	out := make([]Stage, len(stages))
	copy(out, stages)
	return out
}

// StageStatus is the terminal status of one stage within a cycle.
type StageStatus string

const (
	StageSuccess StageStatus = "SUCCESS"
	StageFailed  StageStatus = "FAILED"
	StageTimeout StageStatus = "TIMEOUT"
	StageSkipped StageStatus = "SKIPPED"
)

// StageResult records one stage's execution inside a cycle record.
type StageResult struct {
	Stage    Stage         `json:"stage"`
	Status   StageStatus   `json:"status"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// CycleRecord is the persisted bookkeeping of one pipeline traversal.
type CycleRecord struct {
	CycleID    string        `json:"cycle_id"`
	Mode       RuntimeMode   `json:"mode"`
	Sequence   int64         `json:"sequence"`
	Stages     []StageResult `json:"stages"`
	Success    bool          `json:"success"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}
