package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/database"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
)

func openAuditDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "audit.db"),
		Profile: database.ProfileAudit,
		Name:    "audit",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestHaltRepository_RecordAndListEvents(t *testing.T) {
	db := openAuditDB(t)
	repo := NewHaltRepository(db.Conn(), zerolog.Nop())

	event := domain.HaltEvent{
		ID:            "evt-1",
		Trigger:       domain.TriggerPositionMismatch,
		Category:      domain.CategoryExecution,
		Level:         domain.HaltHard,
		Reason:        "broker reports 3 positions, tracker has 2",
		MonitorID:     "execution_integrity",
		Symbol:        "BTCUSDT",
		Snapshot:      map[string]any{"broker_positions": float64(3), "tracked": float64(2)},
		CorrelationID: "corr-abc",
		CreatedAt:     time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.RecordEvent(event))

	events, err := repo.ListEvents(10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	got := events[0]
	assert.Equal(t, event.ID, got.ID)
	assert.Equal(t, domain.TriggerPositionMismatch, got.Trigger)
	assert.Equal(t, domain.CategoryExecution, got.Category)
	assert.Equal(t, domain.HaltHard, got.Level)
	assert.Equal(t, "execution_integrity", got.MonitorID)
	assert.Equal(t, float64(3), got.Snapshot["broker_positions"])
	assert.True(t, event.CreatedAt.Equal(got.CreatedAt))
}

func TestHaltRepository_GetEvent_MissingReturnsNil(t *testing.T) {
	db := openAuditDB(t)
	repo := NewHaltRepository(db.Conn(), zerolog.Nop())

	got, err := repo.GetEvent("does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestHaltRepository_TransitionsAreOrdered(t *testing.T) {
	db := openAuditDB(t)
	repo := NewHaltRepository(db.Conn(), zerolog.Nop())

	first, err := repo.RecordTransition(domain.StateTransition{
		From:      domain.StateRunning,
		To:        domain.StateHaltedHard,
		Trigger:   domain.TriggerPositionMismatch,
		Reason:    "mismatch",
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	second, err := repo.RecordTransition(domain.StateTransition{
		From:      domain.StateHaltedHard,
		To:        domain.StateRunning,
		Trigger:   domain.TriggerOperatorHalt,
		Reason:    "resume granted",
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Greater(t, second, first)

	transitions, err := repo.ListTransitions(10)
	require.NoError(t, err)
	require.Len(t, transitions, 2)
	// Newest first
	assert.Equal(t, domain.StateRunning, transitions[0].To)
	assert.Equal(t, domain.StateHaltedHard, transitions[1].To)
}

func TestHaltRepository_RecordResumeRequest(t *testing.T) {
	db := openAuditDB(t)
	repo := NewHaltRepository(db.Conn(), zerolog.Nop())

	require.NoError(t, repo.RecordResumeRequest(domain.ResumeRequest{
		Operator:     "ops-alice",
		Reason:       "verified positions manually",
		Acknowledged: true,
		RequestedAt:  time.Now(),
		Granted:      true,
	}))

	var count int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM resume_requests WHERE granted = 1").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestRiskRepository_RecordEvaluationRoundTrip(t *testing.T) {
	db := openAuditDB(t)
	repo := NewRiskRepository(db.Conn(), zerolog.Nop())

	resp := domain.TradeRiskResponse{
		RequestID:     "req-1",
		Symbol:        "ETHUSDT",
		Decision:      domain.DecisionReduceSize,
		PrimaryReason: domain.ReasonExceedsRemainingDaily,
		AllowedSize:   0.5,
		Checks: []domain.BudgetCheck{
			{Name: "per_trade_limit", Passed: true, LimitPct: 0.5, UsedPct: 0.3},
		},
		Snapshot:    domain.RiskBudgetSnapshot{Equity: 1500, Tier: "micro"},
		EvaluatedAt: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		DurationMS:  1.25,
	}
	require.NoError(t, repo.RecordEvaluation(resp))

	got, err := repo.RecentEvaluations(5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.DecisionReduceSize, got[0].Decision)
	assert.Equal(t, domain.ReasonExceedsRemainingDaily, got[0].PrimaryReason)
	require.Len(t, got[0].Checks, 1)
	assert.Equal(t, "per_trade_limit", got[0].Checks[0].Name)
	assert.InDelta(t, 1500.0, got[0].Snapshot.Equity, 1e-9)
}

func TestRiskRepository_DrawdownSince(t *testing.T) {
	db := openAuditDB(t)
	repo := NewRiskRepository(db.Conn(), zerolog.Nop())

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.RecordDrawdownPoint(domain.DrawdownPoint{
			Equity:      1000 - float64(i)*50,
			PeakEquity:  1000,
			DrawdownPct: float64(i) * 5,
			At:          base.Add(time.Duration(i) * time.Hour),
		}))
	}

	points, err := repo.DrawdownSince(base.Add(30 * time.Minute))
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.InDelta(t, 5.0, points[0].DrawdownPct, 1e-9)
	assert.InDelta(t, 10.0, points[1].DrawdownPct, 1e-9)
}

func TestRiskRepository_RecordAlertAndEquity(t *testing.T) {
	db := openAuditDB(t)
	repo := NewRiskRepository(db.Conn(), zerolog.Nop())

	require.NoError(t, repo.RecordAlert(domain.Alert{
		ID:        "alert-1",
		Priority:  domain.AlertCritical,
		Title:     "System halted",
		Message:   "position mismatch detected",
		Trigger:   domain.TriggerPositionMismatch,
		Category:  domain.CategoryExecution,
		CreatedAt: time.Now(),
	}))
	require.NoError(t, repo.RecordEquitySnapshot(domain.EquityUpdate{
		Equity:    1500,
		Source:    "account_monitor",
		Timestamp: time.Now(),
	}))

	var alerts, equities int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM risk_alerts").Scan(&alerts))
	require.NoError(t, db.QueryRow("SELECT count(*) FROM equity_snapshots").Scan(&equities))
	assert.Equal(t, 1, alerts)
	assert.Equal(t, 1, equities)
}

func TestHealthRepository_RecordAndRecentScores(t *testing.T) {
	db := openAuditDB(t)
	repo := NewHealthRepository(db.Conn(), zerolog.Nop())

	score := domain.HealthScore{
		Source:     "binance_ws",
		FinalScore: 72.5,
		State:      domain.HealthDegraded,
		Dimensions: map[domain.HealthDimension]domain.DimensionScore{
			domain.HealthFreshness: {Dimension: domain.HealthFreshness, Score: 60},
		},
		EvaluatedAt: time.Now(),
	}
	require.NoError(t, repo.RecordScore(score))

	scores, err := repo.RecentScores("binance_ws", 5)
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, domain.HealthDegraded, scores[0].State)
	assert.InDelta(t, 72.5, scores[0].FinalScore, 1e-9)
	assert.InDelta(t, 60.0, scores[0].Dimensions[domain.HealthFreshness].Score, 1e-9)
}

func TestCycleRepository_RecordAndLastCycle(t *testing.T) {
	db := openAuditDB(t)
	repo := NewCycleRepository(db.Conn(), zerolog.Nop())

	last, err := repo.LastCycle()
	require.NoError(t, err)
	assert.Nil(t, last)

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := int64(1); i <= 2; i++ {
		require.NoError(t, repo.RecordCycle(domain.CycleRecord{
			CycleID:  uuidLike(i),
			Mode:     domain.ModeFull,
			Sequence: i,
			Stages: []domain.StageResult{
				{Stage: domain.StageIngest, Status: domain.StageSuccess, Duration: 120 * time.Millisecond},
			},
			Success:    true,
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + 10*time.Second),
		}))
	}

	last, err = repo.LastCycle()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, int64(2), last.Sequence)
	require.Len(t, last.Stages, 1)
	assert.Equal(t, domain.StageIngest, last.Stages[0].Stage)
}

func uuidLike(n int64) string {
	return time.Unix(n, 0).Format("20060102150405") + "-cycle"
}
