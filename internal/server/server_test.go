package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/backup"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clock"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/events"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/metrics"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/src"
)

var serverTestNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeController struct {
	mu        sync.Mutex
	status    src.Status
	haltLevel domain.HaltLevel
	haltOp    string
	resumeErr error
	resumes   []domain.ResumeRequest
}

func (f *fakeController) Status() src.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeController) RequestHalt(level domain.HaltLevel, reason, operator string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.haltLevel = level
	f.haltOp = operator
	f.status.State = level.TargetState()
	f.status.CanTrade = false
}

func (f *fakeController) RequestResume(req domain.ResumeRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumes = append(f.resumes, req)
	if f.resumeErr != nil {
		return f.resumeErr
	}
	f.status.State = domain.StateRunning
	f.status.CanTrade = true
	return nil
}

type fakeBudget struct {
	snapshot  domain.RiskBudgetSnapshot
	positions []domain.OpenPositionRisk
}

func (f *fakeBudget) Snapshot() domain.RiskBudgetSnapshot      { return f.snapshot }
func (f *fakeBudget) OpenPositions() []domain.OpenPositionRisk { return f.positions }

type fakeHealth struct {
	scores     map[string]domain.HealthScore
	multiplier float64
}

func (f *fakeHealth) Scores() map[string]domain.HealthScore { return f.scores }
func (f *fakeHealth) RiskMultiplier() float64               { return f.multiplier }

type fakeHaltLog struct {
	mu          sync.Mutex
	events      []domain.HaltEvent
	transitions []domain.StateTransition
	limits      []int
	err         error
}

func (f *fakeHaltLog) ListEvents(limit int) ([]domain.HaltEvent, error) {
	f.mu.Lock()
	f.limits = append(f.limits, limit)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

func (f *fakeHaltLog) ListTransitions(limit int) ([]domain.StateTransition, error) {
	f.mu.Lock()
	f.limits = append(f.limits, limit)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.transitions, nil
}

type fakeServerPipeline struct {
	mu        sync.Mutex
	mode      domain.RuntimeMode
	running   bool
	last      *domain.CycleRecord
	triggered int
}

func (f *fakeServerPipeline) Mode() domain.RuntimeMode       { return f.mode }
func (f *fakeServerPipeline) Running() bool                  { return f.running }
func (f *fakeServerPipeline) LastCycle() *domain.CycleRecord { return f.last }
func (f *fakeServerPipeline) Trigger() {
	f.mu.Lock()
	f.triggered++
	f.mu.Unlock()
}

type fakeBackups struct {
	mu     sync.Mutex
	runs   int
	runErr error
	infos  []backup.Info
}

func (f *fakeBackups) RunNow(_ context.Context) error {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	return f.runErr
}

func (f *fakeBackups) ListBackups(_ context.Context) ([]backup.Info, error) {
	return f.infos, nil
}

type serverFixture struct {
	srv      *Server
	ctrl     *fakeController
	budget   *fakeBudget
	health   *fakeHealth
	halts    *fakeHaltLog
	pipeline *fakeServerPipeline
	backups  *fakeBackups
	bus      *events.Bus
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	fix := &serverFixture{
		ctrl: &fakeController{status: src.Status{State: domain.StateRunning, CanTrade: true}},
		budget: &fakeBudget{
			snapshot: domain.RiskBudgetSnapshot{Equity: 5000, Tier: "small"},
		},
		health: &fakeHealth{
			scores:     map[string]domain.HealthScore{"binance_ws": {Source: "binance_ws", FinalScore: 92}},
			multiplier: 1.0,
		},
		halts:    &fakeHaltLog{},
		pipeline: &fakeServerPipeline{mode: domain.ModeFull, running: true},
		backups:  &fakeBackups{},
		bus:      events.NewBus(),
	}

	fix.srv = New(Config{
		Port:       0,
		Log:        zerolog.Nop(),
		Clock:      clock.NewFrozen(serverTestNow),
		Controller: fix.ctrl,
		Budget:     fix.budget,
		Health:     fix.health,
		Halts:      fix.halts,
		Pipeline:   fix.pipeline,
		Backups:    fix.backups,
		Bus:        fix.bus,
		Metrics:    metrics.New().Handler(),
	})
	return fix
}

func (f *serverFixture) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthEndpoint(t *testing.T) {
	fix := newServerFixture(t)

	rec := fix.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "controlplane", body["service"])
}

func TestMetricsEndpointIsWired(t *testing.T) {
	fix := newServerFixture(t)

	rec := fix.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "controlplane_system_state")
}

func TestStateEndpoint(t *testing.T) {
	fix := newServerFixture(t)
	fix.ctrl.status = src.Status{State: domain.StateHaltedSoft, CanTrade: false}

	rec := fix.do(t, http.MethodGet, "/api/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "HALTED_SOFT", body["state"])
	assert.Equal(t, false, body["can_trade"])
}

func TestSnapshotEndpointCombinesSubsystems(t *testing.T) {
	fix := newServerFixture(t)

	rec := fix.do(t, http.MethodGet, "/api/snapshot", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)

	budget, ok := body["budget"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(5000), budget["equity"])

	health, ok := body["health"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1.0), health["risk_multiplier"])

	pipeline, ok := body["pipeline"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "full", pipeline["mode"])
	assert.Equal(t, true, pipeline["running"])
}

func TestHaltsEndpointDefaultsAndCapsLimit(t *testing.T) {
	fix := newServerFixture(t)
	fix.halts.events = []domain.HaltEvent{
		{ID: "h1", Level: domain.HaltSoft},
		{ID: "h2", Level: domain.HaltHard},
	}

	rec := fix.do(t, http.MethodGet, "/api/halts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decodeBody(t, rec)["count"])

	fix.do(t, http.MethodGet, "/api/halts?limit=9999", nil)
	assert.Equal(t, []int{50, maxHistoryLimit}, fix.halts.limits)

	rec = fix.do(t, http.MethodGet, "/api/halts?limit=-3", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = fix.do(t, http.MethodGet, "/api/halts?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransitionsEndpoint(t *testing.T) {
	fix := newServerFixture(t)
	fix.halts.transitions = []domain.StateTransition{
		{From: domain.StateRunning, To: domain.StateHaltedHard},
	}

	rec := fix.do(t, http.MethodGet, "/api/transitions?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["count"])
}

func TestHaltsEndpointRepositoryFailure(t *testing.T) {
	fix := newServerFixture(t)
	fix.halts.err = errors.New("database is locked")

	rec := fix.do(t, http.MethodGet, "/api/halts", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "failed to load halt history", decodeBody(t, rec)["error"])
}

func TestHaltEndpointValidation(t *testing.T) {
	fix := newServerFixture(t)

	rec := fix.do(t, http.MethodPost, "/api/halt", map[string]string{
		"level": "GENTLE", "reason": "x", "operator": "ops",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = fix.do(t, http.MethodPost, "/api/halt", map[string]string{
		"level": "HARD", "reason": "x",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = fix.do(t, http.MethodPost, "/api/halt", map[string]string{
		"level": "HARD", "operator": "ops",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, fix.ctrl.haltOp, "no halt should reach the controller")
}

func TestHaltEndpointAppliesOperatorHalt(t *testing.T) {
	fix := newServerFixture(t)

	rec := fix.do(t, http.MethodPost, "/api/halt", map[string]string{
		"level":    "hard",
		"reason":   "suspicious fills",
		"operator": "alice",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, domain.HaltHard, fix.ctrl.haltLevel)
	assert.Equal(t, "alice", fix.ctrl.haltOp)

	body := decodeBody(t, rec)
	assert.Equal(t, "HALTED_HARD", body["state"])
}

func TestResumeEndpointGranted(t *testing.T) {
	fix := newServerFixture(t)
	fix.ctrl.status = src.Status{State: domain.StateHaltedHard}

	rec := fix.do(t, http.MethodPost, "/api/resume", map[string]interface{}{
		"operator":     "alice",
		"reason":       "verified fills",
		"acknowledged": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["granted"])
	assert.Equal(t, "RUNNING", body["state"])

	require.Len(t, fix.ctrl.resumes, 1)
	assert.True(t, fix.ctrl.resumes[0].Acknowledged)
}

func TestResumeEndpointDenied(t *testing.T) {
	fix := newServerFixture(t)
	fix.ctrl.resumeErr = errors.New("resume from HALTED_HARD requires an operator")

	rec := fix.do(t, http.MethodPost, "/api/resume", map[string]interface{}{
		"operator": "alice",
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, false, body["granted"])
	assert.Contains(t, body["error"], "requires an operator")
}

func TestResumeEndpointRequiresOperator(t *testing.T) {
	fix := newServerFixture(t)

	rec := fix.do(t, http.MethodPost, "/api/resume", map[string]interface{}{
		"reason": "no name given",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, fix.ctrl.resumes)
}

func TestTriggerCycleEndpoint(t *testing.T) {
	fix := newServerFixture(t)

	rec := fix.do(t, http.MethodPost, "/api/cycle/trigger", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, fix.pipeline.triggered)
}

func TestBackupEndpoints(t *testing.T) {
	fix := newServerFixture(t)
	fix.backups.infos = []backup.Info{{Filename: "controlplane-backup-2025-06-01-030000.tar.gz"}}

	rec := fix.do(t, http.MethodGet, "/api/backups", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["count"])

	rec = fix.do(t, http.MethodPost, "/api/backups/run", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, fix.backups.runs)

	fix.backups.runErr = errors.New("bucket offline")
	rec = fix.do(t, http.MethodPost, "/api/backups/run", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestBackupEndpointsWhenDisabled(t *testing.T) {
	fix := newServerFixture(t)
	fix.srv.backups = nil

	rec := fix.do(t, http.MethodGet, "/api/backups", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = fix.do(t, http.MethodPost, "/api/backups/run", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEventStreamDeliversFilteredEvents(t *testing.T) {
	fix := newServerFixture(t)

	ts := httptest.NewServer(fix.srv.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events/stream?types=HALT_TRIGGERED", nil)
	require.NoError(t, err)

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reader := bufio.NewReader(resp.Body)

	// First frame confirms the subscription is live.
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "connected")

	fix.bus.Emit(events.Event{Type: events.CycleCompleted, Module: "orchestrator", Timestamp: serverTestNow})
	fix.bus.Emit(events.Event{Type: events.HaltTriggered, Module: "src", Timestamp: serverTestNow})

	// The filtered type is the only event that may arrive.
	for {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		if !strings.HasPrefix(line, "data: ") || strings.Contains(line, "heartbeat") {
			continue
		}
		assert.NotContains(t, line, "CYCLE_COMPLETED")
		if strings.Contains(line, "HALT_TRIGGERED") {
			break
		}
	}
}
