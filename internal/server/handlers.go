package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/version"
)

// maxHistoryLimit caps audit listings so one request cannot drag the
// whole trail through the encoder.
const maxHistoryLimit = 500

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"service":        "controlplane",
		"version":        version.Version,
		"uptime_seconds": int64(s.clk.Now().UTC().Sub(s.started).Seconds()),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ctrl.Status())
}

// handleSnapshot is the single-call operator view: system state, risk
// budget, open positions, source health, and the last pipeline cycle.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot := map[string]interface{}{
		"system":    s.ctrl.Status(),
		"budget":    s.budget.Snapshot(),
		"positions": s.budget.OpenPositions(),
		"health": map[string]interface{}{
			"sources":         s.health.Scores(),
			"risk_multiplier": s.health.RiskMultiplier(),
		},
		"pipeline": map[string]interface{}{
			"mode":       s.pipeline.Mode(),
			"running":    s.pipeline.Running(),
			"last_cycle": s.pipeline.LastCycle(),
		},
	}
	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleHalts(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, 50)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	halts, err := s.halts.ListEvents(limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list halt events")
		s.writeError(w, http.StatusInternalServerError, "failed to load halt history")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"halts": halts,
		"count": len(halts),
	})
}

func (s *Server) handleTransitions(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, 50)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	transitions, err := s.halts.ListTransitions(limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list state transitions")
		s.writeError(w, http.StatusInternalServerError, "failed to load transition history")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"transitions": transitions,
		"count":       len(transitions),
	})
}

type haltRequest struct {
	Level    string `json:"level"`
	Reason   string `json:"reason"`
	Operator string `json:"operator"`
}

// handleHalt is the operator halt. The controller applies severity
// monotonicity, so a request below the current state records evidence
// without downgrading anything.
func (s *Server) handleHalt(w http.ResponseWriter, r *http.Request) {
	var req haltRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	level := domain.HaltLevel(strings.ToUpper(strings.TrimSpace(req.Level)))
	switch level {
	case domain.HaltSoft, domain.HaltHard, domain.HaltEmergency:
	default:
		s.writeError(w, http.StatusBadRequest, "level must be SOFT, HARD or EMERGENCY")
		return
	}
	if strings.TrimSpace(req.Operator) == "" {
		s.writeError(w, http.StatusBadRequest, "operator is required")
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		s.writeError(w, http.StatusBadRequest, "reason is required")
		return
	}

	s.log.Warn().
		Str("level", string(level)).
		Str("operator", req.Operator).
		Str("reason", req.Reason).
		Msg("Operator halt requested")

	s.ctrl.RequestHalt(level, req.Reason, req.Operator)
	s.writeJSON(w, http.StatusOK, s.ctrl.Status())
}

type resumeRequest struct {
	Operator     string `json:"operator"`
	Reason       string `json:"reason"`
	Acknowledged bool   `json:"acknowledged"`
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Operator) == "" {
		s.writeError(w, http.StatusBadRequest, "operator is required")
		return
	}

	err := s.ctrl.RequestResume(domain.ResumeRequest{
		Operator:     req.Operator,
		Reason:       req.Reason,
		Acknowledged: req.Acknowledged,
	})
	if err != nil {
		s.writeJSON(w, http.StatusConflict, map[string]interface{}{
			"granted": false,
			"error":   err.Error(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"granted": true,
		"state":   s.ctrl.Status().State,
	})
}

// handleTriggerCycle requests one out-of-schedule pipeline cycle. The
// trigger is dropped when a cycle is already pending.
func (s *Server) handleTriggerCycle(w http.ResponseWriter, r *http.Request) {
	s.pipeline.Trigger()
	s.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"triggered": true,
		"running":   s.pipeline.Running(),
	})
}

func (s *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	if s.backups == nil {
		s.writeError(w, http.StatusServiceUnavailable, "backups are disabled")
		return
	}

	backups, err := s.backups.ListBackups(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list backups")
		s.writeError(w, http.StatusInternalServerError, "failed to list backups")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"backups": backups,
		"count":   len(backups),
	})
}

func (s *Server) handleRunBackup(w http.ResponseWriter, r *http.Request) {
	if s.backups == nil {
		s.writeError(w, http.StatusServiceUnavailable, "backups are disabled")
		return
	}

	if err := s.backups.RunNow(r.Context()); err != nil {
		s.log.Error().Err(err).Msg("Manual backup failed")
		s.writeError(w, http.StatusInternalServerError, "backup failed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "completed"})
}

func parseLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return limit, nil
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
