package audit

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
)

// Column order must match scanHaltEvent.
const haltEventColumns = `id, trigger_code, category, level, reason, monitor_id, symbol, snapshot, correlation_id, created_at`

// HaltRepository persists halt events, state transitions and resume
// requests to the audit database.
type HaltRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHaltRepository creates a halt repository over the audit database.
func NewHaltRepository(db *sql.DB, log zerolog.Logger) *HaltRepository {
	return &HaltRepository{
		db:  db,
		log: log.With().Str("repo", "halt").Logger(),
	}
}

// RecordEvent persists a halt event. Losing this record would hide why
// the system stopped, so the insert retries before the failure surfaces
// to the caller.
func (r *HaltRepository) RecordEvent(event domain.HaltEvent) error {
	var snapshot sql.NullString
	if len(event.Snapshot) > 0 {
		data, err := json.Marshal(event.Snapshot)
		if err != nil {
			return fmt.Errorf("failed to marshal halt snapshot: %w", err)
		}
		snapshot = sql.NullString{String: string(data), Valid: true}
	}

	query := `
		INSERT INTO halt_events
		(id, trigger_code, category, level, reason, monitor_id, symbol,
		 snapshot, correlation_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := writeWithRetry(r.log, "halt_event", func() error {
		_, execErr := r.db.Exec(query,
			event.ID,
			string(event.Trigger),
			string(event.Category),
			string(event.Level),
			event.Reason,
			nullString(event.MonitorID),
			nullString(event.Symbol),
			snapshot,
			event.CorrelationID,
			event.CreatedAt.Unix(),
		)
		return execErr
	})
	if err != nil {
		return err
	}

	r.log.Info().
		Str("event_id", event.ID).
		Str("trigger", string(event.Trigger)).
		Str("level", string(event.Level)).
		Msg("Halt event recorded")

	return nil
}

// RecordTransition appends one state transition and returns its
// monotonically increasing row id.
func (r *HaltRepository) RecordTransition(tr domain.StateTransition) (int64, error) {
	query := `
		INSERT INTO state_transitions
		(from_state, to_state, trigger_code, reason, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := r.db.Exec(query,
		tr.From.String(),
		tr.To.String(),
		string(tr.Trigger),
		nullString(tr.Reason),
		tr.CreatedAt.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record state transition: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read transition id: %w", err)
	}

	return id, nil
}

// RecordResumeRequest appends an operator resume request, granted or not.
func (r *HaltRepository) RecordResumeRequest(req domain.ResumeRequest) error {
	query := `
		INSERT INTO resume_requests
		(operator, reason, acknowledged, granted, deny_reason, requested_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		req.Operator,
		nullString(req.Reason),
		boolToInt(req.Acknowledged),
		boolToInt(req.Granted),
		nullString(req.DenyReason),
		req.RequestedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record resume request: %w", err)
	}

	return nil
}

// ListEvents returns the most recent halt events, newest first.
func (r *HaltRepository) ListEvents(limit int) ([]domain.HaltEvent, error) {
	query := `
		SELECT ` + haltEventColumns + ` FROM halt_events
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list halt events: %w", err)
	}
	defer rows.Close()

	var events []domain.HaltEvent
	for rows.Next() {
		event, err := scanHaltEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan halt event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating halt events: %w", err)
	}

	return events, nil
}

// GetEvent returns one halt event by id, or nil when not recorded.
func (r *HaltRepository) GetEvent(id string) (*domain.HaltEvent, error) {
	query := "SELECT " + haltEventColumns + " FROM halt_events WHERE id = ?"

	rows, err := r.db.Query(query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get halt event: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to get halt event: %w", err)
		}
		return nil, nil
	}

	event, err := scanHaltEvent(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan halt event: %w", err)
	}

	return &event, nil
}

// ListTransitions returns the most recent state transitions, newest first.
func (r *HaltRepository) ListTransitions(limit int) ([]domain.StateTransition, error) {
	query := `
		SELECT id, from_state, to_state, trigger_code, reason, created_at
		FROM state_transitions
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list state transitions: %w", err)
	}
	defer rows.Close()

	var transitions []domain.StateTransition
	for rows.Next() {
		var (
			tr        domain.StateTransition
			from, to  string
			trigger   string
			reason    sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&tr.ID, &from, &to, &trigger, &reason, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan state transition: %w", err)
		}

		fromState, err := domain.ParseSystemState(from)
		if err != nil {
			return nil, fmt.Errorf("stored transition has bad from_state: %w", err)
		}
		toState, err := domain.ParseSystemState(to)
		if err != nil {
			return nil, fmt.Errorf("stored transition has bad to_state: %w", err)
		}

		tr.From = fromState
		tr.To = toState
		tr.Trigger = domain.Trigger(trigger)
		tr.Reason = reason.String
		tr.CreatedAt = time.Unix(createdAt, 0).UTC()
		transitions = append(transitions, tr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating state transitions: %w", err)
	}

	return transitions, nil
}

func scanHaltEvent(rows *sql.Rows) (domain.HaltEvent, error) {
	var (
		event     domain.HaltEvent
		trigger   string
		category  string
		level     string
		monitorID sql.NullString
		symbol    sql.NullString
		snapshot  sql.NullString
		createdAt int64
	)

	err := rows.Scan(
		&event.ID,
		&trigger,
		&category,
		&level,
		&event.Reason,
		&monitorID,
		&symbol,
		&snapshot,
		&event.CorrelationID,
		&createdAt,
	)
	if err != nil {
		return domain.HaltEvent{}, err
	}

	event.Trigger = domain.Trigger(trigger)
	event.Category = domain.TriggerCategory(category)
	event.Level = domain.HaltLevel(level)
	event.MonitorID = monitorID.String
	event.Symbol = symbol.String
	event.CreatedAt = time.Unix(createdAt, 0).UTC()

	if snapshot.Valid && snapshot.String != "" {
		if err := json.Unmarshal([]byte(snapshot.String), &event.Snapshot); err != nil {
			return domain.HaltEvent{}, errors.New("stored halt snapshot is not valid JSON")
		}
	}

	return event, nil
}
