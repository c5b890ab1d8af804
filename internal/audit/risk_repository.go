package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
)

// RiskRepository persists budget evaluations, drawdown history, equity
// snapshots and alert records.
type RiskRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRiskRepository creates a risk repository over the audit database.
func NewRiskRepository(db *sql.DB, log zerolog.Logger) *RiskRepository {
	return &RiskRepository{
		db:  db,
		log: log.With().Str("repo", "risk").Logger(),
	}
}

// RecordEvaluation appends one budget decision with its full check list.
func (r *RiskRepository) RecordEvaluation(resp domain.TradeRiskResponse) error {
	checks, err := json.Marshal(resp.Checks)
	if err != nil {
		return fmt.Errorf("failed to marshal budget checks: %w", err)
	}
	snapshot, err := json.Marshal(resp.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal budget snapshot: %w", err)
	}

	query := `
		INSERT INTO risk_evaluations
		(request_id, symbol, decision, primary_reason, allowed_size,
		 allowed_risk_pct, checks, snapshot, duration_ms, evaluated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		resp.RequestID,
		resp.Symbol,
		string(resp.Decision),
		resp.PrimaryReason,
		resp.AllowedSize,
		resp.AllowedRiskPct,
		string(checks),
		string(snapshot),
		resp.DurationMS,
		resp.EvaluatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record risk evaluation: %w", err)
	}

	return nil
}

// RecordDrawdownPoint appends one drawdown sample.
func (r *RiskRepository) RecordDrawdownPoint(p domain.DrawdownPoint) error {
	query := `
		INSERT INTO drawdown_history (equity, peak_equity, drawdown_pct, recorded_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := r.db.Exec(query, p.Equity, p.PeakEquity, p.DrawdownPct, p.At.Unix())
	if err != nil {
		return fmt.Errorf("failed to record drawdown point: %w", err)
	}

	return nil
}

// RecordEquitySnapshot appends one equity observation.
func (r *RiskRepository) RecordEquitySnapshot(u domain.EquityUpdate) error {
	query := `
		INSERT INTO equity_snapshots (equity, source, recorded_at)
		VALUES (?, ?, ?)
	`

	_, err := r.db.Exec(query, u.Equity, u.Source, u.Timestamp.Unix())
	if err != nil {
		return fmt.Errorf("failed to record equity snapshot: %w", err)
	}

	return nil
}

// RecordAlert appends one emitted alert.
func (r *RiskRepository) RecordAlert(a domain.Alert) error {
	query := `
		INSERT INTO risk_alerts
		(id, priority, title, message, trigger_code, category, symbol,
		 correlation_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		a.ID,
		string(a.Priority),
		a.Title,
		a.Message,
		nullString(string(a.Trigger)),
		nullString(string(a.Category)),
		nullString(a.Symbol),
		nullString(a.CorrelationID),
		a.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record alert: %w", err)
	}

	return nil
}

// RecentEvaluations returns the latest budget decisions, newest first.
func (r *RiskRepository) RecentEvaluations(limit int) ([]domain.TradeRiskResponse, error) {
	query := `
		SELECT request_id, symbol, decision, primary_reason, allowed_size,
		       allowed_risk_pct, checks, snapshot, duration_ms, evaluated_at
		FROM risk_evaluations
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list risk evaluations: %w", err)
	}
	defer rows.Close()

	var responses []domain.TradeRiskResponse
	for rows.Next() {
		var (
			resp        domain.TradeRiskResponse
			decision    string
			checks      sql.NullString
			snapshot    sql.NullString
			evaluatedAt int64
		)
		err := rows.Scan(
			&resp.RequestID,
			&resp.Symbol,
			&decision,
			&resp.PrimaryReason,
			&resp.AllowedSize,
			&resp.AllowedRiskPct,
			&checks,
			&snapshot,
			&resp.DurationMS,
			&evaluatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan risk evaluation: %w", err)
		}

		resp.Decision = domain.Decision(decision)
		resp.EvaluatedAt = time.Unix(evaluatedAt, 0).UTC()
		if checks.Valid && checks.String != "" {
			if err := json.Unmarshal([]byte(checks.String), &resp.Checks); err != nil {
				return nil, fmt.Errorf("stored checks are not valid JSON: %w", err)
			}
		}
		if snapshot.Valid && snapshot.String != "" {
			if err := json.Unmarshal([]byte(snapshot.String), &resp.Snapshot); err != nil {
				return nil, fmt.Errorf("stored snapshot is not valid JSON: %w", err)
			}
		}

		responses = append(responses, resp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating risk evaluations: %w", err)
	}

	return responses, nil
}

// DrawdownSince returns drawdown samples recorded at or after the cutoff,
// oldest first.
func (r *RiskRepository) DrawdownSince(cutoff time.Time) ([]domain.DrawdownPoint, error) {
	query := `
		SELECT equity, peak_equity, drawdown_pct, recorded_at
		FROM drawdown_history
		WHERE recorded_at >= ?
		ORDER BY recorded_at ASC
	`

	rows, err := r.db.Query(query, cutoff.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to list drawdown history: %w", err)
	}
	defer rows.Close()

	var points []domain.DrawdownPoint
	for rows.Next() {
		var (
			p          domain.DrawdownPoint
			recordedAt int64
		)
		if err := rows.Scan(&p.Equity, &p.PeakEquity, &p.DrawdownPct, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan drawdown point: %w", err)
		}
		p.At = time.Unix(recordedAt, 0).UTC()
		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating drawdown history: %w", err)
	}

	return points, nil
}
