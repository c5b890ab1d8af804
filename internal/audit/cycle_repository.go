package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
)

// CycleRepository persists orchestrator cycle bookkeeping.
type CycleRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewCycleRepository creates a cycle repository over the audit database.
func NewCycleRepository(db *sql.DB, log zerolog.Logger) *CycleRepository {
	return &CycleRepository{
		db:  db,
		log: log.With().Str("repo", "cycle").Logger(),
	}
}

// RecordCycle appends one finished pipeline cycle.
func (r *CycleRepository) RecordCycle(rec domain.CycleRecord) error {
	stages, err := json.Marshal(rec.Stages)
	if err != nil {
		return fmt.Errorf("failed to marshal stage results: %w", err)
	}

	query := `
		INSERT INTO cycle_records
		(cycle_id, mode, sequence, stages, success, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		rec.CycleID,
		string(rec.Mode),
		rec.Sequence,
		string(stages),
		boolToInt(rec.Success),
		rec.StartedAt.Unix(),
		rec.FinishedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record cycle: %w", err)
	}

	return nil
}

// LastCycle returns the most recently started cycle, or nil when none
// has been recorded.
func (r *CycleRepository) LastCycle() (*domain.CycleRecord, error) {
	query := `
		SELECT cycle_id, mode, sequence, stages, success, started_at, finished_at
		FROM cycle_records
		ORDER BY started_at DESC, sequence DESC
		LIMIT 1
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to get last cycle: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to get last cycle: %w", err)
		}
		return nil, nil
	}

	rec, err := scanCycle(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan cycle record: %w", err)
	}

	return &rec, nil
}

// ListCycles returns recent cycles, newest first.
func (r *CycleRepository) ListCycles(limit int) ([]domain.CycleRecord, error) {
	query := `
		SELECT cycle_id, mode, sequence, stages, success, started_at, finished_at
		FROM cycle_records
		ORDER BY started_at DESC, sequence DESC
		LIMIT ?
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycles: %w", err)
	}
	defer rows.Close()

	var records []domain.CycleRecord
	for rows.Next() {
		rec, err := scanCycle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cycle record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cycles: %w", err)
	}

	return records, nil
}

func scanCycle(rows *sql.Rows) (domain.CycleRecord, error) {
	var (
		rec        domain.CycleRecord
		mode       string
		stages     string
		success    int
		startedAt  int64
		finishedAt int64
	)
	if err := rows.Scan(&rec.CycleID, &mode, &rec.Sequence, &stages, &success, &startedAt, &finishedAt); err != nil {
		return domain.CycleRecord{}, err
	}

	rec.Mode = domain.RuntimeMode(mode)
	rec.Success = success != 0
	rec.StartedAt = time.Unix(startedAt, 0).UTC()
	rec.FinishedAt = time.Unix(finishedAt, 0).UTC()
	if err := json.Unmarshal([]byte(stages), &rec.Stages); err != nil {
		return domain.CycleRecord{}, fmt.Errorf("stored stages are not valid JSON: %w", err)
	}

	return rec, nil
}
