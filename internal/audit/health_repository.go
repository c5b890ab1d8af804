package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
)

// HealthRepository persists data-source health evaluations.
type HealthRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHealthRepository creates a health repository over the audit database.
func NewHealthRepository(db *sql.DB, log zerolog.Logger) *HealthRepository {
	return &HealthRepository{
		db:  db,
		log: log.With().Str("repo", "health").Logger(),
	}
}

// RecordScore appends one source evaluation with its dimension breakdown.
func (r *HealthRepository) RecordScore(score domain.HealthScore) error {
	dimensions, err := json.Marshal(score.Dimensions)
	if err != nil {
		return fmt.Errorf("failed to marshal dimension scores: %w", err)
	}

	query := `
		INSERT INTO health_snapshots
		(source, final_score, state, dimension_scores, evaluated_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		score.Source,
		score.FinalScore,
		string(score.State),
		string(dimensions),
		score.EvaluatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record health snapshot: %w", err)
	}

	return nil
}

// RecentScores returns the latest evaluations for one source, newest first.
func (r *HealthRepository) RecentScores(source string, limit int) ([]domain.HealthScore, error) {
	query := `
		SELECT source, final_score, state, dimension_scores, evaluated_at
		FROM health_snapshots
		WHERE source = ?
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := r.db.Query(query, source, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list health snapshots: %w", err)
	}
	defer rows.Close()

	var scores []domain.HealthScore
	for rows.Next() {
		var (
			score       domain.HealthScore
			state       string
			dimensions  sql.NullString
			evaluatedAt int64
		)
		if err := rows.Scan(&score.Source, &score.FinalScore, &state, &dimensions, &evaluatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan health snapshot: %w", err)
		}

		score.State = domain.HealthState(state)
		score.EvaluatedAt = time.Unix(evaluatedAt, 0).UTC()
		if dimensions.Valid && dimensions.String != "" {
			if err := json.Unmarshal([]byte(dimensions.String), &score.Dimensions); err != nil {
				return nil, fmt.Errorf("stored dimension scores are not valid JSON: %w", err)
			}
		}

		scores = append(scores, score)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating health snapshots: %w", err)
	}

	return scores, nil
}
