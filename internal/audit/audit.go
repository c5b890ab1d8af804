// Package audit persists the control plane's append-only records: halt
// events, state transitions, resume requests, risk evaluations, alerts,
// health snapshots and cycle bookkeeping. Repositories here only insert
// and read; rows are never updated or deleted.
package audit

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	criticalWriteAttempts = 3
	criticalWriteBackoff  = 100 * time.Millisecond
)

// writeWithRetry retries op with linearly growing pauses. Reserved for
// writes whose loss must surface to the caller instead of being logged
// and forgotten.
func writeWithRetry(log zerolog.Logger, name string, op func() error) error {
	var err error
	for attempt := 1; attempt <= criticalWriteAttempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Str("write", name).
			Msg("Audit write failed")
		if attempt < criticalWriteAttempts {
			time.Sleep(time.Duration(attempt) * criticalWriteBackoff)
		}
	}
	return fmt.Errorf("audit write %s failed after %d attempts: %w", name, criticalWriteAttempts, err)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
