package riskbudget

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
)

const positionColumns = `position_id, symbol, exchange, direction, entry_price, current_stop, size,
	risk_amount, risk_pct, equity_at_entry, status, opened_at, closed_at, realized_pnl`

// Repository persists tracker state that must survive restarts: open
// position risk records and per-day budget usage.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "riskbudget").Logger(),
	}
}

// UpsertPosition writes a position row keyed by position id. Closed rows
// stay in the table as the position history.
func (r *Repository) UpsertPosition(pos domain.OpenPositionRisk) error {
	_, err := r.db.Exec(`
		INSERT INTO position_risk (`+positionColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(position_id) DO UPDATE SET
			current_stop = excluded.current_stop,
			size = excluded.size,
			risk_amount = excluded.risk_amount,
			risk_pct = excluded.risk_pct,
			status = excluded.status,
			closed_at = excluded.closed_at,
			realized_pnl = excluded.realized_pnl,
			updated_at = excluded.updated_at
	`,
		pos.PositionID, pos.Symbol, nullString(pos.Exchange), string(pos.Direction),
		pos.EntryPrice, pos.CurrentStop, pos.Size,
		pos.RiskAmount, pos.RiskPct, pos.EquityAtEntry, string(pos.Status),
		pos.OpenedAt.Unix(), nullTimeUnix(pos.ClosedAt), nullFloat64(pos.RealizedPnL),
		time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert position %s: %w", pos.PositionID, err)
	}
	return nil
}

// OpenPositions loads every row still marked OPEN or PARTIALLY_CLOSED,
// oldest first, for tracker restore at startup.
func (r *Repository) OpenPositions() ([]domain.OpenPositionRisk, error) {
	rows, err := r.db.Query(`
		SELECT `+positionColumns+`
		FROM position_risk
		WHERE status IN (?, ?)
		ORDER BY opened_at ASC
	`, string(domain.PositionOpen), string(domain.PositionPartiallyClosed))
	if err != nil {
		return nil, fmt.Errorf("failed to query open positions: %w", err)
	}
	defer rows.Close()

	var out []domain.OpenPositionRisk
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

// GetPosition loads one row by id. Returns nil when absent.
func (r *Repository) GetPosition(positionID string) (*domain.OpenPositionRisk, error) {
	rows, err := r.db.Query(`
		SELECT `+positionColumns+`
		FROM position_risk
		WHERE position_id = ?
	`, positionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query position %s: %w", positionID, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	pos, err := scanPosition(rows)
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

// TrailingConsecutiveLosses recomputes the loss streak from the most
// recently closed positions: the streak is the run of negative realized
// pnl ending at the latest close.
func (r *Repository) TrailingConsecutiveLosses(limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(`
		SELECT realized_pnl
		FROM position_risk
		WHERE status = ? AND realized_pnl IS NOT NULL
		ORDER BY closed_at DESC
		LIMIT ?
	`, string(domain.PositionClosed), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to query closed positions: %w", err)
	}
	defer rows.Close()

	streak := 0
	for rows.Next() {
		var pnl float64
		if err := rows.Scan(&pnl); err != nil {
			return 0, fmt.Errorf("failed to scan realized pnl: %w", err)
		}
		if pnl >= 0 {
			break
		}
		streak++
	}
	return streak, rows.Err()
}

// UpsertDaily writes one day's usage record.
func (r *Repository) UpsertDaily(d domain.DailyRiskUsage) error {
	_, err := r.db.Exec(`
		INSERT INTO daily_risk (date, budget_limit_pct, consumed_pct, peak_open_pct,
			trades_taken, trades_rejected, realized_pnl, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			budget_limit_pct = excluded.budget_limit_pct,
			consumed_pct = excluded.consumed_pct,
			peak_open_pct = excluded.peak_open_pct,
			trades_taken = excluded.trades_taken,
			trades_rejected = excluded.trades_rejected,
			realized_pnl = excluded.realized_pnl,
			updated_at = excluded.updated_at
	`,
		d.Date, d.BudgetLimitPct, d.ConsumedPct, d.PeakOpenPct,
		d.TradesTaken, d.TradesRejected, d.RealizedPnL,
		time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert daily risk %s: %w", d.Date, err)
	}
	return nil
}

// DailyFor loads one day's usage record. Returns nil when absent.
func (r *Repository) DailyFor(date string) (*domain.DailyRiskUsage, error) {
	rows, err := r.db.Query(`
		SELECT date, budget_limit_pct, consumed_pct, peak_open_pct,
			trades_taken, trades_rejected, realized_pnl
		FROM daily_risk
		WHERE date = ?
	`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily risk %s: %w", date, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var d domain.DailyRiskUsage
	if err := rows.Scan(&d.Date, &d.BudgetLimitPct, &d.ConsumedPct, &d.PeakOpenPct,
		&d.TradesTaken, &d.TradesRejected, &d.RealizedPnL); err != nil {
		return nil, fmt.Errorf("failed to scan daily risk: %w", err)
	}
	return &d, nil
}

func scanPosition(rows *sql.Rows) (domain.OpenPositionRisk, error) {
	var (
		pos       domain.OpenPositionRisk
		exchange  sql.NullString
		direction string
		status    string
		openedAt  int64
		closedAt  sql.NullInt64
		pnl       sql.NullFloat64
	)
	if err := rows.Scan(&pos.PositionID, &pos.Symbol, &exchange, &direction,
		&pos.EntryPrice, &pos.CurrentStop, &pos.Size,
		&pos.RiskAmount, &pos.RiskPct, &pos.EquityAtEntry, &status,
		&openedAt, &closedAt, &pnl); err != nil {
		return domain.OpenPositionRisk{}, fmt.Errorf("failed to scan position: %w", err)
	}
	pos.Exchange = exchange.String
	pos.Direction = domain.Direction(direction)
	pos.Status = domain.PositionStatus(status)
	pos.OpenedAt = time.Unix(openedAt, 0).UTC()
	if closedAt.Valid {
		t := time.Unix(closedAt.Int64, 0).UTC()
		pos.ClosedAt = &t
	}
	if pnl.Valid {
		v := pnl.Float64
		pos.RealizedPnL = &v
	}
	return pos, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTimeUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func nullFloat64(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
