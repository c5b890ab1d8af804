package marketdata

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Snapshot is the consolidated view of one market after the PROCESS stage:
// the derived metrics the risk scoring assessors read. One row per
// (symbol, exchange), overwritten each cycle, encoded as msgpack.
type Snapshot struct {
	Symbol             string    `msgpack:"symbol"`
	Exchange           string    `msgpack:"exchange"`
	LastPrice          float64   `msgpack:"last_price"`
	PriceChange24hPct  float64   `msgpack:"price_change_24h_pct"`
	FundingRatePct     float64   `msgpack:"funding_rate_pct"`
	OrderBookImbalance float64   `msgpack:"order_book_imbalance"`
	SpreadPct          float64   `msgpack:"spread_pct"`
	DepthWithin1Pct    float64   `msgpack:"depth_within_1pct"`
	Volume24h          float64   `msgpack:"volume_24h"`
	VolumeRatio24h     float64   `msgpack:"volume_ratio_24h"`
	TakenAt            time.Time `msgpack:"taken_at"`
}

// SaveSnapshot replaces the stored snapshot for the snapshot's market.
func (s *Store) SaveSnapshot(snap Snapshot) error {
	payload, err := msgpack.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO market_snapshots (symbol, exchange, taken_at, payload)
		VALUES (?, ?, ?, ?)
	`, snap.Symbol, snap.Exchange, snap.TakenAt.Unix(), payload)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the stored snapshot for (symbol, exchange), or nil
// when none exists.
func (s *Store) LoadSnapshot(symbol, exchange string) (*Snapshot, error) {
	var payload []byte
	err := s.db.QueryRow(`
		SELECT payload FROM market_snapshots WHERE symbol = ? AND exchange = ?
	`, symbol, exchange).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var snap Snapshot
	if err := msgpack.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("corrupt snapshot payload for %s/%s: %w", symbol, exchange, err)
	}
	return &snap, nil
}
