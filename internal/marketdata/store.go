// Package marketdata is the rebuildable cache of ingested candles and
// consolidated market snapshots. It is the read side of the data-reality
// guard (latest stored candle per symbol) and of the risk scoring engine
// (candle series for the indicator bridge). Prices cross this boundary as
// decimals and are stored as text; float conversion happens only where the
// indicator math demands it.
package marketdata

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/database"
)

// Candle is one OHLCV bar for (symbol, exchange, interval).
type Candle struct {
	Symbol     string          `json:"symbol"`
	Exchange   string          `json:"exchange"`
	Interval   string          `json:"interval"`
	OpenTime   time.Time       `json:"open_time"`
	Open       decimal.Decimal `json:"open"`
	High       decimal.Decimal `json:"high"`
	Low        decimal.Decimal `json:"low"`
	Close      decimal.Decimal `json:"close"`
	Volume     decimal.Decimal `json:"volume"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Series is an ascending-time window of candle values for indicator math.
type Series struct {
	Highs  []float64
	Lows   []float64
	Closes []float64
}

// Store provides access to the market data cache.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (creating if absent) the market data database at path and
// applies the schema. The cache trades durability for speed: a lost write
// is re-ingested on the next cycle.
func Open(path string, log zerolog.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=OFF", path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open market data database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping market data database: %w", err)
	}

	schema, err := database.SchemaSQL("marketdata")
	if err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply market data schema: %w", err)
	}

	return NewStore(db, log), nil
}

// NewStore wraps an already-opened connection. Tests use this with an
// in-memory database.
func NewStore(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("component", "marketdata").Logger(),
	}
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertCandles writes a batch of candles in one transaction, replacing
// rows with the same (symbol, exchange, interval, open_time).
func (s *Store) UpsertCandles(candles []Candle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Will be no-op if Commit succeeds

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles
		(symbol, exchange, interval, open_time, open_price, high_price, low_price, close_price, volume, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := ParseInterval(c.Interval); err != nil {
			return err
		}
		_, err = stmt.Exec(
			c.Symbol,
			c.Exchange,
			c.Interval,
			c.OpenTime.Unix(),
			c.Open.String(),
			c.High.String(),
			c.Low.String(),
			c.Close.String(),
			c.Volume.String(),
			c.ReceivedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert candle %s/%s: %w", c.Symbol, c.Interval, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit candles: %w", err)
	}

	s.log.Debug().Int("count", len(candles)).Msg("Upserted candles")
	return nil
}

// UpsertCandle writes a single candle.
func (s *Store) UpsertCandle(c Candle) error {
	return s.UpsertCandles([]Candle{c})
}

// LatestCandle returns the most recent candle for (symbol, exchange,
// interval), or nil when none is stored (not an error).
func (s *Store) LatestCandle(symbol, exchange, interval string) (*Candle, error) {
	query := `
		SELECT symbol, exchange, interval, open_time, open_price, high_price, low_price, close_price, volume, received_at
		FROM candles
		WHERE symbol = ? AND exchange = ? AND interval = ?
		ORDER BY open_time DESC
		LIMIT 1
	`

	row := s.db.QueryRow(query, symbol, exchange, interval)
	c, err := scanCandle(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest candle: %w", err)
	}
	return &c, nil
}

// RecentCandles returns up to limit candles newest-first.
func (s *Store) RecentCandles(symbol, exchange, interval string, limit int) ([]Candle, error) {
	query := `
		SELECT symbol, exchange, interval, open_time, open_price, high_price, low_price, close_price, volume, received_at
		FROM candles
		WHERE symbol = ? AND exchange = ? AND interval = ?
		ORDER BY open_time DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, symbol, exchange, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent candles: %w", err)
	}
	defer rows.Close()

	var candles []Candle
	for rows.Next() {
		c, err := scanCandle(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candles: %w", err)
	}
	return candles, nil
}

// CandleSeries returns the last n candles as ascending-time float series
// for the indicator bridge.
func (s *Store) CandleSeries(symbol, exchange, interval string, n int) (Series, error) {
	candles, err := s.RecentCandles(symbol, exchange, interval, n)
	if err != nil {
		return Series{}, err
	}

	series := Series{
		Highs:  make([]float64, len(candles)),
		Lows:   make([]float64, len(candles)),
		Closes: make([]float64, len(candles)),
	}
	// RecentCandles is newest-first; indicators want oldest-first.
	for i, c := range candles {
		j := len(candles) - 1 - i
		series.Highs[j] = c.High.InexactFloat64()
		series.Lows[j] = c.Low.InexactFloat64()
		series.Closes[j] = c.Close.InexactFloat64()
	}
	return series, nil
}

// PruneCandles deletes candles with open_time before the cutoff and
// returns the number of rows removed. Used by the maintenance job to keep
// the cache bounded.
func (s *Store) PruneCandles(olderThan time.Time) (int64, error) {
	result, err := s.db.Exec("DELETE FROM candles WHERE open_time < ?", olderThan.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune candles: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		s.log.Info().Int64("rows_deleted", rows).Time("older_than", olderThan).Msg("Pruned candles")
	}
	return rows, nil
}

func scanCandle(scan func(dest ...any) error) (Candle, error) {
	var c Candle
	var openTime, receivedAt int64
	var open, high, low, closePrice, volume string

	err := scan(&c.Symbol, &c.Exchange, &c.Interval, &openTime, &open, &high, &low, &closePrice, &volume, &receivedAt)
	if err != nil {
		return Candle{}, err
	}

	c.OpenTime = time.Unix(openTime, 0).UTC()
	c.ReceivedAt = time.Unix(receivedAt, 0).UTC()

	for _, field := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&c.Open, open},
		{&c.High, high},
		{&c.Low, low},
		{&c.Close, closePrice},
		{&c.Volume, volume},
	} {
		d, err := decimal.NewFromString(field.src)
		if err != nil {
			return Candle{}, fmt.Errorf("corrupt decimal %q: %w", field.src, err)
		}
		*field.dst = d
	}
	return c, nil
}
