package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"slices"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"pullback-engine/internal/model"
)

// Reader provides read-only access to the archive for backtests and the
// operator API.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadBars returns archived bars for symbol newer than after, oldest first.
// Only OHLCV is read back; indicator fields are left unset so they can be
// recomputed.
func (r *Reader) ReadBars(symbol string, after time.Time) ([]model.Bar, error) {
	afterMs := int64(-1 << 62)
	if !after.IsZero() {
		afterMs = after.UnixMilli()
	}
	rows, err := r.db.Query(`
		SELECT symbol, ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND ts > ?
		ORDER BY ts ASC
	`, symbol, afterMs)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		var tsMs int64
		if err := rows.Scan(&b.Symbol, &tsMs, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.TS = time.UnixMilli(tsMs).UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Tail returns the newest n archived bars for symbol, oldest first.
func (r *Reader) Tail(symbol string, n int) ([]model.Bar, error) {
	rows, err := r.db.Query(`
		SELECT symbol, ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = ?
		ORDER BY ts DESC
		LIMIT ?
	`, symbol, n)
	if err != nil {
		return nil, fmt.Errorf("sqlite query tail: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		var tsMs int64
		if err := rows.Scan(&b.Symbol, &tsMs, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan tail: %w", err)
		}
		b.TS = time.UnixMilli(tsMs).UTC()
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(bars)
	return bars, nil
}

// FillRecord represents a row from the fills table.
type FillRecord struct {
	ID       int64     `json:"id"`
	OrderID  string    `json:"order_id"`
	Strategy string    `json:"strategy"`
	Signal   string    `json:"signal"`
	Side     string    `json:"side"`
	Symbol   string    `json:"symbol"`
	Qty      int64     `json:"qty"`
	Price    float64   `json:"price"`
	Slippage float64   `json:"slippage"`
	Reason   string    `json:"reason"`
	FilledAt time.Time `json:"filled_at"`
}

// Fills returns the last limit fills, newest first.
func (r *Reader) Fills(limit int) ([]FillRecord, error) {
	rows, err := r.db.Query(`
		SELECT id, order_id, strategy, signal, side, symbol, qty, price, slippage, reason, filled_at
		FROM fills ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query fills: %w", err)
	}
	defer rows.Close()

	var fills []FillRecord
	for rows.Next() {
		var f FillRecord
		var reason sql.NullString
		var filledMs int64
		if err := rows.Scan(&f.ID, &f.OrderID, &f.Strategy, &f.Signal, &f.Side, &f.Symbol,
			&f.Qty, &f.Price, &f.Slippage, &reason, &filledMs); err != nil {
			return nil, fmt.Errorf("sqlite scan fills: %w", err)
		}
		f.Reason = reason.String
		f.FilledAt = time.UnixMilli(filledMs).UTC()
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// Close closes the database.
func (r *Reader) Close() error {
	return r.db.Close()
}
