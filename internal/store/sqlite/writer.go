// Package sqlite archives bars and order fills to a local SQLite database
// and reads them back for backtests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"pullback-engine/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/pullback.db"
}

// Writer is a single-connection SQLite writer with transaction batching.
type Writer struct {
	mu sync.Mutex
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol  TEXT    NOT NULL,
			ts      INTEGER NOT NULL,
			open    REAL    NOT NULL,
			high    REAL    NOT NULL,
			low     REAL    NOT NULL,
			close   REAL    NOT NULL,
			volume  REAL    NOT NULL,
			ema     REAL,
			vwap    REAL,
			slope   REAL,
			PRIMARY KEY (symbol, ts)
		);

		CREATE TABLE IF NOT EXISTS fills (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id   TEXT    NOT NULL,
			strategy   TEXT    NOT NULL,
			signal     TEXT    NOT NULL,
			side       TEXT    NOT NULL,
			symbol     TEXT    NOT NULL,
			qty        INTEGER NOT NULL,
			price      REAL    NOT NULL,
			slippage   REAL    DEFAULT 0,
			reason     TEXT,
			filled_at  INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_fills_symbol ON fills(symbol);
		CREATE INDEX IF NOT EXISTS idx_fills_filled_at ON fills(filled_at);
	`)
	return err
}

// Run reads bars from barCh and inserts them in batched transactions.
// Flushes every batchSize bars OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or barCh is closed.
func (w *Writer) Run(ctx context.Context, barCh <-chan model.Bar) {
	batch := make([]model.Bar, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := w.InsertBars(batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case b, ok := <-barCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, b)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// InsertBars upserts bars in a single transaction. Unset indicator fields
// are stored as NULL.
func (w *Writer) InsertBars(bars []model.Bar) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO bars (symbol, ts, open, high, low, close, volume, ema, vwap, slope)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.Exec(b.Symbol, b.TS.UnixMilli(), b.Open, b.High, b.Low, b.Close, b.Volume,
			nullable(b.EMA), nullable(b.VWAP), nullable(b.Slope))
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// RecordFill persists a filled order to the fills table.
func (w *Writer) RecordFill(o model.Order, strategy, reason string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, err := w.db.Exec(
		`INSERT INTO fills (order_id, strategy, signal, side, symbol, qty, price, slippage, reason, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, strategy, string(o.Signal), string(o.Side), o.Symbol,
		o.Qty, o.Price, o.Slippage, reason, o.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite insert fill: %w", err)
	}
	return nil
}

// Prune deletes bars and fills stamped before cutoff and returns how many
// rows of each were removed.
func (w *Writer) Prune(cutoff time.Time) (bars, fills int64, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	tx, err := w.db.Begin()
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM bars WHERE ts < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, 0, fmt.Errorf("sqlite prune bars: %w", err)
	}
	bars, _ = res.RowsAffected()

	res, err = tx.Exec(`DELETE FROM fills WHERE filled_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, 0, fmt.Errorf("sqlite prune fills: %w", err)
	}
	fills, _ = res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	log.Printf("[sqlite] pruned %d bars and %d fills before %s", bars, fills, cutoff.Format(time.RFC3339))
	return bars, fills, nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}

func nullable(r model.Reading) sql.NullFloat64 {
	return sql.NullFloat64{Float64: r.Value, Valid: r.Ready}
}
