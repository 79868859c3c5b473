package writer

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"

	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

const candlesSchema = `
	CREATE TABLE IF NOT EXISTS candles (
		instrument TEXT NOT NULL,
		time TIMESTAMP NOT NULL,
		open DOUBLE,
		high DOUBLE,
		low DOUBLE,
		close DOUBLE,
		volume DOUBLE,
		PRIMARY KEY (instrument, time)
	)
`

const candlesUpsert = `
	INSERT OR REPLACE INTO candles (instrument, time, open, high, low, close, volume)
	VALUES (?, ?, ?, ?, ?, ?, ?)
`

// DuckDBWriter writes one batch of candles inside a transaction that
// Finalize commits. Suited to downloads and refreshes where the pass
// either lands whole or not at all.
type DuckDBWriter struct {
	db   *sql.DB
	tx   *sql.Tx
	stmt *sql.Stmt
	path string
}

var _ CandleWriter = (*DuckDBWriter)(nil)

func NewDuckDBWriter(path string) *DuckDBWriter {
	return &DuckDBWriter{path: path}
}

// Initialize opens the store file, creates the candles table and starts
// the write transaction.
func (w *DuckDBWriter) Initialize() error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to create data directory", err)
	}

	db, err := sql.Open("duckdb", w.path)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeMarketDataWriteFailed, err, "failed to open store at %s", w.path)
	}

	if _, err := db.Exec(candlesSchema); err != nil {
		db.Close()

		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to create candles table", err)
	}

	tx, err := db.Begin()
	if err != nil {
		db.Close()

		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to begin transaction", err)
	}

	stmt, err := tx.Prepare(candlesUpsert)
	if err != nil {
		tx.Rollback()
		db.Close()

		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to prepare upsert", err)
	}

	w.db = db
	w.tx = tx
	w.stmt = stmt

	return nil
}

func (w *DuckDBWriter) Write(candle types.Candle) error {
	if w.stmt == nil {
		return errors.New(errors.ErrCodeMarketDataWriteFailed, "writer is not initialized")
	}

	_, err := w.stmt.Exec(
		candle.Instrument,
		candle.Time.UTC(),
		candle.Open,
		candle.High,
		candle.Low,
		candle.Close,
		candle.Volume,
	)
	if err != nil {
		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to write candle", err)
	}

	return nil
}

// LatestTime reads through the open transaction so the current pass's
// writes count as well as the committed ones.
func (w *DuckDBWriter) LatestTime(instrument string) (optional.Option[time.Time], error) {
	if w.tx == nil {
		return optional.None[time.Time](), errors.New(errors.ErrCodeMarketDataWriteFailed, "writer is not initialized")
	}

	var latest sql.NullTime

	row := w.tx.QueryRow(`SELECT max(time) FROM candles WHERE instrument = ?`, instrument)
	if err := row.Scan(&latest); err != nil {
		return optional.None[time.Time](), errors.Wrap(errors.ErrCodeQueryFailed, "failed to read latest bar time", err)
	}

	if !latest.Valid {
		return optional.None[time.Time](), nil
	}

	return optional.Some(latest.Time.UTC()), nil
}

// Finalize commits the pass.
func (w *DuckDBWriter) Finalize() (string, error) {
	if w.tx == nil {
		return "", errors.New(errors.ErrCodeMarketDataWriteFailed, "writer is not initialized")
	}

	if err := w.tx.Commit(); err != nil {
		w.tx.Rollback()

		return "", errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to commit candles", err)
	}

	w.tx = nil

	return w.path, nil
}

// Close rolls back anything uncommitted and releases the store.
func (w *DuckDBWriter) Close() error {
	if w.stmt != nil {
		w.stmt.Close()
		w.stmt = nil
	}

	if w.tx != nil {
		w.tx.Rollback()
		w.tx = nil
	}

	if w.db != nil {
		err := w.db.Close()
		w.db = nil

		if err != nil {
			return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to close store", err)
		}
	}

	return nil
}
