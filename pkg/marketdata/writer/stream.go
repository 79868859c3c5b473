package writer

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"

	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

// StreamWriter commits every candle as it arrives, so a long follow
// session survives a crash with at most the in-flight bar lost. Safe
// for concurrent use.
type StreamWriter struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

var _ CandleWriter = (*StreamWriter)(nil)

func NewStreamWriter(path string) *StreamWriter {
	return &StreamWriter{path: path}
}

func (w *StreamWriter) Initialize() error {
	w.mu.Lock()
	defer w.mu.Unlock()

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

	w.db = db

	return nil
}

func (w *StreamWriter) Write(candle types.Candle) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.db == nil {
		return errors.New(errors.ErrCodeMarketDataWriteFailed, "writer is not initialized")
	}

	_, err := w.db.Exec(candlesUpsert,
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

func (w *StreamWriter) LatestTime(instrument string) (optional.Option[time.Time], error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.db == nil {
		return optional.None[time.Time](), errors.New(errors.ErrCodeMarketDataWriteFailed, "writer is not initialized")
	}

	var latest sql.NullTime

	row := w.db.QueryRow(`SELECT max(time) FROM candles WHERE instrument = ?`, instrument)
	if err := row.Scan(&latest); err != nil {
		return optional.None[time.Time](), errors.Wrap(errors.ErrCodeQueryFailed, "failed to read latest bar time", err)
	}

	if !latest.Valid {
		return optional.None[time.Time](), nil
	}

	return optional.Some(latest.Time.UTC()), nil
}

// Finalize is a no-op; every write already committed.
func (w *StreamWriter) Finalize() (string, error) {
	return w.path, nil
}

func (w *StreamWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.db == nil {
		return nil
	}

	err := w.db.Close()
	w.db = nil

	if err != nil {
		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to close store", err)
	}

	return nil
}
