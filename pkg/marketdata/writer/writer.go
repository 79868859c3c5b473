// Package writer persists candles into per-instrument DuckDB stores.
// The same files back the replay engine and the live collector, so
// writes are upserts keyed on instrument and bar time.
package writer

import (
	"time"

	"github.com/moznion/go-optional"

	"github.com/meridian-lab/meridian-trading/internal/types"
)

// CandleWriter writes candles into one store file.
type CandleWriter interface {
	// Initialize opens the store and creates the candles table.
	Initialize() error
	// Write upserts a single candle.
	Write(candle types.Candle) error
	// LatestTime returns the newest stored bar time for the instrument,
	// or none when the store holds nothing for it.
	LatestTime(instrument string) (optional.Option[time.Time], error)
	// Finalize completes the writing pass and returns the store path.
	Finalize() (string, error)
	// Close releases the store.
	Close() error
}
