// Package engine defines the replay engine contract. A replay runs one
// instrument's candle history through the same lifecycle rules the live
// engine uses and produces a performance report.
package engine

import (
	"context"

	"github.com/moznion/go-optional"

	"github.com/meridian-lab/meridian-trading/internal/strategy"
	"github.com/meridian-lab/meridian-trading/internal/types"
)

// OnProgressCallback reports replay progress, called once per bar.
type OnProgressCallback func(current int, total int)

type Engine interface {
	// Initialize parses the YAML replay configuration.
	Initialize(config string) error
	// SetCandles supplies the candle series directly. Overrides any
	// data path.
	SetCandles(candles []types.Candle) error
	// SetDataPath points the replay at a collected DuckDB data file.
	SetDataPath(path string) error
	// SetResultsFolder sets the output directory for the report and
	// the run journal.
	SetResultsFolder(folder string) error
	// SetSignalProvider overrides the provider the configuration would
	// build, for programmatic runs.
	SetSignalProvider(provider strategy.SignalProvider) error
	// Run replays the series and returns the performance report. The
	// context cancels a run between bars.
	Run(ctx context.Context, onProgress optional.Option[OnProgressCallback]) (types.PerformanceReport, error)
	// GetConfigSchema returns the JSON schema of the replay
	// configuration.
	GetConfigSchema() (string, error)
}
