// Package engine defines the live trading engine contract: the engine
// runs the signal, monitor and collect loops against a broker and
// reports lifecycle events through optional callbacks.
package engine

import (
	"context"
	"time"

	"github.com/meridian-lab/meridian-trading/internal/broker"
	"github.com/meridian-lab/meridian-trading/internal/config"
	"github.com/meridian-lab/meridian-trading/internal/reconcile"
	"github.com/meridian-lab/meridian-trading/internal/scheduler"
	"github.com/meridian-lab/meridian-trading/internal/telemetry"
	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/pkg/marketdata"
)

// OnPositionOpenedCallback is called after a trade is recorded open,
// both for engine entries and for positions adopted from the broker.
type OnPositionOpenedCallback func(trade types.Trade)

// OnPositionClosedCallback is called after a trade settles, whatever
// closed it.
type OnPositionClosedCallback func(trade types.Trade)

// OnSignalCallback is called once per signal evaluation, holds and
// rejections included.
type OnSignalCallback func(record types.SignalRecord)

// OnReconcileConflictCallback is called for every conflict a
// reconciliation pass reports. Conflicts repeat each pass until
// resolved.
type OnReconcileConflictCallback func(conflict reconcile.Conflict)

// OnErrorCallback is called when a non-fatal error occurs.
type OnErrorCallback func(err error)

// LiveTradingCallbacks holds the lifecycle callbacks for the live
// engine. All fields are pointers; nil skips the callback. Callbacks
// run on the task loop that produced the event and must not block.
type LiveTradingCallbacks struct {
	// OnPositionOpened is called after a trade is recorded open.
	OnPositionOpened *OnPositionOpenedCallback

	// OnPositionClosed is called after a trade settles.
	OnPositionClosed *OnPositionClosedCallback

	// OnSignal is called once per signal evaluation.
	OnSignal *OnSignalCallback

	// OnReconcileConflict is called for every reported conflict.
	OnReconcileConflict *OnReconcileConflictCallback

	// OnError is called when a non-fatal error occurs.
	OnError *OnErrorCallback
}

// CandleCollector refreshes an instrument's collected candle store.
// *marketdata.Client satisfies it; tests substitute their own.
type CandleCollector interface {
	Refresh(ctx context.Context, instrument string, interval types.Interval, backfill time.Duration, now time.Time) (marketdata.Result, error)
}

// LiveTradingEngine orchestrates signal execution against a broker.
type LiveTradingEngine interface {
	// Initialize wires the engine from the deployment configuration.
	Initialize(cfg *config.Config) error
	// SetBroker sets the broker client. Required before Run.
	SetBroker(client broker.Client) error
	// SetCollector overrides the candle collector the configuration
	// would build. A nil collector disables the collect loop.
	SetCollector(collector CandleCollector) error
	// SetClock overrides the wall clock, for tests.
	SetClock(clock scheduler.Clock) error
	// SetMetrics sets the metrics sink the task loops record into.
	SetMetrics(metrics *telemetry.Metrics) error
	// Run starts the task loops and blocks until ctx is canceled.
	Run(ctx context.Context, callbacks LiveTradingCallbacks) error
	// GetConfigSchema returns the JSON schema of the deployment
	// configuration.
	GetConfigSchema() (string, error)
}

// GetConfigSchema returns the JSON schema of the deployment
// configuration.
func GetConfigSchema() (string, error) {
	return config.Schema()
}
