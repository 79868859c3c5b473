// Package engine_v1 implements the live trading engine: a signal loop
// evaluating the newest closed bar per instrument, a monitor loop
// marking open trades to market between closes, and a collect loop
// keeping the candle stores fresh. The loops share only the ledger;
// the broker stays the source of truth for positions and balance.
package engine_v1

import (
	"context"
	"strconv"
	"time"

	"github.com/moznion/go-optional"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/meridian-lab/meridian-trading/internal/broker"
	"github.com/meridian-lab/meridian-trading/internal/config"
	"github.com/meridian-lab/meridian-trading/internal/journal"
	"github.com/meridian-lab/meridian-trading/internal/ledger"
	"github.com/meridian-lab/meridian-trading/internal/lifecycle"
	"github.com/meridian-lab/meridian-trading/internal/logger"
	"github.com/meridian-lab/meridian-trading/internal/margin"
	"github.com/meridian-lab/meridian-trading/internal/reconcile"
	"github.com/meridian-lab/meridian-trading/internal/scheduler"
	"github.com/meridian-lab/meridian-trading/internal/sizing"
	"github.com/meridian-lab/meridian-trading/internal/strategy"
	"github.com/meridian-lab/meridian-trading/internal/telemetry"
	"github.com/meridian-lab/meridian-trading/internal/trading/engine"
	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/pkg/errors"
	"github.com/meridian-lab/meridian-trading/pkg/marketdata"
	mdprovider "github.com/meridian-lab/meridian-trading/pkg/marketdata/provider"
)

const (
	taskSignal  = "signal"
	taskMonitor = "monitor"
	taskCollect = "collect"

	// interInstrumentDelay spaces the per-instrument work inside one
	// signal pass so request bursts stay under the broker's limits.
	interInstrumentDelay = 2 * time.Second

	// historyBars is how many closed bars the signal pass hands the
	// provider, enough for the default fusion window with headroom.
	historyBars = 300

	accountTimeout = 30 * time.Second
	candlesTimeout = 60 * time.Second
	refreshTimeout = 2 * time.Minute
)

// LiveTradingEngineV1 implements the LiveTradingEngine interface.
type LiveTradingEngineV1 struct {
	config    *config.Config
	broker    broker.Client
	collector engine.CandleCollector
	clock     scheduler.Clock
	metrics   *telemetry.Metrics
	log       *logger.Logger

	ledger     *ledger.Ledger
	journal    *journal.Journal
	reconciler *reconcile.Reconciler
	rules      *lifecycle.Ruleset
	sizer      *sizing.Sizer
	oracle     margin.Oracle
	providers  map[string]strategy.SignalProvider
	callbacks  engine.LiveTradingCallbacks

	// lastBar is the newest evaluated bar per instrument; only the
	// signal loop touches it.
	lastBar map[string]time.Time
	// refreshed is the last successful store refresh per instrument;
	// only the collect loop touches it.
	refreshed map[string]time.Time
	// monitorCycles drives the reconcile cadence; only the monitor
	// loop touches it.
	monitorCycles int

	initialized bool
}

var _ engine.LiveTradingEngine = (*LiveTradingEngineV1)(nil)

// NewLiveTradingEngineV1 creates an engine on the real clock.
func NewLiveTradingEngineV1() (engine.LiveTradingEngine, error) {
	log, err := logger.NewLogger()
	if err != nil {
		return nil, err
	}

	return &LiveTradingEngineV1{
		clock:     scheduler.RealClock{},
		log:       log,
		lastBar:   make(map[string]time.Time),
		refreshed: make(map[string]time.Time),
	}, nil
}

// Initialize implements engine.LiveTradingEngine. It builds the signal
// providers, the ledger and the journal from the configuration; any
// failure here is fatal by design, the engine never starts half wired.
func (e *LiveTradingEngineV1) Initialize(cfg *config.Config) error {
	if cfg == nil {
		return errors.New(errors.ErrCodeInvalidConfiguration, "nil configuration")
	}

	e.config = cfg
	e.rules = cfg.Lifecycle.Ruleset()
	e.sizer = sizing.NewSizer(cfg.Sizing)
	e.oracle = cfg.Oracle()

	e.providers = make(map[string]strategy.SignalProvider, len(cfg.Instruments))

	for _, instrument := range cfg.Instruments {
		instrumentProvider, err := instrument.Provider(e.log)
		if err != nil {
			return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err,
				"failed to build signal provider for %s", instrument.Symbol)
		}

		e.providers[instrument.Symbol] = instrumentProvider
	}

	e.ledger = ledger.NewLedger(cfg.Engine.SnapshotPath, e.log)

	tradeJournal, err := journal.NewJournal(cfg.Engine.JournalPath, e.log)
	if err != nil {
		return errors.Wrap(errors.ErrCodeJournalUnavailable, "failed to open trade journal", err)
	}

	e.journal = tradeJournal

	if e.collector == nil && cfg.Data.Directory != "" {
		collector, err := marketdata.NewClient(marketdata.ClientConfig{
			Provider:  mdprovider.ProviderBinance,
			Directory: cfg.Data.Directory,
		}, nil, e.log)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to build candle collector", err)
		}

		e.collector = collector
	}

	if e.metrics == nil {
		e.metrics = telemetry.NewWith(prometheus.NewRegistry())
	}

	e.initialized = true

	e.log.Debug("live engine initialized",
		zap.Strings("instruments", cfg.Symbols()),
		zap.String("journal", cfg.Engine.JournalPath),
	)

	return nil
}

// SetBroker implements engine.LiveTradingEngine.
func (e *LiveTradingEngineV1) SetBroker(client broker.Client) error {
	e.broker = client
	e.log.Debug("broker set", zap.String("broker", client.Name()))

	return nil
}

// SetCollector implements engine.LiveTradingEngine.
func (e *LiveTradingEngineV1) SetCollector(collector engine.CandleCollector) error {
	e.collector = collector

	return nil
}

// SetClock implements engine.LiveTradingEngine.
func (e *LiveTradingEngineV1) SetClock(clock scheduler.Clock) error {
	e.clock = clock

	return nil
}

// SetMetrics implements engine.LiveTradingEngine.
func (e *LiveTradingEngineV1) SetMetrics(metrics *telemetry.Metrics) error {
	e.metrics = metrics

	return nil
}

// GetConfigSchema implements engine.LiveTradingEngine.
func (e *LiveTradingEngineV1) GetConfigSchema() (string, error) {
	return engine.GetConfigSchema()
}

// Run implements engine.LiveTradingEngine. It restores the snapshot,
// aligns with the broker, then runs the task loops until ctx is
// canceled. Failures before the loops start are fatal; after that only
// the operator stops the engine.
func (e *LiveTradingEngineV1) Run(ctx context.Context, callbacks engine.LiveTradingCallbacks) error {
	if err := e.preRunCheck(); err != nil {
		return err
	}

	e.callbacks = callbacks

	if err := e.ledger.Load(); err != nil {
		return err
	}

	for _, symbol := range e.config.Symbols() {
		if err := e.ledger.Activate(symbol); err != nil {
			return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "cannot activate %s", symbol)
		}
	}

	defer e.journal.Close()

	e.reconciler = reconcile.NewReconciler(e.broker, e.ledger, e.rules, e.oracle, e.journal, e.config.LotSizes(), e.log)

	// The broker is authoritative for balance and positions; align with
	// it before the first signal pass.
	e.syncBalance(ctx)
	e.runReconcile(ctx)

	e.ledger.SetRunning(true)
	defer e.ledger.SetRunning(false)

	sched := scheduler.NewScheduler(e.log)
	sched.Add(scheduler.NewTask(taskSignal, e.clock, e.log, e.signalCycle))
	sched.Add(scheduler.NewTask(taskMonitor, e.clock, e.log, e.monitorCycle))

	if e.collector != nil {
		sched.Add(scheduler.NewTask(taskCollect, e.clock, e.log, e.collectCycle))
	}

	e.log.Info("live trading started",
		zap.String("broker", e.broker.Name()),
		zap.Strings("instruments", e.ledger.ActiveInstruments()),
	)

	sched.Run(ctx)

	return ctx.Err()
}

func (e *LiveTradingEngineV1) preRunCheck() error {
	if !e.initialized {
		return errors.New(errors.ErrCodeInvalidConfiguration, "engine not initialized - call Initialize() first")
	}

	if e.broker == nil {
		return errors.New(errors.ErrCodeBrokerUnavailable, "broker not set - call SetBroker() first")
	}

	return nil
}

// signalCycle runs one signal pass and sleeps until just after the
// next candle close across the active instruments.
func (e *LiveTradingEngineV1) signalCycle(ctx context.Context) time.Duration {
	err := e.signalPass(ctx)
	e.metrics.RecordCycle(taskSignal, err)

	return e.signalWait()
}

func (e *LiveTradingEngineV1) signalWait() time.Duration {
	poll := e.config.Engine.Poll()
	wait := poll
	now := e.clock.Now().UTC()

	for _, symbol := range e.ledger.ActiveInstruments() {
		instrument, ok := e.config.Instrument(symbol)
		if !ok {
			continue
		}

		if w := scheduler.SignalWait(now, instrument.Interval, poll); w < wait {
			wait = w
		}
	}

	return wait
}

// signalPass walks the active instruments in order, pausing between
// them. Processing is isolated per instrument; only the first error is
// reported for the cycle metric.
func (e *LiveTradingEngineV1) signalPass(ctx context.Context) error {
	var firstErr error

	for i, symbol := range e.ledger.ActiveInstruments() {
		if ctx.Err() != nil {
			return firstErr
		}

		if i > 0 {
			e.pause(ctx, interInstrumentDelay)
		}

		if err := e.processInstrument(ctx, symbol); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (e *LiveTradingEngineV1) pause(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-e.clock.After(d):
	}
}

// processInstrument evaluates one instrument on its newest closed bar:
// the exit check runs first and an exit consumes the bar, exactly as
// in replay. A bar is processed at most once.
func (e *LiveTradingEngineV1) processInstrument(ctx context.Context, symbol string) error {
	instrument, ok := e.config.Instrument(symbol)
	if !ok {
		e.log.Debug("active instrument has no configuration", zap.String("instrument", symbol))

		return nil
	}

	now := e.clock.Now().UTC()
	period := instrument.Interval.Duration()

	// The newest bar that can be closed right now. Skip the fetch when
	// it has already been evaluated.
	expected := now.Truncate(period).Add(-period)
	if !e.lastBar[symbol].Before(expected) {
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, candlesTimeout)
	candles, err := e.broker.GetCandles(cctx, symbol, now.Add(-time.Duration(historyBars)*period), now, instrument.Interval)

	cancel()

	if err != nil {
		e.brokerTrouble("candle fetch failed", err)

		return err
	}

	closed := closedBars(candles, period, now)
	if len(closed) == 0 {
		e.log.Debug("no closed bars yet", zap.String("instrument", symbol))

		return nil
	}

	bar := closed[len(closed)-1]
	if !e.lastBar[symbol].Before(bar.Time) {
		return nil
	}

	e.lastBar[symbol] = bar.Time
	barClose := bar.Time.Add(period)

	trade, holding := e.ledger.OpenTradeFor(symbol)
	if holding {
		if exit, err := e.rules.CheckExit(&trade, bar, barClose).Take(); err == nil {
			e.closePosition(ctx, trade, exit, now)

			// The exit consumed this bar; entries resume next bar.
			return nil
		}

		trade.LastPrice = bar.Close
		if err := e.ledger.UpdateTrade(trade); err != nil {
			e.log.Warn("failed to update open trade", zap.Error(err))
		}
	}

	e.evaluate(ctx, symbol, instrument, bar, closed, barClose, trade, holding, now)

	return nil
}

// closedBars keeps bars whose close time has passed, dropping the
// in-progress bar the venue reports for the current period.
func closedBars(candles []types.Candle, period time.Duration, now time.Time) []types.Candle {
	var out []types.Candle

	for _, candle := range candles {
		if candle.Time.Add(period).After(now) {
			continue
		}

		out = append(out, candle)
	}

	return out
}

// evaluate runs the provider on the bar and applies the entry gates.
// Every evaluation is recorded, holds included.
func (e *LiveTradingEngineV1) evaluate(ctx context.Context, symbol string, instrument config.InstrumentConfig, bar types.Candle, history []types.Candle, barClose time.Time, trade types.Trade, holding bool, now time.Time) {
	record := types.SignalRecord{
		Time:       barClose,
		Instrument: symbol,
	}

	bias := types.BiasNone
	if holding {
		bias = trade.Side.Bias()
	}

	signalOpt, err := e.providers[symbol].Evaluate(ctx, bar, history, bias)

	switch {
	case errors.IsInsufficientDataError(err):
		record.Outcome = types.SignalOutcomeHold
		record.Detail = "insufficient data"

		e.log.Debug("provider needs more history", zap.String("instrument", symbol), zap.Error(err))
	case err != nil:
		record.Outcome = types.SignalOutcomeProviderError
		record.Detail = err.Error()

		e.log.Warn("provider failed", zap.String("instrument", symbol), zap.Error(err))
	case signalOpt.IsNone():
		record.Outcome = types.SignalOutcomeHold
	default:
		record.Signal = signalOpt.Unwrap()
		record.Outcome, record.Detail = e.tryEnter(ctx, symbol, instrument, record.Signal, bar, holding, now)
	}

	if record.Signal.Action == "" {
		record.Signal = types.Signal{
			Time:       barClose,
			Instrument: symbol,
			Action:     types.SignalActionHold,
			Price:      bar.Close,
		}
	}

	e.ledger.RecordSignal(record)

	if err := e.journal.RecordSignal(record); err != nil {
		e.log.Warn("failed to journal signal", zap.Error(err))
	}

	e.metrics.RecordSignal(symbol, string(record.Signal.Action))
	e.metrics.RecordSignalOutcome(symbol, string(record.Outcome))

	if e.callbacks.OnSignal != nil {
		(*e.callbacks.OnSignal)(record)
	}
}

// tryEnter applies the entry gates in the same order replay applies
// them, then submits the market order and records the fill.
func (e *LiveTradingEngineV1) tryEnter(ctx context.Context, symbol string, instrument config.InstrumentConfig, signal types.Signal, bar types.Candle, holding bool, now time.Time) (types.SignalOutcome, string) {
	if outcome, eligible := lifecycle.EntryEligible(signal, instrument.MinConfidence); !eligible {
		return outcome, ""
	}

	if holding {
		return types.SignalOutcomePositionOpen, ""
	}

	if cooldown, active := e.ledger.CooldownFor(symbol, now); active {
		return types.SignalOutcomeCooldown, cooldown.Reason
	}

	marginPerLot, err := e.oracle.MarginPerLot(ctx, symbol, bar.Close)
	if err != nil {
		return types.SignalOutcomeSizingRejected, err.Error()
	}

	size, err := e.sizer.Size(e.ledger.Balance(), marginPerLot)
	if err != nil {
		return types.SignalOutcomeSizingRejected, err.Error()
	}

	side, _ := types.SideFromAction(signal.Action)

	result, lots, err := e.submitEntry(ctx, symbol, side, size.Lots)
	if err != nil {
		e.brokerTrouble("entry order failed", err)

		return types.SignalOutcomeOrderFailed, err.Error()
	}

	if !result.Filled {
		e.metrics.RecordOrder(symbol, string(side), "unconfirmed")
		e.log.Warn("entry order not confirmed",
			zap.String("instrument", symbol),
			zap.String("status", result.Status),
		)

		return types.SignalOutcomeOrderFailed, "order not confirmed: " + result.Status
	}

	if result.FilledLots > 0 {
		lots = result.FilledLots
	}

	entryPrice := result.FillPrice
	if entryPrice <= 0 {
		entryPrice = bar.Close
	}

	opened, err := e.ledger.OpenTrade(types.Trade{
		Instrument: symbol,
		Side:       side,
		EntryPrice: entryPrice,
		EntryTime:  now,
		Lots:       lots,
		LotSize:    instrument.LotSize,
		MarginUsed: marginPerLot * float64(lots),
		StopLoss:   signal.StopLoss,
		TakeProfit: signal.TakeProfit,
		LastPrice:  entryPrice,
	})
	if err != nil {
		// The order filled but the ledger refused it; the next
		// reconcile pass surfaces the broker position.
		e.log.Error("filled entry could not be recorded",
			zap.String("instrument", symbol),
			zap.Error(err),
		)

		return types.SignalOutcomeOrderFailed, err.Error()
	}

	e.metrics.RecordOrder(symbol, string(side), "filled")

	if err := e.journal.RecordTrade(opened); err != nil {
		e.log.Warn("failed to journal trade", zap.Error(err))
	}

	e.notifyOpened(opened)

	return types.SignalOutcomeExecuted, ""
}

// submitEntry places the entry order, retrying exactly once one lot
// smaller when the broker reports insufficient margin for the
// requested size. One-lot orders are never retried.
func (e *LiveTradingEngineV1) submitEntry(ctx context.Context, symbol string, side types.Side, lots int) (broker.OrderResult, int, error) {
	result, err := e.placeOrder(ctx, broker.OrderRequest{
		Instrument: symbol,
		Side:       side,
		Lots:       lots,
	})
	if err == nil || !errors.HasCode(err, errors.ErrCodeInsufficientMargin) || lots <= 1 {
		return result, lots, err
	}

	lots--

	e.log.Warn("entry rejected for margin, retrying one lot smaller",
		zap.String("instrument", symbol),
		zap.Int("lots", lots),
	)

	result, err = e.placeOrder(ctx, broker.OrderRequest{
		Instrument: symbol,
		Side:       side,
		Lots:       lots,
	})

	return result, lots, err
}

func (e *LiveTradingEngineV1) placeOrder(ctx context.Context, request broker.OrderRequest) (broker.OrderResult, error) {
	octx, cancel := context.WithTimeout(ctx, accountTimeout)
	defer cancel()

	return e.broker.PlaceMarketOrder(octx, request)
}

// closePosition submits the reduce-only close and settles the trade.
// A failed or unconfirmed close leaves the trade open; the monitor
// retries on its next pass and reconcile heals any divergence.
func (e *LiveTradingEngineV1) closePosition(ctx context.Context, trade types.Trade, exit lifecycle.Exit, now time.Time) {
	closeSide := trade.Side.Opposite()

	result, err := e.placeOrder(ctx, broker.OrderRequest{
		Instrument: trade.Instrument,
		Side:       closeSide,
		Lots:       trade.Lots,
		ReduceOnly: true,
	})
	if err != nil {
		e.brokerTrouble("close order failed", err)

		return
	}

	if !result.Filled {
		e.metrics.RecordOrder(trade.Instrument, string(closeSide), "unconfirmed")
		e.log.Warn("close order not confirmed",
			zap.String("instrument", trade.Instrument),
			zap.String("status", result.Status),
		)

		return
	}

	e.metrics.RecordOrder(trade.Instrument, string(closeSide), "filled")

	price := result.FillPrice
	if price <= 0 {
		price = exit.Price
	}

	e.settle(trade, price, exit.Reason, now)
}

// settle books the close into the ledger, starts a cooldown when the
// trade lost and journals the settled form.
func (e *LiveTradingEngineV1) settle(trade types.Trade, price float64, reason types.ExitReason, at time.Time) {
	restitution := e.rules.Settle(&trade, price, reason, at)

	if err := e.ledger.SettleTrade(trade, restitution); err != nil {
		e.log.Warn("failed to settle trade", zap.Error(err))

		return
	}

	if trade.RealizedPnL < 0 {
		losses := e.ledger.ConsecutiveLosses(trade.Instrument)
		if cooldown, ok := lifecycle.CooldownAfterLoss(trade.Instrument, losses, at); ok {
			e.ledger.StartCooldown(cooldown)
			e.log.Info("cooldown started",
				zap.String("instrument", trade.Instrument),
				zap.Time("until", cooldown.Until),
				zap.Int("consecutive_losses", cooldown.ConsecutiveLosses),
			)
		}
	}

	e.metrics.RecordExit(trade.Instrument, string(reason))

	if err := e.journal.RecordTrade(trade); err != nil {
		e.log.Warn("failed to journal trade", zap.Error(err))
	}

	e.notifyClosed(trade)
}

// monitorCycle marks open trades to market, applies the price-based
// exit checks and reconciles against the broker every Nth pass.
func (e *LiveTradingEngineV1) monitorCycle(ctx context.Context) time.Duration {
	err := e.monitorPass(ctx)
	e.metrics.RecordCycle(taskMonitor, err)

	e.monitorCycles++
	if every := e.config.Engine.ReconcileEvery; every > 0 && e.monitorCycles%every == 0 {
		e.runReconcile(ctx)
	}

	return e.config.Engine.Monitor()
}

func (e *LiveTradingEngineV1) monitorPass(ctx context.Context) error {
	syncErr := e.syncBalance(ctx)

	trades := e.ledger.OpenTrades()
	e.metrics.SetOpenPositions(len(trades))

	if len(trades) == 0 {
		return syncErr
	}

	pctx, cancel := context.WithTimeout(ctx, accountTimeout)
	positions, err := e.broker.GetOpenPositions(pctx, optional.None[string]())

	cancel()

	if err != nil {
		e.brokerTrouble("position fetch failed", err)

		return err
	}

	marks := make(map[string]float64, len(positions))
	for _, position := range positions {
		marks[position.Instrument] = position.MarkPrice
	}

	now := e.clock.Now().UTC()

	for _, trade := range trades {
		price, ok := marks[trade.Instrument]
		if !ok || price <= 0 {
			// Reconcile decides what happened to a position the broker
			// no longer reports.
			continue
		}

		if exit, err := e.rules.CheckExitAtPrice(&trade, price, now).Take(); err == nil {
			e.closePosition(ctx, trade, exit, now)

			continue
		}

		trade.LastPrice = price
		trade.RecordExcursion(price, price)

		if err := e.ledger.UpdateTrade(trade); err != nil {
			e.log.Warn("failed to update open trade", zap.Error(err))
		}
	}

	return syncErr
}

// syncBalance aligns the ledger's balance mirror with the broker. A
// failed sync keeps the previous mirror; the next pass retries.
func (e *LiveTradingEngineV1) syncBalance(ctx context.Context) error {
	bctx, cancel := context.WithTimeout(ctx, accountTimeout)
	defer cancel()

	balance, err := e.broker.GetBalance(bctx)
	if err != nil {
		e.brokerTrouble("balance sync failed", err)

		return err
	}

	e.ledger.SetBalance(balance.Available)
	e.metrics.SetBalance(balance.Available)

	return nil
}

// runReconcile executes one reconciliation pass and fans its outcome
// into telemetry, the callbacks and the log.
func (e *LiveTradingEngineV1) runReconcile(ctx context.Context) {
	rctx, cancel := context.WithTimeout(ctx, accountTimeout)
	defer cancel()

	result, err := e.reconciler.Reconcile(rctx)
	if err != nil {
		e.brokerTrouble("reconcile pass failed", err)

		return
	}

	for _, trade := range result.ExternalCloses {
		e.metrics.RecordExit(trade.Instrument, string(trade.ExitReason.TakeOr(types.ExitReasonExternal)))
		e.notifyClosed(trade)
	}

	for _, trade := range result.Adopted {
		e.metrics.RecordAdoption(trade.Instrument)
		e.notifyOpened(trade)
	}

	for _, conflict := range result.Conflicts {
		e.metrics.RecordConflict(conflict.Instrument)
		e.log.Warn("position conflict",
			zap.String("instrument", conflict.Instrument),
			zap.String("local_side", string(conflict.LocalSide)),
			zap.Int("local_lots", conflict.LocalLots),
			zap.String("broker_side", string(conflict.BrokerSide)),
			zap.Int("broker_lots", conflict.BrokerLots),
		)

		if e.callbacks.OnReconcileConflict != nil {
			(*e.callbacks.OnReconcileConflict)(conflict)
		}
	}

	if !result.Clean() {
		e.log.Info("reconcile pass applied changes",
			zap.Int("external_closes", len(result.ExternalCloses)),
			zap.Int("adopted", len(result.Adopted)),
			zap.Int("conflicts", len(result.Conflicts)),
		)
	}
}

// collectCycle refreshes the candle stores for the active instruments.
// Each instrument refreshes at most once per refresh interval; a new
// instrument's first refresh backfills its full history depth.
func (e *LiveTradingEngineV1) collectCycle(ctx context.Context) time.Duration {
	err := e.collectPass(ctx)
	e.metrics.RecordCycle(taskCollect, err)

	return e.config.Data.Collect()
}

func (e *LiveTradingEngineV1) collectPass(ctx context.Context) error {
	var firstErr error

	now := e.clock.Now().UTC()

	for _, symbol := range e.ledger.ActiveInstruments() {
		if ctx.Err() != nil {
			return firstErr
		}

		instrument, ok := e.config.Instrument(symbol)
		if !ok {
			continue
		}

		if last, ok := e.refreshed[symbol]; ok && now.Sub(last) < e.config.Data.Refresh() {
			continue
		}

		rctx, cancel := context.WithTimeout(ctx, refreshTimeout)
		result, err := e.collector.Refresh(rctx, symbol, instrument.Interval, e.config.Data.Backfill(), now)

		cancel()

		if err != nil {
			e.log.Warn("candle refresh failed", zap.String("instrument", symbol), zap.Error(err))

			if firstErr == nil {
				firstErr = err
			}

			continue
		}

		e.refreshed[symbol] = now
		e.log.Debug("candle store refreshed",
			zap.String("instrument", symbol),
			zap.String("path", result.Path),
			zap.Int("written", result.Written),
		)
	}

	return firstErr
}

// brokerTrouble logs a broker failure, counts it and notifies the
// error callback.
func (e *LiveTradingEngineV1) brokerTrouble(message string, err error) {
	e.metrics.RecordBrokerError(strconv.Itoa(int(errors.GetCode(err))))
	e.log.Warn(message, zap.Error(err))

	if e.callbacks.OnError != nil {
		(*e.callbacks.OnError)(err)
	}
}

func (e *LiveTradingEngineV1) notifyOpened(trade types.Trade) {
	if e.callbacks.OnPositionOpened != nil {
		(*e.callbacks.OnPositionOpened)(trade)
	}
}

func (e *LiveTradingEngineV1) notifyClosed(trade types.Trade) {
	if e.callbacks.OnPositionClosed != nil {
		(*e.callbacks.OnPositionClosed)(trade)
	}
}
