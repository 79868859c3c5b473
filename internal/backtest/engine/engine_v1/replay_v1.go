// Package engine implements the replay engine: one instrument's candle
// series pushed through the same lifecycle rules, sizing and cooldown
// policy the live engine runs, producing a performance report, a YAML
// summary and a run journal.
package engine

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/moznion/go-optional"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/meridian-lab/meridian-trading/internal/backtest/engine"
	"github.com/meridian-lab/meridian-trading/internal/backtest/engine/engine_v1/datasource"
	"github.com/meridian-lab/meridian-trading/internal/journal"
	"github.com/meridian-lab/meridian-trading/internal/ledger"
	"github.com/meridian-lab/meridian-trading/internal/lifecycle"
	"github.com/meridian-lab/meridian-trading/internal/logger"
	"github.com/meridian-lab/meridian-trading/internal/margin"
	"github.com/meridian-lab/meridian-trading/internal/sizing"
	"github.com/meridian-lab/meridian-trading/internal/stats"
	"github.com/meridian-lab/meridian-trading/internal/strategy"
	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

// ReplayEngineV1 replays candles bar by bar. Within each bar the exit
// check runs first and an exit consumes the bar; signals are evaluated
// on the history up to and including the current bar, never beyond it.
type ReplayEngineV1 struct {
	config        ReplayConfig
	candles       []types.Candle
	dataPath      string
	resultsFolder string
	provider      strategy.SignalProvider
	log           *logger.Logger
}

var _ engine.Engine = (*ReplayEngineV1)(nil)

func NewReplayEngineV1() engine.Engine {
	return &ReplayEngineV1{}
}

// Initialize implements engine.Engine.
func (b *ReplayEngineV1) Initialize(config string) error {
	if err := yaml.Unmarshal([]byte(config), &b.config); err != nil {
		return errors.Wrap(errors.ErrCodeReplayConfigError, "failed to parse replay config", err)
	}

	b.config.applyDefaults()

	if err := b.config.Validate(); err != nil {
		return err
	}

	log, err := logger.NewLogger()
	if err != nil {
		return errors.Wrap(errors.ErrCodeReplayInitFailed, "failed to create logger", err)
	}

	b.log = log
	b.log.Debug("Replay engine initialized",
		zap.String("instrument", b.config.Instrument),
		zap.String("interval", string(b.config.Interval)),
	)

	return nil
}

// SetCandles implements engine.Engine.
func (b *ReplayEngineV1) SetCandles(candles []types.Candle) error {
	b.candles = candles

	return nil
}

// SetDataPath implements engine.Engine.
func (b *ReplayEngineV1) SetDataPath(path string) error {
	b.dataPath = path

	return nil
}

// SetResultsFolder implements engine.Engine.
func (b *ReplayEngineV1) SetResultsFolder(folder string) error {
	b.resultsFolder = folder

	return nil
}

// SetSignalProvider implements engine.Engine.
func (b *ReplayEngineV1) SetSignalProvider(provider strategy.SignalProvider) error {
	b.provider = provider

	return nil
}

// GetConfigSchema implements engine.Engine.
func (b *ReplayEngineV1) GetConfigSchema() (string, error) {
	return b.config.GenerateSchemaJSON()
}

// replayRun holds one run's collaborators, wired exactly as the live
// engine wires them minus the broker.
type replayRun struct {
	instrument    string
	lotSize       float64
	minConfidence float64
	provider      strategy.SignalProvider
	rules         *lifecycle.Ruleset
	sizer         *sizing.Sizer
	oracle        margin.Oracle
	ledger        *ledger.Ledger
	journal       *journal.Journal
	signals       []types.SignalRecord
	log           *logger.Logger
}

// Run implements engine.Engine.
func (b *ReplayEngineV1) Run(ctx context.Context, onProgress optional.Option[engine.OnProgressCallback]) (types.PerformanceReport, error) {
	if err := b.preRunCheck(); err != nil {
		return types.PerformanceReport{}, err
	}

	candles, instrument, err := b.loadCandles()
	if err != nil {
		return types.PerformanceReport{}, err
	}

	if len(candles) == 0 {
		return types.PerformanceReport{}, errors.New(errors.ErrCodeReplayNoData, "no candles in the replay window")
	}

	if err := os.RemoveAll(b.resultsFolder); err != nil {
		return types.PerformanceReport{}, errors.Wrap(errors.ErrCodeReplayNoResultsDir, "failed to clean results folder", err)
	}

	if err := os.MkdirAll(b.resultsFolder, 0755); err != nil {
		return types.PerformanceReport{}, errors.Wrap(errors.ErrCodeReplayNoResultsDir, "failed to create results folder", err)
	}

	run, err := b.newRun(instrument)
	if err != nil {
		return types.PerformanceReport{}, err
	}
	defer run.journal.Close()

	b.log.Info("Replay started",
		zap.String("instrument", instrument),
		zap.Int("bars", len(candles)),
		zap.Float64("initial_balance", b.config.InitialBalance),
	)

	interval := b.config.Interval.Duration()
	total := len(candles)

	for i, bar := range candles {
		if err := ctx.Err(); err != nil {
			return types.PerformanceReport{}, err
		}

		if callback, err := onProgress.Take(); err == nil {
			callback(i+1, total)
		}

		barClose := bar.Time.Add(interval)

		trade, holding := run.ledger.OpenTradeFor(instrument)
		if holding {
			if exit, err := run.rules.CheckExit(&trade, bar, barClose).Take(); err == nil {
				run.settle(&trade, exit.Price, exit.Reason, barClose)

				// The exit consumed this bar; no entry until the next.
				continue
			}

			trade.LastPrice = bar.Close
			if err := run.ledger.UpdateTrade(trade); err != nil {
				run.log.Warn("Failed to update open trade", zap.Error(err))
			}
		}

		if i < b.config.WarmupBars {
			continue
		}

		run.evaluate(ctx, bar, candles[:i+1], barClose, trade, holding)
	}

	// Anything still open settles at the final close.
	if trade, ok := run.ledger.OpenTradeFor(instrument); ok {
		last := candles[len(candles)-1]
		run.settle(&trade, last.Close, types.ExitReasonEndOfBacktest, last.Time.Add(interval))
	}

	report := stats.BuildReport(stats.Input{
		Instrument:     instrument,
		Trades:         run.ledger.Trades(types.TradeFilter{}),
		Equity:         run.ledger.EquityHistory(),
		Signals:        run.signals,
		InitialBalance: b.config.InitialBalance,
		FinalBalance:   run.ledger.Balance(),
	})

	if err := b.writeResults(run, report); err != nil {
		return types.PerformanceReport{}, err
	}

	b.log.Info("Replay finished",
		zap.Int("trades", report.TotalTrades),
		zap.Float64("final_balance", report.FinalBalance),
		zap.Float64("total_pnl", report.TotalPnL),
	)

	return report, nil
}

func (b *ReplayEngineV1) newRun(instrument string) (*replayRun, error) {
	provider := b.provider

	if provider == nil {
		built, err := b.config.instrumentConfig().Provider(b.log)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeReplayInitFailed, "failed to build signal provider", err)
		}

		provider = built
	}

	journalPath := filepath.Join(b.resultsFolder, "journal.duckdb")

	runJournal, err := journal.NewJournal(journalPath, b.log)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeReplayInitFailed, "failed to open run journal", err)
	}

	runLedger := ledger.NewLedger("", b.log)
	runLedger.SetBalance(b.config.InitialBalance)

	return &replayRun{
		instrument:    instrument,
		lotSize:       b.config.LotSize,
		minConfidence: b.config.MinConfidence,
		provider:      provider,
		rules:         b.config.Lifecycle.Ruleset(),
		sizer:         sizing.NewSizer(b.config.Sizing),
		oracle:        margin.NewRateOracle(b.config.MarginRate, map[string]float64{instrument: b.config.LotSize}),
		ledger:        runLedger,
		journal:       runJournal,
		log:           b.log,
	}, nil
}

// evaluate runs the provider on one bar and applies the entry gates.
// Every evaluation is tallied, holds included.
func (r *replayRun) evaluate(ctx context.Context, bar types.Candle, history []types.Candle, barClose time.Time, trade types.Trade, holding bool) {
	record := types.SignalRecord{
		Time:       barClose,
		Instrument: r.instrument,
	}

	bias := types.BiasNone
	if holding {
		bias = trade.Side.Bias()
	}

	signalOpt, err := r.provider.Evaluate(ctx, bar, history, bias)

	switch {
	case errors.IsInsufficientDataError(err):
		record.Outcome = types.SignalOutcomeHold
		record.Detail = "insufficient data"
	case err != nil:
		record.Outcome = types.SignalOutcomeProviderError
		record.Detail = err.Error()
	case signalOpt.IsNone():
		record.Outcome = types.SignalOutcomeHold
	default:
		record.Signal = signalOpt.Unwrap()
		record.Outcome, record.Detail = r.tryEnter(ctx, record.Signal, bar, barClose, holding)
	}

	if record.Signal.Action == "" {
		record.Signal = types.Signal{
			Time:       barClose,
			Instrument: r.instrument,
			Action:     types.SignalActionHold,
			Price:      bar.Close,
		}
	}

	r.signals = append(r.signals, record)

	if err := r.journal.RecordSignal(record); err != nil {
		r.log.Warn("Failed to journal signal", zap.Error(err))
	}
}

// tryEnter applies the entry gates in order: signal eligibility, no
// open position, no active cooldown, margin and sizing, then the
// paper fill at the bar close.
func (r *replayRun) tryEnter(ctx context.Context, signal types.Signal, bar types.Candle, barClose time.Time, holding bool) (types.SignalOutcome, string) {
	if outcome, eligible := lifecycle.EntryEligible(signal, r.minConfidence); !eligible {
		return outcome, ""
	}

	if holding {
		return types.SignalOutcomePositionOpen, ""
	}

	if cooldown, active := r.ledger.CooldownFor(r.instrument, barClose); active {
		return types.SignalOutcomeCooldown, cooldown.Reason
	}

	marginPerLot, err := r.oracle.MarginPerLot(ctx, r.instrument, bar.Close)
	if err != nil {
		return types.SignalOutcomeSizingRejected, err.Error()
	}

	size, err := r.sizer.Size(r.ledger.Balance(), marginPerLot)
	if err != nil {
		return types.SignalOutcomeSizingRejected, err.Error()
	}

	side, _ := types.SideFromAction(signal.Action)

	opened, err := r.ledger.OpenTrade(types.Trade{
		Instrument: r.instrument,
		Side:       side,
		EntryPrice: bar.Close,
		EntryTime:  barClose,
		Lots:       size.Lots,
		LotSize:    r.lotSize,
		MarginUsed: size.MarginRequired,
		StopLoss:   signal.StopLoss,
		TakeProfit: signal.TakeProfit,
		LastPrice:  bar.Close,
	})
	if err != nil {
		return types.SignalOutcomeOrderFailed, err.Error()
	}

	if err := r.journal.RecordTrade(opened); err != nil {
		r.log.Warn("Failed to journal trade", zap.Error(err))
	}

	return types.SignalOutcomeExecuted, ""
}

// settle closes the trade, credits restitution, starts a cooldown on a
// loss and journals the settled form.
func (r *replayRun) settle(trade *types.Trade, price float64, reason types.ExitReason, at time.Time) {
	restitution := r.rules.Settle(trade, price, reason, at)

	if err := r.ledger.SettleTrade(*trade, restitution); err != nil {
		r.log.Warn("Failed to settle trade", zap.Error(err))

		return
	}

	if trade.RealizedPnL < 0 {
		losses := r.ledger.ConsecutiveLosses(trade.Instrument)
		if cooldown, ok := lifecycle.CooldownAfterLoss(trade.Instrument, losses, at); ok {
			r.ledger.StartCooldown(cooldown)
		}
	}

	if err := r.journal.RecordTrade(*trade); err != nil {
		r.log.Warn("Failed to journal trade", zap.Error(err))
	}
}

func (b *ReplayEngineV1) preRunCheck() error {
	if b.log == nil {
		return errors.New(errors.ErrCodeReplayStateNil, "engine is not initialized")
	}

	if b.resultsFolder == "" {
		return errors.New(errors.ErrCodeReplayNoResultsDir, "no results folder set")
	}

	if len(b.candles) == 0 && b.dataPath == "" {
		return errors.New(errors.ErrCodeReplayNoData, "no candles or data path set")
	}

	return nil
}

func (b *ReplayEngineV1) loadCandles() ([]types.Candle, string, error) {
	if len(b.candles) > 0 {
		return b.loadInMemory()
	}

	return b.loadFromFile()
}

func (b *ReplayEngineV1) loadInMemory() ([]types.Candle, string, error) {
	instrument := b.config.Instrument
	if instrument == "" {
		instrument = b.candles[0].Instrument
	}

	var out []types.Candle

	for _, candle := range b.candles {
		if candle.Instrument != "" && candle.Instrument != instrument {
			continue
		}

		if !b.inWindow(candle.Time) {
			continue
		}

		out = append(out, candle)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })

	return out, instrument, nil
}

func (b *ReplayEngineV1) loadFromFile() ([]types.Candle, string, error) {
	source, err := datasource.NewCandleSource(b.dataPath, b.log)
	if err != nil {
		return nil, "", err
	}
	defer source.Close()

	instrument := b.config.Instrument
	if instrument == "" {
		instruments, err := source.Instruments()
		if err != nil {
			return nil, "", err
		}

		if len(instruments) != 1 {
			return nil, "", errors.Newf(errors.ErrCodeReplayConfigError,
				"data file holds %d instruments, set instrument explicitly", len(instruments))
		}

		instrument = instruments[0]
	}

	candles, err := source.ReadCandles(instrument, b.config.StartTime, b.config.EndTime)
	if err != nil {
		return nil, "", err
	}

	return candles, instrument, nil
}

func (b *ReplayEngineV1) inWindow(t time.Time) bool {
	if start, err := b.config.StartTime.Take(); err == nil && t.Before(start) {
		return false
	}

	if end, err := b.config.EndTime.Take(); err == nil && t.After(end) {
		return false
	}

	return true
}

func (b *ReplayEngineV1) writeResults(run *replayRun, report types.PerformanceReport) error {
	reportPath := filepath.Join(b.resultsFolder, "report.yaml")
	if err := types.WritePerformanceReport(reportPath, report); err != nil {
		return errors.Wrap(errors.ErrCodeUnknown, "failed to write replay report", err)
	}

	for _, point := range run.ledger.EquityHistory() {
		if err := run.journal.RecordEquity(point); err != nil {
			run.log.Warn("Failed to journal equity point", zap.Error(err))
		}
	}

	return nil
}
