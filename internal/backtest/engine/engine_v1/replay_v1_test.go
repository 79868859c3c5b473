package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"

	"github.com/meridian-lab/meridian-trading/internal/backtest/engine"
	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

const replayTestConfig = `
instrument: GOLD
interval: 15m
warmup_bars: 2
lot_size: 10
min_confidence: 0.35
sizing:
  fixed_cap: 10000
  balance_fraction: 0.2
`

// scriptedProvider returns a preset signal when the history reaches a
// scripted length and records every call for assertions.
type scriptedProvider struct {
	script   map[int]types.Signal
	calls    []int
	biases   []types.Bias
	currents []types.Candle
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) Evaluate(_ context.Context, current types.Candle, history []types.Candle, bias types.Bias) (optional.Option[types.Signal], error) {
	s.calls = append(s.calls, len(history))
	s.biases = append(s.biases, bias)
	s.currents = append(s.currents, current)

	if signal, ok := s.script[len(history)]; ok {
		return optional.Some(signal), nil
	}

	return optional.None[types.Signal](), nil
}

type ReplayEngineTestSuite struct {
	suite.Suite
	start   time.Time
	results string
}

func TestReplayEngineTestSuite(t *testing.T) {
	suite.Run(t, new(ReplayEngineTestSuite))
}

func (suite *ReplayEngineTestSuite) SetupTest() {
	suite.start = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	suite.results = filepath.Join(suite.T().TempDir(), "results")
}

func (suite *ReplayEngineTestSuite) newEngine(script map[int]types.Signal, bars []types.Candle) (engine.Engine, *scriptedProvider) {
	eng := NewReplayEngineV1()
	suite.Require().NoError(eng.Initialize(replayTestConfig))

	provider := &scriptedProvider{script: script}
	suite.Require().NoError(eng.SetSignalProvider(provider))
	suite.Require().NoError(eng.SetCandles(bars))
	suite.Require().NoError(eng.SetResultsFolder(suite.results))

	return eng, provider
}

func (suite *ReplayEngineTestSuite) run(eng engine.Engine) types.PerformanceReport {
	report, err := eng.Run(context.Background(), optional.None[engine.OnProgressCallback]())
	suite.Require().NoError(err)

	return report
}

// flatBars builds n bars at the given close with a 0.5 range, far from
// the protective levels the tests use.
func (suite *ReplayEngineTestSuite) flatBars(n int, close float64) []types.Candle {
	bars := make([]types.Candle, n)
	for i := range bars {
		t := suite.start.Add(time.Duration(i) * 15 * time.Minute)
		bars[i] = types.Candle{
			Instrument: "GOLD",
			Time:       t,
			Open:       close,
			High:       close + 0.5,
			Low:        close - 0.5,
			Close:      close,
			Volume:     1000,
		}
	}

	return bars
}

func (suite *ReplayEngineTestSuite) longSignal(confidence, stopLoss, takeProfit float64) types.Signal {
	return types.Signal{
		Time:       suite.start,
		Instrument: "GOLD",
		Action:     types.SignalActionLong,
		Price:      100,
		Confidence: confidence,
		StopLoss:   optional.Some(stopLoss),
		TakeProfit: optional.Some(takeProfit),
		Source:     types.SignalSource{Provider: "scripted"},
	}
}

func (suite *ReplayEngineTestSuite) TestTakeProfitCycle() {
	bars := suite.flatBars(5, 100)
	// Bar 3 trades through the target.
	bars[3].High = 111
	bars[3].Close = 109

	eng, provider := suite.newEngine(map[int]types.Signal{
		3: suite.longSignal(0.8, 95, 110),
	}, bars)

	report := suite.run(eng)

	// Entry at close 100: margin per lot 100*10*0.12 = 120, cap 10000,
	// 83 lots. Target fill 110: gross 8300, commission 87.15.
	suite.Equal(1, report.TotalTrades)
	suite.Equal(1, report.WinningTrades)
	suite.Equal(0, report.LosingTrades)
	suite.InDelta(8212.85, report.TotalPnL, 0.01)
	suite.InDelta(100000, report.InitialBalance, 1e-9)
	suite.InDelta(108212.85, report.FinalBalance, 0.01)
	suite.Equal("GOLD", report.Instrument)

	// The exit consumed bar 3: evaluations happened on bars 2 and 4 only.
	suite.Equal([]int{3, 5}, provider.calls)
	suite.Equal(2, report.SignalStats.Total)
	suite.Equal(1, report.SignalStats.Long)
	suite.Equal(1, report.SignalStats.Hold)
	suite.Equal(1, report.SignalStats.Executed)
}

func (suite *ReplayEngineTestSuite) TestStopLossStartsCooldown() {
	bars := suite.flatBars(8, 100)
	// Bar 3 trades through the stop.
	bars[3].Low = 94
	bars[3].Close = 96

	eng, provider := suite.newEngine(map[int]types.Signal{
		3: suite.longSignal(0.8, 95, 120),
		5: suite.longSignal(0.8, 95, 120),
		6: suite.longSignal(0.8, 95, 120),
	}, bars)

	report := suite.run(eng)

	// First trade stops out at 95 for -4230.925 and starts a 30 minute
	// cooldown. The signal one bar later is suppressed; the next one
	// lands exactly at the cooldown boundary and executes. The second
	// trade rides flat prices into the end of the series and settles
	// at its entry price minus round-trip commission.
	suite.Equal(2, report.TotalTrades)
	suite.Equal(0, report.WinningTrades)
	suite.Equal(2, report.LosingTrades)
	suite.InDelta(95686.08, report.FinalBalance, 0.01)

	suite.Equal(5, report.SignalStats.Total)
	suite.Equal(3, report.SignalStats.Long)
	suite.Equal(2, report.SignalStats.Hold)
	suite.Equal(2, report.SignalStats.Executed)
	suite.Equal(1, report.SignalStats.Rejected)

	// Bar 3 was consumed by the stop exit.
	suite.NotContains(provider.calls, 4)
}

func (suite *ReplayEngineTestSuite) TestWarmupAndNoLookahead() {
	bars := suite.flatBars(6, 100)
	eng, provider := suite.newEngine(nil, bars)

	report := suite.run(eng)

	// Two warm-up bars are skipped; each evaluation sees history up to
	// its own bar and nothing further.
	suite.Equal([]int{3, 4, 5, 6}, provider.calls)
	suite.Require().Len(provider.currents, 4)
	suite.Equal(bars[2].Time, provider.currents[0].Time)
	suite.Equal(bars[5].Time, provider.currents[3].Time)

	for _, bias := range provider.biases {
		suite.Equal(types.BiasNone, bias)
	}

	suite.Equal(4, report.SignalStats.Total)
	suite.Equal(4, report.SignalStats.Hold)
	suite.Equal(0, report.TotalTrades)
}

func (suite *ReplayEngineTestSuite) TestBiasReflectsOpenPosition() {
	bars := suite.flatBars(6, 100)
	eng, provider := suite.newEngine(map[int]types.Signal{
		3: suite.longSignal(0.8, 95, 110),
	}, bars)

	report := suite.run(eng)

	suite.Equal([]types.Bias{types.BiasNone, types.BiasLong, types.BiasLong, types.BiasLong}, provider.biases)

	// The position survives to the end and is force closed at the last
	// close, losing only the round-trip commission.
	suite.Equal(1, report.TotalTrades)
	suite.Equal(1, report.LosingTrades)
	suite.InDelta(-83.0, report.TotalPnL, 0.01)
}

func (suite *ReplayEngineTestSuite) TestEntryGateRejections() {
	lowConfidence := suite.longSignal(0.2, 95, 110)

	noTarget := suite.longSignal(0.8, 95, 110)
	noTarget.TakeProfit = optional.None[float64]()

	eng, _ := suite.newEngine(map[int]types.Signal{
		3: lowConfidence,
		4: noTarget,
	}, suite.flatBars(5, 100))

	report := suite.run(eng)

	suite.Equal(0, report.TotalTrades)
	suite.Equal(2, report.SignalStats.Rejected)
	suite.Equal(0, report.SignalStats.Executed)
	suite.InDelta(100000, report.FinalBalance, 1e-9)
}

func (suite *ReplayEngineTestSuite) TestRunPreChecks() {
	uninitialized := NewReplayEngineV1()
	_, err := uninitialized.Run(context.Background(), optional.None[engine.OnProgressCallback]())
	suite.True(errors.HasCode(err, errors.ErrCodeReplayStateNil))

	noResults := NewReplayEngineV1()
	suite.Require().NoError(noResults.Initialize(replayTestConfig))
	_, err = noResults.Run(context.Background(), optional.None[engine.OnProgressCallback]())
	suite.True(errors.HasCode(err, errors.ErrCodeReplayNoResultsDir))

	noData := NewReplayEngineV1()
	suite.Require().NoError(noData.Initialize(replayTestConfig))
	suite.Require().NoError(noData.SetResultsFolder(suite.results))
	_, err = noData.Run(context.Background(), optional.None[engine.OnProgressCallback]())
	suite.True(errors.HasCode(err, errors.ErrCodeReplayNoData))
}

func (suite *ReplayEngineTestSuite) TestEmptyWindowRejected() {
	eng := NewReplayEngineV1()
	suite.Require().NoError(eng.Initialize(replayTestConfig + "start_time: 2030-01-01T00:00:00Z\n"))
	suite.Require().NoError(eng.SetCandles(suite.flatBars(5, 100)))
	suite.Require().NoError(eng.SetResultsFolder(suite.results))

	_, err := eng.Run(context.Background(), optional.None[engine.OnProgressCallback]())
	suite.True(errors.HasCode(err, errors.ErrCodeReplayNoData))
}

func (suite *ReplayEngineTestSuite) TestInstrumentDerivedFromCandles() {
	eng := NewReplayEngineV1()
	suite.Require().NoError(eng.Initialize(`
interval: 15m
warmup_bars: 2
lot_size: 10
`))
	suite.Require().NoError(eng.SetSignalProvider(&scriptedProvider{}))
	suite.Require().NoError(eng.SetCandles(suite.flatBars(4, 100)))
	suite.Require().NoError(eng.SetResultsFolder(suite.results))

	report := suite.run(eng)
	suite.Equal("GOLD", report.Instrument)
}

func (suite *ReplayEngineTestSuite) TestProgressCallback() {
	eng, _ := suite.newEngine(nil, suite.flatBars(4, 100))

	type step struct{ current, total int }

	var steps []step

	callback := engine.OnProgressCallback(func(current, total int) {
		steps = append(steps, step{current, total})
	})

	_, err := eng.Run(context.Background(), optional.Some(callback))
	suite.Require().NoError(err)

	suite.Len(steps, 4)
	suite.Equal(step{4, 4}, steps[3])
}

func (suite *ReplayEngineTestSuite) TestWritesReportAndJournal() {
	eng, _ := suite.newEngine(map[int]types.Signal{
		3: suite.longSignal(0.8, 95, 110),
	}, suite.flatBars(5, 100))

	report := suite.run(eng)

	reread, err := types.ReadPerformanceReport(filepath.Join(suite.results, "report.yaml"))
	suite.Require().NoError(err)
	suite.Equal(report.TotalTrades, reread.TotalTrades)
	suite.InDelta(report.FinalBalance, reread.FinalBalance, 0.01)

	_, err = os.Stat(filepath.Join(suite.results, "journal.duckdb"))
	suite.NoError(err)
}

func (suite *ReplayEngineTestSuite) TestCancelledContextStopsRun() {
	eng, _ := suite.newEngine(nil, suite.flatBars(5, 100))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.Run(ctx, optional.None[engine.OnProgressCallback]())
	suite.ErrorIs(err, context.Canceled)
}
