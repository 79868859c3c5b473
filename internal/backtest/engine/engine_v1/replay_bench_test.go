package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/meridian-lab/meridian-trading/internal/backtest/engine"
	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/mocks"
)

const generatedReplayConfig = `
instrument: TESTUSDT
interval: 15m
initial_balance: 10000
warmup_bars: 50
margin_rate: 0.1
lot_size: 0.01
min_confidence: 0.5
sizing:
  fixed_cap: 500
  balance_fraction: 0.2
`

// BenchmarkReplayRun pushes ten thousand generated bars through a full
// replay with a provider that never signals, so the number measures the
// bar loop and journal writes rather than trade settlement.
func BenchmarkReplayRun(b *testing.B) {
	bars := mocks.Generate10K("TESTUSDT")

	ctrl := gomock.NewController(b)
	provider := mocks.NewMockSignalProvider(ctrl)
	provider.EXPECT().Name().Return("bench").AnyTimes()
	provider.EXPECT().Evaluate(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(optional.None[types.Signal](), nil).AnyTimes()

	results := b.TempDir()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		eng := NewReplayEngineV1()
		if err := eng.Initialize(generatedReplayConfig); err != nil {
			b.Fatal(err)
		}
		if err := eng.SetSignalProvider(provider); err != nil {
			b.Fatal(err)
		}
		if err := eng.SetCandles(bars); err != nil {
			b.Fatal(err)
		}
		if err := eng.SetResultsFolder(results); err != nil {
			b.Fatal(err)
		}
		if _, err := eng.Run(context.Background(), optional.None[engine.OnProgressCallback]()); err != nil {
			b.Fatal(err)
		}
	}
}

// TestReplayGeneratedSeries runs a synthetic trending series end to end
// with one injected long and checks that the trade lands in the report,
// the balance accounting closes, and the results artifacts exist.
func TestReplayGeneratedSeries(t *testing.T) {
	gen := mocks.NewDataGenerator(7)
	cfg := mocks.DefaultConfig()
	cfg.Count = 600
	cfg.Trend = 0.001
	bars := gen.Generate(cfg)

	ctrl := gomock.NewController(t)
	provider := mocks.NewMockSignalProvider(ctrl)
	provider.EXPECT().Name().Return("generated").AnyTimes()

	calls := 0
	provider.EXPECT().Evaluate(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, current types.Candle, _ []types.Candle, _ types.Bias) (optional.Option[types.Signal], error) {
			calls++
			if calls != 100 {
				return optional.None[types.Signal](), nil
			}

			return optional.Some(types.Signal{
				Time:       current.Time,
				Instrument: current.Instrument,
				Action:     types.SignalActionLong,
				Price:      current.Close,
				Confidence: 0.9,
				StopLoss:   optional.Some(current.Close * 0.9),
				TakeProfit: optional.Some(current.Close * 1.1),
				Reason:     "generated breakout",
				Source:     types.SignalSource{Provider: "generated"},
			}), nil
		}).AnyTimes()

	eng := NewReplayEngineV1()
	require.NoError(t, eng.Initialize(generatedReplayConfig))
	require.NoError(t, eng.SetSignalProvider(provider))
	require.NoError(t, eng.SetCandles(bars))

	results := filepath.Join(t.TempDir(), "results")
	require.NoError(t, eng.SetResultsFolder(results))

	report, err := eng.Run(context.Background(), optional.None[engine.OnProgressCallback]())
	require.NoError(t, err)

	require.GreaterOrEqual(t, report.TotalTrades, 1)
	require.Equal(t, 10000.0, report.InitialBalance)
	require.InDelta(t, report.InitialBalance+report.TotalPnL, report.FinalBalance, 1e-6)

	_, err = os.Stat(filepath.Join(results, "report.yaml"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(results, "journal.duckdb"))
	require.NoError(t, err)
}
