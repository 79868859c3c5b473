package engine_v1

import (
	"context"
	"time"

	"github.com/moznion/go-optional"
	"go.uber.org/mock/gomock"

	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/mocks"
	"github.com/meridian-lab/meridian-trading/pkg/marketdata"
)

// The generated mocks cover the same seams the scripted fakes above do.
// Running a pass through them keeps the mock surface honest against the
// engine's real call shapes.

func (suite *LiveTradingEngineTestSuite) TestSignalPassWithMockedBroker() {
	eng := suite.newEngine(suite.config("BTCUSDT"))

	ctrl := gomock.NewController(suite.T())

	// Eight 15m bars ending at 11:45, so the last one closes at 12:00
	// and is the newest closed bar at the suite clock.
	series := mocks.NewDataGenerator(42).Generate(mocks.GeneratorConfig{
		Instrument:   "BTCUSDT",
		StartTime:    time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC),
		Interval:     types.Interval15m,
		Count:        8,
		InitialPrice: 100_000,
		Volatility:   0.002,
		VolumeBase:   5_000,
	})

	client := mocks.NewMockClient(ctrl)
	client.EXPECT().Name().Return("mock").AnyTimes()
	client.EXPECT().
		GetCandles(gomock.Any(), "BTCUSDT", gomock.Any(), gomock.Any(), types.Interval15m).
		Return(series, nil)
	suite.Require().NoError(eng.SetBroker(client))

	provider := mocks.NewMockSignalProvider(ctrl)
	provider.EXPECT().Name().Return("mock").AnyTimes()
	provider.EXPECT().
		Evaluate(gomock.Any(), series[len(series)-1], gomock.Any(), types.BiasNone).
		Return(optional.None[types.Signal](), nil)
	eng.providers["BTCUSDT"] = provider

	suite.Require().NoError(eng.signalPass(context.Background()))

	record := suite.lastRecord(eng)
	suite.Equal(types.SignalOutcomeHold, record.Outcome)
	suite.Equal(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC), record.Time)
}

func (suite *LiveTradingEngineTestSuite) TestCollectPassWithMockedCollector() {
	eng := suite.newEngine(suite.config("BTCUSDT"))

	ctrl := gomock.NewController(suite.T())

	collector := mocks.NewMockCandleCollector(ctrl)
	collector.EXPECT().
		Refresh(gomock.Any(), "BTCUSDT", types.Interval15m, 30*24*time.Hour, suite.start).
		Return(marketdata.Result{Path: "data/market/BTCUSDT_15m.duckdb", Written: 96}, nil)
	suite.Require().NoError(eng.SetCollector(collector))

	suite.Require().NoError(eng.collectPass(context.Background()))

	suite.Equal(suite.start, eng.refreshed["BTCUSDT"])
}
