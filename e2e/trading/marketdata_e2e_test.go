// Integration tests running the market data client against the mock
// venue: historical downloads over the spot kline endpoint, refresh
// top-ups and the websocket follow loop, each verified by reading the
// DuckDB store back.
package trading_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"

	"github.com/meridian-lab/meridian-trading/e2e/trading/mockserver"
	"github.com/meridian-lab/meridian-trading/e2e/trading/testhelper"
	"github.com/meridian-lab/meridian-trading/internal/backtest/engine/engine_v1/datasource"
	"github.com/meridian-lab/meridian-trading/internal/logger"
	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/pkg/marketdata"
	"github.com/meridian-lab/meridian-trading/pkg/marketdata/provider"
)

type MarketDataE2ETestSuite struct {
	suite.Suite
	server   *mockserver.MockFuturesServer
	client   *marketdata.Client
	streamer *testhelper.WsStreamer
	dir      string
	ctx      context.Context
}

func TestMarketDataE2ESuite(t *testing.T) {
	suite.Run(t, new(MarketDataE2ETestSuite))
}

func (suite *MarketDataE2ETestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.dir = suite.T().TempDir()

	suite.server = mockserver.NewMockFuturesServer(mockserver.ServerConfig{
		Series: []mockserver.SeriesConfig{
			{
				Symbol:       "BTCUSDT",
				Start:        time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
				Interval:     types.Interval15m,
				Count:        120,
				InitialPrice: 50_000,
			},
		},
		Seed:           21,
		StreamInterval: 10 * time.Millisecond,
		FinalizeEvery:  2,
	})
	suite.Require().NoError(suite.server.Start(":0"))

	spot := binance.NewClient("", "")
	spot.BaseURL = suite.server.BaseURL()

	suite.streamer = testhelper.NewWsStreamer(suite.server.WebSocketURL())

	client, err := marketdata.NewClientWithProvider(marketdata.ClientConfig{
		Provider:  provider.ProviderBinance,
		Directory: suite.dir,
	}, provider.NewBinanceProviderWithStreamer(spot, suite.streamer), nil, logger.NewNopLogger())
	suite.Require().NoError(err)

	suite.client = client
}

func (suite *MarketDataE2ETestSuite) TearDownTest() {
	if suite.server != nil {
		suite.server.Stop()
	}
}

// readStore opens the instrument store and returns its full contents.
func (suite *MarketDataE2ETestSuite) readStore(instrument string) []types.Candle {
	source, err := datasource.NewCandleSource(marketdata.StorePath(suite.dir, instrument), logger.NewNopLogger())
	suite.Require().NoError(err)

	defer source.Close()

	candles, err := source.ReadCandles(instrument, optional.None[time.Time](), optional.None[time.Time]())
	suite.Require().NoError(err)

	return candles
}

func (suite *MarketDataE2ETestSuite) TestDownloadAndReadBack() {
	series := suite.server.Series("BTCUSDT")

	result, err := suite.client.Download(suite.ctx, marketdata.DownloadParams{
		Instrument: "BTCUSDT",
		Interval:   types.Interval15m,
		Start:      series[0].Time,
		End:        series[len(series)-1].Time.Add(15 * time.Minute),
	})
	suite.Require().NoError(err)

	suite.Equal(120, result.Written)
	suite.Equal(marketdata.StorePath(suite.dir, "BTCUSDT"), result.Path)

	candles := suite.readStore("BTCUSDT")
	suite.Require().Len(candles, 120)

	suite.Equal("BTCUSDT", candles[0].Instrument)
	suite.Equal(series[0].Time, candles[0].Time)
	suite.Equal(series[119].Time, candles[119].Time)
	suite.InDelta(series[119].Close, candles[119].Close, 1e-9)

	for i := 1; i < len(candles); i++ {
		suite.Equal(candles[i-1].Time.Add(15*time.Minute), candles[i].Time)
	}
}

func (suite *MarketDataE2ETestSuite) TestRefreshTopsUp() {
	series := suite.server.Series("BTCUSDT")

	initial, err := suite.client.Download(suite.ctx, marketdata.DownloadParams{
		Instrument: "BTCUSDT",
		Interval:   types.Interval15m,
		Start:      series[0].Time,
		End:        series[99].Time.Add(15 * time.Minute),
	})
	suite.Require().NoError(err)
	suite.Require().Equal(100, initial.Written)

	now := series[119].Time.Add(15 * time.Minute)

	refresh, err := suite.client.Refresh(suite.ctx, "BTCUSDT", types.Interval15m, 30*24*time.Hour, now)
	suite.Require().NoError(err)

	// Fetching restarts at the newest stored bar, so bar 99 is written
	// again on top of itself.
	suite.Equal(21, refresh.Written)

	candles := suite.readStore("BTCUSDT")
	suite.Require().Len(candles, 120)
	suite.Equal(series[119].Time, candles[119].Time)
	suite.InDelta(series[119].Close, candles[119].Close, 1e-9)
}

func (suite *MarketDataE2ETestSuite) TestFollowStoresStreamedFinals() {
	series := suite.server.Series("BTCUSDT")

	ctx, cancel := context.WithCancel(suite.ctx)
	defer cancel()

	var finals atomic.Int32

	suite.streamer.OnEvent = func(event *binance.WsKlineEvent) {
		if !event.Kline.IsFinal {
			return
		}

		// Stop on the fourth close; the first three have long since
		// been committed.
		if finals.Add(1) == 4 {
			cancel()
		}
	}

	err := suite.client.Follow(ctx, []string{"BTCUSDT"}, types.Interval15m)
	suite.Require().NoError(err)

	candles := suite.readStore("BTCUSDT")
	suite.Require().GreaterOrEqual(len(candles), 2)

	// The stream continues the canonical series.
	suite.Equal(series[119].Time.Add(15*time.Minute), candles[0].Time)
	suite.Equal("BTCUSDT", candles[0].Instrument)

	for i := 1; i < len(candles); i++ {
		suite.Equal(candles[i-1].Time.Add(15*time.Minute), candles[i].Time)
	}
}
