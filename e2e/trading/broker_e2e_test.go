// Integration tests running the Binance futures adapter against a mock
// venue over real HTTP. Unit tests stub the API services; these cover
// the adshao client wiring underneath them: request signing, kline
// array decoding and the error mapping from live responses.
package trading_test

import (
	"context"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"

	"github.com/meridian-lab/meridian-trading/e2e/trading/mockserver"
	"github.com/meridian-lab/meridian-trading/internal/broker"
	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

type BrokerE2ETestSuite struct {
	suite.Suite
	server *mockserver.MockFuturesServer
	client *broker.BinanceFutures
	ctx    context.Context
}

func TestBrokerE2ESuite(t *testing.T) {
	suite.Run(t, new(BrokerE2ETestSuite))
}

func (suite *BrokerE2ETestSuite) SetupTest() {
	suite.ctx = context.Background()

	suite.server = mockserver.NewMockFuturesServer(mockserver.ServerConfig{
		InitialBalances: map[string]float64{"USDT": 25_000},
		Series: []mockserver.SeriesConfig{
			{
				Symbol:       "BTCUSDT",
				Start:        time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
				Interval:     types.Interval15m,
				Count:        1203,
				InitialPrice: 50_000,
			},
		},
		Seed: 9,
	})
	suite.Require().NoError(suite.server.Start(":0"))

	client, err := broker.NewBinanceFutures(broker.BinanceFuturesConfig{
		ApiKey:            "e2e-key",
		SecretKey:         "e2e-secret",
		BaseURL:           suite.server.BaseURL(),
		LotSizes:          map[string]float64{"BTCUSDT": 0.01},
		RequestsPerSecond: 100,
		RequestBurst:      100,
	}, false)
	suite.Require().NoError(err)

	suite.client = client
}

func (suite *BrokerE2ETestSuite) TearDownTest() {
	if suite.server != nil {
		suite.server.Stop()
	}
}

func (suite *BrokerE2ETestSuite) TestCandlePagingCoversRange() {
	series := suite.server.Series("BTCUSDT")
	suite.Require().Len(series, 1203)

	from := series[0].Time
	to := series[len(series)-1].Time.Add(15 * time.Minute)

	// 1203 bars forces three kline pages.
	candles, err := suite.client.GetCandles(suite.ctx, "BTCUSDT", from, to, types.Interval15m)
	suite.Require().NoError(err)
	suite.Require().Len(candles, 1203)

	suite.Equal("BTCUSDT", candles[0].Instrument)
	suite.Equal(series[0].Time, candles[0].Time)
	suite.Equal(series[1202].Time, candles[1202].Time)
	suite.InDelta(series[1202].Close, candles[1202].Close, 1e-9)

	for i := 1; i < len(candles); i++ {
		suite.Equal(candles[i-1].Time.Add(15*time.Minute), candles[i].Time)
	}
}

func (suite *BrokerE2ETestSuite) TestCandleWindow() {
	series := suite.server.Series("BTCUSDT")

	from := series[100].Time
	to := series[109].Time.Add(time.Minute)

	candles, err := suite.client.GetCandles(suite.ctx, "BTCUSDT", from, to, types.Interval15m)
	suite.Require().NoError(err)
	suite.Require().Len(candles, 10)

	suite.Equal(series[100].Time, candles[0].Time)
	suite.Equal(series[109].Time, candles[9].Time)
	suite.InDelta(series[100].Open, candles[0].Open, 1e-9)
	suite.InDelta(series[109].Close, candles[9].Close, 1e-9)
}

func (suite *BrokerE2ETestSuite) TestBalance() {
	balance, err := suite.client.GetBalance(suite.ctx)
	suite.Require().NoError(err)

	suite.Equal("USDT", balance.Asset)
	suite.InDelta(25_000, balance.Total, 1e-9)
	suite.InDelta(25_000, balance.Available, 1e-9)
}

func (suite *BrokerE2ETestSuite) TestOrderLifecycle() {
	suite.server.SetMarkPrice("BTCUSDT", 50_000)

	result, err := suite.client.PlaceMarketOrder(suite.ctx, broker.OrderRequest{
		Instrument: "BTCUSDT",
		Side:       types.SideLong,
		Lots:       2,
	})
	suite.Require().NoError(err)
	suite.True(result.Filled)
	suite.Equal("FILLED", result.Status)
	suite.Equal(2, result.FilledLots)
	suite.InDelta(50_000, result.FillPrice, 1e-9)
	suite.NotEmpty(result.OrderID)

	positions, err := suite.client.GetOpenPositions(suite.ctx, optional.None[string]())
	suite.Require().NoError(err)
	suite.Require().Len(positions, 1)

	suite.Equal("BTCUSDT", positions[0].Instrument)
	suite.Equal(types.SideLong, positions[0].Side)
	suite.Equal(2, positions[0].Lots)
	suite.InDelta(50_000, positions[0].EntryPrice, 1e-9)
	suite.InDelta(0, positions[0].UnrealizedPnL, 1e-9)

	filtered, err := suite.client.GetOpenPositions(suite.ctx, optional.Some("ETHUSDT"))
	suite.Require().NoError(err)
	suite.Empty(filtered)

	suite.server.SetMarkPrice("BTCUSDT", 51_000)

	positions, err = suite.client.GetOpenPositions(suite.ctx, optional.Some("BTCUSDT"))
	suite.Require().NoError(err)
	suite.Require().Len(positions, 1)
	suite.InDelta(51_000, positions[0].MarkPrice, 1e-9)
	suite.InDelta(20, positions[0].UnrealizedPnL, 1e-9)

	closing, err := suite.client.PlaceMarketOrder(suite.ctx, broker.OrderRequest{
		Instrument: "BTCUSDT",
		Side:       types.SideShort,
		Lots:       2,
		ReduceOnly: true,
	})
	suite.Require().NoError(err)
	suite.True(closing.Filled)
	suite.Equal(2, closing.FilledLots)
	suite.InDelta(51_000, closing.FillPrice, 1e-9)

	positions, err = suite.client.GetOpenPositions(suite.ctx, optional.None[string]())
	suite.Require().NoError(err)
	suite.Empty(positions)
}

func (suite *BrokerE2ETestSuite) TestInsufficientMarginClassified() {
	suite.server.SetMarkPrice("BTCUSDT", 50_000)
	suite.server.RejectNextOrder(-2019, "Margin is insufficient.")

	_, err := suite.client.PlaceMarketOrder(suite.ctx, broker.OrderRequest{
		Instrument: "BTCUSDT",
		Side:       types.SideLong,
		Lots:       1,
	})
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInsufficientMargin))

	// The rejection is one-shot; the adapter recovers on the retry.
	result, err := suite.client.PlaceMarketOrder(suite.ctx, broker.OrderRequest{
		Instrument: "BTCUSDT",
		Side:       types.SideLong,
		Lots:       1,
	})
	suite.Require().NoError(err)
	suite.True(result.Filled)
}
