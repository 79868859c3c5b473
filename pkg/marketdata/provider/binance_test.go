package provider

import (
	"context"
	"testing"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/stretchr/testify/suite"

	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

// scriptedKlineStreamer emits preset kline events per symbol.
type scriptedKlineStreamer struct {
	events     map[string][]*binance.WsKlineEvent
	streamErrs []error
	startError error
}

func (s *scriptedKlineStreamer) WsKlineServe(symbol string, _ string, handler binance.WsKlineHandler, errHandler binance.ErrHandler) (chan struct{}, chan struct{}, error) {
	if s.startError != nil {
		return nil, nil, s.startError
	}

	doneC := make(chan struct{})
	stopC := make(chan struct{})

	go func() {
		defer close(doneC)

		for _, event := range s.events[symbol] {
			select {
			case <-stopC:
				return
			default:
				handler(event)
			}
		}

		for _, err := range s.streamErrs {
			errHandler(err)
		}

		<-stopC
	}()

	return doneC, stopC, nil
}

func finalKline(symbol string, startMillis int64, closePrice string) *binance.WsKlineEvent {
	return &binance.WsKlineEvent{
		Symbol: symbol,
		Kline: binance.WsKline{
			StartTime: startMillis,
			Open:      "42000.5",
			High:      "42500",
			Low:       "41800",
			Close:     closePrice,
			Volume:    "1000.5",
			IsFinal:   true,
		},
	}
}

type BinanceProviderTestSuite struct {
	suite.Suite
}

func TestBinanceProviderTestSuite(t *testing.T) {
	suite.Run(t, new(BinanceProviderTestSuite))
}

func (suite *BinanceProviderTestSuite) collect(p *BinanceProvider, instruments []string, want int) ([]types.Candle, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var candles []types.Candle

	for candle, err := range p.Stream(ctx, instruments, types.Interval1m) {
		if err != nil {
			return candles, err
		}

		candles = append(candles, candle)
		if len(candles) == want {
			break
		}
	}

	return candles, nil
}

func (suite *BinanceProviderTestSuite) TestStreamYieldsFinalKlinesOnly() {
	partial := finalKline("BTCUSDT", 1704067260000, "42400")
	partial.Kline.IsFinal = false

	streamer := &scriptedKlineStreamer{events: map[string][]*binance.WsKlineEvent{
		"BTCUSDT": {
			finalKline("BTCUSDT", 1704067200000, "42300"),
			partial,
			finalKline("BTCUSDT", 1704067320000, "42550"),
		},
	}}

	provider := NewBinanceProviderWithStreamer(nil, streamer)

	candles, err := suite.collect(provider, []string{"BTCUSDT"}, 2)
	suite.Require().NoError(err)
	suite.Require().Len(candles, 2)

	suite.Equal("BTCUSDT", candles[0].Instrument)
	suite.Equal(time.UnixMilli(1704067200000).UTC(), candles[0].Time)
	suite.InDelta(42300, candles[0].Close, 1e-9)
	suite.InDelta(42550, candles[1].Close, 1e-9)
}

func (suite *BinanceProviderTestSuite) TestStreamFansInMultipleInstruments() {
	streamer := &scriptedKlineStreamer{events: map[string][]*binance.WsKlineEvent{
		"BTCUSDT": {finalKline("BTCUSDT", 1704067200000, "42300")},
		"ETHUSDT": {finalKline("ETHUSDT", 1704067200000, "2250")},
	}}

	provider := NewBinanceProviderWithStreamer(nil, streamer)

	candles, err := suite.collect(provider, []string{"BTCUSDT", "ETHUSDT"}, 2)
	suite.Require().NoError(err)
	suite.Require().Len(candles, 2)

	seen := map[string]bool{}
	for _, candle := range candles {
		seen[candle.Instrument] = true
	}

	suite.True(seen["BTCUSDT"])
	suite.True(seen["ETHUSDT"])
}

func (suite *BinanceProviderTestSuite) TestStreamYieldsParseError() {
	bad := finalKline("BTCUSDT", 1704067200000, "not-a-number")

	streamer := &scriptedKlineStreamer{events: map[string][]*binance.WsKlineEvent{
		"BTCUSDT": {bad},
	}}

	provider := NewBinanceProviderWithStreamer(nil, streamer)

	_, err := suite.collect(provider, []string{"BTCUSDT"}, 1)
	suite.True(errors.HasCode(err, errors.ErrCodeMarketDataParseFailed))
}

func (suite *BinanceProviderTestSuite) TestStreamStartError() {
	streamer := &scriptedKlineStreamer{startError: errors.New(errors.ErrCodeUnknown, "dial refused")}
	provider := NewBinanceProviderWithStreamer(nil, streamer)

	_, err := suite.collect(provider, []string{"BTCUSDT"}, 1)
	suite.True(errors.HasCode(err, errors.ErrCodeMarketDataFetchFailed))
}

func (suite *BinanceProviderTestSuite) TestStreamEndsOnContextCancel() {
	streamer := &scriptedKlineStreamer{events: map[string][]*binance.WsKlineEvent{}}
	provider := NewBinanceProviderWithStreamer(nil, streamer)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	count := 0
	for _, err := range provider.Stream(ctx, []string{"BTCUSDT"}, types.Interval1m) {
		suite.Require().NoError(err)

		count++
	}

	suite.Zero(count)
}

func (suite *BinanceProviderTestSuite) TestParseCandle() {
	candle, err := parseCandle("BTCUSDT", 1704067200000, "42000.5", "42500", "41800", "42300", "1000.5")
	suite.Require().NoError(err)

	suite.Equal("BTCUSDT", candle.Instrument)
	suite.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), candle.Time)
	suite.InDelta(42000.5, candle.Open, 1e-9)
	suite.InDelta(42500, candle.High, 1e-9)
	suite.InDelta(41800, candle.Low, 1e-9)
	suite.InDelta(42300, candle.Close, 1e-9)
	suite.InDelta(1000.5, candle.Volume, 1e-9)
}

func (suite *BinanceProviderTestSuite) TestParseCandleRejectsGarbage() {
	_, err := parseCandle("BTCUSDT", 1704067200000, "42000.5", "x", "41800", "42300", "1000.5")
	suite.True(errors.HasCode(err, errors.ErrCodeMarketDataParseFailed))
}
