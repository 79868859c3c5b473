package provider

import (
	"context"
	"iter"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"

	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

// klinesPageLimit is the page size for historical kline requests.
const klinesPageLimit = 1000

// KlineStreamer is the slice of the Binance websocket API the provider
// uses. The default implementation dials the exchange; tests inject a
// scripted one.
type KlineStreamer interface {
	WsKlineServe(symbol string, interval string, handler binance.WsKlineHandler, errHandler binance.ErrHandler) (doneC, stopC chan struct{}, err error)
}

type liveKlineStreamer struct{}

func (liveKlineStreamer) WsKlineServe(symbol string, interval string, handler binance.WsKlineHandler, errHandler binance.ErrHandler) (chan struct{}, chan struct{}, error) {
	return binance.WsKlineServe(symbol, interval, handler, errHandler)
}

// BinanceProvider reads public Binance market data. Candle endpoints
// need no credentials.
type BinanceProvider struct {
	client *binance.Client
	ws     KlineStreamer
}

var _ Provider = (*BinanceProvider)(nil)

func NewBinanceProvider() *BinanceProvider {
	return &BinanceProvider{
		client: binance.NewClient("", ""),
		ws:     liveKlineStreamer{},
	}
}

// NewBinanceProviderWithStreamer wires a custom websocket service, used
// by tests to feed scripted kline events.
func NewBinanceProviderWithStreamer(client *binance.Client, ws KlineStreamer) *BinanceProvider {
	return &BinanceProvider{client: client, ws: ws}
}

func (p *BinanceProvider) Name() string { return string(ProviderBinance) }

// Candles pages through the klines endpoint. Binance caps each
// response, so the cursor advances past the last kline's close time
// until the window is covered or a short page marks the final one.
func (p *BinanceProvider) Candles(ctx context.Context, instrument string, interval types.Interval, start, end time.Time) iter.Seq2[types.Candle, error] {
	return func(yield func(types.Candle, error) bool) {
		endMillis := end.UnixMilli()
		cursor := start.UnixMilli()

		for cursor < endMillis {
			klines, err := p.client.NewKlinesService().
				Symbol(instrument).
				Interval(string(interval)).
				StartTime(cursor).
				EndTime(endMillis).
				Limit(klinesPageLimit).
				Do(ctx)
			if err != nil {
				yield(types.Candle{}, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to fetch %s klines", instrument))

				return
			}

			if len(klines) == 0 {
				return
			}

			for _, kline := range klines {
				candle, err := parseCandle(instrument, kline.OpenTime, kline.Open, kline.High, kline.Low, kline.Close, kline.Volume)
				if err != nil {
					yield(types.Candle{}, err)

					return
				}

				if !yield(candle, nil) {
					return
				}
			}

			if len(klines) < klinesPageLimit {
				return
			}

			cursor = klines[len(klines)-1].CloseTime + 1
		}
	}
}

// Stream opens one kline subscription per instrument and fans them into
// a single iterator. Only finalized klines are yielded; the in-progress
// updates Binance pushes on every trade are dropped.
func (p *BinanceProvider) Stream(ctx context.Context, instruments []string, interval types.Interval) iter.Seq2[types.Candle, error] {
	return func(yield func(types.Candle, error) bool) {
		type item struct {
			candle types.Candle
			err    error
		}

		out := make(chan item, 64)
		done := make(chan struct{})
		defer close(done)

		var stops []chan struct{}

		defer func() {
			for _, stop := range stops {
				close(stop)
			}
		}()

		emit := func(it item) {
			select {
			case out <- it:
			case <-done:
			case <-ctx.Done():
			}
		}

		for _, instrument := range instruments {
			handler := func(event *binance.WsKlineEvent) {
				if event == nil || !event.Kline.IsFinal {
					return
				}

				candle, err := parseCandle(event.Symbol, event.Kline.StartTime,
					event.Kline.Open, event.Kline.High, event.Kline.Low, event.Kline.Close, event.Kline.Volume)
				emit(item{candle, err})
			}
			errHandler := func(err error) {
				emit(item{err: errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "kline stream error", err)})
			}

			_, stopC, err := p.ws.WsKlineServe(instrument, string(interval), handler, errHandler)
			if err != nil {
				yield(types.Candle{}, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to open %s kline stream", instrument))

				return
			}

			stops = append(stops, stopC)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case it := <-out:
				if !yield(it.candle, it.err) {
					return
				}
			}
		}
	}
}

// parseCandle converts the string-encoded OHLCV fields Binance returns
// into a candle stamped with the bar's open time.
func parseCandle(instrument string, openTimeMillis int64, open, high, low, closePrice, volume string) (types.Candle, error) {
	var values [5]float64

	for i, raw := range []string{open, high, low, closePrice, volume} {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return types.Candle{}, errors.Wrapf(errors.ErrCodeMarketDataParseFailed, err, "bad kline field %q", raw)
		}

		values[i] = parsed
	}

	return types.Candle{
		Instrument: instrument,
		Time:       time.UnixMilli(openTimeMillis).UTC(),
		Open:       values[0],
		High:       values[1],
		Low:        values[2],
		Close:      values[3],
		Volume:     values[4],
	}, nil
}
