package provider

import (
	"context"
	"iter"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"
	polygonws "github.com/polygon-io/client-go/websocket"
	wsmodels "github.com/polygon-io/client-go/websocket/models"

	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

const polygonPageLimit = 50000

// AggStreamer is the slice of the Polygon websocket client the provider
// uses, satisfied by polygonws.Client and mocked in tests.
type AggStreamer interface {
	Connect() error
	Subscribe(topic polygonws.Topic, tickers ...string) error
	Unsubscribe(topic polygonws.Topic, tickers ...string) error
	Output() <-chan any
	Error() <-chan error
	Close()
}

// PolygonProvider reads Polygon.io aggregates. Every endpoint requires
// an API key.
type PolygonProvider struct {
	client *polygon.Client
	apiKey string
	ws     AggStreamer
}

var _ Provider = (*PolygonProvider)(nil)

func NewPolygonProvider(apiKey string) (*PolygonProvider, error) {
	if apiKey == "" {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "polygon requires an API key")
	}

	return &PolygonProvider{client: polygon.New(apiKey), apiKey: apiKey}, nil
}

// NewPolygonProviderWithStreamer wires a custom websocket service, used
// by tests to feed scripted aggregate events.
func NewPolygonProviderWithStreamer(apiKey string, ws AggStreamer) *PolygonProvider {
	return &PolygonProvider{client: polygon.New(apiKey), apiKey: apiKey, ws: ws}
}

func (p *PolygonProvider) Name() string { return string(ProviderPolygon) }

// polygonSpan maps an interval onto Polygon's multiplier and timespan
// pair.
func polygonSpan(interval types.Interval) (int, models.Timespan, error) {
	switch interval {
	case types.Interval1m:
		return 1, models.Minute, nil
	case types.Interval5m:
		return 5, models.Minute, nil
	case types.Interval15m:
		return 15, models.Minute, nil
	case types.Interval30m:
		return 30, models.Minute, nil
	case types.Interval1h:
		return 1, models.Hour, nil
	case types.Interval4h:
		return 4, models.Hour, nil
	case types.Interval1d:
		return 1, models.Day, nil
	default:
		return 0, models.Minute, errors.Newf(errors.ErrCodeInvalidTimespan, "no polygon timespan for interval %s", interval)
	}
}

func (p *PolygonProvider) Candles(ctx context.Context, instrument string, interval types.Interval, start, end time.Time) iter.Seq2[types.Candle, error] {
	return func(yield func(types.Candle, error) bool) {
		multiplier, timespan, err := polygonSpan(interval)
		if err != nil {
			yield(types.Candle{}, err)

			return
		}

		//nolint:exhaustruct // third-party struct with many optional fields
		params := models.ListAggsParams{
			Ticker:     instrument,
			Multiplier: multiplier,
			Timespan:   timespan,
			From:       models.Millis(start),
			To:         models.Millis(end),
		}.WithLimit(polygonPageLimit)

		aggs := p.client.ListAggs(ctx, params)

		for aggs.Next() {
			agg := aggs.Item()

			candle := types.Candle{
				Instrument: instrument,
				Time:       time.Time(agg.Timestamp).UTC(),
				Open:       agg.Open,
				High:       agg.High,
				Low:        agg.Low,
				Close:      agg.Close,
				Volume:     agg.Volume,
			}

			if !yield(candle, nil) {
				return
			}
		}

		if err := aggs.Err(); err != nil {
			yield(types.Candle{}, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to list %s aggregates", instrument))
		}
	}
}

// Stream subscribes to the minute aggregate feed. Polygon publishes no
// coarser realtime bars, so any other interval is refused.
func (p *PolygonProvider) Stream(ctx context.Context, instruments []string, interval types.Interval) iter.Seq2[types.Candle, error] {
	return func(yield func(types.Candle, error) bool) {
		if interval != types.Interval1m {
			yield(types.Candle{}, errors.Newf(errors.ErrCodeInvalidTimespan, "polygon streams 1m aggregates, not %s", interval))

			return
		}

		ws := p.ws
		if ws == nil {
			client, err := polygonws.New(polygonws.Config{
				APIKey: p.apiKey,
				Feed:   polygonws.RealTime,
				Market: polygonws.Stocks,
			})
			if err != nil {
				yield(types.Candle{}, errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "failed to create polygon stream client", err))

				return
			}

			ws = client
		}

		if err := ws.Connect(); err != nil {
			yield(types.Candle{}, errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "failed to connect polygon stream", err))

			return
		}
		defer ws.Close()

		if err := ws.Subscribe(polygonws.StocksMinAggs, instruments...); err != nil {
			yield(types.Candle{}, errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "failed to subscribe polygon stream", err))

			return
		}

		watched := make(map[string]bool, len(instruments))
		for _, instrument := range instruments {
			watched[instrument] = true
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-ws.Output():
				if !ok {
					return
				}

				agg, isAgg := event.(wsmodels.EquityAgg)
				if !isAgg || !watched[agg.Symbol] {
					continue
				}

				candle := types.Candle{
					Instrument: agg.Symbol,
					Time:       time.UnixMilli(int64(agg.StartTimestamp)).UTC(),
					Open:       agg.Open,
					High:       agg.High,
					Low:        agg.Low,
					Close:      agg.Close,
					Volume:     agg.Volume,
				}

				if !yield(candle, nil) {
					return
				}
			case err, ok := <-ws.Error():
				if !ok {
					return
				}

				if !yield(types.Candle{}, errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "polygon stream error", err)) {
					return
				}
			}
		}
	}
}
