package fusion

import (
	"github.com/meridian-lab/meridian-trading/internal/types"
)

// AggregateCandles folds a fine-grained series into bucket-interval
// candles: open is the first open, high the max, low the min, close the
// last close, volume the sum. Buckets align to UTC interval boundaries
// and a partial trailing bucket is kept, built only from bars that have
// already closed.
func AggregateCandles(candles []types.Candle, bucket types.Interval) []types.Candle {
	if len(candles) == 0 {
		return nil
	}

	duration := bucket.Duration()
	if duration == 0 {
		return candles
	}

	aggregated := make([]types.Candle, 0, len(candles)/2+1)

	for _, c := range candles {
		bucketStart := c.Time.Truncate(duration)

		if len(aggregated) > 0 && aggregated[len(aggregated)-1].Time.Equal(bucketStart) {
			last := &aggregated[len(aggregated)-1]

			if c.High > last.High {
				last.High = c.High
			}

			if c.Low < last.Low {
				last.Low = c.Low
			}

			last.Close = c.Close
			last.Volume += c.Volume

			continue
		}

		aggregated = append(aggregated, types.Candle{
			Instrument: c.Instrument,
			Time:       bucketStart,
			Open:       c.Open,
			High:       c.High,
			Low:        c.Low,
			Close:      c.Close,
			Volume:     c.Volume,
		})
	}

	return aggregated
}
