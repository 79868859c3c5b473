package indicator

import (
	"math"

	"github.com/meridian-lab/meridian-trading/internal/types"
)

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(current types.Candle, prevClose float64) float64 {
	return math.Max(
		math.Max(
			current.High-current.Low,
			math.Abs(current.High-prevClose),
		),
		math.Abs(current.Low-prevClose),
	)
}

// ATR returns the average true range using Wilder's smoothing: the
// first period true ranges seed a simple average, after which
// ATR = (ATR_prev*(period-1) + TR) / period. The first bar's true range
// is its high-low span. Requires period+1 candles.
func ATR(candles []types.Candle, period int) (float64, error) {
	if period < 1 {
		return 0, errInvalidPeriod(period)
	}

	if err := requireCandles(candles, period+1, "ATR"); err != nil {
		return 0, err
	}

	trs := make([]float64, len(candles))
	trs[0] = candles[0].High - candles[0].Low

	for i := 1; i < len(candles); i++ {
		trs[i] = TrueRange(candles[i], candles[i-1].Close)
	}

	atr := 0.0
	for i := 0; i < period; i++ {
		atr += trs[i]
	}

	atr /= float64(period)

	for i := period; i < len(trs); i++ {
		atr = (atr*float64(period-1) + trs[i]) / float64(period)
	}

	return atr, nil
}
