package indicator

import (
	"github.com/meridian-lab/meridian-trading/internal/types"
)

// SMA returns the simple moving average of the last period closes.
// When fewer candles than period are available it averages what exists.
func SMA(candles []types.Candle, period int) (float64, error) {
	if err := requireCandles(candles, 1, "SMA"); err != nil {
		return 0, err
	}

	if period > len(candles) {
		period = len(candles)
	}

	sum := 0.0
	for _, c := range candles[len(candles)-period:] {
		sum += c.Close
	}

	return sum / float64(period), nil
}

// EMA returns the exponential moving average of closes over the whole
// slice. The first period closes seed a simple average, then
// EMA = close*alpha + EMA_prev*(1-alpha) with alpha = 2/(period+1),
// matching pandas ewm with adjust=False.
func EMA(candles []types.Candle, period int) (float64, error) {
	if period < 1 {
		return 0, errInvalidPeriod(period)
	}

	if err := requireCandles(candles, period, "EMA"); err != nil {
		return 0, err
	}

	sma := 0.0
	for i := 0; i < period; i++ {
		sma += candles[i].Close
	}

	sma /= float64(period)

	alpha := 2.0 / float64(period+1)

	ema := sma
	for i := period; i < len(candles); i++ {
		ema = (candles[i].Close * alpha) + (ema * (1 - alpha))
	}

	return ema, nil
}
