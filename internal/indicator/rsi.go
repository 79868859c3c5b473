package indicator

import (
	"github.com/meridian-lab/meridian-trading/internal/types"
)

// RSI returns the relative strength index of closes using Wilder's
// smoothing. Requires period+1 candles for the first period changes.
func RSI(candles []types.Candle, period int) (float64, error) {
	if period < 1 {
		return 0, errInvalidPeriod(period)
	}

	if err := requireCandles(candles, period+1, "RSI"); err != nil {
		return 0, err
	}

	gains := make([]float64, 0, len(candles)-1)
	losses := make([]float64, 0, len(candles)-1)

	for i := 1; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			gains = append(gains, change)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, -change)
		}
	}

	// First average
	avgGain := 0.0
	avgLoss := 0.0

	for i := 0; i < period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}

	avgGain /= float64(period)
	avgLoss /= float64(period)

	// Subsequent averages using Wilder's smoothing method
	for i := period; i < len(gains); i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
	}

	if avgLoss == 0 {
		return 100, nil // Perfect uptrend
	}

	rs := avgGain / avgLoss

	return 100 - (100 / (1 + rs)), nil
}
