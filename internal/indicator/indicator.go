// Package indicator provides pure calculations over candle slices.
// Functions never reach out to a data source; callers pass exactly the
// history the calculation is allowed to see, which keeps replay free of
// look-ahead.
package indicator

import (
	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

func requireCandles(candles []types.Candle, required int, name string) error {
	if len(candles) < required {
		return errors.NewInsufficientDataErrorf(required, len(candles), "",
			"%s requires %d candles, have %d", name, required, len(candles))
	}

	return nil
}

func errInvalidPeriod(period int) error {
	return errors.Newf(errors.ErrCodeInvalidPeriod, "period must be positive, got %d", period)
}
