// Package margin answers one question: how much margin does one lot of
// an instrument require right now. Sizing, reconciliation and replay
// all consult the same Oracle so their arithmetic cannot diverge.
package margin

import (
	"context"

	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

// DefaultMarginRate is the fraction of notional required as margin when
// no per-instrument figure is configured.
const DefaultMarginRate = 0.12

// Oracle reports the margin required to hold one lot of an instrument
// at a given reference price.
type Oracle interface {
	MarginPerLot(ctx context.Context, instrument string, price float64) (float64, error)
}

// StaticOracle serves fixed per-lot margin figures from configuration,
// the way exchange margin schedules are published.
type StaticOracle struct {
	perLot map[string]float64
}

var _ Oracle = (*StaticOracle)(nil)

func NewStaticOracle(perLot map[string]float64) *StaticOracle {
	return &StaticOracle{perLot: perLot}
}

func (o *StaticOracle) MarginPerLot(_ context.Context, instrument string, _ float64) (float64, error) {
	value, ok := o.perLot[instrument]
	if !ok {
		return 0, errors.Newf(errors.ErrCodeMarginUnavailable, "no margin schedule for instrument %s", instrument)
	}

	if value <= 0 {
		return 0, errors.Newf(errors.ErrCodeMarginInvalid, "margin schedule for %s is %f", instrument, value)
	}

	return value, nil
}

// RateOracle derives per-lot margin from notional value:
// price * lot size * rate. The replay engine uses it so historical runs
// need no margin schedule.
type RateOracle struct {
	rate     float64
	lotSizes map[string]float64
}

var _ Oracle = (*RateOracle)(nil)

func NewRateOracle(rate float64, lotSizes map[string]float64) *RateOracle {
	if rate <= 0 {
		rate = DefaultMarginRate
	}

	return &RateOracle{rate: rate, lotSizes: lotSizes}
}

func (o *RateOracle) MarginPerLot(_ context.Context, instrument string, price float64) (float64, error) {
	if price <= 0 {
		return 0, errors.Newf(errors.ErrCodeMarginInvalid, "cannot derive margin from price %f", price)
	}

	lotSize, ok := o.lotSizes[instrument]
	if !ok || lotSize <= 0 {
		return 0, errors.Newf(errors.ErrCodeMarginUnavailable, "no lot size for instrument %s", instrument)
	}

	return price * lotSize * o.rate, nil
}

// TieredOracle serves configured per-lot figures where they exist and
// derives the rest from notional. This is the oracle live configs
// build: exact schedules for the instruments the operator cares about,
// a rate for everything else.
type TieredOracle struct {
	schedule *StaticOracle
	fallback *RateOracle
}

var _ Oracle = (*TieredOracle)(nil)

func NewTieredOracle(perLot map[string]float64, rate float64, lotSizes map[string]float64) *TieredOracle {
	return &TieredOracle{
		schedule: NewStaticOracle(perLot),
		fallback: NewRateOracle(rate, lotSizes),
	}
}

func (o *TieredOracle) MarginPerLot(ctx context.Context, instrument string, price float64) (float64, error) {
	value, err := o.schedule.MarginPerLot(ctx, instrument, price)
	if err == nil {
		return value, nil
	}

	if !errors.HasCode(err, errors.ErrCodeMarginUnavailable) {
		return 0, err
	}

	return o.fallback.MarginPerLot(ctx, instrument, price)
}
