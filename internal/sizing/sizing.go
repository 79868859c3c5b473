// Package sizing converts available balance and per-lot margin into a
// whole number of lots under a hard risk cap.
package sizing

import (
	"github.com/shopspring/decimal"

	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

const (
	// DefaultFixedCap is the absolute ceiling on margin committed to a
	// single position.
	DefaultFixedCap = 10000.0
	// DefaultBalanceFraction caps committed margin as a share of the
	// available balance.
	DefaultBalanceFraction = 0.20
	// forcedLotBalanceFactor: a single forced lot is allowed only when
	// the balance covers its margin with 10% headroom.
	forcedLotBalanceFactor = 1.1
)

type Config struct {
	FixedCap        float64 `yaml:"fixed_cap" json:"fixed_cap" validate:"gte=0"`
	BalanceFraction float64 `yaml:"balance_fraction" json:"balance_fraction" validate:"gte=0,lte=1"`
}

// Result is a committed size: whole lots and the margin they require.
type Result struct {
	Lots           int
	MarginRequired float64
	// Cap is the effective margin budget the size was computed under.
	Cap float64
}

type Sizer struct {
	config Config
}

func NewSizer(config Config) *Sizer {
	if config.FixedCap == 0 {
		config.FixedCap = DefaultFixedCap
	}

	if config.BalanceFraction == 0 {
		config.BalanceFraction = DefaultBalanceFraction
	}

	return &Sizer{config: config}
}

// Size computes lots for the given balance and per-lot margin:
// cap = min(fixed cap, fraction * available), lots = floor(cap / marginPerLot).
// When the cap affords no whole lot, one lot is forced only if the
// balance covers 1.1x its margin; otherwise the size is rejected. No
// fractional lots, no rounding up, no partial fills.
func (s *Sizer) Size(available, marginPerLot float64) (Result, error) {
	if marginPerLot <= 0 {
		return Result{}, errors.Newf(errors.ErrCodeMarginInvalid, "margin per lot must be positive, got %f", marginPerLot)
	}

	if available <= 0 {
		return Result{}, errors.Newf(errors.ErrCodeSizingRejected, "no available balance (%f)", available)
	}

	budget := s.config.FixedCap
	if fractionCap := available * s.config.BalanceFraction; fractionCap < budget {
		budget = fractionCap
	}

	lots := int(decimal.NewFromFloat(budget).Div(decimal.NewFromFloat(marginPerLot)).IntPart())

	if lots < 1 {
		if available >= forcedLotBalanceFactor*marginPerLot {
			lots = 1
		} else {
			return Result{}, errors.Newf(errors.ErrCodeSizingRejected,
				"cap %.2f affords no lot at %.2f margin/lot and balance %.2f lacks headroom for a forced lot",
				budget, marginPerLot, available)
		}
	}

	return Result{
		Lots:           lots,
		MarginRequired: float64(lots) * marginPerLot,
		Cap:            budget,
	}, nil
}
