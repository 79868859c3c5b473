package strategy

import (
	"math"

	"github.com/meridian-lab/meridian-trading/internal/types"
)

const (
	// DefaultRiskReward is the target distance as a multiple of the
	// stop distance.
	DefaultRiskReward = 2.5
	// MinStopDistancePct floors the stop distance so quiet markets do
	// not place stops inside the spread.
	MinStopDistancePct = 0.005
)

// ProtectiveLevels derives stop loss and take profit from current
// volatility. The stop distance is ATR as a fraction of price, floored
// at MinStopDistancePct; the target distance is riskReward times the
// stop distance.
func ProtectiveLevels(action types.SignalAction, price, atr, riskReward float64) (stopLoss, takeProfit float64) {
	if riskReward <= 0 {
		riskReward = DefaultRiskReward
	}

	stopPct := math.Max(MinStopDistancePct, atr/price)
	targetPct := riskReward * stopPct

	if action == types.SignalActionShort {
		return price * (1 + stopPct), price * (1 - targetPct)
	}

	return price * (1 - stopPct), price * (1 + targetPct)
}
