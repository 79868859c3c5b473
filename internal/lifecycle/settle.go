package lifecycle

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"

	"github.com/meridian-lab/meridian-trading/internal/types"
)

// Settle commits an exit to the trade: computes realized P&L net of
// round-trip commission, stamps the exit fields, and returns the amount
// to credit back to the balance (released margin plus realized P&L).
//
//	realized = (exit-entry) * direction * lots * lotSize
//	         - (entryNotional + exitNotional) * commissionRate
//
// The arithmetic runs in decimals so repeated settles never accumulate
// float drift between the live ledger and a replay of the same fills.
func (r *Ruleset) Settle(trade *types.Trade, price float64, reason types.ExitReason, at time.Time) float64 {
	entry := decimal.NewFromFloat(trade.EntryPrice)
	exit := decimal.NewFromFloat(price)
	contracts := decimal.NewFromInt(int64(trade.Lots)).Mul(decimal.NewFromFloat(trade.LotSize))
	direction := decimal.NewFromFloat(trade.Side.Direction())

	gross := exit.Sub(entry).Mul(direction).Mul(contracts)

	notional := entry.Mul(contracts).Add(exit.Mul(contracts))
	commission := notional.Mul(decimal.NewFromFloat(r.config.CommissionRate))

	realized := gross.Sub(commission)
	realizedF, _ := realized.Float64()

	trade.Status = types.TradeStatusClosed
	trade.ExitPrice = optional.Some(price)
	trade.ExitTime = optional.Some(at)
	trade.ExitReason = optional.Some(reason)
	trade.LastPrice = price
	trade.RealizedPnL = realizedF

	if trade.MarginUsed > 0 {
		pct := realized.Div(decimal.NewFromFloat(trade.MarginUsed)).Mul(decimal.NewFromInt(100))
		trade.RealizedPnLPct, _ = pct.Float64()
	} else {
		trade.RealizedPnLPct = 0
	}

	return trade.MarginUsed + realizedF
}
