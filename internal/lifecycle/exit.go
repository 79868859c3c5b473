package lifecycle

import (
	"math"
	"time"

	"github.com/moznion/go-optional"

	"github.com/meridian-lab/meridian-trading/internal/types"
)

// CheckExit examines one completed candle against an open trade and
// returns the exit that is due, if any. Priority is fixed: holding-time
// limit first, then stop loss, then take profit — when a bar spans both
// protective levels the stop wins, the pessimistic reading. When no
// exit is due the bar's high/low are folded into the trade's excursion
// tracking.
//
// barClose is the wall-clock close time of the candle; the holding-time
// limit is measured against it. Fill prices assume the level traded
// inside the bar but never grant a better fill than the level itself on
// stops or a worse one on targets:
//
//	long stop:    low <= sl  -> fill min(sl, close)
//	short stop:   high >= sl -> fill max(sl, close)
//	long target:  high >= tp -> fill max(tp, close)
//	short target: low <= tp  -> fill min(tp, close)
func (r *Ruleset) CheckExit(trade *types.Trade, bar types.Candle, barClose time.Time) optional.Option[Exit] {
	if !trade.IsOpen() {
		return optional.None[Exit]()
	}

	if barClose.Sub(trade.EntryTime) >= r.config.MaxHolding {
		return optional.Some(Exit{Reason: types.ExitReasonTimeLimit, Price: bar.Close})
	}

	if sl, err := trade.StopLoss.Take(); err == nil {
		if trade.Side == types.SideLong && bar.Low <= sl {
			return optional.Some(Exit{Reason: types.ExitReasonStopLoss, Price: math.Min(sl, bar.Close)})
		}

		if trade.Side == types.SideShort && bar.High >= sl {
			return optional.Some(Exit{Reason: types.ExitReasonStopLoss, Price: math.Max(sl, bar.Close)})
		}
	}

	if tp, err := trade.TakeProfit.Take(); err == nil {
		if trade.Side == types.SideLong && bar.High >= tp {
			return optional.Some(Exit{Reason: types.ExitReasonTakeProfit, Price: math.Max(tp, bar.Close)})
		}

		if trade.Side == types.SideShort && bar.Low <= tp {
			return optional.Some(Exit{Reason: types.ExitReasonTakeProfit, Price: math.Min(tp, bar.Close)})
		}
	}

	trade.RecordExcursion(bar.High, bar.Low)

	return optional.None[Exit]()
}

// CheckExitAtPrice applies the same exit priority against a single
// observed price, used by the live monitor between candle closes. The
// fill is the observed price itself since the close happens at market.
func (r *Ruleset) CheckExitAtPrice(trade *types.Trade, price float64, now time.Time) optional.Option[Exit] {
	if !trade.IsOpen() {
		return optional.None[Exit]()
	}

	if now.Sub(trade.EntryTime) >= r.config.MaxHolding {
		return optional.Some(Exit{Reason: types.ExitReasonTimeLimit, Price: price})
	}

	if sl, err := trade.StopLoss.Take(); err == nil {
		if trade.Side == types.SideLong && price <= sl {
			return optional.Some(Exit{Reason: types.ExitReasonStopLoss, Price: price})
		}

		if trade.Side == types.SideShort && price >= sl {
			return optional.Some(Exit{Reason: types.ExitReasonStopLoss, Price: price})
		}
	}

	if tp, err := trade.TakeProfit.Take(); err == nil {
		if trade.Side == types.SideLong && price >= tp {
			return optional.Some(Exit{Reason: types.ExitReasonTakeProfit, Price: price})
		}

		if trade.Side == types.SideShort && price <= tp {
			return optional.Some(Exit{Reason: types.ExitReasonTakeProfit, Price: price})
		}
	}

	return optional.None[Exit]()
}
