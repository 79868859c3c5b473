package types

import (
	"time"

	"github.com/moznion/go-optional"
)

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Direction returns +1 for long and -1 for short.
func (s Side) Direction() float64 {
	if s == SideShort {
		return -1
	}

	return 1
}

// Opposite returns the closing order direction for a held side.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}

	return SideLong
}

// Bias converts a held side into the bias passed to signal providers.
func (s Side) Bias() Bias {
	switch s {
	case SideLong:
		return BiasLong
	case SideShort:
		return BiasShort
	default:
		return BiasNone
	}
}

// SideFromAction maps a directional signal action to a position side.
func SideFromAction(action SignalAction) (Side, bool) {
	switch action {
	case SignalActionLong:
		return SideLong, true
	case SignalActionShort:
		return SideShort, true
	default:
		return "", false
	}
}

type TradeStatus string

const (
	TradeStatusOpen   TradeStatus = "open"
	TradeStatusClosed TradeStatus = "closed"
)

type ExitReason string

const (
	ExitReasonTakeProfit    ExitReason = "take_profit"
	ExitReasonStopLoss      ExitReason = "stop_loss"
	ExitReasonTimeLimit     ExitReason = "time_limit"
	ExitReasonEndOfBacktest ExitReason = "end_of_backtest"
	// ExitReasonExternal marks a position that disappeared at the broker
	// outside of this engine, detected during reconciliation.
	ExitReasonExternal ExitReason = "external"
)

// Trade is one position over its whole lifecycle. It is created when an
// entry is committed, mutated while open, and append-only once closed.
type Trade struct {
	ID         string    `json:"id"`
	Instrument string    `json:"instrument"`
	Side       Side      `json:"side"`
	EntryPrice float64   `json:"entry_price"`
	EntryTime  time.Time `json:"entry_time"`
	// Lots is the number of whole contracts. Committed trades always
	// have Lots >= 1.
	Lots int `json:"lots"`
	// LotSize is the contract multiplier: notional = price * lots * lot size.
	LotSize float64 `json:"lot_size"`
	// MarginUsed is the margin debited from the balance at entry and
	// released back on close.
	MarginUsed float64 `json:"margin_used"`
	// StopLoss and TakeProfit are absent on adopted positions.
	StopLoss   optional.Option[float64] `json:"stop_loss"`
	TakeProfit optional.Option[float64] `json:"take_profit"`
	Status     TradeStatus              `json:"status"`
	ExitPrice  optional.Option[float64] `json:"exit_price"`
	ExitTime   optional.Option[time.Time] `json:"exit_time"`
	ExitReason optional.Option[ExitReason] `json:"exit_reason"`
	// RealizedPnL is net of round-trip commission; zero while open.
	RealizedPnL    float64 `json:"realized_pnl"`
	RealizedPnLPct float64 `json:"realized_pnl_pct"`
	// MaxFavorableExcursion and MaxAdverseExcursion are fractional price
	// moves relative to entry, updated once per completed candle.
	MaxFavorableExcursion float64 `json:"max_favorable_excursion"`
	MaxAdverseExcursion   float64 `json:"max_adverse_excursion"`
	// LastPrice is the most recent mark seen by the price monitor.
	LastPrice float64 `json:"last_price"`
	// Adopted is true when the position was discovered at the broker and
	// synthesized locally. Adopted trades carry no protective levels and
	// only the holding-time rule ever auto-closes them.
	Adopted bool `json:"adopted"`
}

// IsOpen reports whether the trade still holds a position.
func (t *Trade) IsOpen() bool {
	return t.Status == TradeStatusOpen
}

// HoldingDuration returns how long the position has been (or was) held.
func (t *Trade) HoldingDuration(now time.Time) time.Duration {
	if exitTime, err := t.ExitTime.Take(); err == nil {
		return exitTime.Sub(t.EntryTime)
	}

	return now.Sub(t.EntryTime)
}

// EntryNotional returns the position's notional value at entry.
func (t *Trade) EntryNotional() float64 {
	return t.EntryPrice * float64(t.Lots) * t.LotSize
}

// RecordExcursion folds one completed candle into the trade's
// max favorable / max adverse excursion, as fractions of entry price.
func (t *Trade) RecordExcursion(high, low float64) {
	if t.EntryPrice <= 0 {
		return
	}

	var favorable, adverse float64

	switch t.Side {
	case SideShort:
		favorable = (t.EntryPrice - low) / t.EntryPrice
		adverse = (t.EntryPrice - high) / t.EntryPrice
	default:
		favorable = (high - t.EntryPrice) / t.EntryPrice
		adverse = (low - t.EntryPrice) / t.EntryPrice
	}

	if favorable > t.MaxFavorableExcursion {
		t.MaxFavorableExcursion = favorable
	}

	if adverse < t.MaxAdverseExcursion {
		t.MaxAdverseExcursion = adverse
	}
}

// EquityPoint is one sample of the account balance, appended after every
// trade close.
type EquityPoint struct {
	Time    time.Time `json:"time" csv:"time"`
	Balance float64   `json:"balance" csv:"balance"`
}

// TradeFilter selects trades from the ledger or journal.
type TradeFilter struct {
	// Instrument filters by instrument (empty string means no filter).
	Instrument string `json:"instrument" yaml:"instrument"`
	// Status filters by open/closed (empty string means no filter).
	Status TradeStatus `json:"status" yaml:"status"`
	// Limit caps the number of trades returned, newest first (0 means no cap).
	Limit int `json:"limit" yaml:"limit"`
}

// Matches reports whether a trade passes the filter's field predicates.
// Limit is applied by the caller.
func (f TradeFilter) Matches(t *Trade) bool {
	if f.Instrument != "" && t.Instrument != f.Instrument {
		return false
	}

	if f.Status != "" && t.Status != f.Status {
		return false
	}

	return true
}
