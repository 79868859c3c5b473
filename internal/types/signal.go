package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

type SignalAction string

const (
	// SignalActionLong proposes opening or holding a long position.
	SignalActionLong SignalAction = "LONG"
	// SignalActionShort proposes opening or holding a short position.
	SignalActionShort SignalAction = "SHORT"
	// SignalActionHold proposes no new position this cycle.
	SignalActionHold SignalAction = "HOLD"
)

// IsDirectional reports whether the action proposes an entry.
func (a SignalAction) IsDirectional() bool {
	return a == SignalActionLong || a == SignalActionShort
}

// Bias describes the currently held position when a provider is asked
// for a fresh signal, so it can avoid proposing an immediate flip.
type Bias string

const (
	BiasNone  Bias = "none"
	BiasLong  Bias = "long"
	BiasShort Bias = "short"
)

// SignalSource records where a fused signal came from. For plain
// providers only Provider is set; fusion fills the per-timeframe fields.
type SignalSource struct {
	Provider       string       `json:"provider" yaml:"provider"`
	Policy         string       `json:"policy,omitempty" yaml:"policy,omitempty"`
	SlowAction     SignalAction `json:"slow_action,omitempty" yaml:"slow_action,omitempty"`
	SlowConfidence float64      `json:"slow_confidence,omitempty" yaml:"slow_confidence,omitempty"`
	FastAction     SignalAction `json:"fast_action,omitempty" yaml:"fast_action,omitempty"`
	FastConfidence float64      `json:"fast_confidence,omitempty" yaml:"fast_confidence,omitempty"`
}

// Signal is one directional opinion about one instrument at one point in
// time. Signals are produced fresh each cycle and never mutated.
type Signal struct {
	Time       time.Time    `json:"time" yaml:"time" validate:"required"`
	Instrument string       `json:"instrument" yaml:"instrument" validate:"required"`
	Action     SignalAction `json:"action" yaml:"action" validate:"required,oneof=LONG SHORT HOLD"`
	// Price is the reference price the signal was computed against,
	// normally the close of the last complete candle.
	Price      float64 `json:"price" yaml:"price" validate:"gte=0"`
	Confidence float64 `json:"confidence" yaml:"confidence" validate:"gte=0,lte=1"`
	// StopLoss and TakeProfit are absolute price levels. Directional
	// signals without both levels are never executed.
	StopLoss   optional.Option[float64] `json:"stop_loss" yaml:"stop_loss"`
	TakeProfit optional.Option[float64] `json:"take_profit" yaml:"take_profit"`
	Reason     string                   `json:"reason" yaml:"reason"`
	Source     SignalSource             `json:"source" yaml:"source"`
}

// HasProtectiveLevels reports whether both stop loss and take profit are set.
func (s Signal) HasProtectiveLevels() bool {
	return s.StopLoss.IsSome() && s.TakeProfit.IsSome()
}

// Validate checks structural validity of the signal.
func (s Signal) Validate() error {
	validate := validator.New()

	if err := validate.Struct(s); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidSignal, "invalid signal", err)
	}

	return nil
}

// SignalOutcome records what the engine did with an evaluated signal.
type SignalOutcome string

const (
	SignalOutcomeExecuted        SignalOutcome = "executed"
	SignalOutcomeHold            SignalOutcome = "hold"
	SignalOutcomeNoLevels        SignalOutcome = "rejected_missing_levels"
	SignalOutcomeBelowThreshold  SignalOutcome = "rejected_below_threshold"
	SignalOutcomeCooldown        SignalOutcome = "rejected_cooldown"
	SignalOutcomePositionOpen    SignalOutcome = "rejected_position_open"
	SignalOutcomeSizingRejected  SignalOutcome = "rejected_sizing"
	SignalOutcomeOrderFailed     SignalOutcome = "rejected_order_failed"
	SignalOutcomeProviderError   SignalOutcome = "provider_error"
	SignalOutcomeInstrumentLimit SignalOutcome = "rejected_instrument_limit"
)

// SignalRecord is one entry in the in-memory signal history.
type SignalRecord struct {
	Time       time.Time     `json:"time"`
	Instrument string        `json:"instrument"`
	Signal     Signal        `json:"signal"`
	Outcome    SignalOutcome `json:"outcome"`
	// Detail carries outcome context, e.g. the rejection cause.
	Detail string `json:"detail,omitempty"`
}
