// Package lifecycle holds the position exit rules and settlement
// arithmetic shared verbatim by the live engine and the replay engine.
// Behavioral identity between the two is the point: anything either
// engine decides about an open position goes through this package.
package lifecycle

import (
	"time"

	"github.com/meridian-lab/meridian-trading/internal/types"
)

const (
	// DefaultCommissionRate is charged per leg on notional value.
	DefaultCommissionRate = 0.0005
	// DefaultMaxHolding closes any position held this long.
	DefaultMaxHolding = 48 * time.Hour
)

type Config struct {
	// CommissionRate is the per-leg commission as a fraction of
	// notional. Round-trip cost is rate * (entry + exit notional).
	CommissionRate float64 `yaml:"commission_rate" json:"commission_rate" validate:"gte=0"`
	// MaxHolding is the holding-time limit after which a position is
	// closed regardless of price.
	MaxHolding time.Duration `yaml:"max_holding" json:"max_holding" validate:"gte=0"`
}

// Ruleset applies exit priority and settlement to open trades.
type Ruleset struct {
	config Config
}

func NewRuleset(config Config) *Ruleset {
	if config.CommissionRate == 0 {
		config.CommissionRate = DefaultCommissionRate
	}

	if config.MaxHolding == 0 {
		config.MaxHolding = DefaultMaxHolding
	}

	return &Ruleset{config: config}
}

// MaxHolding exposes the holding-time limit for status surfaces.
func (r *Ruleset) MaxHolding() time.Duration {
	return r.config.MaxHolding
}

// Exit describes a due exit: why and at what fill price.
type Exit struct {
	Reason types.ExitReason
	Price  float64
}

// EntryEligible applies the entry gates that depend only on the signal
// itself: the action must be directional, confidence must reach the
// instrument's threshold, and both protective levels must be present.
// Position state, cooldowns and sizing are checked by the caller. The
// returned outcome names the failed gate.
func EntryEligible(signal types.Signal, minConfidence float64) (types.SignalOutcome, bool) {
	if !signal.Action.IsDirectional() {
		return types.SignalOutcomeHold, false
	}

	if signal.Confidence < minConfidence {
		return types.SignalOutcomeBelowThreshold, false
	}

	if !signal.HasProtectiveLevels() {
		return types.SignalOutcomeNoLevels, false
	}

	return "", true
}
