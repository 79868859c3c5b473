package types

import "time"

// Cooldown escalation tiers by consecutive-loss count.
const (
	CooldownAfterOneLoss    = 30 * time.Minute
	CooldownAfterTwoLosses  = 2 * time.Hour
	CooldownAfterManyLosses = 24 * time.Hour
)

// CooldownDurationFor returns the suppression window for a given
// consecutive-loss count. Counts below one carry no cooldown.
func CooldownDurationFor(consecutiveLosses int) time.Duration {
	switch {
	case consecutiveLosses <= 0:
		return 0
	case consecutiveLosses == 1:
		return CooldownAfterOneLoss
	case consecutiveLosses == 2:
		return CooldownAfterTwoLosses
	default:
		return CooldownAfterManyLosses
	}
}

// Cooldown suppresses new entries on one instrument until it expires or
// is cleared by the operator.
type Cooldown struct {
	Instrument        string    `json:"instrument"`
	Until             time.Time `json:"until"`
	ConsecutiveLosses int       `json:"count"`
	Reason            string    `json:"reason"`
}

// Active reports whether the cooldown still suppresses entries at now.
func (c Cooldown) Active(now time.Time) bool {
	return now.Before(c.Until)
}

// Remaining returns how much suppression time is left, floored at zero.
func (c Cooldown) Remaining(now time.Time) time.Duration {
	if !c.Active(now) {
		return 0
	}

	return c.Until.Sub(now)
}
