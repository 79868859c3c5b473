package lifecycle

import (
	"fmt"
	"time"

	"github.com/meridian-lab/meridian-trading/internal/types"
)

// CooldownAfterLoss builds the entry-suppression window that follows a
// losing settle. consecutiveLosses must already include the loss that
// was just settled. Counts without a configured window return false.
func CooldownAfterLoss(instrument string, consecutiveLosses int, at time.Time) (types.Cooldown, bool) {
	duration := types.CooldownDurationFor(consecutiveLosses)
	if duration <= 0 {
		return types.Cooldown{}, false
	}

	return types.Cooldown{
		Instrument:        instrument,
		Until:             at.Add(duration),
		ConsecutiveLosses: consecutiveLosses,
		Reason:            fmt.Sprintf("%d consecutive losing trades", consecutiveLosses),
	}, true
}
