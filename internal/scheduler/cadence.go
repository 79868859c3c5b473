package scheduler

import (
	"time"

	"github.com/meridian-lab/meridian-trading/internal/types"
)

const (
	// signalWakeMargin wakes the signal pass this long before a candle
	// close so the pass lands just after the bar completes.
	signalWakeMargin = 5 * time.Second
	// signalWaitFloor keeps the signal pass from busy-polling around
	// the close boundary.
	signalWaitFloor = 10 * time.Second
)

// UntilCandleClose returns the time remaining in the candle that
// contains now. Candle boundaries are aligned to UTC wall-clock
// multiples of the interval, matching exchange bars.
func UntilCandleClose(now time.Time, interval types.Interval) time.Duration {
	period := interval.Duration()

	return now.Truncate(period).Add(period).Sub(now)
}

// SignalWait computes the sleep before the next signal pass: align to
// just after the next candle close, floored at ten seconds, and never
// longer than the poll interval.
func SignalWait(now time.Time, interval types.Interval, poll time.Duration) time.Duration {
	wait := UntilCandleClose(now, interval) - signalWakeMargin
	if wait < signalWaitFloor {
		wait = signalWaitFloor
	}

	if poll > 0 && wait > poll {
		wait = poll
	}

	return wait
}
