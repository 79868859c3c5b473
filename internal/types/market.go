package types

import (
	"time"

	"github.com/meridian-lab/meridian-trading/pkg/errors"
)

// Interval is a candle aggregation period.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
)

var intervalDurations = map[Interval]time.Duration{
	Interval1m:  time.Minute,
	Interval5m:  5 * time.Minute,
	Interval15m: 15 * time.Minute,
	Interval30m: 30 * time.Minute,
	Interval1h:  time.Hour,
	Interval4h:  4 * time.Hour,
	Interval1d:  24 * time.Hour,
}

// ParseInterval converts a string like "15m" or "1h" into an Interval.
func ParseInterval(s string) (Interval, error) {
	interval := Interval(s)
	if _, ok := intervalDurations[interval]; !ok {
		return "", errors.Newf(errors.ErrCodeInvalidInterval, "unsupported interval: %s", s)
	}

	return interval, nil
}

// Duration returns the wall-clock length of one candle at this interval.
// Unknown intervals return zero.
func (i Interval) Duration() time.Duration {
	return intervalDurations[i]
}

// NextClose returns the close time of the candle that contains t.
// Candles are aligned to UTC interval boundaries.
func (i Interval) NextClose(t time.Time) time.Time {
	d := i.Duration()
	if d == 0 {
		return t
	}

	return t.Truncate(d).Add(d)
}

// Candle is a single OHLCV bar for one instrument. Time is the bar's
// open time; the bar is complete once Time+interval has passed.
type Candle struct {
	Instrument string    `json:"instrument" csv:"instrument"`
	Time       time.Time `json:"time" csv:"time"`
	Open       float64   `json:"open" csv:"open"`
	High       float64   `json:"high" csv:"high"`
	Low        float64   `json:"low" csv:"low"`
	Close      float64   `json:"close" csv:"close"`
	Volume     float64   `json:"volume" csv:"volume"`
}
