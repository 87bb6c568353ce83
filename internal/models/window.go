// Package models defines the data structures shared by the export stages.
package models

import (
	"fmt"
	"time"
)

// Seconds per alignment unit.
const (
	HourSeconds int64 = 60 * 60
	DaySeconds  int64 = HourSeconds * 24
)

// Alignment is the boundary a TimeWindow is snapped to.
type Alignment string

const (
	AlignHour Alignment = "HOUR"
	AlignDay  Alignment = "DAY"
)

// Seconds returns the unit length in seconds.
func (a Alignment) Seconds() int64 {
	if a == AlignDay {
		return DaySeconds
	}
	return HourSeconds
}

// TimeWindow is an inclusive-exclusive epoch interval in seconds.
// End == 0 means the window is open-ended and runs up to the present.
type TimeWindow struct {
	Start int64     `json:"start" yaml:"start"`
	End   int64     `json:"end,omitempty" yaml:"end,omitempty"`
	Unit  Alignment `json:"unit" yaml:"unit"`
}

// Bounded reports whether the window has an exclusive upper bound.
func (w TimeWindow) Bounded() bool {
	return w.End != 0
}

// Contains reports whether epoch second ts falls inside the window.
func (w TimeWindow) Contains(ts int64) bool {
	if ts < w.Start {
		return false
	}
	return !w.Bounded() || ts < w.End
}

func (w TimeWindow) String() string {
	start := time.Unix(w.Start, 0).UTC().Format(time.RFC3339)
	if !w.Bounded() {
		return fmt.Sprintf("[%s, now) %s", start, w.Unit)
	}
	end := time.Unix(w.End, 0).UTC().Format(time.RFC3339)
	return fmt.Sprintf("[%s, %s) %s", start, end, w.Unit)
}

// Watermark is the epoch second below which the previous export is trusted.
type Watermark int64

// Micros returns the watermark in epoch microseconds, the unit of event timestamps.
func (w Watermark) Micros() int64 {
	return int64(w) * 1_000_000
}

// Time returns the watermark as a UTC time.
func (w Watermark) Time() time.Time {
	return time.Unix(int64(w), 0).UTC()
}
