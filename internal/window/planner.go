// Package window converts recency settings or calendar ranges into aligned
// epoch intervals and computes the watermark bounds of incremental runs.
package window

import (
	"fmt"
	"strings"
	"time"

	"github.com/raphaelgruber/triggerexport/internal/apperr"
	"github.com/raphaelgruber/triggerexport/internal/models"
)

const dayLayout = "20060102"

// DayRange is an inclusive range of UTC calendar days.
type DayRange struct {
	Start time.Time
	End   time.Time
}

// ParseDayRange parses "YYYYMMDD-YYYYMMDD".
func ParseDayRange(s string) (DayRange, error) {
	start, end, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return DayRange{}, apperr.Configuration("parse day range", "expected YYYYMMDD-YYYYMMDD, got %q", s)
	}
	startDay, err := time.ParseInLocation(dayLayout, start, time.UTC)
	if err != nil {
		return DayRange{}, apperr.Configuration("parse day range", "invalid start day %q", start)
	}
	endDay, err := time.ParseInLocation(dayLayout, end, time.UTC)
	if err != nil {
		return DayRange{}, apperr.Configuration("parse day range", "invalid end day %q", end)
	}
	if startDay.After(endDay) {
		return DayRange{}, apperr.Configuration("parse day range", "start day %s is later than end day %s", start, end)
	}
	return DayRange{Start: startDay, End: endDay}, nil
}

func (r DayRange) String() string {
	return r.Start.Format(dayLayout) + "-" + r.End.Format(dayLayout)
}

// Spec selects either a recency window or a calendar range.
type Spec struct {
	MaxHoursAgo *int
	FullDays    bool
	DayRange    *DayRange
}

// Result is a planned window plus any warnings the caller should log.
type Result struct {
	Window   models.TimeWindow
	Warnings []string
}

// Plan computes the query window for spec at time now.
func Plan(spec Spec, now time.Time) (Result, error) {
	switch {
	case spec.MaxHoursAgo != nil && spec.DayRange != nil:
		return Result{}, apperr.Configuration("plan window", "max_hours_ago and day_range cannot both be set")
	case spec.MaxHoursAgo == nil && spec.DayRange == nil:
		return Result{}, apperr.Configuration("plan window", "either max_hours_ago or day_range must be set")
	case spec.DayRange != nil:
		return planRange(*spec.DayRange)
	}

	hours := *spec.MaxHoursAgo
	if hours < 0 {
		return Result{}, apperr.Configuration("plan window", "max_hours_ago cannot be under 0, got %d", hours)
	}
	res := Result{
		Window: models.TimeWindow{
			Start: RetentionFloor(now, hours, spec.FullDays),
			Unit:  unitFor(spec.FullDays),
		},
	}
	if hours == 0 {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("max_hours_ago set to 0: only the current %s partition will be read", strings.ToLower(string(res.Window.Unit))))
	}
	return res, nil
}

func planRange(r DayRange) (Result, error) {
	if r.Start.After(r.End) {
		return Result{}, apperr.Configuration("plan window", "start day %s is later than end day %s",
			r.Start.Format(dayLayout), r.End.Format(dayLayout))
	}
	start := startOfDay(r.Start)
	return Result{
		Window: models.TimeWindow{
			Start: start,
			End:   startOfDay(r.End) + models.DaySeconds,
			Unit:  models.AlignDay,
		},
	}, nil
}

// RetentionFloor returns floor((now - 3600*maxHoursAgo) / unit) * unit.
func RetentionFloor(now time.Time, maxHoursAgo int, fullDays bool) int64 {
	return Align(now.Unix()-models.HourSeconds*int64(maxHoursAgo), unitFor(fullDays))
}

// StandardWatermark returns the start of the current hour minus one period
// of lookback: one hour when hourly, 24 hours otherwise.
func StandardWatermark(now time.Time, hourly bool) models.Watermark {
	periods := int64(24)
	if hourly {
		periods = 1
	}
	return models.Watermark(Align(now.Unix(), models.AlignHour) - models.HourSeconds*periods)
}

// Align floors epoch second ts to a multiple of the unit length.
func Align(ts int64, unit models.Alignment) int64 {
	size := unit.Seconds()
	aligned := (ts / size) * size
	if ts < 0 && ts%size != 0 {
		aligned -= size
	}
	return aligned
}

func unitFor(fullDays bool) models.Alignment {
	if fullDays {
		return models.AlignDay
	}
	return models.AlignHour
}

func startOfDay(t time.Time) int64 {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix()
}
