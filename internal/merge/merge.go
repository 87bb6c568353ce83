// Package merge combines the retained part of a previous export with freshly
// queried rows.
//
// A run splits time at the effective watermark W. Previous rows in
// [retention floor, W) are kept verbatim, everything from W onward is
// queried again. Because kept rows are strictly below W and fresh rows are
// at or above it, the union never double counts a record, and a run that
// failed or was skipped is repaired by the lookback in the next one.
package merge

import (
	"slices"
	"time"

	"github.com/raphaelgruber/triggerexport/internal/apperr"
	"github.com/raphaelgruber/triggerexport/internal/models"
	"github.com/raphaelgruber/triggerexport/internal/window"
	"github.com/samber/lo"
)

// Options configures the watermark policy.
type Options struct {
	// Hourly limits the standard lookback to one hour instead of 24.
	Hourly bool
	// NonStrict lets the watermark advance to the newest period already
	// present in the previous export.
	NonStrict   bool
	MaxHoursAgo int
	FullDays    bool
}

// Plan is the partition of a previous export around the effective watermark.
type Plan struct {
	RetentionFloor int64
	Standard       models.Watermark
	LastSeen       *models.Watermark
	Effective      models.Watermark
	// FreshFrom is the lower bound of the fresh query: the effective
	// watermark, raised to the retention floor when the floor is later.
	FreshFrom models.Watermark

	Kept      *models.Table
	Expired   int
	Requeried int
}

// Compute partitions prev at time now.
func Compute(prev *models.Table, now time.Time, opts Options) (Plan, error) {
	if opts.MaxHoursAgo < 0 {
		return Plan{}, apperr.Configuration("compute watermark", "max_hours_ago cannot be under 0, got %d", opts.MaxHoursAgo)
	}
	if prev == nil {
		return Plan{}, apperr.New(apperr.KindOutput, "compute watermark", "no previous export")
	}

	floor := window.RetentionFloor(now, opts.MaxHoursAgo, opts.FullDays)
	standard := window.StandardWatermark(now, opts.Hourly)

	plan := Plan{
		RetentionFloor: floor,
		Standard:       standard,
		Effective:      standard,
	}

	if opts.NonStrict {
		if maxTS, ok := prev.MaxEventMicros(); ok {
			unit := models.AlignHour
			if opts.FullDays {
				unit = models.AlignDay
			}
			lastSeen := models.Watermark(window.Align(maxTS/1_000_000, unit))
			plan.LastSeen = &lastSeen
			plan.Effective = max(lastSeen, standard)
		}
	}
	plan.FreshFrom = max(plan.Effective, models.Watermark(floor))

	floorMicros := models.Watermark(floor).Micros()
	cut := plan.Effective.Micros()
	kept := lo.Filter(prev.Records, func(r models.TriggerRecord, _ int) bool {
		return r.EventMicros >= floorMicros && r.EventMicros < cut
	})
	for _, r := range prev.Records {
		if r.EventMicros < floorMicros {
			plan.Expired++
		} else if r.EventMicros >= cut {
			plan.Requeried++
		}
	}
	plan.Kept = &models.Table{Header: prev.Header, TimeIndex: prev.TimeIndex, Records: kept}
	return plan, nil
}

// Combine unions the kept rows with fresh query rows, ordered by event time.
// The result uses fresh's header; fresh rows below FreshFrom are rejected.
func Combine(plan Plan, fresh *models.Table) models.MergeResult {
	var kept []models.TriggerRecord
	if plan.Kept != nil {
		kept = plan.Kept.Reorder(fresh.Header)
	}

	lower := plan.FreshFrom.Micros()
	accepted := lo.Filter(fresh.Records, func(r models.TriggerRecord, _ int) bool {
		return r.EventMicros >= lower
	})

	records := make([]models.TriggerRecord, 0, len(kept)+len(accepted))
	records = append(records, kept...)
	records = append(records, accepted...)
	Sort(records)

	return models.MergeResult{
		Header:   fresh.Header,
		Records:  records,
		Kept:     len(kept),
		Fresh:    len(accepted),
		Rejected: len(fresh.Records) - len(accepted),
	}
}

// Sort orders records by event time, keeping the relative order of ties.
func Sort(records []models.TriggerRecord) {
	slices.SortStableFunc(records, func(a, b models.TriggerRecord) int {
		switch {
		case a.EventMicros < b.EventMicros:
			return -1
		case a.EventMicros > b.EventMicros:
			return 1
		}
		return 0
	})
}
