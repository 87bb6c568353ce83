package service

import (
	"time"

	"github.com/raphaelgruber/triggerexport/internal/metrics"
	"github.com/raphaelgruber/triggerexport/internal/models"
	"github.com/raphaelgruber/triggerexport/internal/storage"
)

// Report summarizes one export run. It is returned even when the run
// fails, populated as far as the run got.
type Report struct {
	Run         models.RunContext
	Mode        models.RunMode
	CompletedAt time.Time

	Window         models.TimeWindow
	Watermark      *models.Watermark
	PreviousExport string
	Query          models.QueryJob

	Rows      int
	Kept      int
	Fresh     int
	Rejected  int
	Expired   int
	Requeried int

	Output storage.Location
	Final  storage.Location
	Bytes  int
	// Warnings are housekeeping failures that did not fail the run.
	Warnings []error

	// Stages holds per-stage timings, set when the run ends.
	Stages metrics.Snapshot

	engineResult *storage.Location
	timings      *metrics.Collector
}

func newReport(run models.RunContext, mode models.RunMode) *Report {
	return &Report{Run: run, Mode: mode, timings: metrics.NewCollector(run.StartedAt)}
}

// Published reports whether the export was written.
func (r *Report) Published() bool {
	return r.Output.Key != ""
}

// RunRecord converts the report into a ledger row.
func (r *Report) RunRecord(runErr error) models.RunRecord {
	rec := models.RunRecord{
		RunID:          r.Run.ID,
		Mode:           r.Mode,
		Status:         models.RunStatusSucceeded,
		StartedAt:      r.Run.StartedAt,
		WindowStart:    r.Window.Start,
		KeptRows:       r.Kept,
		FreshRows:      r.Fresh,
		PreviousExport: r.PreviousExport,
		QueryID:        r.Query.ID,
	}
	if !r.CompletedAt.IsZero() {
		completed := r.CompletedAt
		rec.CompletedAt = &completed
	}
	if r.Watermark != nil {
		w := int64(*r.Watermark)
		rec.Watermark = &w
	}
	if r.Published() {
		rec.OutputKey = r.Final.String()
	}
	if runErr != nil {
		msg := runErr.Error()
		rec.Status = models.RunStatusFailed
		rec.Error = &msg
	}
	return rec
}
