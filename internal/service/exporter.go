// Package service orchestrates full and incremental trigger exports.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/raphaelgruber/triggerexport/internal/apperr"
	"github.com/raphaelgruber/triggerexport/internal/clock"
	"github.com/raphaelgruber/triggerexport/internal/config"
	"github.com/raphaelgruber/triggerexport/internal/export"
	"github.com/raphaelgruber/triggerexport/internal/finalize"
	"github.com/raphaelgruber/triggerexport/internal/hashkey"
	"github.com/raphaelgruber/triggerexport/internal/merge"
	"github.com/raphaelgruber/triggerexport/internal/metrics"
	"github.com/raphaelgruber/triggerexport/internal/models"
	"github.com/raphaelgruber/triggerexport/internal/query"
	"github.com/raphaelgruber/triggerexport/internal/schema"
	"github.com/raphaelgruber/triggerexport/internal/storage"
	"github.com/raphaelgruber/triggerexport/internal/window"
)

// ExportSuffix selects previous-export candidates.
const ExportSuffix = ".csv"

// Catalog reads table schemas and checks that catalog entries exist.
type Catalog interface {
	schema.Catalog
	CheckDatabase(ctx context.Context, database string) error
	CheckTable(ctx context.Context, database, table string) error
}

// Ledger records finished runs.
type Ledger interface {
	RecordRun(ctx context.Context, rec models.RunRecord) (string, error)
}

// Deps are the collaborators of an Exporter. Ledger and Clock are optional.
type Deps struct {
	Catalog Catalog
	Engine  query.Engine
	Store   storage.Store
	Clock   clock.Clock
	Ledger  Ledger
	// ResultsLocation is the s3:// prefix the engine writes results under.
	ResultsLocation string
	Logger          *slog.Logger
}

// Exporter runs export jobs. One Exporter may serve many runs; every run
// gets its own RunContext.
type Exporter struct {
	catalog   Catalog
	resolver  *schema.Resolver
	executor  *query.Executor
	store     storage.Store
	finalizer *finalize.Finalizer
	clock     clock.Clock
	ledger    Ledger
	results   string
	logger    *slog.Logger
}

// NewExporter wires an exporter from deps.
func NewExporter(deps Deps) *Exporter {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	return &Exporter{
		catalog:   deps.Catalog,
		resolver:  schema.NewResolver(deps.Catalog, logger),
		executor:  query.NewExecutor(deps.Engine, clk, logger),
		store:     deps.Store,
		finalizer: finalize.New(deps.Store, logger),
		clock:     clk,
		ledger:    deps.Ledger,
		results:   deps.ResultsLocation,
		logger:    logger,
	}
}

// Executor exposes the query executor, e.g. to tune the poll interval.
func (e *Exporter) Executor() *query.Executor {
	return e.executor
}

// Full exports every matching trigger in the configured window.
func (e *Exporter) Full(ctx context.Context, opts config.JobOptions) (*Report, error) {
	if err := opts.Validate(models.RunModeFull); err != nil {
		return nil, err
	}
	run := models.NewRunContext(e.clock.Now(), opts.OutputDir)
	report := newReport(run, models.RunModeFull)
	log := e.logger.With("run_id", run.ID, "mode", string(models.RunModeFull))

	err := e.full(ctx, opts, report, log)
	e.record(ctx, report, err, log)
	if err != nil {
		return report, err
	}
	return report, nil
}

func (e *Exporter) full(ctx context.Context, opts config.JobOptions, report *Report, log *slog.Logger) error {
	if opts.Preflight {
		if err := e.Validate(ctx, opts); err != nil {
			return err
		}
	}

	spec, err := opts.WindowSpec()
	if err != nil {
		return err
	}
	planned, err := window.Plan(spec, report.Run.StartedAt)
	if err != nil {
		return err
	}
	for _, w := range planned.Warnings {
		log.Warn(w)
	}
	report.Window = planned.Window
	log.Info("window planned", "window", planned.Window.String())

	fresh, err := e.extract(ctx, opts, planned.Window, report, log)
	if err != nil {
		return err
	}
	merge.Sort(fresh.Records)
	report.Fresh = fresh.Len()

	return e.publish(ctx, opts, fresh, report, log)
}

// Incremental updates the newest previous export: rows still inside the
// retention window are kept, and everything from the watermark on is
// queried again.
func (e *Exporter) Incremental(ctx context.Context, opts config.JobOptions) (*Report, error) {
	if err := opts.Validate(models.RunModeIncremental); err != nil {
		return nil, err
	}
	run := models.NewRunContext(e.clock.Now(), opts.OutputDir)
	report := newReport(run, models.RunModeIncremental)
	log := e.logger.With("run_id", run.ID, "mode", string(models.RunModeIncremental))

	err := e.incremental(ctx, opts, report, log)
	e.record(ctx, report, err, log)
	if err != nil {
		return report, err
	}
	return report, nil
}

func (e *Exporter) incremental(ctx context.Context, opts config.JobOptions, report *Report, log *slog.Logger) error {
	if opts.Preflight {
		if err := e.Validate(ctx, opts); err != nil {
			return err
		}
	}
	spec, err := opts.WindowSpec()
	if err != nil {
		return err
	}
	retention, err := window.Plan(spec, report.Run.StartedAt)
	if err != nil {
		return err
	}
	for _, w := range retention.Warnings {
		log.Warn(w)
	}
	report.Window = retention.Window

	done := e.stage(report, metrics.StageLoadPrevious)
	prev, loc, err := e.loadPrevious(ctx, opts)
	done()
	if err != nil {
		return err
	}
	report.PreviousExport = loc.String()
	log.Info("previous export loaded", "location", loc.String(), "rows", prev.Len())

	plan, err := merge.Compute(prev, report.Run.StartedAt, merge.Options{
		Hourly:      opts.Hourly,
		NonStrict:   opts.NonStrict,
		MaxHoursAgo: *opts.MaxHoursAgo,
		FullDays:    opts.FullDays,
	})
	if err != nil {
		return err
	}
	report.Watermark = &plan.Effective
	report.Kept = plan.Kept.Len()
	report.Expired = plan.Expired
	report.Requeried = plan.Requeried

	attrs := []any{
		"retention_floor", plan.RetentionFloor,
		"standard", int64(plan.Standard),
		"watermark", int64(plan.Effective),
		"fresh_from", int64(plan.FreshFrom),
		"kept", plan.Kept.Len(),
		"expired", plan.Expired,
		"requeried", plan.Requeried,
	}
	if plan.LastSeen != nil {
		attrs = append(attrs, "last_seen", int64(*plan.LastSeen))
	}
	log.Info("watermark computed", attrs...)

	freshWindow := models.TimeWindow{Start: int64(plan.FreshFrom), Unit: models.AlignHour}
	fresh, err := e.extract(ctx, opts, freshWindow, report, log)
	if err != nil {
		return err
	}

	result := merge.Combine(plan, fresh)
	if result.Rejected > 0 {
		log.Warn("engine returned rows below the watermark, dropped", "rejected", result.Rejected, "fresh_from", int64(plan.FreshFrom))
	}
	report.Fresh = result.Fresh
	report.Rejected = result.Rejected

	return e.publish(ctx, opts, result.Table(opts.TimeColumn), report, log)
}

// loadPrevious locates and parses the newest previous export.
func (e *Exporter) loadPrevious(ctx context.Context, opts config.JobOptions) (*models.Table, storage.Location, error) {
	const op = "load previous export"

	exclude, err := e.resultsExclusion(opts.InputBucket)
	if err != nil {
		return nil, storage.Location{}, err
	}
	obj, err := storage.Latest(ctx, e.store, opts.InputBucket, opts.InputPrefix, ExportSuffix, exclude...)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, storage.Location{}, apperr.New(apperr.KindOutput, op, "no previous export under s3://%s/%s", opts.InputBucket, opts.InputPrefix)
	}
	if err != nil {
		return nil, storage.Location{}, apperr.Wrap(apperr.KindOutput, op, err)
	}

	loc := storage.Location{Bucket: opts.InputBucket, Key: obj.Key}
	table, err := e.readTable(ctx, loc, opts.TimeColumn)
	if err != nil {
		return nil, loc, apperr.Wrap(apperr.KindOutput, op, err)
	}
	return table, loc, nil
}

// resultsExclusion returns the key prefix of raw engine results when they
// are staged in bucket. A run that fails after its query leaves its raw
// result behind; it must never be read as a previous export.
func (e *Exporter) resultsExclusion(bucket string) ([]string, error) {
	if e.results == "" {
		return nil, nil
	}
	results, err := storage.ParseLocation(e.results)
	if err != nil {
		return nil, apperr.Configuration("load previous export", "engine results location: %v", err)
	}
	if results.Bucket != bucket {
		return nil, nil
	}
	if results.Key == "" {
		return nil, apperr.Configuration("load previous export",
			"engine results %s must not be the root of input bucket %s", e.results, bucket)
	}
	prefix := results.Key
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return []string{prefix}, nil
}

// extract resolves the schema, runs the trigger query over w and reads the
// engine result.
func (e *Exporter) extract(ctx context.Context, opts config.JobOptions, w models.TimeWindow, report *Report, log *slog.Logger) (*models.Table, error) {
	done := e.stage(report, metrics.StageResolveSchema)
	projection, err := e.resolver.Resolve(ctx, opts.Database, opts.Table, opts.TriggerColumn())
	done()
	if err != nil {
		return nil, err
	}

	plan := query.Plan{
		Database:        opts.Database,
		Table:           opts.Table,
		Projection:      projection,
		PartitionColumn: opts.PartitionColumn,
		TimeColumn:      opts.TimeColumn,
		Window:          w,
		TriggerValues:   opts.TargetPolicies(),
	}
	sql, err := plan.SQL()
	if err != nil {
		return nil, err
	}
	log.Debug("query built", "sql", sql)

	done = e.stage(report, metrics.StageQuery)
	job, err := e.executor.Run(ctx, query.Request{
		SQL:            sql,
		Database:       opts.Database,
		OutputLocation: e.results,
	}, opts.Timeout())
	done()
	report.Query = job
	report.timings.RecordBytes(metrics.StageQuery, job.Stats.DataScannedBytes)
	if err != nil {
		return nil, err
	}

	loc, err := storage.ParseLocation(job.ResultLocation)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindOutput, "read query result", err)
	}
	report.engineResult = &loc

	done = e.stage(report, metrics.StageReadResult)
	table, err := e.readTable(ctx, loc, opts.TimeColumn)
	done()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindOutput, "read query result", err)
	}
	log.Info("query result read", "rows", table.Len(), "location", loc.String())
	return table, nil
}

func (e *Exporter) readTable(ctx context.Context, loc storage.Location, timeColumn string) (*models.Table, error) {
	body, err := e.store.Get(ctx, loc)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	table, err := export.ReadTable(body, timeColumn)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", loc, err)
	}
	return table, nil
}

// publish writes the export and runs the requested housekeeping.
func (e *Exporter) publish(ctx context.Context, opts config.JobOptions, table *models.Table, report *Report, log *slog.Logger) error {
	out := OutputLocation(opts, report.Run, report.Query.ID)
	done := e.stage(report, metrics.StagePublish)
	defer done()
	fin, err := e.finalizer.Finalize(ctx, finalize.Request{
		Output: out,
		Table:  table,
		Rename: finalize.RenameOptions{
			Filename:        opts.OutputFilename,
			KeepOriginal:    opts.KeepOrigOnRename,
			DontPreserveDir: opts.DontPreserveOutputDir,
			OutputDir:       report.Run.OutputDir,
		},
		EngineResult:   report.engineResult,
		DeleteMetadata: opts.DeleteMetadataFile,
	})
	if err != nil {
		return err
	}

	report.Rows = table.Len()
	report.Output = fin.Written
	report.Final = fin.Final
	report.Bytes = fin.Bytes
	report.timings.RecordBytes(metrics.StagePublish, int64(fin.Bytes))
	report.Warnings = append(report.Warnings, fin.Warnings...)
	log.Info("export published", "location", fin.Final.String(), "rows", report.Rows, "warnings", len(fin.Warnings))
	return nil
}

// OutputLocation is <output_bucket>/<output_dir>[/<subscriber hash>]/<query id>.csv.
// The hash segment is present when a subscriber identity is configured.
func OutputLocation(opts config.JobOptions, run models.RunContext, queryID string) storage.Location {
	dir := run.OutputDir
	if opts.HasIdentity() {
		dir = path.Join(dir, hashkey.Derive(hashkey.Identity{
			Salt:       opts.Salt,
			Ordinal:    opts.Ordinal,
			Subscriber: opts.Subscriber,
			Receiver:   opts.Receiver,
		}))
	}
	name := queryID
	if name == "" {
		name = run.ID
	}
	return storage.Location{Bucket: opts.ResolvedOutputBucket(), Key: path.Join(dir, name+ExportSuffix)}
}

// stage starts timing a pipeline stage; call the returned func when it ends.
func (e *Exporter) stage(report *Report, name string) func() {
	start := e.clock.Now()
	return func() {
		report.timings.RecordTiming(name, e.clock.Now().Sub(start))
	}
}

// record stores the run in the ledger. Failures are logged only.
func (e *Exporter) record(ctx context.Context, report *Report, runErr error, log *slog.Logger) {
	completed := e.clock.Now()
	report.CompletedAt = completed
	report.Stages = report.timings.Snapshot(completed)
	if runErr != nil {
		log.Error("export failed", "kind", apperr.KindOf(runErr).String(), "error", runErr)
	} else {
		log.Info("export finished", "elapsed_seconds", report.Stages.ElapsedSeconds, "rows", report.Rows)
	}
	if e.ledger == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if _, err := e.ledger.RecordRun(ctx, report.RunRecord(runErr)); err != nil {
		log.Warn("failed to record run in ledger", "error", err)
	}
}
