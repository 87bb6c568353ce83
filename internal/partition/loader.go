// Package partition registers the hourly Hive partitions found in the data
// bucket that the catalog table does not know about yet.
package partition

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/triggerexport/internal/apperr"
	"github.com/raphaelgruber/triggerexport/internal/clock"
	"github.com/raphaelgruber/triggerexport/internal/config"
	"github.com/raphaelgruber/triggerexport/internal/models"
	"github.com/raphaelgruber/triggerexport/internal/query"
	"github.com/raphaelgruber/triggerexport/internal/storage"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// ProxySuffix marks subscriber directories holding proxy data.
const ProxySuffix = ".proxy/"

// MaxPartitionsPerStatement caps one ALTER TABLE statement.
const MaxPartitionsPerStatement = 100

// Levels are the directory keys below the data prefix, outermost first.
var Levels = []string{"subscriber", "year", "month", "day", "hour"}

// Deps are the collaborators of a Loader. Clock and Logger are optional.
type Deps struct {
	Engine query.Engine
	Store  storage.Store
	Clock  clock.Clock
	Logger *slog.Logger
}

// Loader compares the catalog's partitions with the data bucket layout.
type Loader struct {
	executor *query.Executor
	store    storage.Store
	clock    clock.Clock
	logger   *slog.Logger
}

// NewLoader wires a loader from deps.
func NewLoader(deps Deps) *Loader {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	return &Loader{
		executor: query.NewExecutor(deps.Engine, clk, logger),
		store:    deps.Store,
		clock:    clk,
		logger:   logger,
	}
}

// Executor exposes the query executor, e.g. to tune the poll interval.
func (l *Loader) Executor() *query.Executor {
	return l.executor
}

// Report summarizes one load-partitions run.
type Report struct {
	RunID       string
	StartedAt   time.Time
	CompletedAt time.Time
	Database    string
	Table       string
	DataType    string
	DryRun      bool

	Subscribers int
	// Registered counts partitions the catalog already listed.
	Registered int
	// Found counts hour directories in the data bucket.
	Found   int
	Missing []string
	Queries []models.QueryJob
	Cleaned int

	Warnings []error
}

// Load registers every missing partition. Raw DDL results are removed from
// the results location afterwards; cleanup failures are warnings only.
func (l *Loader) Load(ctx context.Context, opts config.PartitionOptions) (*Report, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: l.clock.Now(),
		Database:  opts.Database,
		Table:     opts.Table,
		DataType:  strings.ToLower(opts.DataType),
		DryRun:    opts.DryRun,
	}
	log := l.logger.With("run_id", report.RunID, "table", opts.Database+"."+opts.Table, "data_type", report.DataType)

	err := l.load(ctx, opts, report, log)
	report.CompletedAt = l.clock.Now()
	if err != nil {
		log.Error("partition load failed", "kind", apperr.KindOf(err).String(), "error", err)
		return report, err
	}
	log.Info("partition load finished",
		"registered", report.Registered,
		"found", report.Found,
		"added", len(report.Missing),
		"dry_run", report.DryRun,
		"elapsed", report.CompletedAt.Sub(report.StartedAt))
	return report, nil
}

func (l *Loader) load(ctx context.Context, opts config.PartitionOptions, report *Report, log *slog.Logger) error {
	results, err := storage.ParseLocation(opts.ResolvedResults())
	if err != nil {
		return apperr.Configuration("load partitions", "results_location: %v", err)
	}
	if err := l.store.CheckBucket(ctx, results.Bucket); err != nil {
		return apperr.Wrap(apperr.KindConfiguration, "check results bucket", err)
	}

	registered, err := l.registered(ctx, opts, report)
	if err != nil {
		return err
	}
	report.Registered = len(registered)
	log.Info("catalog partitions listed", "count", len(registered))

	found, subscribers, err := l.discover(ctx, opts, log)
	if err != nil {
		return err
	}
	report.Subscribers = subscribers
	report.Found = len(found)

	known := lo.SliceToMap(registered, func(p string) (string, struct{}) { return p, struct{}{} })
	missing := lo.Filter(found, func(p query.Partition, _ int) bool {
		_, ok := known[p.String()]
		return !ok
	})
	report.Missing = lo.Map(missing, func(p query.Partition, _ int) string { return p.String() })
	log.Info("partitions compared", "found", len(found), "missing", len(missing))

	if !opts.DryRun {
		for _, batch := range lo.Chunk(missing, MaxPartitionsPerStatement) {
			sql, err := query.AddPartitionsSQL(opts.Table, batch)
			if err != nil {
				return err
			}
			log.Debug("add partitions", "count", len(batch), "sql", sql)
			job, err := l.executor.Run(ctx, query.Request{
				SQL:            sql,
				Database:       opts.Database,
				OutputLocation: results.String(),
			}, opts.Timeout())
			report.Queries = append(report.Queries, job)
			if err != nil {
				return err
			}
		}
	}

	l.cleanup(ctx, results, report, log)
	return nil
}

// registered runs SHOW PARTITIONS and returns one normalized path per line
// of its result.
func (l *Loader) registered(ctx context.Context, opts config.PartitionOptions, report *Report) ([]string, error) {
	sql, err := query.ShowPartitionsSQL(opts.Table)
	if err != nil {
		return nil, err
	}
	job, err := l.executor.Run(ctx, query.Request{
		SQL:            sql,
		Database:       opts.Database,
		OutputLocation: opts.ResolvedResults(),
	}, opts.Timeout())
	report.Queries = append(report.Queries, job)
	if err != nil {
		return nil, err
	}

	loc, err := storage.ParseLocation(job.ResultLocation)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindOutput, "read partition list", err)
	}
	body, err := l.store.Get(ctx, loc)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindOutput, "read partition list", err)
	}
	defer body.Close()

	var partitions []string
	sc := bufio.NewScanner(body)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if p, err := query.ParsePartition(line); err == nil {
			line = p.String()
		}
		partitions = append(partitions, line)
	}
	if err := sc.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindOutput, "read partition list", fmt.Errorf("%s: %w", loc, err))
	}
	return partitions, nil
}

// discover walks subscriber/year/month/day/hour below the data prefix.
// Subscribers are walked concurrently; the result is sorted.
func (l *Loader) discover(ctx context.Context, opts config.PartitionOptions, log *slog.Logger) ([]query.Partition, int, error) {
	const op = "list data partitions"

	roots, err := l.store.Dirs(ctx, opts.DataBucket, opts.DataPrefix)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.KindOutput, op, err)
	}
	proxy := opts.Proxy()
	subscribers := lo.Filter(roots, func(dir string, _ int) bool {
		return strings.HasPrefix(strings.TrimPrefix(dir, opts.DataPrefix), Levels[0]+"=") &&
			strings.HasSuffix(dir, ProxySuffix) == proxy
	})
	log.Debug("subscriber directories", "total", len(roots), "selected", len(subscribers))

	var (
		mu    sync.Mutex
		found []query.Partition
	)
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(opts.Concurrency)
	for _, sub := range subscribers {
		group.Go(func() error {
			parts, err := l.walk(ctx, opts, sub, 0, log)
			if err != nil {
				return err
			}
			mu.Lock()
			found = append(found, parts...)
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, 0, apperr.Wrap(apperr.KindOutput, op, err)
	}

	slices.SortFunc(found, func(a, b query.Partition) int {
		return strings.Compare(a.String(), b.String())
	})
	return found, len(subscribers), nil
}

// walk descends from dir, which sits at Levels[level], to the hour
// directories. Directories not named <level>=<value>/ are skipped.
func (l *Loader) walk(ctx context.Context, opts config.PartitionOptions, dir string, level int, log *slog.Logger) ([]query.Partition, error) {
	name := path.Base(strings.TrimSuffix(dir, "/"))
	if !strings.HasPrefix(name, Levels[level]+"=") {
		log.Debug("skipping directory outside the partition layout", "dir", dir, "want", Levels[level])
		return nil, nil
	}
	if level == len(Levels)-1 {
		p, err := query.ParsePartition(strings.TrimPrefix(dir, opts.DataPrefix))
		if err != nil {
			return nil, err
		}
		return []query.Partition{p}, nil
	}

	children, err := l.store.Dirs(ctx, opts.DataBucket, dir)
	if err != nil {
		return nil, err
	}
	var out []query.Partition
	for _, child := range children {
		parts, err := l.walk(ctx, opts, child, level+1, log)
		if err != nil {
			return nil, err
		}
		out = append(out, parts...)
	}
	return out, nil
}

// cleanup deletes every object under the results location.
func (l *Loader) cleanup(ctx context.Context, results storage.Location, report *Report, log *slog.Logger) {
	objects, err := l.store.List(ctx, results.Bucket, results.Key)
	if err != nil {
		l.warn(report, log, apperr.Wrap(apperr.KindHousekeeping, "clean results", err))
		return
	}
	for _, o := range objects {
		loc := storage.Location{Bucket: results.Bucket, Key: o.Key}
		if err := l.store.Delete(ctx, loc); err != nil {
			l.warn(report, log, apperr.Wrap(apperr.KindHousekeeping, "clean results", err))
			continue
		}
		report.Cleaned++
	}
	log.Info("results cleaned", "location", results.String(), "deleted", report.Cleaned)
}

func (l *Loader) warn(report *Report, log *slog.Logger, err error) {
	report.Warnings = append(report.Warnings, err)
	log.Warn("housekeeping failed", "error", err)
}
