package service

import (
	"context"

	"github.com/raphaelgruber/triggerexport/internal/apperr"
	"github.com/raphaelgruber/triggerexport/internal/config"
	"golang.org/x/sync/errgroup"
)

// Validate checks that the database, table and buckets named in opts exist
// and are reachable. The checks run concurrently; the first failure wins.
func (e *Exporter) Validate(ctx context.Context, opts config.JobOptions) error {
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return e.catalog.CheckDatabase(ctx, opts.Database)
	})
	group.Go(func() error {
		return e.catalog.CheckTable(ctx, opts.Database, opts.Table)
	})

	buckets := []string{opts.ResolvedOutputBucket()}
	if opts.InputBucket != "" && opts.InputBucket != buckets[0] {
		buckets = append(buckets, opts.InputBucket)
	}
	for _, bucket := range buckets {
		group.Go(func() error {
			return e.store.CheckBucket(ctx, bucket)
		})
	}

	if err := group.Wait(); err != nil {
		return apperr.Wrap(apperr.KindConfiguration, "validate resources", err)
	}
	e.logger.Debug("resources validated", "database", opts.Database, "table", opts.Table, "buckets", buckets)
	return nil
}
