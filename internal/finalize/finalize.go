// Package finalize persists a merged export and runs the cleanup steps that
// follow it.
//
// Write is authoritative: once it succeeds the run has produced its output.
// Rename and metadata deletion are housekeeping layered on top. Their
// failures are collected as warnings and never remove the written export.
package finalize

import (
	"context"
	"log/slog"
	"path"

	"github.com/raphaelgruber/triggerexport/internal/apperr"
	"github.com/raphaelgruber/triggerexport/internal/export"
	"github.com/raphaelgruber/triggerexport/internal/models"
	"github.com/raphaelgruber/triggerexport/internal/storage"
)

// ContentType is stored with every export object.
const ContentType = "text/csv; charset=utf-8"

// MetadataSuffix is appended by the query engine to its result side file.
const MetadataSuffix = ".metadata"

// RenameOptions controls the optional copy of the written export.
type RenameOptions struct {
	// Filename is the new base name. Empty disables renaming.
	Filename string
	// KeepOriginal leaves the written object in place next to the copy.
	KeepOriginal bool
	// DontPreserveDir places the copy at the bucket root instead of OutputDir.
	DontPreserveDir bool
	OutputDir       string
}

// Request describes everything Finalize does for one run.
type Request struct {
	Output storage.Location
	Table  *models.Table
	Rename RenameOptions
	// EngineResult, when set with DeleteMetadata, names the engine result
	// whose metadata side file is removed.
	EngineResult   *storage.Location
	DeleteMetadata bool
}

// Report summarizes a finalize pass.
type Report struct {
	Written storage.Location
	Bytes   int
	// Final is where the export ended up, after an optional rename.
	Final    storage.Location
	Renamed  bool
	Warnings []error
}

// Finalizer writes exports to a Store.
type Finalizer struct {
	store  storage.Store
	logger *slog.Logger
}

// New creates a finalizer on store.
func New(store storage.Store, logger *slog.Logger) *Finalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Finalizer{store: store, logger: logger}
}

// Finalize writes the table and applies the requested housekeeping.
// Only a failed write returns an error.
func (f *Finalizer) Finalize(ctx context.Context, req Request) (Report, error) {
	n, err := f.Write(ctx, req.Output, req.Table)
	if err != nil {
		return Report{}, err
	}
	report := Report{Written: req.Output, Bytes: n, Final: req.Output}

	if req.Rename.Filename != "" {
		dst, err := f.Rename(ctx, req.Output, req.Rename)
		if err != nil {
			f.logger.Warn("rename incomplete", "location", req.Output.String(), "error", err)
			report.Warnings = append(report.Warnings, err)
		}
		if dst.Key != "" {
			report.Final = dst
			report.Renamed = true
		}
	}

	if req.DeleteMetadata && req.EngineResult != nil {
		if err := f.DeleteMetadata(ctx, *req.EngineResult); err != nil {
			f.logger.Warn("metadata cleanup failed", "location", req.EngineResult.String(), "error", err)
			report.Warnings = append(report.Warnings, err)
		}
	}

	return report, nil
}

// Write renders table as CSV and stores it at loc, returning the byte count.
func (f *Finalizer) Write(ctx context.Context, loc storage.Location, table *models.Table) (int, error) {
	if table == nil || len(table.Header) == 0 {
		return 0, apperr.New(apperr.KindOutput, "write export", "nothing to write to %s", loc)
	}
	body, err := export.Encode(table)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindOutput, "encode export", err)
	}
	if len(body) == 0 {
		return 0, apperr.New(apperr.KindOutput, "write export", "empty body for %s", loc)
	}
	if err := f.store.Put(ctx, loc, body, ContentType); err != nil {
		return 0, apperr.Wrap(apperr.KindOutput, "write export", err)
	}

	f.logger.Info("export written", "location", loc.String(), "rows", table.Len(), "bytes", len(body))
	return len(body), nil
}

// Rename copies written to its new name and deletes the original unless
// KeepOriginal is set.
func (f *Finalizer) Rename(ctx context.Context, written storage.Location, opts RenameOptions) (storage.Location, error) {
	dst := storage.Location{Bucket: written.Bucket, Key: opts.Filename}
	if !opts.DontPreserveDir && opts.OutputDir != "" {
		dst.Key = path.Join(opts.OutputDir, opts.Filename)
	}
	if dst == written {
		return dst, nil
	}

	if err := f.store.Copy(ctx, written, dst); err != nil {
		return storage.Location{}, apperr.Wrap(apperr.KindHousekeeping, "rename export", err)
	}
	if !opts.KeepOriginal {
		if err := f.store.Delete(ctx, written); err != nil {
			return dst, apperr.Wrap(apperr.KindHousekeeping, "remove renamed original", err)
		}
	}

	f.logger.Info("export renamed", "from", written.String(), "to", dst.String(), "kept_original", opts.KeepOriginal)
	return dst, nil
}

// DeleteMetadata removes the engine's metadata side file for result.
func (f *Finalizer) DeleteMetadata(ctx context.Context, result storage.Location) error {
	meta := storage.Location{Bucket: result.Bucket, Key: result.Key + MetadataSuffix}
	if err := f.store.Delete(ctx, meta); err != nil {
		return apperr.Wrap(apperr.KindHousekeeping, "delete engine metadata", err)
	}
	f.logger.Debug("engine metadata deleted", "location", meta.String())
	return nil
}
