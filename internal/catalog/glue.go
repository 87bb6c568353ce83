// Package catalog reads table definitions from the AWS Glue Data Catalog.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/glue/types"
	"github.com/raphaelgruber/triggerexport/internal/schema"
)

// Sentinel errors for catalog lookups.
var (
	// ErrNotFound indicates the database or table does not exist.
	ErrNotFound = errors.New("catalog entry not found")

	// ErrAccessDenied indicates the caller may not read the entry.
	ErrAccessDenied = errors.New("catalog access denied")
)

// GlueAPI is the subset of the Glue client used here.
type GlueAPI interface {
	GetDatabase(ctx context.Context, params *glue.GetDatabaseInput, optFns ...func(*glue.Options)) (*glue.GetDatabaseOutput, error)
	GetTable(ctx context.Context, params *glue.GetTableInput, optFns ...func(*glue.Options)) (*glue.GetTableOutput, error)
}

// Glue implements schema.Catalog on top of the Glue Data Catalog.
type Glue struct {
	api    GlueAPI
	logger *slog.Logger
}

// NewGlue creates a catalog backed by api.
func NewGlue(api GlueAPI, logger *slog.Logger) *Glue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Glue{api: api, logger: logger}
}

// Columns returns the storage columns followed by the partition keys.
func (g *Glue) Columns(ctx context.Context, database, table string) ([]schema.Column, error) {
	out, err := g.api.GetTable(ctx, &glue.GetTableInput{
		DatabaseName: aws.String(database),
		Name:         aws.String(table),
	})
	if err != nil {
		return nil, fmt.Errorf("get table %s.%s: %w", database, table, wrapGlueError(err))
	}
	if out.Table == nil {
		return nil, fmt.Errorf("get table %s.%s: %w", database, table, ErrNotFound)
	}

	var cols []schema.Column
	if sd := out.Table.StorageDescriptor; sd != nil {
		for _, c := range sd.Columns {
			cols = append(cols, schema.Column{Name: aws.ToString(c.Name), Type: aws.ToString(c.Type)})
		}
	}
	for _, c := range out.Table.PartitionKeys {
		cols = append(cols, schema.Column{Name: aws.ToString(c.Name), Type: aws.ToString(c.Type), Partition: true})
	}

	g.logger.Debug("fetched table schema", "database", database, "table", table, "columns", len(cols))
	return cols, nil
}

// CheckDatabase verifies the database exists and is readable.
func (g *Glue) CheckDatabase(ctx context.Context, database string) error {
	if _, err := g.api.GetDatabase(ctx, &glue.GetDatabaseInput{Name: aws.String(database)}); err != nil {
		return fmt.Errorf("verify database %s: %w", database, wrapGlueError(err))
	}
	return nil
}

// CheckTable verifies the table or view exists and is readable.
func (g *Glue) CheckTable(ctx context.Context, database, table string) error {
	_, err := g.api.GetTable(ctx, &glue.GetTableInput{
		DatabaseName: aws.String(database),
		Name:         aws.String(table),
	})
	if err != nil {
		return fmt.Errorf("verify table %s.%s: %w", database, table, wrapGlueError(err))
	}
	return nil
}

// wrapGlueError maps Glue exceptions to the package sentinels.
func wrapGlueError(err error) error {
	var notFound *types.EntityNotFoundException
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, aws.ToString(notFound.Message))
	}
	var denied *types.AccessDeniedException
	if errors.As(err, &denied) {
		return fmt.Errorf("%w: %s", ErrAccessDenied, aws.ToString(denied.Message))
	}
	return err
}
