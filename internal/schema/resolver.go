// Package schema turns a catalog table description into the typed projection
// used by the trigger extraction query.
package schema

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/raphaelgruber/triggerexport/internal/apperr"
	"github.com/raphaelgruber/triggerexport/internal/models"
)

// Trigger column names, selected by the policies / parent_policies options.
const (
	PoliciesColumn       = "policies"
	ParentPoliciesColumn = "parent_policies"
)

// Column is one catalog column.
type Column struct {
	Name      string
	Type      string
	Partition bool
}

// Catalog fetches live table definitions.
type Catalog interface {
	// Columns returns data columns followed by partition keys, in catalog order.
	Columns(ctx context.Context, database, table string) ([]Column, error)
}

// FieldKind says how a column is rendered into the output.
type FieldKind int

const (
	// FieldCast casts a scalar column to a string.
	FieldCast FieldKind = iota
	// FieldFlatten renders a map/struct column as a flattened string.
	FieldFlatten
	// FieldExplode emits one row per element of an array column.
	FieldExplode
)

func (k FieldKind) String() string {
	switch k {
	case FieldFlatten:
		return "flatten"
	case FieldExplode:
		return "explode"
	default:
		return "cast"
	}
}

// Field is one output column of the projection.
type Field struct {
	Source string
	Alias  string
	Type   string
	Kind   FieldKind
}

// Projection is the validated, ordered list of output fields.
type Projection struct {
	Fields []Field
}

// Header returns the output column names in order.
func (p Projection) Header() []string {
	header := make([]string, len(p.Fields))
	for i, f := range p.Fields {
		header[i] = f.Alias
	}
	return header
}

// Trigger returns the exploded field.
func (p Projection) Trigger() Field {
	for _, f := range p.Fields {
		if f.Kind == FieldExplode {
			return f
		}
	}
	return Field{}
}

// Resolver builds projections from a Catalog.
type Resolver struct {
	catalog Catalog
	logger  *slog.Logger
}

// NewResolver creates a resolver backed by catalog.
func NewResolver(catalog Catalog, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{catalog: catalog, logger: logger}
}

// Resolve fetches the table's columns and builds the projection, replacing
// triggerColumn in place with an explode expression aliased "policy".
func (r *Resolver) Resolve(ctx context.Context, database, table, triggerColumn string) (Projection, error) {
	cols, err := r.catalog.Columns(ctx, database, table)
	if err != nil {
		return Projection{}, fmt.Errorf("fetch columns for %s.%s: %w", database, table, err)
	}
	proj, err := Build(cols, triggerColumn)
	if err != nil {
		return Projection{}, err
	}
	r.logger.Debug("resolved projection",
		"database", database,
		"table", table,
		"columns", len(cols),
		"trigger", triggerColumn)
	return proj, nil
}

// Build validates cols and derives the projection.
// Exactly one column must be named triggerColumn.
func Build(cols []Column, triggerColumn string) (Projection, error) {
	if triggerColumn != PoliciesColumn && triggerColumn != ParentPoliciesColumn {
		return Projection{}, apperr.Configuration("resolve schema", "unsupported trigger column %q", triggerColumn)
	}

	matches := 0
	for _, c := range cols {
		if c.Name == triggerColumn {
			matches++
		}
	}
	if matches != 1 {
		return Projection{}, apperr.New(apperr.KindSchema, "resolve schema",
			"found %d columns named %s, want exactly 1 (schema: %s)", matches, triggerColumn, describe(cols))
	}

	fields := make([]Field, 0, len(cols))
	for _, c := range cols {
		f := Field{Source: c.Name, Alias: c.Name, Type: c.Type, Kind: FieldCast}
		switch {
		case c.Name == triggerColumn:
			f.Alias = models.PolicyColumn
			f.Kind = FieldExplode
		case IsNested(c.Type):
			f.Kind = FieldFlatten
		}
		fields = append(fields, f)
	}
	return Projection{Fields: fields}, nil
}

// IsNested reports whether a Hive type string describes a map or struct,
// including arrays of them.
func IsNested(typ string) bool {
	t := strings.ToLower(typ)
	return strings.Contains(t, "map") || strings.Contains(t, "struct")
}

func describe(cols []Column) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = c.Name + ":" + c.Type
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
