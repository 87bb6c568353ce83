// Package query builds the trigger extraction query and runs it on the
// external SQL engine.
package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/raphaelgruber/triggerexport/internal/apperr"
	"github.com/raphaelgruber/triggerexport/internal/models"
	"github.com/raphaelgruber/triggerexport/internal/schema"
)

// DefaultPartitionColumn is the hourly epoch partition key of the source table.
const DefaultPartitionColumn = "hour"

const unnestAlias = "t"

// Plan is the structured form of a trigger extraction query.
type Plan struct {
	Database        string
	Table           string
	Projection      schema.Projection
	PartitionColumn string
	TimeColumn      string
	Window          models.TimeWindow
	TriggerValues   []string
}

// Validate checks that the plan can be rendered.
func (p Plan) Validate() error {
	switch {
	case p.Database == "" || p.Table == "":
		return apperr.Configuration("build query", "database and table are required")
	case len(p.Projection.Fields) == 0:
		return apperr.Configuration("build query", "empty projection")
	case p.Projection.Trigger().Source == "":
		return apperr.New(apperr.KindSchema, "build query", "projection has no trigger column")
	case len(p.TriggerValues) == 0:
		return apperr.Configuration("build query", "no target policies given")
	case p.PartitionColumn == "" || p.TimeColumn == "":
		return apperr.Configuration("build query", "partition and time columns are required")
	}
	if p.partitionField() == nil {
		return apperr.New(apperr.KindSchema, "build query", "partition column %q not in table", p.PartitionColumn)
	}
	if p.field(p.TimeColumn) == nil {
		return apperr.New(apperr.KindSchema, "build query", "time column %q not in table", p.TimeColumn)
	}
	return nil
}

// SQL renders the plan as Athena (Trino) SQL.
func (p Plan) SQL() (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	trigger := p.Projection.Trigger()
	selects := make([]string, len(p.Projection.Fields))
	for i, f := range p.Projection.Fields {
		selects[i] = renderField(f) + " AS " + quoteIdent(f.Alias)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(selects, ", "))
	fmt.Fprintf(&b, "\nFROM %s.%s", quoteIdent(p.Database), quoteIdent(p.Table))
	fmt.Fprintf(&b, "\nCROSS JOIN UNNEST(%s) AS %s(%s)", quoteIdent(trigger.Source), unnestAlias, models.PolicyColumn)

	where := []string{
		p.partitionPredicate(">=", p.Window.Start),
	}
	if p.Window.Bounded() {
		where = append(where, p.partitionPredicate("<", p.Window.End))
	}
	timeCol := quoteIdent(p.TimeColumn)
	where = append(where, fmt.Sprintf("%s >= %d", timeCol, models.Watermark(p.Window.Start).Micros()))
	if p.Window.Bounded() {
		where = append(where, fmt.Sprintf("%s < %d", timeCol, models.Watermark(p.Window.End).Micros()))
	}
	where = append(where,
		quoteIdent(trigger.Source)+" IS NOT NULL",
		fmt.Sprintf("%s.%s IN (%s)", unnestAlias, models.PolicyColumn, quoteLiterals(p.TriggerValues)),
	)
	b.WriteString("\nWHERE ")
	b.WriteString(strings.Join(where, "\n  AND "))
	fmt.Fprintf(&b, "\nORDER BY %s", timeCol)
	return b.String(), nil
}

// partitionPredicate compares the partition key with an epoch second. String
// partition keys are compared as literals; epoch seconds share a digit count.
func (p Plan) partitionPredicate(op string, epoch int64) string {
	value := strconv.FormatInt(epoch, 10)
	if !isNumeric(p.partitionField().Type) {
		value = quoteLiteral(value)
	}
	return fmt.Sprintf("%s %s %s", quoteIdent(p.PartitionColumn), op, value)
}

func (p Plan) partitionField() *schema.Field {
	return p.field(p.PartitionColumn)
}

func (p Plan) field(name string) *schema.Field {
	for i := range p.Projection.Fields {
		if p.Projection.Fields[i].Source == name {
			return &p.Projection.Fields[i]
		}
	}
	return nil
}

func renderField(f schema.Field) string {
	switch f.Kind {
	case schema.FieldExplode:
		return unnestAlias + "." + models.PolicyColumn
	case schema.FieldFlatten:
		return fmt.Sprintf("json_format(CAST(%s AS json))", quoteIdent(f.Source))
	default:
		return fmt.Sprintf("CAST(%s AS varchar)", quoteIdent(f.Source))
	}
}

func isNumeric(typ string) bool {
	switch strings.ToLower(typ) {
	case "bigint", "int", "integer", "smallint", "tinyint":
		return true
	}
	return false
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quoteLiterals(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = quoteLiteral(v)
	}
	return strings.Join(quoted, ", ")
}
