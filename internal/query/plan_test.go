package query

import (
	"testing"

	"github.com/raphaelgruber/triggerexport/internal/apperr"
	"github.com/raphaelgruber/triggerexport/internal/models"
	"github.com/raphaelgruber/triggerexport/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProjection(t *testing.T, hourType string) schema.Projection {
	t.Helper()
	proj, err := schema.Build([]schema.Column{
		{Name: "start_time", Type: "bigint"},
		{Name: "client_address", Type: "string"},
		{Name: "policies", Type: "array<string>"},
		{Name: "answers", Type: "array<struct<name:string>>"},
		{Name: "hour", Type: hourType, Partition: true},
	}, schema.PoliciesColumn)
	require.NoError(t, err)
	return proj
}

func TestPlanSQLOpenWindow(t *testing.T) {
	p := Plan{
		Database:        "dns",
		Table:           "triggers",
		Projection:      testProjection(t, "bigint"),
		PartitionColumn: DefaultPartitionColumn,
		TimeColumn:      models.DefaultTimeColumn,
		Window:          models.TimeWindow{Start: 1612868400, Unit: models.AlignHour},
		TriggerValues:   []string{"sb-phishing-page-1", "o'brien"},
	}

	sql, err := p.SQL()
	require.NoError(t, err)

	want := `SELECT CAST("start_time" AS varchar) AS "start_time", CAST("client_address" AS varchar) AS "client_address", t.policy AS "policy", json_format(CAST("answers" AS json)) AS "answers", CAST("hour" AS varchar) AS "hour"
FROM "dns"."triggers"
CROSS JOIN UNNEST("policies") AS t(policy)
WHERE "hour" >= 1612868400
  AND "start_time" >= 1612868400000000
  AND "policies" IS NOT NULL
  AND t.policy IN ('sb-phishing-page-1', 'o''brien')
ORDER BY "start_time"`
	assert.Equal(t, want, sql)
}

func TestPlanSQLBoundedStringPartition(t *testing.T) {
	p := Plan{
		Database:        "dns",
		Table:           "triggers",
		Projection:      testProjection(t, "string"),
		PartitionColumn: DefaultPartitionColumn,
		TimeColumn:      models.DefaultTimeColumn,
		Window:          models.TimeWindow{Start: 1609286400, End: 1611100800, Unit: models.AlignDay},
		TriggerValues:   []string{"p"},
	}

	sql, err := p.SQL()
	require.NoError(t, err)

	assert.Contains(t, sql, `"hour" >= '1609286400'`)
	assert.Contains(t, sql, `"hour" < '1611100800'`)
	assert.Contains(t, sql, `"start_time" < 1611100800000000`)
}

func TestPlanValidate(t *testing.T) {
	base := Plan{
		Database:        "dns",
		Table:           "triggers",
		Projection:      testProjection(t, "bigint"),
		PartitionColumn: DefaultPartitionColumn,
		TimeColumn:      models.DefaultTimeColumn,
		TriggerValues:   []string{"p"},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Plan)
		kind   apperr.Kind
	}{
		{"no policies", func(p *Plan) { p.TriggerValues = nil }, apperr.KindConfiguration},
		{"no table", func(p *Plan) { p.Table = "" }, apperr.KindConfiguration},
		{"unknown partition column", func(p *Plan) { p.PartitionColumn = "dt" }, apperr.KindSchema},
		{"unknown time column", func(p *Plan) { p.TimeColumn = "ts" }, apperr.KindSchema},
		{"empty projection", func(p *Plan) { p.Projection = schema.Projection{} }, apperr.KindConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			_, err := p.SQL()
			assert.True(t, apperr.Is(err, tt.kind), "got %v", err)
		})
	}
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"we""ird"`, quoteIdent(`we"ird`))
}
