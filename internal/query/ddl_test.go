package query

import (
	"testing"

	"github.com/raphaelgruber/triggerexport/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePartition(t *testing.T) {
	p, err := ParsePartition("subscriber=acme/year=2021/month=02/day=09/hour=11\n")
	require.NoError(t, err)
	require.Len(t, p, 5)
	assert.Equal(t, PartitionValue{Key: "subscriber", Value: "acme"}, p[0])
	assert.Equal(t, PartitionValue{Key: "hour", Value: "11"}, p[4])
	assert.Equal(t, "subscriber=acme/year=2021/month=02/day=09/hour=11", p.String())

	_, err = ParsePartition("")
	assert.Error(t, err)
	_, err = ParsePartition("subscriber=acme/2021")
	assert.Error(t, err)
}

func TestShowPartitionsSQL(t *testing.T) {
	sql, err := ShowPartitionsSQL("shepherd_dns")
	require.NoError(t, err)
	assert.Equal(t, "SHOW PARTITIONS `shepherd_dns`", sql)

	_, err = ShowPartitionsSQL("bad`name")
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
}

func TestAddPartitionsSQL(t *testing.T) {
	a, _ := ParsePartition("subscriber=acme/year=2021/month=02/day=09/hour=11")
	b, _ := ParsePartition("subscriber=beta/year=2021/month=02/day=09/hour=12")

	sql, err := AddPartitionsSQL("shepherd_dns", []Partition{a, b})
	require.NoError(t, err)
	assert.Equal(t, "ALTER TABLE `shepherd_dns` ADD IF NOT EXISTS\n"+
		"  PARTITION (`subscriber` = 'acme', `year` = '2021', `month` = '02', `day` = '09', `hour` = '11')\n"+
		"  PARTITION (`subscriber` = 'beta', `year` = '2021', `month` = '02', `day` = '09', `hour` = '12')", sql)
}

func TestAddPartitionsSQLRejects(t *testing.T) {
	good, _ := ParsePartition("subscriber=acme/hour=11")
	tests := []struct {
		name       string
		table      string
		partitions []Partition
	}{
		{"no partitions", "t", nil},
		{"empty partition", "t", []Partition{{}}},
		{"quote in value", "t", []Partition{{{Key: "subscriber", Value: "o'neil"}}}},
		{"backslash in value", "t", []Partition{{{Key: "subscriber", Value: `a\b`}}}},
		{"backtick in key", "t", []Partition{{{Key: "sub`x", Value: "a"}}}},
		{"empty table", "", []Partition{good}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := AddPartitionsSQL(tt.table, tt.partitions)
			assert.True(t, apperr.Is(err, apperr.KindConfiguration))
		})
	}
}
