package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/raphaelgruber/triggerexport/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const engineResult = `"start_time","client_address","dns_question_name","policy"
"1612304100000000","10.2.3.4","login.example-bank.biz","sb-phishing-page-1"
"1612304100000000","10.2.3.4","login.example-bank.biz","sb-infected-page-1"
`

func TestReadTable(t *testing.T) {
	table, err := ReadTable(strings.NewReader(engineResult), models.DefaultTimeColumn)
	require.NoError(t, err)

	assert.Equal(t, []string{"start_time", "client_address", "dns_question_name", "policy"}, table.Header)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, int64(1612304100000000), table.Records[0].EventMicros)
	assert.Equal(t, "sb-infected-page-1", table.Records[1].Fields[3])
}

func TestReadTableErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", "empty"},
		{"missing time column", "\"a\",\"b\"\n", "time column"},
		{"bad timestamp", "\"start_time\"\n\"yesterday\"\n", "line 2"},
		{"ragged row", "\"start_time\",\"x\"\n\"1\"\n", "fields"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadTable(strings.NewReader(tt.input), models.DefaultTimeColumn)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReadTableStripsBOM(t *testing.T) {
	table, err := ReadTable(strings.NewReader("\ufeffstart_time,policy\n5,p\n"), models.DefaultTimeColumn)
	require.NoError(t, err)
	assert.Equal(t, "start_time", table.Header[0])
}

func TestWriteTableQuotesEveryField(t *testing.T) {
	table, err := models.NewTable([]string{"start_time", "dns_question_name", "policy"}, models.DefaultTimeColumn)
	require.NoError(t, err)
	require.NoError(t, table.Append([]string{"1", `say "hi", bye`, "p"}))
	require.NoError(t, table.Append([]string{"2", "", "ünïcode"}))

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, table))

	want := `"start_time","dns_question_name","policy"
"1","say ""hi"", bye","p"
"2","","ünïcode"
`
	assert.Equal(t, want, buf.String())

	again, err := ReadTable(&buf, models.DefaultTimeColumn)
	require.NoError(t, err)
	assert.Equal(t, table.Records, again.Records)
}

func TestEncodeHeaderOnly(t *testing.T) {
	table, err := models.NewTable([]string{"start_time", "policy"}, models.DefaultTimeColumn)
	require.NoError(t, err)

	body, err := Encode(table)
	require.NoError(t, err)
	assert.Equal(t, "\"start_time\",\"policy\"\n", string(body))
}
