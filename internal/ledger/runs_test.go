package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/raphaelgruber/triggerexport/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/surrealdb/surrealdb.go"
)

func TestRunContentOmitsUnsetFields(t *testing.T) {
	started := time.Date(2021, 2, 9, 12, 20, 0, 0, time.FixedZone("CET", 3600))
	content := runContent(models.RunRecord{
		RunID:       "abcd1234",
		Mode:        models.RunModeFull,
		Status:      models.RunStatusSucceeded,
		StartedAt:   started,
		WindowStart: 1612828800,
		FreshRows:   4,
	})

	assert.Equal(t, "full", content["mode"])
	assert.Equal(t, started.UTC(), content["started_at"])
	assert.Equal(t, 4, content["fresh_rows"])
	for _, key := range []string{"completed_at", "watermark", "output_key", "previous_export", "query_id", "error"} {
		assert.NotContains(t, content, key)
	}
}

func TestRunContentIncludesSetFields(t *testing.T) {
	completed := time.Date(2021, 2, 9, 12, 25, 0, 0, time.UTC)
	watermark := int64(1612868400)
	msg := "query error in run query: SYNTAX_ERROR"
	content := runContent(models.RunRecord{
		RunID:          "abcd1234",
		Mode:           models.RunModeIncremental,
		Status:         models.RunStatusFailed,
		CompletedAt:    &completed,
		Watermark:      &watermark,
		OutputKey:      "PolicyTriggerCSV-1/abc/q.csv",
		PreviousExport: "s3://in/prev.csv",
		QueryID:        "qid",
		Error:          &msg,
	})

	assert.Equal(t, completed, content["completed_at"])
	assert.Equal(t, watermark, content["watermark"])
	assert.Equal(t, "s3://in/prev.csv", content["previous_export"])
	assert.Equal(t, msg, content["error"])
}

func TestWrapQueryError(t *testing.T) {
	assert.Nil(t, wrapQueryError(nil))

	exists := &surrealdb.QueryError{Message: "Database record `export_run:abcd1234` already exists"}
	assert.ErrorIs(t, wrapQueryError(exists), ErrRunExists)

	conflict := &surrealdb.QueryError{Message: "Transaction conflict: retry"}
	assert.ErrorIs(t, wrapQueryError(conflict), ErrTransactionConflict)

	other := errors.New("socket closed")
	assert.Equal(t, other, wrapQueryError(other))
}
