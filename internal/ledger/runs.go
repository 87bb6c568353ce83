package ledger

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/triggerexport/internal/models"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// DefaultListLimit caps ListRuns when no limit is given.
const DefaultListLimit = 20

// RecordRun stores rec under its run ID and returns the stored record ID.
func (c *Client) RecordRun(ctx context.Context, rec models.RunRecord) (string, error) {
	if rec.RunID == "" {
		return "", fmt.Errorf("record run: empty run id")
	}

	results, err := surrealdb.Query[[]struct {
		ID surrealmodels.RecordID `json:"id"`
	}](ctx, c.db, `
		CREATE type::record("export_run", $run_id) CONTENT $content RETURN id
	`, map[string]any{
		"run_id":  rec.RunID,
		"content": runContent(rec),
	})
	if err != nil {
		return "", fmt.Errorf("record run: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return "", fmt.Errorf("record run: no result returned")
	}

	id, err := models.RecordIDString((*results)[0].Result[0].ID)
	if err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}
	c.logger.Debug("run recorded", "run_id", id, "status", string(rec.Status))
	return id, nil
}

// GetRun returns a run by ID, or nil if it was never recorded.
func (c *Client) GetRun(ctx context.Context, runID string) (*models.RunRecord, error) {
	results, err := surrealdb.Query[[]models.RunRecord](ctx, c.db, `
		SELECT * OMIT id FROM type::record("export_run", $run_id)
	`, map[string]any{"run_id": runID})
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// ListRuns returns the most recent runs, newest first. A mode of "" lists
// all modes.
func (c *Client) ListRuns(ctx context.Context, mode models.RunMode, limit int) ([]models.RunRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	modeClause := ""
	vars := map[string]any{"limit": limit}
	if mode != "" {
		modeClause = "WHERE mode = $mode"
		vars["mode"] = string(mode)
	}

	sql := fmt.Sprintf(`
		SELECT * OMIT id FROM export_run %s ORDER BY started_at DESC LIMIT $limit
	`, modeClause)

	results, err := surrealdb.Query[[]models.RunRecord](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.RunRecord{}, nil
	}
	return (*results)[0].Result, nil
}

// runContent converts rec to record content. Unset optional fields are
// left out so they are stored as NONE.
func runContent(rec models.RunRecord) map[string]any {
	content := map[string]any{
		"run_id":       rec.RunID,
		"mode":         string(rec.Mode),
		"status":       string(rec.Status),
		"started_at":   rec.StartedAt.UTC(),
		"window_start": rec.WindowStart,
		"kept_rows":    rec.KeptRows,
		"fresh_rows":   rec.FreshRows,
	}
	if rec.CompletedAt != nil {
		content["completed_at"] = rec.CompletedAt.UTC()
	}
	if rec.Watermark != nil {
		content["watermark"] = *rec.Watermark
	}
	optional := map[string]string{
		"output_key":      rec.OutputKey,
		"previous_export": rec.PreviousExport,
		"query_id":        rec.QueryID,
	}
	for k, v := range optional {
		if v != "" {
			content[k] = v
		}
	}
	if rec.Error != nil {
		content["error"] = *rec.Error
	}
	return content
}
