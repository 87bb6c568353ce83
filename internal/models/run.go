package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunMode distinguishes full exports from incremental updates.
type RunMode string

const (
	RunModeFull        RunMode = "full"
	RunModeIncremental RunMode = "incremental"
)

// RunContext is created once per invocation and threaded through every stage.
type RunContext struct {
	ID        string
	StartedAt time.Time
	OutputDir string
}

// NewRunContext creates a run context. An empty outputDir gets a
// unique default of the form PolicyTriggerCSV-<epoch>-<id>.
func NewRunContext(now time.Time, outputDir string) RunContext {
	id := uuid.New().String()[:8] // Short ID for convenience
	if outputDir == "" {
		outputDir = fmt.Sprintf("PolicyTriggerCSV-%d-%s", now.Unix(), id)
	}
	return RunContext{ID: id, StartedAt: now.UTC(), OutputDir: outputDir}
}

// RunStatus is the outcome of a recorded run.
type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// RunRecord is the persisted summary of one export run.
type RunRecord struct {
	RunID          string     `json:"run_id"`
	Mode           RunMode    `json:"mode"`
	Status         RunStatus  `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	WindowStart    int64      `json:"window_start"`
	Watermark      *int64     `json:"watermark,omitempty"`
	KeptRows       int        `json:"kept_rows"`
	FreshRows      int        `json:"fresh_rows"`
	OutputKey      string     `json:"output_key,omitempty"`
	PreviousExport string     `json:"previous_export,omitempty"`
	QueryID        string     `json:"query_id,omitempty"`
	Error          *string    `json:"error,omitempty"`
}
