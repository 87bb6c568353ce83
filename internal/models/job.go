package models

import "time"

// QueryState is the lifecycle state of a query job.
type QueryState string

const (
	QueryStateSubmitted QueryState = "SUBMITTED"
	QueryStateQueued    QueryState = "QUEUED"
	QueryStateRunning   QueryState = "RUNNING"
	QueryStateSucceeded QueryState = "SUCCEEDED"
	QueryStateFailed    QueryState = "FAILED"
)

// Terminal reports whether the state is final.
func (s QueryState) Terminal() bool {
	return s == QueryStateSucceeded || s == QueryStateFailed
}

// QueryStats holds engine-reported statistics for a finished query.
type QueryStats struct {
	EngineExecution  time.Duration `json:"engine_execution"`
	QueueTime        time.Duration `json:"queue_time,omitempty"`
	TotalExecution   time.Duration `json:"total_execution,omitempty"`
	DataScannedBytes int64         `json:"data_scanned_bytes,omitempty"`
}

// QueryJob tracks one submitted query until its terminal state is consumed.
type QueryJob struct {
	ID             string     `json:"id"`
	State          QueryState `json:"state"`
	SubmittedAt    time.Time  `json:"submitted_at"`
	Deadline       time.Time  `json:"deadline"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ResultLocation string     `json:"result_location,omitempty"`
	FailureReason  string     `json:"failure_reason,omitempty"`
	Stats          QueryStats `json:"stats"`
}
