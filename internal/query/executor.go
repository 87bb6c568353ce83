package query

import (
	"context"
	"log/slog"
	"time"

	"github.com/raphaelgruber/triggerexport/internal/apperr"
	"github.com/raphaelgruber/triggerexport/internal/clock"
	"github.com/raphaelgruber/triggerexport/internal/models"
)

// DefaultPollInterval is the delay between status checks.
const DefaultPollInterval = time.Second

// Request is a query submission.
type Request struct {
	SQL            string
	Database       string
	OutputLocation string
}

// Status is one observation of a submitted query.
type Status struct {
	State          models.QueryState
	Reason         string
	OutputLocation string
	Stats          models.QueryStats
}

// Engine is an external SQL engine with an asynchronous job lifecycle.
type Engine interface {
	Submit(ctx context.Context, req Request) (string, error)
	Status(ctx context.Context, id string) (Status, error)
}

// Executor submits queries and polls them to a terminal state.
// It never retries and never cancels the remote job on timeout.
type Executor struct {
	engine       Engine
	clock        clock.Clock
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewExecutor creates an executor polling engine once per DefaultPollInterval.
func NewExecutor(engine Engine, clk clock.Clock, logger *slog.Logger) *Executor {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		engine:       engine,
		clock:        clk,
		pollInterval: DefaultPollInterval,
		logger:       logger,
	}
}

// SetPollInterval overrides the delay between status checks.
func (e *Executor) SetPollInterval(d time.Duration) {
	if d > 0 {
		e.pollInterval = d
	}
}

// Run submits req and blocks until it succeeds, fails, or timeout elapses.
// The returned job is populated as far as the query got, even on error.
func (e *Executor) Run(ctx context.Context, req Request, timeout time.Duration) (models.QueryJob, error) {
	if timeout <= 0 {
		return models.QueryJob{}, apperr.Configuration("run query", "timeout must be > 0, got %s", timeout)
	}

	submittedAt := e.clock.Now()
	id, err := e.engine.Submit(ctx, req)
	if err != nil {
		return models.QueryJob{}, apperr.Wrap(apperr.KindQuery, "submit query", err)
	}

	job := models.QueryJob{
		ID:          id,
		State:       models.QueryStateSubmitted,
		SubmittedAt: submittedAt,
		Deadline:    submittedAt.Add(timeout),
	}
	e.logger.Info("query submitted", "query_id", id, "timeout", timeout)

	for {
		st, err := e.engine.Status(ctx, id)
		if err != nil {
			return job, apperr.Wrap(apperr.KindQuery, "poll query "+id, err)
		}
		if st.State != job.State {
			e.logger.Debug("query state changed", "query_id", id, "from", job.State, "to", st.State)
			job.State = st.State
		}

		switch st.State {
		case models.QueryStateSucceeded:
			now := e.clock.Now()
			job.CompletedAt = &now
			job.ResultLocation = st.OutputLocation
			job.Stats = st.Stats
			if job.ResultLocation == "" {
				return job, apperr.New(apperr.KindOutput, "run query", "query %s succeeded without an output location", id)
			}
			e.logger.Info("query succeeded",
				"query_id", id,
				"engine_time", st.Stats.EngineExecution,
				"scanned_bytes", st.Stats.DataScannedBytes,
				"result", job.ResultLocation)
			return job, nil

		case models.QueryStateFailed:
			now := e.clock.Now()
			job.CompletedAt = &now
			job.FailureReason = st.Reason
			return job, apperr.New(apperr.KindQuery, "run query", "query %s failed: %s", id, st.Reason)
		}

		elapsed := e.clock.Now().Sub(submittedAt)
		if elapsed >= timeout {
			// The remote job keeps running; its result is simply never read.
			e.logger.Warn("query timed out", "query_id", id, "state", job.State, "elapsed", elapsed)
			return job, apperr.Timeout("run query "+id, string(job.State), elapsed)
		}

		if err := e.clock.Sleep(ctx, e.pollInterval); err != nil {
			return job, apperr.Wrap(apperr.KindQuery, "poll query "+id, err)
		}
	}
}
