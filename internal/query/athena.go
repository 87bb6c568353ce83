package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/google/uuid"
	"github.com/raphaelgruber/triggerexport/internal/models"
)

// AthenaAPI is the subset of the Athena client used here.
type AthenaAPI interface {
	StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
}

// AthenaEngine implements Engine with Amazon Athena.
type AthenaEngine struct {
	api       AthenaAPI
	workGroup string
	logger    *slog.Logger
}

// NewAthenaEngine creates an engine. An empty workGroup uses the account default.
func NewAthenaEngine(api AthenaAPI, workGroup string, logger *slog.Logger) *AthenaEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &AthenaEngine{api: api, workGroup: workGroup, logger: logger}
}

// Submit starts a query execution and returns its ID.
func (a *AthenaEngine) Submit(ctx context.Context, req Request) (string, error) {
	in := &athena.StartQueryExecutionInput{
		QueryString:        aws.String(req.SQL),
		ClientRequestToken: aws.String(uuid.New().String()),
		QueryExecutionContext: &types.QueryExecutionContext{
			Database: aws.String(req.Database),
		},
	}
	if req.OutputLocation != "" {
		in.ResultConfiguration = &types.ResultConfiguration{OutputLocation: aws.String(req.OutputLocation)}
	}
	if a.workGroup != "" {
		in.WorkGroup = aws.String(a.workGroup)
	}

	a.logger.Debug("starting athena query", "database", req.Database, "output", req.OutputLocation, "sql", req.SQL)
	out, err := a.api.StartQueryExecution(ctx, in)
	if err != nil {
		return "", fmt.Errorf("start query execution: %w", err)
	}
	id := aws.ToString(out.QueryExecutionId)
	if id == "" {
		return "", fmt.Errorf("start query execution: empty execution id")
	}
	return id, nil
}

// Status fetches the current state of a query execution.
func (a *AthenaEngine) Status(ctx context.Context, id string) (Status, error) {
	out, err := a.api.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{QueryExecutionId: aws.String(id)})
	if err != nil {
		return Status{}, fmt.Errorf("get query execution: %w", err)
	}
	qe := out.QueryExecution
	if qe == nil || qe.Status == nil {
		return Status{}, fmt.Errorf("get query execution %s: response has no status", id)
	}

	st := Status{State: mapState(qe.Status.State)}
	if qe.ResultConfiguration != nil {
		st.OutputLocation = aws.ToString(qe.ResultConfiguration.OutputLocation)
	}
	if st.State == models.QueryStateFailed {
		st.Reason = failureReason(qe.Status)
	}
	if s := qe.Statistics; s != nil {
		st.Stats = models.QueryStats{
			EngineExecution:  millis(s.EngineExecutionTimeInMillis),
			QueueTime:        millis(s.QueryQueueTimeInMillis),
			TotalExecution:   millis(s.TotalExecutionTimeInMillis),
			DataScannedBytes: aws.ToInt64(s.DataScannedInBytes),
		}
	}
	return st, nil
}

func mapState(s types.QueryExecutionState) models.QueryState {
	switch s {
	case types.QueryExecutionStateQueued:
		return models.QueryStateQueued
	case types.QueryExecutionStateRunning:
		return models.QueryStateRunning
	case types.QueryExecutionStateSucceeded:
		return models.QueryStateSucceeded
	case types.QueryExecutionStateFailed, types.QueryExecutionStateCancelled:
		return models.QueryStateFailed
	default:
		return models.QueryStateSubmitted
	}
}

func failureReason(st *types.QueryExecutionStatus) string {
	if st.State == types.QueryExecutionStateCancelled {
		return "query was cancelled: " + aws.ToString(st.StateChangeReason)
	}
	if reason := aws.ToString(st.StateChangeReason); reason != "" {
		return reason
	}
	if st.AthenaError != nil {
		return aws.ToString(st.AthenaError.ErrorMessage)
	}
	return "unknown failure"
}

func millis(v *int64) time.Duration {
	return time.Duration(aws.ToInt64(v)) * time.Millisecond
}
