package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"

	"github.com/DrSkyle/cloudsentinel/pkg/engine/poll"
)

// AthenaAPI is the subset of the Athena client used by the reporting job.
type AthenaAPI interface {
	GetNamedQuery(ctx context.Context, params *athena.GetNamedQueryInput, optFns ...func(*athena.Options)) (*athena.GetNamedQueryOutput, error)
	StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
}

// NamedQuery is a saved Athena query.
type NamedQuery struct {
	ID       string
	Name     string
	Query    string
	Database string
}

// QueryStatus is a normalized execution status.
type QueryStatus struct {
	State          poll.State
	Reason         string
	OutputLocation string
}

// AthenaEngine runs saved queries and reports where the results landed.
type AthenaEngine struct {
	Client AthenaAPI
	// OutputLocation is the s3:// prefix results are written under.
	OutputLocation string
}

func NewAthenaEngine(cfg aws.Config, outputLocation string) *AthenaEngine {
	return &AthenaEngine{
		Client:         athena.NewFromConfig(cfg),
		OutputLocation: outputLocation,
	}
}

func (e *AthenaEngine) NamedQuery(ctx context.Context, id string) (NamedQuery, error) {
	out, err := e.Client.GetNamedQuery(ctx, &athena.GetNamedQueryInput{NamedQueryId: aws.String(id)})
	if err != nil {
		return NamedQuery{}, fmt.Errorf("failed to get named query %s: %w", id, err)
	}
	if out.NamedQuery == nil {
		return NamedQuery{}, fmt.Errorf("named query %s not found", id)
	}
	return NamedQuery{
		ID:       id,
		Name:     aws.ToString(out.NamedQuery.Name),
		Query:    aws.ToString(out.NamedQuery.QueryString),
		Database: aws.ToString(out.NamedQuery.Database),
	}, nil
}

// Submit starts query against database and returns the execution id.
func (e *AthenaEngine) Submit(ctx context.Context, query, database string) (string, error) {
	out, err := e.Client.StartQueryExecution(ctx, &athena.StartQueryExecutionInput{
		QueryString:           aws.String(query),
		QueryExecutionContext: &types.QueryExecutionContext{Database: aws.String(database)},
		ResultConfiguration:   &types.ResultConfiguration{OutputLocation: aws.String(e.OutputLocation)},
	})
	if err != nil {
		return "", fmt.Errorf("failed to start query execution: %w", err)
	}
	return aws.ToString(out.QueryExecutionId), nil
}

func (e *AthenaEngine) Status(ctx context.Context, executionID string) (QueryStatus, error) {
	out, err := e.Client.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{QueryExecutionId: aws.String(executionID)})
	if err != nil {
		return QueryStatus{}, fmt.Errorf("failed to get query execution %s: %w", executionID, err)
	}

	exec := out.QueryExecution
	if exec == nil || exec.Status == nil {
		return QueryStatus{State: poll.StateRunning}, nil
	}

	st := QueryStatus{
		State:  athenaState(exec.Status.State),
		Reason: aws.ToString(exec.Status.StateChangeReason),
	}
	if exec.ResultConfiguration != nil {
		st.OutputLocation = aws.ToString(exec.ResultConfiguration.OutputLocation)
	}
	return st, nil
}

func athenaState(s types.QueryExecutionState) poll.State {
	switch s {
	case types.QueryExecutionStateSucceeded:
		return poll.StateSucceeded
	case types.QueryExecutionStateFailed:
		return poll.StateFailed
	case types.QueryExecutionStateCancelled:
		return poll.StateCancelled
	}
	return poll.StateRunning
}
