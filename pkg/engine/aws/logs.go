package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/DrSkyle/cloudsentinel/pkg/engine/poll"
	"github.com/DrSkyle/cloudsentinel/pkg/engine/report"
)

// LogsAPI is the subset of the CloudWatch Logs client used for Insights queries.
type LogsAPI interface {
	StartQuery(ctx context.Context, params *cloudwatchlogs.StartQueryInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.StartQueryOutput, error)
	GetQueryResults(ctx context.Context, params *cloudwatchlogs.GetQueryResultsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetQueryResultsOutput, error)
}

// LogsResult is a normalized Insights query status with any rows returned so far.
type LogsResult struct {
	State poll.State
	Rows  []report.Record
}

// LogsEngine runs Logs Insights queries over a single log group.
type LogsEngine struct {
	Client   LogsAPI
	LogGroup string
}

func NewLogsEngine(cfg aws.Config, logGroup string) *LogsEngine {
	return &LogsEngine{
		Client:   cloudwatchlogs.NewFromConfig(cfg),
		LogGroup: logGroup,
	}
}

// Submit starts query over [start, end] and returns the query id.
func (e *LogsEngine) Submit(ctx context.Context, query string, start, end time.Time) (string, error) {
	out, err := e.Client.StartQuery(ctx, &cloudwatchlogs.StartQueryInput{
		LogGroupName: aws.String(e.LogGroup),
		QueryString:  aws.String(query),
		StartTime:    aws.Int64(start.Unix()),
		EndTime:      aws.Int64(end.Unix()),
	})
	if err != nil {
		return "", fmt.Errorf("failed to start logs query on %s: %w", e.LogGroup, err)
	}
	if out.QueryId == nil {
		return "", fmt.Errorf("logs query on %s returned no id", e.LogGroup)
	}
	return aws.ToString(out.QueryId), nil
}

func (e *LogsEngine) Status(ctx context.Context, queryID string) (LogsResult, error) {
	out, err := e.Client.GetQueryResults(ctx, &cloudwatchlogs.GetQueryResultsInput{QueryId: aws.String(queryID)})
	if err != nil {
		return LogsResult{}, fmt.Errorf("failed to get logs query results %s: %w", queryID, err)
	}

	res := LogsResult{State: logsState(out.Status)}
	if res.State == poll.StateSucceeded {
		res.Rows = convertResultRows(out.Results)
	}
	return res, nil
}

func logsState(s types.QueryStatus) poll.State {
	switch s {
	case types.QueryStatusComplete:
		return poll.StateSucceeded
	case types.QueryStatusFailed, types.QueryStatusTimeout, types.QueryStatusUnknown:
		return poll.StateFailed
	case types.QueryStatusCancelled:
		return poll.StateCancelled
	}
	return poll.StateRunning
}

func convertResultRows(rows [][]types.ResultField) []report.Record {
	fields := make([][]report.Field, 0, len(rows))
	for _, row := range rows {
		r := make([]report.Field, 0, len(row))
		for _, f := range row {
			r = append(r, report.Field{Name: aws.ToString(f.Field), Value: aws.ToString(f.Value)})
		}
		fields = append(fields, r)
	}
	return report.FromFieldList(fields)
}
