// Package reporting runs the scheduled Athena, Logs Insights and Identity Center reports
// and mails the consolidated digest.
package reporting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	awsengine "github.com/DrSkyle/cloudsentinel/pkg/engine/aws"
	"github.com/DrSkyle/cloudsentinel/pkg/engine/notifier"
	"github.com/DrSkyle/cloudsentinel/pkg/engine/poll"
	"github.com/DrSkyle/cloudsentinel/pkg/engine/report"
	"github.com/DrSkyle/cloudsentinel/pkg/telemetry"
)

// Fixed directory outcome.
const (
	DirectoryTitle    = "Mail - User Correlation"
	DirectoryQuery    = "list_users command in Mgmt Account"
	DirectoryFileName = "identity-center-users.csv"
)

// Outcome statuses not produced by the query engines.
const (
	StatusNoResults = "NO RESULTS"
	ExportFailed    = "Error generating file"
)

// Defaults match the scheduled deployment.
const (
	DefaultAthenaTimeout = 180 * time.Second
	DefaultLogsTimeout   = 60 * time.Second
	DefaultLookback      = 7 * 24 * time.Hour
)

// TimeoutError reports an Athena execution that was still running at the deadline.
type TimeoutError struct {
	ExecutionID string
	After       time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("query %s timed out after %s", e.ExecutionID, e.After)
}

func (e *TimeoutError) Unwrap() error { return poll.ErrTimeout }

// AthenaRunner runs saved Athena queries.
type AthenaRunner interface {
	NamedQuery(ctx context.Context, id string) (awsengine.NamedQuery, error)
	Submit(ctx context.Context, query, database string) (string, error)
	Status(ctx context.Context, executionID string) (awsengine.QueryStatus, error)
}

// LogsRunner runs Logs Insights queries.
type LogsRunner interface {
	Submit(ctx context.Context, query string, start, end time.Time) (string, error)
	Status(ctx context.Context, queryID string) (awsengine.LogsResult, error)
}

// DirectoryLister lists Identity Center users.
type DirectoryLister interface {
	ListUsers(ctx context.Context) ([]awsengine.DirectoryUser, error)
}

// URISigner presigns s3:// locations.
type URISigner interface {
	PresignURI(ctx context.Context, uri string, ttl time.Duration) (string, error)
}

// LogQuery is a titled Logs Insights query.
type LogQuery struct {
	Title string `mapstructure:"title" yaml:"title"`
	Query string `mapstructure:"query" yaml:"query"`
}

// QueryJob tracks one submitted query until its result is exported.
type QueryJob struct {
	ID        string
	Query     string
	Target    string
	Submitted time.Time
}

// Job is one scheduled reporting run. Collaborators are built per invocation.
type Job struct {
	Athena        AthenaRunner
	Database      string
	NamedQueryIDs []string
	Signer        URISigner

	// ConnectLogs and ConnectDirectory assume the cross-account roles. Errors abort the run.
	ConnectLogs      func(ctx context.Context) (LogsRunner, error)
	LogQueries       []LogQuery
	ConnectDirectory func(ctx context.Context) (DirectoryLister, error)

	Exporter        *report.Exporter
	LogsPrefix      string
	DirectoryPrefix string

	Publisher notifier.Publisher
	Topic     string
	Banner    string

	AthenaTimeout time.Duration
	LogsTimeout   time.Duration
	Interval      time.Duration
	Lookback      time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

// Run executes every configured query in order, publishes the digest when at least one
// outcome was collected, and returns the outcomes.
func (j *Job) Run(ctx context.Context) ([]report.Outcome, error) {
	tr := telemetry.Tracer("cloudsentinel/reporting")
	ctx, span := tr.Start(ctx, "Reporting.Run")
	defer span.End()

	var outcomes []report.Outcome

	for _, id := range j.NamedQueryIDs {
		o, err := j.runAthena(ctx, tr, id)
		if err != nil {
			var te *TimeoutError
			if errors.As(err, &te) {
				j.logger().Warn("Athena query timed out, skipping", "named_query_id", id, "execution_id", te.ExecutionID, "after", te.After)
			} else {
				j.logger().Error("Athena query failed, skipping", append([]any{"named_query_id", id}, awsengine.ErrorAttrs(err)...)...)
			}
			continue
		}
		outcomes = append(outcomes, o)
	}

	if len(j.LogQueries) > 0 && j.ConnectLogs != nil {
		runner, err := j.ConnectLogs(ctx)
		if err != nil {
			return j.fail(span, outcomes, fmt.Errorf("failed to connect to logs account: %w", err))
		}
		for _, q := range j.LogQueries {
			if o, ok := j.runLogs(ctx, tr, runner, q); ok {
				outcomes = append(outcomes, o)
			}
		}
	}

	if j.ConnectDirectory != nil {
		o, ok, err := j.runDirectory(ctx)
		if err != nil {
			return j.fail(span, outcomes, err)
		}
		if ok {
			outcomes = append(outcomes, o)
		}
	}

	span.SetAttributes(attribute.Int("outcomes", len(outcomes)))
	if len(outcomes) > 0 {
		report.Dispatch(ctx, j.logger(), j.Publisher, j.Topic, report.Render(j.Banner, outcomes))
	}
	return outcomes, nil
}

func (j *Job) fail(span trace.Span, outcomes []report.Outcome, err error) ([]report.Outcome, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return outcomes, err
}

func (j *Job) runAthena(ctx context.Context, tr trace.Tracer, namedQueryID string) (report.Outcome, error) {
	ctx, span := tr.Start(ctx, "Reporting.Athena", trace.WithAttributes(attribute.String("named_query_id", namedQueryID)))
	defer span.End()

	nq, err := j.Athena.NamedQuery(ctx, namedQueryID)
	if err != nil {
		span.RecordError(err)
		return report.Outcome{}, err
	}

	database := j.Database
	if database == "" {
		database = nq.Database
	}
	execID, err := j.Athena.Submit(ctx, nq.Query, database)
	if err != nil {
		span.RecordError(err)
		return report.Outcome{}, err
	}
	job := QueryJob{ID: execID, Query: nq.Query, Target: database, Submitted: j.now()}
	j.logger().Info("Started Athena query", "execution_id", job.ID, "title", nq.Name, "database", job.Target)

	timeout := durationOr(j.AthenaTimeout, DefaultAthenaTimeout)
	status, err := poll.Until(ctx, poll.Config{Interval: j.Interval, Timeout: timeout},
		func(ctx context.Context) (awsengine.QueryStatus, bool, error) {
			st, err := j.Athena.Status(ctx, job.ID)
			return st, st.State.Terminal(), err
		})
	if errors.Is(err, poll.ErrTimeout) {
		err = &TimeoutError{ExecutionID: job.ID, After: timeout}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report.Outcome{}, err
	}

	o := report.Outcome{Title: nq.Name, Query: nq.Query, Status: string(status.State)}
	if status.State != poll.StateSucceeded {
		j.logger().Error("Athena query did not succeed", "execution_id", job.ID, "status", status.State, "reason", status.Reason)
		return o, nil
	}

	j.logger().Info("Athena query results available", "execution_id", job.ID, "location", status.OutputLocation)
	link, err := j.Signer.PresignURI(ctx, status.OutputLocation, j.linkTTL())
	if err != nil {
		j.logger().Error("Failed to presign Athena results", "execution_id", job.ID, "error", err)
		return o, nil
	}
	o.Link = link
	return o, nil
}

// runLogs returns ok=false when the query could not be started or polled; the query is
// then left out of the digest. Timeouts and failed queries degrade to an empty result.
func (j *Job) runLogs(ctx context.Context, tr trace.Tracer, runner LogsRunner, q LogQuery) (report.Outcome, bool) {
	ctx, span := tr.Start(ctx, "Reporting.Logs", trace.WithAttributes(attribute.String("title", q.Title)))
	defer span.End()

	end := j.now()
	start := end.Add(-durationOr(j.Lookback, DefaultLookback))

	queryID, err := runner.Submit(ctx, q.Query, start, end)
	if err != nil {
		span.RecordError(err)
		j.logger().Error("Failed to start logs query", append([]any{"title", q.Title}, awsengine.ErrorAttrs(err)...)...)
		return report.Outcome{}, false
	}
	j.logger().Info("Started logs query", "query_id", queryID, "title", q.Title)

	timeout := durationOr(j.LogsTimeout, DefaultLogsTimeout)
	res, err := poll.Until(ctx, poll.Config{Interval: j.Interval, Timeout: timeout},
		func(ctx context.Context) (awsengine.LogsResult, bool, error) {
			r, err := runner.Status(ctx, queryID)
			return r, r.State.Terminal(), err
		})

	var rows []report.Record
	switch {
	case errors.Is(err, poll.ErrTimeout):
		j.logger().Error("Logs query timed out", "query_id", queryID, "after", timeout)
	case err != nil:
		span.RecordError(err)
		j.logger().Error("Failed to read logs query results", append([]any{"query_id", queryID}, awsengine.ErrorAttrs(err)...)...)
		return report.Outcome{}, false
	case res.State != poll.StateSucceeded:
		j.logger().Error("Logs query did not succeed", "query_id", queryID, "status", res.State)
	default:
		rows = res.Rows
	}

	o := report.Outcome{Title: q.Title, Query: q.Query, Status: StatusNoResults, Link: report.NoResults}
	if len(rows) == 0 {
		return o, true
	}

	o.Status = string(poll.StateSucceeded)
	link, err := j.Exporter.WithPrefix(j.LogsPrefix).Export(ctx, rows, FileName(q.Title))
	if err != nil {
		j.logger().Error("Failed to export logs results", "title", q.Title, "error", err)
		link = ExportFailed
	}
	o.Link = link
	return o, true
}

// runDirectory lists the management account's users. Errors abort the run.
func (j *Job) runDirectory(ctx context.Context) (report.Outcome, bool, error) {
	dir, err := j.ConnectDirectory(ctx)
	if err != nil {
		return report.Outcome{}, false, fmt.Errorf("failed to connect to management account: %w", err)
	}

	users, err := dir.ListUsers(ctx)
	if err != nil {
		return report.Outcome{}, false, err
	}
	if len(users) == 0 {
		j.logger().Info("Identity store returned no users")
		return report.Outcome{}, false, nil
	}

	records := make([]report.Record, 0, len(users))
	for _, u := range users {
		records = append(records, report.NewRecord("UserId", u.UserID, "Email", u.Email))
	}

	link, err := j.Exporter.WithPrefix(j.DirectoryPrefix).Export(ctx, records, DirectoryFileName)
	if err != nil {
		return report.Outcome{}, false, fmt.Errorf("failed to export identity store users: %w", err)
	}

	return report.Outcome{
		Title:  DirectoryTitle,
		Query:  DirectoryQuery,
		Status: string(poll.StateSucceeded),
		Link:   link,
	}, true, nil
}

// FileName derives the CSV name for a titled query.
func FileName(title string) string {
	return strings.ReplaceAll(title, " ", "_") + ".csv"
}

func (j *Job) linkTTL() time.Duration {
	if j.Exporter != nil && j.Exporter.TTL > 0 {
		return j.Exporter.TTL
	}
	return report.DefaultLinkTTL
}

func (j *Job) now() time.Time {
	if j.Now == nil {
		return time.Now()
	}
	return j.Now()
}

func (j *Job) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
