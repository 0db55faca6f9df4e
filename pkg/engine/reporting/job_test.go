package reporting

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	awsengine "github.com/DrSkyle/cloudsentinel/pkg/engine/aws"
	"github.com/DrSkyle/cloudsentinel/pkg/engine/notifier"
	"github.com/DrSkyle/cloudsentinel/pkg/engine/poll"
	"github.com/DrSkyle/cloudsentinel/pkg/engine/report"
)

type fakeAthena struct {
	queries map[string]awsengine.NamedQuery
	// final state per execution id; "" keeps the query running forever
	final     map[string]awsengine.QueryStatus
	submitted []string
}

func (f *fakeAthena) NamedQuery(ctx context.Context, id string) (awsengine.NamedQuery, error) {
	q, ok := f.queries[id]
	if !ok {
		return awsengine.NamedQuery{}, errors.New("InvalidRequestException: named query not found")
	}
	return q, nil
}

func (f *fakeAthena) Submit(ctx context.Context, query, database string) (string, error) {
	f.submitted = append(f.submitted, database)
	for id, q := range f.queries {
		if q.Query == query {
			return "exec-" + id, nil
		}
	}
	return "", errors.New("unknown query")
}

func (f *fakeAthena) Status(ctx context.Context, executionID string) (awsengine.QueryStatus, error) {
	st, ok := f.final[executionID]
	if !ok {
		return awsengine.QueryStatus{State: poll.StateRunning}, nil
	}
	return st, nil
}

type fakeLogs struct {
	results   map[string]awsengine.LogsResult
	submitErr error
}

func (f *fakeLogs) Submit(ctx context.Context, query string, start, end time.Time) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return query, nil
}

func (f *fakeLogs) Status(ctx context.Context, queryID string) (awsengine.LogsResult, error) {
	if r, ok := f.results[queryID]; ok {
		return r, nil
	}
	return awsengine.LogsResult{State: poll.StateRunning}, nil
}

// stallingLogs reports the query running once and then holds every status call until
// the poll deadline cancels it.
type stallingLogs struct {
	calls int
}

func (f *stallingLogs) Submit(ctx context.Context, query string, start, end time.Time) (string, error) {
	return "q-stall", nil
}

func (f *stallingLogs) Status(ctx context.Context, queryID string) (awsengine.LogsResult, error) {
	f.calls++
	if f.calls == 1 {
		return awsengine.LogsResult{State: poll.StateRunning}, nil
	}
	<-ctx.Done()
	return awsengine.LogsResult{}, ctx.Err()
}

type fakeDirectory struct {
	users []awsengine.DirectoryUser
	err   error
}

func (f *fakeDirectory) ListUsers(ctx context.Context) ([]awsengine.DirectoryUser, error) {
	return f.users, f.err
}

type fakeSigner struct{}

func (fakeSigner) PresignURI(ctx context.Context, uri string, ttl time.Duration) (string, error) {
	return "https://signed.example/" + strings.TrimPrefix(uri, "s3://"), nil
}

type memStore struct {
	keys []string
}

func (m *memStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	m.keys = append(m.keys, key)
	return nil
}

func (m *memStore) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://signed.example/" + key, nil
}

func newJob(athena *fakeAthena, store *memStore, pub notifier.Publisher) *Job {
	exp := report.NewExporter(store, "")
	exp.Now = func() time.Time { return time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC) }
	return &Job{
		Athena:          athena,
		Database:        "audit",
		Signer:          fakeSigner{},
		Exporter:        exp,
		LogsPrefix:      "cloudwatch-results/",
		DirectoryPrefix: "identitystore-results/",
		Publisher:       pub,
		Topic:           "arn:aws:sns:eu-west-1:1:reports",
		Banner:          "Weekly report",
		Interval:        time.Millisecond,
		AthenaTimeout:   50 * time.Millisecond,
		LogsTimeout:     50 * time.Millisecond,
	}
}

func TestRunThreeQueriesOneFailed(t *testing.T) {
	athena := &fakeAthena{
		queries: map[string]awsengine.NamedQuery{
			"a": {Name: "Root logins", Query: "SELECT root"},
			"b": {Name: "Denied calls", Query: "SELECT denied"},
		},
		final: map[string]awsengine.QueryStatus{
			"exec-a": {State: poll.StateSucceeded, OutputLocation: "s3://out/athena-results/exec-a.csv"},
			"exec-b": {State: poll.StateFailed, Reason: "SYNTAX_ERROR"},
		},
	}
	store := &memStore{}
	pub := &notifier.Recorder{}
	job := newJob(athena, store, pub)
	job.NamedQueryIDs = []string{"a", "b"}
	job.LogQueries = []LogQuery{{Title: "Top users", Query: "stats count() by user"}}
	job.ConnectLogs = func(ctx context.Context) (LogsRunner, error) {
		return &fakeLogs{results: map[string]awsengine.LogsResult{
			"stats count() by user": {State: poll.StateSucceeded, Rows: []report.Record{report.NewRecord("user", "alice")}},
		}}, nil
	}

	outcomes, err := job.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	assert.Equal(t, "SUCCEEDED", outcomes[0].Status)
	assert.Equal(t, "https://signed.example/out/athena-results/exec-a.csv", outcomes[0].Link)
	assert.Equal(t, "FAILED", outcomes[1].Status)
	assert.Empty(t, outcomes[1].Link)
	assert.Equal(t, "SUCCEEDED", outcomes[2].Status)
	assert.Equal(t, []string{"cloudwatch-results/2025-03-14_09-00-00_Top_users.csv"}, store.keys)
	assert.Equal(t, []string{"audit", "audit"}, athena.submitted)

	require.Equal(t, 1, pub.Count())
	msg := pub.Messages[0]
	assert.Equal(t, report.DigestSubject, msg.Subject)
	assert.Equal(t, 3, strings.Count(msg.Body, "Title: "))
	assert.Contains(t, msg.Body, "Execution Status: FAILED\n\nReport URL: No results available\n")
}

func TestRunThreeAthenaQueriesKeepsSubmissionOrder(t *testing.T) {
	athena := &fakeAthena{
		queries: map[string]awsengine.NamedQuery{
			"q1": {Name: "Root logins", Query: "SELECT root"},
			"q2": {Name: "Missing table", Query: "SELECT * FROM gone"},
			"q3": {Name: "Denied calls", Query: "SELECT denied"},
		},
		final: map[string]awsengine.QueryStatus{
			"exec-q1": {State: poll.StateSucceeded, OutputLocation: "s3://out/athena-results/exec-q1.csv"},
			"exec-q2": {State: poll.StateFailed, Reason: "table not found"},
			"exec-q3": {State: poll.StateSucceeded, OutputLocation: "s3://out/athena-results/exec-q3.csv"},
		},
	}
	pub := &notifier.Recorder{}
	job := newJob(athena, &memStore{}, pub)
	job.NamedQueryIDs = []string{"q1", "q2", "q3"}

	outcomes, err := job.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.Equal(t, []string{"Root logins", "Missing table", "Denied calls"},
		[]string{outcomes[0].Title, outcomes[1].Title, outcomes[2].Title})
	assert.Equal(t, "https://signed.example/out/athena-results/exec-q1.csv", outcomes[0].Link)
	assert.Equal(t, "FAILED", outcomes[1].Status)
	assert.Empty(t, outcomes[1].Link)
	assert.Equal(t, "https://signed.example/out/athena-results/exec-q3.csv", outcomes[2].Link)

	require.Equal(t, 1, pub.Count())
	body := pub.Messages[0].Body
	first := strings.Index(body, "Title: Root logins")
	second := strings.Index(body, "Title: Missing table")
	third := strings.Index(body, "Title: Denied calls")
	require.True(t, first >= 0 && second >= 0 && third >= 0)
	assert.Less(t, first, second)
	assert.Less(t, second, third)

	failedBlock := body[second:third]
	assert.Contains(t, failedBlock, "Execution Status: FAILED\n\nReport URL: No results available\n")
	assert.Equal(t, 2, strings.Count(body, "Execution Status: SUCCEEDED"))
}

func TestRunLogsDeadlineDuringStatusCallDegradesToNoResults(t *testing.T) {
	logs := &stallingLogs{}
	pub := &notifier.Recorder{}
	job := newJob(&fakeAthena{}, &memStore{}, pub)
	job.LogQueries = []LogQuery{{Title: "Stalled", Query: "q"}}
	job.ConnectLogs = func(ctx context.Context) (LogsRunner, error) { return logs, nil }

	outcomes, err := job.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusNoResults, outcomes[0].Status)
	assert.Equal(t, report.NoResults, outcomes[0].Link)
	assert.GreaterOrEqual(t, logs.calls, 2)
	assert.Equal(t, 1, pub.Count())
}

func TestRunSkipsTimedOutAndMissingAthenaQueries(t *testing.T) {
	athena := &fakeAthena{queries: map[string]awsengine.NamedQuery{"slow": {Name: "Slow", Query: "SELECT slow"}}}
	pub := &notifier.Recorder{}
	job := newJob(athena, &memStore{}, pub)
	job.NamedQueryIDs = []string{"missing", "slow"}

	outcomes, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, outcomes)
	assert.Zero(t, pub.Count(), "no digest without outcomes")
}

func TestTimeoutErrorUnwrapsToPollTimeout(t *testing.T) {
	var err error = &TimeoutError{ExecutionID: "e", After: time.Second}
	assert.ErrorIs(t, err, poll.ErrTimeout)
	assert.Equal(t, "query e timed out after 1s", err.Error())
}

func TestRunLogsTimeoutDegradesToNoResults(t *testing.T) {
	pub := &notifier.Recorder{}
	store := &memStore{}
	job := newJob(&fakeAthena{}, store, pub)
	job.LogQueries = []LogQuery{{Title: "Slow", Query: "q"}, {Title: "Broken", Query: "broken"}}
	job.ConnectLogs = func(ctx context.Context) (LogsRunner, error) {
		return &fakeLogs{results: map[string]awsengine.LogsResult{"broken": {State: poll.StateFailed}}}, nil
	}

	outcomes, err := job.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.Equal(t, StatusNoResults, o.Status)
		assert.Equal(t, report.NoResults, o.Link)
	}
	assert.Empty(t, store.keys)
	assert.Equal(t, 1, pub.Count())
}

func TestRunLogsSubmitFailureSkipsQuery(t *testing.T) {
	job := newJob(&fakeAthena{}, &memStore{}, &notifier.Recorder{})
	job.LogQueries = []LogQuery{{Title: "x", Query: "q"}}
	job.ConnectLogs = func(ctx context.Context) (LogsRunner, error) {
		return &fakeLogs{submitErr: errors.New("MalformedQueryException")}, nil
	}

	outcomes, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestRunConnectFailureAborts(t *testing.T) {
	job := newJob(&fakeAthena{}, &memStore{}, &notifier.Recorder{})
	job.LogQueries = []LogQuery{{Title: "x", Query: "q"}}
	job.ConnectLogs = func(ctx context.Context) (LogsRunner, error) {
		return nil, errors.New("AccessDenied")
	}

	_, err := job.Run(context.Background())
	assert.ErrorContains(t, err, "AccessDenied")
}

func TestRunDirectory(t *testing.T) {
	store := &memStore{}
	pub := &notifier.Recorder{}
	job := newJob(&fakeAthena{}, store, pub)
	job.ConnectDirectory = func(ctx context.Context) (DirectoryLister, error) {
		return &fakeDirectory{users: []awsengine.DirectoryUser{{UserID: "u-1", Email: "a@example.com"}}}, nil
	}

	outcomes, err := job.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, DirectoryTitle, outcomes[0].Title)
	assert.Equal(t, DirectoryQuery, outcomes[0].Query)
	assert.Equal(t, "SUCCEEDED", outcomes[0].Status)
	assert.Equal(t, []string{"identitystore-results/2025-03-14_09-00-00_identity-center-users.csv"}, store.keys)
}

func TestRunDirectoryErrorPropagates(t *testing.T) {
	pub := &notifier.Recorder{}
	job := newJob(&fakeAthena{}, &memStore{}, pub)
	job.ConnectDirectory = func(ctx context.Context) (DirectoryLister, error) {
		return &fakeDirectory{err: errors.New("ResourceNotFoundException")}, nil
	}

	_, err := job.Run(context.Background())
	assert.ErrorContains(t, err, "ResourceNotFoundException")
	assert.Zero(t, pub.Count())
}

func TestRunDirectoryEmptyAddsNothing(t *testing.T) {
	job := newJob(&fakeAthena{}, &memStore{}, &notifier.Recorder{})
	job.ConnectDirectory = func(ctx context.Context) (DirectoryLister, error) {
		return &fakeDirectory{}, nil
	}

	outcomes, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "Failed_console_logins.csv", FileName("Failed console logins"))
}
