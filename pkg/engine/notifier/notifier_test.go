package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSNS struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func (m *mockSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return m.PublishFunc(ctx, params, optFns...)
}

func TestSNSPublisher(t *testing.T) {
	var got *sns.PublishInput
	p := &SNSPublisher{Client: &mockSNS{
		PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			got = params
			return &sns.PublishOutput{MessageId: aws.String("m-1")}, nil
		},
	}}

	long := strings.Repeat("s", 150)
	require.NoError(t, p.Publish(context.Background(), "arn:aws:sns:eu-west-1:1:ops", long, "body"))
	assert.Equal(t, "arn:aws:sns:eu-west-1:1:ops", aws.ToString(got.TopicArn))
	assert.Len(t, aws.ToString(got.Subject), MaxSubjectLength)
	assert.Equal(t, "body", aws.ToString(got.Message))

	assert.Error(t, p.Publish(context.Background(), "", "s", "b"))
}

func TestSNSPublisherWrapsError(t *testing.T) {
	boom := errors.New("AuthorizationError")
	p := &SNSPublisher{Client: &mockSNS{
		PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			return nil, boom
		},
	}}
	assert.ErrorIs(t, p.Publish(context.Background(), "arn:t", "s", "b"), boom)
}

func TestSlackClientPublish(t *testing.T) {
	var payload map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewSlackClient(srv.URL, "#ops")
	require.NoError(t, c.Publish(context.Background(), "arn:t", "Ephemeral EC2 expired", "Resource ID: i-1"))

	assert.Equal(t, "#ops", payload["channel"])
	assert.Equal(t, "Ephemeral EC2 expired", payload["text"])
	blocks := payload["blocks"].([]interface{})
	require.Len(t, blocks, 4)
	section := blocks[3].(map[string]interface{})["text"].(map[string]interface{})
	assert.Contains(t, section["text"], "Resource ID: i-1")
}

func TestSlackPayloadTruncatesOnRuneBoundary(t *testing.T) {
	c := NewSlackClient("https://hooks.example/x", "")
	body := strings.Repeat("🚨", 1000)

	payload := c.constructPayload("arn:t", "alert", body)
	blocks := payload["blocks"].([]map[string]interface{})
	text := blocks[3]["text"].(map[string]interface{})["text"].(string)

	assert.True(t, utf8.ValidString(text))
	assert.NotContains(t, text, "\uFFFD")
	assert.True(t, strings.HasSuffix(text, "...```"))
	assert.LessOrEqual(t, len(text), slackTextLimit)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "héllo", truncate("héllo", 10))
	assert.Equal(t, "h", truncate("héllo", 2))
	assert.Equal(t, "hé", truncate("héllo", 3))
}

func TestSlackClientNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := NewSlackClient(srv.URL, "").Publish(context.Background(), "t", "s", "b")
	assert.ErrorContains(t, err, "403")
}

func TestSlackClientDisabledWithoutWebhook(t *testing.T) {
	assert.NoError(t, NewSlackClient("", "").Publish(context.Background(), "t", "s", "b"))
}

func TestFanoutAttemptsEveryPublisher(t *testing.T) {
	failing := &Recorder{Err: errors.New("down")}
	ok := &Recorder{}

	err := Fanout{failing, nil, ok}.Publish(context.Background(), "t", "s", "b")
	assert.ErrorContains(t, err, "down")
	assert.Equal(t, 1, ok.Count())
}

func TestWriterPublisher(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, WriterPublisher{W: &sb}.Publish(context.Background(), "arn:t", "Subj", "Body"))
	assert.Equal(t, "[arn:t] Subj\nBody\n\n", sb.String())
}
