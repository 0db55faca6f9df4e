package storage

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockS3 struct {
	PutObjectFunc func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

func (m *mockS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return m.PutObjectFunc(ctx, params, optFns...)
}

func offlineStore(bucket string) *S3Store {
	client := s3.New(s3.Options{
		Region:       "us-east-1",
		Credentials:  credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", ""),
		UsePathStyle: true,
	})
	return &S3Store{Presigner: s3.NewPresignClient(client), Bucket: bucket}
}

func TestS3StorePut(t *testing.T) {
	var got *s3.PutObjectInput
	var body []byte
	store := &S3Store{Bucket: "reports", Client: &mockS3{
		PutObjectFunc: func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
			got = params
			body, _ = io.ReadAll(params.Body)
			return &s3.PutObjectOutput{}, nil
		},
	}}

	require.NoError(t, store.Put(context.Background(), "logs-results/a.csv", []byte("x,y\n"), "text/csv"))
	assert.Equal(t, "reports", aws.ToString(got.Bucket))
	assert.Equal(t, "logs-results/a.csv", aws.ToString(got.Key))
	assert.Equal(t, "text/csv", aws.ToString(got.ContentType))
	assert.Equal(t, "x,y\n", string(body))
}

func TestS3StorePresignCarriesExpiry(t *testing.T) {
	store := offlineStore("reports")

	link, err := store.Presign(context.Background(), "logs-results/a.csv", 7*24*time.Hour)
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "604800", u.Query().Get("X-Amz-Expires"))
	assert.True(t, strings.HasSuffix(u.Path, "/reports/logs-results/a.csv"), u.Path)
}

func TestS3StorePresignURI(t *testing.T) {
	store := offlineStore("unused")

	link, err := store.PresignURI(context.Background(), "s3://athena-out/results/q-1.csv", time.Hour)
	require.NoError(t, err)
	assert.Contains(t, link, "/athena-out/results/q-1.csv")

	_, err = store.PresignURI(context.Background(), "https://example.com/x", time.Hour)
	assert.Error(t, err)
}

func TestParseS3URI(t *testing.T) {
	bucket, key, err := ParseS3URI("s3://b/dir/file.csv")
	require.NoError(t, err)
	assert.Equal(t, "b", bucket)
	assert.Equal(t, "dir/file.csv", key)

	for _, bad := range []string{"s3://", "s3://bucket", "s3://bucket/", "bucket/key"} {
		_, _, err := ParseS3URI(bad)
		assert.Error(t, err, bad)
	}
}

func TestLocalStoreRoundTrip(t *testing.T) {
	root := t.TempDir()
	store := NewLocalStore(root)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "identitystore-results/users.csv", []byte("a\n"), "text/csv"))

	data, err := os.ReadFile(filepath.Join(root, "identitystore-results", "users.csv"))
	require.NoError(t, err)
	assert.Equal(t, "a\n", string(data))

	link, err := store.Presign(ctx, "identitystore-results/users.csv", time.Hour)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, "file://"), link)

	_, err = store.Presign(ctx, "missing.csv", time.Hour)
	assert.Error(t, err)
}
