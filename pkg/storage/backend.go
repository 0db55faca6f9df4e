package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// BlobStore defines the interface for artifact backends used by the exporter.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Presign returns a link granting temporary read access to key.
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// ParseS3URI splits "s3://bucket/key" into its bucket and key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	if !strings.HasPrefix(uri, "s3://") {
		return "", "", fmt.Errorf("not an s3 uri: %q", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "s3://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("s3 uri must name a bucket and key: %q", uri)
	}
	return parts[0], parts[1], nil
}
