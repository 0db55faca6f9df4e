package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/DrSkyle/cloudsentinel/pkg/storage"
)

// NoResults replaces the link when a query produced no rows.
const NoResults = "No results available"

// Export defaults.
const (
	ContentType     = "text/csv"
	DefaultLinkTTL  = 7 * 24 * time.Hour
	timestampLayout = "2006-01-02_15-04-05"
)

// Exporter writes query rows as CSV to a blob store and hands back a retrieval link.
type Exporter struct {
	Store  storage.BlobStore
	Prefix string
	TTL    time.Duration
	Now    func() time.Time
}

func NewExporter(store storage.BlobStore, prefix string) *Exporter {
	return &Exporter{
		Store:  store,
		Prefix: prefix,
		TTL:    DefaultLinkTTL,
		Now:    time.Now,
	}
}

// WithPrefix returns a copy writing under a different key prefix.
func (e *Exporter) WithPrefix(prefix string) *Exporter {
	c := *e
	c.Prefix = prefix
	return &c
}

// Export uploads records as <prefix><timestamp>_<name> and returns a presigned link.
// With no records nothing is written and NoResults is returned.
func (e *Exporter) Export(ctx context.Context, records []Record, name string) (string, error) {
	if len(records) == 0 {
		return NoResults, nil
	}

	data, err := EncodeCSV(records)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", name, err)
	}

	key := Key(e.Prefix, name, e.now())
	if err := e.Store.Put(ctx, key, data, ContentType); err != nil {
		return "", err
	}

	ttl := e.TTL
	if ttl <= 0 {
		ttl = DefaultLinkTTL
	}
	link, err := e.Store.Presign(ctx, key, ttl)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", key, err)
	}
	return link, nil
}

func (e *Exporter) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// Key builds the object key for an export taken at t.
func Key(prefix, name string, t time.Time) string {
	return fmt.Sprintf("%s%s_%s", prefix, t.Format(timestampLayout), name)
}

// EncodeCSV writes a header taken from the first record followed by one row per record.
// Missing fields are left empty and fields outside the header are dropped.
func EncodeCSV(records []Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := records[0].Names()
	if err := w.Write(header); err != nil {
		return nil, err
	}

	row := make([]string, len(header))
	for _, r := range records {
		for i, name := range header {
			row[i], _ = r.Get(name)
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
