package ephemeral

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/DrSkyle/cloudsentinel/pkg/engine/notifier"
	"github.com/DrSkyle/cloudsentinel/pkg/resource"
	"github.com/DrSkyle/cloudsentinel/pkg/telemetry"
)

// Scanner lists opt-in resources of one kind.
type Scanner interface {
	ListTaggedInstances(ctx context.Context, key, value string) ([]resource.TaggedResource, error)
}

// FindingImporter records expiry findings.
type FindingImporter interface {
	Import(ctx context.Context, findings ...resource.ExpiryFinding) error
}

// CreatorLookup resolves who created a resource.
type CreatorLookup interface {
	LookupCreator(ctx context.Context, resourceID string) (string, error)
}

// MetricSink records per-kind expiry counts.
type MetricSink interface {
	PutExpiredCount(ctx context.Context, accountID, kind string, count int, at time.Time) error
}

// AccountScope holds the clients for one monitored account. Creators and Metrics are optional.
type AccountScope struct {
	AccountID string
	Region    string
	EC2       Scanner
	RDS       Scanner
	Findings  FindingImporter
	Creators  CreatorLookup
	Metrics   MetricSink
}

// Expiry is one expired resource found during a run.
type Expiry struct {
	AccountID string
	Resource  resource.TaggedResource
	FindingID string
}

// Summary describes a completed monitor run.
type Summary struct {
	Accounts int
	Scanned  int
	Skipped  int
	Expired  []Expiry
}

// Monitor scans each configured account for opt-in resources past their retention.
type Monitor struct {
	Accounts []string
	// Connect assumes the monitor role in accountID.
	Connect       func(ctx context.Context, accountID string) (*AccountScope, error)
	Publisher     notifier.Publisher
	Topic         string
	RetentionDays int
	TagKey        string
	TagValue      string
	Now           func() time.Time
	Logger        *slog.Logger
}

// Run scans accounts in order. The first account-level failure aborts the run and is
// returned along with the partial summary.
func (m *Monitor) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	now := m.now()
	threshold := resource.Threshold(now, m.RetentionDays)
	m.logger().Info("Starting ephemeral monitor", "accounts", len(m.Accounts), "retention_days", m.RetentionDays, "threshold", threshold.Format("2006-01-02"))

	tr := telemetry.Tracer("cloudsentinel/ephemeral")
	for _, accountID := range m.Accounts {
		ctx, span := tr.Start(ctx, "Monitor.Account")
		span.SetAttributes(attribute.String("account_id", accountID))

		err := m.scanAccount(ctx, accountID, threshold, now, &sum)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			return sum, fmt.Errorf("account %s: %w", accountID, err)
		}
		span.End()
		sum.Accounts++
	}

	m.logger().Info("Ephemeral monitor complete", "accounts", sum.Accounts, "scanned", sum.Scanned, "expired", len(sum.Expired), "skipped", sum.Skipped)
	return sum, nil
}

func (m *Monitor) scanAccount(ctx context.Context, accountID string, threshold, now time.Time, sum *Summary) error {
	scope, err := m.Connect(ctx, accountID)
	if err != nil {
		return err
	}

	for _, s := range []struct {
		kind    resource.Kind
		scanner Scanner
	}{
		{resource.KindEC2Instance, scope.EC2},
		{resource.KindDBInstance, scope.RDS},
	} {
		found, err := s.scanner.ListTaggedInstances(ctx, m.tagKey(), m.tagValue())
		if err != nil {
			return err
		}

		expired := 0
		for _, r := range found {
			sum.Scanned++
			created, ok, err := r.CreationDate()
			if !ok {
				m.logger().Warn("Skipping resource without CreationDate", "resource_id", r.ID, "account", scope.AccountID)
				sum.Skipped++
				continue
			}
			if err != nil {
				m.logger().Warn("Skipping resource with unparsable CreationDate", "resource_id", r.ID, "account", scope.AccountID, "value", r.Tags[resource.TagCreationDate], "error", err)
				sum.Skipped++
				continue
			}
			if !resource.Expired(created, threshold) {
				continue
			}

			finding, err := m.expire(ctx, scope, r, now)
			if err != nil {
				return err
			}
			expired++
			sum.Expired = append(sum.Expired, Expiry{AccountID: scope.AccountID, Resource: r, FindingID: finding.ID})
		}

		if scope.Metrics != nil {
			if err := scope.Metrics.PutExpiredCount(ctx, scope.AccountID, s.kind.CloudFormationType(), expired, now); err != nil {
				m.logger().Warn("Failed to record expiry metric", "account", scope.AccountID, "kind", s.kind, "error", err)
			}
		}
	}
	return nil
}

// expire notifies (best-effort) and then imports a fresh finding (must succeed).
func (m *Monitor) expire(ctx context.Context, scope *AccountScope, r resource.TaggedResource, now time.Time) (resource.ExpiryFinding, error) {
	createdBy := r.Tag(resource.TagCreatedBy, "")
	if createdBy == "" && scope.Creators != nil {
		if who, err := scope.Creators.LookupCreator(ctx, r.ID); err == nil {
			createdBy = who
		} else {
			m.logger().Debug("Creator lookup failed", "resource_id", r.ID, "error", err)
		}
	}

	subject, body := Notice(r, createdBy)
	if err := m.Publisher.Publish(ctx, m.Topic, subject, body); err != nil {
		m.logger().Error("Failed to publish expiry notice", "resource_id", r.ID, "error", err)
	}

	region := scope.Region
	if r.Region != "" {
		region = r.Region
	}
	finding := resource.NewExpiryFinding(r, scope.AccountID, region, m.RetentionDays, now)
	if err := scope.Findings.Import(ctx, finding); err != nil {
		return finding, err
	}
	m.logger().Info("Resource expired", "resource_id", r.ID, "kind", r.Kind, "account", scope.AccountID, "finding_id", finding.ID)
	return finding, nil
}

// Notice renders the expiry notification for r.
func Notice(r resource.TaggedResource, createdBy string) (subject, body string) {
	typ := r.Kind.SecurityHubType()
	subject = fmt.Sprintf("Ephemeral %s expired", typ)
	if createdBy == "" {
		createdBy = "Unknown"
	}

	keys := make([]string, 0, len(r.Tags))
	for k := range r.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %s", k, r.Tags[k]))
	}

	body = fmt.Sprintf("Ephemeral %s expired\n\nResource ID: %s\nName: %s\nCreationDate: %s\nCreatedBy: %s\n\nTags:\n%s",
		typ, r.ID,
		r.Tag(resource.TagName, "N/A"),
		r.Tag(resource.TagCreationDate, "Unknown"),
		createdBy,
		strings.Join(lines, "\n"))
	return subject, body
}

func (m *Monitor) tagKey() string {
	if m.TagKey == "" {
		return DefaultTagKey
	}
	return m.TagKey
}

func (m *Monitor) tagValue() string {
	if m.TagValue == "" {
		return DefaultTagValue
	}
	return m.TagValue
}

func (m *Monitor) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

func (m *Monitor) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}
