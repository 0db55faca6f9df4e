package resource

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Finding constants shared by every expiry record.
const (
	FindingSchemaVersion = "2018-10-08"
	FindingGeneratorID   = "ephemeral-monitor"
	FindingType          = "Software and Configuration Checks/AWS Security Best Practices"
	SeverityMedium       = "MEDIUM"
	ComplianceFailed     = "FAILED"
	RecordStateActive    = "ACTIVE"
)

// ExpiryFinding is a compliance record for a resource that outlived its retention window.
// A new one is built for every detection; they are never deduplicated.
type ExpiryFinding struct {
	ID            string
	Resource      TaggedResource
	AccountID     string
	Region        string
	Partition     string
	Severity      string
	Compliance    string
	RetentionDays int
	CreatedAt     time.Time
}

// NewExpiryFinding builds a finding with a fresh UUID.
func NewExpiryFinding(r TaggedResource, accountID, region string, retentionDays int, now time.Time) ExpiryFinding {
	return ExpiryFinding{
		ID:            uuid.NewString(),
		Resource:      r,
		AccountID:     accountID,
		Region:        region,
		Partition:     "aws",
		Severity:      SeverityMedium,
		Compliance:    ComplianceFailed,
		RetentionDays: retentionDays,
		CreatedAt:     now.UTC(),
	}
}

// ProductARN is the default Security Hub product for the owning account.
func (f ExpiryFinding) ProductARN() string {
	return fmt.Sprintf("arn:%s:securityhub:%s:%s:product/%s/default", f.Partition, f.Region, f.AccountID, f.AccountID)
}

func (f ExpiryFinding) Title() string {
	return fmt.Sprintf("Ephemeral %s Expired", f.Resource.Kind.SecurityHubType())
}

func (f ExpiryFinding) Description() string {
	return fmt.Sprintf("%s %s exceeded %d-day lifespan.", f.Resource.Kind.SecurityHubType(), f.Resource.ID, f.RetentionDays)
}
