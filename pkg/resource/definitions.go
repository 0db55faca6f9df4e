// Package resource defines the lifecycle-tracked infrastructure types shared by the
// ephemeral tagger and monitor.
package resource

import (
	"fmt"
	"time"
)

// Kind identifies a supported resource family.
type Kind string

const (
	KindEC2Instance Kind = "EC2"
	KindDBInstance  Kind = "RDS"
)

// SecurityHubType returns the ASFF resource type for the kind.
func (k Kind) SecurityHubType() string {
	switch k {
	case KindEC2Instance:
		return "AwsEc2Instance"
	case KindDBInstance:
		return "AwsRdsDbInstance"
	}
	return "Other"
}

// CloudFormation-style type names, used as the ResourceType metric dimension.
const (
	EC2Instance = "AWS::EC2::Instance"
	RDSInstance = "AWS::RDS::DBInstance"
)

// CloudFormationType returns the CloudFormation type name for the kind.
func (k Kind) CloudFormationType() string {
	switch k {
	case KindEC2Instance:
		return EC2Instance
	case KindDBInstance:
		return RDSInstance
	}
	return string(k)
}

// Well-known tag keys written by the tagger.
const (
	TagCreatedBy    = "CreatedBy"
	TagCreationDate = "CreationDate"
	TagName         = "Name"
)

// TaggedResource is an instance that carries the ephemeral opt-in marker.
type TaggedResource struct {
	ID     string // instance id for EC2, DB instance ARN for RDS
	Kind   Kind
	Region string
	Tags   map[string]string
}

// Tag returns the tag value or fallback when absent.
func (r TaggedResource) Tag(key, fallback string) string {
	if v, ok := r.Tags[key]; ok {
		return v
	}
	return fallback
}

// HasTag reports whether key is set to value.
func (r TaggedResource) HasTag(key, value string) bool {
	v, ok := r.Tags[key]
	return ok && v == value
}

// CreationDate parses the CreationDate tag with the rule for the resource's kind.
// ok is false when the tag is absent.
func (r TaggedResource) CreationDate() (t time.Time, ok bool, err error) {
	raw, present := r.Tags[TagCreationDate]
	if !present {
		return time.Time{}, false, nil
	}
	switch r.Kind {
	case KindDBInstance:
		t, err = ParseDatabaseCreationDate(raw)
	default:
		t, err = ParseComputeCreationDate(raw)
	}
	return t, true, err
}

// Layouts accepted for EC2 instances. The tagger writes plain dates, but instances
// tagged by hand commonly carry full ISO-8601 timestamps.
var computeLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

// ParseComputeCreationDate parses an EC2 CreationDate tag and keeps the calendar date
// written in the tag, whatever its offset.
func ParseComputeCreationDate(s string) (time.Time, error) {
	for _, layout := range computeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid isoformat string: %q", s)
}

// ParseDatabaseCreationDate parses an RDS CreationDate tag. Only YYYY-MM-DD is accepted.
func ParseDatabaseCreationDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("time data %q does not match format YYYY-MM-DD", s)
	}
	return t, nil
}

// DateOf drops the clock part of t, keeping the calendar date in UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Expired reports whether created is on or before threshold. The boundary is inclusive.
func Expired(created, threshold time.Time) bool {
	return !DateOf(created).After(DateOf(threshold))
}

// Threshold returns the cutoff date. Resources created on or before it are expired.
func Threshold(now time.Time, retentionDays int) time.Time {
	return DateOf(now).AddDate(0, 0, -retentionDays)
}
