package resource

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseComputeCreationDate(t *testing.T) {
	want := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{
		"2025-03-14",
		"2025-03-14T09:26:53",
		"2025-03-14T09:26:53.589793",
		"2025-03-14T09:26:53Z",
		"2025-03-14T09:26:53+00:00",
	} {
		got, err := ParseComputeCreationDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseComputeCreationDate("14/03/2025")
	assert.Error(t, err)
}

func TestParseComputeCreationDateKeepsStampedDate(t *testing.T) {
	got, err := ParseComputeCreationDate("2025-03-07T23:30:00-05:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC), got)

	got, err = ParseComputeCreationDate("2025-03-08T00:30:00+09:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC), got)

	// The stamped date sits on the inclusive boundary.
	threshold := time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC)
	stamped, err := ParseComputeCreationDate("2025-03-08T23:30:00-05:00")
	require.NoError(t, err)
	assert.True(t, Expired(stamped, threshold))
}

func TestKindCloudFormationType(t *testing.T) {
	assert.Equal(t, "AWS::EC2::Instance", KindEC2Instance.CloudFormationType())
	assert.Equal(t, "AWS::RDS::DBInstance", KindDBInstance.CloudFormationType())
}

func TestParseDatabaseCreationDateIsStrict(t *testing.T) {
	got, err := ParseDatabaseCreationDate("2025-03-14")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), got)

	// EC2 accepts this, RDS does not.
	_, err = ParseDatabaseCreationDate("2025-03-14T09:26:53")
	assert.Error(t, err)
}

func TestExpiredBoundaryIsInclusive(t *testing.T) {
	now := time.Date(2025, 6, 30, 15, 4, 5, 0, time.UTC)
	threshold := Threshold(now, 7)
	assert.Equal(t, time.Date(2025, 6, 23, 0, 0, 0, 0, time.UTC), threshold)

	tests := []struct {
		name    string
		created time.Time
		want    bool
	}{
		{"equal to threshold", threshold, true},
		{"one day older than threshold", threshold.AddDate(0, 0, -1), true},
		{"one day newer than threshold", threshold.AddDate(0, 0, 1), false},
		{"created today", now, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Expired(tt.created, threshold))
		})
	}
}

func TestTaggedResourceCreationDate(t *testing.T) {
	r := TaggedResource{ID: "i-1", Kind: KindEC2Instance, Tags: map[string]string{"Ephemeral": "True"}}
	_, ok, err := r.CreationDate()
	assert.False(t, ok)
	assert.NoError(t, err)

	r.Tags[TagCreationDate] = "not-a-date"
	_, ok, err = r.CreationDate()
	assert.True(t, ok)
	assert.Error(t, err)

	db := TaggedResource{ID: "arn:aws:rds:eu-west-1:1:db:x", Kind: KindDBInstance, Tags: map[string]string{TagCreationDate: "2025-01-02T00:00:00"}}
	_, ok, err = db.CreationDate()
	assert.True(t, ok)
	assert.Error(t, err)
}

func TestNewExpiryFinding(t *testing.T) {
	r := TaggedResource{ID: "i-0abc", Kind: KindEC2Instance}
	a := NewExpiryFinding(r, "111122223333", "eu-west-1", 7, time.Now())
	b := NewExpiryFinding(r, "111122223333", "eu-west-1", 7, time.Now())

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "arn:aws:securityhub:eu-west-1:111122223333:product/111122223333/default", a.ProductARN())
	assert.Equal(t, "Ephemeral AwsEc2Instance Expired", a.Title())
	assert.Equal(t, "AwsEc2Instance i-0abc exceeded 7-day lifespan.", a.Description())
	assert.Equal(t, SeverityMedium, a.Severity)
	assert.Equal(t, ComplianceFailed, a.Compliance)
}
