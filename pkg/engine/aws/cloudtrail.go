package aws

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail/types"
)

// ErrCreatorNotFound is returned when no creation event is in the lookup window.
var ErrCreatorNotFound = errors.New("creator not found in CloudTrail (90 days)")

type CloudTrailAPI interface {
	LookupEvents(ctx context.Context, params *cloudtrail.LookupEventsInput, optFns ...func(*cloudtrail.Options)) (*cloudtrail.LookupEventsOutput, error)
}

// CloudTrailClient queries audit trails.
type CloudTrailClient struct {
	Client CloudTrailAPI
	Now    func() time.Time
}

func NewCloudTrailClient(cfg aws.Config) *CloudTrailClient {
	return &CloudTrailClient{
		Client: cloudtrail.NewFromConfig(cfg),
		Now:    time.Now,
	}
}

// LookupCreator searches CloudTrail for the resource creator (90 days).
// Only the first page is inspected; creation events sort newest first and are rare.
func (c *CloudTrailClient) LookupCreator(ctx context.Context, resourceID string) (string, error) {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	endTime := now()
	startTime := endTime.AddDate(0, 0, -90)

	paginator := cloudtrail.NewLookupEventsPaginator(c.Client, &cloudtrail.LookupEventsInput{
		LookupAttributes: []types.LookupAttribute{
			{
				AttributeKey:   types.LookupAttributeKeyResourceName,
				AttributeValue: aws.String(resourceID),
			},
		},
		StartTime:  &startTime,
		EndTime:    &endTime,
		MaxResults: aws.Int32(50),
	})

	if paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return "", err
		}

		for _, event := range output.Events {
			if isCreationEvent(aws.ToString(event.EventName)) {
				return aws.ToString(event.Username), nil
			}
		}
	}

	return "", ErrCreatorNotFound
}

func isCreationEvent(name string) bool {
	switch name {
	case "RunInstances", "CreateDBInstance":
		return true
	}
	return false
}
