package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/rds/types"

	"github.com/DrSkyle/cloudsentinel/pkg/resource"
)

type RDSClient interface {
	DescribeDBInstances(ctx context.Context, params *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error)
	ListTagsForResource(ctx context.Context, params *rds.ListTagsForResourceInput, optFns ...func(*rds.Options)) (*rds.ListTagsForResourceOutput, error)
	AddTagsToResource(ctx context.Context, params *rds.AddTagsToResourceInput, optFns ...func(*rds.Options)) (*rds.AddTagsToResourceOutput, error)
}

type RDSScanner struct {
	Client RDSClient
	Region string
}

func NewRDSScanner(cfg aws.Config) *RDSScanner {
	return &RDSScanner{
		Client: rds.NewFromConfig(cfg),
		Region: cfg.Region,
	}
}

// ListTaggedInstances returns DB instances whose tags contain key=value. Tags are read
// with ListTagsForResource per instance. The resource ID is the instance ARN.
func (s *RDSScanner) ListTaggedInstances(ctx context.Context, key, value string) ([]resource.TaggedResource, error) {
	paginator := rds.NewDescribeDBInstancesPaginator(s.Client, &rds.DescribeDBInstancesInput{})

	var out []resource.TaggedResource
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe db instances: %w", err)
		}

		for _, db := range page.DBInstances {
			arn := aws.ToString(db.DBInstanceArn)
			tagOut, err := s.Client.ListTagsForResource(ctx, &rds.ListTagsForResourceInput{
				ResourceName: aws.String(arn),
			})
			if err != nil {
				return nil, fmt.Errorf("failed to list tags for %s: %w", arn, err)
			}

			r := resource.TaggedResource{
				ID:     arn,
				Kind:   resource.KindDBInstance,
				Region: s.Region,
				Tags:   parseRDSTags(tagOut.TagList),
			}
			if r.HasTag(key, value) {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

// TagResource writes tags to one DB instance ARN in a single call.
func (s *RDSScanner) TagResource(ctx context.Context, arn string, tags map[string]string) error {
	rdsTags := make([]types.Tag, 0, len(tags))
	for _, k := range sortedKeys(tags) {
		rdsTags = append(rdsTags, types.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}

	_, err := s.Client.AddTagsToResource(ctx, &rds.AddTagsToResourceInput{
		ResourceName: aws.String(arn),
		Tags:         rdsTags,
	})
	if err != nil {
		return fmt.Errorf("failed to tag %s: %w", arn, err)
	}
	return nil
}

func parseRDSTags(tags []types.Tag) map[string]string {
	m := make(map[string]string, len(tags))
	for _, t := range tags {
		if t.Key != nil && t.Value != nil {
			m[*t.Key] = *t.Value
		}
	}
	return m
}
