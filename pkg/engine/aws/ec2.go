package aws

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/DrSkyle/cloudsentinel/pkg/resource"
)

type EC2Client interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	CreateTags(ctx context.Context, params *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error)
}

type EC2Scanner struct {
	Client EC2Client
	Region string
}

func NewEC2Scanner(cfg aws.Config) *EC2Scanner {
	return &EC2Scanner{
		Client: ec2.NewFromConfig(cfg),
		Region: cfg.Region,
	}
}

// ListTaggedInstances returns every instance carrying tag key=value.
func (s *EC2Scanner) ListTaggedInstances(ctx context.Context, key, value string) ([]resource.TaggedResource, error) {
	paginator := ec2.NewDescribeInstancesPaginator(s.Client, &ec2.DescribeInstancesInput{
		Filters: []types.Filter{
			{Name: aws.String("tag:" + key), Values: []string{value}},
		},
	})

	var out []resource.TaggedResource
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe instances: %w", err)
		}

		for _, reservation := range page.Reservations {
			for _, instance := range reservation.Instances {
				out = append(out, resource.TaggedResource{
					ID:     aws.ToString(instance.InstanceId),
					Kind:   resource.KindEC2Instance,
					Region: s.Region,
					Tags:   parseTags(instance.Tags),
				})
			}
		}
	}
	return out, nil
}

// TagResource writes tags to one instance in a single call.
func (s *EC2Scanner) TagResource(ctx context.Context, instanceID string, tags map[string]string) error {
	_, err := s.Client.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{instanceID},
		Tags:      toEC2Tags(tags),
	})
	if err != nil {
		return fmt.Errorf("failed to tag %s: %w", instanceID, err)
	}
	return nil
}

func parseTags(tags []types.Tag) map[string]string {
	m := make(map[string]string, len(tags))
	for _, t := range tags {
		if t.Key != nil && t.Value != nil {
			m[*t.Key] = *t.Value
		}
	}
	return m
}

func toEC2Tags(tags map[string]string) []types.Tag {
	keys := sortedKeys(tags)
	out := make([]types.Tag, 0, len(keys))
	for _, k := range keys {
		out = append(out, types.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
