package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// ExpiredResourcesMetric counts expired resources found per monitor pass.
const ExpiredResourcesMetric = "ExpiredResources"

type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchClient publishes monitor metrics.
type CloudWatchClient struct {
	Client    CloudWatchAPI
	Namespace string
}

func NewCloudWatchClient(cfg aws.Config, namespace string) *CloudWatchClient {
	return &CloudWatchClient{
		Client:    cloudwatch.NewFromConfig(cfg),
		Namespace: namespace,
	}
}

// PutExpiredCount records how many resources of kind were expired in accountID.
func (c *CloudWatchClient) PutExpiredCount(ctx context.Context, accountID, kind string, count int, at time.Time) error {
	if c.Namespace == "" {
		return nil
	}
	_, err := c.Client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(c.Namespace),
		MetricData: []types.MetricDatum{
			{
				MetricName: aws.String(ExpiredResourcesMetric),
				Dimensions: []types.Dimension{
					{Name: aws.String("AccountId"), Value: aws.String(accountID)},
					{Name: aws.String("ResourceType"), Value: aws.String(kind)},
				},
				Timestamp: aws.Time(at),
				Unit:      types.StandardUnitCount,
				Value:     aws.Float64(float64(count)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to put metric data: %w", err)
	}
	return nil
}
