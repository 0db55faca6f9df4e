package notifier

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// MaxSubjectLength is the SNS limit for email subjects.
const MaxSubjectLength = 100

// SNSAPI is the subset of the SNS client used for publishing.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSPublisher publishes to SNS topics.
type SNSPublisher struct {
	Client SNSAPI
}

func NewSNSPublisher(cfg aws.Config) *SNSPublisher {
	return &SNSPublisher{Client: sns.NewFromConfig(cfg)}
}

func (p *SNSPublisher) Publish(ctx context.Context, topic, subject, message string) error {
	if topic == "" {
		return fmt.Errorf("sns publish: topic arn is empty")
	}
	_, err := p.Client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(topic),
		Subject:  aws.String(truncateSubject(subject)),
		Message:  aws.String(message),
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

func truncateSubject(s string) string {
	r := []rune(s)
	if len(r) <= MaxSubjectLength {
		return s
	}
	return string(r[:MaxSubjectLength])
}
