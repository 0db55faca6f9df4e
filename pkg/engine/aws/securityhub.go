package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/securityhub"
	"github.com/aws/aws-sdk-go-v2/service/securityhub/types"

	"github.com/DrSkyle/cloudsentinel/pkg/resource"
)

// SecurityHubAPI is the subset of the Security Hub client used to raise findings.
type SecurityHubAPI interface {
	BatchImportFindings(ctx context.Context, params *securityhub.BatchImportFindingsInput, optFns ...func(*securityhub.Options)) (*securityhub.BatchImportFindingsOutput, error)
}

// FindingsSink imports expiry findings into Security Hub.
type FindingsSink struct {
	Client SecurityHubAPI
}

func NewFindingsSink(cfg aws.Config) *FindingsSink {
	return &FindingsSink{Client: securityhub.NewFromConfig(cfg)}
}

// Import sends findings in one batch. Any per-finding rejection is returned as an error.
func (s *FindingsSink) Import(ctx context.Context, findings ...resource.ExpiryFinding) error {
	if len(findings) == 0 {
		return nil
	}

	asff := make([]types.AwsSecurityFinding, 0, len(findings))
	for _, f := range findings {
		asff = append(asff, ToASFF(f))
	}

	out, err := s.Client.BatchImportFindings(ctx, &securityhub.BatchImportFindingsInput{Findings: asff})
	if err != nil {
		return fmt.Errorf("failed to import findings: %w", err)
	}
	if len(out.FailedFindings) > 0 {
		first := out.FailedFindings[0]
		return fmt.Errorf("security hub rejected %d finding(s), first %s: %s %s",
			len(out.FailedFindings), aws.ToString(first.Id), aws.ToString(first.ErrorCode), aws.ToString(first.ErrorMessage))
	}
	return nil
}

// ToASFF converts a finding to the AWS Security Finding Format.
func ToASFF(f resource.ExpiryFinding) types.AwsSecurityFinding {
	ts := f.CreatedAt.Format(time.RFC3339)
	return types.AwsSecurityFinding{
		SchemaVersion: aws.String(resource.FindingSchemaVersion),
		Id:            aws.String(f.ID),
		ProductArn:    aws.String(f.ProductARN()),
		GeneratorId:   aws.String(resource.FindingGeneratorID),
		AwsAccountId:  aws.String(f.AccountID),
		Types:         []string{resource.FindingType},
		CreatedAt:     aws.String(ts),
		UpdatedAt:     aws.String(ts),
		Severity:      &types.Severity{Label: types.SeverityLabel(f.Severity)},
		Title:         aws.String(f.Title()),
		Description:   aws.String(f.Description()),
		Resources: []types.Resource{
			{
				Type:      aws.String(f.Resource.Kind.SecurityHubType()),
				Id:        aws.String(f.Resource.ID),
				Partition: types.Partition(f.Partition),
				Region:    aws.String(f.Region),
			},
		},
		Compliance:  &types.Compliance{Status: types.ComplianceStatus(f.Compliance)},
		RecordState: types.RecordState(resource.RecordStateActive),
	}
}
