package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// AccountClients bundles the clients the ephemeral monitor needs inside one target account.
type AccountClients struct {
	AccountID string
	Region    string

	EC2        *EC2Scanner
	RDS        *RDSScanner
	Findings   *FindingsSink
	CloudTrail *CloudTrailClient
	Metrics    *CloudWatchClient
}

// NewAccountClients resolves the account behind cfg and builds its clients.
func NewAccountClients(ctx context.Context, cfg aws.Config, metricsNamespace string) (*AccountClients, error) {
	accountID, err := CallerAccount(ctx, sts.NewFromConfig(cfg))
	if err != nil {
		return nil, err
	}
	return &AccountClients{
		AccountID:  accountID,
		Region:     cfg.Region,
		EC2:        NewEC2Scanner(cfg),
		RDS:        NewRDSScanner(cfg),
		Findings:   NewFindingsSink(cfg),
		CloudTrail: NewCloudTrailClient(cfg),
		Metrics:    NewCloudWatchClient(cfg, metricsNamespace),
	}, nil
}
