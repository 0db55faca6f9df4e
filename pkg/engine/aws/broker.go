package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// Session names identify the calling handler in the target account's CloudTrail.
const (
	SessionLogs          = "CrossAccountSession-logs"
	SessionIdentityStore = "CrossAccountSession-identitystore"
	SessionTagging       = "Tagging-Session"
	SessionMonitor       = "MonitorEphemeral"
)

// STSAPI is the subset of the STS client used by the broker.
type STSAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Broker exchanges the handler's identity for temporary credentials in another account.
type Broker interface {
	Assume(ctx context.Context, accountID, roleName, sessionName string) (aws.Config, error)
}

// STSBroker assumes roles through STS. Credentials are fetched on every call and never cached.
type STSBroker struct {
	Base      aws.Config
	Client    STSAPI
	Partition string
}

func NewSTSBroker(cfg aws.Config) *STSBroker {
	return &STSBroker{Base: cfg, Client: sts.NewFromConfig(cfg)}
}

// RoleARN builds arn:<partition>:iam::<account>:role/<role>.
func RoleARN(partition, accountID, roleName string) string {
	if partition == "" {
		partition = "aws"
	}
	return arn.ARN{
		Partition: partition,
		Service:   "iam",
		AccountID: accountID,
		Resource:  "role/" + roleName,
	}.String()
}

// Assume returns a copy of the base config authenticated as roleName in accountID.
func (b *STSBroker) Assume(ctx context.Context, accountID, roleName, sessionName string) (aws.Config, error) {
	roleArn := RoleARN(b.Partition, accountID, roleName)
	out, err := b.Client.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(roleArn),
		RoleSessionName: aws.String(sessionName),
	})
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to assume %s: %w", roleArn, err)
	}
	if out.Credentials == nil {
		return aws.Config{}, fmt.Errorf("assume %s returned no credentials", roleArn)
	}

	cfg := b.Base.Copy()
	cfg.Credentials = aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
		aws.ToString(out.Credentials.AccessKeyId),
		aws.ToString(out.Credentials.SecretAccessKey),
		aws.ToString(out.Credentials.SessionToken),
	))
	return cfg, nil
}

// CallerAccount returns the account id of the credentials behind client.
func CallerAccount(ctx context.Context, client STSAPI) (string, error) {
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to get caller identity: %w", err)
	}
	return aws.ToString(out.Account), nil
}
