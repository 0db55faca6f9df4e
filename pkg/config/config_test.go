package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, DefaultBucket, cfg.Reports.Bucket)
	assert.Equal(t, 180*time.Second, cfg.Reports.AthenaTimeout)
	assert.Equal(t, DefaultExpirationDays, cfg.ExpirationDays)
	assert.Equal(t, "iam", cfg.Alerts.Profile)
	assert.Equal(t, "Ephemeral", cfg.Ephemeral.TagKey)
	assert.Empty(t, cfg.AccountIDs)
}

func TestLoadDeploymentEnv(t *testing.T) {
	t.Setenv("SNS_TOPIC_ARN", "arn:aws:sns:eu-west-1:111122223333:alerts")
	t.Setenv("ACCOUNT_IDS", "111122223333, 444455556666,")
	t.Setenv("EXPIRATION_DAYS", "14")
	t.Setenv("ATHENA_DB_NAME", "cloudtrail")
	t.Setenv("REPORTS_BUCKET", "my-reports")
	t.Setenv("REPORTS_ATHENA_TIMEOUT", "5m")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "arn:aws:sns:eu-west-1:111122223333:alerts", cfg.TopicARN)
	assert.Equal(t, []string{"111122223333", "444455556666"}, cfg.AccountIDs)
	assert.Equal(t, 14, cfg.ExpirationDays)
	assert.Equal(t, "cloudtrail", cfg.AthenaDatabase)
	assert.Equal(t, "my-reports", cfg.Reports.Bucket)
	assert.Equal(t, 5*time.Minute, cfg.Reports.AthenaTimeout)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cloudsentinel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
reports:
  named_query_ids: [q-1, q-2]
  log_queries:
    - title: Root logins
      query: fields @timestamp | filter userIdentity.type = "Root"
alerts:
  profile: all
`), 0o600))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, []string{"q-1", "q-2"}, cfg.Reports.NamedQueryIDs)
	require.Len(t, cfg.Reports.LogQueries, 1)
	assert.Equal(t, "Root logins", cfg.Reports.LogQueries[0].Title)
	assert.Equal(t, "all", cfg.Alerts.Profile)
	// Untouched defaults survive.
	assert.Equal(t, DefaultLogsRole, cfg.Reports.LogsRole)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateMonitor(t *testing.T) {
	cfg := Default()
	err := cfg.ValidateMonitor()
	assert.ErrorIs(t, err, ErrMissing)
	assert.ErrorContains(t, err, "ACCOUNT_IDS")
	assert.ErrorContains(t, err, "SNS_TOPIC_ARN")

	cfg.AccountIDs = []string{"1"}
	cfg.TopicARN = "arn:aws:sns:eu-west-1:1:t"
	assert.NoError(t, cfg.ValidateMonitor())
}

func TestValidateReports(t *testing.T) {
	cfg := Default()
	cfg.TopicARN = "arn:aws:sns:eu-west-1:1:t"
	cfg.Reports.NamedQueryIDs = []string{"q-1"}
	cfg.Reports.LogQueries = []LogQuery{{Title: "t", Query: "q"}}

	err := cfg.ValidateReports()
	assert.ErrorContains(t, err, "ATHENA_DB_NAME")
	assert.ErrorContains(t, err, "CLOUDWATCH_LOG_GROUP")
	assert.ErrorContains(t, err, "CLOUDWATCH_ACCOUNT")

	cfg.AthenaDatabase = "db"
	cfg.LogGroup = "/aws/cloudtrail"
	cfg.LogsAccount = "222233334444"
	assert.NoError(t, cfg.ValidateReports())
}

func TestValidateAlerts(t *testing.T) {
	cfg := Default()
	cfg.TopicARN = "arn:aws:sns:eu-west-1:1:t"
	assert.NoError(t, cfg.ValidateAlerts())

	cfg.Alerts.Profile = "s3"
	assert.ErrorContains(t, cfg.ValidateAlerts(), "alerts.profile")
}

func TestAlertTopics(t *testing.T) {
	sensitive, other := AlertsConfig{}.Topics("shared")
	assert.Equal(t, "shared", sensitive)
	assert.Equal(t, "shared", other)

	sensitive, other = AlertsConfig{SensitiveTopic: "a", OtherTopic: "b"}.Topics("shared")
	assert.Equal(t, "a", sensitive)
	assert.Equal(t, "b", other)
}
