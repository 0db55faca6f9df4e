// Package config loads handler settings from the environment and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissing is wrapped by validation errors for unset required keys.
var ErrMissing = errors.New("missing required setting")

// Defaults.
const (
	DefaultRegion          = "us-east-1"
	DefaultBucket          = "athena-scheduled-reports"
	DefaultAthenaPrefix    = "athena-results/"
	DefaultLogsPrefix      = "cloudwatch-results/"
	DefaultDirectoryPrefix = "identitystore-results/"
	DefaultLogsRole        = "Cloudwatch_Reports"
	DefaultDirectoryRole   = "Lambda_Reports"
	DefaultEphemeralRole   = "EphemeralCrossAccountRole"
	DefaultBanner          = "Weekly report: Athena/CloudWatch queries + user review"
	DefaultExpirationDays  = 7
)

// LogQuery is a titled Logs Insights query.
type LogQuery struct {
	Title string `mapstructure:"title"`
	Query string `mapstructure:"query"`
}

// ReportsConfig drives the scheduled reporting job.
type ReportsConfig struct {
	Bucket          string        `mapstructure:"bucket"`
	AthenaPrefix    string        `mapstructure:"athena_prefix"`
	LogsPrefix      string        `mapstructure:"logs_prefix"`
	DirectoryPrefix string        `mapstructure:"directory_prefix"`
	NamedQueryIDs   []string      `mapstructure:"named_query_ids"`
	LogQueries      []LogQuery    `mapstructure:"log_queries"`
	LogsRole        string        `mapstructure:"logs_role"`
	DirectoryRole   string        `mapstructure:"directory_role"`
	AthenaTimeout   time.Duration `mapstructure:"athena_timeout"`
	LogsTimeout     time.Duration `mapstructure:"logs_timeout"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	Lookback        time.Duration `mapstructure:"lookback"`
	Banner          string        `mapstructure:"banner"`
}

// AlertsConfig drives the audit event classifier.
type AlertsConfig struct {
	Profile          string   `mapstructure:"profile"`
	SensitiveActions []string `mapstructure:"sensitive_actions"`
	ExcludedSources  []string `mapstructure:"excluded_sources"`
	SensitiveTopic   string   `mapstructure:"sensitive_topic"`
	OtherTopic       string   `mapstructure:"other_topic"`
	RulesFile        string   `mapstructure:"rules_file"`
}

// EphemeralConfig drives the tagger and the monitor.
type EphemeralConfig struct {
	Role             string `mapstructure:"role"`
	TagKey           string `mapstructure:"tag_key"`
	TagValue         string `mapstructure:"tag_value"`
	MetricsNamespace string `mapstructure:"metrics_namespace"`
}

// Config is the full settings tree. Top-level keys keep the deployment's env names.
type Config struct {
	Region       string `mapstructure:"region"`
	Profile      string `mapstructure:"profile"`
	LogLevel     string `mapstructure:"log_level"`
	JSONLogs     bool   `mapstructure:"json_logs"`
	OtelEndpoint string `mapstructure:"otel_endpoint"`
	SlackWebhook string `mapstructure:"slack_webhook"`

	TopicARN          string   `mapstructure:"sns_topic_arn"`
	LogGroup          string   `mapstructure:"cloudwatch_log_group"`
	IdentityStoreID   string   `mapstructure:"identity_store"`
	ManagementAccount string   `mapstructure:"mgmt_acct"`
	LogsAccount       string   `mapstructure:"cloudwatch_account"`
	AthenaDatabase    string   `mapstructure:"athena_db_name"`
	AccountIDs        []string `mapstructure:"account_ids"`
	ExpirationDays    int      `mapstructure:"expiration_days"`

	Reports   ReportsConfig   `mapstructure:"reports"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Ephemeral EphemeralConfig `mapstructure:"ephemeral"`
}

// Default returns a configuration with the deployment defaults filled in.
func Default() Config {
	return Config{
		Region:         DefaultRegion,
		LogLevel:       "INFO",
		JSONLogs:       true,
		ExpirationDays: DefaultExpirationDays,
		Reports: ReportsConfig{
			Bucket:          DefaultBucket,
			AthenaPrefix:    DefaultAthenaPrefix,
			LogsPrefix:      DefaultLogsPrefix,
			DirectoryPrefix: DefaultDirectoryPrefix,
			LogsRole:        DefaultLogsRole,
			DirectoryRole:   DefaultDirectoryRole,
			AthenaTimeout:   180 * time.Second,
			LogsTimeout:     60 * time.Second,
			PollInterval:    2 * time.Second,
			Lookback:        7 * 24 * time.Hour,
			Banner:          DefaultBanner,
		},
		Alerts: AlertsConfig{
			Profile: "iam",
		},
		Ephemeral: EphemeralConfig{
			Role:     DefaultEphemeralRole,
			TagKey:   "Ephemeral",
			TagValue: "True",
		},
	}
}

// envBindings maps config keys to the environment names used by the deployed functions.
var envBindings = map[string]string{
	"sns_topic_arn":        "SNS_TOPIC_ARN",
	"cloudwatch_log_group": "CLOUDWATCH_LOG_GROUP",
	"identity_store":       "IDENTITY_STORE",
	"mgmt_acct":            "MGMT_ACCT",
	"cloudwatch_account":   "CLOUDWATCH_ACCOUNT",
	"athena_db_name":       "ATHENA_DB_NAME",
	"account_ids":          "ACCOUNT_IDS",
	"expiration_days":      "EXPIRATION_DAYS",
	"region":               "AWS_REGION",
	"profile":              "AWS_PROFILE",
	"log_level":            "LOG_LEVEL",
	"otel_endpoint":        "OTEL_EXPORTER_OTLP_ENDPOINT",
	"slack_webhook":        "SLACK_WEBHOOK_URL",
}

// Register installs defaults and env bindings on v.
func Register(v *viper.Viper) {
	d := Default()
	v.SetDefault("region", d.Region)
	v.SetDefault("profile", "")
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("json_logs", d.JSONLogs)
	v.SetDefault("otel_endpoint", "")
	v.SetDefault("slack_webhook", "")
	v.SetDefault("sns_topic_arn", "")
	v.SetDefault("cloudwatch_log_group", "")
	v.SetDefault("identity_store", "")
	v.SetDefault("mgmt_acct", "")
	v.SetDefault("cloudwatch_account", "")
	v.SetDefault("athena_db_name", "")
	v.SetDefault("account_ids", []string{})
	v.SetDefault("expiration_days", d.ExpirationDays)

	v.SetDefault("reports.bucket", d.Reports.Bucket)
	v.SetDefault("reports.athena_prefix", d.Reports.AthenaPrefix)
	v.SetDefault("reports.logs_prefix", d.Reports.LogsPrefix)
	v.SetDefault("reports.directory_prefix", d.Reports.DirectoryPrefix)
	v.SetDefault("reports.named_query_ids", []string{})
	v.SetDefault("reports.logs_role", d.Reports.LogsRole)
	v.SetDefault("reports.directory_role", d.Reports.DirectoryRole)
	v.SetDefault("reports.athena_timeout", d.Reports.AthenaTimeout)
	v.SetDefault("reports.logs_timeout", d.Reports.LogsTimeout)
	v.SetDefault("reports.poll_interval", d.Reports.PollInterval)
	v.SetDefault("reports.lookback", d.Reports.Lookback)
	v.SetDefault("reports.banner", d.Reports.Banner)

	v.SetDefault("alerts.profile", d.Alerts.Profile)
	v.SetDefault("alerts.sensitive_actions", []string{})
	v.SetDefault("alerts.excluded_sources", []string{})
	v.SetDefault("alerts.sensitive_topic", "")
	v.SetDefault("alerts.other_topic", "")
	v.SetDefault("alerts.rules_file", "")

	v.SetDefault("ephemeral.role", d.Ephemeral.Role)
	v.SetDefault("ephemeral.tag_key", d.Ephemeral.TagKey)
	v.SetDefault("ephemeral.tag_value", d.Ephemeral.TagValue)
	v.SetDefault("ephemeral.metrics_namespace", "")

	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the optional config file and the environment into a Config.
func Load(v *viper.Viper, file string) (Config, error) {
	Register(v)
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.AccountIDs = cleanList(cfg.AccountIDs)
	cfg.Reports.NamedQueryIDs = cleanList(cfg.Reports.NamedQueryIDs)
	cfg.Alerts.SensitiveActions = cleanList(cfg.Alerts.SensitiveActions)
	cfg.Alerts.ExcludedSources = cleanList(cfg.Alerts.ExcludedSources)
	return cfg, nil
}

// cleanList trims entries and drops empty ones, so "1, 2," becomes [1 2].
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func missing(key string) error {
	return fmt.Errorf("%w: %s", ErrMissing, key)
}

// ValidateReports checks the settings the reporting job cannot run without.
func (c Config) ValidateReports() error {
	var errs []error
	if c.TopicARN == "" {
		errs = append(errs, missing("SNS_TOPIC_ARN"))
	}
	if c.Reports.Bucket == "" {
		errs = append(errs, missing("reports.bucket"))
	}
	if len(c.Reports.NamedQueryIDs) > 0 && c.AthenaDatabase == "" {
		errs = append(errs, missing("ATHENA_DB_NAME"))
	}
	if len(c.Reports.LogQueries) > 0 {
		if c.LogGroup == "" {
			errs = append(errs, missing("CLOUDWATCH_LOG_GROUP"))
		}
		if c.LogsAccount == "" {
			errs = append(errs, missing("CLOUDWATCH_ACCOUNT"))
		}
	}
	if c.IdentityStoreID != "" && c.ManagementAccount == "" {
		errs = append(errs, missing("MGMT_ACCT"))
	}
	return errors.Join(errs...)
}

// ValidateAlerts checks the classifier settings.
func (c Config) ValidateAlerts() error {
	var errs []error
	if c.TopicARN == "" && c.Alerts.SensitiveTopic == "" {
		errs = append(errs, missing("SNS_TOPIC_ARN"))
	}
	switch c.Alerts.Profile {
	case "iam", "all":
	default:
		errs = append(errs, fmt.Errorf("alerts.profile must be iam or all, got %q", c.Alerts.Profile))
	}
	return errors.Join(errs...)
}

// ValidateTagger checks the tagger settings.
func (c Config) ValidateTagger() error {
	if c.Ephemeral.Role == "" {
		return missing("ephemeral.role")
	}
	return nil
}

// ValidateMonitor checks the monitor settings.
func (c Config) ValidateMonitor() error {
	var errs []error
	if len(c.AccountIDs) == 0 {
		errs = append(errs, missing("ACCOUNT_IDS"))
	}
	if c.TopicARN == "" {
		errs = append(errs, missing("SNS_TOPIC_ARN"))
	}
	if c.ExpirationDays < 0 {
		errs = append(errs, fmt.Errorf("EXPIRATION_DAYS must not be negative, got %d", c.ExpirationDays))
	}
	if c.Ephemeral.Role == "" {
		errs = append(errs, missing("ephemeral.role"))
	}
	return errors.Join(errs...)
}

// Topics resolves the alert topics, falling back to the shared topic.
func (a AlertsConfig) Topics(shared string) (sensitive, other string) {
	sensitive, other = a.SensitiveTopic, a.OtherTopic
	if sensitive == "" {
		sensitive = shared
	}
	if other == "" {
		other = sensitive
	}
	return sensitive, other
}
