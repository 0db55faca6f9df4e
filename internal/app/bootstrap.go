// Package app wires configuration, AWS clients and engines into the four handlers.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/DrSkyle/cloudsentinel/pkg/config"
	"github.com/DrSkyle/cloudsentinel/pkg/engine/audit"
	awsengine "github.com/DrSkyle/cloudsentinel/pkg/engine/aws"
	"github.com/DrSkyle/cloudsentinel/pkg/engine/ephemeral"
	"github.com/DrSkyle/cloudsentinel/pkg/engine/notifier"
	"github.com/DrSkyle/cloudsentinel/pkg/engine/policy"
	"github.com/DrSkyle/cloudsentinel/pkg/engine/report"
	"github.com/DrSkyle/cloudsentinel/pkg/engine/reporting"
	"github.com/DrSkyle/cloudsentinel/pkg/storage"
)

// Options change how a Runtime reaches the outside world.
type Options struct {
	// DryRun prints notifications to Out instead of publishing them.
	DryRun bool
	Out    io.Writer
	// LocalOut writes report exports under this directory instead of S3.
	LocalOut string
	Verbose  bool
}

// Runtime holds the collaborators for one invocation. Nothing is shared across invocations.
type Runtime struct {
	Config    config.Config
	AWS       *awsengine.Client
	Broker    awsengine.Broker
	Publisher notifier.Publisher
	Store     storage.BlobStore
	Signer    reporting.URISigner
	Logger    *slog.Logger
	Now       func() time.Time
}

// NewRuntime loads AWS credentials and builds the outbound adapters.
func NewRuntime(ctx context.Context, cfg config.Config, opts Options, logger *slog.Logger) (*Runtime, error) {
	client, err := awsengine.NewClient(ctx, cfg.Region, cfg.Profile, opts.Verbose)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS client: %w", err)
	}

	s3Store := storage.NewS3Store(client.Config, cfg.Reports.Bucket)
	rt := &Runtime{
		Config:    cfg,
		AWS:       client,
		Broker:    client.Broker(),
		Publisher: newPublisher(client, cfg, opts),
		Store:     s3Store,
		Signer:    s3Store,
		Logger:    logger,
		Now:       time.Now,
	}
	if opts.LocalOut != "" {
		rt.Store = storage.NewLocalStore(opts.LocalOut)
	}
	return rt, nil
}

func newPublisher(client *awsengine.Client, cfg config.Config, opts Options) notifier.Publisher {
	if opts.DryRun {
		out := opts.Out
		if out == nil {
			out = os.Stdout
		}
		return notifier.WriterPublisher{W: out}
	}
	pubs := notifier.Fanout{notifier.NewSNSPublisher(client.Config)}
	if cfg.SlackWebhook != "" {
		pubs = append(pubs, notifier.NewSlackClient(cfg.SlackWebhook, ""))
	}
	return pubs
}

// ReportJob builds the scheduled reporting job.
func (r *Runtime) ReportJob() *reporting.Job {
	c := r.Config
	job := &reporting.Job{
		Athena:          awsengine.NewAthenaEngine(r.AWS.Config, fmt.Sprintf("s3://%s/%s", c.Reports.Bucket, c.Reports.AthenaPrefix)),
		Database:        c.AthenaDatabase,
		NamedQueryIDs:   c.Reports.NamedQueryIDs,
		Signer:          r.Signer,
		Exporter:        report.NewExporter(r.Store, ""),
		LogsPrefix:      c.Reports.LogsPrefix,
		DirectoryPrefix: c.Reports.DirectoryPrefix,
		Publisher:       r.Publisher,
		Topic:           c.TopicARN,
		Banner:          c.Reports.Banner,
		AthenaTimeout:   c.Reports.AthenaTimeout,
		LogsTimeout:     c.Reports.LogsTimeout,
		Interval:        c.Reports.PollInterval,
		Lookback:        c.Reports.Lookback,
		Now:             r.Now,
		Logger:          r.Logger,
	}

	for _, q := range c.Reports.LogQueries {
		job.LogQueries = append(job.LogQueries, reporting.LogQuery{Title: q.Title, Query: q.Query})
	}
	if len(job.LogQueries) > 0 {
		job.ConnectLogs = func(ctx context.Context) (reporting.LogsRunner, error) {
			cfg, err := r.Broker.Assume(ctx, c.LogsAccount, c.Reports.LogsRole, awsengine.SessionLogs)
			if err != nil {
				return nil, err
			}
			return awsengine.NewLogsEngine(cfg, c.LogGroup), nil
		}
	}
	if c.IdentityStoreID != "" {
		job.ConnectDirectory = func(ctx context.Context) (reporting.DirectoryLister, error) {
			cfg, err := r.Broker.Assume(ctx, c.ManagementAccount, c.Reports.DirectoryRole, awsengine.SessionIdentityStore)
			if err != nil {
				return nil, err
			}
			return awsengine.NewDirectory(cfg, c.IdentityStoreID), nil
		}
	}
	return job
}

// Classifier builds the audit classifier, loading suppression rules when configured.
func (r *Runtime) Classifier() (*audit.Classifier, error) {
	a := r.Config.Alerts
	sensitive, other := a.Topics(r.Config.TopicARN)
	cfg, err := audit.ProfileConfig(a.Profile, sensitive, other)
	if err != nil {
		return nil, err
	}
	if len(a.SensitiveActions) > 0 {
		cfg.SensitiveActions = a.SensitiveActions
	}
	if len(a.ExcludedSources) > 0 {
		cfg.ExcludedSources = a.ExcludedSources
	}

	c := audit.NewClassifier(cfg, r.Publisher)
	c.Logger = r.Logger
	if a.RulesFile != "" {
		rules, err := policy.LoadRules(a.RulesFile)
		if err != nil {
			return nil, err
		}
		s, err := policy.NewSuppressor(rules)
		if err != nil {
			return nil, err
		}
		c.Suppressor = s
	}
	return c, nil
}

// Tagger builds the ephemeral tagger. Tags are written through the tagging role.
func (r *Runtime) Tagger() *ephemeral.Tagger {
	e := r.Config.Ephemeral
	return &ephemeral.Tagger{
		Connect: func(ctx context.Context, accountID string) (ephemeral.TagTargets, error) {
			cfg, err := r.Broker.Assume(ctx, accountID, e.Role, awsengine.SessionTagging)
			if err != nil {
				return ephemeral.TagTargets{}, err
			}
			return ephemeral.TagTargets{
				EC2: awsengine.NewEC2Scanner(cfg),
				RDS: awsengine.NewRDSScanner(cfg),
			}, nil
		},
		TagKey:   e.TagKey,
		TagValue: e.TagValue,
		Now:      r.Now,
		Logger:   r.Logger,
	}
}

// Monitor builds the ephemeral monitor over the configured accounts.
func (r *Runtime) Monitor() *ephemeral.Monitor {
	c := r.Config
	return &ephemeral.Monitor{
		Accounts: c.AccountIDs,
		Connect: func(ctx context.Context, accountID string) (*ephemeral.AccountScope, error) {
			cfg, err := r.Broker.Assume(ctx, accountID, c.Ephemeral.Role, awsengine.SessionMonitor)
			if err != nil {
				return nil, err
			}
			clients, err := awsengine.NewAccountClients(ctx, cfg, c.Ephemeral.MetricsNamespace)
			if err != nil {
				return nil, err
			}
			return &ephemeral.AccountScope{
				AccountID: clients.AccountID,
				Region:    clients.Region,
				EC2:       clients.EC2,
				RDS:       clients.RDS,
				Findings:  clients.Findings,
				Creators:  clients.CloudTrail,
				Metrics:   clients.Metrics,
			}, nil
		},
		Publisher:     r.Publisher,
		Topic:         c.TopicARN,
		RetentionDays: c.ExpirationDays,
		TagKey:        c.Ephemeral.TagKey,
		TagValue:      c.Ephemeral.TagValue,
		Now:           r.Now,
		Logger:        r.Logger,
	}
}
