package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/DrSkyle/cloudsentinel/pkg/config"
	"github.com/DrSkyle/cloudsentinel/pkg/engine/audit"
	awsengine "github.com/DrSkyle/cloudsentinel/pkg/engine/aws"
	"github.com/DrSkyle/cloudsentinel/pkg/engine/ephemeral"
	"github.com/DrSkyle/cloudsentinel/pkg/engine/report"
	"github.com/DrSkyle/cloudsentinel/pkg/telemetry"
)

// ReportsResponse is returned by the reporting handler.
type ReportsResponse struct {
	QueriesStatus []report.Outcome `json:"queries_status"`
}

// MonitorResponse is returned by the monitor handler.
type MonitorResponse struct {
	Accounts int      `json:"accounts"`
	Scanned  int      `json:"scanned"`
	Skipped  int      `json:"skipped"`
	Expired  []string `json:"expired"`
}

// Handlers exposes one Lambda entry point per function. A fresh Runtime is built for
// every invocation.
type Handlers struct {
	Config     config.Config
	Logger     *slog.Logger
	NewRuntime func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Runtime, error)
}

// NewHandlers returns handlers backed by real AWS clients.
func NewHandlers(cfg config.Config, logger *slog.Logger, opts Options) *Handlers {
	return &Handlers{
		Config: cfg,
		Logger: logger,
		NewRuntime: func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Runtime, error) {
			return NewRuntime(ctx, cfg, opts, logger)
		},
	}
}

// Reports runs the scheduled reporting job.
func (h *Handlers) Reports(ctx context.Context, event events.CloudWatchEvent) (ReportsResponse, error) {
	if err := h.Config.ValidateReports(); err != nil {
		return ReportsResponse{}, err
	}
	ctx, rt, done, err := h.begin(ctx, "Handler.Reports", event)
	if err != nil {
		return ReportsResponse{}, err
	}
	outcomes, err := rt.ReportJob().Run(ctx)
	done(err)
	return ReportsResponse{QueriesStatus: outcomes}, err
}

// Alerts classifies one CloudTrail event delivered through EventBridge.
func (h *Handlers) Alerts(ctx context.Context, event events.CloudWatchEvent) (audit.Decision, error) {
	if err := h.Config.ValidateAlerts(); err != nil {
		return audit.Decision{}, err
	}
	ctx, rt, done, err := h.begin(ctx, "Handler.Alerts", event)
	if err != nil {
		return audit.Decision{}, err
	}

	e, err := audit.ParseEvent(event.Detail)
	if err != nil {
		done(err)
		return audit.Decision{}, err
	}
	classifier, err := rt.Classifier()
	if err != nil {
		done(err)
		return audit.Decision{}, err
	}
	decision, err := classifier.Handle(ctx, e)
	done(err)
	return decision, err
}

// Tag stamps creator and creation date on opt-in resources.
func (h *Handlers) Tag(ctx context.Context, event events.CloudWatchEvent) (ephemeral.Response, error) {
	if err := h.Config.ValidateTagger(); err != nil {
		return ephemeral.Response{}, err
	}
	ctx, rt, done, err := h.begin(ctx, "Handler.Tag", event)
	if err != nil {
		return ephemeral.Response{}, err
	}
	resp, err := rt.Tagger().Handle(ctx, event.Detail)
	done(err)
	return resp, err
}

// Monitor expires opt-in resources across the configured accounts.
func (h *Handlers) Monitor(ctx context.Context, event events.CloudWatchEvent) (MonitorResponse, error) {
	if err := h.Config.ValidateMonitor(); err != nil {
		return MonitorResponse{}, err
	}
	ctx, rt, done, err := h.begin(ctx, "Handler.Monitor", event)
	if err != nil {
		return MonitorResponse{}, err
	}
	sum, err := rt.Monitor().Run(ctx)
	done(err)

	resp := MonitorResponse{Accounts: sum.Accounts, Scanned: sum.Scanned, Skipped: sum.Skipped, Expired: []string{}}
	for _, e := range sum.Expired {
		resp.Expired = append(resp.Expired, e.Resource.ID)
	}
	return resp, err
}

// begin builds the invocation runtime with a request-scoped logger and opens the
// invocation span. done must be called exactly once.
func (h *Handlers) begin(ctx context.Context, name string, event events.CloudWatchEvent) (context.Context, *Runtime, func(error), error) {
	logger := RequestLogger(ctx, h.logger()).With("handler", name)
	logger.Info("Invocation started", "event_id", event.ID, "detail_type", event.DetailType, "source", event.Source)

	ctx, span := telemetry.Tracer("cloudsentinel/app").Start(ctx, name)
	span.SetAttributes(attribute.String("event.id", event.ID), attribute.String("event.source", event.Source))

	done := func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("Invocation failed", awsengine.ErrorAttrs(err)...)
		} else {
			logger.Info("Invocation complete")
		}
		span.End()
	}

	rt, err := h.NewRuntime(ctx, h.Config, logger)
	if err != nil {
		err = fmt.Errorf("failed to build runtime: %w", err)
		done(err)
		return ctx, nil, nil, err
	}
	return ctx, rt, done, nil
}

// RequestLogger adds the Lambda request id when ctx carries one.
func RequestLogger(ctx context.Context, base *slog.Logger) *slog.Logger {
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		return base.With("request_id", lc.AwsRequestID)
	}
	return base
}

func (h *Handlers) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}
