package audit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/DrSkyle/cloudsentinel/pkg/engine/notifier"
	"github.com/DrSkyle/cloudsentinel/pkg/engine/policy"
)

// Classifier profiles.
const (
	ProfileIAM = "iam"
	ProfileAll = "all"
)

// DefaultIAMActions are the IAM write calls that alert by default.
var DefaultIAMActions = []string{
	"CreateRole", "DeleteRole", "AddUserToRole", "DeleteRolePolicy", "DeleteUserPolicy",
	"PutGroupPolicy", "PutRolePolicy", "PutUserPolicy", "CreatePolicy", "DeletePolicy",
	"CreatePolicyVersion", "DeletePolicyVersion", "AttachRolePolicy", "DetachRolePolicy",
	"AttachUserPolicy", "DetachUserPolicy", "AttachGroupPolicy", "DetachGroupPolicy",
	"AddUsersToGroup", "UpdateAssumeRolePolicy",
}

// DefaultExcludedSources are service principals whose IAM calls are routine.
var DefaultExcludedSources = []string{"ssm.amazonaws.com", "sso.amazonaws.com"}

// Config parameterizes the classifier.
type Config struct {
	SensitiveActions []string
	ExcludedSources  []string
	SensitiveTopic   string
	OtherTopic       string
}

// ProfileConfig returns the action sets for a named profile.
func ProfileConfig(profile, sensitiveTopic, otherTopic string) (Config, error) {
	cfg := Config{SensitiveTopic: sensitiveTopic, OtherTopic: otherTopic}
	switch profile {
	case ProfileIAM, "":
		cfg.SensitiveActions = append([]string(nil), DefaultIAMActions...)
		cfg.ExcludedSources = append([]string(nil), DefaultExcludedSources...)
	case ProfileAll:
	default:
		return Config{}, fmt.Errorf("unknown alert profile %q (want %s or %s)", profile, ProfileIAM, ProfileAll)
	}
	return cfg, nil
}

// Decision is the outcome of classifying one event.
type Decision struct {
	Sensitive bool
	Other     bool
	// SuppressedBy names the rule that muted the event, if any.
	SuppressedBy string
}

// Classifier routes audit events to the sensitive and other topics.
type Classifier struct {
	sensitive map[string]struct{}
	excluded  map[string]struct{}
	cfg       Config

	Publisher  notifier.Publisher
	Suppressor *policy.Suppressor
	Logger     *slog.Logger
}

func NewClassifier(cfg Config, pub notifier.Publisher) *Classifier {
	return &Classifier{
		sensitive: toSet(cfg.SensitiveActions),
		excluded:  toSet(cfg.ExcludedSources),
		cfg:       cfg,
		Publisher: pub,
	}
}

// IsSensitive: the action is listed and the caller is not an excluded source.
func (c *Classifier) IsSensitive(e Event) bool {
	_, listed := c.sensitive[e.EventName]
	_, excluded := c.excluded[e.SourceIPAddress]
	return listed && !excluded
}

// IsOther: the action is not listed.
func (c *Classifier) IsOther(e Event) bool {
	_, listed := c.sensitive[e.EventName]
	return !listed
}

// Handle classifies e and sends one notification per true predicate. The message is
// formatted before anything is sent, so a formatting error sends nothing. Delivery
// failures are logged and do not fail the invocation.
func (c *Classifier) Handle(ctx context.Context, e Event) (Decision, error) {
	d := Decision{Sensitive: c.IsSensitive(e), Other: c.IsOther(e)}
	if !d.Sensitive && !d.Other {
		return d, nil
	}

	body, err := FormatMessage(e)
	if err != nil {
		return d, err
	}

	muted, ruleID, err := c.Suppressor.Suppressed(ctx, policy.EvaluationContext{
		EventName:   e.EventName,
		EventSource: e.EventSource,
		SourceIP:    e.SourceIPAddress,
		AccountID:   e.AccountID(),
		Region:      e.AWSRegion,
		UserType:    e.UserIdentity.Type,
		User:        e.Actor(),
		Params:      e.Params(),
	})
	if err != nil {
		return d, err
	}
	if muted {
		d.SuppressedBy = ruleID
		c.logger().Info("Alert suppressed", "event", e.EventName, "account", e.AccountID(), "rule_id", ruleID)
		return d, nil
	}

	subject := Subject(e)
	if d.Sensitive {
		c.publish(ctx, c.cfg.SensitiveTopic, subject, body, e)
	}
	if d.Other {
		c.publish(ctx, c.cfg.OtherTopic, subject, body, e)
	}
	return d, nil
}

func (c *Classifier) publish(ctx context.Context, topic, subject, body string, e Event) {
	if err := c.Publisher.Publish(ctx, topic, subject, body); err != nil {
		c.logger().Error("Failed to publish alert", "event", e.EventName, "topic", topic, "error", err)
		return
	}
	c.logger().Info("Alert sent", "event", e.EventName, "account", e.AccountID(), "topic", topic)
}

func (c *Classifier) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// Subject is the notification subject for e.
func Subject(e Event) string {
	return fmt.Sprintf("CloudTrail Alert: %s in %s", e.EventName, e.AccountID())
}

// FormatMessage renders the alert body.
func FormatMessage(e Event) (string, error) {
	params, err := prettyJSON(e.RequestParameters, "null")
	if err != nil {
		return "", fmt.Errorf("failed to format request parameters: %w", err)
	}
	resources, err := prettyJSON(e.Resources, "[]")
	if err != nil {
		return "", fmt.Errorf("failed to format resources: %w", err)
	}

	var b strings.Builder
	b.WriteString("🔔 CloudTrail Alert Triggered\n\n")
	fmt.Fprintf(&b, "📌 Event: %s\n", e.EventName)
	fmt.Fprintf(&b, "📌 Source: %s\n", e.EventSource)
	fmt.Fprintf(&b, "📌 Account ID: %s\n", e.AccountID())
	fmt.Fprintf(&b, "📌 Region: %s\n", e.AWSRegion)
	fmt.Fprintf(&b, "👤 User Type: %s\n", e.UserIdentity.Type)
	fmt.Fprintf(&b, "👤 User: %s\n", e.Actor())
	fmt.Fprintf(&b, "🌍 Source IP: %s\n", e.SourceIPAddress)
	fmt.Fprintf(&b, "🕒 Time: %s\n\n", e.EventTime)
	fmt.Fprintf(&b, "🧾 Request Parameters:\n%s\n\n", params)
	fmt.Fprintf(&b, "📦 Resources:\n%s\n", resources)
	return b.String(), nil
}

func toSet(items []string) map[string]struct{} {
	s := make(map[string]struct{}, len(items))
	for _, i := range items {
		s[i] = struct{}{}
	}
	return s
}
