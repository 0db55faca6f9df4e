// Package ephemeral tags opt-in EC2 and RDS resources at creation and expires them once
// they outlive their retention window.
package ephemeral

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/DrSkyle/cloudsentinel/pkg/engine/audit"
	"github.com/DrSkyle/cloudsentinel/pkg/resource"
)

// Opt-in marker defaults.
const (
	DefaultTagKey   = "Ephemeral"
	DefaultTagValue = "True"
	DefaultRole     = "EphemeralCrossAccountRole"
)

// Response is returned to the Lambda runtime as {"statusCode":..,"body":..}.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// ResourceTagger writes tags to one resource.
type ResourceTagger interface {
	TagResource(ctx context.Context, id string, tags map[string]string) error
}

// TagTargets are the tag writers inside one account.
type TagTargets struct {
	EC2 ResourceTagger
	RDS ResourceTagger
}

// Tagger stamps CreatedBy and CreationDate on newly created opt-in resources.
type Tagger struct {
	// Connect assumes the tagging role in the resource's account.
	Connect  func(ctx context.Context, accountID string) (TagTargets, error)
	TagKey   string
	TagValue string
	Now      func() time.Time
	Logger   *slog.Logger
}

type tagItem struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type runInstancesResponse struct {
	InstancesSet struct {
		Items []struct {
			InstanceID string `json:"instanceId"`
			TagSet     struct {
				Items []tagItem `json:"items"`
			} `json:"tagSet"`
		} `json:"items"`
	} `json:"instancesSet"`
}

type createDBInstanceResponse struct {
	DBInstanceArn string    `json:"dBInstanceArn"`
	TagList       []tagItem `json:"tagList"`
}

// Handle processes one CloudTrail creation event. Malformed events produce a 400 response,
// not an error; errors are reserved for role assumption and tag write failures.
func (t *Tagger) Handle(ctx context.Context, detail json.RawMessage) (Response, error) {
	if len(detail) == 0 || string(detail) == "null" {
		return missingKey("detail"), nil
	}
	e, err := audit.ParseEvent(detail)
	if err != nil {
		t.logger().Warn("Could not parse event detail", "error", err)
		return Response{StatusCode: http.StatusBadRequest, Body: InvalidEventFormat}, nil
	}
	if e.EventSource == "" {
		return missingKey("eventSource"), nil
	}
	if e.EventName == "" {
		return missingKey("eventName"), nil
	}

	var (
		kind resource.Kind
		id   string
		tags []tagItem
	)
	switch {
	case e.EventSource == "ec2.amazonaws.com" && e.EventName == "RunInstances":
		var resp runInstancesResponse
		if err := decodeElements(e.ResponseElements, &resp); err != nil || len(resp.InstancesSet.Items) == 0 || resp.InstancesSet.Items[0].InstanceID == "" {
			t.logger().Warn("Could not extract instance id", "event", e.EventName)
			return Response{StatusCode: http.StatusBadRequest, Body: "Invalid EC2 event format"}, nil
		}
		kind, id, tags = resource.KindEC2Instance, resp.InstancesSet.Items[0].InstanceID, resp.InstancesSet.Items[0].TagSet.Items
	case e.EventSource == "rds.amazonaws.com" && e.EventName == "CreateDBInstance":
		var resp createDBInstanceResponse
		if err := decodeElements(e.ResponseElements, &resp); err != nil || resp.DBInstanceArn == "" {
			t.logger().Warn("Could not extract db instance arn", "event", e.EventName)
			return Response{StatusCode: http.StatusBadRequest, Body: "Invalid RDS event format"}, nil
		}
		kind, id, tags = resource.KindDBInstance, resp.DBInstanceArn, resp.TagList
	default:
		return Response{StatusCode: http.StatusOK, Body: "No supported resource found"}, nil
	}

	if !hasMarker(tags, t.tagKey(), t.tagValue()) {
		return Response{StatusCode: http.StatusOK, Body: fmt.Sprintf("No Ephemeral tag found for %s resource: %s", kind, id)}, nil
	}

	createdBy := creator(e.UserIdentity)
	creationDate := t.now().UTC().Format("2006-01-02")
	t.logger().Info("Tagging ephemeral resource",
		"resource_id", id, "kind", kind, "account", e.RecipientAccountID,
		"created_by", createdBy, "creation_date", creationDate)

	targets, err := t.Connect(ctx, e.RecipientAccountID)
	if err != nil {
		return Response{}, err
	}
	writer := targets.EC2
	if kind == resource.KindDBInstance {
		writer = targets.RDS
	}

	if err := writer.TagResource(ctx, id, map[string]string{
		resource.TagCreatedBy:    createdBy,
		resource.TagCreationDate: creationDate,
	}); err != nil {
		return Response{}, err
	}

	return Response{StatusCode: http.StatusOK, Body: fmt.Sprintf("Tags added to %s resource: %s", kind, id)}, nil
}

// InvalidEventFormat is the body returned when detail is not a JSON object.
const InvalidEventFormat = "Invalid event format"

func missingKey(key string) Response {
	return Response{StatusCode: http.StatusBadRequest, Body: "Missing key: " + key}
}

func decodeElements(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("responseElements missing")
	}
	return json.Unmarshal(raw, v)
}

func hasMarker(tags []tagItem, key, value string) bool {
	for _, tag := range tags {
		if tag.Key == key && tag.Value == value {
			return true
		}
	}
	return false
}

// creator is the IAM user name, else the session or role name from the ARN.
func creator(u audit.UserIdentity) string {
	if u.UserName != "" {
		return u.UserName
	}
	if u.ARN != "" {
		return u.ARN[strings.LastIndex(u.ARN, "/")+1:]
	}
	if u.PrincipalID != "" {
		return u.PrincipalID
	}
	return "unknown"
}

func (t *Tagger) tagKey() string {
	if t.TagKey == "" {
		return DefaultTagKey
	}
	return t.TagKey
}

func (t *Tagger) tagValue() string {
	if t.TagValue == "" {
		return DefaultTagValue
	}
	return t.TagValue
}

func (t *Tagger) now() time.Time {
	if t.Now == nil {
		return time.Now()
	}
	return t.Now()
}

func (t *Tagger) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.Default()
	}
	return t.Logger
}
