// Package audit classifies CloudTrail management events and alerts on sensitive activity.
package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// UserIdentity is the actor block of a CloudTrail record.
type UserIdentity struct {
	Type        string `json:"type"`
	PrincipalID string `json:"principalId"`
	ARN         string `json:"arn"`
	AccountID   string `json:"accountId"`
	UserName    string `json:"userName"`
}

// Event is the CloudTrail record carried in an EventBridge event's detail.
type Event struct {
	EventName          string          `json:"eventName"`
	EventSource        string          `json:"eventSource"`
	EventTime          string          `json:"eventTime"`
	AWSRegion          string          `json:"awsRegion"`
	SourceIPAddress    string          `json:"sourceIPAddress"`
	RecipientAccountID string          `json:"recipientAccountId"`
	UserIdentity       UserIdentity    `json:"userIdentity"`
	RequestParameters  json.RawMessage `json:"requestParameters"`
	ResponseElements   json.RawMessage `json:"responseElements"`
	Resources          json.RawMessage `json:"resources"`
}

// ParseEvent decodes an EventBridge detail payload.
func ParseEvent(detail []byte) (Event, error) {
	var e Event
	if len(bytes.TrimSpace(detail)) == 0 {
		return e, fmt.Errorf("event has no detail")
	}
	if err := json.Unmarshal(detail, &e); err != nil {
		return e, fmt.Errorf("failed to decode cloudtrail detail: %w", err)
	}
	return e, nil
}

// AccountID prefers the recipient account and falls back to the actor's account.
func (e Event) AccountID() string {
	if e.RecipientAccountID != "" {
		return e.RecipientAccountID
	}
	return e.UserIdentity.AccountID
}

// Actor is the user name, or the principal id for roles and services.
func (e Event) Actor() string {
	if e.UserIdentity.UserName != "" {
		return e.UserIdentity.UserName
	}
	return e.UserIdentity.PrincipalID
}

// Params decodes the request parameters into a map. Non-object payloads yield nil.
func (e Event) Params() map[string]interface{} {
	var m map[string]interface{}
	if len(e.RequestParameters) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.RequestParameters, &m); err != nil {
		return nil
	}
	return m
}

// prettyJSON re-indents raw with two spaces. Absent values print as null.
func prettyJSON(raw json.RawMessage, absent string) (string, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return absent, nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return "", err
	}
	return buf.String(), nil
}
