package aws

import (
	"errors"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"
)

// ErrorAttrs returns slog key/value pairs describing an SDK error: the error itself plus
// the service error code and request id when available. Authorization failures are
// flagged with access_denied.
func ErrorAttrs(err error) []any {
	attrs := []any{"error", err}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		attrs = append(attrs, "code", apiErr.ErrorCode())
	}
	if IsAccessDenied(err) {
		attrs = append(attrs, "access_denied", true)
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		attrs = append(attrs, "request_id", respErr.ServiceRequestID())
	}
	return attrs
}

// IsAccessDenied reports whether err is an authorization failure from any service.
func IsAccessDenied(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "AccessDenied", "AccessDeniedException", "UnauthorizedOperation", "AuthorizationError":
		return true
	}
	return false
}
