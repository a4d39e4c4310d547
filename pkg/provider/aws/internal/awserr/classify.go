// Package awserr classifies AWS SDK errors into the domain's error
// taxonomy, using errors.As(smithy.APIError) to detect specific AWS
// error codes (including "already exists" on launch template
// creation) and mapping each family to a domain error kind.
package awserr

import (
	"errors"

	"github.com/aws/smithy-go"

	domainerrors "github.com/hostfactory/aws-provider/pkg/infrastructure/errors"
)

var throttlingCodes = map[string]bool{
	"Throttling":                            true,
	"ThrottlingException":                   true,
	"RequestLimitExceeded":                  true,
	"TooManyRequestsException":              true,
	"ProvisionedThroughputExceededException": true,
}

var authorizationCodes = map[string]bool{
	"UnauthorizedOperation":     true,
	"AccessDenied":              true,
	"AccessDeniedException":     true,
	"AuthFailure":               true,
	"Forbidden":                 true,
}

var capacityCodes = map[string]bool{
	"InsufficientInstanceCapacity": true,
	"InsufficientCapacity":         true,
	"Unsupported":                  true,
	"InsufficientHostCapacity":     true,
}

var networkCodes = map[string]bool{
	"RequestTimeout":       true,
	"RequestTimeoutException": true,
}

// AlreadyExistsCodes names the duplicate-resource error codes handlers
// treat as idempotent success (same request_id retried after a partial
// failure).
var AlreadyExistsCodes = map[string]bool{
	"InvalidLaunchTemplateName.AlreadyExistsException": true,
	"AlreadyExistsFault":                                true,
}

// Classify wraps err into the nearest domain error kind, preserving an
// already-classified *domainerrors.DomainError unchanged (the
// preservation rule: domain errors are never re-wrapped).
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *domainerrors.DomainError
	if errors.As(err, &de) {
		return de
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return domainerrors.Wrap(domainerrors.KindInfraOther, "AWS_CALL_FAILED", err)
	}

	code := apiErr.ErrorCode()
	switch {
	case throttlingCodes[code]:
		return domainerrors.New(domainerrors.KindInfraThrottling, "AWS_THROTTLED", apiErr.ErrorMessage(), map[string]any{"operation": op, "aws_code": code})
	case authorizationCodes[code]:
		return domainerrors.New(domainerrors.KindInfraAuthorization, "AWS_UNAUTHORIZED", apiErr.ErrorMessage(), map[string]any{"operation": op, "aws_code": code})
	case capacityCodes[code]:
		return domainerrors.New(domainerrors.KindInfraCapacity, "INSUFFICIENT_CAPACITY", apiErr.ErrorMessage(), map[string]any{"operation": op, "aws_code": code})
	case networkCodes[code]:
		return domainerrors.New(domainerrors.KindInfraNetwork, "AWS_NETWORK_ERROR", apiErr.ErrorMessage(), map[string]any{"operation": op, "aws_code": code})
	default:
		return domainerrors.New(domainerrors.KindInfraOther, "AWS_API_ERROR", apiErr.ErrorMessage(), map[string]any{"operation": op, "aws_code": code})
	}
}

// IsThrottling reports whether err's AWS error code is in the
// throttling family, used by the retry policy to decide whether to
// back off and retry versus fail fast.
func IsThrottling(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return throttlingCodes[apiErr.ErrorCode()]
}

// IsAlreadyExists reports whether err indicates the resource being
// created already exists.
func IsAlreadyExists(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return AlreadyExistsCodes[apiErr.ErrorCode()]
}
