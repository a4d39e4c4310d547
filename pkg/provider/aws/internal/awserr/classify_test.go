package awserr

import (
	"errors"
	"testing"

	"github.com/aws/smithy-go"

	domainerrors "github.com/hostfactory/aws-provider/pkg/infrastructure/errors"
)

type fakeAPIError struct {
	code    string
	message string
}

func (e fakeAPIError) Error() string   { return e.code + ": " + e.message }
func (e fakeAPIError) ErrorCode() string    { return e.code }
func (e fakeAPIError) ErrorMessage() string { return e.message }
func (e fakeAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultServer }

func TestClassifyMapsThrottlingCodes(t *testing.T) {
	err := Classify("RunInstances", fakeAPIError{code: "RequestLimitExceeded", message: "slow down"})
	var de *domainerrors.DomainError
	if !errors.As(err, &de) {
		t.Fatalf("expected a *DomainError, got %T", err)
	}
	if de.Kind != domainerrors.KindInfraThrottling {
		t.Fatalf("got kind %q, want %q", de.Kind, domainerrors.KindInfraThrottling)
	}
	if de.Details["operation"] != "RunInstances" {
		t.Fatalf("expected operation detail to be preserved, got %v", de.Details)
	}
}

func TestClassifyMapsAuthorizationCodes(t *testing.T) {
	err := Classify("CreateFleet", fakeAPIError{code: "UnauthorizedOperation", message: "nope"})
	var de *domainerrors.DomainError
	if !errors.As(err, &de) {
		t.Fatalf("expected a *DomainError, got %T", err)
	}
	if de.Kind != domainerrors.KindInfraAuthorization {
		t.Fatalf("got kind %q, want %q", de.Kind, domainerrors.KindInfraAuthorization)
	}
}

func TestClassifyMapsCapacityCodes(t *testing.T) {
	err := Classify("RunInstances", fakeAPIError{code: "InsufficientInstanceCapacity", message: "no capacity"})
	var de *domainerrors.DomainError
	if !errors.As(err, &de) {
		t.Fatalf("expected a *DomainError, got %T", err)
	}
	if de.Kind != domainerrors.KindInfraCapacity {
		t.Fatalf("got kind %q, want %q", de.Kind, domainerrors.KindInfraCapacity)
	}
}

func TestClassifyFallsBackToInfraOtherForUnknownCodes(t *testing.T) {
	err := Classify("DescribeInstances", fakeAPIError{code: "SomeNewAWSError", message: "??"})
	var de *domainerrors.DomainError
	if !errors.As(err, &de) {
		t.Fatalf("expected a *DomainError, got %T", err)
	}
	if de.Kind != domainerrors.KindInfraOther {
		t.Fatalf("got kind %q, want %q", de.Kind, domainerrors.KindInfraOther)
	}
}

func TestClassifyWrapsNonAPIErrors(t *testing.T) {
	err := Classify("RunInstances", errors.New("connection reset"))
	var de *domainerrors.DomainError
	if !errors.As(err, &de) {
		t.Fatalf("expected a *DomainError, got %T", err)
	}
	if de.Kind != domainerrors.KindInfraOther || de.Code != "AWS_CALL_FAILED" {
		t.Fatalf("got kind=%q code=%q", de.Kind, de.Code)
	}
}

func TestClassifyPreservesAlreadyClassifiedErrors(t *testing.T) {
	original := domainerrors.Validation("BAD_INPUT", "bad", nil)
	if got := Classify("RunInstances", original); got != error(original) {
		t.Fatalf("expected the same *DomainError instance back, got %v", got)
	}
}

func TestIsThrottling(t *testing.T) {
	if !IsThrottling(fakeAPIError{code: "ThrottlingException"}) {
		t.Fatal("expected ThrottlingException to be classified as throttling")
	}
	if IsThrottling(fakeAPIError{code: "ValidationError"}) {
		t.Fatal("expected ValidationError not to be classified as throttling")
	}
	if IsThrottling(errors.New("not an api error")) {
		t.Fatal("expected a non-API error to not be throttling")
	}
}

func TestIsAlreadyExists(t *testing.T) {
	if !IsAlreadyExists(fakeAPIError{code: "InvalidLaunchTemplateName.AlreadyExistsException"}) {
		t.Fatal("expected the launch-template-exists code to match")
	}
	if IsAlreadyExists(fakeAPIError{code: "ValidationError"}) {
		t.Fatal("expected an unrelated code to not match")
	}
}
