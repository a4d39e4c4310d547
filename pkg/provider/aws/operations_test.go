package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/smithy-go"

	domainerrors "github.com/hostfactory/aws-provider/pkg/infrastructure/errors"
)

func (e fakeOpAPIError) Error() string                { return e.code }
func (e fakeOpAPIError) ErrorCode() string             { return e.code }
func (e fakeOpAPIError) ErrorMessage() string          { return e.code }
func (e fakeOpAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultServer }

type fakeOpAPIError struct{ code string }

func TestOperationsCallRetriesOnThrottling(t *testing.T) {
	o := NewOperations(3)
	attempts := 0
	err := o.Call(context.Background(), "RunInstances", func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return fakeOpAPIError{code: "RequestLimitExceeded"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("got %d attempts, want 3", attempts)
	}
}

func TestOperationsCallFailsFastOnNonThrottlingErrors(t *testing.T) {
	o := NewOperations(3)
	attempts := 0
	err := o.Call(context.Background(), "RunInstances", func(ctx context.Context) error {
		attempts++
		return fakeOpAPIError{code: "UnauthorizedOperation"}
	})
	if attempts != 1 {
		t.Fatalf("got %d attempts, want 1 for a non-retryable error", attempts)
	}
	var de *domainerrors.DomainError
	if !errors.As(err, &de) || de.Kind != domainerrors.KindInfraAuthorization {
		t.Fatalf("got %v, want a classified authorization error", err)
	}
}

func TestOperationsCallExhaustsRetriesAndReturnsClassifiedError(t *testing.T) {
	o := NewOperations(2)
	attempts := 0
	err := o.Call(context.Background(), "RunInstances", func(ctx context.Context) error {
		attempts++
		return fakeOpAPIError{code: "RequestLimitExceeded"}
	})
	if attempts != 3 {
		t.Fatalf("got %d attempts, want maxRetries+1 = 3", attempts)
	}
	var de *domainerrors.DomainError
	if !errors.As(err, &de) || de.Kind != domainerrors.KindInfraThrottling {
		t.Fatalf("got %v, want a classified throttling error", err)
	}
}

func TestOperationsCallCriticalOpensBreakerAfterRepeatedFailures(t *testing.T) {
	o := NewOperations(1)
	// A non-throttling error short-circuits retry.Do's RetryIf, so each
	// CallCritical below counts as exactly one failure against the breaker.
	fail := func(ctx context.Context) error { return fakeOpAPIError{code: "UnauthorizedOperation"} }
	for i := 0; i < 5; i++ {
		if err := o.CallCritical(context.Background(), "TerminateInstances", fail); err == nil {
			t.Fatalf("call %d: expected an error", i)
		}
	}
	if got := o.BreakerStates()["TerminateInstances"]; got != "open" {
		t.Fatalf("got breaker state %q, want open", got)
	}

	called := false
	err := o.CallCritical(context.Background(), "TerminateInstances", func(ctx context.Context) error {
		called = true
		return nil
	})
	if called {
		t.Fatal("expected the call to be skipped while the breaker is open")
	}
	var openErr ErrCircuitOpen
	if !errors.As(err, &openErr) {
		t.Fatalf("got %v, want ErrCircuitOpen", err)
	}
}

func TestOperationsBreakerStatesEmptyUntilTouched(t *testing.T) {
	o := NewOperations(1)
	if states := o.BreakerStates(); len(states) != 0 {
		t.Fatalf("got %+v, want no breakers before any CallCritical", states)
	}
}

func TestOperationsBreakerStatesAreIndependentPerOperation(t *testing.T) {
	o := NewOperations(1)
	_ = o.CallCritical(context.Background(), "RunInstances", func(ctx context.Context) error { return nil })
	_ = o.CallCritical(context.Background(), "TerminateInstances", func(ctx context.Context) error {
		return fakeOpAPIError{code: "UnauthorizedOperation"}
	})
	states := o.BreakerStates()
	if states["RunInstances"] != "closed" {
		t.Fatalf("got %q, want closed", states["RunInstances"])
	}
	if states["TerminateInstances"] != "closed" {
		t.Fatalf("got %q, want closed after a single failure below threshold", states["TerminateInstances"])
	}
}

func TestNewOperationsAppliesDefaultMaxRetries(t *testing.T) {
	o := NewOperations(0)
	if o.MaxRetries != 3 {
		t.Fatalf("got %d, want default 3", o.MaxRetries)
	}
}
