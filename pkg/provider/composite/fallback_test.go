package composite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/hostfactory/aws-provider/pkg/infrastructure/logging"
	"github.com/hostfactory/aws-provider/pkg/provider"
)

type fakeStrategy struct {
	providerType string
	result       provider.Result
	err          error
	healthy      bool
	caps         provider.Capabilities
	calls        int
	cleanupCalls int
}

func (f *fakeStrategy) ProviderType() string            { return f.providerType }
func (f *fakeStrategy) Initialize(ctx context.Context) error { return nil }
func (f *fakeStrategy) IsInitialized() bool              { return true }
func (f *fakeStrategy) Cleanup(ctx context.Context) error {
	f.cleanupCalls++
	return nil
}
func (f *fakeStrategy) GetCapabilities() provider.Capabilities { return f.caps }
func (f *fakeStrategy) CheckHealth(ctx context.Context) provider.HealthStatus {
	return provider.HealthStatus{Healthy: f.healthy, CheckedAt: time.Now()}
}
func (f *fakeStrategy) ExecuteOperation(ctx context.Context, op provider.Operation) (provider.Result, error) {
	f.calls++
	return f.result, f.err
}

func fullCaps() provider.Capabilities {
	return provider.Capabilities{
		ProviderAPIs:        []string{"EC2Fleet"},
		SupportedOperations: []provider.OperationType{provider.OperationCreateInstances, provider.OperationTerminateInstances, provider.OperationGetInstanceStatus},
	}
}

func TestFallbackStopsAtFirstSuccess(t *testing.T) {
	primary := &fakeStrategy{providerType: "aws-us-east-1", result: provider.Result{Success: true}, caps: fullCaps()}
	secondary := &fakeStrategy{providerType: "aws-us-west-2", result: provider.Result{Success: true}, caps: fullCaps()}

	fb := NewFallback("aws-fallback", []provider.Strategy{primary, secondary}, logging.NoOpLogger())

	result, err := fb.ExecuteOperation(context.Background(), provider.Operation{Type: provider.OperationCreateInstances})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if primary.calls != 1 || secondary.calls != 0 {
		t.Fatalf("expected only the primary to be called, got primary=%d secondary=%d", primary.calls, secondary.calls)
	}
	if fb.FallbackUsedTotal() != 0 {
		t.Fatalf("expected no fallback usage, got %d", fb.FallbackUsedTotal())
	}
}

func TestFallbackAdvancesOnPrimaryError(t *testing.T) {
	primary := &fakeStrategy{providerType: "aws-us-east-1", err: fmt.Errorf("network error"), caps: fullCaps()}
	secondary := &fakeStrategy{providerType: "aws-us-west-2", result: provider.Result{Success: true}, caps: fullCaps()}

	fb := NewFallback("aws-fallback", []provider.Strategy{primary, secondary}, logging.NoOpLogger())

	result, err := fb.ExecuteOperation(context.Background(), provider.Operation{Type: provider.OperationCreateInstances})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected secondary success, got %+v", result)
	}
	if primary.calls != 1 || secondary.calls != 1 {
		t.Fatalf("expected both children to be called once, got primary=%d secondary=%d", primary.calls, secondary.calls)
	}
	if fb.FallbackUsedTotal() != 1 {
		t.Fatalf("expected fallback usage counter of 1, got %d", fb.FallbackUsedTotal())
	}
}

func TestFallbackAdvancesOnUnsuccessfulResult(t *testing.T) {
	primary := &fakeStrategy{providerType: "aws-us-east-1", result: provider.Result{Success: false, ErrorCode: "INSUFFICIENT_CAPACITY"}, caps: fullCaps()}
	secondary := &fakeStrategy{providerType: "aws-us-west-2", result: provider.Result{Success: true}, caps: fullCaps()}

	fb := NewFallback("aws-fallback", []provider.Strategy{primary, secondary}, logging.NoOpLogger())

	result, err := fb.ExecuteOperation(context.Background(), provider.Operation{Type: provider.OperationCreateInstances})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected secondary success, got %+v", result)
	}
}

func TestFallbackReturnsLastErrorWhenAllFail(t *testing.T) {
	primary := &fakeStrategy{providerType: "aws-us-east-1", err: fmt.Errorf("primary down"), caps: fullCaps()}
	secondary := &fakeStrategy{providerType: "aws-us-west-2", err: fmt.Errorf("secondary down"), caps: fullCaps()}

	fb := NewFallback("aws-fallback", []provider.Strategy{primary, secondary}, logging.NoOpLogger())

	_, err := fb.ExecuteOperation(context.Background(), provider.Operation{Type: provider.OperationCreateInstances})
	if err == nil || err.Error() != "secondary down" {
		t.Fatalf("expected the last child's error, got %v", err)
	}
}

func TestFallbackCleanupCallsEveryChild(t *testing.T) {
	primary := &fakeStrategy{providerType: "aws-us-east-1", caps: fullCaps()}
	secondary := &fakeStrategy{providerType: "aws-us-west-2", caps: fullCaps()}
	fb := NewFallback("aws-fallback", []provider.Strategy{primary, secondary}, logging.NoOpLogger())

	if err := fb.Cleanup(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if primary.cleanupCalls != 1 || secondary.cleanupCalls != 1 {
		t.Fatalf("expected both children cleaned up, got primary=%d secondary=%d", primary.cleanupCalls, secondary.cleanupCalls)
	}
}

func TestFallbackCheckHealthReflectsAnyHealthyChild(t *testing.T) {
	primary := &fakeStrategy{providerType: "aws-us-east-1", healthy: false, caps: fullCaps()}
	secondary := &fakeStrategy{providerType: "aws-us-west-2", healthy: true, caps: fullCaps()}
	fb := NewFallback("aws-fallback", []provider.Strategy{primary, secondary}, logging.NoOpLogger())

	status := fb.CheckHealth(context.Background())
	if !status.Healthy {
		t.Fatal("expected fallback to report healthy when any child is healthy")
	}
}
