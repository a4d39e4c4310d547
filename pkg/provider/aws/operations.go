package aws

import (
	"context"
	"time"

	retry "github.com/avast/retry-go"

	"github.com/hostfactory/aws-provider/pkg/provider/aws/internal/awserr"
)

// Operations standardizes error handling and retry/circuit-breaking
// around raw AWS SDK calls, shared by every handler.
type Operations struct {
	MaxRetries     int
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	breakers       map[string]*CircuitBreaker
}

func NewOperations(maxRetries int) *Operations {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Operations{
		MaxRetries:     maxRetries,
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    10 * time.Second,
		breakers:       make(map[string]*CircuitBreaker),
	}
}

func (o *Operations) breakerFor(op string) *CircuitBreaker {
	if b, ok := o.breakers[op]; ok {
		return b
	}
	b := NewCircuitBreaker(5, 30*time.Second)
	o.breakers[op] = b
	return b
}

// Call runs fn under adaptive retry, classifying and returning the
// final error through the AWS error taxonomy. Retries only on
// throttling; all other AWS errors fail fast after classification.
func (o *Operations) Call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := retry.Do(
		func() error { return fn(ctx) },
		retry.Context(ctx),
		retry.Attempts(uint(o.MaxRetries+1)),
		retry.RetryIf(func(err error) bool { return awserr.IsThrottling(err) }),
		retry.LastErrorOnly(true),
	)
	return awserr.Classify(op, err)
}

// CallCritical wraps Call with a per-operation circuit breaker for
// create/terminate/modify calls.
func (o *Operations) CallCritical(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	b := o.breakerFor(op)
	return b.Call(func() error {
		return o.Call(ctx, op, fn)
	})
}

// BreakerStates reports the current state of every per-operation
// circuit breaker created so far (one per operation name ever passed
// to CallCritical), keyed by operation name, for health checks.
func (o *Operations) BreakerStates() map[string]string {
	states := make(map[string]string, len(o.breakers))
	for op, b := range o.breakers {
		states[op] = b.State()
	}
	return states
}
