package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hostfactory/aws-provider/pkg/infrastructure/logging"
)

// Clock abstracts time.Now so metrics tests can inject a fixed instant.
type Clock func() time.Time

// Context is the strategy registry and router. One Context is shared
// by every command handler; RegisterStrategy/SetStrategy/
// ExecuteWithStrategy are all safe for concurrent use.
type Context struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	metrics    map[string]*StrategyMetrics
	active     string
	logger     logging.Port
	clock      Clock
}

func NewContext(logger logging.Port) *Context {
	if logger == nil {
		logger = logging.NoOpLogger()
	}
	return &Context{
		strategies: make(map[string]Strategy),
		metrics:    make(map[string]*StrategyMetrics),
		logger:     logger,
		clock:      time.Now,
	}
}

func (c *Context) now() time.Time { return c.clock() }

// RegisterStrategy adds s under its ProviderType, replacing and
// cleaning up any strategy already registered under that key.
func (c *Context) RegisterStrategy(ctx context.Context, s Strategy) {
	c.mu.Lock()
	providerType := s.ProviderType()
	existing, replacing := c.strategies[providerType]
	c.strategies[providerType] = s
	if _, ok := c.metrics[providerType]; !ok {
		c.metrics[providerType] = &StrategyMetrics{}
	}
	c.mu.Unlock()

	if replacing {
		c.logger.Warn("provider: replacing registered strategy", "provider_type", providerType)
		existing.Cleanup(ctx)
	}
}

// SetStrategy switches the active strategy used by ExecuteOperation.
func (c *Context) SetStrategy(providerType string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.strategies[providerType]; !ok {
		return fmt.Errorf("provider: no strategy registered for %q", providerType)
	}
	c.active = providerType
	return nil
}

// ExecuteOperation routes op to the active strategy.
func (c *Context) ExecuteOperation(ctx context.Context, op Operation) (Result, error) {
	c.mu.RLock()
	active := c.active
	c.mu.RUnlock()
	if active == "" {
		return Result{}, fmt.Errorf("provider: no active strategy set")
	}
	return c.ExecuteWithStrategy(ctx, active, op)
}

// ExecuteWithStrategy routes op to the named strategy regardless of
// which is active, verifying first that its declared capabilities
// cover the operation.
func (c *Context) ExecuteWithStrategy(ctx context.Context, providerType string, op Operation) (Result, error) {
	c.mu.RLock()
	s, ok := c.strategies[providerType]
	metrics := c.metrics[providerType]
	c.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("provider: no strategy registered for %q", providerType)
	}

	if !s.GetCapabilities().SupportsOperation(op.Type) {
		return Result{Success: false, ErrorCode: "OPERATION_NOT_SUPPORTED", ErrorMessage: fmt.Sprintf("strategy %q does not support %s", providerType, op.Type)}, nil
	}

	start := c.now()
	result, err := s.ExecuteOperation(ctx, op)
	elapsed := c.now().Sub(start)

	success := err == nil && result.Success
	if metrics != nil {
		metrics.record(success, elapsed, c.now())
	}
	return result, err
}

// CheckHealth runs the named strategy's health check and records it
// against that strategy's metrics.
func (c *Context) CheckHealth(ctx context.Context, providerType string) (HealthStatus, error) {
	c.mu.RLock()
	s, ok := c.strategies[providerType]
	metrics := c.metrics[providerType]
	c.mu.RUnlock()
	if !ok {
		return HealthStatus{}, fmt.Errorf("provider: no strategy registered for %q", providerType)
	}
	status := s.CheckHealth(ctx)
	if metrics != nil {
		metrics.recordHealthCheck(c.now())
	}
	return status, nil
}

// Metrics returns a point-in-time snapshot of the named strategy's
// metrics, or the zero Snapshot if nothing is registered under that key.
func (c *Context) Metrics(providerType string) Snapshot {
	c.mu.RLock()
	metrics := c.metrics[providerType]
	c.mu.RUnlock()
	if metrics == nil {
		return Snapshot{}
	}
	return metrics.snapshot()
}

// Execute adapts ExecuteOperation to the narrow (operationType string,
// parameters map[string]any) → (map[string]any, error) shape the
// command handlers' Dispatcher interface declares, so this package
// never has to be imported by pkg/application/commands. Metadata is
// folded into the returned map alongside Data (Data wins on key
// collision) so callers get provider-selection fields like
// provider_name/provider_type/provider_api without a second return value.
func (c *Context) Execute(ctx context.Context, operationType string, parameters map[string]any) (map[string]any, error) {
	result, err := c.ExecuteOperation(ctx, Operation{Type: OperationType(operationType), Parameters: parameters})
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, fmt.Errorf("provider: %s: %s", result.ErrorCode, result.ErrorMessage)
	}
	out := make(map[string]any, len(result.Data)+len(result.Metadata))
	for k, v := range result.Metadata {
		out[k] = v
	}
	for k, v := range result.Data {
		out[k] = v
	}
	return out, nil
}
