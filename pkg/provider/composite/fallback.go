// Package composite implements multi-provider ProviderStrategy
// decorators — Fallback and LoadBalancing — that each hold an ordered
// set of child strategies and present the same provider.Strategy
// capability set to ProviderContext as any single backend would.
package composite

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"

	"github.com/hostfactory/aws-provider/pkg/infrastructure/logging"
	"github.com/hostfactory/aws-provider/pkg/provider"
)

// Fallback chains child strategies in priority order: the first child
// to return a successful result wins; child health is not checked
// before a child is tried. On error
// (either a Go error or a Result with Success=false) it advances to
// the next child, finally returning the last failure if every child is
// exhausted.
type Fallback struct {
	providerType string
	children     []provider.Strategy
	logger       logging.Port

	fallbackUsedTotal atomic.Int64

	mu          sync.RWMutex
	initialized bool
}

// NewFallback builds a Fallback strategy over children, tried in the
// order given. providerType is the key it registers itself under with
// ProviderContext.
func NewFallback(providerType string, children []provider.Strategy, logger logging.Port) *Fallback {
	if logger == nil {
		logger = logging.NoOpLogger()
	}
	return &Fallback{providerType: providerType, children: children, logger: logger}
}

func (f *Fallback) ProviderType() string { return f.providerType }

func (f *Fallback) Initialize(ctx context.Context) error {
	for _, c := range f.children {
		if err := c.Initialize(ctx); err != nil {
			return fmt.Errorf("fallback: initialize %s: %w", c.ProviderType(), err)
		}
	}
	f.mu.Lock()
	f.initialized = true
	f.mu.Unlock()
	return nil
}

func (f *Fallback) IsInitialized() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.initialized
}

func (f *Fallback) Cleanup(ctx context.Context) error {
	var firstErr error
	for _, c := range f.children {
		if err := c.Cleanup(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	f.mu.Lock()
	f.initialized = false
	f.mu.Unlock()
	return firstErr
}

// GetCapabilities unions every child's declared operations and
// provider APIs, since the composite as a whole supports an operation
// if any child does.
func (f *Fallback) GetCapabilities() provider.Capabilities {
	return unionCapabilities(f.children)
}

// CheckHealth reports healthy if at least one child is healthy.
func (f *Fallback) CheckHealth(ctx context.Context) provider.HealthStatus {
	for _, c := range f.children {
		status := c.CheckHealth(ctx)
		if status.Healthy {
			return provider.HealthStatus{Healthy: true, Message: fmt.Sprintf("primary path %s healthy", c.ProviderType()), CheckedAt: time.Now()}
		}
	}
	return provider.HealthStatus{Healthy: false, Message: "no child strategy is healthy", CheckedAt: time.Now()}
}

// ExecuteOperation tries each child in order, stopping at the first
// success. fallbackUsedTotal counts every attempt beyond the first.
func (f *Fallback) ExecuteOperation(ctx context.Context, op provider.Operation) (provider.Result, error) {
	if len(f.children) == 0 {
		return provider.Result{}, fmt.Errorf("fallback: no child strategies configured")
	}

	var lastResult provider.Result
	var lastErr error
	for i, child := range f.children {
		if i > 0 {
			f.fallbackUsedTotal.Add(1)
			f.logger.Warn("fallback: advancing to next child strategy", "provider_type", f.providerType, "failed_child", f.children[i-1].ProviderType(), "next_child", child.ProviderType())
		}
		result, err := child.ExecuteOperation(ctx, op)
		if err == nil && result.Success {
			return result, nil
		}
		lastResult, lastErr = result, err
	}
	return lastResult, lastErr
}

// FallbackUsedTotal reports how many times a child other than the
// first was reached, for the composite's own metrics surface.
func (f *Fallback) FallbackUsedTotal() int64 { return f.fallbackUsedTotal.Load() }

func unionCapabilities(children []provider.Strategy) provider.Capabilities {
	apis := map[string]struct{}{}
	ops := map[provider.OperationType]struct{}{}
	maxCounts := map[string]int{}
	for _, c := range children {
		caps := c.GetCapabilities()
		for _, api := range caps.ProviderAPIs {
			apis[api] = struct{}{}
		}
		for _, op := range caps.SupportedOperations {
			ops[op] = struct{}{}
		}
		for api, max := range caps.MaxMachineCount {
			if existing, ok := maxCounts[api]; !ok || max > existing {
				maxCounts[api] = max
			}
		}
	}
	return provider.Capabilities{
		ProviderAPIs:        lo.Keys(apis),
		SupportedOperations: lo.Keys(ops),
		MaxMachineCount:     maxCounts,
	}
}

var _ provider.Strategy = (*Fallback)(nil)
