// Package provider declares the strategy abstraction every cloud
// backend implements and the registry/router (ProviderContext) that
// dispatches operations to the active or a named strategy, tracking
// per-strategy health and performance metrics along the way.
package provider

import (
	"context"
	"time"
)

// OperationType enumerates the provisioning verbs a strategy must
// support.
type OperationType string

const (
	OperationCreateInstances       OperationType = "CREATE_INSTANCES"
	OperationTerminateInstances    OperationType = "TERMINATE_INSTANCES"
	OperationGetInstanceStatus     OperationType = "GET_INSTANCE_STATUS"
	OperationValidateTemplate      OperationType = "VALIDATE_TEMPLATE"
	OperationGetAvailableTemplates OperationType = "GET_AVAILABLE_TEMPLATES"
)

// Operation is the request envelope ProviderContext routes to a
// strategy's ExecuteOperation.
type Operation struct {
	Type       OperationType
	Parameters map[string]any
	Context    map[string]any // correlation id, caller metadata
}

// Result is the tagged-union response every strategy returns: either a
// success carrying data/metadata, or a failure carrying an error
// message and code.
type Result struct {
	Success      bool
	Data         map[string]any
	Metadata     map[string]any
	ErrorMessage string
	ErrorCode    string
}

// Capabilities describes what a strategy supports, checked by
// ProviderContext and the LoadBalancing composite before dispatch.
type Capabilities struct {
	ProviderAPIs        []string
	SupportedOperations []OperationType
	MaxMachineCount     map[string]int // provider_api -> hard cap
}

// SupportsOperation reports whether op is in this capability set.
func (c Capabilities) SupportsOperation(op OperationType) bool {
	for _, supported := range c.SupportedOperations {
		if supported == op {
			return true
		}
	}
	return false
}

// HealthStatus is a strategy's self-reported health, computed on
// demand each time CheckHealth is called.
type HealthStatus struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
}

// Strategy is the capability set every provider backend implements.
// ProviderContext holds strategies behind this interface so it never
// depends on a concrete cloud SDK.
type Strategy interface {
	ProviderType() string
	Initialize(ctx context.Context) error
	IsInitialized() bool
	Cleanup(ctx context.Context) error
	ExecuteOperation(ctx context.Context, op Operation) (Result, error)
	GetCapabilities() Capabilities
	CheckHealth(ctx context.Context) HealthStatus
}
