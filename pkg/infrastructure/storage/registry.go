// Package storage declares the registration contract every storage
// strategy implements and the central registry the Unit-of-Work
// constructs from configuration. Registration tolerates partial
// failure: if at least one strategy registers successfully, startup
// continues; if none do, startup fails.
package storage

import (
	"fmt"

	"github.com/hostfactory/aws-provider/pkg/infrastructure/repository"
)

// Registry is the set of per-aggregate repositories a storage strategy
// has wired, keyed by aggregate name ("requests", "machines",
// "templates").
type Registry struct {
	Requests  repository.Repository[repository.RequestRecord]
	Machines  repository.Repository[repository.MachineRecord]
	Templates repository.Repository[repository.TemplateRecord]
	Strategy  string
}

// RegisterFunc builds a Registry for one storage strategy, or reports
// why it couldn't (missing config, unreachable backend, bad DSN).
type RegisterFunc func(cfg map[string]any) (*Registry, error)

var registrations = map[string]RegisterFunc{}

// Register adds a storage strategy's constructor under name (the
// register_<kind>_storage pattern: "file", "sql", "cloudkv").
func Register(name string, fn RegisterFunc) {
	registrations[name] = fn
}

// Build constructs the Registry for the named strategy. Central
// registration of every known strategy has already run via init()-time
// Register calls in the file/sqlstore/cloudkv subpackages; Build just
// looks the requested one up and invokes it.
func Build(name string, cfg map[string]any) (*Registry, error) {
	fn, ok := registrations[name]
	if !ok {
		return nil, fmt.Errorf("storage: no registered strategy %q", name)
	}
	reg, err := fn(cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: strategy %q failed to register: %w", name, err)
	}
	return reg, nil
}

// BuildAny tries every registered strategy in preference order and
// returns the first that succeeds. Used at startup when the operator
// lists multiple acceptable strategies; fails only if every attempt
// fails.
func BuildAny(order []string, cfg map[string]any) (*Registry, error) {
	var lastErr error
	for _, name := range order {
		reg, err := Build(name, cfg)
		if err == nil {
			return reg, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("storage: no strategies configured")
	}
	return nil, fmt.Errorf("storage: all candidate strategies failed, last error: %w", lastErr)
}
