// Package services hosts application-level collaborators that sit
// between the command/query handlers and the provider strategy layer:
// resolving which configured provider instance serves a template, and
// validating that a template is actually compatible with the instance
// selection picked for it.
package services

import (
	"fmt"
	"sync"

	"github.com/hostfactory/aws-provider/pkg/domain/template"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/config"
	domainerrors "github.com/hostfactory/aws-provider/pkg/infrastructure/errors"
	"github.com/hostfactory/aws-provider/pkg/provider"
)

// SelectionPolicy is the load-balancing algorithm applied when more
// than one enabled provider instance of the matching type/API exists.
type SelectionPolicy string

const (
	PolicyFirstAvailable     SelectionPolicy = "FIRST_AVAILABLE"
	PolicyRoundRobin         SelectionPolicy = "ROUND_ROBIN"
	PolicyWeightedRoundRobin SelectionPolicy = "WEIGHTED_ROUND_ROBIN"
	PolicyFastestResponse    SelectionPolicy = "FASTEST_RESPONSE"
	PolicyCapabilityBased    SelectionPolicy = "CAPABILITY_BASED"
)

// Selection is the outcome of resolving a Template to a concrete
// provider instance.
type Selection struct {
	ProviderType     string
	ProviderInstance string
	SelectionReason  string
	Confidence       float64
	Alternatives     []string
}

// MetricsSource is the subset of provider.Context selection needs to
// implement FASTEST_RESPONSE: a per-instance average response time.
type MetricsSource interface {
	Metrics(providerType string) provider.Snapshot
}

// ProviderSelectionService resolves a Template to one configured,
// enabled provider instance per the precedence in SelectProvider.
type ProviderSelectionService struct {
	mu        sync.Mutex
	instances []config.ProviderConfig
	defaults  config.Config
	metrics   MetricsSource
	nextIndex map[string]int // round-robin cursor keyed by provider_type
}

// NewProviderSelectionService builds a selection service over the
// configured provider instances and daemon-level defaults
// (default_provider_instance, selection_policy).
func NewProviderSelectionService(instances []config.ProviderConfig, defaults config.Config, metrics MetricsSource) *ProviderSelectionService {
	return &ProviderSelectionService{
		instances: instances,
		defaults:  defaults,
		metrics:   metrics,
		nextIndex: make(map[string]int),
	}
}

// SelectProvider resolves t to a Selection using:
//  1. t.ProviderName, if set — fails if unknown or disabled.
//  2. else t.ProviderType, if set — applies the configured
//     selection_policy over enabled instances of that type.
//  3. else t.ProviderAPI, if set — any enabled instance declaring
//     support for that API.
//  4. else configuration default_provider_instance, then the first
//     enabled instance.
func (s *ProviderSelectionService) SelectProvider(t *template.Template) (Selection, error) {
	if t.ProviderName != "" {
		return s.selectByName(t.ProviderName)
	}
	if t.ProviderType != "" {
		return s.selectByType(t.ProviderType)
	}
	if t.ProviderAPI != "" {
		return s.selectByAPI(string(t.ProviderAPI))
	}
	return s.selectDefault()
}

func (s *ProviderSelectionService) selectByName(name string) (Selection, error) {
	for _, inst := range s.instances {
		if inst.Name == name {
			if !inst.Enabled {
				return Selection{}, domainerrors.Validation("PROVIDER_INSTANCE_DISABLED", "provider instance "+name+" is disabled", map[string]any{"provider_name": name})
			}
			return Selection{
				ProviderType:     inst.Type,
				ProviderInstance: inst.Name,
				SelectionReason:  "explicit provider_name on template",
				Confidence:       1.0,
			}, nil
		}
	}
	return Selection{}, domainerrors.Validation("PROVIDER_INSTANCE_NOT_FOUND", "provider instance "+name+" is not configured", map[string]any{"provider_name": name})
}

func (s *ProviderSelectionService) selectByType(providerType string) (Selection, error) {
	candidates := filterEnabled(s.instances, func(i config.ProviderConfig) bool { return i.Type == providerType })
	if len(candidates) == 0 {
		return Selection{}, domainerrors.Validation("NO_STRATEGY_AVAILABLE", "no enabled provider instance of type "+providerType, map[string]any{"provider_type": providerType})
	}
	policy := s.policy()
	chosen := s.applyPolicy(policy, providerType, candidates)
	return Selection{
		ProviderType:     chosen.Type,
		ProviderInstance: chosen.Name,
		SelectionReason:  fmt.Sprintf("provider_type match via %s policy", policy),
		Confidence:       0.9,
		Alternatives:     namesExcept(candidates, chosen.Name),
	}, nil
}

func (s *ProviderSelectionService) selectByAPI(api string) (Selection, error) {
	candidates := filterEnabled(s.instances, func(i config.ProviderConfig) bool { return containsString(i.APIs, api) })
	if len(candidates) == 0 {
		return Selection{}, domainerrors.Validation("NO_STRATEGY_AVAILABLE", "no enabled provider instance supports provider_api "+api, map[string]any{"provider_api": api})
	}
	chosen := candidates[0]
	return Selection{
		ProviderType:     chosen.Type,
		ProviderInstance: chosen.Name,
		SelectionReason:  "provider_api support match",
		Confidence:       0.7,
		Alternatives:     namesExcept(candidates, chosen.Name),
	}, nil
}

func (s *ProviderSelectionService) selectDefault() (Selection, error) {
	if s.defaults.DefaultProviderInstance != "" {
		for _, inst := range s.instances {
			if inst.Name == s.defaults.DefaultProviderInstance && inst.Enabled {
				return Selection{
					ProviderType:     inst.Type,
					ProviderInstance: inst.Name,
					SelectionReason:  "configuration default_provider_instance",
					Confidence:       0.5,
				}, nil
			}
		}
	}
	enabled := filterEnabled(s.instances, func(config.ProviderConfig) bool { return true })
	if len(enabled) == 0 {
		return Selection{}, domainerrors.Validation("NO_STRATEGY_AVAILABLE", "no enabled provider instance is configured", nil)
	}
	return Selection{
		ProviderType:     enabled[0].Type,
		ProviderInstance: enabled[0].Name,
		SelectionReason:  "first enabled provider instance",
		Confidence:       0.3,
		Alternatives:     namesExcept(enabled, enabled[0].Name),
	}, nil
}

func (s *ProviderSelectionService) policy() SelectionPolicy {
	if s.defaults.SelectionPolicy == "" {
		return PolicyFirstAvailable
	}
	return SelectionPolicy(s.defaults.SelectionPolicy)
}

func (s *ProviderSelectionService) applyPolicy(policy SelectionPolicy, providerType string, candidates []config.ProviderConfig) config.ProviderConfig {
	switch policy {
	case PolicyRoundRobin:
		return s.roundRobin(providerType, candidates)
	case PolicyWeightedRoundRobin:
		return weightedPick(candidates)
	case PolicyFastestResponse:
		return s.fastestResponse(candidates)
	case PolicyCapabilityBased:
		return widestAPISet(candidates)
	default: // PolicyFirstAvailable and unrecognized values
		return candidates[0]
	}
}

func (s *ProviderSelectionService) roundRobin(providerType string, candidates []config.ProviderConfig) config.ProviderConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.nextIndex[providerType] % len(candidates)
	s.nextIndex[providerType]++
	return candidates[idx]
}

func (s *ProviderSelectionService) fastestResponse(candidates []config.ProviderConfig) config.ProviderConfig {
	if s.metrics == nil {
		return candidates[0]
	}
	best := candidates[0]
	bestMs := -1.0
	for _, c := range candidates {
		snap := s.metrics.Metrics(instanceMetricsKey(c))
		if snap.TotalOperations == 0 {
			return c
		}
		if bestMs < 0 || snap.AverageResponseMs < bestMs {
			best, bestMs = c, snap.AverageResponseMs
		}
	}
	return best
}

// instanceMetricsKey matches the "provider_type:provider_name" key
// cmd/hostfactoryd's instanceStrategy decorator registers per-instance
// metrics under, so FASTEST_RESPONSE reads the same rolling averages
// composite.LoadBalancing's own fastest-response pick does.
func instanceMetricsKey(c config.ProviderConfig) string {
	return c.Type + ":" + c.Name
}

func weightedPick(candidates []config.ProviderConfig) config.ProviderConfig {
	best := candidates[0]
	bestWeight := weightOf(best)
	for _, c := range candidates[1:] {
		if w := weightOf(c); w > bestWeight {
			best, bestWeight = c, w
		}
	}
	return best
}

func weightOf(c config.ProviderConfig) int {
	if c.Weight <= 0 {
		return 1
	}
	return c.Weight
}

func widestAPISet(candidates []config.ProviderConfig) config.ProviderConfig {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if len(c.APIs) > len(best.APIs) {
			best = c
		}
	}
	return best
}

func filterEnabled(instances []config.ProviderConfig, match func(config.ProviderConfig) bool) []config.ProviderConfig {
	var out []config.ProviderConfig
	for _, i := range instances {
		if i.Enabled && match(i) {
			out = append(out, i)
		}
	}
	return out
}

func namesExcept(instances []config.ProviderConfig, exclude string) []string {
	var out []string
	for _, i := range instances {
		if i.Name != exclude {
			out = append(out, i.Name)
		}
	}
	return out
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
