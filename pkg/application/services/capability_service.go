package services

import (
	"fmt"

	"github.com/hostfactory/aws-provider/pkg/domain/template"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/config"
)

// ValidationLevel controls how ProviderCapabilityService treats
// warning-grade findings.
type ValidationLevel string

const (
	LevelStrict  ValidationLevel = "STRICT"  // warnings become errors
	LevelLenient ValidationLevel = "LENIENT" // warnings allowed
	LevelBasic   ValidationLevel = "BASIC"   // only critical errors reported
)

// Finding is one capability check's outcome.
type Finding struct {
	Code     string
	Message  string
	Critical bool
}

// CapabilityResult is the outcome of validating a (Template, provider
// instance) pair at a given ValidationLevel.
type CapabilityResult struct {
	Valid    bool
	Errors   []Finding
	Warnings []Finding
}

// hardCaps are the largest machine_count a provider_api tolerates in
// one request; EC2Fleet and ASG can realistically scale to very large
// pools, RunInstances is bounded far lower by the synchronous call's
// own practical limits.
var hardCaps = map[template.ProviderAPI]int{
	template.ProviderAPIEC2Fleet:     5000,
	template.ProviderAPISpotFleet:    5000,
	template.ProviderAPIASG:          5000,
	template.ProviderAPIRunInstances: 100,
}

// ProviderCapabilityService validates that a template's requirements
// are actually satisfiable by the provider instance selection picked
// for it.
type ProviderCapabilityService struct{}

func NewProviderCapabilityService() *ProviderCapabilityService {
	return &ProviderCapabilityService{}
}

// Validate checks t against instance at level: provider_api support,
// spot pricing on RunInstances, the template's max_instances against
// the per-API hard cap, and fleet-type compatibility. It sees only the
// template, so a request's own machine_count is not checked here.
func (s *ProviderCapabilityService) Validate(t *template.Template, instance config.ProviderConfig, level ValidationLevel) CapabilityResult {
	var errs, warnings []Finding

	if len(instance.APIs) > 0 && !containsString(instance.APIs, string(t.ProviderAPI)) {
		errs = append(errs, Finding{
			Code:     "PROVIDER_API_NOT_SUPPORTED",
			Message:  fmt.Sprintf("provider instance %s does not declare support for %s", instance.Name, t.ProviderAPI),
			Critical: true,
		})
	}

	if t.ProviderAPI == template.ProviderAPIRunInstances && t.PriceType == template.PriceTypeSpot {
		errs = append(errs, Finding{
			Code:     "SPOT_NOT_SUPPORTED_ON_RUN_INSTANCES",
			Message:  "spot pricing is not valid with the RunInstances provider_api",
			Critical: true,
		})
	}

	if hardCap, ok := hardCaps[t.ProviderAPI]; ok && t.MaxInstances > hardCap {
		errs = append(errs, Finding{
			Code:     "MAX_INSTANCES_EXCEEDS_PROVIDER_LIMIT",
			Message:  fmt.Sprintf("max_instances %d exceeds the %d hard cap for %s", t.MaxInstances, hardCap, t.ProviderAPI),
			Critical: true,
		})
	}

	if t.ProviderAPI == template.ProviderAPISpotFleet && t.AWS != nil && t.AWS.FleetType == "instant" {
		warnings = append(warnings, Finding{
			Code:    "SPOT_FLEET_INSTANT_TYPE_UNSUPPORTED",
			Message: "SpotFleet does not accept fleet_type=instant; it will be treated as request",
		})
	}

	switch level {
	case LevelStrict:
		errs = append(errs, warnings...)
		warnings = nil
	case LevelBasic:
		warnings = nil
	case LevelLenient:
		// warnings stay as warnings
	}

	return CapabilityResult{
		Valid:    len(errs) == 0,
		Errors:   errs,
		Warnings: warnings,
	}
}
