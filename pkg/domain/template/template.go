// Package template implements the Template aggregate: the
// provider-neutral core plus an AWS extensions struct, composed rather
// than inherited.
package template

import (
	domainerrors "github.com/hostfactory/aws-provider/pkg/infrastructure/errors"
)

// ProviderAPI is the concrete AWS provisioning verb a template targets.
type ProviderAPI string

const (
	ProviderAPIEC2Fleet     ProviderAPI = "EC2Fleet"
	ProviderAPISpotFleet    ProviderAPI = "SpotFleet"
	ProviderAPIASG          ProviderAPI = "ASG"
	ProviderAPIRunInstances ProviderAPI = "RunInstances"
)

// PriceType is the provider-neutral pricing model.
type PriceType string

const (
	PriceTypeOnDemand PriceType = "ondemand"
	PriceTypeSpot     PriceType = "spot"
)

// Template is the aggregate root. Source tracking (SourceFile/FileType)
// is populated by the template configuration manager, not by callers
// constructing a Template directly.
type Template struct {
	TemplateID          string
	Name                string
	ProviderAPI          ProviderAPI
	ImageID              string
	InstanceType         string
	InstanceTypes        map[string]int // instance type -> weight
	SubnetIDs            []string
	SecurityGroupIDs     []string
	MaxInstances         int
	PriceType            PriceType
	AllocationStrategy   string
	Tags                 map[string]string

	ProviderName string
	ProviderType string

	AWS *AWSExtensions

	SourceFile string
	FileType   string
}

// AWSExtensions carries the optional AWS-specific fields. A nil
// *AWSExtensions means "use every field's zero value" — handlers must
// tolerate a nil pointer by falling back to Template-level defaults.
type AWSExtensions struct {
	FleetType             string
	FleetRole             string
	KeyName               string
	UserData              string
	RootDeviceVolumeSize  int
	VolumeType            string
	IOPS                  int
	InstanceProfile       string
	PercentOnDemand       *int
	PoolsCount            int
	LaunchTemplateID      string
	LaunchTemplateVersion string

	ABISRequirements string // raw selector-grammar string, e.g. "vcpus:2-8,arch:arm64"

	LaunchTemplateSpec     map[string]any
	LaunchTemplateSpecFile string
	ProviderAPISpec        map[string]any
	ProviderAPISpecFile    string

	InstanceProtection bool
	LifecycleHooks     []string
	Context            string
}

// Validate enforces the template's invariants. It never mutates the
// template; a valid template's zero-valued optional fields are left to
// defaults-resolution to fill in before this is called on the
// fully-merged template.
func (t *Template) Validate() error {
	if t.ImageID == "" {
		return domainerrors.Validation("TEMPLATE_IMAGE_ID_REQUIRED", "image_id must be set", map[string]any{"template_id": t.TemplateID})
	}
	if len(t.SubnetIDs) == 0 {
		return domainerrors.Validation("TEMPLATE_SUBNET_IDS_REQUIRED", "subnet_ids must be non-empty", map[string]any{"template_id": t.TemplateID})
	}
	if t.MaxInstances < 1 {
		return domainerrors.Validation("TEMPLATE_MAX_INSTANCES_INVALID", "max_instances must be >= 1", map[string]any{"template_id": t.TemplateID, "max_instances": t.MaxInstances})
	}
	switch t.ProviderAPI {
	case ProviderAPIEC2Fleet, ProviderAPISpotFleet, ProviderAPIASG, ProviderAPIRunInstances, "":
	default:
		return domainerrors.Validation("TEMPLATE_PROVIDER_API_INVALID", "unknown provider_api", map[string]any{"template_id": t.TemplateID, "provider_api": t.ProviderAPI})
	}
	switch t.PriceType {
	case PriceTypeOnDemand, PriceTypeSpot, "":
	default:
		return domainerrors.Validation("TEMPLATE_PRICE_TYPE_INVALID", "unknown price_type", map[string]any{"template_id": t.TemplateID, "price_type": t.PriceType})
	}
	if t.AWS != nil {
		if err := t.AWS.validate(t.TemplateID); err != nil {
			return err
		}
	}
	return nil
}

func (e *AWSExtensions) validate(templateID string) error {
	if e.PercentOnDemand != nil {
		if *e.PercentOnDemand < 0 || *e.PercentOnDemand > 100 {
			return domainerrors.Validation("TEMPLATE_PERCENT_ON_DEMAND_INVALID", "percent_on_demand must be within [0,100]", map[string]any{"template_id": templateID, "percent_on_demand": *e.PercentOnDemand})
		}
	}
	if e.LaunchTemplateVersion != "" && !isValidLaunchTemplateVersion(e.LaunchTemplateVersion) {
		return domainerrors.Validation("TEMPLATE_LAUNCH_TEMPLATE_VERSION_INVALID", "launch_template_version must be $Latest, $Default, or a positive integer string", map[string]any{"template_id": templateID, "launch_template_version": e.LaunchTemplateVersion})
	}
	if len(e.LaunchTemplateSpec) > 0 && e.LaunchTemplateSpecFile != "" {
		return domainerrors.Validation("TEMPLATE_LAUNCH_TEMPLATE_SPEC_CONFLICT", "launch_template_spec and launch_template_spec_file are mutually exclusive", map[string]any{"template_id": templateID})
	}
	if len(e.ProviderAPISpec) > 0 && e.ProviderAPISpecFile != "" {
		return domainerrors.Validation("TEMPLATE_PROVIDER_API_SPEC_CONFLICT", "provider_api_spec and provider_api_spec_file are mutually exclusive", map[string]any{"template_id": templateID})
	}
	return nil
}

func isValidLaunchTemplateVersion(v string) bool {
	if v == "$Latest" || v == "$Default" {
		return true
	}
	if v == "" {
		return false
	}
	for _, r := range v {
		if r < '0' || r > '9' {
			return false
		}
	}
	return v != "0"
}

// DefaultFleetType returns the provider_api-appropriate default fleet
// type when the template doesn't specify one: "request" for SpotFleet,
// "instant" for EC2Fleet.
func (t *Template) DefaultFleetType() string {
	if t.AWS != nil && t.AWS.FleetType != "" {
		return t.AWS.FleetType
	}
	switch t.ProviderAPI {
	case ProviderAPISpotFleet:
		return "request"
	case ProviderAPIEC2Fleet:
		return "instant"
	default:
		return ""
	}
}

// AllocationStrategyFor maps the provider-neutral AllocationStrategy to
// the vocabulary the given provider_api expects. Unknown neutral values
// pass through unchanged so operators can supply the vendor-exact
// string directly.
func (t *Template) AllocationStrategyFor(api ProviderAPI) string {
	neutral := t.AllocationStrategy
	mapping := map[ProviderAPI]map[string]string{
		ProviderAPIEC2Fleet: {
			"lowest-price":                   "lowest-price",
			"diversified":                    "diversified",
			"capacity-optimized":             "capacity-optimized",
			"capacity-optimized-prioritized": "capacity-optimized-prioritized",
			"price-capacity-optimized":       "price-capacity-optimized",
		},
		ProviderAPISpotFleet: {
			"lowest-price":                   "lowestPrice",
			"diversified":                    "diversified",
			"capacity-optimized":             "capacityOptimized",
			"capacity-optimized-prioritized": "capacityOptimizedPrioritized",
			"price-capacity-optimized":       "priceCapacityOptimized",
		},
		ProviderAPIASG: {
			"lowest-price":       "lowest-price",
			"diversified":        "diversified",
			"capacity-optimized": "capacity-optimized",
		},
	}
	if m, ok := mapping[api]; ok {
		if v, ok := m[neutral]; ok {
			return v
		}
	}
	return neutral
}
