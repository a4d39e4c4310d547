package templateconfig

import "github.com/hostfactory/aws-provider/pkg/domain/template"

// wireTemplate is the JSON schema template files are written in
// (snake_case, scheduler/operator-facing field names). It exists
// separately from template.Template so the domain aggregate never
// carries json tags driven by an external file format.
type wireTemplate struct {
	TemplateID         string            `json:"template_id"`
	Name               string            `json:"name"`
	ProviderAPI        string            `json:"provider_api"`
	ImageID            string            `json:"image_id"`
	InstanceType       string            `json:"instance_type"`
	InstanceTypes      map[string]int    `json:"instance_types,omitempty"`
	SubnetIDs          []string          `json:"subnet_ids"`
	SecurityGroupIDs   []string          `json:"security_group_ids,omitempty"`
	MaxInstances       int               `json:"max_instances"`
	PriceType          string            `json:"price_type"`
	AllocationStrategy string            `json:"allocation_strategy,omitempty"`
	Tags               map[string]string `json:"tags,omitempty"`
	ProviderName       string            `json:"provider_name,omitempty"`
	ProviderType       string            `json:"provider_type,omitempty"`

	FleetType             string         `json:"fleet_type,omitempty"`
	FleetRole             string         `json:"fleet_role,omitempty"`
	KeyName               string         `json:"key_name,omitempty"`
	UserData              string         `json:"user_data,omitempty"`
	RootDeviceVolumeSize  int            `json:"root_device_volume_size,omitempty"`
	VolumeType            string         `json:"volume_type,omitempty"`
	IOPS                  int            `json:"iops,omitempty"`
	InstanceProfile       string         `json:"instance_profile,omitempty"`
	PercentOnDemand       *int           `json:"percent_on_demand,omitempty"`
	PoolsCount            int            `json:"pools_count,omitempty"`
	LaunchTemplateID      string         `json:"launch_template_id,omitempty"`
	LaunchTemplateVersion string         `json:"launch_template_version,omitempty"`
	ABISRequirements      string         `json:"abis_requirements,omitempty"`
	LaunchTemplateSpec    map[string]any `json:"launch_template_spec,omitempty"`
	LaunchTemplateSpecFile string        `json:"launch_template_spec_file,omitempty"`
	ProviderAPISpec        map[string]any `json:"provider_api_spec,omitempty"`
	ProviderAPISpecFile    string         `json:"provider_api_spec_file,omitempty"`
	InstanceProtection     bool           `json:"instance_protection,omitempty"`
	LifecycleHooks         []string       `json:"lifecycle_hooks,omitempty"`
	Context                string         `json:"context,omitempty"`
}

func (w wireTemplate) toDomain() *template.Template {
	t := &template.Template{
		TemplateID:         w.TemplateID,
		Name:               w.Name,
		ProviderAPI:        template.ProviderAPI(w.ProviderAPI),
		ImageID:            w.ImageID,
		InstanceType:       w.InstanceType,
		InstanceTypes:      w.InstanceTypes,
		SubnetIDs:          w.SubnetIDs,
		SecurityGroupIDs:   w.SecurityGroupIDs,
		MaxInstances:       w.MaxInstances,
		PriceType:          template.PriceType(w.PriceType),
		AllocationStrategy: w.AllocationStrategy,
		Tags:               w.Tags,
		ProviderName:       w.ProviderName,
		ProviderType:       w.ProviderType,
	}
	aws := &template.AWSExtensions{
		FleetType:              w.FleetType,
		FleetRole:              w.FleetRole,
		KeyName:                w.KeyName,
		UserData:               w.UserData,
		RootDeviceVolumeSize:   w.RootDeviceVolumeSize,
		VolumeType:             w.VolumeType,
		IOPS:                   w.IOPS,
		InstanceProfile:        w.InstanceProfile,
		PercentOnDemand:        w.PercentOnDemand,
		PoolsCount:             w.PoolsCount,
		LaunchTemplateID:       w.LaunchTemplateID,
		LaunchTemplateVersion:  w.LaunchTemplateVersion,
		ABISRequirements:       w.ABISRequirements,
		LaunchTemplateSpec:     w.LaunchTemplateSpec,
		LaunchTemplateSpecFile: w.LaunchTemplateSpecFile,
		ProviderAPISpec:        w.ProviderAPISpec,
		ProviderAPISpecFile:    w.ProviderAPISpecFile,
		InstanceProtection:     w.InstanceProtection,
		LifecycleHooks:         w.LifecycleHooks,
		Context:                w.Context,
	}
	t.AWS = aws
	return t
}
