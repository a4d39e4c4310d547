// defaults.go implements the three-layer template-defaults merge:
// global defaults, then provider-type defaults, then provider-instance
// defaults, each layer overriding the previous; explicit template
// fields always win, and a field explicitly left unset in a defaults
// layer never shadows a value a higher-priority layer already set.
package templateconfig

import (
	"dario.cat/mergo"
)

// DefaultsLayers is the three sources of template_defaults merged
// before a template is validated.
type DefaultsLayers struct {
	Global          map[string]any
	ProviderType    map[string]any
	ProviderInstance map[string]any
}

// ResolveDefaults merges the three layers (lowest to highest priority)
// into one map, then merges the raw template document over the result
// so explicit template fields always win.
func ResolveDefaults(layers DefaultsLayers, rawTemplate map[string]any) (map[string]any, error) {
	merged := map[string]any{}
	if err := mergo.Merge(&merged, layers.Global, mergo.WithOverride); err != nil {
		return nil, err
	}
	if err := mergo.Merge(&merged, layers.ProviderType, mergo.WithOverride); err != nil {
		return nil, err
	}
	if err := mergo.Merge(&merged, layers.ProviderInstance, mergo.WithOverride); err != nil {
		return nil, err
	}
	if err := mergo.Merge(&merged, rawTemplate, mergo.WithOverride); err != nil {
		return nil, err
	}
	return merged, nil
}
