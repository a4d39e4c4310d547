package template

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/aws/amazon-ec2-instance-selector/v3/pkg/bytequantity"
	instancetypesv3 "github.com/aws/amazon-ec2-instance-selector/v3/pkg/instancetypes"
	"github.com/aws/amazon-ec2-instance-selector/v3/pkg/selector"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/samber/lo"
)

// ABISResolver turns a Template's attribute-based instance-selection
// requirements into concrete, weighted instance types for EC2Fleet and
// SpotFleet's InstanceTypes/overrides, by wrapping the
// amazon-ec2-instance-selector filter engine.
type ABISResolver struct {
	instanceSelector *selector.Selector
}

func NewABISResolver(ctx context.Context, awsCfg aws.Config) (*ABISResolver, error) {
	sel, err := selector.New(ctx, awsCfg)
	if err != nil {
		return nil, err
	}
	return &ABISResolver{instanceSelector: sel}, nil
}

// Resolve evaluates every AND-term from the template's ABISRequirements
// against live EC2 instance-type data and returns the union, deduplicated
// by instance type.
func (r *ABISResolver) Resolve(ctx context.Context, raw string) ([]instancetypesv3.Details, error) {
	selectors, err := ParseAttributeSelectors(raw)
	if err != nil {
		return nil, err
	}
	filterSets, err := toFilters(selectors)
	if err != nil {
		return nil, err
	}
	var all []instancetypesv3.Details
	for _, filters := range filterSets {
		matched, err := r.instanceSelector.FilterVerbose(ctx, filters)
		if err != nil {
			return nil, err
		}
		for _, m := range matched {
			all = append(all, *m)
		}
	}
	return lo.UniqBy(all, func(d instancetypesv3.Details) string { return string(d.InstanceType) }), nil
}

func toFilters(selectors []AttributeSelector) ([]selector.Filters, error) {
	filterSets := make([]selector.Filters, 0, len(selectors))
	for _, s := range selectors {
		var f selector.Filters
		for k, v := range s.KeyVals {
			switch k {
			case "vcpus":
				lo, hi, err := parseIntRange(v)
				if err != nil {
					return nil, err
				}
				f.VCpusRange = &selector.Int32RangeFilter{LowerBound: int32(lo), UpperBound: int32(hi)}
			case "memory-mib":
				lo, hi, err := parseIntRange(v)
				if err != nil {
					return nil, err
				}
				f.MemoryRange = &selector.ByteQuantityRangeFilter{
					LowerBound: bytequantity.FromMiB(uint64(lo)),
					UpperBound: bytequantity.FromMiB(uint64(hi)),
				}
			case "arch":
				f.CPUArchitecture = (*selector.CPUArchitecture)(&v)
			case "burstable":
				burstable := v == "true"
				f.BareMetal = aws.Bool(false)
				f.Burstable = &burstable
			}
		}
		filterSets = append(filterSets, f)
	}
	return filterSets, nil
}

// parseIntRange parses "2-8" or "2" (open-ended upper bound) into bounds.
func parseIntRange(v string) (int, int, error) {
	lower, upper, found := strings.Cut(v, "-")
	lowerBound, err := strconv.Atoi(strings.TrimSpace(lower))
	if err != nil {
		return 0, 0, err
	}
	if !found || strings.TrimSpace(upper) == "" {
		return lowerBound, math.MaxInt32, nil
	}
	upperBound, err := strconv.Atoi(strings.TrimSpace(upper))
	if err != nil {
		return 0, 0, err
	}
	return lowerBound, upperBound, nil
}

// WeightsFor distributes the template's declared InstanceTypes weights
// across the resolved instance-type list, falling back to an equal
// weight of 1 per type when the template leaves InstanceTypes empty (the
// common case: a single InstanceType with no ABIS weighting).
func WeightsFor(t *Template, resolved []instancetypesv3.Details) map[string]int {
	weights := make(map[string]int, len(resolved))
	for _, d := range resolved {
		it := string(d.InstanceType)
		if w, ok := t.InstanceTypes[it]; ok {
			weights[it] = w
		} else {
			weights[it] = 1
		}
	}
	return weights
}
