package aws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/samber/lo"
	"go.uber.org/multierr"

	"github.com/hostfactory/aws-provider/pkg/domain/machine"
	"github.com/hostfactory/aws-provider/pkg/domain/request"
	"github.com/hostfactory/aws-provider/pkg/domain/template"
	"github.com/hostfactory/aws-provider/pkg/provider/aws/internal/awstags"
)

// EC2FleetHandler provisions capacity via the EC2 Fleet API, the
// default path for both on-demand and spot-backed templates that
// don't need a long-lived ASG.
type EC2FleetHandler struct {
	Deps
}

func NewEC2FleetHandler(deps Deps) *EC2FleetHandler {
	return &EC2FleetHandler{Deps: deps}
}

func (h *EC2FleetHandler) AcquireHosts(ctx context.Context, r *request.Request, t *template.Template) (AcquireResult, error) {
	ltResult, err := h.LaunchTemplates.CreateOrUpdate(ctx, t, r)
	if err != nil {
		return AcquireResult{}, err
	}

	fleetType := fleetTypeFor(t)

	targetCapacity := &ec2types.TargetCapacitySpecificationRequest{
		TotalTargetCapacity:       aws.Int32(int32(r.MachineCount)),
		DefaultTargetCapacityType: defaultCapacityTypeFor(t),
	}
	if t.AWS != nil && t.AWS.PercentOnDemand != nil {
		onDemand, spot := onDemandSpotSplit(r.MachineCount, *t.AWS.PercentOnDemand)
		targetCapacity.OnDemandTargetCapacity = aws.Int32(onDemand)
		targetCapacity.SpotTargetCapacity = aws.Int32(spot)
	}

	input := &ec2.CreateFleetInput{
		ClientToken: aws.String(clientTokenFor(r.RequestID)),
		Type:        fleetType,
		LaunchTemplateConfigs: []ec2types.FleetLaunchTemplateConfigRequest{
			{
				LaunchTemplateSpecification: &ec2types.FleetLaunchTemplateSpecificationRequest{
					LaunchTemplateId: aws.String(ltResult.TemplateID),
					Version:          aws.String(ltResult.Version),
				},
				Overrides: overridesFor(t),
			},
		},
		TargetCapacitySpecification: targetCapacity,
		TagSpecifications: awstags.TagSpecifications(
			awstags.Merge(t.Tags, awstags.RequiredTags(r.RequestID, t.TemplateID, string(template.ProviderAPIEC2Fleet))),
			ec2types.ResourceTypeFleet, ec2types.ResourceTypeInstance,
		),
	}
	if strategy := t.AllocationStrategyFor(template.ProviderAPIEC2Fleet); strategy != "" {
		input.SpotOptions = &ec2types.SpotOptionsRequest{AllocationStrategy: ec2types.SpotAllocationStrategy(strategy)}
	}

	if rendered, err := h.NativeSpec.ProcessProviderAPISpecWithMerge(t, r, string(template.ProviderAPIEC2Fleet), map[string]any{
		"LaunchTemplateId":      ltResult.TemplateID,
		"LaunchTemplateVersion": ltResult.Version,
	}); err != nil {
		return AcquireResult{}, err
	} else if rendered != nil {
		if err := applyRenderedSpec(rendered, input); err != nil {
			return AcquireResult{}, err
		}
	}

	var out *ec2.CreateFleetOutput
	err = h.Ops.CallCritical(ctx, "ec2fleet.CreateFleet", func(ctx context.Context) error {
		var callErr error
		out, callErr = h.Client.EC2().CreateFleet(ctx, input)
		return callErr
	})
	if err != nil {
		return AcquireResult{}, err
	}

	fleetID := lo.FromPtr(out.FleetId)
	instances := make([]machine.Machine, 0, len(out.Instances))
	for _, inst := range out.Instances {
		for _, id := range inst.InstanceIds {
			instances = append(instances, machine.Machine{
				MachineID:    id,
				InstanceID:   id,
				RequestID:    r.RequestID,
				TemplateID:   t.TemplateID,
				ResourceID:   fleetID,
				Status:       "pending",
				Result:       machine.ResultExecuting,
				InstanceType: string(inst.InstanceType),
				ProviderName: h.ProviderName,
				ProviderType: h.ProviderType,
				ProviderAPI:  string(template.ProviderAPIEC2Fleet),
			})
		}
	}

	return AcquireResult{Success: true, ResourceIDs: []string{fleetID}, Instances: instances}, nil
}

func (h *EC2FleetHandler) CheckHostsStatus(ctx context.Context, r *request.Request) ([]machine.Machine, error) {
	var machines []machine.Machine
	for _, fleetID := range r.ResourceIDs {
		var instanceIDs []string
		err := h.Ops.Call(ctx, "ec2fleet.DescribeFleetInstances", func(ctx context.Context) error {
			out, err := h.Client.EC2().DescribeFleetInstances(ctx, &ec2.DescribeFleetInstancesInput{FleetId: aws.String(fleetID)})
			if err != nil {
				return err
			}
			instanceIDs = nil
			for _, active := range out.ActiveInstances {
				instanceIDs = append(instanceIDs, lo.FromPtr(active.InstanceId))
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		instances, err := describeInstances(ctx, h.Ops, h.Client, instanceIDs)
		if err != nil {
			return nil, err
		}
		machines = append(machines, machinesFromInstances(h.Deps, r, fleetID, string(template.ProviderAPIEC2Fleet), instances)...)
	}
	return machines, nil
}

func (h *EC2FleetHandler) ReleaseHosts(ctx context.Context, r *request.Request) error {
	var errs error
	if len(r.MachineReferences) > 0 {
		errs = multierr.Append(errs, terminateInstances(ctx, h.Ops, h.Client, r.MachineReferences))
	}
	for _, fleetID := range r.ResourceIDs {
		err := h.Ops.CallCritical(ctx, "ec2fleet.DeleteFleets", func(ctx context.Context) error {
			_, err := h.Client.EC2().DeleteFleets(ctx, &ec2.DeleteFleetsInput{
				FleetIds:           []string{fleetID},
				TerminateInstances: aws.Bool(true),
			})
			return err
		})
		errs = multierr.Append(errs, err)
	}
	return errs
}

func fleetTypeFor(t *template.Template) ec2types.FleetType {
	if t.AWS != nil && t.AWS.FleetType != "" {
		return ec2types.FleetType(t.AWS.FleetType)
	}
	return ec2types.FleetTypeInstant
}

func defaultCapacityTypeFor(t *template.Template) ec2types.DefaultTargetCapacityType {
	if t.PriceType == template.PriceTypeSpot {
		return ec2types.DefaultTargetCapacityTypeSpot
	}
	return ec2types.DefaultTargetCapacityTypeOnDemand
}

func overridesFor(t *template.Template) []ec2types.FleetLaunchTemplateOverridesRequest {
	var overrides []ec2types.FleetLaunchTemplateOverridesRequest
	for _, subnetID := range t.SubnetIDs {
		if len(t.InstanceTypes) == 0 {
			overrides = append(overrides, ec2types.FleetLaunchTemplateOverridesRequest{
				SubnetId:     aws.String(subnetID),
				InstanceType: ec2types.InstanceType(t.InstanceType),
			})
			continue
		}
		for instanceType, weight := range t.InstanceTypes {
			overrides = append(overrides, ec2types.FleetLaunchTemplateOverridesRequest{
				SubnetId:         aws.String(subnetID),
				InstanceType:     ec2types.InstanceType(instanceType),
				WeightedCapacity: aws.Float64(float64(weight)),
			})
		}
	}
	return overrides
}

// applyRenderedSpec overlays a rendered native-spec document's fields
// onto the computed CreateFleetInput, via a JSON round-trip so every
// field the operator's spec names (however partial) lands on the
// matching SDK field.
func applyRenderedSpec(rendered map[string]any, input *ec2.CreateFleetInput) error {
	base, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("ec2fleet: marshal computed input: %w", err)
	}
	var baseMap map[string]any
	if err := json.Unmarshal(base, &baseMap); err != nil {
		return fmt.Errorf("ec2fleet: unmarshal computed input: %w", err)
	}
	for k, v := range rendered {
		baseMap[k] = v
	}
	merged, err := json.Marshal(baseMap)
	if err != nil {
		return fmt.Errorf("ec2fleet: marshal merged input: %w", err)
	}
	return json.Unmarshal(merged, input)
}
