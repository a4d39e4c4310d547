package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/samber/lo"

	domainerrors "github.com/hostfactory/aws-provider/pkg/infrastructure/errors"

	"github.com/hostfactory/aws-provider/pkg/domain/machine"
	"github.com/hostfactory/aws-provider/pkg/domain/request"
	"github.com/hostfactory/aws-provider/pkg/domain/template"
)

// SpotFleetHandler provisions capacity via the (legacy but still
// widely deployed) SpotFleet API. Requires fleet_role.
type SpotFleetHandler struct {
	Deps
}

func NewSpotFleetHandler(deps Deps) *SpotFleetHandler {
	return &SpotFleetHandler{Deps: deps}
}

func (h *SpotFleetHandler) AcquireHosts(ctx context.Context, r *request.Request, t *template.Template) (AcquireResult, error) {
	if t.AWS == nil || t.AWS.FleetRole == "" {
		return AcquireResult{}, domainerrors.Validation("SPOT_FLEET_ROLE_REQUIRED", "fleet_role is required for SpotFleet templates", map[string]any{"template_id": t.TemplateID})
	}

	ltResult, err := h.LaunchTemplates.CreateOrUpdate(ctx, t, r)
	if err != nil {
		return AcquireResult{}, err
	}

	config := &ec2types.SpotFleetRequestConfigData{
		ClientToken:    aws.String(clientTokenFor(r.RequestID)),
		IamFleetRole:   aws.String(t.AWS.FleetRole),
		TargetCapacity: aws.Int32(int32(r.MachineCount)),
		Type:           ec2types.FleetTypeRequest,
		LaunchTemplateConfigs: []ec2types.LaunchTemplateConfig{
			{
				LaunchTemplateSpecification: &ec2types.FleetLaunchTemplateSpecification{
					LaunchTemplateId: aws.String(ltResult.TemplateID),
					Version:          aws.String(ltResult.Version),
				},
				Overrides: spotOverridesFor(t),
			},
		},
	}
	if strategy := t.AllocationStrategyFor(template.ProviderAPISpotFleet); strategy != "" {
		config.AllocationStrategy = ec2types.AllocationStrategy(strategy)
	}
	if t.AWS.PercentOnDemand != nil {
		onDemand, _ := onDemandSpotSplit(r.MachineCount, *t.AWS.PercentOnDemand)
		config.OnDemandTargetCapacity = aws.Int32(onDemand)
	}

	input := &ec2.RequestSpotFleetInput{
		SpotFleetRequestConfig: config,
	}

	var out *ec2.RequestSpotFleetOutput
	err = h.Ops.CallCritical(ctx, "spotfleet.RequestSpotFleet", func(ctx context.Context) error {
		var callErr error
		out, callErr = h.Client.EC2().RequestSpotFleet(ctx, input)
		return callErr
	})
	if err != nil {
		return AcquireResult{}, err
	}

	return AcquireResult{Success: true, ResourceIDs: []string{lo.FromPtr(out.SpotFleetRequestId)}}, nil
}

func (h *SpotFleetHandler) CheckHostsStatus(ctx context.Context, r *request.Request) ([]machine.Machine, error) {
	var machines []machine.Machine
	for _, sfrID := range r.ResourceIDs {
		var instanceIDs []string
		err := h.Ops.Call(ctx, "spotfleet.DescribeSpotFleetInstances", func(ctx context.Context) error {
			out, err := h.Client.EC2().DescribeSpotFleetInstances(ctx, &ec2.DescribeSpotFleetInstancesInput{SpotFleetRequestId: aws.String(sfrID)})
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
		machines = append(machines, machinesFromInstances(h.Deps, r, sfrID, string(template.ProviderAPISpotFleet), instances)...)
	}
	return machines, nil
}

// ReleaseHosts cancels each owned spot fleet request with
// TerminateInstances set, then explicitly terminates any instances
// still in request.MachineReferences — CancelSpotFleetRequests can
// leak instances if the request is already winding down, so the
// explicit terminate is a fallback, not a redundant no-op.
func (h *SpotFleetHandler) ReleaseHosts(ctx context.Context, r *request.Request) error {
	if len(r.ResourceIDs) > 0 {
		err := h.Ops.CallCritical(ctx, "spotfleet.CancelSpotFleetRequests", func(ctx context.Context) error {
			out, err := h.Client.EC2().CancelSpotFleetRequests(ctx, &ec2.CancelSpotFleetRequestsInput{
				SpotFleetRequestIds: r.ResourceIDs,
				TerminateInstances:  aws.Bool(true),
			})
			if err != nil {
				return err
			}
			for _, unsuccessful := range out.UnsuccessfulFleetRequests {
				return fmt.Errorf("spotfleet: cancel %s: %s", lo.FromPtr(unsuccessful.SpotFleetRequestId), lo.FromPtr(unsuccessful.Error.Message))
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return terminateInstances(ctx, h.Ops, h.Client, r.MachineReferences)
}

func spotOverridesFor(t *template.Template) []ec2types.LaunchTemplateOverrides {
	var overrides []ec2types.LaunchTemplateOverrides
	for _, subnetID := range t.SubnetIDs {
		if len(t.InstanceTypes) == 0 {
			overrides = append(overrides, ec2types.LaunchTemplateOverrides{
				SubnetId:     aws.String(subnetID),
				InstanceType: ec2types.InstanceType(t.InstanceType),
			})
			continue
		}
		for instanceType, weight := range t.InstanceTypes {
			overrides = append(overrides, ec2types.LaunchTemplateOverrides{
				SubnetId:         aws.String(subnetID),
				InstanceType:     ec2types.InstanceType(instanceType),
				WeightedCapacity: aws.Float64(float64(weight)),
			})
		}
	}
	return overrides
}
