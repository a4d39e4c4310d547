package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	asgtypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	"github.com/samber/lo"
	"go.uber.org/multierr"

	"github.com/hostfactory/aws-provider/pkg/domain/machine"
	"github.com/hostfactory/aws-provider/pkg/domain/request"
	"github.com/hostfactory/aws-provider/pkg/domain/template"
	"github.com/hostfactory/aws-provider/pkg/provider/aws/internal/awserr"
	"github.com/hostfactory/aws-provider/pkg/provider/aws/internal/awstags"
)

// ASGHandler provisions a long-lived Auto Scaling Group per request,
// the path for templates that want the ASG's own health-check and
// replacement behavior rather than a one-shot fleet.
type ASGHandler struct {
	Deps
}

func NewASGHandler(deps Deps) *ASGHandler {
	return &ASGHandler{Deps: deps}
}

func asgNameFor(r *request.Request) string {
	return fmt.Sprintf("hf-%s", r.RequestID)
}

func (h *ASGHandler) AcquireHosts(ctx context.Context, r *request.Request, t *template.Template) (AcquireResult, error) {
	ltResult, err := h.LaunchTemplates.CreateOrUpdate(ctx, t, r)
	if err != nil {
		return AcquireResult{}, err
	}

	name := asgNameFor(r)

	ltSpec := &asgtypes.LaunchTemplateSpecification{
		LaunchTemplateId: aws.String(ltResult.TemplateID),
		Version:          aws.String(ltResult.Version),
	}

	input := &autoscaling.CreateAutoScalingGroupInput{
		AutoScalingGroupName: aws.String(name),
		MinSize:              aws.Int32(0),
		MaxSize:              aws.Int32(int32(2 * r.MachineCount)),
		DesiredCapacity:      aws.Int32(int32(r.MachineCount)),
		VPCZoneIdentifier:    aws.String(strings.Join(t.SubnetIDs, ",")),
	}
	if mip := mixedInstancesPolicyFor(t, ltSpec); mip != nil {
		input.MixedInstancesPolicy = mip
	} else {
		input.LaunchTemplate = ltSpec
	}

	err = h.Ops.CallCritical(ctx, "asg.CreateAutoScalingGroup", func(ctx context.Context) error {
		_, err := h.Client.ASG().CreateAutoScalingGroup(ctx, input)
		return err
	})
	if err != nil && !awserr.IsAlreadyExists(err) {
		return AcquireResult{}, err
	}

	h.tagGroup(ctx, name, t, r)

	return AcquireResult{Success: true, ResourceIDs: []string{name}}, nil
}

// mixedInstancesPolicyFor builds a MixedInstancesPolicy carrying the
// template's allocation strategy, on-demand/spot split, and any
// weighted instance type overrides. Returns nil when the template sets
// none of those, so plain templates keep the bare LaunchTemplate field.
func mixedInstancesPolicyFor(t *template.Template, ltSpec *asgtypes.LaunchTemplateSpecification) *asgtypes.MixedInstancesPolicy {
	var percentOnDemand *int
	if t.AWS != nil {
		percentOnDemand = t.AWS.PercentOnDemand
	}
	allocationStrategy := t.AllocationStrategyFor(template.ProviderAPIASG)
	if allocationStrategy == "" && len(t.InstanceTypes) == 0 && percentOnDemand == nil {
		return nil
	}

	lt := &asgtypes.LaunchTemplate{LaunchTemplateSpecification: ltSpec}
	for instanceType := range t.InstanceTypes {
		lt.Overrides = append(lt.Overrides, asgtypes.LaunchTemplateOverrides{InstanceType: aws.String(instanceType)})
	}

	dist := &asgtypes.InstancesDistribution{}
	if allocationStrategy != "" {
		if t.PriceType == template.PriceTypeOnDemand {
			dist.OnDemandAllocationStrategy = aws.String(allocationStrategy)
		} else {
			dist.SpotAllocationStrategy = aws.String(allocationStrategy)
		}
	}
	if percentOnDemand != nil {
		dist.OnDemandPercentageAboveBaseCapacity = aws.Int32(int32(*percentOnDemand))
	}

	return &asgtypes.MixedInstancesPolicy{LaunchTemplate: lt, InstancesDistribution: dist}
}

// tagGroup tags the group itself plus the instances it launches.
// Tagging is a best-effort side effect: a failure here is logged and
// swallowed rather than failing the acquire-hosts call, since the
// group already exists and will serve capacity regardless.
func (h *ASGHandler) tagGroup(ctx context.Context, name string, t *template.Template, r *request.Request) {
	groupTags := awstags.Merge(map[string]string{"Name": name}, awstags.RequiredTags(r.RequestID, t.TemplateID, string(template.ProviderAPIASG)))
	instanceTags := awstags.Merge(t.Tags, awstags.RequiredTags(r.RequestID, t.TemplateID, string(template.ProviderAPIASG)))

	err := h.Ops.Call(ctx, "asg.CreateOrUpdateTags", func(ctx context.Context) error {
		_, err := h.Client.ASG().CreateOrUpdateTags(ctx, &autoscaling.CreateOrUpdateTagsInput{
			Tags: asgTagsFor(name, groupTags, instanceTags),
		})
		return err
	})
	if err != nil && h.Logger != nil {
		h.Logger.Warn("asg: tagging failed, continuing", "auto_scaling_group", name, "error", err)
	}
}

// asgTagsFor builds the ASG's Tags slice: the group's own identifying
// tags (PropagateAtLaunch=false) plus the template's tags propagated
// to launched instances (PropagateAtLaunch=true).
func asgTagsFor(asgName string, groupTags, instanceTags map[string]string) []asgtypes.Tag {
	var tags []asgtypes.Tag
	for k, v := range groupTags {
		tags = append(tags, asgtypes.Tag{
			Key: aws.String(k), Value: aws.String(v),
			ResourceId: aws.String(asgName), ResourceType: aws.String("auto-scaling-group"),
			PropagateAtLaunch: aws.Bool(false),
		})
	}
	for k, v := range instanceTags {
		tags = append(tags, asgtypes.Tag{
			Key: aws.String(k), Value: aws.String(v),
			ResourceId: aws.String(asgName), ResourceType: aws.String("auto-scaling-group"),
			PropagateAtLaunch: aws.Bool(true),
		})
	}
	return tags
}

func (h *ASGHandler) describeGroup(ctx context.Context, name string) (*asgtypes.AutoScalingGroup, error) {
	var group *asgtypes.AutoScalingGroup
	err := h.Ops.Call(ctx, "asg.DescribeAutoScalingGroups", func(ctx context.Context) error {
		out, err := h.Client.ASG().DescribeAutoScalingGroups(ctx, &autoscaling.DescribeAutoScalingGroupsInput{
			AutoScalingGroupNames: []string{name},
		})
		if err != nil {
			return err
		}
		if len(out.AutoScalingGroups) == 0 {
			group = nil
			return nil
		}
		group = &out.AutoScalingGroups[0]
		return nil
	})
	return group, err
}

func (h *ASGHandler) CheckHostsStatus(ctx context.Context, r *request.Request) ([]machine.Machine, error) {
	var machines []machine.Machine
	for _, name := range r.ResourceIDs {
		group, err := h.describeGroup(ctx, name)
		if err != nil {
			return nil, err
		}
		if group == nil {
			continue
		}
		instanceIDs := lo.Map(group.Instances, func(inst asgtypes.Instance, _ int) string { return lo.FromPtr(inst.InstanceId) })
		instances, err := describeInstances(ctx, h.Ops, h.Client, instanceIDs)
		if err != nil {
			return nil, err
		}
		machines = append(machines, machinesFromInstances(h.Deps, r, name, string(template.ProviderAPIASG), instances)...)
	}
	return machines, nil
}

// ReleaseHosts shrinks the group by the requested machine ids (rather
// than deleting it outright) when the request names specific
// machines to return; otherwise the whole group is torn down.
func (h *ASGHandler) ReleaseHosts(ctx context.Context, r *request.Request) error {
	var errs error
	for _, name := range r.ResourceIDs {
		if len(r.MachineIDsToReturn) == 0 {
			err := h.Ops.CallCritical(ctx, "asg.DeleteAutoScalingGroup", func(ctx context.Context) error {
				_, err := h.Client.ASG().DeleteAutoScalingGroup(ctx, &autoscaling.DeleteAutoScalingGroupInput{
					AutoScalingGroupName: aws.String(name),
					ForceDelete:          aws.Bool(true),
				})
				return err
			})
			errs = multierr.Append(errs, err)
			continue
		}

		group, err := h.describeGroup(ctx, name)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if group == nil {
			continue
		}

		shrinkBy := int32(len(r.MachineIDsToReturn))
		newCapacity := lo.FromPtr(group.DesiredCapacity) - shrinkBy
		if newCapacity < 0 {
			newCapacity = 0
		}
		newMinSize := lo.FromPtr(group.MinSize)
		if newCapacity < newMinSize {
			newMinSize = newCapacity
		}
		err = h.Ops.CallCritical(ctx, "asg.UpdateAutoScalingGroup", func(ctx context.Context) error {
			_, err := h.Client.ASG().UpdateAutoScalingGroup(ctx, &autoscaling.UpdateAutoScalingGroupInput{
				AutoScalingGroupName: aws.String(name),
				DesiredCapacity:      aws.Int32(newCapacity),
				MinSize:              aws.Int32(newMinSize),
			})
			return err
		})
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}

		err = h.Ops.CallCritical(ctx, "asg.DetachInstances", func(ctx context.Context) error {
			_, err := h.Client.ASG().DetachInstances(ctx, &autoscaling.DetachInstancesInput{
				AutoScalingGroupName:           aws.String(name),
				InstanceIds:                    r.MachineIDsToReturn,
				ShouldDecrementDesiredCapacity: aws.Bool(true),
			})
			return err
		})
		errs = multierr.Append(errs, err)
	}
	errs = multierr.Append(errs, terminateInstances(ctx, h.Ops, h.Client, r.MachineIDsToReturn))
	return errs
}
