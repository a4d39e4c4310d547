package aws

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	asgtypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	"github.com/aws/smithy-go"

	"github.com/hostfactory/aws-provider/pkg/domain/template"
)

type fakeASGClient struct {
	createCalls          int
	createErr            error
	lastCreateInput      *autoscaling.CreateAutoScalingGroupInput
	tagCalls             int
	tagErr               error
	describeGroup        *asgtypes.AutoScalingGroup
	deleteCalls          int
	updateCalls          int
	detachCalls          int
	lastDesiredCapacity  int32
	lastMinSize          int32
	lastDetachedInstance []string
}

func (f *fakeASGClient) CreateAutoScalingGroup(ctx context.Context, in *autoscaling.CreateAutoScalingGroupInput, opts ...func(*autoscaling.Options)) (*autoscaling.CreateAutoScalingGroupOutput, error) {
	f.createCalls++
	f.lastCreateInput = in
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &autoscaling.CreateAutoScalingGroupOutput{}, nil
}

type fakeAlreadyExistsError struct{}

func (fakeAlreadyExistsError) Error() string                { return "AlreadyExistsFault" }
func (fakeAlreadyExistsError) ErrorCode() string             { return "AlreadyExistsFault" }
func (fakeAlreadyExistsError) ErrorMessage() string          { return "already exists" }
func (fakeAlreadyExistsError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

func (f *fakeASGClient) CreateOrUpdateTags(ctx context.Context, in *autoscaling.CreateOrUpdateTagsInput, opts ...func(*autoscaling.Options)) (*autoscaling.CreateOrUpdateTagsOutput, error) {
	f.tagCalls++
	if f.tagErr != nil {
		return nil, f.tagErr
	}
	return &autoscaling.CreateOrUpdateTagsOutput{}, nil
}

func (f *fakeASGClient) DescribeAutoScalingGroups(ctx context.Context, in *autoscaling.DescribeAutoScalingGroupsInput, opts ...func(*autoscaling.Options)) (*autoscaling.DescribeAutoScalingGroupsOutput, error) {
	if f.describeGroup == nil {
		return &autoscaling.DescribeAutoScalingGroupsOutput{}, nil
	}
	return &autoscaling.DescribeAutoScalingGroupsOutput{AutoScalingGroups: []asgtypes.AutoScalingGroup{*f.describeGroup}}, nil
}

func (f *fakeASGClient) DeleteAutoScalingGroup(ctx context.Context, in *autoscaling.DeleteAutoScalingGroupInput, opts ...func(*autoscaling.Options)) (*autoscaling.DeleteAutoScalingGroupOutput, error) {
	f.deleteCalls++
	return &autoscaling.DeleteAutoScalingGroupOutput{}, nil
}

func (f *fakeASGClient) UpdateAutoScalingGroup(ctx context.Context, in *autoscaling.UpdateAutoScalingGroupInput, opts ...func(*autoscaling.Options)) (*autoscaling.UpdateAutoScalingGroupOutput, error) {
	f.updateCalls++
	f.lastDesiredCapacity = aws.ToInt32(in.DesiredCapacity)
	f.lastMinSize = aws.ToInt32(in.MinSize)
	return &autoscaling.UpdateAutoScalingGroupOutput{}, nil
}

func (f *fakeASGClient) DetachInstances(ctx context.Context, in *autoscaling.DetachInstancesInput, opts ...func(*autoscaling.Options)) (*autoscaling.DetachInstancesOutput, error) {
	f.detachCalls++
	f.lastDetachedInstance = in.InstanceIds
	return &autoscaling.DetachInstancesOutput{}, nil
}

func TestASGAcquireHostsCreatesGroupAndTags(t *testing.T) {
	ec2Client := &fakeEC2Client{}
	asgClient := &fakeASGClient{}
	deps := testDeps(ec2Client, asgClient)
	h := NewASGHandler(deps)
	result, err := h.AcquireHosts(context.Background(), mustHandlerRequest(t, 3), mustHandlerTemplate(template.ProviderAPIASG))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatal("expected success")
	}
	if asgClient.createCalls != 1 {
		t.Fatalf("expected one CreateAutoScalingGroup call, got %d", asgClient.createCalls)
	}
	if asgClient.tagCalls != 1 {
		t.Fatalf("expected one tagging call, got %d", asgClient.tagCalls)
	}
}

func TestASGAcquireHostsSwallowsTaggingFailure(t *testing.T) {
	ec2Client := &fakeEC2Client{}
	asgClient := &fakeASGClient{tagErr: context.DeadlineExceeded}
	deps := testDeps(ec2Client, asgClient)
	h := NewASGHandler(deps)
	result, err := h.AcquireHosts(context.Background(), mustHandlerRequest(t, 1), mustHandlerTemplate(template.ProviderAPIASG))
	if err != nil {
		t.Fatalf("tagging failure must not fail the acquire call: %v", err)
	}
	if !result.Success {
		t.Fatal("expected success despite tagging failure")
	}
}

func TestASGAcquireHostsTreatsAlreadyExistsAsIdempotentSuccess(t *testing.T) {
	ec2Client := &fakeEC2Client{}
	asgClient := &fakeASGClient{createErr: fakeAlreadyExistsError{}}
	deps := testDeps(ec2Client, asgClient)
	h := NewASGHandler(deps)
	result, err := h.AcquireHosts(context.Background(), mustHandlerRequest(t, 1), mustHandlerTemplate(template.ProviderAPIASG))
	if err != nil {
		t.Fatalf("a retried create for an already-existing group must succeed, got: %v", err)
	}
	if !result.Success {
		t.Fatal("expected success on AlreadyExistsFault")
	}
}

func TestASGAcquireHostsWiresAllocationStrategyAndPercentOnDemand(t *testing.T) {
	ec2Client := &fakeEC2Client{}
	asgClient := &fakeASGClient{}
	deps := testDeps(ec2Client, asgClient)
	h := NewASGHandler(deps)
	tmpl := mustHandlerTemplate(template.ProviderAPIASG)
	tmpl.AllocationStrategy = "lowest-price"
	tmpl.PriceType = template.PriceTypeSpot
	percent := 40
	tmpl.AWS = &template.AWSExtensions{PercentOnDemand: &percent}
	if _, err := h.AcquireHosts(context.Background(), mustHandlerRequest(t, 5), tmpl); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mip := asgClient.lastCreateInput.MixedInstancesPolicy
	if mip == nil || mip.InstancesDistribution == nil {
		t.Fatal("expected a MixedInstancesPolicy with an InstancesDistribution")
	}
	if got := aws.ToString(mip.InstancesDistribution.SpotAllocationStrategy); got != "lowest-price" {
		t.Fatalf("got SpotAllocationStrategy %q, want lowest-price", got)
	}
	if got := aws.ToInt32(mip.InstancesDistribution.OnDemandPercentageAboveBaseCapacity); got != 40 {
		t.Fatalf("got OnDemandPercentageAboveBaseCapacity %d, want 40", got)
	}
	if asgClient.lastCreateInput.LaunchTemplate != nil {
		t.Fatal("expected the bare LaunchTemplate field to be unset when a MixedInstancesPolicy is used")
	}
}

func TestASGReleaseHostsDeletesWholeGroupWhenNoMachinesNamed(t *testing.T) {
	asgClient := &fakeASGClient{}
	deps := testDeps(&fakeEC2Client{}, asgClient)
	h := NewASGHandler(deps)
	r := mustHandlerRequest(t, 1)
	r.ResourceIDs = []string{"hf-" + r.RequestID}
	if err := h.ReleaseHosts(context.Background(), r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if asgClient.deleteCalls != 1 {
		t.Fatalf("expected one DeleteAutoScalingGroup call, got %d", asgClient.deleteCalls)
	}
}

func TestASGReleaseHostsShrinksGroupWhenMachinesNamed(t *testing.T) {
	name := "hf-group"
	asgClient := &fakeASGClient{
		describeGroup: &asgtypes.AutoScalingGroup{
			AutoScalingGroupName: aws.String(name),
			DesiredCapacity:      aws.Int32(5),
			MinSize:              aws.Int32(2),
		},
	}
	deps := testDeps(&fakeEC2Client{}, asgClient)
	h := NewASGHandler(deps)
	r := mustHandlerRequest(t, 1)
	r.ResourceIDs = []string{name}
	r.MachineIDsToReturn = []string{"i-aaaa", "i-bbbb"}
	if err := h.ReleaseHosts(context.Background(), r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if asgClient.deleteCalls != 0 {
		t.Fatal("expected the group to be shrunk, not deleted")
	}
	if asgClient.lastDesiredCapacity != 3 {
		t.Fatalf("got desired capacity %d, want 3", asgClient.lastDesiredCapacity)
	}
	if asgClient.lastMinSize != 2 {
		t.Fatalf("got min size %d, want 2 (min(currentMinSize, newCapacity))", asgClient.lastMinSize)
	}
	if asgClient.detachCalls != 1 {
		t.Fatalf("expected one DetachInstances call, got %d", asgClient.detachCalls)
	}
}

func TestASGReleaseHostsClampsMinSizeToNewCapacity(t *testing.T) {
	name := "hf-group"
	asgClient := &fakeASGClient{
		describeGroup: &asgtypes.AutoScalingGroup{
			AutoScalingGroupName: aws.String(name),
			DesiredCapacity:      aws.Int32(2),
			MinSize:              aws.Int32(2),
		},
	}
	deps := testDeps(&fakeEC2Client{}, asgClient)
	h := NewASGHandler(deps)
	r := mustHandlerRequest(t, 1)
	r.ResourceIDs = []string{name}
	r.MachineIDsToReturn = []string{"i-aaaa", "i-bbbb"}
	if err := h.ReleaseHosts(context.Background(), r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if asgClient.lastDesiredCapacity != 0 {
		t.Fatalf("got desired capacity %d, want 0 (floored)", asgClient.lastDesiredCapacity)
	}
	if asgClient.lastMinSize != 0 {
		t.Fatalf("got min size %d, want 0 (clamped down with capacity)", asgClient.lastMinSize)
	}
}
