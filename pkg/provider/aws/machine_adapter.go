package aws

import (
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/samber/lo"

	"github.com/hostfactory/aws-provider/pkg/domain/machine"
	"github.com/hostfactory/aws-provider/pkg/provider/aws/internal/awstags"
)

// MachineAdapter maps an EC2 instance to the normalized Machine entity,
// shared by every handler that needs to report instance state back to
// the domain layer.
type MachineAdapter struct {
	ProviderName string
	ProviderType string
}

func NewMachineAdapter(providerName, providerType string) *MachineAdapter {
	return &MachineAdapter{ProviderName: providerName, ProviderType: providerType}
}

func (a *MachineAdapter) FromInstance(inst ec2types.Instance, requestID, templateID, resourceID, providerAPI string) machine.Machine {
	result := machine.ResultExecuting
	switch inst.State.Name {
	case ec2types.InstanceStateNameRunning:
		result = machine.ResultSucceed
	case ec2types.InstanceStateNameTerminated, ec2types.InstanceStateNameShuttingDown:
		result = machine.ResultFail
	}
	priceType := "ondemand"
	if inst.InstanceLifecycle == ec2types.InstanceLifecycleTypeSpot {
		priceType = "spot"
	}
	var az string
	if inst.Placement != nil {
		az = lo.FromPtr(inst.Placement.AvailabilityZone)
	}
	return machine.Machine{
		MachineID:        lo.FromPtr(inst.InstanceId),
		InstanceID:       lo.FromPtr(inst.InstanceId),
		RequestID:        requestID,
		TemplateID:       templateID,
		ResourceID:       resourceID,
		Status:           string(inst.State.Name),
		Result:           result,
		InstanceType:     string(inst.InstanceType),
		AvailabilityZone: az,
		PrivateIP:        lo.FromPtr(inst.PrivateIpAddress),
		PublicIP:         lo.FromPtr(inst.PublicIpAddress),
		LaunchTime:       lo.FromPtr(inst.LaunchTime),
		PriceType:        priceType,
		ProviderName:     a.ProviderName,
		ProviderType:     a.ProviderType,
		ProviderAPI:      providerAPI,
		Tags:             awstags.FromEC2Tags(inst.Tags),
	}
}
