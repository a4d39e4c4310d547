package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/hostfactory/aws-provider/pkg/domain/machine"
	"github.com/hostfactory/aws-provider/pkg/domain/request"
)

// clientTokenFor derives a deterministic ClientToken from a request id
// so a retried acquire dispatch for the same request lands on AWS's
// own idempotency window instead of creating a second resource.
// CreateFleet/RequestSpotFleet/RunInstances all cap ClientToken at 64
// characters.
func clientTokenFor(requestID string) string {
	if len(requestID) > 64 {
		return requestID[:64]
	}
	return requestID
}

// onDemandSpotSplit divides total target capacity between on-demand
// and spot counts per percent_on_demand (the share, 0-100, that must
// run on-demand), rounding the on-demand share up.
func onDemandSpotSplit(total, percentOnDemand int) (onDemand, spot int32) {
	od := (total*percentOnDemand + 99) / 100
	if od > total {
		od = total
	}
	return int32(od), int32(total - od)
}

// describeInstances resolves full instance details for a set of
// instance ids, paginating as needed. An empty ids slice short
// -circuits to no call: DescribeInstances with no filter and no ids
// would otherwise describe every instance in the account.
func describeInstances(ctx context.Context, ops *Operations, client ClientProvider, ids []string) ([]ec2types.Instance, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var instances []ec2types.Instance
	err := ops.Call(ctx, "ec2.DescribeInstances", func(ctx context.Context) error {
		instances = nil
		pager := ec2.NewDescribeInstancesPaginator(client.EC2(), &ec2.DescribeInstancesInput{InstanceIds: ids})
		for pager.HasMorePages() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				return err
			}
			for _, res := range page.Reservations {
				instances = append(instances, res.Instances...)
			}
		}
		return nil
	})
	return instances, err
}

// terminateInstances best-effort terminates a set of instances,
// tolerating an empty set.
func terminateInstances(ctx context.Context, ops *Operations, client ClientProvider, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return ops.CallCritical(ctx, "ec2.TerminateInstances", func(ctx context.Context) error {
		_, err := client.EC2().TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: ids})
		return err
	})
}

// machinesFromInstances maps a set of SDK instances to domain
// Machines, all attributed to the same resource and provider API.
func machinesFromInstances(deps Deps, r *request.Request, resourceID, providerAPI string, instances []ec2types.Instance) []machine.Machine {
	machines := make([]machine.Machine, 0, len(instances))
	for _, inst := range instances {
		machines = append(machines, deps.MachineAdapter.FromInstance(inst, r.RequestID, r.TemplateID, resourceID, providerAPI))
	}
	return machines
}
