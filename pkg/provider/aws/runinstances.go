package aws

import (
	"context"
	"encoding/base64"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/samber/lo"

	"github.com/hostfactory/aws-provider/pkg/domain/machine"
	"github.com/hostfactory/aws-provider/pkg/domain/request"
	"github.com/hostfactory/aws-provider/pkg/domain/template"
	"github.com/hostfactory/aws-provider/pkg/provider/aws/internal/awstags"
)

// RunInstancesHandler provisions capacity by calling RunInstances
// directly: no fleet or ASG wrapper, so instances are known
// synchronously and capacity errors surface immediately.
type RunInstancesHandler struct {
	Deps
}

func NewRunInstancesHandler(deps Deps) *RunInstancesHandler {
	return &RunInstancesHandler{Deps: deps}
}

func (h *RunInstancesHandler) AcquireHosts(ctx context.Context, r *request.Request, t *template.Template) (AcquireResult, error) {
	input := &ec2.RunInstancesInput{
		ClientToken:      aws.String(clientTokenFor(r.RequestID)),
		ImageId:          aws.String(t.ImageID),
		InstanceType:     ec2types.InstanceType(t.InstanceType),
		MinCount:         aws.Int32(int32(r.MachineCount)),
		MaxCount:         aws.Int32(int32(r.MachineCount)),
		SecurityGroupIds: t.SecurityGroupIDs,
		SubnetId:         lo.Ternary(len(t.SubnetIDs) > 0, aws.String(t.SubnetIDs[0]), nil),
		TagSpecifications: awstags.TagSpecifications(
			awstags.Merge(t.Tags, awstags.RequiredTags(r.RequestID, t.TemplateID, string(template.ProviderAPIRunInstances))),
			ec2types.ResourceTypeInstance,
		),
	}
	if t.AWS != nil {
		if t.AWS.KeyName != "" {
			input.KeyName = aws.String(t.AWS.KeyName)
		}
		if t.AWS.UserData != "" {
			input.UserData = aws.String(base64.StdEncoding.EncodeToString([]byte(t.AWS.UserData)))
		}
		if t.AWS.InstanceProfile != "" {
			input.IamInstanceProfile = &ec2types.IamInstanceProfileSpecification{Name: aws.String(t.AWS.InstanceProfile)}
		}
	}

	var out *ec2.RunInstancesOutput
	err := h.Ops.CallCritical(ctx, "ec2.RunInstances", func(ctx context.Context) error {
		var callErr error
		out, callErr = h.Client.EC2().RunInstances(ctx, input)
		return callErr
	})
	if err != nil {
		return AcquireResult{}, err
	}

	reservationID := lo.FromPtr(out.ReservationId)
	instances := machinesFromInstances(h.Deps, r, reservationID, string(template.ProviderAPIRunInstances), out.Instances)
	return AcquireResult{Success: true, ResourceIDs: []string{reservationID}, Instances: instances}, nil
}

func (h *RunInstancesHandler) CheckHostsStatus(ctx context.Context, r *request.Request) ([]machine.Machine, error) {
	instances, err := describeInstances(ctx, h.Ops, h.Client, r.MachineReferences)
	if err != nil {
		return nil, err
	}
	resourceID := ""
	if len(r.ResourceIDs) > 0 {
		resourceID = r.ResourceIDs[0]
	}
	return machinesFromInstances(h.Deps, r, resourceID, string(template.ProviderAPIRunInstances), instances), nil
}

func (h *RunInstancesHandler) ReleaseHosts(ctx context.Context, r *request.Request) error {
	return terminateInstances(ctx, h.Ops, h.Client, r.MachineReferences)
}
