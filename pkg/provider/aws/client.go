// Package aws implements the AWS provider strategy: the four
// provisioning-API handlers, the launch template manager, native-spec
// rendering, and the AWSClient/AWSOperations collaborators every
// handler shares.
package aws

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// EC2API is the slice of the EC2 SDK client every provisioning
// handler calls through. Narrowing Client.EC2() to this interface
// (rather than the concrete *ec2.Client) lets handler tests substitute
// a fake that only implements the calls a given handler makes.
type EC2API interface {
	ec2.DescribeInstancesAPIClient

	CreateFleet(ctx context.Context, params *ec2.CreateFleetInput, optFns ...func(*ec2.Options)) (*ec2.CreateFleetOutput, error)
	DeleteFleets(ctx context.Context, params *ec2.DeleteFleetsInput, optFns ...func(*ec2.Options)) (*ec2.DeleteFleetsOutput, error)
	DescribeFleetInstances(ctx context.Context, params *ec2.DescribeFleetInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeFleetInstancesOutput, error)
	RequestSpotFleet(ctx context.Context, params *ec2.RequestSpotFleetInput, optFns ...func(*ec2.Options)) (*ec2.RequestSpotFleetOutput, error)
	CancelSpotFleetRequests(ctx context.Context, params *ec2.CancelSpotFleetRequestsInput, optFns ...func(*ec2.Options)) (*ec2.CancelSpotFleetRequestsOutput, error)
	DescribeSpotFleetInstances(ctx context.Context, params *ec2.DescribeSpotFleetInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSpotFleetInstancesOutput, error)
	RunInstances(ctx context.Context, params *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error)
	TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
}

// ASGAPI is the slice of the Auto Scaling SDK client the ASG handler
// calls through, narrowed for the same testing reason as EC2API.
type ASGAPI interface {
	CreateAutoScalingGroup(ctx context.Context, params *autoscaling.CreateAutoScalingGroupInput, optFns ...func(*autoscaling.Options)) (*autoscaling.CreateAutoScalingGroupOutput, error)
	CreateOrUpdateTags(ctx context.Context, params *autoscaling.CreateOrUpdateTagsInput, optFns ...func(*autoscaling.Options)) (*autoscaling.CreateOrUpdateTagsOutput, error)
	DescribeAutoScalingGroups(ctx context.Context, params *autoscaling.DescribeAutoScalingGroupsInput, optFns ...func(*autoscaling.Options)) (*autoscaling.DescribeAutoScalingGroupsOutput, error)
	DeleteAutoScalingGroup(ctx context.Context, params *autoscaling.DeleteAutoScalingGroupInput, optFns ...func(*autoscaling.Options)) (*autoscaling.DeleteAutoScalingGroupOutput, error)
	UpdateAutoScalingGroup(ctx context.Context, params *autoscaling.UpdateAutoScalingGroupInput, optFns ...func(*autoscaling.Options)) (*autoscaling.UpdateAutoScalingGroupOutput, error)
	DetachInstances(ctx context.Context, params *autoscaling.DetachInstancesInput, optFns ...func(*autoscaling.Options)) (*autoscaling.DetachInstancesOutput, error)
}

// ClientProvider is what every handler's Deps depends on: just enough
// to reach a narrowed per-service API. *Client implements it against
// real SDK clients; tests substitute their own.
type ClientProvider interface {
	EC2() EC2API
	ASG() ASGAPI
}

// Client lazily constructs and memoizes one SDK client per service.
// Every handler shares one Client instance and the underlying SDK
// session is thread-safe, so client construction only needs to happen
// once per service per Client.
type Client struct {
	cfg aws.Config

	mu  sync.Mutex
	ec2 *ec2.Client
	asg *autoscaling.Client
	ssm *ssm.Client
}

func NewClient(cfg aws.Config) *Client {
	return &Client{cfg: cfg}
}

func (c *Client) EC2() EC2API {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ec2 == nil {
		c.ec2 = ec2.NewFromConfig(c.cfg)
	}
	return c.ec2
}

func (c *Client) ASG() ASGAPI {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.asg == nil {
		c.asg = autoscaling.NewFromConfig(c.cfg)
	}
	return c.asg
}

func (c *Client) SSM() *ssm.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ssm == nil {
		c.ssm = ssm.NewFromConfig(c.cfg)
	}
	return c.ssm
}
