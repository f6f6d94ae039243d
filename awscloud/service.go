package awscloud

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"

	"github.com/GoCodeAlone/shipctl/provision"
)

const (
	servicePollInterval = 10 * time.Second
	servicePollAttempts = 60
)

// serviceHandler resolves and creates the managed container service. The
// service is the plan's one non-idempotent node: its owning node sets
// FailOnExists, so a same-name service resolving as Exists aborts the run
// instead of being reused or mutated.
type serviceHandler struct {
	d           *Deployer
	name        string
	clusterNode string
	taskDefNode string
	networkNode string
	sgNode      string

	// clusterID is captured at create time for the readiness poll.
	clusterID string
}

func (h *serviceHandler) Resolve(ctx context.Context, ids provision.IDSet) (provision.Resolution, error) {
	out, err := h.d.clients.ECS.DescribeServices(ctx, &ecs.DescribeServicesInput{
		Cluster:  aws.String(ids.Get(h.clusterNode)),
		Services: []string{h.name},
	})
	if err != nil {
		return provision.Resolution{}, fmt.Errorf("describe service %q: %w", h.name, err)
	}
	for _, svc := range out.Services {
		status := aws.ToString(svc.Status)
		// INACTIVE services are fully deleted; anything else with this name
		// is a live conflict.
		if status != "INACTIVE" {
			return provision.Resolution{Exists: true, ID: aws.ToString(svc.ServiceArn)}, nil
		}
	}
	return provision.Resolution{}, nil
}

func (h *serviceHandler) Create(ctx context.Context, ids provision.IDSet) (string, error) {
	subnets, err := h.defaultSubnets(ctx, ids.Get(h.networkNode))
	if err != nil {
		return "", err
	}
	h.clusterID = ids.Get(h.clusterNode)

	out, err := h.d.clients.ECS.CreateService(ctx, &ecs.CreateServiceInput{
		Cluster:        aws.String(ids.Get(h.clusterNode)),
		ServiceName:    aws.String(h.name),
		TaskDefinition: aws.String(ids.Get(h.taskDefNode)),
		DesiredCount:   aws.Int32(int32(h.d.cfg.Service.DesiredCount)),
		LaunchType:     ecstypes.LaunchTypeFargate,
		NetworkConfiguration: &ecstypes.NetworkConfiguration{
			AwsvpcConfiguration: &ecstypes.AwsVpcConfiguration{
				Subnets:        subnets,
				SecurityGroups: []string{ids.Get(h.sgNode)},
				AssignPublicIp: ecstypes.AssignPublicIpEnabled,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("create service %q: %w", h.name, err)
	}

	arn := aws.ToString(out.Service.ServiceArn)
	h.d.outputs.Set("service_arn", arn)
	return arn, nil
}

// AwaitReady polls until the service is ACTIVE with its desired count
// running.
func (h *serviceHandler) AwaitReady(ctx context.Context, id string) error {
	return provision.PollUntil(ctx, servicePollInterval, servicePollAttempts,
		func(ctx context.Context) (bool, string, error) {
			out, err := h.d.clients.ECS.DescribeServices(ctx, &ecs.DescribeServicesInput{
				Cluster:  aws.String(h.clusterID),
				Services: []string{id},
			})
			if err != nil {
				return false, "", fmt.Errorf("describe service %q: %w", h.name, err)
			}
			for _, svc := range out.Services {
				status := aws.ToString(svc.Status)
				state := fmt.Sprintf("%s (%d/%d running)", status, svc.RunningCount, svc.DesiredCount)
				ready := status == "ACTIVE" && svc.RunningCount >= svc.DesiredCount
				return ready, state, nil
			}
			return false, "absent", nil
		})
}

// defaultSubnets lists the default-for-AZ subnets of the resolved network
// for the service's network attachment.
func (h *serviceHandler) defaultSubnets(ctx context.Context, vpcID string) ([]string, error) {
	out, err := h.d.clients.EC2.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("vpc-id"), Values: []string{vpcID}},
			{Name: aws.String("default-for-az"), Values: []string{"true"}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("describe subnets for %s: %w", vpcID, err)
	}
	if len(out.Subnets) == 0 {
		return nil, fmt.Errorf("no default subnets in network %s: %w", vpcID, provision.ErrPrerequisiteMissing)
	}
	subnets := make([]string, 0, len(out.Subnets))
	for _, sn := range out.Subnets {
		subnets = append(subnets, aws.ToString(sn.SubnetId))
	}
	return subnets, nil
}
