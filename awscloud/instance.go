package awscloud

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/google/uuid"

	"github.com/GoCodeAlone/shipctl/provision"
)

// Poll budgets for instance readiness. Address assignment can lag the
// running state, so it gets its own short budget.
const (
	instancePollInterval = 5 * time.Second
	instancePollAttempts = 60
	addressPollInterval  = 3 * time.Second
	addressPollAttempts  = 10
)

// instanceHandler resolves a compute instance by its Name tag (pending or
// running) and creates one from the newest matching machine image.
type instanceHandler struct {
	d       *Deployer
	name    string
	sgNode  string
	keyNode string

	pollInterval time.Duration
	pollAttempts int
	addrInterval time.Duration
	addrAttempts int
}

func newInstanceHandler(d *Deployer, name, sgNode, keyNode string) *instanceHandler {
	return &instanceHandler{
		d:            d,
		name:         name,
		sgNode:       sgNode,
		keyNode:      keyNode,
		pollInterval: instancePollInterval,
		pollAttempts: instancePollAttempts,
		addrInterval: addressPollInterval,
		addrAttempts: addressPollAttempts,
	}
}

func (h *instanceHandler) Resolve(ctx context.Context, _ provision.IDSet) (provision.Resolution, error) {
	out, err := h.d.clients.EC2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("tag:Name"), Values: []string{h.name}},
			{Name: aws.String("instance-state-name"), Values: []string{"pending", "running"}},
		},
	})
	if err != nil {
		return provision.Resolution{}, fmt.Errorf("describe instances: %w", err)
	}
	for _, res := range out.Reservations {
		for _, inst := range res.Instances {
			// Re-runs should still surface the address of the live instance.
			if addr := aws.ToString(inst.PublicIpAddress); addr != "" {
				h.d.outputs.Set("public_address", addr)
			}
			return provision.Resolution{Exists: true, ID: aws.ToString(inst.InstanceId)}, nil
		}
	}
	return provision.Resolution{}, nil
}

func (h *instanceHandler) Create(ctx context.Context, ids provision.IDSet) (string, error) {
	imageID, err := h.latestImage(ctx)
	if err != nil {
		return "", err
	}

	out, err := h.d.clients.EC2.RunInstances(ctx, &ec2.RunInstancesInput{
		ImageId:          aws.String(imageID),
		InstanceType:     ec2types.InstanceType(h.d.cfg.EC2.InstanceType),
		MinCount:         aws.Int32(1),
		MaxCount:         aws.Int32(1),
		KeyName:          aws.String(ids.Get(h.keyNode)),
		SecurityGroupIds: []string{ids.Get(h.sgNode)},
		ClientToken:      aws.String(uuid.New().String()),
		TagSpecifications: []ec2types.TagSpecification{
			{
				ResourceType: ec2types.ResourceTypeInstance,
				Tags: []ec2types.Tag{
					{Key: aws.String("Name"), Value: aws.String(h.name)},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("run instance: %w", err)
	}
	if len(out.Instances) == 0 {
		return "", fmt.Errorf("run instance: provider returned no instances")
	}
	return aws.ToString(out.Instances[0].InstanceId), nil
}

// AwaitReady polls until the instance is running, then waits a short extra
// budget for the public address and records it as the run's final output.
func (h *instanceHandler) AwaitReady(ctx context.Context, id string) error {
	err := provision.PollUntil(ctx, h.pollInterval, h.pollAttempts,
		func(ctx context.Context) (bool, string, error) {
			state, _, err := h.describeOne(ctx, id)
			if err != nil {
				return false, "", err
			}
			switch state {
			case "running":
				return true, state, nil
			case "terminated", "shutting-down":
				return false, state, fmt.Errorf("instance %s entered state %q before running", id, state)
			default:
				return false, state, nil
			}
		})
	if err != nil {
		return err
	}

	return provision.PollUntil(ctx, h.addrInterval, h.addrAttempts,
		func(ctx context.Context) (bool, string, error) {
			_, addr, err := h.describeOne(ctx, id)
			if err != nil {
				return false, "", err
			}
			if addr == "" {
				return false, "running (public address unassigned)", nil
			}
			h.d.outputs.Set("public_address", addr)
			return true, "running", nil
		})
}

func (h *instanceHandler) describeOne(ctx context.Context, id string) (state, address string, err error) {
	out, err := h.d.clients.EC2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{id},
	})
	if err != nil {
		return "", "", fmt.Errorf("describe instance %s: %w", id, err)
	}
	for _, res := range out.Reservations {
		for _, inst := range res.Instances {
			if inst.State != nil {
				state = string(inst.State.Name)
			}
			return state, aws.ToString(inst.PublicIpAddress), nil
		}
	}
	return "", "", fmt.Errorf("instance %s not found", id)
}

// latestImage resolves the most recently published machine image matching
// the configured name pattern in the available state. Identical creation
// timestamps tie-break to the lexicographically last image ID.
func (h *instanceHandler) latestImage(ctx context.Context) (string, error) {
	out, err := h.d.clients.EC2.DescribeImages(ctx, &ec2.DescribeImagesInput{
		Owners: []string{"amazon"},
		Filters: []ec2types.Filter{
			{Name: aws.String("name"), Values: []string{h.d.cfg.EC2.AMINamePattern}},
			{Name: aws.String("state"), Values: []string{"available"}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("describe images: %w", err)
	}
	if len(out.Images) == 0 {
		return "", fmt.Errorf("no available image matches pattern %q: %w",
			h.d.cfg.EC2.AMINamePattern, provision.ErrPrerequisiteMissing)
	}

	images := out.Images
	sort.Slice(images, func(i, j int) bool {
		ci, cj := aws.ToString(images[i].CreationDate), aws.ToString(images[j].CreationDate)
		if ci != cj {
			return ci < cj
		}
		return aws.ToString(images[i].ImageId) < aws.ToString(images[j].ImageId)
	})
	return aws.ToString(images[len(images)-1].ImageId), nil
}
