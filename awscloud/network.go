package awscloud

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/GoCodeAlone/shipctl/provision"
)

// defaultNetworkHandler resolves the account's default VPC in the configured
// region. There is no creation path: an account without a default network is
// a fatal precondition failure.
type defaultNetworkHandler struct {
	d *Deployer
}

func (h *defaultNetworkHandler) Resolve(ctx context.Context, _ provision.IDSet) (provision.Resolution, error) {
	out, err := h.d.clients.EC2.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("is-default"), Values: []string{"true"}},
		},
	})
	if err != nil {
		return provision.Resolution{}, fmt.Errorf("describe default network: %w", err)
	}
	if len(out.Vpcs) == 0 {
		return provision.Resolution{}, fmt.Errorf(
			"no default network (VPC) in region %s: %w", h.d.cfg.Region, provision.ErrPrerequisiteMissing)
	}
	return provision.Resolution{Exists: true, ID: aws.ToString(out.Vpcs[0].VpcId)}, nil
}

func (h *defaultNetworkHandler) Create(_ context.Context, _ provision.IDSet) (string, error) {
	return "", fmt.Errorf("default network cannot be created by this tool: %w", provision.ErrPrerequisiteMissing)
}
