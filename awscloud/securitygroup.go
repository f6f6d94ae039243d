package awscloud

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/GoCodeAlone/shipctl/provision"
)

type ingressRule struct {
	port        int32
	cidr        string
	description string
}

// securityGroupHandler matches a rule group by exact name within the
// resolved network. A name collision with drifted rules still counts as
// Exists; rule drift is not reconciled.
type securityGroupHandler struct {
	d           *Deployer
	name        string
	description string
	networkNode string
	rules       []ingressRule
}

func (h *securityGroupHandler) Resolve(ctx context.Context, ids provision.IDSet) (provision.Resolution, error) {
	out, err := h.d.clients.EC2.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("group-name"), Values: []string{h.name}},
			{Name: aws.String("vpc-id"), Values: []string{ids.Get(h.networkNode)}},
		},
	})
	if err != nil {
		return provision.Resolution{}, fmt.Errorf("describe security group %q: %w", h.name, err)
	}
	if len(out.SecurityGroups) == 0 {
		return provision.Resolution{}, nil
	}
	return provision.Resolution{Exists: true, ID: aws.ToString(out.SecurityGroups[0].GroupId)}, nil
}

func (h *securityGroupHandler) Create(ctx context.Context, ids provision.IDSet) (string, error) {
	created, err := h.d.clients.EC2.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:   aws.String(h.name),
		Description: aws.String(h.description),
		VpcId:       aws.String(ids.Get(h.networkNode)),
	})
	if err != nil {
		return "", fmt.Errorf("create security group %q: %w", h.name, err)
	}
	groupID := aws.ToString(created.GroupId)

	for _, rule := range h.rules {
		_, err := h.d.clients.EC2.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
			GroupId: aws.String(groupID),
			IpPermissions: []ec2types.IpPermission{
				{
					IpProtocol: aws.String("tcp"),
					FromPort:   aws.Int32(rule.port),
					ToPort:     aws.Int32(rule.port),
					IpRanges: []ec2types.IpRange{
						{CidrIp: aws.String(rule.cidr), Description: aws.String(rule.description)},
					},
				},
			},
		})
		if err != nil {
			// Repeated or concurrent runs may have added the rule already;
			// a duplicate is success, not failure.
			if hasErrorCode(err, "InvalidPermission.Duplicate") {
				h.d.logger.Info("ingress rule already present", "group", h.name, "port", rule.port)
				continue
			}
			return "", fmt.Errorf("authorize ingress on %q (port %d): %w", h.name, rule.port, err)
		}
	}

	return groupID, nil
}
