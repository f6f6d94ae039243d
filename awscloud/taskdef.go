package awscloud

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"

	"github.com/GoCodeAlone/shipctl/provision"
)

// taskDefinitionHandler matches the task definition family by exact name,
// reusing the newest active revision. Registering builds a Fargate task with
// the application container, its port mapping, and a liveness health check.
type taskDefinitionHandler struct {
	d            *Deployer
	family       string
	repoNode     string
	execRoleNode string
}

func (h *taskDefinitionHandler) Resolve(ctx context.Context, _ provision.IDSet) (provision.Resolution, error) {
	out, err := h.d.clients.ECS.ListTaskDefinitions(ctx, &ecs.ListTaskDefinitionsInput{
		FamilyPrefix: aws.String(h.family),
		Status:       ecstypes.TaskDefinitionStatusActive,
		Sort:         ecstypes.SortOrderDesc,
		MaxResults:   aws.Int32(1),
	})
	if err != nil {
		return provision.Resolution{}, fmt.Errorf("list task definitions for %q: %w", h.family, err)
	}
	if len(out.TaskDefinitionArns) == 0 {
		return provision.Resolution{}, nil
	}
	return provision.Resolution{Exists: true, ID: out.TaskDefinitionArns[0]}, nil
}

func (h *taskDefinitionHandler) Create(ctx context.Context, ids provision.IDSet) (string, error) {
	cfg := h.d.cfg
	image := fmt.Sprintf("%s:%s", ids.Get(h.repoNode), cfg.App.ImageTag)
	port := int32(cfg.App.Port)

	container := ecstypes.ContainerDefinition{
		Name:      aws.String(cfg.App.Name),
		Image:     aws.String(image),
		Essential: aws.Bool(true),
		PortMappings: []ecstypes.PortMapping{
			{ContainerPort: aws.Int32(port), Protocol: ecstypes.TransportProtocolTcp},
		},
		HealthCheck: &ecstypes.HealthCheck{
			Command: []string{
				"CMD-SHELL",
				fmt.Sprintf("curl -fs http://localhost:%d%s || exit 1", port, cfg.App.HealthPath),
			},
			Interval:    aws.Int32(30),
			Timeout:     aws.Int32(5),
			Retries:     aws.Int32(3),
			StartPeriod: aws.Int32(60),
		},
	}

	out, err := h.d.clients.ECS.RegisterTaskDefinition(ctx, &ecs.RegisterTaskDefinitionInput{
		Family:                  aws.String(h.family),
		ContainerDefinitions:    []ecstypes.ContainerDefinition{container},
		NetworkMode:             ecstypes.NetworkModeAwsvpc,
		RequiresCompatibilities: []ecstypes.Compatibility{ecstypes.CompatibilityFargate},
		Cpu:                     aws.String(cfg.Service.CPU),
		Memory:                  aws.String(cfg.Service.Memory),
		ExecutionRoleArn:        aws.String(ids.Get(h.execRoleNode)),
	})
	if err != nil {
		return "", fmt.Errorf("register task definition %q: %w", h.family, err)
	}
	return aws.ToString(out.TaskDefinition.TaskDefinitionArn), nil
}
