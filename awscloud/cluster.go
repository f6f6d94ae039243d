package awscloud

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"

	"github.com/GoCodeAlone/shipctl/provision"
)

const (
	clusterPollInterval = 3 * time.Second
	clusterPollAttempts = 20
)

// clusterHandler matches the container cluster by exact name. Inactive
// (previously deleted) clusters count as missing.
type clusterHandler struct {
	d    *Deployer
	name string
}

func (h *clusterHandler) Resolve(ctx context.Context, _ provision.IDSet) (provision.Resolution, error) {
	out, err := h.d.clients.ECS.DescribeClusters(ctx, &ecs.DescribeClustersInput{
		Clusters: []string{h.name},
	})
	if err != nil {
		return provision.Resolution{}, fmt.Errorf("describe cluster %q: %w", h.name, err)
	}
	for _, c := range out.Clusters {
		if aws.ToString(c.Status) == "ACTIVE" {
			return provision.Resolution{Exists: true, ID: aws.ToString(c.ClusterArn)}, nil
		}
	}
	return provision.Resolution{}, nil
}

func (h *clusterHandler) Create(ctx context.Context, _ provision.IDSet) (string, error) {
	out, err := h.d.clients.ECS.CreateCluster(ctx, &ecs.CreateClusterInput{
		ClusterName: aws.String(h.name),
	})
	if err != nil {
		return "", fmt.Errorf("create cluster %q: %w", h.name, err)
	}
	return aws.ToString(out.Cluster.ClusterArn), nil
}

func (h *clusterHandler) AwaitReady(ctx context.Context, id string) error {
	return provision.PollUntil(ctx, clusterPollInterval, clusterPollAttempts,
		func(ctx context.Context) (bool, string, error) {
			out, err := h.d.clients.ECS.DescribeClusters(ctx, &ecs.DescribeClustersInput{
				Clusters: []string{id},
			})
			if err != nil {
				return false, "", fmt.Errorf("describe cluster %q: %w", h.name, err)
			}
			for _, c := range out.Clusters {
				status := aws.ToString(c.Status)
				return status == "ACTIVE", status, nil
			}
			return false, "absent", nil
		})
}
