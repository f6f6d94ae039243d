package awscloud

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"

	"github.com/GoCodeAlone/shipctl/provision"
)

// repositoryHandler matches the image repository by exact name. Its
// identifier is the repository URI, which later nodes use as the image
// reference base.
type repositoryHandler struct {
	d    *Deployer
	name string
}

func (h *repositoryHandler) Resolve(ctx context.Context, _ provision.IDSet) (provision.Resolution, error) {
	out, err := h.d.clients.ECR.DescribeRepositories(ctx, &ecr.DescribeRepositoriesInput{
		RepositoryNames: []string{h.name},
	})
	if err != nil {
		var notFound *ecrtypes.RepositoryNotFoundException
		if errors.As(err, &notFound) {
			return provision.Resolution{}, nil
		}
		return provision.Resolution{}, fmt.Errorf("describe repository %q: %w", h.name, err)
	}
	if len(out.Repositories) == 0 {
		return provision.Resolution{}, nil
	}
	uri := aws.ToString(out.Repositories[0].RepositoryUri)
	h.d.outputs.Set("repository_uri", uri)
	return provision.Resolution{Exists: true, ID: uri}, nil
}

func (h *repositoryHandler) Create(ctx context.Context, _ provision.IDSet) (string, error) {
	out, err := h.d.clients.ECR.CreateRepository(ctx, &ecr.CreateRepositoryInput{
		RepositoryName: aws.String(h.name),
	})
	if err != nil {
		return "", fmt.Errorf("create repository %q: %w", h.name, err)
	}
	uri := aws.ToString(out.Repository.RepositoryUri)
	h.d.outputs.Set("repository_uri", uri)
	return uri, nil
}

// repositoryARN derives the repository's ARN from the verified account ID,
// for use in push-policy resource patterns.
func (d *Deployer) repositoryARN(name string) string {
	return fmt.Sprintf("arn:aws:ecr:%s:%s:repository/%s", d.cfg.Region, d.accountID, name)
}
