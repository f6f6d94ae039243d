package awscloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/GoCodeAlone/shipctl/provision"
)

const (
	githubOIDCProvider      = "token.actions.githubusercontent.com"
	executionRoleManagedARN = "arn:aws:iam::aws:policy/service-role/AmazonECSTaskExecutionRolePolicy"
)

// roleHandler matches an access role by exact name and creates it with a
// trust policy plus a post-create grant step. The role ARN becomes the node
// identifier and, when outputKey is set, a run output for the caller's CI
// secret store.
type roleHandler struct {
	d         *Deployer
	name      string
	outputKey string
	trust     func() PolicyDocument
	grant     func(ctx context.Context) error
}

// newCIPushRoleHandler builds the role assumed by the build pipeline via
// GitHub OIDC federation, allowed to push images to the app's repository.
func newCIPushRoleHandler(d *Deployer, repoName string) *roleHandler {
	h := &roleHandler{
		d:         d,
		name:      d.cfg.App.Name + "-ci-push",
		outputKey: "ci_push_role_arn",
	}
	h.trust = func() PolicyDocument {
		return PolicyDocument{
			Version: PolicyVersion,
			Statement: []Statement{
				{
					Effect: "Allow",
					Principal: map[string]string{
						"Federated": fmt.Sprintf("arn:aws:iam::%s:oidc-provider/%s", d.accountID, githubOIDCProvider),
					},
					Action: StringList{"sts:AssumeRoleWithWebIdentity"},
					Condition: map[string]map[string]string{
						"StringEquals": {githubOIDCProvider + ":aud": "sts.amazonaws.com"},
						"StringLike":   {githubOIDCProvider + ":sub": "repo:" + d.cfg.Service.GitHubRepo + ":*"},
					},
				},
			},
		}
	}
	h.grant = func(ctx context.Context) error {
		pushPolicy := PolicyDocument{
			Version: PolicyVersion,
			Statement: []Statement{
				{
					Sid:      "EcrLogin",
					Effect:   "Allow",
					Action:   StringList{"ecr:GetAuthorizationToken"},
					Resource: StringList{"*"},
				},
				{
					Sid:    "EcrPush",
					Effect: "Allow",
					Action: StringList{
						"ecr:BatchCheckLayerAvailability",
						"ecr:CompleteLayerUpload",
						"ecr:InitiateLayerUpload",
						"ecr:PutImage",
						"ecr:UploadLayerPart",
						"ecr:BatchGetImage",
					},
					Resource: StringList{d.repositoryARN(repoName)},
				},
			},
		}
		body, err := json.Marshal(pushPolicy)
		if err != nil {
			return fmt.Errorf("encode push policy: %w", err)
		}
		_, err = d.clients.IAM.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
			RoleName:       aws.String(h.name),
			PolicyName:     aws.String(h.name + "-policy"),
			PolicyDocument: aws.String(string(body)),
		})
		if err != nil {
			return fmt.Errorf("attach push policy to %q: %w", h.name, err)
		}
		return nil
	}
	return h
}

// newExecutionRoleHandler builds the role the managed service uses at
// runtime to pull images and write logs.
func newExecutionRoleHandler(d *Deployer) *roleHandler {
	h := &roleHandler{
		d:         d,
		name:      d.cfg.App.Name + "-task-execution",
		outputKey: "task_execution_role_arn",
	}
	h.trust = func() PolicyDocument {
		return PolicyDocument{
			Version: PolicyVersion,
			Statement: []Statement{
				{
					Effect:    "Allow",
					Principal: map[string]string{"Service": "ecs-tasks.amazonaws.com"},
					Action:    StringList{"sts:AssumeRole"},
				},
			},
		}
	}
	h.grant = func(ctx context.Context) error {
		_, err := d.clients.IAM.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
			RoleName:  aws.String(h.name),
			PolicyArn: aws.String(executionRoleManagedARN),
		})
		if err != nil {
			return fmt.Errorf("attach execution policy to %q: %w", h.name, err)
		}
		return nil
	}
	return h
}

func (h *roleHandler) Resolve(ctx context.Context, _ provision.IDSet) (provision.Resolution, error) {
	out, err := h.d.clients.IAM.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(h.name)})
	if err != nil {
		var notFound *iamtypes.NoSuchEntityException
		if errors.As(err, &notFound) {
			return provision.Resolution{}, nil
		}
		return provision.Resolution{}, fmt.Errorf("get role %q: %w", h.name, err)
	}
	arn := aws.ToString(out.Role.Arn)
	if h.outputKey != "" {
		h.d.outputs.Set(h.outputKey, arn)
	}
	return provision.Resolution{Exists: true, ID: arn}, nil
}

func (h *roleHandler) Create(ctx context.Context, _ provision.IDSet) (string, error) {
	trust, err := json.Marshal(h.trust())
	if err != nil {
		return "", fmt.Errorf("encode trust policy: %w", err)
	}

	out, err := h.d.clients.IAM.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 aws.String(h.name),
		AssumeRolePolicyDocument: aws.String(string(trust)),
	})
	if err != nil {
		return "", fmt.Errorf("create role %q: %w", h.name, err)
	}

	if err := h.grant(ctx); err != nil {
		return "", err
	}

	arn := aws.ToString(out.Role.Arn)
	if h.outputKey != "" {
		h.d.outputs.Set(h.outputKey, arn)
	}
	return arn, nil
}
