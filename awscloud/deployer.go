package awscloud

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/GoCodeAlone/shipctl/config"
	"github.com/GoCodeAlone/shipctl/provision"
)

// Output is one key/value line of a run's terminal output.
type Output struct {
	Key   string
	Value string
}

// Outputs collects run outputs in insertion order. Setting an existing key
// overwrites its value without reordering.
type Outputs struct {
	keys   []string
	values map[string]string
}

func NewOutputs() *Outputs {
	return &Outputs{values: make(map[string]string)}
}

func (o *Outputs) Set(key, value string) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
}

func (o *Outputs) All() []Output {
	out := make([]Output, 0, len(o.keys))
	for _, k := range o.keys {
		out = append(out, Output{Key: k, Value: o.values[k]})
	}
	return out
}

// Deployer owns the AWS clients, the deploy configuration, and the run's
// collected outputs, and constructs the node sets for the two provisioning
// plans. A Deployer is created fresh per invocation; nothing persists
// between runs.
type Deployer struct {
	clients   *Clients
	cfg       *config.DeployConfig
	logger    *slog.Logger
	outputs   *Outputs
	accountID string
}

// NewDeployer creates a Deployer. clients may be nil when the node set is
// only being sequenced and printed, never applied.
func NewDeployer(clients *Clients, cfg *config.DeployConfig, logger *slog.Logger) *Deployer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deployer{
		clients: clients,
		cfg:     cfg,
		logger:  logger,
		outputs: NewOutputs(),
	}
}

// Outputs returns the key/value outputs collected so far, in order.
func (d *Deployer) Outputs() []Output { return d.outputs.All() }

// VerifyCaller confirms the ambient credentials work and records the account
// ID used to construct role ARNs and trust policies.
func (d *Deployer) VerifyCaller(ctx context.Context) error {
	out, err := d.clients.STS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return fmt.Errorf("verify caller identity: %w", err)
	}
	d.accountID = aws.ToString(out.Account)
	d.logger.Info("caller identity verified", "account", d.accountID)
	return nil
}

// Node names within the two plans. The plans share no nodes; each run
// constructs its own set.
const (
	nodeNetwork       = "network"
	nodeSecurityGroup = "security-group"
	nodeKeyPair       = "key-pair"
	nodeInstance      = "instance"

	nodeRepository     = "repository"
	nodeCIPushRole     = "ci-push-role"
	nodeExecutionRole  = "task-execution-role"
	nodeServiceNetwork = "service-network"
	nodeServiceSG      = "service-security-group"
	nodeCluster        = "cluster"
	nodeTaskDefinition = "task-definition"
	nodeService        = "service"
)

// EC2Plan declares the compute-instance path: default network → ingress rule
// set (SSH + application port) → key credential → instance.
func (d *Deployer) EC2Plan() []*provision.Node {
	appPort := int32(d.cfg.App.Port)
	return []*provision.Node{
		{
			Name:    nodeNetwork,
			Kind:    provision.KindNetwork,
			Handler: &defaultNetworkHandler{d: d},
		},
		{
			Name:      nodeSecurityGroup,
			Kind:      provision.KindSecurityGroup,
			DependsOn: []string{nodeNetwork},
			Handler: &securityGroupHandler{
				d:           d,
				name:        d.cfg.App.Name + "-sg",
				description: "SSH and application access for " + d.cfg.App.Name,
				networkNode: nodeNetwork,
				rules: []ingressRule{
					{port: 22, cidr: d.cfg.EC2.SSHCIDR, description: "SSH"},
					{port: appPort, cidr: "0.0.0.0/0", description: "application port"},
				},
			},
		},
		{
			Name:      nodeKeyPair,
			Kind:      provision.KindKeyPair,
			DependsOn: []string{nodeSecurityGroup},
			Handler:   &keyPairHandler{d: d, name: d.cfg.EC2.KeyName},
		},
		{
			Name:      nodeInstance,
			Kind:      provision.KindInstance,
			DependsOn: []string{nodeSecurityGroup, nodeKeyPair},
			Handler:   newInstanceHandler(d, d.cfg.App.Name, nodeSecurityGroup, nodeKeyPair),
		},
	}
}

// ServicePlan declares the managed-service path: image repository → CI push
// role → task execution role → cluster → task definition → service, with the
// service's network attachment (default network + service rule group)
// provisioned alongside.
func (d *Deployer) ServicePlan() []*provision.Node {
	appPort := int32(d.cfg.App.Port)
	return []*provision.Node{
		{
			Name:    nodeRepository,
			Kind:    provision.KindRepository,
			Handler: &repositoryHandler{d: d, name: d.cfg.App.Name},
		},
		{
			Name:      nodeCIPushRole,
			Kind:      provision.KindRole,
			DependsOn: []string{nodeRepository},
			Handler:   newCIPushRoleHandler(d, d.cfg.App.Name),
		},
		{
			Name:      nodeExecutionRole,
			Kind:      provision.KindRole,
			DependsOn: []string{nodeCIPushRole},
			Handler:   newExecutionRoleHandler(d),
		},
		{
			Name:    nodeServiceNetwork,
			Kind:    provision.KindNetwork,
			Handler: &defaultNetworkHandler{d: d},
		},
		{
			Name:      nodeServiceSG,
			Kind:      provision.KindSecurityGroup,
			DependsOn: []string{nodeServiceNetwork},
			Handler: &securityGroupHandler{
				d:           d,
				name:        d.cfg.App.Name + "-service-sg",
				description: "application access for " + d.cfg.App.Name + " tasks",
				networkNode: nodeServiceNetwork,
				rules: []ingressRule{
					{port: appPort, cidr: "0.0.0.0/0", description: "application port"},
				},
			},
		},
		{
			Name:      nodeCluster,
			Kind:      provision.KindCluster,
			DependsOn: []string{nodeExecutionRole},
			Handler:   &clusterHandler{d: d, name: d.cfg.App.Name},
		},
		{
			Name:      nodeTaskDefinition,
			Kind:      provision.KindTaskDefinition,
			DependsOn: []string{nodeRepository, nodeExecutionRole, nodeCluster},
			Handler: &taskDefinitionHandler{
				d:            d,
				family:       d.cfg.App.Name,
				repoNode:     nodeRepository,
				execRoleNode: nodeExecutionRole,
			},
		},
		{
			Name:         nodeService,
			Kind:         provision.KindService,
			DependsOn:    []string{nodeCluster, nodeTaskDefinition, nodeServiceNetwork, nodeServiceSG},
			FailOnExists: true,
			Handler: &serviceHandler{
				d:           d,
				name:        d.cfg.App.Name,
				clusterNode: nodeCluster,
				taskDefNode: nodeTaskDefinition,
				networkNode: nodeServiceNetwork,
				sgNode:      nodeServiceSG,
			},
		},
	}
}
