package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/GoCodeAlone/shipctl/awscloud"
	"github.com/GoCodeAlone/shipctl/config"
	"github.com/GoCodeAlone/shipctl/provision"
)

// runEC2 provisions the compute-instance path and prints the instance's
// public address.
func runEC2(args []string) error {
	return runPath("ec2", args, func(d *awscloud.Deployer) []*provision.Node {
		return d.EC2Plan()
	})
}

// runService provisions the managed-service path and prints the repository
// URI and role ARNs the CI pipeline needs.
func runService(args []string) error {
	return runPath("service", args, func(d *awscloud.Deployer) []*provision.Node {
		return d.ServicePlan()
	})
}

func runPath(name string, args []string, nodes func(*awscloud.Deployer) []*provision.Node) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configFile := fs.String("config", "deploy.yaml", "Deploy configuration file")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), `Usage: shipctl %s [options]

Provision the %s path. Safe to re-run: resources that already exist are
recorded and skipped.

Options:
`, name, name)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadFromFile(*configFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	logger := newLogger()

	clients, err := awscloud.NewClients(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build provider clients: %w", err)
	}
	deployer := awscloud.NewDeployer(clients, cfg, logger)
	if err := deployer.VerifyCaller(ctx); err != nil {
		return err
	}

	plan, err := provision.Sequence(nodes(deployer))
	if err != nil {
		return err
	}

	_, applyErr := provision.NewEngine(logger).Apply(ctx, plan)

	// Plain key/value lines: anything resolved before a failure (an existing
	// address, a role ARN for the CI secret store) is still worth printing.
	for _, out := range deployer.Outputs() {
		fmt.Printf("%s: %s\n", out.Key, out.Value)
	}
	if applyErr != nil {
		return applyErr
	}

	for _, n := range plan.Nodes {
		fmt.Printf("%s: %s\n", n.Name, n.Status)
	}
	return nil
}
