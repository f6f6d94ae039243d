package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/GoCodeAlone/shipctl/awscloud"
	"github.com/GoCodeAlone/shipctl/config"
	"github.com/GoCodeAlone/shipctl/provision"
)

// runPlan sequences a path's nodes and prints the resulting order without
// making any provider call.
func runPlan(args []string) error {
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	configFile := fs.String("config", "deploy.yaml", "Deploy configuration file")
	path := fs.String("path", "ec2", "Provisioning path to show: ec2 or service")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), `Usage: shipctl plan [options]

Print the ordered provisioning plan for a path. Nothing is created; the
provider is not contacted.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadFromFile(*configFile)
	if err != nil {
		return err
	}

	// No clients: the node set is only sequenced and printed.
	deployer := awscloud.NewDeployer(nil, cfg, newLogger())

	var nodes []*provision.Node
	switch *path {
	case "ec2":
		nodes = deployer.EC2Plan()
	case "service":
		nodes = deployer.ServicePlan()
	default:
		return fmt.Errorf("unknown path %q: must be ec2 or service", *path)
	}

	plan, err := provision.Sequence(nodes)
	if err != nil {
		return err
	}

	fmt.Printf("plan for path %q (%d nodes):\n", *path, len(plan.Nodes))
	for i, n := range plan.Nodes {
		deps := "-"
		if len(n.DependsOn) > 0 {
			deps = strings.Join(n.DependsOn, ", ")
		}
		fmt.Printf("  %2d. %-24s kind=%-16s depends on: %s\n", i+1, n.Name, n.Kind, deps)
	}
	return nil
}
