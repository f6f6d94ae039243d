package main

import (
	"fmt"
	"log/slog"
	"os"
)

var version = "dev"

var commands = map[string]func([]string) error{
	"plan":    runPlan,
	"ec2":     runEC2,
	"service": runService,
	"policy":  runPolicy,
}

func usage() {
	fmt.Fprintf(os.Stderr, `shipctl - containerized app provisioning CLI (version %s)

Usage:
  shipctl <command> [options]

Commands:
  plan     Show the ordered provisioning plan without touching the provider
  ec2      Provision the EC2 path (default network, security group, key pair, instance)
  service  Provision the managed-service path (ECR repo, roles, cluster, task def, service)
  policy   Additively replace a role's inline access policy

All commands read deploy.yaml (override with -config). Provider credentials
come from the environment or from the config file.

Run 'shipctl <command> -h' for command-specific help.
`, version)
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		usage()
		os.Exit(0)
	}
	if cmd == "-v" || cmd == "--version" || cmd == "version" {
		fmt.Println(version)
		os.Exit(0)
	}

	fn, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}

	if err := fn(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
