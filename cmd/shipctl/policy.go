package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/GoCodeAlone/shipctl/awscloud"
	"github.com/GoCodeAlone/shipctl/config"
)

// runPolicy additively updates a role's inline policy: the current document
// is fetched, unioned with the desired statements, and replaced in a single
// call. Unrelated statements are never removed.
func runPolicy(args []string) error {
	fs := flag.NewFlagSet("policy", flag.ContinueOnError)
	configFile := fs.String("config", "deploy.yaml", "Deploy configuration file")
	roleName := fs.String("role", "", "Name of the existing role to patch (required)")
	policyName := fs.String("policy", "", "Name of the inline policy to replace (required)")
	statementsFile := fs.String("statements", "", "JSON file with the statements to add (required)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), `Usage: shipctl policy [options]

Additively replace a role's inline access policy. The statements file holds
a JSON array of policy statements; they are unioned with the role's current
statements and the whole document is replaced atomically. The role must
already exist.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *roleName == "" || *policyName == "" || *statementsFile == "" {
		fs.Usage()
		return fmt.Errorf("-role, -policy, and -statements are required")
	}

	data, err := os.ReadFile(*statementsFile)
	if err != nil {
		return fmt.Errorf("read statements file: %w", err)
	}
	var desired []awscloud.Statement
	if err := json.Unmarshal(data, &desired); err != nil {
		return fmt.Errorf("parse statements file: %w", err)
	}

	cfg, err := config.LoadFromFile(*configFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	clients, err := awscloud.NewClients(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build provider clients: %w", err)
	}

	patcher := awscloud.NewPolicyPatcher(clients.IAM, newLogger())
	current, err := patcher.CurrentStatements(ctx, *roleName, *policyName)
	if err != nil {
		return err
	}

	merged := awscloud.MergeStatements(current, desired)
	if err := patcher.Patch(ctx, *roleName, *policyName, merged); err != nil {
		return err
	}

	fmt.Printf("role: %s\n", *roleName)
	fmt.Printf("policy: %s\n", *policyName)
	fmt.Printf("statements: %d (%d existing, %d requested)\n", len(merged), len(current), len(desired))
	return nil
}
