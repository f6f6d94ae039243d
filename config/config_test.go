package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deploy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromFileAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
region: us-east-1
app:
  name: roster
`)
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.App.Port != DefaultPort {
		t.Errorf("port = %d, want %d", cfg.App.Port, DefaultPort)
	}
	if cfg.App.HealthPath != DefaultHealthPath {
		t.Errorf("health path = %q, want %q", cfg.App.HealthPath, DefaultHealthPath)
	}
	if cfg.EC2.InstanceType != DefaultInstanceType {
		t.Errorf("instance type = %q, want %q", cfg.EC2.InstanceType, DefaultInstanceType)
	}
	if cfg.EC2.AMINamePattern != DefaultAMIPattern {
		t.Errorf("ami pattern = %q, want %q", cfg.EC2.AMINamePattern, DefaultAMIPattern)
	}
	if cfg.Service.CPU != DefaultCPU || cfg.Service.Memory != DefaultMemory {
		t.Errorf("cpu/memory = %s/%s, want %s/%s", cfg.Service.CPU, cfg.Service.Memory, DefaultCPU, DefaultMemory)
	}
	if cfg.Service.DesiredCount != DefaultDesiredCount {
		t.Errorf("desired count = %d, want %d", cfg.Service.DesiredCount, DefaultDesiredCount)
	}
}

func TestLoadFromFileKeepsExplicitValues(t *testing.T) {
	path := writeConfig(t, `
region: eu-west-1
app:
  name: roster
  port: 9000
  health_path: /healthz
ec2:
  instance_type: t3.small
  key_name: my-key
service:
  desired_count: 2
  github_repo: example/roster
`)
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.App.Port != 9000 || cfg.App.HealthPath != "/healthz" {
		t.Errorf("app = %+v", cfg.App)
	}
	if cfg.EC2.InstanceType != "t3.small" || cfg.EC2.KeyName != "my-key" {
		t.Errorf("ec2 = %+v", cfg.EC2)
	}
	if cfg.Service.DesiredCount != 2 || cfg.Service.GitHubRepo != "example/roster" {
		t.Errorf("service = %+v", cfg.Service)
	}
}

func TestLoadFromFileValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing region", "app:\n  name: roster\n"},
		{"missing app name", "region: us-east-1\n"},
		{"port out of range", "region: us-east-1\napp:\n  name: roster\n  port: 70000\n"},
		{"partial static credentials", "region: us-east-1\naccess_key_id: AKIA123\napp:\n  name: roster\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadFromFile(writeConfig(t, tc.content)); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestLoadFromFileMissingFile(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
