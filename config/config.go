// Package config loads the deploy.yaml file that describes the application
// being provisioned and the two deployment paths (EC2 instance, managed
// container service).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default values applied to an incomplete deploy.yaml.
const (
	DefaultPort         = 8501
	DefaultHealthPath   = "/_stcore/health"
	DefaultInstanceType = "t3.micro"
	DefaultImageTag     = "latest"
	DefaultSSHCIDR      = "0.0.0.0/0"
	DefaultCPU          = "256"
	DefaultMemory       = "512"
	DefaultDesiredCount = 1
	DefaultAMIPattern   = "al2023-ami-2023*-x86_64"
)

// AppConfig describes the containerized application being deployed.
type AppConfig struct {
	Name       string `yaml:"name"`
	Port       int    `yaml:"port,omitempty"`
	HealthPath string `yaml:"health_path,omitempty"`
	ImageTag   string `yaml:"image_tag,omitempty"`
}

// EC2Config holds settings for the compute-instance path.
type EC2Config struct {
	InstanceType   string `yaml:"instance_type,omitempty"`
	KeyName        string `yaml:"key_name,omitempty"`
	SSHCIDR        string `yaml:"ssh_cidr,omitempty"`
	AMINamePattern string `yaml:"ami_name_pattern,omitempty"`
}

// ServiceConfig holds settings for the managed-service path.
type ServiceConfig struct {
	CPU          string `yaml:"cpu,omitempty"`
	Memory       string `yaml:"memory,omitempty"`
	DesiredCount int    `yaml:"desired_count,omitempty"`
	// GitHubRepo ("owner/repo") scopes the CI push role's OIDC trust policy.
	GitHubRepo string `yaml:"github_repo,omitempty"`
}

// DeployConfig is the root of deploy.yaml.
type DeployConfig struct {
	Region          string        `yaml:"region"`
	AccessKeyID     string        `yaml:"access_key_id,omitempty"`
	SecretAccessKey string        `yaml:"secret_access_key,omitempty"`
	SessionToken    string        `yaml:"session_token,omitempty"`
	App             AppConfig     `yaml:"app"`
	EC2             EC2Config     `yaml:"ec2,omitempty"`
	Service         ServiceConfig `yaml:"service,omitempty"`
}

// LoadFromFile loads and validates a deploy configuration from a YAML file,
// applying defaults for omitted fields.
func LoadFromFile(path string) (*DeployConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg DeployConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *DeployConfig) applyDefaults() {
	if c.App.Port == 0 {
		c.App.Port = DefaultPort
	}
	if c.App.HealthPath == "" {
		c.App.HealthPath = DefaultHealthPath
	}
	if c.App.ImageTag == "" {
		c.App.ImageTag = DefaultImageTag
	}
	if c.EC2.InstanceType == "" {
		c.EC2.InstanceType = DefaultInstanceType
	}
	if c.EC2.SSHCIDR == "" {
		c.EC2.SSHCIDR = DefaultSSHCIDR
	}
	if c.EC2.AMINamePattern == "" {
		c.EC2.AMINamePattern = DefaultAMIPattern
	}
	if c.Service.CPU == "" {
		c.Service.CPU = DefaultCPU
	}
	if c.Service.Memory == "" {
		c.Service.Memory = DefaultMemory
	}
	if c.Service.DesiredCount == 0 {
		c.Service.DesiredCount = DefaultDesiredCount
	}
}

// Validate checks the fields no default can supply.
func (c *DeployConfig) Validate() error {
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}
	if c.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}
	if c.App.Port < 1 || c.App.Port > 65535 {
		return fmt.Errorf("app.port %d is out of range", c.App.Port)
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return fmt.Errorf("access_key_id and secret_access_key must be set together")
	}
	return nil
}
