package awscloud

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"github.com/GoCodeAlone/shipctl/provision"
)

// keyPairHandler resolves an existing key credential. With a configured name
// it matches exactly; with no name it takes the first key pair in provider
// order, creating one only when the account has none. Created private key
// material is written to a local file readable only by the owner and never
// logged.
type keyPairHandler struct {
	d    *Deployer
	name string // optional; "" means any existing key pair is acceptable
}

func (h *keyPairHandler) Resolve(ctx context.Context, _ provision.IDSet) (provision.Resolution, error) {
	input := &ec2.DescribeKeyPairsInput{}
	if h.name != "" {
		input.KeyNames = []string{h.name}
	}
	out, err := h.d.clients.EC2.DescribeKeyPairs(ctx, input)
	if err != nil {
		if hasErrorCode(err, "InvalidKeyPair.NotFound") {
			return provision.Resolution{}, nil
		}
		return provision.Resolution{}, fmt.Errorf("describe key pairs: %w", err)
	}
	if len(out.KeyPairs) == 0 {
		return provision.Resolution{}, nil
	}
	// First in provider-returned order; no ranking beyond that.
	return provision.Resolution{Exists: true, ID: aws.ToString(out.KeyPairs[0].KeyName)}, nil
}

func (h *keyPairHandler) Create(ctx context.Context, _ provision.IDSet) (string, error) {
	name := h.name
	if name == "" {
		name = h.d.cfg.App.Name + "-key"
	}

	out, err := h.d.clients.EC2.CreateKeyPair(ctx, &ec2.CreateKeyPairInput{
		KeyName: aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("create key pair %q: %w", name, err)
	}

	path := filepath.Join(".", name+".pem")
	if err := os.WriteFile(path, []byte(aws.ToString(out.KeyMaterial)), 0o600); err != nil {
		return "", fmt.Errorf("write private key file: %w", err)
	}
	h.d.outputs.Set("key_file", path)
	h.d.logger.Info("key pair created, private key written", "file", path)

	return name, nil
}
