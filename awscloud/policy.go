package awscloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/GoCodeAlone/shipctl/provision"
)

// PolicyVersion is the fixed schema version of access policy documents.
const PolicyVersion = "2012-10-17"

// StringList unmarshals both the scalar and list forms the policy grammar
// allows, and always marshals as a list.
type StringList []string

func (s *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = StringList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("string or string list expected: %w", err)
	}
	*s = StringList(many)
	return nil
}

// Statement is one permission statement of an access policy document.
type Statement struct {
	Sid       string                       `json:"Sid,omitempty"`
	Effect    string                       `json:"Effect"`
	Principal map[string]string            `json:"Principal,omitempty"`
	Action    StringList                   `json:"Action,omitempty"`
	Resource  StringList                   `json:"Resource,omitempty"`
	Condition map[string]map[string]string `json:"Condition,omitempty"`
}

// PolicyDocument is an ordered list of permission statements under the fixed
// schema version.
type PolicyDocument struct {
	Version   string      `json:"Version"`
	Statement []Statement `json:"Statement"`
}

// MergeStatements unions existing and desired statements: existing order is
// preserved, then desired statements not already present are appended.
// Statements compare by canonical JSON encoding. No statement is ever
// dropped or duplicated.
func MergeStatements(existing, desired []Statement) []Statement {
	seen := make(map[string]bool, len(existing))
	merged := make([]Statement, 0, len(existing)+len(desired))
	for _, s := range existing {
		seen[canonicalStatement(s)] = true
		merged = append(merged, s)
	}
	for _, s := range desired {
		key := canonicalStatement(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, s)
	}
	return merged
}

func canonicalStatement(s Statement) string {
	// encoding/json sorts map keys, so equal statements encode equally.
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Sprintf("%#v", s)
	}
	return string(b)
}

// PolicyPatcher replaces a role's named inline policy document atomically,
// in a single provider call. It never issues partial edits and never creates
// the role: a missing target role is fatal, since a separate bootstrap path
// owns role creation. Callers must supply the complete desired statement
// set; CurrentStatements plus MergeStatements exist to build it.
type PolicyPatcher struct {
	iam    IAMAPI
	logger *slog.Logger
}

func NewPolicyPatcher(iamClient IAMAPI, logger *slog.Logger) *PolicyPatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &PolicyPatcher{iam: iamClient, logger: logger}
}

// CurrentStatements fetches the statements of the role's named inline
// policy. A role without that policy yields an empty statement list; a
// missing role is fatal.
func (p *PolicyPatcher) CurrentStatements(ctx context.Context, roleName, policyName string) ([]Statement, error) {
	out, err := p.iam.GetRolePolicy(ctx, &iam.GetRolePolicyInput{
		RoleName:   aws.String(roleName),
		PolicyName: aws.String(policyName),
	})
	if err != nil {
		var notFound *iamtypes.NoSuchEntityException
		if errors.As(err, &notFound) {
			// Distinguish missing policy (fine) from missing role (fatal).
			if _, roleErr := p.iam.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(roleName)}); roleErr != nil {
				if errors.As(roleErr, &notFound) {
					return nil, fmt.Errorf("role %q not found: %w", roleName, provision.ErrPrerequisiteMissing)
				}
				return nil, fmt.Errorf("get role %q: %w", roleName, roleErr)
			}
			return nil, nil
		}
		return nil, fmt.Errorf("get role policy %q on %q: %w", policyName, roleName, err)
	}

	// The API returns the document URL-encoded.
	decoded, err := url.QueryUnescape(aws.ToString(out.PolicyDocument))
	if err != nil {
		return nil, fmt.Errorf("decode policy document: %w", err)
	}
	var doc PolicyDocument
	if err := json.Unmarshal([]byte(decoded), &doc); err != nil {
		return nil, fmt.Errorf("parse policy document: %w", err)
	}
	return doc.Statement, nil
}

// Patch replaces the named inline policy with the given complete statement
// set in one PutRolePolicy call.
func (p *PolicyPatcher) Patch(ctx context.Context, roleName, policyName string, statements []Statement) error {
	doc := PolicyDocument{Version: PolicyVersion, Statement: statements}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode policy document: %w", err)
	}

	_, err = p.iam.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
		RoleName:       aws.String(roleName),
		PolicyName:     aws.String(policyName),
		PolicyDocument: aws.String(string(body)),
	})
	if err != nil {
		var notFound *iamtypes.NoSuchEntityException
		if errors.As(err, &notFound) {
			return fmt.Errorf("role %q not found: %w", roleName, provision.ErrPrerequisiteMissing)
		}
		return fmt.Errorf("put role policy %q on %q: %w", policyName, roleName, err)
	}

	p.logger.Info("policy replaced", "role", roleName, "policy", policyName, "statements", len(statements))
	return nil
}
