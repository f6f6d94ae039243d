// Package provision implements an idempotent multi-resource provisioning
// orchestrator: a plan of resource nodes is ordered by declared dependencies
// and applied with check-then-act semantics against a cloud provider. The
// provider's own state is the source of truth; no local state survives a run.
package provision

import "context"

// Kind identifies the type of a provider-side resource.
type Kind string

const (
	KindNetwork        Kind = "network"
	KindSecurityGroup  Kind = "security-group"
	KindKeyPair        Kind = "key-pair"
	KindInstance       Kind = "instance"
	KindRepository     Kind = "repository"
	KindRole           Kind = "role"
	KindCluster        Kind = "cluster"
	KindTaskDefinition Kind = "task-definition"
	KindService        Kind = "service"
)

// Status reports what the apply engine did with a node.
type Status string

const (
	StatusPending Status = "pending"
	StatusExists  Status = "exists"
	StatusCreated Status = "created"
	StatusFailed  Status = "failed"
)

// Resolution is the outcome of querying the provider for an existing
// resource matching a node's desired configuration.
type Resolution struct {
	Exists bool
	ID     string
}

// IDSet exposes the discovered identifiers of already-applied nodes to the
// nodes that depend on them, keyed by logical node name.
type IDSet map[string]string

// Get returns the identifier recorded for the named node, or "".
func (s IDSet) Get(name string) string { return s[name] }

// Handler resolves and creates one kind of resource. Resolve must be
// read-only. Both receive the identifiers of every node applied so far, so
// matching rules can be scoped to resolved parents (e.g. a rule group is
// matched within its resolved network).
type Handler interface {
	Resolve(ctx context.Context, ids IDSet) (Resolution, error)
	Create(ctx context.Context, ids IDSet) (string, error)
}

// Waiter is implemented by handlers whose resources take time to reach a
// stable ready state after creation.
type Waiter interface {
	AwaitReady(ctx context.Context, id string) error
}

// Node describes a single provider-side resource within a provisioning plan.
// Desired configuration lives in the Handler and is immutable once the node
// is constructed; ID is written once, by Resolve or Create, and read by
// later nodes through the engine's IDSet.
type Node struct {
	Name      string
	Kind      Kind
	DependsOn []string

	// FailOnExists marks a non-idempotent resource: an existing match is a
	// conflict, never silently reused.
	FailOnExists bool

	Handler Handler

	// Filled in during the run.
	ID     string
	Status Status
}
