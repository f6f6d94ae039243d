package provision

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a node failed. Every fatal node error carries
// exactly one of these so callers can branch without parsing provider text.
type FailureKind int

const (
	FailureUnknown FailureKind = iota
	// FailurePrerequisiteMissing: a required precondition is absent and the
	// plan has no creation path for it (e.g. no default network).
	FailurePrerequisiteMissing
	// FailureCreateRejected: the provider refused the create call, typically
	// a quota or permission problem. The provider message is kept verbatim.
	FailureCreateRejected
	// FailureCreateTimedOut: the resource was created but never reached a
	// stable ready state within the poll budget.
	FailureCreateTimedOut
	// FailureAlreadyExists: a non-idempotent resource already exists with
	// the same name; the operator must remove it out-of-band.
	FailureAlreadyExists
)

func (k FailureKind) String() string {
	switch k {
	case FailurePrerequisiteMissing:
		return "prerequisite-missing"
	case FailureCreateRejected:
		return "create-rejected"
	case FailureCreateTimedOut:
		return "create-timed-out"
	case FailureAlreadyExists:
		return "already-exists-conflict"
	default:
		return "unknown"
	}
}

// ErrPrerequisiteMissing is wrapped by handlers when a resolve-only
// precondition is absent.
var ErrPrerequisiteMissing = errors.New("required prerequisite is missing")

// NodeError is a fatal failure applying a single node. It aborts the
// remaining plan.
type NodeError struct {
	Node string
	Kind FailureKind
	// LastState records the most recent observed resource state for
	// timed-out creates.
	LastState string
	Err       error
}

func (e *NodeError) Error() string {
	msg := fmt.Sprintf("node %q: %s", e.Node, e.Kind)
	if e.LastState != "" {
		msg += fmt.Sprintf(" (last observed state: %s)", e.LastState)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NodeError) Unwrap() error { return e.Err }

// AsNodeError returns the NodeError in err's chain, or nil.
func AsNodeError(err error) *NodeError {
	var ne *NodeError
	if errors.As(err, &ne) {
		return ne
	}
	return nil
}

// TimeoutError is returned by PollUntil when the attempt budget is spent
// before the check succeeds. LastState is whatever the final check observed.
type TimeoutError struct {
	LastState string
}

func (e *TimeoutError) Error() string {
	if e.LastState == "" {
		return "poll budget exhausted"
	}
	return fmt.Sprintf("poll budget exhausted (last observed state: %s)", e.LastState)
}
