package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Engine executes a plan sequentially with check-then-act semantics: a node
// whose resource already exists is recorded and skipped, a missing resource
// is created and optionally awaited. The first fatal error aborts all
// remaining nodes, since later nodes consume identifiers from earlier ones.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates an Engine. A nil logger falls back to slog.Default.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// Apply runs every node of the plan in order. On success each node has
// Status Exists or Created and a non-empty ID. On failure the returned error
// wraps a *NodeError identifying the failed node; nodes after it are left
// untouched (re-running the orchestrator is the recovery path).
func (e *Engine) Apply(ctx context.Context, plan *Plan) (IDSet, error) {
	if plan == nil {
		return nil, fmt.Errorf("provisioning plan is nil")
	}

	ids := make(IDSet, len(plan.Nodes))
	for _, n := range plan.Nodes {
		if err := ctx.Err(); err != nil {
			return ids, fmt.Errorf("run cancelled before node %q: %w", n.Name, err)
		}
		e.logger.Info("resolving resource", "node", n.Name, "kind", n.Kind)

		res, err := n.Handler.Resolve(ctx, ids)
		if err != nil {
			n.Status = StatusFailed
			if errors.Is(err, ErrPrerequisiteMissing) {
				return ids, &NodeError{Node: n.Name, Kind: FailurePrerequisiteMissing, Err: err}
			}
			return ids, fmt.Errorf("resolve node %q: %w", n.Name, err)
		}

		if res.Exists {
			if n.FailOnExists {
				n.Status = StatusFailed
				return ids, &NodeError{
					Node: n.Name,
					Kind: FailureAlreadyExists,
					Err:  fmt.Errorf("%s %q already exists; remove it before re-running", n.Kind, res.ID),
				}
			}
			n.ID = res.ID
			n.Status = StatusExists
			ids[n.Name] = n.ID
			// Identifiers are not logged; some (role ARNs) are secret-adjacent
			// and the caller prints the non-sensitive ones as output values.
			e.logger.Info("resource already exists, skipping create", "node", n.Name, "status", n.Status)
			continue
		}

		e.logger.Info("creating resource", "node", n.Name, "kind", n.Kind)
		id, err := n.Handler.Create(ctx, ids)
		if err != nil {
			n.Status = StatusFailed
			return ids, classifyCreateError(n.Name, err)
		}
		n.ID = id

		if w, ok := n.Handler.(Waiter); ok {
			if err := w.AwaitReady(ctx, id); err != nil {
				n.Status = StatusFailed
				return ids, classifyCreateError(n.Name, err)
			}
		}

		n.Status = StatusCreated
		ids[n.Name] = n.ID
		e.logger.Info("resource created", "node", n.Name, "status", n.Status)
	}

	return ids, nil
}

// classifyCreateError maps a handler error onto the failure taxonomy. Poll
// timeouts become CreateTimedOut with the last observed state, prerequisite
// lookups that came up empty stay prerequisite failures, and everything else
// is a rejection surfaced verbatim.
func classifyCreateError(node string, err error) error {
	var te *TimeoutError
	if errors.As(err, &te) {
		return &NodeError{Node: node, Kind: FailureCreateTimedOut, LastState: te.LastState, Err: err}
	}
	if errors.Is(err, ErrPrerequisiteMissing) {
		return &NodeError{Node: node, Kind: FailurePrerequisiteMissing, Err: err}
	}
	return &NodeError{Node: node, Kind: FailureCreateRejected, Err: err}
}

// PollUntil invokes check every interval until it reports done, up to
// maxAttempts times. The check returns the currently observed state so a
// timeout can report where the resource got stuck. The first check runs
// immediately.
func PollUntil(ctx context.Context, interval time.Duration, maxAttempts int, check func(context.Context) (done bool, state string, err error)) error {
	var lastState string
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		done, state, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		lastState = state
	}
	return &TimeoutError{LastState: lastState}
}
