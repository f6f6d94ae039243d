package provision

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// stubHandler is a configurable fake for engine tests. Zero value resolves
// Missing and creates successfully with a generated identifier.
type stubHandler struct {
	resolveRes  Resolution
	resolveErr  error
	createID    string
	createErr   error
	awaitErr    error
	resolves    int
	creates     int
	seenIDs     IDSet
	createdWith IDSet
}

func (s *stubHandler) Resolve(_ context.Context, ids IDSet) (Resolution, error) {
	s.resolves++
	s.seenIDs = ids
	return s.resolveRes, s.resolveErr
}

func (s *stubHandler) Create(_ context.Context, ids IDSet) (string, error) {
	s.creates++
	s.createdWith = ids
	if s.createErr != nil {
		return "", s.createErr
	}
	if s.createID == "" {
		return "generated-id", nil
	}
	return s.createID, nil
}

// waitingHandler adds AwaitReady to a stubHandler.
type waitingHandler struct {
	stubHandler
}

func (w *waitingHandler) AwaitReady(context.Context, string) error { return w.awaitErr }

func TestApplyCreatesMissingAndSkipsExisting(t *testing.T) {
	existing := &stubHandler{resolveRes: Resolution{Exists: true, ID: "vpc-123"}}
	missing := &stubHandler{createID: "sg-456"}
	nodes := []*Node{
		{Name: "network", Kind: KindNetwork, Handler: existing},
		{Name: "security-group", Kind: KindSecurityGroup, DependsOn: []string{"network"}, Handler: missing},
	}
	plan, err := Sequence(nodes)
	if err != nil {
		t.Fatalf("Sequence: %v", err)
	}

	ids, err := NewEngine(nil).Apply(context.Background(), plan)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if existing.creates != 0 {
		t.Errorf("existing resource was created %d times, want 0", existing.creates)
	}
	if nodes[0].Status != StatusExists || nodes[0].ID != "vpc-123" {
		t.Errorf("network node = %s/%s, want exists/vpc-123", nodes[0].Status, nodes[0].ID)
	}
	if missing.creates != 1 {
		t.Errorf("missing resource created %d times, want 1", missing.creates)
	}
	if nodes[1].Status != StatusCreated || nodes[1].ID != "sg-456" {
		t.Errorf("security-group node = %s/%s, want created/sg-456", nodes[1].Status, nodes[1].ID)
	}
	if ids.Get("network") != "vpc-123" || ids.Get("security-group") != "sg-456" {
		t.Errorf("id set = %v", ids)
	}
}

func TestApplyPropagatesIdentifiers(t *testing.T) {
	parent := &stubHandler{createID: "vpc-123"}
	child := &stubHandler{createID: "sg-456"}
	plan, err := Sequence([]*Node{
		{Name: "network", Handler: parent},
		{Name: "security-group", DependsOn: []string{"network"}, Handler: child},
	})
	if err != nil {
		t.Fatalf("Sequence: %v", err)
	}
	if _, err := NewEngine(nil).Apply(context.Background(), plan); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := child.createdWith.Get("network"); got != "vpc-123" {
		t.Errorf("child saw network id %q, want vpc-123", got)
	}
}

func TestApplySecondRunCreatesNothing(t *testing.T) {
	// Simulates a re-run against a provider where everything now exists.
	handlers := []*stubHandler{
		{resolveRes: Resolution{Exists: true, ID: "vpc-1"}},
		{resolveRes: Resolution{Exists: true, ID: "sg-1"}},
		{resolveRes: Resolution{Exists: true, ID: "key-1"}},
		{resolveRes: Resolution{Exists: true, ID: "i-1"}},
	}
	plan, err := Sequence([]*Node{
		{Name: "network", Handler: handlers[0]},
		{Name: "security-group", DependsOn: []string{"network"}, Handler: handlers[1]},
		{Name: "key-pair", DependsOn: []string{"security-group"}, Handler: handlers[2]},
		{Name: "instance", DependsOn: []string{"security-group", "key-pair"}, Handler: handlers[3]},
	})
	if err != nil {
		t.Fatalf("Sequence: %v", err)
	}
	if _, err := NewEngine(nil).Apply(context.Background(), plan); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	for i, h := range handlers {
		if h.creates != 0 {
			t.Errorf("handler %d created %d resources on re-run, want 0", i, h.creates)
		}
	}
}

func TestApplyPrerequisiteMissingAbortsBeforeAnyCreate(t *testing.T) {
	network := &stubHandler{
		resolveErr: fmt.Errorf("no default network: %w", ErrPrerequisiteMissing),
	}
	later := &stubHandler{}
	plan, err := Sequence([]*Node{
		{Name: "network", Handler: network},
		{Name: "security-group", DependsOn: []string{"network"}, Handler: later},
	})
	if err != nil {
		t.Fatalf("Sequence: %v", err)
	}

	_, err = NewEngine(nil).Apply(context.Background(), plan)
	ne := AsNodeError(err)
	if ne == nil {
		t.Fatalf("expected NodeError, got %v", err)
	}
	if ne.Kind != FailurePrerequisiteMissing || ne.Node != "network" {
		t.Errorf("got %s on %q, want prerequisite-missing on network", ne.Kind, ne.Node)
	}
	if network.creates != 0 || later.creates != 0 || later.resolves != 0 {
		t.Error("nodes were touched after a fatal prerequisite failure")
	}
}

func TestApplyConflictOnGuardedNode(t *testing.T) {
	svc := &stubHandler{resolveRes: Resolution{Exists: true, ID: "arn:svc"}}
	plan, err := Sequence([]*Node{
		{Name: "service", FailOnExists: true, Handler: svc},
	})
	if err != nil {
		t.Fatalf("Sequence: %v", err)
	}

	_, err = NewEngine(nil).Apply(context.Background(), plan)
	ne := AsNodeError(err)
	if ne == nil || ne.Kind != FailureAlreadyExists {
		t.Fatalf("expected already-exists conflict, got %v", err)
	}
	if svc.creates != 0 {
		t.Error("guarded node must never be created over an existing resource")
	}
}

func TestApplyCreateRejectedSurfacesProviderError(t *testing.T) {
	rejected := errors.New("UnauthorizedOperation: not allowed to RunInstances")
	h := &stubHandler{createErr: rejected}
	plan, _ := Sequence([]*Node{{Name: "instance", Handler: h}})

	_, err := NewEngine(nil).Apply(context.Background(), plan)
	ne := AsNodeError(err)
	if ne == nil || ne.Kind != FailureCreateRejected {
		t.Fatalf("expected create-rejected, got %v", err)
	}
	if !errors.Is(err, rejected) {
		t.Error("provider error must be preserved verbatim in the chain")
	}
}

func TestApplyWaitTimeoutReportsLastState(t *testing.T) {
	h := &waitingHandler{}
	h.awaitErr = &TimeoutError{LastState: "pending"}
	abandoned := &stubHandler{}
	plan, err := Sequence([]*Node{
		{Name: "instance", Handler: h},
		{Name: "after", DependsOn: []string{"instance"}, Handler: abandoned},
	})
	if err != nil {
		t.Fatalf("Sequence: %v", err)
	}

	_, err = NewEngine(nil).Apply(context.Background(), plan)
	ne := AsNodeError(err)
	if ne == nil || ne.Kind != FailureCreateTimedOut {
		t.Fatalf("expected create-timed-out, got %v", err)
	}
	if ne.LastState != "pending" {
		t.Errorf("last state = %q, want pending", ne.LastState)
	}
	if abandoned.resolves != 0 {
		t.Error("remaining nodes must not run after a timeout")
	}
}

func TestPollUntilSucceeds(t *testing.T) {
	calls := 0
	err := PollUntil(context.Background(), time.Millisecond, 5,
		func(context.Context) (bool, string, error) {
			calls++
			return calls == 3, "pending", nil
		})
	if err != nil {
		t.Fatalf("PollUntil: %v", err)
	}
	if calls != 3 {
		t.Errorf("check ran %d times, want 3", calls)
	}
}

func TestPollUntilExhaustsBudget(t *testing.T) {
	err := PollUntil(context.Background(), time.Millisecond, 4,
		func(context.Context) (bool, string, error) {
			return false, "stuck", nil
		})
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if te.LastState != "stuck" {
		t.Errorf("last state = %q, want stuck", te.LastState)
	}
}

func TestPollUntilStopsOnCheckError(t *testing.T) {
	boom := errors.New("describe failed")
	calls := 0
	err := PollUntil(context.Background(), time.Millisecond, 10,
		func(context.Context) (bool, string, error) {
			calls++
			return false, "", boom
		})
	if !errors.Is(err, boom) {
		t.Fatalf("expected check error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("check ran %d times after error, want 1", calls)
	}
}

func TestPollUntilHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := PollUntil(ctx, time.Minute, 10,
		func(context.Context) (bool, string, error) {
			return false, "pending", nil
		})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}
