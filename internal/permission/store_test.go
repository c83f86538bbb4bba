package permission

import (
	"context"
	"testing"
	"time"
)

func TestStoreDecideIdempotent(t *testing.T) {
	s := NewStore(time.Minute, time.Minute)
	s.Create(&Request{RequestID: "r1", ToolName: "Bash"})

	req, ok := s.Decide("r1", "allow", ScopeOnce, nil, nil, "")
	if !ok {
		t.Fatalf("expected Decide to find request")
	}
	if req.State != StateProcessing {
		t.Fatalf("state = %s, want processing", req.State)
	}

	s.Ack("r1")

	// A second decision after ack must return the original decision
	// unchanged, not overwrite it (spec idempotent-decision requirement).
	req2, ok := s.Decide("r1", "deny", ScopeAlways, nil, nil, "")
	if !ok {
		t.Fatalf("expected Decide to find request")
	}
	if req2.Decision.Behavior != "allow" {
		t.Fatalf("decision.behavior = %s, want allow (unchanged)", req2.Decision.Behavior)
	}
}

func TestStoreSweepExpiresPending(t *testing.T) {
	s := NewStore(time.Millisecond, time.Minute)
	s.Create(&Request{RequestID: "r1", ToolName: "Bash"})
	time.Sleep(5 * time.Millisecond)

	expired, unacked := s.Sweep()
	if len(expired) != 1 || expired[0].RequestID != "r1" {
		t.Fatalf("expected r1 to expire, got %+v", expired)
	}
	if len(unacked) != 0 {
		t.Fatalf("expected no unacked requests, got %+v", unacked)
	}
	if s.Get("r1").Decision.Behavior != "deny" {
		t.Fatalf("expired request should deny by default")
	}
}

func TestStoreSweepReissuesUnacked(t *testing.T) {
	s := NewStore(time.Minute, time.Millisecond)
	s.Create(&Request{RequestID: "r1", ToolName: "Bash"})
	s.Decide("r1", "allow", ScopeOnce, nil, nil, "")
	time.Sleep(5 * time.Millisecond)

	_, unacked := s.Sweep()
	if len(unacked) != 1 || unacked[0].RequestID != "r1" {
		t.Fatalf("expected r1 to be reissued, got %+v", unacked)
	}
}

func TestScopeNext(t *testing.T) {
	cases := []struct {
		in, want Scope
	}{
		{ScopeOnce, ScopeSession},
		{ScopeSession, ScopeProject},
		{ScopeProject, ScopeAlways},
		{ScopeAlways, ScopeOnce},
	}
	for _, tc := range cases {
		if got := tc.in.Next(); got != tc.want {
			t.Errorf("%s.Next() = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestRunnerBridgeTimeout(t *testing.T) {
	b := NewRunnerBridge(5 * time.Millisecond)
	d := b.Await(context.Background(), "r1")
	if d.Behavior != "deny" {
		t.Fatalf("expected deny on timeout, got %s", d.Behavior)
	}
	if !d.TimedOut {
		t.Fatal("expected TimedOut on an approval timeout, so callers ack it as an error")
	}
}

func TestRunnerBridgeResolve(t *testing.T) {
	b := NewRunnerBridge(time.Second)
	done := make(chan Decision, 1)
	go func() {
		done <- b.Await(context.Background(), "r1")
	}()

	// Give Await a moment to park the request.
	time.Sleep(5 * time.Millisecond)
	b.Resolve(Decision{RequestID: "r1", Behavior: "allow"})

	select {
	case d := <-done:
		if d.Behavior != "allow" {
			t.Fatalf("behavior = %s, want allow", d.Behavior)
		}
	case <-time.After(time.Second):
		t.Fatal("Await did not return after Resolve")
	}
}
