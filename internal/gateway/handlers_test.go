package gateway

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/discode/fabric/internal/permission"
	"github.com/discode/fabric/internal/protocol"
)

type recordingNotifier struct {
	ready    []protocol.SessionReadyPayload
	statuses []protocol.StatusPayload
	requests []*permission.Request
}

func (r *recordingNotifier) SessionReady(runnerID string, p protocol.SessionReadyPayload) {
	r.ready = append(r.ready, p)
}
func (r *recordingNotifier) SessionEnded(string, protocol.SessionEndPayload)   {}
func (r *recordingNotifier) Output(string, protocol.OutputPayload)            {}
func (r *recordingNotifier) Status(runnerID string, p protocol.StatusPayload) { r.statuses = append(r.statuses, p) }
func (r *recordingNotifier) Metadata(string, protocol.MetadataPayload)        {}
func (r *recordingNotifier) Result(string, protocol.ResultPayload)            {}
func (r *recordingNotifier) PermissionRequested(runnerID string, req *permission.Request) {
	r.requests = append(r.requests, req)
}
func (r *recordingNotifier) SessionDiscovered(string, protocol.SyncSessionDiscoveredPayload) {}
func (r *recordingNotifier) SessionUpdated(string, protocol.SyncSessionUpdatedPayload)        {}
func (r *recordingNotifier) SessionsSynced(string, protocol.SyncSessionsResponsePayload)      {}
func (r *recordingNotifier) SessionsSyncComplete(string, protocol.SyncSessionsCompletePayload) {}
func (r *recordingNotifier) ProjectsSynced(string, protocol.SyncProjectsResponsePayload)       {}
func (r *recordingNotifier) ProjectsSyncComplete(string, protocol.SyncProjectsCompletePayload) {}

func newTestConn(runnerID string) *RunnerConn {
	return &RunnerConn{RunnerID: runnerID, registered: true, send: make(chan []byte, 10)}
}

func envelopeFor(t *testing.T, typ protocol.Type, payload any) *protocol.Envelope {
	t.Helper()
	raw, err := protocol.Encode(typ, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return &env
}

func TestRegisterHandlersSessionReadyAndStatus(t *testing.T) {
	h := NewHub(nil)
	store := permission.NewStore(0, 0)
	notify := &recordingNotifier{}
	RegisterHandlers(h, store, notify, nil)
	conn := newTestConn("r1")

	h.handlers[protocol.TypeSessionReady][0](context.Background(), conn,
		envelopeFor(t, protocol.TypeSessionReady, protocol.SessionReadyPayload{SessionID: "s1", Model: "opus"}))
	h.handlers[protocol.TypeStatus][0](context.Background(), conn,
		envelopeFor(t, protocol.TypeStatus, protocol.StatusPayload{SessionID: "s1", Status: "working"}))

	if len(notify.ready) != 1 || notify.ready[0].Model != "opus" {
		t.Fatalf("expected one session_ready recorded with model opus, got %+v", notify.ready)
	}
	if len(notify.statuses) != 1 || notify.statuses[0].Status != "working" {
		t.Fatalf("expected one status recorded, got %+v", notify.statuses)
	}
}

func TestRegisterHandlersPermissionRequestIsIdempotent(t *testing.T) {
	h := NewHub(nil)
	store := permission.NewStore(0, 0)
	notify := &recordingNotifier{}
	RegisterHandlers(h, store, notify, nil)
	conn := newTestConn("r1")

	env := envelopeFor(t, protocol.TypePermissionRequest, protocol.PermissionRequestPayload{
		RequestID: "req1", SessionID: "s1", ToolName: "Bash",
	})
	handler := h.handlers[protocol.TypePermissionRequest][0]
	handler(context.Background(), conn, env)
	handler(context.Background(), conn, env)

	if len(notify.requests) != 2 {
		t.Fatalf("expected notifier invoked twice, got %d", len(notify.requests))
	}
	if store.Get("req1").State != permission.StatePending {
		t.Fatalf("expected request to remain pending after retransmission, got %s", store.Get("req1").State)
	}
}

func TestDecideDispatchesToConnectedRunner(t *testing.T) {
	h := NewHub(nil)
	store := permission.NewStore(0, 0)
	conn := newTestConn("r1")
	h.runners["r1"] = conn

	store.Create(&permission.Request{RequestID: "req1", RunnerID: "r1", SessionID: "s1"})

	if err := Decide(h, store, "req1", "allow", permission.ScopeOnce, nil, nil, ""); err != nil {
		t.Fatalf("Decide: %v", err)
	}

	select {
	case raw := <-conn.send:
		var env protocol.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode sent envelope: %v", err)
		}
		if env.Type != protocol.TypePermissionDecision {
			t.Fatalf("expected permission_decision envelope, got %s", env.Type)
		}
	default:
		t.Fatal("expected a decision envelope queued for the runner")
	}
}

func TestDecideUnknownRunner(t *testing.T) {
	h := NewHub(nil)
	store := permission.NewStore(0, 0)
	store.Create(&permission.Request{RequestID: "req1", RunnerID: "ghost", SessionID: "s1"})

	if err := Decide(h, store, "req1", "deny", permission.ScopeOnce, nil, nil, ""); err != ErrUnregisteredRunner {
		t.Fatalf("expected ErrUnregisteredRunner, got %v", err)
	}
}
