// Package sessions additions for L7: the runner-side live session registry,
// mapping a gateway-assigned sessionId to its running CLI client.
//
// The rest of this package (store.go, memory.go, cockroach.go, ...) is the
// teacher's persisted conversation-history layer; Registry is new and
// unrelated to that storage concern -- it tracks in-memory process handles,
// not durable records.
package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/discode/fabric/internal/cliclient"
	"github.com/discode/fabric/internal/permission"
	"github.com/discode/fabric/internal/streaming"
	"github.com/discode/fabric/internal/subprocess"
)

// Status mirrors the StatusPayload.Status values.
type Status string

const (
	StatusStarting Status = "starting"
	StatusReady    Status = "ready"
	StatusWorking  Status = "working"
	StatusWaiting  Status = "waiting"
	StatusIdle     Status = "idle"
	StatusError    Status = "error"
	StatusOffline  Status = "offline"
)

// Live is one running CLI session owned by a runner.
type Live struct {
	ID        string
	CLIKind   string
	Variant   string // sdk|tmux|print
	WorkDir   string
	TmuxName  string // set when Variant == "tmux", used for re-attach

	Channel *subprocess.Channel
	Client  *cliclient.Client
	Turn    *streaming.Turn
	Bridge  *permission.RunnerBridge

	mu     sync.Mutex
	status Status
	model  string
}

// Status returns the current status under lock.
func (l *Live) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// SetStatus updates status, returning true if it actually changed (callers
// use this to decide whether to emit a StatusPayload).
func (l *Live) SetStatus(s Status) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status == s {
		return false
	}
	l.status = s
	return true
}

// Model returns the resolved model name, set once at session_ready.
func (l *Live) Model() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.model
}

// SetModel records the resolved model name.
func (l *Live) SetModel(m string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.model = m
}

// Registry tracks every Live session a runner currently hosts.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Live
	logger   *slog.Logger
}

// NewRegistry constructs an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*Live),
		logger:   logger,
	}
}

// Add registers a new Live session, replacing any prior session at the same
// ID (the caller is responsible for tearing down the replaced session
// first).
func (r *Registry) Add(l *Live) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[l.ID] = l
}

// Get returns the Live session for id, or nil.
func (r *Registry) Get(id string) *Live {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Remove deletes a session from the registry without touching its process;
// callers close the subprocess channel themselves so Close errors can be
// logged with full session context.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// All returns a snapshot slice of every tracked session.
func (r *Registry) All() []*Live {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Live, 0, len(r.sessions))
	for _, l := range r.sessions {
		out = append(out, l)
	}
	return out
}

// Close tears down every tracked session's subprocess; used on runner
// shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := make([]*Live, 0, len(r.sessions))
	for _, l := range r.sessions {
		sessions = append(sessions, l)
	}
	r.sessions = make(map[string]*Live)
	r.mu.Unlock()

	for _, l := range sessions {
		if l.Channel != nil {
			_ = l.Channel.Close()
		}
	}
}

// Reattach is called when the gateway reconnects and replays session_start
// for a session the runner already has live (WS reconnect while the CLI
// subprocess kept running). It skips respawning
// and simply re-reports the current status, or flags a tmux session that
// needs re-attaching because the shell died underneath it.
func (r *Registry) Reattach(ctx context.Context, id string) (*Live, error) {
	l := r.Get(id)
	if l == nil {
		return nil, fmt.Errorf("sessions: no live session %s to reattach", id)
	}
	if l.Channel != nil {
		select {
		case <-l.Channel.Done():
			return l, fmt.Errorf("sessions: session %s process exited, needs respawn", id)
		default:
		}
	}
	return l, nil
}
