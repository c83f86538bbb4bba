// hub.go implements L10: the gateway's runner-facing WebSocket control
// plane -- one RunnerConn per connected runner, a handler registry keyed by
// envelope discriminant, and runner identity/reclaim on re-registration.
//
// Grounded on ws_control_plane.go's wsSession: the same upgrade ->
// read-loop/write-loop split, ping/pong keepalive, and buffered send
// channel, retargeted from that file's req/res RPC frame onto the fixed
// register/session_start/output/... envelope set fixed by
// internal/protocol.Envelope.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/discode/fabric/internal/protocol"
)

const (
	hubMaxPayloadBytes = 8 << 20
	hubPongWait        = 45 * time.Second
	hubPingInterval    = 20 * time.Second
	hubWriteWait       = 10 * time.Second
	hubSendBuffer      = 256
)

// Handler processes one decoded envelope for a given runner connection.
type Handler func(ctx context.Context, conn *RunnerConn, env *protocol.Envelope)

// RunnerConn is one live WebSocket connection from a runner.
type RunnerConn struct {
	hub  *Hub
	conn *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc
	send   chan []byte

	mu         sync.Mutex
	RunnerID   string
	RunnerName string
	CLIKinds   []string
	registered bool
}

// Send encodes and queues one envelope for delivery, dropping it (with a log
// line) rather than blocking if the connection's send buffer is full --
// a slow/wedged runner must never stall the hub.
func (c *RunnerConn) Send(t protocol.Type, payload any) error {
	data, err := protocol.Encode(t, payload)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("gateway: send buffer full for runner %s, dropping %s", c.RunnerID, t)
	}
}

// Hub tracks every connected runner and dispatches inbound envelopes to
// registered handlers. One Hub serves the whole gateway process.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	runners map[string]*RunnerConn // runnerId -> conn
	handlers map[protocol.Type][]Handler
}

// NewHub constructs an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		runners:  make(map[string]*RunnerConn),
		handlers: make(map[protocol.Type][]Handler),
	}
}

// On registers a handler for envelope type t. Multiple handlers may be
// registered for the same type; each runs in registration order and a
// handler's effect must be idempotent since a runner may retransmit an
// envelope after a reconnect before the gateway's prior ack landed
// for at-least-once delivery under reconnects.
func (h *Hub) On(t protocol.Type, fn Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[t] = append(h.handlers[t], fn)
}

// Runner returns the live connection for a runner ID, or nil.
func (h *Hub) Runner(runnerID string) *RunnerConn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.runners[runnerID]
}

// Runners returns a snapshot of every connected runner.
func (h *Hub) Runners() []*RunnerConn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*RunnerConn, 0, len(h.runners))
	for _, c := range h.runners {
		out = append(out, c)
	}
	return out
}

// ServeHTTP upgrades the request to a WebSocket and serves it until the
// connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("gateway: ws upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	conn := &RunnerConn{
		hub:    h,
		conn:   wsConn,
		ctx:    ctx,
		cancel: cancel,
		send:   make(chan []byte, hubSendBuffer),
	}

	go conn.writeLoop()
	conn.readLoop(h)
}

func (c *RunnerConn) readLoop(h *Hub) {
	defer c.close()

	c.conn.SetReadLimit(hubMaxPayloadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	})

	dec := protocol.NewDecoder(wsReader{c.conn}, h.logger)
	for {
		env, err := dec.Next()
		if err != nil {
			return
		}

		if env.Type == protocol.TypeRegister {
			h.handleRegister(c, env)
			continue
		}

		h.mu.RLock()
		handlers := append([]Handler(nil), h.handlers[env.Type]...)
		h.mu.RUnlock()
		for _, fn := range handlers {
			fn(c.ctx, c, env)
		}
	}
}

// wsReader adapts gorilla's per-message ReadMessage to the io.Reader shape
// protocol.NewDecoder expects; each Read call blocks for exactly one
// WebSocket text message.
type wsReader struct{ conn *websocket.Conn }

func (r wsReader) Read(p []byte) (int, error) {
	_, data, err := r.conn.ReadMessage()
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')
	n := copy(p, data)
	if n < len(data) {
		return n, fmt.Errorf("gateway: message larger than read buffer")
	}
	return n, nil
}

func (c *RunnerConn) writeLoop() {
	ticker := time.NewTicker(hubPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *RunnerConn) close() {
	c.cancel()
	c.hub.mu.Lock()
	if c.registered && c.hub.runners[c.RunnerID] == c {
		delete(c.hub.runners, c.RunnerID)
	}
	c.hub.mu.Unlock()
	close(c.send)
	_ = c.conn.Close()
}

func (h *Hub) handleRegister(c *RunnerConn, env *protocol.Envelope) {
	var p protocol.RegisterPayload
	if err := env.Unmarshal(&p); err != nil {
		_ = c.Send(protocol.TypeError, protocol.ErrorPayload{Message: "malformed register payload"})
		return
	}

	runnerID := RunnerID(p.RunnerName, p.Token)

	h.mu.Lock()
	// Hub only tracks live connections -- there is no separate offline
	// registry to consult -- so any existing entry here is a runnerID
	// re-registering under a new connection, whether its old connection
	// was cleanly offline or just a stale socket that hasn't been pruned
	// yet. Both cases are reclaims from this connection's point of view.
	reclaimed := false
	if existing, ok := h.runners[runnerID]; ok && existing != c {
		reclaimed = true
		existing.cancel()
	}
	c.mu.Lock()
	c.RunnerID = runnerID
	c.RunnerName = p.RunnerName
	c.CLIKinds = p.CLIKinds
	c.registered = true
	c.mu.Unlock()
	h.runners[runnerID] = c
	h.mu.Unlock()

	if err := c.Send(protocol.TypeRegistered, protocol.RegisteredPayload{
		RunnerID:  runnerID,
		Reclaimed: reclaimed,
	}); err != nil {
		h.logger.Warn("gateway: failed to ack register", "runner_id", runnerID, "error", err)
	}
}

// ErrUnregisteredRunner is returned when a caller targets a runner ID with
// no live connection.
var ErrUnregisteredRunner = errors.New("gateway: runner not connected")

// Dispatch sends an envelope to one connected runner by ID.
func (h *Hub) Dispatch(runnerID string, t protocol.Type, payload any) error {
	conn := h.Runner(runnerID)
	if conn == nil {
		return ErrUnregisteredRunner
	}
	return conn.Send(t, payload)
}
