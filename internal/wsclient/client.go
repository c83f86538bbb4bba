// Package wsclient implements L2: the runner's reconnecting WebSocket
// transport to the gateway. Wire framing is NDJSON over a single text
// message per line rather than nexus/goclaw's raw binary framing, but the
// dial/read/write/close shape is grounded directly on vanducng-goclaw's
// zalo personal protocol.WSClient (coder/websocket).
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/discode/fabric/internal/protocol"
)

// ReconnectDelay is the fixed backoff between dial attempts: no jittered
// exponential backoff, just a flat retry interval.
const ReconnectDelay = 5 * time.Second

// HeartbeatInterval is how often the runner sends a heartbeat envelope.
const HeartbeatInterval = 30 * time.Second

// ReadLimit bounds a single inbound WS message (matches the envelope
// decoder's 8MB scanner ceiling, internal/protocol.Decoder).
const ReadLimit = 8 * 1024 * 1024

// Client maintains one logical (possibly repeatedly reconnecting)
// connection to the gateway's control-plane WS endpoint.
type Client struct {
	url    string
	header http.Header
	logger *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn

	onConnect    func(ctx context.Context)
	onEnvelope   func(*protocol.Envelope)
	onDisconnect func(err error)
}

// Options configures callback hooks invoked as connection state changes.
type Options struct {
	URL          string
	Header       http.Header
	OnConnect    func(ctx context.Context)
	OnEnvelope   func(*protocol.Envelope)
	OnDisconnect func(err error)
	Logger       *slog.Logger
}

// New constructs a Client. Run must be called to start the reconnect loop.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:          opts.URL,
		header:       opts.Header,
		logger:       logger,
		onConnect:    opts.OnConnect,
		onEnvelope:   opts.OnEnvelope,
		onDisconnect: opts.OnDisconnect,
	}
}

// Run dials, reads, and on disconnect waits ReconnectDelay and redials,
// forever until ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		err := c.runOnce(ctx)
		if c.onDisconnect != nil {
			c.onDisconnect(err)
		}
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("wsclient: disconnected, reconnecting", "error", err, "delay", ReconnectDelay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(ReconnectDelay):
		}
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{HTTPHeader: c.header})
	if err != nil {
		return fmt.Errorf("wsclient: dial: %w", err)
	}
	conn.SetReadLimit(ReadLimit)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if c.onConnect != nil {
		c.onConnect(connCtx)
	}

	go c.heartbeatLoop(connCtx)

	for {
		_, data, err := conn.Read(connCtx)
		if err != nil {
			conn.Close(websocket.StatusNormalClosure, "")
			return err
		}
		var env protocol.Envelope
		if uerr := json.Unmarshal(data, &env); uerr != nil {
			c.logger.Warn("wsclient: malformed envelope", "error", uerr)
			continue
		}
		if !protocol.IsKnown(env.Type) {
			c.logger.Warn("wsclient: unknown envelope type", "type", env.Type)
			continue
		}
		if c.onEnvelope != nil {
			c.onEnvelope(&env)
		}
	}
}

func (c *Client) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Send(ctx, protocol.TypeHeartbeat, protocol.HeartbeatPayload{}); err != nil {
				c.logger.Debug("wsclient: heartbeat send failed", "error", err)
			}
		}
	}
}

// Send encodes and writes one envelope. It fails fast with ErrNotConnected
// rather than blocking while the client is mid-reconnect.
func (c *Client) Send(ctx context.Context, t protocol.Type, payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := protocol.Encode(t, payload)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// ErrNotConnected is returned by Send while no connection is established.
var ErrNotConnected = errors.New("wsclient: not connected")
