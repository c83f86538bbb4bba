// Package cliclient implements L4: the per-vendor stream-JSON client built on
// top of a subprocess.Channel. It performs the initial handshake, dispatches
// inbound message kinds, and correlates outbound control_request calls with
// their control_response by request_id.
package cliclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/discode/fabric/internal/cliproto"
	"github.com/discode/fabric/internal/subprocess"
)

// Vendor identifies which CLI is on the other end of the pipe.
type Vendor string

const (
	VendorClaude Vendor = "claude"
	VendorCodex  Vendor = "codex"
	VendorGemini Vendor = "gemini"
)

// ReadyInfo is delivered exactly once, on the first system{subtype:init} (or
// via the ready-race fallback in Options.ReadyGraceDelay).
type ReadyInfo struct {
	SessionID     string
	Model         string
	Tools         []string
	SlashCommands []string
}

// Hooks wires client-observed events out to the owning session. All hooks
// are optional; nil hooks are simply skipped.
type Hooks struct {
	OnReady         func(ReadyInfo)
	OnStreamEvent   func(cliproto.StreamEvent)
	OnAssistantTurn func(json.RawMessage)
	OnToolResult    func(toolUseID, content string, isError bool)
	// OnCanUseTool is invoked for control_request{subtype:can_use_tool}. The
	// hook owns replying via SendControlResponseSuccess/Error asynchronously
	// (the permission bridge, L6, parks the request and decides later).
	OnCanUseTool func(ctx context.Context, requestID string, req cliproto.CanUseToolRequest)
	// OnHookCallback handles the remaining control_request subtypes
	// (hook_callback, mcp_message, set_permission_mode, set_model,
	// set_max_thinking_tokens, initialize, interrupt). It must return within
	// the client's control/mcp timeout; on timeout a safe default response is
	// sent automatically.
	OnHookCallback func(ctx context.Context, requestID, subtype string, request json.RawMessage) (json.RawMessage, error)
	OnResult       func(cliproto.Line)
	OnStatus       func(status string)
}

// Options configures timeouts.
type Options struct {
	ControlTimeout time.Duration // default 5s
	MCPTimeout     time.Duration // default 2s
}

func (o Options) withDefaults() Options {
	if o.ControlTimeout <= 0 {
		o.ControlTimeout = 5 * time.Second
	}
	if o.MCPTimeout <= 0 {
		o.MCPTimeout = 2 * time.Second
	}
	return o
}

// Client dispatches a single CLI subprocess's stream-JSON protocol.
type Client struct {
	vendor Vendor
	ch     *subprocess.Channel
	hooks  Hooks
	opts   Options
	logger *slog.Logger

	readyOnce sync.Once

	mu         sync.Mutex
	pendingOut map[string]chan *cliproto.Line // outbound control_request -> awaiting control_response
	processing bool
	queue      [][]byte // FIFO of raw "user" lines queued while processing
}

// New constructs a Client. Run must be called to start dispatching.
func New(vendor Vendor, ch *subprocess.Channel, hooks Hooks, opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		vendor:     vendor,
		ch:         ch,
		hooks:      hooks,
		opts:       opts.withDefaults(),
		logger:     logger.With("vendor", vendor),
		pendingOut: make(map[string]chan *cliproto.Line),
	}
}

// Run dispatches lines from the subprocess until its output closes or ctx is
// cancelled. It is meant to be run in its own goroutine, one per session.
func (c *Client) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-c.ch.Lines():
			if !ok {
				c.failPending(fmt.Errorf("cliclient: subprocess exited: %w", c.ch.Err()))
				return
			}
			c.dispatch(ctx, raw)
		}
	}
}

func (c *Client) dispatch(ctx context.Context, raw []byte) {
	var line cliproto.Line
	if err := json.Unmarshal(raw, &line); err != nil {
		c.logger.Warn("cliclient: malformed stream-json line", "error", err)
		return
	}

	switch line.Type {
	case cliproto.MsgSystem:
		c.handleSystem(line)
	case cliproto.MsgStreamEvent:
		c.handleStreamEvent(line)
	case cliproto.MsgAssistant:
		if c.hooks.OnAssistantTurn != nil {
			c.hooks.OnAssistantTurn(line.Message)
		}
	case cliproto.MsgUser:
		c.handleToolResults(line)
	case cliproto.MsgControlRequest:
		c.handleControlRequest(ctx, line)
	case cliproto.MsgControlResponse:
		c.resolvePending(line)
	case cliproto.MsgResult:
		c.handleResult(line)
	case cliproto.MsgKeepAlive:
		// ignored
	default:
		c.logger.Debug("cliclient: unhandled message type", "type", line.Type)
	}
}

func (c *Client) handleSystem(line cliproto.Line) {
	if line.Subtype != "init" {
		return
	}
	c.readyOnce.Do(func() {
		if c.hooks.OnReady != nil {
			c.hooks.OnReady(ReadyInfo{
				SessionID:     line.SessionID,
				Model:         line.Model,
				Tools:         line.Tools,
				SlashCommands: line.SlashCommands,
			})
		}
	})
}

func (c *Client) handleStreamEvent(line cliproto.Line) {
	if line.Event == nil || c.hooks.OnStreamEvent == nil {
		return
	}
	var ev cliproto.StreamEvent
	if err := json.Unmarshal(line.Event, &ev); err != nil {
		c.logger.Warn("cliclient: malformed stream_event", "error", err)
		return
	}
	c.hooks.OnStreamEvent(ev)
}

func (c *Client) handleToolResults(line cliproto.Line) {
	if line.Message == nil || c.hooks.OnToolResult == nil {
		return
	}
	var msg struct {
		Content []cliproto.ContentBlock `json:"content"`
	}
	if err := json.Unmarshal(line.Message, &msg); err != nil {
		return
	}
	for _, block := range msg.Content {
		if block.Type != "tool_result" {
			continue
		}
		c.hooks.OnToolResult(block.ToolUseID, block.Content, block.IsError)
	}
}

func (c *Client) handleControlRequest(ctx context.Context, line cliproto.Line) {
	switch cliproto.ControlSubtype(line.Subtype) {
	case cliproto.ControlCanUseTool:
		var req cliproto.CanUseToolRequest
		if line.Request != nil {
			if err := json.Unmarshal(line.Request, &req); err != nil {
				c.logger.Warn("cliclient: malformed can_use_tool request", "error", err)
				_ = c.SendControlResponseError(line.RequestID, "malformed request")
				return
			}
		}
		if c.hooks.OnCanUseTool != nil {
			go c.hooks.OnCanUseTool(ctx, line.RequestID, req)
		}
	default:
		c.handleHookOrMCP(ctx, line)
	}
}

// handleHookOrMCP dispatches hook_callback/mcp_message/set_* control
// requests to a local handler whose timeout auto-responds with a safe
// default.
func (c *Client) handleHookOrMCP(ctx context.Context, line cliproto.Line) {
	timeout := c.opts.ControlTimeout
	if cliproto.ControlSubtype(line.Subtype) == cliproto.ControlMCPMessage {
		timeout = c.opts.MCPTimeout
	}

	if c.hooks.OnHookCallback == nil {
		_ = c.SendControlResponseError(line.RequestID, "no handler registered")
		return
	}

	go func() {
		hookCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		type result struct {
			resp json.RawMessage
			err  error
		}
		done := make(chan result, 1)
		go func() {
			resp, err := c.hooks.OnHookCallback(hookCtx, line.RequestID, line.Subtype, line.Request)
			done <- result{resp, err}
		}()

		select {
		case r := <-done:
			if r.err != nil {
				_ = c.SendControlResponseError(line.RequestID, r.err.Error())
				return
			}
			_ = c.SendControlResponseSuccess(line.RequestID, r.resp)
		case <-hookCtx.Done():
			// Auto-respond with a safe default so the CLI is never left
			// hanging on a hook/mcp call the handler failed to service.
			_ = c.SendControlResponseSuccess(line.RequestID, json.RawMessage("{}"))
		}
	}()
}

func (c *Client) handleResult(line cliproto.Line) {
	if c.hooks.OnStatus != nil {
		if line.IsError {
			c.hooks.OnStatus("error")
		} else {
			c.hooks.OnStatus("idle")
		}
	}
	if c.hooks.OnResult != nil {
		c.hooks.OnResult(line)
	}
	c.drainQueue()
}

// SendMessage sends a text turn. If a previous message is still being
// processed (no "result" seen yet), it is enqueued and drained FIFO on the
// next result.
func (c *Client) SendMessage(sessionID, text string) error {
	msg := cliproto.UserMessage{
		Type:      cliproto.MsgUser,
		SessionID: sessionID,
		Message: cliproto.UserMessageInner{
			Role:    "user",
			Content: []cliproto.ContentBlock{{Type: "text", Text: text}},
		},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.processing {
		c.queue = append(c.queue, data)
		c.mu.Unlock()
		return nil
	}
	c.processing = true
	c.mu.Unlock()

	if c.hooks.OnStatus != nil {
		c.hooks.OnStatus("working")
	}
	return c.ch.WriteLine(data)
}

func (c *Client) drainQueue() {
	c.mu.Lock()
	if len(c.queue) == 0 {
		c.processing = false
		c.mu.Unlock()
		return
	}
	next := c.queue[0]
	c.queue = c.queue[1:]
	c.processing = true
	c.mu.Unlock()

	if c.hooks.OnStatus != nil {
		c.hooks.OnStatus("working")
	}
	if err := c.ch.WriteLine(next); err != nil {
		c.logger.Warn("cliclient: failed to drain queued message", "error", err)
	}
}

// Interrupt sends a Ctrl-C-equivalent control_request.
func (c *Client) Interrupt(ctx context.Context) error {
	_, err := c.SendControlRequest(ctx, cliproto.ControlInterrupt, nil)
	return err
}

// SendControlRequest sends an outbound control_request and awaits its
// control_response, honoring ctx and the client's control timeout.
func (c *Client) SendControlRequest(ctx context.Context, subtype cliproto.ControlSubtype, request any) (*cliproto.Line, error) {
	requestID := uuid.NewString()
	line, err := cliproto.NewControlRequest(requestID, subtype, request)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(line)
	if err != nil {
		return nil, err
	}

	respCh := make(chan *cliproto.Line, 1)
	c.mu.Lock()
	c.pendingOut[requestID] = respCh
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pendingOut, requestID)
		c.mu.Unlock()
	}()

	if err := c.ch.WriteLine(data); err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.opts.ControlTimeout)
	defer cancel()

	select {
	case resp := <-respCh:
		return resp, nil
	case <-timeoutCtx.Done():
		return nil, fmt.Errorf("cliclient: control_request %s timed out", subtype)
	}
}

func (c *Client) resolvePending(line cliproto.Line) {
	requestID := line.RequestID
	if line.Response != nil && line.Response.RequestID != "" {
		requestID = line.Response.RequestID
	}
	c.mu.Lock()
	ch, ok := c.pendingOut[requestID]
	if ok {
		delete(c.pendingOut, requestID)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("cliclient: control_response without matching request, dropped", "request_id", requestID)
		return
	}
	cp := line
	select {
	case ch <- &cp:
	default:
	}
}

func (c *Client) failPending(err error) {
	c.mu.Lock()
	pending := c.pendingOut
	c.pendingOut = make(map[string]chan *cliproto.Line)
	c.mu.Unlock()
	for _, ch := range pending {
		close(ch)
	}
	_ = err
}

// SendControlResponseSuccess writes the nested success control_response
// shape back to the CLI.
func (c *Client) SendControlResponseSuccess(requestID string, response any) error {
	line, err := cliproto.NewControlResponseSuccess(requestID, response)
	if err != nil {
		return err
	}
	data, err := json.Marshal(line)
	if err != nil {
		return err
	}
	return c.ch.WriteLine(data)
}

// SendControlResponseError writes the nested error control_response shape.
func (c *Client) SendControlResponseError(requestID, message string) error {
	data, err := json.Marshal(cliproto.NewControlResponseError(requestID, message))
	if err != nil {
		return err
	}
	return c.ch.WriteLine(data)
}
