// Package streaming implements L5: reassembly of partial-message
// stream_event deltas (--include-partial-messages) into complete turns, with
// a bounded flush timer so long tool outputs still surface incrementally.
//
// Grounded on the assistant-turn accumulation in the reference
// claude-code session manager (other_examples, wingedpig-trellis): a
// content-block buffer indexed by block index, a partial-JSON accumulator
// for tool_use input, and an edit-block differ.
package streaming

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/discode/fabric/internal/cliproto"
)

// FlushInterval is how often accumulated text/thinking deltas are flushed to
// the caller even if the block has not yet closed.
const FlushInterval = 500 * time.Millisecond

// ToolResultTruncateLimit bounds the size of tool_result text surfaced in
// Output events.
const ToolResultTruncateLimit = 2000

// BlockKind mirrors the content_block "type" field of a stream_event.
type BlockKind string

const (
	KindText    BlockKind = "text"
	KindThink   BlockKind = "thinking"
	KindToolUse BlockKind = "tool_use"
)

// block accumulates one in-flight content block.
type block struct {
	kind      BlockKind
	text      bytes.Buffer
	partial   bytes.Buffer // partial JSON for tool_use input
	toolUseID string
	toolName  string
}

// Event is emitted by the Turn state machine to the owning session for
// forwarding as an OutputPayload.
type Event struct {
	Kind      string // text_delta|thinking_delta|tool_use_start|tool_use_input|tool_use_complete|turn_complete
	Text      string
	ToolUseID string
	ToolName  string
	ToolInput json.RawMessage
}

// Turn reassembles one assistant turn's stream_events. Not safe for
// concurrent use from more than one goroutine; a session owns exactly one
// Turn at a time.
type Turn struct {
	mu      sync.Mutex
	blocks  map[int]*block
	onEvent func(Event)
	limiter *rate.Limiter
}

// NewTurn constructs a Turn that calls onEvent for every emitted delta.
// Text/thinking deltas are coalesced and released at most once per
// FlushInterval; a single burst token lets the first delta of a block
// surface immediately.
func NewTurn(onEvent func(Event)) *Turn {
	return &Turn{
		blocks:  make(map[int]*block),
		onEvent: onEvent,
		limiter: rate.NewLimiter(rate.Every(FlushInterval), 1),
	}
}

// Feed processes one stream_event. index is the content_block index carried
// alongside delta/content_block_start/stop events in the vendor payload.
func (t *Turn) Feed(ev cliproto.StreamEvent, index int) {
	switch ev.Type {
	case "content_block_start":
		t.start(ev, index)
	case "content_block_delta":
		t.delta(ev, index)
	case "content_block_stop":
		t.stop(index)
	case "message_stop":
		t.complete()
	}
}

func (t *Turn) start(ev cliproto.StreamEvent, index int) {
	var cb struct {
		Type  string          `json:"type"`
		ID    string          `json:"id"`
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	}
	if len(ev.ContentBlock) > 0 {
		_ = json.Unmarshal(ev.ContentBlock, &cb)
	}

	t.mu.Lock()
	b := &block{kind: BlockKind(cb.Type), toolUseID: cb.ID, toolName: cb.Name}
	t.blocks[index] = b
	t.mu.Unlock()

	if b.kind == KindToolUse && t.onEvent != nil {
		t.onEvent(Event{Kind: "tool_use_start", ToolUseID: cb.ID, ToolName: cb.Name})
	}
}

func (t *Turn) delta(ev cliproto.StreamEvent, index int) {
	var d struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		Thinking    string `json:"thinking"`
		PartialJSON string `json:"partial_json"`
	}
	if len(ev.Delta) > 0 {
		_ = json.Unmarshal(ev.Delta, &d)
	}

	t.mu.Lock()
	b, ok := t.blocks[index]
	if !ok {
		t.mu.Unlock()
		return
	}
	var emit *Event
	switch d.Type {
	case "text_delta":
		b.text.WriteString(d.Text)
		if t.limiter.Allow() {
			emit = &Event{Kind: "text_delta", Text: b.text.String()}
			b.text.Reset()
		}
	case "thinking_delta":
		b.text.WriteString(d.Thinking)
		if t.limiter.Allow() {
			emit = &Event{Kind: "thinking_delta", Text: b.text.String()}
			b.text.Reset()
		}
	case "input_json_delta":
		b.partial.WriteString(d.PartialJSON)
	}
	t.mu.Unlock()

	if emit != nil && t.onEvent != nil {
		t.onEvent(*emit)
	}
}

func (t *Turn) stop(index int) {
	t.mu.Lock()
	b, ok := t.blocks[index]
	if ok {
		delete(t.blocks, index)
	}
	t.mu.Unlock()
	if !ok || t.onEvent == nil {
		return
	}

	if b.kind != KindToolUse {
		if b.text.Len() > 0 {
			kind := "text_delta"
			if b.kind == KindThink {
				kind = "thinking_delta"
			}
			t.onEvent(Event{Kind: kind, Text: b.text.String()})
		}
		return
	}

	input := b.partial.Bytes()
	if len(input) == 0 {
		input = []byte("{}")
	}
	t.onEvent(Event{
		Kind:      "tool_use_complete",
		ToolUseID: b.toolUseID,
		ToolName:  b.toolName,
		ToolInput: json.RawMessage(input),
	})
}

func (t *Turn) complete() {
	if t.onEvent != nil {
		t.onEvent(Event{Kind: "turn_complete"})
	}
}

// TruncateToolResult bounds tool_result content for Output events, matching
// the ~2000-character ceiling used by the reference session manager.
func TruncateToolResult(content string) string {
	if len(content) <= ToolResultTruncateLimit {
		return content
	}
	return content[:ToolResultTruncateLimit] + "... (truncated)"
}
