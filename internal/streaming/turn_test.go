package streaming

import (
	"encoding/json"
	"testing"

	"github.com/discode/fabric/internal/cliproto"
)

func TestTurnTextDeltas(t *testing.T) {
	var events []Event
	turn := NewTurn(func(e Event) { events = append(events, e) })

	turn.Feed(cliproto.StreamEvent{
		Type:         "content_block_start",
		ContentBlock: json.RawMessage(`{"type":"text"}`),
	}, 0)
	turn.Feed(cliproto.StreamEvent{
		Type:  "content_block_delta",
		Delta: json.RawMessage(`{"type":"text_delta","text":"hel"}`),
	}, 0)
	turn.Feed(cliproto.StreamEvent{
		Type:  "content_block_delta",
		Delta: json.RawMessage(`{"type":"text_delta","text":"lo"}`),
	}, 0)
	turn.Feed(cliproto.StreamEvent{Type: "content_block_stop"}, 0)
	turn.Feed(cliproto.StreamEvent{Type: "message_stop"}, 0)

	if len(events) != 3 {
		t.Fatalf("got %d events, want 3 (two deltas + turn_complete)", len(events))
	}
	if events[0].Text != "hel" || events[1].Text != "lo" {
		t.Fatalf("unexpected delta text: %+v", events[:2])
	}
	if events[2].Kind != "turn_complete" {
		t.Fatalf("last event kind = %s, want turn_complete", events[2].Kind)
	}
}

func TestTurnToolUseAccumulation(t *testing.T) {
	var events []Event
	turn := NewTurn(func(e Event) { events = append(events, e) })

	turn.Feed(cliproto.StreamEvent{
		Type:         "content_block_start",
		ContentBlock: json.RawMessage(`{"type":"tool_use","id":"tu_1","name":"Bash"}`),
	}, 1)
	turn.Feed(cliproto.StreamEvent{
		Type:  "content_block_delta",
		Delta: json.RawMessage(`{"type":"input_json_delta","partial_json":"{\"command\":"}`),
	}, 1)
	turn.Feed(cliproto.StreamEvent{
		Type:  "content_block_delta",
		Delta: json.RawMessage(`{"type":"input_json_delta","partial_json":"\"ls\"}"}`),
	}, 1)
	turn.Feed(cliproto.StreamEvent{Type: "content_block_stop"}, 1)

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 (start + complete)", len(events))
	}
	if events[0].Kind != "tool_use_start" || events[0].ToolName != "Bash" {
		t.Fatalf("unexpected start event: %+v", events[0])
	}
	complete := events[1]
	if complete.Kind != "tool_use_complete" || complete.ToolUseID != "tu_1" {
		t.Fatalf("unexpected complete event: %+v", complete)
	}
	if string(complete.ToolInput) != `{"command":"ls"}` {
		t.Fatalf("tool input = %s, want {\"command\":\"ls\"}", complete.ToolInput)
	}
}

func TestTruncateToolResult(t *testing.T) {
	short := "ok"
	if got := TruncateToolResult(short); got != short {
		t.Fatalf("short content should be unchanged, got %q", got)
	}

	long := make([]byte, ToolResultTruncateLimit+100)
	for i := range long {
		long[i] = 'x'
	}
	got := TruncateToolResult(string(long))
	if len(got) <= ToolResultTruncateLimit {
		t.Fatalf("expected truncation marker appended")
	}
}
