package transcript

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/discode/fabric/internal/protocol"
)

func TestEscapeProjectPath(t *testing.T) {
	cases := map[string]string{
		"/home/user/my.project": "-home-user-my-project",
		"/a/b":                  "-a-b",
		"noslash":               "noslash",
	}
	for in, want := range cases {
		if got := EscapeProjectPath(in); got != want {
			t.Errorf("EscapeProjectPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReadClaudeTranscript(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	data := `{"type":"user","uuid":"u1","timestamp":"2026-01-01T00:00:00Z","message":{"role":"user","content":"hello"}}
{"type":"file-history-snapshot","uuid":"skip1"}
{"type":"assistant","uuid":"a1","timestamp":"2026-01-01T00:00:01Z","message":{"role":"assistant","content":[{"type":"text","text":"hi there"},{"type":"tool_use","id":"tu_1","name":"Bash","input":{"command":"ls"}}]}}
{"type":"user","uuid":"u2","timestamp":"2026-01-01T00:00:02Z","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"tu_1","content":"file1\nfile2"}]}}
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	msgs, err := ReadClaudeTranscript(path)
	if err != nil {
		t.Fatalf("ReadClaudeTranscript: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3 (snapshot skipped)", len(msgs))
	}
	if msgs[0].Role != protocol.RoleUser || msgs[0].Content[0].Text != "hello" {
		t.Errorf("unexpected first message: %+v", msgs[0])
	}

	assistant := msgs[1]
	if len(assistant.Content) != 2 || assistant.Content[1].Type != protocol.BlockToolUse {
		t.Fatalf("unexpected assistant content: %+v", assistant.Content)
	}
	if assistant.Content[1].ToolUseID != "tu_1" {
		t.Errorf("tool_use id = %s, want tu_1", assistant.Content[1].ToolUseID)
	}

	result := msgs[2]
	if result.Content[0].Type != protocol.BlockToolResult || result.Content[0].ResultContent != "file1\nfile2" {
		t.Errorf("unexpected tool_result: %+v", result.Content[0])
	}
}

func TestDetectPendingApproval(t *testing.T) {
	msgs := []protocol.StructuredMessage{
		{Content: []protocol.Block{{Type: protocol.BlockToolUse, ToolUseID: "tu_1", Name: "Bash"}}},
	}
	got := DetectPendingApproval(msgs, 10)
	if got == nil {
		t.Fatal("expected a pending approval block")
	}
	if got.ApprovalToolName != "Bash" {
		t.Errorf("approval tool = %s, want Bash", got.ApprovalToolName)
	}

	resolved := append(msgs, protocol.StructuredMessage{
		Content: []protocol.Block{{Type: protocol.BlockToolResult, ToolUseID: "tu_1"}},
	})
	if got := DetectPendingApproval(resolved, 10); got != nil {
		t.Errorf("expected no pending approval once tool_result arrives, got %+v", got)
	}
}
