package cliflags

import (
	"strings"
	"testing"

	"github.com/discode/fabric/internal/protocol"
)

func TestBuildClaudeResume(t *testing.T) {
	args := Build(VendorClaude, protocol.SessionOptions{ResumeSessionID: "abc123"})
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--resume abc123") {
		t.Fatalf("expected --resume abc123 in args, got %q", joined)
	}
	if !strings.Contains(joined, "--permission-mode default") {
		t.Fatalf("expected default permission mode, got %q", joined)
	}
}

func TestBuildClaudeToolLists(t *testing.T) {
	args := Build(VendorClaude, protocol.SessionOptions{
		AllowedTools: []string{"Bash", "Edit"},
		Model:        "claude-opus-4",
	})
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--allowedTools Bash,Edit") {
		t.Fatalf("expected allowedTools flag, got %q", joined)
	}
	if !strings.Contains(joined, "--model claude-opus-4") {
		t.Fatalf("expected model flag, got %q", joined)
	}
}

func TestBuildCodexSandboxFlag(t *testing.T) {
	args := Build(VendorCodex, protocol.SessionOptions{Sandbox: true})
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--sandbox workspace-write") {
		t.Fatalf("expected workspace-write sandbox flag, got %q", joined)
	}

	args = Build(VendorCodex, protocol.SessionOptions{})
	joined = strings.Join(args, " ")
	if !strings.Contains(joined, "--sandbox danger-full-access") {
		t.Fatalf("expected full-access sandbox flag when unsandboxed, got %q", joined)
	}
}

func TestBuildUnknownVendorReturnsNil(t *testing.T) {
	if args := Build("bogus", protocol.SessionOptions{}); args != nil {
		t.Fatalf("expected nil args for unknown vendor, got %v", args)
	}
}
