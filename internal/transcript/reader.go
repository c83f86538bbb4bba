package transcript

import (
	"fmt"

	"github.com/discode/fabric/internal/protocol"
)

// Vendor identifies which CLI's transcript format to parse.
type Vendor string

const (
	VendorClaude Vendor = "claude"
	VendorCodex  Vendor = "codex"
	VendorGemini Vendor = "gemini"
)

// Read dispatches to the vendor-specific transcript reader. Codex has no
// on-disk transcript format the gateway can read directly (its session
// state lives behind the vendor CLI's own client protocol); callers needing
// Codex history must go through the running cliclient.Client instead, not
// this package.
func Read(vendor Vendor, workDir, sessionID string) ([]protocol.StructuredMessage, error) {
	switch vendor {
	case VendorClaude:
		path, err := ClaudeSessionPath(workDir, sessionID)
		if err != nil {
			return nil, err
		}
		return ReadClaudeTranscript(path)
	case VendorGemini:
		return ReadGeminiTranscript(workDir, sessionID)
	case VendorCodex:
		return nil, fmt.Errorf("transcript: codex has no readable on-disk transcript; use the live cliclient session instead")
	default:
		return nil, fmt.Errorf("transcript: unknown vendor %q", vendor)
	}
}

// DetectPendingApproval inspects the tail of a normalized message list for an
// assistant turn that ends in a tool_use block with no following tool_result
// -- the signature of a turn stuck waiting on a permission decision.
// windowSize bounds how many trailing messages are scanned.
func DetectPendingApproval(messages []protocol.StructuredMessage, windowSize int) *protocol.Block {
	if windowSize <= 0 || windowSize > len(messages) {
		windowSize = len(messages)
	}
	tail := messages[len(messages)-windowSize:]

	pending := map[string]protocol.Block{} // toolUseId -> tool_use block
	for _, msg := range tail {
		for _, b := range msg.Content {
			switch b.Type {
			case protocol.BlockToolUse:
				pending[b.ToolUseID] = b
			case protocol.BlockToolResult:
				delete(pending, b.ToolUseID)
			}
		}
	}
	for _, b := range pending {
		approval := protocol.Block{
			Type:             protocol.BlockApprovalNeeded,
			ApprovalToolName: b.Name,
			Payload:          b.Input,
			Title:            fmt.Sprintf("Approve %s?", b.Name),
			ApprovalStatus:   "pending",
		}
		return &approval
	}
	return nil
}
