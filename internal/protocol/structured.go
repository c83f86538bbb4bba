package protocol

import (
	"encoding/json"
	"fmt"
)

// Role is the author of a StructuredMessage.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType tags the variant carried by a Block.
type BlockType string

const (
	BlockText            BlockType = "text"
	BlockThinking        BlockType = "thinking"
	BlockToolUse         BlockType = "tool_use"
	BlockToolResult      BlockType = "tool_result"
	BlockPlan            BlockType = "plan"
	BlockApprovalNeeded  BlockType = "approval_needed"
)

// Block is the canonical sync content block. Only the fields
// relevant to Type are populated; the rest are left zero.
type Block struct {
	Type BlockType `json:"type"`

	// text | thinking
	Text string `json:"text,omitempty"`

	// tool_use
	ToolUseID string          `json:"toolUseId,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`

	// tool_result
	IsError        bool   `json:"isError,omitempty"`
	ResultContent  string `json:"resultContent,omitempty"`

	// plan
	Explanation string `json:"explanation,omitempty"`

	// approval_needed
	Title             string          `json:"title,omitempty"`
	Description       string          `json:"description,omitempty"`
	ApprovalToolName  string          `json:"approvalToolName,omitempty"`
	ApprovalStatus    string          `json:"approvalStatus,omitempty"`
	RequiresAttach    bool            `json:"requiresAttach,omitempty"`
	Payload           json.RawMessage `json:"payload,omitempty"`
}

// StructuredMessage is the canonical, vendor-independent sync record.
// ID is deterministic: "<turnId>:<itemId>:<blockIndex>" so
// retransmission is idempotent.
type StructuredMessage struct {
	ID        string  `json:"id"`
	Role      Role    `json:"role"`
	CreatedAt int64   `json:"createdAt"`
	TurnID    string  `json:"turnId"`
	ItemID    string  `json:"itemId"`
	Content   []Block `json:"content"`
}

// BlockID returns the deterministic id for the blockIndex'th block of this
// message's (turnId, itemId) pair.
func BlockID(turnID, itemID string, blockIndex int) string {
	return fmt.Sprintf("%s:%s:%d", turnID, itemID, blockIndex)
}

// AssignBlockIDs stamps m.ID from its first block (index 0) if unset, and is
// used by normalizers that build one StructuredMessage per raw transcript
// record with potentially many blocks under the same (turnId, itemId).
func (m *StructuredMessage) AssignBlockIDs() {
	m.ID = BlockID(m.TurnID, m.ItemID, 0)
}
