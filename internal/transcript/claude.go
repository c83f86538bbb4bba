package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/discode/fabric/internal/protocol"
)

// claudeRecord is one line of a Claude Code .jsonl transcript. Only the
// fields this normalizer needs are declared; unknown fields and unknown
// record types are tolerated and skipped.
type claudeRecord struct {
	Type      string          `json:"type"`
	UUID      string          `json:"uuid"`
	ParentUUID string         `json:"parentUuid,omitempty"`
	Timestamp string          `json:"timestamp"`
	Message   *claudeMessage  `json:"message,omitempty"`
	// snapshot/history noise (file-history-snapshot, summary, ...) carries no
	// Message and is skipped by design.
}

type claudeMessage struct {
	Role    string              `json:"role"`
	Content json.RawMessage     `json:"content"` // string or []ContentBlock
}

type claudeContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"` // tool_result: string or []block
	IsError   bool            `json:"is_error,omitempty"`
}

// MaxTextLength bounds normalized text blocks, matching the reference
// session manager's display truncation (other_examples, ~900-1200 chars for
// list views; transcript sync uses the wider turn-level limit instead).
const MaxTextLength = 1200

// ReadClaudeTranscript parses a Claude Code .jsonl transcript file into
// StructuredMessages, one per record that carries a message. Tool-use and
// tool-result blocks are paired where both appear in the file: a tool_use
// block's deterministic ID is referenced by Block.ToolUseID on the
// following tool_result, same as the live streaming path.
func ReadClaudeTranscript(path string) ([]protocol.StructuredMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var out []protocol.StructuredMessage
	turnCounter := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec claudeRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue // malformed line, tolerated
		}
		if rec.Type != "user" && rec.Type != "assistant" {
			continue // file-history-snapshot, summary, etc: noise, skipped
		}
		if rec.Message == nil {
			continue
		}

		msg, ok := normalizeClaudeMessage(rec, turnCounter)
		if !ok {
			continue
		}
		turnCounter++
		out = append(out, msg)
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("transcript: scan %s: %w", path, err)
	}
	return out, nil
}

func normalizeClaudeMessage(rec claudeRecord, turnIndex int) (protocol.StructuredMessage, bool) {
	role := protocol.RoleAssistant
	if rec.Message.Role == "user" {
		role = protocol.RoleUser
	}

	turnID := fmt.Sprintf("turn_%d", turnIndex)
	itemID := rec.UUID
	if itemID == "" {
		itemID = turnID
	}

	var blocks []protocol.Block
	// content can be a bare string (simple user message) or an array of
	// content blocks (assistant turns, tool results).
	var asArray []claudeContentBlock
	if err := json.Unmarshal(rec.Message.Content, &asArray); err == nil {
		blocks = normalizeBlocks(asArray)
	} else {
		var asString string
		if err := json.Unmarshal(rec.Message.Content, &asString); err == nil && asString != "" {
			blocks = []protocol.Block{{Type: protocol.BlockText, Text: truncate(asString)}}
		}
	}
	if len(blocks) == 0 {
		return protocol.StructuredMessage{}, false
	}

	createdAt := parseClaudeTimestamp(rec.Timestamp)
	msg := protocol.StructuredMessage{
		Role:      role,
		CreatedAt: createdAt,
		TurnID:    turnID,
		ItemID:    itemID,
		Content:   blocks,
	}
	msg.AssignBlockIDs()
	return msg, true
}

func normalizeBlocks(raw []claudeContentBlock) []protocol.Block {
	blocks := make([]protocol.Block, 0, len(raw))
	for _, b := range raw {
		switch b.Type {
		case "text":
			blocks = append(blocks, protocol.Block{Type: protocol.BlockText, Text: truncate(b.Text)})
		case "thinking":
			blocks = append(blocks, protocol.Block{Type: protocol.BlockThinking, Text: truncate(b.Thinking)})
		case "tool_use":
			blocks = append(blocks, protocol.Block{
				Type:      protocol.BlockToolUse,
				ToolUseID: b.ID,
				Name:      b.Name,
				Input:     b.Input,
			})
		case "tool_result":
			blocks = append(blocks, protocol.Block{
				Type:          protocol.BlockToolResult,
				ToolUseID:     b.ToolUseID,
				IsError:       b.IsError,
				ResultContent: truncate(decodeToolResultContent(b.Content)),
			})
		default:
			// unknown block type: preserve as text so nothing is silently
			// dropped from the synced transcript.
			if b.Text != "" {
				blocks = append(blocks, protocol.Block{Type: protocol.BlockText, Text: truncate(b.Text)})
			}
		}
	}
	return blocks
}

func decodeToolResultContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []claudeContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		out := ""
		for _, b := range blocks {
			if b.Text != "" {
				out += b.Text
			}
		}
		return out
	}
	return string(raw)
}

func truncate(s string) string {
	if len(s) <= MaxTextLength {
		return s
	}
	return s[:MaxTextLength] + "... (truncated)"
}

func parseClaudeTimestamp(ts string) int64 {
	if ts == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}
