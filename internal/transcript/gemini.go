package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/discode/fabric/internal/protocol"
)

// geminiRecord mirrors the Gemini CLI's checkpoint/history record: a
// Content{role, parts[]} pair per turn, distinct from Claude's content-block
// union (no thinking/tool_result variants; function calls and responses are
// separate part kinds).
type geminiRecord struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string          `json:"text,omitempty"`
	FunctionCall     *geminiFuncCall `json:"functionCall,omitempty"`
	FunctionResponse *geminiFuncResp `json:"functionResponse,omitempty"`
}

type geminiFuncCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type geminiFuncResp struct {
	Name     string          `json:"name"`
	Response json.RawMessage `json:"response"`
}

// GeminiHistoryPath returns the per-session checkpoint file the Gemini CLI
// writes under a workspace's .gemini directory.
func GeminiHistoryPath(workDir, sessionID string) string {
	return filepath.Join(workDir, ".gemini", "tmp", sessionID, "checkpoint.json")
}

// ListGeminiSessionIDs returns every session ID (the .gemini/tmp subdirectory
// names that hold a checkpoint.json) found under workDir. A missing
// .gemini/tmp directory is not an error: the Gemini CLI just hasn't run
// there yet.
func ListGeminiSessionIDs(workDir string) ([]string, error) {
	dir := filepath.Join(workDir, ".gemini", "tmp")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, e.Name(), "checkpoint.json")); err == nil {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// ReadGeminiTranscript parses a Gemini CLI checkpoint file (one JSON array
// of Content records) into StructuredMessages.
func ReadGeminiTranscript(workDir, sessionID string) ([]protocol.StructuredMessage, error) {
	path := GeminiHistoryPath(workDir, sessionID)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []geminiRecord
	if err := json.NewDecoder(bufio.NewReader(f)).Decode(&records); err != nil {
		return nil, fmt.Errorf("transcript: decode gemini checkpoint %s: %w", path, err)
	}

	out := make([]protocol.StructuredMessage, 0, len(records))
	for i, rec := range records {
		role := protocol.RoleAssistant
		if rec.Role == "user" {
			role = protocol.RoleUser
		}
		turnID := fmt.Sprintf("turn_%d", i)

		blocks := make([]protocol.Block, 0, len(rec.Parts))
		for _, p := range rec.Parts {
			switch {
			case p.Text != "":
				blocks = append(blocks, protocol.Block{Type: protocol.BlockText, Text: truncate(p.Text)})
			case p.FunctionCall != nil:
				blocks = append(blocks, protocol.Block{
					Type:  protocol.BlockToolUse,
					Name:  p.FunctionCall.Name,
					Input: p.FunctionCall.Args,
				})
			case p.FunctionResponse != nil:
				blocks = append(blocks, protocol.Block{
					Type:          protocol.BlockToolResult,
					ResultContent: truncate(string(p.FunctionResponse.Response)),
				})
			}
		}
		if len(blocks) == 0 {
			continue
		}

		msg := protocol.StructuredMessage{
			Role:    role,
			TurnID:  turnID,
			ItemID:  turnID,
			Content: blocks,
		}
		msg.AssignBlockIDs()
		out = append(out, msg)
	}
	return out, nil
}
