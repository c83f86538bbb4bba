// Package cliproto defines the stream-JSON wire types exchanged on a CLI
// subprocess's stdin/stdout, independent of
// which vendor (claude, codex, gemini) is on the other end of the pipe.
package cliproto

import "encoding/json"

// MessageType is the top-level "type" field of a stream-JSON line.
type MessageType string

const (
	// Outbound (runner -> CLI stdin).
	MsgUser           MessageType = "user"
	MsgControlRequest MessageType = "control_request"
	// Inbound and outbound share control_response.
	MsgControlResponse MessageType = "control_response"

	// Inbound only (CLI stdout -> runner).
	MsgSystem      MessageType = "system"
	MsgStreamEvent MessageType = "stream_event"
	MsgAssistant   MessageType = "assistant"
	MsgResult      MessageType = "result"
	MsgKeepAlive   MessageType = "keep_alive"
)

// ControlSubtype enumerates the known control_request subtypes.
type ControlSubtype string

const (
	ControlCanUseTool           ControlSubtype = "can_use_tool"
	ControlHookCallback         ControlSubtype = "hook_callback"
	ControlMCPMessage           ControlSubtype = "mcp_message"
	ControlSetPermissionMode    ControlSubtype = "set_permission_mode"
	ControlSetModel             ControlSubtype = "set_model"
	ControlSetMaxThinkingTokens ControlSubtype = "set_max_thinking_tokens"
	ControlInitialize           ControlSubtype = "initialize"
	ControlInterrupt            ControlSubtype = "interrupt"
)

// Line is the generic envelope for one NDJSON line on the CLI pipe. Only the
// fields relevant to Type/Subtype are populated by the producer; consumers
// must tolerate unset fields (forward compatibility, same rule as the
// runner<->gateway envelope).
type Line struct {
	Type    MessageType     `json:"type"`
	Subtype string          `json:"subtype,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`

	// system{subtype:init}
	SessionID     string   `json:"session_id,omitempty"`
	Model         string   `json:"model,omitempty"`
	Tools         []string `json:"tools,omitempty"`
	SlashCommands []string `json:"slash_commands,omitempty"`

	// stream_event
	Event json.RawMessage `json:"event,omitempty"`

	// control_request / control_response
	RequestID string          `json:"request_id,omitempty"`
	Request   json.RawMessage `json:"request,omitempty"`
	Response  *ControlPayload `json:"response,omitempty"`

	// result
	IsError bool     `json:"is_error,omitempty"`
	Errors  []string `json:"errors,omitempty"`
	CostUSD float64  `json:"total_cost_usd,omitempty"`
}

// ControlPayload is the nested "response" object used for both successful
// and failed control_response lines: the outer Line always carries the
// nested shape, never a flat one.
type ControlPayload struct {
	Subtype   string          `json:"subtype"` // success|error
	RequestID string          `json:"request_id"`
	Response  json.RawMessage `json:"response,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// CanUseToolRequest is the decoded Request payload for a can_use_tool
// control_request.
type CanUseToolRequest struct {
	ToolName       string          `json:"tool_name"`
	Input          json.RawMessage `json:"input"`
	Suggestions    []string        `json:"suggestions,omitempty"`
	ToolUseID      string          `json:"tool_use_id,omitempty"`
	IsPlanMode     bool            `json:"is_plan_mode,omitempty"`
	IsQuestion     bool            `json:"is_question,omitempty"`
	BlockedPath    string          `json:"blocked_path,omitempty"`
	DecisionReason string          `json:"decision_reason,omitempty"`
}

// CanUseToolResponse is the decoded payload written back for can_use_tool.
type CanUseToolResponse struct {
	Behavior           string          `json:"behavior"` // allow|deny
	UpdatedInput       json.RawMessage `json:"updatedInput,omitempty"`
	UpdatedPermissions json.RawMessage `json:"updatedPermissions,omitempty"`
	Message            string          `json:"message,omitempty"`
}

// UserMessage is the stdin shape for sending a text turn to the CLI.
type UserMessage struct {
	Type      MessageType       `json:"type"`
	SessionID string            `json:"session_id,omitempty"`
	Message   UserMessageInner  `json:"message"`
}

// UserMessageInner carries the role/content of a UserMessage.
type UserMessageInner struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock mirrors the assistant-turn content block shapes emitted by
// the CLI (text, thinking, tool_use, tool_result).
type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// StreamEvent is the inner "event" field of a stream_event line
// (content_block deltas from --include-partial-messages).
type StreamEvent struct {
	Type         string          `json:"type"`
	Index        int             `json:"index"`
	ContentBlock json.RawMessage `json:"content_block,omitempty"`
	Delta        json.RawMessage `json:"delta,omitempty"`
	Message      json.RawMessage `json:"message,omitempty"`
	Usage        json.RawMessage `json:"usage,omitempty"`
	StopReason   string          `json:"stop_reason,omitempty"`
}

// NewControlRequest builds an outbound control_request line, e.g. a
// permission-mode change or interrupt sent from the runner to the CLI.
func NewControlRequest(requestID string, subtype ControlSubtype, request any) (*Line, error) {
	var raw json.RawMessage
	if request != nil {
		data, err := json.Marshal(request)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return &Line{
		Type:      MsgControlRequest,
		Subtype:   string(subtype),
		RequestID: requestID,
		Request:   raw,
	}, nil
}

// NewControlResponseSuccess builds the nested control_response shape:
// {"type":"control_response","response":{"subtype":"success",...}}.
func NewControlResponseSuccess(requestID string, response any) (*Line, error) {
	var raw json.RawMessage
	if response != nil {
		data, err := json.Marshal(response)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return &Line{
		Type: MsgControlResponse,
		Response: &ControlPayload{
			Subtype:   "success",
			RequestID: requestID,
			Response:  raw,
		},
	}, nil
}

// NewControlResponseError builds the nested error shape for a failed control
// request.
func NewControlResponseError(requestID, message string) *Line {
	return &Line{
		Type: MsgControlResponse,
		Response: &ControlPayload{
			Subtype:   "error",
			RequestID: requestID,
			Error:     message,
		},
	}
}
