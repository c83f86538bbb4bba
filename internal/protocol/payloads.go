package protocol

import "encoding/json"

// RegisterPayload is sent runner -> gateway to identify the runner.
type RegisterPayload struct {
	RunnerName       string   `json:"runnerName"`
	Token            string   `json:"token"`
	CLIKinds         []string `json:"cliKinds"`
	DefaultWorkspace string   `json:"defaultWorkspace"`
}

// RegisteredPayload acks a register, gateway -> runner.
type RegisteredPayload struct {
	RunnerID  string `json:"runnerId"`
	Reclaimed bool   `json:"reclaimed"`
}

// ErrorPayload is fatal on the runner.
type ErrorPayload struct {
	Message string `json:"message"`
}

// HeartbeatPayload carries runner liveness every heartbeatIntervalMs.
type HeartbeatPayload struct {
	RunnerID string   `json:"runnerId"`
	CLIKinds []string `json:"cliKinds"`
}

// SessionStartPayload asks the runner to create a CLI session.
type SessionStartPayload struct {
	SessionID string        `json:"sessionId"`
	CLIKind   string        `json:"cliKind"`
	Variant   string        `json:"variant"` // sdk | tmux | print
	WorkDir   string        `json:"workDir"`
	CreateDir bool          `json:"createDir"`
	CreatedBy string        `json:"createdBy"`
	Options   SessionOptions `json:"options"`
}

// SessionOptions enumerates every session knob a session_start may set.
type SessionOptions struct {
	ResumeSessionID       string            `json:"resumeSessionId,omitempty"`
	ResumeSessionAt       string            `json:"resumeSessionAt,omitempty"`
	ForkSession           bool              `json:"forkSession,omitempty"`
	ContinueConversation  bool              `json:"continueConversation,omitempty"`
	Model                 string            `json:"model,omitempty"`
	FallbackModel         string            `json:"fallbackModel,omitempty"`
	MaxTurns              int               `json:"maxTurns,omitempty"`
	MaxBudgetUSD          float64           `json:"maxBudgetUsd,omitempty"`
	Agent                 string            `json:"agent,omitempty"`
	Betas                 []string          `json:"betas,omitempty"`
	JSONSchema            json.RawMessage   `json:"jsonSchema,omitempty"`
	PermissionMode        string            `json:"permissionMode,omitempty"` // default | acceptEdits
	AllowDangerouslySkip  bool              `json:"allowDangerouslySkipPermissions,omitempty"`
	AllowedTools          []string          `json:"allowedTools,omitempty"`
	DisallowedTools       []string          `json:"disallowedTools,omitempty"`
	Tools                 []string          `json:"tools,omitempty"`
	MCPServers            map[string]string `json:"mcpServers,omitempty"`
	SettingSources        []string          `json:"settingSources,omitempty"`
	StrictMCPConfig       bool              `json:"strictMcpConfig,omitempty"`
	AdditionalDirectories []string          `json:"additionalDirectories,omitempty"`
	Plugins               []string          `json:"plugins,omitempty"`
	Sandbox                bool             `json:"sandbox,omitempty"`
	PersistSession         bool             `json:"persistSession,omitempty"`
	MaxThinkingTokens      int              `json:"maxThinkingTokens,omitempty"`
	IncludePartialMessages bool             `json:"includePartialMessages,omitempty"`
	ThinkingLevel          string           `json:"thinkingLevel,omitempty"` // off|low|medium|high|default_on
}

// SessionReadyPayload is emitted at most once per session, runner -> gateway.
type SessionReadyPayload struct {
	SessionID string `json:"sessionId"`
	Model     string `json:"model,omitempty"`
}

// SessionEndPayload terminates a session, gateway -> runner.
type SessionEndPayload struct {
	SessionID string `json:"sessionId"`
}

// UserMessagePayload sends a text turn to a session, gateway -> runner.
type UserMessagePayload struct {
	SessionID string `json:"sessionId"`
	Content   string `json:"content"`
}

// OutputPayload streams assistant/tool output, runner -> gateway.
type OutputPayload struct {
	SessionID  string          `json:"sessionId"`
	OutputType string          `json:"outputType"` // stdout|thinking|tool_use|tool_result|edit|info|error
	Text       string          `json:"text,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	ToolUseID  string          `json:"toolUseId,omitempty"`
	ToolInput  json.RawMessage `json:"toolInput,omitempty"`
	Diff       string          `json:"diff,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	IsError    bool            `json:"isError,omitempty"`
}

// StatusPayload reports a session status change, runner -> gateway.
type StatusPayload struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"` // starting|ready|working|waiting|idle|error|offline
	Activity  string `json:"activity,omitempty"`
	ToolName  string `json:"toolName,omitempty"`
}

// MetadataPayload carries token/cost/activity info, runner -> gateway.
type MetadataPayload struct {
	SessionID    string  `json:"sessionId"`
	InputTokens  int     `json:"inputTokens,omitempty"`
	OutputTokens int     `json:"outputTokens,omitempty"`
	CostUSD      float64 `json:"costUsd,omitempty"`
}

// ResultPayload ends a turn, runner -> gateway.
type ResultPayload struct {
	SessionID string  `json:"sessionId"`
	IsError   bool    `json:"isError,omitempty"`
	CostUSD   float64 `json:"costUsd,omitempty"`
	Summary   string  `json:"summary,omitempty"`
}

// PermissionRequestPayload awaits a decision, runner -> gateway.
type PermissionRequestPayload struct {
	RequestID      string          `json:"requestId"`
	RunnerID       string          `json:"runnerId"`
	SessionID      string          `json:"sessionId"`
	ToolName       string          `json:"toolName"`
	ToolInput      json.RawMessage `json:"toolInput"`
	ToolUseID      string          `json:"toolUseId,omitempty"`
	Suggestions    []string        `json:"suggestions,omitempty"`
	IsPlanMode     bool            `json:"isPlanMode,omitempty"`
	IsQuestion     bool            `json:"isQuestion,omitempty"`
	BlockedPath    string          `json:"blockedPath,omitempty"`
	DecisionReason string          `json:"decisionReason,omitempty"`
	Timestamp      int64           `json:"timestamp"`
}

// PermissionDecisionPayload carries the allow/deny decision, gateway -> runner.
type PermissionDecisionPayload struct {
	RequestID          string          `json:"requestId"`
	Behavior           string          `json:"behavior"` // allow|deny
	Scope              string          `json:"scope,omitempty"`
	UpdatedInput       json.RawMessage `json:"updatedInput,omitempty"`
	UpdatedPermissions json.RawMessage `json:"updatedPermissions,omitempty"`
	CustomMessage      string          `json:"customMessage,omitempty"`
}

// PermissionDecisionAckPayload acks delivery of a decision, runner -> gateway.
type PermissionDecisionAckPayload struct {
	RequestID string `json:"requestId"`
	SessionID string `json:"sessionId"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// InterruptPayload is a Ctrl-C equivalent, gateway -> runner.
type InterruptPayload struct {
	SessionID string `json:"sessionId"`
}

// SyncProjectsPayload requests project discovery across all vendors.
type SyncProjectsPayload struct {
	RequestID string `json:"requestId"`
}

// SyncProjectsResponsePayload carries the discovered project list.
type SyncProjectsResponsePayload struct {
	RequestID string   `json:"requestId"`
	Projects  []string `json:"projects"`
}

// SyncProjectsProgressPayload MAY be emitted during long listings.
type SyncProjectsProgressPayload struct {
	RequestID string `json:"requestId"`
	Scanned   int    `json:"scanned"`
}

// SyncProjectsCompletePayload ends an explicit sync_projects round.
type SyncProjectsCompletePayload struct {
	RequestID   string `json:"requestId"`
	Status      string `json:"status"` // success|error
	Error       string `json:"error,omitempty"`
	StartedAt   int64  `json:"startedAt"`
	CompletedAt int64  `json:"completedAt"`
}

// SyncSessionsPayload requests all sessions under a project path.
type SyncSessionsPayload struct {
	RequestID   string `json:"requestId"`
	ProjectPath string `json:"projectPath"`
}

// SyncSessionsResponsePayload is one size-bounded chunk of structured messages.
type SyncSessionsResponsePayload struct {
	RequestID   string            `json:"requestId"`
	ProjectPath string            `json:"projectPath"`
	Messages    []json.RawMessage `json:"messages"`
	ChunkIndex  int               `json:"chunkIndex"`
}

// SyncSessionsCompletePayload ends a sync_sessions round.
type SyncSessionsCompletePayload struct {
	RequestID    string `json:"requestId"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
	SessionCount int    `json:"sessionCount"`
}

// SyncSessionDiscoveredPayload / SyncSessionUpdatedPayload carry a fully
// normalized structured message batch for one non-owned session, emitted by
// the watcher outside of any explicit sync round.
type SyncSessionDiscoveredPayload struct {
	ProjectPath string            `json:"projectPath"`
	SessionID   string            `json:"sessionId"`
	Vendor      string            `json:"vendor"`
	Messages    []json.RawMessage `json:"messages"`
}

type SyncSessionUpdatedPayload struct {
	ProjectPath string            `json:"projectPath"`
	SessionID   string            `json:"sessionId"`
	Vendor      string            `json:"vendor"`
	Messages    []json.RawMessage `json:"messages"`
}
