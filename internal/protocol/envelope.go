// Package protocol implements the newline-delimited JSON envelope codec (L1)
// shared by the runner and the gateway: a tagged union over a fixed
// discriminant set, decoded one line at a time and tolerant of unknown
// fields and unknown discriminants.
package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
)

// Type is the envelope discriminant. The set is closed; unknown
// values are never fatal, only logged and dropped.
type Type string

const (
	TypeRegister   Type = "register"
	TypeRegistered Type = "registered"
	TypeError      Type = "error"
	TypeHeartbeat  Type = "heartbeat"

	TypeSessionStart Type = "session_start"
	TypeSessionReady Type = "session_ready"
	TypeSessionEnd   Type = "session_end"
	TypeUserMessage  Type = "user_message"

	TypeOutput   Type = "output"
	TypeStatus   Type = "status"
	TypeMetadata Type = "metadata"
	TypeResult   Type = "result"

	TypePermissionRequest     Type = "permission_request"
	TypePermissionDecision    Type = "permission_decision"
	TypePermissionDecisionAck Type = "permission_decision_ack"

	TypeInterrupt Type = "interrupt"

	TypeSyncProjects         Type = "sync_projects"
	TypeSyncProjectsResponse Type = "sync_projects_response"
	TypeSyncProjectsProgress Type = "sync_projects_progress"
	TypeSyncProjectsComplete Type = "sync_projects_complete"
	TypeSyncSessions         Type = "sync_sessions"
	TypeSyncSessionsResponse Type = "sync_sessions_response"
	TypeSyncSessionsComplete Type = "sync_sessions_complete"
	TypeSyncSessionDiscovered Type = "sync_session_discovered"
	TypeSyncSessionUpdated    Type = "sync_session_updated"

	TypeSpawnThread   Type = "spawn_thread"
	TypeDiscordAction Type = "discord_action"
)

// knownTypes is the closed discriminant set used for validation on decode.
var knownTypes = map[Type]struct{}{
	TypeRegister: {}, TypeRegistered: {}, TypeError: {}, TypeHeartbeat: {},
	TypeSessionStart: {}, TypeSessionReady: {}, TypeSessionEnd: {}, TypeUserMessage: {},
	TypeOutput: {}, TypeStatus: {}, TypeMetadata: {}, TypeResult: {},
	TypePermissionRequest: {}, TypePermissionDecision: {}, TypePermissionDecisionAck: {},
	TypeInterrupt: {},
	TypeSyncProjects: {}, TypeSyncProjectsResponse: {}, TypeSyncProjectsProgress: {}, TypeSyncProjectsComplete: {},
	TypeSyncSessions: {}, TypeSyncSessionsResponse: {}, TypeSyncSessionsComplete: {},
	TypeSyncSessionDiscovered: {}, TypeSyncSessionUpdated: {},
	TypeSpawnThread: {}, TypeDiscordAction: {},
}

// IsKnown reports whether t is a member of the closed discriminant set.
func IsKnown(t Type) bool {
	_, ok := knownTypes[t]
	return ok
}

// Envelope is the wire shape: a discriminant ("type") and an opaque payload
// ("data"). Decoders MUST tolerate extra fields on the payload for forward
// compatibility.
type Envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode marshals a payload into data and wraps it in an Envelope, followed
// by a trailing newline so it can be written directly to a line-oriented
// transport.
func Encode(t Type, payload any) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("protocol: marshal payload for %q: %w", t, err)
		}
		data = raw
	}
	env := Envelope{Type: t, Data: data}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal envelope %q: %w", t, err)
	}
	return append(raw, '\n'), nil
}

// Unmarshal decodes the envelope's Data into dst.
func (e Envelope) Unmarshal(dst any) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, dst)
}

const maxLogSnippet = 200

// Decoder reads one Envelope per newline-delimited line. Empty lines are
// ignored. On JSON parse failure the offending line is logged (truncated to
// maxLogSnippet bytes) and skipped rather than returned as an error.
type Decoder struct {
	scanner *bufio.Scanner
	logger  *slog.Logger
}

// NewDecoder wraps r with a line scanner sized for multi-megabyte transcript
// frames (see maxSyncChunkBytes in config).
func NewDecoder(r io.Reader, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	return &Decoder{scanner: scanner, logger: logger}
}

// Next returns the next valid envelope, skipping malformed lines and unknown
// discriminants (both are logged, never returned as errors). Returns
// io.EOF when the underlying reader is exhausted.
func (d *Decoder) Next() (*Envelope, error) {
	for d.scanner.Scan() {
		line := d.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var env Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			d.logger.Warn("protocol: dropping malformed envelope",
				"error", err, "snippet", snippet(line))
			continue
		}
		if !IsKnown(env.Type) {
			d.logger.Warn("protocol: dropping unknown discriminant", "type", env.Type)
			continue
		}

		out := env
		return &out, nil
	}
	if err := d.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func snippet(line []byte) string {
	if len(line) <= maxLogSnippet {
		return string(line)
	}
	return string(line[:maxLogSnippet])
}
