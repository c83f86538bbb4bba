// Package cliflags builds the CLI argument vector passed to a vendor
// subprocess from a protocol.SessionOptions.
//
// The fixed base flags (stream-json in/out, stdio permission prompts,
// partial messages) and the --resume handling are grounded directly on
// wingedpig-trellis's Session.ensureProcess (other_examples); everything
// else follows the same "one flag per populated option" shape, generalized
// to the rest of protocol.SessionOptions.
package cliflags

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/discode/fabric/internal/protocol"
)

// Vendor identifies which CLI's flag dialect to emit.
type Vendor string

const (
	VendorClaude Vendor = "claude"
	VendorCodex  Vendor = "codex"
	VendorGemini Vendor = "gemini"
)

// Build returns the argument vector (excluding argv[0]) for spawning vendor
// with the given session options.
func Build(vendor Vendor, opts protocol.SessionOptions) []string {
	switch vendor {
	case VendorClaude:
		return buildClaude(opts)
	case VendorCodex:
		return buildCodex(opts)
	case VendorGemini:
		return buildGemini(opts)
	default:
		return nil
	}
}

func buildClaude(o protocol.SessionOptions) []string {
	args := []string{
		"--output-format", "stream-json",
		"--verbose",
		"--input-format", "stream-json",
		"--permission-prompt-tool", "stdio",
	}

	if o.IncludePartialMessages {
		args = append(args, "--include-partial-messages")
	}

	mode := o.PermissionMode
	if mode == "" {
		mode = "default"
	}
	args = append(args, "--permission-mode", mode)

	if o.AllowDangerouslySkip {
		args = append(args, "--dangerously-skip-permissions")
	}
	if o.ResumeSessionID != "" {
		args = append(args, "--resume", o.ResumeSessionID)
	}
	if o.ForkSession {
		args = append(args, "--fork-session")
	}
	if o.ContinueConversation {
		args = append(args, "--continue")
	}
	if o.Model != "" {
		args = append(args, "--model", o.Model)
	}
	if o.FallbackModel != "" {
		args = append(args, "--fallback-model", o.FallbackModel)
	}
	if o.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(o.MaxTurns))
	}
	if o.MaxThinkingTokens > 0 {
		args = append(args, "--max-thinking-tokens", strconv.Itoa(o.MaxThinkingTokens))
	}
	if o.Agent != "" {
		args = append(args, "--agent", o.Agent)
	}
	for _, beta := range o.Betas {
		args = append(args, "--beta", beta)
	}
	if len(o.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(o.AllowedTools, ","))
	}
	if len(o.DisallowedTools) > 0 {
		args = append(args, "--disallowedTools", strings.Join(o.DisallowedTools, ","))
	}
	if len(o.Tools) > 0 {
		args = append(args, "--tools", strings.Join(o.Tools, ","))
	}
	for name, url := range o.MCPServers {
		args = append(args, "--mcp-server", fmt.Sprintf("%s=%s", name, url))
	}
	if len(o.SettingSources) > 0 {
		args = append(args, "--setting-sources", strings.Join(o.SettingSources, ","))
	}
	if o.StrictMCPConfig {
		args = append(args, "--strict-mcp-config")
	}
	for _, dir := range o.AdditionalDirectories {
		args = append(args, "--add-dir", dir)
	}
	for _, plugin := range o.Plugins {
		args = append(args, "--plugin", plugin)
	}
	if o.Sandbox {
		args = append(args, "--sandbox")
	}
	if o.ThinkingLevel != "" {
		args = append(args, "--thinking-level", o.ThinkingLevel)
	}
	if len(o.JSONSchema) > 0 {
		args = append(args, "--output-schema", string(o.JSONSchema))
	}
	return args
}

func buildCodex(o protocol.SessionOptions) []string {
	args := []string{"exec", "--json"}
	if o.ResumeSessionID != "" {
		args = append(args, "--resume", o.ResumeSessionID)
	}
	if o.Model != "" {
		args = append(args, "--model", o.Model)
	}
	if o.Sandbox {
		args = append(args, "--sandbox", "workspace-write")
	} else {
		args = append(args, "--sandbox", "danger-full-access")
	}
	if o.AllowDangerouslySkip {
		args = append(args, "--dangerously-bypass-approvals-and-sandbox")
	}
	return args
}

func buildGemini(o protocol.SessionOptions) []string {
	args := []string{"--output-format", "json"}
	if o.Model != "" {
		args = append(args, "--model", o.Model)
	}
	if o.ResumeSessionID != "" {
		args = append(args, "--resume", o.ResumeSessionID)
	}
	if o.Sandbox {
		args = append(args, "--sandbox")
	}
	if o.AllowDangerouslySkip {
		args = append(args, "--yolo")
	}
	return args
}
