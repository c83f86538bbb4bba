// Package runnerapp wires L2 through L9 into one running runner process:
// the reconnecting gateway connection, the live session registry, and the
// per-project transcript watchers, all driven off one appconfig.RunnerConfig.
//
// The wiring shape -- one top-level App holding every subsystem, started
// from cmd/runner/main.go -- follows how nexus's cmd/nexus commands_setup.go
// and internal/service construct and start the long-running nexus process.
package runnerapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/discode/fabric/internal/appconfig"
	"github.com/discode/fabric/internal/cliclient"
	"github.com/discode/fabric/internal/cliflags"
	"github.com/discode/fabric/internal/cliproto"
	"github.com/discode/fabric/internal/metrics"
	"github.com/discode/fabric/internal/permission"
	"github.com/discode/fabric/internal/protocol"
	"github.com/discode/fabric/internal/sessions"
	"github.com/discode/fabric/internal/streaming"
	"github.com/discode/fabric/internal/subprocess"
	"github.com/discode/fabric/internal/syncsvc"
	"github.com/discode/fabric/internal/transcript"
	"github.com/discode/fabric/internal/wsclient"
)

// App is one runner process: a single gateway connection fronting an
// arbitrary number of live CLI sessions.
type App struct {
	cfg      appconfig.RunnerConfig
	logger   *slog.Logger
	registry *sessions.Registry
	ws       *wsclient.Client

	metrics *metrics.Runner

	mu       sync.Mutex
	runnerID string
	watchers map[string]context.CancelFunc // projectPath -> stop
}

// New constructs an App from a loaded runner configuration.
func New(cfg appconfig.RunnerConfig, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		cfg:      cfg,
		logger:   logger,
		registry: sessions.NewRegistry(logger),
		watchers: make(map[string]context.CancelFunc),
		metrics:  metrics.NewRunner(),
	}
	a.ws = wsclient.New(wsclient.Options{
		URL:          cfg.GatewayURL,
		OnConnect:    a.onConnect,
		OnEnvelope:   a.onEnvelope,
		OnDisconnect: a.onDisconnect,
		Logger:       logger,
	})
	return a
}

// Run blocks, maintaining the gateway connection until ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	a.ws.Run(ctx)
	a.registry.Close()
}

func (a *App) onConnect(ctx context.Context) {
	err := a.ws.Send(ctx, protocol.TypeRegister, protocol.RegisterPayload{
		RunnerName:       a.cfg.RunnerName,
		Token:            a.cfg.Token,
		CLIKinds:         a.cfg.CLIKinds,
		DefaultWorkspace: a.cfg.DefaultWorkspace,
	})
	if err != nil {
		a.logger.Error("runnerapp: register failed", "error", err)
	}
}

func (a *App) onDisconnect(err error) {
	a.metrics.ReconnectCounter.Inc()
	if err != nil {
		a.logger.Warn("runnerapp: gateway connection lost", "error", err)
	}
}

func (a *App) onEnvelope(env *protocol.Envelope) {
	ctx := context.Background()
	switch env.Type {
	case protocol.TypeRegistered:
		var p protocol.RegisteredPayload
		if err := env.Unmarshal(&p); err == nil {
			a.mu.Lock()
			a.runnerID = p.RunnerID
			a.mu.Unlock()
			a.logger.Info("runnerapp: registered", "runner_id", p.RunnerID, "reclaimed", p.Reclaimed)
		}
	case protocol.TypeSessionStart:
		var p protocol.SessionStartPayload
		if err := env.Unmarshal(&p); err == nil {
			a.handleSessionStart(ctx, p)
		}
	case protocol.TypeUserMessage:
		var p protocol.UserMessagePayload
		if err := env.Unmarshal(&p); err == nil {
			a.handleUserMessage(p)
		}
	case protocol.TypeInterrupt:
		var p protocol.InterruptPayload
		if err := env.Unmarshal(&p); err == nil {
			a.handleInterrupt(ctx, p)
		}
	case protocol.TypeSessionEnd:
		var p protocol.SessionEndPayload
		if err := env.Unmarshal(&p); err == nil {
			a.handleSessionEnd(p)
		}
	case protocol.TypePermissionDecision:
		var p protocol.PermissionDecisionPayload
		if err := env.Unmarshal(&p); err == nil {
			a.handlePermissionDecision(p)
		}
	case protocol.TypeSyncSessions:
		var p protocol.SyncSessionsPayload
		if err := env.Unmarshal(&p); err == nil {
			a.handleSyncSessions(p)
		}
	case protocol.TypeSyncProjects:
		var p protocol.SyncProjectsPayload
		if err := env.Unmarshal(&p); err == nil {
			a.handleSyncProjects(p)
		}
	}
}

func (a *App) vendorConfig(kind string) (appconfig.CLIBinaryConfig, cliflags.Vendor, cliclient.Vendor) {
	switch kind {
	case "codex":
		return a.cfg.CLI.Codex, cliflags.VendorCodex, cliclient.VendorCodex
	case "gemini":
		return a.cfg.CLI.Gemini, cliflags.VendorGemini, cliclient.VendorGemini
	default:
		return a.cfg.CLI.Claude, cliflags.VendorClaude, cliclient.VendorClaude
	}
}

func (a *App) handleSessionStart(ctx context.Context, p protocol.SessionStartPayload) {
	if live := a.registry.Get(p.SessionID); live != nil {
		if _, err := a.registry.Reattach(ctx, p.SessionID); err == nil {
			a.emitStatus(p.SessionID, live.Status())
			return
		}
		a.registry.Remove(p.SessionID)
	}

	binCfg, flagsVendor, clientVendor := a.vendorConfig(p.CLIKind)
	args := append(append([]string(nil), binCfg.Args...), cliflags.Build(flagsVendor, p.Options)...)

	ch, err := subprocess.Spawn(ctx, subprocess.Config{
		Command: binCfg.Command,
		Args:    args,
		Dir:     p.WorkDir,
	}, a.logger)
	if err != nil {
		a.metrics.SessionErrors.WithLabelValues(p.CLIKind).Inc()
		a.sendOutput(p.SessionID, "error", fmt.Sprintf("failed to start %s: %v", p.CLIKind, err), "", "", nil)
		a.emitStatusValue(p.SessionID, string(sessions.StatusError))
		return
	}
	a.metrics.SessionsStarted.WithLabelValues(p.CLIKind).Inc()

	live := &sessions.Live{
		ID:      p.SessionID,
		CLIKind: p.CLIKind,
		Variant: p.Variant,
		WorkDir: p.WorkDir,
		Channel: ch,
		Bridge:  permission.NewRunnerBridge(0),
	}
	live.Turn = streaming.NewTurn(func(ev streaming.Event) { a.handleTurnEvent(p.SessionID, ev) })

	live.Client = cliclient.New(clientVendor, ch, cliclient.Hooks{
		OnReady: func(info cliclient.ReadyInfo) {
			live.SetModel(info.Model)
			live.SetStatus(sessions.StatusReady)
			a.sendEnvelope(protocol.TypeSessionReady, protocol.SessionReadyPayload{
				SessionID: p.SessionID,
				Model:     info.Model,
			})
		},
		OnStreamEvent: func(ev cliproto.StreamEvent) { live.Turn.Feed(ev, ev.Index) },
		OnToolResult: func(toolUseID, content string, isError bool) {
			a.sendOutput(p.SessionID, "tool_result", streaming.TruncateToolResult(content), "", toolUseID, nil)
			if isError {
				a.emitStatusValue(p.SessionID, string(sessions.StatusError))
			}
		},
		OnCanUseTool: func(ctx context.Context, requestID string, req cliproto.CanUseToolRequest) {
			a.handleCanUseTool(ctx, live, requestID, req)
		},
		OnHookCallback: func(ctx context.Context, requestID, subtype string, request json.RawMessage) (json.RawMessage, error) {
			return json.RawMessage("{}"), nil
		},
		OnResult: func(line cliproto.Line) {
			a.sendEnvelope(protocol.TypeResult, protocol.ResultPayload{SessionID: p.SessionID, IsError: line.IsError})
		},
		OnStatus: func(status string) {
			if live.SetStatus(sessions.Status(status)) {
				a.emitStatusValue(p.SessionID, status)
			}
		},
	}, cliclient.Options{
		ControlTimeout: a.cfg.Control.ControlTimeout(),
		MCPTimeout:     a.cfg.Control.MCPTimeout(),
	}, a.logger)

	a.registry.Add(live)
	live.SetStatus(sessions.StatusStarting)
	go live.Client.Run(ctx)
	a.ensureWatcher(p.WorkDir, p.CLIKind)
}

func (a *App) handleTurnEvent(sessionID string, ev streaming.Event) {
	switch ev.Kind {
	case "text_delta", "thinking_delta":
		kind := "stdout"
		if ev.Kind == "thinking_delta" {
			kind = "thinking"
		}
		a.sendOutput(sessionID, kind, ev.Text, "", "", nil)
	case "tool_use_complete":
		a.metrics.ToolInvocations.WithLabelValues(ev.ToolName).Inc()
		a.sendOutput(sessionID, "tool_use", "", ev.ToolName, ev.ToolUseID, ev.ToolInput)
	case "tool_use_start":
		a.sendOutput(sessionID, "tool_use", "", ev.ToolName, ev.ToolUseID, ev.ToolInput)
	}
}

func (a *App) handleCanUseTool(ctx context.Context, live *sessions.Live, requestID string, req cliproto.CanUseToolRequest) {
	input, _ := json.Marshal(req.Input)
	a.sendEnvelope(protocol.TypePermissionRequest, protocol.PermissionRequestPayload{
		RequestID:   requestID,
		RunnerID:    a.RunnerID(),
		SessionID:   live.ID,
		ToolName:    req.ToolName,
		ToolInput:   input,
		Suggestions: req.Suggestions,
	})
	live.SetStatus(sessions.StatusWaiting)
	a.emitStatusValue(live.ID, string(sessions.StatusWaiting))

	decision := live.Bridge.Await(ctx, requestID)
	if decision.Behavior == "allow" {
		_ = live.Client.SendControlResponseSuccess(requestID, map[string]any{
			"behavior":     "allow",
			"updatedInput": json.RawMessage(decision.UpdatedInput),
		})
	} else {
		_ = live.Client.SendControlResponseSuccess(requestID, map[string]any{
			"behavior": "deny",
			"message":  decision.CustomMessage,
		})
	}
	ack := protocol.PermissionDecisionAckPayload{
		RequestID: requestID,
		SessionID: live.ID,
		Success:   !decision.TimedOut,
	}
	if decision.TimedOut {
		ack.Error = decision.CustomMessage
	}
	a.sendEnvelope(protocol.TypePermissionDecisionAck, ack)
}

func (a *App) handleUserMessage(p protocol.UserMessagePayload) {
	live := a.registry.Get(p.SessionID)
	if live == nil {
		return
	}
	if err := live.Client.SendMessage(p.SessionID, p.Content); err != nil {
		a.sendOutput(p.SessionID, "error", err.Error(), "", "", nil)
	}
}

func (a *App) handleInterrupt(ctx context.Context, p protocol.InterruptPayload) {
	live := a.registry.Get(p.SessionID)
	if live == nil {
		return
	}
	_ = live.Client.Interrupt(ctx)
}

func (a *App) handleSessionEnd(p protocol.SessionEndPayload) {
	live := a.registry.Get(p.SessionID)
	if live == nil {
		return
	}
	a.registry.Remove(p.SessionID)
	if live.Channel != nil {
		_ = live.Channel.Close()
	}
}

func (a *App) handlePermissionDecision(p protocol.PermissionDecisionPayload) {
	for _, live := range a.registry.All() {
		live.Bridge.Resolve(p.RequestID, permission.Decision{
			RequestID:          p.RequestID,
			Behavior:           p.Behavior,
			Scope:              permission.Scope(p.Scope),
			UpdatedInput:       p.UpdatedInput,
			UpdatedPermissions: p.UpdatedPermissions,
			CustomMessage:      p.CustomMessage,
		})
	}
}

// handleSyncProjects coalesces every workspace this runner has ever hosted
// Claude Code sessions for into one sync_projects_response, followed by a
// sync_projects_complete.
func (a *App) handleSyncProjects(p protocol.SyncProjectsPayload) {
	startedAt := time.Now().Unix()
	projects, err := transcript.ListProjects()
	status, errMsg := "success", ""
	if err != nil {
		status, errMsg = "error", err.Error()
	}
	a.sendEnvelope(protocol.TypeSyncProjectsResponse, protocol.SyncProjectsResponsePayload{
		RequestID: p.RequestID,
		Projects:  projects,
	})
	a.sendEnvelope(protocol.TypeSyncProjectsComplete, protocol.SyncProjectsCompletePayload{
		RequestID:   p.RequestID,
		Status:      status,
		Error:       errMsg,
		StartedAt:   startedAt,
		CompletedAt: time.Now().Unix(),
	})
}

// sessionRef names one on-disk session to read during a sync_sessions fan-out.
type sessionRef struct {
	vendor transcript.Vendor
	id     string
}

// handleSyncSessions answers a project-wide sync_sessions request by reading
// every session transcript under the project concurrently, across every
// vendor with an on-disk transcript store (Claude, Gemini). Codex has none
// -- its session state lives behind the running CLI's own client protocol,
// per transcript.Read's documented behavior -- so it contributes nothing
// here. Concurrency is bounded so a project with hundreds of sessions
// doesn't open hundreds of files at once.
func (a *App) handleSyncSessions(p protocol.SyncSessionsPayload) {
	status := "success"
	errMsg := ""

	var refs []sessionRef
	claudeIDs, err := transcript.ListClaudeSessionIDs(p.ProjectPath)
	if err != nil {
		status, errMsg = "error", err.Error()
	}
	for _, id := range claudeIDs {
		refs = append(refs, sessionRef{transcript.VendorClaude, id})
	}

	geminiIDs, err := transcript.ListGeminiSessionIDs(p.ProjectPath)
	if err != nil && status == "success" {
		status, errMsg = "error", err.Error()
	}
	for _, id := range geminiIDs {
		refs = append(refs, sessionRef{transcript.VendorGemini, id})
	}

	perSession := make([][]protocol.StructuredMessage, len(refs))
	g := new(errgroup.Group)
	g.SetLimit(8)
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			msgs, rerr := transcript.Read(ref.vendor, p.ProjectPath, ref.id)
			if rerr != nil {
				a.logger.Warn("runnerapp: failed to read session transcript", "session", ref.id, "vendor", ref.vendor, "error", rerr)
				return nil
			}
			perSession[i] = msgs
			return nil
		})
	}
	_ = g.Wait()

	var messages []protocol.StructuredMessage
	for _, msgs := range perSession {
		messages = append(messages, msgs...)
	}
	chunks := syncsvc.SplitChunks(syncsvc.MarshalAll(messages), a.maxChunkBytes())
	for i, chunk := range chunks {
		a.sendEnvelope(protocol.TypeSyncSessionsResponse, protocol.SyncSessionsResponsePayload{
			RequestID:   p.RequestID,
			ProjectPath: p.ProjectPath,
			Messages:    rawMessages(chunk),
			ChunkIndex:  i,
		})
	}
	a.sendEnvelope(protocol.TypeSyncSessionsComplete, protocol.SyncSessionsCompletePayload{
		RequestID:    p.RequestID,
		Status:       status,
		Error:        errMsg,
		SessionCount: len(messages),
	})
}

func rawMessages(chunk [][]byte) []json.RawMessage {
	out := make([]json.RawMessage, len(chunk))
	for i, c := range chunk {
		out[i] = json.RawMessage(c)
	}
	return out
}

func (a *App) maxChunkBytes() int {
	if a.cfg.Sync.MaxChunkBytes > 0 {
		return a.cfg.Sync.MaxChunkBytes
	}
	return syncsvc.MaxChunkBytes
}

// ensureWatcher starts an L9 watcher for workDir/cliKind once, so sessions
// attached outside this runner's own CLI spawns still get discovered.
func (a *App) ensureWatcher(workDir, cliKind string) {
	if !a.cfg.Sync.Enabled {
		return
	}
	key := cliKind + "|" + workDir
	a.mu.Lock()
	if _, ok := a.watchers[key]; ok {
		a.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.watchers[key] = cancel
	a.mu.Unlock()

	vendor := transcript.Vendor(cliKind)
	w := syncsvc.NewWatcher(workDir, vendor, a.isOwned, a, a.logger)
	go w.Run(ctx)
}

// isOwned implements syncsvc.OwnedChecker against the live registry.
func (a *App) isOwned(sessionID string) bool {
	return a.registry.Get(sessionID) != nil
}

// Discovered implements syncsvc.Emitter.
func (a *App) Discovered(projectPath, sessionID, vendor string, messages []protocol.StructuredMessage) {
	a.sendEnvelope(protocol.TypeSyncSessionDiscovered, protocol.SyncSessionDiscoveredPayload{
		ProjectPath: projectPath,
		SessionID:   sessionID,
		Vendor:      vendor,
		Messages:    rawMessages(syncsvc.MarshalAll(messages)),
	})
}

// Updated implements syncsvc.Emitter.
func (a *App) Updated(projectPath, sessionID, vendor string, messages []protocol.StructuredMessage) {
	a.sendEnvelope(protocol.TypeSyncSessionUpdated, protocol.SyncSessionUpdatedPayload{
		ProjectPath: projectPath,
		SessionID:   sessionID,
		Vendor:      vendor,
		Messages:    rawMessages(syncsvc.MarshalAll(messages)),
	})
}

func (a *App) RunnerID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runnerID
}

func (a *App) sendEnvelope(t protocol.Type, payload any) {
	if err := a.ws.Send(context.Background(), t, payload); err != nil {
		a.logger.Debug("runnerapp: send failed", "type", t, "error", err)
	}
}

func (a *App) sendOutput(sessionID, outputType, text, toolName, toolUseID string, toolInput json.RawMessage) {
	a.sendEnvelope(protocol.TypeOutput, protocol.OutputPayload{
		SessionID:  sessionID,
		OutputType: outputType,
		Text:       text,
		ToolName:   toolName,
		ToolUseID:  toolUseID,
		ToolInput:  toolInput,
		IsError:    outputType == "error",
	})
}

func (a *App) emitStatus(sessionID string, status sessions.Status) {
	a.emitStatusValue(sessionID, string(status))
}

func (a *App) emitStatusValue(sessionID, status string) {
	a.sendEnvelope(protocol.TypeStatus, protocol.StatusPayload{SessionID: sessionID, Status: status})
}

// HealthHandler serves a minimal liveness probe for the runner process.
func (a *App) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}
