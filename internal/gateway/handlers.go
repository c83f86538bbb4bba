// handlers.go wires Hub's envelope dispatch to the gateway-side permission
// Store and to an upstream Notifier, the pluggable interface the rest of
// the gateway (chat surfaces, UI sockets) implements to receive normalized
// output. This mirrors nexus's ws_control_plane.go decodeFrame/handleRequest
// split, retargeted from that file's single-process RPC dispatch onto the
// persistent runner registry kept in Hub.
package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/discode/fabric/internal/permission"
	"github.com/discode/fabric/internal/protocol"
)

// Notifier receives events normalized off the wire for delivery to
// whatever's upstream of the gateway (a chat UI, a webhook, a CLI client of
// the gateway itself). Every method must return quickly; slow consumers
// should buffer internally rather than block the Hub's dispatch goroutine.
type Notifier interface {
	SessionReady(runnerID string, p protocol.SessionReadyPayload)
	SessionEnded(runnerID string, p protocol.SessionEndPayload)
	Output(runnerID string, p protocol.OutputPayload)
	Status(runnerID string, p protocol.StatusPayload)
	Metadata(runnerID string, p protocol.MetadataPayload)
	Result(runnerID string, p protocol.ResultPayload)
	PermissionRequested(runnerID string, req *permission.Request)
	SessionDiscovered(runnerID string, p protocol.SyncSessionDiscoveredPayload)
	SessionUpdated(runnerID string, p protocol.SyncSessionUpdatedPayload)
	SessionsSynced(runnerID string, p protocol.SyncSessionsResponsePayload)
	SessionsSyncComplete(runnerID string, p protocol.SyncSessionsCompletePayload)
	ProjectsSynced(runnerID string, p protocol.SyncProjectsResponsePayload)
	ProjectsSyncComplete(runnerID string, p protocol.SyncProjectsCompletePayload)
}

// RegisterHandlers wires every runner -> gateway envelope type the fabric
// protocol defines to store/notifier side effects. Call once per Hub after
// construction.
func RegisterHandlers(h *Hub, store *permission.Store, notify Notifier, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	h.On(protocol.TypeHeartbeat, func(ctx context.Context, c *RunnerConn, env *protocol.Envelope) {
		// liveness only; the read deadline refresh on pong covers
		// disconnect detection, heartbeat envelopes need no reply.
	})

	h.On(protocol.TypeSessionReady, func(ctx context.Context, c *RunnerConn, env *protocol.Envelope) {
		var p protocol.SessionReadyPayload
		if err := env.Unmarshal(&p); err != nil {
			logger.Warn("gateway: malformed session_ready", "error", err)
			return
		}
		notify.SessionReady(c.RunnerID, p)
	})

	h.On(protocol.TypeSessionEnd, func(ctx context.Context, c *RunnerConn, env *protocol.Envelope) {
		var p protocol.SessionEndPayload
		if err := env.Unmarshal(&p); err != nil {
			logger.Warn("gateway: malformed session_end", "error", err)
			return
		}
		notify.SessionEnded(c.RunnerID, p)
	})

	h.On(protocol.TypeOutput, func(ctx context.Context, c *RunnerConn, env *protocol.Envelope) {
		var p protocol.OutputPayload
		if err := env.Unmarshal(&p); err != nil {
			logger.Warn("gateway: malformed output", "error", err)
			return
		}
		notify.Output(c.RunnerID, p)
	})

	h.On(protocol.TypeStatus, func(ctx context.Context, c *RunnerConn, env *protocol.Envelope) {
		var p protocol.StatusPayload
		if err := env.Unmarshal(&p); err != nil {
			logger.Warn("gateway: malformed status", "error", err)
			return
		}
		notify.Status(c.RunnerID, p)
	})

	h.On(protocol.TypeMetadata, func(ctx context.Context, c *RunnerConn, env *protocol.Envelope) {
		var p protocol.MetadataPayload
		if err := env.Unmarshal(&p); err != nil {
			logger.Warn("gateway: malformed metadata", "error", err)
			return
		}
		notify.Metadata(c.RunnerID, p)
	})

	h.On(protocol.TypeResult, func(ctx context.Context, c *RunnerConn, env *protocol.Envelope) {
		var p protocol.ResultPayload
		if err := env.Unmarshal(&p); err != nil {
			logger.Warn("gateway: malformed result", "error", err)
			return
		}
		notify.Result(c.RunnerID, p)
	})

	h.On(protocol.TypePermissionRequest, func(ctx context.Context, c *RunnerConn, env *protocol.Envelope) {
		var p protocol.PermissionRequestPayload
		if err := env.Unmarshal(&p); err != nil {
			logger.Warn("gateway: malformed permission_request", "error", err)
			return
		}
		req := &permission.Request{
			RequestID: p.RequestID,
			RunnerID:  c.RunnerID,
			SessionID: p.SessionID,
			ToolName:  p.ToolName,
			ToolInput: p.ToolInput,
			ToolUseID: p.ToolUseID,
		}
		// Create is idempotent in effect here: a retransmitted
		// permission_request for a requestId already tracked just
		// re-registers the same struct contents, never regressing a
		// request already past pending.
		if store.Get(p.RequestID) == nil {
			store.Create(req)
		}
		notify.PermissionRequested(c.RunnerID, store.Get(p.RequestID))
	})

	h.On(protocol.TypePermissionDecisionAck, func(ctx context.Context, c *RunnerConn, env *protocol.Envelope) {
		var p protocol.PermissionDecisionAckPayload
		if err := env.Unmarshal(&p); err != nil {
			logger.Warn("gateway: malformed permission_decision_ack", "error", err)
			return
		}
		store.Ack(p.RequestID)
	})

	h.On(protocol.TypeSyncSessionDiscovered, func(ctx context.Context, c *RunnerConn, env *protocol.Envelope) {
		var p protocol.SyncSessionDiscoveredPayload
		if err := env.Unmarshal(&p); err != nil {
			logger.Warn("gateway: malformed sync_session_discovered", "error", err)
			return
		}
		notify.SessionDiscovered(c.RunnerID, p)
	})

	h.On(protocol.TypeSyncSessionUpdated, func(ctx context.Context, c *RunnerConn, env *protocol.Envelope) {
		var p protocol.SyncSessionUpdatedPayload
		if err := env.Unmarshal(&p); err != nil {
			logger.Warn("gateway: malformed sync_session_updated", "error", err)
			return
		}
		notify.SessionUpdated(c.RunnerID, p)
	})

	h.On(protocol.TypeSyncSessionsResponse, func(ctx context.Context, c *RunnerConn, env *protocol.Envelope) {
		var p protocol.SyncSessionsResponsePayload
		if err := env.Unmarshal(&p); err != nil {
			logger.Warn("gateway: malformed sync_sessions_response", "error", err)
			return
		}
		notify.SessionsSynced(c.RunnerID, p)
	})

	h.On(protocol.TypeSyncSessionsComplete, func(ctx context.Context, c *RunnerConn, env *protocol.Envelope) {
		var p protocol.SyncSessionsCompletePayload
		if err := env.Unmarshal(&p); err != nil {
			logger.Warn("gateway: malformed sync_sessions_complete", "error", err)
			return
		}
		notify.SessionsSyncComplete(c.RunnerID, p)
	})

	h.On(protocol.TypeSyncProjectsResponse, func(ctx context.Context, c *RunnerConn, env *protocol.Envelope) {
		var p protocol.SyncProjectsResponsePayload
		if err := env.Unmarshal(&p); err != nil {
			logger.Warn("gateway: malformed sync_projects_response", "error", err)
			return
		}
		notify.ProjectsSynced(c.RunnerID, p)
	})

	h.On(protocol.TypeSyncProjectsComplete, func(ctx context.Context, c *RunnerConn, env *protocol.Envelope) {
		var p protocol.SyncProjectsCompletePayload
		if err := env.Unmarshal(&p); err != nil {
			logger.Warn("gateway: malformed sync_projects_complete", "error", err)
			return
		}
		notify.ProjectsSyncComplete(c.RunnerID, p)
	})
}

// Decide records a user's allow/deny decision and delivers it to the owning
// runner, retrying delivery via Sweep until acked.
func Decide(h *Hub, store *permission.Store, requestID, behavior string, scope permission.Scope, updatedInput, updatedPermissions []byte, customMessage string) error {
	req, ok := store.Decide(requestID, behavior, scope, updatedInput, updatedPermissions, customMessage)
	if !ok {
		return ErrUnregisteredRunner
	}
	return deliverDecision(h, req)
}

func deliverDecision(h *Hub, req *permission.Request) error {
	return h.Dispatch(req.RunnerID, protocol.TypePermissionDecision, protocol.PermissionDecisionPayload{
		RequestID:          req.RequestID,
		Behavior:           req.Decision.Behavior,
		Scope:              string(req.Decision.Scope),
		UpdatedInput:       req.Decision.UpdatedInput,
		UpdatedPermissions: req.Decision.UpdatedPermissions,
		CustomMessage:      req.Decision.CustomMessage,
	})
}

// SweepLoop periodically sweeps store for expired/unacked requests, denying
// the former and redelivering the latter, until ctx is cancelled.
func SweepLoop(ctx context.Context, h *Hub, store *permission.Store, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = permission.DefaultAckTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, unacked := store.Sweep()
			for _, req := range expired {
				if err := deliverDecision(h, req); err != nil {
					logger.Debug("gateway: failed to deliver expiry deny", "request_id", req.RequestID, "error", err)
				}
			}
			for _, req := range unacked {
				if err := deliverDecision(h, req); err != nil {
					logger.Debug("gateway: failed to redeliver decision", "request_id", req.RequestID, "error", err)
				}
			}
			store.Prune(24 * time.Hour)
		}
	}
}
