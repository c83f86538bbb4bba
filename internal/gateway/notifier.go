package gateway

import (
	"log/slog"

	"github.com/discode/fabric/internal/metrics"
	"github.com/discode/fabric/internal/permission"
	"github.com/discode/fabric/internal/protocol"
)

// LogNotifier is a Notifier that only logs events. It is the default when
// no chat surface or other upstream consumer is wired to the gateway,
// keeping the process runnable standalone for local testing.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) logger() *slog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return slog.Default()
}

func (n LogNotifier) SessionReady(runnerID string, p protocol.SessionReadyPayload) {
	n.logger().Info("session ready", "runner_id", runnerID, "session_id", p.SessionID, "model", p.Model)
}

func (n LogNotifier) SessionEnded(runnerID string, p protocol.SessionEndPayload) {
	n.logger().Info("session ended", "runner_id", runnerID, "session_id", p.SessionID)
}

func (n LogNotifier) Output(runnerID string, p protocol.OutputPayload) {
	n.logger().Debug("output", "runner_id", runnerID, "session_id", p.SessionID, "type", p.OutputType)
}

func (n LogNotifier) Status(runnerID string, p protocol.StatusPayload) {
	n.logger().Info("status", "runner_id", runnerID, "session_id", p.SessionID, "status", p.Status)
}

func (n LogNotifier) Metadata(runnerID string, p protocol.MetadataPayload) {
	n.logger().Debug("metadata", "runner_id", runnerID, "session_id", p.SessionID)
}

func (n LogNotifier) Result(runnerID string, p protocol.ResultPayload) {
	n.logger().Info("result", "runner_id", runnerID, "session_id", p.SessionID, "is_error", p.IsError)
}

func (n LogNotifier) PermissionRequested(runnerID string, req *permission.Request) {
	if req == nil {
		return
	}
	n.logger().Info("permission requested", "runner_id", runnerID, "request_id", req.RequestID, "tool", req.ToolName)
}

func (n LogNotifier) SessionDiscovered(runnerID string, p protocol.SyncSessionDiscoveredPayload) {
	n.logger().Info("session discovered", "runner_id", runnerID, "session_id", p.SessionID, "vendor", p.Vendor)
}

func (n LogNotifier) SessionUpdated(runnerID string, p protocol.SyncSessionUpdatedPayload) {
	n.logger().Debug("session updated", "runner_id", runnerID, "session_id", p.SessionID, "vendor", p.Vendor)
}

func (n LogNotifier) SessionsSynced(runnerID string, p protocol.SyncSessionsResponsePayload) {
	n.logger().Debug("sessions synced chunk", "runner_id", runnerID, "project_path", p.ProjectPath, "chunk", p.ChunkIndex)
}

func (n LogNotifier) SessionsSyncComplete(runnerID string, p protocol.SyncSessionsCompletePayload) {
	n.logger().Info("sessions sync complete", "runner_id", runnerID, "status", p.Status, "session_count", p.SessionCount)
}

func (n LogNotifier) ProjectsSynced(runnerID string, p protocol.SyncProjectsResponsePayload) {
	n.logger().Debug("projects synced", "runner_id", runnerID, "count", len(p.Projects))
}

func (n LogNotifier) ProjectsSyncComplete(runnerID string, p protocol.SyncProjectsCompletePayload) {
	n.logger().Info("projects sync complete", "runner_id", runnerID, "status", p.Status)
}

// meteredNotifier decorates another Notifier with Prometheus instrumentation,
// leaving the wrapped Notifier's own behavior untouched.
type meteredNotifier struct {
	next Notifier
	m    *metrics.Gateway
}

// MeteredNotifier wraps next so every delivered event also updates m.
func MeteredNotifier(next Notifier, m *metrics.Gateway) Notifier {
	return meteredNotifier{next: next, m: m}
}

func (n meteredNotifier) SessionReady(runnerID string, p protocol.SessionReadyPayload) {
	n.m.SessionsActive.WithLabelValues(runnerID, "").Inc()
	n.next.SessionReady(runnerID, p)
}

func (n meteredNotifier) SessionEnded(runnerID string, p protocol.SessionEndPayload) {
	n.m.SessionsActive.WithLabelValues(runnerID, "").Dec()
	n.next.SessionEnded(runnerID, p)
}

func (n meteredNotifier) Output(runnerID string, p protocol.OutputPayload) {
	n.m.EnvelopeCounter.WithLabelValues(string(protocol.TypeOutput)).Inc()
	n.next.Output(runnerID, p)
}

func (n meteredNotifier) Status(runnerID string, p protocol.StatusPayload) {
	n.m.EnvelopeCounter.WithLabelValues(string(protocol.TypeStatus)).Inc()
	n.next.Status(runnerID, p)
}

func (n meteredNotifier) Metadata(runnerID string, p protocol.MetadataPayload) {
	n.next.Metadata(runnerID, p)
}

func (n meteredNotifier) Result(runnerID string, p protocol.ResultPayload) {
	n.m.EnvelopeCounter.WithLabelValues(string(protocol.TypeResult)).Inc()
	n.next.Result(runnerID, p)
}

func (n meteredNotifier) PermissionRequested(runnerID string, req *permission.Request) {
	n.m.PermissionCounter.WithLabelValues("requested").Inc()
	n.next.PermissionRequested(runnerID, req)
}

func (n meteredNotifier) SessionDiscovered(runnerID string, p protocol.SyncSessionDiscoveredPayload) {
	n.next.SessionDiscovered(runnerID, p)
}

func (n meteredNotifier) SessionUpdated(runnerID string, p protocol.SyncSessionUpdatedPayload) {
	n.next.SessionUpdated(runnerID, p)
}

func (n meteredNotifier) SessionsSynced(runnerID string, p protocol.SyncSessionsResponsePayload) {
	n.next.SessionsSynced(runnerID, p)
}

func (n meteredNotifier) SessionsSyncComplete(runnerID string, p protocol.SyncSessionsCompletePayload) {
	n.m.EnvelopeCounter.WithLabelValues(string(protocol.TypeSyncSessionsComplete)).Inc()
	n.next.SessionsSyncComplete(runnerID, p)
}

func (n meteredNotifier) ProjectsSynced(runnerID string, p protocol.SyncProjectsResponsePayload) {
	n.next.ProjectsSynced(runnerID, p)
}

func (n meteredNotifier) ProjectsSyncComplete(runnerID string, p protocol.SyncProjectsCompletePayload) {
	n.m.EnvelopeCounter.WithLabelValues(string(protocol.TypeSyncProjectsComplete)).Inc()
	n.next.ProjectsSyncComplete(runnerID, p)
}
