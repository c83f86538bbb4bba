// Package syncsvc implements L9: watching a vendor CLI's on-disk session
// transcripts for activity the runner did not itself produce (sessions
// attached from another client) and pushing normalized batches to the
// gateway.
//
// The watch loop's fsnotify-with-polling-fallback shape and debounced
// refresh are grounded on nexus's internal/skills.Manager.watchLoop; the
// adaptive polling intervals and owned-session exclusion are new, since
// nexus's skill watcher has no notion of session ownership or activity
// tiers.
package syncsvc

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/discode/fabric/internal/protocol"
	"github.com/discode/fabric/internal/transcript"
)

// Polling tiers: sessions touched very recently are polled
// aggressively, tapering off as they go quiet.
const (
	ActiveInterval = 2 * time.Second
	RecentInterval = 10 * time.Second
	IdleInterval   = 60 * time.Second

	ActiveWindow = 30 * time.Second
	RecentWindow = 5 * time.Minute

	// MaxChunkBytes bounds one sync_sessions_response message's payload.
	MaxChunkBytes = 2 * 1024 * 1024

	// CodexPollInterval is the fixed poll period for Codex, which has no
	// filesystem transcript to fsnotify on.
	CodexPollInterval = 15 * time.Second
)

// OwnedChecker reports whether a session ID belongs to a session this
// runner itself started, so the watcher can skip self-echo: transcripts the
// runner is already streaming live should never be re-announced as
// "discovered".
type OwnedChecker func(sessionID string) bool

// Emitter delivers normalized batches upstream. Discovered fires the first
// time a non-owned session is seen; Updated fires on every subsequent
// change. Chunks are pre-split to MaxChunkBytes by splitChunks.
type Emitter interface {
	Discovered(projectPath, sessionID, vendor string, messages []protocol.StructuredMessage)
	Updated(projectPath, sessionID, vendor string, messages []protocol.StructuredMessage)
}

// sessionState tracks per-session watch bookkeeping.
type sessionState struct {
	lastSeenCount int
	lastActivity  time.Time
	known         bool // has Discovered already fired
}

// Watcher watches one workspace's session transcripts (one vendor) for
// changes. workDir is the same un-escaped workspace path the runner was
// told to start sessions in; every vendor-specific lookup (the Claude
// projects-dir escaping, the Gemini .gemini/tmp layout) derives from it
// consistently rather than from a pre-escaped directory name.
type Watcher struct {
	workDir string
	vendor  transcript.Vendor
	owned   OwnedChecker
	emit    Emitter
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*sessionState

	fsw *fsnotify.Watcher
}

// NewWatcher constructs a Watcher. Call Run to start it.
func NewWatcher(workDir string, vendor transcript.Vendor, owned OwnedChecker, emit Emitter, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		workDir:  workDir,
		vendor:   vendor,
		owned:    owned,
		emit:     emit,
		logger:   logger.With("project", workDir, "vendor", vendor),
		sessions: make(map[string]*sessionState),
	}
}

// watchDir resolves the actual filesystem directory to fsnotify for this
// vendor -- the Claude escaped-project directory under ~/.claude/projects,
// or the Gemini workspace's .gemini/tmp directory. Codex has neither and is
// never called with this.
func (w *Watcher) watchDir() (string, error) {
	switch w.vendor {
	case transcript.VendorClaude:
		root, err := transcript.ClaudeProjectsDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(root, transcript.EscapeProjectPath(w.workDir)), nil
	case transcript.VendorGemini:
		return filepath.Join(w.workDir, ".gemini", "tmp"), nil
	default:
		return "", fmt.Errorf("syncsvc: vendor %q has no watchable directory", w.vendor)
	}
}

// Run watches until ctx is cancelled. Claude and Gemini use fsnotify with a
// polling fallback if the watcher cannot be established (e.g. on a
// filesystem that does not support inotify); Codex always polls on a fixed
// interval since it has nothing on disk to watch.
func (w *Watcher) Run(ctx context.Context) {
	if w.vendor == transcript.VendorCodex {
		w.pollLoop(ctx, CodexPollInterval)
		return
	}

	dir, err := w.watchDir()
	if err != nil {
		w.logger.Warn("syncsvc: cannot resolve watch directory, falling back to polling", "error", err)
		w.pollLoop(ctx, RecentInterval)
		return
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("syncsvc: fsnotify unavailable, falling back to polling", "error", err)
		w.pollLoop(ctx, RecentInterval)
		return
	}
	w.fsw = fsw
	defer fsw.Close()

	if err := fsw.Add(dir); err != nil {
		w.logger.Warn("syncsvc: watch add failed, falling back to polling", "error", err)
		w.pollLoop(ctx, RecentInterval)
		return
	}

	w.scan(ctx) // baseline

	debounce := 250 * time.Millisecond
	var timer *time.Timer
	var mu sync.Mutex
	scheduleScan := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, func() { w.scan(ctx) })
	}

	// fsnotify alone would miss activity-tier decay (a session goes idle
	// without any new fs event), so a slow poll runs alongside it.
	ticker := time.NewTicker(IdleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				scheduleScan()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("syncsvc: fsnotify error", "error", err)
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

// pollLoop is the fallback/Codex path: fixed-interval full rescans.
func (w *Watcher) pollLoop(ctx context.Context, interval time.Duration) {
	w.scan(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

// intervalFor returns the adaptive poll tier for a session based on how
// recently it changed. Only meaningful for the informational
// log line here; actual scheduling is event-driven for fsnotify-backed
// watchers and fixed for the poll fallback.
func intervalFor(lastActivity time.Time) time.Duration {
	since := time.Since(lastActivity)
	switch {
	case since <= ActiveWindow:
		return ActiveInterval
	case since <= RecentWindow:
		return RecentInterval
	default:
		return IdleInterval
	}
}

func (w *Watcher) scan(ctx context.Context) {
	var ids []string
	var err error
	switch w.vendor {
	case transcript.VendorClaude:
		ids, err = transcript.ListClaudeSessionIDs(w.workDir)
	case transcript.VendorGemini:
		ids, err = transcript.ListGeminiSessionIDs(w.workDir)
	default:
		return // Codex has no on-disk transcript store to scan
	}
	if err != nil {
		w.logger.Warn("syncsvc: scan failed", "error", err)
		return
	}

	for _, sessionID := range ids {
		if w.owned != nil && w.owned(sessionID) {
			continue // self-echo: this runner already streams this session live
		}
		w.scanSession(ctx, sessionID)
	}
}

func (w *Watcher) scanSession(ctx context.Context, sessionID string) {
	messages, err := transcript.Read(w.vendor, w.workDir, sessionID)
	if err != nil {
		w.logger.Debug("syncsvc: session read failed", "session", sessionID, "error", err)
		return
	}

	w.mu.Lock()
	st, ok := w.sessions[sessionID]
	if !ok {
		st = &sessionState{}
		w.sessions[sessionID] = st
	}
	changed := len(messages) != st.lastSeenCount
	wasKnown := st.known
	if changed {
		st.lastSeenCount = len(messages)
		st.lastActivity = time.Now()
		st.known = true
	}
	w.mu.Unlock()

	if !changed || w.emit == nil {
		return
	}
	if !wasKnown {
		w.emit.Discovered(w.workDir, sessionID, string(w.vendor), messages)
	} else {
		w.emit.Updated(w.workDir, sessionID, string(w.vendor), messages)
	}
	w.logger.Debug("syncsvc: session changed", "session", sessionID, "tier", intervalFor(time.Now()))
}
