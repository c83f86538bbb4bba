package syncsvc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/discode/fabric/internal/protocol"
	"github.com/discode/fabric/internal/transcript"
)

type recordingEmitter struct {
	discovered []string
	updated    []string
}

func (e *recordingEmitter) Discovered(projectPath, sessionID, vendor string, messages []protocol.StructuredMessage) {
	e.discovered = append(e.discovered, projectPath+"/"+sessionID)
}

func (e *recordingEmitter) Updated(projectPath, sessionID, vendor string, messages []protocol.StructuredMessage) {
	e.updated = append(e.updated, projectPath+"/"+sessionID)
}

func TestWatchDirResolvesClaudeProjectsDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	workDir := "/home/user/my-app"
	w := NewWatcher(workDir, transcript.VendorClaude, nil, nil, nil)

	dir, err := w.watchDir()
	if err != nil {
		t.Fatalf("watchDir: %v", err)
	}
	want := filepath.Join(home, ".claude", "projects", transcript.EscapeProjectPath(workDir))
	if dir != want {
		t.Fatalf("watchDir() = %q, want %q", dir, want)
	}
}

func TestWatchDirResolvesGeminiTmpDir(t *testing.T) {
	workDir := t.TempDir()
	w := NewWatcher(workDir, transcript.VendorGemini, nil, nil, nil)

	dir, err := w.watchDir()
	if err != nil {
		t.Fatalf("watchDir: %v", err)
	}
	want := filepath.Join(workDir, ".gemini", "tmp")
	if dir != want {
		t.Fatalf("watchDir() = %q, want %q", dir, want)
	}
}

func TestScanDiscoversClaudeSessionViaWorkDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	workDir := "/home/user/my-app"

	projectDir := filepath.Join(home, ".claude", "projects", transcript.EscapeProjectPath(workDir))
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		t.Fatal(err)
	}
	data := `{"type":"user","uuid":"u1","timestamp":"2026-01-01T00:00:00Z","message":{"role":"user","content":"hi"}}
`
	if err := os.WriteFile(filepath.Join(projectDir, "sess-1.jsonl"), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	emit := &recordingEmitter{}
	w := NewWatcher(workDir, transcript.VendorClaude, nil, emit, nil)
	w.scan(context.Background())

	if len(emit.discovered) != 1 || emit.discovered[0] != workDir+"/sess-1" {
		t.Fatalf("expected one discovered session keyed by the un-escaped workDir, got %v", emit.discovered)
	}
}

func TestScanSkipsOwnedSessions(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	workDir := "/home/user/my-app"

	projectDir := filepath.Join(home, ".claude", "projects", transcript.EscapeProjectPath(workDir))
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(projectDir, "sess-1.jsonl"), []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	emit := &recordingEmitter{}
	owned := func(sessionID string) bool { return sessionID == "sess-1" }
	w := NewWatcher(workDir, transcript.VendorClaude, owned, emit, nil)
	w.scan(context.Background())

	if len(emit.discovered) != 0 {
		t.Fatalf("expected owned session to be skipped, got %v", emit.discovered)
	}
}

func TestScanIsNoOpForCodex(t *testing.T) {
	emit := &recordingEmitter{}
	w := NewWatcher("/whatever", transcript.VendorCodex, nil, emit, nil)
	w.scan(context.Background())

	if len(emit.discovered) != 0 {
		t.Fatalf("codex has no on-disk transcript store, expected no discoveries, got %v", emit.discovered)
	}
}
