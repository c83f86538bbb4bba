package runnerapp

import (
	"encoding/json"
	"testing"

	"github.com/discode/fabric/internal/appconfig"
	"github.com/discode/fabric/internal/cliclient"
	"github.com/discode/fabric/internal/cliflags"
)

func newTestApp() *App {
	cfg := appconfig.RunnerConfig{
		RunnerName: "box",
		GatewayURL: "ws://gateway.local/v1/runner",
		CLI: appconfig.CLIConfig{
			Claude: appconfig.CLIBinaryConfig{Command: "claude"},
			Codex:  appconfig.CLIBinaryConfig{Command: "codex"},
			Gemini: appconfig.CLIBinaryConfig{Command: "gemini"},
		},
		Sync: appconfig.SyncConfig{MaxChunkBytes: 1024},
	}
	return New(cfg, nil)
}

func TestVendorConfigSelection(t *testing.T) {
	a := newTestApp()

	bin, flagsVendor, clientVendor := a.vendorConfig("codex")
	if bin.Command != "codex" || flagsVendor != cliflags.VendorCodex || clientVendor != cliclient.VendorCodex {
		t.Fatalf("unexpected codex vendor resolution: %+v %v %v", bin, flagsVendor, clientVendor)
	}

	bin, flagsVendor, clientVendor = a.vendorConfig("unknown")
	if bin.Command != "claude" || flagsVendor != cliflags.VendorClaude || clientVendor != cliclient.VendorClaude {
		t.Fatalf("unknown cli kind should fall back to claude, got %+v %v %v", bin, flagsVendor, clientVendor)
	}
}

func TestMaxChunkBytesUsesConfigOverride(t *testing.T) {
	a := newTestApp()
	if got := a.maxChunkBytes(); got != 1024 {
		t.Fatalf("maxChunkBytes() = %d, want 1024", got)
	}

	a.cfg.Sync.MaxChunkBytes = 0
	if got := a.maxChunkBytes(); got <= 0 {
		t.Fatalf("maxChunkBytes() should fall back to a positive default, got %d", got)
	}
}

func TestRawMessagesPreservesOrder(t *testing.T) {
	chunk := [][]byte{[]byte(`{"a":1}`), []byte(`{"b":2}`)}
	out := rawMessages(chunk)
	if len(out) != 2 || string(out[0]) != `{"a":1}` || string(out[1]) != `{"b":2}` {
		t.Fatalf("rawMessages mismatch: %v", out)
	}
	var decoded map[string]int
	if err := json.Unmarshal(out[1], &decoded); err != nil || decoded["b"] != 2 {
		t.Fatalf("decoded second message incorrectly: %v, err=%v", decoded, err)
	}
}

func TestIsOwnedReflectsRegistry(t *testing.T) {
	a := newTestApp()
	if a.isOwned("s1") {
		t.Fatal("expected session not yet tracked to be unowned")
	}
}
