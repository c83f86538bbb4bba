package appconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRunnerDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runner.yaml")
	data := []byte("runnerName: box1\ngatewayUrl: ws://localhost:8080/ws\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadRunner(path)
	if err != nil {
		t.Fatalf("LoadRunner: %v", err)
	}
	if cfg.CLI.Claude.Command != "claude" {
		t.Errorf("claude command = %q, want claude", cfg.CLI.Claude.Command)
	}
	if cfg.Control.ControlTimeout().Seconds() != 5 {
		t.Errorf("default control timeout = %v, want 5s", cfg.Control.ControlTimeout())
	}
}

func TestLoadRunnerRequiresFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runner.yaml")
	if err := os.WriteFile(path, []byte("cliKinds: [claude]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRunner(path); err == nil {
		t.Fatal("expected error for missing runnerName/gatewayUrl")
	}
}

func TestLoadRunnerRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runner.yaml")
	data := []byte("runnerName: box1\ngatewayUrl: ws://x\nbogusField: true\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRunner(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadGatewayDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadGateway(path)
	if err != nil {
		t.Fatalf("LoadGateway: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("host = %q, want default 0.0.0.0", cfg.Server.Host)
	}
}
