// Package appconfig loads the runner and gateway's YAML configuration
// files.
//
// Grounded on nexus's internal/config/config.go: os.ExpandEnv before
// decode, yaml.v3 with KnownFields(true) so a typo'd key fails loudly
// instead of being silently ignored, then a defaults pass and a validation
// pass. Named separately from nexus's Config type (not carried over, see
// DESIGN.md) since nexus's Config is multi-tenant-chat specific and none of
// its fields apply here.
package appconfig

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RunnerConfig is the top-level runner.yaml shape.
type RunnerConfig struct {
	RunnerName       string        `yaml:"runnerName"`
	Token            string        `yaml:"token"`
	GatewayURL       string        `yaml:"gatewayUrl"`
	DefaultWorkspace string        `yaml:"defaultWorkspace"`
	CLIKinds         []string      `yaml:"cliKinds"`
	CLI              CLIConfig     `yaml:"cli"`
	Logging          LoggingConfig `yaml:"logging"`
	Sync             SyncConfig    `yaml:"sync"`
	Control          ControlConfig `yaml:"control"`
	Metrics          MetricsConfig `yaml:"metrics"`
}

// CLIConfig maps a CLI kind to its executable and base args.
type CLIConfig struct {
	Claude CLIBinaryConfig `yaml:"claude"`
	Codex  CLIBinaryConfig `yaml:"codex"`
	Gemini CLIBinaryConfig `yaml:"gemini"`
}

// CLIBinaryConfig names the executable for one vendor; empty Command
// disables that vendor on this runner.
type CLIBinaryConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// SyncConfig tunes the L9 session watcher.
type SyncConfig struct {
	Enabled       bool `yaml:"enabled"`
	MaxChunkBytes int  `yaml:"maxChunkBytes"`
}

// ControlConfig tunes L4 control_request/control_response timeouts.
type ControlConfig struct {
	ControlTimeoutMs int `yaml:"controlTimeoutMs"`
	MCPTimeoutMs     int `yaml:"mcpTimeoutMs"`
}

// ControlTimeout returns ControlTimeoutMs as a time.Duration, defaulting to
// 5s when unset.
func (c ControlConfig) ControlTimeout() time.Duration {
	if c.ControlTimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.ControlTimeoutMs) * time.Millisecond
}

// MCPTimeout returns MCPTimeoutMs as a time.Duration, defaulting to 2s when unset.
func (c ControlConfig) MCPTimeout() time.Duration {
	if c.MCPTimeoutMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.MCPTimeoutMs) * time.Millisecond
}

// GatewayConfig is the top-level gateway.yaml shape.
type GatewayConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Auth       AuthConfig       `yaml:"auth"`
	Permission PermissionConfig `yaml:"permission"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig configures the gateway's HTTP/WS listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// AuthConfig configures runner registration tokens.
type AuthConfig struct {
	RequireToken bool     `yaml:"requireToken"`
	Tokens       []string `yaml:"tokens"`
}

// PermissionConfig tunes L6 TTLs.
type PermissionConfig struct {
	RequestTTLSeconds int `yaml:"requestTtlSeconds"`
	AckTimeoutSeconds int `yaml:"ackTimeoutSeconds"`
}

// RequestTTL returns RequestTTLSeconds as a Duration, defaulting to 5m.
func (c PermissionConfig) RequestTTL() time.Duration {
	if c.RequestTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.RequestTTLSeconds) * time.Second
}

// AckTimeout returns AckTimeoutSeconds as a Duration, defaulting to 10s.
func (c PermissionConfig) AckTimeout() time.Duration {
	if c.AckTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.AckTimeoutSeconds) * time.Second
}

// MetricsConfig toggles the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig is shared between runner and gateway.
type LoggingConfig struct {
	Format string `yaml:"format"` // json|text
	Level  string `yaml:"level"`  // debug|info|warn|error
}

// LoadRunner reads and validates a runner.yaml file.
func LoadRunner(path string) (*RunnerConfig, error) {
	var cfg RunnerConfig
	if err := decodeYAMLFile(path, &cfg); err != nil {
		return nil, err
	}
	applyRunnerDefaults(&cfg)
	if cfg.RunnerName == "" {
		return nil, fmt.Errorf("appconfig: runnerName is required")
	}
	if cfg.GatewayURL == "" {
		return nil, fmt.Errorf("appconfig: gatewayUrl is required")
	}
	return &cfg, nil
}

// LoadGateway reads and validates a gateway.yaml file.
func LoadGateway(path string) (*GatewayConfig, error) {
	var cfg GatewayConfig
	if err := decodeYAMLFile(path, &cfg); err != nil {
		return nil, err
	}
	applyGatewayDefaults(&cfg)
	return &cfg, nil
}

func decodeYAMLFile(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("appconfig: read %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(data))

	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("appconfig: parse %s: %w", path, err)
	}
	if err := decoder.Decode(new(struct{})); err != io.EOF {
		return fmt.Errorf("appconfig: %s must be a single YAML document", path)
	}
	return nil
}

func applyRunnerDefaults(cfg *RunnerConfig) {
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Sync.MaxChunkBytes <= 0 {
		cfg.Sync.MaxChunkBytes = 2 * 1024 * 1024
	}
	if len(cfg.CLIKinds) == 0 {
		cfg.CLIKinds = []string{"claude"}
	}
	if cfg.CLI.Claude.Command == "" {
		cfg.CLI.Claude.Command = "claude"
	}
	if cfg.CLI.Codex.Command == "" {
		cfg.CLI.Codex.Command = "codex"
	}
	if cfg.CLI.Gemini.Command == "" {
		cfg.CLI.Gemini.Command = "gemini"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9091"
	}
}

func applyGatewayDefaults(cfg *GatewayConfig) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
}
