// Package config loads the daemon's YAML configuration file, filling in
// defaults for any missing field.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// MemoryConfig configures the memory subsystem.
type MemoryConfig struct {
	Backend            string `yaml:"backend"`
	Path               string `yaml:"path"`
	Dimension          int    `yaml:"dimension"`
	EmbeddingCacheSize int    `yaml:"embedding_cache_size"`
}

// GatewayConfig configures the HTTP/WS gateway.
type GatewayConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	WebSocketPort          int    `yaml:"websocket_port"`
	AllowPublicBind        bool   `yaml:"allow_public_bind"`
	RequirePairing         bool   `yaml:"require_pairing"`
	SessionSendPolicyOn    bool   `yaml:"session_send_policy_enabled"`
	MaxPerWindow           int    `yaml:"max_per_window"`
	WindowSeconds          int    `yaml:"window_seconds"`
	TLSCertFile            string `yaml:"tls_cert_file"`
	TLSKeyFile             string `yaml:"tls_key_file"`
	RequireAuthorization   bool   `yaml:"require_authorization"`
}

// AutonomyConfig configures the security policy's write permission level.
type AutonomyConfig struct {
	Level             string   `yaml:"level"` // "read_only" | "supervised" | "full"
	AllowedCommands   []string `yaml:"allowed_commands"`
	ForbiddenPaths    []string `yaml:"forbidden_paths"`
	MaxActionsPerHour int      `yaml:"max_actions_per_hour"`
	WorkspaceDir      string   `yaml:"workspace_dir"`
}

// ReliabilityConfig configures the reliable provider.
type ReliabilityConfig struct {
	MaxRetries int `yaml:"max_retries"`
	BackoffMs  int `yaml:"backoff_ms"`
}

// SandboxConfig configures the tool executor's sandbox gate: which
// sessions get a scratch runtime and which tools are refused while
// sandboxed.
type SandboxConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Mode        string   `yaml:"mode"`  // "all" | "non-main", ignored when Enabled is false
	Scope       string   `yaml:"scope"` // "agent" | "session" | "shared"
	Root        string   `yaml:"root"`
	DeniedTools []string `yaml:"denied_tools"`
}

// Config is the top-level daemon configuration.
type Config struct {
	APIKey             string            `yaml:"api_key"`
	DefaultProvider    string            `yaml:"default_provider"`
	DefaultModel       string            `yaml:"default_model"`
	DefaultTemperature float64           `yaml:"default_temperature"`
	Memory             MemoryConfig      `yaml:"memory"`
	Gateway            GatewayConfig     `yaml:"gateway"`
	Autonomy           AutonomyConfig    `yaml:"autonomy"`
	Reliability        ReliabilityConfig `yaml:"reliability"`
	Sandbox            SandboxConfig     `yaml:"sandbox"`
}

func (c *Config) applyDefaults() {
	if c.DefaultProvider == "" {
		c.DefaultProvider = "openai"
	}
	if c.DefaultModel == "" {
		c.DefaultModel = "gpt-4o-mini"
	}
	if c.DefaultTemperature == 0 {
		c.DefaultTemperature = 0.7
	}
	if c.Memory.Backend == "" {
		c.Memory.Backend = "sqlite"
	}
	if c.Memory.Dimension <= 0 {
		c.Memory.Dimension = 64
	}
	if c.Memory.EmbeddingCacheSize <= 0 {
		c.Memory.EmbeddingCacheSize = 10000
	}
	if c.Gateway.Host == "" {
		c.Gateway.Host = "127.0.0.1"
	}
	if c.Gateway.Port == 0 {
		c.Gateway.Port = 8787
	}
	if c.Gateway.MaxPerWindow == 0 {
		c.Gateway.MaxPerWindow = 20
	}
	if c.Gateway.WindowSeconds == 0 {
		c.Gateway.WindowSeconds = 60
	}
	if c.Autonomy.Level == "" {
		c.Autonomy.Level = "supervised"
	}
	if c.Autonomy.MaxActionsPerHour <= 0 {
		c.Autonomy.MaxActionsPerHour = 100
	}
	if c.Autonomy.WorkspaceDir == "" {
		c.Autonomy.WorkspaceDir = "."
	}
	if c.Reliability.MaxRetries <= 0 {
		c.Reliability.MaxRetries = 2
	}
	if c.Reliability.BackoffMs <= 0 {
		c.Reliability.BackoffMs = 200
	}
	if c.Sandbox.Mode == "" {
		c.Sandbox.Mode = "all"
	}
	if c.Sandbox.Scope == "" {
		c.Sandbox.Scope = "agent"
	}
	if c.Sandbox.Root == "" {
		c.Sandbox.Root = filepath.Join(os.TempDir(), "ghostclaw-sandbox")
	}
	if len(c.Sandbox.DeniedTools) == 0 {
		c.Sandbox.DeniedTools = []string{"exec"}
	}
}

// WindowDuration returns the gateway's send-policy window as a duration.
func (g GatewayConfig) WindowDuration() time.Duration {
	return time.Duration(g.WindowSeconds) * time.Second
}

// Load reads and parses a YAML config file, filling defaults for any
// field the file omits.
func Load(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(buf, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.applyDefaults()
	return &c, nil
}

// Default returns a Config with every field defaulted, for use when no
// config file exists yet.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}
