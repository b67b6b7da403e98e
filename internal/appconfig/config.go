package appconfig

import (
	"os"
	"path/filepath"
	"time"

	"pkt.systems/cxconsole/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int           `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string        `mapstructure:"state_dir" yaml:"state_dir"`
	Bridge        BridgeConfig  `mapstructure:"bridge" yaml:"bridge"`
	Session       SessionConfig `mapstructure:"session" yaml:"session"`
	Catalog       CatalogConfig `mapstructure:"catalog" yaml:"catalog"`
	Terminal      TermConfig    `mapstructure:"terminal" yaml:"terminal"`
	Console       ConsoleConfig `mapstructure:"console" yaml:"console"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// Bridge transports.
const (
	TransportStdio     = "stdio"
	TransportWebsocket = "websocket"
	TransportGRPC      = "grpc"
)

// BridgeConfig selects and configures the backend transport.
type BridgeConfig struct {
	Transport             string            `mapstructure:"transport" yaml:"transport"`
	Command               string            `mapstructure:"command" yaml:"command"`
	Args                  []string          `mapstructure:"args" yaml:"args"`
	Env                   map[string]string `mapstructure:"env" yaml:"env"`
	URL                   string            `mapstructure:"url" yaml:"url"`
	SocketPath            string            `mapstructure:"socket_path" yaml:"socket_path"`
	RequestTimeoutSeconds int               `mapstructure:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	MaxMessageBytes       int               `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
}

// SessionConfig holds the defaults applied to session start.
type SessionConfig struct {
	Model           string `mapstructure:"model" yaml:"model"`
	ReasoningEffort string `mapstructure:"reasoning_effort" yaml:"reasoning_effort"`
	Cwd             string `mapstructure:"cwd" yaml:"cwd"`
	ApprovalPolicy  string `mapstructure:"approval_policy" yaml:"approval_policy"`
	Sandbox         string `mapstructure:"sandbox" yaml:"sandbox"`
	MaxRecords      int    `mapstructure:"max_records" yaml:"max_records"`
}

// CatalogConfig controls the model catalog cache.
type CatalogConfig struct {
	StaleAfterMinutes int `mapstructure:"stale_after_minutes" yaml:"stale_after_minutes"`
}

// TermConfig bounds terminal output retention.
type TermConfig struct {
	MaxChunks     int `mapstructure:"max_chunks" yaml:"max_chunks"`
	PendingChunks int `mapstructure:"pending_chunks" yaml:"pending_chunks"`
}

// ConsoleConfig bounds the backend console log.
type ConsoleConfig struct {
	BufferMaxLines int `mapstructure:"buffer_max_lines" yaml:"buffer_max_lines"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".cxconsole", "state"),
		Bridge: BridgeConfig{
			Transport:             TransportStdio,
			Command:               "codex",
			Args:                  []string{"app-server"},
			Env:                   map[string]string{},
			URL:                   "",
			SocketPath:            filepath.Join(home, ".cxconsole", "state", "bridge.sock"),
			RequestTimeoutSeconds: int(schema.DefaultRequestTimeout / time.Second),
			MaxMessageBytes:       4 << 20,
		},
		Session: SessionConfig{
			Model:           string(schema.DefaultModelID),
			ReasoningEffort: "",
			Cwd:             "",
			ApprovalPolicy:  "on-request",
			Sandbox:         "workspace-write",
			MaxRecords:      schema.DefaultMaxSessionRecords,
		},
		Catalog: CatalogConfig{
			StaleAfterMinutes: int(schema.DefaultCatalogStaleAfter / time.Minute),
		},
		Terminal: TermConfig{
			MaxChunks:     schema.DefaultTerminalMaxChunks,
			PendingChunks: schema.DefaultTerminalPendingChunks,
		},
		Console: ConsoleConfig{
			BufferMaxLines: schema.DefaultConsoleMaxLines,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cxconsole", "config.yaml"), nil
}

// EngineConfig maps the config onto the engine's settings.
func (c Config) EngineConfig() schema.EngineConfig {
	return schema.EngineConfig{
		StateDir: c.StateDir,
		Session: schema.SessionConfig{
			Model:           schema.ModelID(c.Session.Model),
			ReasoningEffort: schema.ModelReasoningEffort(c.Session.ReasoningEffort),
			Cwd:             c.Session.Cwd,
			ApprovalPolicy:  c.Session.ApprovalPolicy,
			Sandbox:         c.Session.Sandbox,
		},
		MaxSessionRecords:     c.Session.MaxRecords,
		CatalogStaleAfter:     time.Duration(c.Catalog.StaleAfterMinutes) * time.Minute,
		TerminalMaxChunks:     c.Terminal.MaxChunks,
		TerminalPendingChunks: c.Terminal.PendingChunks,
		ConsoleMaxLines:       c.Console.BufferMaxLines,
		RequestTimeout:        c.RequestTimeout(),
	}
}

// RequestTimeout returns the per-request bridge timeout.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Bridge.RequestTimeoutSeconds) * time.Second
}
