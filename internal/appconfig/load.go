package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"pkt.systems/cxconsole/schema"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
// A missing file yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("bridge.transport", cfg.Bridge.Transport)
	v.SetDefault("bridge.command", cfg.Bridge.Command)
	v.SetDefault("bridge.args", cfg.Bridge.Args)
	v.SetDefault("bridge.env", cfg.Bridge.Env)
	v.SetDefault("bridge.url", cfg.Bridge.URL)
	v.SetDefault("bridge.socket_path", cfg.Bridge.SocketPath)
	v.SetDefault("bridge.request_timeout_seconds", cfg.Bridge.RequestTimeoutSeconds)
	v.SetDefault("bridge.max_message_bytes", cfg.Bridge.MaxMessageBytes)
	v.SetDefault("session.model", cfg.Session.Model)
	v.SetDefault("session.reasoning_effort", cfg.Session.ReasoningEffort)
	v.SetDefault("session.cwd", cfg.Session.Cwd)
	v.SetDefault("session.approval_policy", cfg.Session.ApprovalPolicy)
	v.SetDefault("session.sandbox", cfg.Session.Sandbox)
	v.SetDefault("session.max_records", cfg.Session.MaxRecords)
	v.SetDefault("catalog.stale_after_minutes", cfg.Catalog.StaleAfterMinutes)
	v.SetDefault("terminal.max_chunks", cfg.Terminal.MaxChunks)
	v.SetDefault("terminal.pending_chunks", cfg.Terminal.PendingChunks)
	v.SetDefault("console.buffer_max_lines", cfg.Console.BufferMaxLines)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		// IsSet also reports defaults; the key must come from the file.
		if !v.InConfig("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks transport settings and engine limits.
func Validate(cfg Config) error {
	if err := validateBridgeConfig(cfg.Bridge); err != nil {
		return err
	}
	if cfg.Session.Model != "" {
		if _, err := schema.NormalizeModelID(cfg.Session.Model); err != nil {
			return fmt.Errorf("session.model: %w", err)
		}
	}
	if cfg.Session.ReasoningEffort != "" {
		if _, err := schema.NormalizeModelReasoningEffort(cfg.Session.ReasoningEffort); err != nil {
			return fmt.Errorf("session.reasoning_effort: %w", err)
		}
	}
	if cfg.Terminal.PendingChunks > cfg.Terminal.MaxChunks {
		return fmt.Errorf("terminal.pending_chunks must not exceed terminal.max_chunks")
	}
	return nil
}

func validateBridgeConfig(cfg BridgeConfig) error {
	switch strings.TrimSpace(cfg.Transport) {
	case TransportStdio:
		if strings.TrimSpace(cfg.Command) == "" {
			return fmt.Errorf("bridge.command is required for the stdio transport")
		}
	case TransportWebsocket:
		parsed, err := url.Parse(strings.TrimSpace(cfg.URL))
		if err != nil || parsed.Host == "" || (parsed.Scheme != "ws" && parsed.Scheme != "wss") {
			return fmt.Errorf("bridge.url must be a ws:// or wss:// URL")
		}
	case TransportGRPC:
		if strings.TrimSpace(cfg.SocketPath) == "" {
			return fmt.Errorf("bridge.socket_path is required for the grpc transport")
		}
	default:
		return fmt.Errorf("unsupported bridge.transport %q", cfg.Transport)
	}
	if cfg.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("bridge.request_timeout_seconds must not be negative")
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.Bridge.Command = expandEnv(cfg.Bridge.Command)
	cfg.Bridge.SocketPath = expandEnv(cfg.Bridge.SocketPath)
	cfg.Session.Cwd = expandEnv(cfg.Session.Cwd)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
