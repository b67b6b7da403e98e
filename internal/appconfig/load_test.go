package appconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Bridge.Transport != TransportStdio || cfg.Bridge.Command != "codex" {
		t.Fatalf("unexpected bridge defaults %+v", cfg.Bridge)
	}
}

func TestLoadRequiresConfigVersion(t *testing.T) {
	path := writeConfig(t, `
state_dir: /tmp/state
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "config_version is required") {
		t.Fatalf("expected config_version error, got %v", err)
	}
}

func TestLoadRejectsUnsupportedConfigVersion(t *testing.T) {
	path := writeConfig(t, `
config_version: 3
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unsupported config_version") {
		t.Fatalf("expected config_version error, got %v", err)
	}
}

func TestLoadRejectsUnsupportedTransport(t *testing.T) {
	path := writeConfig(t, `
config_version: 1
bridge:
  transport: carrier-pigeon
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unsupported bridge.transport") {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestLoadRejectsInvalidWebsocketURL(t *testing.T) {
	path := writeConfig(t, `
config_version: 1
bridge:
  transport: websocket
  url: http://example.com/bridge
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "bridge.url") {
		t.Fatalf("expected url error, got %v", err)
	}
}

func TestLoadRejectsInvalidReasoningEffort(t *testing.T) {
	path := writeConfig(t, `
config_version: 1
session:
  reasoning_effort: extreme
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "session.reasoning_effort") {
		t.Fatalf("expected reasoning effort error, got %v", err)
	}
}

func TestLoadOverridesAndExpandsEnv(t *testing.T) {
	t.Setenv("CX_STATE", "/var/lib/cx")
	path := writeConfig(t, `
config_version: 1
state_dir: $CX_STATE/state
bridge:
  transport: grpc
  socket_path: ${CX_STATE}/bridge.sock
  request_timeout_seconds: 5
session:
  model: gpt-5.2-codex
  reasoning_effort: high
catalog:
  stale_after_minutes: 10
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StateDir != "/var/lib/cx/state" || cfg.Bridge.SocketPath != "/var/lib/cx/bridge.sock" {
		t.Fatalf("expected env expansion, got %q %q", cfg.StateDir, cfg.Bridge.SocketPath)
	}
	engine := cfg.EngineConfig()
	if engine.RequestTimeout.Seconds() != 5 || engine.CatalogStaleAfter.Minutes() != 10 {
		t.Fatalf("unexpected engine config %+v", engine)
	}
	if engine.Session.Model != "gpt-5.2-codex" || engine.Session.ReasoningEffort != "high" {
		t.Fatalf("unexpected session defaults %+v", engine.Session)
	}
	if cfg.Terminal.MaxChunks == 0 {
		t.Fatalf("expected terminal defaults to survive partial config")
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("FOO", "bar")
	value := expandEnv("$FOO/$UID/$GID/$MISSING")
	if !strings.HasPrefix(value, "bar/") {
		t.Fatalf("expected env expansion, got %q", value)
	}
	if strings.Contains(value, "$UID") || strings.Contains(value, "$GID") {
		t.Fatalf("expected UID/GID expansion, got %q", value)
	}
	if !strings.HasSuffix(value, "/$MISSING") {
		t.Fatalf("expected missing vars to remain, got %q", value)
	}
}

func TestWriteDefaultRespectsOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	written, err := WriteDefault(path, false)
	if err != nil {
		t.Fatalf("write default: %v", err)
	}
	if written != path {
		t.Fatalf("expected path %q, got %q", path, written)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("expected written default to load: %v", err)
	}
	if _, err := WriteDefault(path, false); err == nil {
		t.Fatalf("expected error when config exists")
	}
	if _, err := WriteDefault(path, true); err != nil {
		t.Fatalf("expected overwrite to succeed: %v", err)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
