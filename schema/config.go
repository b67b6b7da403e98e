package schema

import (
	"errors"
	"os"
	"path/filepath"
	"time"
)

// EngineConfig defines defaults and limits for the session engine.
type EngineConfig struct {
	StateDir string
	// Session holds the defaults applied to session start when no config is given.
	Session               SessionConfig
	MaxSessionRecords     int
	CatalogStaleAfter     time.Duration
	TerminalMaxChunks     int
	TerminalPendingChunks int
	ConsoleMaxLines       int
	PendingEnvelopes      int
	RequestTimeout        time.Duration
}

// Engine limits.
const (
	DefaultMaxSessionRecords     = 20
	DefaultCatalogStaleAfter     = 24 * time.Hour
	DefaultTerminalMaxChunks     = 4096
	DefaultTerminalPendingChunks = 256
	DefaultConsoleMaxLines       = 2000
	DefaultPendingEnvelopes      = 256
	DefaultRequestTimeout        = 30 * time.Second
)

// NormalizeEngineConfig applies defaults and validates the config.
func NormalizeEngineConfig(cfg EngineConfig) (EngineConfig, error) {
	if cfg.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return EngineConfig{}, err
		}
		cfg.StateDir = filepath.Join(home, ".cxconsole", "state")
	}
	if cfg.MaxSessionRecords <= 0 {
		cfg.MaxSessionRecords = DefaultMaxSessionRecords
	}
	if cfg.CatalogStaleAfter <= 0 {
		cfg.CatalogStaleAfter = DefaultCatalogStaleAfter
	}
	if cfg.TerminalMaxChunks <= 0 {
		cfg.TerminalMaxChunks = DefaultTerminalMaxChunks
	}
	if cfg.TerminalPendingChunks <= 0 {
		cfg.TerminalPendingChunks = DefaultTerminalPendingChunks
	}
	if cfg.ConsoleMaxLines <= 0 {
		cfg.ConsoleMaxLines = DefaultConsoleMaxLines
	}
	if cfg.PendingEnvelopes <= 0 {
		cfg.PendingEnvelopes = DefaultPendingEnvelopes
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Session.Model != "" {
		model, err := NormalizeModelID(string(cfg.Session.Model))
		if err != nil {
			return EngineConfig{}, err
		}
		cfg.Session.Model = model
	}
	if cfg.Session.ReasoningEffort != "" {
		effort, err := NormalizeModelReasoningEffort(string(cfg.Session.ReasoningEffort))
		if err != nil {
			return EngineConfig{}, err
		}
		cfg.Session.ReasoningEffort = effort
	}
	if cfg.TerminalPendingChunks > cfg.TerminalMaxChunks {
		return EngineConfig{}, errors.New("terminal pending chunks must not exceed terminal max chunks")
	}
	return cfg, nil
}
