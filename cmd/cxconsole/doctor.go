package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/cxconsole/core"
	"pkt.systems/cxconsole/internal/appconfig"
	"pkt.systems/pslog"
)

func newDoctorCmd() *cobra.Command {
	var cfgPath string
	var skipSession bool
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the config, state directory and backend connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())

			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			configPath := cfgPath
			if strings.TrimSpace(configPath) == "" {
				path, err := appconfig.DefaultConfigPath()
				if err != nil {
					return err
				}
				configPath = path
			}
			logger.Info("doctor start", "config", configPath, "transport", cfg.Bridge.Transport)

			if err := verifyStateDir(cfg.StateDir); err != nil {
				return err
			}
			logger.Info("doctor state dir ok", "dir", cfg.StateDir)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			b, err := openBackend(ctx, cfg)
			if err != nil {
				return fmt.Errorf("doctor bridge: %w", err)
			}
			defer func() { _ = b.Close() }()
			logger.Info("doctor bridge ok")

			if skipSession {
				logger.Info("doctor complete", "session", false)
				return nil
			}
			engine, _, err := startEngine(ctx, cfg, b, nil)
			if err != nil {
				return err
			}
			result, err := engine.Start(ctx, core.StartRequest{})
			if err != nil {
				return fmt.Errorf("doctor session start: %w", err)
			}
			logger.Info("doctor session ok", "session", int64(result.SessionID), "pid", result.PID)
			entries := engine.RefreshModels(ctx, false)
			if catalog := engine.Catalog(); catalog.LastError != "" {
				logger.Warn("doctor models failed", "err", catalog.LastError)
			} else {
				logger.Info("doctor models ok", "count", len(entries))
			}
			if err := engine.Stop(ctx); err != nil {
				return fmt.Errorf("doctor session stop: %w", err)
			}
			logger.Info("doctor complete", "session", true)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "doctor: ok")
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&skipSession, "skip-session", false, "only check that the bridge connects")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall timeout")
	return cmd
}

func verifyStateDir(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("doctor state dir: %w", err)
	}
	check := filepath.Join(dir, ".doctor-check")
	if err := os.WriteFile(check, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("doctor state dir not writable: %w", err)
	}
	return os.Remove(check)
}
