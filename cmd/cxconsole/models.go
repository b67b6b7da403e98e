package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/cxconsole/core"
	"pkt.systems/cxconsole/internal/appconfig"
	"pkt.systems/cxconsole/internal/format"
	"pkt.systems/cxconsole/schema"
	"pkt.systems/pslog"
)

func newModelsCmd() *cobra.Command {
	var cfgPath string
	var refresh bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the cached model catalog (--refresh asks the backend)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			catalog, err := loadCatalog(cmd.Context(), cfg, refresh)
			if err != nil {
				return err
			}
			out := &printer{out: cmd.OutOrStdout()}
			out.AppendLines(format.NewPlainRenderer().FormatModels(catalog, schema.ModelID(cfg.Session.Model))...)
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "start a session and refresh the catalog from the backend")
	return cmd
}

// loadCatalog returns the persisted catalog, refreshing it through a short-lived session when asked.
func loadCatalog(ctx context.Context, cfg appconfig.Config, refresh bool) (schema.CatalogSnapshot, error) {
	log := pslog.Ctx(ctx)
	if !refresh {
		engine, err := core.NewEngine(cfg.EngineConfig(), core.EngineDeps{Bridge: offlineBridge{}, Logger: log})
		if err != nil {
			return schema.CatalogSnapshot{}, err
		}
		return engine.Catalog(), nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	b, err := openBackend(ctx, cfg)
	if err != nil {
		return schema.CatalogSnapshot{}, err
	}
	defer func() { _ = b.Close() }()
	engine, _, err := startEngine(ctx, cfg, b, nil)
	if err != nil {
		return schema.CatalogSnapshot{}, err
	}
	if _, err := engine.Start(ctx, core.StartRequest{}); err != nil {
		return schema.CatalogSnapshot{}, fmt.Errorf("start session: %w", err)
	}
	defer func() {
		if err := engine.Stop(context.WithoutCancel(ctx)); err != nil {
			log.Debug("models stop failed", "err", err)
		}
	}()
	entries := engine.RefreshModels(ctx, false)
	catalog := engine.Catalog()
	if catalog.LastError != "" {
		return catalog, fmt.Errorf("model list refresh failed: %s", catalog.LastError)
	}
	log.Info("models refreshed", "count", len(entries))
	return catalog, nil
}

// offlineBridge serves reads of persisted state without a backend.
type offlineBridge struct{}

func (offlineBridge) SessionStart(context.Context, schema.SessionConfig) (schema.SessionStartResult, error) {
	return schema.SessionStartResult{}, schema.ErrNotConnected
}

func (offlineBridge) SessionStop(context.Context) error { return nil }

func (offlineBridge) ModelsList(context.Context) ([]schema.ModelEntry, error) {
	return nil, schema.ErrNotConnected
}

func (offlineBridge) MCPList(context.Context) ([]schema.MCPServer, error) {
	return nil, schema.ErrNotConnected
}

func (offlineBridge) ApprovalRespond(context.Context, schema.ActionID, schema.ApprovalDecision) error {
	return schema.ErrNotConnected
}

func (offlineBridge) UserInputRespond(context.Context, schema.ActionID, schema.UserInputDecision, schema.UserInputAnswers) error {
	return schema.ErrNotConnected
}

func (offlineBridge) TerminalCreate(context.Context, string) (schema.TerminalCreateResult, error) {
	return schema.TerminalCreateResult{}, schema.ErrNotConnected
}

func (offlineBridge) TerminalWrite(context.Context, schema.TerminalID, string) error {
	return schema.ErrNotConnected
}

func (offlineBridge) TerminalResize(context.Context, schema.TerminalID, int, int) error {
	return schema.ErrNotConnected
}

func (offlineBridge) TerminalKill(context.Context, schema.TerminalID) error {
	return schema.ErrNotConnected
}
