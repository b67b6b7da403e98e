package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"pkt.systems/cxconsole/core"
	"pkt.systems/cxconsole/internal/appconfig"
	"pkt.systems/cxconsole/internal/grpcbridge"
	"pkt.systems/cxconsole/internal/stdiobridge"
	"pkt.systems/cxconsole/internal/wsbridge"
	"pkt.systems/pslog"
)

// backend is a connected bridge regardless of transport.
type backend interface {
	core.Bridge
	core.PushSource
	Done() <-chan struct{}
	Close() error
}

func openBackend(ctx context.Context, cfg appconfig.Config) (backend, error) {
	log := pslog.Ctx(ctx).With("transport", cfg.Bridge.Transport)
	switch cfg.Bridge.Transport {
	case appconfig.TransportStdio:
		proc, err := stdiobridge.Start(ctx, stdiobridge.Config{
			Command:         cfg.Bridge.Command,
			Args:            cfg.Bridge.Args,
			Env:             envList(cfg.Bridge.Env),
			Dir:             cfg.Session.Cwd,
			MaxMessageBytes: cfg.Bridge.MaxMessageBytes,
		})
		if err != nil {
			log.Warn("bridge open failed", "err", err)
			return nil, err
		}
		return proc, nil
	case appconfig.TransportWebsocket:
		client, err := wsbridge.Dial(ctx, wsbridge.DialConfig{
			URL:             cfg.Bridge.URL,
			MaxMessageBytes: int64(cfg.Bridge.MaxMessageBytes),
			DialTimeout:     cfg.RequestTimeout(),
		})
		if err != nil {
			log.Warn("bridge open failed", "err", err)
			return nil, err
		}
		return client, nil
	case appconfig.TransportGRPC:
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout(cfg))
		defer cancel()
		client, err := grpcbridge.Dial(dialCtx, grpcbridge.DialConfig{SocketPath: cfg.Bridge.SocketPath}, log)
		if err != nil {
			log.Warn("bridge open failed", "err", err)
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported bridge.transport %q", cfg.Bridge.Transport)
	}
}

func dialTimeout(cfg appconfig.Config) time.Duration {
	if timeout := cfg.RequestTimeout(); timeout > 0 {
		return timeout
	}
	return 15 * time.Second
}

// envList renders env overrides as sorted KEY=VALUE entries.
func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, key+"="+env[key])
	}
	return out
}

// startEngine builds an engine over the backend and runs its push loop until ctx ends.
func startEngine(ctx context.Context, cfg appconfig.Config, b backend, sink core.EventSink) (*core.Engine, <-chan error, error) {
	engine, err := core.NewEngine(cfg.EngineConfig(), core.EngineDeps{
		Bridge:    b,
		EventSink: sink,
		Logger:    pslog.Ctx(ctx),
	})
	if err != nil {
		return nil, nil, err
	}
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx, b) }()
	return engine, done, nil
}
