package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/cxconsole/internal/grpcbridge"
	"pkt.systems/cxconsole/internal/mockbackend"
	"pkt.systems/cxconsole/internal/stdiobridge"
	"pkt.systems/cxconsole/internal/wire"
	"pkt.systems/cxconsole/internal/wsbridge"
	"pkt.systems/pslog"
)

type backendMockOptions struct {
	transport  string
	listen     string
	socket     string
	scenario   string
	seed       uint64
	delay      time.Duration
	prompt     string
	failModels bool
	failStart  bool
}

func newBackendMockCmd() *cobra.Command {
	var opts backendMockOptions
	cmd := &cobra.Command{
		Use:   "backend-mock",
		Short: "Serve a scripted backend for development and tests",
		Long: "Serve a scripted backend over stdio (JSON lines), websocket or gRPC.\n" +
			"Scenarios: " + strings.Join(mockbackend.ScenarioNames(), ", "),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := mockbackend.Config{
				Scenario:   opts.scenario,
				Seed:       opts.seed,
				SeedSet:    cmd.Flags().Changed("seed"),
				Delay:      opts.delay,
				Prompt:     opts.prompt,
				FailModels: opts.failModels,
				FailStart:  opts.failStart,
			}
			return runBackendMock(cmd, opts, cfg)
		},
	}
	cmd.Flags().StringVar(&opts.transport, "transport", "stdio", "stdio|websocket|grpc")
	cmd.Flags().StringVar(&opts.listen, "listen", "127.0.0.1:7788", "websocket listen address")
	cmd.Flags().StringVar(&opts.socket, "socket", "", "grpc unix socket path")
	cmd.Flags().StringVar(&opts.scenario, "scenario", "", "scenario to replay (default: picked by seed)")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "seed for scenario selection and message text")
	cmd.Flags().DurationVar(&opts.delay, "delay", 20*time.Millisecond, "pause between scripted pushes")
	cmd.Flags().StringVar(&opts.prompt, "prompt", "", "prompt echoed into agent messages")
	cmd.Flags().BoolVar(&opts.failModels, "fail-models", false, "fail every models.list request")
	cmd.Flags().BoolVar(&opts.failStart, "fail-start", false, "fail every session.start request")
	return cmd
}

func runBackendMock(cmd *cobra.Command, opts backendMockOptions, cfg mockbackend.Config) error {
	ctx := cmd.Context()
	logger := pslog.Ctx(ctx).With("transport", opts.transport)
	factory := mockbackend.Factory(cfg, logger)
	switch opts.transport {
	case "stdio":
		conn := stdiobridge.NewConn(cmd.InOrStdin(), cmd.OutOrStdout(), nil, 0)
		logger.Info("backend mock serving", "scenario", cfg.Scenario)
		return wire.Serve(ctx, conn, factory, logger)
	case "websocket":
		return serveMockWebsocket(ctx, opts.listen, factory, logger)
	case "grpc":
		if strings.TrimSpace(opts.socket) == "" {
			return fmt.Errorf("--socket is required for the grpc transport")
		}
		logger.Info("backend mock serving", "socket", opts.socket, "scenario", cfg.Scenario)
		return grpcbridge.NewServer(factory, logger).ListenAndServe(ctx, opts.socket)
	default:
		return fmt.Errorf("unsupported transport %q", opts.transport)
	}
}

func serveMockWebsocket(ctx context.Context, addr string, factory wire.HandlerFactory, logger pslog.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/bridge", wsbridge.Handler(factory, 0, logger))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info("backend mock serving", "url", "ws://"+lis.Addr().String()+"/bridge")
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
