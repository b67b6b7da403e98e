package main

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"pkt.systems/psi"
	"pkt.systems/pslog"
)

func main() {
	psi.Run(submain)
}

func submain(ctx context.Context) int {
	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(os.Stderr),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole}),
	)
	ctx = pslog.ContextWithLogger(ctx, logger)
	log.SetOutput(pslog.LogLogger(logger).Writer())
	log.SetFlags(0)

	args := applyArgv0Alias(os.Args)
	root := newRootCmd()
	root.SetArgs(args[1:])

	if err := root.ExecuteContext(ctx); err != nil {
		pslog.Ctx(ctx).With("err", err).Error("cxconsole command failed")
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cxconsole",
		Short:         "Console client for an agent runtime backend",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(newConsoleCmd())
	root.AddCommand(newModelsCmd())
	root.AddCommand(newBackendMockCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func argv0Alias(base string) string {
	switch base {
	case "cxconsole-mock", "cx-backend-mock":
		return "backend-mock"
	default:
		return ""
	}
}

func applyArgv0Alias(args []string) []string {
	if len(args) == 0 {
		return args
	}
	alias := argv0Alias(filepath.Base(args[0]))
	if alias == "" {
		return args
	}
	out := make([]string, 0, len(args)+1)
	out = append(out, args[0], alias)
	out = append(out, args[1:]...)
	return out
}
