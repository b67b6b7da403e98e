// Package stdiobridge runs the backend runtime as a child process and speaks the
// wire protocol over its stdin/stdout as JSON lines.
package stdiobridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"pkt.systems/cxconsole/internal/wire"
	"pkt.systems/pslog"
)

// Config controls how the backend process is started.
type Config struct {
	Command         string
	Args            []string
	Env             []string
	Dir             string
	MaxMessageBytes int
	// StopTimeout bounds how long Close waits for the process to exit after stdin closes.
	StopTimeout time.Duration
}

// Process is a running backend connected over stdio.
type Process struct {
	*wire.Client
	cmd     *exec.Cmd
	conn    *processConn
	log     pslog.Logger
	started time.Time
	timeout time.Duration
	waited  chan error
}

// Start launches the backend process and returns a connected client.
func Start(ctx context.Context, cfg Config) (*Process, error) {
	if cfg.Command == "" {
		return nil, errors.New("backend command is required")
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 5 * time.Second
	}
	log := pslog.Ctx(ctx)
	log.Info("stdio bridge start", "command", cfg.Command, "args_len", len(cfg.Args), "args", cfg.Args, "dir", cfg.Dir, "env_extra", len(cfg.Env))

	// The process outlives the caller's ctx; Close owns its lifetime.
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Dir
	cmd.Env = buildEnv(os.Environ(), cfg.Env)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		log.Error("stdio bridge stdout failed", "err", err)
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		log.Error("stdio bridge stderr failed", "err", err)
		return nil, err
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		log.Error("stdio bridge stdin failed", "err", err)
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		log.Error("stdio bridge start failed", "err", err)
		return nil, fmt.Errorf("start backend: %w", err)
	}
	log.Info("stdio bridge started", "pid", cmd.Process.Pid)

	readCtx := pslog.ContextWithLogger(context.Background(), log)
	conn := newProcessConn(readCtx, stdout, stderr, stdin, cfg.MaxMessageBytes)
	p := &Process{
		Client:  wire.NewClient(conn, log),
		cmd:     cmd,
		conn:    conn,
		log:     log,
		started: time.Now(),
		timeout: cfg.StopTimeout,
		waited:  make(chan error, 1),
	}
	go func() { p.waited <- cmd.Wait() }()
	return p, nil
}

// PID returns the backend process id.
func (p *Process) PID() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Close closes stdin, waits for the process to exit and kills it after the stop timeout.
func (p *Process) Close() error {
	_ = p.Client.Close()
	var err error
	select {
	case err = <-p.waited:
	case <-time.After(p.timeout):
		p.log.Warn("stdio bridge stop timeout, killing", "pid", p.PID())
		_ = p.cmd.Process.Signal(syscall.SIGKILL)
		err = <-p.waited
	}
	exitCode := 0
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
		err = nil
	}
	p.log.Info("stdio bridge finished", "exit_code", exitCode, "duration_ms", time.Since(p.started).Milliseconds())
	return err
}

// buildEnv appends extra to base, replacing entries with the same key.
func buildEnv(base, extra []string) []string {
	out := append([]string(nil), base...)
	for _, entry := range extra {
		key, _, _ := strings.Cut(entry, "=")
		out = append(filterEnv(out, key), entry)
	}
	return out
}

func filterEnv(env []string, key string) []string {
	if len(env) == 0 {
		return env
	}
	prefix := key + "="
	out := make([]string, 0, len(env))
	for _, entry := range env {
		if strings.HasPrefix(entry, prefix) {
			continue
		}
		out = append(out, entry)
	}
	return out
}
