package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"pkt.systems/cxconsole/internal/appconfig"
	"pkt.systems/cxconsole/internal/command"
	"pkt.systems/cxconsole/internal/eventbus"
	"pkt.systems/cxconsole/internal/format"
	"pkt.systems/cxconsole/schema"
	"pkt.systems/pslog"
)

func newConsoleCmd() *cobra.Command {
	var cfgPath string
	var autoStart bool
	var showConsole bool
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Run an interactive console against the configured backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			return runConsole(cmd.Context(), cfg, consoleOptions{
				in:          cmd.InOrStdin(),
				out:         cmd.OutOrStdout(),
				autoStart:   autoStart,
				showConsole: showConsole,
			})
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&autoStart, "start", false, "start a session on launch")
	cmd.Flags().BoolVar(&showConsole, "show-backend-output", false, "print raw backend stdout and stderr")
	return cmd
}

type consoleOptions struct {
	in          io.Reader
	out         io.Writer
	autoStart   bool
	showConsole bool
}

// printer serialises console output from the render loop and the command handler.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) AppendLines(lines ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, line := range lines {
		_, _ = fmt.Fprintln(p.out, format.PlainLine(line))
	}
}

func (p *printer) write(data string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = io.WriteString(p.out, data)
}

// ttyViewport reports the controlling terminal geometry.
type ttyViewport struct {
	fd int
}

func (v ttyViewport) Size() (int, int, bool) {
	if !term.IsTerminal(v.fd) {
		return 0, 0, false
	}
	cols, rows, err := term.GetSize(v.fd)
	if err != nil || cols <= 0 || rows <= 0 {
		return 0, 0, false
	}
	return cols, rows, true
}

func runConsole(ctx context.Context, cfg appconfig.Config, opts consoleOptions) error {
	log := pslog.Ctx(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	bus := eventbus.New(log)
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	engine, runDone, err := startEngine(ctx, cfg, b, bus)
	if err != nil {
		return err
	}
	viewport := ttyViewport{fd: int(os.Stdout.Fd())}
	engine.AttachViewport(viewport)

	out := &printer{out: opts.out}
	handler := command.NewHandler(engine, out, command.HandlerConfig{
		Session: cfg.EngineConfig().Session,
		TerminalSize: func() (int, int, error) {
			cols, rows, ok := viewport.Size()
			if !ok {
				return 0, 0, errors.New("not a terminal")
			}
			return cols, rows, nil
		},
	})

	render := newRenderLoop(out, opts.showConsole)
	renderDone := make(chan struct{})
	go func() {
		defer close(renderDone)
		render.run(ctx, events)
	}()

	out.AppendLines("cxconsole ready; /help lists commands")
	log.Info("console start", "transport", cfg.Bridge.Transport, "state_dir", cfg.StateDir)
	if opts.autoStart {
		if _, err := handler.Handle(ctx, "/start"); err != nil {
			out.AppendLines(fmt.Sprintf("error: %v", err))
		}
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(opts.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	err = consoleLoop(ctx, handler, out, lines, runDone)
	if stopErr := engine.Stop(context.WithoutCancel(ctx)); stopErr != nil {
		log.Debug("console stop on exit failed", "err", stopErr)
	}
	cancel()
	<-renderDone
	log.Info("console finished")
	return err
}

func consoleLoop(ctx context.Context, handler *command.Handler, out command.Output, lines <-chan string, runDone <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-runDone:
			if errors.Is(err, schema.ErrBridgeClosed) {
				out.AppendLines("error: backend connection closed")
				return err
			}
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			handled, err := handler.Handle(ctx, line)
			if errors.Is(err, command.ErrQuit) {
				return nil
			}
			if !handled {
				err = handler.SendText(ctx, line)
			}
			if err != nil {
				out.AppendLines(fmt.Sprintf("error: %v", err))
			}
		}
	}
}

// renderLoop turns engine events into console output.
type renderLoop struct {
	out         *printer
	renderer    *format.PlainRenderer
	showConsole bool
	state       schema.SessionState
	announced   map[schema.ActionID]struct{}
}

func newRenderLoop(out *printer, showConsole bool) *renderLoop {
	return &renderLoop{
		out:         out,
		renderer:    format.NewPlainRenderer(),
		showConsole: showConsole,
		state:       schema.SessionIdle,
		announced:   make(map[schema.ActionID]struct{}),
	}
}

func (r *renderLoop) run(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			r.handle(event)
		}
	}
}

func (r *renderLoop) handle(event eventbus.Event) {
	switch event.Type {
	case eventbus.EventMessage:
		lines := r.renderer.FormatMessage(event.Message.Message)
		if event.Message.Merged && len(lines) > 0 {
			lines[0] += " (updated)"
		}
		r.out.AppendLines(lines...)
	case eventbus.EventSession:
		info := event.Session.Session
		if info.State != r.state {
			r.state = info.State
			line := "status: session " + string(info.State)
			if info.LastError != "" {
				line += ": " + info.LastError
			}
			r.out.AppendLines(line)
		}
	case eventbus.EventQueue:
		r.announceQueue(event.Queue)
	case eventbus.EventTerminal:
		r.renderTerminal(event.Terminal)
	case eventbus.EventConsole:
		if r.showConsole {
			r.out.AppendLines(event.Console.Lines...)
			return
		}
		for _, line := range event.Console.Lines {
			if strings.HasPrefix(line, schema.StderrMarker) {
				r.out.AppendLines(line)
			}
		}
	}
}

// announceQueue prints each approval and input request once.
func (r *renderLoop) announceQueue(queue schema.QueueEvent) {
	live := make(map[schema.ActionID]struct{}, len(queue.Approvals)+1)
	for _, approval := range queue.Approvals {
		live[approval.ActionID] = struct{}{}
		if _, seen := r.announced[approval.ActionID]; seen {
			continue
		}
		r.out.AppendLines(r.renderer.FormatApproval(approval)...)
		r.out.AppendLines(fmt.Sprintf("answer with /approve %s accept|decline", approval.ActionID))
	}
	if input := queue.UserInput; input != nil {
		live[input.ActionID] = struct{}{}
		if _, seen := r.announced[input.ActionID]; !seen {
			r.out.AppendLines(r.renderer.FormatUserInput(*input)...)
			r.out.AppendLines(fmt.Sprintf("answer with /answer %s submit question=answer ...", input.ActionID))
		}
	}
	r.announced = live
}

func (r *renderLoop) renderTerminal(event schema.TerminalEvent) {
	switch event.Type {
	case schema.TerminalEventData:
		if event.Chunk != nil && event.TerminalID == event.ActiveTerminal {
			r.out.write(event.Chunk.Data)
		}
	case schema.TerminalEventCreated:
		r.out.AppendLines("status: terminal " + string(event.TerminalID) + " created")
	case schema.TerminalEventExited:
		line := "status: terminal " + string(event.TerminalID) + " exited"
		if event.ExitCode != nil {
			line += fmt.Sprintf(" (exit code %d)", *event.ExitCode)
		}
		r.out.AppendLines(line)
	}
}
