package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"pkt.systems/cxconsole/core"
	"pkt.systems/cxconsole/internal/format"
	"pkt.systems/cxconsole/internal/logx"
	"pkt.systems/cxconsole/internal/version"
	"pkt.systems/cxconsole/schema"
	"pkt.systems/pslog"
)

const (
	modelReasoningEffortUsage = "none|minimal|low|medium|high|xhigh"
	defaultConsoleTail        = 20
)

// ErrQuit is returned by /quit and /exit.
var ErrQuit = errors.New("quit requested")

// Engine is the part of the engine the console drives.
type Engine interface {
	Start(ctx context.Context, req core.StartRequest) (schema.SessionStartResult, error)
	Stop(ctx context.Context) error
	Restart(ctx context.Context) (schema.SessionStartResult, error)
	Snapshot() schema.EngineSnapshot
	Catalog() schema.CatalogSnapshot
	RefreshModels(ctx context.Context, notifyOnError bool) []schema.ModelEntry
	CurrentModelLabel(id schema.ModelID) string
	ResolveApproval(ctx context.Context, actionID schema.ActionID, decision schema.ApprovalDecision) error
	ResolveUserInput(ctx context.Context, actionID schema.ActionID, decision schema.UserInputDecision, answers schema.UserInputAnswers) error
	ListMCPServers(ctx context.Context) ([]schema.MCPServer, error)
	CreateTerminal(ctx context.Context, cwd string) (schema.TerminalID, error)
	WriteTerminal(ctx context.Context, id schema.TerminalID, data string) error
	ResizeTerminal(ctx context.Context, id schema.TerminalID, cols, rows int) error
	CloseTerminal(ctx context.Context, id schema.TerminalID) error
	SelectTerminal(id schema.TerminalID) error
	ConsoleTail(limit int) schema.ConsoleTail
	ClearConsole()
}

// Output receives the lines a command prints.
type Output interface {
	AppendLines(lines ...string)
}

// OutputFunc adapts a function to Output.
type OutputFunc func(lines ...string)

// AppendLines implements Output.
func (f OutputFunc) AppendLines(lines ...string) {
	f(lines...)
}

// HandlerConfig configures slash command behavior.
type HandlerConfig struct {
	// Session is the config used by /start when no session has been configured yet.
	Session schema.SessionConfig
	// TerminalSize reports the local terminal geometry for /term resize without dimensions.
	TerminalSize        func() (cols, rows int, err error)
	DisableAuditLogging bool
}

// Handler routes slash commands to engine operations.
type Handler struct {
	engine   Engine
	out      Output
	cfg      HandlerConfig
	renderer *format.PlainRenderer
	selected schema.SessionConfig
}

// NewHandler constructs a command handler.
func NewHandler(engine Engine, out Output, cfg HandlerConfig) *Handler {
	if out == nil {
		out = OutputFunc(func(...string) {})
	}
	selected := cfg.Session
	if selected.Model == "" {
		selected.Model = schema.DefaultModelID
	}
	return &Handler{
		engine:   engine,
		out:      out,
		cfg:      cfg,
		renderer: format.NewPlainRenderer(),
		selected: selected,
	}
}

// Selected returns the session config /start will use.
func (h *Handler) Selected() schema.SessionConfig {
	return h.selected
}

// Handle inspects input and executes slash commands. It reports false for
// anything that is not a slash command.
func (h *Handler) Handle(ctx context.Context, input string) (bool, error) {
	if ctx == nil {
		return false, errors.New("missing context")
	}
	cmd, ok := Parse(input)
	if !ok {
		return false, nil
	}
	log := logx.Ctx(ctx).With("input_len", len(input))
	if !h.cfg.DisableAuditLogging {
		log.Debug("audit command", "command_type", "slash", "command", strings.TrimSpace(input))
	}
	log = log.With("command", cmd.Name, "args", len(cmd.Args))
	log.Info("command slash request")
	ctx = pslog.ContextWithLogger(ctx, log)
	switch cmd.Name {
	case "":
		log.Warn("command slash rejected", "reason", "empty")
		return true, fmt.Errorf("invalid command")
	case "start":
		return true, h.handleStart(ctx, cmd)
	case "stop":
		return true, h.handleStop(ctx)
	case "restart":
		return true, h.handleRestart(ctx)
	case "status":
		return true, h.handleStatus(ctx)
	case "models":
		return true, h.handleModels(ctx, cmd)
	case "model":
		return true, h.handleModel(ctx, cmd)
	case "approvals":
		return true, h.handleApprovals(ctx)
	case "approve":
		return true, h.handleApprove(ctx, cmd)
	case "input":
		return true, h.handleInput(ctx)
	case "answer":
		return true, h.handleAnswer(ctx, cmd)
	case "term":
		return true, h.handleTerm(ctx, cmd)
	case "sessions":
		return true, h.handleSessions(ctx)
	case "mcp":
		return true, h.handleMCP(ctx)
	case "console":
		return true, h.handleConsole(ctx, cmd)
	case "version":
		h.appendLines("cxconsole " + version.CurrentWithDirty())
		return true, nil
	case "help":
		h.appendLines(helpLines()...)
		return true, nil
	case "quit", "exit":
		log.Info("command quit")
		return true, ErrQuit
	default:
		log.Warn("command slash rejected", "reason", "unknown")
		return true, fmt.Errorf("unknown command: /%s", cmd.Name)
	}
}

// SendText writes a line of plain input to the active terminal.
func (h *Handler) SendText(ctx context.Context, line string) error {
	snapshot := h.engine.Snapshot()
	if snapshot.ActiveTerminal == nil {
		return errors.New("no active terminal; use /term new")
	}
	id := *snapshot.ActiveTerminal
	if err := h.engine.WriteTerminal(ctx, id, line+"\n"); err != nil {
		logx.WithTerminal(logx.Ctx(ctx), id).Warn("command terminal input failed", "err", err)
		return err
	}
	return nil
}

func (h *Handler) handleStart(ctx context.Context, cmd Command) error {
	if len(cmd.Args) > 2 {
		return fmt.Errorf("usage: /start [model] [reasoning]")
	}
	log := logx.Ctx(ctx)
	cfg := h.selected
	if len(cmd.Args) > 0 {
		model, effort, err := h.parseModelArgs(cmd.Args)
		if err != nil {
			log.Warn("command start rejected", "err", err)
			return err
		}
		cfg.Model = model
		cfg.ReasoningEffort = effort
	}
	h.selected = cfg
	label := schema.FormatModelWithReasoning(h.engine.CurrentModelLabel(cfg.Model), cfg.ReasoningEffort)
	h.appendStatus("starting session with " + label)
	result, err := h.engine.Start(ctx, core.StartRequest{Config: &cfg})
	if err != nil {
		log.Warn("command start failed", "err", err)
		return err
	}
	h.appendStatus(fmt.Sprintf("session %d running (pid %d)", result.SessionID, result.PID))
	log.Info("command start completed", "session", int64(result.SessionID), "model", cfg.Model)
	return nil
}

func (h *Handler) handleStop(ctx context.Context) error {
	log := logx.Ctx(ctx)
	if err := h.engine.Stop(ctx); err != nil {
		log.Warn("command stop failed", "err", err)
		return err
	}
	h.appendStatus("session stopped")
	log.Info("command stop completed")
	return nil
}

func (h *Handler) handleRestart(ctx context.Context) error {
	log := logx.Ctx(ctx)
	result, err := h.engine.Restart(ctx)
	if err != nil {
		log.Warn("command restart failed", "err", err)
		return err
	}
	h.appendStatus(fmt.Sprintf("session %d running (pid %d)", result.SessionID, result.PID))
	log.Info("command restart completed", "session", int64(result.SessionID))
	return nil
}

func (h *Handler) handleStatus(ctx context.Context) error {
	snapshot := h.engine.Snapshot()
	model := snapshot.Session.Model
	effort := h.selected.ReasoningEffort
	if model == "" {
		model = h.selected.Model
	}
	label := schema.FormatModelWithReasoning(h.engine.CurrentModelLabel(model), effort)
	h.appendLines(h.renderer.FormatStatus(snapshot, label)...)
	logx.Ctx(ctx).Info("command status completed", "state", snapshot.Session.State)
	return nil
}

func (h *Handler) handleModels(ctx context.Context, cmd Command) error {
	log := logx.Ctx(ctx)
	switch {
	case len(cmd.Args) == 0:
	case len(cmd.Args) == 1 && strings.EqualFold(cmd.Args[0], "refresh"):
		h.engine.RefreshModels(ctx, true)
	default:
		return fmt.Errorf("usage: /models [refresh]")
	}
	catalog := h.engine.Catalog()
	h.appendLines(h.renderer.FormatModels(catalog, h.selected.Model)...)
	log.Info("command models completed", "count", len(catalog.Entries), "stale", catalog.Stale)
	return nil
}

func (h *Handler) handleModel(ctx context.Context, cmd Command) error {
	if len(cmd.Args) < 1 || len(cmd.Args) > 2 {
		return fmt.Errorf("usage: /model <model> [%s]", modelReasoningEffortUsage)
	}
	log := logx.Ctx(ctx)
	model, effort, err := h.parseModelArgs(cmd.Args)
	if err != nil {
		log.Warn("command model rejected", "err", err)
		return err
	}
	h.selected.Model = model
	h.selected.ReasoningEffort = effort
	label := schema.FormatModelWithReasoning(h.engine.CurrentModelLabel(model), effort)
	if !h.engine.Snapshot().Session.Connected() {
		h.appendStatus("model set to " + label + "; use /start to begin a session")
		log.Info("command model completed", "model", model, "restarted", false)
		return nil
	}
	h.appendStatus("restarting session with " + label)
	cfg := h.selected
	result, err := h.engine.Start(ctx, core.StartRequest{Config: &cfg, Force: true})
	if err != nil {
		log.Warn("command model restart failed", "err", err)
		return err
	}
	h.appendStatus(fmt.Sprintf("session %d running (pid %d)", result.SessionID, result.PID))
	log.Info("command model completed", "model", model, "restarted", true)
	return nil
}

// parseModelArgs validates "<model> [effort]" against the catalog when it has entries.
func (h *Handler) parseModelArgs(args []string) (schema.ModelID, schema.ModelReasoningEffort, error) {
	model, err := schema.NormalizeModelID(args[0])
	if err != nil {
		return "", "", err
	}
	catalog := h.engine.Catalog()
	var entry *schema.ModelEntry
	if model != schema.DefaultModelID && len(catalog.Entries) > 0 {
		for i := range catalog.Entries {
			if catalog.Entries[i].ID == model {
				entry = &catalog.Entries[i]
				break
			}
		}
		if entry == nil {
			return "", "", fmt.Errorf("%w: %s (see /models)", schema.ErrInvalidModel, model)
		}
	}
	if len(args) < 2 {
		return model, "", nil
	}
	effort, err := schema.NormalizeModelReasoningEffort(args[1])
	if err != nil {
		return "", "", fmt.Errorf("%w (use %s)", err, modelReasoningEffortUsage)
	}
	if entry != nil && len(entry.SupportedReasoningEfforts) > 0 {
		supported := false
		for _, opt := range entry.SupportedReasoningEfforts {
			if opt.ReasoningEffort == effort {
				supported = true
				break
			}
		}
		if !supported {
			return "", "", fmt.Errorf("%w: %s does not support %s", schema.ErrInvalidModelReasoningEffort, model, effort)
		}
	}
	return model, effort, nil
}

func (h *Handler) handleApprovals(ctx context.Context) error {
	approvals := h.engine.Snapshot().Approvals
	if len(approvals) == 0 {
		h.appendLines("no pending approvals")
		return nil
	}
	var lines []string
	for _, approval := range approvals {
		lines = append(lines, h.renderer.FormatApproval(approval)...)
	}
	h.appendLines(lines...)
	logx.Ctx(ctx).Info("command approvals completed", "count", len(approvals))
	return nil
}

func (h *Handler) handleApprove(ctx context.Context, cmd Command) error {
	const usage = "usage: /approve <actionId> accept|acceptForSession|decline|cancel"
	var actionID schema.ActionID
	var decisionArg string
	switch len(cmd.Args) {
	case 1:
		approvals := h.engine.Snapshot().Approvals
		if len(approvals) != 1 {
			return errors.New(usage)
		}
		actionID = approvals[0].ActionID
		decisionArg = cmd.Args[0]
	case 2:
		actionID = schema.ActionID(cmd.Args[0])
		decisionArg = cmd.Args[1]
	default:
		return errors.New(usage)
	}
	log := logx.WithAction(logx.Ctx(ctx), actionID)
	decision, err := schema.NormalizeApprovalDecision(decisionArg)
	if err != nil {
		log.Warn("command approve rejected", "err", err)
		return fmt.Errorf("%w: %s", err, decisionArg)
	}
	if err := h.engine.ResolveApproval(ctx, actionID, decision); err != nil {
		log.Warn("command approve failed", "err", err)
		return err
	}
	h.appendStatus(fmt.Sprintf("approval %s: %s", actionID, decision))
	log.Info("command approve completed", "decision", decision)
	return nil
}

func (h *Handler) handleInput(ctx context.Context) error {
	input := h.engine.Snapshot().UserInput
	if input == nil {
		h.appendLines("no pending input request")
		return nil
	}
	h.appendLines(h.renderer.FormatUserInput(*input)...)
	logx.Ctx(ctx).Info("command input completed", "questions", len(input.Questions))
	return nil
}

func (h *Handler) handleAnswer(ctx context.Context, cmd Command) error {
	if len(cmd.Args) < 2 {
		return fmt.Errorf("usage: /answer <actionId> submit|cancel [question=answer ...]")
	}
	actionID := schema.ActionID(cmd.Args[0])
	log := logx.WithAction(logx.Ctx(ctx), actionID)
	decision, err := schema.NormalizeUserInputDecision(cmd.Args[1])
	if err != nil {
		log.Warn("command answer rejected", "err", err)
		return fmt.Errorf("%w: %s", err, cmd.Args[1])
	}
	input := h.engine.Snapshot().UserInput
	if input == nil || input.ActionID != actionID {
		log.Warn("command answer rejected", "reason", "not_found")
		return schema.ErrUserInputNotFound
	}
	var answers schema.UserInputAnswers
	if decision == schema.UserInputSubmit {
		answers, err = parseAnswers(*input, cmd.Args[2:])
		if err != nil {
			log.Warn("command answer rejected", "err", err)
			return err
		}
		if err := schema.ValidateUserInputAnswers(*input, answers); err != nil {
			log.Warn("command answer rejected", "err", err)
			return err
		}
	}
	if err := h.engine.ResolveUserInput(ctx, actionID, decision, answers); err != nil {
		log.Warn("command answer failed", "err", err)
		return err
	}
	h.appendStatus(fmt.Sprintf("input %s: %s", actionID, decision))
	log.Info("command answer completed", "decision", decision, "answers", len(answers))
	return nil
}

// parseAnswers reads question=answer pairs. A number selects the option at that
// 1-based position when the question offers options.
func parseAnswers(input schema.PendingUserInput, args []string) (schema.UserInputAnswers, error) {
	questions := make(map[string]schema.UserInputQuestion, len(input.Questions))
	for _, q := range input.Questions {
		questions[q.ID] = q
	}
	answers := make(schema.UserInputAnswers, len(args))
	for _, arg := range args {
		id, value, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("invalid answer %q (want question=answer)", arg)
		}
		q, known := questions[id]
		if !known {
			return nil, fmt.Errorf("unknown question: %s", id)
		}
		if n, err := strconv.Atoi(value); err == nil && len(q.Options) > 0 {
			if n < 1 || n > len(q.Options) {
				return nil, fmt.Errorf("option %d out of range for %s", n, id)
			}
			value = q.Options[n-1].Label
		}
		answers[id] = value
	}
	return answers, nil
}

func (h *Handler) handleTerm(ctx context.Context, cmd Command) error {
	const usage = "usage: /term new [cwd] | list | show [id] | write <id> <text> | resize [id] [cols rows] | close [id] | select <id>"
	if len(cmd.Args) == 0 {
		return errors.New(usage)
	}
	log := logx.Ctx(ctx)
	sub := strings.ToLower(cmd.Args[0])
	args := cmd.Args[1:]
	switch sub {
	case "new":
		cwd := cmd.Tail(1)
		if cwd == "" {
			cwd = h.selected.Cwd
		}
		id, err := h.engine.CreateTerminal(ctx, cwd)
		if err != nil {
			log.Warn("command term new failed", "err", err)
			return err
		}
		h.appendStatus("terminal opened: " + string(id))
		logx.WithTerminal(log, id).Info("command term new completed")
		if h.cfg.TerminalSize != nil {
			if cols, rows, err := h.cfg.TerminalSize(); err == nil && cols > 0 && rows > 0 {
				if err := h.engine.ResizeTerminal(ctx, id, cols, rows); err != nil {
					logx.WithTerminal(log, id).Debug("command term initial resize failed", "err", err)
				}
			}
		}
		return nil
	case "list":
		h.appendLines(h.renderer.FormatTerminals(h.engine.Snapshot().Terminals)...)
		return nil
	case "show":
		term, err := h.lookupTerminal(args)
		if err != nil {
			return err
		}
		lines := h.renderer.FormatTerminalOutput(term)
		if len(lines) == 0 {
			lines = []string{"no output from " + string(term.ID)}
		}
		h.appendLines(lines...)
		return nil
	case "write":
		if len(args) < 2 {
			return errors.New(usage)
		}
		id := schema.TerminalID(args[0])
		data := cmd.Tail(2)
		if err := h.engine.WriteTerminal(ctx, id, data+"\n"); err != nil {
			logx.WithTerminal(log, id).Warn("command term write failed", "err", err)
			return err
		}
		return nil
	case "resize":
		return h.resizeTerminal(ctx, args)
	case "close":
		term, err := h.lookupTerminal(args)
		if err != nil {
			return err
		}
		if err := h.engine.CloseTerminal(ctx, term.ID); err != nil {
			logx.WithTerminal(log, term.ID).Warn("command term close failed", "err", err)
			return err
		}
		h.appendStatus("terminal closed: " + string(term.ID))
		logx.WithTerminal(log, term.ID).Info("command term close completed")
		return nil
	case "select":
		if len(args) != 1 {
			return errors.New(usage)
		}
		id := schema.TerminalID(args[0])
		if err := h.engine.SelectTerminal(id); err != nil {
			return err
		}
		h.appendStatus("active terminal: " + string(id))
		return nil
	default:
		log.Warn("command term rejected", "reason", "unknown", "sub", sub)
		return errors.New(usage)
	}
}

func (h *Handler) resizeTerminal(ctx context.Context, args []string) error {
	var idArgs []string
	var dims []string
	switch len(args) {
	case 0:
	case 1:
		idArgs = args
	case 2:
		dims = args
	case 3:
		idArgs, dims = args[:1], args[1:]
	default:
		return fmt.Errorf("usage: /term resize [id] [cols rows]")
	}
	term, err := h.lookupTerminal(idArgs)
	if err != nil {
		return err
	}
	var cols, rows int
	if len(dims) == 2 {
		cols, err = strconv.Atoi(dims[0])
		if err != nil {
			return fmt.Errorf("invalid cols %q", dims[0])
		}
		rows, err = strconv.Atoi(dims[1])
		if err != nil {
			return fmt.Errorf("invalid rows %q", dims[1])
		}
	} else {
		if h.cfg.TerminalSize == nil {
			return fmt.Errorf("usage: /term resize [id] <cols> <rows>")
		}
		cols, rows, err = h.cfg.TerminalSize()
		if err != nil {
			return fmt.Errorf("terminal size: %w", err)
		}
	}
	log := logx.WithTerminal(logx.Ctx(ctx), term.ID)
	if err := h.engine.ResizeTerminal(ctx, term.ID, cols, rows); err != nil {
		log.Warn("command term resize failed", "err", err)
		return err
	}
	h.appendStatus(fmt.Sprintf("terminal %s resized to %dx%d", term.ID, cols, rows))
	log.Info("command term resize completed", "cols", cols, "rows", rows)
	return nil
}

// lookupTerminal resolves an optional id argument, defaulting to the active terminal.
func (h *Handler) lookupTerminal(args []string) (schema.TerminalSnapshot, error) {
	snapshot := h.engine.Snapshot()
	var id schema.TerminalID
	switch {
	case len(args) > 0:
		id = schema.TerminalID(args[0])
	case snapshot.ActiveTerminal != nil:
		id = *snapshot.ActiveTerminal
	default:
		return schema.TerminalSnapshot{}, errors.New("no active terminal")
	}
	for _, term := range snapshot.Terminals {
		if term.ID == id {
			return term, nil
		}
	}
	return schema.TerminalSnapshot{}, fmt.Errorf("%w: %s", schema.ErrTerminalNotFound, id)
}

func (h *Handler) handleSessions(ctx context.Context) error {
	records := h.engine.Snapshot().Records
	h.appendLines(h.renderer.FormatRecords(records)...)
	logx.Ctx(ctx).Info("command sessions completed", "count", len(records))
	return nil
}

func (h *Handler) handleMCP(ctx context.Context) error {
	log := logx.Ctx(ctx)
	servers, err := h.engine.ListMCPServers(ctx)
	if err != nil {
		log.Warn("command mcp failed", "err", err)
		return err
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].Name < servers[j].Name })
	h.appendLines(h.renderer.FormatMCPServers(servers)...)
	log.Info("command mcp completed", "count", len(servers))
	return nil
}

func (h *Handler) handleConsole(ctx context.Context, cmd Command) error {
	const usage = "usage: /console [lines|all|clear]"
	log := logx.Ctx(ctx)
	limit := defaultConsoleTail
	switch {
	case len(cmd.Args) == 0:
	case len(cmd.Args) > 1:
		return errors.New(usage)
	case strings.EqualFold(cmd.Args[0], "clear"):
		h.engine.ClearConsole()
		h.appendStatus("backend output cleared")
		log.Info("command console clear completed")
		return nil
	case strings.EqualFold(cmd.Args[0], "all"):
		limit = 0
	default:
		n, err := strconv.Atoi(cmd.Args[0])
		if err != nil || n <= 0 {
			log.Warn("command console rejected", "reason", "invalid_limit")
			return errors.New(usage)
		}
		limit = n
	}
	h.appendLines(h.renderer.FormatConsole(h.engine.ConsoleTail(limit))...)
	return nil
}

func helpLines() []string {
	return []string{
		"Commands",
		"/start [model] [reasoning] - start an agent session",
		"/stop - stop the session",
		"/restart - restart the session with its last settings",
		"/status - show session status",
		"/models [refresh] - list models (refresh asks the backend)",
		"/model <model> [reasoning] - select a model (reasoning: " + modelReasoningEffortUsage + ")",
		"/approvals - list pending approvals",
		"/approve [actionId] <accept|acceptForSession|decline|cancel> - answer an approval",
		"/input - show the pending input request",
		"/answer <actionId> submit|cancel [question=answer ...] - answer an input request",
		"/term new|list|show|write|resize|close|select - manage terminals",
		"/sessions - list recent sessions",
		"/mcp - list MCP servers",
		"/console [lines|all|clear] - show or clear recent backend output",
		"/version - show version information",
		"/quit, /exit - leave the console",
		"plain text is sent to the active terminal",
	}
}

func (h *Handler) appendStatus(message string) {
	if strings.TrimSpace(message) == "" {
		return
	}
	h.appendLines("status: " + message)
}

func (h *Handler) appendLines(lines ...string) {
	if len(lines) == 0 {
		return
	}
	h.out.AppendLines(lines...)
}
