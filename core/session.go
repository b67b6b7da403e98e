package core

import (
	"context"
	"fmt"
	"strings"

	"pkt.systems/cxconsole/internal/logx"
	"pkt.systems/cxconsole/internal/persist"
	"pkt.systems/cxconsole/schema"
)

// sessionScope is the reconciliation state owned by one session identity.
// It is replaced as a unit; nothing in it outlives the session.
type sessionScope struct {
	id      schema.SessionID
	pid     int
	seen    map[int64]struct{}
	streams map[schema.CallID]*strings.Builder
	kinds   map[schema.CallID]schema.StreamKind
	// spawnAnchor is the transcript id of this session's newest spawn entry.
	spawnAnchor uint64
}

func newSessionScope(id schema.SessionID, pid int) *sessionScope {
	return &sessionScope{
		id:      id,
		pid:     pid,
		seen:    make(map[int64]struct{}),
		streams: make(map[schema.CallID]*strings.Builder),
		kinds:   make(map[schema.CallID]schema.StreamKind),
	}
}

type sessionController struct {
	state  schema.SessionState
	scope  *sessionScope
	config schema.SessionConfig
	// generation changes on every start, stop and teardown; in-flight results
	// compare against it before touching state.
	generation uint64
	lastError  string
	busy       bool
	usage      *schema.TokenUsage
	reasoning  string
	pending    []schema.SessionPush
	records    *sessionRecords
}

func (c *sessionController) info() schema.SessionInfo {
	info := schema.SessionInfo{
		State:     c.state,
		Model:     c.config.Model,
		LastError: c.lastError,
		Busy:      c.busy,
		Reasoning: c.reasoning,
	}
	if c.scope != nil && (c.state == schema.SessionRunning || c.state == schema.SessionStopping) {
		id := c.scope.id
		info.SessionID = &id
		info.PID = c.scope.pid
	}
	if c.usage != nil {
		usage := *c.usage
		info.Usage = &usage
	}
	return info
}

// StartRequest configures Engine.Start. A nil Config reuses the last session config.
type StartRequest struct {
	Config *schema.SessionConfig
	Force  bool
}

// Start starts the agent session. A running session is left alone unless Force is set,
// in which case it is stopped first and stop failures are ignored.
// Backend failures move the session to the error state and are returned as-is.
func (e *Engine) Start(ctx context.Context, req StartRequest) (schema.SessionStartResult, error) {
	if req.Force {
		_ = e.stop(ctx, true)
	}
	e.mu.Lock()
	var out outbox
	switch e.session.state {
	case schema.SessionRunning:
		result := schema.SessionStartResult{SessionID: e.session.scope.id, PID: e.session.scope.pid}
		e.mu.Unlock()
		return result, nil
	case schema.SessionStarting, schema.SessionStopping:
		e.mu.Unlock()
		return schema.SessionStartResult{}, schema.ErrSessionBusy
	}
	cfg := e.session.config
	if req.Config != nil {
		cfg = mergeSessionConfig(e.cfg.Session, *req.Config)
	}
	e.session.config = cfg
	e.session.generation++
	generation := e.session.generation
	e.session.state = schema.SessionStarting
	e.session.lastError = ""
	e.session.pending = nil
	out.session(e.session.info())
	e.mu.Unlock()
	out.flush(e.sink)

	e.logger.Info("engine session start", "model", cfg.Model, "cwd", cfg.Cwd)
	callCtx, cancel := e.requestContext(ctx)
	result, err := e.bridge.SessionStart(callCtx, cfg)
	cancel()

	e.mu.Lock()
	if e.session.generation != generation {
		e.mu.Unlock()
		e.logger.Debug("engine session start superseded", "err", err)
		return schema.SessionStartResult{}, schema.ErrStaleResponse
	}
	if err != nil {
		e.session.state = schema.SessionError
		e.session.lastError = err.Error()
		e.session.pending = nil
		e.appendMessageLocked(&out, schema.MessageError, fmt.Sprintf("session start failed: %v", err))
		out.session(e.session.info())
		e.mu.Unlock()
		out.flush(e.sink)
		e.logger.Warn("engine session start failed", "err", err)
		return schema.SessionStartResult{}, err
	}
	e.session.scope = newSessionScope(result.SessionID, result.PID)
	e.session.state = schema.SessionRunning
	e.session.busy = false
	e.session.usage = nil
	e.session.reasoning = ""
	e.session.records.Activate(schema.SessionRecord{
		ID:        newRecordID(),
		SessionID: result.SessionID,
		Name:      schema.FormatModelWithReasoning(e.catalog.label(cfg.Model), cfg.ReasoningEffort),
		Model:     cfg.Model,
		StartedAt: e.now(),
		Active:    true,
	})
	e.saveRecordsLocked()
	out.session(e.session.info())
	pending := e.session.pending
	e.session.pending = nil
	for _, push := range pending {
		e.applyHeldLocked(&out, push)
	}
	e.mu.Unlock()
	out.flush(e.sink)
	logx.WithSession(e.logger, result.SessionID).Info("engine session start ok", "pid", result.PID, "replayed", len(pending))
	return result, nil
}

// Stop stops the active session. The session always ends idle; a backend failure is
// reported as a system message and returned.
func (e *Engine) Stop(ctx context.Context) error {
	return e.stop(ctx, false)
}

// Restart force-starts a new session with the last config. It requires an active session.
func (e *Engine) Restart(ctx context.Context) (schema.SessionStartResult, error) {
	e.mu.Lock()
	active := e.session.scope != nil || e.session.state == schema.SessionStarting
	cfg := e.session.config
	e.mu.Unlock()
	if !active {
		return schema.SessionStartResult{}, schema.ErrNoSession
	}
	return e.Start(ctx, StartRequest{Config: &cfg, Force: true})
}

func (e *Engine) stop(ctx context.Context, quiet bool) error {
	e.mu.Lock()
	var out outbox
	switch e.session.state {
	case schema.SessionIdle:
		e.mu.Unlock()
		return nil
	case schema.SessionError:
		e.session.state = schema.SessionIdle
		e.session.lastError = ""
		out.session(e.session.info())
		e.mu.Unlock()
		out.flush(e.sink)
		return nil
	case schema.SessionStopping:
		e.mu.Unlock()
		return schema.ErrSessionBusy
	case schema.SessionStarting:
		// The in-flight start sees a new generation and discards its result.
		e.teardownLocked(&out, schema.SessionIdle, "")
		e.mu.Unlock()
		out.flush(e.sink)
		callCtx, cancel := e.requestContext(ctx)
		if err := e.bridge.SessionStop(callCtx); err != nil {
			e.logger.Debug("engine session stop during start failed", "err", err)
		}
		cancel()
		return nil
	}
	id := e.session.scope.id
	e.session.state = schema.SessionStopping
	e.session.generation++
	generation := e.session.generation
	out.session(e.session.info())
	e.mu.Unlock()
	out.flush(e.sink)

	log := logx.WithSession(e.logger, id)
	callCtx, cancel := e.requestContext(ctx)
	err := e.bridge.SessionStop(callCtx)
	cancel()

	e.mu.Lock()
	if e.session.generation == generation {
		e.teardownLocked(&out, schema.SessionIdle, "")
		if err != nil && !quiet {
			e.appendMessageLocked(&out, schema.MessageSystem, fmt.Sprintf("session stop failed: %v", err))
		}
	}
	e.mu.Unlock()
	out.flush(e.sink)
	if err != nil {
		log.Warn("engine session stop failed", "err", err, "quiet", quiet)
		if quiet {
			return nil
		}
		return err
	}
	log.Info("engine session stop ok")
	return nil
}

// teardownLocked drops the session scope and everything scoped to it, then moves to state.
func (e *Engine) teardownLocked(out *outbox, state schema.SessionState, message string) {
	if scope := e.session.scope; scope != nil {
		for id, text := range scope.streams {
			out.stream(schema.StreamEvent{Kind: scope.kinds[id], CallID: id, Text: text.String(), Done: true})
		}
		if e.session.records.Deactivate(scope.id) {
			e.saveRecordsLocked()
		}
	}
	e.session.scope = nil
	e.session.pending = nil
	e.session.generation++
	e.session.state = state
	e.session.lastError = message
	e.session.busy = false
	e.session.reasoning = ""
	if e.queues.Clear() {
		out.queue(e.queues.Event())
	}
	out.session(e.session.info())
}

func (e *Engine) saveRecordsLocked() {
	if e.store == nil {
		return
	}
	if err := e.store.SaveSessions(persist.SessionsSnapshot{Records: e.session.records.Entries()}); err != nil {
		e.logger.Warn("engine sessions save failed", "err", err)
	}
}

// mergeSessionConfig fills unset fields of cfg from defaults.
func mergeSessionConfig(defaults, cfg schema.SessionConfig) schema.SessionConfig {
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.ReasoningEffort == "" {
		cfg.ReasoningEffort = defaults.ReasoningEffort
	}
	if cfg.Cwd == "" {
		cfg.Cwd = defaults.Cwd
	}
	if cfg.ApprovalPolicy == "" {
		cfg.ApprovalPolicy = defaults.ApprovalPolicy
	}
	if cfg.Sandbox == "" {
		cfg.Sandbox = defaults.Sandbox
	}
	return cfg
}
