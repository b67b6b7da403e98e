// Package mockbackend is a scripted backend runtime that speaks the wire
// protocol. It exists for development and tests: sessions replay a named
// scenario of agent events and terminals echo their input.
package mockbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"pkt.systems/cxconsole/internal/wire"
	"pkt.systems/cxconsole/schema"
	"pkt.systems/pslog"
)

// Config controls the scripted behaviour.
type Config struct {
	// Scenario names the script to replay; empty picks one from the seed.
	Scenario string
	Seed     uint64
	SeedSet  bool
	// Delay is the pause between scripted pushes.
	Delay time.Duration
	// Prompt is echoed into agent messages.
	Prompt     string
	Models     []schema.ModelEntry
	FailModels bool
	FailStart  bool
}

// DefaultModels is the catalog served when Config.Models is empty.
func DefaultModels() []schema.ModelEntry {
	return []schema.ModelEntry{
		{
			ID:          "gpt-5.2-codex",
			DisplayName: "GPT-5.2 Codex",
			IsDefault:   true,
			SupportedReasoningEfforts: []schema.ReasoningEffortOption{
				{ReasoningEffort: "low"}, {ReasoningEffort: "medium"}, {ReasoningEffort: "high"}, {ReasoningEffort: "xhigh"},
			},
		},
		{
			ID:          "gpt-5.1-codex-mini",
			DisplayName: "GPT-5.1 Codex Mini",
			SupportedReasoningEfforts: []schema.ReasoningEffortOption{
				{ReasoningEffort: "medium"}, {ReasoningEffort: "high"},
			},
		},
	}
}

// Factory returns a handler factory. Every connection gets its own backend.
func Factory(cfg Config, logger pslog.Logger) wire.HandlerFactory {
	return func(pub wire.Publisher) wire.Handler {
		return New(cfg, pub, logger)
	}
}

// Backend is the state of one scripted backend connection.
type Backend struct {
	cfg Config
	pub wire.Publisher
	log pslog.Logger

	mu          sync.Mutex
	sessions    int
	session     *mockSession
	terminals   map[schema.TerminalID]*mockTerminal
	termCount   int
	approvals   map[schema.ActionID]string
	userInput   schema.ActionID
	scriptsDone sync.WaitGroup
}

type mockSession struct {
	id     schema.SessionID
	pid    int
	seq    int64
	cancel context.CancelFunc
	done   chan struct{}
}

type mockTerminal struct {
	id   schema.TerminalID
	seq  int64
	cwd  string
	cols int
	rows int
}

// New builds a backend publishing through pub.
func New(cfg Config, pub wire.Publisher, logger pslog.Logger) *Backend {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	if !cfg.SeedSet {
		cfg.Seed = hashSeed(cfg.Prompt, cfg.Scenario)
	}
	return &Backend{
		cfg:       cfg,
		pub:       pub,
		log:       logger,
		terminals: make(map[schema.TerminalID]*mockTerminal),
		approvals: make(map[schema.ActionID]string),
	}
}

// Handle answers one request.
func (b *Backend) Handle(ctx context.Context, method string, params json.RawMessage) (any, error) {
	b.log.Debug("mock backend request", "method", method)
	switch method {
	case wire.MethodSessionStart:
		var cfg schema.SessionConfig
		if err := decodeParams(params, &cfg); err != nil {
			return nil, err
		}
		return b.startSession(cfg)
	case wire.MethodSessionStop:
		return nil, b.stopSession(ctx)
	case wire.MethodModelsList:
		if b.cfg.FailModels {
			return nil, errors.New("model catalog unavailable")
		}
		models := b.cfg.Models
		if len(models) == 0 {
			models = DefaultModels()
		}
		return schema.ModelsListResult{Models: models}, nil
	case wire.MethodMCPList:
		return schema.MCPListResult{Servers: []schema.MCPServer{
			{Name: "filesystem", Status: "running", Tools: []string{"read_file", "write_file"}},
			{Name: "browser", Status: "stopped"},
		}}, nil
	case wire.MethodApprovalRespond:
		var req schema.ApprovalResponse
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		return nil, b.respondApproval(ctx, req)
	case wire.MethodUserInputRespond:
		var req schema.UserInputResponse
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		return nil, b.respondUserInput(ctx, req)
	case wire.MethodTerminalCreate:
		var req schema.TerminalCreateRequest
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		return b.createTerminal(ctx, req)
	case wire.MethodTerminalWrite:
		var req schema.TerminalWriteRequest
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		return nil, b.writeTerminal(ctx, req)
	case wire.MethodTerminalResize:
		var req schema.TerminalResizeRequest
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		return nil, b.resizeTerminal(ctx, req)
	case wire.MethodTerminalKill:
		var req schema.TerminalKillRequest
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		return nil, b.killTerminal(ctx, req.TerminalID)
	default:
		return nil, fmt.Errorf("unsupported method: %s", method)
	}
}

// Close stops any running script.
func (b *Backend) Close() {
	b.mu.Lock()
	session := b.session
	b.session = nil
	b.mu.Unlock()
	if session != nil {
		session.cancel()
	}
	b.scriptsDone.Wait()
}

func decodeParams(params json.RawMessage, out any) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, out); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

func (b *Backend) startSession(cfg schema.SessionConfig) (schema.SessionStartResult, error) {
	if b.cfg.FailStart {
		return schema.SessionStartResult{}, errors.New("failed to spawn agent process")
	}
	script, err := pickScenario(b.cfg.Scenario, b.cfg.Seed)
	if err != nil {
		return schema.SessionStartResult{}, err
	}
	b.mu.Lock()
	if b.session != nil {
		b.mu.Unlock()
		return schema.SessionStartResult{}, errors.New("session already running")
	}
	b.sessions++
	ctx, cancel := context.WithCancel(context.Background())
	session := &mockSession{
		id:     schema.SessionID(int64(b.sessions)),
		pid:    4000 + b.sessions,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	b.session = session
	b.scriptsDone.Add(1)
	b.mu.Unlock()

	b.log.Info("mock backend session started", "session_id", session.id, "scenario", script.name, "model", cfg.Model)
	steps := script.steps(b.cfg.Seed, b.cfg.Prompt)
	go b.runScript(ctx, session, cfg, steps)
	return schema.SessionStartResult{SessionID: session.id, PID: session.pid}, nil
}

func (b *Backend) runScript(ctx context.Context, session *mockSession, cfg schema.SessionConfig, steps []step) {
	defer b.scriptsDone.Done()
	defer close(session.done)
	id := session.id
	pid := session.pid
	if err := b.publishSession(ctx, map[string]any{"lifecycle": schema.Lifecycle{Status: schema.LifecycleRunning, SessionID: &id, PID: &pid}}); err != nil {
		return
	}
	banner := fmt.Sprintf("mock agent ready (model %s, cwd %s)\n", displayModel(cfg.Model), displayCwd(cfg.Cwd))
	if err := b.publishSession(ctx, map[string]any{"stdout": schema.OutputChunk{SessionID: id, Chunk: banner}}); err != nil {
		return
	}
	for _, s := range steps {
		if !b.pause(ctx) {
			return
		}
		switch {
		case s.event != nil:
			b.trackRequest(s.event)
			if err := b.publishEvent(ctx, session, s.event, s.repeatSeq); err != nil {
				return
			}
		case s.stdout != "":
			if err := b.publishSession(ctx, map[string]any{"stdout": schema.OutputChunk{SessionID: id, Chunk: s.stdout}}); err != nil {
				return
			}
		case s.stderr != "":
			if err := b.publishSession(ctx, map[string]any{"stderr": schema.OutputChunk{SessionID: id, Chunk: s.stderr}}); err != nil {
				return
			}
		case s.exitCode != nil:
			b.mu.Lock()
			if b.session == session {
				b.session = nil
			}
			b.mu.Unlock()
			_ = b.publishSession(ctx, map[string]any{"lifecycle": schema.Lifecycle{Status: schema.LifecycleExited, SessionID: &id, ExitCode: s.exitCode}})
			return
		}
	}
}

func (b *Backend) pause(ctx context.Context) bool {
	if b.cfg.Delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(b.cfg.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (b *Backend) trackRequest(event map[string]any) {
	actionID, _ := event["actionId"].(string)
	if actionID == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	switch event["type"] {
	case string(schema.EventExecApprovalRequest), string(schema.EventPatchApprovalRequest):
		reason, _ := event["reason"].(string)
		b.approvals[schema.ActionID(actionID)] = reason
	case string(schema.EventRequestUserInput):
		b.userInput = schema.ActionID(actionID)
	}
}

func (b *Backend) stopSession(ctx context.Context) error {
	b.mu.Lock()
	session := b.session
	b.session = nil
	clear(b.approvals)
	b.userInput = ""
	b.mu.Unlock()
	if session == nil {
		return nil
	}
	session.cancel()
	select {
	case <-session.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	id := session.id
	code := 0
	b.log.Info("mock backend session stopped", "session_id", id)
	return b.publishSession(ctx, map[string]any{"lifecycle": schema.Lifecycle{Status: schema.LifecycleStopped, SessionID: &id, ExitCode: &code}})
}

func (b *Backend) activeSession() (*mockSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return nil, errors.New("no active session")
	}
	return b.session, nil
}

func (b *Backend) respondApproval(ctx context.Context, req schema.ApprovalResponse) error {
	session, err := b.activeSession()
	if err != nil {
		return err
	}
	b.mu.Lock()
	reason, ok := b.approvals[req.ActionID]
	if ok {
		delete(b.approvals, req.ActionID)
	}
	remaining := len(b.approvals)
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown approval: %s", req.ActionID)
	}
	var text string
	switch req.Decision {
	case schema.ApprovalAccept, schema.ApprovalAcceptForSession:
		text = fmt.Sprintf("Approved: %s", reason)
	case schema.ApprovalDecline, schema.ApprovalCancel:
		text = fmt.Sprintf("Skipped: %s", reason)
	default:
		return fmt.Errorf("unsupported decision: %s", req.Decision)
	}
	if err := b.publishEvent(ctx, session, map[string]any{"type": "agent_message", "itemId": "approval_" + string(req.ActionID), "message": text}, false); err != nil {
		return err
	}
	if remaining == 0 {
		return b.publishEvent(ctx, session, map[string]any{"type": "turn_complete", "turnId": "turn_1"}, false)
	}
	return nil
}

func (b *Backend) respondUserInput(ctx context.Context, req schema.UserInputResponse) error {
	session, err := b.activeSession()
	if err != nil {
		return err
	}
	b.mu.Lock()
	pending := b.userInput
	if pending == req.ActionID {
		b.userInput = ""
	}
	b.mu.Unlock()
	if pending == "" || pending != req.ActionID {
		return fmt.Errorf("unknown user input request: %s", req.ActionID)
	}
	text := "Input request cancelled."
	if req.Decision == schema.UserInputSubmit {
		keys := make([]string, 0, len(req.Answers))
		for key := range req.Answers {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, key := range keys {
			parts = append(parts, key+"="+req.Answers[key])
		}
		text = "Thanks, continuing with " + strings.Join(parts, ", ") + "."
	}
	if err := b.publishEvent(ctx, session, map[string]any{"type": "agent_message", "itemId": "input_reply", "message": text}, false); err != nil {
		return err
	}
	return b.publishEvent(ctx, session, map[string]any{"type": "turn_complete", "turnId": "turn_1"}, false)
}

func (b *Backend) publishEvent(ctx context.Context, session *mockSession, event map[string]any, repeat bool) error {
	b.mu.Lock()
	if !repeat || session.seq == 0 {
		session.seq++
	}
	seq := session.seq
	b.mu.Unlock()
	return b.publishSession(ctx, map[string]any{"event": map[string]any{
		"sessionId": session.id,
		"seq":       seq,
		"event":     event,
	}})
}

func (b *Backend) publishSession(ctx context.Context, payload any) error {
	if err := b.pub.Publish(ctx, schema.TopicSession, payload); err != nil {
		b.log.Debug("mock backend publish failed", "topic", schema.TopicSession, "err", err)
		return err
	}
	return nil
}

func (b *Backend) publishTerminal(ctx context.Context, payload any) error {
	if err := b.pub.Publish(ctx, schema.TopicTerminal, payload); err != nil {
		b.log.Debug("mock backend publish failed", "topic", schema.TopicTerminal, "err", err)
		return err
	}
	return nil
}

func displayModel(model schema.ModelID) string {
	if model == "" {
		return string(schema.DefaultModelID)
	}
	return string(model)
}

func displayCwd(cwd string) string {
	if cwd == "" {
		return "."
	}
	return cwd
}
