package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"pkt.systems/cxconsole/schema"
)

type fakeBridge struct {
	mu sync.Mutex

	startCalls int
	// startFn receives the 1-based call number.
	startFn  func(ctx context.Context, call int, cfg schema.SessionConfig) (schema.SessionStartResult, error)
	stopErr  error
	stops    int
	configs  []schema.SessionConfig
	models   []schema.ModelEntry
	modelsFn func() ([]schema.ModelEntry, error)
	listed   int
	mcp      []schema.MCPServer

	approvalFn  func(ctx context.Context, id schema.ActionID, decision schema.ApprovalDecision) error
	approvals   []schema.ApprovalDecision
	userInputs  []schema.UserInputResponse
	userInputFn func() error

	terminalSeq int
	createErr   error
	writes      []string
	writeErr    error
	resizes     []string
	kills       []schema.TerminalID
	killErr     error
}

func (b *fakeBridge) SessionStart(ctx context.Context, cfg schema.SessionConfig) (schema.SessionStartResult, error) {
	b.mu.Lock()
	b.startCalls++
	call := b.startCalls
	b.configs = append(b.configs, cfg)
	fn := b.startFn
	b.mu.Unlock()
	if fn != nil {
		return fn(ctx, call, cfg)
	}
	return schema.SessionStartResult{SessionID: 7, PID: 4242}, nil
}

func (b *fakeBridge) SessionStop(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stops++
	return b.stopErr
}

func (b *fakeBridge) ModelsList(context.Context) ([]schema.ModelEntry, error) {
	b.mu.Lock()
	b.listed++
	fn := b.modelsFn
	models := b.models
	b.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return models, nil
}

func (b *fakeBridge) MCPList(context.Context) ([]schema.MCPServer, error) {
	return b.mcp, nil
}

func (b *fakeBridge) ApprovalRespond(ctx context.Context, id schema.ActionID, decision schema.ApprovalDecision) error {
	b.mu.Lock()
	b.approvals = append(b.approvals, decision)
	fn := b.approvalFn
	b.mu.Unlock()
	if fn != nil {
		return fn(ctx, id, decision)
	}
	return nil
}

func (b *fakeBridge) UserInputRespond(_ context.Context, id schema.ActionID, decision schema.UserInputDecision, answers schema.UserInputAnswers) error {
	b.mu.Lock()
	b.userInputs = append(b.userInputs, schema.UserInputResponse{ActionID: id, Decision: decision, Answers: answers})
	fn := b.userInputFn
	b.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return nil
}

func (b *fakeBridge) TerminalCreate(context.Context, string) (schema.TerminalCreateResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.createErr != nil {
		return schema.TerminalCreateResult{}, b.createErr
	}
	b.terminalSeq++
	return schema.TerminalCreateResult{TerminalID: schema.TerminalID(fmt.Sprintf("t%d", b.terminalSeq))}, nil
}

func (b *fakeBridge) TerminalWrite(_ context.Context, id schema.TerminalID, data string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes = append(b.writes, string(id)+":"+data)
	return b.writeErr
}

func (b *fakeBridge) TerminalResize(_ context.Context, id schema.TerminalID, cols, rows int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resizes = append(b.resizes, fmt.Sprintf("%s:%dx%d", id, cols, rows))
	return nil
}

func (b *fakeBridge) TerminalKill(_ context.Context, id schema.TerminalID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.kills = append(b.kills, id)
	return b.killErr
}

type recordingSink struct {
	mu        sync.Mutex
	messages  []schema.MessageEvent
	sessions  []schema.SessionEvent
	streams   []schema.StreamEvent
	terminals []schema.TerminalEvent
	queues    []schema.QueueEvent
	catalogs  []schema.CatalogEvent
	console   []schema.ConsoleEvent
}

func (s *recordingSink) OnMessage(event schema.MessageEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, event)
}

func (s *recordingSink) OnSession(event schema.SessionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, event)
}

func (s *recordingSink) OnStream(event schema.StreamEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams = append(s.streams, event)
}

func (s *recordingSink) OnTerminal(event schema.TerminalEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminals = append(s.terminals, event)
}

func (s *recordingSink) OnQueue(event schema.QueueEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues = append(s.queues, event)
}

func (s *recordingSink) OnCatalog(event schema.CatalogEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalogs = append(s.catalogs, event)
}

func (s *recordingSink) OnConsole(event schema.ConsoleEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.console = append(s.console, event)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixedViewport struct {
	cols, rows int
}

func (v fixedViewport) Size() (int, int, bool) {
	return v.cols, v.rows, v.cols > 0 && v.rows > 0
}

type testEngine struct {
	*Engine
	bridge   *fakeBridge
	sink     *recordingSink
	clock    *fakeClock
	stateDir string
}

func newTestEngine(t *testing.T, bridge *fakeBridge) *testEngine {
	t.Helper()
	return newTestEngineAt(t, bridge, t.TempDir())
}

func newTestEngineAt(t *testing.T, bridge *fakeBridge, stateDir string) *testEngine {
	t.Helper()
	if bridge == nil {
		bridge = &fakeBridge{}
	}
	sink := &recordingSink{}
	clock := newFakeClock()
	engine, err := NewEngine(schema.EngineConfig{StateDir: stateDir}, EngineDeps{
		Bridge:    bridge,
		EventSink: sink,
		Now:       clock.Now,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return &testEngine{Engine: engine, bridge: bridge, sink: sink, clock: clock, stateDir: stateDir}
}

func (e *testEngine) mustStart(t *testing.T) schema.SessionStartResult {
	t.Helper()
	result, err := e.Start(context.Background(), StartRequest{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return result
}

func envelope(sessionID schema.SessionID, seq int64, event string) schema.EventEnvelope {
	return schema.EventEnvelope{SessionID: sessionID, Seq: seq, Event: schema.DecodeEvent(json.RawMessage(event))}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func lastMessage(t *testing.T, snapshot schema.EngineSnapshot) schema.Message {
	t.Helper()
	if len(snapshot.Messages) == 0 {
		t.Fatalf("expected at least one message")
	}
	return snapshot.Messages[len(snapshot.Messages)-1]
}
