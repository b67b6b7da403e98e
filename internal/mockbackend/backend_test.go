package mockbackend

import (
	"context"
	"strings"
	"testing"
	"time"

	"pkt.systems/cxconsole/core"
	"pkt.systems/cxconsole/internal/wire"
	"pkt.systems/cxconsole/schema"
)

func connect(t *testing.T, cfg Config) *wire.Client {
	t.Helper()
	clientSide, serverSide := wire.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = wire.Serve(ctx, serverSide, Factory(cfg, nil), nil)
	}()
	client := wire.NewClient(clientSide, nil)
	t.Cleanup(func() {
		_ = client.Close()
		cancel()
		<-done
	})
	return client
}

func nextSessionPush(t *testing.T, ctx context.Context, client *wire.Client) schema.SessionPush {
	t.Helper()
	select {
	case push, ok := <-client.SessionEvents():
		if !ok {
			t.Fatalf("session topic closed")
		}
		return push
	case <-ctx.Done():
		t.Fatalf("timed out waiting for session push")
	}
	return schema.SessionPush{}
}

func nextTerminalPush(t *testing.T, ctx context.Context, client *wire.Client) schema.TerminalPush {
	t.Helper()
	select {
	case push, ok := <-client.TerminalEvents():
		if !ok {
			t.Fatalf("terminal topic closed")
		}
		return push
	case <-ctx.Done():
		t.Fatalf("timed out waiting for terminal push")
	}
	return schema.TerminalPush{}
}

func TestSummaryScenarioStreamsOrderedEnvelopes(t *testing.T) {
	client := connect(t, Config{Scenario: "summary", Prompt: "status"})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := client.SessionStart(ctx, schema.SessionConfig{Model: "gpt-5.2-codex"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if result.SessionID != 1 || result.PID == 0 {
		t.Fatalf("unexpected start result %+v", result)
	}
	if push := nextSessionPush(t, ctx, client); push.Kind != schema.SessionPushLifecycle || push.Lifecycle.Status != schema.LifecycleRunning {
		t.Fatalf("expected running lifecycle, got %+v", push)
	}
	if push := nextSessionPush(t, ctx, client); push.Kind != schema.SessionPushStdout || !strings.Contains(push.Output.Chunk, "gpt-5.2-codex") {
		t.Fatalf("expected stdout banner, got %+v", push)
	}
	var last int64
	for {
		push := nextSessionPush(t, ctx, client)
		if push.Kind != schema.SessionPushEvent {
			t.Fatalf("unexpected push %+v", push)
		}
		if push.Envelope.SessionID != result.SessionID {
			t.Fatalf("unexpected session id %d", push.Envelope.SessionID)
		}
		if push.Envelope.Seq != last+1 {
			t.Fatalf("expected seq %d, got %d", last+1, push.Envelope.Seq)
		}
		last = push.Envelope.Seq
		if push.Envelope.Event.Kind == schema.EventKindInvalid || push.Envelope.Event.Kind == schema.EventKindUnknown {
			t.Fatalf("scenario produced undecodable event %+v", push.Envelope.Event)
		}
		if push.Envelope.Event.Type == schema.EventTurnComplete {
			break
		}
	}

	if _, err := client.SessionStart(ctx, schema.SessionConfig{}); err == nil {
		t.Fatalf("expected second start to fail while running")
	}
	if err := client.SessionStop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	push := nextSessionPush(t, ctx, client)
	if push.Kind != schema.SessionPushLifecycle || push.Lifecycle.Status != schema.LifecycleStopped {
		t.Fatalf("expected stopped lifecycle, got %+v", push)
	}
}

func TestModelsAndFailures(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := connect(t, Config{})
	models, err := client.ModelsList(ctx)
	if err != nil {
		t.Fatalf("models: %v", err)
	}
	if len(models) != len(DefaultModels()) || !models[0].IsDefault {
		t.Fatalf("unexpected models %+v", models)
	}
	servers, err := client.MCPList(ctx)
	if err != nil || len(servers) == 0 {
		t.Fatalf("mcp list: %v %+v", err, servers)
	}

	failing := connect(t, Config{FailModels: true, FailStart: true})
	if _, err := failing.ModelsList(ctx); err == nil {
		t.Fatalf("expected models failure")
	}
	if _, err := failing.SessionStart(ctx, schema.SessionConfig{}); err == nil {
		t.Fatalf("expected start failure")
	}
	if err := failing.ApprovalRespond(ctx, "nope", schema.ApprovalAccept); err == nil {
		t.Fatalf("expected approval without a session to fail")
	}
}

func TestTerminalEchoAndExit(t *testing.T) {
	client := connect(t, Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	created, err := client.TerminalCreate(ctx, "/work")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.TerminalID != "term-1" {
		t.Fatalf("unexpected terminal id %q", created.TerminalID)
	}
	if push := nextTerminalPush(t, ctx, client); push.Chunk != terminalPrompt || push.Seq != 1 {
		t.Fatalf("expected prompt, got %+v", push)
	}
	if err := client.TerminalWrite(ctx, created.TerminalID, "echo hi\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	var out strings.Builder
	for !strings.HasSuffix(out.String(), "hi\r\n"+terminalPrompt) {
		out.WriteString(nextTerminalPush(t, ctx, client).Chunk)
	}
	if err := client.TerminalResize(ctx, created.TerminalID, 120, 40); err != nil {
		t.Fatalf("resize: %v", err)
	}
	if err := client.TerminalResize(ctx, created.TerminalID, 0, 40); err == nil {
		t.Fatalf("expected invalid size to fail")
	}
	if err := client.TerminalKill(ctx, created.TerminalID); err != nil {
		t.Fatalf("kill: %v", err)
	}
	push := nextTerminalPush(t, ctx, client)
	if push.Kind != schema.TerminalPushExit || push.ExitCode == nil || *push.ExitCode != 137 {
		t.Fatalf("expected exit push, got %+v", push)
	}
	if err := client.TerminalWrite(ctx, created.TerminalID, "ls\n"); err == nil {
		t.Fatalf("expected write to killed terminal to fail")
	}
}

func TestPickScenario(t *testing.T) {
	if _, err := pickScenario("missing", 0); err == nil {
		t.Fatalf("expected unknown scenario error")
	}
	names := ScenarioNames()
	for i := range names {
		s, err := pickScenario("", uint64(i))
		if err != nil || s.name != names[i] {
			t.Fatalf("seed %d picked %q (%v)", i, s.name, err)
		}
	}
}

type nopSink struct{}

var _ core.EventSink = nopSink{}

func (nopSink) OnMessage(schema.MessageEvent)   {}
func (nopSink) OnSession(schema.SessionEvent)   {}
func (nopSink) OnStream(schema.StreamEvent)     {}
func (nopSink) OnTerminal(schema.TerminalEvent) {}
func (nopSink) OnQueue(schema.QueueEvent)       {}
func (nopSink) OnCatalog(schema.CatalogEvent)   {}
func (nopSink) OnConsole(schema.ConsoleEvent)   {}

func runEngine(t *testing.T, cfg Config) (*core.Engine, context.Context) {
	t.Helper()
	client := connect(t, cfg)
	engine, err := core.NewEngine(schema.EngineConfig{StateDir: t.TempDir()}, core.EngineDeps{Bridge: client, EventSink: nopSink{}})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	go func() { _ = engine.Run(ctx, client) }()
	return engine, ctx
}

func waitSnapshot(t *testing.T, ctx context.Context, engine *core.Engine, cond func(schema.EngineSnapshot) bool) schema.EngineSnapshot {
	t.Helper()
	for {
		snap := engine.Snapshot()
		if cond(snap) {
			return snap
		}
		select {
		case <-ctx.Done():
			t.Fatalf("condition not reached; last snapshot %+v", snap.Messages)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func agentMessages(snap schema.EngineSnapshot) []string {
	var out []string
	for _, msg := range snap.Messages {
		if msg.Kind == schema.MessageAgent {
			out = append(out, msg.Text)
		}
	}
	return out
}

func TestEngineDeduplicatesReplayedEnvelopes(t *testing.T) {
	engine, ctx := runEngine(t, Config{Scenario: "duplicate", Prompt: "status", Seed: 1, SeedSet: true})
	if _, err := engine.Start(ctx, core.StartRequest{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	snap := waitSnapshot(t, ctx, engine, func(s schema.EngineSnapshot) bool {
		return s.Session.Usage != nil && !s.Session.Busy && len(agentMessages(s)) > 0
	})
	got := agentMessages(snap)
	want := mockAgentMessage(1, "status")
	if len(got) != 1 || got[0] != want {
		t.Fatalf("expected one agent message %q, got %q", want, got)
	}
	if snap.Session.Reasoning != "Summarizing workspace state." {
		t.Fatalf("unexpected reasoning %q", snap.Session.Reasoning)
	}
}

func TestEngineApprovalScenario(t *testing.T) {
	engine, ctx := runEngine(t, Config{Scenario: "approval"})
	if _, err := engine.Start(ctx, core.StartRequest{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	snap := waitSnapshot(t, ctx, engine, func(s schema.EngineSnapshot) bool { return len(s.Approvals) == 2 })
	if snap.Approvals[0].ActionID != "approve_1" || snap.Approvals[0].Command != "bash -lc ls" {
		t.Fatalf("unexpected approvals %+v", snap.Approvals)
	}
	if err := engine.ResolveApproval(ctx, "approve_1", schema.ApprovalAccept); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := engine.ResolveApproval(ctx, "approve_2", schema.ApprovalDecline); err != nil {
		t.Fatalf("decline: %v", err)
	}
	waitSnapshot(t, ctx, engine, func(s schema.EngineSnapshot) bool {
		return len(s.Approvals) == 0 && !s.Session.Busy && len(agentMessages(s)) == 2
	})
}

func TestEngineSpawnScenarioMergesNotices(t *testing.T) {
	engine, ctx := runEngine(t, Config{Scenario: "spawn"})
	if _, err := engine.Start(ctx, core.StartRequest{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	snap := waitSnapshot(t, ctx, engine, func(s schema.EngineSnapshot) bool { return len(agentMessages(s)) == 1 })
	var spawns []schema.Message
	for _, msg := range snap.Messages {
		if msg.Kind == schema.MessageSpawn {
			spawns = append(spawns, msg)
		}
	}
	if len(spawns) != 1 {
		t.Fatalf("expected one merged spawn entry, got %d", len(spawns))
	}
	agents := spawns[0].Spawn.Agents
	if len(agents) != 2 || agents[0].Status != schema.SpawnDone || agents[1].Status != schema.SpawnDone {
		t.Fatalf("unexpected agents %+v", agents)
	}
	if agents[1].Prompt != "Run tests" {
		t.Fatalf("expected prompt to survive merge, got %q", agents[1].Prompt)
	}
}

func TestEngineFailureScenarioEndsSession(t *testing.T) {
	engine, ctx := runEngine(t, Config{Scenario: "failure"})
	if _, err := engine.Start(ctx, core.StartRequest{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	snap := waitSnapshot(t, ctx, engine, func(s schema.EngineSnapshot) bool { return s.Session.State == schema.SessionIdle })
	if snap.Session.SessionID != nil {
		t.Fatalf("expected session id cleared")
	}
	var sawError, sawStderr bool
	for _, msg := range snap.Messages {
		if msg.Kind == schema.MessageError && strings.Contains(msg.Text, "stream disconnected") {
			sawError = true
		}
	}
	for _, line := range snap.Console {
		if strings.Contains(line, "model backend unreachable") {
			sawStderr = true
		}
	}
	if !sawError || !sawStderr {
		t.Fatalf("expected error entry and stderr line, got %+v / %+v", snap.Messages, snap.Console)
	}
}
