package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"pkt.systems/cxconsole/core"
	"pkt.systems/cxconsole/internal/appconfig"
	"pkt.systems/cxconsole/internal/command"
	"pkt.systems/cxconsole/internal/eventbus"
	"pkt.systems/cxconsole/internal/mockbackend"
	"pkt.systems/cxconsole/internal/wire"
	"pkt.systems/cxconsole/schema"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitForOutput(t *testing.T, buf *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(buf.String(), want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q in output:\n%s", want, buf.String())
}

func TestConsoleLoopAgainstMockBackend(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clientSide, serverSide := wire.Pipe()
	go func() {
		_ = wire.Serve(ctx, serverSide, mockbackend.Factory(mockbackend.Config{Scenario: "summary", Seed: 1, SeedSet: true, Prompt: "status"}, nil), nil)
	}()
	client := wire.NewClient(clientSide, nil)
	defer func() { _ = client.Close() }()

	cfg, err := appconfig.DefaultConfig()
	if err != nil {
		t.Fatalf("DefaultConfig: %v", err)
	}
	cfg.StateDir = t.TempDir()

	bus := eventbus.New(nil)
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()
	engine, runDone, err := startEngine(ctx, cfg, client, bus)
	if err != nil {
		t.Fatalf("startEngine: %v", err)
	}

	buf := &syncBuffer{}
	out := &printer{out: buf}
	go newRenderLoop(out, false).run(ctx, events)
	handler := command.NewHandler(engine, out, command.HandlerConfig{Session: cfg.EngineConfig().Session})

	lines := make(chan string)
	loopDone := make(chan error, 1)
	go func() { loopDone <- consoleLoop(ctx, handler, out, lines, runDone) }()

	lines <- "/start"
	waitForOutput(t, buf, "status: session 1 running (pid 4001)")
	waitForOutput(t, buf, "Quick summary of the workspace. You asked about: status")

	lines <- "/term new"
	waitForOutput(t, buf, "terminal opened: term-1")
	lines <- "echo hi"
	waitForOutput(t, buf, "hi\r\n")

	lines <- "/bogus"
	waitForOutput(t, buf, "error: unknown command: /bogus")

	lines <- "/quit"
	select {
	case err := <-loopDone:
		if err != nil {
			t.Fatalf("consoleLoop: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("console loop did not exit")
	}
	if engine.Session().State != schema.SessionRunning {
		t.Fatalf("expected session still running until shutdown, got %s", engine.Session().State)
	}
}

func TestRenderLoopAnnouncesQueueOnce(t *testing.T) {
	buf := &syncBuffer{}
	render := newRenderLoop(&printer{out: buf}, false)
	queue := schema.QueueEvent{Approvals: []schema.PendingApproval{{ActionID: "a1", Kind: schema.ApprovalCommandExec, Command: "ls"}}}
	render.handle(eventbus.Event{Type: eventbus.EventQueue, Queue: queue})
	render.handle(eventbus.Event{Type: eventbus.EventQueue, Queue: queue})
	if got := strings.Count(buf.String(), "approval a1"); got != 1 {
		t.Fatalf("expected one announcement, got %d in\n%s", got, buf.String())
	}
	render.handle(eventbus.Event{Type: eventbus.EventQueue})
	render.handle(eventbus.Event{Type: eventbus.EventQueue, Queue: queue})
	if got := strings.Count(buf.String(), "approval a1"); got != 2 {
		t.Fatalf("expected re-announcement after clear, got %d", got)
	}
}

func TestRenderLoopFiltersConsoleLines(t *testing.T) {
	buf := &syncBuffer{}
	render := newRenderLoop(&printer{out: buf}, false)
	render.handle(eventbus.Event{Type: eventbus.EventConsole, Console: schema.ConsoleEvent{Lines: []string{"banner", schema.StderrMarker + "oops"}}})
	if got := buf.String(); got != "stderr: oops\n" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestOfflineCatalogReadsPersistedState(t *testing.T) {
	cfg, err := appconfig.DefaultConfig()
	if err != nil {
		t.Fatalf("DefaultConfig: %v", err)
	}
	cfg.StateDir = t.TempDir()
	catalog, err := loadCatalog(context.Background(), cfg, false)
	if err != nil {
		t.Fatalf("loadCatalog: %v", err)
	}
	if len(catalog.Entries) != 0 || !catalog.CachedAt.IsZero() {
		t.Fatalf("expected empty catalog, got %+v", catalog)
	}
}

var _ core.Bridge = offlineBridge{}
