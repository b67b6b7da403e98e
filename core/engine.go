package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"pkt.systems/cxconsole/internal/persist"
	"pkt.systems/cxconsole/schema"
	"pkt.systems/pslog"
)

// Engine owns the active agent session, reconciles the backend push stream,
// multiplexes terminals, caches the model catalog and queues pending decisions.
//
// All state lives behind mu. Bridge calls run without the lock held; their results
// are re-applied only when the identity they were issued against is still current.
type Engine struct {
	cfg    schema.EngineConfig
	bridge Bridge
	sink   EventSink
	store  *persist.Store
	logger pslog.Logger
	now    func() time.Time

	mu         sync.Mutex
	session    sessionController
	transcript transcript
	queues     decisionQueues
	terminals  *terminalMux
	catalog    modelCatalog
	console    *buffer[string]
	viewport   Viewport

	refreshes singleflight.Group
}

// NewEngine constructs an engine and loads persisted caches from the state directory.
func NewEngine(cfg schema.EngineConfig, deps EngineDeps) (*Engine, error) {
	normalized, err := schema.NormalizeEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = normalized
	if deps.Bridge == nil {
		return nil, errors.New("bridge is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	store, err := persist.NewStoreWithLogger(cfg.StateDir, logger)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:       cfg,
		bridge:    deps.Bridge,
		sink:      deps.EventSink,
		store:     store,
		logger:    logger,
		now:       now,
		session:   sessionController{state: schema.SessionIdle, config: cfg.Session},
		terminals: newTerminalMux(cfg.TerminalMaxChunks, cfg.TerminalPendingChunks),
		catalog:   modelCatalog{staleAfter: cfg.CatalogStaleAfter},
		console:   newBuffer[string](cfg.ConsoleMaxLines),
	}
	e.session.records = newSessionRecords(cfg.MaxSessionRecords)
	if snapshot, ok, err := store.LoadSessions(); err != nil {
		logger.Warn("engine sessions load failed", "err", err)
	} else if ok {
		e.session.records = newSessionRecordsFromPersisted(snapshot.Records, cfg.MaxSessionRecords)
	}
	if snapshot, ok, err := store.LoadCatalog(); err != nil {
		logger.Warn("engine catalog load failed", "err", err)
	} else if ok {
		e.catalog.entries = schema.CloneModelEntries(snapshot.Entries)
		e.catalog.cachedAt = snapshot.CachedAt
	}
	return e, nil
}

// Run consumes both push topics until ctx ends or the source closes. A closed source
// moves an active session to the error state and returns ErrBridgeClosed.
func (e *Engine) Run(ctx context.Context, source PushSource) error {
	sessions := source.SessionEvents()
	terminals := source.TerminalEvents()
	for sessions != nil || terminals != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case push, ok := <-sessions:
			if !ok {
				sessions = nil
				continue
			}
			e.ApplySessionPush(push)
		case push, ok := <-terminals:
			if !ok {
				terminals = nil
				continue
			}
			e.ApplyTerminalPush(push)
		}
	}
	e.bridgeClosed()
	return schema.ErrBridgeClosed
}

func (e *Engine) bridgeClosed() {
	e.mu.Lock()
	var out outbox
	switch e.session.state {
	case schema.SessionStarting, schema.SessionRunning, schema.SessionStopping:
		e.teardownLocked(&out, schema.SessionError, schema.ErrBridgeClosed.Error())
		e.appendMessageLocked(&out, schema.MessageError, "backend connection closed")
	}
	e.mu.Unlock()
	out.flush(e.sink)
	e.logger.Warn("engine bridge closed")
}

// AttachViewport sets the widget geometry used to size newly created terminals.
func (e *Engine) AttachViewport(viewport Viewport) {
	e.mu.Lock()
	e.viewport = viewport
	e.mu.Unlock()
}

// Session returns the current session lifecycle view.
func (e *Engine) Session() schema.SessionInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.info()
}

// Snapshot returns a copy of all engine state.
func (e *Engine) Snapshot() schema.EngineSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	snapshot := schema.EngineSnapshot{
		Session:   e.session.info(),
		Messages:  e.transcript.Messages(),
		Streams:   map[schema.CallID]string{},
		Approvals: e.queues.Approvals(),
		UserInput: e.queues.UserInput(),
		Terminals: e.terminals.Snapshots(),
		Catalog:   e.catalog.snapshot(e.now()),
		Records:   e.session.records.Entries(),
		Console:   e.console.Items(),
	}
	if scope := e.session.scope; scope != nil {
		for id, text := range scope.streams {
			snapshot.Streams[id] = text.String()
		}
	}
	if active := e.terminals.active; active != "" {
		snapshot.ActiveTerminal = &active
	}
	return snapshot
}

// ConsoleTail returns the newest limit lines of backend output. A limit <= 0
// returns every retained line.
func (e *Engine) ConsoleTail(limit int) schema.ConsoleTail {
	e.mu.Lock()
	defer e.mu.Unlock()
	view := e.console.Snapshot(limit)
	return schema.ConsoleTail{Lines: view.Items, Total: view.Total, Dropped: view.Dropped}
}

// ClearConsole discards the backend output log.
func (e *Engine) ClearConsole() {
	e.mu.Lock()
	e.console.Reset()
	e.mu.Unlock()
	e.logger.Debug("engine console cleared")
}

func (e *Engine) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.cfg.RequestTimeout)
}

func (e *Engine) appendMessageLocked(out *outbox, kind schema.MessageKind, text string) schema.Message {
	msg := e.transcript.Append(schema.Message{Kind: kind, Text: text, At: e.now()})
	out.message(schema.MessageEvent{Message: msg.Clone()})
	return msg
}

func (e *Engine) systemf(format string, args ...any) {
	e.mu.Lock()
	var out outbox
	e.appendMessageLocked(&out, schema.MessageSystem, fmt.Sprintf(format, args...))
	e.mu.Unlock()
	out.flush(e.sink)
}

// appendConsoleLocked splits a backend output chunk into lines for the console log.
func (e *Engine) appendConsoleLocked(out *outbox, chunk string, stderr bool) {
	chunk = strings.TrimRight(chunk, "\r\n")
	if chunk == "" {
		return
	}
	lines := strings.Split(chunk, "\n")
	for i, line := range lines {
		line = strings.TrimRight(line, "\r")
		if stderr {
			line = schema.StderrMarker + line
		}
		lines[i] = line
	}
	e.console.Append(lines...)
	out.console(lines)
}
