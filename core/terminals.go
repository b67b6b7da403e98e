package core

import (
	"context"
	"fmt"

	"pkt.systems/cxconsole/internal/logx"
	"pkt.systems/cxconsole/schema"
)

const (
	// maxPendingTerminals bounds how many unknown terminal ids may hold early output.
	maxPendingTerminals = 16
	maxClosedTerminals  = 64
)

type terminalSession struct {
	id       schema.TerminalID
	title    string
	alive    bool
	exitCode *int
	cols     int
	rows     int
	output   *buffer[schema.TerminalChunk]
}

func (t *terminalSession) snapshot(active bool) schema.TerminalSnapshot {
	snapshot := schema.TerminalSnapshot{
		ID:     t.id,
		Title:  t.title,
		Alive:  t.alive,
		Cols:   t.cols,
		Rows:   t.rows,
		Chunks: t.output.Items(),
		Active: active,
	}
	if t.exitCode != nil {
		code := *t.exitCode
		snapshot.ExitCode = &code
	}
	return snapshot
}

// heldTerminal is output that arrived before the create call returned.
type heldTerminal struct {
	output   *buffer[schema.TerminalChunk]
	exited   bool
	exitCode *int
}

// terminalMux tracks terminal sessions in creation order. It has no session affinity.
type terminalMux struct {
	sessions map[schema.TerminalID]*terminalSession
	order    []schema.TerminalID
	active   schema.TerminalID
	held     map[schema.TerminalID]*heldTerminal
	// closed holds live terminals closed locally whose exit has not arrived yet,
	// oldest first in closedOrder.
	closed        map[schema.TerminalID]struct{}
	closedOrder   []schema.TerminalID
	maxChunks     int
	pendingChunks int
}

func newTerminalMux(maxChunks, pendingChunks int) *terminalMux {
	return &terminalMux{
		sessions:      make(map[schema.TerminalID]*terminalSession),
		held:          make(map[schema.TerminalID]*heldTerminal),
		closed:        make(map[schema.TerminalID]struct{}),
		maxChunks:     maxChunks,
		pendingChunks: pendingChunks,
	}
}

func (m *terminalMux) add(result schema.TerminalCreateResult) *terminalSession {
	term := &terminalSession{
		id:     result.TerminalID,
		title:  result.Title,
		alive:  true,
		output: newBuffer[schema.TerminalChunk](m.maxChunks),
	}
	if term.title == "" {
		term.title = fmt.Sprintf("terminal %d", len(m.order)+1)
	}
	if held, ok := m.held[result.TerminalID]; ok {
		term.output.Append(held.output.Items()...)
		if held.exited {
			term.alive = false
			term.exitCode = held.exitCode
		}
		delete(m.held, result.TerminalID)
	}
	m.sessions[term.id] = term
	m.order = append(m.order, term.id)
	return term
}

// remove drops the terminal and returns the next active id: unchanged unless the
// removed terminal was active, then the first remaining terminal or none.
func (m *terminalMux) remove(id schema.TerminalID) schema.TerminalID {
	if term, ok := m.sessions[id]; ok && term.alive {
		m.markClosed(id)
	}
	delete(m.sessions, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if m.active == id {
		m.active = ""
		if len(m.order) > 0 {
			m.active = m.order[0]
		}
	}
	return m.active
}

// markClosed remembers id so late pushes are not held as a new terminal. The
// oldest ids are forgotten beyond maxClosedTerminals.
func (m *terminalMux) markClosed(id schema.TerminalID) {
	if _, ok := m.closed[id]; ok {
		return
	}
	m.closed[id] = struct{}{}
	m.closedOrder = append(m.closedOrder, id)
	if len(m.closedOrder) > maxClosedTerminals {
		delete(m.closed, m.closedOrder[0])
		m.closedOrder = append([]schema.TerminalID(nil), m.closedOrder[1:]...)
	}
}

func (m *terminalMux) forgetClosed(id schema.TerminalID) {
	if _, ok := m.closed[id]; !ok {
		return
	}
	delete(m.closed, id)
	for i, existing := range m.closedOrder {
		if existing == id {
			m.closedOrder = append(m.closedOrder[:i], m.closedOrder[i+1:]...)
			break
		}
	}
}

func (m *terminalMux) hold(id schema.TerminalID) (*heldTerminal, bool) {
	if held, ok := m.held[id]; ok {
		return held, true
	}
	if len(m.held) >= maxPendingTerminals {
		return nil, false
	}
	held := &heldTerminal{output: newBuffer[schema.TerminalChunk](m.pendingChunks)}
	m.held[id] = held
	return held, true
}

func (m *terminalMux) Snapshots() []schema.TerminalSnapshot {
	out := make([]schema.TerminalSnapshot, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.sessions[id].snapshot(id == m.active))
	}
	return out
}

// CreateTerminal asks the backend for a terminal, makes it active and sizes it to
// the attached viewport.
func (e *Engine) CreateTerminal(ctx context.Context, cwd string) (schema.TerminalID, error) {
	callCtx, cancel := e.requestContext(ctx)
	result, err := e.bridge.TerminalCreate(callCtx, cwd)
	cancel()
	if err != nil {
		e.systemf("terminal create failed: %v", err)
		e.logger.Warn("engine terminal create failed", "err", err)
		return "", err
	}
	if result.TerminalID == "" {
		e.systemf("terminal create failed: backend returned no terminal id")
		return "", fmt.Errorf("terminal create: %w", schema.ErrInvalidRequest)
	}
	e.mu.Lock()
	var out outbox
	term := e.terminals.add(result)
	e.terminals.active = term.id
	viewport := e.viewport
	out.terminal(schema.TerminalEvent{Type: schema.TerminalEventCreated, TerminalID: term.id, ActiveTerminal: term.id})
	if !term.alive {
		out.terminal(schema.TerminalEvent{Type: schema.TerminalEventExited, TerminalID: term.id, ExitCode: term.exitCode, ActiveTerminal: term.id})
	}
	e.mu.Unlock()
	out.flush(e.sink)
	logx.WithTerminal(e.logger, term.id).Info("engine terminal create ok", "cwd", cwd)

	if viewport != nil {
		if cols, rows, ok := viewport.Size(); ok {
			_ = e.ResizeTerminal(ctx, term.id, cols, rows)
		}
	}
	return term.id, nil
}

// WriteTerminal forwards input to a terminal. Failures are reported as system messages.
func (e *Engine) WriteTerminal(ctx context.Context, id schema.TerminalID, data string) error {
	e.mu.Lock()
	_, ok := e.terminals.sessions[id]
	e.mu.Unlock()
	if !ok {
		return schema.ErrTerminalNotFound
	}
	callCtx, cancel := e.requestContext(ctx)
	err := e.bridge.TerminalWrite(callCtx, id, data)
	cancel()
	if err != nil {
		e.systemf("terminal %s write failed: %v", id, err)
		return err
	}
	return nil
}

// ResizeTerminal records the geometry and forwards it to the backend.
func (e *Engine) ResizeTerminal(ctx context.Context, id schema.TerminalID, cols, rows int) error {
	if cols <= 0 || rows <= 0 {
		return fmt.Errorf("terminal size %dx%d: %w", cols, rows, schema.ErrInvalidRequest)
	}
	e.mu.Lock()
	term, ok := e.terminals.sessions[id]
	if ok {
		term.cols = cols
		term.rows = rows
	}
	e.mu.Unlock()
	if !ok {
		return schema.ErrTerminalNotFound
	}
	callCtx, cancel := e.requestContext(ctx)
	err := e.bridge.TerminalResize(callCtx, id, cols, rows)
	cancel()
	if err != nil {
		e.systemf("terminal %s resize failed: %v", id, err)
		return err
	}
	return nil
}

// CloseTerminal discards the terminal locally and sends a best-effort kill.
// Kill failures are ignored.
func (e *Engine) CloseTerminal(ctx context.Context, id schema.TerminalID) error {
	e.mu.Lock()
	term, ok := e.terminals.sessions[id]
	if !ok {
		e.mu.Unlock()
		return schema.ErrTerminalNotFound
	}
	var out outbox
	active := e.terminals.remove(id)
	out.terminal(schema.TerminalEvent{Type: schema.TerminalEventClosed, TerminalID: id, ActiveTerminal: active})
	e.mu.Unlock()
	out.flush(e.sink)

	log := logx.WithTerminal(e.logger, id)
	if term.alive {
		callCtx, cancel := e.requestContext(ctx)
		if err := e.bridge.TerminalKill(callCtx, id); err != nil {
			log.Debug("engine terminal kill failed", "err", err)
		}
		cancel()
	}
	log.Info("engine terminal closed", "active", active)
	return nil
}

// SelectTerminal makes id the active terminal.
func (e *Engine) SelectTerminal(id schema.TerminalID) error {
	e.mu.Lock()
	if _, ok := e.terminals.sessions[id]; !ok {
		e.mu.Unlock()
		return schema.ErrTerminalNotFound
	}
	var out outbox
	e.terminals.active = id
	out.terminal(schema.TerminalEvent{Type: schema.TerminalEventActivated, TerminalID: id, ActiveTerminal: id})
	e.mu.Unlock()
	out.flush(e.sink)
	return nil
}

// ApplyTerminalPush applies one terminal-topic push in arrival order.
func (e *Engine) ApplyTerminalPush(push schema.TerminalPush) {
	e.mu.Lock()
	var out outbox
	mux := e.terminals
	switch push.Kind {
	case schema.TerminalPushData:
		chunk := schema.TerminalChunk{Seq: push.Seq, Data: push.Chunk}
		if term, ok := mux.sessions[push.TerminalID]; ok {
			term.output.Append(chunk)
			out.terminal(schema.TerminalEvent{Type: schema.TerminalEventData, TerminalID: term.id, Chunk: &chunk, ActiveTerminal: mux.active})
			break
		}
		if _, closed := mux.closed[push.TerminalID]; closed {
			break
		}
		if held, ok := mux.hold(push.TerminalID); ok {
			held.output.Append(chunk)
		} else {
			e.logger.Debug("engine terminal data dropped", "terminal", push.TerminalID)
		}
	case schema.TerminalPushExit:
		if term, ok := mux.sessions[push.TerminalID]; ok {
			term.alive = false
			term.exitCode = push.ExitCode
			out.terminal(schema.TerminalEvent{Type: schema.TerminalEventExited, TerminalID: term.id, ExitCode: push.ExitCode, ActiveTerminal: mux.active})
			break
		}
		if _, closed := mux.closed[push.TerminalID]; closed {
			mux.forgetClosed(push.TerminalID)
			break
		}
		if held, ok := mux.hold(push.TerminalID); ok {
			held.exited = true
			held.exitCode = push.ExitCode
		}
	default:
		reason := "unknown"
		if push.Invalid != nil {
			reason = push.Invalid.Reason
		}
		e.appendMessageLocked(&out, schema.MessageSystem, fmt.Sprintf("invalid terminal push (%s)", reason))
	}
	e.mu.Unlock()
	out.flush(e.sink)
}
