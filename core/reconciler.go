package core

import (
	"fmt"
	"slices"
	"strings"

	"pkt.systems/cxconsole/internal/logx"
	"pkt.systems/cxconsole/schema"
)

// eventHandler applies one decoded agent event to the active session.
type eventHandler func(e *Engine, out *outbox, scope *sessionScope, event schema.Event)

var eventHandlers = map[schema.EventKind]eventHandler{
	schema.EventKindStream:    (*Engine).onStreamChunk,
	schema.EventKindMessage:   (*Engine).onAgentMessage,
	schema.EventKindUsage:     (*Engine).onUsage,
	schema.EventKindReasoning: (*Engine).onReasoning,
	schema.EventKindSpawn:     (*Engine).onSpawn,
	schema.EventKindApproval:  (*Engine).onApproval,
	schema.EventKindUserInput: (*Engine).onUserInput,
	schema.EventKindTurn:      (*Engine).onTurn,
	schema.EventKindError:     (*Engine).onError,
	schema.EventKindUnknown:   (*Engine).onUnknown,
	schema.EventKindInvalid:   (*Engine).onInvalid,
}

// ApplySessionPush applies one session-topic push.
func (e *Engine) ApplySessionPush(push schema.SessionPush) {
	e.mu.Lock()
	var out outbox
	switch push.Kind {
	case schema.SessionPushStdout, schema.SessionPushStderr:
		if push.Output != nil {
			e.appendConsoleLocked(&out, push.Output.Chunk, push.Kind == schema.SessionPushStderr)
		}
	case schema.SessionPushLifecycle:
		if push.Lifecycle == nil {
			break
		}
		if e.session.state == schema.SessionStarting {
			e.holdLocked(push)
			break
		}
		e.applyLifecycleLocked(&out, *push.Lifecycle)
	case schema.SessionPushEvent:
		if push.Envelope != nil {
			e.applyEnvelopeLocked(&out, *push.Envelope)
		}
	default:
		reason := "unknown"
		if push.Invalid != nil {
			reason = push.Invalid.Reason
		}
		e.appendMessageLocked(&out, schema.MessageSystem, fmt.Sprintf("invalid session push (%s)", reason))
	}
	e.mu.Unlock()
	out.flush(e.sink)
}

// ApplyEnvelope applies one agent event envelope. Envelopes whose seq was already
// applied for the session are discarded without side effects.
func (e *Engine) ApplyEnvelope(envelope schema.EventEnvelope) {
	e.mu.Lock()
	var out outbox
	e.applyEnvelopeLocked(&out, envelope)
	e.mu.Unlock()
	out.flush(e.sink)
}

func (e *Engine) applyEnvelopeLocked(out *outbox, envelope schema.EventEnvelope) {
	if e.session.state == schema.SessionStarting {
		e.holdLocked(schema.SessionPush{Kind: schema.SessionPushEvent, Envelope: &envelope})
		return
	}
	scope := e.session.scope
	if scope == nil || envelope.SessionID != scope.id {
		e.logger.Debug("engine envelope dropped", "session", int64(envelope.SessionID), "seq", envelope.Seq)
		return
	}
	if _, seen := scope.seen[envelope.Seq]; seen {
		return
	}
	scope.seen[envelope.Seq] = struct{}{}
	handler, ok := eventHandlers[envelope.Event.Kind]
	if !ok {
		handler = (*Engine).onUnknown
	}
	handler(e, out, scope, envelope.Event)
}

// holdLocked keeps a push that arrived before the session id is known. Held pushes
// are replayed in arrival order once start returns.
func (e *Engine) holdLocked(push schema.SessionPush) {
	if len(e.session.pending) >= e.cfg.PendingEnvelopes {
		e.logger.Warn("engine session hold full", "kind", push.Kind)
		return
	}
	e.session.pending = append(e.session.pending, push)
}

func (e *Engine) applyHeldLocked(out *outbox, push schema.SessionPush) {
	switch {
	case push.Envelope != nil:
		e.applyEnvelopeLocked(out, *push.Envelope)
	case push.Lifecycle != nil:
		e.applyLifecycleLocked(out, *push.Lifecycle)
	}
}

func (e *Engine) applyLifecycleLocked(out *outbox, lifecycle schema.Lifecycle) {
	scope := e.session.scope
	if lifecycle.SessionID != nil && (scope == nil || *lifecycle.SessionID != scope.id) {
		e.logger.Debug("engine lifecycle dropped", "status", lifecycle.Status, "session", int64(*lifecycle.SessionID))
		return
	}
	active := e.session.state == schema.SessionRunning || e.session.state == schema.SessionStopping
	switch lifecycle.Status {
	case schema.LifecycleExited, schema.LifecycleStopped:
		if !active {
			return
		}
		text := "session " + string(lifecycle.Status)
		if lifecycle.ExitCode != nil {
			text = fmt.Sprintf("%s (exit code %d)", text, *lifecycle.ExitCode)
		}
		logx.WithSession(e.logger, scope.id).Info("engine session ended", "status", lifecycle.Status)
		e.teardownLocked(out, schema.SessionIdle, "")
		e.appendMessageLocked(out, schema.MessageSystem, text)
	case schema.LifecycleError:
		if !active {
			return
		}
		message := strings.TrimSpace(lifecycle.Message)
		if message == "" {
			message = "session error"
		}
		logx.WithSession(e.logger, scope.id).Warn("engine session error", "message", message)
		e.teardownLocked(out, schema.SessionError, message)
		e.appendMessageLocked(out, schema.MessageError, message)
	case schema.LifecycleStarting, schema.LifecycleRunning:
		if e.session.state == schema.SessionRunning && lifecycle.PID != nil && *lifecycle.PID != scope.pid {
			scope.pid = *lifecycle.PID
			out.session(e.session.info())
		}
	default:
		e.appendMessageLocked(out, schema.MessageSystem, fmt.Sprintf("unknown session lifecycle %q", lifecycle.Status))
	}
}

func (e *Engine) onStreamChunk(out *outbox, scope *sessionScope, event schema.Event) {
	chunk := event.Stream
	text, ok := scope.streams[chunk.CallID]
	if !ok {
		text = &strings.Builder{}
		scope.streams[chunk.CallID] = text
	}
	text.WriteString(chunk.Chunk)
	scope.kinds[chunk.CallID] = chunk.Kind
	out.stream(schema.StreamEvent{Kind: chunk.Kind, CallID: chunk.CallID, Text: text.String()})
}

// flushStream removes the accumulator for id and returns its text.
func flushStream(out *outbox, scope *sessionScope, id schema.CallID) (string, bool) {
	text, ok := scope.streams[id]
	if !ok {
		return "", false
	}
	kind := scope.kinds[id]
	delete(scope.streams, id)
	delete(scope.kinds, id)
	out.stream(schema.StreamEvent{Kind: kind, CallID: id, Text: text.String(), Done: true})
	return text.String(), true
}

func (e *Engine) onAgentMessage(out *outbox, scope *sessionScope, event schema.Event) {
	id := event.Message.CallID
	if id == "" {
		id = schema.DefaultStreamKey(schema.StreamAgent)
	}
	accumulated, _ := flushStream(out, scope, id)
	text := event.Message.Text
	if text == "" {
		text = accumulated
	}
	if text == "" {
		return
	}
	msg := e.transcript.Append(schema.Message{Kind: schema.MessageAgent, Text: text, CallID: id, At: e.now()})
	out.message(schema.MessageEvent{Message: msg.Clone()})
}

func (e *Engine) onUsage(out *outbox, _ *sessionScope, event schema.Event) {
	usage := *event.Usage
	e.session.usage = &usage
	out.session(e.session.info())
}

func (e *Engine) onReasoning(out *outbox, scope *sessionScope, event schema.Event) {
	text := event.Reasoning.Text
	for id, kind := range scope.kinds {
		if kind != schema.StreamReasoning {
			continue
		}
		if accumulated, ok := flushStream(out, scope, id); ok && text == "" {
			text = accumulated
		}
	}
	e.session.reasoning = strings.TrimSpace(text)
	out.session(e.session.info())
}

// onSpawn merges into the newest transcript entry when it is a spawn entry
// appended by the current session. Suppressed notices never reach the
// transcript, so adjacency is the last entry.
func (e *Engine) onSpawn(out *outbox, scope *sessionScope, event schema.Event) {
	if last, ok := e.transcript.Last(); ok && last.Kind == schema.MessageSpawn && last.Spawn != nil && last.ID == scope.spawnAnchor {
		merged := MergeSpawn(*last.Spawn, *event.Spawn)
		last.Spawn = &merged
		last.Text = spawnSummary(merged)
		last.At = e.now()
		out.message(schema.MessageEvent{Message: last.Clone(), Merged: true})
		return
	}
	record := MergeSpawn(schema.SpawnRecord{}, *event.Spawn)
	msg := e.transcript.Append(schema.Message{
		Kind:  schema.MessageSpawn,
		Text:  spawnSummary(record),
		Spawn: &record,
		At:    e.now(),
	})
	scope.spawnAnchor = msg.ID
	out.message(schema.MessageEvent{Message: msg.Clone()})
}

func (e *Engine) onApproval(out *outbox, _ *sessionScope, event schema.Event) {
	e.queues.AddApproval(*event.Approval)
	out.queue(e.queues.Event())
}

func (e *Engine) onUserInput(out *outbox, _ *sessionScope, event schema.Event) {
	e.queues.SetUserInput(event.UserInput.Clone())
	out.queue(e.queues.Event())
}

func (e *Engine) onTurn(out *outbox, scope *sessionScope, event schema.Event) {
	if !event.Turn.Complete {
		e.session.busy = true
		out.session(e.session.info())
		return
	}
	// Agent text that never got a final message is kept; reasoning fragments are not.
	ids := make([]schema.CallID, 0, len(scope.kinds))
	for id := range scope.kinds {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		kind := scope.kinds[id]
		text, _ := flushStream(out, scope, id)
		if kind != schema.StreamAgent || strings.TrimSpace(text) == "" {
			continue
		}
		msg := e.transcript.Append(schema.Message{Kind: schema.MessageAgent, Text: text, CallID: id, At: e.now()})
		out.message(schema.MessageEvent{Message: msg.Clone()})
	}
	e.session.busy = false
	out.session(e.session.info())
}

func (e *Engine) onError(out *outbox, _ *sessionScope, event schema.Event) {
	message := strings.TrimSpace(event.Error.Message)
	if message == "" {
		message = "agent error"
	}
	e.appendMessageLocked(out, schema.MessageError, message)
}

func (e *Engine) onUnknown(out *outbox, _ *sessionScope, event schema.Event) {
	e.appendMessageLocked(out, schema.MessageSystem, fmt.Sprintf("unhandled event %q", event.Type))
}

func (e *Engine) onInvalid(out *outbox, _ *sessionScope, event schema.Event) {
	reason := "unknown"
	if event.Invalid != nil {
		reason = event.Invalid.Reason
	}
	text := fmt.Sprintf("invalid event (%s)", reason)
	if event.Type != "" {
		text = fmt.Sprintf("invalid event %q (%s)", event.Type, reason)
	}
	e.appendMessageLocked(out, schema.MessageSystem, text)
}
