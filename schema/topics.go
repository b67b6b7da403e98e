package schema

import (
	"encoding/json"
	"strings"
)

// Push topics.
const (
	TopicSession  = "session"
	TopicTerminal = "terminal"
)

// SessionPushKind classifies a session-topic push.
type SessionPushKind string

const (
	SessionPushStdout    SessionPushKind = "stdout"
	SessionPushStderr    SessionPushKind = "stderr"
	SessionPushLifecycle SessionPushKind = "lifecycle"
	SessionPushEvent     SessionPushKind = "event"
	SessionPushInvalid   SessionPushKind = "invalid"
)

// SessionPush is a decoded session-topic push.
type SessionPush struct {
	Kind      SessionPushKind
	Output    *OutputChunk
	Lifecycle *Lifecycle
	Envelope  *EventEnvelope
	Invalid   *InvalidEvent
}

// OutputChunk is raw process output of the backend session.
type OutputChunk struct {
	SessionID SessionID `json:"sessionId"`
	Chunk     string    `json:"chunk"`
}

// LifecycleStatus is a backend-reported session lifecycle status.
type LifecycleStatus string

const (
	LifecycleStarting LifecycleStatus = "starting"
	LifecycleRunning  LifecycleStatus = "running"
	LifecycleExited   LifecycleStatus = "exited"
	LifecycleStopped  LifecycleStatus = "stopped"
	LifecycleError    LifecycleStatus = "error"
)

// Lifecycle is a backend session lifecycle notification.
type Lifecycle struct {
	Status    LifecycleStatus `json:"status"`
	SessionID *SessionID      `json:"sessionId,omitempty"`
	PID       *int            `json:"pid,omitempty"`
	ExitCode  *int            `json:"exitCode,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// EventEnvelope wraps an agent event with its session and sequence number.
type EventEnvelope struct {
	SessionID SessionID
	Seq       int64
	Event     Event
}

type envelopeWire struct {
	SessionID *SessionID      `json:"sessionId"`
	Seq       *int64          `json:"seq"`
	Event     json.RawMessage `json:"event"`
}

// DecodeSessionPush decodes a session-topic payload. Malformed payloads decode to
// the invalid kind instead of failing.
func DecodeSessionPush(raw json.RawMessage) SessionPush {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return invalidSessionPush(InvalidNotObject, "")
	}
	if data, ok := fields["event"]; ok {
		var wire envelopeWire
		if err := json.Unmarshal(data, &wire); err != nil {
			return invalidSessionPush(InvalidMalformedPayload, "event")
		}
		if wire.SessionID == nil || wire.Seq == nil {
			return invalidSessionPush(InvalidMissingField, "event")
		}
		return SessionPush{
			Kind: SessionPushEvent,
			Envelope: &EventEnvelope{
				SessionID: *wire.SessionID,
				Seq:       *wire.Seq,
				Event:     DecodeEvent(wire.Event),
			},
		}
	}
	if data, ok := fields["lifecycle"]; ok {
		var lifecycle Lifecycle
		if err := json.Unmarshal(data, &lifecycle); err != nil {
			return invalidSessionPush(InvalidMalformedPayload, "lifecycle")
		}
		lifecycle.Status = LifecycleStatus(strings.ToLower(strings.TrimSpace(string(lifecycle.Status))))
		if lifecycle.Status == "" {
			return invalidSessionPush(InvalidMissingField, "lifecycle")
		}
		return SessionPush{Kind: SessionPushLifecycle, Lifecycle: &lifecycle}
	}
	for _, kind := range []SessionPushKind{SessionPushStdout, SessionPushStderr} {
		data, ok := fields[string(kind)]
		if !ok {
			continue
		}
		var chunk OutputChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			return invalidSessionPush(InvalidMalformedPayload, string(kind))
		}
		return SessionPush{Kind: kind, Output: &chunk}
	}
	return invalidSessionPush(InvalidMissingType, "")
}

func invalidSessionPush(reason, typeName string) SessionPush {
	return SessionPush{Kind: SessionPushInvalid, Invalid: &InvalidEvent{Reason: reason, Type: typeName}}
}

// TerminalPushKind classifies a terminal-topic push.
type TerminalPushKind string

const (
	TerminalPushData    TerminalPushKind = "data"
	TerminalPushExit    TerminalPushKind = "exit"
	TerminalPushInvalid TerminalPushKind = "invalid"
)

// TerminalPush is a decoded terminal-topic push.
type TerminalPush struct {
	Kind       TerminalPushKind
	TerminalID TerminalID
	Seq        int64
	Chunk      string
	ExitCode   *int
	Invalid    *InvalidEvent
}

type terminalWire struct {
	TerminalID TerminalID `json:"terminalId"`
	Seq        int64      `json:"seq"`
	Chunk      string     `json:"chunk,omitempty"`
	ExitCode   *int       `json:"exitCode,omitempty"`
}

// DecodeTerminalPush decodes a terminal-topic payload.
func DecodeTerminalPush(raw json.RawMessage) TerminalPush {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return invalidTerminalPush(InvalidNotObject, "")
	}
	for _, kind := range []TerminalPushKind{TerminalPushData, TerminalPushExit} {
		data, ok := fields[string(kind)]
		if !ok {
			continue
		}
		var wire terminalWire
		if err := json.Unmarshal(data, &wire); err != nil {
			return invalidTerminalPush(InvalidMalformedPayload, string(kind))
		}
		if strings.TrimSpace(string(wire.TerminalID)) == "" {
			return invalidTerminalPush(InvalidMissingField, string(kind))
		}
		return TerminalPush{
			Kind:       kind,
			TerminalID: wire.TerminalID,
			Seq:        wire.Seq,
			Chunk:      wire.Chunk,
			ExitCode:   wire.ExitCode,
		}
	}
	return invalidTerminalPush(InvalidMissingType, "")
}

func invalidTerminalPush(reason, typeName string) TerminalPush {
	return TerminalPush{Kind: TerminalPushInvalid, Invalid: &InvalidEvent{Reason: reason, Type: typeName}}
}
