package schema

import (
	"encoding/json"
	"errors"
	"strings"
)

// EventType is the wire discriminator of an agent event.
type EventType string

const (
	// EventAgentMessageDelta carries a chunk of streamed assistant output.
	EventAgentMessageDelta EventType = "agent_message_delta"
	// EventAgentReasoningDelta carries a chunk of streamed reasoning output.
	EventAgentReasoningDelta EventType = "agent_reasoning_delta"
	// EventAgentMessage carries a completed assistant message.
	EventAgentMessage EventType = "agent_message"
	// EventTokenCount carries token usage for the current turn.
	EventTokenCount EventType = "token_count"
	// EventAgentReasoning carries a reasoning summary.
	EventAgentReasoning EventType = "agent_reasoning"
	// EventAgentSpawn carries a (possibly partial) multi-agent spawn notice.
	EventAgentSpawn EventType = "agent_spawn"
	// EventExecApprovalRequest asks for approval to run a command.
	EventExecApprovalRequest EventType = "exec_approval_request"
	// EventPatchApprovalRequest asks for approval to apply a file change.
	EventPatchApprovalRequest EventType = "apply_patch_approval_request"
	// EventRequestUserInput asks the user to answer one or more questions.
	EventRequestUserInput EventType = "request_user_input"
	// EventTurnStarted indicates the agent started a turn.
	EventTurnStarted EventType = "turn_started"
	// EventTurnComplete indicates the agent completed a turn.
	EventTurnComplete EventType = "turn_complete"
	// EventError indicates a backend-reported error.
	EventError EventType = "error"
)

// EventKind classifies a decoded event for dispatch.
type EventKind string

const (
	EventKindStream    EventKind = "stream"
	EventKindMessage   EventKind = "message"
	EventKindUsage     EventKind = "usage"
	EventKindReasoning EventKind = "reasoning"
	EventKindSpawn     EventKind = "spawn"
	EventKindApproval  EventKind = "approval"
	EventKindUserInput EventKind = "user_input"
	EventKindTurn      EventKind = "turn"
	EventKindError     EventKind = "error"
	EventKindUnknown   EventKind = "unknown"
	EventKindInvalid   EventKind = "invalid"
)

// Event is a decoded agent event. Exactly one payload pointer matching Kind is set;
// unknown events carry only Type and Raw.
type Event struct {
	Type      EventType
	Kind      EventKind
	Stream    *StreamChunk
	Message   *AgentMessage
	Usage     *TokenUsage
	Reasoning *ReasoningNotice
	Spawn     *SpawnRecord
	Approval  *PendingApproval
	UserInput *PendingUserInput
	Turn      *TurnNotice
	Error     *ErrorNotice
	Invalid   *InvalidEvent
	Raw       json.RawMessage
}

// StreamKind distinguishes streamed assistant output from streamed reasoning.
type StreamKind string

const (
	StreamAgent     StreamKind = "agent"
	StreamReasoning StreamKind = "reasoning"
)

// StreamChunk is a fragment of a logical stream keyed by call id.
type StreamChunk struct {
	Kind   StreamKind
	CallID CallID
	Chunk  string
}

// AgentMessage is a completed assistant message.
type AgentMessage struct {
	CallID CallID
	Text   string
}

// TokenUsage reports token counts for the last turn.
type TokenUsage struct {
	InputTokens           int `json:"inputTokens,omitempty"`
	CachedInputTokens     int `json:"cachedInputTokens,omitempty"`
	OutputTokens          int `json:"outputTokens,omitempty"`
	ReasoningOutputTokens int `json:"reasoningOutputTokens,omitempty"`
	TotalTokens           int `json:"totalTokens,omitempty"`
	ContextWindow         int `json:"contextWindow,omitempty"`
}

// ReasoningNotice carries a reasoning summary shown outside the transcript.
type ReasoningNotice struct {
	Text string `json:"text,omitempty"`
}

// TurnNotice reports a turn boundary.
type TurnNotice struct {
	TurnID   string `json:"turnId,omitempty"`
	Complete bool   `json:"-"`
}

// ErrorNotice is a backend-reported error message.
type ErrorNotice struct {
	Message string `json:"message,omitempty"`
}

// InvalidEvent describes a payload that could not be decoded.
type InvalidEvent struct {
	Reason string
	Type   string
}

// Invalid reasons.
const (
	InvalidNotObject        = "not_object"
	InvalidMissingType      = "missing_type"
	InvalidBlankType        = "blank_type"
	InvalidTypeNotString    = "type_not_string"
	InvalidMalformedPayload = "malformed_payload"
	InvalidMissingField     = "missing_field"
)

// InvalidEventOf builds an Invalid event with the given reason.
func InvalidEventOf(reason, eventType string, raw json.RawMessage) Event {
	return Event{
		Type:    EventType(eventType),
		Kind:    EventKindInvalid,
		Invalid: &InvalidEvent{Reason: reason, Type: eventType},
		Raw:     raw,
	}
}

type streamPayload struct {
	CallID CallID `json:"callId,omitempty"`
	ItemID CallID `json:"itemId,omitempty"`
	Chunk  string `json:"chunk,omitempty"`
	Delta  string `json:"delta,omitempty"`
}

type messagePayload struct {
	CallID  CallID `json:"callId,omitempty"`
	ItemID  CallID `json:"itemId,omitempty"`
	Message string `json:"message,omitempty"`
	Text    string `json:"text,omitempty"`
}

type spawnPayload struct {
	Agents  []SpawnedAgent     `json:"agents,omitempty"`
	Waiting *WaitingDescriptor `json:"waiting,omitempty"`
}

type approvalPayload struct {
	ActionID  ActionID        `json:"actionId"`
	Kind      ApprovalKind    `json:"kind,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Cwd       string          `json:"cwd,omitempty"`
	GrantRoot string          `json:"grantRoot,omitempty"`
	Command   json.RawMessage `json:"command,omitempty"`
	ItemID    string          `json:"itemId,omitempty"`
}

// DefaultStreamKey returns the accumulator key used when a chunk carries no call id.
func DefaultStreamKey(kind StreamKind) CallID {
	return CallID(kind)
}

// DecodeEvent decodes a tagged agent event. It never fails: malformed payloads
// decode to an Invalid event and unrecognized types to an Unknown event.
func DecodeEvent(raw json.RawMessage) Event {
	raw = append(json.RawMessage(nil), raw...)
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return InvalidEventOf(InvalidNotObject, "", raw)
	}
	typeRaw, ok := fields["type"]
	if !ok {
		return InvalidEventOf(InvalidMissingType, "", raw)
	}
	var typeName string
	if err := json.Unmarshal(typeRaw, &typeName); err != nil {
		return InvalidEventOf(InvalidTypeNotString, "", raw)
	}
	typeName = strings.TrimSpace(typeName)
	if typeName == "" {
		return InvalidEventOf(InvalidBlankType, "", raw)
	}
	event, err := decodeTyped(EventType(typeName), raw)
	if err != nil {
		reason := InvalidMalformedPayload
		var missing missingFieldError
		if errors.As(err, &missing) {
			reason = InvalidMissingField
		}
		return InvalidEventOf(reason, typeName, raw)
	}
	event.Type = EventType(typeName)
	event.Raw = raw
	return event
}

func decodeTyped(eventType EventType, raw json.RawMessage) (Event, error) {
	switch eventType {
	case EventAgentMessageDelta, EventAgentReasoningDelta:
		var payload streamPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return Event{}, err
		}
		kind := StreamAgent
		if eventType == EventAgentReasoningDelta {
			kind = StreamReasoning
		}
		chunk := payload.Chunk
		if chunk == "" {
			chunk = payload.Delta
		}
		callID := firstCallID(payload.CallID, payload.ItemID)
		if callID == "" {
			callID = DefaultStreamKey(kind)
		}
		return Event{Kind: EventKindStream, Stream: &StreamChunk{Kind: kind, CallID: callID, Chunk: chunk}}, nil
	case EventAgentMessage:
		var payload messagePayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return Event{}, err
		}
		text := payload.Message
		if text == "" {
			text = payload.Text
		}
		callID := firstCallID(payload.CallID, payload.ItemID)
		if callID == "" {
			callID = DefaultStreamKey(StreamAgent)
		}
		return Event{Kind: EventKindMessage, Message: &AgentMessage{CallID: callID, Text: text}}, nil
	case EventTokenCount:
		var usage TokenUsage
		if err := json.Unmarshal(raw, &usage); err != nil {
			return Event{}, err
		}
		if usage.TotalTokens == 0 {
			usage.TotalTokens = usage.InputTokens + usage.OutputTokens
		}
		return Event{Kind: EventKindUsage, Usage: &usage}, nil
	case EventAgentReasoning:
		var notice ReasoningNotice
		if err := json.Unmarshal(raw, &notice); err != nil {
			return Event{}, err
		}
		return Event{Kind: EventKindReasoning, Reasoning: &notice}, nil
	case EventAgentSpawn:
		var payload spawnPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return Event{}, err
		}
		record := SpawnRecord{Agents: payload.Agents, Waiting: payload.Waiting}
		return Event{Kind: EventKindSpawn, Spawn: &record}, nil
	case EventExecApprovalRequest, EventPatchApprovalRequest:
		approval, err := decodeApproval(eventType, raw)
		if err != nil {
			return Event{}, err
		}
		return Event{Kind: EventKindApproval, Approval: &approval}, nil
	case EventRequestUserInput:
		var input PendingUserInput
		if err := json.Unmarshal(raw, &input); err != nil {
			return Event{}, err
		}
		if strings.TrimSpace(string(input.ActionID)) == "" {
			return Event{}, errMissingField("actionId")
		}
		return Event{Kind: EventKindUserInput, UserInput: &input}, nil
	case EventTurnStarted, EventTurnComplete:
		var notice TurnNotice
		if err := json.Unmarshal(raw, &notice); err != nil {
			return Event{}, err
		}
		notice.Complete = eventType == EventTurnComplete
		return Event{Kind: EventKindTurn, Turn: &notice}, nil
	case EventError:
		var notice ErrorNotice
		if err := json.Unmarshal(raw, &notice); err != nil {
			return Event{}, err
		}
		return Event{Kind: EventKindError, Error: &notice}, nil
	default:
		return Event{Kind: EventKindUnknown}, nil
	}
}

func decodeApproval(eventType EventType, raw json.RawMessage) (PendingApproval, error) {
	var payload approvalPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return PendingApproval{}, err
	}
	if strings.TrimSpace(string(payload.ActionID)) == "" {
		return PendingApproval{}, errMissingField("actionId")
	}
	kind := payload.Kind
	if kind == "" {
		kind = ApprovalCommandExec
		if eventType == EventPatchApprovalRequest {
			kind = ApprovalFileChange
		}
	}
	command, err := decodeCommand(payload.Command)
	if err != nil {
		return PendingApproval{}, err
	}
	return PendingApproval{
		ActionID:  payload.ActionID,
		Kind:      kind,
		Reason:    payload.Reason,
		Cwd:       payload.Cwd,
		GrantRoot: payload.GrantRoot,
		Command:   command,
		ItemID:    payload.ItemID,
	}, nil
}

// decodeCommand accepts either a string or an argv array.
func decodeCommand(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}
	var argv []string
	if err := json.Unmarshal(raw, &argv); err != nil {
		return "", err
	}
	return strings.Join(argv, " "), nil
}

func firstCallID(values ...CallID) CallID {
	for _, value := range values {
		if strings.TrimSpace(string(value)) != "" {
			return value
		}
	}
	return ""
}

type missingFieldError string

func (e missingFieldError) Error() string {
	return "missing field " + string(e)
}

func errMissingField(name string) error {
	return missingFieldError(name)
}
