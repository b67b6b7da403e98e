package schema

import (
	"encoding/json"
	"testing"
)

func TestDecodeEventNormalizesMalformedPayloads(t *testing.T) {
	cases := []struct {
		name   string
		raw    string
		reason string
	}{
		{"array", `[1,2,3]`, InvalidNotObject},
		{"null", `null`, InvalidNotObject},
		{"garbage", `not json`, InvalidNotObject},
		{"missing type", `{"chunk":"x"}`, InvalidMissingType},
		{"blank type", `{"type":"   "}`, InvalidBlankType},
		{"numeric type", `{"type":7}`, InvalidTypeNotString},
		{"bad field", `{"type":"agent_message_delta","chunk":5}`, InvalidMalformedPayload},
		{"approval without action", `{"type":"exec_approval_request","reason":"x"}`, InvalidMissingField},
	}
	for _, tc := range cases {
		event := DecodeEvent(json.RawMessage(tc.raw))
		if event.Kind != EventKindInvalid || event.Invalid == nil {
			t.Fatalf("case %q: expected invalid event, got %+v", tc.name, event)
		}
		if event.Invalid.Reason != tc.reason {
			t.Fatalf("case %q: expected reason %q, got %q", tc.name, tc.reason, event.Invalid.Reason)
		}
	}
}

func TestDecodeEventStreamChunkDefaultsCallID(t *testing.T) {
	event := DecodeEvent(json.RawMessage(`{"type":"agent_message_delta","chunk":"Hel"}`))
	if event.Kind != EventKindStream || event.Stream == nil {
		t.Fatalf("expected stream event, got %+v", event)
	}
	if event.Stream.CallID != DefaultStreamKey(StreamAgent) {
		t.Fatalf("expected default call id, got %q", event.Stream.CallID)
	}
	if event.Stream.Chunk != "Hel" {
		t.Fatalf("expected chunk Hel, got %q", event.Stream.Chunk)
	}

	event = DecodeEvent(json.RawMessage(`{"type":"agent_reasoning_delta","itemId":"r1","delta":"hmm"}`))
	if event.Stream == nil || event.Stream.Kind != StreamReasoning || event.Stream.CallID != "r1" || event.Stream.Chunk != "hmm" {
		t.Fatalf("unexpected reasoning stream %+v", event.Stream)
	}
}

func TestDecodeEventApprovalCommandForms(t *testing.T) {
	event := DecodeEvent(json.RawMessage(`{"type":"exec_approval_request","actionId":"a1","command":["git","status"],"cwd":"/repo"}`))
	if event.Approval == nil {
		t.Fatalf("expected approval, got %+v", event)
	}
	if event.Approval.Command != "git status" || event.Approval.Kind != ApprovalCommandExec {
		t.Fatalf("unexpected approval %+v", event.Approval)
	}

	event = DecodeEvent(json.RawMessage(`{"type":"apply_patch_approval_request","actionId":"a2","grantRoot":"/repo"}`))
	if event.Approval == nil || event.Approval.Kind != ApprovalFileChange || event.Approval.GrantRoot != "/repo" {
		t.Fatalf("unexpected patch approval %+v", event.Approval)
	}
}

func TestDecodeEventSpawnNotice(t *testing.T) {
	raw := `{"type":"agent_spawn","agents":[{"callId":"c1","agentId":"a","status":"running","progress":40}],"waiting":{"callId":"c1","receivers":["a"]}}`
	event := DecodeEvent(json.RawMessage(raw))
	if event.Spawn == nil || len(event.Spawn.Agents) != 1 {
		t.Fatalf("expected spawn record, got %+v", event)
	}
	agent := event.Spawn.Agents[0]
	if agent.Status != SpawnRunning || agent.Progress == nil || *agent.Progress != 40 {
		t.Fatalf("unexpected agent %+v", agent)
	}
	if event.Spawn.Waiting == nil || len(event.Spawn.Waiting.Receivers) != 1 {
		t.Fatalf("expected waiting descriptor, got %+v", event.Spawn.Waiting)
	}
}

func TestDecodeEventUnknownType(t *testing.T) {
	event := DecodeEvent(json.RawMessage(`{"type":"mystery","x":1}`))
	if event.Kind != EventKindUnknown || event.Type != "mystery" {
		t.Fatalf("expected unknown event, got %+v", event)
	}
	if len(event.Raw) == 0 {
		t.Fatalf("expected raw payload to be retained")
	}
}

func TestDecodeSessionPush(t *testing.T) {
	push := DecodeSessionPush(json.RawMessage(`{"event":{"sessionId":7,"seq":1,"event":{"type":"agent_message_delta","chunk":"Hel"}}}`))
	if push.Kind != SessionPushEvent || push.Envelope == nil {
		t.Fatalf("expected event push, got %+v", push)
	}
	if push.Envelope.SessionID != 7 || push.Envelope.Seq != 1 || push.Envelope.Event.Kind != EventKindStream {
		t.Fatalf("unexpected envelope %+v", push.Envelope)
	}

	push = DecodeSessionPush(json.RawMessage(`{"lifecycle":{"status":"Exited","exitCode":2}}`))
	if push.Lifecycle == nil || push.Lifecycle.Status != LifecycleExited || push.Lifecycle.ExitCode == nil || *push.Lifecycle.ExitCode != 2 {
		t.Fatalf("unexpected lifecycle %+v", push.Lifecycle)
	}

	push = DecodeSessionPush(json.RawMessage(`{"stderr":{"sessionId":7,"chunk":"warn"}}`))
	if push.Kind != SessionPushStderr || push.Output == nil || push.Output.Chunk != "warn" {
		t.Fatalf("unexpected stderr push %+v", push)
	}

	push = DecodeSessionPush(json.RawMessage(`{"event":{"sessionId":7,"event":{"type":"x"}}}`))
	if push.Kind != SessionPushInvalid || push.Invalid.Reason != InvalidMissingField {
		t.Fatalf("expected missing seq to be invalid, got %+v", push)
	}

	push = DecodeSessionPush(json.RawMessage(`"hello"`))
	if push.Kind != SessionPushInvalid || push.Invalid.Reason != InvalidNotObject {
		t.Fatalf("expected not_object, got %+v", push)
	}
}

func TestDecodeTerminalPush(t *testing.T) {
	push := DecodeTerminalPush(json.RawMessage(`{"data":{"terminalId":"t1","seq":3,"chunk":"ls\r\n"}}`))
	if push.Kind != TerminalPushData || push.TerminalID != "t1" || push.Seq != 3 || push.Chunk != "ls\r\n" {
		t.Fatalf("unexpected data push %+v", push)
	}
	push = DecodeTerminalPush(json.RawMessage(`{"exit":{"terminalId":"t1","seq":4,"exitCode":0}}`))
	if push.Kind != TerminalPushExit || push.ExitCode == nil || *push.ExitCode != 0 {
		t.Fatalf("unexpected exit push %+v", push)
	}
	push = DecodeTerminalPush(json.RawMessage(`{"data":{"seq":1}}`))
	if push.Kind != TerminalPushInvalid {
		t.Fatalf("expected invalid push, got %+v", push)
	}
}
