package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"pkt.systems/cxconsole/schema"
)

func TestResolveApprovalRemovesOptimistically(t *testing.T) {
	release := make(chan struct{})
	bridge := &fakeBridge{approvalFn: func(context.Context, schema.ActionID, schema.ApprovalDecision) error {
		<-release
		return nil
	}}
	e := newTestEngine(t, bridge)
	e.mustStart(t)
	e.ApplyEnvelope(envelope(7, 1, `{"type":"exec_approval_request","actionId":"a1","command":"rm -rf build"}`))
	if got := len(e.Snapshot().Approvals); got != 1 {
		t.Fatalf("expected one approval, got %d", got)
	}
	done := make(chan error, 1)
	go func() { done <- e.ResolveApproval(context.Background(), "a1", schema.ApprovalAccept) }()
	waitFor(t, "optimistic removal", func() bool { return len(e.Snapshot().Approvals) == 0 })
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("resolve: %v", err)
	}
}

func TestResolveApprovalFailureDoesNotRequeue(t *testing.T) {
	bridge := &fakeBridge{approvalFn: func(context.Context, schema.ActionID, schema.ApprovalDecision) error {
		return errors.New("not delivered")
	}}
	e := newTestEngine(t, bridge)
	e.mustStart(t)
	e.ApplyEnvelope(envelope(7, 1, `{"type":"apply_patch_approval_request","actionId":"a1","grantRoot":"/repo"}`))
	e.ApplyEnvelope(envelope(7, 2, `{"type":"exec_approval_request","actionId":"a2","command":"make"}`))
	if err := e.ResolveApproval(context.Background(), "a1", "y"); err == nil {
		t.Fatalf("expected error")
	}
	snapshot := e.Snapshot()
	if len(snapshot.Approvals) != 1 || snapshot.Approvals[0].ActionID != "a2" {
		t.Fatalf("expected only a2 queued, got %+v", snapshot.Approvals)
	}
	if msg := lastMessage(t, snapshot); !strings.Contains(msg.Text, "approval a1 (accept) failed") {
		t.Fatalf("unexpected message %q", msg.Text)
	}
	if err := e.ResolveApproval(context.Background(), "a1", schema.ApprovalAccept); !errors.Is(err, schema.ErrApprovalNotFound) {
		t.Fatalf("expected ErrApprovalNotFound, got %v", err)
	}
	if err := e.ResolveApproval(context.Background(), "a2", "maybe"); !errors.Is(err, schema.ErrInvalidDecision) {
		t.Fatalf("expected ErrInvalidDecision, got %v", err)
	}
}

func TestApprovalQueueKeepsArrivalOrder(t *testing.T) {
	e := newTestEngine(t, nil)
	e.mustStart(t)
	e.ApplyEnvelope(envelope(7, 1, `{"type":"exec_approval_request","actionId":"a1","command":"one"}`))
	e.ApplyEnvelope(envelope(7, 2, `{"type":"exec_approval_request","actionId":"a2","command":"two"}`))
	e.ApplyEnvelope(envelope(7, 3, `{"type":"exec_approval_request","actionId":"a1","command":"one again"}`))
	approvals := e.Snapshot().Approvals
	if len(approvals) != 2 || approvals[0].ActionID != "a1" || approvals[0].Command != "one again" || approvals[1].ActionID != "a2" {
		t.Fatalf("unexpected queue %+v", approvals)
	}
}

func TestUserInputIsSupersededAndResolved(t *testing.T) {
	e := newTestEngine(t, nil)
	e.mustStart(t)
	e.ApplyEnvelope(envelope(7, 1, `{"type":"request_user_input","actionId":"u1","questions":[{"id":"q1","question":"first?"}]}`))
	e.ApplyEnvelope(envelope(7, 2, `{"type":"request_user_input","actionId":"u2","questions":[{"id":"q2","question":"second?","options":[{"label":"yes"}]}]}`))
	pending := e.Snapshot().UserInput
	if pending == nil || pending.ActionID != "u2" || pending.Questions[0].ID != "q2" {
		t.Fatalf("expected u2 pending, got %+v", pending)
	}
	if err := e.ResolveUserInput(context.Background(), "u1", schema.UserInputCancel, nil); !errors.Is(err, schema.ErrUserInputNotFound) {
		t.Fatalf("expected ErrUserInputNotFound, got %v", err)
	}
	if err := e.ResolveUserInput(context.Background(), "u2", schema.UserInputSubmit, schema.UserInputAnswers{"q2": "yes"}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if e.Snapshot().UserInput != nil {
		t.Fatalf("expected slot cleared")
	}
	got := e.bridge.userInputs[0]
	if got.ActionID != "u2" || got.Decision != schema.UserInputSubmit || got.Answers["q2"] != "yes" {
		t.Fatalf("unexpected forwarded response %+v", got)
	}
}

func TestDecisionFailureForOldSessionIsNotReported(t *testing.T) {
	release := make(chan struct{})
	bridge := &fakeBridge{approvalFn: func(context.Context, schema.ActionID, schema.ApprovalDecision) error {
		<-release
		return errors.New("late failure")
	}}
	e := newTestEngine(t, bridge)
	e.mustStart(t)
	e.ApplyEnvelope(envelope(7, 1, `{"type":"exec_approval_request","actionId":"a1","command":"ls"}`))
	done := make(chan error, 1)
	go func() { done <- e.ResolveApproval(context.Background(), "a1", schema.ApprovalDecline) }()
	waitFor(t, "approval in flight", func() bool { return len(e.Snapshot().Approvals) == 0 })
	if _, err := e.Restart(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	close(release)
	if err := <-done; err == nil {
		t.Fatalf("expected late failure returned to caller")
	}
	for _, msg := range e.Snapshot().Messages {
		if strings.Contains(msg.Text, "late failure") {
			t.Fatalf("stale failure leaked into new session: %q", msg.Text)
		}
	}
}

func TestListMCPServersRequiresConnection(t *testing.T) {
	bridge := &fakeBridge{mcp: []schema.MCPServer{{Name: "fs", Status: "ready"}}}
	e := newTestEngine(t, bridge)
	if _, err := e.ListMCPServers(context.Background()); !errors.Is(err, schema.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	e.mustStart(t)
	servers, err := e.ListMCPServers(context.Background())
	if err != nil || len(servers) != 1 {
		t.Fatalf("unexpected servers %+v err=%v", servers, err)
	}
}
