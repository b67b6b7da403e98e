package core

import (
	"context"
	"fmt"

	"pkt.systems/cxconsole/internal/logx"
	"pkt.systems/cxconsole/schema"
)

// decisionQueues holds requests awaiting a human decision: approvals in arrival
// order and at most one user-input request.
type decisionQueues struct {
	approvals []schema.PendingApproval
	userInput *schema.PendingUserInput
}

// AddApproval appends the request; a repeated action id replaces the queued entry in place.
func (q *decisionQueues) AddApproval(approval schema.PendingApproval) {
	for i := range q.approvals {
		if q.approvals[i].ActionID == approval.ActionID {
			q.approvals[i] = approval
			return
		}
	}
	q.approvals = append(q.approvals, approval)
}

func (q *decisionQueues) RemoveApproval(id schema.ActionID) bool {
	for i := range q.approvals {
		if q.approvals[i].ActionID == id {
			q.approvals = append(q.approvals[:i], q.approvals[i+1:]...)
			return true
		}
	}
	return false
}

// SetUserInput supersedes any pending request.
func (q *decisionQueues) SetUserInput(input schema.PendingUserInput) {
	q.userInput = &input
}

// Clear empties both queues and reports whether anything was pending.
func (q *decisionQueues) Clear() bool {
	changed := len(q.approvals) > 0 || q.userInput != nil
	q.approvals = nil
	q.userInput = nil
	return changed
}

func (q *decisionQueues) Approvals() []schema.PendingApproval {
	return append([]schema.PendingApproval(nil), q.approvals...)
}

func (q *decisionQueues) UserInput() *schema.PendingUserInput {
	if q.userInput == nil {
		return nil
	}
	input := q.userInput.Clone()
	return &input
}

func (q *decisionQueues) Event() schema.QueueEvent {
	return schema.QueueEvent{Approvals: q.Approvals(), UserInput: q.UserInput()}
}

// ResolveApproval removes the request and forwards the decision. The request is not
// re-queued when the backend call fails; the next event stream state is authoritative.
func (e *Engine) ResolveApproval(ctx context.Context, actionID schema.ActionID, decision schema.ApprovalDecision) error {
	normalized, err := schema.NormalizeApprovalDecision(string(decision))
	if err != nil {
		return err
	}
	e.mu.Lock()
	if !e.queues.RemoveApproval(actionID) {
		e.mu.Unlock()
		return schema.ErrApprovalNotFound
	}
	var out outbox
	out.queue(e.queues.Event())
	generation := e.session.generation
	e.mu.Unlock()
	out.flush(e.sink)

	log := logx.WithAction(e.logger, actionID)
	callCtx, cancel := e.requestContext(ctx)
	err = e.bridge.ApprovalRespond(callCtx, actionID, normalized)
	cancel()
	if err != nil {
		e.reportDecisionFailure(generation, fmt.Sprintf("approval %s (%s) failed: %v", actionID, normalized, err))
		log.Warn("engine approval respond failed", "decision", normalized, "err", err)
		return err
	}
	log.Info("engine approval respond ok", "decision", normalized)
	return nil
}

// ResolveUserInput clears the pending request and forwards the decision. Answer
// completeness is checked by callers with schema.ValidateUserInputAnswers.
func (e *Engine) ResolveUserInput(ctx context.Context, actionID schema.ActionID, decision schema.UserInputDecision, answers schema.UserInputAnswers) error {
	normalized, err := schema.NormalizeUserInputDecision(string(decision))
	if err != nil {
		return err
	}
	e.mu.Lock()
	if e.queues.userInput == nil || e.queues.userInput.ActionID != actionID {
		e.mu.Unlock()
		return schema.ErrUserInputNotFound
	}
	var out outbox
	e.queues.userInput = nil
	out.queue(e.queues.Event())
	generation := e.session.generation
	e.mu.Unlock()
	out.flush(e.sink)

	if normalized == schema.UserInputCancel {
		answers = nil
	}
	log := logx.WithAction(e.logger, actionID)
	callCtx, cancel := e.requestContext(ctx)
	err = e.bridge.UserInputRespond(callCtx, actionID, normalized, answers)
	cancel()
	if err != nil {
		e.reportDecisionFailure(generation, fmt.Sprintf("user input %s (%s) failed: %v", actionID, normalized, err))
		log.Warn("engine user input respond failed", "decision", normalized, "err", err)
		return err
	}
	log.Info("engine user input respond ok", "decision", normalized)
	return nil
}

// reportDecisionFailure shows the failure only if the session it belonged to is still current.
func (e *Engine) reportDecisionFailure(generation uint64, text string) {
	e.mu.Lock()
	if e.session.generation != generation {
		e.mu.Unlock()
		return
	}
	var out outbox
	e.appendMessageLocked(&out, schema.MessageSystem, text)
	e.mu.Unlock()
	out.flush(e.sink)
}

// ListMCPServers returns the backend's MCP servers. It requires a connected session.
func (e *Engine) ListMCPServers(ctx context.Context) ([]schema.MCPServer, error) {
	e.mu.Lock()
	connected := e.session.info().Connected()
	e.mu.Unlock()
	if !connected {
		return nil, schema.ErrNotConnected
	}
	callCtx, cancel := e.requestContext(ctx)
	defer cancel()
	servers, err := e.bridge.MCPList(callCtx)
	if err != nil {
		return nil, fmt.Errorf("mcp list: %w", err)
	}
	return servers, nil
}
