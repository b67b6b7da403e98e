package core

import (
	"context"

	"pkt.systems/cxconsole/schema"
)

// Bridge is the request/response channel to the backend runtime process.
// Implementations must be safe for concurrent use.
type Bridge interface {
	SessionStart(ctx context.Context, cfg schema.SessionConfig) (schema.SessionStartResult, error)
	SessionStop(ctx context.Context) error
	ModelsList(ctx context.Context) ([]schema.ModelEntry, error)
	MCPList(ctx context.Context) ([]schema.MCPServer, error)
	ApprovalRespond(ctx context.Context, actionID schema.ActionID, decision schema.ApprovalDecision) error
	UserInputRespond(ctx context.Context, actionID schema.ActionID, decision schema.UserInputDecision, answers schema.UserInputAnswers) error
	TerminalCreate(ctx context.Context, cwd string) (schema.TerminalCreateResult, error)
	TerminalWrite(ctx context.Context, id schema.TerminalID, data string) error
	TerminalResize(ctx context.Context, id schema.TerminalID, cols, rows int) error
	TerminalKill(ctx context.Context, id schema.TerminalID) error
}

// PushSource delivers the backend's two ordered push topics.
// Both channels are closed when the underlying connection ends.
type PushSource interface {
	SessionEvents() <-chan schema.SessionPush
	TerminalEvents() <-chan schema.TerminalPush
}

// Viewport reports the geometry of the visible terminal widget.
type Viewport interface {
	Size() (cols, rows int, ok bool)
}
