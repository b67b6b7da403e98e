package logx

import (
	"context"

	"pkt.systems/cxconsole/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	sessionKey contextKey = iota
	terminalKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithSessionCtx annotates the context logger with the session id unless the
// context already carries the same marker.
func WithSessionCtx(ctx context.Context, sessionID schema.SessionID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if sessionID == 0 {
		return log
	}
	if current, ok := ctx.Value(sessionKey).(schema.SessionID); ok && current == sessionID {
		return log
	}
	return log.With("session", int64(sessionID))
}

// WithTerminalCtx annotates the context logger with the terminal id unless the
// context already carries the same marker.
func WithTerminalCtx(ctx context.Context, terminalID schema.TerminalID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if terminalID == "" {
		return log
	}
	if current, ok := ctx.Value(terminalKey).(schema.TerminalID); ok && current == terminalID {
		return log
	}
	return log.With("terminal", terminalID)
}

// WithSession annotates the logger with a session id when available.
func WithSession(log pslog.Logger, sessionID schema.SessionID) pslog.Logger {
	if sessionID != 0 {
		log = log.With("session", int64(sessionID))
	}
	return log
}

// WithTerminal annotates the logger with a terminal id when available.
func WithTerminal(log pslog.Logger, terminalID schema.TerminalID) pslog.Logger {
	if terminalID != "" {
		log = log.With("terminal", terminalID)
	}
	return log
}

// WithAction annotates the logger with an approval or user-input action id.
func WithAction(log pslog.Logger, actionID schema.ActionID) pslog.Logger {
	if actionID != "" {
		log = log.With("action", actionID)
	}
	return log
}

// ContextWithSession stores the session marker on the context for log de-duplication.
func ContextWithSession(ctx context.Context, sessionID schema.SessionID) context.Context {
	if ctx == nil || sessionID == 0 {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, sessionID)
}

// ContextWithTerminal stores the terminal marker on the context for log de-duplication.
func ContextWithTerminal(ctx context.Context, terminalID schema.TerminalID) context.Context {
	if ctx == nil || terminalID == "" {
		return ctx
	}
	return context.WithValue(ctx, terminalKey, terminalID)
}

// ContextWithSessionLogger attaches the logger and session marker to the context.
func ContextWithSessionLogger(ctx context.Context, log pslog.Logger, sessionID schema.SessionID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithSession(ctx, sessionID)
}

// CopyContextFields copies session/terminal markers from src to dst.
func CopyContextFields(dst context.Context, src context.Context) context.Context {
	if src == nil {
		return dst
	}
	if session, ok := src.Value(sessionKey).(schema.SessionID); ok && session != 0 {
		dst = ContextWithSession(dst, session)
	}
	if terminal, ok := src.Value(terminalKey).(schema.TerminalID); ok && terminal != "" {
		dst = ContextWithTerminal(dst, terminal)
	}
	return dst
}
