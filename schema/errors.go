package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNoSession indicates no agent session is active.
	ErrNoSession = errors.New("no active session")
	// ErrSessionBusy indicates a session transition is already in progress.
	ErrSessionBusy = errors.New("session transition in progress")
	// ErrNotConnected indicates the backend session is not connected.
	ErrNotConnected = errors.New("session not connected")
	// ErrStaleResponse indicates a backend response arrived for a session that is no longer current.
	ErrStaleResponse = errors.New("stale response")
	// ErrTerminalNotFound indicates a requested terminal could not be found.
	ErrTerminalNotFound = errors.New("terminal not found")
	// ErrApprovalNotFound indicates no pending approval matches the action id.
	ErrApprovalNotFound = errors.New("approval not found")
	// ErrUserInputNotFound indicates no pending user input matches the action id.
	ErrUserInputNotFound = errors.New("user input request not found")
	// ErrInvalidDecision indicates an unknown approval or user-input decision.
	ErrInvalidDecision = errors.New("invalid decision")
	// ErrMissingAnswers indicates a user-input submission left questions unanswered.
	ErrMissingAnswers = errors.New("missing answers")
	// ErrInvalidModel indicates an invalid model identifier.
	ErrInvalidModel = errors.New("invalid model")
	// ErrInvalidModelReasoningEffort indicates an invalid reasoning effort value.
	ErrInvalidModelReasoningEffort = errors.New("invalid model reasoning effort")
	// ErrBridgeClosed indicates the backend bridge has been closed.
	ErrBridgeClosed = errors.New("bridge closed")
)
