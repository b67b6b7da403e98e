package schema

// SessionID identifies a backend agent session. It is assigned by the backend.
type SessionID int64

// TerminalID identifies a backend pseudo-terminal for the lifetime of the backend process.
type TerminalID string

// ActionID identifies an outstanding approval or user-input request.
type ActionID string

// CallID identifies a tool call or streamed item.
type CallID string

// AgentID identifies a spawned sub-agent.
type AgentID string

// ModelID identifies an LLM model.
type ModelID string

// RecordID identifies a session record in the recent sessions list.
type RecordID string

// DefaultModelID is the sentinel that resolves to the catalog's default entry.
const DefaultModelID ModelID = "default"

// Line markers are single control bytes prefixed to rendered lines so the
// console can style them. Agent and reasoning lines carry markdown.
const (
	StderrMarker    = "\x1f"
	AgentMarker     = "\x1c"
	ReasoningMarker = "\x1d"
	CommandMarker   = "\x1a"
)
