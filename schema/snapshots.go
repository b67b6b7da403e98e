package schema

import "time"

// SessionState is the state of the single active agent session.
type SessionState string

const (
	SessionIdle     SessionState = "idle"
	SessionStarting SessionState = "starting"
	SessionRunning  SessionState = "running"
	SessionStopping SessionState = "stopping"
	SessionError    SessionState = "error"
)

// SessionInfo is a read-only view of the session lifecycle.
// SessionID is non-nil iff State is running or stopping.
type SessionInfo struct {
	State     SessionState
	SessionID *SessionID
	PID       int
	Model     ModelID
	LastError string
	Busy      bool
	Usage     *TokenUsage
	Reasoning string
}

// Connected reports whether the session can serve backend requests.
func (s SessionInfo) Connected() bool {
	return s.State == SessionRunning && s.SessionID != nil
}

// SessionRecord is an entry in the recent sessions list.
type SessionRecord struct {
	ID        RecordID  `json:"id"`
	SessionID SessionID `json:"sessionId"`
	Name      string    `json:"name"`
	Model     ModelID   `json:"model,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	Active    bool      `json:"active"`
}

// MessageKind classifies an entry in the visible transcript.
type MessageKind string

const (
	MessageAgent  MessageKind = "agent"
	MessageSystem MessageKind = "system"
	MessageError  MessageKind = "error"
	MessageSpawn  MessageKind = "spawn"
)

// Message is an entry in the visible transcript.
type Message struct {
	ID     uint64
	Kind   MessageKind
	Text   string
	CallID CallID
	Spawn  *SpawnRecord
	At     time.Time
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if m.Spawn != nil {
		spawn := m.Spawn.Clone()
		out.Spawn = &spawn
	}
	return out
}

// TerminalChunk is one ordered chunk of terminal output.
type TerminalChunk struct {
	Seq  int64
	Data string
}

// TerminalSnapshot is a read-only view of a terminal session.
type TerminalSnapshot struct {
	ID       TerminalID
	Title    string
	Alive    bool
	ExitCode *int
	Cols     int
	Rows     int
	Chunks   []TerminalChunk
	Active   bool
}

// EngineSnapshot is a copy of all engine state for rendering.
type EngineSnapshot struct {
	Session        SessionInfo
	Messages       []Message
	Streams        map[CallID]string
	Approvals      []PendingApproval
	UserInput      *PendingUserInput
	Terminals      []TerminalSnapshot
	ActiveTerminal *TerminalID
	Catalog        CatalogSnapshot
	Records        []SessionRecord
	Console        []string
}

// ConsoleTail is the newest part of the backend output log.
type ConsoleTail struct {
	Lines []string
	// Total counts retained lines; Dropped counts lines trimmed by the bound.
	Total   int
	Dropped int
}
