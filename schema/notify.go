package schema

// MessageEvent reports an appended or updated transcript entry.
type MessageEvent struct {
	Message Message
	// Merged is true when an existing spawn entry was updated in place.
	Merged bool
}

// SessionEvent reports a change to the session lifecycle or its auxiliary displays.
type SessionEvent struct {
	Session SessionInfo
}

// StreamEvent reports the live accumulator of a streamed item.
type StreamEvent struct {
	Kind   StreamKind
	CallID CallID
	Text   string
	Done   bool
}

// TerminalEventType describes terminal lifecycle or output changes.
type TerminalEventType string

const (
	TerminalEventCreated   TerminalEventType = "created"
	TerminalEventData      TerminalEventType = "data"
	TerminalEventExited    TerminalEventType = "exited"
	TerminalEventClosed    TerminalEventType = "closed"
	TerminalEventActivated TerminalEventType = "activated"
)

// TerminalEvent reports a terminal change. ActiveTerminal is empty when no terminal is selected.
type TerminalEvent struct {
	Type           TerminalEventType
	TerminalID     TerminalID
	Chunk          *TerminalChunk
	ExitCode       *int
	ActiveTerminal TerminalID
}

// QueueEvent reports the current approval and user-input queues.
type QueueEvent struct {
	Approvals []PendingApproval
	UserInput *PendingUserInput
}

// CatalogEvent reports a model catalog change.
type CatalogEvent struct {
	Catalog CatalogSnapshot
}

// ConsoleEvent reports raw backend output lines.
type ConsoleEvent struct {
	Lines []string
}
