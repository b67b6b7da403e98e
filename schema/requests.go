package schema

// Bridge request and response payloads.

// SessionConfig configures a new agent session.
type SessionConfig struct {
	Model           ModelID              `json:"model,omitempty"`
	ReasoningEffort ModelReasoningEffort `json:"reasoningEffort,omitempty"`
	Cwd             string               `json:"cwd,omitempty"`
	ApprovalPolicy  string               `json:"approvalPolicy,omitempty"`
	Sandbox         string               `json:"sandbox,omitempty"`
}

// SessionStartResult reports the identity of a started session.
type SessionStartResult struct {
	SessionID SessionID `json:"sessionId"`
	PID       int       `json:"pid"`
}

// ModelsListResult is the response of a model list request.
type ModelsListResult struct {
	Models []ModelEntry `json:"models"`
}

// MCPServer describes an MCP server known to the backend.
type MCPServer struct {
	Name   string   `json:"name"`
	Status string   `json:"status,omitempty"`
	Tools  []string `json:"tools,omitempty"`
}

// MCPListResult is the response of an MCP server list request.
type MCPListResult struct {
	Servers []MCPServer `json:"servers"`
}

// ApprovalResponse forwards an approval decision to the backend.
type ApprovalResponse struct {
	ActionID ActionID         `json:"actionId"`
	Decision ApprovalDecision `json:"decision"`
}

// UserInputResponse forwards a user-input decision to the backend.
type UserInputResponse struct {
	ActionID ActionID          `json:"actionId"`
	Decision UserInputDecision `json:"decision"`
	Answers  UserInputAnswers  `json:"answers,omitempty"`
}

// TerminalCreateRequest asks the backend for a new pseudo-terminal.
type TerminalCreateRequest struct {
	Cwd string `json:"cwd,omitempty"`
}

// TerminalCreateResult reports the created terminal.
type TerminalCreateResult struct {
	TerminalID TerminalID `json:"terminalId"`
	Title      string     `json:"title,omitempty"`
}

// TerminalWriteRequest writes input to a terminal.
type TerminalWriteRequest struct {
	TerminalID TerminalID `json:"terminalId"`
	Data       string     `json:"data"`
}

// TerminalResizeRequest resizes a terminal.
type TerminalResizeRequest struct {
	TerminalID TerminalID `json:"terminalId"`
	Cols       int        `json:"cols"`
	Rows       int        `json:"rows"`
}

// TerminalKillRequest kills a terminal.
type TerminalKillRequest struct {
	TerminalID TerminalID `json:"terminalId"`
}
