package schema

import (
	"fmt"
	"strings"
)

// ApprovalKind describes what an approval request is for.
type ApprovalKind string

const (
	// ApprovalFileChange requests approval to apply a file change.
	ApprovalFileChange ApprovalKind = "file_change"
	// ApprovalCommandExec requests approval to run a command.
	ApprovalCommandExec ApprovalKind = "command_exec"
)

// PendingApproval is an outstanding approval request awaiting a decision.
type PendingApproval struct {
	ActionID  ActionID     `json:"actionId"`
	Kind      ApprovalKind `json:"kind"`
	Reason    string       `json:"reason,omitempty"`
	Cwd       string       `json:"cwd,omitempty"`
	GrantRoot string       `json:"grantRoot,omitempty"`
	Command   string       `json:"command,omitempty"`
	ItemID    string       `json:"itemId,omitempty"`
}

// ApprovalDecision is the human decision for an approval request.
type ApprovalDecision string

const (
	ApprovalAccept           ApprovalDecision = "accept"
	ApprovalAcceptForSession ApprovalDecision = "acceptForSession"
	ApprovalDecline          ApprovalDecision = "decline"
	ApprovalCancel           ApprovalDecision = "cancel"
)

// UserInputOption is a selectable answer for a question.
type UserInputOption struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// UserInputQuestion is a single question in a user-input request.
type UserInputQuestion struct {
	ID       string            `json:"id"`
	Header   string            `json:"header,omitempty"`
	Question string            `json:"question"`
	Options  []UserInputOption `json:"options,omitempty"`
}

// PendingUserInput is the single outstanding user-input request.
type PendingUserInput struct {
	ActionID  ActionID            `json:"actionId"`
	Questions []UserInputQuestion `json:"questions"`
	TimeoutMs *int64              `json:"timeoutMs,omitempty"`
}

// Clone returns a deep copy of the request.
func (p PendingUserInput) Clone() PendingUserInput {
	out := p
	out.Questions = make([]UserInputQuestion, len(p.Questions))
	for i, q := range p.Questions {
		q.Options = append([]UserInputOption(nil), q.Options...)
		out.Questions[i] = q
	}
	if p.TimeoutMs != nil {
		timeout := *p.TimeoutMs
		out.TimeoutMs = &timeout
	}
	return out
}

// UserInputDecision is the outcome of a user-input request.
type UserInputDecision string

const (
	UserInputSubmit UserInputDecision = "submit"
	UserInputCancel UserInputDecision = "cancel"
)

// UserInputAnswers maps question ids to the selected answer.
type UserInputAnswers map[string]string

// ValidateUserInputAnswers ensures every question has a non-empty answer.
func ValidateUserInputAnswers(input PendingUserInput, answers UserInputAnswers) error {
	var missing []string
	for _, question := range input.Questions {
		if strings.TrimSpace(answers[question.ID]) == "" {
			missing = append(missing, question.ID)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingAnswers, strings.Join(missing, ", "))
	}
	return nil
}
