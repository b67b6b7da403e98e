package schema

import (
	"strings"
	"unicode"
)

// NormalizeModelID validates and normalizes a model identifier.
// Allowed characters: A-Z, a-z, 0-9, '.', '_', '-', ':', '/'.
func NormalizeModelID(model string) (ModelID, error) {
	trimmed := strings.TrimSpace(model)
	if trimmed == "" {
		return "", ErrInvalidModel
	}
	for _, r := range trimmed {
		if r == '.' || r == '_' || r == '-' || r == ':' || r == '/' {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		return "", ErrInvalidModel
	}
	return ModelID(trimmed), nil
}

// NormalizeModelReasoningEffort validates and normalizes a reasoning effort value.
// Allowed values: none, minimal, low, medium, high, xhigh.
func NormalizeModelReasoningEffort(value string) (ModelReasoningEffort, error) {
	trimmed := strings.TrimSpace(strings.ToLower(value))
	if trimmed == "" {
		return "", ErrInvalidModelReasoningEffort
	}
	switch trimmed {
	case "none", "minimal", "low", "medium", "high", "xhigh":
		return ModelReasoningEffort(trimmed), nil
	default:
		return "", ErrInvalidModelReasoningEffort
	}
}

// NormalizeApprovalDecision validates an approval decision. Matching is case-insensitive
// and accepts "accept_for_session" as an alias.
func NormalizeApprovalDecision(value string) (ApprovalDecision, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, "_", "")
	normalized = strings.ReplaceAll(normalized, "-", "")
	switch normalized {
	case "accept", "yes", "y":
		return ApprovalAccept, nil
	case "acceptforsession", "always":
		return ApprovalAcceptForSession, nil
	case "decline", "no", "n":
		return ApprovalDecline, nil
	case "cancel":
		return ApprovalCancel, nil
	default:
		return "", ErrInvalidDecision
	}
}

// NormalizeUserInputDecision validates a user-input decision.
func NormalizeUserInputDecision(value string) (UserInputDecision, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "submit":
		return UserInputSubmit, nil
	case "cancel":
		return UserInputCancel, nil
	default:
		return "", ErrInvalidDecision
	}
}
