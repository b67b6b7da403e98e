package schema

import (
	"fmt"
	"strings"
)

// ModelReasoningEffort is the reasoning effort requested for a model.
type ModelReasoningEffort string

// ModelReasoningMinimal and related constants define allowed reasoning effort values.
const (
	ModelReasoningNone    ModelReasoningEffort = "none"
	ModelReasoningMinimal ModelReasoningEffort = "minimal"
	ModelReasoningLow     ModelReasoningEffort = "low"
	ModelReasoningMedium  ModelReasoningEffort = "medium"
	ModelReasoningHigh    ModelReasoningEffort = "high"
	ModelReasoningXHigh   ModelReasoningEffort = "xhigh"
)

// DefaultModelReasoningEffort is the default reasoning effort when none is specified.
const DefaultModelReasoningEffort ModelReasoningEffort = ModelReasoningMedium

// FormatModelWithReasoning formats a model label that includes reasoning effort.
func FormatModelWithReasoning(label string, effort ModelReasoningEffort) string {
	name := strings.TrimSpace(label)
	if name == "" {
		name = "unknown"
	}
	reasoning := strings.TrimSpace(string(effort))
	if reasoning == "" {
		reasoning = string(DefaultModelReasoningEffort)
	}
	return fmt.Sprintf("%s (reasoning %s)", name, reasoning)
}
