package schema

import "time"

// ReasoningEffortOption describes one reasoning effort supported by a model.
type ReasoningEffortOption struct {
	ReasoningEffort ModelReasoningEffort `json:"reasoningEffort"`
	Description     string               `json:"description,omitempty"`
}

// ModelEntry is one model in the catalog.
type ModelEntry struct {
	ID                        ModelID                 `json:"id"`
	DisplayName               string                  `json:"displayName,omitempty"`
	IsDefault                 bool                    `json:"isDefault,omitempty"`
	SupportsPersonality       bool                    `json:"supportsPersonality,omitempty"`
	SupportedReasoningEfforts []ReasoningEffortOption `json:"supportedReasoningEfforts,omitempty"`
}

// Label returns the display name, falling back to the id.
func (m ModelEntry) Label() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return string(m.ID)
}

// CatalogSnapshot is a read-only view of the model catalog.
type CatalogSnapshot struct {
	Entries   []ModelEntry
	CachedAt  time.Time
	Stale     bool
	Loading   bool
	LastError string
}

// CloneModelEntries returns a deep copy of entries.
func CloneModelEntries(entries []ModelEntry) []ModelEntry {
	if entries == nil {
		return nil
	}
	out := make([]ModelEntry, len(entries))
	for i, entry := range entries {
		entry.SupportedReasoningEfforts = append([]ReasoningEffortOption(nil), entry.SupportedReasoningEfforts...)
		out[i] = entry
	}
	return out
}
