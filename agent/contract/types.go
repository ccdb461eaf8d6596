package contract

import "strings"

type AgentType string

const (
	AgentTypeMemoryExtraction AgentType = "memory_extraction"
	AgentTypeMemoryInjection  AgentType = "memory_injection"
	AgentTypeReservation      AgentType = "reservation"
	AgentTypeSupport          AgentType = "support"
)

// MemoryExtraction is the structured answer the extraction model must return.
type MemoryExtraction struct {
	IsImportant     bool    `json:"is_important"`
	FormattedMemory *string `json:"formatted_memory"`

	// Annotations added after the model call.
	MemoryID   string `json:"memory_id,omitempty"`
	Updated    bool   `json:"memory_updated,omitempty"`
	RawText    string `json:"raw_text,omitempty"`
	Error      string `json:"error,omitempty"`
	OwnerLabel string `json:"owner,omitempty"`
}

// Memory returns the trimmed formatted memory or "" when absent.
func (m MemoryExtraction) Memory() string {
	if m.FormattedMemory == nil {
		return ""
	}
	return strings.TrimSpace(*m.FormattedMemory)
}

// ShouldStore reports whether the extraction names a fact worth persisting.
func (m MemoryExtraction) ShouldStore() bool {
	return m.IsImportant && m.Memory() != ""
}
