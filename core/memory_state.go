package core

import (
	"time"

	"github.com/google/uuid"
)

// MemoryState is the latest captured snapshot of what is known about one
// session. The store keeps exactly one MemoryState per session id: each
// capture overwrites the previous record wholesale, there is no merge and no
// history. Owned exclusively by the capture layer; readers receive clones.
type MemoryState struct {
	CaptureID             string         `json:"capture_id"`
	SessionID             string         `json:"session_id"`
	Timestamp             time.Time      `json:"timestamp"`
	Context               map[string]any `json:"context"`
	FoundationalContext   map[string]any `json:"foundational_context"`
	ConversationalSummary string         `json:"conversational_summary"`
	OrganizationState     map[string]any `json:"organization_state"`
	SearchHistory         map[string]any `json:"search_history"`
	BridgeStatus          map[string]any `json:"bridge_status"`
}

// Clone returns a deep copy safe for independent mutation by readers.
func (s *MemoryState) Clone() *MemoryState {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Context = cloneMap(s.Context)
	clone.FoundationalContext = cloneMap(s.FoundationalContext)
	clone.OrganizationState = cloneMap(s.OrganizationState)
	clone.SearchHistory = cloneMap(s.SearchHistory)
	clone.BridgeStatus = cloneMap(s.BridgeStatus)
	return &clone
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Unavailable builds the degraded-subfield marker stored in place of data a
// provider failed to supply. Partial knowledge beats no knowledge: a capture
// with unavailable sub-fields still succeeds.
func Unavailable(reason string) map[string]any {
	return map[string]any{"status": "unavailable", "reason": reason}
}

// DefaultMemoryDocument is the fallback memory structure used whenever the
// bridge returns a non-zero exit or malformed JSON for a session.
func DefaultMemoryDocument(sessionID string) map[string]any {
	return map[string]any{
		"session_id":             sessionID,
		"conversational_summary": "",
		"context":                map[string]any{},
		"inherited":              false,
	}
}

// NewID generates a unique identifier for captures and turn correlation.
func NewID() string { return uuid.NewString() }
