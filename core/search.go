package core

import "time"

// MemoryHit is one recalled session surfaced by keyword search over captured
// memory. Summary falls back to a fixed marker string when the session was
// captured without a conversational summary.
type MemoryHit struct {
	SessionID string    `json:"session_id"`
	Summary   string    `json:"summary"`
	Timestamp time.Time `json:"timestamp"`
}

// NoSummaryMarker is the Summary value for sessions captured without one.
const NoSummaryMarker = "no conversational summary captured"
