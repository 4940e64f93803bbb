package core

import "context"

// MemoryBridge is the external collaborator responsible for durable memory
// persistence, keyed by session id. Implementations are typically
// subprocess-backed; every method honors the context deadline and a failed or
// malformed call must still yield a usable (default) document rather than nil.
type MemoryBridge interface {
	// Init prepares the bridge. Safe to call more than once.
	Init(ctx context.Context) error
	// GetMemory returns the persisted memory document for the session. The
	// returned map is non-nil even when err != nil (default structure fallback).
	GetMemory(ctx context.Context, sessionID string) (map[string]any, error)
	// SaveMemory persists the document for the session wholesale.
	SaveMemory(ctx context.Context, sessionID string, doc map[string]any) error
	// CompressMemory asks the bridge to compact older entries for the session.
	CompressMemory(ctx context.Context, sessionID string) error
}

// MemorySearcher is the external keyword-lookup collaborator. Output is free
// text already truncated to the prompt embedding budget.
type MemorySearcher interface {
	Search(ctx context.Context, searchType, query string) (string, error)
}

// ProbeResult records the outcome of probing one optional external
// integration during bootstrap. Probe failures are never fatal; they are
// recorded here per integration and the sequence continues.
type ProbeResult struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Status    string `json:"status"`
	Err       string `json:"error,omitempty"`
}
