package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hupe1980/memomesh/capture"
	"github.com/hupe1980/memomesh/core"
	"github.com/hupe1980/memomesh/inject"
	"github.com/hupe1980/memomesh/lifecycle"
	"github.com/hupe1980/memomesh/logging"
	"github.com/hupe1980/memomesh/orgstate"
	"github.com/hupe1980/memomesh/validate"
)

// Runtime aggregates the wired subsystems of a bootstrapped pipeline. It is
// handed to the hook layer and stays valid for the life of the process.
type Runtime struct {
	Config    Config
	Stage     Stage
	Lifecycle *lifecycle.Manager
	Capture   *capture.StateCapture
	Injector  *inject.Injector
	Verifier  *validate.Verifier
	Bridge    core.MemoryBridge
	Searcher  core.MemorySearcher
	Org       *orgstate.Store
	Probes    map[string]core.ProbeResult

	logger      logging.Logger
	watchCancel context.CancelFunc

	mu           sync.Mutex
	fallbacks    int
	searches     []map[string]any
	bridgeNotes  map[string]any
	lastSearchAt time.Time
}

// FallbackCount reports how many times the fallback path has run.
func (rt *Runtime) FallbackCount() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.fallbacks
}

// Degraded reports whether the runtime ever entered fallback.
func (rt *Runtime) Degraded() bool { return rt.FallbackCount() > 0 }

// RecordSearch appends an entry to the per-runtime search history exposed to
// subsequent captures.
func (rt *Runtime) RecordSearch(query string, hits int) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.lastSearchAt = time.Now().UTC()
	rt.searches = append(rt.searches, map[string]any{
		"query":     query,
		"hits":      hits,
		"timestamp": rt.lastSearchAt.Format(time.RFC3339),
	})
	// Keep the history small; old entries carry no injection value.
	if len(rt.searches) > 20 {
		rt.searches = rt.searches[len(rt.searches)-20:]
	}
}

// NoteBridgeStatus records a status field exposed through the bridge_status
// sub-field of subsequent captures.
func (rt *Runtime) NoteBridgeStatus(key string, value any) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.bridgeNotes == nil {
		rt.bridgeNotes = map[string]any{}
	}
	rt.bridgeNotes[key] = value
}

func (rt *Runtime) searchHistoryProvider(sessionID string) (map[string]any, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := map[string]any{"count": len(rt.searches)}
	if len(rt.searches) > 0 {
		entries := make([]map[string]any, len(rt.searches))
		copy(entries, rt.searches)
		out["entries"] = entries
		out["last_search_at"] = rt.lastSearchAt.Format(time.RFC3339)
	}
	return out, nil
}

func (rt *Runtime) bridgeStatusProvider(sessionID string) (map[string]any, error) {
	rt.mu.Lock()
	notes := make(map[string]any, len(rt.bridgeNotes)+len(rt.Probes))
	for k, v := range rt.bridgeNotes {
		notes[k] = v
	}
	rt.mu.Unlock()
	for name, p := range rt.Probes {
		notes[name] = p.Status
	}
	return notes, nil
}

// Fallback is the always-succeeding degraded path. It synthesizes a minimal
// but complete context for the configured session, captures it, and writes a
// per-session record to disk so a later process can inherit it. Repeat calls
// are safe; each one re-captures and rewrites the record.
func (rt *Runtime) Fallback(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil && rt.logger != nil {
			rt.logger.Error("fallback recovered from panic", "panic", fmt.Sprintf("%v", r))
		}
	}()

	rt.mu.Lock()
	rt.fallbacks++
	rt.mu.Unlock()

	cfg := rt.Config
	synthesized := map[string]any{
		"source":       "fallback",
		"foundational": DefaultFoundationalContext(cfg.SessionID),
	}
	if org, err := rt.Org.Snapshot(); err == nil {
		synthesized["organization"] = org
	} else {
		synthesized["organization"] = core.Unavailable(err.Error())
	}

	state := rt.Capture.Capture(cfg.SessionID, synthesized)

	if err := rt.writeSessionRecord(state); err != nil && rt.logger != nil {
		rt.logger.Warn("fallback session record not written", "error", err.Error())
	}
	if rt.logger != nil {
		rt.logger.Info("fallback inheritance engaged", "session_id", cfg.SessionID, "count", rt.FallbackCount())
	}
}

// writeSessionRecord persists the captured state as a standalone JSON file
// under the session records directory.
func (rt *Runtime) writeSessionRecord(state *core.MemoryState) error {
	dir := rt.Config.SessionRecordsDir
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	record := map[string]any{
		"schema_version":         orgstate.SchemaVersion,
		"session_id":             state.SessionID,
		"capture_id":             state.CaptureID,
		"timestamp":              state.Timestamp,
		"context":                state.Context,
		"foundational_context":   state.FoundationalContext,
		"conversational_summary": state.ConversationalSummary,
		"organization_state":     state.OrganizationState,
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, state.SessionID+".json")
	return os.WriteFile(path, data, 0o644)
}

// Shutdown fires the shutdown event, stops the periodic capture timer and
// the organization watcher, and releases the verifier cache.
func (rt *Runtime) Shutdown(ctx context.Context) {
	rt.Lifecycle.Trigger(ctx, lifecycle.EventShutdown, map[string]any{
		"session_id": rt.Config.SessionID,
	})
	rt.Capture.StopPeriodicCapture()
	if rt.watchCancel != nil {
		rt.watchCancel()
	}
	if rt.Verifier != nil {
		rt.Verifier.Close()
	}
}
