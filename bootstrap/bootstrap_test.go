package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/memomesh/core"
	"github.com/hupe1980/memomesh/lifecycle"
)

type recordingBridge struct {
	mu         sync.Mutex
	initErr    error
	initCalls  int
	compressed []string
	saved      map[string]map[string]any
}

func (b *recordingBridge) Init(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initCalls++
	return b.initErr
}

func (b *recordingBridge) GetMemory(ctx context.Context, sessionID string) (map[string]any, error) {
	return core.DefaultMemoryDocument(sessionID), nil
}

func (b *recordingBridge) SaveMemory(ctx context.Context, sessionID string, doc map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.saved == nil {
		b.saved = map[string]map[string]any{}
	}
	b.saved[sessionID] = doc
	return nil
}

func (b *recordingBridge) CompressMemory(ctx context.Context, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.compressed = append(b.compressed, sessionID)
	return nil
}

func runForTest(t *testing.T, overrides func(c *Config), optFns ...func(o *Options)) *Runtime {
	t.Helper()

	base := t.TempDir()
	rt, err := New(optFns...).Run(context.Background(), func(c *Config) {
		c.SessionID = "sess-test"
		c.BasePath = base
		if overrides != nil {
			overrides(c)
		}
	})
	require.NoError(t, err)
	t.Cleanup(func() { rt.Shutdown(context.Background()) })

	return rt
}

func TestRunReachesReadyWithoutExternalScripts(t *testing.T) {
	rt := runForTest(t, nil)

	assert.Equal(t, StageReady, rt.Stage)
	assert.Equal(t, 0, rt.FallbackCount())
	assert.False(t, rt.Degraded())

	state, ok := rt.Capture.Get("sess-test")
	require.True(t, ok)
	assert.Equal(t, "bootstrap", state.Context["source"])

	for _, name := range []string{"search", "collaboration_bridge", "memory_bridge", "inheritance_bridge", "session_bridge"} {
		probe, ok := rt.Probes[name]
		require.True(t, ok, "missing probe %s", name)
		assert.False(t, probe.Available)
		assert.Equal(t, "not_configured", probe.Status)
	}
}

func TestRunRaisesOnlyForInvalidSessionID(t *testing.T) {
	_, err := New().Run(context.Background(), func(c *Config) { c.SessionID = "ab" })
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSessionID)
}

func TestBridgeInitFailureEngagesFallbackOnce(t *testing.T) {
	br := &recordingBridge{initErr: errors.New("backend down")}
	rt := runForTest(t, nil, func(o *Options) { o.Bridge = br })

	assert.Equal(t, StageReady, rt.Stage, "a failed stage degrades, it does not abort")
	assert.Equal(t, 1, rt.FallbackCount())
	assert.True(t, rt.Degraded())

	state, ok := rt.Capture.Get("sess-test")
	require.True(t, ok)
	assert.Equal(t, "fallback", state.Context["source"])
	assert.NotEmpty(t, state.FoundationalContext)
}

func TestFallbackWritesSessionRecord(t *testing.T) {
	br := &recordingBridge{initErr: errors.New("backend down")}
	rt := runForTest(t, nil, func(o *Options) { o.Bridge = br })

	path := filepath.Join(rt.Config.SessionRecordsDir, "sess-test.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Equal(t, float64(1), record["schema_version"])
	assert.Equal(t, "sess-test", record["session_id"])
	assert.NotEmpty(t, record["capture_id"])
	assert.NotEmpty(t, record["timestamp"])
}

func TestFallbackNeverPanicsWithoutSubsystems(t *testing.T) {
	rt := runForTest(t, nil)

	// Repeat invocations are safe and each one counts.
	rt.Fallback(context.Background())
	rt.Fallback(context.Background())
	assert.Equal(t, 2, rt.FallbackCount())
}

func TestSessionTransitionCompressesPreviousSession(t *testing.T) {
	br := &recordingBridge{}
	rt := runForTest(t, nil, func(o *Options) { o.Bridge = br })

	rt.Lifecycle.Trigger(context.Background(), lifecycle.EventSessionTransition, map[string]any{
		"previous_session_id": "sess-old",
	})

	br.mu.Lock()
	defer br.mu.Unlock()
	assert.Equal(t, []string{"sess-old"}, br.compressed)

	// A transition without a previous session is a no-op.
	rt.Lifecycle.Trigger(context.Background(), lifecycle.EventSessionTransition, map[string]any{})
	assert.Len(t, br.compressed, 1)
}

func TestStateChangeRecapturesOnlyForOrgFileSource(t *testing.T) {
	rt := runForTest(t, nil)

	rt.Capture.Capture("sess-test", map[string]any{
		"conversational_summary": "user asked about deployments",
	})

	rt.Lifecycle.Trigger(context.Background(), lifecycle.EventStateChange, map[string]any{
		"source": "orgstate_file",
	})

	state, ok := rt.Capture.Get("sess-test")
	require.True(t, ok)
	assert.Equal(t, "user asked about deployments", state.ConversationalSummary,
		"re-capture carries the conversational summary forward")

	before := state.CaptureID
	rt.Lifecycle.Trigger(context.Background(), lifecycle.EventStateChange, map[string]any{
		"source": "somewhere_else",
	})
	state, _ = rt.Capture.Get("sess-test")
	assert.Equal(t, before, state.CaptureID, "foreign sources do not trigger a re-capture")
}

func TestInheritanceScriptFailureDegrades(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "inherit.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexit 1\n"), 0o755))

	rt := runForTest(t, func(c *Config) { c.InheritanceScript = script })

	assert.Equal(t, 1, rt.FallbackCount())
}

func TestSearchHistoryFlowsIntoCaptures(t *testing.T) {
	rt := runForTest(t, nil)

	rt.RecordSearch("database migration", 2)
	state := rt.Capture.Capture("sess-test", map[string]any{"source": "turn"})

	require.NotNil(t, state.SearchHistory)
	assert.Equal(t, 1, state.SearchHistory["count"])
	entries, ok := state.SearchHistory["entries"].([]map[string]any)
	require.True(t, ok)
	assert.Equal(t, "database migration", entries[0]["query"])
}

func TestBridgeStatusIncludesProbeOutcomes(t *testing.T) {
	rt := runForTest(t, nil)

	rt.NoteBridgeStatus("last_save", "ok")
	state := rt.Capture.Capture("sess-test", map[string]any{"source": "turn"})

	require.NotNil(t, state.BridgeStatus)
	assert.Equal(t, "ok", state.BridgeStatus["last_save"])
	assert.Equal(t, "not_configured", state.BridgeStatus["memory_bridge"])
}
