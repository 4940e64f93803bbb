package capture

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapture_AlwaysSucceeds(t *testing.T) {
	c := New()
	state := c.Capture("sess-1", map[string]any{"topic": "databases"})
	require.NotNil(t, state)
	assert.Equal(t, "sess-1", state.SessionID)
	assert.NotEmpty(t, state.CaptureID)

	// Timestamp must round-trip as RFC 3339 (ISO 8601).
	_, err := time.Parse(time.RFC3339Nano, state.Timestamp.Format(time.RFC3339Nano))
	assert.NoError(t, err)
}

func TestCapture_OverwritesPriorSnapshot(t *testing.T) {
	c := New()
	c.Capture("s1", map[string]any{"topic": "alpha"})
	c.Capture("s1", map[string]any{"topic": "omega"})

	assert.Equal(t, 1, c.Len())
	state, ok := c.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "omega", state.Context["topic"])

	// Reindex on overwrite: the stale token no longer resolves.
	assert.Empty(t, c.Lookup("alpha"))
	assert.Equal(t, []string{"s1"}, c.Lookup("omega"))
}

func TestCapture_IndexCorrectness(t *testing.T) {
	c := New()
	c.Capture("s-alpha", map[string]any{"note": "contains alpha token"})

	assert.Contains(t, c.Lookup("alpha"), "s-alpha")
	assert.NotContains(t, c.Lookup("beta"), "s-alpha")
	assert.Empty(t, c.Lookup("beta"))
}

func TestCapture_FailingProvidersDegradeToUnavailable(t *testing.T) {
	c := New(func(o *Options) {
		o.SearchHistory = func(string) (map[string]any, error) { return nil, errors.New("history backend down") }
		o.BridgeStatus = func(string) (map[string]any, error) { panic("provider bug") }
		o.Organization = func() (map[string]any, error) { return nil, errors.New("org file missing") }
	})

	state := c.Capture("s1", map[string]any{"k": "v"})
	require.NotNil(t, state, "capture must succeed with degraded sub-fields")
	assert.Equal(t, "unavailable", state.SearchHistory["status"])
	assert.Equal(t, "unavailable", state.BridgeStatus["status"])
	assert.Equal(t, "unavailable", state.OrganizationState["status"])
	assert.Equal(t, "v", state.Context["k"])
}

func TestCapture_ReturnedStateIsACopy(t *testing.T) {
	c := New()
	state := c.Capture("s1", map[string]any{"k": "v"})
	state.Context["k"] = "mutated"
	state.ConversationalSummary = "mutated"

	stored, ok := c.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "v", stored.Context["k"])
}

func TestCapture_EvictionPrunesIndex(t *testing.T) {
	c := New(func(o *Options) { o.Capacity = 2 })

	c.Capture("s1", map[string]any{"marker": "evictme"})
	c.Capture("s2", map[string]any{"marker": "keeper_two"})
	c.Capture("s3", map[string]any{"marker": "keeper_three"})

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("s1")
	assert.False(t, ok, "oldest session must be evicted")

	// Invariant: no index entries for evicted sessions.
	assert.Empty(t, c.Lookup("evictme"))
	assert.Equal(t, []string{"s2"}, c.Lookup("keeper_two"))
	assert.Equal(t, []string{"s3"}, c.Lookup("keeper_three"))
}

func TestCapture_SummaryComposition(t *testing.T) {
	c := New()

	explicit := c.Capture("s1", map[string]any{"conversational_summary": "we discussed schemas"})
	assert.Equal(t, "we discussed schemas", explicit.ConversationalSummary)

	composed := c.Capture("s2", map[string]any{
		"user_message":       "how do I shard postgres",
		"assistant_response": "start with a tenant key",
	})
	assert.Contains(t, composed.ConversationalSummary, "user: how do I shard postgres")
	assert.Contains(t, composed.ConversationalSummary, "assistant: start with a tenant key")
}

func TestTokenize(t *testing.T) {
	tokens := Tokenize("Alpha BETA alpha_42, beta!")
	assert.Equal(t, []string{"alpha", "beta", "alpha_42"}, tokens)
}

func TestStartPeriodicCapture(t *testing.T) {
	c := New(func(o *Options) {
		o.CurrentContext = func() (string, map[string]any) {
			return "current", map[string]any{"source": "periodic"}
		}
	})

	require.NoError(t, c.StartPeriodicCapture(5*time.Millisecond))
	defer c.StopPeriodicCapture()

	assert.ErrorIs(t, c.StartPeriodicCapture(5*time.Millisecond), ErrPeriodicRunning)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := c.Get("current"); ok {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("periodic capture never populated the store")
}

func TestStartPeriodicCapture_RequiresCurrentContext(t *testing.T) {
	c := New()
	assert.ErrorIs(t, c.StartPeriodicCapture(time.Second), ErrNoCurrentContext)
}

func TestCapture_ConcurrentAccess(t *testing.T) {
	c := New()
	doneCh := make(chan struct{})
	for g := 0; g < 4; g++ {
		go func(g int) {
			defer func() { doneCh <- struct{}{} }()
			for i := 0; i < 50; i++ {
				id := fmt.Sprintf("s%d", g)
				c.Capture(id, map[string]any{"i": i})
				c.Get(id)
				c.Lookup("s0")
			}
		}(g)
	}
	for g := 0; g < 4; g++ {
		<-doneCh
	}
	assert.Equal(t, 4, c.Len())
}
