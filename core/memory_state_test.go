package core_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/memomesh/core"
	"github.com/hupe1980/memomesh/internal/testutil"
)

func TestMemoryStateCloneIsIndependent(t *testing.T) {
	state := testutil.NewMemoryStateBuilder("sess-1").
		Summary("discussed billing").
		Context(map[string]any{"topic": "billing"}).
		Organization(map[string]any{"president": "ada"}).
		Build()

	clone := state.Clone()
	require.NotNil(t, clone)

	clone.Context["topic"] = "mutated"
	clone.OrganizationState["president"] = "mutated"
	clone.ConversationalSummary = "mutated"

	assert.Equal(t, "billing", state.Context["topic"])
	assert.Equal(t, "ada", state.OrganizationState["president"])
	assert.Equal(t, "discussed billing", state.ConversationalSummary)
}

func TestMemoryStateCloneNil(t *testing.T) {
	var state *core.MemoryState
	assert.Nil(t, state.Clone())
}

func TestBuilderDefaults(t *testing.T) {
	state := testutil.NewMemoryStateBuilder("sess-1").Build()

	assert.Equal(t, "sess-1", state.SessionID)
	assert.NotEmpty(t, state.CaptureID)
	assert.NotNil(t, state.Context)
	assert.WithinDuration(t, time.Now(), state.Timestamp, time.Minute)
}

func TestUnavailableMarkerShape(t *testing.T) {
	m := core.Unavailable("bridge down")
	assert.Equal(t, "unavailable", m["status"])
	assert.Equal(t, "bridge down", m["reason"])
}

func TestDefaultMemoryDocument(t *testing.T) {
	doc := core.DefaultMemoryDocument("sess-9")
	assert.Equal(t, "sess-9", doc["session_id"])
	assert.Equal(t, "", doc["conversational_summary"])
	assert.Equal(t, false, doc["inherited"])
	assert.NotNil(t, doc["context"])
}

func TestPromptCloneAndBuilder(t *testing.T) {
	prompt := testutil.NewPromptBuilder().
		System("be brief").
		User("hello").
		Assistant("hi").
		Build()

	clone := prompt.Clone()
	clone.Messages[0].Content = "mutated"
	assert.Equal(t, "be brief", prompt.Messages[0].Content)

	var nilPrompt *core.Prompt
	assert.NotNil(t, nilPrompt.Clone())
}

func TestMetadataTogglesResolveAgainstDefaults(t *testing.T) {
	var md *core.Metadata
	assert.True(t, md.SearchEnabled(true))
	assert.False(t, md.MCPEnabled(false))

	off := false
	md = &core.Metadata{EnableSearch: &off}
	assert.False(t, md.SearchEnabled(true))
	assert.False(t, md.MCPEnabled(false))
}
