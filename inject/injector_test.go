package inject

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/memomesh/capture"
	"github.com/hupe1980/memomesh/core"
)

type fakeStrategy struct {
	name   string
	layer  Layer
	body   string
	err    error
	panics bool
	calls  *[]string
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Inject(ctx context.Context, turn *Turn) error {
	if f.calls != nil {
		*f.calls = append(*f.calls, f.name)
	}
	if f.panics {
		panic("strategy bug")
	}
	if f.err != nil {
		return f.err
	}
	turn.AddBlock(ContextBlock{Layer: f.layer, Label: f.name, Body: f.body})
	return nil
}

func TestInjector_StrategiesRunInRegistrationOrder(t *testing.T) {
	var calls []string
	i := New(capture.New())
	i.Register(&fakeStrategy{name: "startup", layer: LayerFoundational, body: "a", calls: &calls})
	i.Register(&fakeStrategy{name: "context", layer: LayerOrganizational, body: "b", calls: &calls})
	i.Register(&fakeStrategy{name: "search", layer: LayerConversational, body: "c", calls: &calls})

	i.Run(context.Background(), &Turn{Prompt: &core.Prompt{}})
	assert.Equal(t, []string{"startup", "context", "search"}, calls)
	assert.Equal(t, []string{"startup", "context", "search"}, i.Strategies())
}

func TestInjector_BlocksLayeredAheadOfExistingMessages(t *testing.T) {
	i := New(capture.New())
	// Register in scrambled layer order: assembly must still layer
	// foundational -> organizational -> conversational.
	i.Register(&fakeStrategy{name: "search", layer: LayerConversational, body: "recalled"})
	i.Register(&fakeStrategy{name: "startup", layer: LayerFoundational, body: "directives"})
	i.Register(&fakeStrategy{name: "context", layer: LayerOrganizational, body: "org"})

	prompt := &core.Prompt{Messages: []core.Message{
		{Role: core.RoleUser, Content: "first user message"},
		{Role: core.RoleAssistant, Content: "first reply"},
		{Role: core.RoleUser, Content: "second user message"},
	}}
	turn := &Turn{Prompt: prompt}
	i.Run(context.Background(), turn)

	require.Len(t, prompt.Messages, 6)
	assert.Contains(t, prompt.Messages[0].Content, "directives")
	assert.Contains(t, prompt.Messages[1].Content, "org")
	assert.Contains(t, prompt.Messages[2].Content, "recalled")
	for n := 0; n < 3; n++ {
		assert.Equal(t, core.RoleSystem, prompt.Messages[n].Role)
	}

	// Existing messages are only shifted, never removed or reordered.
	assert.Equal(t, "first user message", prompt.Messages[3].Content)
	assert.Equal(t, "first reply", prompt.Messages[4].Content)
	assert.Equal(t, "second user message", prompt.Messages[5].Content)
}

func TestInjector_FailingStrategySkippedOthersRun(t *testing.T) {
	i := New(capture.New())
	i.Register(&fakeStrategy{name: "broken", layer: LayerFoundational, err: errors.New("boom")})
	i.Register(&fakeStrategy{name: "panicky", panics: true})
	i.Register(&fakeStrategy{name: "ok", layer: LayerConversational, body: "still here"})

	turn := &Turn{Prompt: &core.Prompt{}}
	assert.NotPanics(t, func() { i.Run(context.Background(), turn) })
	require.Len(t, turn.Prompt.Messages, 1)
	assert.Contains(t, turn.Prompt.Messages[0].Content, "still here")
}

func TestInjector_EmptyBlocksDropped(t *testing.T) {
	turn := &Turn{}
	turn.AddBlock(ContextBlock{Layer: LayerFoundational, Body: "   "})
	assert.Empty(t, turn.Blocks)
}

func TestStartupStrategy_RendersDirectivesAgainstOrganization(t *testing.T) {
	store := capture.New(func(o *capture.Options) {
		o.Organization = func() (map[string]any, error) {
			return map[string]any{"president": "ada"}, nil
		}
	})
	store.Capture("s1", map[string]any{
		"foundational_context": map[string]any{"identity": "memory keeper"},
	})

	i := New(store)
	i.Register(NewStartupStrategy(store, []string{"Report to {{.president}} before acting."}))

	turn := &Turn{Prompt: &core.Prompt{}, Metadata: &core.Metadata{SessionID: "s1"}}
	i.Run(context.Background(), turn)

	require.Len(t, turn.Prompt.Messages, 1)
	assert.Contains(t, turn.Prompt.Messages[0].Content, "Report to ada before acting.")
	assert.Contains(t, turn.Prompt.Messages[0].Content, "identity: memory keeper")
}

func TestContextStrategy_NothingCapturedIsNoop(t *testing.T) {
	store := capture.New()
	i := New(store)
	i.Register(NewContextStrategy(store))

	turn := &Turn{Prompt: &core.Prompt{}, Metadata: &core.Metadata{SessionID: "fresh"}}
	i.Run(context.Background(), turn)
	assert.Empty(t, turn.Prompt.Messages)
}

func TestSearchStrategy_RespectsPerTurnToggle(t *testing.T) {
	store := capture.New()
	store.Capture("other", map[string]any{"conversational_summary": "database sharding notes"})

	i := New(store)
	i.Register(NewSearchStrategy(i, nil, true))

	off := false
	turn := &Turn{
		Prompt:   &core.Prompt{},
		Metadata: &core.Metadata{SessionID: "s1", UserMessage: "database", EnableSearch: &off},
	}
	i.Run(context.Background(), turn)
	assert.Empty(t, turn.Prompt.Messages, "disabled per turn: no recall block")

	turn2 := &Turn{
		Prompt:   &core.Prompt{},
		Metadata: &core.Metadata{SessionID: "s1", UserMessage: "database"},
	}
	i.Run(context.Background(), turn2)
	require.Len(t, turn2.Prompt.Messages, 1)
	assert.Contains(t, turn2.Prompt.Messages[0].Content, "database sharding notes")
}

func TestMCPStrategy_PluggableSource(t *testing.T) {
	i := New(capture.New())
	i.Register(NewMCPStrategy(func(ctx context.Context, md *core.Metadata) (string, error) {
		return "ticket backlog: 3 open", nil
	}, true))

	turn := &Turn{Prompt: &core.Prompt{}, Metadata: &core.Metadata{SessionID: "s1"}}
	i.Run(context.Background(), turn)
	require.Len(t, turn.Prompt.Messages, 1)
	assert.Contains(t, turn.Prompt.Messages[0].Content, "ticket backlog: 3 open")
}
