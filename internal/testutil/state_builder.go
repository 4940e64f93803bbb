package testutil

import (
	"time"

	"github.com/hupe1980/memomesh/core"
)

// MemoryStateBuilder provides a fluent helper for constructing memory states
// in tests. Example:
//
//	state := NewMemoryStateBuilder("sess-1").Summary("discussed billing").At(clock).Build()
//
// Chain only the parts you need; sensible defaults are applied.
type MemoryStateBuilder struct {
	sessionID    string
	captureID    string
	timestamp    time.Time
	context      map[string]any
	foundational map[string]any
	summary      string
	organization map[string]any
}

// NewMemoryStateBuilder creates a builder for the given session id.
func NewMemoryStateBuilder(sessionID string) *MemoryStateBuilder {
	return &MemoryStateBuilder{sessionID: sessionID, timestamp: time.Now().UTC()}
}

// CaptureID overrides the auto-generated capture ID (chainable). Use mainly in tests where determinism matters.
func (b *MemoryStateBuilder) CaptureID(id string) *MemoryStateBuilder { b.captureID = id; return b }

// At sets the capture timestamp (chainable).
func (b *MemoryStateBuilder) At(ts time.Time) *MemoryStateBuilder { b.timestamp = ts; return b }

// Context sets the raw captured context map (chainable).
func (b *MemoryStateBuilder) Context(ctx map[string]any) *MemoryStateBuilder {
	b.context = ctx
	return b
}

// Foundational sets the foundational context map (chainable).
func (b *MemoryStateBuilder) Foundational(f map[string]any) *MemoryStateBuilder {
	b.foundational = f
	return b
}

// Summary sets the conversational summary (chainable).
func (b *MemoryStateBuilder) Summary(s string) *MemoryStateBuilder { b.summary = s; return b }

// Organization sets the organization state snapshot (chainable).
func (b *MemoryStateBuilder) Organization(org map[string]any) *MemoryStateBuilder {
	b.organization = org
	return b
}

// Build assembles the memory state, filling unset fields with defaults.
func (b *MemoryStateBuilder) Build() *core.MemoryState {
	captureID := b.captureID
	if captureID == "" {
		captureID = core.NewID()
	}
	ctx := b.context
	if ctx == nil {
		ctx = map[string]any{}
	}
	return &core.MemoryState{
		CaptureID:             captureID,
		SessionID:             b.sessionID,
		Timestamp:             b.timestamp,
		Context:               ctx,
		FoundationalContext:   b.foundational,
		ConversationalSummary: b.summary,
		OrganizationState:     b.organization,
	}
}

// PromptBuilder provides a fluent helper for constructing prompts in tests.
type PromptBuilder struct {
	messages []core.Message
}

// NewPromptBuilder creates an empty prompt builder.
func NewPromptBuilder() *PromptBuilder { return &PromptBuilder{} }

// System appends a system message (chainable).
func (b *PromptBuilder) System(content string) *PromptBuilder {
	b.messages = append(b.messages, core.Message{Role: core.RoleSystem, Content: content})
	return b
}

// User appends a user message (chainable).
func (b *PromptBuilder) User(content string) *PromptBuilder {
	b.messages = append(b.messages, core.Message{Role: core.RoleUser, Content: content})
	return b
}

// Assistant appends an assistant message (chainable).
func (b *PromptBuilder) Assistant(content string) *PromptBuilder {
	b.messages = append(b.messages, core.Message{Role: core.RoleAssistant, Content: content})
	return b
}

// Build assembles the prompt.
func (b *PromptBuilder) Build() *core.Prompt {
	msgs := make([]core.Message, len(b.messages))
	copy(msgs, b.messages)
	return &core.Prompt{Messages: msgs}
}
