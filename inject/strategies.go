package inject

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/memomesh/capture"
	"github.com/hupe1980/memomesh/core"
	"github.com/hupe1980/memomesh/internal/util"
)

// StartupStrategy contributes the foundational layer: fixed directives plus
// whatever foundational context the session was captured with. Directive
// lines may contain template markers resolved against the organization
// snapshot of the session state.
type StartupStrategy struct {
	store      *capture.StateCapture
	directives []string
}

// NewStartupStrategy creates the foundational-layer strategy.
func NewStartupStrategy(store *capture.StateCapture, directives []string) *StartupStrategy {
	return &StartupStrategy{store: store, directives: directives}
}

// Name returns the strategy's registry key.
func (s *StartupStrategy) Name() string { return StrategyStartup }

// Inject adds the foundational directives block.
func (s *StartupStrategy) Inject(ctx context.Context, turn *Turn) error {
	var org map[string]any
	var foundational map[string]any
	if state, ok := s.store.Get(turn.Metadata.SessionID); ok {
		org = state.OrganizationState
		foundational = state.FoundationalContext
	}

	lines := make([]string, 0, len(s.directives)+len(foundational))
	for _, d := range s.directives {
		rendered, err := util.RenderTemplate(d, org)
		if err != nil {
			rendered = d // malformed template marker: keep the raw directive
		}
		lines = append(lines, rendered)
	}
	lines = append(lines, formatMap(foundational)...)

	turn.AddBlock(ContextBlock{
		Layer: LayerFoundational,
		Label: "Foundational directives",
		Body:  strings.Join(lines, "\n"),
	})
	return nil
}

// ContextStrategy contributes the organizational and conversational layers
// from the current session's captured state.
type ContextStrategy struct {
	store *capture.StateCapture
}

// NewContextStrategy creates the captured-state strategy.
func NewContextStrategy(store *capture.StateCapture) *ContextStrategy {
	return &ContextStrategy{store: store}
}

// Name returns the strategy's registry key.
func (s *ContextStrategy) Name() string { return StrategyContext }

// Inject adds organization state and the prior conversational summary.
func (s *ContextStrategy) Inject(ctx context.Context, turn *Turn) error {
	state, ok := s.store.Get(turn.Metadata.SessionID)
	if !ok {
		return nil // first turn of a fresh session: nothing captured yet
	}

	if unavailable(state.OrganizationState) == "" {
		turn.AddBlock(ContextBlock{
			Layer: LayerOrganizational,
			Label: "Organization state",
			Body:  strings.Join(formatMap(state.OrganizationState), "\n"),
		})
	}

	if state.ConversationalSummary != "" {
		turn.AddBlock(ContextBlock{
			Layer: LayerConversational,
			Label: "Previous conversation",
			Body:  state.ConversationalSummary,
		})
	}
	return nil
}

// SearchStrategy contributes recalled memories from other sessions: the
// in-process keyword index plus, when available, the external search script.
// It is an optional integration, gated per turn by metadata with the
// configured default.
type SearchStrategy struct {
	injector       *Injector
	searcher       core.MemorySearcher
	searchType     string
	enabledDefault bool
}

// NewSearchStrategy creates the optional recall strategy. searcher may be nil
// when only the in-process index should be consulted.
func NewSearchStrategy(injector *Injector, searcher core.MemorySearcher, enabledDefault bool) *SearchStrategy {
	return &SearchStrategy{injector: injector, searcher: searcher, searchType: "keyword", enabledDefault: enabledDefault}
}

// Name returns the strategy's registry key.
func (s *SearchStrategy) Name() string { return StrategySearch }

// Inject adds a conversational block with recalled memories for the query.
func (s *SearchStrategy) Inject(ctx context.Context, turn *Turn) error {
	if !turn.Metadata.SearchEnabled(s.enabledDefault) {
		return nil
	}
	query := queryFor(turn)
	if query == "" {
		return nil
	}

	var sections []string

	hits := s.injector.SearchRelevantMemories(query, 0)
	for _, hit := range hits {
		if hit.SessionID == turn.Metadata.SessionID {
			continue // the context strategy already covers the current session
		}
		sections = append(sections, fmt.Sprintf("[%s @ %s] %s", hit.SessionID, hit.Timestamp.Format("2006-01-02 15:04"), hit.Summary))
	}

	if s.searcher != nil {
		text, err := s.searcher.Search(ctx, s.searchType, query)
		if err != nil {
			return fmt.Errorf("external search: %w", err)
		}
		if strings.TrimSpace(text) != "" {
			sections = append(sections, text)
		}
	}

	turn.AddBlock(ContextBlock{
		Layer: LayerConversational,
		Label: "Recalled memories",
		Body:  strings.Join(sections, "\n"),
	})
	return nil
}

// MCPStrategy wraps an arbitrary external context source behind the mcp
// registry key. The source is pluggable, not hard-wired; it is gated per turn
// like the search strategy.
type MCPStrategy struct {
	source         func(ctx context.Context, md *core.Metadata) (string, error)
	enabledDefault bool
}

// NewMCPStrategy creates the optional external-integration strategy.
func NewMCPStrategy(source func(ctx context.Context, md *core.Metadata) (string, error), enabledDefault bool) *MCPStrategy {
	return &MCPStrategy{source: source, enabledDefault: enabledDefault}
}

// Name returns the strategy's registry key.
func (s *MCPStrategy) Name() string { return StrategyMCP }

// Inject adds whatever text the external source produces for this turn.
func (s *MCPStrategy) Inject(ctx context.Context, turn *Turn) error {
	if s.source == nil || !turn.Metadata.MCPEnabled(s.enabledDefault) {
		return nil
	}
	text, err := s.source(ctx, turn.Metadata)
	if err != nil {
		return fmt.Errorf("mcp source: %w", err)
	}
	turn.AddBlock(ContextBlock{
		Layer: LayerConversational,
		Label: "External context",
		Body:  text,
	})
	return nil
}

// queryFor picks the search query: explicit user message metadata first,
// falling back to the last user message already on the prompt.
func queryFor(turn *Turn) string {
	if turn.Metadata != nil && turn.Metadata.UserMessage != "" {
		return turn.Metadata.UserMessage
	}
	if turn.Prompt == nil {
		return ""
	}
	for i := len(turn.Prompt.Messages) - 1; i >= 0; i-- {
		if turn.Prompt.Messages[i].Role == core.RoleUser {
			return turn.Prompt.Messages[i].Content
		}
	}
	return ""
}

// unavailable returns the marker reason when m is a degraded sub-field, or
// empty when it holds real data.
func unavailable(m map[string]any) string {
	if status, ok := m["status"].(string); ok && status == "unavailable" {
		if reason, ok := m["reason"].(string); ok {
			return reason
		}
		return "unavailable"
	}
	if len(m) == 0 {
		return "empty"
	}
	return ""
}

// formatMap renders a map as sorted "key: value" lines for block bodies.
func formatMap(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", k, m[k]))
	}
	return lines
}
