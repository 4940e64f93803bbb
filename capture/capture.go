package capture

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hupe1980/memomesh/core"
	"github.com/hupe1980/memomesh/logging"
)

// DefaultCapacity bounds the number of sessions retained when no explicit
// capacity is configured. Evicting the least recently captured session keeps
// long-running processes from growing without bound.
const DefaultCapacity = 256

var tokenPattern = regexp.MustCompile(`[a-z0-9_]+`)

// Provider supplies one optional sub-field of a capture (search history,
// bridge status). A failing or panicking provider degrades only its own
// sub-field, never the capture.
type Provider func(sessionID string) (map[string]any, error)

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// Capacity bounds the session store; evictions prune the search index.
	Capacity int
	// Logger receives capture diagnostics. Defaults to NoOp.
	Logger logging.Logger
	// Clock overrides time.Now for tests.
	Clock func() time.Time
	// SearchHistory supplies the per-session search history sub-field.
	SearchHistory Provider
	// BridgeStatus supplies the per-session bridge status sub-field.
	BridgeStatus Provider
	// Organization supplies the organization snapshot sub-field.
	Organization func() (map[string]any, error)
	// Foundational supplies the default foundational context for captures
	// whose input does not carry one.
	Foundational func() map[string]any
	// CurrentContext derives the session id and context re-captured by the
	// periodic timer. Required before StartPeriodicCapture.
	CurrentContext func() (sessionID string, ctx map[string]any)
}

// StateCapture owns the MemoryState store and the SearchIndex. Safe for
// concurrent use; all mutation goes through Capture.
type StateCapture struct {
	mu       sync.RWMutex
	states   *lru.Cache[string, *core.MemoryState]
	postings map[string]map[string]struct{} // token -> session id set
	indexed  map[string]map[string]struct{} // session id -> token set

	logger        logging.Logger
	clock         func() time.Time
	searchHistory Provider
	bridgeStatus  Provider
	organization  func() (map[string]any, error)
	foundational  func() map[string]any
	current       func() (string, map[string]any)

	timerMu sync.Mutex
	done    chan struct{}
}

// New constructs a StateCapture with optional overrides. Defaults are safe
// for tests and local development.
func New(optFns ...func(o *Options)) *StateCapture {
	opts := Options{
		Capacity: DefaultCapacity,
		Logger:   logging.NoOpLogger{},
		Clock:    time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Capacity < 1 {
		opts.Capacity = DefaultCapacity
	}

	c := &StateCapture{
		postings:      make(map[string]map[string]struct{}),
		indexed:       make(map[string]map[string]struct{}),
		logger:        opts.Logger,
		clock:         opts.Clock,
		searchHistory: opts.SearchHistory,
		bridgeStatus:  opts.BridgeStatus,
		organization:  opts.Organization,
		foundational:  opts.Foundational,
		current:       opts.CurrentContext,
	}

	// The eviction callback runs while c.mu is held by the mutating caller,
	// so it must touch the index maps directly without re-locking.
	states, err := lru.NewWithEvict(opts.Capacity, func(sessionID string, _ *core.MemoryState) {
		c.dropFromIndexLocked(sessionID)
	})
	if err != nil {
		// Capacity is clamped above; lru only errors on non-positive size.
		panic(fmt.Sprintf("capture: lru init: %v", err))
	}
	c.states = states

	return c
}

// Capture builds a MemoryState record for the session, stores it (overwriting
// any prior record for that id), indexes it and returns a copy. Capture never
// returns nil: failing sub-field providers are replaced by an unavailable
// marker rather than aborting the whole capture.
func (c *StateCapture) Capture(sessionID string, ctx map[string]any) *core.MemoryState {
	start := c.clock()

	state := &core.MemoryState{
		CaptureID:             core.NewID(),
		SessionID:             sessionID,
		Timestamp:             c.clock().UTC(),
		Context:               cloneOrEmpty(ctx),
		FoundationalContext:   c.foundationalFor(ctx),
		ConversationalSummary: summaryFrom(ctx),
		OrganizationState:     c.safeOrganization(),
		SearchHistory:         c.safeProvider("search history", c.searchHistory, sessionID),
		BridgeStatus:          c.safeProvider("bridge status", c.bridgeStatus, sessionID),
	}

	tokens := indexTokens(state)

	c.mu.Lock()
	c.states.Add(sessionID, state)
	c.dropFromIndexLocked(sessionID) // reindex on overwrite
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[tok] = struct{}{}
		posting, ok := c.postings[tok]
		if !ok {
			posting = make(map[string]struct{})
			c.postings[tok] = posting
		}
		posting[sessionID] = struct{}{}
	}
	c.indexed[sessionID] = set
	c.mu.Unlock()

	if pl, ok := c.logger.(*logging.PipelineLogger); ok {
		pl.LogCaptureCycle(sessionID, len(tokens), c.clock().Sub(start))
	} else {
		c.logger.Debug("memory state captured", "session_id", sessionID, "tokens", len(tokens))
	}

	return state.Clone()
}

// Get returns a copy of the latest snapshot for the session, refreshing its
// recency in the store.
func (c *StateCapture) Get(sessionID string) (*core.MemoryState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.states.Get(sessionID)
	if !ok {
		return nil, false
	}
	return state.Clone(), true
}

// Lookup returns the session ids indexed under a single lowercase token,
// sorted for deterministic iteration.
func (c *StateCapture) Lookup(token string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	posting, ok := c.postings[strings.ToLower(token)]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(posting))
	for id := range posting {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len reports how many sessions are currently stored.
func (c *StateCapture) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.states.Len()
}

// Sessions returns the stored session ids ordered from oldest to newest use.
func (c *StateCapture) Sessions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.states.Keys()
}

// dropFromIndexLocked removes every posting for the session. Caller (or the
// eviction path triggered by a caller) holds c.mu.
func (c *StateCapture) dropFromIndexLocked(sessionID string) {
	tokens, ok := c.indexed[sessionID]
	if !ok {
		return
	}
	for tok := range tokens {
		posting := c.postings[tok]
		delete(posting, sessionID)
		if len(posting) == 0 {
			delete(c.postings, tok)
		}
	}
	delete(c.indexed, sessionID)
}

func (c *StateCapture) foundationalFor(ctx map[string]any) map[string]any {
	if ctx != nil {
		if fc, ok := ctx["foundational_context"].(map[string]any); ok {
			return cloneOrEmpty(fc)
		}
	}
	if c.foundational != nil {
		return cloneOrEmpty(c.foundational())
	}
	return map[string]any{}
}

// safeProvider shields a capture from a failing or panicking sub-field
// provider: the sub-field degrades to an unavailable marker instead.
func (c *StateCapture) safeProvider(name string, p Provider, sessionID string) (out map[string]any) {
	if p == nil {
		return core.Unavailable("not configured")
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("capture sub-field provider panicked", "provider", name, "panic", fmt.Sprintf("%v", r))
			out = core.Unavailable(fmt.Sprintf("panic: %v", r))
		}
	}()
	m, err := p(sessionID)
	if err != nil {
		c.logger.Warn("capture sub-field provider failed", "provider", name, "error", err.Error())
		return core.Unavailable(err.Error())
	}
	if m == nil {
		m = map[string]any{}
	}
	return m
}

func (c *StateCapture) safeOrganization() (out map[string]any) {
	if c.organization == nil {
		return core.Unavailable("not configured")
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("organization provider panicked", "panic", fmt.Sprintf("%v", r))
			out = core.Unavailable(fmt.Sprintf("panic: %v", r))
		}
	}()
	m, err := c.organization()
	if err != nil {
		c.logger.Warn("organization provider failed", "error", err.Error())
		return core.Unavailable(err.Error())
	}
	if m == nil {
		m = map[string]any{}
	}
	return m
}

// Tokenize lowercases the input and splits it into the distinct word-boundary
// tokens used by both the indexer and query parsing.
func Tokenize(s string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(s), -1)
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// indexTokens serializes the whole record and tokenizes it, bag-of-words.
func indexTokens(state *core.MemoryState) []string {
	doc, err := json.Marshal(state)
	if err != nil {
		// Maps of any can hold unmarshalable values; degrade to fmt.
		return Tokenize(fmt.Sprintf("%v", state))
	}
	return Tokenize(string(doc))
}

func summaryFrom(ctx map[string]any) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx["conversational_summary"].(string); ok && s != "" {
		return s
	}
	var parts []string
	if s, ok := ctx["user_message"].(string); ok && s != "" {
		parts = append(parts, "user: "+s)
	}
	if s, ok := ctx["assistant_response"].(string); ok && s != "" {
		parts = append(parts, "assistant: "+s)
	}
	return strings.Join(parts, "\n")
}

func cloneOrEmpty(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
