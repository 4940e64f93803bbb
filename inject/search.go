package inject

import (
	"sort"

	"github.com/hupe1980/memomesh/capture"
	"github.com/hupe1980/memomesh/core"
)

// SearchRelevantMemories tokenizes the query the same way the indexer does,
// unions the session-id posting sets for every query token, and returns up to
// limit stored summaries. No relevance ranking is performed beyond "found via
// any matching token"; ties are broken by an explicit stable sort, newest
// capture first then session id, so results are deterministic across runs.
func (i *Injector) SearchRelevantMemories(query string, limit int) []core.MemoryHit {
	if limit <= 0 {
		limit = i.searchLimit
	}

	matched := make(map[string]struct{})
	for _, tok := range capture.Tokenize(query) {
		for _, id := range i.store.Lookup(tok) {
			matched[id] = struct{}{}
		}
	}
	if len(matched) == 0 {
		return []core.MemoryHit{}
	}

	hits := make([]core.MemoryHit, 0, len(matched))
	for id := range matched {
		state, ok := i.store.Get(id)
		if !ok {
			continue // evicted between lookup and fetch
		}
		summary := state.ConversationalSummary
		if summary == "" {
			summary = core.NoSummaryMarker
		}
		hits = append(hits, core.MemoryHit{SessionID: id, Summary: summary, Timestamp: state.Timestamp})
	}

	sort.SliceStable(hits, func(a, b int) bool {
		if !hits[a].Timestamp.Equal(hits[b].Timestamp) {
			return hits[a].Timestamp.After(hits[b].Timestamp)
		}
		return hits[a].SessionID < hits[b].SessionID
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}
