// Package capture is the single source of truth for "what do we know about
// this session right now". It keeps the latest MemoryState snapshot per
// session in a bounded LRU store, maintains a coarse bag-of-words inverted
// index over the serialized snapshots, and optionally re-captures the current
// context on a timer so the store stays warm across idle periods.
//
// The index deliberately favors recall over precision: whole-document
// tokenization, no stopword removal, no stemming. That is appropriate for a
// small personal memory store, not a production search engine.
//
// Store and index are mutated only by StateCapture methods; readers receive
// defensive copies. Interleaved captures for the same session resolve as
// last-write-wins.
package capture
