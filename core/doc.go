// Package core provides the foundational domain types and interfaces used by
// memomesh. It defines the core abstractions for:
//
//   - MemoryState (the latest captured snapshot of a session)
//   - Prompt / Message / Response (the hook-boundary conversation shapes)
//   - MemoryBridge / MemorySearcher (external persistence & retrieval collaborators)
//   - MemoryHit (keyword-recall results surfaced into prompts)
//
// The package intentionally keeps implementation concerns (capture, injection,
// subprocess plumbing, bootstrap orchestration) out of scope, exposing small
// interfaces so external collaborators can be swapped at wiring time.
package core
