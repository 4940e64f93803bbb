// Package logging provides a minimal logging interface and adapters for memomesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn,
// Error) that the pipeline components use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - PipelineLogger with contextual helpers (session, turn, component) and
//     domain-specific helpers for bridge calls, captures and injections
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	rt, _ := bootstrap.New(func(o *bootstrap.Options) { o.Logger = logger }).Run(ctx)
//
// The design intentionally keeps the interface minimal to avoid vendor lock-in
// while supporting structured logging where available.
package logging
