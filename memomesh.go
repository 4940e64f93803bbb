// Package memomesh wires session memory inheritance around a host
// application's model calls. A Pipeline bootstraps the capture store,
// injection strategies, validation layer and external bridges once, then
// exposes two hooks: BeforePrompt enriches each outgoing prompt with
// inherited context, AfterResponse captures and persists the finished turn.
// Both hooks are total; internal failures degrade through a fallback path
// instead of surfacing to the host.
package memomesh

import (
	"context"

	"github.com/hupe1980/memomesh/bootstrap"
	"github.com/hupe1980/memomesh/core"
	"github.com/hupe1980/memomesh/hooks"
	"github.com/hupe1980/memomesh/logging"
)

// Options holds construction overrides for New().
type Options struct {
	// Logger receives diagnostics from every component. Defaults to NoOp.
	Logger logging.Logger
	// SessionID identifies this conversation thread. Generated when neither
	// this field nor the MEMOMESH_SESSION_ID environment variable is set.
	SessionID string
	// Bridge overrides the persistence bridge (default: configured script,
	// or an in-process null bridge).
	Bridge core.MemoryBridge
	// Searcher overrides the external keyword searcher.
	Searcher core.MemorySearcher
	// MCPSource, when set, enables the external-context injection strategy.
	MCPSource func(ctx context.Context, md *core.Metadata) (string, error)
	// ConfigOverrides are applied after environment resolution.
	ConfigOverrides []func(c *bootstrap.Config)
}

// Pipeline is the bootstrapped memory pipeline bound to one session.
type Pipeline struct {
	runtime *bootstrap.Runtime
	hooks   *hooks.Service
}

// New bootstraps a Pipeline. The returned error is non-nil only for a
// structurally invalid session id override; every other startup failure
// degrades into fallback inheritance and still yields a working pipeline.
func New(ctx context.Context, optFns ...func(o *Options)) (*Pipeline, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.SessionID == "" {
		opts.SessionID = core.NewID()
	}

	b := bootstrap.New(func(o *bootstrap.Options) {
		o.Logger = opts.Logger
		o.Bridge = opts.Bridge
		o.Searcher = opts.Searcher
		o.MCPSource = opts.MCPSource
	})

	overrides := make([]func(c *bootstrap.Config), 0, len(opts.ConfigOverrides)+1)
	overrides = append(overrides, opts.ConfigOverrides...)
	// Environment and explicit overrides win; the generated id only fills a
	// hole so New never fails for the common zero-config case.
	overrides = append(overrides, func(c *bootstrap.Config) {
		if c.SessionID == "" {
			c.SessionID = opts.SessionID
		}
	})

	rt, err := b.Run(ctx, overrides...)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		runtime: rt,
		hooks:   hooks.NewService(rt, func(o *hooks.Options) { o.Logger = opts.Logger }),
	}, nil
}

// SessionID returns the resolved session id of this pipeline.
func (p *Pipeline) SessionID() string { return p.runtime.Config.SessionID }

// Runtime exposes the underlying subsystems for advanced integration.
func (p *Pipeline) Runtime() *bootstrap.Runtime { return p.runtime }

// BeforePrompt enriches prompt with inherited memory context. Always returns
// a usable prompt and metadata; it never errors or panics.
func (p *Pipeline) BeforePrompt(ctx context.Context, prompt *core.Prompt, md *core.Metadata) (*core.Prompt, *core.Metadata) {
	return p.hooks.BeforePrompt(ctx, prompt, md)
}

// AfterResponse captures the finished turn and persists it through the
// bridge. It never errors or panics.
func (p *Pipeline) AfterResponse(ctx context.Context, md *core.Metadata, resp *core.Response) {
	p.hooks.AfterResponse(ctx, md, resp)
}

// Shutdown fires the shutdown lifecycle event and releases background
// resources. The pipeline must not be used afterwards.
func (p *Pipeline) Shutdown(ctx context.Context) {
	p.runtime.Shutdown(ctx)
}
