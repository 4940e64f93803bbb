package inject

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hupe1980/memomesh/capture"
	"github.com/hupe1980/memomesh/core"
	"github.com/hupe1980/memomesh/logging"
)

// Canonical strategy registry keys. The search and mcp strategies wrap
// optional, feature-flagged integrations and are only registered when their
// external collaborator is available.
const (
	StrategyStartup = "startup"
	StrategyContext = "context"
	StrategySearch  = "search"
	StrategyMCP     = "mcp"
)

// Layer orders assembled context blocks within the prepended prefix.
type Layer int

const (
	// LayerFoundational holds fixed directives that frame every turn.
	LayerFoundational Layer = iota
	// LayerOrganizational holds role/organization state.
	LayerOrganizational
	// LayerConversational holds recalled conversation context.
	LayerConversational
)

// ContextBlock is one labeled addition contributed by a strategy. Blocks are
// collected on the Turn and assembled exactly once by the pipeline; strategies
// never splice the message slice themselves.
type ContextBlock struct {
	Layer Layer
	Label string
	Body  string
}

// Turn carries one prompt through the pipeline together with its metadata and
// the context blocks accumulated so far.
type Turn struct {
	Prompt   *core.Prompt
	Metadata *core.Metadata
	Blocks   []ContextBlock
}

// AddBlock appends a context block, dropping empty bodies.
func (t *Turn) AddBlock(b ContextBlock) {
	if strings.TrimSpace(b.Body) == "" {
		return
	}
	t.Blocks = append(t.Blocks, b)
}

// Strategy augments a turn with one category of injected context. Strategies
// must only add; a returned error skips this strategy and the pipeline
// continues with the next one.
type Strategy interface {
	Name() string
	Inject(ctx context.Context, turn *Turn) error
}

// Options holds dependency overrides passed to New().
type Options struct {
	// Logger receives pipeline diagnostics. Defaults to NoOp.
	Logger logging.Logger
	// SearchLimit caps results returned by SearchRelevantMemories.
	SearchLimit int
}

// Injector executes the strategy pipeline and assembles the layered context
// prefix. Strategy execution order is fixed at registration time.
type Injector struct {
	store       *capture.StateCapture
	strategies  []Strategy
	logger      logging.Logger
	searchLimit int
}

// New constructs an Injector reading from the given capture store.
func New(store *capture.StateCapture, optFns ...func(o *Options)) *Injector {
	opts := Options{Logger: logging.NoOpLogger{}, SearchLimit: 5}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Injector{store: store, logger: opts.Logger, searchLimit: opts.SearchLimit}
}

// Register appends a strategy to the pipeline. Registration order is
// execution order; the bootstrap wires startup → context → search → mcp.
func (i *Injector) Register(s Strategy) {
	if s == nil {
		return
	}
	i.strategies = append(i.strategies, s)
}

// Strategies returns the registered strategy names in execution order.
func (i *Injector) Strategies() []string {
	names := make([]string, len(i.strategies))
	for n, s := range i.strategies {
		names[n] = s.Name()
	}
	return names
}

// Run executes every strategy in order against the turn, then assembles the
// accumulated blocks into system messages prepended to the prompt. A failing
// or panicking strategy is logged and skipped; Run never returns an error.
func (i *Injector) Run(ctx context.Context, turn *Turn) {
	start := time.Now()
	if turn.Prompt == nil {
		turn.Prompt = &core.Prompt{}
	}
	if turn.Metadata == nil {
		turn.Metadata = &core.Metadata{}
	}

	for _, s := range i.strategies {
		if err := i.runStrategy(ctx, s, turn); err != nil {
			i.logger.Warn("injection strategy skipped", "strategy", s.Name(), "error", err.Error())
		}
	}

	i.assemble(turn)

	if pl, ok := i.logger.(*logging.PipelineLogger); ok {
		pl.LogInjection(len(i.strategies), len(turn.Blocks), time.Since(start))
	}
}

func (i *Injector) runStrategy(ctx context.Context, s Strategy, turn *Turn) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy panicked: %v", r)
		}
	}()
	return s.Inject(ctx, turn)
}

// assemble prepends the collected blocks as system messages. A stable sort by
// layer preserves contribution order within each layer, so the prefix reads
// foundational → organizational → conversational and existing messages keep
// their relative order untouched.
func (i *Injector) assemble(turn *Turn) {
	if len(turn.Blocks) == 0 {
		return
	}
	blocks := make([]ContextBlock, len(turn.Blocks))
	copy(blocks, turn.Blocks)
	sort.SliceStable(blocks, func(a, b int) bool { return blocks[a].Layer < blocks[b].Layer })

	prefix := make([]core.Message, 0, len(blocks))
	for _, b := range blocks {
		content := b.Body
		if b.Label != "" {
			content = "## " + b.Label + "\n" + b.Body
		}
		prefix = append(prefix, core.Message{Role: core.RoleSystem, Content: content})
	}
	turn.Prompt.Messages = append(prefix, turn.Prompt.Messages...)
}
