package bridge

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/hupe1980/memomesh/core"
	"github.com/hupe1980/memomesh/internal/util"
	"github.com/hupe1980/memomesh/logging"
)

// DefaultSearchBudget caps external search output before it is embedded into
// a prompt.
const DefaultSearchBudget = 2000

// SearchOptions holds overrides passed to NewScriptSearcher.
type SearchOptions struct {
	// Timeout bounds each subprocess call.
	Timeout time.Duration
	// Budget caps returned text in bytes.
	Budget int
	// Logger receives call diagnostics. Defaults to NoOp.
	Logger logging.Logger
}

// ScriptSearcher invokes an external search script as
// `<script> <searchType> "<query>"` and returns its stdout, truncated to the
// configured character budget.
type ScriptSearcher struct {
	script  string
	timeout time.Duration
	budget  int
	logger  logging.Logger
}

var _ core.MemorySearcher = (*ScriptSearcher)(nil)

// NewScriptSearcher creates a search client for the given script path.
func NewScriptSearcher(script string, optFns ...func(o *SearchOptions)) *ScriptSearcher {
	opts := SearchOptions{Timeout: DefaultTimeout, Budget: DefaultSearchBudget, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &ScriptSearcher{script: script, timeout: opts.Timeout, budget: opts.Budget, logger: opts.Logger}
}

// Search runs the external lookup and returns truncated free text.
func (s *ScriptSearcher) Search(ctx context.Context, searchType, query string) (string, error) {
	if s.script == "" {
		return "", ErrNotConfigured
	}
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, s.script, searchType, query)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if cctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("search timed out after %s: %w", s.timeout, cctx.Err())
		}
		if msg := bytes.TrimSpace(stderr.Bytes()); len(msg) > 0 {
			return "", fmt.Errorf("search script: %w: %s", err, msg)
		}
		return "", fmt.Errorf("search script: %w", err)
	}

	s.logger.Debug("external search completed", "search_type", searchType, "bytes", stdout.Len())
	return util.Truncate(stdout.String(), s.budget), nil
}

// Probe checks the script for existence and executability without running it.
func (s *ScriptSearcher) Probe() core.ProbeResult {
	return ProbeScript("search", s.script)
}
