// Package bridge contains the subprocess-backed clients for the external
// memory bridge and search collaborators. Every call is a spawn+await with an
// explicit timeout: on expiry the child is killed and only that one step
// degrades. A failed or malformed bridge read still yields the default memory
// structure so callers always hold a usable document.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/hupe1980/memomesh/core"
	"github.com/hupe1980/memomesh/logging"
)

// DefaultTimeout bounds a single bridge subprocess call.
const DefaultTimeout = 5 * time.Second

// ErrNotConfigured is returned by Probe-time helpers when no script path was given.
var ErrNotConfigured = errors.New("bridge: script not configured")

// Options holds overrides passed to NewScriptBridge.
type Options struct {
	// Timeout bounds each subprocess call.
	Timeout time.Duration
	// Logger receives call diagnostics. Defaults to NoOp.
	Logger logging.Logger
}

// ScriptBridge invokes an external script with positional verbs
// (init / get_memory / save_memory / compress_memory) to persist session
// memory durably outside the process.
type ScriptBridge struct {
	script  string
	timeout time.Duration
	logger  logging.Logger
}

var _ core.MemoryBridge = (*ScriptBridge)(nil)

// NewScriptBridge creates a bridge client for the given script path.
func NewScriptBridge(script string, optFns ...func(o *Options)) *ScriptBridge {
	opts := Options{Timeout: DefaultTimeout, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &ScriptBridge{script: script, timeout: opts.Timeout, logger: opts.Logger}
}

// Init prepares the external memory system. Safe to call more than once.
func (b *ScriptBridge) Init(ctx context.Context) error {
	_, err := b.run(ctx, nil, "init")
	if err != nil {
		return fmt.Errorf("bridge init: %w", err)
	}
	return nil
}

// GetMemory returns the persisted memory document for the session. On a
// non-zero exit or malformed JSON the default memory structure is returned
// alongside the error, so the caller always holds a usable document.
func (b *ScriptBridge) GetMemory(ctx context.Context, sessionID string) (map[string]any, error) {
	out, err := b.run(ctx, nil, "get_memory", sessionID)
	if err != nil {
		return core.DefaultMemoryDocument(sessionID), fmt.Errorf("bridge get_memory: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(out, &doc); err != nil {
		b.logger.Warn("bridge returned malformed memory document", "session_id", sessionID, "error", err.Error())
		return core.DefaultMemoryDocument(sessionID), fmt.Errorf("bridge get_memory: malformed document: %w", err)
	}
	if doc == nil {
		doc = core.DefaultMemoryDocument(sessionID)
	}
	return doc, nil
}

// SaveMemory persists the document for the session, serialized JSON on stdin.
func (b *ScriptBridge) SaveMemory(ctx context.Context, sessionID string, doc map[string]any) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("bridge save_memory: encode: %w", err)
	}
	if _, err := b.run(ctx, payload, "save_memory", sessionID); err != nil {
		return fmt.Errorf("bridge save_memory: %w", err)
	}
	return nil
}

// CompressMemory asks the bridge to compact older entries for the session.
func (b *ScriptBridge) CompressMemory(ctx context.Context, sessionID string) error {
	if _, err := b.run(ctx, nil, "compress_memory", sessionID); err != nil {
		return fmt.Errorf("bridge compress_memory: %w", err)
	}
	return nil
}

// Probe checks the script for existence and executability without running it.
func (b *ScriptBridge) Probe() core.ProbeResult {
	return ProbeScript("memory_bridge", b.script)
}

// run spawns the script with the verb arguments, optionally feeding stdin,
// and awaits completion under the configured timeout. The child process is
// killed when the deadline passes.
func (b *ScriptBridge) run(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	if b.script == "" {
		return nil, ErrNotConfigured
	}
	cctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(cctx, b.script, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if pl, ok := b.logger.(*logging.PipelineLogger); ok {
		pl.LogBridgeCall(args[0], time.Since(start), err == nil, err)
	}
	if err != nil {
		if cctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("timed out after %s: %w", b.timeout, cctx.Err())
		}
		if msg := bytes.TrimSpace(stderr.Bytes()); len(msg) > 0 {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

// ProbeScript records availability of one external script integration.
func ProbeScript(name, path string) core.ProbeResult {
	if path == "" {
		return core.ProbeResult{Name: name, Available: false, Status: "not_configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		return core.ProbeResult{Name: name, Available: false, Status: "missing", Err: err.Error()}
	}
	if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		return core.ProbeResult{Name: name, Available: false, Status: "not_executable"}
	}
	return core.ProbeResult{Name: name, Available: true, Status: "ready"}
}

// NullBridge is an in-process MemoryBridge used when no external script is
// configured. Reads yield the default structure, writes are discarded.
type NullBridge struct{}

var _ core.MemoryBridge = NullBridge{}

// Init implements core.MemoryBridge.
func (NullBridge) Init(context.Context) error { return nil }

// GetMemory returns the default memory structure for the session.
func (NullBridge) GetMemory(_ context.Context, sessionID string) (map[string]any, error) {
	return core.DefaultMemoryDocument(sessionID), nil
}

// SaveMemory discards the document.
func (NullBridge) SaveMemory(context.Context, string, map[string]any) error { return nil }

// CompressMemory is a no-op.
func (NullBridge) CompressMemory(context.Context, string) error { return nil }
