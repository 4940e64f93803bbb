// Package lifecycle decouples "something happened" from "who reacts to it".
// The Manager dispatches exactly four process events to registered hooks in
// registration order; one misbehaving hook never prevents the others from
// running, and Trigger never reports an error to its caller.
package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/memomesh/logging"
)

// Event names the lifecycle points hooks can attach to.
type Event string

const (
	// EventStartup fires once at the end of a successful bootstrap.
	EventStartup Event = "startup"
	// EventShutdown fires when the pipeline is torn down.
	EventShutdown Event = "shutdown"
	// EventStateChange fires after a turn is captured or the organization
	// state file changes on disk.
	EventStateChange Event = "state_change"
	// EventSessionTransition fires when a hook call arrives for a different
	// session id than the previous one.
	EventSessionTransition Event = "session_transition"
)

var knownEvents = map[Event]bool{
	EventStartup:           true,
	EventShutdown:          true,
	EventStateChange:       true,
	EventSessionTransition: true,
}

// Hook is a callback invoked with the event payload. A returned error is
// logged but does not stop the remaining hooks for the event.
type Hook func(ctx context.Context, payload map[string]any) error

// Manager is the hook registry and dispatcher. Registration is expected to
// happen during bootstrap; dispatch is safe for concurrent use afterwards.
type Manager struct {
	mu     sync.RWMutex
	hooks  map[Event][]Hook
	logger logging.Logger
}

// NewManager constructs an empty Manager. A nil logger falls back to NoOp.
func NewManager(logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Manager{hooks: make(map[Event][]Hook), logger: logger}
}

// Register attaches a hook to an event. Unknown event names are silently
// ignored; this permissiveness is deliberate and documented, not a bug.
func (m *Manager) Register(event Event, hook Hook) {
	if !knownEvents[event] || hook == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks[event] = append(m.hooks[event], hook)
}

// Registered reports how many hooks are attached to an event.
func (m *Manager) Registered(event Event) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hooks[event])
}

// Trigger invokes every hook registered for the event sequentially, in
// registration order. Errors and panics inside a hook are logged and the
// remaining hooks still run. Trigger itself never returns an error.
func (m *Manager) Trigger(ctx context.Context, event Event, payload map[string]any) {
	m.mu.RLock()
	hooks := make([]Hook, len(m.hooks[event]))
	copy(hooks, m.hooks[event])
	m.mu.RUnlock()

	for i, hook := range hooks {
		if err := m.invoke(ctx, hook, payload); err != nil {
			m.logger.Error("lifecycle hook failed", "event", string(event), "hook_index", i, "error", err.Error())
		}
	}
}

func (m *Manager) invoke(ctx context.Context, hook Hook, payload map[string]any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panicked: %v", r)
		}
	}()
	return hook(ctx, payload)
}
