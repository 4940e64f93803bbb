// Package hooks exposes the two integration points a host application calls
// around each model exchange: BeforePrompt and AfterResponse. Both are total
// functions over their inputs. Whatever fails inside them is logged and
// answered by the fallback path; nothing crosses the hook boundary as an
// error or panic.
package hooks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/memomesh/bootstrap"
	"github.com/hupe1980/memomesh/core"
	"github.com/hupe1980/memomesh/inject"
	"github.com/hupe1980/memomesh/internal/util"
	"github.com/hupe1980/memomesh/lifecycle"
	"github.com/hupe1980/memomesh/logging"
	"github.com/hupe1980/memomesh/orgstate"
	"github.com/hupe1980/memomesh/validate"
)

// responseBudget caps the assistant text carried into the captured summary.
const responseBudget = 2000

// Options holds overrides passed to NewService.
type Options struct {
	// Logger receives hook diagnostics. Defaults to NoOp.
	Logger logging.Logger
}

// Service binds the hook surface to a bootstrapped runtime.
type Service struct {
	rt     *bootstrap.Runtime
	logger logging.Logger

	mu          sync.Mutex
	lastSession string
}

// NewService wires the hook surface onto rt.
func NewService(rt *bootstrap.Runtime, optFns ...func(o *Options)) *Service {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Service{rt: rt, logger: opts.Logger}
}

// BeforePrompt enriches an outgoing prompt with inherited memory context. It
// always returns a usable prompt and metadata: on any internal failure the
// fallback path runs and the original inputs pass through unmodified.
func (s *Service) BeforePrompt(ctx context.Context, prompt *core.Prompt, md *core.Metadata) (outPrompt *core.Prompt, outMD *core.Metadata) {
	if prompt == nil {
		prompt = &core.Prompt{}
	}
	if md == nil {
		md = &core.Metadata{}
	}
	outPrompt, outMD = prompt, md

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("before_prompt recovered from panic", "panic", fmt.Sprintf("%v", r))
			s.rt.Fallback(ctx)
			outPrompt, outMD = prompt, md
		}
	}()

	if md.SessionID == "" {
		md.SessionID = s.rt.Config.SessionID
	}
	if md.TurnID == "" {
		md.TurnID = core.NewID()
	}

	s.handleSessionTransition(ctx, md.SessionID)
	s.seedFromBridge(ctx, md.SessionID)

	turn := &inject.Turn{Prompt: prompt.Clone(), Metadata: md}
	if block, ok := s.validateResources(); ok {
		turn.AddBlock(block)
	}

	s.rt.Injector.Run(ctx, turn)

	if md.SearchEnabled(s.rt.Config.EnableSearch) && md.UserMessage != "" {
		recalled := len(turn.Blocks)
		s.rt.RecordSearch(md.UserMessage, recalled)
	}

	return turn.Prompt, turn.Metadata
}

// AfterResponse captures the finished turn and persists it through the
// bridge. It never fails; persistence errors degrade to log lines and the
// in-memory capture still records the turn.
func (s *Service) AfterResponse(ctx context.Context, md *core.Metadata, resp *core.Response) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("after_response recovered from panic", "panic", fmt.Sprintf("%v", r))
			s.rt.Fallback(ctx)
		}
	}()

	if md == nil {
		md = &core.Metadata{}
	}
	if md.SessionID == "" {
		md.SessionID = s.rt.Config.SessionID
	}
	text := ""
	if resp != nil {
		text = resp.Text
	}

	state := s.rt.Capture.Capture(md.SessionID, map[string]any{
		"source":             "after_response",
		"turn_id":            md.TurnID,
		"user_message":       md.UserMessage,
		"assistant_response": util.Truncate(text, responseBudget),
	})

	doc := map[string]any{
		"schema_version":         orgstate.SchemaVersion,
		"session_id":             md.SessionID,
		"conversational_summary": state.ConversationalSummary,
		"context":                state.Context,
		"timestamp":              state.Timestamp.Format(time.RFC3339),
	}
	if err := s.rt.Bridge.SaveMemory(ctx, md.SessionID, doc); err != nil {
		s.logger.Warn("memory persistence failed", "session_id", md.SessionID, "error", err.Error())
		s.rt.NoteBridgeStatus("last_save_error", err.Error())
	} else {
		s.rt.NoteBridgeStatus("last_save_error", "")
	}

	s.rt.Lifecycle.Trigger(ctx, lifecycle.EventStateChange, map[string]any{
		"source":     "after_response",
		"session_id": md.SessionID,
		"turn_id":    md.TurnID,
	})
}

// handleSessionTransition fires the session_transition event when the
// incoming session id differs from the previous turn's, handing the previous
// id to the compression handler.
func (s *Service) handleSessionTransition(ctx context.Context, sessionID string) {
	s.mu.Lock()
	prev := s.lastSession
	s.lastSession = sessionID
	s.mu.Unlock()

	if prev == "" || prev == sessionID {
		return
	}
	s.rt.Lifecycle.Trigger(ctx, lifecycle.EventSessionTransition, map[string]any{
		"previous_session_id": prev,
		"session_id":          sessionID,
	})
}

// seedFromBridge loads persisted memory for sessions the in-process store has
// not seen yet. An existing capture always wins over the bridge document; the
// store is the source of truth within a process.
func (s *Service) seedFromBridge(ctx context.Context, sessionID string) {
	if _, ok := s.rt.Capture.Get(sessionID); ok {
		return
	}
	doc, err := s.rt.Bridge.GetMemory(ctx, sessionID)
	if err != nil {
		s.logger.Warn("inherited memory unavailable, using defaults", "session_id", sessionID, "error", err.Error())
	}
	seed := map[string]any{
		"source":           "bridge_inheritance",
		"inherited_memory": doc,
	}
	if summary, ok := doc["conversational_summary"].(string); ok && summary != "" {
		seed["conversational_summary"] = summary
	}
	s.rt.Capture.Capture(sessionID, seed)
}

// validateResources checks the configured critical resources and, when any
// are missing, contributes an organizational block carrying a
// confidence-hedged statement of what could not be located.
func (s *Service) validateResources() (inject.ContextBlock, bool) {
	required := s.rt.Config.RequiredResources
	if len(required) == 0 || s.rt.Verifier == nil {
		return inject.ContextBlock{}, false
	}

	report := s.rt.Verifier.ValidateCritical(required)
	if report.AllValid {
		return inject.ContextBlock{}, false
	}

	msg := validate.HedgedMessage(
		fmt.Sprintf("Critical resources located: %d of %d.", len(report.Found), len(required)),
		report.CoverageRatio,
	)
	var b strings.Builder
	b.WriteString(msg)
	b.WriteString("\nMissing: ")
	b.WriteString(strings.Join(report.Missing, ", "))

	return inject.ContextBlock{
		Layer: inject.LayerOrganizational,
		Label: "Resource Validation",
		Body:  b.String(),
	}, true
}
