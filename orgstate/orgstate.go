// Package orgstate persists organization/role state in a plain JSON document
// shared across sessions. Access is read-full-file → merge-in-memory →
// write-full-file with no file locking: the store assumes a single active
// process per state file. Other writers are tolerated only insofar as a
// watcher can report that the file changed underneath us.
package orgstate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hupe1980/memomesh/logging"
)

// SchemaVersion is stamped on every written document so future readers can
// detect layout changes.
const SchemaVersion = 1

// Role names with dedicated top-level slots in the document. Any other role
// name is merged under workers.
const (
	RolePresident = "president"
	RoleBoss      = "boss"
)

// Document is the wholesale-persisted organization state.
type Document struct {
	SchemaVersion int                       `json:"schema_version"`
	LastUpdated   time.Time                 `json:"last_updated"`
	President     map[string]any            `json:"president"`
	Boss          map[string]any            `json:"boss"`
	Workers       map[string]map[string]any `json:"workers"`
}

// DefaultDocument returns the hardcoded baseline used when no state file
// exists or the existing one cannot be parsed.
func DefaultDocument() *Document {
	return &Document{
		SchemaVersion: SchemaVersion,
		President:     map[string]any{},
		Boss:          map[string]any{},
		Workers:       map[string]map[string]any{},
	}
}

// Options holds overrides passed to NewStore.
type Options struct {
	// Logger receives store diagnostics. Defaults to NoOp.
	Logger logging.Logger
	// Clock overrides time.Now for tests.
	Clock func() time.Time
}

// Store reads and writes the organization document. Every access loads the
// file fresh; nothing is cached between calls.
type Store struct {
	path   string
	logger logging.Logger
	clock  func() time.Time
}

// NewStore creates a store backed by the JSON file at path.
func NewStore(path string, optFns ...func(o *Options)) *Store {
	opts := Options{Logger: logging.NoOpLogger{}, Clock: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{path: path, logger: opts.Logger, clock: opts.Clock}
}

// Load reads the document fresh from disk. A missing file yields the default
// document with no error; a malformed file yields the default document plus
// the parse error so callers can degrade without losing a usable value.
func (s *Store) Load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultDocument(), nil
		}
		return DefaultDocument(), fmt.Errorf("orgstate: read %s: %w", s.path, err)
	}
	doc := DefaultDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		s.logger.Warn("organization state file is malformed, using default", "path", s.path, "error", err.Error())
		return DefaultDocument(), fmt.Errorf("orgstate: parse %s: %w", s.path, err)
	}
	if doc.President == nil {
		doc.President = map[string]any{}
	}
	if doc.Boss == nil {
		doc.Boss = map[string]any{}
	}
	if doc.Workers == nil {
		doc.Workers = map[string]map[string]any{}
	}
	return doc, nil
}

// UpdateRole merges fields into the named role and persists the whole
// document: read-merge-write keyed by role name. President and boss have
// dedicated slots; any other name addresses a worker entry.
func (s *Store) UpdateRole(role string, fields map[string]any) (*Document, error) {
	doc, err := s.Load()
	if err != nil {
		s.logger.Warn("updating roles over a degraded document", "error", err.Error())
	}

	var target map[string]any
	switch role {
	case RolePresident:
		target = doc.President
	case RoleBoss:
		target = doc.Boss
	default:
		worker, ok := doc.Workers[role]
		if !ok {
			worker = map[string]any{}
			doc.Workers[role] = worker
		}
		target = worker
	}
	for k, v := range fields {
		target[k] = v
	}

	doc.SchemaVersion = SchemaVersion
	doc.LastUpdated = s.clock().UTC()

	if err := s.write(doc); err != nil {
		return doc, err
	}
	return doc, nil
}

// Snapshot flattens the current document into a generic map for captures.
func (s *Store) Snapshot() (map[string]any, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("orgstate: snapshot: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("orgstate: snapshot: %w", err)
	}
	return out, nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

func (s *Store) write(doc *Document) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("orgstate: mkdir: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("orgstate: encode: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("orgstate: write %s: %w", s.path, err)
	}
	return nil
}

// Watch reports external modifications of the state file by invoking onChange
// until the context is canceled. The watcher observes the parent directory so
// it also catches atomic replace-by-rename writers.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("orgstate: watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		watcher.Close()
		return fmt.Errorf("orgstate: mkdir: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("orgstate: watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(s.path)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				s.logger.Debug("organization state file changed", "op", ev.Op.String())
				onChange()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("organization state watcher error", "error", err.Error())
			}
		}
	}()
	return nil
}
