package bootstrap

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalidSessionID is returned by ResolveConfig for a structurally invalid
// session id. This is the only error the configuring stage may raise.
var ErrInvalidSessionID = errors.New("bootstrap: structurally invalid session id")

// minSessionIDLen rejects ids too short to be meaningful correlation keys.
const minSessionIDLen = 4

// Config is the fully-resolved configuration produced once at startup.
// Immutable for the lifetime of the process and injected into all downstream
// components rather than read from globals.
type Config struct {
	// SessionID identifies the current conversation thread.
	SessionID string

	// Feature toggles for the optional integrations; per-turn metadata can
	// override them.
	EnableSearch          bool
	EnableMCP             bool
	EnablePeriodicCapture bool

	// CaptureInterval paces the background capture timer.
	CaptureInterval time.Duration
	// SubprocessTimeout bounds every external script call.
	SubprocessTimeout time.Duration
	// StoreCapacity bounds the in-memory session store (LRU evicted).
	StoreCapacity int
	// SearchLimit caps recalled memories per query.
	SearchLimit int

	// BasePath roots resource validation and relative state paths.
	BasePath string
	// OrgStatePath locates the organization state JSON document.
	OrgStatePath string
	// SessionRecordsDir holds per-session fallback inheritance records.
	SessionRecordsDir string

	// External collaborator scripts; empty means not configured.
	BridgeScript        string
	SearchScript        string
	InheritanceScript   string
	CollabBridgeScript  string
	SessionBridgeScript string

	// RequiredResources is the fixed list validated before every prompt.
	RequiredResources []string
}

// ResolveConfig builds the Config from defaults, MEMOMESH_* environment
// variables and explicit overrides, applied in that order. It returns an
// error only for a structurally invalid session id; every other value has a
// workable default.
func ResolveConfig(overrides ...func(c *Config)) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MEMOMESH")
	v.AutomaticEnv()

	v.SetDefault("session_id", "")
	v.SetDefault("enable_search", true)
	v.SetDefault("enable_mcp", false)
	v.SetDefault("enable_periodic_capture", false)
	v.SetDefault("capture_interval", "5m")
	v.SetDefault("subprocess_timeout", "5s")
	v.SetDefault("store_capacity", 256)
	v.SetDefault("search_limit", 5)
	v.SetDefault("base_path", ".")
	v.SetDefault("org_state_path", "")
	v.SetDefault("session_records_dir", "")
	v.SetDefault("bridge_script", "")
	v.SetDefault("search_script", "")
	v.SetDefault("inheritance_script", "")
	v.SetDefault("collab_bridge_script", "")
	v.SetDefault("session_bridge_script", "")
	v.SetDefault("required_resources", []string{})

	cfg := Config{
		SessionID:             v.GetString("session_id"),
		EnableSearch:          v.GetBool("enable_search"),
		EnableMCP:             v.GetBool("enable_mcp"),
		EnablePeriodicCapture: v.GetBool("enable_periodic_capture"),
		CaptureInterval:       v.GetDuration("capture_interval"),
		SubprocessTimeout:     v.GetDuration("subprocess_timeout"),
		StoreCapacity:         v.GetInt("store_capacity"),
		SearchLimit:           v.GetInt("search_limit"),
		BasePath:              v.GetString("base_path"),
		OrgStatePath:          v.GetString("org_state_path"),
		SessionRecordsDir:     v.GetString("session_records_dir"),
		BridgeScript:          v.GetString("bridge_script"),
		SearchScript:          v.GetString("search_script"),
		InheritanceScript:     v.GetString("inheritance_script"),
		CollabBridgeScript:    v.GetString("collab_bridge_script"),
		SessionBridgeScript:   v.GetString("session_bridge_script"),
		RequiredResources:     v.GetStringSlice("required_resources"),
	}

	for _, fn := range overrides {
		fn(&cfg)
	}

	if len(cfg.SessionID) < minSessionIDLen {
		return Config{}, fmt.Errorf("%w: %q", ErrInvalidSessionID, cfg.SessionID)
	}

	if cfg.CaptureInterval <= 0 {
		cfg.CaptureInterval = 5 * time.Minute
	}
	if cfg.SubprocessTimeout <= 0 {
		cfg.SubprocessTimeout = 5 * time.Second
	}
	if cfg.StoreCapacity < 1 {
		cfg.StoreCapacity = 256
	}
	if cfg.SearchLimit < 1 {
		cfg.SearchLimit = 5
	}
	if cfg.BasePath == "" {
		cfg.BasePath = "."
	}
	if cfg.OrgStatePath == "" {
		cfg.OrgStatePath = filepath.Join(cfg.BasePath, "state", "organization.json")
	}
	if cfg.SessionRecordsDir == "" {
		cfg.SessionRecordsDir = filepath.Join(cfg.BasePath, "state", "sessions")
	}

	return cfg, nil
}
