// Package validate makes confidence-scored claims about resources the system
// cannot fully verify. Every "file X exists" assertion runs through a tiered
// search whose outcome feeds a bounded confidence computation instead of a
// bare boolean, and user-facing phrasing is hedged accordingly.
package validate

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dgraph-io/ristretto"
	"github.com/gobwas/glob"

	"github.com/hupe1980/memomesh/logging"
)

// maxMatches caps the paths collected by the fallback tiers.
const maxMatches = 8

// maxGrepSize caps how large a file the content-grep tier will read.
const maxGrepSize = 256 << 10

// topicTerms maps known config topics to the content terms the grep tier
// looks for when a pattern references that topic.
var topicTerms = map[string][]string{
	"memory":       {"session_id", "conversational_summary"},
	"organization": {"president", "boss", "workers"},
	"persona":      {"persona", "directives"},
	"session":      {"session_id"},
}

// Finding records where a pattern was (or was not) located plus the weighted
// confidence of the claim.
type Finding struct {
	Pattern    string   `json:"pattern"`
	Paths      []string `json:"paths"`
	Confidence float64  `json:"confidence"`
}

// Located reports whether any path matched the pattern.
func (f Finding) Located() bool { return len(f.Paths) > 0 }

// Report is the outcome of validating a fixed list of required resources.
// CoverageRatio is the plain found/required ratio; it is deliberately a
// different, simpler notion than the per-finding weighted confidence.
type Report struct {
	AllValid      bool      `json:"all_valid"`
	Missing       []string  `json:"missing"`
	Found         []Finding `json:"found"`
	CoverageRatio float64   `json:"coverage_ratio"`
}

// Options holds overrides passed to NewVerifier.
type Options struct {
	// Logger receives verification diagnostics. Defaults to NoOp.
	Logger logging.Logger
	// CacheCapacity bounds the recent-lookup cache cost.
	CacheCapacity int64
}

// Verifier runs tiered existence checks rooted at a base path. A cache of
// recent successful lookups feeds the cache-hit confidence signal.
type Verifier struct {
	base   string
	cache  *ristretto.Cache
	logger logging.Logger
}

type cachedFinding struct {
	paths   []string
	signals Signals
}

// NewVerifier constructs a Verifier rooted at basePath.
func NewVerifier(basePath string, optFns ...func(o *Options)) (*Verifier, error) {
	opts := Options{Logger: logging.NoOpLogger{}, CacheCapacity: 1 << 20}
	for _, fn := range optFns {
		fn(&opts)
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     opts.CacheCapacity,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("validate: cache init: %w", err)
	}
	return &Verifier{base: basePath, cache: cache, logger: opts.Logger}, nil
}

// Close releases the lookup cache.
func (v *Verifier) Close() { v.cache.Close() }

// Wait blocks until pending cache writes are applied. Intended for callers
// that need deterministic cache behavior, such as tests.
func (v *Verifier) Wait() { v.cache.Wait() }

// FileSearch attempts, in order: a direct path existence check, a glob walk
// under the base path, and a content grep for patterns referencing a known
// config topic. The first successful tier short-circuits the rest and the
// result is cached so repeat lookups gain the cache-hit signal.
func (v *Verifier) FileSearch(pattern string) Finding {
	if val, ok := v.cache.Get(pattern); ok {
		if cf, ok := val.(cachedFinding); ok {
			sig := cf.signals
			sig.CacheHit = true
			return Finding{Pattern: pattern, Paths: cf.paths, Confidence: ResourceConfidence(sig)}
		}
	}

	if f, ok := v.directCheck(pattern); ok {
		return f
	}
	if f, ok := v.globWalk(pattern); ok {
		return f
	}
	if f, ok := v.contentGrep(pattern); ok {
		return f
	}

	v.logger.Debug("resource not located", "pattern", pattern, "base", v.base)
	return Finding{Pattern: pattern, Confidence: ResourceConfidence(Signals{})}
}

// ValidateCritical runs FileSearch over a fixed list of required resource
// identifiers. Its confidence is the plain coverage ratio, computed fresh per
// invocation and never persisted.
func (v *Verifier) ValidateCritical(required []string) Report {
	report := Report{Missing: []string{}, Found: []Finding{}}
	for _, pattern := range required {
		f := v.FileSearch(pattern)
		if f.Located() {
			report.Found = append(report.Found, f)
		} else {
			report.Missing = append(report.Missing, pattern)
		}
	}
	if len(required) > 0 {
		report.CoverageRatio = float64(len(report.Found)) / float64(len(required))
	}
	report.AllValid = len(report.Missing) == 0
	return report
}

func (v *Verifier) directCheck(pattern string) (Finding, bool) {
	path := pattern
	if !filepath.IsAbs(path) {
		path = filepath.Join(v.base, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return Finding{}, false
	}
	sig := Signals{GroundTruthChecked: true, MetadataValid: info.Mode().IsRegular() || info.IsDir()}
	return v.remember(pattern, []string{path}, sig), true
}

func (v *Verifier) globWalk(pattern string) (Finding, bool) {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return Finding{}, false
	}
	var paths []string
	_ = filepath.WalkDir(v.base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree: keep walking
		}
		if len(paths) >= maxMatches {
			return filepath.SkipAll
		}
		rel, relErr := filepath.Rel(v.base, path)
		if relErr != nil {
			return nil
		}
		if g.Match(rel) || g.Match(d.Name()) {
			paths = append(paths, path)
		}
		return nil
	})
	if len(paths) == 0 {
		return Finding{}, false
	}
	return v.remember(pattern, paths, Signals{MultiplePatterns: true}), true
}

func (v *Verifier) contentGrep(pattern string) (Finding, bool) {
	terms := termsFor(pattern)
	if len(terms) == 0 {
		return Finding{}, false
	}
	var paths []string
	_ = filepath.WalkDir(v.base, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if len(paths) >= maxMatches {
			return filepath.SkipAll
		}
		info, infoErr := d.Info()
		if infoErr != nil || info.Size() > maxGrepSize {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		content := strings.ToLower(string(data))
		for _, term := range terms {
			if strings.Contains(content, term) {
				paths = append(paths, path)
				return nil
			}
		}
		return nil
	})
	if len(paths) == 0 {
		return Finding{}, false
	}
	return v.remember(pattern, paths, Signals{MultiplePatterns: true}), true
}

// remember caches a successful lookup and builds its finding.
func (v *Verifier) remember(pattern string, paths []string, sig Signals) Finding {
	v.cache.Set(pattern, cachedFinding{paths: paths, signals: sig}, int64(len(pattern)+len(paths)))
	return Finding{Pattern: pattern, Paths: paths, Confidence: ResourceConfidence(sig)}
}

// termsFor returns the grep terms when the pattern references a known config
// topic, or nil otherwise.
func termsFor(pattern string) []string {
	lower := strings.ToLower(pattern)
	topics := make([]string, 0, len(topicTerms))
	for topic := range topicTerms {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	for _, topic := range topics {
		if strings.Contains(lower, topic) {
			return topicTerms[topic]
		}
	}
	return nil
}
