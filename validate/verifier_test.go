package validate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVerifier(t *testing.T, base string) *Verifier {
	t.Helper()
	v, err := NewVerifier(base)
	require.NoError(t, err)
	t.Cleanup(v.Close)
	return v
}

func TestFileSearch_DirectHit(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("hello"), 0o644))

	v := newTestVerifier(t, dir)
	f := v.FileSearch("notes.md")
	require.True(t, f.Located())
	assert.Equal(t, []string{filepath.Join(dir, "notes.md")}, f.Paths)
	// Ground truth (0.6) + valid metadata (0.05).
	assert.InDelta(t, 0.65, f.Confidence, 1e-9)
}

func TestFileSearch_GlobFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "report-2026.json"), []byte("{}"), 0o644))

	v := newTestVerifier(t, dir)
	f := v.FileSearch("report-*.json")
	require.True(t, f.Located())
	assert.Contains(t, f.Paths[0], "report-2026.json")
	assert.InDelta(t, 0.2, f.Confidence, 1e-9)
}

func TestFileSearch_ContentGrepFallbackForKnownTopic(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "state.json"), []byte(`{"president": {"name": "ada"}}`), 0o644))

	v := newTestVerifier(t, dir)
	f := v.FileSearch("organization-settings")
	require.True(t, f.Located(), "topic grep should locate the file containing organization terms")
	assert.InDelta(t, 0.2, f.Confidence, 1e-9)
}

func TestFileSearch_NotFound(t *testing.T) {
	v := newTestVerifier(t, t.TempDir())
	f := v.FileSearch("does-not-exist.cfg")
	assert.False(t, f.Located())
	assert.Zero(t, f.Confidence)
}

func TestFileSearch_CacheHitRaisesConfidence(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("hello"), 0o644))

	v := newTestVerifier(t, dir)
	first := v.FileSearch("notes.md")
	assert.InDelta(t, 0.65, first.Confidence, 1e-9)

	v.Wait() // make the cached entry visible
	second := v.FileSearch("notes.md")
	// Ground truth (0.6) + metadata (0.05) + cache hit (0.15).
	assert.InDelta(t, 0.8, second.Confidence, 1e-9)
	assert.Equal(t, first.Paths, second.Paths)
}

func TestValidateCritical_CoverageRatio(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0o644))

	v := newTestVerifier(t, dir)
	report := v.ValidateCritical([]string{"a.txt", "b.txt", "missing.txt"})

	assert.False(t, report.AllValid)
	assert.InDelta(t, 2.0/3.0, report.CoverageRatio, 1e-9)
	require.Len(t, report.Missing, 1)
	assert.Equal(t, "missing.txt", report.Missing[0])
	assert.Len(t, report.Found, 2)
}

func TestValidateCritical_AllFound(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))

	v := newTestVerifier(t, dir)
	report := v.ValidateCritical([]string{"a.txt"})
	assert.True(t, report.AllValid)
	assert.InDelta(t, 1.0, report.CoverageRatio, 1e-9)
	assert.Empty(t, report.Missing)
}

func TestValidateCritical_EmptyList(t *testing.T) {
	v := newTestVerifier(t, t.TempDir())
	report := v.ValidateCritical(nil)
	assert.True(t, report.AllValid)
	assert.Zero(t, report.CoverageRatio)
}
