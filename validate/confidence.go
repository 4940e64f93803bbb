package validate

import "fmt"

// Signals are the inputs to the weighted resource-confidence formula. Each
// flag records which verification path contributed to a finding.
type Signals struct {
	// GroundTruthChecked: the resource was confirmed by a direct existence check.
	GroundTruthChecked bool
	// MultiplePatterns: a fallback search tier (glob walk or content grep) matched.
	MultiplePatterns bool
	// CacheHit: a recent successful lookup for the same pattern was reused.
	CacheHit bool
	// MetadataValid: file metadata was readable alongside the existence check.
	MetadataValid bool
}

// Weighting of the resource-confidence formula. The cap is deliberate: the
// system never claims absolute certainty about an externally-verified fact,
// even when every signal is present.
const (
	weightGroundTruth      = 0.6
	weightMultiplePatterns = 0.2
	weightCacheHit         = 0.15
	weightMetadataValid    = 0.05
	confidenceCap          = 0.99
)

// ResourceConfidence computes the weighted confidence for one verified
// resource, clamped to [0, 0.99]. Distinct from CoverageRatio on Report,
// which is a plain found/required ratio; the two are not interchangeable.
func ResourceConfidence(s Signals) float64 {
	c := 0.0
	if s.GroundTruthChecked {
		c += weightGroundTruth
	}
	if s.MultiplePatterns {
		c += weightMultiplePatterns
	}
	if s.CacheHit {
		c += weightCacheHit
	}
	if s.MetadataValid {
		c += weightMetadataValid
	}
	if c > confidenceCap {
		c = confidenceCap
	}
	return c
}

// Hedging thresholds for HedgedMessage.
const (
	assertThreshold   = 0.95
	likelyThreshold   = 0.8
	probablyThreshold = 0.6
)

// HedgedMessage maps a confidence value to honest phrasing around the
// message. Pure function, no side effects: this is the user-facing honesty
// mechanism, the only place verification uncertainty becomes visible.
func HedgedMessage(message string, confidence float64) string {
	switch {
	case confidence >= assertThreshold:
		return message
	case confidence >= likelyThreshold:
		return fmt.Sprintf("%s (likely correct, but please double-check)", message)
	case confidence >= probablyThreshold:
		return fmt.Sprintf("%s (probably right, though it might be somewhere else)", message)
	default:
		return fmt.Sprintf("%s - not found where expected; it could be somewhere else. Want me to search more?", message)
	}
}
