package util

import "unicode/utf8"

// truncationMarker is appended whenever Truncate shortens its input.
const truncationMarker = "…[truncated]"

// Truncate caps s at max bytes without splitting a UTF-8 rune, appending a
// marker when content was dropped. Used to keep external search output and
// captured responses within the prompt embedding budget.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncationMarker
}
