// Package utils provides bespoke, one off helpers that don't make sense to
// be their own package
package utils

// Truncate shortens s to at most maxLen bytes, marking the cut with an
// ellipsis. Non-positive limits return s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
