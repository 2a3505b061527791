package util

import (
	"fmt"
	"unicode/utf8"
)

// DefaultLogMaxLen caps upstream response bodies quoted in errors and logs.
const DefaultLogMaxLen = 512

// Truncate shortens s to at most maxLen bytes without splitting a rune and
// notes the original size.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}

// TruncateBytes is Truncate with DefaultLogMaxLen for raw bodies.
func TruncateBytes(b []byte) string {
	return Truncate(string(b), DefaultLogMaxLen)
}
