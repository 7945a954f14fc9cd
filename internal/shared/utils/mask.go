package utils

import (
	"strings"
	"unicode/utf8"
)

// MaskEmail masks an email address for safe logging.
// Example: "user@example.com" -> "u***@example.com"
func MaskEmail(email string) string {
	parts := strings.SplitN(email, "@", 2)
	if len(parts) != 2 {
		return "***"
	}
	local := parts[0]
	if len(local) <= 1 {
		return local + "***@" + parts[1]
	}
	return string(local[0]) + "***@" + parts[1]
}

// Truncate shortens s to at most maxLen bytes, marking the cut with "...".
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return "..."
	}
	if len(s) <= maxLen {
		return s
	}
	return CutUTF8(s, maxLen) + "..."
}

// CutUTF8 shortens s to at most n bytes without splitting a multi-byte rune.
func CutUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 0 {
		return ""
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
