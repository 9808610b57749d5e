package utils

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// TruncateTail keeps the last max runes of s, prefixed with a note saying
// how much was dropped. max <= 0 disables truncation.
func TruncateTail(s string, max int) string {
	if max <= 0 {
		return s
	}
	n := utf8.RuneCountInString(s)
	if n <= max {
		return s
	}
	runes := []rune(s)
	return fmt.Sprintf("...[truncated %d chars]...\n%s", n-max, string(runes[n-max:]))
}

// TruncateHead keeps the first max runes of s.
func TruncateHead(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}

// OneLine collapses s into a single line for log and status output.
func OneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
