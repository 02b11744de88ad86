// Package ui provides terminal styling for git-ai CLI output.
package ui

import (
	"strings"
	"unicode/utf8"
)

// Default truncation settings for prompt transcript display
const (
	DefaultMaxLines     = 15 // max lines of a prompt message before truncation
	DefaultContextLines = 5  // lines kept at beginning and end when truncating
)

// TruncateLines truncates text to maxLines, keeping context from the
// beginning and end with a hidden-line marker in the middle. Text at or
// under maxLines is returned unchanged.
func TruncateLines(text string, maxLines, contextLines int) string {
	if text == "" {
		return text
	}

	lines := strings.Split(text, "\n")
	total := len(lines)
	if total <= maxLines {
		return text
	}

	if contextLines < 1 {
		contextLines = DefaultContextLines
	}
	// Not enough room for head and tail context, cut from the end only.
	if maxLines < contextLines*2+3 {
		return strings.Join(lines[:maxLines], "\n") + "\n" + RenderMuted("...")
	}

	hidden := total - contextLines*2

	var b strings.Builder
	b.WriteString(strings.Join(lines[:contextLines], "\n"))
	b.WriteString("\n")
	b.WriteString(RenderMuted(strings.Repeat("─", 40)))
	b.WriteString("\n")
	b.WriteString(RenderMuted("... " + itoa(hidden) + " lines hidden (use --full for the complete text) ..."))
	b.WriteString("\n")
	b.WriteString(RenderMuted(strings.Repeat("─", 40)))
	b.WriteString("\n")
	b.WriteString(strings.Join(lines[total-contextLines:], "\n"))

	return b.String()
}

// TruncateSimple performs simple end truncation with "..." suffix.
// UTF-8 safe.
func TruncateSimple(text string, maxLen int) string {
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	runes := []rune(text)
	if maxLen <= 3 {
		return "..."
	}
	return string(runes[:maxLen-3]) + "..."
}

// PadRight pads text with spaces to width, truncating if it is longer.
// Width is counted in runes so multi-byte author names line up.
func PadRight(text string, width int) string {
	n := utf8.RuneCountInString(text)
	if n > width {
		return TruncateSimple(text, width)
	}
	return text + strings.Repeat(" ", width-n)
}

// itoa converts int to string without importing strconv
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	if n < 0 {
		return "-" + itoa(-n)
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
