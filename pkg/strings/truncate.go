package strings

import (
	"strings"
)

const (
	// NameMaxLen bounds display names in table output.
	NameMaxLen = 32

	// ChatLineMaxLen bounds untrusted text echoed into a conversation.
	ChatLineMaxLen = 120
)

// minClipLen leaves room for one rune plus the ellipsis.
const minClipLen = 4

// Clip collapses all whitespace runs (including newlines) to single spaces
// and shortens the result to maxLen runes, ending in "..." when cut.
// maxLen values below 4 are raised to 4.
func Clip(s string, maxLen int) string {
	if maxLen < minClipLen {
		maxLen = minClipLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
