package inference

import "strings"

// SanitizeMessage normalises a turn before it is fed back into a transcript:
// literal "\n" escapes become line breaks, CRLF becomes LF, blank lines are
// collapsed and surrounding space is trimmed. A blank line is the turn
// separator, so it may not appear inside a turn.
func SanitizeMessage(text string) string {
	s := strings.ReplaceAll(text, `\n`, "\n")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	for strings.Contains(s, "\n\n") {
		s = strings.ReplaceAll(s, "\n\n", "\n")
	}
	return strings.TrimSpace(s)
}
