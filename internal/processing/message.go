package processing

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxErrorMessageLen = 500

var secretPattern = regexp.MustCompile(`(?i)(bearer\s+\S+|sk-[a-z0-9_\-]{8,}|api[_-]?key[=:]\s*\S+)`)

// failureMessage renders err as the text stored in processing_error: one
// line, credentials masked, at most maxErrorMessageLen characters.
func failureMessage(err error) string {
	msg := strings.Join(strings.Fields(err.Error()), " ")
	msg = secretPattern.ReplaceAllString(msg, "[redacted]")

	if utf8.RuneCountInString(msg) > maxErrorMessageLen {
		runes := []rune(msg)
		msg = string(runes[:maxErrorMessageLen-3]) + "..."
	}
	if msg == "" {
		msg = "processing failed"
	}
	return msg
}
