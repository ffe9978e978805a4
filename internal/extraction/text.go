package extraction

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// DecodeText turns raw document bytes into text. Valid UTF-8 is used as-is;
// anything else is read as ISO-8859-1, which maps every byte and so never
// fails. NUL bytes are dropped.
func DecodeText(content []byte) string {
	var text string
	if utf8.Valid(content) {
		text = string(content)
	} else {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(content)
		if err != nil {
			text = strings.ToValidUTF8(string(content), "�")
		} else {
			text = string(decoded)
		}
	}
	return strings.ReplaceAll(text, "\x00", "")
}

// Truncate returns at most limit runes of text. The result is always a prefix
// of text.
func Truncate(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	n := 0
	for i := range text {
		if n == limit {
			return text[:i]
		}
		n++
	}
	return text
}
