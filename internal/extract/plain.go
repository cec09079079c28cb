package extract

import (
	"strings"
	"unicode/utf8"
)

// plainLines splits content on newlines and trims each line. A trailing
// newline does not produce an extra empty line. Invalid UTF-8 sequences are
// replaced with the replacement character.
func plainLines(content []byte) []string {
	if len(content) == 0 {
		return nil
	}
	text := string(content)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "\ufffd")
	}
	text = strings.TrimSuffix(text, "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return lines
}
