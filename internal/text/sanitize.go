// Package text normalizes generated text before it enters the conversation
// ledger: control characters, invisible Unicode, mixed line endings, and
// runaway whitespace from model output.
package text

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// controlCharsRegex matches ASCII control characters (including DEL)
	// other than tab and newline.
	controlCharsRegex = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)

	// multipleNewlinesRegex matches runs of 3+ newlines, collapsed to a
	// paragraph break.
	multipleNewlinesRegex = regexp.MustCompile(`\n{3,}`)

	// unicodeReplacer removes invisible format characters and converts
	// exotic Unicode whitespace to plain spaces and newlines.
	unicodeReplacer = strings.NewReplacer(
		"\u2060", "", // word joiner
		"\uFEFF", "", // byte order mark
		"\u00AD", "", // soft hyphen
		"\u200E", "", // left-to-right mark
		"\u200F", "", // right-to-left mark
		"\u2061", "", // function application
		"\u2062", "", // invisible times
		"\u2063", "", // invisible separator
		"\u2064", "", // invisible plus
		"\u2028", "\n", // line separator
		"\u2029", "\n\n", // paragraph separator
		"\u200B", " ", // zero width space
		"\u200C", " ", // zero width non-joiner
		"\u205F", " ", // medium mathematical space
		"\u2009", " ", // thin space
		"\u200A", " ", // hair space
		"\u202F", " ", // narrow no-break space
		"\u3000", " ", // ideographic space
		"\u00A0", " ", // non-breaking space
	)
)

// Sanitize normalizes text for ledger storage: line endings become LF,
// invisible Unicode and control characters are removed, whitespace within
// each line is collapsed, and runs of blank lines shrink to one. Returns the
// empty string when nothing meaningful remains.
func Sanitize(input string) string {
	s := strings.ReplaceAll(input, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = unicodeReplacer.Replace(s)
	s = controlCharsRegex.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = normalizeLineWhitespace(lines[i])
	}

	s = strings.Join(lines, "\n")
	s = multipleNewlinesRegex.ReplaceAllString(s, "\n\n")

	return strings.TrimSpace(s)
}

// normalizeLineWhitespace collapses consecutive whitespace within one line
// into single spaces and trims the ends.
func normalizeLineWhitespace(line string) string {
	var b strings.Builder
	var space bool

	for _, r := range line {
		if unicode.IsSpace(r) {
			if !space {
				b.WriteRune(' ')
				space = true
			}
		} else {
			b.WriteRune(r)
			space = false
		}
	}

	return strings.TrimSpace(b.String())
}
