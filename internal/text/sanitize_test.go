package text_test

import (
	"testing"

	"github.com/convocore/convocore/internal/text"
)

func TestSanitize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text unchanged", "Hello!", "Hello!"},
		{"trims surrounding whitespace", "  Hello!  \n", "Hello!"},
		{"crlf normalized", "line one\r\nline two\r", "line one\nline two"},
		{"control characters removed", "abc\x00\x01def", "abc def"},
		{"collapses line whitespace", "a   b\t\tc", "a b c"},
		{"excess blank lines collapsed", "one\n\n\n\n\ntwo", "one\n\ntwo"},
		{"invisible unicode stripped", "a\u200Eb\uFEFFc", "abc"},
		{"unicode spaces converted", "a\u00A0b\u3000c", "a b c"},
		{"line separator converted", "a\u2028b", "a\nb"},
		{"only junk becomes empty", " \x00\u200E\r\n ", ""},
		{"empty stays empty", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := text.Sanitize(tc.input); got != tc.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}
