package validators

import (
	"testing"
	"unicode/utf8"
)

func TestSanitizeStringTruncatesOnRuneBoundaries(t *testing.T) {
	cases := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"  Acme Supply  ", 100, "Acme Supply"},
		{"Acme Supply", 4, "Acme"},
		{"Café Olé", 4, "Café"},
		{"東京サプライ", 2, "東京"},
		{"🚚🚚🚚", 1, "🚚"},
		{"ab", 0, "ab"},
	}
	for _, tc := range cases {
		got := SanitizeString(tc.input, tc.maxLen)
		if got != tc.want {
			t.Fatalf("SanitizeString(%q, %d) = %q, want %q", tc.input, tc.maxLen, got, tc.want)
		}
		if !utf8.ValidString(got) {
			t.Fatalf("SanitizeString(%q, %d) produced invalid UTF-8", tc.input, tc.maxLen)
		}
	}
}
