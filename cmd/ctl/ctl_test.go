package ctl

import (
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short stays", "notes.txt", 20, "notes.txt"},
		{"exact stays", "abcde", 5, "abcde"},
		{"long ascii", "a-very-long-filename", 8, "a-very-…"},
		{"multibyte stays", "日本語.txt", 7, "日本語.txt"},
		{"multibyte cut on runes", "日本語のファイル名.pdf", 6, "日本語のフ…"},
		{"mixed cut", "résumé-final-version", 7, "résumé…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.max)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate(%q, %d) produced invalid UTF-8: %q", tt.in, tt.max, got)
			}
			if n := len([]rune(got)); n > tt.max {
				t.Errorf("truncate(%q, %d): %d runes, want at most %d", tt.in, tt.max, n, tt.max)
			}
		})
	}
}
