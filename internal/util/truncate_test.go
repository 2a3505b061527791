package util

import (
	"strings"
	"testing"
)

func TestTruncate(t *testing.T) {
	cases := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short", "short log", 20, "short log"},
		{"exact", "12345678901234567890", 20, "12345678901234567890"},
		{"long", "1234567890abcdefghij", 10, "1234567890... [truncated, 20 bytes total]"},
		{"empty", "", 10, ""},
		{"rune boundary", "héllo", 2, "h... [truncated, 6 bytes total]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Truncate(tc.in, tc.max); got != tc.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
			}
		})
	}
}

func TestTruncateBytes(t *testing.T) {
	body := []byte(strings.Repeat("x", DefaultLogMaxLen+1))
	got := TruncateBytes(body)
	if !strings.HasPrefix(got, strings.Repeat("x", DefaultLogMaxLen)+"...") {
		t.Errorf("unexpected truncation %q", got[DefaultLogMaxLen-5:])
	}
}
