package enrich

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestClip(t *testing.T) {
	t.Parallel()

	tt := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"Short", "stays as is", 100, "stays as is"},
		{"WordBreak", strings.Repeat("x", 60) + " " + strings.Repeat("y", 60), 100,
			strings.Repeat("x", 60) + "..."},
		{"NoBreak", strings.Repeat("x", 120), 100, strings.Repeat("x", 97) + "..."},
		{"Multibyte", strings.Repeat("€", 90) + " " + strings.Repeat("€", 29), 100,
			strings.Repeat("€", 90) + "..."},
		{"MultibyteNoBreak", strings.Repeat("€", 120), 100, strings.Repeat("€", 97) + "..."},
		{"MixedWidth", strings.Repeat("a€", 45) + " tail" + strings.Repeat("é", 20), 100,
			strings.Repeat("a€", 45) + "..."},
	}
	for _, tc := range tt {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := clip(tc.in, tc.max)
			if got != tc.want {
				t.Errorf("clip(%q, %d):\ngot  %q\nwant %q", tc.in, tc.max, got, tc.want)
			}
			if n := utf8.RuneCountInString(got); n > tc.max {
				t.Errorf("clipped to %d runes, budget %d", n, tc.max)
			}
			if !utf8.ValidString(got) {
				t.Errorf("invalid UTF-8: %q", got)
			}
		})
	}
}
