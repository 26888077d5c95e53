package rss

import (
	"strings"
	"time"
)

// Date formats observed across feeds in the wild. RFC 822 with a
// four-digit year dominates, but publishers also emit named zones,
// missing seconds, ISO 8601 with and without fractions, and bare dates.
var dateFormats = []string{
	time.RFC1123Z,                    // Mon, 02 Jan 2006 15:04:05 -0700
	time.RFC1123,                     // Mon, 02 Jan 2006 15:04:05 MST
	"Mon, 2 Jan 2006 15:04:05 -0700", // single-digit day
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 02 Jan 2006 15:04 -0700", // no seconds
	"02 Jan 2006 15:04:05 -0700",   // no weekday
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// zoneNames maps named zones Go's parser either rejects or parses with a
// zero offset onto numeric offsets.
var zoneNames = strings.NewReplacer(
	" GMT", " +0000",
	" UTC", " +0000",
	" UT", " +0000",
	" EST", " -0500",
	" EDT", " -0400",
	" CST", " -0600",
	" CDT", " -0500",
	" PST", " -0800",
	" PDT", " -0700",
)

// parseDate tries every known format against the raw string and its
// zone-rewritten variant. A nil return means the date is unusable.
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, in := range []string{s, zoneNames.Replace(s)} {
		for _, f := range dateFormats {
			if t, err := time.Parse(f, in); err == nil {
				t = t.UTC()
				return &t
			}
		}
	}
	return nil
}
