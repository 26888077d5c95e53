package score

import (
	"testing"
	"time"

	"github.com/threatdex/threatdex"
)

func f(v float64) *float64 { return &v }

func TestScore(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	tt := []struct {
		Name string
		V    threatdex.Vulnerability
		Want float64
	}{
		{
			Name: "MediumBoundary",
			V: threatdex.Vulnerability{
				Severity:    threatdex.Medium,
				CVSSScore:   f(4.0),
				PublishedAt: ptime(now.AddDate(0, 0, -10)),
			},
			// 0.4*0.4 + 0.2*0.5 + 0
			Want: 0.26,
		},
		{
			Name: "ExploitedRecentCritical",
			V: threatdex.Vulnerability{
				Severity:           threatdex.Critical,
				CVSSScore:          f(10.0),
				PublishedAt:        ptime(now.AddDate(0, 0, -1)),
				ExploitedInTheWild: true,
			},
			Want: 1.0,
		},
		{
			Name: "SeverityFallbackHigh",
			V:    threatdex.Vulnerability{Severity: threatdex.High},
			// 0.4*0.7
			Want: 0.28,
		},
		{
			Name: "NoSignals",
			V:    threatdex.Vulnerability{},
			Want: 0.0,
		},
		{
			Name: "NoPublishedDateNoRecency",
			V: threatdex.Vulnerability{
				CVSSScore: f(7.5),
			},
			Want: 0.3,
		},
	}
	for _, tc := range tt {
		t.Run(tc.Name, func(t *testing.T) {
			if got := Score(&tc.V, now); got != tc.Want {
				t.Errorf("got %v, want %v", got, tc.Want)
			}
		})
	}
}

// Exploited records always score at least the exploitation weight, and every
// score stays in [0, 1].
func TestScoreBounds(t *testing.T) {
	t.Parallel()
	now := time.Now()

	for _, sev := range []threatdex.Severity{threatdex.Unknown, threatdex.Low, threatdex.Medium, threatdex.High, threatdex.Critical} {
		for _, cvss := range []*float64{nil, f(0), f(5.5), f(10)} {
			for _, exploited := range []bool{false, true} {
				v := threatdex.Vulnerability{
					Severity:           sev,
					CVSSScore:          cvss,
					ExploitedInTheWild: exploited,
					PublishedAt:        ptime(now),
				}
				got := Score(&v, now)
				if got < 0 || got > 1 {
					t.Fatalf("score out of range: %v for %+v", got, v)
				}
				if exploited && got < 0.4 {
					t.Fatalf("exploited record scored %v, want >= 0.4", got)
				}
			}
		}
	}
}

func ptime(t time.Time) *time.Time { return &t }
