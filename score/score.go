// Package score derives the priority score for a vulnerability.
//
// The score is a deterministic function of the record's other attributes and
// is recomputed on every write; nothing in the pipeline stores score inputs
// outside the record itself.
package score

import (
	"math"
	"time"

	"github.com/threatdex/threatdex"
)

// Weights of the three scoring factors.
const (
	cvssWeight    = 0.4
	recencyWeight = 0.2
	exploitWeight = 0.4
)

// Score computes the priority score for v at time now, in [0, 1] rounded to
// three decimal places.
//
// The CVSS factor is the base score normalized to [0,1], falling back to a
// fixed value per severity when no score is present. The recency factor is
// 1.0 within 7 days of publication, 0.5 within 30, else 0; a missing
// publication date scores 0. Exploitation contributes its full weight.
func Score(v *threatdex.Vulnerability, now time.Time) float64 {
	var base float64
	switch {
	case v.CVSSScore != nil:
		base = *v.CVSSScore / 10.0
	case v.Severity == threatdex.Critical:
		base = 1.0
	case v.Severity == threatdex.High:
		base = 0.7
	case v.Severity == threatdex.Medium:
		base = 0.4
	case v.Severity == threatdex.Low:
		base = 0.2
	}

	var recency float64
	if v.PublishedAt != nil {
		switch age := now.Sub(*v.PublishedAt); {
		case age <= 7*24*time.Hour:
			recency = 1.0
		case age <= 30*24*time.Hour:
			recency = 0.5
		}
	}

	var exploit float64
	if v.ExploitedInTheWild {
		exploit = 1.0
	}

	s := cvssWeight*base + recencyWeight*recency + exploitWeight*exploit
	s = math.Min(math.Max(s, 0), 1)
	return math.Round(s*1000) / 1000
}
