// Package enrich generates plain-language summaries for vulnerability
// records.
//
// A Worker drains the unprocessed queue by urgency tier, dispatches each
// record to a Summarizer, and writes the result back. When the summarizer
// is unavailable a rule-based shortener stands in, so a record is never
// left for endless reprocessing.
package enrich

import (
	"context"
	"strings"
	"time"

	"github.com/threatdex/threatdex"
)

// Output budgets for the generated fields.
const (
	MaxTitle       = 100
	MaxDescription = 300
)

// Input is the slice of a record a Summarizer sees.
type Input struct {
	CVE         string
	Title       string
	Description string
	CVSSScore   *float64
	Severity    threatdex.Severity
	Vendors     []string
	Products    []string
	PublishedAt *time.Time
}

// Summary is a generated title and description, within the package
// budgets.
type Summary struct {
	Title       string
	Description string
}

// Summarizer turns a technical record into a plain-language summary.
//
// Implementations are expected to be slow and fallible; the Worker
// handles both.
type Summarizer interface {
	Summarize(ctx context.Context, in *Input) (*Summary, error)
}

// inputFor projects the summarizer's view out of a full record.
func inputFor(v *threatdex.Vulnerability) *Input {
	return &Input{
		CVE:         v.CVE,
		Title:       v.Title,
		Description: v.Description,
		CVSSScore:   v.CVSSScore,
		Severity:    v.Severity,
		Vendors:     v.Vendors,
		Products:    v.Products,
		PublishedAt: v.PublishedAt,
	}
}

// clip bounds s to max runes, backing up to a word break when one exists
// past half the budget and marking the cut with an ellipsis.
func clip(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	cut := max - 3
	for i := cut - 1; i > max/2; i-- {
		if r[i] == ' ' {
			cut = i
			break
		}
	}
	return strings.TrimRight(string(r[:cut]), " ,;:") + "..."
}
