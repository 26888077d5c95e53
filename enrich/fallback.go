package enrich

import (
	"context"
	"strings"
)

// vulnKinds maps description keywords to a human-readable vulnerability
// class. Checked in order; first hit wins.
var vulnKinds = []struct {
	kind string
	keys []string
}{
	{"Remote Code Execution", []string{"remote code execution", "rce"}},
	{"SQL Injection", []string{"sql injection"}},
	{"Cross-Site Scripting", []string{"cross-site scripting", "xss"}},
	{"Buffer Overflow", []string{"buffer overflow"}},
	{"Denial of Service", []string{"denial of service", "dos"}},
	{"Authentication Bypass", []string{"authentication", "bypass"}},
	{"Privilege Escalation", []string{"privilege escalation"}},
	{"Information Disclosure", []string{"information disclosure"}},
	{"Path Traversal", []string{"path traversal", "directory traversal"}},
	{"Command Injection", []string{"command injection"}},
}

func vulnKind(desc string) string {
	desc = strings.ToLower(desc)
	for _, k := range vulnKinds {
		for _, key := range k.keys {
			if strings.Contains(desc, key) {
				return k.kind
			}
		}
	}
	return "Vulnerability"
}

// Fallback is the rule-based Summarizer used when no language model is
// configured or reachable. It synthesizes a title from the severity,
// inferred vulnerability class, and first affected vendor and product,
// and shortens the description to its leading sentences.
type Fallback struct{}

var _ Summarizer = Fallback{}

// Summarize implements Summarizer. It never fails.
func (Fallback) Summarize(_ context.Context, in *Input) (*Summary, error) {
	vendor, product := "Unknown", "Software"
	if len(in.Vendors) != 0 {
		vendor = in.Vendors[0]
	}
	if len(in.Products) != 0 {
		product = in.Products[0]
	}

	title := vulnKind(in.Description) + " in " + vendor + " " + product
	if s := in.Severity.String(); s != "UNKNOWN" {
		title = s[:1] + strings.ToLower(s[1:]) + " " + title
	}

	desc := in.Description
	switch {
	case desc == "":
		desc = "No description available."
	case len(desc) > MaxDescription:
		// Prefer a sentence boundary over a hard cut.
		head := desc[:MaxDescription]
		if i := strings.LastIndexByte(head, '.'); i > 100 {
			desc = head[:i+1]
		} else {
			desc = clip(desc, MaxDescription)
		}
	}

	return &Summary{
		Title:       clip(title, MaxTitle),
		Description: desc,
	}, nil
}
