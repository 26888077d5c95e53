package threatdex

import (
	"regexp"
	"strings"
)

var (
	cveRE = regexp.MustCompile(`^CVE-\d{4}-\d{4,}$`)
	// cveScanRE matches CVE ids embedded in free text.
	cveScanRE = regexp.MustCompile(`(?i)\bCVE-\d{4}-\d{4,}\b`)
	cweRE     = regexp.MustCompile(`CWE-\d+`)
)

// ParseCVE validates and normalizes a CVE identifier.
//
// Lookups are case-insensitive; the stored and reported form is upper case.
func ParseCVE(id string) (string, bool) {
	id = strings.ToUpper(strings.TrimSpace(id))
	if !cveRE.MatchString(id) {
		return "", false
	}
	return id, true
}

// FindCVEs scans free text for CVE identifiers and returns them
// upper-cased and deduplicated, in order of first appearance.
func FindCVEs(text string) []string {
	matches := cveScanRE.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.ToUpper(m)
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// FindCWEs scans text for CWE identifiers, deduplicated in order of first
// appearance.
func FindCWEs(text string) []string {
	matches := cweRE.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
