// Package merge combines canonical vulnerability records that share a CVE
// identifier.
//
// The merge is field-wise: set-valued fields are unioned, scalars follow a
// fill-if-absent rule with a fixed source ranking, and the exploitation flag
// is monotonic. Merging is idempotent, and commutative for set-valued fields
// and for scalars under the source ranking. Callers are expected to hold the
// row lock for the CVE while applying a merge; the functions here are pure.
package merge

import (
	"time"
	"unicode/utf8"

	"github.com/threatdex/threatdex"
)

// scalarRank orders sources by their authority over the free-text scalar
// fields. CISA KEV's shortDescription fills in only when nothing better has
// contributed one.
func scalarRank(source string) int {
	switch source {
	case threatdex.SourceNVD:
		return 3
	case threatdex.SourceEUCVE:
		return 2
	case threatdex.SourceBSICert:
		return 1
	case threatdex.SourceCISAKEV:
		return 0
	default:
		return 1
	}
}

func maxRank(sources []string) int {
	r := -1
	for _, s := range sources {
		if v := scalarRank(s); v > r {
			r = v
		}
	}
	return r
}

// Init prepares a freshly normalized record for insertion under source.
func Init(v *threatdex.Vulnerability, source string, now time.Time) {
	if !v.HasSource(source) {
		v.Sources = append(v.Sources, source)
	}
	if v.Severity == threatdex.Unknown && v.CVSSScore != nil {
		v.Severity = threatdex.SeverityFromScore(*v.CVSSScore)
	}
	v.Description = truncate(v.Description, threatdex.MaxDescription)
	v.CreatedAt = now
	v.UpdatedAt = now
}

// Vulnerabilities merges src, contributed by source, into dst.
//
// It reports whether dst changed. It does not touch PriorityScore,
// CreatedAt, or UpdatedAt; the caller recomputes the score and advances the
// update timestamp on every merge.
func Vulnerabilities(dst, src *threatdex.Vulnerability, source string) (changed bool) {
	incomingRank := scalarRank(source)
	existingRank := maxRank(dst.Sources)

	// Free-text scalars: fill when absent; a strictly higher-ranked source
	// displaces text a lower-ranked one left behind.
	if src.Title != "" && (dst.Title == "" || incomingRank > existingRank) && dst.Title != src.Title {
		dst.Title = src.Title
		changed = true
	}
	if d := src.Description; d != "" {
		d = truncate(d, threatdex.MaxDescription)
		if (dst.Description == "" || incomingRank > existingRank) && dst.Description != d {
			dst.Description = d
			changed = true
		}
	}

	if dst.CVSSScore == nil && src.CVSSScore != nil {
		v := *src.CVSSScore
		dst.CVSSScore = &v
		changed = true
	}
	if dst.CVSSVector == "" && src.CVSSVector != "" {
		dst.CVSSVector = src.CVSSVector
		changed = true
	}
	if dst.Severity == threatdex.Unknown {
		sev := src.Severity
		if sev == threatdex.Unknown && dst.CVSSScore != nil {
			sev = threatdex.SeverityFromScore(*dst.CVSSScore)
		}
		if sev != threatdex.Unknown {
			dst.Severity = sev
			changed = true
		}
	}

	if dst.PublishedAt == nil && src.PublishedAt != nil {
		t := *src.PublishedAt
		dst.PublishedAt = &t
		changed = true
	}
	// ModifiedAt takes the later of the two.
	if src.ModifiedAt != nil && (dst.ModifiedAt == nil || src.ModifiedAt.After(*dst.ModifiedAt)) {
		t := *src.ModifiedAt
		dst.ModifiedAt = &t
		changed = true
	}

	// Monotonic: never true -> false.
	if src.ExploitedInTheWild && !dst.ExploitedInTheWild {
		dst.ExploitedInTheWild = true
		changed = true
	}
	if dst.CISADueDate == nil && src.CISADueDate != nil {
		t := *src.CISADueDate
		dst.CISADueDate = &t
		changed = true
	}

	if unionStrings(&dst.CWEIDs, src.CWEIDs) {
		changed = true
	}
	if unionStrings(&dst.Vendors, src.Vendors) {
		changed = true
	}
	if unionStrings(&dst.Products, src.Products) {
		changed = true
	}
	if unionStrings(&dst.AffectedProducts, src.AffectedProducts) {
		changed = true
	}
	if unionReferences(&dst.References, src.References) {
		changed = true
	}
	if !dst.HasSource(source) {
		dst.Sources = append(dst.Sources, source)
		changed = true
	}
	if unionSourceTags(&dst.SourceTags, src.SourceTags) {
		changed = true
	}
	return changed
}

// truncate bounds s to max bytes without splitting a rune; the column
// must hold valid UTF-8.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func unionStrings(dst *[]string, src []string) (changed bool) {
	if len(src) == 0 {
		return false
	}
	seen := make(map[string]struct{}, len(*dst))
	for _, s := range *dst {
		seen[s] = struct{}{}
	}
	for _, s := range src {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		*dst = append(*dst, s)
		changed = true
	}
	return changed
}

// unionReferences unions by URL. When the same URL collides, the entry with
// richer metadata wins: a classified type beats "other", and more tags beat
// fewer.
func unionReferences(dst *[]threatdex.Reference, src []threatdex.Reference) (changed bool) {
	if len(src) == 0 {
		return false
	}
	idx := make(map[string]int, len(*dst))
	for i, r := range *dst {
		idx[r.URL] = i
	}
	for _, r := range src {
		if r.URL == "" {
			continue
		}
		i, ok := idx[r.URL]
		if !ok {
			idx[r.URL] = len(*dst)
			*dst = append(*dst, r)
			changed = true
			continue
		}
		have := &(*dst)[i]
		if have.Type == threatdex.RefOther && r.Type != threatdex.RefOther && r.Type != "" {
			have.Type = r.Type
			changed = true
		}
		if len(r.Tags) > len(have.Tags) {
			have.Tags = r.Tags
			changed = true
		}
	}
	return changed
}

func unionSourceTags(dst *[]threatdex.SourceTag, src []threatdex.SourceTag) (changed bool) {
	for _, t := range src {
		dup := false
		for _, have := range *dst {
			if have == t {
				dup = true
				break
			}
		}
		if !dup {
			*dst = append(*dst, t)
			changed = true
		}
	}
	return changed
}
