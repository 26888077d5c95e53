package nvd

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/threatdex/threatdex"
	"github.com/threatdex/threatdex/internal/cpe"
)

// timeFormats covers the date renderings the 2.0 API has been observed to
// emit: ISO-8601 with or without fractional seconds, with or without a Z.
var timeFormats = []string{
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, f := range timeFormats {
		if t, err := time.Parse(f, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// parse projects one API record into the canonical shape.
//
// Records without a well-formed CVE id (e.g. GHSA entries mirrored by some
// deployments) are rejected with threatdex.ErrPermanent.
func parse(item *cveItem) (*threatdex.Vulnerability, error) {
	id, ok := threatdex.ParseCVE(item.ID)
	if !ok {
		return nil, &threatdex.Error{
			Kind:    threatdex.ErrPermanent,
			Op:      "feed/nvd.parse",
			Message: fmt.Sprintf("record without usable CVE id: %q", item.ID),
		}
	}

	v := &threatdex.Vulnerability{
		CVE:         id,
		Description: pickDescription(item.Descriptions),
		PublishedAt: parseTime(item.Published),
		ModifiedAt:  parseTime(item.LastModified),
		Sources:     []string{threatdex.SourceNVD},
	}
	if len(v.Description) > threatdex.MaxDescription {
		v.Description = v.Description[:threatdex.MaxDescription]
	}

	// Prefer CVSS v3.1 over v3.0 over v2.0; score, vector, and severity
	// travel together.
	switch {
	case len(item.Metrics.V31) > 0:
		d := item.Metrics.V31[0].CVSSData
		score := d.BaseScore
		v.CVSSScore = &score
		v.CVSSVector = d.VectorString
		v.Severity = threatdex.ParseSeverity(d.BaseSeverity)
	case len(item.Metrics.V30) > 0:
		d := item.Metrics.V30[0].CVSSData
		score := d.BaseScore
		v.CVSSScore = &score
		v.CVSSVector = d.VectorString
		v.Severity = threatdex.ParseSeverity(d.BaseSeverity)
	case len(item.Metrics.V2) > 0:
		m := item.Metrics.V2[0]
		score := m.CVSSData.BaseScore
		v.CVSSScore = &score
		v.CVSSVector = m.CVSSData.VectorString
		v.Severity = threatdex.ParseSeverity(m.BaseSeverity)
	}
	if v.Severity == threatdex.Unknown && v.CVSSScore != nil {
		v.Severity = threatdex.SeverityFromScore(*v.CVSSScore)
	}

	for _, w := range item.Weaknesses {
		for _, d := range w.Description {
			v.CWEIDs = appendUnique(v.CWEIDs, threatdex.FindCWEs(d.Value)...)
		}
	}

	for _, r := range item.References {
		ref, ok := classifyReference(r)
		if !ok {
			continue
		}
		v.References = append(v.References, ref)
	}

	for _, cfg := range item.Configurations {
		for _, n := range cfg.Nodes {
			for _, m := range n.CPEMatch {
				if !m.Vulnerable {
					continue
				}
				c, err := cpe.Parse(m.Criteria)
				if err != nil {
					continue
				}
				v.Vendors = appendUnique(v.Vendors, cpe.Display(c.Vendor))
				v.Products = appendUnique(v.Products, cpe.Display(c.Product))
				v.AffectedProducts = appendUnique(v.AffectedProducts, c.Tuple())
			}
		}
	}

	// KEV membership is carried inline by the 2.0 API.
	if item.CISAExploitAdd != "" {
		v.ExploitedInTheWild = true
		v.CISADueDate = parseTime(item.CISAActionDue)
		v.Sources = append(v.Sources, threatdex.SourceCISAKEV)
		if item.CISAVulnerabilityName != "" {
			v.SourceTags = append(v.SourceTags, threatdex.SourceTag{
				Source: threatdex.SourceCISAKEV,
				Title:  item.CISAVulnerabilityName,
			})
		}
	}

	return v, nil
}

// pickDescription prefers the English description and falls back to the
// first available.
func pickDescription(ds []langString) string {
	for _, d := range ds {
		if d.Lang == "en" {
			return d.Value
		}
	}
	if len(ds) > 0 {
		return ds[0].Value
	}
	return ""
}

// classifyReference maps the NVD tag vocabulary onto the reference type
// enumeration. Non-HTTP(S) references are discarded.
func classifyReference(r reference) (threatdex.Reference, bool) {
	u, err := url.Parse(r.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return threatdex.Reference{}, false
	}
	typ := threatdex.RefOther
	if strings.Contains(u.Host, "nvd.nist.gov") {
		typ = threatdex.RefNVD
	}
Tags:
	for _, tag := range r.Tags {
		switch tag {
		case "Patch":
			typ = threatdex.RefPatch
			break Tags
		case "Vendor Advisory", "Third Party Advisory":
			typ = threatdex.RefAdvisory
			break Tags
		case "Exploit":
			typ = threatdex.RefExploit
			break Tags
		case "Release Notes", "Product":
			typ = threatdex.RefVendor
			break Tags
		}
	}
	return threatdex.Reference{URL: r.URL, Type: typ, Tags: r.Tags}, true
}

func appendUnique(dst []string, vs ...string) []string {
Next:
	for _, v := range vs {
		if v == "" {
			continue
		}
		for _, have := range dst {
			if have == v {
				continue Next
			}
		}
		dst = append(dst, v)
	}
	return dst
}
