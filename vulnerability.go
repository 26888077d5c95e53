package threatdex

import (
	"time"
)

// Source tags recorded in Vulnerability.Sources.
const (
	SourceNVD      = "nvd"
	SourceCISAKEV  = "cisa_kev"
	SourceBSICert  = "bsi_cert"
	SourceEUCVE    = "eu_cve_search"
	SourceRSS      = "rss"
	SourceManual   = "manual"
)

// Vulnerability is the canonical record for a single CVE identifier.
//
// A row is created on first merge from any source and afterwards mutated
// only by the merge and enrichment paths. Set-valued fields never contain
// duplicates; References are unique by URL.
type Vulnerability struct {
	ID          int64  `json:"-"`
	CVE         string `json:"cve_id"`
	Title       string `json:"title"`
	Description string `json:"description"`

	CVSSScore  *float64 `json:"cvss_score"`
	CVSSVector string   `json:"cvss_vector,omitempty"`
	Severity   Severity `json:"severity"`

	PublishedAt *time.Time `json:"published_at"`
	ModifiedAt  *time.Time `json:"modified_at"`

	// ExploitedInTheWild is monotonic: once set by any source it is never
	// cleared by a merge.
	ExploitedInTheWild bool       `json:"exploited_in_the_wild"`
	CISADueDate        *time.Time `json:"cisa_due_date"`

	CWEIDs           []string    `json:"cwe_ids"`
	Vendors          []string    `json:"vendors"`
	Products         []string    `json:"products"`
	AffectedProducts []string    `json:"affected_products"`
	References       []Reference `json:"references"`
	Sources          []string    `json:"sources"`
	SourceTags       []SourceTag `json:"source_tags,omitempty"`

	PriorityScore float64 `json:"priority_score"`

	SimpleTitle       string     `json:"simple_title,omitempty"`
	SimpleDescription string     `json:"simple_description,omitempty"`
	LLMProcessed      bool       `json:"llm_processed"`
	LLMProcessedAt    *time.Time `json:"llm_processed_at,omitempty"`
	// LLMProvenance records how the simple fields were produced:
	// "llm" or "fallback".
	LLMProvenance string `json:"llm_provenance,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MaxDescription caps stored description length.
const MaxDescription = 20 << 10

// Reference types.
const (
	RefAdvisory = "advisory"
	RefPatch    = "patch"
	RefVendor   = "vendor"
	RefExploit  = "exploit"
	RefBlog     = "blog"
	RefNVD      = "nvd"
	RefOther    = "other"
)

// Reference is a single external link attached to a vulnerability.
type Reference struct {
	URL  string   `json:"url"`
	Type string   `json:"type"`
	Tags []string `json:"tags,omitempty"`
}

// SourceTag is side-band, per-source payload that should not participate in
// the scalar merge, e.g. a localized description or the source's own title.
type SourceTag struct {
	Source      string `json:"source"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// HasSource reports whether tag is already recorded in Sources.
func (v *Vulnerability) HasSource(tag string) bool {
	for _, s := range v.Sources {
		if s == tag {
			return true
		}
	}
	return false
}
