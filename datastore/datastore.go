// Package datastore defines the persistence interfaces the rest of the
// system programs against.
//
// The interfaces are split by concern so callers depend only on the
// slice they use; the postgres subpackage provides the single concrete
// implementation.
package datastore

import (
	"context"
	"time"

	"github.com/threatdex/threatdex"
)

// Outcome reports what an upsert did.
type Outcome string

const (
	Inserted  Outcome = "inserted"
	Updated   Outcome = "updated"
	Unchanged Outcome = "unchanged"
)

// SortField is a closed enumeration of vulnerability sort keys.
type SortField string

const (
	SortPriority  SortField = "priority_score"
	SortPublished SortField = "published_at"
	SortModified  SortField = "modified_at"
	SortUpdated   SortField = "updated_at"
	SortCVSS      SortField = "cvss_score"
	SortSeverity  SortField = "severity"
	SortCVE       SortField = "cve_id"
)

// SortOrder is asc or desc.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// VulnFilters narrows a vulnerability listing. Nil or zero fields are
// not applied.
type VulnFilters struct {
	Severity        *threatdex.Severity
	Exploited       *bool
	Vendor          string
	Product         string
	CWE             string
	MinCVSS         *float64
	MaxCVSS         *float64
	PublishedAfter  *time.Time
	PublishedBefore *time.Time
}

// Page is 1-based pagination.
type Page struct {
	Number int
	Size   int
}

// Offset is the row offset this page starts at.
func (p Page) Offset() int {
	n := p.Number
	if n < 1 {
		n = 1
	}
	return (n - 1) * p.Size
}

// Stats is the dashboard aggregate.
type Stats struct {
	Total      int64            `json:"total"`
	Exploited  int64            `json:"exploited"`
	BySeverity map[string]int64 `json:"by_severity"`
	Recent     int64            `json:"recent"`
	LastUpdate *time.Time       `json:"last_update"`
}

// TimelinePoint is one day's publication count.
type TimelinePoint struct {
	Date  time.Time `json:"date"`
	Count int64     `json:"count"`
}

// VendorCount is one vendor's vulnerability count.
type VendorCount struct {
	Vendor string `json:"vendor"`
	Count  int64  `json:"count"`
}

// Suggestion is one autocomplete candidate.
type Suggestion struct {
	CVE   string `json:"cve_id"`
	Title string `json:"title,omitempty"`
}

// TrendingType selects the trending ranking.
type TrendingType string

const (
	TrendingHot TrendingType = "hot"
	TrendingTop TrendingType = "top"
)

// TimeRange bounds a trending query.
type TimeRange string

const (
	RangeToday     TimeRange = "today"
	RangeThisWeek  TimeRange = "this_week"
	RangeThisMonth TimeRange = "this_month"
	RangeAllTime   TimeRange = "all_time"
)

// EnrichTier orders enrichment candidates by urgency.
type EnrichTier int

const (
	TierHigh EnrichTier = iota
	TierMedium
	TierLow
)

// Enrichment is the generated-summary payload written back after a
// summarizer pass.
type Enrichment struct {
	CVE         string
	Title       string
	Description string
	Provenance  string
	ProcessedAt time.Time
}

// Vulnerabilities is the vulnerability store.
type Vulnerabilities interface {
	// Upsert merges the normalized record into the row for its CVE id,
	// creating it if absent, and recomputes the priority score. The
	// merge is serialized per CVE by a row lock.
	Upsert(ctx context.Context, v *threatdex.Vulnerability, source string) (Outcome, error)
	// Get is a case-insensitive lookup; absent rows yield ErrNotFound.
	Get(ctx context.Context, cve string) (*threatdex.Vulnerability, error)
	List(ctx context.Context, f VulnFilters, sort SortField, order SortOrder, p Page) ([]*threatdex.Vulnerability, int64, error)
	Search(ctx context.Context, q string, f VulnFilters, sort SortField, order SortOrder, p Page) ([]*threatdex.Vulnerability, int64, error)
	Suggest(ctx context.Context, q string, limit int) ([]Suggestion, error)
	Stats(ctx context.Context) (*Stats, error)
	Timeline(ctx context.Context, days int) ([]TimelinePoint, error)
	TopVendors(ctx context.Context, limit int) ([]VendorCount, error)
	SeverityDistribution(ctx context.Context) (map[string]int64, error)
	Trending(ctx context.Context, t TrendingType, r TimeRange, p Page) ([]*threatdex.Vulnerability, int64, error)
}

// Enrichments selects and records summarizer work.
type Enrichments interface {
	// SelectForEnrichment returns unprocessed rows in the given tier,
	// most urgent first.
	SelectForEnrichment(ctx context.Context, tier EnrichTier, limit int) ([]*threatdex.Vulnerability, error)
	SetEnrichment(ctx context.Context, e *Enrichment) error
}

// Articles is the news-article store. Articles are keyed by URL;
// re-inserting an existing URL is a no-op.
type Articles interface {
	UpsertArticles(ctx context.Context, arts []*threatdex.Article) (inserted int, err error)
	ListArticles(ctx context.Context, sourceID int64, p Page) ([]*threatdex.Article, int64, error)
}

// Sources manages news-feed bookkeeping.
type Sources interface {
	ListSources(ctx context.Context, activeOnly bool) ([]threatdex.NewsSource, error)
	// SeedSources installs defaults for any feed URL not already present.
	SeedSources(ctx context.Context, defaults []threatdex.NewsSource) error
	// RecordFetch updates the per-source fetch bookkeeping after a poll.
	RecordFetch(ctx context.Context, sourceID int64, status, fetchErr string, added int) error
}

// Runs records ingestion-job executions.
type Runs interface {
	CreateRun(ctx context.Context, r *threatdex.IngestionRun) error
	FinalizeRun(ctx context.Context, r *threatdex.IngestionRun) error
	ListRuns(ctx context.Context, source string, limit int) ([]threatdex.IngestionRun, error)
}

// Checkpoints persists job resume cursors.
type Checkpoints interface {
	GetCheckpoint(ctx context.Context, job string) (string, error)
	SetCheckpoint(ctx context.Context, job, cursor string) error
}

// Store is the full persistence surface.
type Store interface {
	Vulnerabilities
	Enrichments
	Articles
	Sources
	Runs
	Checkpoints
}
