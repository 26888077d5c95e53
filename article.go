package threatdex

import "time"

// Article is a security-news item fetched from a syndication feed.
//
// Articles are keyed by URL and follow the same idempotence discipline as
// vulnerabilities: fetching the same feed twice stores nothing new.
type Article struct {
	ID       int64  `json:"-"`
	SourceID int64  `json:"source_id"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Author   string `json:"author,omitempty"`
	Summary  string `json:"summary"`

	PublishedAt *time.Time `json:"published_at"`
	FetchedAt   time.Time  `json:"fetched_at"`

	Categories  []string `json:"categories,omitempty"`
	RelatedCVEs []string `json:"related_cves,omitempty"`

	LLMSummary   string   `json:"llm_summary,omitempty"`
	LLMKeyPoints []string `json:"llm_key_points,omitempty"`
	LLMRelevance *int     `json:"llm_relevance,omitempty"`
	LLMProcessed bool     `json:"llm_processed"`
}

// NewsSource is a configured syndication feed.
type NewsSource struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	FeedURL string `json:"feed_url"`
	Active  bool   `json:"active"`

	// FetchInterval is how often the scheduler polls this feed.
	FetchInterval time.Duration `json:"fetch_interval"`

	LastFetchedAt   *time.Time `json:"last_fetched_at"`
	LastFetchStatus string     `json:"last_fetch_status,omitempty"`
	LastFetchError  string     `json:"last_fetch_error,omitempty"`
	TotalArticles   int64      `json:"total_articles"`
}
