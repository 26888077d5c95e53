// Package kev is a feed client for the CISA Known Exploited
// Vulnerabilities catalog.
//
// The catalog is a single JSON document with full-refresh semantics: every
// fetch yields the complete current catalog in one page. Incremental state
// is unnecessary because merging is idempotent and the exploitation flag is
// monotonic.
package kev

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/quay/zlog"

	"github.com/threatdex/threatdex"
	"github.com/threatdex/threatdex/feed"
	"github.com/threatdex/threatdex/internal/httputil"
)

// DefaultFeed is the default place to look for the catalog.
//
//doc:url feed
const DefaultFeed = `https://www.cisa.gov/sites/default/files/feeds/known_exploited_vulnerabilities.json`

var _ feed.Feeder = (*Client)(nil)

// Client fetches and normalizes the KEV catalog.
type Client struct {
	c    *http.Client
	feed *url.URL
}

// Option configures a Client.
type Option func(*Client)

// WithFeed overrides the catalog URL.
func WithFeed(feedURL string) Option {
	return func(c *Client) {
		u, err := url.Parse(feedURL)
		if err != nil {
			panic(fmt.Sprintf("programmer error: %v", err))
		}
		c.feed = u
	}
}

// New constructs a Client. A nil http.Client uses a default with the
// retrying transport installed.
func New(hc *http.Client, opts ...Option) *Client {
	c := &Client{c: hc}
	u, _ := url.Parse(DefaultFeed)
	c.feed = u
	for _, o := range opts {
		o(c)
	}
	if c.c == nil {
		c.c = &http.Client{Transport: &httputil.RetryTransport{}, Timeout: 2 * time.Minute}
	}
	return c
}

// Name implements feed.Feeder.
func (c *Client) Name() string { return threatdex.SourceCISAKEV }

// Fetch implements feed.Feeder. The cursor is ignored; the catalog is one
// page.
func (c *Client) Fetch(ctx context.Context, _ feed.Cursor) (*feed.Page, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "feed/kev/Client.Fetch")
	const op = `feed/kev.Fetch`

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feed.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", threatdex.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.c.Do(req)
	if err != nil {
		return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Message: "request failed", Inner: err}
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		e := &threatdex.Error{Op: op, Kind: threatdex.ErrRateLimited, Message: "upstream rate limit"}
		if d, ok := httputil.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
			e.RetryAfter = d
		}
		return nil, e
	case resp.StatusCode >= 500:
		return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Message: resp.Status}
	default:
		return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrPermanent, Message: resp.Status}
	}

	var cat catalog
	if err := json.NewDecoder(resp.Body).Decode(&cat); err != nil {
		return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrPermanent, Message: "malformed catalog", Inner: err}
	}

	page := &feed.Page{TotalEstimate: cat.Count}
	for i := range cat.Vulnerabilities {
		v, err := parse(&cat.Vulnerabilities[i])
		if err != nil {
			zlog.Debug(ctx).
				Str("id", cat.Vulnerabilities[i].CVEID).
				Err(err).
				Msg("skipping record")
			continue
		}
		page.Vulnerabilities = append(page.Vulnerabilities, v)
	}
	zlog.Info(ctx).
		Str("catalog_version", cat.CatalogVersion).
		Int("count", len(page.Vulnerabilities)).
		Msg("fetched KEV catalog")
	return page, nil
}

var dateFormats = []string{"2006-01-02", "2006-01-02T15:04:05Z", "2006-01-02T15:04:05.000Z"}

func parseDate(s string) *time.Time {
	for _, f := range dateFormats {
		if t, err := time.Parse(f, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// parse projects one catalog entry into the canonical shape.
func parse(rec *vulnerability) (*threatdex.Vulnerability, error) {
	id, ok := threatdex.ParseCVE(rec.CVEID)
	if !ok {
		return nil, &threatdex.Error{
			Kind:    threatdex.ErrPermanent,
			Op:      "feed/kev.parse",
			Message: fmt.Sprintf("record without usable CVE id: %q", rec.CVEID),
		}
	}
	v := &threatdex.Vulnerability{
		CVE:                id,
		Title:              rec.VulnerabilityName,
		Description:        rec.ShortDescription,
		ExploitedInTheWild: true,
		CISADueDate:        parseDate(rec.DueDate),
		Sources:            []string{threatdex.SourceCISAKEV},
		SourceTags: []threatdex.SourceTag{{
			Source:      threatdex.SourceCISAKEV,
			Title:       rec.VulnerabilityName,
			Description: rec.ShortDescription,
		}},
	}
	if rec.VendorProject != "" {
		v.Vendors = []string{rec.VendorProject}
	}
	if rec.Product != "" {
		v.Products = []string{rec.Product}
	}
	for _, cwe := range rec.CWEs {
		v.CWEIDs = append(v.CWEIDs, threatdex.FindCWEs(cwe)...)
	}
	// Notes is a free-text field that often carries semicolon-separated
	// URLs.
	for _, part := range strings.Split(rec.Notes, ";") {
		part = strings.TrimSpace(part)
		if !strings.HasPrefix(part, "http://") && !strings.HasPrefix(part, "https://") {
			continue
		}
		v.References = append(v.References, threatdex.Reference{URL: part, Type: threatdex.RefAdvisory})
	}
	return v, nil
}
