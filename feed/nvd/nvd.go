// Package nvd is a feed client for the NVD JSON API 2.0.
//
// Pagination uses the API's startIndex/resultsPerPage scheme; the cursor is
// the next startIndex. The client enforces the per-process minimum
// inter-request delay derived from the documented ceilings (5 requests per
// 30s anonymous, 50 per 30s with an API key) and can additionally wait on a
// shared limiter when multiple workers hold the same key.
package nvd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/quay/zlog"
	"golang.org/x/time/rate"

	"github.com/threatdex/threatdex"
	"github.com/threatdex/threatdex/feed"
	"github.com/threatdex/threatdex/internal/httputil"
)

// DefaultRoot is the production API endpoint.
//
//doc:url feed
const DefaultRoot = `https://services.nvd.nist.gov/rest/json/cves/2.0`

// MaxPageSize is the largest resultsPerPage the API accepts.
const MaxPageSize = 2000

// Delays derived from the documented rate-limit ceilings, with headroom.
const (
	anonDelay  = 6 * time.Second
	keyedDelay = 600 * time.Millisecond
)

// Waiter blocks until the shared, cross-worker rate limit grants a request.
// The cache package provides one backed by fixed-window counters.
type Waiter interface {
	Wait(ctx context.Context) error
}

var _ feed.Feeder = (*Client)(nil)

// Client fetches and normalizes CVE records.
type Client struct {
	c      *http.Client
	root   *url.URL
	apiKey string
	local  *rate.Limiter
	shared Waiter

	pageSize int

	// Fetch filters; zero values mean unfiltered.
	modStart time.Time
	modEnd   time.Time
	pubStart time.Time
	pubEnd   time.Time
	cveID    string
	hasKEV   bool
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sends the key on every request and raises the local
// rate-limit ceiling accordingly.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithRoot points the client at a different API root, for tests and
// mirrors.
func WithRoot(root string) Option {
	return func(c *Client) {
		u, err := url.Parse(root)
		if err != nil {
			panic(fmt.Sprintf("programmer error: %v", err))
		}
		c.root = u
	}
}

// WithModifiedWindow restricts the fetch to records modified inside
// [start, end].
func WithModifiedWindow(start, end time.Time) Option {
	return func(c *Client) { c.modStart, c.modEnd = start, end }
}

// WithPublishedWindow restricts the fetch to records published inside
// [start, end]. The API rejects windows over 120 days; callers slice
// longer ranges.
func WithPublishedWindow(start, end time.Time) Option {
	return func(c *Client) { c.pubStart, c.pubEnd = start, end }
}

// WithCVE restricts the fetch to a single identifier.
func WithCVE(id string) Option {
	return func(c *Client) { c.cveID = id }
}

// WithKEVOnly restricts the fetch to records in the CISA KEV catalog.
func WithKEVOnly() Option {
	return func(c *Client) { c.hasKEV = true }
}

// WithPageSize overrides the page size; values above MaxPageSize are
// clamped.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > MaxPageSize {
			n = MaxPageSize
		}
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithSharedLimiter adds a distributed limiter consulted before every
// request, on top of the local minimum delay.
func WithSharedLimiter(w Waiter) Option {
	return func(c *Client) { c.shared = w }
}

// New constructs a Client. A nil http.Client uses a default with the
// retrying transport installed.
func New(hc *http.Client, opts ...Option) *Client {
	c := &Client{
		c:        hc,
		pageSize: MaxPageSize,
	}
	u, _ := url.Parse(DefaultRoot)
	c.root = u
	for _, o := range opts {
		o(c)
	}
	if c.c == nil {
		c.c = &http.Client{Transport: &httputil.RetryTransport{}, Timeout: 2 * time.Minute}
	}
	delay := anonDelay
	if c.apiKey != "" {
		delay = keyedDelay
	}
	c.local = rate.NewLimiter(rate.Every(delay), 1)
	return c
}

// SharedDelay is the spacing a shared limiter should enforce for the
// given credential: the published NVD ceiling is per API key, not per
// process.
func SharedDelay(apiKey string) time.Duration {
	if apiKey != "" {
		return keyedDelay
	}
	return anonDelay
}

// Name implements feed.Feeder.
func (c *Client) Name() string { return threatdex.SourceNVD }

// Fetch implements feed.Feeder.
func (c *Client) Fetch(ctx context.Context, cur feed.Cursor) (*feed.Page, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "feed/nvd/Client.Fetch")
	const op = `feed/nvd.Fetch`

	start := 0
	if cur != "" {
		n, err := strconv.Atoi(string(cur))
		if err != nil || n < 0 {
			return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrInvalid, Message: fmt.Sprintf("bad cursor %q", cur)}
		}
		start = n
	}

	if c.shared != nil {
		if err := c.shared.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if err := c.local.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pageURL(start), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", threatdex.UserAgent)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apiKey", c.apiKey)
	}

	resp, err := c.c.Do(req)
	if err != nil {
		return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Message: "request failed", Inner: err}
	}
	defer resp.Body.Close()
	if err := classifyStatus(op, resp); err != nil {
		return nil, err
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrPermanent, Message: "malformed payload", Inner: err}
	}

	page := &feed.Page{TotalEstimate: body.TotalResults}
	for i := range body.Vulnerabilities {
		v, err := parse(&body.Vulnerabilities[i].CVE)
		if err != nil {
			zlog.Debug(ctx).
				Str("id", body.Vulnerabilities[i].CVE.ID).
				Err(err).
				Msg("skipping record")
			continue
		}
		page.Vulnerabilities = append(page.Vulnerabilities, v)
	}
	if next := start + len(body.Vulnerabilities); len(body.Vulnerabilities) > 0 && next < body.TotalResults {
		page.Next = feed.Cursor(strconv.Itoa(next))
	}
	zlog.Debug(ctx).
		Int("start", start).
		Int("returned", len(body.Vulnerabilities)).
		Int("total", body.TotalResults).
		Msg("fetched page")
	return page, nil
}

func (c *Client) pageURL(start int) string {
	u := *c.root
	q := u.Query()
	q.Set("resultsPerPage", strconv.Itoa(c.pageSize))
	q.Set("startIndex", strconv.Itoa(start))
	if !c.modStart.IsZero() {
		q.Set("lastModStartDate", c.modStart.UTC().Format("2006-01-02T15:04:05Z"))
		q.Set("lastModEndDate", c.modEnd.UTC().Format("2006-01-02T15:04:05Z"))
	}
	if !c.pubStart.IsZero() {
		q.Set("pubStartDate", c.pubStart.UTC().Format("2006-01-02T15:04:05Z"))
		q.Set("pubEndDate", c.pubEnd.UTC().Format("2006-01-02T15:04:05Z"))
	}
	if c.cveID != "" {
		q.Set("cveId", c.cveID)
	}
	u.RawQuery = q.Encode()
	s := u.String()
	// hasKev is a bare flag; url.Values would render "hasKev=".
	if c.hasKEV {
		s += "&hasKev"
	}
	return s
}

func classifyStatus(op string, resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		// NVD asks for a 30s pause and often omits the header.
		e := &threatdex.Error{Op: op, Kind: threatdex.ErrRateLimited, Message: "upstream rate limit", RetryAfter: 30 * time.Second}
		if d, ok := httputil.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
			e.RetryAfter = d
		}
		return e
	case resp.StatusCode >= 500:
		return &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Message: resp.Status}
	default:
		return &threatdex.Error{Op: op, Kind: threatdex.ErrPermanent, Message: resp.Status,
			Inner: httputil.CheckResponse(resp, http.StatusOK)}
	}
}
