// Package rss is a feed client for security-news syndication feeds.
//
// It accepts both RSS 2.0 and Atom documents and is deliberately
// forgiving: real publisher feeds disagree on date formats, namespaces,
// and how much HTML they cram into summaries. Items that cannot be
// reduced to a title and link are dropped rather than failing the fetch.
package rss

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/quay/zlog"

	"github.com/threatdex/threatdex"
	"github.com/threatdex/threatdex/feed"
	"github.com/threatdex/threatdex/internal/httputil"
)

// maxFeedSize bounds how much of a feed document is read. Anything
// larger is not a news feed.
const maxFeedSize = 8 << 20

var _ feed.Feeder = (*Client)(nil)

// Client fetches one syndication feed and normalizes its items.
type Client struct {
	c   *http.Client
	src threatdex.NewsSource
	u   *url.URL

	now func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithClock overrides the fetch timestamp source. Tests use this.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New constructs a Client for the given source. A nil http.Client uses a
// default with the retrying transport installed.
func New(hc *http.Client, src threatdex.NewsSource, opts ...Option) (*Client, error) {
	u, err := url.Parse(src.FeedURL)
	if err != nil {
		return nil, &threatdex.Error{
			Op:      "feed/rss.New",
			Kind:    threatdex.ErrInvalid,
			Message: fmt.Sprintf("bad feed URL for source %q", src.Name),
			Inner:   err,
		}
	}
	c := &Client{c: hc, src: src, u: u, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	if c.c == nil {
		c.c = &http.Client{Transport: &httputil.RetryTransport{}, Timeout: 2 * time.Minute}
	}
	return c, nil
}

// Name implements feed.Feeder.
func (c *Client) Name() string { return threatdex.SourceRSS + ":" + c.src.Name }

// Fetch implements feed.Feeder. Syndication feeds are single-page; the
// cursor is ignored and Next is always empty.
func (c *Client) Fetch(ctx context.Context, _ feed.Cursor) (*feed.Page, error) {
	ctx = zlog.ContextWithValues(ctx,
		"component", "feed/rss/Client.Fetch",
		"source", c.src.Name)
	const op = `feed/rss.Fetch`

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", threatdex.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")

	resp, err := c.c.Do(req)
	if err != nil {
		return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Message: "request failed", Inner: err}
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		e := &threatdex.Error{Op: op, Kind: threatdex.ErrRateLimited, Message: "upstream rate limit"}
		if d, ok := httputil.ParseRetryAfter(resp.Header.Get("Retry-After"), c.now()); ok {
			e.RetryAfter = d
		}
		return nil, e
	case resp.StatusCode >= 500:
		return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Message: resp.Status}
	default:
		return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrPermanent, Message: resp.Status}
	}

	doc, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Message: "reading feed", Inner: err}
	}

	arts, err := parseFeed(doc, c.now().UTC())
	if err != nil {
		return nil, err
	}
	for _, a := range arts {
		a.SourceID = c.src.ID
	}
	zlog.Info(ctx).
		Int("count", len(arts)).
		Msg("fetched feed")
	return &feed.Page{Articles: arts, TotalEstimate: len(arts)}, nil
}
