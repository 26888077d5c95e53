package rss

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"
	"time"

	"github.com/threatdex/threatdex"
)

const maxSummary = 2000

// parseFeed decodes an RSS 2.0 or Atom document and projects its items
// into articles. Format detection is by root element, decided by the
// decoder itself via XMLName matching.
func parseFeed(doc []byte, now time.Time) ([]*threatdex.Article, error) {
	dec := func(v any) error {
		d := xml.NewDecoder(bytes.NewReader(doc))
		// Feeds routinely declare charsets the XML decoder refuses by
		// default. The bytes have already been read as-is.
		d.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }
		return d.Decode(v)
	}

	// The XMLName fields pin the root element, so a successful decode
	// identifies the format even for an empty feed.
	var r rssDoc
	if err := dec(&r); err == nil {
		out := make([]*threatdex.Article, 0, len(r.Channel.Items))
		for i := range r.Channel.Items {
			if a := fromRSS(&r.Channel.Items[i], now); a != nil {
				out = append(out, a)
			}
		}
		return out, nil
	}

	var a atomDoc
	if err := dec(&a); err != nil {
		return nil, &threatdex.Error{
			Op:      "feed/rss.parseFeed",
			Kind:    threatdex.ErrPermanent,
			Message: "document is neither RSS nor Atom",
			Inner:   err,
		}
	}
	out := make([]*threatdex.Article, 0, len(a.Entries))
	for i := range a.Entries {
		if art := fromAtom(&a.Entries[i], now); art != nil {
			out = append(out, art)
		}
	}
	return out, nil
}

func fromRSS(it *rssItem, now time.Time) *threatdex.Article {
	link := strings.TrimSpace(it.Link)
	if link == "" && strings.HasPrefix(it.GUID, "http") {
		link = strings.TrimSpace(it.GUID)
	}
	title := cleanHTML(it.Title)
	if link == "" || title == "" {
		return nil
	}
	author := it.Creator
	if author == "" {
		author = it.Author
	}
	date := it.PubDate
	if date == "" {
		date = it.Date
	}
	a := &threatdex.Article{
		Title:       title,
		URL:         link,
		Author:      strings.TrimSpace(author),
		Summary:     clip(cleanHTML(it.Description), maxSummary),
		PublishedAt: parseDate(date),
		FetchedAt:   now,
	}
	for _, c := range it.Categories {
		if c = strings.TrimSpace(c); c != "" {
			a.Categories = append(a.Categories, c)
		}
	}
	a.RelatedCVEs = threatdex.FindCVEs(a.Title + " " + a.Summary)
	return a
}

func fromAtom(e *atomEntry, now time.Time) *threatdex.Article {
	link := e.href()
	title := cleanHTML(e.Title)
	if link == "" || title == "" {
		return nil
	}
	summary := e.Summary
	if summary == "" {
		summary = e.Content
	}
	date := e.Pub
	if date == "" {
		date = e.Updated
	}
	a := &threatdex.Article{
		Title:       title,
		URL:         link,
		Author:      strings.TrimSpace(e.Author.Name),
		Summary:     clip(cleanHTML(summary), maxSummary),
		PublishedAt: parseDate(date),
		FetchedAt:   now,
	}
	for _, c := range e.Cats {
		if t := strings.TrimSpace(c.Term); t != "" {
			a.Categories = append(a.Categories, t)
		}
	}
	a.RelatedCVEs = threatdex.FindCVEs(a.Title + " " + a.Summary)
	return a
}
