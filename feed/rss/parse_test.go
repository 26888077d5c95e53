package rss

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/threatdex/threatdex"
)

const rssDocFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/">
  <channel>
    <title>Example Security News</title>
    <link>https://news.example</link>
    <item>
      <title>Exploit released for CVE-2024-0001 in Widget Server</title>
      <link>https://news.example/widget-exploit</link>
      <guid>https://news.example/widget-exploit</guid>
      <description>&lt;p&gt;A proof of concept for &lt;b&gt;CVE-2024-0001&lt;/b&gt; is circulating.&lt;/p&gt;</description>
      <pubDate>Mon, 05 Feb 2024 10:30:00 GMT</pubDate>
      <dc:creator>Jane Reporter</dc:creator>
      <category>exploits</category>
      <category>advisories</category>
    </item>
    <item>
      <title></title>
      <link>https://news.example/untitled</link>
    </item>
    <item>
      <title>Patch Tuesday roundup</title>
      <link>https://news.example/patch-tuesday</link>
      <pubDate>garbage date</pubDate>
    </item>
  </channel>
</rss>`

const atomDocFixture = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Example Advisories</title>
  <entry>
    <title>Advisory: critical flaw tracked as CVE-2023-4444</title>
    <id>urn:uuid:1225c695-cfb8-4ebb-aaaa-80da344efa6a</id>
    <link rel="self" href="https://adv.example/feed/1"/>
    <link rel="alternate" href="https://adv.example/2023-4444"/>
    <published>2023-11-01T08:00:00Z</published>
    <updated>2023-11-02T08:00:00Z</updated>
    <summary type="html">&lt;div&gt;Details on CVE-2023-4444 and mitigation.&lt;/div&gt;</summary>
    <author><name>Cert Team</name></author>
    <category term="advisory"/>
  </entry>
</feed>`

func TestParseRSS(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 2, 6, 0, 0, 0, 0, time.UTC)

	arts, err := parseFeed([]byte(rssDocFixture), now)
	if err != nil {
		t.Fatal(err)
	}
	if len(arts) != 2 {
		t.Fatalf("got %d articles, want 2 (untitled item dropped)", len(arts))
	}

	a := arts[0]
	if want := "Exploit released for CVE-2024-0001 in Widget Server"; a.Title != want {
		t.Errorf("title: %q", a.Title)
	}
	if a.URL != "https://news.example/widget-exploit" {
		t.Errorf("url: %q", a.URL)
	}
	if a.Author != "Jane Reporter" {
		t.Errorf("author: %q", a.Author)
	}
	if want := "A proof of concept for CVE-2024-0001 is circulating."; a.Summary != want {
		t.Errorf("summary: %q", a.Summary)
	}
	if a.PublishedAt == nil || !a.PublishedAt.Equal(time.Date(2024, 2, 5, 10, 30, 0, 0, time.UTC)) {
		t.Errorf("published: %v", a.PublishedAt)
	}
	if want := []string{"exploits", "advisories"}; !cmp.Equal(a.Categories, want) {
		t.Error(cmp.Diff(a.Categories, want))
	}
	if want := []string{"CVE-2024-0001"}; !cmp.Equal(a.RelatedCVEs, want) {
		t.Error(cmp.Diff(a.RelatedCVEs, want))
	}
	if !a.FetchedAt.Equal(now) {
		t.Errorf("fetched: %v", a.FetchedAt)
	}

	// Unparseable date degrades to nil, not a dropped item.
	if arts[1].PublishedAt != nil {
		t.Errorf("published: %v", arts[1].PublishedAt)
	}
}

func TestParseAtom(t *testing.T) {
	t.Parallel()
	now := time.Date(2023, 11, 3, 0, 0, 0, 0, time.UTC)

	arts, err := parseFeed([]byte(atomDocFixture), now)
	if err != nil {
		t.Fatal(err)
	}
	if len(arts) != 1 {
		t.Fatalf("got %d articles", len(arts))
	}
	a := arts[0]
	if a.URL != "https://adv.example/2023-4444" {
		t.Errorf("alternate link not preferred: %q", a.URL)
	}
	if a.Author != "Cert Team" {
		t.Errorf("author: %q", a.Author)
	}
	if want := "Details on CVE-2023-4444 and mitigation."; a.Summary != want {
		t.Errorf("summary: %q", a.Summary)
	}
	if a.PublishedAt == nil || !a.PublishedAt.Equal(time.Date(2023, 11, 1, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("published: %v", a.PublishedAt)
	}
	if want := []string{"CVE-2023-4444"}; !cmp.Equal(a.RelatedCVEs, want) {
		t.Error(cmp.Diff(a.RelatedCVEs, want))
	}
}

func TestParseGarbage(t *testing.T) {
	t.Parallel()
	if _, err := parseFeed([]byte(`{"not": "xml"}`), time.Now()); err == nil {
		t.Fatal("expected error")
	}
}

func TestFetch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(rssDocFixture))
	}))
	defer srv.Close()

	src := threatdex.NewsSource{ID: 7, Name: "example", FeedURL: srv.URL}
	c, err := New(srv.Client(), src)
	if err != nil {
		t.Fatal(err)
	}
	page, err := c.Fetch(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if page.Next != "" {
		t.Errorf("feeds are single-page, got cursor %q", page.Next)
	}
	if len(page.Articles) != 2 {
		t.Fatalf("got %d articles", len(page.Articles))
	}
	for _, a := range page.Articles {
		if a.SourceID != 7 {
			t.Errorf("source id not stamped: %+v", a)
		}
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	t.Parallel()
	_, err := New(nil, threatdex.NewsSource{Name: "bad", FeedURL: "http://%zz"})
	if err == nil {
		t.Fatal("expected error")
	}
}
