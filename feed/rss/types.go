package rss

import "encoding/xml"

// Wire types for RSS 2.0 and Atom. Publishers are sloppy about both
// formats, so the types here are permissive: missing elements decode to
// zero values and get cleaned up during projection.

type rssDoc struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Title string    `xml:"title"`
		Link  string    `xml:"link"`
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	GUID        string   `xml:"guid"`
	Description string   `xml:"description"`
	PubDate     string   `xml:"pubDate"`
	Date        string   `xml:"date"`    // dc:date, seen on RDF-flavored feeds
	Creator     string   `xml:"creator"` // dc:creator
	Author      string   `xml:"author"`
	Categories  []string `xml:"category"`
}

type atomDoc struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title   string `xml:"title"`
	ID      string `xml:"id"`
	Updated string `xml:"updated"`
	Pub     string `xml:"published"`
	Summary string `xml:"summary"`
	Content string `xml:"content"`
	Author  struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Links []atomLink `xml:"link"`
	Cats  []struct {
		Term string `xml:"term,attr"`
	} `xml:"category"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

// href picks the entry's canonical link: an explicit rel="alternate" wins,
// then a link with no rel at all, then anything.
func (e *atomEntry) href() string {
	var bare string
	for _, l := range e.Links {
		switch l.Rel {
		case "alternate":
			return l.Href
		case "":
			if bare == "" {
				bare = l.Href
			}
		}
	}
	if bare != "" {
		return bare
	}
	if len(e.Links) != 0 {
		return e.Links[0].Href
	}
	return ""
}
