package rss

import (
	"time"

	"github.com/threatdex/threatdex"
)

// DefaultSources is the seed set of news feeds. The store installs these
// on first migration; operators add or disable sources afterwards.
var DefaultSources = []threatdex.NewsSource{
	{Name: "Heise Security", FeedURL: "https://www.heise.de/security/rss/news.rdf", Active: true, FetchInterval: 30 * time.Minute},
	{Name: "NCSC UK", FeedURL: "https://www.ncsc.gov.uk/api/1/services/v1/all-rss-feed.xml", Active: true, FetchInterval: time.Hour},
	{Name: "The Hacker News", FeedURL: "https://feeds.feedburner.com/TheHackersNews", Active: true, FetchInterval: 30 * time.Minute},
	{Name: "Krebs on Security", FeedURL: "https://krebsonsecurity.com/feed/", Active: true, FetchInterval: time.Hour},
	{Name: "Bleeping Computer", FeedURL: "https://www.bleepingcomputer.com/feed/", Active: true, FetchInterval: 30 * time.Minute},
}
