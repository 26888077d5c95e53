package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/quay/zlog"

	"github.com/threatdex/threatdex"
)

var (
	sourcesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "threatdex",
			Subsystem: "store",
			Name:      "sources_total",
			Help:      "Total number of database queries issued in the news-source methods.",
		},
		[]string{"query"},
	)
	sourcesDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "threatdex",
			Subsystem: "store",
			Name:      "sources_duration_seconds",
			Help:      "Duration of all queries issued in the news-source methods.",
		},
		[]string{"query"},
	)
)

// ListSources implements datastore.Sources.
func (s *Store) ListSources(ctx context.Context, activeOnly bool) ([]threatdex.NewsSource, error) {
	const query = `
	SELECT id, name, feed_url, active, fetch_interval_seconds, last_fetched_at, last_fetch_status, last_fetch_error, total_articles
	FROM news_sources`
	const op = `datastore/postgres/ListSources`
	timer := prometheus.NewTimer(sourcesDuration.WithLabelValues("list"))
	defer timer.ObserveDuration()
	sourcesCounter.WithLabelValues("list").Inc()

	q := query
	if activeOnly {
		q += ` WHERE active`
	}
	q += ` ORDER BY id;`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Inner: err}
	}
	defer rows.Close()

	var out []threatdex.NewsSource
	for rows.Next() {
		var (
			src     threatdex.NewsSource
			ivalSec int64
		)
		err := rows.Scan(
			&src.ID, &src.Name, &src.FeedURL, &src.Active, &ivalSec,
			&src.LastFetchedAt, &src.LastFetchStatus, &src.LastFetchError, &src.TotalArticles,
		)
		if err != nil {
			return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrInternal, Inner: err}
		}
		src.FetchInterval = time.Duration(ivalSec) * time.Second
		out = append(out, src)
	}
	if err := rows.Err(); err != nil {
		return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Inner: err}
	}
	return out, nil
}

// SeedSources implements datastore.Sources. Already-configured feeds are
// left alone, so operator edits survive restarts.
func (s *Store) SeedSources(ctx context.Context, defaults []threatdex.NewsSource) error {
	const insert = `
	INSERT INTO news_sources (name, feed_url, active, fetch_interval_seconds)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (feed_url) DO NOTHING;`
	ctx = zlog.ContextWithValues(ctx, "component", "datastore/postgres/Store.SeedSources")
	const op = `datastore/postgres/SeedSources`
	timer := prometheus.NewTimer(sourcesDuration.WithLabelValues("seed"))
	defer timer.ObserveDuration()
	sourcesCounter.WithLabelValues("seed").Inc()

	added := 0
	for _, d := range defaults {
		tag, err := s.pool.Exec(ctx, insert, d.Name, d.FeedURL, d.Active, int64(d.FetchInterval.Seconds()))
		if err != nil {
			return &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Message: fmt.Sprintf("seeding %q", d.Name), Inner: err}
		}
		added += int(tag.RowsAffected())
	}
	if added != 0 {
		zlog.Info(ctx).Int("added", added).Msg("seeded default news sources")
	}
	return nil
}

// RecordFetch implements datastore.Sources.
func (s *Store) RecordFetch(ctx context.Context, sourceID int64, status, fetchErr string, added int) error {
	const query = `
	UPDATE news_sources SET
		last_fetched_at = now(),
		last_fetch_status = $2,
		last_fetch_error = $3,
		total_articles = total_articles + $4
	WHERE id = $1;`
	const op = `datastore/postgres/RecordFetch`
	timer := prometheus.NewTimer(sourcesDuration.WithLabelValues("record"))
	defer timer.ObserveDuration()
	sourcesCounter.WithLabelValues("record").Inc()

	tag, err := s.pool.Exec(ctx, query, sourceID, status, fetchErr, added)
	if err != nil {
		return &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Inner: err}
	}
	if tag.RowsAffected() == 0 {
		return &threatdex.Error{Op: op, Kind: threatdex.ErrNotFound, Message: fmt.Sprintf("no news source %d", sourceID)}
	}
	return nil
}
