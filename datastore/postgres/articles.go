package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/quay/zlog"

	"github.com/threatdex/threatdex"
	"github.com/threatdex/threatdex/datastore"
	"github.com/threatdex/threatdex/pkg/microbatch"
)

var (
	articlesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "threatdex",
			Subsystem: "store",
			Name:      "articles_total",
			Help:      "Total number of database queries issued in the article methods.",
		},
		[]string{"query"},
	)
	articlesDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "threatdex",
			Subsystem: "store",
			Name:      "articles_duration_seconds",
			Help:      "Duration of all queries issued in the article methods.",
		},
		[]string{"query"},
	)
)

const articleCols = `id, source_id, title, url, author, summary, published_at, fetched_at, categories, related_cves, llm_summary, llm_key_points, llm_relevance, llm_processed`

// UpsertArticles implements datastore.Articles. Articles are deduped by
// URL; an existing URL is left untouched, so re-fetching a feed is free.
func (s *Store) UpsertArticles(ctx context.Context, arts []*threatdex.Article) (int, error) {
	const insert = `
	INSERT INTO news_articles (source_id, title, url, author, summary, published_at, fetched_at, categories, related_cves)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (url) DO NOTHING;`
	ctx = zlog.ContextWithValues(ctx, "component", "datastore/postgres/Store.UpsertArticles")
	const op = `datastore/postgres/UpsertArticles`
	timer := prometheus.NewTimer(articlesDuration.WithLabelValues("upsert"))
	defer timer.ObserveDuration()
	articlesCounter.WithLabelValues("upsert").Inc()

	if len(arts) == 0 {
		return 0, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Message: "unable to start transaction", Inner: err}
	}
	defer tx.Rollback(ctx)

	batch := microbatch.NewInsert(tx, 500, time.Minute)
	for _, a := range arts {
		err := batch.Queue(ctx, insert,
			a.SourceID, a.Title, a.URL, a.Author, a.Summary, a.PublishedAt, a.FetchedAt,
			orEmpty(a.Categories), orEmpty(a.RelatedCVEs),
		)
		if err != nil {
			return 0, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Message: fmt.Sprintf("queueing %q", a.URL), Inner: err}
		}
	}
	if err := batch.Done(ctx); err != nil {
		return 0, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Message: "flushing batch", Inner: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Message: "commit failed", Inner: err}
	}
	inserted := int(batch.Affected())
	zlog.Debug(ctx).
		Int("fetched", len(arts)).
		Int("inserted", inserted).
		Msg("stored articles")
	return inserted, nil
}

// ListArticles implements datastore.Articles. A zero sourceID lists
// across all sources.
func (s *Store) ListArticles(ctx context.Context, sourceID int64, p datastore.Page) ([]*threatdex.Article, int64, error) {
	const op = `datastore/postgres/ListArticles`
	timer := prometheus.NewTimer(articlesDuration.WithLabelValues("list"))
	defer timer.ObserveDuration()
	articlesCounter.WithLabelValues("list").Inc()

	where := ""
	args := []any{}
	if sourceID != 0 {
		where = " WHERE source_id = $1"
		args = append(args, sourceID)
	}

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM news_articles`+where, args...).Scan(&total); err != nil {
		return nil, 0, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Message: "count failed", Inner: err}
	}

	query := `SELECT ` + articleCols + ` FROM news_articles` + where +
		fmt.Sprintf(" ORDER BY published_at DESC NULLS LAST LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, p.Size, p.Offset())

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Inner: err}
	}
	defer rows.Close()

	var out []*threatdex.Article
	for rows.Next() {
		var a threatdex.Article
		err := rows.Scan(
			&a.ID, &a.SourceID, &a.Title, &a.URL, &a.Author, &a.Summary,
			&a.PublishedAt, &a.FetchedAt, &a.Categories, &a.RelatedCVEs,
			&a.LLMSummary, &a.LLMKeyPoints, &a.LLMRelevance, &a.LLMProcessed,
		)
		if err != nil {
			return nil, 0, &threatdex.Error{Op: op, Kind: threatdex.ErrInternal, Inner: err}
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Inner: err}
	}
	return out, total, nil
}
