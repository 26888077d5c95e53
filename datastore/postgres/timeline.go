package postgres

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/threatdex/threatdex"
	"github.com/threatdex/threatdex/datastore"
)

var (
	timelineCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "threatdex",
			Subsystem: "store",
			Name:      "timeline_total",
			Help:      "Total number of timeline aggregations.",
		},
		[]string{"query"},
	)
	timelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "threatdex",
			Subsystem: "store",
			Name:      "timeline_duration_seconds",
			Help:      "Duration of timeline aggregations.",
		},
		[]string{"query"},
	)
)

// Timeline implements datastore.Vulnerabilities.
func (s *Store) Timeline(ctx context.Context, days int) ([]datastore.TimelinePoint, error) {
	const query = `
	SELECT date_trunc('day', published_at) AS day, COUNT(*)
	FROM vulnerabilities
	WHERE published_at >= now() - make_interval(days => $1)
	GROUP BY day
	ORDER BY day;`
	const op = `datastore/postgres/Timeline`
	timer := prometheus.NewTimer(timelineDuration.WithLabelValues("timeline"))
	defer timer.ObserveDuration()
	timelineCounter.WithLabelValues("timeline").Inc()

	rows, err := s.pool.Query(ctx, query, days)
	if err != nil {
		return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Inner: err}
	}
	defer rows.Close()

	var out []datastore.TimelinePoint
	for rows.Next() {
		var p datastore.TimelinePoint
		if err := rows.Scan(&p.Date, &p.Count); err != nil {
			return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrInternal, Inner: err}
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Inner: err}
	}
	return out, nil
}
