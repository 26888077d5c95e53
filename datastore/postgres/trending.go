package postgres

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/quay/zlog"

	"github.com/threatdex/threatdex"
	"github.com/threatdex/threatdex/datastore"
)

var (
	trendingCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "threatdex",
			Subsystem: "store",
			Name:      "trending_total",
			Help:      "Total number of trending queries.",
		},
		[]string{"query"},
	)
	trendingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "threatdex",
			Subsystem: "store",
			Name:      "trending_duration_seconds",
			Help:      "Duration of trending queries.",
		},
		[]string{"query"},
	)
)

// rangeIntervals maps a time range onto a votes age cutoff in days; zero
// means unbounded.
var rangeIntervals = map[datastore.TimeRange]int{
	datastore.RangeToday:     1,
	datastore.RangeThisWeek:  7,
	datastore.RangeThisMonth: 30,
	datastore.RangeAllTime:   0,
}

// Trending implements datastore.Vulnerabilities.
//
// The votes table belongs to the community service and may not exist in
// a given deployment. When it does, hot ranks by
// (net + 0.5 * votes) / (age_hours + 2)^1.5 and top by net votes; when
// it does not, both degrade to priority ordering.
func (s *Store) Trending(ctx context.Context, t datastore.TrendingType, r datastore.TimeRange, p datastore.Page) ([]*threatdex.Vulnerability, int64, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "datastore/postgres/Store.Trending")
	const op = `datastore/postgres/Trending`
	timer := prometheus.NewTimer(trendingDuration.WithLabelValues(string(t)))
	defer timer.ObserveDuration()
	trendingCounter.WithLabelValues(string(t)).Inc()

	days, ok := rangeIntervals[r]
	if !ok {
		return nil, 0, &threatdex.Error{Op: op, Kind: threatdex.ErrInvalid, Message: fmt.Sprintf("unknown time range %q", r)}
	}
	switch t {
	case datastore.TrendingHot, datastore.TrendingTop:
	default:
		return nil, 0, &threatdex.Error{Op: op, Kind: threatdex.ErrInvalid, Message: fmt.Sprintf("unknown trending type %q", t)}
	}

	var hasVotes bool
	if err := s.pool.QueryRow(ctx, `SELECT to_regclass('public.votes') IS NOT NULL;`).Scan(&hasVotes); err != nil {
		return nil, 0, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Inner: err}
	}
	if !hasVotes {
		zlog.Debug(ctx).Msg("votes table absent, ranking by priority")
		return s.List(ctx, datastore.VulnFilters{}, datastore.SortPriority, datastore.Desc, p)
	}

	voteFilter := ""
	args := []any{p.Size, p.Offset()}
	if days > 0 {
		voteFilter = " AND vt.created_at >= now() - make_interval(days => $3)"
		args = append(args, days)
	}

	rank := `(COALESCE(SUM(CASE vt.vote_type WHEN 'up' THEN 1 WHEN 'down' THEN -1 ELSE 0 END), 0)
		+ 0.5 * COUNT(vt.id))
		/ POWER(GREATEST(EXTRACT(EPOCH FROM (now() - COALESCE(v.published_at, v.created_at))) / 3600, 0) + 2, 1.5)`
	if t == datastore.TrendingTop {
		rank = `COALESCE(SUM(CASE vt.vote_type WHEN 'up' THEN 1 WHEN 'down' THEN -1 ELSE 0 END), 0)`
	}

	query := `
	SELECT ` + prefixCols("v.") + `
	FROM vulnerabilities v
	LEFT JOIN votes vt ON vt.cve_id = v.cve_id` + voteFilter + `
	GROUP BY v.id
	ORDER BY ` + rank + ` DESC, v.priority_score DESC
	LIMIT $1 OFFSET $2;`

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM vulnerabilities;`).Scan(&total); err != nil {
		return nil, 0, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Inner: err}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Inner: err}
	}
	defer rows.Close()

	var out []*threatdex.Vulnerability
	for rows.Next() {
		v, err := scanVuln(rows)
		if err != nil {
			return nil, 0, &threatdex.Error{Op: op, Kind: threatdex.ErrInternal, Inner: err}
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Inner: err}
	}
	return out, total, nil
}
