package postgres

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/threatdex/threatdex"
	"github.com/threatdex/threatdex/datastore"
)

var (
	searchCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "threatdex",
			Subsystem: "store",
			Name:      "search_total",
			Help:      "Total number of database queries issued in the Search method.",
		},
		[]string{"query"},
	)
	searchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "threatdex",
			Subsystem: "store",
			Name:      "search_duration_seconds",
			Help:      "Duration of all queries issued in the Search method.",
		},
		[]string{"query"},
	)
)

// Search implements datastore.Vulnerabilities. Free text matches
// substrings of the CVE id, title, and description; the trigram indexes
// keep the ILIKEs off a sequential scan.
func (s *Store) Search(ctx context.Context, q string, f datastore.VulnFilters, sort datastore.SortField, order datastore.SortOrder, p datastore.Page) ([]*threatdex.Vulnerability, int64, error) {
	const op = `datastore/postgres/Search`
	timer := prometheus.NewTimer(searchDuration.WithLabelValues("search"))
	defer timer.ObserveDuration()
	searchCounter.WithLabelValues("search").Inc()

	ord, err := orderBy(sort, order)
	if err != nil {
		return nil, 0, err
	}

	args := []any{q}
	const match = ` WHERE (cve_id ILIKE '%' || $1 || '%' OR title ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%')`
	where, args := predicatesAnd(f, args)

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM vulnerabilities`+match+where, args...).Scan(&total); err != nil {
		return nil, 0, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Message: "count failed", Inner: err}
	}

	query := `SELECT ` + vulnCols + ` FROM vulnerabilities` + match + where + ord +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, p.Size, p.Offset())

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
