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
	listCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "threatdex",
			Subsystem: "store",
			Name:      "list_total",
			Help:      "Total number of database queries issued in the List method.",
		},
		[]string{"query"},
	)
	listDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "threatdex",
			Subsystem: "store",
			Name:      "list_duration_seconds",
			Help:      "Duration of all queries issued in the List method.",
		},
		[]string{"query"},
	)
)

// List implements datastore.Vulnerabilities.
func (s *Store) List(ctx context.Context, f datastore.VulnFilters, sort datastore.SortField, order datastore.SortOrder, p datastore.Page) ([]*threatdex.Vulnerability, int64, error) {
	const op = `datastore/postgres/List`
	timer := prometheus.NewTimer(listDuration.WithLabelValues("list"))
	defer timer.ObserveDuration()
	listCounter.WithLabelValues("list").Inc()

	ord, err := orderBy(sort, order)
	if err != nil {
		return nil, 0, err
	}
	where, args := predicates(f, nil)

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM vulnerabilities`+where, args...).Scan(&total); err != nil {
		return nil, 0, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Message: "count failed", Inner: err}
	}

	query := `SELECT ` + vulnCols + ` FROM vulnerabilities` + where + ord +
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
