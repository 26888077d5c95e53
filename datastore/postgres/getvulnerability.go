package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/threatdex/threatdex"
)

var (
	getCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "threatdex",
			Subsystem: "store",
			Name:      "get_total",
			Help:      "Total number of vulnerability lookups.",
		},
		[]string{"query"},
	)
	getDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "threatdex",
			Subsystem: "store",
			Name:      "get_duration_seconds",
			Help:      "Duration of vulnerability lookups.",
		},
		[]string{"query"},
	)
)

// Get implements datastore.Vulnerabilities. The lookup is
// case-insensitive; ids are stored uppercase.
func (s *Store) Get(ctx context.Context, cve string) (*threatdex.Vulnerability, error) {
	const query = `SELECT ` + vulnCols + ` FROM vulnerabilities WHERE cve_id = upper($1);`
	const op = `datastore/postgres/Get`
	timer := prometheus.NewTimer(getDuration.WithLabelValues("get"))
	defer timer.ObserveDuration()
	getCounter.WithLabelValues("get").Inc()

	v, err := scanVuln(s.pool.QueryRow(ctx, query, cve))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, &threatdex.Error{
			Op:      op,
			Kind:    threatdex.ErrNotFound,
			Message: fmt.Sprintf("no vulnerability %q", cve),
		}
	case err != nil:
		return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Inner: err}
	}
	return v, nil
}
