package postgres

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/threatdex/threatdex"
	"github.com/threatdex/threatdex/datastore"
)

var (
	topVendorsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "threatdex",
			Subsystem: "store",
			Name:      "topvendors_total",
			Help:      "Total number of top-vendor aggregations.",
		},
		[]string{"query"},
	)
	topVendorsDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "threatdex",
			Subsystem: "store",
			Name:      "topvendors_duration_seconds",
			Help:      "Duration of top-vendor aggregations.",
		},
		[]string{"query"},
	)
)

// TopVendors implements datastore.Vulnerabilities.
func (s *Store) TopVendors(ctx context.Context, limit int) ([]datastore.VendorCount, error) {
	const query = `
	SELECT v.vendor, COUNT(*)
	FROM vulnerabilities, unnest(vendors) AS v(vendor)
	GROUP BY v.vendor
	ORDER BY COUNT(*) DESC, v.vendor
	LIMIT $1;`
	const op = `datastore/postgres/TopVendors`
	timer := prometheus.NewTimer(topVendorsDuration.WithLabelValues("topvendors"))
	defer timer.ObserveDuration()
	topVendorsCounter.WithLabelValues("topvendors").Inc()

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Inner: err}
	}
	defer rows.Close()

	var out []datastore.VendorCount
	for rows.Next() {
		var vc datastore.VendorCount
		if err := rows.Scan(&vc.Vendor, &vc.Count); err != nil {
			return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrInternal, Inner: err}
		}
		out = append(out, vc)
	}
	if err := rows.Err(); err != nil {
		return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Inner: err}
	}
	return out, nil
}

// SeverityDistribution implements datastore.Vulnerabilities.
func (s *Store) SeverityDistribution(ctx context.Context) (map[string]int64, error) {
	const query = `SELECT severity, COUNT(*) FROM vulnerabilities GROUP BY severity;`
	const op = `datastore/postgres/SeverityDistribution`
	timer := prometheus.NewTimer(topVendorsDuration.WithLabelValues("severitydistribution"))
	defer timer.ObserveDuration()
	topVendorsCounter.WithLabelValues("severitydistribution").Inc()

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Inner: err}
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var (
			sev string
			n   int64
		)
		if err := rows.Scan(&sev, &n); err != nil {
			return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrInternal, Inner: err}
		}
		out[sev] = n
	}
	if err := rows.Err(); err != nil {
		return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Inner: err}
	}
	return out, nil
}
