package postgres

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/threatdex/threatdex"
	"github.com/threatdex/threatdex/datastore"
)

var (
	statsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "threatdex",
			Subsystem: "store",
			Name:      "stats_total",
			Help:      "Total number of stats aggregations.",
		},
		[]string{"query"},
	)
	statsDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "threatdex",
			Subsystem: "store",
			Name:      "stats_duration_seconds",
			Help:      "Duration of stats aggregations.",
		},
		[]string{"query"},
	)
)

// Stats implements datastore.Vulnerabilities. One pass over the table;
// no locks.
func (s *Store) Stats(ctx context.Context) (*datastore.Stats, error) {
	const query = `
	SELECT
		COUNT(*),
		COUNT(*) FILTER (WHERE exploited_in_the_wild),
		COUNT(*) FILTER (WHERE severity = 'CRITICAL'),
		COUNT(*) FILTER (WHERE severity = 'HIGH'),
		COUNT(*) FILTER (WHERE severity = 'MEDIUM'),
		COUNT(*) FILTER (WHERE severity = 'LOW'),
		COUNT(*) FILTER (WHERE severity = 'UNKNOWN'),
		COUNT(*) FILTER (WHERE published_at >= now() - interval '7 days'),
		MAX(updated_at)
	FROM vulnerabilities;`
	const op = `datastore/postgres/Stats`
	timer := prometheus.NewTimer(statsDuration.WithLabelValues("stats"))
	defer timer.ObserveDuration()
	statsCounter.WithLabelValues("stats").Inc()

	var (
		st                                    datastore.Stats
		critical, high, medium, low, unknown int64
	)
	err := s.pool.QueryRow(ctx, query).Scan(
		&st.Total, &st.Exploited,
		&critical, &high, &medium, &low, &unknown,
		&st.Recent, &st.LastUpdate,
	)
	if err != nil {
		return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Inner: err}
	}
	st.BySeverity = map[string]int64{
		"CRITICAL": critical,
		"HIGH":     high,
		"MEDIUM":   medium,
		"LOW":      low,
		"UNKNOWN":  unknown,
	}
	return &st, nil
}
