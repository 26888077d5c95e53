package postgres

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/threatdex/threatdex"
	"github.com/threatdex/threatdex/datastore"
)

var (
	suggestCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "threatdex",
			Subsystem: "store",
			Name:      "suggest_total",
			Help:      "Total number of autocomplete queries.",
		},
		[]string{"query"},
	)
	suggestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "threatdex",
			Subsystem: "store",
			Name:      "suggest_duration_seconds",
			Help:      "Duration of autocomplete queries.",
		},
		[]string{"query"},
	)
)

// Suggest implements datastore.Vulnerabilities. CVE ids match by prefix,
// titles by substring; highest-priority rows first.
func (s *Store) Suggest(ctx context.Context, q string, limit int) ([]datastore.Suggestion, error) {
	const query = `
	SELECT cve_id, title FROM vulnerabilities
	WHERE cve_id ILIKE upper($1) || '%' OR title ILIKE '%' || $1 || '%'
	ORDER BY priority_score DESC
	LIMIT $2;`
	const op = `datastore/postgres/Suggest`
	timer := prometheus.NewTimer(suggestDuration.WithLabelValues("suggest"))
	defer timer.ObserveDuration()
	suggestCounter.WithLabelValues("suggest").Inc()

	rows, err := s.pool.Query(ctx, query, q, limit)
	if err != nil {
		return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Inner: err}
	}
	defer rows.Close()

	var out []datastore.Suggestion
	for rows.Next() {
		var sg datastore.Suggestion
		if err := rows.Scan(&sg.CVE, &sg.Title); err != nil {
			return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrInternal, Inner: err}
		}
		out = append(out, sg)
	}
	if err := rows.Err(); err != nil {
		return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Inner: err}
	}
	return out, nil
}
