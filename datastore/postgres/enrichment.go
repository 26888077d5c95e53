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
	enrichCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "threatdex",
			Subsystem: "store",
			Name:      "enrichment_total",
			Help:      "Total number of enrichment selection and write queries.",
		},
		[]string{"query"},
	)
	enrichDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "threatdex",
			Subsystem: "store",
			Name:      "enrichment_duration_seconds",
			Help:      "Duration of enrichment selection and write queries.",
		},
		[]string{"query"},
	)
)

// tierConds narrows the unprocessed set per urgency tier. Tiers widen
// monotonically; the low tier is the whole backlog.
var tierConds = map[datastore.EnrichTier]string{
	datastore.TierHigh:   ` AND (exploited_in_the_wild OR severity = 'CRITICAL' OR published_at >= now() - interval '7 days')`,
	datastore.TierMedium: ` AND (severity = 'HIGH' OR published_at >= now() - interval '30 days')`,
	datastore.TierLow:    ``,
}

// SelectForEnrichment implements datastore.Enrichments.
func (s *Store) SelectForEnrichment(ctx context.Context, tier datastore.EnrichTier, limit int) ([]*threatdex.Vulnerability, error) {
	const op = `datastore/postgres/SelectForEnrichment`
	cond, ok := tierConds[tier]
	if !ok {
		return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrInvalid, Message: fmt.Sprintf("unknown tier %d", tier)}
	}
	timer := prometheus.NewTimer(enrichDuration.WithLabelValues("select"))
	defer timer.ObserveDuration()
	enrichCounter.WithLabelValues("select").Inc()

	query := `SELECT ` + vulnCols + ` FROM vulnerabilities WHERE NOT llm_processed` + cond + `
	ORDER BY priority_score DESC
	LIMIT $1;`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Inner: err}
	}
	defer rows.Close()

	var out []*threatdex.Vulnerability
	for rows.Next() {
		v, err := scanVuln(rows)
		if err != nil {
			return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrInternal, Inner: err}
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Inner: err}
	}
	return out, nil
}

// SetEnrichment implements datastore.Enrichments.
func (s *Store) SetEnrichment(ctx context.Context, e *datastore.Enrichment) error {
	const query = `
	UPDATE vulnerabilities SET
		simple_title = $2,
		simple_description = $3,
		llm_processed = TRUE,
		llm_processed_at = $4,
		llm_provenance = $5,
		updated_at = now()
	WHERE cve_id = $1;`
	const op = `datastore/postgres/SetEnrichment`
	timer := prometheus.NewTimer(enrichDuration.WithLabelValues("set"))
	defer timer.ObserveDuration()
	enrichCounter.WithLabelValues("set").Inc()

	tag, err := s.pool.Exec(ctx, query, e.CVE, e.Title, e.Description, e.ProcessedAt, e.Provenance)
	if err != nil {
		return &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Inner: err}
	}
	if tag.RowsAffected() == 0 {
		return &threatdex.Error{Op: op, Kind: threatdex.ErrNotFound, Message: fmt.Sprintf("no vulnerability %q", e.CVE)}
	}
	return nil
}
