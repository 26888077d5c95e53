package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/threatdex/threatdex"
)

var (
	runsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "threatdex",
			Subsystem: "store",
			Name:      "runs_total",
			Help:      "Total number of database queries issued in the ingestion-run methods.",
		},
		[]string{"query"},
	)
	runsDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "threatdex",
			Subsystem: "store",
			Name:      "runs_duration_seconds",
			Help:      "Duration of all queries issued in the ingestion-run methods.",
		},
		[]string{"query"},
	)
)

// CreateRun implements datastore.Runs, filling in the row id.
func (s *Store) CreateRun(ctx context.Context, r *threatdex.IngestionRun) error {
	const query = `
	INSERT INTO ingestion_runs (ref, source, status, started_at, config)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id;`
	const op = `datastore/postgres/CreateRun`
	timer := prometheus.NewTimer(runsDuration.WithLabelValues("create"))
	defer timer.ObserveDuration()
	runsCounter.WithLabelValues("create").Inc()

	cfg, err := json.Marshal(r.Config)
	if err != nil {
		return &threatdex.Error{Op: op, Kind: threatdex.ErrInternal, Inner: err}
	}
	err = s.pool.QueryRow(ctx, query, r.Ref, r.Source, r.Status, r.StartedAt, cfg).Scan(&r.ID)
	if err != nil {
		return &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Inner: err}
	}
	return nil
}

// FinalizeRun implements datastore.Runs.
func (s *Store) FinalizeRun(ctx context.Context, r *threatdex.IngestionRun) error {
	const query = `
	UPDATE ingestion_runs SET
		status = $2,
		completed_at = $3,
		duration_seconds = $4,
		records_fetched = $5,
		records_inserted = $6,
		records_updated = $7,
		records_failed = $8,
		error_message = $9
	WHERE ref = $1;`
	const op = `datastore/postgres/FinalizeRun`
	timer := prometheus.NewTimer(runsDuration.WithLabelValues("finalize"))
	defer timer.ObserveDuration()
	runsCounter.WithLabelValues("finalize").Inc()

	tag, err := s.pool.Exec(ctx, query,
		r.Ref, r.Status, r.CompletedAt, r.Duration,
		r.RecordsFetched, r.RecordsInserted, r.RecordsUpdated, r.RecordsFailed,
		r.ErrorMessage,
	)
	if err != nil {
		return &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Inner: err}
	}
	if tag.RowsAffected() == 0 {
		return &threatdex.Error{Op: op, Kind: threatdex.ErrNotFound, Message: fmt.Sprintf("no run %v", r.Ref)}
	}
	return nil
}

// ListRuns implements datastore.Runs. An empty source lists across all
// jobs.
func (s *Store) ListRuns(ctx context.Context, source string, limit int) ([]threatdex.IngestionRun, error) {
	const op = `datastore/postgres/ListRuns`
	timer := prometheus.NewTimer(runsDuration.WithLabelValues("list"))
	defer timer.ObserveDuration()
	runsCounter.WithLabelValues("list").Inc()

	query := `
	SELECT id, ref, source, status, started_at, completed_at, duration_seconds,
		records_fetched, records_inserted, records_updated, records_failed,
		error_message, config
	FROM ingestion_runs`
	args := []any{}
	if source != "" {
		query += ` WHERE source = $1`
		args = append(args, source)
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d;`, len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Inner: err}
	}
	defer rows.Close()

	var out []threatdex.IngestionRun
	for rows.Next() {
		var (
			r   threatdex.IngestionRun
			cfg []byte
		)
		err := rows.Scan(
			&r.ID, &r.Ref, &r.Source, &r.Status, &r.StartedAt, &r.CompletedAt, &r.Duration,
			&r.RecordsFetched, &r.RecordsInserted, &r.RecordsUpdated, &r.RecordsFailed,
			&r.ErrorMessage, &cfg,
		)
		if err != nil {
			return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrInternal, Inner: err}
		}
		if len(cfg) != 0 {
			if err := json.Unmarshal(cfg, &r.Config); err != nil {
				return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrInternal, Inner: err}
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Inner: err}
	}
	return out, nil
}
