package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/threatdex/threatdex"
)

var (
	checkpointCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "threatdex",
			Subsystem: "store",
			Name:      "checkpoint_total",
			Help:      "Total number of checkpoint reads and writes.",
		},
		[]string{"query"},
	)
	checkpointDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "threatdex",
			Subsystem: "store",
			Name:      "checkpoint_duration_seconds",
			Help:      "Duration of checkpoint reads and writes.",
		},
		[]string{"query"},
	)
)

// GetCheckpoint implements datastore.Checkpoints. An unknown job yields
// an empty cursor, meaning start from the beginning.
func (s *Store) GetCheckpoint(ctx context.Context, job string) (string, error) {
	const query = `SELECT resume_token FROM update_checkpoint WHERE job = $1;`
	const op = `datastore/postgres/GetCheckpoint`
	timer := prometheus.NewTimer(checkpointDuration.WithLabelValues("get"))
	defer timer.ObserveDuration()
	checkpointCounter.WithLabelValues("get").Inc()

	var token string
	err := s.pool.QueryRow(ctx, query, job).Scan(&token)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return "", nil
	case err != nil:
		return "", &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Inner: err}
	}
	return token, nil
}

// SetCheckpoint implements datastore.Checkpoints.
func (s *Store) SetCheckpoint(ctx context.Context, job, cursor string) error {
	const query = `
	INSERT INTO update_checkpoint (job, resume_token, updated_at)
	VALUES ($1, $2, now())
	ON CONFLICT (job) DO UPDATE SET resume_token = EXCLUDED.resume_token, updated_at = now();`
	const op = `datastore/postgres/SetCheckpoint`
	timer := prometheus.NewTimer(checkpointDuration.WithLabelValues("set"))
	defer timer.ObserveDuration()
	checkpointCounter.WithLabelValues("set").Inc()

	if _, err := s.pool.Exec(ctx, query, job, cursor); err != nil {
		return &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Inner: err}
	}
	return nil
}
