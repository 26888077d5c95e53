package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/quay/zlog"

	"github.com/threatdex/threatdex"
	"github.com/threatdex/threatdex/datastore"
	"github.com/threatdex/threatdex/merge"
	"github.com/threatdex/threatdex/score"
)

var (
	upsertCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "threatdex",
			Subsystem: "store",
			Name:      "upsert_total",
			Help:      "Total number of vulnerability upserts by outcome.",
		},
		[]string{"outcome"},
	)
	upsertDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "threatdex",
			Subsystem: "store",
			Name:      "upsert_duration_seconds",
			Help:      "Duration of vulnerability upsert transactions.",
		},
		[]string{"outcome"},
	)
)

// Upsert implements datastore.Vulnerabilities.
//
// The row is locked for the duration of the merge, serializing writes per
// CVE. Readers are never blocked and see either the pre- or post-merge
// state.
func (s *Store) Upsert(ctx context.Context, v *threatdex.Vulnerability, source string) (datastore.Outcome, error) {
	const (
		lock   = `SELECT ` + vulnCols + ` FROM vulnerabilities WHERE cve_id = $1 FOR UPDATE;`
		insert = `
		INSERT INTO vulnerabilities (` + vulnCols + `) VALUES
		($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25);`
		touch  = `UPDATE vulnerabilities SET updated_at = $2 WHERE cve_id = $1;`
		update = `
		UPDATE vulnerabilities SET
			title = $2, description = $3, cvss_score = $4, cvss_vector = $5, severity = $6,
			published_at = $7, modified_at = $8, exploited_in_the_wild = $9, cisa_due_date = $10,
			cwe_ids = $11, vendors = $12, products = $13, affected_products = $14,
			refs = $15, sources = $16, source_tags = $17,
			priority_score = $18, simple_title = $19, simple_description = $20,
			llm_processed = $21, llm_processed_at = $22, llm_provenance = $23,
			created_at = $24, updated_at = $25
		WHERE cve_id = $1;`
	)
	ctx = zlog.ContextWithValues(ctx, "component", "datastore/postgres/Store.Upsert")
	const op = `datastore/postgres/Upsert`
	start := time.Now()
	now := time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Message: "unable to start transaction", Inner: err}
	}
	defer tx.Rollback(ctx)

	var outcome datastore.Outcome
	cur, err := scanVuln(tx.QueryRow(ctx, lock, v.CVE))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		merge.Init(v, source, now)
		v.PriorityScore = score.Score(v, now)
		args, err := vulnArgs(v)
		if err != nil {
			return "", &threatdex.Error{Op: op, Kind: threatdex.ErrInternal, Inner: err}
		}
		if _, err := tx.Exec(ctx, insert, args...); err != nil {
			return "", &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Message: "insert failed", Inner: err}
		}
		outcome = datastore.Inserted
	case err != nil:
		return "", &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Message: "row lock failed", Inner: err}
	default:
		if !merge.Vulnerabilities(cur, v, source) {
			// Record the re-observation even when no field moved, so feed
			// freshness stays visible on stable rows.
			if _, err := tx.Exec(ctx, touch, v.CVE, now); err != nil {
				return "", &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Message: "touch failed", Inner: err}
			}
			outcome = datastore.Unchanged
			break
		}
		cur.PriorityScore = score.Score(cur, now)
		cur.UpdatedAt = now
		args, err := vulnArgs(cur)
		if err != nil {
			return "", &threatdex.Error{Op: op, Kind: threatdex.ErrInternal, Inner: err}
		}
		if _, err := tx.Exec(ctx, update, args...); err != nil {
			return "", &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Message: "update failed", Inner: err}
		}
		outcome = datastore.Updated
	}

	if err := tx.Commit(ctx); err != nil {
		return "", &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Message: fmt.Sprintf("commit failed for %s", v.CVE), Inner: err}
	}
	upsertCounter.WithLabelValues(string(outcome)).Inc()
	upsertDuration.WithLabelValues(string(outcome)).Observe(time.Since(start).Seconds())
	return outcome, nil
}
