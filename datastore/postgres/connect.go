package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/quay/zlog"

	"github.com/threatdex/threatdex"
	"github.com/threatdex/threatdex/pkg/poolstats"
)

// Connect initializes a [pgxpool.Pool] based on the connection string.
//
// A nonzero maxConns overrides the pool ceiling unless the connection
// string sets one itself; callers size it to their worker concurrency.
func Connect(ctx context.Context, connString string, applicationName string, maxConns int32) (*pgxpool.Pool, error) {
	const op = `datastore/postgres/Connect`
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, &threatdex.Error{
			Op:      op,
			Kind:    threatdex.ErrInvalid,
			Message: "failed to parse connection string",
			Inner:   err,
		}
	}
	const appnameKey = `application_name`
	params := cfg.ConnConfig.RuntimeParams
	if _, ok := params[appnameKey]; !ok {
		params[appnameKey] = applicationName
	}
	if maxConns > 0 && !strings.Contains(connString, "pool_max_conns") {
		cfg.MaxConns = maxConns
	}
	// Recycle connections on a bounded lifetime so long-lived workers
	// pick up server-side changes and load balancing.
	if cfg.MaxConnLifetime == 0 {
		cfg.MaxConnLifetime = time.Hour
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, &threatdex.Error{
			Op:      op,
			Kind:    threatdex.ErrTransient,
			Message: "failed to create connection pool",
			Inner:   err,
		}
	}

	if err := prometheus.Register(poolstats.NewCollector(pool, applicationName)); err != nil {
		zlog.Info(ctx).Msg("pool metrics already registered")
	}

	return pool, nil
}
