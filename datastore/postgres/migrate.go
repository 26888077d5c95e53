package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/remind101/migrate"

	"github.com/threatdex/threatdex"
	"github.com/threatdex/threatdex/datastore/postgres/migrations"
)

// Migrate brings the schema up to date. It opens its own short-lived
// database/sql connection; the migrator wants one, not a pgx pool.
func Migrate(ctx context.Context, connString string) error {
	const op = `datastore/postgres/Migrate`
	cfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return &threatdex.Error{Op: op, Kind: threatdex.ErrInvalid, Message: "failed to parse connection string", Inner: err}
	}
	db := stdlib.OpenDB(*cfg)
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return &threatdex.Error{Op: op, Kind: threatdex.ErrTransient, Message: "database unreachable", Inner: err}
	}

	migrator := migrate.NewPostgresMigrator(db)
	migrator.Table = migrations.MigrationTable
	if err := migrator.Exec(migrate.Up, migrations.Migrations...); err != nil {
		return &threatdex.Error{Op: op, Kind: threatdex.ErrInternal, Message: "migration failed", Inner: err}
	}
	return nil
}
