package main

import (
	"github.com/spf13/cobra"

	"github.com/threatdex/threatdex/datastore/postgres"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop, cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			defer stop()
			return postgres.Migrate(ctx, cfg.DatabaseURL)
		},
	}
}
