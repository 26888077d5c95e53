package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/threatdex/threatdex/feed/nvd"
	"github.com/threatdex/threatdex/updates"
)

func backfillCmd() *cobra.Command {
	var startYear, endYear int
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "walk the NVD corpus by published date",
		Long: "Walk the NVD corpus by published date, one window at a time.\n" +
			"The walk checkpoints after every page and resumes where it left off.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop, cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			defer stop()

			b, err := buildBackend(ctx, cfg, "threatdex-backfill")
			if err != nil {
				return err
			}
			defer b.Close()

			m := updates.NewManager(b.store, b.cache)
			pacer := b.cache.NewPacer("nvd", nvd.SharedDelay(cfg.NVDAPIKey))
			m.Register(updates.NVDBackfill(nil, cfg.NVDAPIKey, startYear, endYear, pacer))
			return m.RunJob(ctx, updates.JobNVDBackfill)
		},
	}
	cmd.Flags().IntVar(&startYear, "start-year", 2002, "first publication year to fetch")
	cmd.Flags().IntVar(&endYear, "end-year", time.Now().UTC().Year(), "last publication year to fetch")
	return cmd
}
