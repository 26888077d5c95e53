package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/threatdex/threatdex/updates"
)

func ingestCmd() *cobra.Command {
	names := []string{
		updates.JobNVDRecent,
		updates.JobNVDKEVSync,
		updates.JobKEVRefresh,
		updates.JobRSSFetchAll,
		updates.JobEnrichment,
		updates.JobRefreshStats,
	}
	return &cobra.Command{
		Use:       "ingest <job>",
		Short:     "run one ingestion job and exit",
		Long:      "Run one ingestion job and exit.\n\nJobs: " + strings.Join(names, ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: names,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop, cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			defer stop()

			b, err := buildBackend(ctx, cfg, "threatdex-ingest")
			if err != nil {
				return err
			}
			defer b.Close()
			m := buildManager(ctx, b, cfg, false)

			if err := m.RunJob(ctx, args[0]); err != nil {
				return fmt.Errorf("job %s: %w", args[0], err)
			}
			return nil
		},
	}
}
