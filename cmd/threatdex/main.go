// Command threatdex runs the aggregation service: the read API, the
// ingestion scheduler, one-shot ingestion jobs, the NVD backfill, and
// database migrations.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/threatdex/threatdex"
	"github.com/threatdex/threatdex/internal/config"
)

func main() {
	root := &cobra.Command{
		Use:           "threatdex",
		Short:         "threat-intelligence aggregation service",
		Version:       threatdex.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), ingestCmd(), backfillCmd(), migrateCmd())
	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("exiting")
		os.Exit(1)
	}
}

// setup loads configuration, wires logging, and returns a context that
// ends on SIGINT or SIGTERM.
func setup(cmd *cobra.Command) (context.Context, context.CancelFunc, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}

	zerolog.SetGlobalLevel(logLevel(cfg.LogLevel))
	var out *os.File = os.Stderr
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, nil, err
		}
		out = f
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()

	ctx := log.Logger.WithContext(cmd.Context())
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	return ctx, stop, cfg, nil
}

func logLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	}
	return zerolog.InfoLevel
}
