package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quay/zlog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/threatdex/threatdex/datastore/postgres"
	"github.com/threatdex/threatdex/httpapi"
)

func serveCmd() *cobra.Command {
	var migrations bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the read API and the ingestion scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop, cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			defer stop()

			if migrations {
				if err := postgres.Migrate(ctx, cfg.DatabaseURL); err != nil {
					return err
				}
			}
			b, err := buildBackend(ctx, cfg, "threatdex-serve")
			if err != nil {
				return err
			}
			defer b.Close()
			m := buildManager(ctx, b, cfg, true)

			api := httpapi.New(b.store, b.cache,
				httpapi.WithRateLimits(cfg.RateLimitPerMinute, cfg.RateLimitPerHour),
				httpapi.WithWhitelist(cfg.RateLimitWhitelist),
				httpapi.WithAllowedOrigins(cfg.AllowedOrigins),
			)
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			mux.Handle("/", api.Handler())
			srv := &http.Server{
				Addr:        cfg.ListenAddr,
				Handler:     mux,
				BaseContext: func(_ net.Listener) context.Context { return ctx },
			}

			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				err := m.Start(ctx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
			eg.Go(func() error {
				zlog.Info(ctx).Str("addr", cfg.ListenAddr).Msg("http server starting")
				err := srv.ListenAndServe()
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			})
			eg.Go(func() error {
				<-ctx.Done()
				zlog.Info(ctx).Msg("shutting down")
				sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(sctx)
			})
			return eg.Wait()
		},
	}
	cmd.Flags().BoolVar(&migrations, "migrations", true, "run database migrations on startup")
	return cmd
}
