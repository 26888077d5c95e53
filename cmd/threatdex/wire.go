package main

import (
	"context"
	"time"

	"github.com/quay/zlog"

	"github.com/threatdex/threatdex/cache"
	"github.com/threatdex/threatdex/datastore/postgres"
	"github.com/threatdex/threatdex/enrich"
	"github.com/threatdex/threatdex/feed/nvd"
	"github.com/threatdex/threatdex/feed/rss"
	"github.com/threatdex/threatdex/internal/config"
	"github.com/threatdex/threatdex/updates"
)

// Scheduled-job cadence.
const (
	nvdRecentInterval  = time.Hour
	nvdRecentWindow    = 2 * time.Hour
	kevInterval        = 6 * time.Hour
	rssInterval        = 15 * time.Minute
	enrichInterval     = 10 * time.Minute
	statsRefreshPeriod = 4 * time.Minute
)

// backend bundles the shared process state.
type backend struct {
	store *postgres.Store
	cache *cache.Client
}

func buildBackend(ctx context.Context, cfg *config.Config, appName string) (*backend, error) {
	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, appName, cfg.PoolSize())
	if err != nil {
		return nil, err
	}
	c, err := cache.New(cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &backend{store: postgres.NewStore(pool), cache: c}, nil
}

func (b *backend) Close() {
	b.cache.Close()
	b.store.Close()
}

// buildManager registers the canonical jobs. Intervals of zero leave a
// job on-demand only.
func buildManager(ctx context.Context, b *backend, cfg *config.Config, scheduled bool) *updates.Manager {
	m := updates.NewManager(b.store, b.cache,
		updates.WithBatchSize(cfg.WorkersPerInstance),
	)

	ival := func(d time.Duration) time.Duration {
		if !scheduled {
			return 0
		}
		return d
	}

	pacer := b.cache.NewPacer("nvd", nvd.SharedDelay(cfg.NVDAPIKey))
	m.Register(updates.NVDRecent(nil, cfg.NVDAPIKey, nvdRecentWindow, ival(nvdRecentInterval), pacer))
	m.Register(updates.NVDKEVSync(nil, cfg.NVDAPIKey, pacer))
	m.Register(updates.KEVRefresh(nil, ival(kevInterval)))
	m.Register(updates.RSSFetchAll(nil, ival(rssInterval)))
	m.Register(updates.EnrichmentTick(buildWorker(b, cfg), ival(enrichInterval)))
	m.Register(updates.RefreshStats(ival(statsRefreshPeriod)))

	if err := b.store.SeedSources(ctx, rss.DefaultSources); err != nil {
		zlog.Warn(ctx).Err(err).Msg("news source seeding failed")
	}
	return m
}

func buildWorker(b *backend, cfg *config.Config) *enrich.Worker {
	var s enrich.Summarizer
	if cfg.OpenAIAPIKey != "" {
		s = enrich.NewOpenAI(cfg.OpenAIAPIKey,
			enrich.WithModel(cfg.OpenAIModel),
			enrich.WithBaseURL(cfg.OpenAIBaseURL),
		)
	}
	return enrich.NewWorker(b.store, b.cache, s)
}
