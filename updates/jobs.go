package updates

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/quay/zlog"

	"github.com/threatdex/threatdex"
	"github.com/threatdex/threatdex/feed"
	"github.com/threatdex/threatdex/feed/kev"
	"github.com/threatdex/threatdex/feed/nvd"
	"github.com/threatdex/threatdex/feed/rss"
)

// Canonical job names.
const (
	JobNVDRecent    = "nvd.recent"
	JobNVDBackfill  = "nvd.backfill"
	JobNVDKEVSync   = "nvd.kev_sync"
	JobKEVRefresh   = "cisa_kev.refresh"
	JobRSSFetchAll  = "rss.fetch_all"
	JobEnrichment   = "enrichment.tick"
	JobRefreshStats = "cache.refresh_stats"
)

// backfillWindow is the widest published-date window the NVD API
// accepts.
const backfillWindow = 120 * 24 * time.Hour

// NVDRecent polls the NVD modified window. The window should generously
// overlap the interval; re-merging the overlap is free.
func NVDRecent(hc *http.Client, apiKey string, window, interval time.Duration, shared nvd.Waiter) *Job {
	return &Job{
		Name:     JobNVDRecent,
		Interval: interval,
		Args:     map[string]string{"window": window.String()},
		Run: func(ctx context.Context, m *Manager, run *threatdex.IngestionRun) error {
			now := time.Now().UTC()
			c := nvd.New(hc,
				nvd.WithAPIKey(apiKey),
				nvd.WithModifiedWindow(now.Add(-window), now),
				nvd.WithSharedLimiter(shared),
			)
			return m.Drive(ctx, c, run, "")
		},
	}
}

// NVDKEVSync walks the records flagged as known-exploited through the
// NVD API. On demand; the direct catalog job covers the steady state.
func NVDKEVSync(hc *http.Client, apiKey string, shared nvd.Waiter) *Job {
	return &Job{
		Name: JobNVDKEVSync,
		Run: func(ctx context.Context, m *Manager, run *threatdex.IngestionRun) error {
			c := nvd.New(hc,
				nvd.WithAPIKey(apiKey),
				nvd.WithKEVOnly(),
				nvd.WithSharedLimiter(shared),
			)
			return m.Drive(ctx, c, run, "")
		},
	}
}

// KEVRefresh pulls the CISA KEV catalog.
func KEVRefresh(hc *http.Client, interval time.Duration) *Job {
	return &Job{
		Name:     JobKEVRefresh,
		Interval: interval,
		Run: func(ctx context.Context, m *Manager, run *threatdex.IngestionRun) error {
			return m.Drive(ctx, kev.New(hc), run, "")
		},
	}
}

// NVDBackfill walks the NVD corpus by published date, one 120-day
// window at a time. On demand, long-running, and resumable: the
// checkpoint token carries both the window start and the page index, so
// a restarted job picks up mid-window.
func NVDBackfill(hc *http.Client, apiKey string, startYear, endYear int, shared nvd.Waiter) *Job {
	return &Job{
		Name:    JobNVDBackfill,
		Timeout: 24 * time.Hour,
		Args: map[string]string{
			"start_year": strconv.Itoa(startYear),
			"end_year":   strconv.Itoa(endYear),
		},
		Run: func(ctx context.Context, m *Manager, run *threatdex.IngestionRun) error {
			ctx = zlog.ContextWithValues(ctx, "component", "updates/NVDBackfill")

			from := time.Date(startYear, time.January, 1, 0, 0, 0, 0, time.UTC)
			until := time.Date(endYear+1, time.January, 1, 0, 0, 0, 0, time.UTC)

			token, err := m.store.GetCheckpoint(ctx, JobNVDBackfill)
			if err != nil {
				return err
			}
			resumeWin, resumeCur, err := parseBackfillToken(token)
			if err != nil {
				zlog.Warn(ctx).Str("token", token).Err(err).Msg("ignoring unusable checkpoint")
				resumeWin, resumeCur = time.Time{}, ""
			}

			for win := from; win.Before(until); win = win.Add(backfillWindow) {
				if err := ctx.Err(); err != nil {
					return err
				}
				if !resumeWin.IsZero() && win.Before(resumeWin) {
					continue
				}
				end := win.Add(backfillWindow)
				if end.After(until) {
					end = until
				}

				cursor := feed.Cursor("")
				if win.Equal(resumeWin) {
					cursor = resumeCur
				}
				c := nvd.New(hc,
					nvd.WithAPIKey(apiKey),
					nvd.WithPublishedWindow(win, end),
					nvd.WithSharedLimiter(shared),
				)
				save := func(ctx context.Context, next feed.Cursor) error {
					tok := backfillToken(win, next)
					if err := m.store.SetCheckpoint(ctx, JobNVDBackfill, tok); err != nil {
						return err
					}
					m.cache.SetCheckpoint(ctx, JobNVDBackfill, tok)
					return nil
				}
				if err := m.drivePages(ctx, c, run, cursor, save); err != nil {
					return err
				}
				// Window done; aim the checkpoint at the next one.
				if err := save(ctx, ""); err != nil {
					return err
				}
			}
			return m.store.SetCheckpoint(ctx, JobNVDBackfill, "")
		},
	}
}

// backfillToken encodes (window start, page cursor) as one checkpoint
// string.
func backfillToken(win time.Time, cur feed.Cursor) string {
	if cur == "" {
		// An empty page cursor means the window completed; resume at
		// the next window's start.
		win = win.Add(backfillWindow)
	}
	return win.UTC().Format(time.RFC3339) + "|" + string(cur)
}

func parseBackfillToken(token string) (time.Time, feed.Cursor, error) {
	if token == "" {
		return time.Time{}, "", nil
	}
	win, cur, ok := strings.Cut(token, "|")
	if !ok {
		return time.Time{}, "", fmt.Errorf("malformed checkpoint %q", token)
	}
	t, err := time.Parse(time.RFC3339, win)
	if err != nil {
		return time.Time{}, "", err
	}
	return t, feed.Cursor(cur), nil
}

// RSSFetchAll fans out over the active news sources, honoring each
// source's own fetch interval. Sources not yet due are skipped.
func RSSFetchAll(hc *http.Client, interval time.Duration) *Job {
	return &Job{
		Name:     JobRSSFetchAll,
		Interval: interval,
		Run: func(ctx context.Context, m *Manager, run *threatdex.IngestionRun) error {
			return fetchSources(ctx, m, run, hc, 0)
		},
	}
}

// RSSFetchSource fetches one news source on demand, due or not.
func RSSFetchSource(hc *http.Client, sourceID int64) *Job {
	return &Job{
		Name: fmt.Sprintf("rss.fetch.%d", sourceID),
		Args: map[string]string{"source_id": strconv.FormatInt(sourceID, 10)},
		Run: func(ctx context.Context, m *Manager, run *threatdex.IngestionRun) error {
			return fetchSources(ctx, m, run, hc, sourceID)
		},
	}
}

// fetchSources polls news sources. A zero only fetches every due active
// source; a nonzero id fetches exactly that source.
func fetchSources(ctx context.Context, m *Manager, run *threatdex.IngestionRun, hc *http.Client, only int64) error {
	ctx = zlog.ContextWithValues(ctx, "component", "updates/fetchSources")
	sources, err := m.store.ListSources(ctx, only == 0)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch {
		case only != 0 && src.ID != only:
			continue
		case only == 0 && src.LastFetchedAt != nil && now.Sub(*src.LastFetchedAt) < src.FetchInterval:
			continue
		}

		c, err := rss.New(hc, src)
		if err != nil {
			zlog.Warn(ctx).Str("source", src.Name).Err(err).Msg("skipping misconfigured source")
			run.RecordsFailed++
			continue
		}
		page, err := c.Fetch(ctx, "")
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			run.RecordsFailed++
			zlog.Warn(ctx).Str("source", src.Name).Err(err).Msg("feed fetch failed")
			if rerr := m.store.RecordFetch(ctx, src.ID, "error", err.Error(), 0); rerr != nil {
				zlog.Warn(ctx).Str("source", src.Name).Err(rerr).Msg("bookkeeping update failed")
			}
			continue
		}

		before := run.RecordsInserted
		m.mergePage(ctx, threatdex.SourceRSS, page, run)
		added := int(run.RecordsInserted - before)
		if err := m.store.RecordFetch(ctx, src.ID, "ok", "", added); err != nil {
			zlog.Warn(ctx).Str("source", src.Name).Err(err).Msg("bookkeeping update failed")
		}
	}
	return nil
}

// BatchProcessor is the slice of the enrichment worker the scheduler
// needs.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, run *threatdex.IngestionRun) error
}

// EnrichmentTick runs one enrichment batch per tick.
func EnrichmentTick(p BatchProcessor, interval time.Duration) *Job {
	return &Job{
		Name:     JobEnrichment,
		Interval: interval,
		Run: func(ctx context.Context, m *Manager, run *threatdex.IngestionRun) error {
			return p.ProcessBatch(ctx, run)
		},
	}
}

// RefreshStats recomputes the dashboard aggregate and reprimes the
// cache.
func RefreshStats(interval time.Duration) *Job {
	return &Job{
		Name:     JobRefreshStats,
		Interval: interval,
		Run: func(ctx context.Context, m *Manager, run *threatdex.IngestionRun) error {
			st, err := m.store.Stats(ctx)
			if err != nil {
				return err
			}
			m.cache.SetStats(ctx, st)
			run.RecordsFetched = st.Total
			return nil
		},
	}
}
