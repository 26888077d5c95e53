package updates

import (
	"context"
	"time"

	"github.com/quay/zlog"

	"github.com/threatdex/threatdex"
	"github.com/threatdex/threatdex/datastore"
	"github.com/threatdex/threatdex/feed"
)

// maxBackoffWaits bounds how often one run defers to upstream rate
// limiting before giving up on the remaining pages.
const maxBackoffWaits = 10

// Drive pulls every page out of the feeder and merges it, updating the
// run counters. When checkpointJob is nonempty the cursor is persisted
// after each durably processed page and the walk resumes from the stored
// cursor; re-processing the boundary page is safe because merging is
// idempotent.
//
// Per-record failures are counted and logged, never raised. A rate-limit
// signal from the feeder pauses the walk for the hinted backoff.
func (m *Manager) Drive(ctx context.Context, f feed.Feeder, run *threatdex.IngestionRun, checkpointJob string) error {
	ctx = zlog.ContextWithValues(ctx,
		"component", "updates/Manager.Drive",
		"feed", f.Name())

	var cursor feed.Cursor
	var save func(context.Context, feed.Cursor) error
	if checkpointJob != "" {
		token, err := m.store.GetCheckpoint(ctx, checkpointJob)
		if err != nil {
			return err
		}
		cursor = feed.Cursor(token)
		if cursor != "" {
			zlog.Info(ctx).Str("cursor", token).Msg("resuming from checkpoint")
		}
		save = func(ctx context.Context, next feed.Cursor) error {
			if err := m.store.SetCheckpoint(ctx, checkpointJob, string(next)); err != nil {
				return err
			}
			m.cache.SetCheckpoint(ctx, checkpointJob, string(next))
			return nil
		}
	}
	return m.drivePages(ctx, f, run, cursor, save)
}

// drivePages is the page loop under Drive, with the resume cursor and
// checkpoint persistence supplied by the caller. The backfill job uses
// this directly so it can fold its date window into the stored token.
func (m *Manager) drivePages(ctx context.Context, f feed.Feeder, run *threatdex.IngestionRun, cursor feed.Cursor, save func(context.Context, feed.Cursor) error) error {
	backoffs := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := f.Fetch(ctx, cursor)
		switch {
		case err == nil:
		default:
			d, ok := threatdex.BackoffHint(err)
			if !ok || backoffs >= maxBackoffWaits {
				return err
			}
			backoffs++
			zlog.Info(ctx).
				Dur("backoff", d).
				Int("waits", backoffs).
				Msg("upstream rate limited, pausing")
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
			continue
		}

		m.mergePage(ctx, f.Name(), page, run)

		if save != nil {
			// The page just committed; the cursor may now move past it.
			if err := save(ctx, page.Next); err != nil {
				return err
			}
		}
		if page.Next == "" {
			break
		}
		cursor = page.Next
	}

	if run.RecordsInserted+run.RecordsUpdated > 0 {
		m.cache.InvalidateStats(ctx)
	}
	return nil
}

// mergePage upserts one page's records, counting outcomes on the run.
func (m *Manager) mergePage(ctx context.Context, source string, page *feed.Page, run *threatdex.IngestionRun) {
	for _, v := range page.Vulnerabilities {
		run.RecordsFetched++
		outcome, err := m.store.Upsert(ctx, v, source)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			run.RecordsFailed++
			zlog.Warn(ctx).Str("cve", v.CVE).Err(err).Msg("record merge failed")
			continue
		}
		switch outcome {
		case datastore.Inserted:
			run.RecordsInserted++
		case datastore.Updated:
			run.RecordsUpdated++
		}
	}
	if len(page.Articles) != 0 {
		run.RecordsFetched += int64(len(page.Articles))
		n, err := m.store.UpsertArticles(ctx, page.Articles)
		if err != nil {
			run.RecordsFailed += int64(len(page.Articles))
			zlog.Warn(ctx).Err(err).Msg("article batch failed")
			return
		}
		run.RecordsInserted += int64(n)
	}
}
