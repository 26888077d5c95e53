package enrich

import (
	"context"
	"time"

	"github.com/quay/zlog"

	"github.com/threatdex/threatdex"
	"github.com/threatdex/threatdex/cache"
	"github.com/threatdex/threatdex/datastore"
)

// Provenance values recorded on enriched rows.
const (
	ProvLLM      = "llm"
	ProvFallback = "fallback"
)

// Worker defaults.
const (
	DefaultBatchSize = 20
	DefaultLockLease = 5 * time.Minute
)

// Worker drains the enrichment queue one batch per ProcessBatch call.
//
// Candidates are taken tier by tier, starting at the configured tier and
// widening until the batch is full. Each record is guarded by a per-CVE
// lock so concurrent workers never double-summarize, and every record
// that completes a pass is marked processed whichever path produced its
// summary.
type Worker struct {
	store datastore.Enrichments
	cache *cache.Client
	s     Summarizer
	prov  string

	tier      datastore.EnrichTier
	batch     int
	lockLease time.Duration
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithTier sets the tier a batch starts draining from.
func WithTier(t datastore.EnrichTier) WorkerOption {
	return func(w *Worker) { w.tier = t }
}

// WithBatchSize caps the records handled per ProcessBatch call.
func WithBatchSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.batch = n
		}
	}
}

// WithLockLease sets the per-CVE lock lease.
func WithLockLease(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.lockLease = d
		}
	}
}

// NewWorker returns a worker that summarizes with s, falling back to the
// rule-based shortener when s fails. A nil s means rule-based only.
func NewWorker(store datastore.Enrichments, c *cache.Client, s Summarizer, opts ...WorkerOption) *Worker {
	w := &Worker{
		store:     store,
		cache:     c,
		s:         s,
		prov:      ProvLLM,
		tier:      datastore.TierHigh,
		batch:     DefaultBatchSize,
		lockLease: DefaultLockLease,
	}
	if s == nil {
		w.s, w.prov = Fallback{}, ProvFallback
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ProcessBatch summarizes up to one batch of unprocessed records,
// counting outcomes on the run.
func (w *Worker) ProcessBatch(ctx context.Context, run *threatdex.IngestionRun) error {
	ctx = zlog.ContextWithValues(ctx, "component", "enrich/Worker.ProcessBatch")

	remaining := w.batch
	for tier := w.tier; tier <= datastore.TierLow && remaining > 0; tier++ {
		rows, err := w.store.SelectForEnrichment(ctx, tier, remaining)
		if err != nil {
			return err
		}
		for _, v := range rows {
			if err := ctx.Err(); err != nil {
				return err
			}
			w.processOne(ctx, v, run)
		}
		remaining -= len(rows)
	}
	zlog.Debug(ctx).
		Int64("updated", run.RecordsUpdated).
		Int64("failed", run.RecordsFailed).
		Msg("batch done")
	return nil
}

func (w *Worker) processOne(ctx context.Context, v *threatdex.Vulnerability, run *threatdex.IngestionRun) {
	ctx = zlog.ContextWithValues(ctx, "cve", v.CVE)
	run.RecordsFetched++

	lock, err := w.cache.TryLock(ctx, "enrich:"+v.CVE, w.lockLease)
	if err != nil {
		run.RecordsFailed++
		zlog.Warn(ctx).Err(err).Msg("lock acquisition failed")
		return
	}
	if lock == nil {
		zlog.Debug(ctx).Msg("another worker holds the record, skipping")
		return
	}
	defer lock.Release(ctx)

	in := inputFor(v)
	prov := w.prov
	sum, err := w.s.Summarize(ctx, in)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		zlog.Warn(ctx).Err(err).Msg("summarizer failed, using rule-based summary")
		sum, _ = Fallback{}.Summarize(ctx, in)
		prov = ProvFallback
	}

	e := &datastore.Enrichment{
		CVE:         v.CVE,
		Title:       sum.Title,
		Description: sum.Description,
		Provenance:  prov,
		ProcessedAt: time.Now().UTC(),
	}
	if err := w.store.SetEnrichment(ctx, e); err != nil {
		run.RecordsFailed++
		zlog.Warn(ctx).Err(err).Msg("enrichment write failed")
		return
	}
	run.RecordsUpdated++
}
