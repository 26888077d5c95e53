package enrich

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/threatdex/threatdex"
	"github.com/threatdex/threatdex/cache"
	"github.com/threatdex/threatdex/datastore"
)

type fakeQueue struct {
	tiers     map[datastore.EnrichTier][]*threatdex.Vulnerability
	written   []*datastore.Enrichment
	processed map[string]bool
	setErr    error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{
		tiers:     map[datastore.EnrichTier][]*threatdex.Vulnerability{},
		processed: map[string]bool{},
	}
}

func (q *fakeQueue) add(tier datastore.EnrichTier, cves ...string) {
	for _, c := range cves {
		q.tiers[tier] = append(q.tiers[tier], &threatdex.Vulnerability{
			CVE:         c,
			Description: "A buffer overflow in the frobnicator.",
			Severity:    threatdex.High,
			Vendors:     []string{"Acme"},
			Products:    []string{"Frobnicator"},
		})
	}
}

func (q *fakeQueue) SelectForEnrichment(ctx context.Context, tier datastore.EnrichTier, limit int) ([]*threatdex.Vulnerability, error) {
	var out []*threatdex.Vulnerability
	for _, v := range q.tiers[tier] {
		if q.processed[v.CVE] {
			continue
		}
		out = append(out, v)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (q *fakeQueue) SetEnrichment(ctx context.Context, e *datastore.Enrichment) error {
	if q.setErr != nil {
		return q.setErr
	}
	q.processed[e.CVE] = true
	q.written = append(q.written, e)
	return nil
}

func testCache(t *testing.T) *cache.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	c := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { c.Close() })
	return c
}

// okSummarizer returns a fixed summary.
type okSummarizer struct{ calls int }

func (s *okSummarizer) Summarize(ctx context.Context, in *Input) (*Summary, error) {
	s.calls++
	return &Summary{Title: "Simple " + in.CVE, Description: "Short form."}, nil
}

// downSummarizer always fails.
type downSummarizer struct{}

func (downSummarizer) Summarize(context.Context, *Input) (*Summary, error) {
	return nil, errors.New("model unavailable")
}

func TestProcessBatchTierWalk(t *testing.T) {
	t.Parallel()
	q := newFakeQueue()
	q.add(datastore.TierHigh, "CVE-2024-0001", "CVE-2024-0002")
	q.add(datastore.TierMedium, "CVE-2024-0010", "CVE-2024-0011", "CVE-2024-0012")
	q.add(datastore.TierLow, "CVE-2024-0020")

	s := &okSummarizer{}
	w := NewWorker(q, testCache(t), s, WithBatchSize(4))

	run := &threatdex.IngestionRun{}
	if err := w.ProcessBatch(context.Background(), run); err != nil {
		t.Fatal(err)
	}
	// The high tier drains first, the medium tier tops the batch up.
	if len(q.written) != 4 {
		t.Fatalf("written: %d", len(q.written))
	}
	want := []string{"CVE-2024-0001", "CVE-2024-0002", "CVE-2024-0010", "CVE-2024-0011"}
	for i, e := range q.written {
		if e.CVE != want[i] {
			t.Errorf("written[%d]: %q, want %q", i, e.CVE, want[i])
		}
		if e.Provenance != ProvLLM {
			t.Errorf("provenance: %q", e.Provenance)
		}
		if e.ProcessedAt.IsZero() {
			t.Error("processed_at not set")
		}
	}
	if run.RecordsUpdated != 4 || run.RecordsFailed != 0 {
		t.Errorf("counts: %+v", run)
	}

	// The next tick picks up the remainder.
	run = &threatdex.IngestionRun{}
	if err := w.ProcessBatch(context.Background(), run); err != nil {
		t.Fatal(err)
	}
	if len(q.written) != 6 {
		t.Errorf("written after second tick: %d", len(q.written))
	}
}

func TestProcessBatchFallsBack(t *testing.T) {
	t.Parallel()
	q := newFakeQueue()
	q.add(datastore.TierHigh, "CVE-2024-0001")

	w := NewWorker(q, testCache(t), downSummarizer{})
	run := &threatdex.IngestionRun{}
	if err := w.ProcessBatch(context.Background(), run); err != nil {
		t.Fatal(err)
	}
	if len(q.written) != 1 {
		t.Fatalf("written: %d", len(q.written))
	}
	e := q.written[0]
	if e.Provenance != ProvFallback {
		t.Errorf("provenance: %q", e.Provenance)
	}
	if want := "High Buffer Overflow in Acme Frobnicator"; e.Title != want {
		t.Errorf("title: %q, want %q", e.Title, want)
	}
	// The record must still be marked processed so it is not reselected
	// forever.
	if !q.processed["CVE-2024-0001"] {
		t.Error("record not marked processed")
	}
	if run.RecordsUpdated != 1 {
		t.Errorf("counts: %+v", run)
	}
}

func TestProcessBatchNilSummarizer(t *testing.T) {
	t.Parallel()
	q := newFakeQueue()
	q.add(datastore.TierHigh, "CVE-2024-0001")

	w := NewWorker(q, testCache(t), nil)
	if err := w.ProcessBatch(context.Background(), &threatdex.IngestionRun{}); err != nil {
		t.Fatal(err)
	}
	if q.written[0].Provenance != ProvFallback {
		t.Errorf("provenance: %q", q.written[0].Provenance)
	}
}

func TestProcessBatchSkipsLocked(t *testing.T) {
	t.Parallel()
	q := newFakeQueue()
	q.add(datastore.TierHigh, "CVE-2024-0001", "CVE-2024-0002")

	c := testCache(t)
	held, err := c.TryLock(context.Background(), "enrich:CVE-2024-0001", time.Minute)
	if err != nil || held == nil {
		t.Fatalf("setup lock: %v %v", held, err)
	}
	defer held.Release(context.Background())

	s := &okSummarizer{}
	w := NewWorker(q, c, s)
	run := &threatdex.IngestionRun{}
	if err := w.ProcessBatch(context.Background(), run); err != nil {
		t.Fatal(err)
	}
	if len(q.written) != 1 || q.written[0].CVE != "CVE-2024-0002" {
		t.Errorf("written: %+v", q.written)
	}
	if run.RecordsFailed != 0 {
		t.Errorf("a held lock is a skip, not a failure: %+v", run)
	}
	if s.calls != 1 {
		t.Errorf("summarizer calls: %d", s.calls)
	}
}

func TestProcessBatchWriteFailure(t *testing.T) {
	t.Parallel()
	q := newFakeQueue()
	q.add(datastore.TierHigh, "CVE-2024-0001")
	q.setErr = errors.New("storage offline")

	w := NewWorker(q, testCache(t), &okSummarizer{})
	run := &threatdex.IngestionRun{}
	if err := w.ProcessBatch(context.Background(), run); err != nil {
		t.Fatal(err)
	}
	if run.RecordsFailed != 1 || run.RecordsUpdated != 0 {
		t.Errorf("counts: %+v", run)
	}
}
