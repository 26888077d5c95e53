package updates

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/threatdex/threatdex"
	"github.com/threatdex/threatdex/cache"
	"github.com/threatdex/threatdex/datastore"
	"github.com/threatdex/threatdex/feed"
)

// fakeStore records calls; unused surface panics to catch drift.
type fakeStore struct {
	datastore.Store

	mu          sync.Mutex
	upserts     []string
	outcomes    map[string]datastore.Outcome
	runs        []*threatdex.IngestionRun
	checkpoints map[string]string
	failCVEs    map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		outcomes:    map[string]datastore.Outcome{},
		checkpoints: map[string]string{},
		failCVEs:    map[string]bool{},
	}
}

func (s *fakeStore) Upsert(ctx context.Context, v *threatdex.Vulnerability, source string) (datastore.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCVEs[v.CVE] {
		return "", &threatdex.Error{Kind: threatdex.ErrTransient, Message: "simulated"}
	}
	s.upserts = append(s.upserts, v.CVE)
	if o, ok := s.outcomes[v.CVE]; ok {
		return o, nil
	}
	return datastore.Inserted, nil
}

func (s *fakeStore) UpsertArticles(ctx context.Context, arts []*threatdex.Article) (int, error) {
	return len(arts), nil
}

func (s *fakeStore) CreateRun(ctx context.Context, r *threatdex.IngestionRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = int64(len(s.runs) + 1)
	s.runs = append(s.runs, r)
	return nil
}

func (s *fakeStore) FinalizeRun(ctx context.Context, r *threatdex.IngestionRun) error {
	return nil
}

func (s *fakeStore) GetCheckpoint(ctx context.Context, job string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpoints[job], nil
}

func (s *fakeStore) SetCheckpoint(ctx context.Context, job, cursor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[job] = cursor
	return nil
}

// pagedFeeder serves n records per page until total is exhausted,
// optionally failing once at a given start index.
type pagedFeeder struct {
	total, per int
	failAt     int
	failed     bool
	fetches    []string
}

func (f *pagedFeeder) Name() string { return "paged" }

func (f *pagedFeeder) Fetch(ctx context.Context, cur feed.Cursor) (*feed.Page, error) {
	start := 0
	if cur != "" {
		var err error
		if start, err = strconv.Atoi(string(cur)); err != nil {
			return nil, err
		}
	}
	f.fetches = append(f.fetches, string(cur))
	if f.failAt != 0 && start == f.failAt && !f.failed {
		f.failed = true
		return nil, &threatdex.Error{Kind: threatdex.ErrTransient, Message: "simulated outage"}
	}
	page := &feed.Page{TotalEstimate: f.total}
	for i := start; i < start+f.per && i < f.total; i++ {
		page.Vulnerabilities = append(page.Vulnerabilities, &threatdex.Vulnerability{
			CVE: "CVE-2024-" + strconv.Itoa(10000+i),
		})
	}
	if next := start + len(page.Vulnerabilities); next < f.total {
		page.Next = feed.Cursor(strconv.Itoa(next))
	}
	return page, nil
}

func testManager(t *testing.T, s datastore.Store) *Manager {
	t.Helper()
	mr := miniredis.RunT(t)
	c := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { c.Close() })
	return NewManager(s, c)
}

func TestRunJobLifecycle(t *testing.T) {
	t.Parallel()
	s := newFakeStore()
	m := testManager(t, s)

	f := &pagedFeeder{total: 5, per: 2}
	m.Register(&Job{
		Name: "test.feed",
		Run: func(ctx context.Context, m *Manager, run *threatdex.IngestionRun) error {
			return m.Drive(ctx, f, run, "")
		},
	})

	if err := m.RunJob(context.Background(), "test.feed"); err != nil {
		t.Fatal(err)
	}
	if len(s.runs) != 1 {
		t.Fatalf("runs: %d", len(s.runs))
	}
	run := s.runs[0]
	if run.Status != threatdex.RunSuccess {
		t.Errorf("status: %q (%q)", run.Status, run.ErrorMessage)
	}
	if run.RecordsFetched != 5 || run.RecordsInserted != 5 {
		t.Errorf("counts: fetched=%d inserted=%d", run.RecordsFetched, run.RecordsInserted)
	}
	if run.CompletedAt == nil {
		t.Error("run not finalized")
	}
}

func TestRunJobUnknown(t *testing.T) {
	t.Parallel()
	m := testManager(t, newFakeStore())
	err := m.RunJob(context.Background(), "no.such.job")
	if !errors.Is(err, threatdex.ErrInvalid) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestRunJobSingleFlight(t *testing.T) {
	t.Parallel()
	s := newFakeStore()
	m := testManager(t, s)

	release := make(chan struct{})
	started := make(chan struct{})
	m.Register(&Job{
		Name: "test.slow",
		Run: func(ctx context.Context, m *Manager, run *threatdex.IngestionRun) error {
			close(started)
			<-release
			return nil
		},
	})

	done := make(chan error, 1)
	go func() { done <- m.RunJob(context.Background(), "test.slow") }()
	<-started

	// Second invocation while the first holds the lock: no-op, no run
	// row.
	if err := m.RunJob(context.Background(), "test.slow"); err != nil {
		t.Fatal(err)
	}
	if len(s.runs) != 1 {
		t.Errorf("second invocation should not create a run, have %d", len(s.runs))
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestRunJobCancelled(t *testing.T) {
	t.Parallel()
	s := newFakeStore()
	m := testManager(t, s)

	m.Register(&Job{
		Name:    "test.hang",
		Timeout: 20 * time.Millisecond,
		Run: func(ctx context.Context, m *Manager, run *threatdex.IngestionRun) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})

	err := m.RunJob(context.Background(), "test.hang")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := s.runs[0]; got.Status != threatdex.RunFailed || got.ErrorMessage != "cancelled" {
		t.Errorf("run: status=%q msg=%q", got.Status, got.ErrorMessage)
	}
}

func TestDrivePartialFailure(t *testing.T) {
	t.Parallel()
	s := newFakeStore()
	s.failCVEs["CVE-2024-10001"] = true
	m := testManager(t, s)

	f := &pagedFeeder{total: 4, per: 2}
	run := &threatdex.IngestionRun{}
	if err := m.Drive(context.Background(), f, run, ""); err != nil {
		t.Fatal(err)
	}
	if run.RecordsFailed != 1 || run.RecordsInserted != 3 || run.RecordsFetched != 4 {
		t.Errorf("counts: %+v", run)
	}
}

func TestDriveCheckpointResume(t *testing.T) {
	t.Parallel()
	s := newFakeStore()
	m := testManager(t, s)

	// 10 records, 2 per page; the fetch at index 4 fails once.
	f := &pagedFeeder{total: 10, per: 2, failAt: 4}
	run := &threatdex.IngestionRun{}
	err := m.Drive(context.Background(), f, run, "test.walk")
	if err == nil {
		t.Fatal("expected outage to surface")
	}
	if got := s.checkpoints["test.walk"]; got != "4" {
		t.Errorf("checkpoint after outage: %q, want \"4\"", got)
	}

	// The rerun resumes at index 4, not 0.
	run2 := &threatdex.IngestionRun{}
	if err := m.Drive(context.Background(), f, run2, "test.walk"); err != nil {
		t.Fatal(err)
	}
	if f.fetches[len(f.fetches)-3] != "4" {
		t.Errorf("fetch sequence: %v", f.fetches)
	}
	if run2.RecordsFetched != 6 {
		t.Errorf("resumed fetch count: %d, want 6", run2.RecordsFetched)
	}
	if got := s.checkpoints["test.walk"]; got != "" {
		t.Errorf("checkpoint after completion: %q", got)
	}
}

func TestBackfillTokenRoundTrip(t *testing.T) {
	t.Parallel()
	win := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)

	tok := backfillToken(win, "4000")
	gotWin, gotCur, err := parseBackfillToken(tok)
	if err != nil {
		t.Fatal(err)
	}
	if !gotWin.Equal(win) || gotCur != "4000" {
		t.Errorf("got %v %q", gotWin, gotCur)
	}

	// A completed window points at the next one.
	tok = backfillToken(win, "")
	gotWin, gotCur, err = parseBackfillToken(tok)
	if err != nil {
		t.Fatal(err)
	}
	if !gotWin.Equal(win.Add(backfillWindow)) || gotCur != "" {
		t.Errorf("got %v %q", gotWin, gotCur)
	}

	if _, _, err := parseBackfillToken("garbage"); err == nil {
		t.Error("expected parse error")
	}
	if w, c, err := parseBackfillToken(""); err != nil || !w.IsZero() || c != "" {
		t.Errorf("empty token: %v %q %v", w, c, err)
	}
}

func TestArgHash(t *testing.T) {
	t.Parallel()
	a := argHash(map[string]string{"start_year": "2019", "end_year": "2024"})
	b := argHash(map[string]string{"end_year": "2024", "start_year": "2019"})
	if a != b {
		t.Error("hash must be order independent")
	}
	if a == argHash(map[string]string{"start_year": "2020", "end_year": "2024"}) {
		t.Error("different args must hash differently")
	}
	if argHash(nil) != "0" {
		t.Errorf("nil args: %q", argHash(nil))
	}
}
