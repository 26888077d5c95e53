// Package updates schedules and drives the ingestion jobs.
//
// A Manager owns a registry of named jobs, runs each on its own
// interval, caps cross-job concurrency with a weighted semaphore, and
// single-flights every (job, argument) pair across workers with a
// distributed lock. Every invocation leaves an ingestion-run audit row
// behind, whatever the outcome.
package updates

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/quay/zlog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/threatdex/threatdex"
	"github.com/threatdex/threatdex/cache"
	"github.com/threatdex/threatdex/datastore"
)

// Defaults for job framing.
const (
	DefaultBatchSize = 4
	DefaultTimeout   = time.Hour
	DefaultLockLease = 15 * time.Minute
)

// JobFunc does one run's work, updating the run's counters as it goes.
//
// Per-record failures are counted on the run, never returned; a JobFunc
// returns an error only for job-framing failures (cancellation, timeout,
// unrecoverable storage loss).
type JobFunc func(ctx context.Context, m *Manager, run *threatdex.IngestionRun) error

// Job is one schedulable ingestion task.
type Job struct {
	Name string
	// Interval between scheduled runs; zero means on-demand only.
	Interval time.Duration
	// Timeout is the hard ceiling for one run; zero uses the manager
	// default.
	Timeout time.Duration
	// Args is recorded on the audit row and folded into the
	// single-flight key.
	Args map[string]string
	Run  JobFunc
}

// Manager oversees the registration and invocation of ingestion jobs.
//
// The Manager may be used one-shot via RunJob, configured to run
// background jobs via Start, or both.
type Manager struct {
	store datastore.Store
	cache *cache.Client

	jobs map[string]*Job
	// max in-flight jobs.
	sem       *semaphore.Weighted
	timeout   time.Duration
	lockLease time.Duration
}

// NewManager returns a manager ready to have jobs registered.
func NewManager(store datastore.Store, c *cache.Client, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:     store,
		cache:     c,
		jobs:      make(map[string]*Job),
		timeout:   DefaultTimeout,
		lockLease: DefaultLockLease,
	}
	batch := DefaultBatchSize
	for _, opt := range opts {
		opt(m, &batch)
	}
	m.sem = semaphore.NewWeighted(int64(batch))
	return m
}

// Store exposes the datastore to job funcs.
func (m *Manager) Store() datastore.Store { return m.store }

// Cache exposes the cache client to job funcs.
func (m *Manager) Cache() *cache.Client { return m.cache }

// Register adds a job. Registering a duplicate name is a programmer
// error.
func (m *Manager) Register(j *Job) {
	if _, ok := m.jobs[j.Name]; ok {
		panic(fmt.Sprintf("duplicate job registration: %q", j.Name))
	}
	m.jobs[j.Name] = j
}

// Start runs every job with a nonzero interval until the context is
// canceled. Each job ticks independently.
//
// Start is designed to be run as a goroutine.
func (m *Manager) Start(ctx context.Context) error {
	ctx = zlog.ContextWithValues(ctx, "component", "updates/Manager.Start")
	eg, ctx := errgroup.WithContext(ctx)
	for _, j := range m.jobs {
		if j.Interval == 0 {
			continue
		}
		j := j
		eg.Go(func() error {
			zlog.Info(ctx).
				Str("job", j.Name).
				Str("interval", j.Interval.String()).
				Msg("starting scheduled job")
			t := time.NewTicker(j.Interval)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-t.C:
					if err := m.RunJob(ctx, j.Name); err != nil {
						zlog.Error(ctx).Str("job", j.Name).Err(err).Msg("scheduled run failed")
					}
				}
			}
		})
	}
	return eg.Wait()
}

// RunJob invokes one registered job now.
//
// The run is single-flighted: if another worker holds the job's lock,
// RunJob returns nil without working. Cancellation and timeout finalize
// the audit row as failed with reason "cancelled".
func (m *Manager) RunJob(ctx context.Context, name string) error {
	job, ok := m.jobs[name]
	if !ok {
		return &threatdex.Error{
			Op:      "updates/Manager.RunJob",
			Kind:    threatdex.ErrInvalid,
			Message: fmt.Sprintf("unknown job %q", name),
		}
	}
	ctx = zlog.ContextWithValues(ctx,
		"component", "updates/Manager.RunJob",
		"job", name)

	if err := m.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.sem.Release(1)

	lock, err := m.cache.TryLock(ctx, "job:"+name+":"+argHash(job.Args), m.lockLease)
	if err != nil {
		return err
	}
	if lock == nil {
		zlog.Debug(ctx).Msg("another worker holds the job, skipping")
		return nil
	}
	defer lock.Release(ctx)

	run := &threatdex.IngestionRun{
		Ref:       uuid.New(),
		Source:    name,
		Status:    threatdex.RunRunning,
		StartedAt: time.Now().UTC(),
		Config:    job.Args,
	}
	if err := m.store.CreateRun(ctx, run); err != nil {
		return err
	}
	zlog.Info(ctx).Stringer("ref", run.Ref).Msg("starting run")

	timeout := job.Timeout
	if timeout == 0 {
		timeout = m.timeout
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	runErr := job.Run(tctx, m, run)
	cancel()

	done := time.Now().UTC()
	run.CompletedAt = &done
	run.Duration = done.Sub(run.StartedAt).Seconds()
	switch {
	case runErr == nil:
		run.Status = threatdex.RunSuccess
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		run.Status = threatdex.RunFailed
		run.ErrorMessage = "cancelled"
	default:
		run.Status = threatdex.RunFailed
		run.ErrorMessage = runErr.Error()
	}
	if err := m.store.FinalizeRun(ctx, run); err != nil {
		zlog.Error(ctx).Stringer("ref", run.Ref).Err(err).Msg("failed to finalize run")
	}
	zlog.Info(ctx).
		Stringer("ref", run.Ref).
		Str("status", run.Status).
		Int64("fetched", run.RecordsFetched).
		Int64("inserted", run.RecordsInserted).
		Int64("updated", run.RecordsUpdated).
		Int64("failed", run.RecordsFailed).
		Msg("finished run")
	return runErr
}

// argHash folds the argument set into the single-flight key, so the same
// job with different arguments may run concurrently.
func argHash(args map[string]string) string {
	if len(args) == 0 {
		return "0"
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := sha256.New()
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s;", k, args[k])
	}
	return hex.EncodeToString(h.Sum(nil)[:8])
}
