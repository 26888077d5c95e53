package updates

import "time"

// ManagerOption configures a Manager at construction.
type ManagerOption func(m *Manager, batch *int)

// WithBatchSize caps how many jobs may be in flight at once in this
// process.
func WithBatchSize(n int) ManagerOption {
	return func(m *Manager, batch *int) {
		if n > 0 {
			*batch = n
		}
	}
}

// WithTimeout sets the default per-run ceiling for jobs that do not
// carry their own.
func WithTimeout(d time.Duration) ManagerOption {
	return func(m *Manager, _ *int) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLockLease sets the single-flight lock lease. The lease should
// comfortably exceed the slowest expected run of the fastest-ticking
// job.
func WithLockLease(d time.Duration) ManagerOption {
	return func(m *Manager, _ *int) {
		if d > 0 {
			m.lockLease = d
		}
	}
}
