// Package poolstats exports pgxpool statistics as prometheus metrics.
package poolstats

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

var _ prometheus.Collector = (*Collector)(nil)

// Stater is implemented by pgxpool.Pool.
type Stater interface {
	Stat() *pgxpool.Stat
}

type metric struct {
	desc *prometheus.Desc
	kind prometheus.ValueType
	read func(*pgxpool.Stat) float64
}

// Collector reports the pool gauges and counters pgxpool tracks.
type Collector struct {
	name    string
	stat    func() *pgxpool.Stat
	metrics []metric
}

// NewCollector creates a Collector reading from the provided pool. The
// application name distinguishes pools when a process opens several.
func NewCollector(s Stater, appname string) *Collector {
	labels := []string{"application_name"}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("pgxpool_"+name, help, labels, nil)
	}
	return &Collector{
		name: appname,
		stat: s.Stat,
		metrics: []metric{
			{desc("acquire_count", "Cumulative count of successful acquires from the pool."),
				prometheus.CounterValue, func(s *pgxpool.Stat) float64 { return float64(s.AcquireCount()) }},
			{desc("acquire_duration_seconds_total", "Total duration of all successful acquires from the pool."),
				prometheus.CounterValue, func(s *pgxpool.Stat) float64 { return s.AcquireDuration().Seconds() }},
			{desc("acquired_conns", "Number of currently acquired connections."),
				prometheus.GaugeValue, func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }},
			{desc("canceled_acquire_count", "Cumulative count of acquires canceled by a context."),
				prometheus.CounterValue, func(s *pgxpool.Stat) float64 { return float64(s.CanceledAcquireCount()) }},
			{desc("constructing_conns", "Number of conns with construction in progress."),
				prometheus.GaugeValue, func(s *pgxpool.Stat) float64 { return float64(s.ConstructingConns()) }},
			{desc("empty_acquire", "Cumulative count of acquires that waited because the pool was empty."),
				prometheus.CounterValue, func(s *pgxpool.Stat) float64 { return float64(s.EmptyAcquireCount()) }},
			{desc("idle_conns", "Number of currently idle conns."),
				prometheus.GaugeValue, func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }},
			{desc("max_conns", "Maximum size of the pool."),
				prometheus.GaugeValue, func(s *pgxpool.Stat) float64 { return float64(s.MaxConns()) }},
			{desc("total_conns", "Total number of connections currently in the pool."),
				prometheus.GaugeValue, func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }},
			{desc("new_conns_count", "Cumulative count of new connections opened."),
				prometheus.CounterValue, func(s *pgxpool.Stat) float64 { return float64(s.NewConnsCount()) }},
			{desc("max_lifetime_destroy_count", "Cumulative count of connections destroyed because they exceeded the max lifetime."),
				prometheus.CounterValue, func(s *pgxpool.Stat) float64 { return float64(s.MaxLifetimeDestroyCount()) }},
			{desc("max_idle_destroy_count", "Cumulative count of connections destroyed because they exceeded the max idle time."),
				prometheus.CounterValue, func(s *pgxpool.Stat) float64 { return float64(s.MaxIdleDestroyCount()) }},
		},
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for i := range c.metrics {
		ch <- c.metrics[i].desc
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.stat()
	for i := range c.metrics {
		m := &c.metrics[i]
		ch <- prometheus.MustNewConstMetric(m.desc, m.kind, m.read(s), c.name)
	}
}
