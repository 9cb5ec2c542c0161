// Package metrics instruments the filter manager and its vacuum with
// Prometheus collectors, in the style the rest of the retrieved example
// pack reaches for github.com/prometheus/client_golang rather than
// hand-rolled counters. No HTTP exporter is wired here — serving
// /metrics is a network front-end concern, out of scope per spec.md §1.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector is nil-safe: every method on a nil *Collector is a no-op, so
// callers that don't care about metrics can pass nil straight through.
type Collector struct {
	checkpoints    prometheus.Counter
	leaves         prometheus.Counter
	mutations      *prometheus.CounterVec
	headVersion    prometheus.Gauge
	liveEntries    prometheus.Gauge
	vacuumPass     prometheus.Histogram
	vacuumDisposed prometheus.Counter
	vacuumWarned   prometheus.Counter
}

// NewCollector registers a fresh set of collectors against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the default
// global registry across test runs.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		checkpoints: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bloomd_checkpoints_total",
			Help: "Number of client checkpoint calls.",
		}),
		leaves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bloomd_leaves_total",
			Help: "Number of client leave calls.",
		}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bloomd_mutations_total",
			Help: "Number of mutator calls by kind and result.",
		}, []string{"kind", "result"}),
		headVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bloomd_head_version",
			Help: "Version of the current head snapshot.",
		}),
		liveEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bloomd_live_entries",
			Help: "Number of active entries in the current head snapshot.",
		}),
		vacuumPass: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bloomd_vacuum_pass_duration_seconds",
			Help:    "Duration of a vacuum pass.",
			Buckets: prometheus.DefBuckets,
		}),
		vacuumDisposed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bloomd_vacuum_disposed_total",
			Help: "Entries and snapshots reclaimed by the vacuum.",
		}),
		vacuumWarned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bloomd_vacuum_warnings_total",
			Help: "Vacuum passes that observed an outstanding-version backlog past the warn threshold.",
		}),
	}

	reg.MustRegister(
		c.checkpoints, c.leaves, c.mutations,
		c.headVersion, c.liveEntries,
		c.vacuumPass, c.vacuumDisposed, c.vacuumWarned,
	)
	return c
}

func (c *Collector) Checkpoint() {
	if c == nil {
		return
	}
	c.checkpoints.Inc()
}

func (c *Collector) Leave() {
	if c == nil {
		return
	}
	c.leaves.Inc()
}

func (c *Collector) Mutation(kind, result string) {
	if c == nil {
		return
	}
	c.mutations.WithLabelValues(kind, result).Inc()
}

func (c *Collector) SetHeadVersion(v uint64) {
	if c == nil {
		return
	}
	c.headVersion.Set(float64(v))
}

func (c *Collector) SetLiveEntries(n int) {
	if c == nil {
		return
	}
	c.liveEntries.Set(float64(n))
}

func (c *Collector) ObserveVacuumPass(seconds float64, disposed int) {
	if c == nil {
		return
	}
	c.vacuumPass.Observe(seconds)
	c.vacuumDisposed.Add(float64(disposed))
}

func (c *Collector) WarnBacklog() {
	if c == nil {
		return
	}
	c.vacuumWarned.Inc()
}
