package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CacheHits counts blockcache.Cache hits by collection name.
	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datahost_block_cache_hits_total",
			Help: "Block cache hits by collection",
		},
		[]string{"collection"},
	)

	// CacheMisses counts blockcache.Cache misses (materialized from disk) by
	// collection name.
	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datahost_block_cache_misses_total",
			Help: "Block cache misses by collection",
		},
		[]string{"collection"},
	)

	// LockConflicts counts dberr.Conflict occurrences by collection.
	LockConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datahost_lock_conflicts_total",
			Help: "Transactional lock write conflicts by collection",
		},
		[]string{"collection"},
	)

	// CommitDuration times blockfile.File.Commit by collection.
	CommitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datahost_commit_duration_seconds",
			Help:    "Block file commit duration by collection",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collection"},
	)

	// BTreeSplits counts node splits performed during insertion, by index
	// name.
	BTreeSplits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datahost_btree_splits_total",
			Help: "B-Tree node splits performed during insert, by index",
		},
		[]string{"index"},
	)

	// BTreeTombstones counts keys tombstoned by delete operations.
	BTreeTombstones = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datahost_btree_tombstones_total",
			Help: "Keys tombstoned by delete, by index",
		},
		[]string{"index"},
	)

	// TableIndexSelected counts which index (primary or named auxiliary) the
	// query planner chose to serve a slice or order_by, by table and index
	// name.
	TableIndexSelected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datahost_table_index_selected_total",
			Help: "Query planner index selections by table and index name",
		},
		[]string{"table", "index"},
	)
)

func init() {
	prometheus.MustRegister(
		CacheHits,
		CacheMisses,
		LockConflicts,
		CommitDuration,
		BTreeSplits,
		BTreeTombstones,
		TableIndexSelected,
	)
}

// Handler returns the Prometheus HTTP handler, mounted by cmd/datahost's
// serve-metrics subcommand.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
