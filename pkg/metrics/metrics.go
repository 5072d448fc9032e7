package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Block server metrics
	BlockNodesStored = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mckoi_block_nodes_stored",
			Help: "Number of immutable nodes currently held by this block server",
		},
	)

	BlockReadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mckoi_block_reads_total",
			Help: "Total block server reads by outcome (hit, not_found, corrupt)",
		},
		[]string{"outcome"},
	)

	BlockWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mckoi_block_writes_total",
			Help: "Total block server writes by outcome (ok, conflict, error)",
		},
		[]string{"outcome"},
	)

	// Manager directory metrics
	ManagerNodesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mckoi_manager_directory_nodes_total",
			Help: "Number of node ids tracked in the manager's directory",
		},
	)

	ManagerBlockServersByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mckoi_manager_block_servers",
			Help: "Number of registered block servers by liveness status",
		},
		[]string{"status"},
	)

	ManagerRaftIsLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mckoi_manager_raft_is_leader",
			Help: "Whether this manager is the Raft leader for the directory (1 = leader)",
		},
	)

	ManagerAllocateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mckoi_manager_allocate_duration_seconds",
			Help:    "Time taken to allocate a batch of node ids",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Root server commit metrics
	RootCommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mckoi_root_commits_total",
			Help: "Total commit attempts by path and outcome (ok, fault_base_too_old, fault_conflict, merge_needed)",
		},
		[]string{"path", "outcome"},
	)

	RootCommitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mckoi_root_commit_duration_seconds",
			Help:    "Time the commit critical section holds the per-path lock",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	RootHistoryDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mckoi_root_history_depth",
			Help: "Number of retained history entries per path",
		},
		[]string{"path"},
	)

	RootTxnCacheBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mckoi_root_txn_cache_bytes",
			Help: "Bytes currently held in a path's transaction cache",
		},
		[]string{"path"},
	)

	// Client tree-store / cache metrics
	NodeCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mckoi_node_cache_hits_total",
			Help: "Node read cache hits",
		},
	)

	NodeCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mckoi_node_cache_misses_total",
			Help: "Node read cache misses (each missing lookup counts, even when concurrent misses share one decode)",
		},
	)

	FlushedNodesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mckoi_flushed_nodes_total",
			Help: "Total dirty nodes flushed to block servers across all transactions",
		},
	)

	GCSweepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mckoi_gc_sweeps_total",
			Help: "Background GC sweeps by path and outcome",
		},
		[]string{"path", "outcome"},
	)

	GCReclaimedNodesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mckoi_gc_reclaimed_nodes_total",
			Help: "Nodes released to the manager by GC sweeps, per path",
		},
		[]string{"path"},
	)

	// Session (client) metrics
	SessionCommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mckoi_session_commits_total",
			Help: "Total commit attempts made by client sessions, by path and outcome (ok, fault, merge_needed, error)",
		},
		[]string{"path", "outcome"},
	)

	SessionRPCRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mckoi_session_rpc_retries_total",
			Help: "RPCs retried against a different replica/manager after any error, by rpc kind",
		},
		[]string{"rpc"},
	)
)

func init() {
	prometheus.MustRegister(
		BlockNodesStored,
		BlockReadsTotal,
		BlockWritesTotal,
		ManagerNodesTotal,
		ManagerBlockServersByStatus,
		ManagerRaftIsLeader,
		ManagerAllocateDuration,
		RootCommitsTotal,
		RootCommitDuration,
		RootHistoryDepth,
		RootTxnCacheBytes,
		NodeCacheHitsTotal,
		NodeCacheMissesTotal,
		FlushedNodesTotal,
		GCSweepsTotal,
		GCReclaimedNodesTotal,
		SessionCommitsTotal,
		SessionRPCRetriesTotal,
	)
}

// Handler returns the Prometheus scrape handler. No command in this tree
// mounts it or starts an HTTP listener for it.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a small helper for timing an operation into a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
