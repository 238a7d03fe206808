// Package metrics exports process-wide Prometheus counters for the
// substrate (SPEC_FULL.md §3/§4.5 EXPANSION), mirroring the teacher's
// `lib/metrics` + `cmd/serve` wiring: a package-level registry, a
// `Handler` for mounting under an HTTP mux, and counters named with
// this module's own prefix the way the teacher's retained metrics test
// expects a `rclone_`-prefixed counter name from its own registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

var (
	// EnvelopeAccepted counts agent executions the envelope accepted
	// (SPEC_FULL.md §4.5: "agent_envelope_accepted_total").
	EnvelopeAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_envelope_accepted_total",
		Help: "Number of agent callback executions accepted as deterministic.",
	})

	// EnvelopeRejected counts rejections, labeled by the errno reason
	// returned to the caller ("agent_envelope_rejected_total{reason}").
	EnvelopeRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_envelope_rejected_total",
		Help: "Number of agent callback executions rejected, by reason.",
	}, []string{"reason"})

	// ReplayMismatches accumulates the per-execution mismatch counts a
	// replay.Backend reports, across every envelope run in this process.
	ReplayMismatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "replay_mismatches_total",
		Help: "Total structural mismatches observed by the replay backend.",
	})

	// OpsTotal counts VFS operations by kind, the same breakdown the
	// replay log already records per call.
	OpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vfs_ops_total",
		Help: "VFS operations processed, by operation kind.",
	}, []string{"op"})

	// BytesWritten sums the bytes committed across every write-context
	// commit, independent of which mount or backend received them.
	BytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vfs_bytes_written_total",
		Help: "Total bytes committed to backends via the write layer.",
	})
)

// Handler returns the Prometheus scrape endpoint handler, for mounting
// under the `nvim-agentfs serve` command's HTTP mux (EXPANSION, ambient).
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAccept increments the accepted counter. Called from
// internal/agent once ExecuteVerified decides to accept.
func RecordAccept() {
	EnvelopeAccepted.Inc()
}

// RecordReject increments the rejected counter for the given errno
// reason's name.
func RecordReject(reason string) {
	EnvelopeRejected.WithLabelValues(reason).Inc()
}

// RecordReplayMismatches adds n to the running mismatch total.
func RecordReplayMismatches(n uint64) {
	ReplayMismatches.Add(float64(n))
}

// RecordOp increments the per-kind operation counter.
func RecordOp(op string) {
	OpsTotal.WithLabelValues(op).Inc()
}

// RecordBytesWritten adds n to the running committed-bytes total.
func RecordBytesWritten(n int) {
	if n > 0 {
		BytesWritten.Add(float64(n))
	}
}
