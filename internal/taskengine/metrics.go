package taskengine

import "github.com/prometheus/client_golang/prometheus"

// metrics mirrors the teacher's promSecsPerState/promBytesReplicated pair
// from internal/replication/logic, relabeled for gazpacho's run states and
// dataset identities instead of replication filesystems.
type metrics struct {
	secsPerState    *prometheus.HistogramVec
	bytesReplicated *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		secsPerState: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gazpacho",
			Subsystem: "task",
			Name:      "seconds_per_state",
			Help:      "Wall-clock seconds a task run spent before reaching each state.",
		}, []string{"state"}),
		bytesReplicated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gazpacho",
			Subsystem: "task",
			Name:      "bytes_replicated_total",
			Help:      "Total bytes streamed to a destination, per dataset.",
		}, []string{"dataset"}),
	}
	if reg != nil {
		reg.MustRegister(m.secsPerState, m.bytesReplicated)
	}
	return m
}
