// Package metrics is the Prometheus surface for the consensus core,
// grounded on the teacher's api/metrics package (a named-counter-set
// registered once at construction, exposed through an accessor
// interface) generalized from Avalanche's sampling counters (prisms,
// successful, failed) to the DAG-BFT gauges and counters named in
// SPEC_FULL.md §4: blocks inserted, equivocations, commit latency, GC
// round, store discrepancies.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the accessor interface every component depends on, so call
// sites never reach for prometheus types directly.
type Metrics interface {
	BlocksInserted() prometheus.Counter
	Equivocations() prometheus.Counter
	CertificatesFormed() prometheus.Counter
	CommitsEmitted() prometheus.Counter
	SlotsSkipped() prometheus.Counter
	CommitLatency() prometheus.Histogram
	GCRound() prometheus.Gauge
	StoreDiscrepancies() prometheus.Counter
	FinalizedCommits() prometheus.Counter
}

type metrics struct {
	blocksInserted      prometheus.Counter
	equivocations       prometheus.Counter
	certificatesFormed  prometheus.Counter
	commitsEmitted      prometheus.Counter
	slotsSkipped        prometheus.Counter
	commitLatency       prometheus.Histogram
	gcRound             prometheus.Gauge
	storeDiscrepancies  prometheus.Counter
	finalizedCommits    prometheus.Counter
}

// New constructs and registers the full metric set under namespace.
func New(namespace string, registerer prometheus.Registerer) (Metrics, error) {
	m := &metrics{
		blocksInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "blocks_inserted_total", Help: "Certified blocks inserted into the DAG.",
		}),
		equivocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "equivocations_total", Help: "Equivocating blocks detected and rejected.",
		}),
		certificatesFormed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "certificates_formed_total", Help: "Locally-proposed blocks that reached quorum certification.",
		}),
		commitsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "commits_emitted_total", Help: "Commit records emitted by the commit engine.",
		}),
		slotsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "leader_slots_skipped_total", Help: "Leader slots that failed to reach quorum votes and were skipped.",
		}),
		commitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "commit_latency_seconds", Help: "Time from leader-block timestamp to commit emission.",
			Buckets: prometheus.DefBuckets,
		}),
		gcRound: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "gc_round", Help: "Current garbage-collection frontier round.",
		}),
		storeDiscrepancies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "store_discrepancies_total", Help: "Discrepancies observed in comparing-store mode.",
		}),
		finalizedCommits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "finalized_commits_total", Help: "FinalizedCommits produced by the finalizer.",
		}),
	}

	collectors := []prometheus.Collector{
		m.blocksInserted, m.equivocations, m.certificatesFormed, m.commitsEmitted,
		m.slotsSkipped, m.commitLatency, m.gcRound, m.storeDiscrepancies, m.finalizedCommits,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *metrics) BlocksInserted() prometheus.Counter      { return m.blocksInserted }
func (m *metrics) Equivocations() prometheus.Counter       { return m.equivocations }
func (m *metrics) CertificatesFormed() prometheus.Counter  { return m.certificatesFormed }
func (m *metrics) CommitsEmitted() prometheus.Counter      { return m.commitsEmitted }
func (m *metrics) SlotsSkipped() prometheus.Counter        { return m.slotsSkipped }
func (m *metrics) CommitLatency() prometheus.Histogram     { return m.commitLatency }
func (m *metrics) GCRound() prometheus.Gauge               { return m.gcRound }
func (m *metrics) StoreDiscrepancies() prometheus.Counter  { return m.storeDiscrepancies }
func (m *metrics) FinalizedCommits() prometheus.Counter    { return m.finalizedCommits }
