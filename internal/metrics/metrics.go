// Package metrics exposes Prometheus collectors for reptation runs.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Move results used as the "result" label.
const (
	ResultAccepted  = "accepted"
	ResultRejected  = "rejected"
	ResultNumerical = "numerical"
)

// Metrics groups the run collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	moves        *prometheus.CounterVec
	branchWeight prometheus.Histogram
	checkpoints  prometheus.Counter
	blockEnergy  *prometheus.GaugeVec
	blocks       *prometheus.CounterVec
}

// New registers the collectors on reg. Tests pass a fresh
// prometheus.NewRegistry() so runs do not collide.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		moves: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reptation_moves_total",
			Help: "Slither moves by replica and result",
		}, []string{"replica", "result"}),
		branchWeight: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "reptation_branch_weight",
			Help:    "Branching weight of accepted beads",
			Buckets: prometheus.ExponentialBuckets(0.125, 2, 8),
		}),
		checkpoints: factory.NewCounter(prometheus.CounterOpts{
			Name: "reptation_checkpoint_writes_total",
			Help: "Checkpoint files written",
		}),
		blockEnergy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "reptation_block_energy",
			Help: "Center-averaged local energy of the last finished block",
		}, []string{"replica"}),
		blocks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reptation_blocks_total",
			Help: "Finished blocks by replica",
		}, []string{"replica"}),
	}
}

func (m *Metrics) ObserveMove(replica int, result string) {
	if m == nil {
		return
	}
	m.moves.WithLabelValues(strconv.Itoa(replica), result).Inc()
}

func (m *Metrics) ObserveBranchWeight(w float64) {
	if m == nil {
		return
	}
	m.branchWeight.Observe(w)
}

func (m *Metrics) ObserveBlock(replica int, centerEnergy float64) {
	if m == nil {
		return
	}
	label := strconv.Itoa(replica)
	m.blocks.WithLabelValues(label).Inc()
	m.blockEnergy.WithLabelValues(label).Set(centerEnergy)
}

func (m *Metrics) CheckpointWritten() {
	if m == nil {
		return
	}
	m.checkpoints.Inc()
}
