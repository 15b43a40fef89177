package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "crossword"

// Metrics holds the Prometheus collectors for the registry. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	// PuzzlesCreated counts puzzles added by the owner.
	PuzzlesCreated prometheus.Counter

	// Submissions counts solution submissions.
	// Labels: result (solved, not_found, already_solved, error)
	Submissions *prometheus.CounterVec

	// Rewards counts reward transfers by outcome.
	// Labels: status (queued, dropped, sent, failed)
	Rewards *prometheus.CounterVec

	// UnsolvedPuzzles tracks the size of the unsolved index.
	UnsolvedPuzzles prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PuzzlesCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "puzzles_created_total",
			Help:      "Total number of puzzles created",
		}),
		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "solution_submissions_total",
			Help:      "Total number of solution submissions by result",
		}, []string{"result"}),
		Rewards: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reward_transfers_total",
			Help:      "Total number of reward transfers by status",
		}, []string{"status"}),
		UnsolvedPuzzles: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "unsolved_puzzles",
			Help:      "Number of puzzles waiting for a solver",
		}),
	}
}

func (m *Metrics) puzzleCreated() {
	if m == nil {
		return
	}
	m.PuzzlesCreated.Inc()
	m.UnsolvedPuzzles.Inc()
}

func (m *Metrics) submission(result string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(result).Inc()
	if result == "solved" {
		m.UnsolvedPuzzles.Dec()
	}
}

func (m *Metrics) reward(status string) {
	if m == nil {
		return
	}
	m.Rewards.WithLabelValues(status).Inc()
}

func (m *Metrics) setUnsolved(n int) {
	if m == nil {
		return
	}
	m.UnsolvedPuzzles.Set(float64(n))
}
