package main

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func prometheusTestRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	return testutil.ToFloat64(c)
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	return testutil.ToFloat64(g)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.puzzleCreated()
	m.submission("solved")
	m.reward("sent")
	m.setUnsolved(3)
}

func TestMetricsRegisterOnOwnRegistry(t *testing.T) {
	// Two instances must not collide when each has its own registry.
	a := NewMetrics(prometheusTestRegistry())
	b := NewMetrics(prometheusTestRegistry())
	a.setUnsolved(2)
	b.setUnsolved(5)

	if got := gaugeValue(t, a.UnsolvedPuzzles); got != 2 {
		t.Fatalf("expected 2, got %v", got)
	}
	if got := gaugeValue(t, b.UnsolvedPuzzles); got != 5 {
		t.Fatalf("expected 5, got %v", got)
	}
}
