// Package metrics exposes Prometheus metrics for optimization sessions.
//
//   - ddm_reward_rate{run}           last reward rate returned by the policy
//   - ddm_boundary_slope{run}        current boundary slope (degrees)
//   - ddm_boundary_intercept{run}    current boundary intercept
//   - ddm_updates_total{method}      boundary updates applied
//   - ddm_trials_total               simulated trials
//   - ddm_greedy_jumps_total         accepted greedy candidates
//   - ddm_runs_total{status}         finished sessions
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its own registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	rewardRate *prometheus.GaugeVec
	slope      *prometheus.GaugeVec
	intercept  *prometheus.GaugeVec
	updates    *prometheus.CounterVec
	trials     prometheus.Counter
	jumps      prometheus.Counter
	runs       *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rewardRate: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "ddm_reward_rate", Help: "Reward rate returned by the last update."},
			[]string{"run"},
		),
		slope: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "ddm_boundary_slope", Help: "Current boundary slope in degrees."},
			[]string{"run"},
		),
		intercept: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "ddm_boundary_intercept", Help: "Current boundary intercept."},
			[]string{"run"},
		),
		updates: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "ddm_updates_total", Help: "Boundary updates applied."},
			[]string{"method"},
		),
		trials: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "ddm_trials_total", Help: "Simulated trials."},
		),
		jumps: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "ddm_greedy_jumps_total", Help: "Accepted greedy candidates."},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "ddm_runs_total", Help: "Finished optimization sessions."},
			[]string{"status"},
		),
	}
	m.registry.MustRegister(m.rewardRate, m.slope, m.intercept, m.updates, m.trials, m.jumps, m.runs)
	return m
}

// ObserveUpdate records one policy update of a run.
func (m *Metrics) ObserveUpdate(runID, method string, slope, intercept, rewardRate float64, trials int, jumped bool) {
	if m == nil {
		return
	}
	m.rewardRate.WithLabelValues(runID).Set(rewardRate)
	m.slope.WithLabelValues(runID).Set(slope)
	m.intercept.WithLabelValues(runID).Set(intercept)
	m.updates.WithLabelValues(method).Inc()
	if trials > 0 {
		m.trials.Add(float64(trials))
	}
	if jumped {
		m.jumps.Inc()
	}
}

// ObserveRunFinished counts a finished run and drops its per-run gauges.
func (m *Metrics) ObserveRunFinished(runID, status string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
	m.rewardRate.DeleteLabelValues(runID)
	m.slope.DeleteLabelValues(runID)
	m.intercept.DeleteLabelValues(runID)
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
