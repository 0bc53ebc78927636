// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exports transaction outcomes and instrument readings to
// Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Thermoquad/powerbench/internal/poller"
	"github.com/Thermoquad/powerbench/pkg/bench"
)

// Metrics is a bench.Observer backed by its own registry
type Metrics struct {
	registry *prometheus.Registry

	attempts     *prometheus.CounterVec
	transactions *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	switches     *prometheus.CounterVec
	readings     *prometheus.GaugeVec
	up           *prometheus.GaugeVec
}

// New creates and registers every collector
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "powerbench_attempts_total",
				Help: "Send/receive exchanges by outcome (ok or error kind)",
			},
			[]string{"family", "result"},
		),
		transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "powerbench_transactions_total",
				Help: "Logical commands by final outcome",
			},
			[]string{"family", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "powerbench_transaction_duration_seconds",
				Help:    "Time from first send to final outcome, retries included",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"family"},
		),
		switches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "powerbench_remote_switches_total",
				Help: "Local-mode recoveries",
			},
			[]string{"family"},
		),
		readings: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "powerbench_reading",
				Help: "Last sampled instrument value",
			},
			[]string{"instrument", "family", "quantity"},
		),
		up: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "powerbench_instrument_up",
				Help: "1 if the instrument answered the last poll",
			},
			[]string{"instrument", "family"},
		),
	}
	m.registry.MustRegister(m.attempts, m.transactions, m.duration, m.switches, m.readings, m.up)
	return m
}

func result(err error) string {
	if err == nil {
		return "ok"
	}
	return bench.KindOf(err).String()
}

// ObserveAttempt implements bench.Observer
func (m *Metrics) ObserveAttempt(a bench.Attempt) {
	m.attempts.WithLabelValues(a.Family, result(a.Err)).Inc()
}

// ObserveTransaction implements bench.Observer
func (m *Metrics) ObserveTransaction(s bench.Summary) {
	m.transactions.WithLabelValues(s.Family, result(s.Err)).Inc()
	m.duration.WithLabelValues(s.Family).Observe(s.Elapsed.Seconds())
	if s.Recovered {
		m.switches.WithLabelValues(s.Family).Inc()
	}
}

// ObserveSnapshot records the values of one poll cycle
func (m *Metrics) ObserveSnapshot(snap poller.Snapshot) {
	for _, r := range snap.Readings {
		if !r.OK() {
			m.up.WithLabelValues(r.Instrument, r.Family).Set(0)
			continue
		}
		m.up.WithLabelValues(r.Instrument, r.Family).Set(1)
		for q, v := range r.Values {
			m.readings.WithLabelValues(r.Instrument, r.Family, q).Set(v)
		}
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

var _ bench.Observer = (*Metrics)(nil)
