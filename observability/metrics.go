// Copyright (C) 2025 Lurelab (engineering@lurelab.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the honeypot.
//
// # Description
//
// Metrics cover the inbound conversation endpoint, scam confirmations,
// artifact capture, and callback delivery. They are exposed on /metrics and
// are intended for Prometheus + Grafana.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "scamlure"

const honeypotSubsystem = "honeypot"

// HoneypotMetrics holds all Prometheus metrics for the service.
//
// # Fields
//
//   - RequestsTotal: inbound requests by endpoint and status
//   - TurnDurationSeconds: end-to-end latency of one conversation turn
//   - ScamsConfirmedTotal: sessions whose verdict flipped to scam, by type
//   - ArtifactsCapturedTotal: artifacts merged into intel graphs, by kind
//   - SessionsFinalizedTotal: finalized sessions by status
//   - CallbackAttemptsTotal: callback POST attempts by outcome
//   - CallbackQueueDepth: entries currently waiting in the retry queue
type HoneypotMetrics struct {
	RequestsTotal          *prometheus.CounterVec
	TurnDurationSeconds    *prometheus.HistogramVec
	ScamsConfirmedTotal    *prometheus.CounterVec
	ArtifactsCapturedTotal *prometheus.CounterVec
	SessionsFinalizedTotal *prometheus.CounterVec
	CallbackAttemptsTotal  *prometheus.CounterVec
	CallbackQueueDepth     prometheus.Gauge
}

// DefaultMetrics is the singleton instance, initialized by InitMetrics().
// Code paths that run under tests must tolerate it being nil.
var DefaultMetrics *HoneypotMetrics

// InitMetrics creates and registers all metrics. Call once at startup;
// duplicate registration panics.
func InitMetrics() *HoneypotMetrics {
	DefaultMetrics = &HoneypotMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: honeypotSubsystem,
				Name:      "requests_total",
				Help:      "Total inbound requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		TurnDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: honeypotSubsystem,
				Name:      "turn_duration_seconds",
				Help:      "End-to-end latency of one conversation turn",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"status"},
		),
		ScamsConfirmedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: honeypotSubsystem,
				Name:      "scams_confirmed_total",
				Help:      "Sessions whose verdict flipped to scam, by scam type",
			},
			[]string{"scam_type"},
		),
		ArtifactsCapturedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: honeypotSubsystem,
				Name:      "artifacts_captured_total",
				Help:      "Artifacts merged into intel graphs, by kind",
			},
			[]string{"kind"},
		),
		SessionsFinalizedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: honeypotSubsystem,
				Name:      "sessions_finalized_total",
				Help:      "Finalized sessions by callback status",
			},
			[]string{"status"},
		),
		CallbackAttemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: honeypotSubsystem,
				Name:      "callback_attempts_total",
				Help:      "Callback POST attempts by outcome",
			},
			[]string{"outcome"},
		),
		CallbackQueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: honeypotSubsystem,
				Name:      "callback_queue_depth",
				Help:      "Entries currently waiting in the retry queue",
			},
		),
	}
	return DefaultMetrics
}

// ObserveRequest records one inbound request. Safe to call before
// InitMetrics.
func ObserveRequest(endpoint, status string) {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.RequestsTotal.WithLabelValues(endpoint, status).Inc()
}

// ObserveTurn records one turn's latency. Safe to call before InitMetrics.
func ObserveTurn(status string, seconds float64) {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.TurnDurationSeconds.WithLabelValues(status).Observe(seconds)
}

// ObserveCallbackAttempt records one delivery attempt outcome. Safe to call
// before InitMetrics.
func ObserveCallbackAttempt(outcome string) {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.CallbackAttemptsTotal.WithLabelValues(outcome).Inc()
}

// SetCallbackQueueDepth publishes the retry queue length. Safe to call
// before InitMetrics.
func SetCallbackQueueDepth(depth int) {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.CallbackQueueDepth.Set(float64(depth))
}

// ObserveFinalized records one session finalization. Safe to call before
// InitMetrics.
func ObserveFinalized(status string) {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.SessionsFinalizedTotal.WithLabelValues(status).Inc()
}

// ObserveScamConfirmed records one scam verdict flip. Safe to call before
// InitMetrics.
func ObserveScamConfirmed(scamType string) {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.ScamsConfirmedTotal.WithLabelValues(scamType).Inc()
}

// ObserveArtifact records one newly merged artifact. Safe to call before
// InitMetrics.
func ObserveArtifact(kind string) {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.ArtifactsCapturedTotal.WithLabelValues(kind).Inc()
}
