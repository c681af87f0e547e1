// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides the Prometheus counters and histograms the
// orchestrator increments inline on its hot path. Metric export itself is
// out of core scope; the counters are ambient instrumentation every
// pipeline stage carries regardless.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace  = "guardian"
	pipelineSubsystem = "pipeline"
)

// Metrics holds every counter/histogram/gauge the orchestrator updates.
// Construct once via NewMetrics and share the instance across loops.
type Metrics struct {
	// InfectionsTotal counts detected infections by correlator scope.
	InfectionsTotal *prometheus.CounterVec

	// QuarantineEventsTotal counts quarantine/release/drain transitions.
	// Labels: event (quarantined, released, drained)
	QuarantineEventsTotal *prometheus.CounterVec

	// ApprovalEventsTotal counts approval-queue transitions.
	// Labels: event (requested, approved, rejected, heal_now)
	ApprovalEventsTotal *prometheus.CounterVec

	// HealingAttemptsTotal counts healer.Step outcomes.
	// Labels: diagnosis_kind, action, success
	HealingAttemptsTotal *prometheus.CounterVec

	// HealingsResolvedTotal counts terminal healing outcomes.
	// Labels: outcome (healthy, exhausted)
	HealingsResolvedTotal *prometheus.CounterVec

	// ProbationDurationTicks observes how many ticks an agent spent in
	// PROBATION before resolving, successful or not.
	ProbationDurationTicks prometheus.Histogram

	// AgentsInPhase tracks the current fleet distribution across lifecycle
	// phases. Labels: phase
	AgentsInPhase *prometheus.GaugeVec
}

// NewMetrics registers and returns a new Metrics instance. Panics on
// duplicate registration, matching promauto's behavior; callers construct
// exactly one Metrics per process.
func NewMetrics() *Metrics {
	return &Metrics{
		InfectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "infections_total",
				Help:      "Total infections detected, by correlator scope",
			},
			[]string{"scope"},
		),
		QuarantineEventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "quarantine_events_total",
				Help:      "Quarantine controller events by kind",
			},
			[]string{"event"},
		),
		ApprovalEventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "approval_events_total",
				Help:      "Approval queue events by kind",
			},
			[]string{"event"},
		),
		HealingAttemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "healing_attempts_total",
				Help:      "Healer.Step outcomes by diagnosis kind, action, and success",
			},
			[]string{"diagnosis_kind", "action", "success"},
		),
		HealingsResolvedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "healings_resolved_total",
				Help:      "Terminal healing outcomes by resolution",
			},
			[]string{"outcome"},
		),
		ProbationDurationTicks: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "probation_duration_ticks",
				Help:      "Number of probation ticks elapsed before resolution",
				Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
			},
		),
		AgentsInPhase: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "agents_in_phase",
				Help:      "Current number of known agents in each lifecycle phase",
			},
			[]string{"phase"},
		),
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// RecordInfection increments InfectionsTotal for scope.
func (m *Metrics) RecordInfection(scope string) {
	m.InfectionsTotal.WithLabelValues(scope).Inc()
}

// RecordQuarantineEvent increments QuarantineEventsTotal for event.
func (m *Metrics) RecordQuarantineEvent(event string) {
	m.QuarantineEventsTotal.WithLabelValues(event).Inc()
}

// RecordApprovalEvent increments ApprovalEventsTotal for event.
func (m *Metrics) RecordApprovalEvent(event string) {
	m.ApprovalEventsTotal.WithLabelValues(event).Inc()
}

// RecordHealingAttempt increments HealingAttemptsTotal for one Healer.Step
// call's diagnosis kind, action, and success.
func (m *Metrics) RecordHealingAttempt(diagnosisKind, action string, success bool) {
	m.HealingAttemptsTotal.WithLabelValues(diagnosisKind, action, boolLabel(success)).Inc()
}

// RecordHealingResolved increments HealingsResolvedTotal for outcome
// ("healthy" or "exhausted").
func (m *Metrics) RecordHealingResolved(outcome string) {
	m.HealingsResolvedTotal.WithLabelValues(outcome).Inc()
}

// RecordProbationDuration observes how many ticks a probation window lasted.
func (m *Metrics) RecordProbationDuration(ticks int) {
	m.ProbationDurationTicks.Observe(float64(ticks))
}

// SetAgentsInPhase sets the current gauge value for phase.
func (m *Metrics) SetAgentsInPhase(phase string, count int) {
	m.AgentsInPhase.WithLabelValues(phase).Set(float64(count))
}
