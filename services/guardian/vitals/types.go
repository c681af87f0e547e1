// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vitals defines the value types exchanged by every other Guardian
// package: the vitals record an agent emits per task, the baseline profile
// learned from a stream of vitals, the infection report a detector produces,
// and the diagnosis/healing enums the rest of the pipeline ranks and acts on.
package vitals

import "time"

// ErrorType classifies the failure mode of a single agent task, if any.
type ErrorType string

const (
	ErrorNone         ErrorType = "none"
	ErrorRateLimit    ErrorType = "rate_limit"
	ErrorTimeout      ErrorType = "timeout"
	ErrorContentFilter ErrorType = "content_filter"
	ErrorOther        ErrorType = "other"
)

// Vitals is one immutable record of an agent's behavior on a single task.
type Vitals struct {
	AgentID      string    `json:"agent_id"`
	Timestamp    time.Time `json:"timestamp"`
	LatencyMS    float64   `json:"latency_ms"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	ToolCalls    int       `json:"tool_calls"`
	Retries      int       `json:"retries"`
	Success      bool      `json:"success"`
	Cost         float64   `json:"cost"`
	Model        string    `json:"model"`
	ErrorType    ErrorType `json:"error_type"`
	PromptHash   string    `json:"prompt_hash"`

	// AgentType and MCPServers are passthrough fields on the wire contract
	// (spec §6); they are never consulted by detection. MemoryStore and
	// HTTPStore keep them; InfluxStore does not write them.
	AgentType  string   `json:"agent_type,omitempty"`
	MCPServers []string `json:"mcp_servers,omitempty"`
}

// TokenCount returns the sum of input and output tokens.
func (v Vitals) TokenCount() int {
	return v.InputTokens + v.OutputTokens
}

// Metric names a tracked baseline dimension. These are the keys of
// BaselineProfile.Stats and InfectionReport.Deviations.
type Metric string

const (
	MetricLatency      Metric = "latency"
	MetricTotalTokens  Metric = "total_tokens"
	MetricInputTokens  Metric = "input_tokens"
	MetricOutputTokens Metric = "output_tokens"
	MetricCost         Metric = "cost"
	MetricToolCalls    Metric = "tool_calls"
	MetricRetryRate    Metric = "retry_rate"
	MetricErrorRate    Metric = "error_rate"
)

// TrackedMetrics lists every metric the baseline learner and sentinel track,
// in a stable order (used wherever a deterministic iteration order matters,
// e.g. serialization and tests).
var TrackedMetrics = []Metric{
	MetricLatency,
	MetricTotalTokens,
	MetricInputTokens,
	MetricOutputTokens,
	MetricCost,
	MetricToolCalls,
	MetricRetryRate,
	MetricErrorRate,
}

// MetricStat holds the EWMA mean/variance pair for one tracked metric.
type MetricStat struct {
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
}

// BaselineProfile is the learned "normal" for one agent, one EWMA pair per
// tracked metric plus bookkeeping needed to decide readiness and detect
// prompt drift.
type BaselineProfile struct {
	AgentID     string                `json:"agent_id"`
	Stats       map[Metric]MetricStat `json:"stats"`
	SampleCount int                   `json:"sample_count"`
	PromptHash  string                `json:"prompt_hash"`
	MinSamples  int                   `json:"min_samples"`
	Alpha       float64               `json:"alpha"`
	UpdatedAt   time.Time             `json:"updated_at"`

	// BaseAlpha and AccelTicksRemaining implement the accelerate() hook's
	// temporary speed-up: while AccelTicksRemaining > 0, Alpha holds the
	// boosted rate and BaseAlpha holds the rate to revert to once it hits
	// zero. Zero value for both means "not accelerated".
	BaseAlpha           float64 `json:"base_alpha,omitempty"`
	AccelTicksRemaining int     `json:"accel_ticks_remaining,omitempty"`
}

// Ready reports whether enough samples have been seen for detection to run.
func (b *BaselineProfile) Ready() bool {
	return b != nil && b.SampleCount >= b.MinSamples
}

// AnomalyKind names a single deviation signal a Sentinel scan can emit.
type AnomalyKind string

const (
	AnomalyTokenSpike       AnomalyKind = "token_spike"
	AnomalyLatencySpike     AnomalyKind = "latency_spike"
	AnomalyToolExplosion    AnomalyKind = "tool_explosion"
	AnomalyHighRetryRate    AnomalyKind = "high_retry_rate"
	AnomalyInputTokenSpike  AnomalyKind = "input_token_spike"
	AnomalyOutputTokenSpike AnomalyKind = "output_token_spike"
	AnomalyCostSpike        AnomalyKind = "cost_spike"
	AnomalyPromptChange     AnomalyKind = "prompt_change"
	AnomalyErrorRateSpike   AnomalyKind = "error_rate_spike"
)

// InfectionReport is what a Sentinel scan produces when at least one
// tracked metric deviates beyond threshold, or the prompt hash changed.
type InfectionReport struct {
	AgentID       string                 `json:"agent_id"`
	Deviations    map[Metric]float64     `json:"deviations"`
	MaxDeviation  float64                `json:"max_deviation"`
	Anomalies     map[AnomalyKind]struct{} `json:"-"`
	PromptChanged bool                   `json:"prompt_changed"`
	At            time.Time              `json:"at"`
}

// AnomalyList returns the report's anomalies as a stable-sorted slice, for
// serialization and logging.
func (r *InfectionReport) AnomalyList() []AnomalyKind {
	out := make([]AnomalyKind, 0, len(r.Anomalies))
	for a := range r.Anomalies {
		out = append(out, a)
	}
	sortAnomalies(out)
	return out
}

// HasAnomaly reports whether the given kind was emitted by this report.
func (r *InfectionReport) HasAnomaly(kind AnomalyKind) bool {
	_, ok := r.Anomalies[kind]
	return ok
}

// PrimaryAnomaly returns the anomaly kind whose metric carries the report's
// MaxDeviation, breaking ties by the stable TrackedMetrics order. The
// Correlator does not call it; it matches agents on any shared anomaly kind.
func (r *InfectionReport) PrimaryAnomaly() (AnomalyKind, bool) {
	if r.PromptChanged && r.MaxDeviation <= 0 {
		return AnomalyPromptChange, true
	}
	var best Metric
	bestDev := -1.0
	for _, m := range TrackedMetrics {
		d, ok := r.Deviations[m]
		if ok && d > bestDev {
			bestDev = d
			best = m
		}
	}
	if bestDev < 0 {
		return "", false
	}
	kind, ok := metricAnomalyKind[best]
	return kind, ok
}

var metricAnomalyKind = map[Metric]AnomalyKind{
	MetricLatency:      AnomalyLatencySpike,
	MetricTotalTokens:  AnomalyTokenSpike,
	MetricInputTokens:  AnomalyInputTokenSpike,
	MetricOutputTokens: AnomalyOutputTokenSpike,
	MetricCost:         AnomalyCostSpike,
	MetricToolCalls:    AnomalyToolExplosion,
	MetricRetryRate:    AnomalyHighRetryRate,
	MetricErrorRate:    AnomalyErrorRateSpike,
}

func sortAnomalies(a []AnomalyKind) {
	for i := 1; i < len(a); i++ {
		for j := i; j > 0 && a[j-1] > a[j]; j-- {
			a[j-1], a[j] = a[j], a[j-1]
		}
	}
}

// DiagnosisKind names a probable root cause for an infection.
type DiagnosisKind string

const (
	DiagnosisPromptDrift      DiagnosisKind = "prompt_drift"
	DiagnosisPromptInjection  DiagnosisKind = "prompt_injection"
	DiagnosisInfiniteLoop     DiagnosisKind = "infinite_loop"
	DiagnosisToolInstability  DiagnosisKind = "tool_instability"
	DiagnosisMemoryCorruption DiagnosisKind = "memory_corruption"
	DiagnosisCostOverrun      DiagnosisKind = "cost_overrun"
	DiagnosisExternalCause    DiagnosisKind = "external_cause"
	DiagnosisUnknown          DiagnosisKind = "unknown"
)

// Hypothesis is one ranked candidate root cause.
type Hypothesis struct {
	Kind       DiagnosisKind `json:"kind"`
	Confidence float64       `json:"confidence"`
	Reasoning  string        `json:"reasoning"`
}

// DiagnosisResult is the Diagnostician's output: hypotheses ordered by
// descending confidence, deduplicated by kind.
type DiagnosisResult struct {
	AgentID     string       `json:"agent_id"`
	Hypotheses  []Hypothesis `json:"hypotheses"`
}

// Top returns the highest-confidence hypothesis, or the zero value if none.
func (d *DiagnosisResult) Top() (Hypothesis, bool) {
	if len(d.Hypotheses) == 0 {
		return Hypothesis{}, false
	}
	return d.Hypotheses[0], true
}

// HealingAction is one progressively-stronger corrective action the Healer
// can apply to an agent.
type HealingAction string

const (
	ActionResetMemory    HealingAction = "reset_memory"
	ActionRollbackPrompt HealingAction = "rollback_prompt"
	ActionReduceAutonomy HealingAction = "reduce_autonomy"
	ActionRevokeTools    HealingAction = "revoke_tools"
	ActionResetAgent     HealingAction = "reset_agent"
)

// FeedbackLabel is an operator correction applied to a past diagnosis.
type FeedbackLabel string

const (
	FeedbackFalsePositive   FeedbackLabel = "false_positive"
	FeedbackCorrect         FeedbackLabel = "correct"
	FeedbackWrongDiagnosis  FeedbackLabel = "wrong_diagnosis"
	FeedbackProviderOutage  FeedbackLabel = "provider_outage"
)

// Feedback is one operator correction submitted for a past diagnosis.
type Feedback struct {
	AgentID    string        `json:"agent_id"`
	Kind       DiagnosisKind `json:"diagnosis_kind_actual"`
	Label      FeedbackLabel `json:"label"`
	At         time.Time     `json:"at"`
}

// ApprovalStatus is the state of one pending-approval record.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// ApprovalRecord tracks one agent's request for human sign-off before
// healing begins.
type ApprovalRecord struct {
	AgentID   string           `json:"agent_id"`
	Infection InfectionReport  `json:"infection_report"`
	Status    ApprovalStatus   `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	DecidedAt *time.Time       `json:"decided_at,omitempty"`
}
