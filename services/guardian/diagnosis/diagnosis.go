// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diagnosis maps an InfectionReport (plus its correlator scope) to
// a ranked list of candidate root causes, using the anomaly-kind-to-
// diagnosis pattern table.
package diagnosis

import (
	"sort"
	"sync"

	"github.com/aleutian-ai/guardian/services/guardian/correlator"
	"github.com/aleutian-ai/guardian/services/guardian/vitals"
)

// overrides holds feedback-adjusted confidence values per diagnosis kind,
// consulted by Diagnose ahead of the static rule table. Operator feedback
// is fleet-wide, not per-agent: one correction retunes every future
// diagnosis of that kind.
var (
	overridesMu sync.Mutex
	overrides   = map[vitals.DiagnosisKind]float64{}
)

// hint is one (kind, confidence, reasoning) entry a matched pattern
// contributes; a single pattern can contribute more than one hint (a
// primary and a secondary hypothesis).
type hint struct {
	kind       vitals.DiagnosisKind
	confidence float64
	reasoning  string
}

// defaultConfidence gives ApplyFeedback/baseConfidence a starting point per
// kind when no prior feedback override exists, taken from the pattern each
// kind is most strongly associated with in patternHints.
var defaultConfidence = map[vitals.DiagnosisKind]float64{
	vitals.DiagnosisPromptInjection:  0.9,
	vitals.DiagnosisPromptDrift:      0.6,
	vitals.DiagnosisInfiniteLoop:     0.85,
	vitals.DiagnosisToolInstability:  0.85,
	vitals.DiagnosisCostOverrun:      0.8,
	vitals.DiagnosisExternalCause:    0.9,
	vitals.DiagnosisMemoryCorruption: 0.7,
	vitals.DiagnosisUnknown:          0.4,
}

// patternHints implements spec §4.5's pattern table: each pattern is a
// predicate over the report's anomaly set (and, for the one fleet-scoped
// pattern, the Correlator's scope verdict); a matched pattern contributes
// one or more hints, later deduplicated by kind with the max confidence
// winning.
func patternHints(report vitals.InfectionReport, scope correlator.Scope) []hint {
	has := report.HasAnomaly
	toolExplosionWithRetry := has(vitals.AnomalyToolExplosion) && has(vitals.AnomalyHighRetryRate)
	latencyErrorFleetWide := has(vitals.AnomalyLatencySpike) && has(vitals.AnomalyErrorRateSpike) && scope == correlator.ScopeFleetWide

	var hints []hint

	// prompt_change alone -> PROMPT_INJECTION primary, PROMPT_DRIFT secondary.
	if has(vitals.AnomalyPromptChange) {
		hints = append(hints,
			hint{vitals.DiagnosisPromptInjection, 0.9, "system prompt hash changed unexpectedly"},
			hint{vitals.DiagnosisPromptDrift, 0.6, "system prompt hash changed unexpectedly"},
		)
	}

	// token_spike + tool_explosion -> INFINITE_LOOP primary, TOOL_INSTABILITY secondary.
	if has(vitals.AnomalyTokenSpike) && has(vitals.AnomalyToolExplosion) {
		hints = append(hints,
			hint{vitals.DiagnosisInfiniteLoop, 0.85, "token usage and tool call count both far exceed baseline"},
			hint{vitals.DiagnosisToolInstability, 0.6, "token usage and tool call count both far exceed baseline"},
		)
	}

	// tool_explosion + high_retry_rate -> TOOL_INSTABILITY.
	if toolExplosionWithRetry {
		hints = append(hints, hint{vitals.DiagnosisToolInstability, 0.85, "tool call count and retry rate both far exceed baseline"})
	}

	// cost_spike + token_spike -> COST_OVERRUN primary, PROMPT_DRIFT secondary.
	if has(vitals.AnomalyCostSpike) && has(vitals.AnomalyTokenSpike) {
		hints = append(hints,
			hint{vitals.DiagnosisCostOverrun, 0.8, "cost and token usage both far exceed baseline"},
			hint{vitals.DiagnosisPromptDrift, 0.6, "cost and token usage both far exceed baseline"},
		)
	}

	// latency_spike + error_rate_spike, fleet-wide per Correlator -> EXTERNAL_CAUSE.
	if latencyErrorFleetWide {
		hints = append(hints, hint{vitals.DiagnosisExternalCause, 0.9, "latency and error rate spikes are shared fleet-wide"})
	}

	// high retry/error only, i.e. not already claimed by the two patterns
	// above -> TOOL_INSTABILITY primary, EXTERNAL_CAUSE secondary.
	if (has(vitals.AnomalyHighRetryRate) || has(vitals.AnomalyErrorRateSpike)) && !toolExplosionWithRetry && !latencyErrorFleetWide {
		hints = append(hints,
			hint{vitals.DiagnosisToolInstability, 0.6, "retry or error rate far exceeds baseline"},
			hint{vitals.DiagnosisExternalCause, 0.5, "retry or error rate far exceeds baseline"},
		)
	}

	// memory-size proxies (input and output token counts) drifting together
	// -> MEMORY_CORRUPTION. Guardian has no direct memory-size metric, so
	// input_tokens and output_tokens both exceeding baseline stands in for
	// growing, uncollected agent-side state.
	if has(vitals.AnomalyInputTokenSpike) && has(vitals.AnomalyOutputTokenSpike) {
		hints = append(hints, hint{vitals.DiagnosisMemoryCorruption, 0.7, "input and output token counts are both drifting, suggesting corrupted or unbounded agent state"})
	}

	return hints
}

// Diagnose builds a ranked, deduplicated DiagnosisResult for report. scope
// adjusts confidence: a FLEET_WIDE or PARTIAL_FLEET correlation points away
// from an agent-local cause and toward an external one.
func Diagnose(report vitals.InfectionReport, scope correlator.Scope) vitals.DiagnosisResult {
	best := make(map[vitals.DiagnosisKind]vitals.Hypothesis)

	overridesMu.Lock()
	for _, hn := range patternHints(report, scope) {
		confidence := hn.confidence
		if adjusted, ok := overrides[hn.kind]; ok {
			confidence = adjusted
		}
		h := vitals.Hypothesis{Kind: hn.kind, Confidence: confidence, Reasoning: hn.reasoning}
		if existing, ok := best[hn.kind]; !ok || h.Confidence > existing.Confidence {
			best[hn.kind] = h
		}
	}
	overridesMu.Unlock()

	if scope == correlator.ScopeFleetWide || scope == correlator.ScopePartialFleet {
		ext := vitals.Hypothesis{
			Kind:       vitals.DiagnosisExternalCause,
			Confidence: externalCauseConfidence(scope),
			Reasoning:  "anomaly is shared across multiple fleet agents, suggesting a shared external cause",
		}
		if existing, ok := best[ext.Kind]; !ok || ext.Confidence > existing.Confidence {
			best[ext.Kind] = ext
		}
	}

	if len(best) == 0 {
		best[vitals.DiagnosisUnknown] = vitals.Hypothesis{
			Kind:       vitals.DiagnosisUnknown,
			Confidence: defaultConfidence[vitals.DiagnosisUnknown],
			Reasoning:  "anomaly pattern does not match any known failure mode",
		}
	}

	hyps := make([]vitals.Hypothesis, 0, len(best))
	for _, h := range best {
		hyps = append(hyps, h)
	}
	sort.Slice(hyps, func(i, j int) bool {
		if hyps[i].Confidence != hyps[j].Confidence {
			return hyps[i].Confidence > hyps[j].Confidence
		}
		return hyps[i].Kind < hyps[j].Kind
	})

	return vitals.DiagnosisResult{AgentID: report.AgentID, Hypotheses: hyps}
}

func externalCauseConfidence(scope correlator.Scope) float64 {
	if scope == correlator.ScopeFleetWide {
		return 0.75
	}
	return 0.55
}

// baseConfidence returns kind's current confidence: its feedback override if
// one exists, else its defaultConfidence entry, else 0.5.
func baseConfidence(kind vitals.DiagnosisKind) float64 {
	overridesMu.Lock()
	if c, ok := overrides[kind]; ok {
		overridesMu.Unlock()
		return c
	}
	overridesMu.Unlock()
	if c, ok := defaultConfidence[kind]; ok {
		return c
	}
	return 0.5
}

// RecordFeedback applies an operator's correction for kind and persists the
// adjusted confidence so every subsequent Diagnose call for that kind uses
// it, per spec §4.13's feedback endpoint. A provider_outage label retunes
// EXTERNAL_CAUSE regardless of the kind the caller named, matching
// ApplyFeedback's documented override.
func RecordFeedback(kind vitals.DiagnosisKind, label vitals.FeedbackLabel) (vitals.DiagnosisKind, float64) {
	adjustedKind, confidence := ApplyFeedback(baseConfidence(kind), label)
	if adjustedKind == "" {
		adjustedKind = kind
	}
	overridesMu.Lock()
	overrides[adjustedKind] = confidence
	overridesMu.Unlock()
	return adjustedKind, confidence
}

// ApplyFeedback adjusts confidence for kind across future diagnoses of the
// same shape, per spec §4.6's feedback rules:
//
//	false_positive   -> confidence -= 0.1, floor 0.05
//	correct           -> confidence += 0.05, ceiling 0.99
//	wrong_diagnosis   -> confidence halved
//	provider_outage   -> inject EXTERNAL_CAUSE at 0.95
//
// It operates on a single hypothesis's confidence value; RecordFeedback
// stores the adjusted value keyed by diagnosis kind.
func ApplyFeedback(confidence float64, label vitals.FeedbackLabel) (vitals.DiagnosisKind, float64) {
	switch label {
	case vitals.FeedbackFalsePositive:
		c := confidence - 0.1
		if c < 0.05 {
			c = 0.05
		}
		return "", c
	case vitals.FeedbackCorrect:
		c := confidence + 0.05
		if c > 0.99 {
			c = 0.99
		}
		return "", c
	case vitals.FeedbackWrongDiagnosis:
		return "", confidence / 2
	case vitals.FeedbackProviderOutage:
		return vitals.DiagnosisExternalCause, 0.95
	default:
		return "", confidence
	}
}
