// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sentinel implements the pure deviation-detection algorithm: given
// a ready baseline and a fresh vitals sample, decide how many standard
// deviations away from normal each tracked metric is.
package sentinel

import (
	"math"

	"github.com/aleutian-ai/guardian/services/guardian/vitals"
)

// DetectThreshold is the sigma distance, in any single tracked metric, that
// constitutes an anomaly worth reporting.
const DetectThreshold = 2.5

// ApprovalThreshold is the sigma distance above which healing requires
// human approval before proceeding (spec's human-in-the-loop gate).
const ApprovalThreshold = 5.0

// floorFraction is the minimum standard deviation imposed on every metric,
// as a fraction of the metric's mean magnitude, so a baseline that has
// never varied doesn't divide by (near) zero and flag every sample.
const floorFraction = 0.05

// floorEpsilon is the absolute floor used when a metric's mean is ~0.
const floorEpsilon = 1e-6

// WindowSize is the number of most-recent samples Scan averages per metric
// before comparing against the baseline, mirroring the source detector's
// min(5, len(recent_vitals)) sampling window.
const WindowSize = 5

func stddevFloor(mean float64) float64 {
	m := math.Abs(mean)
	if m < floorEpsilon {
		m = floorEpsilon
	}
	return floorFraction * m
}

// Scan compares a recent window of vitals against b and returns the
// resulting InfectionReport. recent must be newest-first and non-empty
// (as returned by Telemetry.Recent); b must be Ready. Only recent[0] (the
// latest sample) is checked for a prompt hash change; every sample in the
// window contributes to each metric's window mean.
func Scan(b vitals.BaselineProfile, recent []vitals.Vitals) vitals.InfectionReport {
	latest := recent[0]
	report := vitals.InfectionReport{
		AgentID:    latest.AgentID,
		Deviations: make(map[vitals.Metric]float64),
		Anomalies:  make(map[vitals.AnomalyKind]struct{}),
		At:         latest.Timestamp,
	}

	window := recent
	if len(window) > WindowSize {
		window = window[:WindowSize]
	}
	means := windowMeans(window)

	for _, m := range vitals.TrackedMetrics {
		stat, ok := b.Stats[m]
		if !ok {
			continue
		}
		sd := math.Sqrt(stat.Variance)
		floor := stddevFloor(stat.Mean)
		if sd < floor {
			sd = floor
		}
		dev := math.Abs(means[m]-stat.Mean) / sd
		report.Deviations[m] = dev
		if dev > report.MaxDeviation {
			report.MaxDeviation = dev
		}
		if dev >= DetectThreshold {
			if kind, ok := anomalyKindFor(m); ok {
				report.Anomalies[kind] = struct{}{}
			}
		}
	}

	if b.PromptHash != "" && latest.PromptHash != "" && b.PromptHash != latest.PromptHash {
		report.PromptChanged = true
		report.Anomalies[vitals.AnomalyPromptChange] = struct{}{}
	}

	return report
}

// windowMeans averages each tracked metric's sample value across window.
func windowMeans(window []vitals.Vitals) map[vitals.Metric]float64 {
	sums := make(map[vitals.Metric]float64, len(vitals.TrackedMetrics))
	for _, v := range window {
		for m, val := range sampleValues(v) {
			sums[m] += val
		}
	}
	n := float64(len(window))
	for m := range sums {
		sums[m] /= n
	}
	return sums
}

// Infected reports whether report carries at least one anomaly.
func Infected(report vitals.InfectionReport) bool {
	return len(report.Anomalies) > 0
}

// RequiresApproval reports whether report's severity crosses the
// human-in-the-loop gate.
func RequiresApproval(report vitals.InfectionReport) bool {
	return report.MaxDeviation >= ApprovalThreshold
}

func sampleValues(v vitals.Vitals) map[vitals.Metric]float64 {
	retryRate := 0.0
	if v.Retries > 0 {
		retryRate = 1.0
	}
	errorRate := 0.0
	if v.ErrorType != vitals.ErrorNone {
		errorRate = 1.0
	}
	return map[vitals.Metric]float64{
		vitals.MetricLatency:      v.LatencyMS,
		vitals.MetricTotalTokens:  float64(v.TokenCount()),
		vitals.MetricInputTokens:  float64(v.InputTokens),
		vitals.MetricOutputTokens: float64(v.OutputTokens),
		vitals.MetricCost:         v.Cost,
		vitals.MetricToolCalls:    float64(v.ToolCalls),
		vitals.MetricRetryRate:    retryRate,
		vitals.MetricErrorRate:    errorRate,
	}
}

func anomalyKindFor(m vitals.Metric) (vitals.AnomalyKind, bool) {
	switch m {
	case vitals.MetricLatency:
		return vitals.AnomalyLatencySpike, true
	case vitals.MetricTotalTokens:
		return vitals.AnomalyTokenSpike, true
	case vitals.MetricInputTokens:
		return vitals.AnomalyInputTokenSpike, true
	case vitals.MetricOutputTokens:
		return vitals.AnomalyOutputTokenSpike, true
	case vitals.MetricCost:
		return vitals.AnomalyCostSpike, true
	case vitals.MetricToolCalls:
		return vitals.AnomalyToolExplosion, true
	case vitals.MetricRetryRate:
		return vitals.AnomalyHighRetryRate, true
	case vitals.MetricErrorRate:
		return vitals.AnomalyErrorRateSpike, true
	default:
		return "", false
	}
}
