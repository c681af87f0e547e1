// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sentinel

import (
	"context"
	"testing"
	"time"

	"github.com/aleutian-ai/guardian/services/guardian/baseline"
	"github.com/aleutian-ai/guardian/services/guardian/vitals"
)

func warmBaseline(t *testing.T, agentID string, latency float64, n int) vitals.BaselineProfile {
	t.Helper()
	l := baseline.New(baseline.Config{MinSamples: 15}, nil, nil)
	ctx := context.Background()
	var b vitals.BaselineProfile
	for i := 0; i < n; i++ {
		b = l.Update(ctx, vitals.Vitals{
			AgentID:      agentID,
			Timestamp:    time.Now(),
			LatencyMS:    latency,
			InputTokens:  800,
			OutputTokens: 200,
			ToolCalls:    2,
			Success:      true,
			PromptHash:   "h1",
		})
	}
	return b
}

func TestScanCleanSampleHasNoAnomalies(t *testing.T) {
	b := warmBaseline(t, "agent-1", 100, 15)
	v := vitals.Vitals{AgentID: "agent-1", LatencyMS: 100, InputTokens: 800, OutputTokens: 200, ToolCalls: 2, Success: true, PromptHash: "h1"}
	report := Scan(b, []vitals.Vitals{v})
	if Infected(report) {
		t.Fatalf("expected no anomalies, got %v", report.AnomalyList())
	}
}

func TestScanLatencySpikeFlagged(t *testing.T) {
	b := warmBaseline(t, "agent-2", 100, 15)
	// A sustained large spike well past the 2.5 sigma detect threshold.
	v := vitals.Vitals{AgentID: "agent-2", LatencyMS: 100000, InputTokens: 800, OutputTokens: 200, ToolCalls: 2, Success: true, PromptHash: "h1"}
	report := Scan(b, []vitals.Vitals{v})
	if !report.HasAnomaly(vitals.AnomalyLatencySpike) {
		t.Fatalf("expected latency_spike, got %v", report.AnomalyList())
	}
	if report.MaxDeviation < DetectThreshold {
		t.Fatalf("MaxDeviation = %v, want >= %v", report.MaxDeviation, DetectThreshold)
	}
}

func TestScanMaxDeviationEqualsMaxOverDeviations(t *testing.T) {
	b := warmBaseline(t, "agent-3", 100, 15)
	v := vitals.Vitals{AgentID: "agent-3", LatencyMS: 500, InputTokens: 50000, OutputTokens: 200, ToolCalls: 2, Success: true, PromptHash: "h1"}
	report := Scan(b, []vitals.Vitals{v})
	var want float64
	for _, d := range report.Deviations {
		if d > want {
			want = d
		}
	}
	if report.MaxDeviation != want {
		t.Fatalf("MaxDeviation = %v, want %v (max over Deviations)", report.MaxDeviation, want)
	}
}

func TestScanPromptChangeDetected(t *testing.T) {
	b := warmBaseline(t, "agent-4", 100, 15)
	v := vitals.Vitals{AgentID: "agent-4", LatencyMS: 100, InputTokens: 800, OutputTokens: 200, ToolCalls: 2, Success: true, PromptHash: "different-hash"}
	report := Scan(b, []vitals.Vitals{v})
	if !report.PromptChanged {
		t.Fatal("expected PromptChanged to be true")
	}
	if !report.HasAnomaly(vitals.AnomalyPromptChange) {
		t.Fatal("expected prompt_change anomaly")
	}
}

func TestScanZeroVarianceUsesFloorNotDivideByZero(t *testing.T) {
	// A perfectly constant metric leaves variance at 0; a large relative
	// change must still be flagged via the floor rather than blowing up.
	b := warmBaseline(t, "agent-5", 100, 30)
	v := vitals.Vitals{AgentID: "agent-5", LatencyMS: 130, InputTokens: 800, OutputTokens: 200, ToolCalls: 2, Success: true, PromptHash: "h1"}
	report := Scan(b, []vitals.Vitals{v})
	dev := report.Deviations[vitals.MetricLatency]
	if dev <= 0 || dev > 1000 {
		t.Fatalf("deviation with zero-variance floor = %v, want a finite, bounded value", dev)
	}
	// 30% change against a 5% floor is 6 floor-units, comfortably past
	// the 2.5 sigma detect threshold.
	if !report.HasAnomaly(vitals.AnomalyLatencySpike) {
		t.Fatalf("expected a 30%% change over a zero-variance baseline to be flagged, deviation=%v", dev)
	}
}

func TestScanAveragesOverWindowNotJustLatestSample(t *testing.T) {
	b := warmBaseline(t, "agent-6", 100, 15)
	// One stray high sample surrounded by clean ones should not, by itself,
	// push the window mean past the detect threshold the way a single-
	// sample comparison would.
	window := []vitals.Vitals{
		{AgentID: "agent-6", LatencyMS: 150, InputTokens: 800, OutputTokens: 200, ToolCalls: 2, Success: true, PromptHash: "h1"},
		{AgentID: "agent-6", LatencyMS: 100, InputTokens: 800, OutputTokens: 200, ToolCalls: 2, Success: true, PromptHash: "h1"},
		{AgentID: "agent-6", LatencyMS: 100, InputTokens: 800, OutputTokens: 200, ToolCalls: 2, Success: true, PromptHash: "h1"},
		{AgentID: "agent-6", LatencyMS: 100, InputTokens: 800, OutputTokens: 200, ToolCalls: 2, Success: true, PromptHash: "h1"},
		{AgentID: "agent-6", LatencyMS: 100, InputTokens: 800, OutputTokens: 200, ToolCalls: 2, Success: true, PromptHash: "h1"},
	}
	report := Scan(b, window)
	if report.HasAnomaly(vitals.AnomalyLatencySpike) {
		t.Fatalf("expected a single stray sample averaged over a 5-sample window to stay under threshold, deviation=%v", report.Deviations[vitals.MetricLatency])
	}
}

func TestScanUsesAtMostWindowSizeSamples(t *testing.T) {
	b := warmBaseline(t, "agent-7", 100, 15)
	window := make([]vitals.Vitals, 0, 8)
	for i := 0; i < 8; i++ {
		window = append(window, vitals.Vitals{AgentID: "agent-7", LatencyMS: 100, InputTokens: 800, OutputTokens: 200, ToolCalls: 2, Success: true, PromptHash: "h1"})
	}
	report := Scan(b, window)
	if Infected(report) {
		t.Fatalf("expected clean samples beyond WindowSize to still yield no anomalies, got %v", report.AnomalyList())
	}
}

func TestRequiresApprovalThresholdIsInclusive(t *testing.T) {
	report := vitals.InfectionReport{MaxDeviation: ApprovalThreshold}
	if !RequiresApproval(report) {
		t.Fatal("expected MaxDeviation == ApprovalThreshold to require approval (inclusive boundary)")
	}
	report.MaxDeviation = ApprovalThreshold - 0.01
	if RequiresApproval(report) {
		t.Fatal("expected MaxDeviation just under ApprovalThreshold to not require approval")
	}
}

func TestInfectedRequiresAtLeastOneAnomaly(t *testing.T) {
	empty := vitals.InfectionReport{Anomalies: map[vitals.AnomalyKind]struct{}{}}
	if Infected(empty) {
		t.Fatal("expected Infected() to be false with no anomalies")
	}
}
