// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package correlator

import (
	"testing"

	"github.com/aleutian-ai/guardian/services/guardian/vitals"
)

func reportWith(agentID string, kinds ...vitals.AnomalyKind) vitals.InfectionReport {
	r := vitals.InfectionReport{AgentID: agentID, Anomalies: make(map[vitals.AnomalyKind]struct{})}
	for _, k := range kinds {
		r.Anomalies[k] = struct{}{}
	}
	return r
}

func TestCorrelateAgentSpecificWhenIsolated(t *testing.T) {
	target := reportWith("agent-1", vitals.AnomalyLatencySpike)
	fleet := map[string]vitals.InfectionReport{
		"agent-1": target,
		"agent-2": reportWith("agent-2"),
		"agent-3": reportWith("agent-3"),
	}
	res := Correlate(target, fleet)
	if res.Scope != ScopeAgentSpecific {
		t.Fatalf("Scope = %v, want %v", res.Scope, ScopeAgentSpecific)
	}
}

func TestCorrelateFleetWideAboveHighFraction(t *testing.T) {
	target := reportWith("agent-0", vitals.AnomalyLatencySpike)
	fleet := map[string]vitals.InfectionReport{
		"agent-0": target,
		"agent-1": reportWith("agent-1", vitals.AnomalyLatencySpike),
		"agent-2": reportWith("agent-2", vitals.AnomalyLatencySpike),
		"agent-3": reportWith("agent-3", vitals.AnomalyLatencySpike),
		"agent-4": reportWith("agent-4"),
		"agent-5": reportWith("agent-5"),
		"agent-6": reportWith("agent-6"),
		"agent-7": reportWith("agent-7"),
		"agent-8": reportWith("agent-8"),
		"agent-9": reportWith("agent-9"),
	}
	res := Correlate(target, fleet)
	if res.Scope != ScopeFleetWide {
		t.Fatalf("Scope = %v, want %v (fraction=%v)", res.Scope, ScopeFleetWide, res.Fraction)
	}
}

func TestCorrelatePartialFleetBetweenThresholds(t *testing.T) {
	target := reportWith("agent-0", vitals.AnomalyCostSpike)
	fleet := map[string]vitals.InfectionReport{
		"agent-0": target,
		"agent-1": reportWith("agent-1", vitals.AnomalyCostSpike),
		"agent-2": reportWith("agent-2"),
		"agent-3": reportWith("agent-3"),
		"agent-4": reportWith("agent-4"),
		"agent-5": reportWith("agent-5"),
		"agent-6": reportWith("agent-6"),
		"agent-7": reportWith("agent-7"),
		"agent-8": reportWith("agent-8"),
		"agent-9": reportWith("agent-9"),
	}
	res := Correlate(target, fleet)
	if res.Scope != ScopePartialFleet {
		t.Fatalf("Scope = %v, want %v (fraction=%v)", res.Scope, ScopePartialFleet, res.Fraction)
	}
}

func TestCorrelateNoAnomaliesIsAgentSpecific(t *testing.T) {
	target := reportWith("agent-1")
	fleet := map[string]vitals.InfectionReport{"agent-2": reportWith("agent-2", vitals.AnomalyLatencySpike)}
	res := Correlate(target, fleet)
	if res.Scope != ScopeAgentSpecific {
		t.Fatalf("Scope = %v, want %v", res.Scope, ScopeAgentSpecific)
	}
}

func TestCorrelateUnrelatedAnomalyDoesNotCount(t *testing.T) {
	target := reportWith("agent-0", vitals.AnomalyLatencySpike)
	fleet := map[string]vitals.InfectionReport{
		"agent-0": target,
		"agent-1": reportWith("agent-1", vitals.AnomalyCostSpike),
		"agent-2": reportWith("agent-2", vitals.AnomalyToolExplosion),
	}
	res := Correlate(target, fleet)
	if res.Scope != ScopeAgentSpecific {
		t.Fatalf("Scope = %v, want %v (no shared anomaly kind)", res.Scope, ScopeAgentSpecific)
	}
	if len(res.AffectedAgents) != 0 {
		t.Fatalf("AffectedAgents = %v, want empty", res.AffectedAgents)
	}
}
