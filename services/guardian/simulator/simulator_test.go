// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package simulator

import "testing"

func TestNewFleetAssignsDistinctIDsAndMCPServers(t *testing.T) {
	f := NewFleet(5)
	if len(f.Agents()) != 5 {
		t.Fatalf("len(Agents()) = %d, want 5", len(f.Agents()))
	}
	seen := map[string]bool{}
	for _, a := range f.Agents() {
		if seen[a.ID] {
			t.Fatalf("duplicate agent ID %q", a.ID)
		}
		seen[a.ID] = true
		if len(a.MCPServers) == 0 {
			t.Fatalf("agent %q has no MCP servers assigned", a.ID)
		}
	}
}

func TestGenerateHealthyStaysNearBaseline(t *testing.T) {
	f := NewFleet(1)
	a := f.Agents()[0]
	for i := 0; i < 50; i++ {
		v := a.Generate()
		if v.LatencyMS < a.baseLatencyMS*0.7 || v.LatencyMS > a.baseLatencyMS*1.3 {
			t.Fatalf("healthy LatencyMS = %v, want within variance of baseline %v", v.LatencyMS, a.baseLatencyMS)
		}
		if v.PromptHash != a.promptHash {
			t.Fatalf("healthy PromptHash changed: got %q, want stable %q", v.PromptHash, a.promptHash)
		}
	}
}

func TestGenerateLatencySpikeInfectionInflatesLatencyOnly(t *testing.T) {
	f := NewFleet(1)
	a := f.Agents()[0]
	a.Infect(InfectionLatencySpike)

	for i := 0; i < 20; i++ {
		v := a.Generate()
		if v.LatencyMS < a.baseLatencyMS*3 {
			t.Fatalf("infected LatencyMS = %v, want at least 3x baseline %v", v.LatencyMS, a.baseLatencyMS)
		}
	}
}

func TestGenerateTokenExplosionInflatesTokensNotLatency(t *testing.T) {
	f := NewFleet(1)
	a := f.Agents()[0]
	a.Infect(InfectionTokenExplosion)

	v := a.Generate()
	if v.OutputTokens < int(float64(a.baseTokens)*0.35)*5 {
		t.Fatalf("infected OutputTokens = %d, want inflated well past baseline", v.OutputTokens)
	}
	if v.LatencyMS > a.baseLatencyMS*1.01 {
		t.Fatalf("token_explosion should not inflate latency, got %v vs baseline %v", v.LatencyMS, a.baseLatencyMS)
	}
}

func TestGeneratePromptDriftChangesPromptHash(t *testing.T) {
	f := NewFleet(1)
	a := f.Agents()[0]
	a.Infect(InfectionPromptDrift)

	v := a.Generate()
	if v.PromptHash == a.promptHash {
		t.Fatal("expected prompt_drift to change the emitted prompt hash")
	}
}

func TestCureRestoresHealthyBehavior(t *testing.T) {
	f := NewFleet(1)
	a := f.Agents()[0]
	a.Infect(InfectionToolLoop)
	if !a.Infected {
		t.Fatal("expected Infect to set Infected")
	}
	a.Cure()
	if a.Infected {
		t.Fatal("expected Cure to clear Infected")
	}
	v := a.Generate()
	if v.PromptHash != a.promptHash {
		t.Fatal("expected a cured agent to emit its stable prompt hash again")
	}
}

func TestInjectRandomRespectsCountAndAvoidsAlreadyInfected(t *testing.T) {
	f := NewFleet(4)
	inj := NewInjector()

	results := inj.InjectRandom(f.Agents(), 2)
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	infectedCount := 0
	for _, a := range f.Agents() {
		if a.Infected {
			infectedCount++
			if !inj.IsInjected(a.ID) {
				t.Fatalf("agent %q is infected but not tracked by the Injector", a.ID)
			}
		}
	}
	if infectedCount != 2 {
		t.Fatalf("infectedCount = %d, want 2", infectedCount)
	}

	// Injecting again with a count larger than the remaining healthy pool
	// must clamp to what's available rather than double-infecting.
	more := inj.InjectRandom(f.Agents(), 10)
	if len(more) != 2 {
		t.Fatalf("len(more) = %d, want 2 (only 2 agents were still healthy)", len(more))
	}
}

func TestClearInjectionRemovesTrackingOnly(t *testing.T) {
	f := NewFleet(1)
	a := f.Agents()[0]
	inj := NewInjector()
	inj.Inject(a, InfectionMemoryCorruption)

	inj.ClearInjection(a.ID)
	if inj.IsInjected(a.ID) {
		t.Fatal("expected ClearInjection to drop tracking")
	}
	if !a.Infected {
		t.Fatal("ClearInjection must not cure the agent itself")
	}
}
