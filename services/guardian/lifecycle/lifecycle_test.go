// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lifecycle

import "testing"

func TestNewAgentStartsInitializingThenGraduatesToHealthy(t *testing.T) {
	m := New(Config{})
	if p := m.Phase("agent-1"); p != PhaseInitializing {
		t.Fatalf("Phase = %v, want initializing", p)
	}
	if !m.MarkBaselineReady("agent-1") {
		t.Fatal("expected initializing -> healthy to be allowed")
	}
	if p := m.Phase("agent-1"); p != PhaseHealthy {
		t.Fatalf("Phase = %v, want healthy", p)
	}
}

func TestRecordAnomalyTickEscalatesThroughSuspectedToDraining(t *testing.T) {
	m := New(Config{SuspectTicks: 3})
	m.MarkBaselineReady("agent-1")

	if p := m.RecordAnomalyTick("agent-1"); p != PhaseSuspected {
		t.Fatalf("after 1st anomaly tick, phase = %v, want suspected", p)
	}
	if p := m.RecordAnomalyTick("agent-1"); p != PhaseSuspected {
		t.Fatalf("after 2nd anomaly tick, phase = %v, want still suspected", p)
	}
	if p := m.RecordAnomalyTick("agent-1"); p != PhaseDraining {
		t.Fatalf("after 3rd anomaly tick, phase = %v, want draining", p)
	}
}

func TestRecordAnomalyResolvedReturnsToHealthyOnlyFromSuspected(t *testing.T) {
	m := New(Config{SuspectTicks: 3})
	m.MarkBaselineReady("agent-1")
	m.RecordAnomalyTick("agent-1") // -> suspected

	// Graduating back to healthy requires suspect_ticks consecutive clean
	// ticks; the first two must not yet transition.
	if m.RecordAnomalyResolved("agent-1") {
		t.Fatal("expected suspected -> healthy to require suspect_ticks consecutive clean ticks, not just one")
	}
	if p := m.Phase("agent-1"); p != PhaseSuspected {
		t.Fatalf("Phase = %v, want still suspected after one clean tick", p)
	}
	if m.RecordAnomalyResolved("agent-1") {
		t.Fatal("expected suspected -> healthy to still not have happened after two clean ticks")
	}
	if !m.RecordAnomalyResolved("agent-1") {
		t.Fatal("expected suspected -> healthy to succeed on the third consecutive clean tick")
	}
	if p := m.Phase("agent-1"); p != PhaseHealthy {
		t.Fatalf("Phase = %v, want healthy", p)
	}
	// Calling it again from healthy (not suspected) must be a no-op.
	if m.RecordAnomalyResolved("agent-1") {
		t.Fatal("expected RecordAnomalyResolved from healthy to return false")
	}
}

func TestRecordAnomalyResolvedCountResetsOnIntervalAnomaly(t *testing.T) {
	m := New(Config{SuspectTicks: 3})
	m.MarkBaselineReady("agent-2")
	m.RecordAnomalyTick("agent-2") // -> suspected

	m.RecordAnomalyResolved("agent-2") // 1 clean tick
	m.RecordAnomalyResolved("agent-2") // 2 clean ticks
	m.RecordAnomalyTick("agent-2")     // anomaly returns, resets the clean count

	if m.RecordAnomalyResolved("agent-2") {
		t.Fatal("expected the clean-tick count to have been reset by the intervening anomaly")
	}
	if m.RecordAnomalyResolved("agent-2") {
		t.Fatal("expected a second clean tick post-reset to still not be enough")
	}
	if !m.RecordAnomalyResolved("agent-2") {
		t.Fatal("expected the third consecutive clean tick post-reset to graduate to healthy")
	}
	if p := m.Phase("agent-2"); p != PhaseHealthy {
		t.Fatalf("Phase = %v, want healthy", p)
	}
}

func TestForceDrainSkipsSuspectedFromHealthy(t *testing.T) {
	m := New(Config{})
	m.MarkBaselineReady("agent-1")
	if !m.ForceDrain("agent-1", "severe_deviation") {
		t.Fatal("expected ForceDrain from healthy to succeed")
	}
	if p := m.Phase("agent-1"); p != PhaseDraining {
		t.Fatalf("Phase = %v, want draining", p)
	}
}

func TestFullLifecycleRoundTrip(t *testing.T) {
	m := New(Config{ProbationTicks: 2})
	agentID := "agent-full"

	m.MarkBaselineReady(agentID)
	m.ForceDrain(agentID, "severe")
	if !m.CompleteDrain(agentID) {
		t.Fatal("draining -> quarantined should succeed")
	}
	if !m.StartHealing(agentID, "auto") {
		t.Fatal("quarantined -> healing should succeed")
	}
	if !m.EnterProbation(agentID) {
		t.Fatal("healing -> probation should succeed")
	}

	if m.ProbationComplete(agentID) {
		t.Fatal("probation should not be complete before any ticks")
	}
	m.RecordProbationTick(agentID)
	if m.ProbationComplete(agentID) {
		t.Fatal("probation should not be complete after only 1 of 2 ticks")
	}
	m.RecordProbationTick(agentID)
	if !m.ProbationComplete(agentID) {
		t.Fatal("probation should be complete after 2 of 2 ticks")
	}

	if !m.MarkHealthy(agentID, "") {
		t.Fatal("probation -> healthy should succeed")
	}
	if p := m.Phase(agentID); p != PhaseHealthy {
		t.Fatalf("final phase = %v, want healthy", p)
	}
}

func TestMarkExhaustedAfterHealingFailures(t *testing.T) {
	m := New(Config{})
	agentID := "agent-exhausted"
	m.MarkBaselineReady(agentID)
	m.ForceDrain(agentID, "severe")
	m.CompleteDrain(agentID)
	m.StartHealing(agentID, "auto")

	if !m.MarkExhausted(agentID) {
		t.Fatal("healing -> exhausted should succeed")
	}
	if !m.StartHealing(agentID, "retry") {
		t.Fatal("exhausted -> healing should succeed (manual re-attempt)")
	}
}

func TestDisallowedTransitionIsRejected(t *testing.T) {
	m := New(Config{})
	agentID := "agent-guard"
	// Still INITIALIZING: jumping straight to quarantined must be rejected.
	if m.CompleteDrain(agentID) {
		t.Fatal("expected initializing -> quarantined to be rejected by the guard table")
	}
	if p := m.Phase(agentID); p != PhaseInitializing {
		t.Fatalf("Phase = %v, want initializing (transition must not have applied)", p)
	}
}

func TestIsExecutionAllowedByPhase(t *testing.T) {
	m := New(Config{})
	agentID := "agent-exec"
	if !m.IsExecutionAllowed(agentID) {
		t.Fatal("initializing agents should be allowed to execute")
	}
	m.MarkBaselineReady(agentID)
	m.ForceDrain(agentID, "severe")
	if m.IsExecutionAllowed(agentID) {
		t.Fatal("draining agents should be blocked")
	}
	m.CompleteDrain(agentID)
	if !m.IsBlocked(agentID) {
		t.Fatal("quarantined agents should be blocked")
	}
}

func TestHistoryIsBoundedAndOrdered(t *testing.T) {
	m := New(Config{SuspectTicks: 1})
	agentID := "agent-history"
	m.MarkBaselineReady(agentID)
	m.RecordAnomalyTick(agentID) // -> suspected
	m.RecordAnomalyTick(agentID) // -> draining

	hist := m.History(agentID)
	if len(hist) != 3 {
		t.Fatalf("len(history) = %d, want 3 (initializing->healthy, healthy->suspected, suspected->draining)", len(hist))
	}
	if hist[0].To != PhaseHealthy || hist[len(hist)-1].To != PhaseDraining {
		t.Fatalf("history not in chronological order: %v", hist)
	}
}

func TestResetClearsAgentState(t *testing.T) {
	m := New(Config{})
	agentID := "agent-reset"
	m.MarkBaselineReady(agentID)
	m.Reset(agentID)
	if p := m.Phase(agentID); p != PhaseInitializing {
		t.Fatalf("Phase after Reset = %v, want initializing (fresh state)", p)
	}
}
