// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package immune

import (
	"testing"

	"github.com/aleutian-ai/guardian/services/guardian/cache"
	"github.com/aleutian-ai/guardian/services/guardian/vitals"
)

func newMemory(t *testing.T) *Memory {
	t.Helper()
	c, err := cache.Open("")
	if err != nil {
		t.Fatalf("cache.Open(\"\") = %v", err)
	}
	return New(c)
}

func TestHasFailedFalseBeforeAnyOutcome(t *testing.T) {
	m := newMemory(t)
	if m.HasFailed("agent-1", vitals.DiagnosisPromptDrift, vitals.ActionResetMemory) {
		t.Fatal("expected HasFailed to be false with no recorded outcomes")
	}
}

func TestRecordOutcomeFailureMarksHasFailed(t *testing.T) {
	m := newMemory(t)
	m.RecordOutcome("agent-1", vitals.DiagnosisPromptInjection, vitals.ActionRevokeTools, false)
	if !m.HasFailed("agent-1", vitals.DiagnosisPromptInjection, vitals.ActionRevokeTools) {
		t.Fatal("expected HasFailed to be true after a recorded failure")
	}
	if m.HasFailed("agent-1", vitals.DiagnosisPromptInjection, vitals.ActionResetMemory) {
		t.Fatal("a different action must not be marked failed")
	}
}

func TestFailedActionsScopedToAgentAndKind(t *testing.T) {
	m := newMemory(t)
	m.RecordOutcome("agent-1", vitals.DiagnosisPromptInjection, vitals.ActionRevokeTools, false)
	m.RecordOutcome("agent-1", vitals.DiagnosisPromptInjection, vitals.ActionResetMemory, false)
	m.RecordOutcome("agent-1", vitals.DiagnosisPromptDrift, vitals.ActionResetMemory, false)
	m.RecordOutcome("agent-2", vitals.DiagnosisPromptInjection, vitals.ActionRevokeTools, false)

	failed := m.FailedActions("agent-1", vitals.DiagnosisPromptInjection)
	if !failed[vitals.ActionRevokeTools] || !failed[vitals.ActionResetMemory] {
		t.Fatalf("FailedActions = %v, want revoke_tools and reset_memory", failed)
	}
	if len(failed) != 2 {
		t.Fatalf("FailedActions leaked entries from another agent/kind: %v", failed)
	}
}

func TestGlobalSuccessCountAggregatesAcrossAgents(t *testing.T) {
	m := newMemory(t)
	m.RecordOutcome("agent-1", vitals.DiagnosisCostOverrun, vitals.ActionReduceAutonomy, true)
	m.RecordOutcome("agent-2", vitals.DiagnosisCostOverrun, vitals.ActionReduceAutonomy, true)
	m.RecordOutcome("agent-3", vitals.DiagnosisCostOverrun, vitals.ActionReduceAutonomy, false)

	count := m.GlobalSuccessCount(vitals.DiagnosisCostOverrun, vitals.ActionReduceAutonomy)
	if count != 2 {
		t.Fatalf("GlobalSuccessCount = %d, want 2", count)
	}
}

func TestRankBySuccessOrdersDescendingAndIsStableOnTies(t *testing.T) {
	m := newMemory(t)
	actions := []vitals.HealingAction{
		vitals.ActionReduceAutonomy,
		vitals.ActionRollbackPrompt,
		vitals.ActionResetMemory,
		vitals.ActionResetAgent,
	}
	m.RecordOutcome("agent-1", vitals.DiagnosisToolInstability, vitals.ActionResetMemory, true)
	m.RecordOutcome("agent-2", vitals.DiagnosisToolInstability, vitals.ActionResetMemory, true)
	m.RecordOutcome("agent-1", vitals.DiagnosisToolInstability, vitals.ActionRollbackPrompt, true)

	ranked := m.RankBySuccess(vitals.DiagnosisToolInstability, actions)
	if ranked[0] != vitals.ActionResetMemory {
		t.Fatalf("ranked[0] = %v, want reset_memory (2 successes)", ranked[0])
	}
	if ranked[1] != vitals.ActionRollbackPrompt {
		t.Fatalf("ranked[1] = %v, want rollback_prompt (1 success)", ranked[1])
	}
	// reduce_autonomy and reset_agent both have 0 successes; their original
	// relative order (from `actions`) must be preserved by the stable sort.
	if ranked[2] != vitals.ActionReduceAutonomy || ranked[3] != vitals.ActionResetAgent {
		t.Fatalf("tie-break order not preserved: %v", ranked)
	}
}
