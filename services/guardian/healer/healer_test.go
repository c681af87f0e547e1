// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package healer

import (
	"context"
	"errors"
	"testing"

	"github.com/aleutian-ai/guardian/services/guardian/cache"
	"github.com/aleutian-ai/guardian/services/guardian/executor"
	"github.com/aleutian-ai/guardian/services/guardian/immune"
	"github.com/aleutian-ai/guardian/services/guardian/vitals"
)

// scriptedExecutor fails on every action named in failing, and succeeds on
// everything else, so tests can reproduce a specific ladder walk.
type scriptedExecutor struct {
	failing map[vitals.HealingAction]bool
	calls   []vitals.HealingAction
}

func (s *scriptedExecutor) Execute(_ context.Context, _ string, action vitals.HealingAction) (executor.Result, error) {
	s.calls = append(s.calls, action)
	if s.failing[action] {
		return executor.Result{Success: false, Message: "simulated failure"}, errors.New("action failed")
	}
	return executor.Result{Success: true, Message: "ok"}, nil
}

func newHealer(t *testing.T, exec executor.Executor) (*Healer, *immune.Memory) {
	t.Helper()
	c, err := cache.Open("")
	if err != nil {
		t.Fatalf("cache.Open = %v", err)
	}
	mem := immune.New(c)
	return New(mem, exec), mem
}

func TestStepAdvancesLadderOnFailureUntilSuccess(t *testing.T) {
	// spec §8 scenario 6: PROMPT_INJECTION's ladder is REVOKE_TOOLS,
	// RESET_MEMORY, ROLLBACK_PROMPT, RESET_AGENT. The first two fail here,
	// so the third must be the one that finally succeeds.
	exec := &scriptedExecutor{failing: map[vitals.HealingAction]bool{
		vitals.ActionRevokeTools: true,
		vitals.ActionResetMemory: true,
	}}
	h, _ := newHealer(t, exec)
	ctx := context.Background()
	kind := vitals.DiagnosisPromptInjection
	agentID := "agent-injected"

	first := h.Step(ctx, agentID, kind)
	if first.Action != vitals.ActionRevokeTools || first.Err == nil {
		t.Fatalf("first step = %+v, want a failed revoke_tools attempt", first)
	}

	second := h.Step(ctx, agentID, kind)
	if second.Action != vitals.ActionResetMemory || second.Err == nil {
		t.Fatalf("second step = %+v, want a failed reset_memory attempt", second)
	}

	third := h.Step(ctx, agentID, kind)
	if third.Action != vitals.ActionRollbackPrompt || third.Err != nil {
		t.Fatalf("third step = %+v, want a successful rollback_prompt attempt", third)
	}
}

func TestStepReturnsExhaustedWhenEveryActionHasFailed(t *testing.T) {
	exec := &scriptedExecutor{failing: map[vitals.HealingAction]bool{
		vitals.ActionResetMemory:   true,
		vitals.ActionReduceAutonomy: true,
		vitals.ActionResetAgent:    true,
	}}
	h, _ := newHealer(t, exec)
	ctx := context.Background()
	kind := vitals.DiagnosisUnknown
	agentID := "agent-hopeless"

	for i := 0; i < 3; i++ {
		out := h.Step(ctx, agentID, kind)
		if out.Exhausted {
			t.Fatalf("step %d reported exhausted too early: %+v", i, out)
		}
	}

	out := h.Step(ctx, agentID, kind)
	if !out.Exhausted {
		t.Fatalf("expected ladder to be exhausted after every action failed, got %+v", out)
	}
	if !h.Exhausted(agentID, kind) {
		t.Fatal("Healer.Exhausted should report true once the ladder is spent")
	}
}

func TestStepRecordsOutcomeInImmuneMemoryRegardlessOfResult(t *testing.T) {
	exec := &scriptedExecutor{failing: map[vitals.HealingAction]bool{
		vitals.ActionResetMemory: true,
	}}
	h, mem := newHealer(t, exec)
	ctx := context.Background()
	kind := vitals.DiagnosisMemoryCorruption
	agentID := "agent-mem"

	h.Step(ctx, agentID, kind)
	if !mem.HasFailed(agentID, kind, vitals.ActionResetMemory) {
		t.Fatal("expected the failed action to be recorded in immune memory")
	}

	h.Step(ctx, agentID, kind)
	if mem.GlobalSuccessCount(kind, vitals.ActionResetAgent) != 1 {
		t.Fatalf("expected reset_agent's success to be recorded globally")
	}
}
