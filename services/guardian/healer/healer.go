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
	"time"

	"github.com/aleutian-ai/guardian/services/guardian/executor"
	"github.com/aleutian-ai/guardian/services/guardian/immune"
	"github.com/aleutian-ai/guardian/services/guardian/vitals"
)

// ActionTimeout bounds how long a single healing action may take before
// it's treated as a failure (spec §5).
const ActionTimeout = 10 * time.Second

// StepDelay is the pause the orchestrator's healing loop takes between
// successive actions on the same agent (spec §5).
const StepDelay = 250 * time.Millisecond

// Healer applies the selector's chosen action via an Executor and records
// the outcome in immune memory.
type Healer struct {
	selector *Selector
	memory   *immune.Memory
	exec     executor.Executor
}

// New returns a Healer wiring selector, memory, and exec together.
func New(memory *immune.Memory, exec executor.Executor) *Healer {
	return &Healer{selector: NewSelector(memory), memory: memory, exec: exec}
}

// Outcome is the result of one attempted healing step.
type Outcome struct {
	Action     vitals.HealingAction
	Exhausted  bool
	Result     executor.Result
	Err        error
}

// Step picks and applies the next action for (agentID, kind), bounding the
// executor call at ActionTimeout and recording the outcome in immune
// memory regardless of success.
func (h *Healer) Step(ctx context.Context, agentID string, kind vitals.DiagnosisKind) Outcome {
	action, ok := h.selector.Next(agentID, kind)
	if !ok {
		return Outcome{Exhausted: true, Err: vitals.NewError("healer.Step", vitals.KindExhaustion, nil)}
	}

	actionCtx, cancel := context.WithTimeout(ctx, ActionTimeout)
	defer cancel()

	result, err := h.exec.Execute(actionCtx, agentID, action)
	success := err == nil && result.Success
	h.memory.RecordOutcome(agentID, kind, action, success)

	if err != nil {
		return Outcome{Action: action, Err: err}
	}
	return Outcome{Action: action, Result: result}
}

// Exhausted reports whether kind's ladder has nothing left to try for
// agentID.
func (h *Healer) Exhausted(agentID string, kind vitals.DiagnosisKind) bool {
	return h.selector.Exhausted(agentID, kind)
}
