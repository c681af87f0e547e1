// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package healer picks the next healing action to try for a diagnosed
// agent, skipping what immune memory already knows has failed and
// preferring what has a fleet-wide track record of success.
package healer

import (
	"github.com/aleutian-ai/guardian/services/guardian/immune"
	"github.com/aleutian-ai/guardian/services/guardian/vitals"
)

// ladders maps each diagnosis kind to its progressively-stronger healing
// ladder. Every ladder ends in RESET_AGENT as the last resort.
var ladders = map[vitals.DiagnosisKind][]vitals.HealingAction{
	vitals.DiagnosisPromptDrift: {
		vitals.ActionResetMemory,
		vitals.ActionRollbackPrompt,
		vitals.ActionReduceAutonomy,
		vitals.ActionResetAgent,
	},
	vitals.DiagnosisPromptInjection: {
		vitals.ActionRevokeTools,
		vitals.ActionResetMemory,
		vitals.ActionRollbackPrompt,
		vitals.ActionResetAgent,
	},
	vitals.DiagnosisInfiniteLoop: {
		vitals.ActionRevokeTools,
		vitals.ActionReduceAutonomy,
		vitals.ActionResetMemory,
		vitals.ActionResetAgent,
	},
	vitals.DiagnosisToolInstability: {
		vitals.ActionReduceAutonomy,
		vitals.ActionRollbackPrompt,
		vitals.ActionResetAgent,
	},
	vitals.DiagnosisMemoryCorruption: {
		vitals.ActionResetMemory,
		vitals.ActionResetAgent,
	},
	vitals.DiagnosisCostOverrun: {
		vitals.ActionReduceAutonomy,
		vitals.ActionRollbackPrompt,
		vitals.ActionResetMemory,
		vitals.ActionResetAgent,
	},
	vitals.DiagnosisExternalCause: {
		vitals.ActionReduceAutonomy,
		vitals.ActionResetAgent,
	},
	vitals.DiagnosisUnknown: {
		vitals.ActionResetMemory,
		vitals.ActionReduceAutonomy,
		vitals.ActionResetAgent,
	},
}

// SetLadderOverride replaces kind's ladder with actions. Nothing in Guardian
// calls it; the config file's ladder section is not passed to it. Must be
// called before any Healer starts selecting for kind.
func SetLadderOverride(kind vitals.DiagnosisKind, actions []vitals.HealingAction) {
	ladders[kind] = actions
}

// LadderFor returns a copy of kind's current ladder: the default one unless
// SetLadderOverride has replaced it.
func LadderFor(kind vitals.DiagnosisKind) []vitals.HealingAction {
	ladder := ladders[kind]
	out := make([]vitals.HealingAction, len(ladder))
	copy(out, ladder)
	return out
}

// Selector picks the next action to try for an agent's diagnosis, using
// immune memory to skip failures and prefer fleet-proven actions.
type Selector struct {
	memory *immune.Memory
}

// NewSelector returns a Selector backed by memory.
func NewSelector(memory *immune.Memory) *Selector {
	return &Selector{memory: memory}
}

// Next returns the next action to try for (agentID, kind), or ok=false if
// the ladder is exhausted (every action has already failed for this
// agent+diagnosis pair).
//
// Selection: start from the default ladder, remove actions immune memory
// says have already failed for this agent+diagnosis, then reorder the
// remainder by descending fleet-wide success count for this diagnosis kind
// (ties keep the original ladder order, since RankBySuccess sorts
// stably).
func (s *Selector) Next(agentID string, kind vitals.DiagnosisKind) (vitals.HealingAction, bool) {
	ladder := LadderFor(kind)
	failed := s.memory.FailedActions(agentID, kind)

	remaining := make([]vitals.HealingAction, 0, len(ladder))
	for _, a := range ladder {
		if !failed[a] {
			remaining = append(remaining, a)
		}
	}
	if len(remaining) == 0 {
		return "", false
	}

	ranked := s.memory.RankBySuccess(kind, remaining)
	return ranked[0], true
}

// Exhausted reports whether every action in kind's ladder has already
// failed for agentID.
func (s *Selector) Exhausted(agentID string, kind vitals.DiagnosisKind) bool {
	_, ok := s.Next(agentID, kind)
	return !ok
}
