// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package executor defines the capability boundary between the healer's
// ladder logic and whatever actually knows how to mutate a live agent.
package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/aleutian-ai/guardian/services/guardian/vitals"
)

// Result is the outcome of applying one HealingAction to one agent.
type Result struct {
	Success bool
	Message string
}

// Executor applies a HealingAction to an agent. Implementations must
// respect ctx cancellation/deadline (spec §5's 10s per-action timeout).
type Executor interface {
	Execute(ctx context.Context, agentID string, action vitals.HealingAction) (Result, error)
}

// AgentState is the mutable, executor-visible state of one simulated agent.
// A real deployment would replace SimulatedExecutor with one that calls out
// to the actual agent runtime; AgentState models what that runtime would
// need to change.
type AgentState struct {
	MemoryCleared  bool
	PromptVersion  int
	AutonomyLevel  int
	ToolsEnabled   bool
	ResetCount     int
}

// SimulatedExecutor mutates an in-memory AgentState per agent, standing in
// for a real agent runtime. It is safe for concurrent use.
type SimulatedExecutor struct {
	mu     sync.Mutex
	states map[string]*AgentState
}

// NewSimulatedExecutor returns an executor with no agents yet known.
func NewSimulatedExecutor() *SimulatedExecutor {
	return &SimulatedExecutor{states: make(map[string]*AgentState)}
}

func (e *SimulatedExecutor) stateFor(agentID string) *AgentState {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.states[agentID]
	if !ok {
		s = &AgentState{ToolsEnabled: true, AutonomyLevel: 3}
		e.states[agentID] = s
	}
	return s
}

// State returns a copy of agentID's current simulated state.
func (e *SimulatedExecutor) State(agentID string) AgentState {
	s := e.stateFor(agentID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return *s
}

// Execute applies action to agentID's simulated state.
func (e *SimulatedExecutor) Execute(ctx context.Context, agentID string, action vitals.HealingAction) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, vitals.NewError("executor.Execute", vitals.KindExecutorTimeout, err)
	}

	e.mu.Lock()
	s, ok := e.states[agentID]
	if !ok {
		s = &AgentState{ToolsEnabled: true, AutonomyLevel: 3}
		e.states[agentID] = s
	}

	switch action {
	case vitals.ActionResetMemory:
		s.MemoryCleared = true
	case vitals.ActionRollbackPrompt:
		if s.PromptVersion > 0 {
			s.PromptVersion--
		}
	case vitals.ActionReduceAutonomy:
		if s.AutonomyLevel > 0 {
			s.AutonomyLevel--
		}
	case vitals.ActionRevokeTools:
		s.ToolsEnabled = false
	case vitals.ActionResetAgent:
		*s = AgentState{ToolsEnabled: true, AutonomyLevel: 3, ResetCount: s.ResetCount + 1}
	default:
		e.mu.Unlock()
		return Result{}, vitals.NewError("executor.Execute", vitals.KindBadInput, fmt.Errorf("unknown action %q", action))
	}
	e.mu.Unlock()

	return Result{Success: true, Message: fmt.Sprintf("applied %s to %s", action, agentID)}, nil
}

var _ Executor = (*SimulatedExecutor)(nil)
