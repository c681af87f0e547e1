// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lifecycle implements the guarded 8-state machine every agent
// moves through, from first baseline learning to quarantine, healing, and
// either recovery or manual-intervention exhaustion.
package lifecycle

import (
	"sync"
	"time"
)

// Phase is one of the eight lifecycle states an agent can occupy.
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseHealthy      Phase = "healthy"
	PhaseSuspected    Phase = "suspected"
	PhaseDraining     Phase = "draining"
	PhaseQuarantined  Phase = "quarantined"
	PhaseHealing      Phase = "healing"
	PhaseProbation    Phase = "probation"
	PhaseExhausted    Phase = "exhausted"
)

var allowedTransitions = map[Phase][]Phase{
	PhaseInitializing: {PhaseHealthy},
	PhaseHealthy:       {PhaseSuspected, PhaseDraining},
	PhaseSuspected:     {PhaseHealthy, PhaseDraining},
	PhaseDraining:      {PhaseQuarantined},
	PhaseQuarantined:   {PhaseHealing},
	PhaseHealing:       {PhaseProbation, PhaseExhausted},
	PhaseProbation:     {PhaseHealthy, PhaseHealing},
	PhaseExhausted:     {PhaseHealing},
}

func allowed(from, to Phase) bool {
	for _, p := range allowedTransitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// Defaults for the tick-based thresholds the state machine uses to decide
// when to escalate or graduate an agent.
const (
	DefaultSuspectTicks   = 3
	DefaultDrainTimeout   = 30 * time.Second
	DefaultProbationTicks = 10
	// MaxHistory bounds the per-agent transition history ring kept for
	// dashboard display.
	MaxHistory = 200
)

// TransitionEvent is an immutable record of one lifecycle transition.
type TransitionEvent struct {
	AgentID   string    `json:"agent_id"`
	From      Phase     `json:"from_phase"`
	To        Phase     `json:"to_phase"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

type agentState struct {
	phase              Phase
	suspectTickCount   int
	cleanTickCount     int
	drainStartedAt     time.Time
	probationTickCount int
	lastTransitionAt   time.Time
	history            []TransitionEvent
}

// OnTransition is called after every successful transition.
type OnTransition func(TransitionEvent)

// Manager owns every agent's lifecycle phase and guards every transition
// against allowedTransitions.
type Manager struct {
	mu             sync.Mutex
	states         map[string]*agentState
	suspectTicks   int
	drainTimeout   time.Duration
	probationTicks int
	onTransition   OnTransition
}

// Config controls the tick thresholds a Manager uses.
type Config struct {
	SuspectTicks   int
	DrainTimeout   time.Duration
	ProbationTicks int
	OnTransition   OnTransition
}

// New returns a Manager with no agents known yet.
func New(cfg Config) *Manager {
	if cfg.SuspectTicks <= 0 {
		cfg.SuspectTicks = DefaultSuspectTicks
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	if cfg.ProbationTicks <= 0 {
		cfg.ProbationTicks = DefaultProbationTicks
	}
	return &Manager{
		states:         make(map[string]*agentState),
		suspectTicks:   cfg.SuspectTicks,
		drainTimeout:   cfg.DrainTimeout,
		probationTicks: cfg.ProbationTicks,
		onTransition:   cfg.OnTransition,
	}
}

func (m *Manager) state(agentID string) *agentState {
	s, ok := m.states[agentID]
	if !ok {
		s = &agentState{phase: PhaseInitializing, lastTransitionAt: time.Now()}
		m.states[agentID] = s
	}
	return s
}

// Phase returns agentID's current lifecycle phase.
func (m *Manager) Phase(agentID string) Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state(agentID).phase
}

// transition attempts to move agentID to target, returning false if the
// guard table disallows it. Must be called with m.mu held.
func (m *Manager) transition(agentID string, target Phase, reason string) bool {
	st := m.state(agentID)
	if !allowed(st.phase, target) {
		return false
	}

	now := time.Now()
	event := TransitionEvent{AgentID: agentID, From: st.phase, To: target, Reason: reason, Timestamp: now}

	st.phase = target
	st.lastTransitionAt = now

	switch target {
	case PhaseSuspected:
		st.suspectTickCount = 1
		st.cleanTickCount = 0
	case PhaseDraining:
		st.drainStartedAt = now
	case PhaseProbation:
		st.probationTickCount = 0
	}

	st.history = append(st.history, event)
	if len(st.history) > MaxHistory {
		st.history = st.history[len(st.history)-MaxHistory:]
	}

	if m.onTransition != nil {
		m.onTransition(event)
	}
	return true
}

// MarkBaselineReady transitions an INITIALIZING agent to HEALTHY.
func (m *Manager) MarkBaselineReady(agentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transition(agentID, PhaseHealthy, "baseline_ready")
}

// RecordAnomalyTick is called each tick an anomaly is detected. It escalates
// HEALTHY -> SUSPECTED on first detection, and SUSPECTED -> DRAINING once
// suspectTicks consecutive anomalous ticks have accumulated. It returns the
// phase after the call.
func (m *Manager) RecordAnomalyTick(agentID string) Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state(agentID)

	if st.phase == PhaseHealthy {
		m.transition(agentID, PhaseSuspected, "anomaly_detected")
		return m.state(agentID).phase
	}
	if st.phase == PhaseSuspected {
		st.suspectTickCount++
		st.cleanTickCount = 0
		if st.suspectTickCount >= m.suspectTicks {
			m.transition(agentID, PhaseDraining, "anomaly_persisted")
		}
		return m.state(agentID).phase
	}
	return st.phase
}

// RecordAnomalyResolved is called each tick a SUSPECTED agent shows no
// anomaly. It graduates back to HEALTHY only after suspectTicks consecutive
// clean ticks; any intervening anomaly (via RecordAnomalyTick) resets the
// count. Returns true once the HEALTHY transition actually happens.
func (m *Manager) RecordAnomalyResolved(agentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state(agentID)
	if st.phase != PhaseSuspected {
		return false
	}
	st.cleanTickCount++
	if st.cleanTickCount < m.suspectTicks {
		return false
	}
	return m.transition(agentID, PhaseHealthy, "anomaly_resolved")
}

// ForceDrain skips SUSPECTED and goes straight to DRAINING, for
// approval-threshold severity anomalies.
func (m *Manager) ForceDrain(agentID, reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state(agentID)
	if st.phase != PhaseHealthy && st.phase != PhaseSuspected {
		return false
	}
	return m.transition(agentID, PhaseDraining, reason)
}

// CheckDrainTimeout reports whether agentID has been DRAINING longer than
// the configured drain timeout.
func (m *Manager) CheckDrainTimeout(agentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state(agentID)
	if st.phase != PhaseDraining || st.drainStartedAt.IsZero() {
		return false
	}
	return time.Since(st.drainStartedAt) >= m.drainTimeout
}

// CompleteDrain transitions DRAINING -> QUARANTINED.
func (m *Manager) CompleteDrain(agentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transition(agentID, PhaseQuarantined, "drain_complete")
}

// StartHealing transitions QUARANTINED or EXHAUSTED -> HEALING.
func (m *Manager) StartHealing(agentID, reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if reason == "" {
		reason = "healing_started"
	}
	return m.transition(agentID, PhaseHealing, reason)
}

// EnterProbation transitions HEALING -> PROBATION after a healing action
// has been applied.
func (m *Manager) EnterProbation(agentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transition(agentID, PhaseProbation, "healing_action_applied")
}

// RecordProbationTick increments the probation tick counter and returns the
// new count, or 0 if agentID isn't in PROBATION.
func (m *Manager) RecordProbationTick(agentID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state(agentID)
	if st.phase != PhaseProbation {
		return 0
	}
	st.probationTickCount++
	return st.probationTickCount
}

// ProbationComplete reports whether agentID has accumulated enough
// probation ticks to be judged healed.
func (m *Manager) ProbationComplete(agentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state(agentID)
	return st.phase == PhaseProbation && st.probationTickCount >= m.probationTicks
}

// ProbationTickCount returns the number of probation ticks accumulated so
// far for agentID, without incrementing it.
func (m *Manager) ProbationTickCount(agentID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state(agentID).probationTickCount
}

// MarkHealthy transitions PROBATION -> HEALTHY once probation has passed.
func (m *Manager) MarkHealthy(agentID, reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if reason == "" {
		reason = "probation_passed"
	}
	return m.transition(agentID, PhaseHealthy, reason)
}

// MarkExhausted transitions HEALING -> EXHAUSTED once every action in the
// ladder has failed.
func (m *Manager) MarkExhausted(agentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transition(agentID, PhaseExhausted, "all_actions_exhausted")
}

// IsExecutionAllowed reports whether agentID should be permitted to
// execute/receive requests in its current phase.
func (m *Manager) IsExecutionAllowed(agentID string) bool {
	switch m.Phase(agentID) {
	case PhaseInitializing, PhaseHealthy, PhaseSuspected, PhaseProbation:
		return true
	default:
		return false
	}
}

// IsBlocked is the negation of IsExecutionAllowed.
func (m *Manager) IsBlocked(agentID string) bool {
	return !m.IsExecutionAllowed(agentID)
}

// History returns agentID's bounded transition history, oldest first.
func (m *Manager) History(agentID string) []TransitionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state(agentID)
	out := make([]TransitionEvent, len(st.history))
	copy(out, st.history)
	return out
}

// Reset removes all lifecycle state for agentID (e.g. deregistration).
func (m *Manager) Reset(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, agentID)
}
