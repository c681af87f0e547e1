// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aleutian-ai/guardian/services/guardian/correlator"
	"github.com/aleutian-ai/guardian/services/guardian/diagnosis"
	"github.com/aleutian-ai/guardian/services/guardian/lifecycle"
	"github.com/aleutian-ai/guardian/services/guardian/sentinel"
	"github.com/aleutian-ai/guardian/services/guardian/store"
	"github.com/aleutian-ai/guardian/services/guardian/vitals"
)

// sentinelLoop ticks every cfg.SentinelTick, scanning every non-quarantined
// agent with a Ready baseline, correlating infections across the fleet, and
// dispatching each newly-detected infection to its own goroutine so one
// agent's drain/approval/healing path never blocks the scan of the rest
// (spec §4.11's sentinel loop + §5's non-blocking suspension points).
func (o *Orchestrator) sentinelLoop(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.SentinelTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			o.sentinelTick(ctx)
		}
	}
}

func (o *Orchestrator) sentinelTick(ctx context.Context) {
	fleet := o.scanFleet()

	if o.Metrics != nil {
		for phase, count := range o.AgentPhaseCounts() {
			o.Metrics.SetAgentsInPhase(string(phase), count)
		}
	}

	for agentID, report := range fleet {
		if !sentinel.Infected(report) {
			o.Lifecycle.RecordAnomalyResolved(agentID)
			continue
		}
		if o.approvals.rejectedContains(agentID) {
			continue
		}
		scope := correlator.Correlate(report, fleet)
		go o.handleInfection(ctx, agentID, report, scope.Scope)
	}
}

func (q *approvalQueue) rejectedContains(agentID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.rejected[agentID]
	return ok
}

// scanFleet runs a Sentinel scan for every non-quarantined agent with a
// Ready baseline and at least one recorded vitals sample, keyed by agent id.
func (o *Orchestrator) scanFleet() map[string]vitals.InfectionReport {
	out := make(map[string]vitals.InfectionReport)
	for _, agentID := range o.KnownAgents() {
		if o.Quarantine.IsQuarantined(agentID) {
			continue
		}
		b := o.Baseline.Get(agentID)
		if !b.Ready() {
			continue
		}
		recent := o.Telemetry.Recent(agentID, sentinel.WindowSize)
		if len(recent) == 0 {
			continue
		}
		out[agentID] = sentinel.Scan(b, recent)
	}
	return out
}

// handleInfection applies the correlator's verdict: a FLEET_WIDE incident
// is logged but never drives an individual agent into containment (spec
// §4.11: "if FLEET_WIDE -> log, do not quarantine"). Anything narrower
// advances the lifecycle machine and, once DRAINING is reached, quarantines
// and either enqueues an approval or schedules healing.
func (o *Orchestrator) handleInfection(ctx context.Context, agentID string, report vitals.InfectionReport, scope correlator.Scope) {
	if o.Store != nil {
		_ = o.Store.WriteInfectionReport(ctx, report)
	}

	if o.Metrics != nil {
		o.Metrics.RecordInfection(string(scope))
	}

	if scope == correlator.ScopeFleetWide {
		slog.Warn("fleet-wide anomaly, not quarantining", "agent_id", agentID, "max_deviation", report.MaxDeviation, "run_id", o.runID)
		return
	}

	var phase lifecycle.Phase
	if report.MaxDeviation > o.cfg.SevereSkip {
		if !o.Lifecycle.ForceDrain(agentID, "severe_deviation") {
			return
		}
		phase = lifecycle.PhaseDraining
	} else {
		phase = o.Lifecycle.RecordAnomalyTick(agentID)
	}
	if phase != lifecycle.PhaseDraining {
		return
	}

	o.incInfections()
	slog.Warn("infection detected", "agent_id", agentID, "max_deviation", report.MaxDeviation,
		"anomalies", report.AnomalyList(), "run_id", o.runID)

	o.applyEnforcementHook(ctx, agentID, lifecycle.PhaseDraining)
	o.Lifecycle.CompleteDrain(agentID)
	o.applyEnforcementHook(ctx, agentID, lifecycle.PhaseQuarantined)

	o.logAction(ctx, store.ActionLogEntry{AgentID: agentID, Message: "quarantined"})
	if o.Metrics != nil {
		o.Metrics.RecordQuarantineEvent("quarantined")
	}
	slog.Warn("agent quarantined", "agent_id", agentID, "run_id", o.runID)

	diag := diagnosis.Diagnose(report, scope)
	if o.Store != nil {
		_ = o.Store.WriteDiagnosis(ctx, diag)
	}

	if sentinel.RequiresApproval(report) {
		o.approvals.enqueuePending(agentID, report, diag)
		o.logAction(ctx, store.ActionLogEntry{AgentID: agentID, Message: "approval_requested"})
		if o.Metrics != nil {
			o.Metrics.RecordApprovalEvent("requested")
		}
		slog.Info("approval requested", "agent_id", agentID, "max_deviation", report.MaxDeviation, "run_id", o.runID)
		return
	}

	o.startHealing(ctx, agentID, diag, "auto")
}

// applyEnforcementHook implements spec §4.10's "every transition calls an
// Enforcement hook": DRAINING/QUARANTINED/HEALING block, HEALTHY/PROBATION
// unblock. Calls are idempotent at the Strategy layer, so re-asserting the
// same state on a relapse is harmless.
func (o *Orchestrator) applyEnforcementHook(ctx context.Context, agentID string, phase lifecycle.Phase) {
	switch phase {
	case lifecycle.PhaseDraining:
		o.Quarantine.Drain(ctx, agentID, o.cfg.DrainTimeout)
		if o.Metrics != nil {
			o.Metrics.RecordQuarantineEvent("drained")
		}
	case lifecycle.PhaseQuarantined, lifecycle.PhaseHealing:
		o.Quarantine.Quarantine(ctx, agentID, string(phase))
	case lifecycle.PhaseHealthy, lifecycle.PhaseProbation:
		o.Quarantine.Release(ctx, agentID)
		if o.Metrics != nil {
			o.Metrics.RecordQuarantineEvent("released")
		}
	}
}

// healingSession tracks one agent's in-flight climb through its diagnosis's
// ranked hypotheses, so the probation loop can resume where heal_agent's
// last action left off once a probation window resolves.
type healingSession struct {
	diagnosis  vitals.DiagnosisResult
	hypIndex   int
	trigger    string
	lastAction vitals.HealingAction
}

// startHealing begins (or resumes) healing agentID per spec §4.11's
// heal_agent algorithm: transition to HEALING, then drive the first action
// of the highest-confidence hypothesis that still has one. Escalation
// across hypotheses and the probation pass/relapse decision happen in
// stepHealing and the probation loop, not here.
func (o *Orchestrator) startHealing(ctx context.Context, agentID string, diag vitals.DiagnosisResult, trigger string) {
	o.healingMu.Lock()
	if _, active := o.healingSessions[agentID]; active {
		o.healingMu.Unlock()
		return
	}
	o.healingSessions[agentID] = &healingSession{diagnosis: diag, trigger: trigger}
	o.healingMu.Unlock()

	o.Lifecycle.StartHealing(agentID, trigger+"_heal_started")
	o.applyEnforcementHook(ctx, agentID, lifecycle.PhaseHealing)
	o.stepHealing(ctx, agentID)
}

// stepHealing applies the next ladder action for the session's current
// hypothesis, escalating to the next hypothesis whenever the current one's
// ladder is exhausted, and marking the agent EXHAUSTED once every
// hypothesis has nothing left to try.
func (o *Orchestrator) stepHealing(ctx context.Context, agentID string) {
	o.healingMu.Lock()
	session, ok := o.healingSessions[agentID]
	o.healingMu.Unlock()
	if !ok {
		return
	}

	for session.hypIndex < len(session.diagnosis.Hypotheses) {
		h := session.diagnosis.Hypotheses[session.hypIndex]
		outcome := o.Healer.Step(ctx, agentID, h.Kind)

		if outcome.Err != nil && errors.Is(outcome.Err, vitals.ErrExhaustion) {
			session.hypIndex++
			continue
		}

		execSuccess := outcome.Err == nil && outcome.Result.Success
		o.logAction(ctx, store.ActionLogEntry{
			AgentID: agentID, Action: outcome.Action, Diagnosis: h.Kind,
			Success: execSuccess, Message: outcome.Result.Message,
		})
		if o.Metrics != nil {
			o.Metrics.RecordHealingAttempt(string(h.Kind), string(outcome.Action), execSuccess)
		}

		if !execSuccess {
			slog.Warn("healing action failed", "agent_id", agentID, "action", outcome.Action, "run_id", o.runID)
			continue // Healer.Step already recorded the failure; retry picks the next action.
		}

		session.lastAction = outcome.Action
		time.Sleep(o.cfg.HealingStepDelay)

		o.Lifecycle.EnterProbation(agentID)
		o.applyEnforcementHook(ctx, agentID, lifecycle.PhaseProbation)
		slog.Info("entering probation", "agent_id", agentID, "action", outcome.Action, "diagnosis_kind", h.Kind, "run_id", o.runID)
		return
	}

	o.healingMu.Lock()
	delete(o.healingSessions, agentID)
	o.healingMu.Unlock()

	o.Lifecycle.MarkExhausted(agentID)
	o.incFailedHealings()
	o.logAction(ctx, store.ActionLogEntry{AgentID: agentID, Message: "healing exhausted"})
	if o.Metrics != nil {
		o.Metrics.RecordHealingResolved("exhausted")
	}
	slog.Error("all healing actions exhausted", "agent_id", agentID, "run_id", o.runID)
}

// probationLoop ticks every cfg.ProbationTick, advancing every agent
// currently in PROBATION: a clean scan increments its probation tick count
// (passing at ProbationTicks), an anomaly relapses it straight back to the
// healing session's next action (spec §4.10: PROBATION -> HEALING "try next
// action").
func (o *Orchestrator) probationLoop(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.ProbationTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			o.probationTick(ctx)
		}
	}
}

func (o *Orchestrator) probationTick(ctx context.Context) {
	for _, agentID := range o.KnownAgents() {
		if o.Lifecycle.Phase(agentID) != lifecycle.PhaseProbation {
			continue
		}
		o.Lifecycle.RecordProbationTick(agentID)

		relapsed := false
		b := o.Baseline.Get(agentID)
		if recent := o.Telemetry.Recent(agentID, sentinel.WindowSize); len(recent) > 0 && b.Ready() {
			relapsed = sentinel.Infected(sentinel.Scan(b, recent))
		}

		o.healingMu.Lock()
		session := o.healingSessions[agentID]
		o.healingMu.Unlock()
		if session == nil {
			continue
		}
		kind := session.diagnosis.Hypotheses[session.hypIndex].Kind

		if relapsed {
			if o.Metrics != nil {
				o.Metrics.RecordProbationDuration(o.Lifecycle.ProbationTickCount(agentID))
			}
			o.Memory.RecordOutcome(agentID, kind, session.lastAction, false)
			slog.Warn("probation relapse", "agent_id", agentID, "action", session.lastAction, "run_id", o.runID)
			o.Lifecycle.StartHealing(agentID, "probation_relapse")
			o.applyEnforcementHook(ctx, agentID, lifecycle.PhaseHealing)
			o.stepHealing(ctx, agentID)
			continue
		}

		if o.Lifecycle.ProbationComplete(agentID) {
			o.Memory.RecordOutcome(agentID, kind, session.lastAction, true)
			ticks := o.Lifecycle.ProbationTickCount(agentID)
			o.healingMu.Lock()
			delete(o.healingSessions, agentID)
			o.healingMu.Unlock()

			o.Lifecycle.MarkHealthy(agentID, "probation_passed")
			o.applyEnforcementHook(ctx, agentID, lifecycle.PhaseHealthy)
			o.incHealed()
			o.logAction(ctx, store.ActionLogEntry{AgentID: agentID, Action: session.lastAction, Diagnosis: kind, Success: true, Message: "healing success"})
			if o.Metrics != nil {
				o.Metrics.RecordHealingResolved("healthy")
				o.Metrics.RecordProbationDuration(ticks)
			}
			slog.Info("healing success", "agent_id", agentID, "action", session.lastAction, "run_id", o.runID)
		}
	}
}
