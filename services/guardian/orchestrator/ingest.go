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
	"log/slog"

	"github.com/aleutian-ai/guardian/services/guardian/lifecycle"
	"github.com/aleutian-ai/guardian/services/guardian/vitals"
)

// registerAgent lazily creates agentID's mailbox and worker goroutine the
// first time it's seen, matching spec §5's "per-agent mailbox owned by a
// single worker goroutine" model — one shard per agent rather than a fixed
// worker pool, since a production fleet's agent count is small relative to
// request volume per agent.
func (o *Orchestrator) registerAgent(ctx context.Context, agentID string) chan vitals.Vitals {
	o.mu.Lock()
	defer o.mu.Unlock()

	if ch, ok := o.agents[agentID]; ok {
		return ch
	}

	ch := make(chan vitals.Vitals, o.cfg.MailboxCapacity)
	workerCtx, cancel := context.WithCancel(ctx)
	o.agents[agentID] = ch
	o.cancel[agentID] = cancel

	go o.runAgentMailbox(workerCtx, agentID, ch)
	return ch
}

// runAgentMailbox processes agentID's vitals in arrival order: telemetry
// record, baseline update, and the INITIALIZING -> HEALTHY transition the
// first time the baseline becomes Ready. One goroutine per agent makes this
// ordering automatic without an explicit per-agent lock.
func (o *Orchestrator) runAgentMailbox(ctx context.Context, agentID string, ch chan vitals.Vitals) {
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-ch:
			if !ok {
				return
			}
			o.processVitals(ctx, agentID, v)
		}
	}
}

func (o *Orchestrator) processVitals(ctx context.Context, agentID string, v vitals.Vitals) {
	o.Telemetry.Record(ctx, v)
	before := o.Baseline.Get(agentID)
	wasReady := before.Ready()
	after := o.Baseline.Update(ctx, v)
	if !wasReady && after.Ready() {
		o.Lifecycle.MarkBaselineReady(agentID)
		slog.Info("baseline ready", "agent_id", agentID, "run_id", o.runID)
	}
}

// IngestOutcome tells the external surface how a vitals record was
// handled, so handlers can pick the right HTTP status (spec §6).
type IngestOutcome string

const (
	IngestAccepted         IngestOutcome = "accepted"
	IngestBlockedByLifecycle IngestOutcome = "blocked"
)

// Ingest accepts one vitals record for agentID (auto-registering it if
// unseen) and, if its current lifecycle phase permits execution, queues it
// for telemetry/baseline processing. A blocked agent's sample is dropped
// without being recorded or fed into learning, matching spec §4.11's agent
// loop gate. A sample that finds the agent's mailbox full is dropped too,
// and is also reported as IngestBlockedByLifecycle.
func (o *Orchestrator) Ingest(ctx context.Context, v vitals.Vitals) IngestOutcome {
	ch := o.registerAgent(ctx, v.AgentID)

	if !o.Lifecycle.IsExecutionAllowed(v.AgentID) {
		return IngestBlockedByLifecycle
	}

	select {
	case ch <- v:
		return IngestAccepted
	default:
		slog.Warn("agent mailbox full, dropping vitals", "agent_id", v.AgentID)
		return IngestBlockedByLifecycle
	}
}

// KnownAgents returns every agent id Ingest has ever registered.
func (o *Orchestrator) KnownAgents() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.agents))
	for id := range o.agents {
		out = append(out, id)
	}
	return out
}

// AgentPhase returns agentID's current lifecycle phase, or PhaseInitializing
// if it has never been registered.
func (o *Orchestrator) AgentPhase(agentID string) lifecycle.Phase {
	return o.Lifecycle.Phase(agentID)
}
