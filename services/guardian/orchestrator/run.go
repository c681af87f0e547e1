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

	"golang.org/x/sync/errgroup"

	"github.com/aleutian-ai/guardian/services/guardian/lifecycle"
	"github.com/aleutian-ai/guardian/services/guardian/store"
)

func healActionLog(agentID, message string) store.ActionLogEntry {
	return store.ActionLogEntry{AgentID: agentID, Message: message}
}

// Run starts the sentinel loop, the probation loop, and the cache flusher
// under one errgroup and blocks until all of them have returned. The two
// loops return when ctx is canceled; the cache flusher returns only once
// Stop has been called.
// The per-agent mailbox goroutines are not part of this group: they are
// spawned and torn down individually as agents are registered (ingest.go).
func (o *Orchestrator) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return o.sentinelLoop(gctx) })
	g.Go(func() error { return o.probationLoop(gctx) })
	if o.Cache != nil {
		g.Go(func() error {
			o.Cache.Run()
			return nil
		})
	}

	slog.Info("orchestrator running", "run_id", o.runID)
	return g.Wait()
}

// Stop cancels every per-agent mailbox worker and flushes the cache, waiting
// up to cfg.ShutdownFlushDeadline for the flush to complete. The sentinel
// and probation loops started by Run observe ctx's own cancellation; the
// cache flusher does not, and exits only through this call.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	for _, cancel := range o.cancel {
		cancel()
	}
	o.mu.Unlock()

	if o.Cache == nil {
		return nil
	}
	if err := o.Cache.Stop(o.cfg.ShutdownFlushDeadline); err != nil {
		slog.Warn("cache flush on shutdown did not complete in time", "err", err)
		return err
	}
	return nil
}

// Approve moves agentID out of PENDING and schedules healing using the
// diagnosis computed when the approval was requested.
func (o *Orchestrator) Approve(ctx context.Context, agentID string) bool {
	e, ok := o.approvals.approve(agentID)
	if !ok {
		return false
	}
	o.logAction(ctx, healActionLog(agentID, "approved"))
	if o.Metrics != nil {
		o.Metrics.RecordApprovalEvent("approved")
	}
	go o.startHealing(ctx, agentID, e.diagnosis, "approved")
	return true
}

// Reject moves agentID from PENDING to REJECTED, leaving it quarantined but
// not scheduling healing until an operator calls HealNow.
func (o *Orchestrator) Reject(agentID string) bool {
	_, ok := o.approvals.reject(agentID)
	if ok && o.Metrics != nil {
		o.Metrics.RecordApprovalEvent("rejected")
	}
	return ok
}

// HealNow moves agentID out of REJECTED and schedules healing immediately,
// for an operator who changes their mind after an earlier rejection.
func (o *Orchestrator) HealNow(ctx context.Context, agentID string) bool {
	e, ok := o.approvals.healNow(agentID)
	if !ok {
		return false
	}
	o.logAction(ctx, healActionLog(agentID, "heal_now"))
	if o.Metrics != nil {
		o.Metrics.RecordApprovalEvent("heal_now")
	}
	go o.startHealing(ctx, agentID, e.diagnosis, "heal_now")
	return true
}

// ApproveAll approves every currently PENDING agent, in arrival order.
func (o *Orchestrator) ApproveAll(ctx context.Context) int {
	n := 0
	for _, id := range o.approvals.pendingIDs() {
		if o.Approve(ctx, id) {
			n++
		}
	}
	return n
}

// RejectAll rejects every currently PENDING agent, in arrival order.
func (o *Orchestrator) RejectAll() int {
	n := 0
	for _, id := range o.approvals.pendingIDs() {
		if o.Reject(id) {
			n++
		}
	}
	return n
}

// HealNowAll schedules healing for every currently REJECTED agent, in
// arrival order, matching the reference's "heal everything I previously
// deferred" bulk action.
func (o *Orchestrator) HealNowAll(ctx context.Context) int {
	n := 0
	for _, id := range o.approvals.rejectedIDs() {
		if o.HealNow(ctx, id) {
			n++
		}
	}
	return n
}

// AgentPhaseCounts returns the number of known agents in each lifecycle
// phase, for the dashboard's fleet summary.
func (o *Orchestrator) AgentPhaseCounts() map[lifecycle.Phase]int {
	counts := make(map[lifecycle.Phase]int)
	for _, id := range o.KnownAgents() {
		counts[o.Lifecycle.Phase(id)]++
	}
	return counts
}
