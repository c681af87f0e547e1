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
	"sync"
	"time"

	"github.com/aleutian-ai/guardian/services/guardian/vitals"
)

// pendingEntry is one agent awaiting a human decision before healing.
type pendingEntry struct {
	agentID     string
	infection   vitals.InfectionReport
	diagnosis   vitals.DiagnosisResult
	requestedAt time.Time
}

type rejectedEntry struct {
	agentID    string
	infection  vitals.InfectionReport
	diagnosis  vitals.DiagnosisResult
	rejectedAt time.Time
}

// approvalQueue is the coarse-grained-locked workflow state spec §5 calls
// out for cross-agent aggregate state. It is processed in arrival order:
// pending/rejected are ordered maps backed by an insertion-order slice of
// keys, so bulk operations apply in the order agents first appeared.
type approvalQueue struct {
	mu       sync.Mutex
	pending  map[string]*pendingEntry
	rejected map[string]*rejectedEntry
	order    []string
}

func newApprovalQueue() *approvalQueue {
	return &approvalQueue{
		pending:  make(map[string]*pendingEntry),
		rejected: make(map[string]*rejectedEntry),
	}
}

func (q *approvalQueue) enqueuePending(agentID string, infection vitals.InfectionReport, diagnosis vitals.DiagnosisResult) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.pending[agentID]; !exists {
		q.order = append(q.order, agentID)
	}
	q.pending[agentID] = &pendingEntry{agentID: agentID, infection: infection, diagnosis: diagnosis, requestedAt: time.Now()}
}

// approve removes agentID from PENDING and reports whether it was there.
func (q *approvalQueue) approve(agentID string) (*pendingEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.pending[agentID]
	if !ok {
		return nil, false
	}
	delete(q.pending, agentID)
	return e, true
}

// reject moves agentID from PENDING to REJECTED.
func (q *approvalQueue) reject(agentID string) (*pendingEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.pending[agentID]
	if !ok {
		return nil, false
	}
	delete(q.pending, agentID)
	q.rejected[agentID] = &rejectedEntry{agentID: agentID, infection: e.infection, diagnosis: e.diagnosis, rejectedAt: time.Now()}
	return e, true
}

// healNow removes agentID from REJECTED so it can be rescheduled.
func (q *approvalQueue) healNow(agentID string) (*rejectedEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.rejected[agentID]
	if !ok {
		return nil, false
	}
	delete(q.rejected, agentID)
	return e, true
}

func (q *approvalQueue) pendingIDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.pending))
	for _, id := range q.order {
		if _, ok := q.pending[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func (q *approvalQueue) rejectedIDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.rejected))
	seen := make(map[string]bool, len(q.rejected))
	for _, id := range q.order {
		if _, ok := q.rejected[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func (q *approvalQueue) listPending() []*pendingEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*pendingEntry, 0, len(q.pending))
	for _, id := range q.order {
		if e, ok := q.pending[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

func (q *approvalQueue) listRejected() []*rejectedEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*rejectedEntry, 0, len(q.rejected))
	seen := make(map[string]bool, len(q.rejected))
	for _, id := range q.order {
		if e, ok := q.rejected[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, e)
		}
	}
	return out
}

// PendingApprovals lists agents currently awaiting an operator decision.
func (o *Orchestrator) PendingApprovals() []*pendingEntry {
	return o.approvals.listPending()
}

// RejectedApprovals lists agents whose healing was explicitly rejected.
func (o *Orchestrator) RejectedApprovals() []*rejectedEntry {
	return o.approvals.listRejected()
}
