// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry holds the in-memory ring buffer of recent vitals for
// every agent Guardian has seen, with write-through to a Store so the
// fleet's history outlives a single process.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/aleutian-ai/guardian/services/guardian/store"
	"github.com/aleutian-ai/guardian/services/guardian/vitals"
)

// DefaultCapacity is the minimum ring size Guardian guarantees per agent.
const DefaultCapacity = 2000

// ring is a fixed-capacity circular buffer of vitals for one agent.
type ring struct {
	mu       sync.RWMutex
	buf      []vitals.Vitals
	capacity int
	next     int
	size     int
	total    atomic.Int64
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &ring{buf: make([]vitals.Vitals, capacity), capacity: capacity}
}

func (r *ring) push(v vitals.Vitals) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = v
	r.next = (r.next + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
	r.total.Add(1)
}

func (r *ring) latest() (vitals.Vitals, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.size == 0 {
		return vitals.Vitals{}, false
	}
	idx := (r.next - 1 + r.capacity) % r.capacity
	return r.buf[idx], true
}

// recent returns up to n of the most recent vitals, newest first.
func (r *ring) recent(n int) []vitals.Vitals {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n <= 0 || n > r.size {
		n = r.size
	}
	out := make([]vitals.Vitals, n)
	idx := (r.next - 1 + r.capacity) % r.capacity
	for i := 0; i < n; i++ {
		out[i] = r.buf[idx]
		idx = (idx - 1 + r.capacity) % r.capacity
	}
	return out
}

func (r *ring) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Tracker is the per-agent telemetry ring buffer collection. It is safe for
// concurrent use.
type Tracker struct {
	capacity int
	st       store.Store

	mu     sync.RWMutex
	rings  map[string]*ring
}

// New returns a Tracker holding up to capacity vitals per agent, writing
// through to st. If st is nil, vitals are kept in memory only.
func New(capacity int, st store.Store) *Tracker {
	return &Tracker{capacity: capacity, st: st, rings: make(map[string]*ring)}
}

func (t *Tracker) ringFor(agentID string) *ring {
	t.mu.RLock()
	r, ok := t.rings[agentID]
	t.mu.RUnlock()
	if ok {
		return r
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.rings[agentID]; ok {
		return r
	}
	r = newRing(t.capacity)
	t.rings[agentID] = r
	return r
}

// Record appends v to agentID's ring and, if a Store is configured, writes
// it through. A Store failure is logged and swallowed: telemetry is
// best-effort durability on top of an always-available in-memory ring (spec
// §4.1's "falls back to buffering in memory" behavior).
func (t *Tracker) Record(ctx context.Context, v vitals.Vitals) {
	t.ringFor(v.AgentID).push(v)
	if t.st == nil {
		return
	}
	if err := t.st.WriteVitals(ctx, v); err != nil {
		slog.Warn("telemetry store write-through failed, buffering in memory only",
			"agent_id", v.AgentID, "err", err)
	}
}

// Latest returns the most recent vitals recorded for agentID.
func (t *Tracker) Latest(agentID string) (vitals.Vitals, bool) {
	return t.ringFor(agentID).latest()
}

// Recent returns up to n of the most recent in-memory vitals for agentID,
// newest first.
func (t *Tracker) Recent(agentID string, n int) []vitals.Vitals {
	return t.ringFor(agentID).recent(n)
}

// Count returns how many vitals are currently buffered in memory for
// agentID (capped at the ring capacity).
func (t *Tracker) Count(agentID string) int {
	return t.ringFor(agentID).count()
}

// Total returns the lifetime count of vitals recorded for agentID,
// uncapped by ring capacity.
func (t *Tracker) Total(agentID string) int64 {
	return t.ringFor(agentID).total.Load()
}

// KnownAgents returns every agent id with at least one recorded vitals
// entry in memory.
func (t *Tracker) KnownAgents() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.rings))
	for id, r := range t.rings {
		if r.count() > 0 {
			out = append(out, id)
		}
	}
	return out
}
