// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator wires every other Guardian package into the three
// cooperative loops (agent, sentinel, probation) that drive a fleet through
// detection, diagnosis, containment, and healing, plus the approval queue
// the external surface reads and mutates.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aleutian-ai/guardian/services/guardian/baseline"
	"github.com/aleutian-ai/guardian/services/guardian/cache"
	"github.com/aleutian-ai/guardian/services/guardian/enforcement"
	"github.com/aleutian-ai/guardian/services/guardian/executor"
	"github.com/aleutian-ai/guardian/services/guardian/healer"
	"github.com/aleutian-ai/guardian/services/guardian/immune"
	"github.com/aleutian-ai/guardian/services/guardian/lifecycle"
	"github.com/aleutian-ai/guardian/services/guardian/observability"
	"github.com/aleutian-ai/guardian/services/guardian/quarantine"
	"github.com/aleutian-ai/guardian/services/guardian/store"
	"github.com/aleutian-ai/guardian/services/guardian/telemetry"
	"github.com/aleutian-ai/guardian/services/guardian/vitals"
)

// Config controls the loop cadences and thresholds spec §5 names defaults
// for. Zero values fall back to those defaults.
type Config struct {
	AgentTick      time.Duration
	SentinelTick   time.Duration
	ProbationTick  time.Duration
	HealingStepDelay time.Duration

	// SevereSkip is the deviation above which the SUSPECTED state is
	// bypassed entirely and an agent goes straight to DRAINING.
	SevereSkip float64

	SuspectTicks   int
	DrainTimeout   time.Duration
	ProbationTicks int

	// MailboxCapacity bounds each agent's per-agent vitals channel.
	MailboxCapacity int

	// ShutdownFlushDeadline bounds how long Stop waits for the cache
	// flusher to perform its final write.
	ShutdownFlushDeadline time.Duration

	// ActionLogCap bounds the in-memory fallback action log kept when no
	// Store is configured.
	ActionLogCap int
}

func (c Config) withDefaults() Config {
	if c.AgentTick <= 0 {
		c.AgentTick = time.Second
	}
	if c.SentinelTick <= 0 {
		c.SentinelTick = time.Second
	}
	if c.ProbationTick <= 0 {
		c.ProbationTick = time.Second
	}
	if c.HealingStepDelay <= 0 {
		c.HealingStepDelay = healer.StepDelay
	}
	if c.SevereSkip <= 0 {
		c.SevereSkip = 6.0
	}
	if c.SuspectTicks <= 0 {
		c.SuspectTicks = lifecycle.DefaultSuspectTicks
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = lifecycle.DefaultDrainTimeout
	}
	if c.ProbationTicks <= 0 {
		c.ProbationTicks = lifecycle.DefaultProbationTicks
	}
	if c.MailboxCapacity <= 0 {
		c.MailboxCapacity = 256
	}
	if c.ShutdownFlushDeadline <= 0 {
		c.ShutdownFlushDeadline = 2 * time.Second
	}
	if c.ActionLogCap <= 0 {
		c.ActionLogCap = 80
	}
	return c
}

// Stats are the lifetime counters surfaced on the dashboard.
type Stats struct {
	TotalInfections      int
	TotalHealed          int
	TotalFailedHealings  int
	StartedAt            time.Time
}

// Orchestrator coordinates telemetry, baseline learning, detection,
// diagnosis, healing, and lifecycle transitions for every known agent.
type Orchestrator struct {
	cfg Config

	Telemetry  *telemetry.Tracker
	Baseline   *baseline.Learner
	Memory     *immune.Memory
	Healer     *healer.Healer
	Lifecycle  *lifecycle.Manager
	Quarantine *quarantine.Controller
	Cache      *cache.Cache
	Store      store.Store
	Metrics    *observability.Metrics

	runID string

	mu     sync.Mutex
	agents map[string]chan vitals.Vitals
	cancel map[string]context.CancelFunc

	healingMu       sync.Mutex
	healingSessions map[string]*healingSession

	statsMu sync.Mutex
	stats   Stats

	actionLogMu  sync.Mutex
	actionLog    []store.ActionLogEntry

	approvals *approvalQueue
}

// New returns an Orchestrator with every component wired together. c and st
// may both be non-nil; c always backs baselines/immune memory/quarantine
// membership, st is the optional durability/query backend used for
// telemetry write-through and dashboard history.
func New(cfg Config, c *cache.Cache, st store.Store, exec executor.Executor, strategy enforcement.Strategy, metrics *observability.Metrics) *Orchestrator {
	cfg = cfg.withDefaults()

	mem := immune.New(c)
	lc := lifecycle.New(lifecycle.Config{
		SuspectTicks:   cfg.SuspectTicks,
		DrainTimeout:   cfg.DrainTimeout,
		ProbationTicks: cfg.ProbationTicks,
	})

	o := &Orchestrator{
		cfg:               cfg,
		Telemetry:         telemetry.New(telemetry.DefaultCapacity, st),
		Baseline:          baseline.New(baseline.Config{}, c, st),
		Memory:            mem,
		Healer:            healer.New(mem, exec),
		Lifecycle:         lc,
		Quarantine:        quarantine.New(strategy, c),
		Cache:             c,
		Store:             st,
		Metrics:           metrics,
		agents:          make(map[string]chan vitals.Vitals),
		cancel:          make(map[string]context.CancelFunc),
		healingSessions: make(map[string]*healingSession),
		stats:           Stats{StartedAt: time.Now()},
		approvals:       newApprovalQueue(),
	}

	if id := c.RunID(); id != "" {
		o.runID = id
	} else {
		o.runID = "run-" + uuid.NewString()
		if err := c.SetRunID(o.runID); err != nil {
			slog.Warn("failed to persist new run id", "err", err)
		}
	}

	return o
}

// RunID returns the run id scoping every Store-bound record this process
// writes (spec §3's "every Store-bound record carries the scoping run_id").
func (o *Orchestrator) RunID() string { return o.runID }

// Stats returns a snapshot of the lifetime counters.
func (o *Orchestrator) Stats() Stats {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	return o.stats
}

func (o *Orchestrator) incInfections() {
	o.statsMu.Lock()
	o.stats.TotalInfections++
	o.statsMu.Unlock()
}

func (o *Orchestrator) incHealed() {
	o.statsMu.Lock()
	o.stats.TotalHealed++
	o.statsMu.Unlock()
}

func (o *Orchestrator) incFailedHealings() {
	o.statsMu.Lock()
	o.stats.TotalFailedHealings++
	o.statsMu.Unlock()
}

// logAction appends one entry to the Store's action log (or an in-memory
// fallback ring if no Store is configured), for the dashboard's "recent
// healing actions" view.
func (o *Orchestrator) logAction(ctx context.Context, e store.ActionLogEntry) {
	e.RunID = o.runID
	e.At = time.Now()
	if o.Store != nil {
		if err := o.Store.WriteActionLog(ctx, e); err == nil {
			return
		}
	}
	o.actionLogMu.Lock()
	defer o.actionLogMu.Unlock()
	o.actionLog = append(o.actionLog, e)
	if len(o.actionLog) > o.cfg.ActionLogCap {
		o.actionLog = o.actionLog[len(o.actionLog)-o.cfg.ActionLogCap:]
	}
}

// RecentActions returns up to limit of the most recent healing action log
// entries, newest first.
func (o *Orchestrator) RecentActions(ctx context.Context, limit int) []store.ActionLogEntry {
	if o.Store != nil {
		if entries, err := o.Store.RecentActionLog(ctx, limit); err == nil {
			return entries
		}
	}
	o.actionLogMu.Lock()
	defer o.actionLogMu.Unlock()
	n := len(o.actionLog)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]store.ActionLogEntry, n)
	for i := 0; i < n; i++ {
		out[i] = o.actionLog[len(o.actionLog)-1-i]
	}
	return out
}
