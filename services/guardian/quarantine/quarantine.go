// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package quarantine owns the set of currently-isolated agents, delegating
// the actual block/unblock mechanics to an enforcement.Strategy and
// persisting membership in the cache so it survives a restart.
package quarantine

import (
	"context"
	"sync"
	"time"

	"github.com/aleutian-ai/guardian/services/guardian/cache"
	"github.com/aleutian-ai/guardian/services/guardian/enforcement"
)

// Controller tracks quarantine membership and dispatches enforcement.
type Controller struct {
	strategy enforcement.Strategy
	cache    *cache.Cache

	mu              sync.RWMutex
	draining        map[string]bool
	quarantinedAt   map[string]time.Time
	totalQuarantines int
}

// New returns a Controller enforcing with strategy and persisting
// membership through c. If strategy is nil, enforcement.NewNoOp() is used.
func New(strategy enforcement.Strategy, c *cache.Cache) *Controller {
	if strategy == nil {
		strategy = enforcement.NewNoOp()
	}
	ctrl := &Controller{
		strategy:      strategy,
		cache:         c,
		draining:      make(map[string]bool),
		quarantinedAt: make(map[string]time.Time),
	}
	for _, id := range c.AllQuarantined() {
		ctrl.quarantinedAt[id] = time.Now()
	}
	return ctrl
}

// Quarantine blocks agentID via the configured strategy and marks it
// quarantined, regardless of whether enforcement itself reported success
// (matching the reference behavior: enforcement failure is logged, not
// treated as "still running free" — Guardian always isolates at the
// bookkeeping layer even if the underlying block call didn't take).
func (c *Controller) Quarantine(ctx context.Context, agentID, reason string) enforcement.Result {
	result := c.strategy.Block(ctx, agentID, reason)
	c.markQuarantined(agentID)
	return result
}

func (c *Controller) markQuarantined(agentID string) {
	c.mu.Lock()
	if _, already := c.quarantinedAt[agentID]; !already {
		c.quarantinedAt[agentID] = time.Now()
		c.totalQuarantines++
	}
	delete(c.draining, agentID)
	c.mu.Unlock()
	_ = c.cache.SetQuarantined(agentID, true)
}

func (c *Controller) markReleased(agentID string) {
	c.mu.Lock()
	delete(c.quarantinedAt, agentID)
	delete(c.draining, agentID)
	c.mu.Unlock()
	_ = c.cache.SetQuarantined(agentID, false)
}

// Drain begins a graceful drain: new work is blocked while in-flight work
// is allowed to finish, up to timeout, after which the agent is fully
// quarantined.
func (c *Controller) Drain(ctx context.Context, agentID string, timeout time.Duration) enforcement.Result {
	c.mu.Lock()
	c.draining[agentID] = true
	c.mu.Unlock()

	result := c.strategy.Drain(ctx, agentID, timeout)

	c.mu.Lock()
	delete(c.draining, agentID)
	c.mu.Unlock()

	c.markQuarantined(agentID)
	return result
}

// Release unblocks agentID via the configured strategy and clears its
// quarantine membership.
func (c *Controller) Release(ctx context.Context, agentID string) enforcement.Result {
	result := c.strategy.Unblock(ctx, agentID)
	c.markReleased(agentID)
	return result
}

// IsQuarantined reports whether agentID is currently quarantined.
func (c *Controller) IsQuarantined(agentID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.quarantinedAt[agentID]
	return ok
}

// IsDraining reports whether agentID is currently draining.
func (c *Controller) IsDraining(agentID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.draining[agentID]
}

// QuarantineDuration returns how long agentID has been quarantined, or 0
// if it isn't.
func (c *Controller) QuarantineDuration(agentID string) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	since, ok := c.quarantinedAt[agentID]
	if !ok {
		return 0
	}
	return time.Since(since)
}

// Count returns the number of currently quarantined agents.
func (c *Controller) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.quarantinedAt)
}

// All returns every currently quarantined agent id.
func (c *Controller) All() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.quarantinedAt))
	for id := range c.quarantinedAt {
		out = append(out, id)
	}
	return out
}
