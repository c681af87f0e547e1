// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package immune remembers which healing actions worked for which
// diagnoses, on which agents, so the healer can skip what has already
// failed and prefer what has a track record of success.
package immune

import (
	"sort"
	"sync"

	"github.com/aleutian-ai/guardian/services/guardian/cache"
	"github.com/aleutian-ai/guardian/services/guardian/vitals"
)

// Memory is the coarse-grained-locked outcome table for the whole fleet
// (spec §5: cross-agent aggregate state uses coarse-grained locking, not a
// per-agent actor, because queries fan out across every agent's history).
type Memory struct {
	mu    sync.RWMutex
	cache *cache.Cache
}

// New returns a Memory backed by c for durability across restarts.
func New(c *cache.Cache) *Memory {
	m := &Memory{cache: c}
	return m
}

// RecordOutcome records one healing attempt's result for (agentID, kind,
// action).
func (m *Memory) RecordOutcome(agentID string, kind vitals.DiagnosisKind, action vitals.HealingAction, success bool) {
	key := cache.ImmuneKey(agentID, kind, action)
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, _ := m.cache.ImmuneRecordFor(key)
	if success {
		rec.Successes++
	} else {
		rec.Failures++
	}
	m.cache.PutImmuneRecord(key, rec)
}

// HasFailed reports whether action has ever failed for (agentID, kind).
func (m *Memory) HasFailed(agentID string, kind vitals.DiagnosisKind, action vitals.HealingAction) bool {
	key := cache.ImmuneKey(agentID, kind, action)
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.cache.ImmuneRecordFor(key)
	return ok && rec.Failures > 0
}

// FailedActions returns every action that has ever failed for (agentID, kind).
func (m *Memory) FailedActions(agentID string, kind vitals.DiagnosisKind) map[vitals.HealingAction]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[vitals.HealingAction]bool)
	prefix := agentID + "|" + string(kind) + "|"
	for key, rec := range m.cache.AllImmuneMemory() {
		if rec.Failures == 0 {
			continue
		}
		if action, ok := actionFromKey(key, prefix); ok {
			out[action] = true
		}
	}
	return out
}

// GlobalSuccessCount returns how many times action has succeeded for
// diagnosis kind, across every agent — used to reorder the healing ladder
// toward what has worked fleet-wide.
func (m *Memory) GlobalSuccessCount(kind vitals.DiagnosisKind, action vitals.HealingAction) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	suffix := "|" + string(kind) + "|" + string(action)
	for key, rec := range m.cache.AllImmuneMemory() {
		if hasSuffix(key, suffix) {
			total += rec.Successes
		}
	}
	return total
}

// RankBySuccess sorts actions by descending GlobalSuccessCount for kind,
// breaking ties by the actions' original order (stable sort preserves the
// caller's ladder-position tie-break).
func (m *Memory) RankBySuccess(kind vitals.DiagnosisKind, actions []vitals.HealingAction) []vitals.HealingAction {
	type scored struct {
		action vitals.HealingAction
		score  int
	}
	scoredActions := make([]scored, len(actions))
	for i, a := range actions {
		scoredActions[i] = scored{action: a, score: m.GlobalSuccessCount(kind, a)}
	}
	sort.SliceStable(scoredActions, func(i, j int) bool {
		return scoredActions[i].score > scoredActions[j].score
	})
	out := make([]vitals.HealingAction, len(scoredActions))
	for i, s := range scoredActions {
		out[i] = s.action
	}
	return out
}

func actionFromKey(key, prefix string) (vitals.HealingAction, bool) {
	if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
		return "", false
	}
	return vitals.HealingAction(key[len(prefix):]), true
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}
