// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"sort"
	"sync"

	"github.com/aleutian-ai/guardian/services/guardian/vitals"
)

// MemoryStore is an in-process reference Store, used by tests and by
// single-binary deployments that don't wire an InfluxStore/HTTPStore.
type MemoryStore struct {
	mu          sync.RWMutex
	vitalsByAg  map[string][]vitals.Vitals
	baselines   map[string]vitals.BaselineProfile
	feedback    map[string][]vitals.Feedback
	actionLog   []ActionLogEntry
	reports     []vitals.InfectionReport
	diagnoses   []vitals.DiagnosisResult
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vitalsByAg: make(map[string][]vitals.Vitals),
		baselines:  make(map[string]vitals.BaselineProfile),
		feedback:   make(map[string][]vitals.Feedback),
	}
}

func (m *MemoryStore) WriteVitals(_ context.Context, v vitals.Vitals) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vitalsByAg[v.AgentID] = append(m.vitalsByAg[v.AgentID], v)
	return nil
}

func (m *MemoryStore) RecentVitals(_ context.Context, agentID string, limit int) ([]vitals.Vitals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.vitalsByAg[agentID]
	return lastNVitals(all, limit), nil
}

func lastNVitals(all []vitals.Vitals, limit int) []vitals.Vitals {
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]vitals.Vitals, limit)
	for i := 0; i < limit; i++ {
		out[i] = all[len(all)-1-i]
	}
	return out
}

func (m *MemoryStore) WriteBaseline(_ context.Context, b vitals.BaselineProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baselines[b.AgentID] = b
	return nil
}

func (m *MemoryStore) ReadBaseline(_ context.Context, agentID string) (vitals.BaselineProfile, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.baselines[agentID]
	return b, ok, nil
}

func (m *MemoryStore) WriteInfectionReport(_ context.Context, r vitals.InfectionReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, r)
	return nil
}

func (m *MemoryStore) WriteDiagnosis(_ context.Context, d vitals.DiagnosisResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.diagnoses = append(m.diagnoses, d)
	return nil
}

func (m *MemoryStore) WriteFeedback(_ context.Context, f vitals.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedback[f.AgentID] = append(m.feedback[f.AgentID], f)
	return nil
}

func (m *MemoryStore) RecentFeedback(_ context.Context, agentID string, limit int) ([]vitals.Feedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.feedback[agentID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]vitals.Feedback, limit)
	for i := 0; i < limit; i++ {
		out[i] = all[len(all)-1-i]
	}
	return out, nil
}

func (m *MemoryStore) WriteActionLog(_ context.Context, e ActionLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actionLog = append(m.actionLog, e)
	return nil
}

func (m *MemoryStore) RecentActionLog(_ context.Context, limit int) ([]ActionLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.actionLog
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]ActionLogEntry, limit)
	for i := 0; i < limit; i++ {
		out[i] = all[len(all)-1-i]
	}
	return out, nil
}

func (m *MemoryStore) KnownAgents(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.vitalsByAg))
	for id := range m.vitalsByAg {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
