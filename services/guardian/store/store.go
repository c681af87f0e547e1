// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store defines Guardian's durability boundary: everything the
// orchestration loops need to persist or read back, independent of which
// time-series backend holds it.
package store

import (
	"context"
	"time"

	"github.com/aleutian-ai/guardian/services/guardian/vitals"
)

// ActionLogEntry is one row of the append-only healing action log.
type ActionLogEntry struct {
	AgentID    string               `json:"agent_id"`
	RunID      string               `json:"run_id"`
	Action     vitals.HealingAction `json:"action"`
	Diagnosis  vitals.DiagnosisKind `json:"diagnosis"`
	Success    bool                 `json:"success"`
	Message    string               `json:"message"`
	At         time.Time            `json:"at"`
}

// Store is everything Guardian persists outside of the in-process cache.
// Implementations must be safe for concurrent use.
type Store interface {
	// WriteVitals appends one vitals record for agentID.
	WriteVitals(ctx context.Context, v vitals.Vitals) error

	// RecentVitals returns up to limit of the most recent vitals records for
	// agentID, newest first.
	RecentVitals(ctx context.Context, agentID string, limit int) ([]vitals.Vitals, error)

	// WriteBaseline persists the current baseline snapshot for one agent.
	WriteBaseline(ctx context.Context, b vitals.BaselineProfile) error

	// ReadBaseline returns the last persisted baseline for agentID, or
	// ok=false if none exists.
	ReadBaseline(ctx context.Context, agentID string) (vitals.BaselineProfile, bool, error)

	// WriteInfectionReport appends one Sentinel scan result.
	WriteInfectionReport(ctx context.Context, r vitals.InfectionReport) error

	// WriteDiagnosis appends one Diagnostician result.
	WriteDiagnosis(ctx context.Context, d vitals.DiagnosisResult) error

	// WriteFeedback appends one operator feedback correction.
	WriteFeedback(ctx context.Context, f vitals.Feedback) error

	// RecentFeedback returns up to limit of the most recent feedback entries
	// for agentID, newest first.
	RecentFeedback(ctx context.Context, agentID string, limit int) ([]vitals.Feedback, error)

	// WriteActionLog appends one healing action log entry.
	WriteActionLog(ctx context.Context, e ActionLogEntry) error

	// RecentActionLog returns up to limit of the most recent action log
	// entries across the whole fleet, newest first.
	RecentActionLog(ctx context.Context, limit int) ([]ActionLogEntry, error)

	// KnownAgents returns every agent id that has ever written vitals.
	KnownAgents(ctx context.Context) ([]string, error)

	// Ping checks backend reachability; used by the dashboard's degraded flag.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
