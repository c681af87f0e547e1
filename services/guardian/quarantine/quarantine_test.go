// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package quarantine

import (
	"context"
	"testing"
	"time"

	"github.com/aleutian-ai/guardian/services/guardian/cache"
	"github.com/aleutian-ai/guardian/services/guardian/enforcement"
)

func newController(t *testing.T) *Controller {
	t.Helper()
	c, err := cache.Open("")
	if err != nil {
		t.Fatalf("cache.Open = %v", err)
	}
	return New(enforcement.NewNoOp(), c)
}

func TestQuarantineMarksAgentQuarantined(t *testing.T) {
	ctrl := newController(t)
	ctx := context.Background()

	if ctrl.IsQuarantined("agent-1") {
		t.Fatal("expected agent-1 to start unquarantined")
	}
	ctrl.Quarantine(ctx, "agent-1", "severe_anomaly")
	if !ctrl.IsQuarantined("agent-1") {
		t.Fatal("expected agent-1 to be quarantined after Quarantine()")
	}
	if ctrl.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", ctrl.Count())
	}
}

func TestQuarantineIsIdempotentOnTotalCount(t *testing.T) {
	ctrl := newController(t)
	ctx := context.Background()
	ctrl.Quarantine(ctx, "agent-1", "r1")
	ctrl.Quarantine(ctx, "agent-1", "r2")
	if ctrl.Count() != 1 {
		t.Fatalf("Count() = %d, want 1 (re-quarantining the same agent must not double count)", ctrl.Count())
	}
}

func TestReleaseClearsQuarantine(t *testing.T) {
	ctrl := newController(t)
	ctx := context.Background()
	ctrl.Quarantine(ctx, "agent-1", "severe_anomaly")
	ctrl.Release(ctx, "agent-1")
	if ctrl.IsQuarantined("agent-1") {
		t.Fatal("expected agent-1 to be released")
	}
	if ctrl.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", ctrl.Count())
	}
}

func TestDrainEndsQuarantinedNotDraining(t *testing.T) {
	ctrl := newController(t)
	ctx := context.Background()
	ctrl.Drain(ctx, "agent-1", 10*time.Millisecond)
	if ctrl.IsDraining("agent-1") {
		t.Fatal("expected draining to have cleared once Drain() returns")
	}
	if !ctrl.IsQuarantined("agent-1") {
		t.Fatal("expected Drain() to end in the agent being quarantined")
	}
}

func TestQuarantineDurationGrowsWhileQuarantined(t *testing.T) {
	ctrl := newController(t)
	ctx := context.Background()
	if d := ctrl.QuarantineDuration("agent-1"); d != 0 {
		t.Fatalf("QuarantineDuration before quarantine = %v, want 0", d)
	}
	ctrl.Quarantine(ctx, "agent-1", "r")
	time.Sleep(2 * time.Millisecond)
	if d := ctrl.QuarantineDuration("agent-1"); d <= 0 {
		t.Fatalf("QuarantineDuration after quarantine = %v, want > 0", d)
	}
}

func TestAllListsEveryQuarantinedAgent(t *testing.T) {
	ctrl := newController(t)
	ctx := context.Background()
	ctrl.Quarantine(ctx, "agent-1", "r")
	ctrl.Quarantine(ctx, "agent-2", "r")
	all := ctrl.All()
	if len(all) != 2 {
		t.Fatalf("All() = %v, want 2 entries", all)
	}
}

func TestNewWithNilStrategyDefaultsToNoOp(t *testing.T) {
	c, err := cache.Open("")
	if err != nil {
		t.Fatalf("cache.Open = %v", err)
	}
	ctrl := New(nil, c)
	result := ctrl.Quarantine(context.Background(), "agent-1", "r")
	if !result.Success {
		t.Fatalf("expected a NoOp strategy to report success, got %+v", result)
	}
}
