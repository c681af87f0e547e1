// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aleutian-ai/guardian/services/guardian/vitals"
)

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guardian-cache.json")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open() = %v, want nil error for a missing file", err)
	}
	if c.APIKey() != "" {
		t.Fatalf("APIKey() = %q, want empty on a fresh cache", c.APIKey())
	}
}

func TestOpenCorruptFileStillReturnsUsableCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guardian-cache.json")
	if err := os.WriteFile(path, []byte("not json"), 0600); err != nil {
		t.Fatalf("setup WriteFile = %v", err)
	}
	c, err := Open(path)
	if err == nil {
		t.Fatal("expected Open() to report the corruption")
	}
	if c == nil {
		t.Fatal("expected Open() to still return a usable Cache despite corruption")
	}
	// A usable cache means callers can keep going without a nil check.
	c.PutBaseline(vitals.BaselineProfile{AgentID: "agent-1"})
	if _, ok := c.Baseline("agent-1"); !ok {
		t.Fatal("expected the corrupt-recovered cache to accept new writes")
	}
}

func TestOpenDiscardsMismatchedSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guardian-cache.json")
	old := Snapshot{SchemaVersion: schemaVersion + 1, APIKey: "stale-key"}
	if err := writeAtomic(path, old); err != nil {
		t.Fatalf("writeAtomic = %v", err)
	}
	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	if c.APIKey() != "" {
		t.Fatalf("APIKey() = %q, want discarded (empty) on schema mismatch", c.APIKey())
	}
}

func TestSetAPIKeyForcesImmediateFlushSurvivingReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guardian-cache.json")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	if err := c.SetAPIKey("gk-abc123"); err != nil {
		t.Fatalf("SetAPIKey() = %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("re-Open() = %v", err)
	}
	if reopened.APIKey() != "gk-abc123" {
		t.Fatalf("APIKey() after reopen = %q, want gk-abc123", reopened.APIKey())
	}
}

func TestSetQuarantinedForcesImmediateFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guardian-cache.json")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	if err := c.SetQuarantined("agent-1", true); err != nil {
		t.Fatalf("SetQuarantined(true) = %v", err)
	}
	reopened, _ := Open(path)
	all := reopened.AllQuarantined()
	if len(all) != 1 || all[0] != "agent-1" {
		t.Fatalf("AllQuarantined() after reopen = %v, want [agent-1]", all)
	}

	if err := c.SetQuarantined("agent-1", false); err != nil {
		t.Fatalf("SetQuarantined(false) = %v", err)
	}
	if c.IsQuarantined("agent-1") {
		t.Fatal("expected agent-1 to be cleared")
	}
}

func TestPutBaselineIsDirtyButNotFlushedUntilFlushIfDirty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guardian-cache.json")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	c.PutBaseline(vitals.BaselineProfile{AgentID: "agent-1", SampleCount: 5})
	if _, err := os.Stat(path); err == nil {
		t.Fatal("expected a coalesced write to not hit disk before a flush")
	}
	if err := c.flushIfDirty(); err != nil {
		t.Fatalf("flushIfDirty() = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected the file to exist after flushIfDirty(), stat error: %v", err)
	}
}

func TestImmuneRecordRoundTrip(t *testing.T) {
	c, err := Open("")
	if err != nil {
		t.Fatalf("Open(\"\") = %v", err)
	}
	key := ImmuneKey("agent-1", vitals.DiagnosisPromptDrift, vitals.ActionResetMemory)
	if _, ok := c.ImmuneRecordFor(key); ok {
		t.Fatal("expected no record before any write")
	}
	c.PutImmuneRecord(key, ImmuneRecord{Successes: 1})
	rec, ok := c.ImmuneRecordFor(key)
	if !ok || rec.Successes != 1 {
		t.Fatalf("ImmuneRecordFor() = (%+v, %v), want (Successes:1, true)", rec, ok)
	}
}

func TestRunFlushesOnStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guardian-cache.json")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	c.flushInterval = time.Hour // ensure Stop's flush, not the ticker, writes the file
	done := make(chan struct{})
	go func() {
		c.Run()
		close(done)
	}()
	c.PutBaseline(vitals.BaselineProfile{AgentID: "agent-1"})
	if err := c.Stop(time.Second); err != nil {
		t.Fatalf("Stop() = %v", err)
	}
	<-done
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected Stop() to flush to disk, stat error: %v", err)
	}
}
