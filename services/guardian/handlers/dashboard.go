// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aleutian-ai/guardian/services/guardian/healer"
	"github.com/aleutian-ai/guardian/services/guardian/vitals"
)

// allDiagnosisKinds lists every kind the ladder table covers, for the
// learned-patterns dashboard view to iterate over.
var allDiagnosisKinds = []vitals.DiagnosisKind{
	vitals.DiagnosisPromptDrift,
	vitals.DiagnosisPromptInjection,
	vitals.DiagnosisInfiniteLoop,
	vitals.DiagnosisToolInstability,
	vitals.DiagnosisMemoryCorruption,
	vitals.DiagnosisCostOverrun,
	vitals.DiagnosisExternalCause,
	vitals.DiagnosisUnknown,
}

// storeDegraded reports whether the configured Store (if any) is currently
// unreachable, for the "degraded: true" flag spec §7 requires on dashboard
// reads when the durability layer can't be reached.
func (s *Server) storeDegraded(c *gin.Context) bool {
	if s.Orchestrator.Store == nil {
		return false
	}
	return s.Orchestrator.Store.Ping(c.Request.Context()) != nil
}

// handleStatus reports the orchestrator's run id and overall fleet phase
// distribution, the dashboard's top-level health check.
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"run_id":    s.Orchestrator.RunID(),
		"phases":    s.Orchestrator.AgentPhaseCounts(),
		"degraded":  s.storeDegraded(c),
	})
}

// agentSummary is one row of the GET /v1/agents listing.
type agentSummary struct {
	AgentID string `json:"agent_id"`
	Phase   string `json:"phase"`
}

func (s *Server) handleAgents(c *gin.Context) {
	ids := s.Orchestrator.KnownAgents()
	out := make([]agentSummary, 0, len(ids))
	for _, id := range ids {
		out = append(out, agentSummary{AgentID: id, Phase: string(s.Orchestrator.AgentPhase(id))})
	}
	c.JSON(http.StatusOK, gin.H{"agents": out, "degraded": s.storeDegraded(c)})
}

// handleAgentDetail returns one agent's current phase, baseline profile,
// and recent vitals, for the dashboard's per-agent drill-down view.
func (s *Server) handleAgentDetail(c *gin.Context) {
	agentID := c.Param("agent_id")

	resp := gin.H{
		"agent_id":  agentID,
		"phase":     string(s.Orchestrator.AgentPhase(agentID)),
		"baseline":  s.Orchestrator.Baseline.Get(agentID),
		"recent":    s.Orchestrator.Telemetry.Recent(agentID, 50),
		"history":   s.Orchestrator.Lifecycle.History(agentID),
		"degraded":  s.storeDegraded(c),
	}
	c.JSON(http.StatusOK, resp)
}

// handleStats reports the fleet-wide counters named in spec §6: total
// agents, total executions, current infected, total infections, healed,
// success_rate, runtime.
func (s *Server) handleStats(c *gin.Context) {
	stats := s.Orchestrator.Stats()
	ids := s.Orchestrator.KnownAgents()

	var totalExecutions int64
	var currentInfected int
	for _, id := range ids {
		totalExecutions += s.Orchestrator.Telemetry.Total(id)
		switch s.Orchestrator.AgentPhase(id) {
		case "suspected", "draining", "quarantined", "healing":
			currentInfected++
		}
	}

	successRate := 1.0
	if stats.TotalHealed+stats.TotalFailedHealings > 0 {
		successRate = float64(stats.TotalHealed) / float64(stats.TotalHealed+stats.TotalFailedHealings)
	}

	c.JSON(http.StatusOK, gin.H{
		"total_agents":     len(ids),
		"total_executions": totalExecutions,
		"current_infected": currentInfected,
		"total_infections": stats.TotalInfections,
		"healed":           stats.TotalHealed,
		"failed_healings":  stats.TotalFailedHealings,
		"success_rate":     successRate,
		"runtime_seconds":  time.Since(stats.StartedAt).Seconds(),
		"degraded":         s.storeDegraded(c),
	})
}

func (s *Server) handlePendingApprovals(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pending": s.Orchestrator.PendingApprovals(), "degraded": s.storeDegraded(c)})
}

func (s *Server) handleRejectedApprovals(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rejected": s.Orchestrator.RejectedApprovals(), "degraded": s.storeDegraded(c)})
}

func (s *Server) handleRecentHealings(c *gin.Context) {
	limit := 50
	actions := s.Orchestrator.RecentActions(c.Request.Context(), limit)
	c.JSON(http.StatusOK, gin.H{"healings": actions, "degraded": s.storeDegraded(c)})
}

// patternRow is one diagnosis kind's ranked action success counts, the
// dashboard's "what has worked before" view.
type patternRow struct {
	DiagnosisKind vitals.DiagnosisKind   `json:"diagnosis_kind"`
	Actions       []actionSuccessCount   `json:"actions"`
}

type actionSuccessCount struct {
	Action        vitals.HealingAction `json:"action"`
	SuccessCount  int                  `json:"success_count"`
}

// handleLearnedPatterns surfaces the immune memory's global per-(diagnosis,
// action) success counts, ranked the same way healer.Selector ranks them.
func (s *Server) handleLearnedPatterns(c *gin.Context) {
	rows := make([]patternRow, 0, len(allDiagnosisKinds))
	for _, kind := range allDiagnosisKinds {
		ladder := healer.LadderFor(kind)
		ranked := s.Orchestrator.Memory.RankBySuccess(kind, ladder)
		actions := make([]actionSuccessCount, 0, len(ranked))
		for _, a := range ranked {
			actions = append(actions, actionSuccessCount{
				Action:       a,
				SuccessCount: s.Orchestrator.Memory.GlobalSuccessCount(kind, a),
			})
		}
		rows = append(rows, patternRow{DiagnosisKind: kind, Actions: actions})
	}
	c.JSON(http.StatusOK, gin.H{"patterns": rows, "degraded": s.storeDegraded(c)})
}
