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

	"github.com/gin-gonic/gin"
)

// handleApprove, handleReject, and handleHealNow implement spec §6's single-
// agent approval actions. A decision on an agent Guardian has never put
// into PENDING/REJECTED is reported as 404, matching "approval actions
// never fail silently" (spec §7).
func (s *Server) handleApprove(c *gin.Context) {
	agentID := c.Param("agent_id")
	if !s.Orchestrator.Approve(c.Request.Context(), agentID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent is not pending approval"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleReject(c *gin.Context) {
	agentID := c.Param("agent_id")
	if !s.Orchestrator.Reject(agentID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent is not pending approval"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleHealNow(c *gin.Context) {
	agentID := c.Param("agent_id")
	if !s.Orchestrator.HealNow(c.Request.Context(), agentID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent is not in the rejected queue"})
		return
	}
	c.Status(http.StatusNoContent)
}

// handleApproveAll, handleRejectAll, and handleHealNowAll are the bulk
// variants spec §6 names, applied in the approval queue's arrival order.
func (s *Server) handleApproveAll(c *gin.Context) {
	n := s.Orchestrator.ApproveAll(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"approved": n})
}

func (s *Server) handleRejectAll(c *gin.Context) {
	n := s.Orchestrator.RejectAll()
	c.JSON(http.StatusOK, gin.H{"rejected": n})
}

func (s *Server) handleHealNowAll(c *gin.Context) {
	n := s.Orchestrator.HealNowAll(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"healing_started": n})
}
