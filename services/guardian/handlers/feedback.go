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

	"github.com/aleutian-ai/guardian/services/guardian/vitals"
)

// feedbackRequest mirrors spec §4.13's feedback shape:
// {agent_id, diagnosis_kind_actual, label}.
type feedbackRequest struct {
	AgentID   string `json:"agent_id" binding:"required"`
	Kind      string `json:"diagnosis_kind_actual" binding:"required"`
	Label     string `json:"label" binding:"required"`
}

var validFeedbackLabels = map[vitals.FeedbackLabel]bool{
	vitals.FeedbackFalsePositive:  true,
	vitals.FeedbackCorrect:        true,
	vitals.FeedbackWrongDiagnosis: true,
	vitals.FeedbackProviderOutage: true,
}

func (s *Server) handleFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid feedback payload", "detail": err.Error()})
		return
	}

	label := vitals.FeedbackLabel(req.Label)
	if !validFeedbackLabels[label] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown feedback label", "label": req.Label})
		return
	}

	kind, confidence := s.Orchestrator.SubmitFeedback(c.Request.Context(), req.AgentID, vitals.DiagnosisKind(req.Kind), label)
	c.JSON(http.StatusOK, gin.H{"diagnosis_kind": kind, "confidence": confidence})
}
