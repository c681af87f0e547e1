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

	"github.com/aleutian-ai/guardian/services/guardian/orchestrator"
	"github.com/aleutian-ai/guardian/services/guardian/vitals"
)

// vitalsRequest mirrors spec §3/§6's wire contract: the required vitals
// fields plus the two passthrough fields, validated with `binding` tags so
// a missing required field produces a 400 rather than a zero-valued record.
type vitalsRequest struct {
	AgentID      string  `json:"agent_id" binding:"required"`
	Timestamp    *time.Time `json:"timestamp"`
	LatencyMS    float64 `json:"latency_ms" binding:"min=0"`
	InputTokens  int     `json:"input_tokens" binding:"min=0"`
	OutputTokens int     `json:"output_tokens" binding:"min=0"`
	ToolCalls    int     `json:"tool_calls" binding:"min=0"`
	Retries      int     `json:"retries" binding:"min=0"`
	Success      bool    `json:"success"`
	Cost         float64 `json:"cost" binding:"min=0"`
	Model        string  `json:"model"`
	ErrorType    string  `json:"error_type"`
	PromptHash   string  `json:"prompt_hash"`
	AgentType    string  `json:"agent_type,omitempty"`
	MCPServers   []string `json:"mcp_servers,omitempty"`
}

func (r vitalsRequest) toVitals() vitals.Vitals {
	ts := time.Now()
	if r.Timestamp != nil {
		ts = *r.Timestamp
	}
	errType := vitals.ErrorType(r.ErrorType)
	if errType == "" {
		errType = vitals.ErrorNone
	}
	return vitals.Vitals{
		AgentID:      r.AgentID,
		Timestamp:    ts,
		LatencyMS:    r.LatencyMS,
		InputTokens:  r.InputTokens,
		OutputTokens: r.OutputTokens,
		ToolCalls:    r.ToolCalls,
		Retries:      r.Retries,
		Success:      r.Success,
		Cost:         r.Cost,
		Model:        r.Model,
		ErrorType:    errType,
		PromptHash:   r.PromptHash,
		AgentType:    r.AgentType,
		MCPServers:   r.MCPServers,
	}
}

// handleIngest implements spec §6's Ingest contract: 204 on success, 400 on
// malformed payload, 401 on bad/missing key (handled by requireAPIKey
// upstream), 202 when accepted but the durability layer is unreachable.
func (s *Server) handleIngest(c *gin.Context) {
	end, c := startSpan(c, "handleIngest")
	defer end()

	var req vitalsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid vitals payload", "detail": err.Error()})
		return
	}

	v := req.toVitals()
	outcome := s.Orchestrator.Ingest(c.Request.Context(), v)

	if s.Orchestrator.Store != nil {
		if err := s.Orchestrator.Store.Ping(c.Request.Context()); err != nil {
			logHandlerError(c, "store unreachable during ingest", err)
			c.Status(http.StatusAccepted)
			return
		}
	}

	switch outcome {
	case orchestrator.IngestAccepted:
		c.Status(http.StatusNoContent)
	case orchestrator.IngestBlockedByLifecycle:
		// The record was dropped, not recorded or queued for learning; still
		// a successful ingest from the caller's point of view (spec §4.11).
		c.Status(http.StatusNoContent)
	default:
		c.Status(http.StatusNoContent)
	}
}

// handleGatewayExtract accepts a pre-built vitals record derived from an
// LLM request/response pair by an external proxy; semantics are identical
// to ingest (spec §4.13).
func (s *Server) handleGatewayExtract(c *gin.Context) {
	s.handleIngest(c)
}
