// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers is Guardian's thin external HTTP surface: ingest,
// dashboard reads, approval actions, feedback submission, and the gateway
// extraction hook. Every handler defers all real decision-making to the
// orchestrator package; this package only translates HTTP <-> Go values.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"

	"github.com/aleutian-ai/guardian/services/guardian/orchestrator"
)

var tracer = otel.Tracer("guardian.handlers")

// Server holds everything a handler needs: the orchestrator core and the
// configured ingest API key (empty means auth is disabled).
type Server struct {
	Orchestrator *orchestrator.Orchestrator
	APIKey       string
}

// NewServer returns a Server wrapping o, requiring apiKey on ingest and the
// gateway extraction hook when apiKey is non-empty.
func NewServer(o *orchestrator.Orchestrator, apiKey string) *Server {
	return &Server{Orchestrator: o, APIKey: apiKey}
}

// Register wires every route onto r.
func (s *Server) Register(r gin.IRouter) {
	r.POST("/v1/vitals", s.requireAPIKey(), s.handleIngest)
	r.POST("/v1/gateway/extract", s.requireAPIKey(), s.handleGatewayExtract)

	r.GET("/v1/status", s.handleStatus)
	r.GET("/v1/agents", s.handleAgents)
	r.GET("/v1/agents/:agent_id", s.handleAgentDetail)
	r.GET("/v1/stats", s.handleStats)
	r.GET("/v1/approvals/pending", s.handlePendingApprovals)
	r.GET("/v1/approvals/rejected", s.handleRejectedApprovals)
	r.GET("/v1/healings/recent", s.handleRecentHealings)
	r.GET("/v1/patterns", s.handleLearnedPatterns)

	r.POST("/v1/approvals/:agent_id/approve", s.handleApprove)
	r.POST("/v1/approvals/:agent_id/reject", s.handleReject)
	r.POST("/v1/approvals/:agent_id/heal-now", s.handleHealNow)
	r.POST("/v1/approvals/approve-all", s.handleApproveAll)
	r.POST("/v1/approvals/reject-all", s.handleRejectAll)
	r.POST("/v1/approvals/heal-now-all", s.handleHealNowAll)

	r.POST("/v1/feedback", s.handleFeedback)
}

// requireAPIKey enforces spec §6's X-API-KEY contract: auth is skipped
// entirely when no key is configured, matching the "iff configured" clause.
func (s *Server) requireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.APIKey == "" {
			c.Next()
			return
		}
		got := c.GetHeader("X-API-KEY")
		if got == "" || got != s.APIKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid X-API-KEY"})
			return
		}
		c.Next()
	}
}

func logHandlerError(c *gin.Context, msg string, err error) {
	slog.Error(msg, "path", c.FullPath(), "err", err)
}

// startSpan opens a span named name over c's request context and rebinds
// c.Request to carry it, so downstream orchestrator calls that accept a
// context.Context participate in the same trace. The returned func ends
// the span; callers defer it.
func startSpan(c *gin.Context, name string) (func(), *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), name)
	c.Request = c.Request.WithContext(ctx)
	return span.End, c
}
