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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/aleutian-ai/guardian/services/guardian/vitals"
)

// HTTPStore calls a remote service that exposes the same operations as
// Store over plain JSON/HTTP, for deployments that run the Store behind a
// separate process rather than linking InfluxStore directly into Guardian.
type HTTPStore struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPStore returns an HTTPStore pointed at baseURL, sending token as a
// bearer credential on every request if non-empty.
func NewHTTPStore(baseURL, token string) *HTTPStore {
	return &HTTPStore{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPStore) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	u := s.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("store request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("store returned %d: %s", resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (s *HTTPStore) WriteVitals(ctx context.Context, v vitals.Vitals) error {
	return s.do(ctx, http.MethodPost, "/vitals", nil, v, nil)
}

func (s *HTTPStore) RecentVitals(ctx context.Context, agentID string, limit int) ([]vitals.Vitals, error) {
	var out []vitals.Vitals
	q := url.Values{"agent_id": {agentID}, "limit": {strconv.Itoa(limit)}}
	err := s.do(ctx, http.MethodGet, "/vitals/recent", q, nil, &out)
	return out, err
}

func (s *HTTPStore) WriteBaseline(ctx context.Context, b vitals.BaselineProfile) error {
	return s.do(ctx, http.MethodPost, "/baselines", nil, b, nil)
}

func (s *HTTPStore) ReadBaseline(ctx context.Context, agentID string) (vitals.BaselineProfile, bool, error) {
	var out vitals.BaselineProfile
	q := url.Values{"agent_id": {agentID}}
	err := s.do(ctx, http.MethodGet, "/baselines", q, nil, &out)
	if err != nil {
		return vitals.BaselineProfile{}, false, err
	}
	return out, out.AgentID != "", nil
}

func (s *HTTPStore) WriteInfectionReport(ctx context.Context, r vitals.InfectionReport) error {
	return s.do(ctx, http.MethodPost, "/infection-reports", nil, r, nil)
}

func (s *HTTPStore) WriteDiagnosis(ctx context.Context, d vitals.DiagnosisResult) error {
	return s.do(ctx, http.MethodPost, "/diagnoses", nil, d, nil)
}

func (s *HTTPStore) WriteFeedback(ctx context.Context, f vitals.Feedback) error {
	return s.do(ctx, http.MethodPost, "/feedback", nil, f, nil)
}

func (s *HTTPStore) RecentFeedback(ctx context.Context, agentID string, limit int) ([]vitals.Feedback, error) {
	var out []vitals.Feedback
	q := url.Values{"agent_id": {agentID}, "limit": {strconv.Itoa(limit)}}
	err := s.do(ctx, http.MethodGet, "/feedback/recent", q, nil, &out)
	return out, err
}

func (s *HTTPStore) WriteActionLog(ctx context.Context, e ActionLogEntry) error {
	return s.do(ctx, http.MethodPost, "/action-log", nil, e, nil)
}

func (s *HTTPStore) RecentActionLog(ctx context.Context, limit int) ([]ActionLogEntry, error) {
	var out []ActionLogEntry
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	err := s.do(ctx, http.MethodGet, "/action-log/recent", q, nil, &out)
	return out, err
}

func (s *HTTPStore) KnownAgents(ctx context.Context) ([]string, error) {
	var out []string
	err := s.do(ctx, http.MethodGet, "/agents", nil, nil, &out)
	return out, err
}

func (s *HTTPStore) Ping(ctx context.Context) error {
	return s.do(ctx, http.MethodGet, "/healthz", nil, nil, nil)
}

func (s *HTTPStore) Close() error { return nil }

var _ Store = (*HTTPStore)(nil)
