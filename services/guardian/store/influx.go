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
	"fmt"
	"sort"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/aleutian-ai/guardian/pkg/validation"
	"github.com/aleutian-ai/guardian/services/guardian/vitals"
)

const (
	measurementVitals    = "guardian_vitals"
	measurementBaseline  = "guardian_baseline"
	measurementInfection = "guardian_infection"
	measurementDiagnosis = "guardian_diagnosis"
	measurementFeedback  = "guardian_feedback"
	measurementActionLog = "guardian_action_log"
)

// InfluxConfig holds the connection parameters for InfluxStore.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// InfluxStore persists Guardian data to InfluxDB v2 using line protocol for
// writes and Flux for reads. Agent ids are validated before interpolation
// into any Flux query string to prevent Flux injection.
type InfluxStore struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	queryAPI api.QueryAPI
	bucket   string
	org      string
}

// NewInfluxStore connects to InfluxDB using cfg. It does not verify
// connectivity; call Ping for that.
func NewInfluxStore(cfg InfluxConfig) *InfluxStore {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxStore{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		queryAPI: client.QueryAPI(cfg.Org),
		bucket:   cfg.Bucket,
		org:      cfg.Org,
	}
}

func (s *InfluxStore) WriteVitals(ctx context.Context, v vitals.Vitals) error {
	p := write.NewPoint(measurementVitals,
		map[string]string{"agent_id": v.AgentID, "model": v.Model, "error_type": string(v.ErrorType)},
		map[string]interface{}{
			"latency_ms":    v.LatencyMS,
			"input_tokens":  v.InputTokens,
			"output_tokens": v.OutputTokens,
			"tool_calls":    v.ToolCalls,
			"retries":       v.Retries,
			"success":       v.Success,
			"cost":          v.Cost,
			"prompt_hash":   v.PromptHash,
		},
		v.Timestamp,
	)
	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influx write vitals: %w", err)
	}
	return nil
}

func (s *InfluxStore) RecentVitals(ctx context.Context, agentID string, limit int) ([]vitals.Vitals, error) {
	if err := validation.ValidateAgentID(agentID); err != nil {
		return nil, fmt.Errorf("recent vitals: %w", err)
	}
	flux := fmt.Sprintf(`
		from(bucket: "%s")
		  |> range(start: -30d)
		  |> filter(fn: (r) => r._measurement == "%s")
		  |> filter(fn: (r) => r.agent_id == "%s")
		  |> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
		  |> sort(columns: ["_time"], desc: true)
		  |> limit(n: %d)
	`, s.bucket, measurementVitals, agentID, limitOrDefault(limit, 500))

	result, err := s.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("influx query vitals: %w", err)
	}
	defer result.Close()

	var out []vitals.Vitals
	for result.Next() {
		rec := result.Record()
		v := vitals.Vitals{
			AgentID:   agentID,
			Timestamp: rec.Time(),
		}
		if f, ok := rec.ValueByKey("latency_ms").(float64); ok {
			v.LatencyMS = f
		}
		if n, ok := rec.ValueByKey("input_tokens").(int64); ok {
			v.InputTokens = int(n)
		}
		if n, ok := rec.ValueByKey("output_tokens").(int64); ok {
			v.OutputTokens = int(n)
		}
		if n, ok := rec.ValueByKey("tool_calls").(int64); ok {
			v.ToolCalls = int(n)
		}
		if n, ok := rec.ValueByKey("retries").(int64); ok {
			v.Retries = int(n)
		}
		if b, ok := rec.ValueByKey("success").(bool); ok {
			v.Success = b
		}
		if f, ok := rec.ValueByKey("cost").(float64); ok {
			v.Cost = f
		}
		if s, ok := rec.ValueByKey("prompt_hash").(string); ok {
			v.PromptHash = s
		}
		if s, ok := rec.ValueByKey("error_type").(string); ok {
			v.ErrorType = vitals.ErrorType(s)
		}
		if s, ok := rec.ValueByKey("model").(string); ok {
			v.Model = s
		}
		out = append(out, v)
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("influx query vitals: %w", result.Err())
	}
	return out, nil
}

func (s *InfluxStore) WriteBaseline(ctx context.Context, b vitals.BaselineProfile) error {
	fields := map[string]interface{}{
		"sample_count": b.SampleCount,
		"prompt_hash":  b.PromptHash,
	}
	for _, m := range vitals.TrackedMetrics {
		stat := b.Stats[m]
		fields[string(m)+"_mean"] = stat.Mean
		fields[string(m)+"_variance"] = stat.Variance
	}
	p := write.NewPoint(measurementBaseline,
		map[string]string{"agent_id": b.AgentID}, fields, b.UpdatedAt)
	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influx write baseline: %w", err)
	}
	return nil
}

func (s *InfluxStore) ReadBaseline(ctx context.Context, agentID string) (vitals.BaselineProfile, bool, error) {
	if err := validation.ValidateAgentID(agentID); err != nil {
		return vitals.BaselineProfile{}, false, fmt.Errorf("read baseline: %w", err)
	}
	flux := fmt.Sprintf(`
		from(bucket: "%s")
		  |> range(start: -365d)
		  |> filter(fn: (r) => r._measurement == "%s")
		  |> filter(fn: (r) => r.agent_id == "%s")
		  |> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
		  |> sort(columns: ["_time"], desc: true)
		  |> limit(n: 1)
	`, s.bucket, measurementBaseline, agentID)

	result, err := s.queryAPI.Query(ctx, flux)
	if err != nil {
		return vitals.BaselineProfile{}, false, fmt.Errorf("influx query baseline: %w", err)
	}
	defer result.Close()

	if !result.Next() {
		return vitals.BaselineProfile{}, false, nil
	}
	rec := result.Record()
	b := vitals.BaselineProfile{
		AgentID: agentID,
		Stats:   make(map[vitals.Metric]vitals.MetricStat, len(vitals.TrackedMetrics)),
		UpdatedAt: rec.Time(),
	}
	if n, ok := rec.ValueByKey("sample_count").(int64); ok {
		b.SampleCount = int(n)
	}
	if s, ok := rec.ValueByKey("prompt_hash").(string); ok {
		b.PromptHash = s
	}
	for _, m := range vitals.TrackedMetrics {
		var stat vitals.MetricStat
		if f, ok := rec.ValueByKey(string(m) + "_mean").(float64); ok {
			stat.Mean = f
		}
		if f, ok := rec.ValueByKey(string(m) + "_variance").(float64); ok {
			stat.Variance = f
		}
		b.Stats[m] = stat
	}
	return b, true, nil
}

func (s *InfluxStore) WriteInfectionReport(ctx context.Context, r vitals.InfectionReport) error {
	fields := map[string]interface{}{"max_deviation": r.MaxDeviation, "prompt_changed": r.PromptChanged}
	for _, a := range r.AnomalyList() {
		fields["anomaly_"+string(a)] = true
	}
	p := write.NewPoint(measurementInfection, map[string]string{"agent_id": r.AgentID}, fields, r.At)
	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influx write infection report: %w", err)
	}
	return nil
}

func (s *InfluxStore) WriteDiagnosis(ctx context.Context, d vitals.DiagnosisResult) error {
	top, _ := d.Top()
	p := write.NewPoint(measurementDiagnosis,
		map[string]string{"agent_id": d.AgentID, "top_kind": string(top.Kind)},
		map[string]interface{}{"top_confidence": top.Confidence, "hypothesis_count": len(d.Hypotheses)},
		time.Now())
	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influx write diagnosis: %w", err)
	}
	return nil
}

func (s *InfluxStore) WriteFeedback(ctx context.Context, f vitals.Feedback) error {
	p := write.NewPoint(measurementFeedback,
		map[string]string{"agent_id": f.AgentID, "label": string(f.Label), "kind": string(f.Kind)},
		map[string]interface{}{"recorded": true}, f.At)
	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influx write feedback: %w", err)
	}
	return nil
}

func (s *InfluxStore) RecentFeedback(ctx context.Context, agentID string, limit int) ([]vitals.Feedback, error) {
	if err := validation.ValidateAgentID(agentID); err != nil {
		return nil, fmt.Errorf("recent feedback: %w", err)
	}
	flux := fmt.Sprintf(`
		from(bucket: "%s")
		  |> range(start: -365d)
		  |> filter(fn: (r) => r._measurement == "%s")
		  |> filter(fn: (r) => r.agent_id == "%s")
		  |> sort(columns: ["_time"], desc: true)
		  |> limit(n: %d)
	`, s.bucket, measurementFeedback, agentID, limitOrDefault(limit, 200))

	result, err := s.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("influx query feedback: %w", err)
	}
	defer result.Close()

	seen := map[time.Time]vitals.Feedback{}
	for result.Next() {
		rec := result.Record()
		f := vitals.Feedback{AgentID: agentID, At: rec.Time()}
		if v, ok := rec.ValueByKey("label").(string); ok {
			f.Label = vitals.FeedbackLabel(v)
		}
		seen[rec.Time()] = f
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("influx query feedback: %w", result.Err())
	}
	out := make([]vitals.Feedback, 0, len(seen))
	for _, f := range seen {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	return out, nil
}

func (s *InfluxStore) WriteActionLog(ctx context.Context, e ActionLogEntry) error {
	p := write.NewPoint(measurementActionLog,
		map[string]string{"agent_id": e.AgentID, "action": string(e.Action), "diagnosis": string(e.Diagnosis)},
		map[string]interface{}{"success": e.Success, "message": e.Message, "run_id": e.RunID},
		e.At)
	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influx write action log: %w", err)
	}
	return nil
}

func (s *InfluxStore) RecentActionLog(ctx context.Context, limit int) ([]ActionLogEntry, error) {
	flux := fmt.Sprintf(`
		from(bucket: "%s")
		  |> range(start: -365d)
		  |> filter(fn: (r) => r._measurement == "%s")
		  |> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
		  |> sort(columns: ["_time"], desc: true)
		  |> limit(n: %d)
	`, s.bucket, measurementActionLog, limitOrDefault(limit, 200))

	result, err := s.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("influx query action log: %w", err)
	}
	defer result.Close()

	var out []ActionLogEntry
	for result.Next() {
		rec := result.Record()
		e := ActionLogEntry{At: rec.Time()}
		if v, ok := rec.ValueByKey("agent_id").(string); ok {
			e.AgentID = v
		}
		if v, ok := rec.ValueByKey("action").(string); ok {
			e.Action = vitals.HealingAction(v)
		}
		if v, ok := rec.ValueByKey("diagnosis").(string); ok {
			e.Diagnosis = vitals.DiagnosisKind(v)
		}
		if v, ok := rec.ValueByKey("success").(bool); ok {
			e.Success = v
		}
		if v, ok := rec.ValueByKey("message").(string); ok {
			e.Message = v
		}
		if v, ok := rec.ValueByKey("run_id").(string); ok {
			e.RunID = v
		}
		out = append(out, e)
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("influx query action log: %w", result.Err())
	}
	return out, nil
}

func (s *InfluxStore) KnownAgents(ctx context.Context) ([]string, error) {
	flux := fmt.Sprintf(`
		import "influxdata/influxdb/schema"
		schema.tagValues(bucket: "%s", tag: "agent_id", predicate: (r) => r._measurement == "%s")
	`, s.bucket, measurementVitals)

	result, err := s.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("influx known agents: %w", err)
	}
	defer result.Close()

	var out []string
	for result.Next() {
		if v, ok := result.Record().Value().(string); ok {
			out = append(out, v)
		}
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("influx known agents: %w", result.Err())
	}
	sort.Strings(out)
	return out, nil
}

func (s *InfluxStore) Ping(ctx context.Context) error {
	ok, err := s.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influx ping: %w", err)
	}
	if !ok {
		return fmt.Errorf("influx ping: not ok")
	}
	return nil
}

func (s *InfluxStore) Close() error {
	s.client.Close()
	return nil
}

func limitOrDefault(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}

var _ Store = (*InfluxStore)(nil)
