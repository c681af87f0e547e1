// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads Guardian's runtime configuration: environment
// variables with defaults for everything deployment-specific (ports, store
// backend, cache path), plus an optional YAML file for static tick/threshold
// settings that don't belong in the environment.
package config

import "time"

// GuardianConfig is the fully-resolved configuration for one Guardian
// process.
type GuardianConfig struct {
	// HTTPPort is the port the external surface listens on.
	HTTPPort string `yaml:"http_port"`

	// CachePath is where the durable JSON snapshot lives.
	CachePath string `yaml:"cache_path"`

	// APIKey, if non-empty, is required via X-API-KEY on every ingest call.
	// Precedence (spec's cache.py-confirmed rule): explicit config value,
	// then the value already in the cache snapshot, then an auto-generated
	// one persisted back to the cache on first start.
	APIKey string `yaml:"api_key,omitempty"`

	// StoreBackend selects the Store implementation: "memory" (default,
	// no external dependency), "influx", or "http".
	StoreBackend string `yaml:"store_backend"`
	InfluxURL    string `yaml:"influx_url,omitempty"`
	InfluxToken  string `yaml:"influx_token,omitempty"`
	InfluxOrg    string `yaml:"influx_org,omitempty"`
	InfluxBucket string `yaml:"influx_bucket,omitempty"`
	HTTPStoreURL string `yaml:"http_store_url,omitempty"`

	// EnforcementBackend selects the enforcement.Strategy: "noop" (default),
	// "gateway", "process", or "composite" (gateway then process).
	EnforcementBackend string `yaml:"enforcement_backend"`

	// OTELEndpoint holds OTEL_EXPORTER_OTLP_ENDPOINT. It is recorded only:
	// no trace exporter is configured from it.
	OTELEndpoint string `yaml:"otel_endpoint,omitempty"`

	// EnableObservability toggles Prometheus metric registration.
	EnableObservability bool `yaml:"enable_observability"`

	Ladder LadderOverrides `yaml:"ladder"`
	Ticks  TickConfig      `yaml:"ticks"`
}

// LadderOverrides is decoded from the YAML file's "ladder" section, keyed by
// diagnosis kind. It is not applied anywhere: healing always uses the
// built-in ladders in the healer package.
type LadderOverrides map[string][]string

// TickConfig mirrors orchestrator.Config's cadence knobs, expressed in a
// YAML-friendly duration-string form.
type TickConfig struct {
	SentinelTick     time.Duration `yaml:"sentinel_tick"`
	ProbationTick    time.Duration `yaml:"probation_tick"`
	HealingStepDelay time.Duration `yaml:"healing_step_delay"`
	DrainTimeout     time.Duration `yaml:"drain_timeout"`
	SuspectTicks     int           `yaml:"suspect_ticks"`
	ProbationTicks   int           `yaml:"probation_ticks"`
	SevereSkip       float64       `yaml:"severe_skip"`
}

// Default returns the configuration Guardian runs with when no environment
// variables and no override file are present: in-memory store, no
// enforcement, no explicit API key (serve then uses the cached key, or
// generates and caches one, and ingest requires it).
func Default() GuardianConfig {
	return GuardianConfig{
		HTTPPort:            "8085",
		CachePath:           "guardian-cache.json",
		StoreBackend:        "memory",
		EnforcementBackend:  "noop",
		EnableObservability: true,
	}
}
