// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Global is the singleton loaded by Load, for callers that don't want to
// thread a Config through every layer (matching the teacher's
// cmd/aleutian/config.Global convention).
var Global GuardianConfig

// Load resolves GuardianConfig from, in increasing precedence: built-in
// defaults, an optional YAML override file named by GUARDIAN_CONFIG_FILE
// (static ladder/tick overrides that don't belong in the environment), then
// environment variables (deployment-specific: ports, backends, secrets).
// The resolved value is stored in Global and returned.
func Load() (GuardianConfig, error) {
	cfg := Default()

	if path := os.Getenv("GUARDIAN_CONFIG_FILE"); path != "" {
		if err := applyYAMLFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	applyEnv(&cfg)

	Global = cfg
	return cfg, nil
}

func applyYAMLFile(path string, cfg *GuardianConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *GuardianConfig) {
	if v := os.Getenv("GUARDIAN_HTTP_PORT"); v != "" {
		cfg.HTTPPort = v
	}
	if v := os.Getenv("GUARDIAN_CACHE_PATH"); v != "" {
		cfg.CachePath = v
	}
	if v := os.Getenv("GUARDIAN_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("GUARDIAN_STORE_BACKEND"); v != "" {
		cfg.StoreBackend = v
	}
	if v := os.Getenv("GUARDIAN_INFLUX_URL"); v != "" {
		cfg.InfluxURL = v
	}
	if v := os.Getenv("GUARDIAN_INFLUX_TOKEN"); v != "" {
		cfg.InfluxToken = v
	}
	if v := os.Getenv("GUARDIAN_INFLUX_ORG"); v != "" {
		cfg.InfluxOrg = v
	}
	if v := os.Getenv("GUARDIAN_INFLUX_BUCKET"); v != "" {
		cfg.InfluxBucket = v
	}
	if v := os.Getenv("GUARDIAN_HTTP_STORE_URL"); v != "" {
		cfg.HTTPStoreURL = v
	}
	if v := os.Getenv("GUARDIAN_ENFORCEMENT_BACKEND"); v != "" {
		cfg.EnforcementBackend = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTELEndpoint = v
	}
	if v := os.Getenv("GUARDIAN_ENABLE_OBSERVABILITY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.EnableObservability = b
		}
	}
}
