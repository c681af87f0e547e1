// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package correlator decides whether one agent's infection is isolated or
// part of a wider incident, by re-running the sentinel scan across the
// fleet and intersecting anomaly sets.
package correlator

import (
	"github.com/aleutian-ai/guardian/services/guardian/vitals"
)

// Scope classifies how widely an infection is shared across the fleet.
type Scope string

const (
	ScopeAgentSpecific Scope = "AGENT_SPECIFIC"
	ScopePartialFleet  Scope = "PARTIAL_FLEET"
	ScopeFleetWide     Scope = "FLEET_WIDE"
)

// FleetWideFraction is the minimum fraction of ready fleet agents sharing
// an anomaly kind with the target that makes the incident FLEET_WIDE. Any
// shared kind counts: the target's primary (highest-deviation) kind is not
// singled out.
const FleetWideFraction = 0.3

// PartialFleetFraction is the minimum fraction that makes it at least
// PARTIAL_FLEET (below FleetWideFraction, above this, it's PARTIAL_FLEET).
const PartialFleetFraction = 0.1

// Result is the correlator's verdict for one target agent's infection.
type Result struct {
	AgentID        string   `json:"agent_id"`
	Scope          Scope    `json:"scope"`
	AffectedAgents []string `json:"affected_agents"`
	Fraction       float64  `json:"fraction"`
}

// Correlate classifies target's infection against fleetReports, the
// current InfectionReport of every other ready agent in the fleet (the
// caller is responsible for re-scanning the fleet before calling this).
// An agent is "affected" if its anomaly set intersects target's.
func Correlate(target vitals.InfectionReport, fleetReports map[string]vitals.InfectionReport) Result {
	res := Result{AgentID: target.AgentID, Scope: ScopeAgentSpecific}

	if len(target.Anomalies) == 0 || len(fleetReports) == 0 {
		return res
	}

	var affected []string
	for agentID, r := range fleetReports {
		if agentID == target.AgentID {
			continue
		}
		if sharesAnomaly(target, r) {
			affected = append(affected, agentID)
		}
	}

	total := len(fleetReports)
	if _, ok := fleetReports[target.AgentID]; !ok {
		total++
	}
	fraction := 0.0
	if total > 0 {
		fraction = float64(len(affected)) / float64(total)
	}

	res.AffectedAgents = affected
	res.Fraction = fraction

	switch {
	case fraction >= FleetWideFraction:
		res.Scope = ScopeFleetWide
	case fraction >= PartialFleetFraction:
		res.Scope = ScopePartialFleet
	default:
		res.Scope = ScopeAgentSpecific
	}
	return res
}

// sharesAnomaly reports whether a and b's anomaly sets intersect.
func sharesAnomaly(a, b vitals.InfectionReport) bool {
	for kind := range a.Anomalies {
		if b.HasAnomaly(kind) {
			return true
		}
	}
	return false
}
