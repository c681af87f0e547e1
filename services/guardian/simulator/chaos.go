// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package simulator

import "math/rand"

// Injector applies controlled failure injection to fleet agents for demo
// and integration-test purposes, tracking which agents it has touched.
type Injector struct {
	injected map[string]bool
}

// NewInjector returns an empty Injector.
func NewInjector() *Injector {
	return &Injector{injected: make(map[string]bool)}
}

// Inject infects a single agent with the given failure mode.
func (inj *Injector) Inject(a *Agent, kind InfectionKind) {
	a.Infect(kind)
	inj.injected[a.ID] = true
}

// InjectedResult names one agent an InjectRandom call picked, and which
// failure mode it was given.
type InjectedResult struct {
	AgentID string
	Kind    InfectionKind
}

// InjectRandom infects up to count currently-healthy agents with a random
// failure mode, weighting severeKinds at 70% so demo runs surface more
// multi-signal, pending-approval cases than single-metric spikes.
func (inj *Injector) InjectRandom(agents []*Agent, count int) []InjectedResult {
	available := make([]*Agent, 0, len(agents))
	for _, a := range agents {
		if !a.Infected {
			available = append(available, a)
		}
	}
	if count > len(available) {
		count = len(available)
	}

	rand.Shuffle(len(available), func(i, j int) { available[i], available[j] = available[j], available[i] })
	targets := available[:count]

	results := make([]InjectedResult, 0, count)
	for _, a := range targets {
		var kind InfectionKind
		if len(severeKinds) > 0 && rand.Float64() < 0.7 {
			kind = severeKinds[rand.Intn(len(severeKinds))]
		} else {
			kind = allKinds[rand.Intn(len(allKinds))]
		}
		inj.Inject(a, kind)
		results = append(results, InjectedResult{AgentID: a.ID, Kind: kind})
	}
	return results
}

// IsInjected reports whether the given agent ID has ever been targeted by
// this Injector (even if since cured).
func (inj *Injector) IsInjected(agentID string) bool {
	return inj.injected[agentID]
}

// ClearInjection drops the injection-tracking entry for an agent, e.g.
// after a healing cycle cures it and a test wants a clean slate.
func (inj *Injector) ClearInjection(agentID string) {
	delete(inj.injected, agentID)
}
