// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package simulator generates synthetic agent vitals for demos and
// integration tests: a small fleet of named agents with distinct baseline
// behavior, each able to run healthy or, once infected, emit the inflated
// metrics a given failure mode would actually produce. It is demo/test
// tooling, not part of Guardian's detection/healing pipeline.
package simulator

import (
	"crypto/sha256"
	"fmt"
	"math/rand"
	"time"

	"github.com/aleutian-ai/guardian/services/guardian/vitals"
)

// InfectionKind names a synthetic failure mode an Agent can be infected
// with, mirroring the named failure modes a real fleet exhibits.
type InfectionKind string

const (
	InfectionTokenExplosion    InfectionKind = "token_explosion"
	InfectionToolLoop          InfectionKind = "tool_loop"
	InfectionLatencySpike      InfectionKind = "latency_spike"
	InfectionHighRetryRate     InfectionKind = "high_retry_rate"
	InfectionPromptDrift       InfectionKind = "prompt_drift"
	InfectionPromptInjection   InfectionKind = "prompt_injection"
	InfectionMemoryCorruption InfectionKind = "memory_corruption"
	InfectionFullMeltdown      InfectionKind = "full_meltdown"
)

// severeKinds produce a multi-signal or very high deviation, as opposed to
// a single-metric spike; the Injector weights toward these so demos surface
// more pending-approval cases.
var severeKinds = []InfectionKind{
	InfectionPromptDrift,
	InfectionMemoryCorruption,
	InfectionFullMeltdown,
}

var allKinds = []InfectionKind{
	InfectionTokenExplosion,
	InfectionToolLoop,
	InfectionLatencySpike,
	InfectionHighRetryRate,
	InfectionPromptDrift,
	InfectionMemoryCorruption,
	InfectionFullMeltdown,
}

// modelCostPer1K is the approximate USD cost per 1K tokens, by model.
var modelCostPer1K = map[string]float64{
	"GPT-5":             0.03,
	"GPT-4o":             0.005,
	"Claude Sonnet 4":    0.003,
	"Claude Opus 4":      0.015,
	"Claude Sonnet 3.5":  0.003,
	"Gemini 2.0":         0.00125,
}

const defaultModelCost = 0.005

// Kind names the synthetic agent archetype; each has its own baseline
// latency/token/tool-call ranges.
type Kind string

const (
	KindResearch    Kind = "Research"
	KindData        Kind = "Data"
	KindAnalytics   Kind = "Analytics"
	KindCoordinator Kind = "Coordinator"
)

// Agent is one synthetic fleet member. Its base* fields are its "normal"
// behavior; Generate blends them with per-call variance, or with an
// infection's inflation rules if Infected.
type Agent struct {
	ID         string
	Archetype  Kind
	Model      string
	MCPServers []string

	baseLatencyMS float64
	baseTokens    int
	baseToolCalls int

	promptHash     string
	executionCount int

	Infected  bool
	Infection InfectionKind // the active infection, if Infected
}

func stableHash(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return fmt.Sprintf("%x", sum)[:16]
}

func newAgent(id string, kind Kind) *Agent {
	a := &Agent{ID: id, Archetype: kind}
	switch kind {
	case KindResearch:
		a.baseLatencyMS = float64(200 + rand.Intn(200))
		a.baseTokens = 1200 + rand.Intn(400)
		a.baseToolCalls = 3 + rand.Intn(3)
	case KindData:
		a.baseLatencyMS = float64(150 + rand.Intn(150))
		a.baseTokens = 800 + rand.Intn(400)
		a.baseToolCalls = 2 + rand.Intn(3)
	case KindAnalytics:
		a.baseLatencyMS = float64(300 + rand.Intn(200))
		a.baseTokens = 1000 + rand.Intn(500)
		a.baseToolCalls = 4 + rand.Intn(3)
	case KindCoordinator:
		a.baseLatencyMS = float64(200 + rand.Intn(200))
		a.baseTokens = 1000 + rand.Intn(400)
		a.baseToolCalls = 5 + rand.Intn(4)
	default:
		a.baseLatencyMS = float64(200 + rand.Intn(200))
		a.baseTokens = 1000 + rand.Intn(500)
		a.baseToolCalls = 2 + rand.Intn(3)
	}
	a.promptHash = stableHash("system-prompt-v1-" + id)
	return a
}

// agentNames mirrors real infrastructure/agent names, for demo realism.
var agentNames = []string{
	"VPN", "Docker", "Slack", "Postgres", "Network", "GitHub", "Kubernetes",
	"Nginx", "Redis", "Elasticsearch", "Notion", "Figma", "Linear", "SendGrid",
	"Brave Search",
}

var models = []string{"GPT-5", "Claude Sonnet 4", "Claude Opus 4", "Gemini 2.0", "GPT-4o", "Claude Sonnet 3.5"}

var mcpServerPresets = [][]string{
	{"filesystem", "github", "slack"},
	{"postgres", "web-fetch", "notion"},
	{"google-drive", "figma", "linear"},
	{"brave-search", "fetch", "memory"},
	{"filesystem", "postgres", "sendgrid"},
	{"github", "slack", "notion"},
}

var agentKinds = []Kind{KindResearch, KindData, KindAnalytics, KindCoordinator}

// Fleet is a pool of synthetic agents kept alive across calls to Generate,
// so that baselines and infection state persist across a simulated run.
type Fleet struct {
	agents []*Agent
	byID   map[string]*Agent
}

// NewFleet builds count agents with distinct names, models, and MCP server
// sets, cycling through the archetype list so the fleet is behaviorally
// diverse.
func NewFleet(count int) *Fleet {
	f := &Fleet{byID: make(map[string]*Agent, count)}
	for i := 0; i < count; i++ {
		name := agentNames[i%len(agentNames)]
		if i >= len(agentNames) {
			name = fmt.Sprintf("%s-%d", name, i/len(agentNames)+1)
		}
		a := newAgent(name, agentKinds[i%len(agentKinds)])
		a.Model = models[i%len(models)]
		a.MCPServers = mcpServerPresets[i%len(mcpServerPresets)]
		f.agents = append(f.agents, a)
		f.byID[a.ID] = a
	}
	return f
}

// Agents returns every agent in the fleet.
func (f *Fleet) Agents() []*Agent {
	return f.agents
}

// Agent looks up a fleet member by ID.
func (f *Fleet) Agent(id string) (*Agent, bool) {
	a, ok := f.byID[id]
	return a, ok
}

func estimateCost(model string, totalTokens int) float64 {
	rate, ok := modelCostPer1K[model]
	if !ok {
		rate = defaultModelCost
	}
	return float64(totalTokens) * rate / 1000.0
}

// Generate produces one synthetic Vitals record for the agent, reflecting
// its current (healthy or infected) behavior.
func (a *Agent) Generate() vitals.Vitals {
	variance := 0.8 + rand.Float64()*0.4

	var inputTokens, outputTokens, toolCalls, retries int
	var latencyMS float64
	var errType vitals.ErrorType
	promptHash := a.promptHash

	if a.Infected {
		latencyMS = a.infectedLatency()
		inputTokens = a.infectedInputTokens()
		outputTokens = a.infectedOutputTokens()
		toolCalls = a.infectedToolCalls()
		retries = a.infectedRetries()
		errType = a.infectedErrorType()
		promptHash = a.infectedPromptHash()
	} else {
		total := int(float64(a.baseTokens) * variance)
		inputTokens = int(float64(total) * (0.55 + rand.Float64()*0.2))
		outputTokens = total - inputTokens
		latencyMS = a.baseLatencyMS * variance
		toolCalls = maxInt(1, int(float64(a.baseToolCalls)*variance))
		if rand.Float64() > 0.9 {
			retries = 1
		}
		errType = vitals.ErrorNone
	}

	success := errType == vitals.ErrorNone && rand.Float64() > 0.05
	a.executionCount++

	return vitals.Vitals{
		AgentID:      a.ID,
		Timestamp:    time.Now(),
		LatencyMS:    latencyMS,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		ToolCalls:    toolCalls,
		Retries:      retries,
		Success:      success,
		Cost:         estimateCost(a.Model, inputTokens+outputTokens),
		Model:        a.Model,
		ErrorType:    errType,
		PromptHash:   promptHash,
		AgentType:    string(a.Archetype),
		MCPServers:   a.MCPServers,
	}
}

func (a *Agent) infectedLatency() float64 {
	switch a.Infection {
	case InfectionLatencySpike:
		return a.baseLatencyMS * float64(3+rand.Intn(5))
	case InfectionPromptDrift, InfectionMemoryCorruption, InfectionFullMeltdown:
		return a.baseLatencyMS * float64(3+rand.Intn(4))
	default:
		return a.baseLatencyMS
	}
}

func (a *Agent) infectedInputTokens() int {
	base := int(float64(a.baseTokens) * 0.65)
	switch a.Infection {
	case InfectionPromptInjection, InfectionTokenExplosion:
		return base * (5 + rand.Intn(6))
	case InfectionPromptDrift, InfectionFullMeltdown:
		return base * (3 + rand.Intn(4))
	default:
		return int(float64(base) * (0.8 + rand.Float64()*0.4))
	}
}

func (a *Agent) infectedOutputTokens() int {
	base := int(float64(a.baseTokens) * 0.35)
	switch a.Infection {
	case InfectionTokenExplosion, InfectionFullMeltdown:
		return base * (5 + rand.Intn(8))
	case InfectionPromptDrift:
		return base * (4 + rand.Intn(5))
	default:
		return int(float64(base) * (0.8 + rand.Float64()*0.4))
	}
}

func (a *Agent) infectedToolCalls() int {
	switch a.Infection {
	case InfectionToolLoop:
		return a.baseToolCalls * (5 + rand.Intn(7))
	case InfectionFullMeltdown:
		return a.baseToolCalls * (5 + rand.Intn(6))
	default:
		return a.baseToolCalls
	}
}

func (a *Agent) infectedRetries() int {
	switch a.Infection {
	case InfectionHighRetryRate:
		if rand.Float64() > 0.25 {
			return 1
		}
	case InfectionMemoryCorruption:
		if rand.Float64() > 0.3 {
			return 1
		}
	default:
		if rand.Float64() > 0.9 {
			return 1
		}
	}
	return 0
}

func (a *Agent) infectedErrorType() vitals.ErrorType {
	switch a.Infection {
	case InfectionHighRetryRate:
		if rand.Float64() <= 0.4 {
			return vitals.ErrorNone
		}
		choices := []vitals.ErrorType{vitals.ErrorRateLimit, vitals.ErrorTimeout, vitals.ErrorNone}
		return choices[rand.Intn(len(choices))]
	case InfectionMemoryCorruption:
		if rand.Float64() > 0.6 {
			return vitals.ErrorContentFilter
		}
	}
	return vitals.ErrorNone
}

func (a *Agent) infectedPromptHash() string {
	switch a.Infection {
	case InfectionPromptDrift, InfectionPromptInjection:
		return stableHash(fmt.Sprintf("corrupted-%s-%d", a.ID, a.executionCount))
	default:
		return a.promptHash
	}
}

// Infect marks the agent as infected with the given failure mode.
func (a *Agent) Infect(kind InfectionKind) {
	a.Infected = true
	a.Infection = kind
}

// Cure clears any active infection.
func (a *Agent) Cure() {
	a.Infected = false
	a.Infection = ""
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
