// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package enforcement provides the pluggable strategies that actually stop
// an agent from running once it's quarantined: a no-op for simulation, an
// LLM-gateway policy injection, an OS-process signal strategy, and a
// composite that tries several in priority order.
package enforcement

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"syscall"
	"time"
)

// Result is the outcome of one block/unblock/drain call.
type Result struct {
	Success  bool
	Strategy string
	AgentID  string
	Action   string
	Detail   string
}

// Strategy is the capability every enforcement backend implements.
type Strategy interface {
	Name() string
	Block(ctx context.Context, agentID, reason string) Result
	Unblock(ctx context.Context, agentID string) Result
	Drain(ctx context.Context, agentID string, timeout time.Duration) Result
	HealthCheck(ctx context.Context, agentID string) map[string]any
}

// NoOp tracks blocked state in memory only, for simulation and tests.
type NoOp struct {
	mu      sync.Mutex
	blocked map[string]bool
}

// NewNoOp returns a Strategy that performs no real enforcement.
func NewNoOp() *NoOp {
	return &NoOp{blocked: make(map[string]bool)}
}

func (n *NoOp) Name() string { return "noop" }

func (n *NoOp) Block(_ context.Context, agentID, _ string) Result {
	n.mu.Lock()
	n.blocked[agentID] = true
	n.mu.Unlock()
	return Result{Success: true, Strategy: n.Name(), AgentID: agentID, Action: "block", Detail: "simulated"}
}

func (n *NoOp) Unblock(_ context.Context, agentID string) Result {
	n.mu.Lock()
	delete(n.blocked, agentID)
	n.mu.Unlock()
	return Result{Success: true, Strategy: n.Name(), AgentID: agentID, Action: "unblock", Detail: "simulated"}
}

func (n *NoOp) Drain(_ context.Context, agentID string, _ time.Duration) Result {
	n.mu.Lock()
	n.blocked[agentID] = true
	n.mu.Unlock()
	return Result{Success: true, Strategy: n.Name(), AgentID: agentID, Action: "drain", Detail: "simulated"}
}

func (n *NoOp) HealthCheck(_ context.Context, agentID string) map[string]any {
	n.mu.Lock()
	defer n.mu.Unlock()
	return map[string]any{"strategy": n.Name(), "agent_id": agentID, "blocked": n.blocked[agentID]}
}

var _ Strategy = (*NoOp)(nil)

// PolicyEngine is the minimal surface Gateway carries: a place to add/
// remove blocking rules keyed by name. Guardian's gateway vitals-extraction
// surface (handlers.GatewayExtract) is the only other gateway touchpoint
// in scope; the rest of the gateway's reverse-proxy logic is out of scope.
type PolicyEngine interface {
	AddBlockRule(name, agentPattern string) error
	RemoveBlockRule(name string) error
}

// Gateway blocks traffic by injecting a blocking policy rule into a
// PolicyEngine, rather than signaling a process directly.
type Gateway struct {
	policy PolicyEngine

	mu      sync.Mutex
	ruleFor map[string]string
}

// NewGateway returns a Gateway strategy backed by policy. policy may be
// nil; Block/Unblock then fail with a clear reason rather than panicking.
func NewGateway(policy PolicyEngine) *Gateway {
	return &Gateway{policy: policy, ruleFor: make(map[string]string)}
}

func (g *Gateway) Name() string { return "gateway" }

func (g *Gateway) Block(_ context.Context, agentID, reason string) Result {
	if g.policy == nil {
		return Result{Strategy: g.Name(), AgentID: agentID, Action: "block", Detail: "no policy engine"}
	}
	ruleName := "quarantine:" + agentID
	if err := g.policy.AddBlockRule(ruleName, agentID); err != nil {
		return Result{Strategy: g.Name(), AgentID: agentID, Action: "block", Detail: err.Error()}
	}
	g.mu.Lock()
	g.ruleFor[agentID] = ruleName
	g.mu.Unlock()
	slog.Info("gateway block", "agent_id", agentID, "reason", reason)
	return Result{Success: true, Strategy: g.Name(), AgentID: agentID, Action: "block", Detail: ruleName}
}

func (g *Gateway) Unblock(_ context.Context, agentID string) Result {
	if g.policy == nil {
		return Result{Strategy: g.Name(), AgentID: agentID, Action: "unblock", Detail: "no policy engine"}
	}
	g.mu.Lock()
	ruleName, ok := g.ruleFor[agentID]
	if !ok {
		ruleName = "quarantine:" + agentID
	}
	delete(g.ruleFor, agentID)
	g.mu.Unlock()
	if err := g.policy.RemoveBlockRule(ruleName); err != nil {
		return Result{Strategy: g.Name(), AgentID: agentID, Action: "unblock", Detail: err.Error()}
	}
	slog.Info("gateway unblock", "agent_id", agentID)
	return Result{Success: true, Strategy: g.Name(), AgentID: agentID, Action: "unblock", Detail: ruleName}
}

func (g *Gateway) Drain(ctx context.Context, agentID string, timeout time.Duration) Result {
	g.Block(ctx, agentID, "draining")
	wait := timeout
	if wait > 5*time.Second {
		wait = 5 * time.Second
	}
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
	return Result{Success: true, Strategy: g.Name(), AgentID: agentID, Action: "drain", Detail: fmt.Sprintf("timeout=%s", timeout)}
}

func (g *Gateway) HealthCheck(_ context.Context, agentID string) map[string]any {
	g.mu.Lock()
	_, blocked := g.ruleFor[agentID]
	g.mu.Unlock()
	return map[string]any{"strategy": g.Name(), "agent_id": agentID, "blocked": blocked}
}

var _ Strategy = (*Gateway)(nil)

// Process controls an agent's OS process directly via signals. Agents must
// register their PID before Block/Unblock can act on them.
type Process struct {
	mu   sync.Mutex
	pids map[string]int
}

// NewProcess returns a Process strategy with no PIDs registered.
func NewProcess() *Process {
	return &Process{pids: make(map[string]int)}
}

func (p *Process) Name() string { return "process" }

// RegisterPID associates agentID with an OS process id for future
// Block/Unblock/Drain calls.
func (p *Process) RegisterPID(agentID string, pid int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pids[agentID] = pid
}

// UnregisterPID removes agentID's PID association.
func (p *Process) UnregisterPID(agentID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pids, agentID)
}

func (p *Process) pidFor(agentID string) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pid, ok := p.pids[agentID]
	return pid, ok
}

func (p *Process) Block(_ context.Context, agentID, reason string) Result {
	pid, ok := p.pidFor(agentID)
	if !ok {
		return Result{Strategy: p.Name(), AgentID: agentID, Action: "block", Detail: "pid_not_registered"}
	}
	if err := syscall.Kill(pid, syscall.SIGSTOP); err != nil {
		return Result{Strategy: p.Name(), AgentID: agentID, Action: "block", Detail: err.Error()}
	}
	slog.Info("process SIGSTOP", "agent_id", agentID, "pid", pid, "reason", reason)
	return Result{Success: true, Strategy: p.Name(), AgentID: agentID, Action: "block", Detail: fmt.Sprintf("SIGSTOP pid=%d", pid)}
}

func (p *Process) Unblock(_ context.Context, agentID string) Result {
	pid, ok := p.pidFor(agentID)
	if !ok {
		return Result{Strategy: p.Name(), AgentID: agentID, Action: "unblock", Detail: "pid_not_registered"}
	}
	if err := syscall.Kill(pid, syscall.SIGCONT); err != nil {
		return Result{Strategy: p.Name(), AgentID: agentID, Action: "unblock", Detail: err.Error()}
	}
	slog.Info("process SIGCONT", "agent_id", agentID, "pid", pid)
	return Result{Success: true, Strategy: p.Name(), AgentID: agentID, Action: "unblock", Detail: fmt.Sprintf("SIGCONT pid=%d", pid)}
}

func (p *Process) Drain(ctx context.Context, agentID string, timeout time.Duration) Result {
	pid, ok := p.pidFor(agentID)
	if ok {
		_ = syscall.Kill(pid, syscall.SIGUSR1)
	}
	wait := timeout
	if wait > 30*time.Second {
		wait = 30 * time.Second
	}
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
	return p.Block(ctx, agentID, "drain_timeout")
}

func (p *Process) HealthCheck(_ context.Context, agentID string) map[string]any {
	pid, ok := p.pidFor(agentID)
	if !ok {
		return map[string]any{"strategy": p.Name(), "agent_id": agentID, "registered": false}
	}
	alive := syscall.Kill(pid, syscall.Signal(0)) == nil
	return map[string]any{"strategy": p.Name(), "agent_id": agentID, "pid": pid, "alive": alive}
}

var _ Strategy = (*Process)(nil)

// Composite chains several strategies, trying each in order and stopping
// at the first success.
type Composite struct {
	strategies []Strategy
}

// NewComposite returns a Composite trying strategies in the given order.
func NewComposite(strategies ...Strategy) *Composite {
	return &Composite{strategies: strategies}
}

func (c *Composite) Name() string { return "composite" }

func (c *Composite) Block(ctx context.Context, agentID, reason string) Result {
	for _, s := range c.strategies {
		if r := s.Block(ctx, agentID, reason); r.Success {
			return r
		}
	}
	return Result{Strategy: c.Name(), AgentID: agentID, Action: "block", Detail: "all_strategies_failed"}
}

func (c *Composite) Unblock(ctx context.Context, agentID string) Result {
	for _, s := range c.strategies {
		if r := s.Unblock(ctx, agentID); r.Success {
			return r
		}
	}
	return Result{Strategy: c.Name(), AgentID: agentID, Action: "unblock", Detail: "all_strategies_failed"}
}

func (c *Composite) Drain(ctx context.Context, agentID string, timeout time.Duration) Result {
	for _, s := range c.strategies {
		if r := s.Drain(ctx, agentID, timeout); r.Success {
			return r
		}
	}
	return Result{Strategy: c.Name(), AgentID: agentID, Action: "drain", Detail: "all_strategies_failed"}
}

func (c *Composite) HealthCheck(ctx context.Context, agentID string) map[string]any {
	sub := make(map[string]any, len(c.strategies))
	for _, s := range c.strategies {
		sub[s.Name()] = s.HealthCheck(ctx, agentID)
	}
	return map[string]any{"strategy": c.Name(), "agent_id": agentID, "sub_checks": sub}
}

var _ Strategy = (*Composite)(nil)
