// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package baseline learns each agent's "normal" behavior as an exponentially
// weighted moving average and variance per tracked metric, so the sentinel
// package has something to compare live vitals against.
package baseline

import (
	"context"

	"github.com/aleutian-ai/guardian/services/guardian/cache"
	"github.com/aleutian-ai/guardian/services/guardian/store"
	"github.com/aleutian-ai/guardian/services/guardian/vitals"
)

// DefaultSpan is the EWMA span used unless Config overrides it: alpha =
// 2/(span+1).
const DefaultSpan = 50

// DefaultMinSamples is how many vitals must be learned before a baseline is
// considered Ready.
const DefaultMinSamples = 15

// AccelerationFactor is the K in spec §4.2's α′ = min(α×K, 0.5): the
// multiplier Accelerate() applies to the current alpha for AccelTicks
// updates before reverting.
const AccelerationFactor = 5.0

// AccelTicks is the number of subsequent Update calls that use the boosted
// alpha before Accelerate's effect reverts.
const AccelTicks = 20

// maxAcceleratedAlpha caps the boosted alpha per spec §4.2.
const maxAcceleratedAlpha = 0.5

// Config controls how a Learner updates baselines.
type Config struct {
	Span       int
	MinSamples int
}

func (c Config) alpha() float64 {
	span := c.Span
	if span <= 0 {
		span = DefaultSpan
	}
	return 2.0 / (float64(span) + 1.0)
}

func (c Config) minSamples() int {
	if c.MinSamples <= 0 {
		return DefaultMinSamples
	}
	return c.MinSamples
}

// Learner owns the EWMA update rule and the cache/store persistence for
// every agent's BaselineProfile.
type Learner struct {
	cfg   Config
	cache *cache.Cache
	st    store.Store
}

// New returns a Learner backed by c (for fast local reads/writes) and,
// optionally, st (for durability beyond the local cache file).
func New(cfg Config, c *cache.Cache, st store.Store) *Learner {
	return &Learner{cfg: cfg, cache: c, st: st}
}

// Get returns the current baseline for agentID, creating an empty one (not
// yet Ready) if none exists.
func (l *Learner) Get(agentID string) vitals.BaselineProfile {
	if l.cache != nil {
		if b, ok := l.cache.Baseline(agentID); ok {
			return b
		}
	}
	return l.newProfile(agentID)
}

func (l *Learner) newProfile(agentID string) vitals.BaselineProfile {
	return vitals.BaselineProfile{
		AgentID:    agentID,
		Stats:      make(map[vitals.Metric]vitals.MetricStat, len(vitals.TrackedMetrics)),
		MinSamples: l.cfg.minSamples(),
		Alpha:      l.cfg.alpha(),
	}
}

// extract pulls the tracked-metric sample values out of one vitals record.
// Retries and errors are expressed as fractions of the single observation
// (0 or 1), per spec: ratio metrics aren't smoothed across the window
// before feeding the EWMA, the EWMA itself is the smoothing.
func extract(v vitals.Vitals) map[vitals.Metric]float64 {
	retryRate := 0.0
	if v.Retries > 0 {
		retryRate = 1.0
	}
	errorRate := 0.0
	if v.ErrorType != vitals.ErrorNone {
		errorRate = 1.0
	}
	return map[vitals.Metric]float64{
		vitals.MetricLatency:      v.LatencyMS,
		vitals.MetricTotalTokens:  float64(v.TokenCount()),
		vitals.MetricInputTokens:  float64(v.InputTokens),
		vitals.MetricOutputTokens: float64(v.OutputTokens),
		vitals.MetricCost:         v.Cost,
		vitals.MetricToolCalls:    float64(v.ToolCalls),
		vitals.MetricRetryRate:    retryRate,
		vitals.MetricErrorRate:    errorRate,
	}
}

// Update folds v into agentID's baseline using the EWMA rule:
//
//	mean'     = alpha*x + (1-alpha)*mean
//	variance' = (1-alpha) * (variance + alpha*(x-mean')^2)
//
// and persists the result to the cache (always) and the Store (best
// effort, if configured).
func (l *Learner) Update(ctx context.Context, v vitals.Vitals) vitals.BaselineProfile {
	b := l.Get(v.AgentID)
	alpha := b.Alpha
	if alpha <= 0 {
		alpha = l.cfg.alpha()
		b.Alpha = alpha
	}
	if b.MinSamples <= 0 {
		b.MinSamples = l.cfg.minSamples()
	}

	// This update still uses the (possibly boosted) alpha captured above;
	// only once the accelerated window is exhausted does Alpha revert, so
	// the next call picks up the original rate.
	if b.AccelTicksRemaining > 0 {
		b.AccelTicksRemaining--
		if b.AccelTicksRemaining == 0 {
			b.Alpha = b.BaseAlpha
			b.BaseAlpha = 0
		}
	}

	samples := extract(v)
	for _, m := range vitals.TrackedMetrics {
		x := samples[m]
		stat := b.Stats[m]
		if b.SampleCount == 0 {
			stat.Mean = x
			stat.Variance = 0
		} else {
			newMean := alpha*x + (1-alpha)*stat.Mean
			stat.Variance = (1 - alpha) * (stat.Variance + alpha*(x-newMean)*(x-newMean))
			stat.Mean = newMean
		}
		b.Stats[m] = stat
	}
	b.SampleCount++
	b.PromptHash = v.PromptHash
	b.UpdatedAt = v.Timestamp

	if l.cache != nil {
		l.cache.PutBaseline(b)
	}
	if l.st != nil {
		_ = l.st.WriteBaseline(ctx, b)
	}
	return b
}

// Accelerate temporarily boosts agentID's EWMA alpha to min(alpha*K, 0.5)
// for the next AccelTicks calls to Update, so the baseline reconverges
// quickly after a reset-style healing action, without discarding sample
// history. The boost reverts automatically once AccelTicks updates have
// been folded in (spec §4.2's accelerate hook).
func (l *Learner) Accelerate(agentID string) vitals.BaselineProfile {
	b := l.Get(agentID)
	base := b.Alpha
	if base <= 0 {
		base = l.cfg.alpha()
	}
	boosted := base * AccelerationFactor
	if boosted > maxAcceleratedAlpha {
		boosted = maxAcceleratedAlpha
	}
	b.BaseAlpha = base
	b.Alpha = boosted
	b.AccelTicksRemaining = AccelTicks
	if l.cache != nil {
		l.cache.PutBaseline(b)
	}
	return b
}

// HardReset discards agentID's learned baseline entirely, starting from
// zero samples again (spec §4.2's hard_reset hook, used after RESET_AGENT).
func (l *Learner) HardReset(agentID string) vitals.BaselineProfile {
	b := l.newProfile(agentID)
	if l.cache != nil {
		l.cache.PutBaseline(b)
	}
	return b
}
