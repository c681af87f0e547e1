// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aleutian-ai/guardian/pkg/logging"
	"github.com/aleutian-ai/guardian/services/guardian/cache"
	"github.com/aleutian-ai/guardian/services/guardian/enforcement"
	"github.com/aleutian-ai/guardian/services/guardian/executor"
	"github.com/aleutian-ai/guardian/services/guardian/orchestrator"
	"github.com/aleutian-ai/guardian/services/guardian/simulator"
)

var (
	demoFleetSize    int
	demoDuration     time.Duration
	demoChaosEvery   time.Duration
	demoChaosCount   int
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run Guardian against a synthetic fleet, periodically injecting chaos, with no real agents required",
	RunE:  runDemo,
}

func init() {
	demoCmd.Flags().IntVar(&demoFleetSize, "fleet-size", 8, "number of synthetic agents to simulate")
	demoCmd.Flags().DurationVar(&demoDuration, "duration", 2*time.Minute, "how long to run the demo before exiting")
	demoCmd.Flags().DurationVar(&demoChaosEvery, "chaos-interval", 20*time.Second, "how often to inject a new failure into the fleet")
	demoCmd.Flags().IntVar(&demoChaosCount, "chaos-count", 1, "number of agents to infect per chaos interval")
	rootCmd.AddCommand(demoCmd)
}

func runDemo(cmd *cobra.Command, args []string) error {
	logger := logging.New(logging.Config{Level: logging.LevelInfo, Service: "guardian-demo", JSON: false})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	c, err := cache.Open("")
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}

	o := orchestrator.New(orchestrator.Config{}, c, nil, executor.NewSimulatedExecutor(), enforcement.NewNoOp(), nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, demoDuration)
	defer cancel()

	go func() {
		if err := o.Run(ctx); err != nil {
			slog.Error("orchestrator stopped", "err", err)
		}
	}()
	defer o.Stop()

	fleet := simulator.NewFleet(demoFleetSize)
	injector := simulator.NewInjector()
	slog.Info("demo fleet ready", "agents", len(fleet.Agents()), "duration", demoDuration)

	tickRate := 200 * time.Millisecond
	ticker := time.NewTicker(tickRate)
	defer ticker.Stop()

	chaosTicker := time.NewTicker(demoChaosEvery)
	defer chaosTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("demo complete", "healed", o.Stats().TotalHealed, "quarantined", o.Quarantine.Count())
			return nil
		case <-ticker.C:
			agents := fleet.Agents()
			a := agents[rand.Intn(len(agents))]
			o.Ingest(ctx, a.Generate())
		case <-chaosTicker.C:
			for _, r := range injector.InjectRandom(fleet.Agents(), demoChaosCount) {
				slog.Info("chaos injected", "agent_id", r.AgentID, "kind", r.Kind)
			}
		}
	}
}
