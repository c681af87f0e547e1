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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/aleutian-ai/guardian/pkg/logging"
	"github.com/aleutian-ai/guardian/services/guardian/cache"
	"github.com/aleutian-ai/guardian/services/guardian/config"
	"github.com/aleutian-ai/guardian/services/guardian/enforcement"
	"github.com/aleutian-ai/guardian/services/guardian/executor"
	"github.com/aleutian-ai/guardian/services/guardian/handlers"
	"github.com/aleutian-ai/guardian/services/guardian/observability"
	"github.com/aleutian-ai/guardian/services/guardian/orchestrator"
	"github.com/aleutian-ai/guardian/services/guardian/store"
)

// runDuration bounds how long serveCmd runs before shutting itself down;
// zero means run until SIGINT/SIGTERM. This is spec §6's "one flag for run
// duration" CLI surface, used by demos and integration tests that want a
// bounded-lifetime process rather than a long-running service.
var runDuration time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Guardian control plane: ingest, detection, diagnosis, and healing",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().DurationVar(&runDuration, "duration", 0, "stop automatically after this long (0 = run until signaled)")
}

func buildStore(cfg config.GuardianConfig) (store.Store, error) {
	switch cfg.StoreBackend {
	case "", "memory":
		return store.NewMemoryStore(), nil
	case "influx":
		if cfg.InfluxURL == "" {
			return nil, fmt.Errorf("GUARDIAN_STORE_BACKEND=influx requires GUARDIAN_INFLUX_URL")
		}
		return store.NewInfluxStore(store.InfluxConfig{
			URL:    cfg.InfluxURL,
			Token:  cfg.InfluxToken,
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
		}), nil
	case "http":
		if cfg.HTTPStoreURL == "" {
			return nil, fmt.Errorf("GUARDIAN_STORE_BACKEND=http requires GUARDIAN_HTTP_STORE_URL")
		}
		return store.NewHTTPStore(cfg.HTTPStoreURL, cfg.InfluxToken), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func buildEnforcement(cfg config.GuardianConfig) (enforcement.Strategy, error) {
	switch cfg.EnforcementBackend {
	case "", "noop":
		return enforcement.NewNoOp(), nil
	case "gateway":
		return enforcement.NewGateway(nil), nil
	case "process":
		return enforcement.NewProcess(), nil
	case "composite":
		return enforcement.NewComposite(enforcement.NewGateway(nil), enforcement.NewProcess()), nil
	default:
		return nil, fmt.Errorf("unknown enforcement backend %q", cfg.EnforcementBackend)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		Service: "guardian",
		JSON:    true,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	c, err := cache.Open(cfg.CachePath)
	if err != nil {
		// spec §7: cache-directory-unwritable-AND-no-Store is logged at
		// start-up, not fatal; Guardian proceeds in degraded in-memory mode.
		slog.Warn("cache unavailable, proceeding in degraded in-memory mode", "path", cfg.CachePath, "err", err)
		c, _ = cache.Open("")
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = c.APIKey()
	}
	if apiKey == "" {
		apiKey = "gk-" + fmt.Sprintf("%x", time.Now().UnixNano())
		if err := c.SetAPIKey(apiKey); err != nil {
			slog.Warn("failed to persist generated API key", "err", err)
		}
		slog.Info("generated ingest API key", "hint", apiKey[:6]+"...")
	}

	st, err := buildStore(cfg)
	if err != nil {
		return fmt.Errorf("build store: %w", err)
	}

	strategy, err := buildEnforcement(cfg)
	if err != nil {
		return fmt.Errorf("build enforcement: %w", err)
	}

	var metrics *observability.Metrics
	if cfg.EnableObservability {
		metrics = observability.NewMetrics()
	}

	o := orchestrator.New(orchestrator.Config{
		SentinelTick:     cfg.Ticks.SentinelTick,
		ProbationTick:    cfg.Ticks.ProbationTick,
		HealingStepDelay: cfg.Ticks.HealingStepDelay,
		DrainTimeout:     cfg.Ticks.DrainTimeout,
		SuspectTicks:     cfg.Ticks.SuspectTicks,
		ProbationTicks:   cfg.Ticks.ProbationTicks,
		SevereSkip:       cfg.Ticks.SevereSkip,
	}, c, st, executor.NewSimulatedExecutor(), strategy, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if runDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runDuration)
		defer cancel()
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware("guardian"))
	handlers.NewServer(o, apiKey).Register(r)

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: r}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	orchErrCh := make(chan error, 1)
	go func() { orchErrCh <- o.Run(ctx) }()

	slog.Info("guardian serving", "port", cfg.HTTPPort, "run_id", o.RunID())

	select {
	case <-ctx.Done():
		slog.Info("shutting down", "reason", ctx.Err())
	case err := <-errCh:
		slog.Error("http server failed", "err", err)
	case err := <-orchErrCh:
		if err != nil {
			slog.Error("orchestrator failed", "err", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http server shutdown did not complete cleanly", "err", err)
	}

	if err := o.Stop(); err != nil {
		slog.Warn("orchestrator stop did not complete cleanly", "err", err)
	}

	return nil
}
