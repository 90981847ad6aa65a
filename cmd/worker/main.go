// Package main is the long-running analytics worker.
//
// The worker recalculates every active user's profile score on a fixed
// interval, ranks the population, refreshes the analytics cache and serves
// the read API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/volunteerhub/profile-analytics/config"
	"github.com/volunteerhub/profile-analytics/internal/app"
	"github.com/volunteerhub/profile-analytics/internal/infrastructure/scheduler"
	httpapi "github.com/volunteerhub/profile-analytics/internal/interface/http"
	"github.com/volunteerhub/profile-analytics/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. Configuration and logging
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := app.NewLogger(cfg)
	defer func() { _ = log.Sync() }()
	log.Info("starting profile analytics worker",
		logger.String("rules_version", cfg.Rules.Version),
		logger.Duration("recalculate_interval", cfg.Scheduler.RecalculateInterval),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Storage, engine and handlers
	// ─────────────────────────────────────────────────────────────────────────
	c, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing connections...")
		c.Close()
	}()

	if cfg.Database.AutoMigrate {
		log.Info("checking database migrations...")
		applied, err := c.Migrate(ctx)
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date", logger.Int("applied", applied))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Scheduler
	// ─────────────────────────────────────────────────────────────────────────
	sched, err := c.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to register jobs: %w", err)
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. HTTP API
	// ─────────────────────────────────────────────────────────────────────────
	var (
		server  *httpapi.Server
		httpErr <-chan error
	)
	if cfg.HTTP.Enabled {
		server = c.NewHTTPServer(sched)
		httpErr = server.StartAsync()
	}

	log.Info("worker is running")

	// ─────────────────────────────────────────────────────────────────────────
	// 5. Graceful shutdown
	// ─────────────────────────────────────────────────────────────────────────
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err, ok := <-httpErr:
		if ok && err != nil {
			runErr = err
			log.Error("HTTP server failed", logger.Err(err))
		}
	}

	log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("HTTP server shutdown failed", logger.Err(err))
		}
	}

	stopped := make(chan struct{})
	go func() {
		if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
			log.Warn("scheduler stop failed", logger.Err(err))
		}
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		log.Warn("scheduler did not stop before the shutdown timeout")
	}

	log.Info("shutdown completed")
	return runErr
}
