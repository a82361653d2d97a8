// Hearth - Household Management and Library Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hearth

// Command server runs the Hearth daemon: the HTTP API, the library sync
// scheduler, and the due-book notifier under one supervision tree.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/hearth/internal/api"
	"github.com/tomtom215/hearth/internal/config"
	"github.com/tomtom215/hearth/internal/database"
	"github.com/tomtom215/hearth/internal/library"
	"github.com/tomtom215/hearth/internal/logging"
	"github.com/tomtom215/hearth/internal/notify"
	"github.com/tomtom215/hearth/internal/scheduler"
	"github.com/tomtom215/hearth/internal/supervisor"
	"github.com/tomtom215/hearth/internal/supervisor/services"
	syncpkg "github.com/tomtom215/hearth/internal/sync"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("Server exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Dur("sync_interval", cfg.Library.SyncInterval).
		Bool("notifications", cfg.NotificationsEnabled()).
		Msg("Starting Hearth")

	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }() //nolint:errcheck // Best effort cleanup

	// Provider adapters, each behind a circuit breaker.
	biblionix := library.NewBiblionixClient(cfg.Library.ProviderTimeout)
	bibliocommons := library.NewBiblioCommonsClient(cfg.Library.ProviderTimeout)
	registry := library.NewRegistry(
		library.NewBreakerProvider(biblionix),
		library.NewBreakerProvider(bibliocommons),
	)

	syncManager := syncpkg.NewManager(db, registry, biblionix)

	sched := scheduler.New()
	sched.RegisterInterval(scheduler.JobLibrarySync, syncManager.Sync, cfg.Library.SyncInterval, cfg.Library.SyncStartDelay)

	if cfg.NotificationsEnabled() {
		notifier := notify.NewNotifier(db, cfg.SMTP, cfg.Library)
		if err := sched.RegisterCron(scheduler.JobDueNotify, notifier.Notify, cfg.Library.NotifyCron); err != nil {
			return fmt.Errorf("register notify job: %w", err)
		}
	} else {
		logging.Info().Msg("SMTP not configured, due-book notifications disabled")
	}

	handlers := api.NewHandlers(db, sched, syncManager)
	router := api.NewRouter(handlers, api.NewMiddleware(&cfg.Security))

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.Timeout,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(supervisor.DefaultTreeConfig())
	tree.AddJobService(services.NewSchedulerService(sched))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", server.Addr).Msg("Hearth started")

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}

	if unstopped, reportErr := tree.UnstoppedServiceReport(); reportErr == nil && len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", fmt.Sprint(svc.Service)).Msg("Service did not stop within timeout")
		}
	}

	logging.Info().Msg("Hearth stopped")
	return nil
}
