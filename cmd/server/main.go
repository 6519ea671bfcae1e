// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/sharesync/internal/alerting"
	"github.com/tomtom215/sharesync/internal/api"
	"github.com/tomtom215/sharesync/internal/config"
	"github.com/tomtom215/sharesync/internal/database"
	"github.com/tomtom215/sharesync/internal/dispatcher"
	"github.com/tomtom215/sharesync/internal/eventprocessor"
	"github.com/tomtom215/sharesync/internal/formatter"
	"github.com/tomtom215/sharesync/internal/identifier"
	"github.com/tomtom215/sharesync/internal/logging"
	"github.com/tomtom215/sharesync/internal/retryqueue"
	"github.com/tomtom215/sharesync/internal/share"
	"github.com/tomtom215/sharesync/internal/supervisor"
	"github.com/tomtom215/sharesync/internal/supervisor/services"
	ws "github.com/tomtom215/sharesync/internal/websocket"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

//nolint:gocyclo // Main initialization function with sequential setup steps
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("environment", cfg.Server.Environment).
		Str("messaging_backend", cfg.Messaging.Backend).
		Bool("share_enabled", cfg.Share.URL != "").
		Msg("Starting ShareSync with supervisor tree")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	retryCfg := retryqueue.ConfigFromSettings(&cfg.Retry)
	queue, err := retryqueue.Open(&retryCfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open retry queue")
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing retry queue")
		}
	}()

	fmtr, err := formatter.New(cfg.Share.Domain)
	if err != nil {
		logging.Fatal().Err(err).Msg("Invalid public domain")
	}

	alerts := alerting.FromConfig(&cfg.Alerting)
	logging.Info().Int("channels", alerts.Len()).Msg("Alert channels configured")

	// A nil *HTTPRequester must not become a non-nil Requester.
	var requester identifier.Requester
	if r := identifier.NewHTTPRequester(&cfg.Identifier); r != nil {
		requester = r
	}

	wsHub := ws.NewHub()

	shareClient := share.NewClient(&cfg.Share)
	logging.Info().
		Str("endpoint", shareClient.Endpoint()).
		Bool("enabled", shareClient.Enabled()).
		Msg("SHARE client configured")

	disp, err := dispatcher.New(dispatcher.Deps{
		Store:       db,
		Formatter:   fmtr,
		Sender:      shareClient,
		Retries:     queue,
		Identifiers: identifier.NewTrigger(requester),
		Alerts:      alerts,
		Notifier:    wsHub,
		Policy:      retryqueue.PolicyFromConfig(&cfg.Retry),
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create dispatcher")
	}

	messaging, err := InitMessaging(ctx, &cfg.Messaging)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize event messaging")
	}
	defer messaging.Close()

	consumer, err := eventprocessor.NewConsumer(&cfg.Messaging, messaging.transport, messaging.transport.Publisher, disp, messaging.logger)
	if err != nil {
		messaging.shutdownBroker()
		logging.Fatal().Err(err).Msg("Failed to create event consumer")
	}

	handler, err := api.NewHandler(api.Deps{
		DB:        db,
		Formatter: fmtr,
		Publisher: messaging.publisher,
		Retries:   queue,
		Fallback:  queue,
		Hub:       wsHub,
		Config:    cfg,
		Version:   version,
	})
	if err != nil {
		messaging.shutdownBroker()
		logging.Fatal().Err(err).Msg("Failed to create API handler")
	}

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           api.NewRouter(handler).SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       120 * time.Second,
	}

	// === SUPERVISOR TREE ===

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		messaging.shutdownBroker()
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddDataService(services.NewRetryLoopService(retryqueue.NewLoop(queue, disp, retryCfg)))
	if messaging.broker != nil {
		tree.AddDataService(services.NewBrokerService(messaging.broker, 10*time.Second))
	}
	tree.AddMessagingService(consumer)
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	tree.AddAPIService(wsHub)
	logging.Info().Str("addr", server.Addr).Msg("Services added to supervisor tree")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
		cancel()
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("ShareSync stopped")
}
