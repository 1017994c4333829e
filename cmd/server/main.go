// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/finmatch/recommender/internal/config"
	"github.com/finmatch/recommender/internal/database"
	"github.com/finmatch/recommender/internal/eventprocessor"
	"github.com/finmatch/recommender/internal/logging"
	"github.com/finmatch/recommender/internal/products"
	"github.com/finmatch/recommender/internal/recommend"
	"github.com/finmatch/recommender/internal/recommend/model"
	"github.com/finmatch/recommender/internal/recommend/storage"
	"github.com/finmatch/recommender/internal/scheduler"
	"github.com/finmatch/recommender/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("service exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	log := logging.Logger()
	log.Info().Msg("starting finmatch recommender")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Interaction store.
	db, err := database.New(cfg.Database, log)
	if err != nil {
		return fmt.Errorf("opening interaction store: %w", err)
	}
	defer closeQuietly(db.Close, "interaction store")

	// Model generation store.
	store, err := storage.Open(cfg.Storage.Dir, log)
	if err != nil {
		return fmt.Errorf("opening model store: %w", err)
	}
	defer closeQuietly(store.Close, "model store")

	hybrid := model.New(cfg.Model, log)
	catalog := products.NewClient(cfg.Products, log)
	service := recommend.NewService(cfg.Service, hybrid, store, db, catalog, log)

	// Restore the last persisted generation so recommendations are
	// available immediately. A missing or corrupt generation is not
	// fatal: the scheduler trains a fresh one shortly after startup.
	if err := service.RestoreModel(ctx); err != nil {
		log.Warn().Err(err).Msg("no model restored, serving fallback until first refresh")
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	var cleanupNATS func()
	if cfg.NATS.Enabled {
		cleanupNATS, err = initIngest(cfg, tree, db, log)
		if err != nil {
			return fmt.Errorf("initializing event ingestion: %w", err)
		}
		defer cleanupNATS()
	} else {
		log.Info().Msg("event ingestion disabled")
	}

	sched := scheduler.New(cfg.Scheduler, service, log)
	tree.AddModelService(sched)

	if cfg.Metrics.Enabled {
		startMetricsListener(ctx, cfg.Metrics.Addr, log)
	}

	log.Info().Msg("recommender running")
	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervision tree: %w", err)
	}

	log.Info().Msg("shutdown complete")
	return nil
}

// initIngest connects to NATS (starting an embedded server when
// configured), builds the durable consumer, and adds it to the ingest
// layer. The returned cleanup closes the subscriber and stops the
// embedded server.
func initIngest(cfg *config.Config, tree *supervisor.Tree, db *database.DB, log zerolog.Logger) (func(), error) {
	subCfg := cfg.NATS.Subscriber

	var embedded *eventprocessor.EmbeddedServer
	if cfg.NATS.Embedded {
		srv, err := eventprocessor.NewEmbeddedServer(eventprocessor.ServerConfig{
			StoreDir: cfg.NATS.StoreDir,
		})
		if err != nil {
			return nil, err
		}
		embedded = srv
		subCfg.URL = srv.ClientURL()
		log.Info().Str("url", subCfg.URL).Msg("embedded broker started")
	} else {
		log.Info().Str("url", subCfg.URL).Msg("using external broker")
	}

	sub, err := eventprocessor.NewSubscriber(subCfg, log)
	if err != nil {
		if embedded != nil {
			_ = embedded.Shutdown(context.Background())
		}
		return nil, err
	}

	consumer := eventprocessor.NewConsumer(cfg.Consumer, sub, db, log)
	tree.AddIngestService(consumer)

	cleanup := func() {
		if err := sub.Close(); err != nil {
			log.Error().Err(err).Msg("closing subscriber")
		}
		if embedded != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := embedded.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("stopping embedded broker")
			}
		}
	}
	return cleanup, nil
}

// startMetricsListener serves Prometheus exposition on its own
// listener. Serving errors are logged, not fatal: the recommender
// keeps running without metrics.
func startMetricsListener(ctx context.Context, addr string, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("metrics listener started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics listener failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

func closeQuietly(closeFn func() error, name string) {
	if err := closeFn(); err != nil {
		logging.Error().Err(err).Str("component", name).Msg("close failed")
	}
}
