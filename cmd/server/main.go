package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/finledger/collab/internal/api"
	"github.com/finledger/collab/internal/auth"
	"github.com/finledger/collab/internal/bus"
	"github.com/finledger/collab/internal/conflicts"
	"github.com/finledger/collab/internal/config"
	"github.com/finledger/collab/internal/db"
	"github.com/finledger/collab/internal/middleware"
	"github.com/finledger/collab/internal/repository"
	"github.com/finledger/collab/internal/subscription"
	"github.com/finledger/collab/internal/versioning"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Setup database connection
	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, conn.Pool, "./migrations"); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Repositories
	versionRepo := repository.NewVersionRepository(conn.Pool)
	conflictRepo := repository.NewConflictRepository(conn.Pool)

	// Core services: version store, change bus, conflict detector/resolver
	store := versioning.NewStore(versionRepo)
	changes := bus.New(cfg.Bus.BufferSize, logger)
	locks := conflicts.NewEntityLocks()
	authorizer := auth.ContextAuthorizer{}
	detector := conflicts.NewDetector(store, conflictRepo, changes, locks, logger)
	resolver := conflicts.NewService(store, conflictRepo, changes, authorizer, locks, logger)

	// Subscription gateway
	metrics := subscription.NewMetrics()
	gateway := subscription.NewGateway(changes, metrics, cfg.Gateway.MaxSubscriptionsPerUser, logger)

	// HTTP surface
	handler := api.NewHandler(detector, resolver, authorizer, metrics)
	subscribe := api.NewSubscribeHandler(gateway, logger)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	apiHandler := middleware.LoggingMiddleware(logger,
		auth.Middleware(middleware.DataLoaderMiddleware(versionRepo)(handler)),
	)

	mux := http.NewServeMux()
	mux.Handle("/subscribe", auth.Middleware(subscribe))
	mux.Handle("/metrics", subscription.MetricsHandler())
	mux.Handle("/", corsHandler.Handler(apiHandler))

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	// Closing the bus ends every live subscription stream.
	changes.Close()

	logger.Info().Msg("server exited")
}
