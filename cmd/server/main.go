package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"srf-carbon/internal/cache"
	"srf-carbon/internal/config"
	"srf-carbon/internal/growth"
	"srf-carbon/internal/handlers"
	"srf-carbon/internal/middleware"
	"srf-carbon/internal/repository"
	"srf-carbon/internal/services"
	"srf-carbon/internal/species"
	"srf-carbon/pkg/database"
	"srf-carbon/pkg/logging"
	"srf-carbon/pkg/metrics"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logLevel, _ := logging.ParseLevel(cfg.Logging.Level)
	logger := logging.NewStructuredLogger("srf-carbon-api", version, logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "[STARTUP] Starting SRF carbon API server", logging.Fields{
		"version":          version,
		"server_host":      cfg.Server.Host,
		"server_port":      cfg.Server.Port,
		"database_enabled": cfg.Database.Enabled,
		"redis_enabled":    cfg.Redis.Enabled,
	})

	metricsCollector := metrics.NewCollector("srf_carbon", prometheus.DefaultRegisterer)

	fitter := growth.Fitter{MaxEvaluations: cfg.Simulation.MaxEvaluations}
	registry := species.Default(
		species.WithFitter(fitter),
		species.WithFitHook(services.FitHook(logger, metricsCollector)),
	)

	// Database is optional; without it the built-in catalog is served
	var (
		speciesRepo repository.SpeciesRepository
		health      handlers.HealthChecker
	)
	if cfg.Database.Enabled {
		db, err := database.NewPostgresDB(ctx, cfg.Database.Postgres(), logger, metricsCollector)
		if err != nil {
			logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to database", logging.Fields{}, err)
		}
		defer db.Close()
		speciesRepo = repository.NewSpeciesRepository(db, logger, metricsCollector)
		health = speciesRepo
	}

	fitCache := newFitCache(ctx, cfg.Redis, logger)
	if closer, ok := fitCache.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	speciesService := services.NewSpeciesService(registry, speciesRepo, fitCache, fitter, logger, metricsCollector)
	if _, err := speciesService.LoadCatalog(ctx); err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to load species catalog", logging.Fields{}, err)
	}

	simulationService := services.NewSimulationService(registry, services.SimulationLimits{
		DefaultSeed: cfg.Simulation.DefaultSeed,
		MaxHorizon:  cfg.Simulation.MaxHorizon,
		MaxTrees:    cfg.Simulation.MaxTrees,
		Workers:     cfg.Simulation.Workers,
	}, logger, metricsCollector)

	handler := handlers.NewHandler(speciesService, simulationService, health, logger, metricsCollector)

	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
		Enabled:           cfg.RateLimit.Enabled,
	}, logger, metricsCollector)
	go limiter.Run(ctx, time.Minute)

	// Setup router
	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	handler.RegisterRoutes(router, limiter.Middleware)
	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      middleware.NewCORS(cfg.CORS.AllowedOrigins, cfg.CORS.Debug, logger)(router),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	<-ctx.Done()
	logger.Info(context.Background(), "[SHUTDOWN] Shutting down server...", logging.Fields{})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	logger.Info(shutdownCtx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}

// newFitCache connects to Redis when enabled and falls back to a process
// local cache when it is disabled or unreachable.
func newFitCache(ctx context.Context, cfg config.RedisConfig, logger *logging.StructuredLogger) cache.FitCache {
	if cfg.Enabled {
		rc, err := cache.NewRedisCache(ctx, cache.RedisOptions{
			URL:      cfg.URL,
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			TTL:      cfg.TTL,
		})
		if err == nil {
			logger.Info(ctx, "[STARTUP] Redis fit cache connected", logging.Fields{"addr": cfg.Addr})
			return rc
		}
		logger.Warn(ctx, "[STARTUP] Redis unavailable, using in-memory fit cache", logging.Fields{
			"error": err.Error(),
		})
	}
	return cache.NewMemoryCache(cfg.TTL)
}
