package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"srf-carbon/internal/config"
	"srf-carbon/internal/growth"
	"srf-carbon/internal/repository"
	"srf-carbon/internal/services"
	"srf-carbon/pkg/database"
	"srf-carbon/pkg/logging"
	"srf-carbon/pkg/metrics"
)

func main() {
	// Parse command-line flags
	catalogDir := flag.String("catalog-dir", "", "Directory containing TOML species files")
	builtin := flag.Bool("builtin", false, "Store the built-in reference species")
	flag.Parse()

	if *catalogDir == "" && !*builtin {
		fmt.Fprintln(os.Stderr, "nothing to load: pass -catalog-dir and/or -builtin")
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logLevel, _ := logging.ParseLevel(cfg.Logging.Level)
	logger := logging.NewStructuredLogger("srf-catalog-loader", "1.0.0", logLevel)

	ctx := context.Background()
	logger.Info(ctx, "[LOADER_START] Starting species catalog load", logging.Fields{
		"version":     "1.0.0",
		"catalog_dir": *catalogDir,
		"builtin":     *builtin,
	})

	metricsCollector := metrics.NewCollector("srf_catalog_loader", prometheus.NewRegistry())

	db, err := database.NewPostgresDB(ctx, cfg.Database.Postgres(), logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[LOADER_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	speciesRepo := repository.NewSpeciesRepository(db, logger, metricsCollector)
	catalogService := services.NewCatalogService(speciesRepo,
		growth.Fitter{MaxEvaluations: cfg.Simulation.MaxEvaluations}, logger, metricsCollector)

	failed := 0
	if *builtin {
		result, err := catalogService.IngestBuiltin(ctx)
		if err != nil {
			logger.Fatal(ctx, "[LOADER_ERROR] Built-in catalog load failed", logging.Fields{}, err)
		}
		printResult("BUILT-IN SPECIES", result)
		failed += result.Failed
	}

	if *catalogDir != "" {
		result, err := catalogService.IngestDirectory(ctx, *catalogDir)
		if err != nil {
			logger.Fatal(ctx, "[LOADER_ERROR] Catalog load failed", logging.Fields{
				"catalog_dir": *catalogDir,
			}, err)
		}
		printResult("CATALOG FILES", result)
		failed += result.Failed
	}

	logger.Info(ctx, "[LOADER_COMPLETE] Species catalog load finished", logging.Fields{
		"failed": failed,
	})
	if failed > 0 {
		db.Close()
		os.Exit(1)
	}
}

func printResult(title string, result *services.CatalogResult) {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println(title)
	fmt.Println(strings.Repeat("=", 80))
	if result.TotalFiles > 0 {
		fmt.Printf("Total Files:  %d\n", result.TotalFiles)
	}
	fmt.Printf("Stored:       %d\n", result.Stored)
	fmt.Printf("Fitted:       %d\n", result.Fitted)
	fmt.Printf("Failed:       %d\n", result.Failed)
	fmt.Printf("Duration:     %v\n", result.Duration)

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for i, errMsg := range result.Errors {
			if i < 10 {
				fmt.Printf("  - %s\n", errMsg)
			}
		}
		if len(result.Errors) > 10 {
			fmt.Printf("  ... and %d more errors\n", len(result.Errors)-10)
		}
	}
}
