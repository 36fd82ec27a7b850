package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"

	"srf-carbon/internal/growth"
	"srf-carbon/internal/models"
	"srf-carbon/internal/services"
	"srf-carbon/internal/species"
	"srf-carbon/pkg/logging"
	"srf-carbon/pkg/metrics"
)

func main() {
	scenarioPath := flag.String("scenario", "", "TOML scenario file (defaults to the reference scenario)")
	catalogDir := flag.String("catalog", "", "Directory of extra TOML species files")
	seed := flag.Int64("seed", 42, "Random seed")
	area := flag.Float64("area", 0, "Woodland area in hectares")
	rotation := flag.Float64("rotation", 0, "Mean coppicing rotation in years")
	horizon := flag.Int("horizon", 0, "Number of simulated years")
	workers := flag.Int("workers", 1, "Parallel workers for the yearly tree pass")
	logLevel := flag.String("log-level", "warn", "Log level: debug, info, warn, error")
	flag.Parse()

	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	logger := logging.NewStructuredLogger("srf-simulate", "1.0.0", level)
	logger.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scenario := &scenarioFile{}
	if *scenarioPath != "" {
		if scenario, err = loadScenario(*scenarioPath); err != nil {
			logger.Fatal(ctx, "[SIMULATE_ERROR] Invalid scenario", logging.Fields{"path": *scenarioPath}, err)
		}
	}
	req := scenario.request()

	// Flags given explicitly win over the scenario file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "seed":
			req.Seed = seed
		case "area":
			req.AreaHa = area
		case "rotation":
			req.RotationYears = rotation
		case "horizon":
			req.HorizonYears = horizon
		case "workers":
			scenario.Workers = workers
		}
	})
	if req.Seed == nil {
		req.Seed = seed
	}
	if scenario.Workers != nil {
		*workers = *scenario.Workers
	}

	metricsCollector := metrics.NewCollector("srf_simulate", prometheus.NewRegistry())
	registry := species.Default(
		species.WithFitter(growth.Fitter{}),
		species.WithFitHook(services.FitHook(logger, metricsCollector)),
	)
	if *catalogDir != "" {
		defs, err := species.LoadDir(*catalogDir)
		if err != nil {
			logger.Fatal(ctx, "[SIMULATE_ERROR] Failed to load species catalog", logging.Fields{"dir": *catalogDir}, err)
		}
		for _, def := range defs {
			if err := registry.Register(def); err != nil {
				logger.Fatal(ctx, "[SIMULATE_ERROR] Species rejected", logging.Fields{"species": def.Name}, err)
			}
		}
	}

	svc := services.NewSimulationService(registry, services.SimulationLimits{
		DefaultSeed: *seed,
		Workers:     *workers,
	}, logger, metricsCollector)

	resp, err := svc.Run(ctx, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "simulation failed: %v\n", err)
		os.Exit(1)
	}

	printResult(resp)
}

func printResult(resp *models.SimulationResponse) {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("WOODLAND")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Run ID:        %s\n", resp.RunID)
	fmt.Printf("Seed:          %d\n", resp.Seed)
	fmt.Printf("Area:          %g ha\n", resp.Config.AreaHa)
	fmt.Printf("Footprint:     %g ha\n", resp.Config.FootprintHa)
	fmt.Printf("Rotation:      %g years\n", resp.Config.RotationYears)
	fmt.Printf("Trees planted: %d of %d\n", resp.Planting.Planted, resp.Planting.Capacity)
	for _, sc := range resp.Planting.Species {
		fmt.Printf("  %-24s %5.1f%%  %d trees\n", sc.Species, sc.Fraction*100, sc.Trees)
	}

	fmt.Println()
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "year\tharvested\tbiochar t\tnet income\t")
	for _, y := range resp.Years {
		fmt.Fprintf(tw, "%d\t%d\t%.3f\t%.2f\t\n", y.Year, y.Harvested, y.Biomass, y.NetIncome)
	}
	tw.Flush()

	fmt.Println()
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("REVENUE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Years:           %d\n", resp.Summary.Years)
	fmt.Printf("Total biochar:   %.3f t\n", resp.Summary.TotalBiochar)
	fmt.Printf("Total income:    %.2f\n", resp.Summary.Total)
	fmt.Printf("Average income:  %.2f per year\n", resp.Summary.Average)
}
