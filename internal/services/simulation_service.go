package services

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"srf-carbon/internal/models"
	"srf-carbon/internal/revenue"
	"srf-carbon/internal/woodland"
	"srf-carbon/pkg/logging"
	"srf-carbon/pkg/metrics"
)

// SimulationLimits bounds a single simulation request
type SimulationLimits struct {
	DefaultSeed int64
	MaxHorizon  int
	MaxTrees    int
	Workers     int
}

// SimulationService runs woodland simulations and prices their output
type SimulationService struct {
	source  woodland.ModelSource
	limits  SimulationLimits
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewSimulationService creates a new simulation service
func NewSimulationService(source woodland.ModelSource, limits SimulationLimits, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *SimulationService {
	return &SimulationService{
		source:  source,
		limits:  limits,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Run simulates the requested scenario. The context is checked between
// simulated years.
func (s *SimulationService) Run(ctx context.Context, req *models.SimulationRequest) (*models.SimulationResponse, error) {
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	timer := s.metrics.NewTimer(s.metrics.SimulationDuration)

	cfg, err := req.Apply(woodland.DefaultConfig(), s.limits.MaxHorizon)
	if err != nil {
		s.metrics.RecordSimulation("invalid", 0, 0)
		return nil, err
	}
	if err := s.checkSize(cfg); err != nil {
		s.metrics.RecordSimulation("invalid", 0, 0)
		return nil, err
	}

	processing := req.ProcessingOrDefault()
	if err := processing.Validate(); err != nil {
		s.metrics.RecordSimulation("invalid", 0, 0)
		return nil, &models.ValidationError{Field: "processing", Message: err.Error()}
	}

	seed := s.limits.DefaultSeed
	if req.Seed != nil {
		seed = *req.Seed
	}

	workers := max(s.limits.Workers, 1)
	w, err := woodland.New(cfg, s.source, woodland.NewRand(seed),
		woodland.WithWorkers(workers),
		woodland.WithObserver(&logObserver{ctx: ctx, logger: s.logger}),
	)
	if err != nil {
		s.metrics.RecordSimulation("invalid", 0, 0)
		return nil, err
	}

	s.logger.Info(ctx, "[SIM_START] Simulation started", logging.Fields{
		"seed":           seed,
		"area_ha":        cfg.AreaHa,
		"footprint_ha":   cfg.FootprintHa,
		"rotation_years": cfg.RotationYears,
		"horizon_years":  cfg.HorizonYears,
		"trees":          w.Trees(),
		"workers":        workers,
	})

	results := make([]woodland.YearResult, 0, cfg.HorizonYears)
	for range cfg.HorizonYears {
		if err := ctx.Err(); err != nil {
			s.metrics.RecordSimulation("cancelled", w.Trees(), len(results))
			s.logger.Warn(ctx, "[SIM_CANCELLED] Simulation stopped early", logging.Fields{
				"completed_years": len(results),
			})
			return nil, fmt.Errorf("simulation %s stopped after %d years: %w", runID, len(results), err)
		}
		results = append(results, w.SimulateYear())
	}

	incomes := processing.Convert(results)
	summary := revenue.Summarize(incomes)
	duration := timer.ObserveDuration()
	s.metrics.RecordSimulation("ok", w.Trees(), len(results))

	s.logger.Info(ctx, "[SIM_COMPLETE] Simulation completed", logging.Fields{
		"years":          len(results),
		"total_biochar":  summary.TotalBiochar,
		"total_income":   summary.Total,
		"average_income": summary.Average,
		"duration_ms":    duration.Milliseconds(),
	})

	return &models.SimulationResponse{
		RunID:      runID,
		Seed:       seed,
		Config:     cfg,
		Processing: processing,
		Planting:   w.Planting(),
		Years:      models.NewYearRows(results, incomes),
		Summary:    summary,
	}, nil
}

func (s *SimulationService) checkSize(cfg woodland.Config) error {
	if s.limits.MaxTrees <= 0 || cfg.FootprintHa <= 0 || math.IsNaN(cfg.AreaHa) {
		return nil
	}
	if capacity := math.Floor(cfg.AreaHa / cfg.FootprintHa); capacity > float64(s.limits.MaxTrees) {
		return &models.ValidationError{
			Field:   "area_ha",
			Value:   fmt.Sprintf("%g", cfg.AreaHa),
			Message: fmt.Sprintf("scenario plants up to %.0f trees, limit is %d", capacity, s.limits.MaxTrees),
		}
	}
	return nil
}

// IsCancellation reports whether err came from a cancelled or expired run
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// logObserver writes woodland progress to the structured log
type logObserver struct {
	ctx    context.Context
	logger *logging.StructuredLogger
}

func (o *logObserver) Planted(p woodland.Planting) {
	fields := logging.Fields{
		"capacity":  p.Capacity,
		"planted":   p.Planted,
		"unplanted": p.Unplanted,
	}
	for _, sc := range p.Species {
		fields["trees_"+sc.Species] = sc.Trees
	}
	o.logger.Info(o.ctx, "[SIM_PLANTED] Woodland planted", fields)
}

func (o *logObserver) YearSimulated(r woodland.YearResult) {
	o.logger.Debug(o.ctx, "[SIM_YEAR] Year simulated", logging.Fields{
		"year":      r.Year,
		"biomass":   r.Biomass,
		"harvested": r.Harvested,
	})
}
